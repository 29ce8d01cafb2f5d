package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"coil/internal/analyzer"
	"coil/internal/exec"
	"coil/internal/generator"
	"coil/internal/reader"
	"coil/internal/runtime"
)

func testCtx(copts ...ContextOption) *Context {
	return NewContext("repl.coil", DefaultOptions(), copts...)
}

func oneForm(t *testing.T, src string) runtime.Value {
	t.Helper()
	forms, err := reader.ReadAll("repl.coil", src)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	return forms[0]
}

func readForms(t *testing.T, src string) []runtime.Value {
	t.Helper()
	forms, err := reader.ReadAll("repl.coil", src)
	require.NoError(t, err)
	return forms
}

func namesWithPrefix(ns *runtime.Namespace, prefix string) []string {
	var out []string
	for _, n := range ns.Names() {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out
}

func derefNamed(t *testing.T, ns *runtime.Namespace, name string) runtime.Value {
	t.Helper()
	v, ok := ns.Resolve(name)
	require.True(t, ok, "expected %s to be interned", name)
	val, err := v.Deref()
	require.NoError(t, err)
	return val
}

func TestEvalForm(t *testing.T) {
	t.Run("Literal", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		got, err := EvalForm(testCtx(), ns, oneForm(t, "42"))
		require.NoError(t, err)
		assert.Equal(t, runtime.Int(42), got)
	})

	t.Run("Arithmetic", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		got, err := EvalForm(testCtx(), ns, oneForm(t, "(+ 1 (* 2 3))"))
		require.NoError(t, err)
		assert.Equal(t, runtime.Int(7), got)
	})

	t.Run("DefReturnsTheVar", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		got, err := EvalForm(testCtx(), ns, oneForm(t, "(def x 7)"))
		require.NoError(t, err)

		v, ok := got.(*runtime.Var)
		require.True(t, ok, "def evaluates to the interned var, got %T", got)
		assert.Equal(t, "#'user/x", v.String())
		assert.Equal(t, runtime.Int(7), derefNamed(t, ns, "x"))
	})

	t.Run("DefinitionsPersistAcrossForms", func(t *testing.T) {
		ctx := testCtx()
		ns := runtime.NewNamespace("user")

		_, err := EvalForm(ctx, ns, oneForm(t, "(def square (fn [x] (* x x)))"))
		require.NoError(t, err)

		got, err := EvalForm(ctx, ns, oneForm(t, "(square 5)"))
		require.NoError(t, err)
		assert.Equal(t, runtime.Int(25), got)
	})

	t.Run("SetBangOnDynamicVar", func(t *testing.T) {
		ctx := testCtx()
		ns := runtime.NewNamespace("user")

		_, err := EvalForm(ctx, ns, oneForm(t, "(defdyn mode :dev)"))
		require.NoError(t, err)

		got, err := EvalForm(ctx, ns, oneForm(t, "(set! mode :prod)"))
		require.NoError(t, err)
		assert.Equal(t, runtime.Keyword("prod"), got)
		assert.Equal(t, runtime.Keyword("prod"), derefNamed(t, ns, "mode"))
	})

	t.Run("EmptyFormIsANoOp", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		got, err := EvalForm(testCtx(), ns, nil)
		require.NoError(t, err)

		assert.Equal(t, NoValue, got)
		assert.Equal(t, "#<no-value>", got.String())
		assert.False(t, ns.Bootstrapped, "the empty form must not trigger bootstrap")
		assert.Empty(t, ns.Names())
	})
}

func TestBootstrap(t *testing.T) {
	t.Run("RunsOncePerNamespace", func(t *testing.T) {
		ctx := testCtx()
		ns := runtime.NewNamespace("user")

		require.NoError(t, Bootstrap(ctx, ns))
		require.True(t, ns.Bootstrapped)

		// Rebinding a core var proves the second call does not reinstall.
		plus, ok := ns.Resolve("+")
		require.True(t, ok)
		marker := &runtime.Fn{Name: "marker"}
		plus.BindRoot(marker)

		require.NoError(t, Bootstrap(ctx, ns))
		got, err := plus.Deref()
		require.NoError(t, err)
		assert.Same(t, marker, got)
	})

	t.Run("DriversBootstrapImplicitly", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		_, err := EvalForm(testCtx(), ns, oneForm(t, "1"))
		require.NoError(t, err)

		assert.True(t, ns.Bootstrapped)
		_, ok := ns.Resolve("+")
		assert.True(t, ok, "core bindings install during bootstrap")
	})

	t.Run("LogsFirstRunOnly", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		ctx := testCtx(WithLogger(zap.New(core)))
		ns := runtime.NewNamespace("user")

		_, err := EvalForm(ctx, ns, oneForm(t, "1"))
		require.NoError(t, err)
		_, err = EvalForm(ctx, ns, oneForm(t, "2"))
		require.NoError(t, err)

		assert.Equal(t, 1, logs.FilterMessage("bootstrapping namespace").Len())
	})
}

func TestWrapperCleanup(t *testing.T) {
	t.Run("AfterSuccess", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		_, err := EvalForm(testCtx(), ns, oneForm(t, "(+ 1 2)"))
		require.NoError(t, err)

		assert.Empty(t, namesWithPrefix(ns, DefaultWrapperBase))
	})

	t.Run("AfterExecutionFailure", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		_, err := EvalForm(testCtx(), ns, oneForm(t, "(/ 1 0)"))
		require.Error(t, err)

		assert.Empty(t, namesWithPrefix(ns, DefaultWrapperBase))
	})

	t.Run("AfterAnalysisFailure", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		_, err := EvalForm(testCtx(), ns, oneForm(t, "(nope)"))
		require.Error(t, err)

		assert.Empty(t, namesWithPrefix(ns, DefaultWrapperBase))
	})

	t.Run("CustomWrapperBase", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		got, err := EvalForm(testCtx(), ns, oneForm(t, "(+ 20 22)"), WithWrapperBase("repl_input"))
		require.NoError(t, err)

		assert.Equal(t, runtime.Int(42), got)
		assert.Empty(t, namesWithPrefix(ns, "repl_input"))
		assert.Empty(t, namesWithPrefix(ns, DefaultWrapperBase))
	})
}

func TestSequentialVisibility(t *testing.T) {
	t.Run("DefinitionThenUse", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		err := CompileModule(testCtx(), ns, readForms(t, "(def a 1) (def b a)"))
		require.NoError(t, err)

		assert.Equal(t, runtime.Int(1), derefNamed(t, ns, "b"))
	})

	t.Run("UseBeforeDefinitionFails", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		err := CompileModule(testCtx(), ns, readForms(t, "(def b a) (def a 1)"))
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseAnalysis, ce.Phase)
		assert.Contains(t, err.Error(), "unable to resolve symbol: a")

		// The failing def interned its own name but never bound it; the
		// later definition was never reached.
		_, ok := ns.Resolve("a")
		assert.False(t, ok)
		b, ok := ns.Resolve("b")
		require.True(t, ok)
		assert.False(t, b.Bound())
	})
}

func TestCompileModule(t *testing.T) {
	t.Run("LoadsFormsInOrder", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		src := `
			(def base 2)
			(def scale (fn [x] (* x base)))
			(def result (scale 21))`
		require.NoError(t, CompileModule(testCtx(), ns, readForms(t, src)))

		assert.Equal(t, runtime.Int(42), derefNamed(t, ns, "result"))
	})

	t.Run("StopsAtFirstAnalysisFailure", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		err := CompileModule(testCtx(), ns, readForms(t, "(def a 1) (boom) (def c 3)"))
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseAnalysis, ce.Phase)

		assert.Equal(t, runtime.Int(1), derefNamed(t, ns, "a"))
		_, ok := ns.Resolve("c")
		assert.False(t, ok, "forms after the failure must not load")
	})

	t.Run("ExecutionFailurePreservesEarlierForms", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		err := CompileModule(testCtx(), ns, readForms(t, "(def a 1) (/ 1 0) (def c 3)"))
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseExecution, ce.Phase)
		assert.Contains(t, err.Error(), "divide by zero")

		assert.Equal(t, runtime.Int(1), derefNamed(t, ns, "a"))
		_, ok := ns.Resolve("c")
		assert.False(t, ok)
	})
}

func TestCollector(t *testing.T) {
	t.Run("ReceivesOneUnitPerForm", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		var units []*exec.Unit
		collect := func(u *exec.Unit) { units = append(units, u) }

		src := "(def a 1) (def b 2) (def c 3)"
		require.NoError(t, CompileModule(testCtx(), ns, readForms(t, src), WithCollector(collect)))

		require.Len(t, units, 3, "the bootstrap unit is never collected")
		for _, u := range units {
			assert.Equal(t, "repl.coil", u.File)
			assert.NotEmpty(t, u.ID)
		}
	})

	t.Run("EvalFormCollectsItsSingleUnit", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		var units []*exec.Unit
		collect := func(u *exec.Unit) { units = append(units, u) }

		_, err := EvalForm(testCtx(), ns, oneForm(t, "(+ 1 2)"), WithCollector(collect))
		require.NoError(t, err)
		assert.Len(t, units, 1)
	})

	t.Run("ObservesPreExecutionState", func(t *testing.T) {
		ns := runtime.NewNamespace("user")

		// Record, at collection time, whether each form's own binding is
		// already bound. It never should be: collection precedes execution.
		bound := make(map[string]bool)
		names := []string{"a", "b"}
		i := 0
		collect := func(*exec.Unit) {
			v, ok := ns.Resolve(names[i])
			bound[names[i]] = ok && v.Bound()
			i++
		}

		require.NoError(t, CompileModule(testCtx(), ns, readForms(t, "(def a 1) (def b a)"), WithCollector(collect)))

		assert.False(t, bound["a"])
		assert.False(t, bound["b"])
		assert.Equal(t, runtime.Int(1), derefNamed(t, ns, "b"))
	})
}

func TestReplay(t *testing.T) {
	t.Run("ReproducesNamespaceBindings", func(t *testing.T) {
		ctx := testCtx()
		src := `
			(def a 2)
			(def f (fn [x] (+ x a)))
			(def b (f 40))`

		ns1 := runtime.NewNamespace("user")
		var units []*exec.Unit
		collect := func(u *exec.Unit) { units = append(units, u) }
		require.NoError(t, CompileModule(ctx, ns1, readForms(t, src), WithCollector(collect)))
		require.Equal(t, runtime.Int(42), derefNamed(t, ns1, "b"))

		ns2 := runtime.NewNamespace("user")
		require.NoError(t, Replay(ctx, ns2, units))

		assert.True(t, ns2.Bootstrapped)
		assert.Empty(t, cmp.Diff(ns1.Snapshot(), ns2.Snapshot()))
		assert.Equal(t, runtime.Int(42), derefNamed(t, ns2, "b"))
	})

	t.Run("DirectLinksResolveInTheReplayNamespace", func(t *testing.T) {
		ctx := testCtx()
		// Non-literal inits keep x out of the auto-inline registry, so the
		// reference in (def y x) lowers to a direct-linked var read.
		src := `
			(def x (+ 0 1))
			(def y x)
			(def x (+ 0 5))`

		ns1 := runtime.NewNamespace("user")
		var units []*exec.Unit
		collect := func(u *exec.Unit) { units = append(units, u) }
		require.NoError(t, CompileModule(ctx, ns1, readForms(t, src), WithCollector(collect)))
		require.Equal(t, runtime.Int(1), derefNamed(t, ns1, "y"))
		require.Equal(t, runtime.Int(5), derefNamed(t, ns1, "x"))

		ns2 := runtime.NewNamespace("user")
		require.NoError(t, Replay(ctx, ns2, units))

		assert.Equal(t, runtime.Int(1), derefNamed(t, ns2, "y"),
			"the read must see the replay namespace's binding at that point, not the compiling namespace's final one")
		assert.Empty(t, cmp.Diff(ns1.Snapshot(), ns2.Snapshot()))
	})

	t.Run("StopsAtFirstFailingUnit", func(t *testing.T) {
		pos := runtime.Position{Line: 1, Col: 1}
		failing, err := exec.Compile(&exec.Module{File: "other.coil", Body: []exec.Stmt{
			&exec.ExprStmt{X: &exec.Name{Ident: "ghost", P: pos}, P: pos},
		}})
		require.NoError(t, err)
		after, err := exec.Compile(&exec.Module{File: "other.coil", Body: []exec.Stmt{
			&exec.DefStmt{Name: "z", X: &exec.Const{Val: runtime.Int(1), P: pos}, P: pos},
		}})
		require.NoError(t, err)

		ns := runtime.NewNamespace("user")
		err = Replay(testCtx(), ns, []*exec.Unit{failing, after})
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseExecution, ce.Phase)
		assert.Equal(t, "other.coil", ce.File, "failures carry the unit's own file")
		assert.Contains(t, err.Error(), "unable to resolve name: ghost")

		_, ok := ns.Resolve("z")
		assert.False(t, ok, "units after the failure must not execute")
	})
}

func TestPhaseTagging(t *testing.T) {
	t.Run("Analysis", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		_, err := EvalForm(testCtx(), ns, oneForm(t, "(boom)"))
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseAnalysis, ce.Phase)
		assert.Equal(t, "repl.coil", ce.File)
		assert.Equal(t, runtime.Position{Line: 1, Col: 2}, ce.Pos)

		var ae *analyzer.Error
		assert.ErrorAs(t, err, &ae)
	})

	t.Run("Execution", func(t *testing.T) {
		ns := runtime.NewNamespace("user")
		_, err := EvalForm(testCtx(), ns, oneForm(t, "(/ 1 0)"))
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseExecution, ce.Phase)
		assert.Equal(t, "execution failure: divide by zero", ce.Error())
	})

	t.Run("UnboundVarDerefFailsAtExecution", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		ctx := testCtx(WithLogger(zap.New(core)))
		ns := runtime.NewNamespace("user")

		_, err := EvalForm(ctx, ns, oneForm(t, "(def g)"))
		require.NoError(t, err)

		_, err = EvalForm(ctx, ns, oneForm(t, "(g)"))
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseExecution, ce.Phase)
		assert.Contains(t, err.Error(), "unbound var: user/g")
		assert.Equal(t, 1, logs.FilterMessage("var indirection required for unbound var").Len())
	})

	t.Run("HostCompilation", func(t *testing.T) {
		ctx := testCtx()
		ns := runtime.NewNamespace("user")
		pos := runtime.Position{Line: 1, Col: 1}

		_, err := ctx.load(ns, &exec.Module{File: "bad.coil", Body: []exec.Stmt{
			&exec.DefStmt{Name: "", P: pos},
		}}, nil)
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseHostCompile, ce.Phase)
		assert.Equal(t, "bad.coil", ce.File)

		var inner *exec.CompileError
		assert.ErrorAs(t, err, &inner)
	})

	t.Run("AssemblyRejectsForeignNodes", func(t *testing.T) {
		ctx := testCtx()
		_, err := ctx.assemble(generator.Fragments{Main: bogusNode{}})
		require.Error(t, err)

		var ce *Error
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, PhaseOptimization, ce.Phase)
		assert.Contains(t, err.Error(), "neither a statement nor an expression")
	})
}

// bogusNode satisfies exec.Node without being a statement or expression.
type bogusNode struct{}

func (bogusNode) Pos() runtime.Position { return runtime.Position{Line: 1, Col: 1} }

func TestEmitWriter(t *testing.T) {
	var buf bytes.Buffer
	ctx := testCtx(WithEmitWriter(&buf))
	ns := runtime.NewNamespace("user")

	require.NoError(t, CompileModule(ctx, ns, readForms(t, "(def x 1)")))

	out := buf.String()
	assert.Contains(t, out, ";; module repl.coil")
	assert.Contains(t, out, "(import coil.core)")
	assert.Contains(t, out, "(def x 1)")
}
