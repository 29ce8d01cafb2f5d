package compiler

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"coil/internal/exec"
	"coil/internal/generator"
	"coil/internal/runtime"
)

// DefaultWrapperBase is the reserved base name for synthetic wrapper
// bindings when the caller does not supply one.
const DefaultWrapperBase = "__coil_expr__"

// Collector receives each loadable unit immediately before it executes, so
// an external cache reflects exactly what is about to run. A nil Collector
// disables collection.
type Collector func(*exec.Unit)

// NoValue is the sentinel returned by EvalForm for the empty form. It is
// distinct from the nil value a form can legitimately evaluate to.
var NoValue runtime.Value = noValue{}

type noValue struct{}

func (noValue) String() string { return "#<no-value>" }

// Option configures a driver invocation.
type Option func(*driverConfig)

type driverConfig struct {
	wrapperBase string
	collect     Collector
}

// WithCollector forwards every assembled unit to c before execution.
func WithCollector(c Collector) Option {
	return func(cfg *driverConfig) { cfg.collect = c }
}

// WithWrapperBase overrides the base name the single-form driver derives
// its unique wrapper binding from. The REPL uses this to get recognizable
// names in diagnostics. Other drivers ignore it.
func WithWrapperBase(base string) Option {
	return func(cfg *driverConfig) {
		if base != "" {
			cfg.wrapperBase = base
		}
	}
}

func newDriverConfig(opts []Option) driverConfig {
	cfg := driverConfig{wrapperBase: DefaultWrapperBase}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// =============================================================================
// UNIT ASSEMBLER + INCREMENTAL LOADER
// =============================================================================

// assemble linearizes generated fragments into one module tree:
// dependencies first, then the main fragment, every fragment converted to
// statement form, the whole run through the optimizer and position repair.
func (c *Context) assemble(frags generator.Fragments) (*exec.Module, error) {
	nodes := make([]exec.Node, 0, len(frags.Deps)+1)
	nodes = append(nodes, frags.Deps...)
	if frags.Main != nil {
		nodes = append(nodes, frags.Main)
	}

	body := make([]exec.Stmt, 0, len(nodes))
	for _, n := range nodes {
		s, err := statementize(n)
		if err != nil {
			return nil, wrapErr(PhaseOptimization, c.file, err)
		}
		body = append(body, s)
	}

	m := c.opt.Rewrite(&exec.Module{File: c.file, Body: body})
	exec.FixMissingPositions(m)
	return m, nil
}

func statementize(n exec.Node) (exec.Stmt, error) {
	switch f := n.(type) {
	case exec.Stmt:
		return f, nil
	case exec.Expr:
		return &exec.ExprStmt{X: f, P: f.Pos()}, nil
	default:
		return nil, fmt.Errorf("assembly: fragment %T is neither a statement nor an expression", n)
	}
}

// load compiles one assembled tree into a loadable unit and executes it
// inside ns. The collector, when present, receives the unit before it
// runs. Execution mutates the namespace in place; a failing unit leaves
// whatever it bound before failing.
func (c *Context) load(ns *runtime.Namespace, m *exec.Module, collect Collector) (*exec.Unit, error) {
	if c.emit != nil {
		if _, err := io.WriteString(c.emit, exec.Render(m)); err != nil {
			c.log.Warn("emitting generated tree failed", zap.Error(err))
		}
	}
	unit, err := exec.Compile(m)
	if err != nil {
		return nil, wrapErr(PhaseHostCompile, c.file, err)
	}
	if collect != nil {
		collect(unit)
	}
	if err := unit.Execute(ns); err != nil {
		return nil, wrapErr(PhaseExecution, c.file, err)
	}
	return unit, nil
}

// compileForm runs one form through analysis, generation, and assembly.
func (c *Context) compileForm(ns *runtime.Namespace, form runtime.Value) (generator.Fragments, error) {
	node, err := c.an.Analyze(ns, form)
	if err != nil {
		return generator.Fragments{}, wrapErr(PhaseAnalysis, c.file, err)
	}
	frags, err := c.gen.Generate(node)
	if err != nil {
		return generator.Fragments{}, wrapErr(PhaseGeneration, c.file, err)
	}
	return frags, nil
}

// =============================================================================
// BOOTSTRAP SEQUENCER
// =============================================================================

// Bootstrap ensures the namespace's one-time preamble has been loaded.
// Calling it on a bootstrapped namespace is a no-op. The flag is set only
// after the preamble loads successfully, so a failed bootstrap can be
// retried. Every driver invokes this before its first unit loads.
func Bootstrap(ctx *Context, ns *runtime.Namespace) error {
	if ns.Bootstrapped {
		return nil
	}
	ctx.log.Debug("bootstrapping namespace",
		zap.String("namespace", ns.Name),
		zap.String("file", ctx.file))
	m, err := ctx.assemble(ctx.gen.Preamble(ns))
	if err != nil {
		return err
	}
	if _, err := ctx.load(ns, m, nil); err != nil {
		return err
	}
	ns.Bootstrapped = true
	return nil
}

// =============================================================================
// DRIVERS
// =============================================================================

// EvalForm compiles and executes a single form, returning the value it
// evaluates to. The empty form (nil) returns NoValue without touching the
// namespace. The form's value is captured through a uniquely named
// zero-argument wrapper whose binding is removed from the namespace on
// every exit path.
func EvalForm(ctx *Context, ns *runtime.Namespace, form runtime.Value, opts ...Option) (runtime.Value, error) {
	if form == nil {
		return NoValue, nil
	}
	cfg := newDriverConfig(opts)

	if err := Bootstrap(ctx, ns); err != nil {
		return nil, err
	}

	wrapperName := runtime.GenName(cfg.wrapperBase)
	defer ns.Delete(wrapperName)

	frags, err := ctx.compileForm(ns, form)
	if err != nil {
		return nil, err
	}

	main, ok := frags.Main.(exec.Expr)
	if !ok {
		return nil, wrapErr(PhaseOptimization, ctx.file,
			fmt.Errorf("assembly: main fragment %T is not an expression", frags.Main))
	}
	wrapper := &exec.DefStmt{
		Name: wrapperName,
		X:    &exec.Fn{Name: wrapperName, Body: []exec.Expr{main}, P: main.Pos()},
		P:    main.Pos(),
	}

	m, err := ctx.assemble(generator.Fragments{Deps: frags.Deps, Main: wrapper})
	if err != nil {
		return nil, err
	}
	if _, err := ctx.load(ns, m, cfg.collect); err != nil {
		return nil, err
	}

	v, ok := ns.Resolve(wrapperName)
	if !ok {
		return nil, wrapErr(PhaseExecution, ctx.file,
			fmt.Errorf("wrapper binding %s vanished before invocation", wrapperName))
	}
	val, err := v.Deref()
	if err != nil {
		return nil, wrapErr(PhaseExecution, ctx.file, err)
	}
	fn, ok := val.(*runtime.Fn)
	if !ok {
		return nil, wrapErr(PhaseExecution, ctx.file,
			fmt.Errorf("wrapper binding %s is not invocable", wrapperName))
	}
	out, err := fn.Call(nil)
	if err != nil {
		return nil, wrapErr(PhaseExecution, ctx.file, err)
	}
	return out, nil
}

// CompileModule compiles an ordered sequence of forms into ns. Each form
// is analyzed, generated, assembled, and loaded before the next form is
// analyzed, so later forms see the bindings of earlier ones. The first
// failure aborts the remainder; forms already loaded stay loaded.
func CompileModule(ctx *Context, ns *runtime.Namespace, forms []runtime.Value, opts ...Option) error {
	cfg := newDriverConfig(opts)

	if err := Bootstrap(ctx, ns); err != nil {
		return err
	}
	for _, form := range forms {
		frags, err := ctx.compileForm(ns, form)
		if err != nil {
			return err
		}
		m, err := ctx.assemble(frags)
		if err != nil {
			return err
		}
		if _, err := ctx.load(ns, m, cfg.collect); err != nil {
			return err
		}
	}
	return nil
}

// Replay bootstraps ns and executes previously produced loadable units in
// order, skipping analysis, generation, and optimization entirely. The
// first failing unit stops the run; remaining units are not attempted.
func Replay(ctx *Context, ns *runtime.Namespace, units []*exec.Unit) error {
	if err := Bootstrap(ctx, ns); err != nil {
		return err
	}
	for _, u := range units {
		if err := u.Execute(ns); err != nil {
			return wrapErr(PhaseExecution, u.File, err)
		}
	}
	return nil
}
