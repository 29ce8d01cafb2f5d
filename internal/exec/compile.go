package exec

import (
	"fmt"

	"github.com/google/uuid"

	"coil/internal/runtime"
)

// CompileError reports a tree the host compiler rejected: a structurally
// malformed node or one whose source position is missing after repair.
type CompileError struct {
	File string
	Pos  runtime.Position
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.File, e.Pos, e.Msg)
}

// Unit is a loadable unit: the host-compiled artifact of one module tree.
// A unit may execute against any namespace, any number of times; each
// execution re-evaluates the statement sequence in order.
type Unit struct {
	ID   string
	File string

	steps []step
}

type step func(ns *runtime.Namespace) error

// thunk is one compiled expression, evaluated against a namespace and a
// frame of local bindings (nil at module level).
type thunk func(ns *runtime.Namespace, fr *frame) (runtime.Value, error)

// frame is a chain of local binding scopes. Function calls and lets push
// frames; name resolution walks outward.
type frame struct {
	vars   map[string]runtime.Value
	parent *frame
}

func (f *frame) lookup(name string) (runtime.Value, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Execute runs the unit's statements in order against ns. A failing
// statement aborts the rest; earlier statements' mutations remain.
func (u *Unit) Execute(ns *runtime.Namespace) error {
	for _, st := range u.steps {
		if err := st(ns); err != nil {
			return err
		}
	}
	return nil
}

// Compile turns a module tree into a loadable unit. Every node is
// validated (positions present, required children non-nil) and compiled to
// a closure exactly once; execution never revisits the tree.
func Compile(m *Module) (*Unit, error) {
	c := &hostCompiler{file: m.File}
	steps := make([]step, 0, len(m.Body))
	for _, s := range m.Body {
		cs, err := c.stmt(s)
		if err != nil {
			return nil, err
		}
		steps = append(steps, cs)
	}
	return &Unit{ID: uuid.New().String(), File: m.File, steps: steps}, nil
}

type hostCompiler struct {
	file string
}

func (c *hostCompiler) errf(pos runtime.Position, format string, args ...any) error {
	return &CompileError{File: c.file, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (c *hostCompiler) check(n Node, what string) error {
	if n == nil {
		return &CompileError{File: c.file, Msg: what + " node is nil"}
	}
	if !n.Pos().Valid() {
		return c.errf(n.Pos(), "%s node has no source position", what)
	}
	return nil
}

func (c *hostCompiler) stmt(s Stmt) (step, error) {
	if err := c.check(s, "statement"); err != nil {
		return nil, err
	}
	switch n := s.(type) {
	case *ExprStmt:
		t, err := c.expr(n.X)
		if err != nil {
			return nil, err
		}
		return func(ns *runtime.Namespace) error {
			_, err := t(ns, nil)
			return err
		}, nil
	case *DefStmt:
		if n.Name == "" {
			return nil, c.errf(n.P, "def statement has no name")
		}
		var t thunk
		if n.X != nil {
			var err error
			if t, err = c.expr(n.X); err != nil {
				return nil, err
			}
		}
		return func(ns *runtime.Namespace) error {
			v := ns.Intern(n.Name)
			if n.Dynamic {
				v.Dynamic = true
			}
			if t == nil {
				return nil
			}
			val, err := t(ns, nil)
			if err != nil {
				return err
			}
			if fn, ok := val.(*runtime.Fn); ok && fn.Name == "" {
				fn.Name = n.Name
			}
			v.BindRoot(val)
			return nil
		}, nil
	case *ImportStmt:
		if n.Install == nil {
			return nil, c.errf(n.P, "import %s has no installer", n.Module)
		}
		return func(ns *runtime.Namespace) error {
			if err := n.Install(ns); err != nil {
				return fmt.Errorf("import %s: %w", n.Module, err)
			}
			return nil
		}, nil
	default:
		return nil, c.errf(s.Pos(), "unknown statement node %T", s)
	}
}

func (c *hostCompiler) exprs(es []Expr) ([]thunk, error) {
	ts := make([]thunk, len(es))
	for i, e := range es {
		t, err := c.expr(e)
		if err != nil {
			return nil, err
		}
		ts[i] = t
	}
	return ts, nil
}

func (c *hostCompiler) expr(e Expr) (thunk, error) {
	if err := c.check(e, "expression"); err != nil {
		return nil, err
	}
	switch n := e.(type) {
	case *Const:
		val := n.Val
		if val == nil {
			val = runtime.Nil{}
		}
		return func(*runtime.Namespace, *frame) (runtime.Value, error) {
			return val, nil
		}, nil

	case *Name:
		if n.Ident == "" {
			return nil, c.errf(n.P, "name node has empty identifier")
		}
		pos := n.P
		return func(ns *runtime.Namespace, _ *frame) (runtime.Value, error) {
			v, ok := ns.Resolve(n.Ident)
			if !ok {
				return nil, fmt.Errorf("%s: unable to resolve name: %s", pos, n.Ident)
			}
			return v.Deref()
		}, nil

	case *Local:
		if n.Ident == "" {
			return nil, c.errf(n.P, "local node has empty identifier")
		}
		pos := n.P
		return func(_ *runtime.Namespace, fr *frame) (runtime.Value, error) {
			v, ok := fr.lookup(n.Ident)
			if !ok {
				return nil, fmt.Errorf("%s: undefined local: %s", pos, n.Ident)
			}
			return v, nil
		}, nil

	case *VarDeref:
		if n.Name == "" {
			return nil, c.errf(n.P, "var deref node has empty name")
		}
		pos := n.P
		return func(ns *runtime.Namespace, _ *frame) (runtime.Value, error) {
			v, ok := ns.Resolve(n.Name)
			if !ok {
				return nil, fmt.Errorf("%s: unable to resolve direct-linked var: %s", pos, n.Name)
			}
			return v.Deref()
		}, nil

	case *VarSet:
		if n.Name == "" {
			return nil, c.errf(n.P, "set node has empty name")
		}
		t, err := c.expr(n.X)
		if err != nil {
			return nil, err
		}
		pos := n.P
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			v, ok := ns.Resolve(n.Name)
			if !ok {
				return nil, fmt.Errorf("%s: unable to resolve var for set!: %s", pos, n.Name)
			}
			val, err := t(ns, fr)
			if err != nil {
				return nil, err
			}
			v.BindRoot(val)
			return val, nil
		}, nil

	case *Call:
		target, err := c.expr(n.Target)
		if err != nil {
			return nil, err
		}
		args, err := c.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		pos := n.P
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			tv, err := target(ns, fr)
			if err != nil {
				return nil, err
			}
			fn, ok := tv.(*runtime.Fn)
			if !ok {
				return nil, fmt.Errorf("%s: not invocable: %s", pos, runtime.Display(tv))
			}
			vals := make([]runtime.Value, len(args))
			for i, a := range args {
				if vals[i], err = a(ns, fr); err != nil {
					return nil, err
				}
			}
			return fn.Call(vals)
		}, nil

	case *Fn:
		seen := make(map[string]bool, len(n.Params))
		for _, p := range n.Params {
			if p == "" {
				return nil, c.errf(n.P, "fn has empty parameter name")
			}
			if seen[p] {
				return nil, c.errf(n.P, "fn has duplicate parameter: %s", p)
			}
			seen[p] = true
		}
		body, err := c.exprs(n.Body)
		if err != nil {
			return nil, err
		}
		name, params := n.Name, n.Params
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			// The closure pins the namespace and frame of its creation.
			defNS, defFrame := ns, fr
			return &runtime.Fn{Name: name, Invoke: func(args []runtime.Value) (runtime.Value, error) {
				if len(args) != len(params) {
					fname := name
					if fname == "" {
						fname = "fn"
					}
					return nil, fmt.Errorf("wrong number of args (%d) passed to: %s", len(args), fname)
				}
				vars := make(map[string]runtime.Value, len(params))
				for i, p := range params {
					vars[p] = args[i]
				}
				return evalBody(body, defNS, &frame{vars: vars, parent: defFrame})
			}}, nil
		}, nil

	case *If:
		test, err := c.expr(n.Test)
		if err != nil {
			return nil, err
		}
		then, err := c.expr(n.Then)
		if err != nil {
			return nil, err
		}
		var els thunk
		if n.Else != nil {
			if els, err = c.expr(n.Else); err != nil {
				return nil, err
			}
		}
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			tv, err := test(ns, fr)
			if err != nil {
				return nil, err
			}
			if runtime.Truthy(tv) {
				return then(ns, fr)
			}
			if els == nil {
				return runtime.Nil{}, nil
			}
			return els(ns, fr)
		}, nil

	case *Do:
		body, err := c.exprs(n.Exprs)
		if err != nil {
			return nil, err
		}
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			return evalBody(body, ns, fr)
		}, nil

	case *Let:
		if len(n.Names) != len(n.Inits) {
			return nil, c.errf(n.P, "let has %d names but %d inits", len(n.Names), len(n.Inits))
		}
		inits, err := c.exprs(n.Inits)
		if err != nil {
			return nil, err
		}
		body, err := c.exprs(n.Body)
		if err != nil {
			return nil, err
		}
		names := n.Names
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			scope := &frame{vars: make(map[string]runtime.Value, len(names)), parent: fr}
			for i, t := range inits {
				val, err := t(ns, scope)
				if err != nil {
					return nil, err
				}
				scope.vars[names[i]] = val
			}
			return evalBody(body, ns, scope)
		}, nil

	case *VectorLit:
		items, err := c.exprs(n.Items)
		if err != nil {
			return nil, err
		}
		return func(ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
			out := make([]runtime.Value, len(items))
			for i, t := range items {
				var err error
				if out[i], err = t(ns, fr); err != nil {
					return nil, err
				}
			}
			return runtime.Vector{Items: out}, nil
		}, nil

	default:
		return nil, c.errf(e.Pos(), "unknown expression node %T", e)
	}
}

func evalBody(body []thunk, ns *runtime.Namespace, fr *frame) (runtime.Value, error) {
	var last runtime.Value = runtime.Nil{}
	for _, t := range body {
		v, err := t(ns, fr)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}
