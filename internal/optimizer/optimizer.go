// Package optimizer rewrites executable-form trees before host
// compilation. The passes are conservative: fold conditionals with
// constant tests, flatten nested do blocks, and drop effect-free
// statements. Rewriting is pure; input trees are never mutated and the
// namespace is never touched.
package optimizer

import (
	"coil/internal/exec"
	"coil/internal/runtime"
)

// Optimizer rewrites module trees. One instance belongs to each
// compilation context; it carries no state between rewrites.
type Optimizer struct{}

// New creates an Optimizer.
func New() *Optimizer { return &Optimizer{} }

// Rewrite returns an optimized copy of m. The statement order of the
// surviving statements is preserved.
func (o *Optimizer) Rewrite(m *exec.Module) *exec.Module {
	out := &exec.Module{File: m.File, Body: make([]exec.Stmt, 0, len(m.Body))}
	for _, s := range m.Body {
		rs := o.stmt(s)
		if rs == nil {
			continue
		}
		out.Body = append(out.Body, rs)
	}
	return out
}

// stmt rewrites one statement, returning nil when the statement has no
// observable effect and can be dropped.
func (o *Optimizer) stmt(s exec.Stmt) exec.Stmt {
	switch n := s.(type) {
	case *exec.ExprStmt:
		x := o.expr(n.X)
		if _, isConst := x.(*exec.Const); isConst {
			// A bare constant at statement position computes nothing.
			return nil
		}
		return &exec.ExprStmt{X: x, P: n.P}
	case *exec.DefStmt:
		out := &exec.DefStmt{Name: n.Name, Dynamic: n.Dynamic, P: n.P}
		if n.X != nil {
			out.X = o.expr(n.X)
		}
		return out
	default:
		return s
	}
}

func (o *Optimizer) exprs(es []exec.Expr) []exec.Expr {
	if es == nil {
		return nil
	}
	out := make([]exec.Expr, len(es))
	for i, e := range es {
		out[i] = o.expr(e)
	}
	return out
}

func (o *Optimizer) expr(e exec.Expr) exec.Expr {
	switch n := e.(type) {
	case *exec.VarSet:
		return &exec.VarSet{Name: n.Name, X: o.expr(n.X), P: n.P}

	case *exec.Call:
		return &exec.Call{Target: o.expr(n.Target), Args: o.exprs(n.Args), P: n.P}

	case *exec.Fn:
		return &exec.Fn{Name: n.Name, Params: n.Params, Body: o.exprs(n.Body), P: n.P}

	case *exec.If:
		test := o.expr(n.Test)
		then := o.expr(n.Then)
		var els exec.Expr
		if n.Else != nil {
			els = o.expr(n.Else)
		}
		if c, ok := test.(*exec.Const); ok {
			// The branch is decided now; the dead side disappears.
			if runtime.Truthy(c.Val) {
				return then
			}
			if els == nil {
				return &exec.Const{Val: runtime.Nil{}, P: n.P}
			}
			return els
		}
		return &exec.If{Test: test, Then: then, Else: els, P: n.P}

	case *exec.Do:
		body := flattenDo(o.exprs(n.Exprs))
		switch len(body) {
		case 0:
			return &exec.Const{Val: runtime.Nil{}, P: n.P}
		case 1:
			return body[0]
		}
		return &exec.Do{Exprs: body, P: n.P}

	case *exec.Let:
		return &exec.Let{Names: n.Names, Inits: o.exprs(n.Inits), Body: o.exprs(n.Body), P: n.P}

	case *exec.VectorLit:
		return &exec.VectorLit{Items: o.exprs(n.Items), P: n.P}

	default:
		return e
	}
}

// flattenDo splices nested do blocks into their parent. Intermediate
// values are discarded either way, so the result value is unchanged.
func flattenDo(exprs []exec.Expr) []exec.Expr {
	out := make([]exec.Expr, 0, len(exprs))
	for i, e := range exprs {
		if inner, ok := e.(*exec.Do); ok {
			out = append(out, inner.Exprs...)
			continue
		}
		// Constants in non-final position contribute nothing.
		if _, ok := e.(*exec.Const); ok && i < len(exprs)-1 {
			continue
		}
		out = append(out, e)
	}
	return out
}
