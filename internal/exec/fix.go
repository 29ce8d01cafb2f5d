package exec

import (
	"coil/internal/runtime"
)

// FixMissingPositions walks the tree and fills every missing node position
// with the nearest enclosing valid one, defaulting to the module start.
// The host compiler requires every node to carry a valid position; the
// assembler runs this repair after optimization, which may have introduced
// synthesized nodes.
func FixMissingPositions(m *Module) {
	inherit := runtime.Position{Line: 1, Col: 1}
	for _, s := range m.Body {
		fixStmt(s, inherit)
	}
}

func fixStmt(s Stmt, inherit runtime.Position) {
	if s == nil {
		return
	}
	switch n := s.(type) {
	case *ExprStmt:
		inherit = repair(&n.P, inherit)
		fixExpr(n.X, inherit)
	case *DefStmt:
		inherit = repair(&n.P, inherit)
		fixExpr(n.X, inherit)
	case *ImportStmt:
		repair(&n.P, inherit)
	}
}

func fixExpr(e Expr, inherit runtime.Position) {
	if e == nil {
		return
	}
	switch n := e.(type) {
	case *Const:
		repair(&n.P, inherit)
	case *Name:
		repair(&n.P, inherit)
	case *Local:
		repair(&n.P, inherit)
	case *VarDeref:
		repair(&n.P, inherit)
	case *VarSet:
		inherit = repair(&n.P, inherit)
		fixExpr(n.X, inherit)
	case *Call:
		inherit = repair(&n.P, inherit)
		fixExpr(n.Target, inherit)
		for _, a := range n.Args {
			fixExpr(a, inherit)
		}
	case *Fn:
		inherit = repair(&n.P, inherit)
		for _, b := range n.Body {
			fixExpr(b, inherit)
		}
	case *If:
		inherit = repair(&n.P, inherit)
		fixExpr(n.Test, inherit)
		fixExpr(n.Then, inherit)
		fixExpr(n.Else, inherit)
	case *Do:
		inherit = repair(&n.P, inherit)
		for _, x := range n.Exprs {
			fixExpr(x, inherit)
		}
	case *Let:
		inherit = repair(&n.P, inherit)
		for _, x := range n.Inits {
			fixExpr(x, inherit)
		}
		for _, x := range n.Body {
			fixExpr(x, inherit)
		}
	case *VectorLit:
		inherit = repair(&n.P, inherit)
		for _, x := range n.Items {
			fixExpr(x, inherit)
		}
	}
}

func repair(p *runtime.Position, inherit runtime.Position) runtime.Position {
	if p.Valid() {
		return *p
	}
	*p = inherit
	return inherit
}
