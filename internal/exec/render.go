package exec

import (
	"fmt"
	"strings"
)

// Render produces a human-readable listing of a module tree, one statement
// per line. It exists purely for diagnostics: the CLI dumps assembled trees
// through it when tree emission is enabled. Rendering never affects
// compilation or execution.
func Render(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ";; module %s\n", m.File)
	for _, s := range m.Body {
		sb.WriteString(renderStmt(s))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func renderStmt(s Stmt) string {
	switch n := s.(type) {
	case *ExprStmt:
		return renderExpr(n.X)
	case *DefStmt:
		head := "def"
		if n.Dynamic {
			head = "defdyn"
		}
		if n.X == nil {
			return fmt.Sprintf("(%s %s)", head, n.Name)
		}
		return fmt.Sprintf("(%s %s %s)", head, n.Name, renderExpr(n.X))
	case *ImportStmt:
		return fmt.Sprintf("(import %s)", n.Module)
	default:
		return fmt.Sprintf("#<unknown-stmt %T>", s)
	}
}

func renderExpr(e Expr) string {
	switch n := e.(type) {
	case nil:
		return "#<nil>"
	case *Const:
		if n.Val == nil {
			return "nil"
		}
		return n.Val.String()
	case *Name:
		return n.Ident
	case *Local:
		return n.Ident
	case *VarDeref:
		return n.Name
	case *VarSet:
		return fmt.Sprintf("(set! %s %s)", n.Name, renderExpr(n.X))
	case *Call:
		parts := make([]string, 0, len(n.Args)+1)
		parts = append(parts, renderExpr(n.Target))
		for _, a := range n.Args {
			parts = append(parts, renderExpr(a))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *Fn:
		var sb strings.Builder
		sb.WriteString("(fn")
		if n.Name != "" {
			sb.WriteString(" " + n.Name)
		}
		sb.WriteString(" [" + strings.Join(n.Params, " ") + "]")
		for _, b := range n.Body {
			sb.WriteString(" " + renderExpr(b))
		}
		sb.WriteString(")")
		return sb.String()
	case *If:
		if n.Else == nil {
			return fmt.Sprintf("(if %s %s)", renderExpr(n.Test), renderExpr(n.Then))
		}
		return fmt.Sprintf("(if %s %s %s)", renderExpr(n.Test), renderExpr(n.Then), renderExpr(n.Else))
	case *Do:
		parts := make([]string, 0, len(n.Exprs)+1)
		parts = append(parts, "do")
		for _, x := range n.Exprs {
			parts = append(parts, renderExpr(x))
		}
		return "(" + strings.Join(parts, " ") + ")"
	case *Let:
		var sb strings.Builder
		sb.WriteString("(let [")
		for i := range n.Names {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(n.Names[i] + " " + renderExpr(n.Inits[i]))
		}
		sb.WriteString("]")
		for _, b := range n.Body {
			sb.WriteString(" " + renderExpr(b))
		}
		sb.WriteString(")")
		return sb.String()
	case *VectorLit:
		parts := make([]string, len(n.Items))
		for i, x := range n.Items {
			parts[i] = renderExpr(x)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("#<unknown-expr %T>", e)
	}
}
