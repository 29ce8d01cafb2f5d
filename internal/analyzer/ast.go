// Package analyzer implements the semantic analysis session of the Coil
// compiler: it turns reader forms into an annotated intermediate tree,
// resolving every symbol against the local scope chain and the target
// namespace. Resolution is strict; a symbol that names nothing is an
// analysis failure. Special-form shape checking and the option-gated
// warning set (shadowing, unused locals, non-dynamic set!) live here.
package analyzer

import (
	"coil/internal/runtime"
)

// Node is an intermediate-tree node produced by analysis and consumed by
// the generator.
type Node interface {
	Pos() runtime.Position
}

// ConstNode is a self-evaluating constant: literals, quoted forms, and
// inlined references.
type ConstNode struct {
	Val runtime.Value
	P   runtime.Position
}

// VectorNode is a vector literal with analyzed items.
type VectorNode struct {
	Items []Node
	P     runtime.Position
}

// LocalNode references a binding introduced by an enclosing fn or let.
type LocalNode struct {
	Name string
	P    runtime.Position
}

// VarNode references an interned namespace var.
type VarNode struct {
	Var *runtime.Var
	P   runtime.Position
}

// DefNode interns a var at the top level, optionally binding an init. Var
// is the cell interned during analysis; the generated main fragment
// evaluates to it.
type DefNode struct {
	Name    string
	Dynamic bool
	Var     *runtime.Var
	Init    Node
	HasInit bool
	P       runtime.Position
}

// FnNode is a function literal. Name is the optional diagnostic name from
// the source form; def supplies one otherwise.
type FnNode struct {
	Name   string
	Params []string
	Body   []Node
	P      runtime.Position
}

// IfNode is a two- or three-branch conditional; Else is nil when absent.
type IfNode struct {
	Test Node
	Then Node
	Else Node
	P    runtime.Position
}

// DoNode evaluates its body in order for the last value.
type DoNode struct {
	Body []Node
	P    runtime.Position
}

// LetNode introduces sequential local bindings around a body.
type LetNode struct {
	Names []string
	Inits []Node
	Body  []Node
	P     runtime.Position
}

// SetNode rebinds the root of a resolved var.
type SetNode struct {
	Var   *runtime.Var
	Value Node
	P     runtime.Position
}

// InvokeNode calls an analyzed target with analyzed arguments.
type InvokeNode struct {
	Target Node
	Args   []Node
	P      runtime.Position
}

func (n *ConstNode) Pos() runtime.Position  { return n.P }
func (n *VectorNode) Pos() runtime.Position { return n.P }
func (n *LocalNode) Pos() runtime.Position  { return n.P }
func (n *VarNode) Pos() runtime.Position    { return n.P }
func (n *DefNode) Pos() runtime.Position    { return n.P }
func (n *FnNode) Pos() runtime.Position     { return n.P }
func (n *IfNode) Pos() runtime.Position     { return n.P }
func (n *DoNode) Pos() runtime.Position     { return n.P }
func (n *LetNode) Pos() runtime.Position    { return n.P }
func (n *SetNode) Pos() runtime.Position    { return n.P }
func (n *InvokeNode) Pos() runtime.Position { return n.P }
