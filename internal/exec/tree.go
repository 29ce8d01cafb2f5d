// Package exec is the host execution substrate for compiled Coil code. It
// defines the executable-form tree the generator emits, a host compiler
// that turns one tree into a loadable unit of Go closures, and execution of
// loadable units against a namespace's binding table.
package exec

import (
	"coil/internal/runtime"
)

// Node is any executable-form tree node. Every node carries a source
// position; the assembler repairs missing positions before the host
// compiler validates them.
type Node interface {
	Pos() runtime.Position
}

// Stmt is a module-level statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Module is the top-level executable-form tree: an ordered statement
// sequence tagged with the source identifier it was generated from.
type Module struct {
	File string
	Body []Stmt
}

// =============================================================================
// STATEMENTS
// =============================================================================

// ExprStmt evaluates an expression for effect, discarding its value.
type ExprStmt struct {
	X Expr
	P runtime.Position
}

// DefStmt interns a var in the executing namespace and, when X is non-nil,
// binds its root to the expression's value. A nil X declares the var
// without binding it.
type DefStmt struct {
	Name    string
	Dynamic bool
	X       Expr
	P       runtime.Position
}

// ImportStmt installs a host module's bindings into the executing
// namespace. The bootstrap preamble is a sequence of these.
type ImportStmt struct {
	Module  string
	Install func(*runtime.Namespace) error
	P       runtime.Position
}

func (s *ExprStmt) Pos() runtime.Position   { return s.P }
func (s *DefStmt) Pos() runtime.Position    { return s.P }
func (s *ImportStmt) Pos() runtime.Position { return s.P }

func (*ExprStmt) stmtNode()   {}
func (*DefStmt) stmtNode()    {}
func (*ImportStmt) stmtNode() {}

// =============================================================================
// EXPRESSIONS
// =============================================================================

// Const yields a fixed value.
type Const struct {
	Val runtime.Value
	P   runtime.Position
}

// Name resolves a var by name in the executing namespace at execution time
// and dereferences it. The generator emits Name when var indirection is on
// or when a var cannot be direct-linked.
type Name struct {
	Ident string
	P     runtime.Position
}

// Local reads a local binding from the enclosing frame chain.
type Local struct {
	Ident string
	P     runtime.Position
}

// VarDeref reads the root binding of a direct-linked var: one the
// generator verified interned, bound, and non-dynamic at generation time.
// The name resolves in the executing namespace, like Name, so loadable
// units stay portable across namespaces.
type VarDeref struct {
	Name string
	P    runtime.Position
}

// VarSet rebinds the root of the named var and yields the new value.
type VarSet struct {
	Name string
	X    Expr
	P    runtime.Position
}

// Call invokes the target with evaluated arguments.
type Call struct {
	Target Expr
	Args   []Expr
	P      runtime.Position
}

// Fn yields a closure over the defining frame. The body is compiled once
// at host-compile time; creating the closure at execution time only
// captures the frame and namespace.
type Fn struct {
	Name   string
	Params []string
	Body   []Expr
	P      runtime.Position
}

// If evaluates Then or Else depending on the test's truthiness. A nil Else
// yields nil.
type If struct {
	Test Expr
	Then Expr
	Else Expr
	P    runtime.Position
}

// Do evaluates expressions in order, yielding the last one's value, or nil
// when empty.
type Do struct {
	Exprs []Expr
	P     runtime.Position
}

// Let introduces sequentially bound locals, each init seeing the bindings
// before it, then evaluates the body like Do.
type Let struct {
	Names []string
	Inits []Expr
	Body  []Expr
	P     runtime.Position
}

// VectorLit builds a vector from evaluated items.
type VectorLit struct {
	Items []Expr
	P     runtime.Position
}

func (e *Const) Pos() runtime.Position     { return e.P }
func (e *Name) Pos() runtime.Position      { return e.P }
func (e *Local) Pos() runtime.Position     { return e.P }
func (e *VarDeref) Pos() runtime.Position  { return e.P }
func (e *VarSet) Pos() runtime.Position    { return e.P }
func (e *Call) Pos() runtime.Position      { return e.P }
func (e *Fn) Pos() runtime.Position        { return e.P }
func (e *If) Pos() runtime.Position        { return e.P }
func (e *Do) Pos() runtime.Position        { return e.P }
func (e *Let) Pos() runtime.Position       { return e.P }
func (e *VectorLit) Pos() runtime.Position { return e.P }

func (*Const) exprNode()     {}
func (*Name) exprNode()      {}
func (*Local) exprNode()     {}
func (*VarDeref) exprNode()  {}
func (*VarSet) exprNode()    {}
func (*Call) exprNode()      {}
func (*Fn) exprNode()        {}
func (*If) exprNode()        {}
func (*Do) exprNode()        {}
func (*Let) exprNode()       {}
func (*VectorLit) exprNode() {}
