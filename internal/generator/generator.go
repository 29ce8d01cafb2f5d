// Package generator lowers the analyzer's intermediate tree into
// executable-form tree fragments for the host compiler: an ordered
// dependency sequence plus a main expression. It also produces the
// namespace preamble the bootstrap sequencer loads before any user code.
package generator

import (
	"fmt"

	"go.uber.org/zap"

	"coil/internal/analyzer"
	"coil/internal/exec"
	"coil/internal/runtime"
)

// Opts is the option surface the generator reads; the compiler's options
// set satisfies it and is shared with the analyzer session.
type Opts interface {
	UseVarIndirection() bool
	WarnOnVarIndirection() bool
}

// Error is a generation failure: an intermediate tree the generator cannot
// lower. On well-formed analyzer output this indicates an internal defect.
type Error struct {
	File string
	Pos  runtime.Position
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.File, e.Pos, e.Msg)
}

// Fragments is the generator's output for one form: dependency fragments
// to execute first, then an optional main fragment. Either part may be a
// statement or an expression; the assembler statementizes as needed.
type Fragments struct {
	Deps []exec.Node
	Main exec.Node
}

// Session generates executable-form trees for one compilation context.
// Sessions are single-writer, like analyzer sessions.
type Session struct {
	file string
	opts Opts
	log  *zap.Logger
}

// NewSession creates a generator session carrying the source identifier
// used for position metadata. A nil logger disables warnings.
func NewSession(file string, opts Opts, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{file: file, opts: opts, log: log}
}

// File returns the source identifier this session stamps into generated
// trees.
func (s *Session) File() string { return s.file }

// Preamble returns the fixed bootstrap fragments for a namespace: the
// import statements that install the core bindings. It produces
// dependencies only, no main fragment.
func (s *Session) Preamble(ns *runtime.Namespace) Fragments {
	s.log.Debug("generating namespace preamble", zap.String("namespace", ns.Name))
	return Fragments{Deps: []exec.Node{
		&exec.ImportStmt{
			Module:  "coil.core",
			Install: runtime.InstallCore,
			P:       runtime.Position{Line: 1, Col: 1},
		},
	}}
}

// Generate lowers one analyzed form. A top-level def produces the def
// statement as a dependency and the var itself as the main expression;
// everything else lowers to a main expression only, since fn bodies hold
// full expressions and nothing needs hoisting.
func (s *Session) Generate(node analyzer.Node) (Fragments, error) {
	if def, ok := node.(*analyzer.DefNode); ok {
		stmt := &exec.DefStmt{Name: def.Name, Dynamic: def.Dynamic, P: def.P}
		if def.HasInit {
			init, err := s.expr(def.Init)
			if err != nil {
				return Fragments{}, err
			}
			stmt.X = init
		}
		return Fragments{
			Deps: []exec.Node{stmt},
			Main: &exec.Const{Val: def.Var, P: def.P},
		}, nil
	}
	main, err := s.expr(node)
	if err != nil {
		return Fragments{}, err
	}
	return Fragments{Main: main}, nil
}

func (s *Session) exprs(nodes []analyzer.Node) ([]exec.Expr, error) {
	out := make([]exec.Expr, len(nodes))
	for i, n := range nodes {
		e, err := s.expr(n)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (s *Session) expr(node analyzer.Node) (exec.Expr, error) {
	switch n := node.(type) {
	case *analyzer.ConstNode:
		return &exec.Const{Val: n.Val, P: n.P}, nil

	case *analyzer.VectorNode:
		items, err := s.exprs(n.Items)
		if err != nil {
			return nil, err
		}
		return &exec.VectorLit{Items: items, P: n.P}, nil

	case *analyzer.LocalNode:
		return &exec.Local{Ident: n.Name, P: n.P}, nil

	case *analyzer.VarNode:
		return s.varRef(n.Var, n.P), nil

	case *analyzer.SetNode:
		value, err := s.expr(n.Value)
		if err != nil {
			return nil, err
		}
		return &exec.VarSet{Name: n.Var.Name, X: value, P: n.P}, nil

	case *analyzer.FnNode:
		body, err := s.exprs(n.Body)
		if err != nil {
			return nil, err
		}
		return &exec.Fn{Name: n.Name, Params: n.Params, Body: body, P: n.P}, nil

	case *analyzer.IfNode:
		test, err := s.expr(n.Test)
		if err != nil {
			return nil, err
		}
		then, err := s.expr(n.Then)
		if err != nil {
			return nil, err
		}
		out := &exec.If{Test: test, Then: then, P: n.P}
		if n.Else != nil {
			if out.Else, err = s.expr(n.Else); err != nil {
				return nil, err
			}
		}
		return out, nil

	case *analyzer.DoNode:
		body, err := s.exprs(n.Body)
		if err != nil {
			return nil, err
		}
		return &exec.Do{Exprs: body, P: n.P}, nil

	case *analyzer.LetNode:
		inits, err := s.exprs(n.Inits)
		if err != nil {
			return nil, err
		}
		body, err := s.exprs(n.Body)
		if err != nil {
			return nil, err
		}
		return &exec.Let{Names: n.Names, Inits: inits, Body: body, P: n.P}, nil

	case *analyzer.InvokeNode:
		target, err := s.expr(n.Target)
		if err != nil {
			return nil, err
		}
		args, err := s.exprs(n.Args)
		if err != nil {
			return nil, err
		}
		return &exec.Call{Target: target, Args: args, P: n.P}, nil

	case *analyzer.DefNode:
		return nil, s.errf(n.P, "def is not an expression; it must be a top-level form")

	default:
		return nil, s.errf(node.Pos(), "cannot lower node %T", node)
	}
}

// varRef emits the reference form for a var: a direct-linked reference
// when the var is verified bound here, or a by-name lookup when
// indirection is configured or required. Dynamic vars always resolve late;
// unbound vars fall back to lookup so a later definition is picked up,
// with a warning when configured. Either form resolves in the executing
// namespace at execution time; direct linking records the generation-time
// verification, it never captures the var cell, so collected units replay
// onto namespaces other than the one compiled against.
func (s *Session) varRef(v *runtime.Var, pos runtime.Position) exec.Expr {
	if s.opts.UseVarIndirection() {
		return &exec.Name{Ident: v.Name, P: pos}
	}
	if v.Dynamic {
		return &exec.Name{Ident: v.Name, P: pos}
	}
	if !v.Bound() {
		if s.opts.WarnOnVarIndirection() {
			s.log.Warn("var indirection required for unbound var",
				zap.String("var", v.String()),
				zap.String("file", s.file),
				zap.String("pos", pos.String()))
		}
		return &exec.Name{Ident: v.Name, P: pos}
	}
	return &exec.VarDeref{Name: v.Name, P: pos}
}

func (s *Session) errf(pos runtime.Position, format string, args ...any) error {
	return &Error{File: s.file, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
