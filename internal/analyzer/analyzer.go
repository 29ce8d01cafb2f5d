package analyzer

import (
	"fmt"

	"go.uber.org/zap"

	"coil/internal/runtime"
)

// Opts is the option surface the analyzer reads. The compiler's options
// set satisfies it; both sessions of a compilation context share that one
// value.
type Opts interface {
	GenerateAutoInlines() bool
	InlineFunctions() bool
	WarnOnShadowedName() bool
	WarnOnShadowedVar() bool
	WarnOnUnusedNames() bool
	WarnOnNonDynamicSet() bool
}

// Error is an analysis failure at a source position.
type Error struct {
	File string
	Pos  runtime.Position
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.File, e.Pos, e.Msg)
}

// Session analyzes forms for one compilation context. Sessions accumulate
// the auto-inline registry across calls and are single-writer: one session
// must not be driven from multiple goroutines.
type Session struct {
	file string
	opts Opts
	log  *zap.Logger

	// inlines maps var names to literal init values recorded by
	// generate-auto-inlines and substituted by inline-functions.
	inlines map[string]runtime.Value
}

// NewSession creates an analyzer session for the given source identifier.
// A nil logger disables warnings.
func NewSession(file string, opts Opts, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{file: file, opts: opts, log: log, inlines: make(map[string]runtime.Value)}
}

// Analyze turns one form into an intermediate tree, resolving symbols
// against ns. Analysis mutates ns only by interning vars for def forms,
// which must happen before the init is analyzed so self-reference and
// forward declaration resolve.
func (s *Session) Analyze(ns *runtime.Namespace, form runtime.Value) (Node, error) {
	return s.analyze(ns, nil, form)
}

// scope is one level of local bindings during analysis. Entries track use
// for the unused-names warning; only let-introduced names are tracked.
type scope struct {
	parent *scope
	names  map[string]*localInfo
}

type localInfo struct {
	pos     runtime.Position
	tracked bool
	used    bool
}

func (sc *scope) lookup(name string) (*localInfo, bool) {
	for cur := sc; cur != nil; cur = cur.parent {
		if info, ok := cur.names[name]; ok {
			return info, true
		}
	}
	return nil, false
}

func (s *Session) analyze(ns *runtime.Namespace, sc *scope, form runtime.Value) (Node, error) {
	switch f := form.(type) {
	case runtime.Nil, runtime.Bool, runtime.Int, runtime.Float, runtime.Str, runtime.Keyword:
		return &ConstNode{Val: f}, nil
	case runtime.Vector:
		items := make([]Node, len(f.Items))
		for i, it := range f.Items {
			n, err := s.analyze(ns, sc, it)
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		return &VectorNode{Items: items}, nil
	case runtime.Symbol:
		return s.analyzeSymbol(ns, sc, f)
	case runtime.List:
		return s.analyzeList(ns, sc, f)
	default:
		return nil, s.errf(runtime.Position{}, "cannot analyze form: %s", runtime.Display(form))
	}
}

func (s *Session) analyzeSymbol(ns *runtime.Namespace, sc *scope, sym runtime.Symbol) (Node, error) {
	if info, ok := sc.lookup(sym.Name); ok {
		info.used = true
		return &LocalNode{Name: sym.Name, P: sym.Pos}, nil
	}
	if s.opts.InlineFunctions() {
		if lit, ok := s.inlines[sym.Name]; ok {
			return &ConstNode{Val: lit, P: sym.Pos}, nil
		}
	}
	if v, ok := ns.Resolve(sym.Name); ok {
		return &VarNode{Var: v, P: sym.Pos}, nil
	}
	return nil, s.errf(sym.Pos, "unable to resolve symbol: %s", sym.Name)
}

func (s *Session) analyzeList(ns *runtime.Namespace, sc *scope, list runtime.List) (Node, error) {
	if list.Count() == 0 {
		return &ConstNode{Val: list, P: list.Pos}, nil
	}
	if head, ok := list.Items[0].(runtime.Symbol); ok {
		switch head.Name {
		case "quote":
			if list.Count() != 2 {
				return nil, s.errf(list.Pos, "quote expects exactly one form")
			}
			return &ConstNode{Val: list.Items[1], P: list.Pos}, nil
		case "def":
			return s.analyzeDef(ns, sc, list, false)
		case "defdyn":
			return s.analyzeDef(ns, sc, list, true)
		case "fn":
			return s.analyzeFn(ns, sc, list)
		case "if":
			return s.analyzeIf(ns, sc, list)
		case "do":
			body, err := s.analyzeAll(ns, sc, list.Items[1:])
			if err != nil {
				return nil, err
			}
			return &DoNode{Body: body, P: list.Pos}, nil
		case "let":
			return s.analyzeLet(ns, sc, list)
		case "set!":
			return s.analyzeSet(ns, sc, list)
		}
	}
	target, err := s.analyze(ns, sc, list.Items[0])
	if err != nil {
		return nil, err
	}
	args, err := s.analyzeAll(ns, sc, list.Items[1:])
	if err != nil {
		return nil, err
	}
	return &InvokeNode{Target: target, Args: args, P: list.Pos}, nil
}

func (s *Session) analyzeAll(ns *runtime.Namespace, sc *scope, forms []runtime.Value) ([]Node, error) {
	nodes := make([]Node, len(forms))
	for i, f := range forms {
		n, err := s.analyze(ns, sc, f)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func (s *Session) analyzeDef(ns *runtime.Namespace, sc *scope, list runtime.List, dynamic bool) (Node, error) {
	head := list.Items[0].(runtime.Symbol)
	if sc != nil {
		return nil, s.errf(list.Pos, "%s is only allowed at the top level", head.Name)
	}
	if list.Count() < 2 || list.Count() > 3 {
		return nil, s.errf(list.Pos, "%s expects a name and an optional init", head.Name)
	}
	sym, ok := list.Items[1].(runtime.Symbol)
	if !ok {
		return nil, s.errf(list.Pos, "%s name must be a symbol, got %s", head.Name, runtime.Display(list.Items[1]))
	}

	// Intern before analyzing the init so the definition can refer to
	// itself and later forms can resolve forward declarations.
	var v *runtime.Var
	if dynamic {
		v = ns.InternDynamic(sym.Name)
	} else {
		v = ns.Intern(sym.Name)
	}

	node := &DefNode{Name: sym.Name, Dynamic: dynamic, Var: v, P: list.Pos}
	delete(s.inlines, sym.Name)
	if list.Count() == 3 {
		init, err := s.analyze(ns, sc, list.Items[2])
		if err != nil {
			return nil, err
		}
		node.Init = init
		node.HasInit = true
		if s.opts.GenerateAutoInlines() && !dynamic {
			if lit, ok := literalValue(list.Items[2]); ok {
				s.inlines[sym.Name] = lit
			}
		}
	}
	return node, nil
}

func (s *Session) analyzeFn(ns *runtime.Namespace, sc *scope, list runtime.List) (Node, error) {
	items := list.Items[1:]
	var name string
	if len(items) > 0 {
		// Optional name, carried only for diagnostics.
		if sym, ok := items[0].(runtime.Symbol); ok {
			name = sym.Name
			items = items[1:]
		}
	}
	if len(items) == 0 {
		return nil, s.errf(list.Pos, "fn expects a parameter vector")
	}
	paramVec, ok := items[0].(runtime.Vector)
	if !ok {
		return nil, s.errf(list.Pos, "fn parameters must be a vector, got %s", runtime.Display(items[0]))
	}

	inner := &scope{parent: sc, names: make(map[string]*localInfo, paramVec.Count())}
	params := make([]string, paramVec.Count())
	for i, p := range paramVec.Items {
		psym, ok := p.(runtime.Symbol)
		if !ok {
			return nil, s.errf(list.Pos, "fn parameter must be a symbol, got %s", runtime.Display(p))
		}
		if _, dup := inner.names[psym.Name]; dup {
			return nil, s.errf(psym.Pos, "duplicate fn parameter: %s", psym.Name)
		}
		s.warnShadow(ns, sc, psym)
		inner.names[psym.Name] = &localInfo{pos: psym.Pos}
		params[i] = psym.Name
	}

	body, err := s.analyzeAll(ns, inner, items[1:])
	if err != nil {
		return nil, err
	}
	return &FnNode{Name: name, Params: params, Body: body, P: list.Pos}, nil
}

func (s *Session) analyzeIf(ns *runtime.Namespace, sc *scope, list runtime.List) (Node, error) {
	if list.Count() < 3 || list.Count() > 4 {
		return nil, s.errf(list.Pos, "if expects a test, a then branch, and an optional else branch")
	}
	test, err := s.analyze(ns, sc, list.Items[1])
	if err != nil {
		return nil, err
	}
	then, err := s.analyze(ns, sc, list.Items[2])
	if err != nil {
		return nil, err
	}
	node := &IfNode{Test: test, Then: then, P: list.Pos}
	if list.Count() == 4 {
		if node.Else, err = s.analyze(ns, sc, list.Items[3]); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (s *Session) analyzeLet(ns *runtime.Namespace, sc *scope, list runtime.List) (Node, error) {
	if list.Count() < 2 {
		return nil, s.errf(list.Pos, "let expects a binding vector")
	}
	bindings, ok := list.Items[1].(runtime.Vector)
	if !ok {
		return nil, s.errf(list.Pos, "let bindings must be a vector, got %s", runtime.Display(list.Items[1]))
	}
	if bindings.Count()%2 != 0 {
		return nil, s.errf(list.Pos, "let bindings must pair names with values")
	}

	inner := &scope{parent: sc, names: make(map[string]*localInfo, bindings.Count()/2)}
	var names []string
	var inits []Node
	for i := 0; i < bindings.Count(); i += 2 {
		sym, ok := bindings.Items[i].(runtime.Symbol)
		if !ok {
			return nil, s.errf(list.Pos, "let binding name must be a symbol, got %s", runtime.Display(bindings.Items[i]))
		}
		// Each init sees only the bindings before it.
		init, err := s.analyze(ns, inner, bindings.Items[i+1])
		if err != nil {
			return nil, err
		}
		s.warnShadow(ns, inner, sym)
		inner.names[sym.Name] = &localInfo{pos: sym.Pos, tracked: s.opts.WarnOnUnusedNames()}
		names = append(names, sym.Name)
		inits = append(inits, init)
	}

	body, err := s.analyzeAll(ns, inner, list.Items[2:])
	if err != nil {
		return nil, err
	}
	for name, info := range inner.names {
		if info.tracked && !info.used {
			s.log.Warn("unused local binding",
				zap.String("name", name),
				zap.String("file", s.file),
				zap.String("pos", info.pos.String()))
		}
	}
	return &LetNode{Names: names, Inits: inits, Body: body, P: list.Pos}, nil
}

func (s *Session) analyzeSet(ns *runtime.Namespace, sc *scope, list runtime.List) (Node, error) {
	if list.Count() != 3 {
		return nil, s.errf(list.Pos, "set! expects a symbol and a value")
	}
	sym, ok := list.Items[1].(runtime.Symbol)
	if !ok {
		return nil, s.errf(list.Pos, "set! target must be a symbol, got %s", runtime.Display(list.Items[1]))
	}
	if _, isLocal := sc.lookup(sym.Name); isLocal {
		return nil, s.errf(sym.Pos, "cannot set! a local binding: %s", sym.Name)
	}
	v, ok := ns.Resolve(sym.Name)
	if !ok {
		return nil, s.errf(sym.Pos, "unable to resolve symbol: %s", sym.Name)
	}
	if !v.Dynamic && s.opts.WarnOnNonDynamicSet() {
		s.log.Warn("set! of non-dynamic var",
			zap.String("var", v.String()),
			zap.String("file", s.file),
			zap.String("pos", sym.Pos.String()))
	}
	value, err := s.analyze(ns, sc, list.Items[2])
	if err != nil {
		return nil, err
	}
	// A rebound var may no longer hold its recorded literal.
	delete(s.inlines, sym.Name)
	return &SetNode{Var: v, Value: value, P: list.Pos}, nil
}

func (s *Session) warnShadow(ns *runtime.Namespace, outer *scope, sym runtime.Symbol) {
	if s.opts.WarnOnShadowedName() {
		if _, ok := outer.lookup(sym.Name); ok {
			s.log.Warn("name shadows an outer local",
				zap.String("name", sym.Name),
				zap.String("file", s.file),
				zap.String("pos", sym.Pos.String()))
		}
	}
	if s.opts.WarnOnShadowedVar() {
		if _, ok := ns.Resolve(sym.Name); ok {
			s.log.Warn("name shadows a var",
				zap.String("name", sym.Name),
				zap.String("file", s.file),
				zap.String("pos", sym.Pos.String()))
		}
	}
}

func literalValue(form runtime.Value) (runtime.Value, bool) {
	switch form.(type) {
	case runtime.Nil, runtime.Bool, runtime.Int, runtime.Float, runtime.Str, runtime.Keyword:
		return form, true
	}
	return nil, false
}

func (s *Session) errf(pos runtime.Position, format string, args ...any) error {
	return &Error{File: s.file, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
