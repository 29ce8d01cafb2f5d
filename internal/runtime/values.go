// Package runtime defines the value model and the persistent execution
// environment of the Coil language: immutable scalar and collection values,
// vars, and namespaces with their binding tables. The compiler mutates
// namespaces only by executing loaded units; nothing in this package
// performs synchronization, so callers serialize access per namespace.
package runtime

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a 1-based source location attached to forms read from text
// and to executable-form tree nodes derived from them.
type Position struct {
	Line int
	Col  int
}

// Valid reports whether the position denotes a real source location.
func (p Position) Valid() bool { return p.Line > 0 && p.Col > 0 }

func (p Position) String() string {
	if !p.Valid() {
		return "?:?"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Value is any Coil runtime value. The String method renders the readable
// (REPL) form; use Display for the human print form.
type Value interface {
	String() string
}

// Nil is the nil value.
type Nil struct{}

func (Nil) String() string { return "nil" }

// Bool is a boolean value.
type Bool bool

func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Int is a 64-bit integer value.
type Int int64

func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float is a 64-bit floating point value.
type Float float64

func (f Float) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Str is a string value.
type Str string

func (s Str) String() string { return strconv.Quote(string(s)) }

// Keyword is an interned-by-name keyword value such as :doc.
type Keyword string

func (k Keyword) String() string { return ":" + string(k) }

// Symbol names a local binding or a namespace var. Positions are carried
// for diagnostics and ignored by equality.
type Symbol struct {
	Name string
	Pos  Position
}

func (s Symbol) String() string { return s.Name }

// List is the sequential form read from parentheses. In evaluable source a
// list is an invocation or special form; quoted, it is plain data.
type List struct {
	Items []Value
	Pos   Position
}

func (l List) String() string { return renderSeq("(", l.Items, ")") }

// Count returns the number of items.
func (l List) Count() int { return len(l.Items) }

// Vector is the sequential form read from square brackets.
type Vector struct {
	Items []Value
}

func (v Vector) String() string { return renderSeq("[", v.Items, "]") }

// Count returns the number of items.
func (v Vector) Count() int { return len(v.Items) }

// Fn is an invocable function value, either a core builtin or a closure
// produced by compiling an fn form. Fns compare by identity.
type Fn struct {
	Name   string
	Invoke func(args []Value) (Value, error)
}

func (f *Fn) String() string {
	if f.Name == "" {
		return "#<fn>"
	}
	return "#<fn " + f.Name + ">"
}

// Call invokes the function with the given arguments.
func (f *Fn) Call(args []Value) (Value, error) {
	return f.Invoke(args)
}

func renderSeq(open string, items []Value, close string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, it := range items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(it.String())
	}
	sb.WriteString(close)
	return sb.String()
}

// Display renders a value for human output: strings print raw, everything
// else prints its readable form.
func Display(v Value) string {
	if s, ok := v.(Str); ok {
		return string(s)
	}
	if v == nil {
		return "nil"
	}
	return v.String()
}

// Truthy reports the conditional interpretation of a value: nil and false
// are falsy, everything else is truthy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil, Nil:
		return false
	case Bool:
		return bool(t)
	default:
		return true
	}
}

// Equal reports structural equality. Sequences compare elementwise, scalars
// by value, functions and vars by identity. Source positions never
// participate in equality.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Nil:
		_, bn := b.(Nil)
		return b == nil || bn
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Keyword:
		bv, ok := b.(Keyword)
		return ok && av == bv
	case Symbol:
		bv, ok := b.(Symbol)
		return ok && av.Name == bv.Name
	case List:
		bv, ok := b.(List)
		return ok && equalItems(av.Items, bv.Items)
	case Vector:
		bv, ok := b.(Vector)
		return ok && equalItems(av.Items, bv.Items)
	default:
		return a == b
	}
}

func equalItems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
