package runtime

import (
	"fmt"
	"os"
	"strings"
)

// InstallCore interns the coil.core builtin bindings into ns. The bootstrap
// preamble executes this through an import statement before any user unit
// loads, so every compiled form can resolve the core vocabulary.
func InstallCore(ns *Namespace) error {
	for name, fn := range coreBindings {
		ns.Intern(name).BindRoot(fn)
	}
	return nil
}

// =============================================================================
// NUMERIC TOWER
// =============================================================================

// number carries an Int or Float operand through arithmetic with promotion
// to float when either side is a float.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func toNumber(name string, v Value) (number, error) {
	switch n := v.(type) {
	case Int:
		return number{i: int64(n)}, nil
	case Float:
		return number{f: float64(n), isFloat: true}, nil
	default:
		return number{}, fmt.Errorf("%s: not a number: %s", name, Display(v))
	}
}

func (n number) value() Value {
	if n.isFloat {
		return Float(n.f)
	}
	return Int(n.i)
}

func (n number) asFloat() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func combine(a, b number, intOp func(int64, int64) (int64, error), floatOp func(float64, float64) float64) (number, error) {
	if a.isFloat || b.isFloat {
		return number{f: floatOp(a.asFloat(), b.asFloat()), isFloat: true}, nil
	}
	i, err := intOp(a.i, b.i)
	if err != nil {
		return number{}, err
	}
	return number{i: i}, nil
}

func arithFn(name string, unit number, unaryUsesUnit bool, intOp func(int64, int64) (int64, error), floatOp func(float64, float64) float64) *Fn {
	return &Fn{Name: name, Invoke: func(args []Value) (Value, error) {
		if len(args) == 0 {
			if !unaryUsesUnit {
				return nil, arityErr(name, 0)
			}
			return unit.value(), nil
		}
		acc, err := toNumber(name, args[0])
		if err != nil {
			return nil, err
		}
		if len(args) == 1 && !unaryUsesUnit {
			// Unary minus and division fold against the unit value.
			acc, err = combine(unit, acc, intOp, floatOp)
			if err != nil {
				return nil, err
			}
			return acc.value(), nil
		}
		for _, a := range args[1:] {
			n, err := toNumber(name, a)
			if err != nil {
				return nil, err
			}
			acc, err = combine(acc, n, intOp, floatOp)
			if err != nil {
				return nil, err
			}
		}
		return acc.value(), nil
	}}
}

func compareFn(name string, accept func(cmp int) bool) *Fn {
	return &Fn{Name: name, Invoke: func(args []Value) (Value, error) {
		if len(args) == 0 {
			return nil, arityErr(name, 0)
		}
		prev, err := toNumber(name, args[0])
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			cur, err := toNumber(name, a)
			if err != nil {
				return nil, err
			}
			if !accept(compareNumbers(prev, cur)) {
				return Bool(false), nil
			}
			prev = cur
		}
		return Bool(true), nil
	}}
}

func compareNumbers(a, b number) int {
	if !a.isFloat && !b.isFloat {
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	}
	af, bf := a.asFloat(), b.asFloat()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func arityErr(name string, n int) error {
	return fmt.Errorf("wrong number of args (%d) passed to: %s", n, name)
}

// =============================================================================
// CORE BINDINGS
// =============================================================================

var coreBindings = map[string]*Fn{
	"+": arithFn("+", number{i: 0}, true,
		func(a, b int64) (int64, error) { return a + b, nil },
		func(a, b float64) float64 { return a + b }),
	"*": arithFn("*", number{i: 1}, true,
		func(a, b int64) (int64, error) { return a * b, nil },
		func(a, b float64) float64 { return a * b }),
	"-": arithFn("-", number{i: 0}, false,
		func(a, b int64) (int64, error) { return a - b, nil },
		func(a, b float64) float64 { return a - b }),
	"/": arithFn("/", number{i: 1}, false,
		func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, fmt.Errorf("divide by zero")
			}
			return a / b, nil
		},
		func(a, b float64) float64 { return a / b }),

	"mod": {Name: "mod", Invoke: func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, arityErr("mod", len(args))
		}
		a, aok := args[0].(Int)
		b, bok := args[1].(Int)
		if !aok || !bok {
			return nil, fmt.Errorf("mod: expects two integers")
		}
		if b == 0 {
			return nil, fmt.Errorf("divide by zero")
		}
		return a % b, nil
	}},

	"=":  equalityFn(),
	"<":  compareFn("<", func(c int) bool { return c < 0 }),
	"<=": compareFn("<=", func(c int) bool { return c <= 0 }),
	">":  compareFn(">", func(c int) bool { return c > 0 }),
	">=": compareFn(">=", func(c int) bool { return c >= 0 }),

	"inc": unaryNumFn("inc", 1),
	"dec": unaryNumFn("dec", -1),

	"not": {Name: "not", Invoke: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, arityErr("not", len(args))
		}
		return Bool(!Truthy(args[0])), nil
	}},
	"nil?": {Name: "nil?", Invoke: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, arityErr("nil?", len(args))
		}
		if args[0] == nil {
			return Bool(true), nil
		}
		_, isNil := args[0].(Nil)
		return Bool(isNil), nil
	}},

	"list": {Name: "list", Invoke: func(args []Value) (Value, error) {
		return List{Items: append([]Value(nil), args...)}, nil
	}},
	"vector": {Name: "vector", Invoke: func(args []Value) (Value, error) {
		return Vector{Items: append([]Value(nil), args...)}, nil
	}},

	"count": {Name: "count", Invoke: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, arityErr("count", len(args))
		}
		switch s := args[0].(type) {
		case Nil:
			return Int(0), nil
		case List:
			return Int(s.Count()), nil
		case Vector:
			return Int(s.Count()), nil
		case Str:
			return Int(len(s)), nil
		default:
			return nil, fmt.Errorf("count: not countable: %s", Display(args[0]))
		}
	}},
	"first": {Name: "first", Invoke: func(args []Value) (Value, error) {
		items, err := seqItems("first", args)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return Nil{}, nil
		}
		return items[0], nil
	}},
	"rest": {Name: "rest", Invoke: func(args []Value) (Value, error) {
		items, err := seqItems("rest", args)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return List{}, nil
		}
		return List{Items: append([]Value(nil), items[1:]...)}, nil
	}},
	"cons": {Name: "cons", Invoke: func(args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, arityErr("cons", len(args))
		}
		items, err := seqItems("cons", args[1:])
		if err != nil {
			return nil, err
		}
		out := make([]Value, 0, len(items)+1)
		out = append(out, args[0])
		out = append(out, items...)
		return List{Items: out}, nil
	}},
	"conj": {Name: "conj", Invoke: func(args []Value) (Value, error) {
		if len(args) < 2 {
			return nil, arityErr("conj", len(args))
		}
		switch coll := args[0].(type) {
		case List:
			// Lists grow at the front, newest first.
			out := append([]Value(nil), coll.Items...)
			for _, v := range args[1:] {
				out = append([]Value{v}, out...)
			}
			return List{Items: out}, nil
		case Vector:
			out := append([]Value(nil), coll.Items...)
			out = append(out, args[1:]...)
			return Vector{Items: out}, nil
		case Nil:
			return List{Items: append([]Value(nil), args[1:]...)}, nil
		default:
			return nil, fmt.Errorf("conj: not a collection: %s", Display(args[0]))
		}
	}},

	"str": {Name: "str", Invoke: func(args []Value) (Value, error) {
		var sb strings.Builder
		for _, a := range args {
			if _, ok := a.(Nil); ok {
				continue
			}
			sb.WriteString(Display(a))
		}
		return Str(sb.String()), nil
	}},
	"print":   printFn("print", false),
	"println": printFn("println", true),
}

func equalityFn() *Fn {
	return &Fn{Name: "=", Invoke: func(args []Value) (Value, error) {
		if len(args) == 0 {
			return nil, arityErr("=", 0)
		}
		for _, a := range args[1:] {
			if !Equal(args[0], a) {
				return Bool(false), nil
			}
		}
		return Bool(true), nil
	}}
}

func unaryNumFn(name string, delta int64) *Fn {
	return &Fn{Name: name, Invoke: func(args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, arityErr(name, len(args))
		}
		n, err := toNumber(name, args[0])
		if err != nil {
			return nil, err
		}
		if n.isFloat {
			return Float(n.f + float64(delta)), nil
		}
		return Int(n.i + delta), nil
	}}
}

func seqItems(name string, args []Value) ([]Value, error) {
	if len(args) != 1 {
		return nil, arityErr(name, len(args))
	}
	switch s := args[0].(type) {
	case Nil:
		return nil, nil
	case List:
		return s.Items, nil
	case Vector:
		return s.Items, nil
	default:
		return nil, fmt.Errorf("%s: not a sequence: %s", name, Display(args[0]))
	}
}

func printFn(name string, newline bool) *Fn {
	return &Fn{Name: name, Invoke: func(args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = Display(a)
		}
		if _, err := fmt.Fprint(os.Stdout, strings.Join(parts, " ")); err != nil {
			return nil, err
		}
		if newline {
			if _, err := fmt.Fprintln(os.Stdout); err != nil {
				return nil, err
			}
		}
		return Nil{}, nil
	}}
}
