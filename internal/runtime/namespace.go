package runtime

import (
	"fmt"
	"sort"
)

// Var is a named, mutable root binding interned in a namespace. A var may
// be interned before it has a root (forward declaration); dereferencing an
// unbound var is an error. Dynamic vars are always resolved by name at
// execution time rather than direct-linked by the generator.
type Var struct {
	Ns      string
	Name    string
	Dynamic bool

	root  Value
	bound bool
}

func (v *Var) String() string { return "#'" + v.Ns + "/" + v.Name }

// BindRoot sets the var's root binding.
func (v *Var) BindRoot(val Value) {
	v.root = val
	v.bound = true
}

// Bound reports whether the var has a root binding.
func (v *Var) Bound() bool { return v.bound }

// Deref returns the var's root binding.
func (v *Var) Deref() (Value, error) {
	if !v.bound {
		return nil, fmt.Errorf("unbound var: %s/%s", v.Ns, v.Name)
	}
	return v.root, nil
}

// Namespace is a long-lived execution environment: a mutable table of
// interned vars plus the one-shot Bootstrapped flag the compiler's
// bootstrap sequencer reads and sets. Namespaces are not safe for
// concurrent use; the owner serializes compilation and execution against
// each namespace.
type Namespace struct {
	Name string

	// Bootstrapped transitions false to true exactly once, after the
	// namespace preamble has loaded successfully.
	Bootstrapped bool

	vars map[string]*Var
}

// NewNamespace creates an empty, unbootstrapped namespace.
func NewNamespace(name string) *Namespace {
	return &Namespace{Name: name, vars: make(map[string]*Var)}
}

// Intern returns the var named name, creating an unbound one if absent.
func (ns *Namespace) Intern(name string) *Var {
	if v, ok := ns.vars[name]; ok {
		return v
	}
	v := &Var{Ns: ns.Name, Name: name}
	ns.vars[name] = v
	return v
}

// InternDynamic interns name as a dynamic var.
func (ns *Namespace) InternDynamic(name string) *Var {
	v := ns.Intern(name)
	v.Dynamic = true
	return v
}

// Resolve looks up an interned var by name.
func (ns *Namespace) Resolve(name string) (*Var, bool) {
	v, ok := ns.vars[name]
	return v, ok
}

// Delete removes the binding for name if present. Deleting an absent name
// is a no-op.
func (ns *Namespace) Delete(name string) {
	delete(ns.vars, name)
}

// Names returns the interned names in sorted order.
func (ns *Namespace) Names() []string {
	names := make([]string, 0, len(ns.vars))
	for n := range ns.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Snapshot renders the namespace's observable bindings: interned name to
// printed root value, with unbound vars marked. Two namespaces holding
// equivalent definitions produce equal snapshots even when closure values
// differ by identity.
func (ns *Namespace) Snapshot() map[string]string {
	snap := make(map[string]string, len(ns.vars))
	for n, v := range ns.vars {
		if !v.bound {
			snap[n] = "#<unbound>"
			continue
		}
		snap[n] = v.root.String()
	}
	return snap
}
