package tunable

import (
	"strconv"

	"github.com/pkg/errors"
)

// Table is fixed set of knobs addressable by name.
// The set is defined at construction; only knob values change afterwards,
// so lookups need no locking.
type Table struct {
	order []string
	vals  map[string]*Value
}

func NewTable(vals ...*Value) *Table {
	t := &Table{vals: make(map[string]*Value, len(vals))}
	for _, v := range vals {
		if _, ok := t.vals[v.name]; ok {
			panic("tunable " + v.name + " registered twice")
		}
		t.vals[v.name] = v
		t.order = append(t.order, v.name)
	}
	return t
}

func (t *Table) Lookup(name string) (*Value, bool) {
	v, ok := t.vals[name]
	return v, ok
}

// Set parses and stores a knob value, sysfs store style.
func (t *Table) Set(name, raw string) error {
	v, ok := t.vals[name]
	if !ok {
		return errors.Errorf("tunable %s: not registered", name)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "tunable %s: parse %q", name, raw)
	}
	return v.Set(n)
}

// Snapshot returns current values of all knobs in registration order keys.
func (t *Table) Snapshot() map[string]int64 {
	s := make(map[string]int64, len(t.order))
	for _, name := range t.order {
		s[name] = t.vals[name].Get()
	}
	return s
}

func (t *Table) Names() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}
