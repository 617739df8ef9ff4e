// Package tunable provides runtime adjustable numeric policy knobs.
// It is the in-process equivalent of per-filesystem sysfs attributes:
// caches consult current knob values, an operator surface reads and
// writes them by name.
package tunable

import (
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Value is single named int64 knob with allowed range.
// Get and Set are safe for concurrent use.
type Value struct {
	name     string
	min, max int64
	v        atomic.Int64
}

func New(name string, def, min, max int64) *Value {
	if min > max {
		panic("tunable " + name + ": min greater than max")
	}
	v := &Value{name: name, min: min, max: max}
	if err := v.Set(def); err != nil {
		panic(err)
	}
	return v
}

func (v *Value) Name() string { return v.name }
func (v *Value) Get() int64   { return v.v.Load() }

func (v *Value) Set(n int64) error {
	if n < v.min || n > v.max {
		return errors.Errorf("tunable %s: value %v out of range [%v, %v]", v.name, n, v.min, v.max)
	}
	v.v.Store(n)
	return nil
}

func (v *Value) String() string {
	return v.name + "=" + strconv.FormatInt(v.Get(), 10)
}
