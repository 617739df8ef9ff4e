// Package util holds small reflection helpers shared by config merging.
package util

import "reflect"

// IsZeroVal reports whether v holds its type's zero value.
func IsZeroVal(v reflect.Value) bool {
	return v.Interface() == reflect.Zero(v.Type()).Interface()
}
