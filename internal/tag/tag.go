//go:build !debug

// Package tag provides build tag dependent constants.
package tag

// Debug enables expensive runtime invariant checks.
const Debug = false
