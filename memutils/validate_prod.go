//go:build !debug_heap

package memutils

// DebugValidate no-ops unless the debug_heap build tag is present
func DebugValidate(validatable Validatable) {}
