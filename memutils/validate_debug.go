//go:build debug_heap

package memutils

// DebugValidate runs Validate on the provided object and panics on the first inconsistency. Building
// with the debug_heap tag turns it on; every allocation then pays for a full consistency check.
func DebugValidate(validatable Validatable) {
	if err := validatable.Validate(); err != nil {
		panic(err)
	}
}
