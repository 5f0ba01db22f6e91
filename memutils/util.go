package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

func CheckPow2[T constraints.Integer](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignDown rounds value down to the previous multiple of alignment, which must be a power of two
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}
