// Package utils provides utility functions for the application.
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// RandomNumericCode returns a fixed-length numeric string drawn uniformly
// from [0, 10^length). Leading zeros are preserved.
func RandomNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// RandomUint64InRange returns a uniform random value in [min, max].
func RandomUint64InRange(min, max uint64) (uint64, error) {
	if min > max {
		return 0, fmt.Errorf("invalid range [%d, %d]", min, max)
	}
	if min == max {
		return min, nil
	}
	span := new(big.Int).SetUint64(max - min + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, fmt.Errorf("failed to generate random amount: %w", err)
	}
	return min + n.Uint64(), nil
}
