// Package hexutil wraps the hex/byte primitives the rest of corenostr
// builds on: lowercase-hex codec, secure random bytes, and constant-time
// comparison for MAC and signature checks.
package hexutil

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// ErrInvalidHex is returned when a string is not valid lowercase (or
// mixed-case) hexadecimal, or does not decode to the expected length.
var ErrInvalidHex = errors.New("invalid hex")

// Encode returns the lowercase hex encoding of b.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// Decode hex-decodes s, wrapping any failure in ErrInvalidHex.
func Decode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidHex
	}
	return b, nil
}

// DecodeExact hex-decodes s and requires the result to be exactly n bytes.
func DecodeExact(s string, n int) ([]byte, error) {
	b, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, ErrInvalidHex
	}
	return b, nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ConstantTimeEqual reports whether a and b are equal, in time independent
// of where they first differ. Used for MAC and signature comparisons so
// that verification never leaks timing information.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
