package mfa

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// ErrInvalidCodeLength is returned when a code length is outside [1, MaxCodeLength].
var ErrInvalidCodeLength = errors.New("invalid code length")

// CodeGenerator produces random fixed-length numeric codes.
//
// The random source is injected; NewCodeGenerator(nil) uses crypto/rand.
// Substituting a predictable source (math/rand seeded by time, for example)
// makes issued codes guessable and should be limited to tests.
type CodeGenerator struct {
	random io.Reader
}

// NewCodeGenerator creates a CodeGenerator reading randomness from r.
// A nil r selects crypto/rand.Reader.
func NewCodeGenerator(r io.Reader) *CodeGenerator {
	if r == nil {
		r = rand.Reader
	}
	return &CodeGenerator{random: r}
}

// Generate returns a uniformly distributed integer in
// [10^(length-1), 10^length - 1] rendered in decimal, so the result has
// exactly length digits and never a leading zero.
func (g *CodeGenerator) Generate(length int) (string, error) {
	if length < 1 || length > MaxCodeLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidCodeLength, length)
	}

	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Mul(low, big.NewInt(9))

	n, err := rand.Int(g.random, span)
	if err != nil {
		return "", fmt.Errorf("read random source: %w", err)
	}

	return n.Add(n, low).String(), nil
}
