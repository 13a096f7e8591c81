package wager

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const seedByteLength = 16

// NewSeed draws a fresh server-side seed from a cryptographically strong
// source. The seed is fixed and persisted on the bet before any outcome
// math runs, so a settlement can be re-derived later for audit.
func NewSeed() (string, error) {
	buffer := make([]byte, seedByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return hex.EncodeToString(buffer), nil
}

// Stream is a deterministic number stream derived from a seed string.
// The same seed always yields the same sequence.
type Stream struct {
	state uint32
}

// NewStream folds the seed through FNV-1a and drives an xorshift32
// generator from the resulting state.
func NewStream(seed string) *Stream {
	hash := uint32(2166136261)
	for _, b := range []byte(seed) {
		hash ^= uint32(b)
		hash *= 16777619
	}
	if hash == 0 {
		hash = 123456789
	}
	return &Stream{state: hash}
}

// Next returns the next value in [0,1). The shifts run on the int32 view
// of the state, so the right shift sign-extends; persisted seeds replay
// the same draw sequence the settled rounds were derived from.
func (stream *Stream) Next() float64 {
	x := int32(stream.state)
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	stream.state = uint32(x)
	return float64(stream.state) / float64(1<<32)
}

// ValidateSeed rejects blank seeds before they reach a stream.
func ValidateSeed(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidSeed)
	}
	return trimmed, nil
}
