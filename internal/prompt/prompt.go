// Package prompt generates race prompts deterministically from a 32-bit seed.
//
// Clients never receive the prompt text; they regenerate it from the seed and
// the shared word list, so the PRNG here must stay bit-compatible with the
// web client's Mulberry32 implementation.
package prompt

import "strings"

// Rand is a Mulberry32 generator. The zero value is a valid generator
// seeded with 0.
type Rand struct {
	state uint32
}

func NewRand(seed uint32) *Rand {
	return &Rand{state: seed}
}

// Float64 advances the generator once and returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	r.state += 0x6D2B79F5
	t := r.state
	t = imul(t^(t>>15), t|1)
	t = (t + imul(t^(t>>7), t|61)) ^ t
	return float64(t^(t>>14)) / 4294967296.0
}

// imul matches JavaScript's Math.imul: 32-bit multiplication with wraparound.
func imul(a, b uint32) uint32 {
	return a * b
}

// Generate draws count words from the list, one PRNG advance per word, and
// joins them with single spaces. Identical (seed, words, count) inputs yield
// byte-identical output.
func Generate(seed uint32, words []string, count int) string {
	if len(words) == 0 || count <= 0 {
		return ""
	}

	r := NewRand(seed)
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		idx := int(r.Float64() * float64(len(words)))
		out = append(out, words[idx])
	}
	return strings.Join(out, " ")
}
