// Package rng implements the deterministic, seedable pseudorandom source
// shared by the battlers: both seed an identically-behaving source with
// the host-chosen seed after handshake, so any future probabilistic rule
// draws the same sequence on both sides.
package rng

import "math/rand"

// Source wraps a *rand.Rand with an explicit Seed method so callers don't
// reach past this package into math/rand directly. One Source lives per
// Session.
type Source struct {
	r *rand.Rand
}

// New returns an unseeded Source; callers must call Seed before drawing
// (the zero value is deterministic but not meaningfully "seeded").
func New() *Source {
	return &Source{r: rand.New(rand.NewSource(0))}
}

// Seed reseeds the source. Both battlers call this with the same value
// (the host's HANDSHAKE_RESPONSE seed) so their subsequent draws agree.
func (s *Source) Seed(n int64) {
	s.r = rand.New(rand.NewSource(n))
}

// Intn draws a uniform int in [0, n).
func (s *Source) Intn(n int) int {
	return s.r.Intn(n)
}

// Float64 draws a uniform float64 in [0, 1).
func (s *Source) Float64() float64 {
	return s.r.Float64()
}
