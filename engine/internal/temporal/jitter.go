// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package temporal implements the building blocks of
// temporal anti-aliasing: the sub-pixel jitter sequence,
// the ping-pong history images and the resolve kernel.
package temporal

import (
	"math"

	"github.com/gviegas/taa/linear"
)

// Phases is the length of the jitter sequence.
const Phases = 32

// Plastic number and the R2 sequence coefficients.
const (
	plastic = 1.32471795724474602596
	a1      = 1 / plastic
	a2      = 1 / (plastic * plastic)
)

func frac(x float64) float64 { return x - math.Floor(x) }

// Offset returns the jitter offset of phase j for a
// render target of size w×h.
// Offsets are in the range [-0.5/w, 0.5/w)×[-0.5/h, 0.5/h).
// j is taken modulo Phases.
func Offset(j, w, h int) [2]float32 {
	j %= Phases
	if j < 0 {
		j += Phases
	}
	n := float64(j + 1)
	return [2]float32{
		float32((frac(0.5+a1*n) - 0.5) / float64(w)),
		float32((frac(0.5+a2*n) - 0.5) / float64(h)),
	}
}

// Sequence generates jitter offsets.
// The zero value starts at phase 0.
type Sequence struct {
	j int
}

// Next returns the offset of the current phase and
// advances to the next one.
func (s *Sequence) Next(w, h int) [2]float32 {
	off := Offset(s.j, w, h)
	s.Advance()
	return off
}

// Advance moves to the next phase.
func (s *Sequence) Advance() { s.j = (s.j + 1) % Phases }

// Phase returns the current phase.
func (s *Sequence) Phase() int { return s.j }

// Reset restarts the sequence.
func (s *Sequence) Reset() { s.j = 0 }

// Matrix returns a matrix that translates clip
// coordinates by off.
func Matrix(off [2]float32) (m linear.M4) {
	m.I()
	m[3][0] = off[0]
	m[3][1] = off[1]
	return
}
