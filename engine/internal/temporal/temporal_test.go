// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package temporal

import (
	"math"
	"testing"

	"github.com/gviegas/taa/engine/internal/resource"
	"github.com/gviegas/taa/linear"
)

type plane struct {
	w, h int
	px   [][4]float32
}

func newPlane(w, h int, c [4]float32) *plane {
	p := &plane{w, h, make([][4]float32, w*h)}
	for i := range p.px {
		p.px[i] = c
	}
	return p
}

func (p *plane) Width() int  { return p.w }
func (p *plane) Height() int { return p.h }

func (p *plane) Load(x, y int) [4]float32 {
	x = min(max(x, 0), p.w-1)
	y = min(max(y, 0), p.h-1)
	return p.px[y*p.w+x]
}

func (p *plane) Store(x, y int, c [4]float32) { p.px[y*p.w+x] = c }

func near(a, b [4]float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-5 {
			return false
		}
	}
	return true
}

func TestOffset(t *testing.T) {
	const w, h = 1280, 720
	seen := make(map[[2]float32]bool)
	for j := range Phases {
		off := Offset(j, w, h)
		if off != Offset(j+Phases, w, h) {
			t.Fatalf("Offset(%d):\nhave %v\nwant %v", j+Phases, Offset(j+Phases, w, h), off)
		}
		if off[0] < -0.5/w || off[0] >= 0.5/w || off[1] < -0.5/h || off[1] >= 0.5/h {
			t.Fatalf("Offset(%d): %v out of range", j, off)
		}
		if seen[off] {
			t.Fatalf("Offset(%d): %v repeated", j, off)
		}
		seen[off] = true
	}
	// First phase of the R2 sequence.
	want := [2]float32{float32((frac(0.5+a1) - 0.5) / w), float32((frac(0.5+a2) - 0.5) / h)}
	if have := Offset(0, w, h); have != want {
		t.Fatalf("Offset(0):\nhave %v\nwant %v", have, want)
	}
}

func TestSequence(t *testing.T) {
	var s Sequence
	first := s.Next(64, 64)
	for range Phases - 1 {
		s.Next(64, 64)
	}
	if s.Phase() != 0 {
		t.Fatalf("Sequence.Phase:\nhave %d\nwant 0", s.Phase())
	}
	if have := s.Next(64, 64); have != first {
		t.Fatalf("Sequence.Next:\nhave %v\nwant %v", have, first)
	}
	s.Reset()
	if s.Phase() != 0 {
		t.Fatalf("Sequence.Reset: phase %d", s.Phase())
	}
	for i := range Phases {
		if have, want := Offset(s.Phase(), 64, 64), s.Next(64, 64); have != want {
			t.Fatalf("Offset(%d):\nhave %v\nwant %v", i, have, want)
		}
	}
	s.Advance()
	if s.Phase() != 1 {
		t.Fatalf("Sequence.Advance:\nhave %d\nwant 1", s.Phase())
	}
}

func TestMatrix(t *testing.T) {
	m := Matrix([2]float32{0.25, -0.125})
	want := linear.M4{{1}, {0, 1}, {0, 0, 1}, {0.25, -0.125, 0, 1}}
	if m != want {
		t.Fatalf("Matrix:\nhave %v\nwant %v", m, want)
	}
	var v linear.V4
	v.Mul(&m, &linear.V4{0.5, 0.5, 0.5, 2})
	if v != (linear.V4{1, 0.25, 0.5, 2}) {
		t.Fatalf("Matrix * v:\nhave %v\nwant [1 0.25 0.5 2]", v)
	}
}

func TestPair(t *testing.T) {
	var reg resource.Registry
	p := NewPair(&reg, "color")
	a := resource.NewImage("a", nil, nil)
	b := resource.NewImage("b", nil, nil)
	if err := p.Set(a, b); err != nil {
		t.Fatalf("Pair.Set:\nhave %v\nwant nil", err)
	}
	for i := range 4 {
		cur, _ := reg.Resolve(p.Current())
		if err := p.Swap(); err != nil {
			t.Fatalf("Pair.Swap:\nhave %v\nwant nil", err)
		}
		hist, _ := reg.Resolve(p.History())
		if hist != cur {
			t.Fatalf("frame %d: history is not the previous current", i)
		}
		if p.Slot(p.Index()) == cur {
			t.Fatalf("frame %d: Pair.Index did not flip", i)
		}
	}
	if s := p.Release(); s != [2]*resource.Physical{a, b} {
		t.Fatal("Pair.Release: wrong slots")
	}
	if _, err := reg.Resolve(p.Current()); err == nil {
		t.Fatal("Pair.Release: current still bound")
	}
	if _, bound := a.Bound(); bound {
		t.Fatal("Pair.Release: image still bound")
	}
}

func inputs(cur, hist [4]float32) *Inputs {
	return &Inputs{
		Color:        newPlane(8, 8, cur),
		History:      newPlane(8, 8, hist),
		Velocity:     newPlane(8, 8, [4]float32{}),
		PrevVelocity: newPlane(8, 8, [4]float32{}),
		Depth:        newPlane(8, 8, [4]float32{0.5}),
	}
}

func TestResolveClear(t *testing.T) {
	in := inputs([4]float32{1, 0.5, 0.25, 1}, [4]float32{0, 0, 1, 7})
	in.Clear = true
	s := DefaultSettings()
	out := newPlane(8, 8, [4]float32{})
	Resolve(in, &s, out, 0, 0, 8, 8)
	for i, c := range out.px {
		if c != [4]float32{1, 0.5, 0.25, 1} {
			t.Fatalf("pixel %d:\nhave %v\nwant [1 0.5 0.25 1]", i, c)
		}
	}

	in.Clear = false
	s.Accumulate = false
	if c := ResolvePixel(in, &s, 3, 3); c != [4]float32{1, 0.5, 0.25, 1} {
		t.Fatalf("ResolvePixel (no accumulation):\nhave %v\nwant [1 0.5 0.25 1]", c)
	}
}

func TestResolveAverage(t *testing.T) {
	in := inputs([4]float32{1, 0, 0, 1}, [4]float32{0, 0, 1, 1})
	s := DefaultSettings()
	s.ColorClamp = false
	if c := ResolvePixel(in, &s, 4, 4); !near(c, [4]float32{0.5, 0, 0.5, 2}) {
		t.Fatalf("ResolvePixel:\nhave %v\nwant [0.5 0 0.5 2]", c)
	}

	// The count saturates at MaxSamples.
	in.History = newPlane(8, 8, [4]float32{0, 0, 1, 100})
	c := ResolvePixel(in, &s, 4, 4)
	if c[3] != s.MaxSamples {
		t.Fatalf("ResolvePixel count:\nhave %v\nwant %v", c[3], s.MaxSamples)
	}
	wantW := s.MaxSamples / (s.MaxSamples + 1)
	if !near(c, [4]float32{1 - wantW, 0, wantW, s.MaxSamples}) {
		t.Fatalf("ResolvePixel:\nhave %v\nwant weight %v", c, wantW)
	}
}

func TestResolveReproject(t *testing.T) {
	in := inputs([4]float32{1, 1, 1, 1}, [4]float32{})
	hist := in.History.(*plane)
	hist.Store(2, 3, [4]float32{0, 0, 0, 1})
	for i := range hist.px {
		if i != 3*8+2 {
			hist.px[i] = [4]float32{1, 1, 1, 1}
		}
	}
	// The pixel moved one pixel to the right.
	in.Velocity = newPlane(8, 8, [4]float32{1.0 / 8, 0, 0, 0})
	in.PrevVelocity = newPlane(8, 8, [4]float32{1.0 / 8, 0, 0, 0})
	s := DefaultSettings()
	s.ColorClamp = false
	if c := ResolvePixel(in, &s, 3, 3); !near(c, [4]float32{0.5, 0.5, 0.5, 2}) {
		t.Fatalf("ResolvePixel (reprojected):\nhave %v\nwant [0.5 0.5 0.5 2]", c)
	}
	s.ReprojectVelocity = false
	if c := ResolvePixel(in, &s, 3, 3); !near(c, [4]float32{1, 1, 1, 2}) {
		t.Fatalf("ResolvePixel (not reprojected):\nhave %v\nwant [1 1 1 2]", c)
	}

	// History outside the screen is discarded.
	s.ReprojectVelocity = true
	in.Velocity = newPlane(8, 8, [4]float32{1, 0, 0, 0})
	if c := ResolvePixel(in, &s, 3, 3); c != [4]float32{1, 1, 1, 1} {
		t.Fatalf("ResolvePixel (off-screen):\nhave %v\nwant [1 1 1 1]", c)
	}
}

func TestResolveHeuristics(t *testing.T) {
	in := inputs([4]float32{0.2, 0.2, 0.2, 1}, [4]float32{1, 1, 1, 4})
	in.Velocity = newPlane(8, 8, [4]float32{0.5 / 8, 0, 0, 0})
	base := DefaultSettings()
	base.ColorClamp = false
	base.RejectVelocity = false
	ref := ResolvePixel(in, &base, 4, 4)

	reject := base
	reject.RejectVelocity = true
	c := ResolvePixel(in, &reject, 4, 4)
	if c[0] >= ref[0] || c[3] >= ref[3] {
		t.Fatalf("velocity rejection did not reduce the history weight:\nhave %v\nbase %v", c, ref)
	}

	// Rejection requires reprojection.
	reject.ReprojectVelocity = false
	noRep := base
	noRep.ReprojectVelocity = false
	if a, b := ResolvePixel(in, &reject, 4, 4), ResolvePixel(in, &noRep, 4, 4); a != b {
		t.Fatalf("rejection without reprojection:\nhave %v\nwant %v", a, b)
	}

	clamped := base
	clamped.ColorClamp = true
	c = ResolvePixel(in, &clamped, 4, 4)
	if !near(c, [4]float32{0.2, 0.2, 0.2, ref[3]}) {
		t.Fatalf("color clamp:\nhave %v\nwant [0.2 0.2 0.2 %v]", c, ref[3])
	}
}

func TestResolveNearestDepth(t *testing.T) {
	in := inputs([4]float32{1, 1, 1, 1}, [4]float32{0, 0, 0, 1})
	in.Velocity = newPlane(8, 8, [4]float32{})
	// A foreground sample next to (4, 4) moves off-screen.
	in.Velocity.(*plane).Store(5, 4, [4]float32{1, 0, 0, 0})
	in.Depth.(*plane).Store(5, 4, [4]float32{0.1})
	s := DefaultSettings()
	s.ColorClamp = false
	if c := ResolvePixel(in, &s, 4, 4); c != [4]float32{1, 1, 1, 1} {
		t.Fatalf("ResolvePixel (nearest depth):\nhave %v\nwant [1 1 1 1]", c)
	}
	s.NearestDepth = false
	if c := ResolvePixel(in, &s, 4, 4); !near(c, [4]float32{0.5, 0.5, 0.5, 2}) {
		t.Fatalf("ResolvePixel (center depth):\nhave %v\nwant [0.5 0.5 0.5 2]", c)
	}
}

func TestReprojectDepth(t *testing.T) {
	var vp linear.M4
	vp.Perspective(math.Pi/3, 1, 0.1, 100)
	var view linear.M4
	view.LookAt(&linear.V3{0, 0, 5}, &linear.V3{}, &linear.V3{0, 1, 0})
	var cur linear.M4
	cur.Mul(&vp, &view)
	in := inputs([4]float32{1, 1, 1, 1}, [4]float32{})
	in.Velocity = nil
	in.InvViewProj.Invert(&cur)
	in.PrevViewProj = cur
	// A static camera yields no motion.
	mv := reproject(in, 3, 3, 8, 8)
	if math.Abs(float64(mv[0])) > 1e-4 || math.Abs(float64(mv[1])) > 1e-4 {
		t.Fatalf("reproject (static):\nhave %v\nwant [0 0]", mv)
	}

	// Camera moved to the right: a point seen at the
	// center was previously seen to the right of it.
	var prevView linear.M4
	prevView.LookAt(&linear.V3{-1, 0, 5}, &linear.V3{-1, 0, 0}, &linear.V3{0, 1, 0})
	in.PrevViewProj.Mul(&vp, &prevView)
	mv = reproject(in, 4, 4, 8, 8)
	if mv[0] >= 0 {
		t.Fatalf("reproject (moving camera):\nhave %v\nwant negative x", mv)
	}
}

func TestVelocity(t *testing.T) {
	v := Velocity(&linear.V4{1, 0, 0, 2}, &linear.V4{0, -1, 0, 1})
	if v != [2]float32{0.25, 0.5} {
		t.Fatalf("Velocity:\nhave %v\nwant [0.25 0.5]", v)
	}
}
