// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package temporal

import (
	"math"

	"github.com/gviegas/taa/linear"
)

// Plane is a readable image.
// Load must clamp coordinates to the image bounds.
type Plane interface {
	Load(x, y int) [4]float32
	Width() int
	Height() int
}

// Target is a writable image.
type Target interface {
	Store(x, y int, c [4]float32)
}

// Settings controls the resolve heuristics.
type Settings struct {
	// Accumulate enables blending with the history.
	Accumulate bool
	// ColorClamp clamps the blended color to the
	// 3×3 neighborhood of the current sample.
	ColorClamp bool
	// RejectVelocity reduces the history weight when
	// the current and previous velocities disagree.
	// It has no effect without ReprojectVelocity.
	RejectVelocity bool
	// ReprojectVelocity fetches the history along
	// the motion vector.
	ReprojectVelocity bool
	// NearestDepth takes the motion vector from the
	// nearest sample of the 3×3 neighborhood.
	NearestDepth bool

	// MaxSamples limits the number of accumulated
	// samples.
	MaxSamples float32
	// VelocityScale converts a velocity difference
	// in pixels to a rejection amount.
	VelocityScale float32
}

// DefaultSettings returns the default Settings.
// Every heuristic is enabled.
func DefaultSettings() Settings {
	return Settings{
		Accumulate:        true,
		ColorClamp:        true,
		RejectVelocity:    true,
		ReprojectVelocity: true,
		NearestDepth:      true,
		MaxSamples:        16,
		VelocityScale:     0.5,
	}
}

// Inputs are the images and matrices read by the
// resolve kernel.
// Velocity planes store the screen-space motion in UV
// units (current minus previous) in their first two
// components. The alpha of History stores the number
// of samples accumulated in each pixel.
type Inputs struct {
	Color        Plane
	History      Plane
	Velocity     Plane
	PrevVelocity Plane
	Depth        Plane

	// InvViewProj is the inverse of the current
	// unjittered view-projection.
	InvViewProj linear.M4
	// PrevViewProj is the view-projection of the
	// previous frame.
	PrevViewProj linear.M4

	// Clear indicates that the history is invalid.
	Clear bool
}

// Resolve runs the kernel for every pixel in the
// rectangle [x0, x1)×[y0, y1) and stores the results
// in out.
func Resolve(in *Inputs, s *Settings, out Target, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			out.Store(x, y, ResolvePixel(in, s, x, y))
		}
	}
}

// ResolvePixel computes the resolved color of pixel
// (x, y). The alpha of the result is the new sample
// count.
func ResolvePixel(in *Inputs, s *Settings, x, y int) [4]float32 {
	cur := in.Color.Load(x, y)
	cur[3] = 1
	if !s.Accumulate || in.Clear || in.History == nil {
		return cur
	}
	w, h := float32(in.Color.Width()), float32(in.Color.Height())

	var mv [2]float32
	if s.ReprojectVelocity {
		mx, my := x, y
		if s.NearestDepth && in.Depth != nil {
			mx, my = nearest(in.Depth, x, y)
		}
		switch {
		case in.Velocity != nil:
			v := in.Velocity.Load(mx, my)
			mv = [2]float32{v[0], v[1]}
		case in.Depth != nil:
			mv = reproject(in, mx, my, w, h)
		}
	}

	hx := float32(x) + 0.5 - mv[0]*w
	hy := float32(y) + 0.5 - mv[1]*h
	if hx < 0 || hy < 0 || hx > w || hy > h {
		return cur
	}
	hist := bilinear(in.History, hx, hy)

	n := min(max(hist[3], 0), s.MaxSamples)
	weight := n / (n + 1)

	if s.RejectVelocity && s.ReprojectVelocity && in.PrevVelocity != nil {
		pv := bilinear(in.PrevVelocity, hx, hy)
		dx := (mv[0] - pv[0]) * w
		dy := (mv[1] - pv[1]) * h
		d := float32(math.Sqrt(float64(dx*dx + dy*dy)))
		weight *= clamp(1-d*s.VelocityScale, 0, 1)
	}

	var c [4]float32
	for i := range 3 {
		c[i] = cur[i]*(1-weight) + hist[i]*weight
	}
	if s.ColorClamp {
		lo, hi := neighborhood(in.Color, x, y)
		for i := range 3 {
			c[i] = clamp(c[i], lo[i], hi[i])
		}
	}
	c[3] = clamp(1/(1-weight), 1, max(s.MaxSamples, 1))
	return c
}

func clamp(x, lo, hi float32) float32 { return min(max(x, lo), hi) }

// nearest returns the coordinates of the sample with
// the smallest depth in the 3×3 neighborhood of (x, y).
func nearest(depth Plane, x, y int) (int, int) {
	bx, by := x, y
	bz := depth.Load(x, y)[0]
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			if z := depth.Load(x+i, y+j)[0]; z < bz {
				bx, by, bz = x+i, y+j, z
			}
		}
	}
	return bx, by
}

// neighborhood returns the component-wise minimum and
// maximum of the 3×3 neighborhood of (x, y).
func neighborhood(p Plane, x, y int) (lo, hi [4]float32) {
	lo = p.Load(x, y)
	hi = lo
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			c := p.Load(x+i, y+j)
			for k := range 3 {
				lo[k] = min(lo[k], c[k])
				hi[k] = max(hi[k], c[k])
			}
		}
	}
	return
}

// bilinear samples p at (px, py), given in pixel units
// with texel centers at half-integers.
func bilinear(p Plane, px, py float32) [4]float32 {
	fx, fy := px-0.5, py-0.5
	x0, y0 := float32(math.Floor(float64(fx))), float32(math.Floor(float64(fy)))
	tx, ty := fx-x0, fy-y0
	ix, iy := int(x0), int(y0)
	c00 := p.Load(ix, iy)
	c10 := p.Load(ix+1, iy)
	c01 := p.Load(ix, iy+1)
	c11 := p.Load(ix+1, iy+1)
	var c [4]float32
	for i := range c {
		top := c00[i]*(1-tx) + c10[i]*tx
		bot := c01[i]*(1-tx) + c11[i]*tx
		c[i] = top*(1-ty) + bot*ty
	}
	return c
}

// reproject computes the motion of pixel (x, y) from
// its depth and the current and previous
// view-projection matrices.
func reproject(in *Inputs, x, y int, w, h float32) [2]float32 {
	u := (float32(x) + 0.5) / w
	v := (float32(y) + 0.5) / h
	ndc := linear.V4{u*2 - 1, v*2 - 1, in.Depth.Load(x, y)[0], 1}
	var world linear.V4
	world.Mul(&in.InvViewProj, &ndc)
	if world[3] == 0 {
		return [2]float32{}
	}
	world.Scale(1/world[3], &world)
	var prev linear.V4
	prev.Mul(&in.PrevViewProj, &world)
	if prev[3] <= 0 {
		return [2]float32{}
	}
	pu := (prev[0]/prev[3])*0.5 + 0.5
	pv := (prev[1]/prev[3])*0.5 + 0.5
	return [2]float32{u - pu, v - pv}
}

// Velocity computes the velocity of a point given its
// current and previous clip coordinates.
func Velocity(cur, prev *linear.V4) [2]float32 {
	if cur[3] == 0 || prev[3] == 0 {
		return [2]float32{}
	}
	return [2]float32{
		(cur[0]/cur[3] - prev[0]/prev[3]) * 0.5,
		(cur[1]/cur[3] - prev[1]/prev[3]) * 0.5,
	}
}
