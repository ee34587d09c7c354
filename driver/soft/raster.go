// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"math"

	"github.com/gviegas/taa/driver"
)

type screenVertex struct {
	x, y, z float32
	invW    float32
}

func toScreen(vp driver.Viewport, v [4]float32) (screenVertex, bool) {
	w := v[3]
	if w <= 0 {
		return screenVertex{}, false
	}
	iw := 1 / w
	return screenVertex{
		x:    vp.X + (v[0]*iw*0.5+0.5)*vp.Width,
		y:    vp.Y + (v[1]*iw*0.5+0.5)*vp.Height,
		z:    vp.Znear + v[2]*iw*(vp.Zfar-vp.Znear),
		invW: iw,
	}, true
}

func edge(ax, ay, bx, by, cx, cy float32) float32 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// Triangle rasterizes a triangle given in clip coordinates.
// fn is called for every pixel whose center is covered by
// the triangle, with perspective-correct barycentrics and
// the interpolated depth in viewport range.
// Triangles with a vertex at or behind the eye are
// discarded rather than clipped.
func Triangle(vp driver.Viewport, rs driver.RasterState, v [3][4]float32, fn func(x, y int, b [3]float32, z float32)) {
	var s [3]screenVertex
	for i := range v {
		var ok bool
		if s[i], ok = toScreen(vp, v[i]); !ok {
			return
		}
	}
	area := edge(s[0].x, s[0].y, s[1].x, s[1].y, s[2].x, s[2].y)
	if area == 0 {
		return
	}
	if rs.Cull != driver.CNone {
		front := area < 0
		if rs.Clockwise {
			front = !front
		}
		if front == (rs.Cull == driver.CFront) {
			return
		}
	}
	x0 := int(math.Floor(float64(min(s[0].x, s[1].x, s[2].x))))
	x1 := int(math.Ceil(float64(max(s[0].x, s[1].x, s[2].x))))
	y0 := int(math.Floor(float64(min(s[0].y, s[1].y, s[2].y))))
	y1 := int(math.Ceil(float64(max(s[0].y, s[1].y, s[2].y))))
	x0 = max(x0, int(vp.X))
	y0 = max(y0, int(vp.Y))
	x1 = min(x1, int(vp.X+vp.Width))
	y1 = min(y1, int(vp.Y+vp.Height))
	for y := y0; y < y1; y++ {
		py := float32(y) + 0.5
		for x := x0; x < x1; x++ {
			px := float32(x) + 0.5
			b0 := edge(s[1].x, s[1].y, s[2].x, s[2].y, px, py) / area
			b1 := edge(s[2].x, s[2].y, s[0].x, s[0].y, px, py) / area
			b2 := 1 - b0 - b1
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}
			z := b0*s[0].z + b1*s[1].z + b2*s[2].z
			p0, p1, p2 := b0*s[0].invW, b1*s[1].invW, b2*s[2].invW
			sum := p0 + p1 + p2
			fn(x, y, [3]float32{p0 / sum, p1 / sum, p2 / sum}, z)
		}
	}
}

// Point rasterizes a single-pixel point given in clip
// coordinates.
func Point(vp driver.Viewport, v [4]float32, fn func(x, y int, z float32)) {
	s, ok := toScreen(vp, v)
	if !ok {
		return
	}
	if s.x < vp.X || s.y < vp.Y || s.x >= vp.X+vp.Width || s.y >= vp.Y+vp.Height {
		return
	}
	fn(int(s.x), int(s.y), s.z)
}

// DepthTest compares z against the stored depth using the
// pipeline's depth state. If the test passes and depth
// writes are enabled, z is stored.
func DepthTest(ds *Image, st *driver.DSState, x, y int, z float32) bool {
	if ds == nil || !st.DepthTest {
		return true
	}
	d := ds.Load(x, y)[0]
	var pass bool
	switch st.DepthCmp {
	case driver.CNever:
	case driver.CLess:
		pass = z < d
	case driver.CEqual:
		pass = z == d
	case driver.CLessEqual:
		pass = z <= d
	case driver.CGreater:
		pass = z > d
	case driver.CNotEqual:
		pass = z != d
	case driver.CGreaterEqual:
		pass = z >= d
	case driver.CAlways:
		pass = true
	}
	if pass && st.DepthWrite {
		ds.Store(x, y, [4]float32{z})
	}
	return pass
}
