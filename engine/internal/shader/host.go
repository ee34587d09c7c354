// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"github.com/gviegas/taa/driver/soft"
	"github.com/gviegas/taa/engine/internal/temporal"
	"github.com/gviegas/taa/linear"
)

func init() {
	soft.RegisterGraphics(Scene.Vertex(), scene)
	soft.RegisterGraphics(Lights.Vertex(), lights)
	soft.RegisterCompute(Resolve.Vertex(), resolve)
	soft.RegisterGraphics(Tonemap.Vertex(), tonemap)
}

var (
	lightDir = func() (v linear.V3) {
		v.Norm(&linear.V3{0.4, 1, 0.3})
		return
	}()
	albedo = linear.V3{0.8, 0.8, 0.8}
)

const ambient = 0.15

// Shade computes the color of a scene surface with
// normal n.
func Shade(n *linear.V3) [4]float32 {
	var s float32 = ambient
	if n.Len() > 0 {
		var u linear.V3
		u.Norm(n)
		s += max(u.Dot(&lightDir), 0)
	}
	return [4]float32{albedo[0] * s, albedo[1] * s, albedo[2] * s, 1}
}

// Reinhard applies the Reinhard tone mapping operator.
func Reinhard(c [4]float32) [4]float32 {
	return [4]float32{c[0] / (1 + c[0]), c[1] / (1 + c[1]), c[2] / (1 + c[2]), 1}
}

func vec3(p []byte, i int) (v linear.V3, ok bool) {
	off := i * 12
	if i < 0 || off+12 > len(p) {
		return
	}
	return linear.V3{soft.Float32(p, off), soft.Float32(p, off+4), soft.Float32(p, off+8)}, true
}

type sceneVertex struct {
	cur  linear.V4
	prev linear.V4
	n    linear.V3
}

// scene implements the Scene program.
func scene(e *soft.Exec, d *soft.Draw) {
	tr := AsTransform(e.Constant(GlobalHeap, TransformNr, 0))
	dr := AsDraw(e.Constant(DrawHeap, DrawNr, 0))
	pos, nrm := e.Vertex(0), e.Vertex(1)
	color, vel := e.Target(0), e.Target(1)
	if tr == nil || dr == nil || pos == nil || nrm == nil || color == nil || vel == nil {
		return
	}
	ds := e.DepthTarget()
	gs := e.Graph()
	vp, prev, jit := tr.ViewProj(), tr.PrevViewProj(), tr.Jitter()
	world, normal := dr.World(), dr.Normal()
	var mvp, pmvp linear.M4
	mvp.Mul(&vp, &world)
	pmvp.Mul(&prev, &world)
	jitter := e.Defined(Jitter)

	for i := 0; i+3 <= d.Count; i += 3 {
		var (
			vs   [3]sceneVertex
			clip [3][4]float32
		)
		for k := range vs {
			idx := d.BaseVert + i + k
			if d.Indexed {
				idx = e.Index(d.BaseIdx+i+k) + d.VertOff
			}
			p, ok1 := vec3(pos, idx)
			n, ok2 := vec3(nrm, idx)
			if !ok1 || !ok2 {
				return
			}
			p4 := linear.V4{p[0], p[1], p[2], 1}
			n4 := linear.V4{n[0], n[1], n[2], 0}
			vs[k].cur.Mul(&mvp, &p4)
			vs[k].prev.Mul(&pmvp, &p4)
			var wn linear.V4
			wn.Mul(&normal, &n4)
			vs[k].n = linear.V3{wn[0], wn[1], wn[2]}
			c := vs[k].cur
			if jitter {
				c.Mul(&jit, &vs[k].cur)
			}
			clip[k] = c
		}
		soft.Triangle(e.Viewport(), gs.Raster, clip, func(x, y int, b [3]float32, z float32) {
			if !soft.DepthTest(ds, &gs.DS, x, y, z) {
				return
			}
			var (
				n         linear.V3
				cur, prev linear.V4
				t3        linear.V3
				t4        linear.V4
			)
			for k := range vs {
				t3.Scale(b[k], &vs[k].n)
				n.Add(&n, &t3)
				t4.Scale(b[k], &vs[k].cur)
				cur.Add(&cur, &t4)
				t4.Scale(b[k], &vs[k].prev)
				prev.Add(&prev, &t4)
			}
			color.Store(x, y, Shade(&n))
			v := temporal.Velocity(&cur, &prev)
			vel.Store(x, y, [4]float32{v[0], v[1]})
		})
	}
}

var cube = [8]linear.V4{
	{-1, -1, -1, 1}, {1, -1, -1, 1}, {1, 1, -1, 1}, {-1, 1, -1, 1},
	{-1, -1, 1, 1}, {1, -1, 1, 1}, {1, 1, 1, 1}, {-1, 1, 1, 1},
}

var cubeIndices = [36]int{
	0, 2, 1, 0, 3, 2,
	4, 5, 6, 4, 6, 7,
	0, 1, 5, 0, 5, 4,
	3, 6, 2, 3, 7, 6,
	0, 4, 7, 0, 7, 3,
	1, 2, 6, 1, 6, 5,
}

// CubeVertices is the number of vertices drawn per
// light.
const CubeVertices = len(cubeIndices)

// lights implements the Lights program.
func lights(e *soft.Exec, d *soft.Draw) {
	tr := AsTransform(e.Constant(GlobalHeap, TransformNr, 0))
	buf := e.Constant(GlobalHeap, LightNr, 0)
	target := e.Target(0)
	if tr == nil || buf == nil || target == nil {
		return
	}
	ds := e.DepthTarget()
	gs := e.Graph()
	vp, jit := tr.ViewProj(), tr.Jitter()
	jitter := e.Defined(Jitter)
	for inst := d.BaseInst; inst < d.BaseInst+d.InstCount; inst++ {
		l := AsLight(buf, inst)
		if l == nil {
			return
		}
		world := l.World()
		var mvp linear.M4
		mvp.Mul(&vp, &world)
		if jitter {
			mvp.Mul(&jit, &mvp)
		}
		c := l.Color()
		col := [4]float32{c[0], c[1], c[2], 1}
		for i := 0; i+3 <= d.Count; i += 3 {
			var clip [3][4]float32
			for k := range clip {
				var v linear.V4
				v.Mul(&mvp, &cube[cubeIndices[(d.BaseVert+i+k)%len(cubeIndices)]])
				clip[k] = v
			}
			soft.Triangle(e.Viewport(), gs.Raster, clip, func(x, y int, _ [3]float32, z float32) {
				if soft.DepthTest(ds, &gs.DS, x, y, z) {
					target.Store(x, y, col)
				}
			})
		}
	}
}

// resolve implements the Resolve program.
func resolve(e *soft.Exec, grp [3]int) {
	tr := AsTransform(e.Constant(GlobalHeap, TransformNr, 0))
	pr := AsResolve(e.Constant(GlobalHeap, ResolveNr, 0))
	scn := e.Texture(ImageHeap, SceneNr, 0)
	hist := e.Texture(ImageHeap, HistoryNr, 0)
	vel := e.Texture(ImageHeap, VelocityNr, 0)
	pvel := e.Texture(ImageHeap, PrevVelocityNr, 0)
	depth := e.Texture(ImageHeap, DepthNr, 0)
	out := e.Image(ImageHeap, StoreNr, 0)
	if tr == nil || pr == nil || scn == nil || hist == nil || vel == nil || pvel == nil || depth == nil || out == nil {
		return
	}
	in := temporal.Inputs{
		Color:        scn,
		History:      hist,
		Velocity:     vel,
		PrevVelocity: pvel,
		Depth:        depth,
		InvViewProj:  tr.InvViewProj(),
		PrevViewProj: tr.PrevViewProj(),
		Clear:        pr.Clear(),
	}
	s := temporal.Settings{
		Accumulate:        e.Defined(Accumulate),
		ColorClamp:        e.Defined(ColorClamp),
		RejectVelocity:    e.Defined(RejectVelocity),
		ReprojectVelocity: e.Defined(ReprojectVelocity),
		NearestDepth:      e.Defined(NearestDepth),
		MaxSamples:        pr.MaxSamples(),
		VelocityScale:     pr.VelocityScale(),
	}
	w := min(grp[0]*ResolveGroupX, out.Width())
	h := min(grp[1]*ResolveGroupY, out.Height())
	temporal.Resolve(&in, &s, out, 0, 0, w, h)
}

// tonemap implements the Tonemap program.
func tonemap(e *soft.Exec, d *soft.Draw) {
	src := e.Texture(ImageHeap, ColorNr, 0)
	dst := e.Target(0)
	if src == nil || dst == nil || d.Count < 3 {
		return
	}
	w, h := dst.Width(), dst.Height()
	sw, sh := src.Width(), src.Height()
	for y := range h {
		for x := range w {
			dst.Store(x, y, Reinhard(src.Load(x*sw/w, y*sh/h)))
		}
	}
}
