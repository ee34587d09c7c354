// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"testing"
)

// viewProj computes the matrices that a renderer needs
// every frame.
func viewProj(eye *V3) (vp, inv M4) {
	var v, p M4
	v.LookAt(eye, &V3{}, &V3{0, 1, 0})
	p.Perspective(0.7853982, 16.0/9.0, 0.1, 500)
	vp.Mul(&p, &v)
	inv.Invert(&vp)
	return
}

func BenchmarkViewProj(b *testing.B) {
	eye := V3{3, 2, 5}
	var vp, inv M4
	for i := 0; i < b.N; i++ {
		vp, inv = viewProj(&eye)
	}
	b.Log(vp[0][0], inv[0][0])
}

func BenchmarkM4(b *testing.B) {
	var m, n, o M4
	m.Translate(1, 2, 3)
	n.Scale(2, 2, 2)
	b.Run("Mul", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			o.Mul(&m, &n)
		}
	})
	b.Run("Invert", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			o.Invert(&m)
		}
	})
	b.Run("Transpose", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			o.Transpose(&n)
		}
	})
	b.Log(o[3][3])
}

func BenchmarkV4Mul(b *testing.B) {
	vp, _ := viewProj(&V3{0, 0, 3})
	p := V4{1, 1, 0, 1}
	var c V4
	for i := 0; i < b.N; i++ {
		c.Mul(&vp, &p)
	}
	b.Log(c)
}
