// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestV(t *testing.T) {
	var u V3
	v := V3{1, 2, 4}
	w := V3{0, -1, 2}

	if u.Add(&v, &w); u != (V3{1, 1, 6}) {
		t.Fatalf("V3.Add\nhave %v\nwant [1 1 6]", u)
	}
	if u.Sub(&v, &w); u != (V3{1, 3, 2}) {
		t.Fatalf("V3.Sub\nhave %v\nwant [1 3 2]", u)
	}
	if u.Scale(-1, &v); u != (V3{-1, -2, -4}) {
		t.Fatalf("V3.Scale\nhave %v\nwant [-1 -2 -4]", u)
	}
	if u.Scale(2, &w); u != (V3{0, -2, 4}) {
		t.Fatalf("V3.Scale\nhave %v\nwant [0 -2 4]", u)
	}
	if d := v.Dot(&w); d != 6 {
		t.Fatalf("V3.Dot\nhave %v\nwant 6\n", d)
	}
	if d := v.Dot(&v); d != 21 {
		t.Fatalf("V3.Dot\nhave %v\nwant 21\n", d)
	}
	if l := v.Len(); l != float32(math.Sqrt(21)) {
		t.Fatalf("V3.Len\nhave %v\nwant %v\n", l, math.Sqrt(21))
	}
	if l := w.Len(); l != float32(math.Sqrt(5)) {
		t.Fatalf("V3.Len\nhave %v\nwant %v\n", l, math.Sqrt(5))
	}

	v = V3{0, 0, -2}
	w = V3{0, 4, 0}

	if v.Norm(&v); v != (V3{0, 0, -1}) {
		t.Fatalf("V3.Norm\nhave %v\nwant [0 0 -1]", v)
	}
	if w.Norm(&w); w != (V3{0, 1, 0}) {
		t.Fatalf("V3.Norm\nhave %v\nwant [0 1 0]", w)
	}
	if u.Cross(&v, &w); u != (V3{1, 0, 0}) {
		t.Fatalf("V3.Cross\nhave %v\nwant [1 0 0]", u)
	}
	if u.Cross(&w, &v); u != (V3{-1, 0, 0}) {
		t.Fatalf("V3.Cross\nhave %v\nwant [-1 0 0]", u)
	}

	m := M3{
		{2, 0, 1},
		{1, 3, 2},
		{4, 2, 3},
	}
	v = V3{-1, 0, 1}

	if u.Mul(&m, &v); u != (V3{2, 2, 2}) {
		t.Fatalf("V3.Mul\nhave %v\nwant [2 2 2]", u)
	}
	m.I()
	if u.Mul(&m, &v); u != v {
		t.Fatalf("V3.Mul\nhave %v\nwant %v", u, v)
	}
}

func TestM(t *testing.T) {
	var l M3
	m := M3{
		{1, 4, 7},
		{2, 5, 8},
		{3, 6, 9},
	}
	n := M3{
		{0, 1, 0},
		{0, 0, 1},
		{1, 0, 0},
	}

	if l.I(); l != (M3{{1}, {0, 1}, {0, 0, 1}}) {
		t.Fatalf("M3.I\nhave %v\nwant [%v %v %v]", l, V3{1}, V3{0, 1}, V3{0, 0, 1})
	}
	if l.Mul(&m, &n); l != (M3{m[1], m[2], m[0]}) {
		t.Fatalf("M3.Mul\nhave %v\nwant [%v %v %v]", l, m[1], m[2], m[0])
	}
	if l.Mul(&n, &m); l != (M3{{7, 1, 4}, {8, 2, 5}, {9, 3, 6}}) {
		t.Fatalf("M3.Mul\nhave %v\nwant %v", l, M3{{7, 1, 4}, {8, 2, 5}, {9, 3, 6}})
	}
	if l.Transpose(&m); l != (M3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}) {
		t.Fatalf("M3.Transpose\nhave %v\nwant %v", l, M3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	}
	if l.Invert(&n); l != (M3{n[1], n[2], n[0]}) {
		t.Fatalf("M3.Invert\nhave %v\nwant %v", l, M3{n[1], n[2], n[0]})
	}
}

func TestTS(t *testing.T) {
	var x, s M4

	x.Translate(-1, -2, -3)
	s.Scale(5, 5, 5)
	x.Mul(&x, &s)
	if x != (M4{{5}, {1: 5}, {2: 5}, {-1, -2, -3, 1}}) {
		t.Fatalf("T*S\nhave %v\nwant %v", x, M4{{5}, {1: 5}, {2: 5}, {-1, -2, -3, 1}})
	}
	v := V4{1, 1, 1, 1}
	v.Mul(&x, &v)
	if v != (V4{4, 3, 2, 1}) {
		t.Fatalf("TS*v\nhave %v\nwant %v", v, V4{4, 3, 2, 1})
	}
}

func near(m *M4, n mgl32.Mat4, eps float32) bool {
	for i := range m {
		for j := range m[i] {
			d := m[i][j] - n[i*4+j]
			if d < -eps || d > eps {
				return false
			}
		}
	}
	return true
}

func TestLookAt(t *testing.T) {
	for _, x := range [...][3]V3{
		{{0, 0, 5}, {0, 0, 0}, {0, 1, 0}},
		{{3, -2, 1}, {0, 1, 0}, {0, 1, 0}},
		{{-4, 8, -6}, {1, 1, 1}, {0, 0, 1}},
	} {
		var m M4
		m.LookAt(&x[0], &x[1], &x[2])
		n := mgl32.LookAtV(mgl32.Vec3(x[0]), mgl32.Vec3(x[1]), mgl32.Vec3(x[2]))
		if !near(&m, n, 1e-5) {
			t.Fatalf("M4.LookAt\nhave %v\nwant %v", m, n)
		}
	}
}

func TestPerspective(t *testing.T) {
	var m M4
	fovy, aspect := float32(math.Pi/3), float32(16.0/9.0)
	m.Perspective(fovy, aspect, 0.1, 500)
	n := mgl32.Perspective(fovy, aspect, 0.1, 500)
	// Same field of view, flipped Y.
	if d := m[0][0] - n[0]; d < -1e-5 || d > 1e-5 {
		t.Fatalf("M4.Perspective [0][0]\nhave %v\nwant %v", m[0][0], n[0])
	}
	if d := m[1][1] + n[5]; d < -1e-5 || d > 1e-5 {
		t.Fatalf("M4.Perspective [1][1]\nhave %v\nwant %v", m[1][1], -n[5])
	}
	// Depth in [0, 1].
	for _, x := range [...]struct{ z, want float32 }{{-0.1, 0}, {-500, 1}} {
		v := V4{0, 0, x.z, 1}
		v.Mul(&m, &v)
		if d := v[2]/v[3] - x.want; d < -1e-4 || d > 1e-4 {
			t.Fatalf("M4.Perspective: depth at z=%v\nhave %v\nwant %v", x.z, v[2]/v[3], x.want)
		}
	}
}

func TestInvertM4(t *testing.T) {
	var v, p, m, inv M4
	v.LookAt(&V3{2, 3, 4}, &V3{}, &V3{0, 1, 0})
	p.Perspective(1, 1.5, 0.1, 100)
	m.Mul(&p, &v)
	inv.Invert(&m)
	var f mgl32.Mat4
	for i := range m {
		copy(f[i*4:], m[i][:])
	}
	n := f.Inv()
	if !near(&inv, n, 1e-3) {
		t.Fatalf("M4.Invert\nhave %v\nwant %v", inv, n)
	}
	var id M4
	id.Mul(&m, &inv)
	if !near(&id, mgl32.Ident4(), 1e-4) {
		t.Fatalf("M4.Mul(m, m⁻¹)\nhave %v\nwant identity", id)
	}
}
