// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"unsafe"

	"github.com/gviegas/taa/linear"
)

// TransformLayout is the layout of per-frame camera
// data.
// It is defined as follows:
//
//	[0:16]  | view-projection matrix
//	[16:32] | previous view-projection matrix
//	[32:48] | inverse view-projection matrix
//	[48:64] | jitter matrix
//
// The view-projection matrices do not include the
// jitter.
type TransformLayout [64]float32

// SetViewProj sets the view-projection matrix.
func (l *TransformLayout) SetViewProj(m *linear.M4) { copyM4(l[:16], m) }

// SetPrevViewProj sets the previous view-projection
// matrix.
func (l *TransformLayout) SetPrevViewProj(m *linear.M4) { copyM4(l[16:32], m) }

// SetInvViewProj sets the inverse view-projection
// matrix.
func (l *TransformLayout) SetInvViewProj(m *linear.M4) { copyM4(l[32:48], m) }

// SetJitter sets the jitter matrix.
func (l *TransformLayout) SetJitter(m *linear.M4) { copyM4(l[48:64], m) }

// ViewProj returns the view-projection matrix.
func (l *TransformLayout) ViewProj() linear.M4 { return loadM4(l[:16]) }

// PrevViewProj returns the previous view-projection
// matrix.
func (l *TransformLayout) PrevViewProj() linear.M4 { return loadM4(l[16:32]) }

// InvViewProj returns the inverse view-projection
// matrix.
func (l *TransformLayout) InvViewProj() linear.M4 { return loadM4(l[32:48]) }

// Jitter returns the jitter matrix.
func (l *TransformLayout) Jitter() linear.M4 { return loadM4(l[48:64]) }

func copyM4(dst []float32, m *linear.M4) {
	copy(dst, unsafe.Slice((*float32)(unsafe.Pointer(m)), 16))
}

func loadM4(src []float32) (m linear.M4) {
	copy(unsafe.Slice((*float32)(unsafe.Pointer(&m)), 16), src)
	return
}

// DrawLayout is the layout of per-object data.
// It is defined as follows:
//
//	[0:16]  | world matrix
//	[16:32] | normal matrix
type DrawLayout [32]float32

// SetWorld sets the world matrix.
func (l *DrawLayout) SetWorld(m *linear.M4) { copyM4(l[:16], m) }

// SetNormal sets the normal matrix.
func (l *DrawLayout) SetNormal(m *linear.M4) { copyM4(l[16:32], m) }

// World returns the world matrix.
func (l *DrawLayout) World() linear.M4 { return loadM4(l[:16]) }

// Normal returns the normal matrix.
func (l *DrawLayout) Normal() linear.M4 { return loadM4(l[16:32]) }

// LightLayout is the layout of point light data.
// It is defined as follows:
//
//	[0:16]  | world matrix of the light's debug shape
//	[16:20] | position
//	[20:24] | color
//	[24:32] | (unused)
type LightLayout [32]float32

// SetWorld sets the world matrix.
func (l *LightLayout) SetWorld(m *linear.M4) { copyM4(l[:16], m) }

// SetPosition sets the position.
func (l *LightLayout) SetPosition(p *linear.V4) { copy(l[16:20], p[:]) }

// SetColor sets the color.
func (l *LightLayout) SetColor(c *linear.V3) { l[20], l[21], l[22], l[23] = c[0], c[1], c[2], 1 }

// World returns the world matrix.
func (l *LightLayout) World() linear.M4 { return loadM4(l[:16]) }

// Position returns the position.
func (l *LightLayout) Position() linear.V4 { return linear.V4(l[16:20]) }

// Color returns the color.
func (l *LightLayout) Color() linear.V3 { return linear.V3{l[20], l[21], l[22]} }

// ResolveLayout is the layout of resolve parameters.
// It is defined as follows:
//
//	[0]    | whether the history must be discarded
//	[1]    | maximum number of accumulated samples
//	[2]    | velocity rejection scale
//	[3:16] | (unused)
type ResolveLayout [16]float32

// SetClear sets whether the history must be discarded.
func (l *ResolveLayout) SetClear(clear bool) {
	var bool32 uint32
	if clear {
		bool32 = 1
	}
	l[0] = *(*float32)(unsafe.Pointer(&bool32))
}

// SetMaxSamples sets the maximum number of samples.
func (l *ResolveLayout) SetMaxSamples(n float32) { l[1] = n }

// SetVelocityScale sets the velocity rejection scale.
func (l *ResolveLayout) SetVelocityScale(s float32) { l[2] = s }

// Clear returns whether the history must be discarded.
func (l *ResolveLayout) Clear() bool { return *(*uint32)(unsafe.Pointer(&l[0])) != 0 }

// MaxSamples returns the maximum number of samples.
func (l *ResolveLayout) MaxSamples() float32 { return l[1] }

// VelocityScale returns the velocity rejection scale.
func (l *ResolveLayout) VelocityScale() float32 { return l[2] }

// Sizes of vertex data.
const (
	PositionSize = 12
	NormalSize   = 12
)

func view[T any](p []byte) *T {
	if uintptr(len(p)) < unsafe.Sizeof(*new(T)) {
		return nil
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(p)))
}

// AsTransform interprets p as a TransformLayout.
// It returns nil if p is too short.
func AsTransform(p []byte) *TransformLayout { return view[TransformLayout](p) }

// AsDraw interprets p as a DrawLayout.
// It returns nil if p is too short.
func AsDraw(p []byte) *DrawLayout { return view[DrawLayout](p) }

// AsLight interprets the i-th element of p as a
// LightLayout. It returns nil if p is too short.
func AsLight(p []byte, i int) *LightLayout {
	off := i * int(unsafe.Sizeof(LightLayout{}))
	if i < 0 || off >= len(p) {
		return nil
	}
	return view[LightLayout](p[off:])
}

// AsResolve interprets p as a ResolveLayout.
// It returns nil if p is too short.
func AsResolve(p []byte) *ResolveLayout { return view[ResolveLayout](p) }
