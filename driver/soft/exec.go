// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"fmt"
	"math"
	"slices"

	"github.com/gviegas/taa/driver"
)

// Exec provides a program with access to the state of
// the draw call or dispatch being executed.
// Accessors validate resource usage. On failure they
// return nil and the command fails after the program
// returns.
type Exec struct {
	s      *execState
	pl     *Pipeline
	table  *DescTable
	copies []int
	writes []*track
	err    error
}

func (e *Exec) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Exec) finish() error {
	if e.err != nil {
		return e.err
	}
	for _, t := range e.writes {
		e.s.gpu.wrote(t, driver.AShaderWrite)
	}
	return nil
}

// Defined returns whether the pipeline's shader functions
// were built with the given feature.
func (e *Exec) Defined(feature string) bool {
	return slices.Contains(e.pl.defines, feature)
}

// Graph returns the graphics state of the pipeline.
// It returns nil for compute pipelines.
func (e *Exec) Graph() *driver.GraphState { return e.pl.graph }

// Viewport returns the current viewport.
func (e *Exec) Viewport() driver.Viewport { return e.s.vp }

func (e *Exec) binding(heap, nr, idx int) (*descBinding, driver.DescType) {
	if e.table == nil || heap < 0 || heap >= len(e.table.heaps) {
		e.fail(fmt.Errorf("%w: heap %d", errBinding, heap))
		return nil, 0
	}
	h := e.table.heaps[heap]
	i, ok := h.nr[nr]
	if !ok || e.copies[heap] >= len(h.copies) || idx < 0 || idx >= h.ds[i].Len {
		e.fail(fmt.Errorf("%w: heap %d descriptor %d[%d]", errBinding, heap, nr, idx))
		return nil, 0
	}
	return &h.copies[e.copies[heap]][i], h.ds[i].Type
}

func (e *Exec) buffer(heap, nr, idx int, write bool) []byte {
	b, typ := e.binding(heap, nr, idx)
	if b == nil {
		return nil
	}
	if typ != driver.DBuffer && (write || typ != driver.DConstant) {
		e.fail(fmt.Errorf("%w: descriptor %d is not a buffer", errBinding, nr))
		return nil
	}
	buf, _ := b.buf[idx].(*Buffer)
	if buf == nil {
		e.fail(fmt.Errorf("%w: descriptor %d not set", errBinding, nr))
		return nil
	}
	if err := e.s.gpu.access(&buf.track, "buffer descriptor"); err != nil {
		e.fail(err)
		return nil
	}
	off, size := b.off[idx], b.size[idx]
	if off < 0 || size < 0 || off+size > buf.Cap() {
		e.fail(fmt.Errorf("%w: buffer descriptor range", errRange))
		return nil
	}
	if write {
		e.writes = append(e.writes, &buf.track)
	}
	return buf.data[off : off+size]
}

// Constant returns the bytes of a constant or read-only
// storage buffer descriptor.
func (e *Exec) Constant(heap, nr, idx int) []byte { return e.buffer(heap, nr, idx, false) }

// Storage returns the bytes of a storage buffer descriptor
// that the program writes to.
func (e *Exec) Storage(heap, nr, idx int) []byte { return e.buffer(heap, nr, idx, true) }

func (e *Exec) image(heap, nr, idx int, want driver.DescType, layout ...driver.Layout) *Image {
	b, typ := e.binding(heap, nr, idx)
	if b == nil {
		return nil
	}
	if typ != want {
		e.fail(fmt.Errorf("%w: descriptor %d has wrong type", errBinding, nr))
		return nil
	}
	v, _ := b.views[idx].(*View)
	if v == nil || v.gone {
		e.fail(fmt.Errorf("%w: descriptor %d not set", errBinding, nr))
		return nil
	}
	if err := e.s.gpu.image(v.img, fmt.Sprintf("image descriptor %d", nr), layout...); err != nil {
		e.fail(err)
		return nil
	}
	return v.img
}

// Texture returns the image of a sampled texture
// descriptor. The image must be in the LShaderRead
// or LDSRead layout.
func (e *Exec) Texture(heap, nr, idx int) *Image {
	return e.image(heap, nr, idx, driver.DTexture, driver.LShaderRead, driver.LDSRead)
}

// Image returns the image of a storage image descriptor
// that the program writes to. The image must be in the
// LShaderStore layout.
func (e *Exec) Image(heap, nr, idx int) *Image {
	m := e.image(heap, nr, idx, driver.DImage, driver.LShaderStore)
	if m != nil {
		e.writes = append(e.writes, &m.track)
	}
	return m
}

// Target returns the image of the i-th color target of
// the current render pass.
func (e *Exec) Target(i int) *Image {
	if i < 0 || i >= len(e.s.color) {
		e.fail(fmt.Errorf("%w: color target %d", errRange, i))
		return nil
	}
	return e.s.color[i].Color.(*View).img
}

// DepthTarget returns the image of the depth/stencil
// target of the current render pass, if any.
func (e *Exec) DepthTarget() *Image {
	if e.s.ds == nil {
		return nil
	}
	return e.s.ds.DS.(*View).img
}

// Vertex returns the bytes of the i-th vertex buffer,
// starting at its bound offset.
func (e *Exec) Vertex(i int) []byte {
	if i < 0 || i >= len(e.s.vbuf) || e.s.vbuf[i] == nil {
		e.fail(fmt.Errorf("%w: vertex buffer %d", errBinding, i))
		return nil
	}
	return e.s.vbuf[i].data[e.s.voff[i]:]
}

// Index returns the index at position i of the bound
// index buffer.
func (e *Exec) Index(i int) int {
	b := e.s.ibuf
	if b == nil {
		e.fail(fmt.Errorf("%w: no index buffer", errBinding))
		return 0
	}
	off := e.s.ioff + int64(i)*int64(e.s.ifmt)
	if i < 0 || off+int64(e.s.ifmt) > b.Cap() {
		e.fail(fmt.Errorf("%w: index %d", errRange, i))
		return 0
	}
	p := b.data[off:]
	if e.s.ifmt == driver.Index16 {
		return int(p[0]) | int(p[1])<<8
	}
	return int(p[0]) | int(p[1])<<8 | int(p[2])<<16 | int(p[3])<<24
}

// Float32 decodes the little-endian float32 at byte
// offset off of p.
func Float32(p []byte, off int) float32 {
	p = p[off : off+4]
	return math.Float32frombits(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24)
}

// Uint32 decodes the little-endian uint32 at byte
// offset off of p.
func Uint32(p []byte, off int) uint32 {
	p = p[off : off+4]
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}
