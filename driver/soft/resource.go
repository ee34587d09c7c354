// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"math"
	"sync"

	"github.com/x448/float16"

	"github.com/gviegas/taa/driver"
)

// track is the validation state of a resource.
type track struct {
	layout  driver.Layout
	pending driver.Access
	gone    bool
}

// Buffer implements driver.Buffer.
type Buffer struct {
	track
	data    []byte
	visible bool
	usg     driver.Usage
}

// Visible returns whether the buffer is host visible.
func (b *Buffer) Visible() bool { return b.visible }

// Bytes returns the buffer's memory if it is host visible.
func (b *Buffer) Bytes() []byte {
	if !b.visible {
		return nil
	}
	return b.data
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int64 { return int64(len(b.data)) }

// Destroy destroys the buffer.
func (b *Buffer) Destroy() { b.gone = true }

// Image implements driver.Image.
// Texels are stored as four float32 channels and
// quantized to the image format on store.
type Image struct {
	track
	pf   driver.PixelFmt
	w, h int
	usg  driver.Usage
	data []float32
}

func newImage(pf driver.PixelFmt, w, h int, usg driver.Usage) *Image {
	return &Image{
		pf:   pf,
		w:    w,
		h:    h,
		usg:  usg,
		data: make([]float32, w*h*4),
	}
}

// NewView creates a new image view.
func (m *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if typ != driver.IView2D || layer != 0 || layers != 1 || level != 0 || levels != 1 {
		return nil, errUnsupported
	}
	return &View{img: m}, nil
}

// Destroy destroys the image.
func (m *Image) Destroy() { m.gone = true }

// Format returns the image's pixel format.
func (m *Image) Format() driver.PixelFmt { return m.pf }

// Width returns the image's width.
func (m *Image) Width() int { return m.w }

// Height returns the image's height.
func (m *Image) Height() int { return m.h }

// Layout returns the image's current layout.
// It must not be called while work that uses the
// image is executing.
func (m *Image) Layout() driver.Layout { return m.layout }

// Load returns the texel at (x, y).
// Coordinates are clamped to the image bounds.
func (m *Image) Load(x, y int) [4]float32 {
	x = min(max(x, 0), m.w-1)
	y = min(max(y, 0), m.h-1)
	i := (y*m.w + x) * 4
	return [4]float32(m.data[i : i+4])
}

// Store stores c at (x, y).
// Out of bounds stores are discarded.
func (m *Image) Store(x, y int, c [4]float32) {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return
	}
	i := (y*m.w + x) * 4
	c = quantize(m.pf, c)
	copy(m.data[i:i+4], c[:])
}

// Size returns the width and height of the image.
func (m *Image) Size() (int, int) { return m.w, m.h }

// Fill sets every texel of the image to c.
func (m *Image) Fill(c [4]float32) {
	c = quantize(m.pf, c)
	for i := 0; i < len(m.data); i += 4 {
		copy(m.data[i:i+4], c[:])
	}
}

func quantize(pf driver.PixelFmt, c [4]float32) [4]float32 {
	switch pf {
	case driver.RGBA8un, driver.BGRA8un:
		for i := range c {
			c[i] = unorm8(c[i])
		}
	case driver.RGBA8sRGB, driver.BGRA8sRGB:
		for i := range 3 {
			c[i] = srgbToLinear(unorm8(linearToSRGB(c[i])))
		}
		c[3] = unorm8(c[3])
	case driver.RG8un:
		c = [4]float32{unorm8(c[0]), unorm8(c[1]), 0, 1}
	case driver.R8un:
		c = [4]float32{unorm8(c[0]), 0, 0, 1}
	case driver.RGBA16f:
		for i := range c {
			c[i] = half(c[i])
		}
	case driver.RG16f:
		c = [4]float32{half(c[0]), half(c[1]), 0, 1}
	case driver.R16f:
		c = [4]float32{half(c[0]), 0, 0, 1}
	case driver.RG32f:
		c = [4]float32{c[0], c[1], 0, 1}
	case driver.R32f:
		c = [4]float32{c[0], 0, 0, 1}
	case driver.D16un:
		c = [4]float32{float32(math.Round(float64(clamp01(c[0]))*65535)) / 65535, 0, 0, 1}
	case driver.D32f:
		c = [4]float32{c[0], 0, 0, 1}
	}
	return c
}

func half(f float32) float32 { return float16.Fromfloat32(f).Float32() }

func clamp01(f float32) float32 { return min(max(f, 0), 1) }

func unorm8(f float32) float32 {
	return float32(math.Round(float64(clamp01(f))*255)) / 255
}

func linearToSRGB(f float32) float32 {
	f = clamp01(f)
	if f <= 0.0031308 {
		return f * 12.92
	}
	return float32(1.055*math.Pow(float64(f), 1/2.4) - 0.055)
}

func srgbToLinear(f float32) float32 {
	if f <= 0.04045 {
		return f / 12.92
	}
	return float32(math.Pow((float64(f)+0.055)/1.055, 2.4))
}

// View implements driver.ImageView.
type View struct {
	img  *Image
	gone bool
}

// Image returns the view's image.
func (v *View) Image() driver.Image { return v.img }

// Texels returns the view's image as a *Image.
func (v *View) Texels() *Image { return v.img }

// Destroy destroys the view.
func (v *View) Destroy() { v.gone = true }

// Sampler implements driver.Sampler.
type Sampler struct {
	spln driver.Sampling
}

// Destroy destroys the sampler.
func (s *Sampler) Destroy() {}

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct {
	data []byte
}

// Destroy destroys the shader code.
func (c *ShaderCode) Destroy() { c.data = nil }

// QueryPool implements driver.QueryPool.
// Timestamps are given in nanoseconds.
type QueryPool struct {
	mu  sync.Mutex
	ts  []uint64
	set []bool
}

// Len returns the number of queries in the pool.
func (p *QueryPool) Len() int { return len(p.ts) }

// Timestamps copies query results into ts.
func (p *QueryPool) Timestamps(start int, ts []uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if start < 0 || start+len(ts) > len(p.ts) {
		return false
	}
	for i := range ts {
		if !p.set[start+i] {
			return false
		}
		ts[i] = p.ts[start+i]
	}
	return true
}

// Period returns the number of nanoseconds per tick.
func (p *QueryPool) Period() float64 { return 1 }

// Destroy destroys the query pool.
func (p *QueryPool) Destroy() {}

func (p *QueryPool) reset(start, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := start; i < start+n && i < len(p.set); i++ {
		p.set[i] = false
	}
}

func (p *QueryPool) write(query int, t uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if query >= 0 && query < len(p.ts) {
		p.ts[query] = t
		p.set[query] = true
	}
}

// DescHeap implements driver.DescHeap.
type DescHeap struct {
	ds     []driver.Descriptor
	nr     map[int]int
	copies [][]descBinding
}

type descBinding struct {
	buf   []driver.Buffer
	off   []int64
	size  []int64
	views []driver.ImageView
	splr  []driver.Sampler
}

// New creates storage for n heap copies.
func (h *DescHeap) New(n int) error {
	if n == len(h.copies) {
		return nil
	}
	h.copies = make([][]descBinding, n)
	for i := range h.copies {
		h.copies[i] = make([]descBinding, len(h.ds))
		for j, d := range h.ds {
			switch d.Type {
			case driver.DBuffer, driver.DConstant:
				h.copies[i][j].buf = make([]driver.Buffer, d.Len)
				h.copies[i][j].off = make([]int64, d.Len)
				h.copies[i][j].size = make([]int64, d.Len)
			case driver.DImage, driver.DTexture:
				h.copies[i][j].views = make([]driver.ImageView, d.Len)
			case driver.DSampler:
				h.copies[i][j].splr = make([]driver.Sampler, d.Len)
			}
		}
	}
	return nil
}

// SetBuffer sets buffer ranges of a descriptor.
func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	b := &h.copies[cpy][h.nr[nr]]
	copy(b.buf[start:], buf)
	copy(b.off[start:], off)
	copy(b.size[start:], size)
}

// SetImage sets image views of a descriptor.
func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	copy(h.copies[cpy][h.nr[nr]].views[start:], iv)
}

// SetSampler sets samplers of a descriptor.
func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	copy(h.copies[cpy][h.nr[nr]].splr[start:], splr)
}

// Count returns the number of heap copies.
func (h *DescHeap) Count() int { return len(h.copies) }

// Destroy destroys the descriptor heap.
func (h *DescHeap) Destroy() { h.copies = nil }

// DescTable implements driver.DescTable.
type DescTable struct {
	heaps []*DescHeap
}

// Destroy destroys the descriptor table.
func (t *DescTable) Destroy() {}
