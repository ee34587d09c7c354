// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Descriptor management.
//
// Every pipeline uses the same descriptor table, which
// is organized as follows:
//
//	GlobalHeap | one copy per frame in flight
//	DrawHeap   | one copy per object
//	ImageHeap  | one copy per history parity
//
// The descriptors of each heap are listed below.
// Their numbers match the bindings in the WGSL sources,
// where the heap index is the group.
//
//	GlobalHeap | 0 TransformLayout (constant)
//	           | 1 ResolveLayout (constant)
//	           | 2 []LightLayout (buffer)
//	DrawHeap   | 0 DrawLayout (constant)
//	ImageHeap  | 0 scene color (texture)
//	           | 1 color history (texture)
//	           | 2 velocity (texture)
//	           | 3 velocity history (texture)
//	           | 4 depth (texture)
//	           | 5 color (storage image)
//	           | 6 color (texture)
//	           | 7 sampler

package shader

import (
	"unsafe"

	"github.com/gviegas/taa/driver"
)

// Heap indices.
const (
	GlobalHeap = iota
	DrawHeap
	ImageHeap

	maxHeap
)

// Descriptor numbers.
const (
	TransformNr = 0
	ResolveNr   = 1
	LightNr     = 2

	DrawNr = 0

	SceneNr        = 0
	HistoryNr      = 1
	VelocityNr     = 2
	PrevVelocityNr = 3
	DepthNr        = 4
	StoreNr        = 5
	ColorNr        = 6
	SamplerNr      = 7
)

// These spans are given in number of blocks.
// Each block has blockSize bytes.
const (
	blockSize = 256

	TransformSpan = (unsafe.Sizeof(TransformLayout{}) + blockSize - 1) &^ (blockSize - 1) / blockSize
	resolveSpan   = (unsafe.Sizeof(ResolveLayout{}) + blockSize - 1) &^ (blockSize - 1) / blockSize
	drawSpan      = (unsafe.Sizeof(DrawLayout{}) + blockSize - 1) &^ (blockSize - 1) / blockSize
)

// BlockSize is the alignment of buffer ranges.
const BlockSize = blockSize

// LightSize is the size in bytes of a LightLayout.
const LightSize = int64(unsafe.Sizeof(LightLayout{}))

func desc(typ driver.DescType, nr int, stages driver.Stage) driver.Descriptor {
	return driver.Descriptor{
		Type:   typ,
		Stages: stages,
		Nr:     nr,
		Len:    1,
	}
}

func newHeaps(gpu driver.GPU) (heaps [maxHeap]driver.DescHeap, err error) {
	for i, ds := range [maxHeap][]driver.Descriptor{
		GlobalHeap: {
			desc(driver.DConstant, TransformNr, driver.SVertex|driver.SFragment|driver.SCompute),
			desc(driver.DConstant, ResolveNr, driver.SCompute),
			desc(driver.DBuffer, LightNr, driver.SVertex),
		},
		DrawHeap: {
			desc(driver.DConstant, DrawNr, driver.SVertex),
		},
		ImageHeap: {
			desc(driver.DTexture, SceneNr, driver.SCompute),
			desc(driver.DTexture, HistoryNr, driver.SCompute),
			desc(driver.DTexture, VelocityNr, driver.SCompute),
			desc(driver.DTexture, PrevVelocityNr, driver.SCompute),
			desc(driver.DTexture, DepthNr, driver.SCompute),
			desc(driver.DImage, StoreNr, driver.SCompute),
			desc(driver.DTexture, ColorNr, driver.SFragment),
			desc(driver.DSampler, SamplerNr, driver.SFragment|driver.SCompute),
		},
	} {
		heaps[i], err = gpu.NewDescHeap(ds)
		if err != nil {
			for j := range i {
				heaps[j].Destroy()
			}
			return
		}
	}
	return
}

// Images are the image views referred by a copy of
// the image heap.
type Images struct {
	Scene        driver.ImageView
	History      driver.ImageView
	Velocity     driver.ImageView
	PrevVelocity driver.ImageView
	Depth        driver.ImageView
	Color        driver.ImageView
}

// Table manages descriptor usage within a single
// driver.DescTable.
type Table struct {
	dt    driver.DescTable
	heaps [maxHeap]driver.DescHeap
	// Cached heap copy counts.
	dcpy [maxHeap]int
	cbuf driver.Buffer
	// Offsets into the constant buffer.
	// Every copy of the global heap comes before
	// the copies of the draw heap.
	coff [maxHeap]int64
	// Cached cbuf.Bytes().
	// Note that it has no offset applied.
	cs []byte
}

// NewTable creates a new descriptor table.
// globalN is the number of frames in flight and drawN
// is the number of objects. The image heap always has
// two copies.
func NewTable(gpu driver.GPU, globalN, drawN int) (*Table, error) {
	if globalN < 1 || drawN < 0 {
		panic("descriptor heap allocation with invalid count")
	}
	heaps, err := newHeaps(gpu)
	if err != nil {
		return nil, err
	}
	t := &Table{heaps: heaps}
	free := func() {
		for _, h := range t.heaps {
			h.Destroy()
		}
	}
	// NOTE: The order here must match the
	// heap indices.
	t.dcpy = [maxHeap]int{globalN, drawN, 2}
	for i, n := range t.dcpy {
		if err := heaps[i].New(n); err != nil {
			free()
			return nil, err
		}
	}
	if t.dt, err = gpu.NewDescTable(heaps[:]); err != nil {
		free()
		return nil, err
	}
	return t, nil
}

// Table returns the driver.DescTable.
func (t *Table) Table() driver.DescTable { return t.dt }

// Count returns the number of copies of the given heap.
func (t *Table) Count(heap int) int { return t.dcpy[heap] }

// SetDraws changes the number of copies of the draw heap.
// It invalidates the constant buffer, which must be set
// again.
func (t *Table) SetDraws(n int) error {
	if n < 0 {
		panic("descriptor heap allocation with invalid count")
	}
	if err := t.heaps[DrawHeap].New(n); err != nil {
		return err
	}
	t.dcpy[DrawHeap] = n
	t.cbuf, t.cs = nil, nil
	return nil
}

// SetGraph calls cb.SetDescTableGraph to set the given
// heap copies.
// cb must be recording commands.
func (t *Table) SetGraph(cb driver.CmdBuffer, global, draw, image int) {
	t.validateHeapCopy(GlobalHeap, global)
	t.validateHeapCopy(DrawHeap, draw)
	t.validateHeapCopy(ImageHeap, image)
	cb.SetDescTableGraph(t.dt, 0, []int{global, draw, image})
}

// SetComp calls cb.SetDescTableComp to set the given
// heap copies.
// The draw heap is not used by compute pipelines.
func (t *Table) SetComp(cb driver.CmdBuffer, global, image int) {
	t.validateHeapCopy(GlobalHeap, global)
	t.validateHeapCopy(ImageHeap, image)
	cb.SetDescTableComp(t.dt, GlobalHeap, []int{global})
	cb.SetDescTableComp(t.dt, ImageHeap, []int{image})
}

// ConstSize returns the number of bytes consumed by
// the constant descriptors stored in the constant
// buffer (i.e., every constant but the transforms).
func (t *Table) ConstSize() int {
	spn0 := t.dcpy[GlobalHeap] * int(resolveSpan)
	spn1 := t.dcpy[DrawHeap] * int(drawSpan)
	return (spn0 + spn1) * blockSize
}

// SetConstBuf sets the buffer for constant descriptors.
// This buffer must be host visible and must have been
// created with the driver.UShaderConst usage flag.
// The constants will consume exactly t.ConstSize()
// bytes from buf, starting at offset off.
// off must be aligned to 256 bytes.
// It returns the previously set buffer, if any.
func (t *Table) SetConstBuf(buf driver.Buffer, off int64) driver.Buffer {
	var cs []byte
	switch {
	case buf == nil:
		off = 0

	case off&(blockSize-1) != 0:
		panic("misaligned constant buffer offset")

	case buf.Cap()-off < int64(t.ConstSize()):
		panic("constant buffer range out of bounds")

	default:
		cs = buf.Bytes()
		bufs, offs, sz := []driver.Buffer{buf}, []int64{off}, []int64{0}

		// Global heap constants:
		//	1 | ResolveLayout
		t.coff[GlobalHeap] = offs[0]
		sz[0] = int64(resolveSpan * blockSize)
		for i := range t.dcpy[GlobalHeap] {
			t.heaps[GlobalHeap].SetBuffer(i, ResolveNr, 0, bufs, offs, sz)
			offs[0] += sz[0]
		}

		// Draw heap constants:
		//	0 | DrawLayout
		t.coff[DrawHeap] = offs[0]
		sz[0] = int64(drawSpan * blockSize)
		for i := range t.dcpy[DrawHeap] {
			t.heaps[DrawHeap].SetBuffer(i, DrawNr, 0, bufs, offs, sz)
			offs[0] += sz[0]
		}
	}
	pbuf := t.cbuf
	t.cbuf = buf
	t.cs = cs
	return pbuf
}

// SetTransform sets the transform buffer range of a
// copy of the global heap.
// The range must have TransformSpan blocks.
func (t *Table) SetTransform(cpy int, buf driver.Buffer, off int64) {
	t.validateHeapCopy(GlobalHeap, cpy)
	if off&(blockSize-1) != 0 {
		panic("misaligned constant buffer offset")
	}
	t.heaps[GlobalHeap].SetBuffer(cpy, TransformNr, 0, []driver.Buffer{buf}, []int64{off}, []int64{int64(TransformSpan * blockSize)})
}

// SetLights sets the light buffer of a copy of the
// global heap.
func (t *Table) SetLights(cpy int, buf driver.Buffer, size int64) {
	t.validateHeapCopy(GlobalHeap, cpy)
	t.heaps[GlobalHeap].SetBuffer(cpy, LightNr, 0, []driver.Buffer{buf}, []int64{0}, []int64{size})
}

// SetImages sets the image views of a copy of the
// image heap.
func (t *Table) SetImages(cpy int, im *Images) {
	t.validateHeapCopy(ImageHeap, cpy)
	h := t.heaps[ImageHeap]
	for _, x := range [...]struct {
		nr int
		iv driver.ImageView
	}{
		{SceneNr, im.Scene},
		{HistoryNr, im.History},
		{VelocityNr, im.Velocity},
		{PrevVelocityNr, im.PrevVelocity},
		{DepthNr, im.Depth},
		{StoreNr, im.Color},
		{ColorNr, im.Color},
	} {
		if x.iv == nil {
			panic("nil image view")
		}
		h.SetImage(cpy, x.nr, 0, []driver.ImageView{x.iv})
	}
}

// SetSampler sets the sampler of every copy of the
// image heap.
func (t *Table) SetSampler(splr driver.Sampler) {
	if splr == nil {
		panic("nil sampler")
	}
	for i := range t.dcpy[ImageHeap] {
		t.heaps[ImageHeap].SetSampler(i, SamplerNr, 0, []driver.Sampler{splr})
	}
}

// Resolve returns a pointer to GPU memory mapping to a
// given ResolveLayout of the global heap.
// A valid constant buffer must be set when this method
// is called.
// Calling t.SetConstBuf invalidates any pointers
// returned by this method.
func (t *Table) Resolve(cpy int) *ResolveLayout {
	t.validateHeapCopy(GlobalHeap, cpy)
	off := t.coff[GlobalHeap] + int64(resolveSpan)*blockSize*int64(cpy)
	return (*ResolveLayout)(unsafe.Pointer(unsafe.SliceData(t.cs[off:])))
}

// Draw returns a pointer to GPU memory mapping to a
// given DrawLayout of the draw heap.
// A valid constant buffer must be set when this method
// is called.
// Calling t.SetConstBuf invalidates any pointers
// returned by this method.
func (t *Table) Draw(cpy int) *DrawLayout {
	t.validateHeapCopy(DrawHeap, cpy)
	off := t.coff[DrawHeap] + int64(drawSpan)*blockSize*int64(cpy)
	return (*DrawLayout)(unsafe.Pointer(unsafe.SliceData(t.cs[off:])))
}

// Free invalidates t and destroys the driver resources.
//
// NOTE: The constant buffer is not destroyed by this
// method; one can retrieve the buffer by calling
// t.SetConstBuf(nil, _) prior to calling t.Free.
func (t *Table) Free() {
	if t.dt != nil {
		t.dt.Destroy()
		for _, h := range t.heaps {
			h.Destroy()
		}
	}
	*t = Table{}
}

// NOTE: Tests will fail if the panic message changes.
func (t *Table) validateHeapCopy(heap int, cpy int) {
	if uint(t.dcpy[heap]) <= uint(cpy) {
		panic("descriptor heap copy out of bounds")
	}
}
