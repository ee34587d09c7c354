// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"testing"

	"github.com/gviegas/taa/driver"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0}

type surface struct{ w, h int }

func (s *surface) Width() int  { return s.w }
func (s *surface) Height() int { return s.h }

func openGPU(t *testing.T) *GPU {
	t.Helper()
	var d Driver
	g, err := d.Open()
	if err != nil {
		t.Fatalf("Driver.Open:\nhave %v\nwant nil", err)
	}
	t.Cleanup(d.Close)
	return g.(*GPU)
}

func commit(t *testing.T, g *GPU, cb driver.CmdBuffer) error {
	t.Helper()
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
	}
	ch := make(chan *driver.WorkItem, 1)
	if err := g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}}, ch); err != nil {
		t.Fatalf("GPU.Commit:\nhave %v\nwant nil", err)
	}
	return (<-ch).Err
}

func newTarget(t *testing.T, g *GPU, pf driver.PixelFmt, w, h int) (*Image, driver.ImageView) {
	t.Helper()
	img, err := g.NewImage(pf, driver.Dim3D{Width: w, Height: h}, 1, 1, 1, driver.URenderTarget|driver.UShaderRead)
	if err != nil {
		t.Fatal(err)
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	return img.(*Image), view
}

func TestRegister(t *testing.T) {
	for _, d := range driver.Drivers() {
		if d.Name() == driverName {
			return
		}
	}
	t.Fatalf("driver.Drivers: %q not registered", driverName)
}

func TestShaderCode(t *testing.T) {
	g := openGPU(t)
	if _, err := g.NewShaderCode(spirv); err != nil {
		t.Fatalf("GPU.NewShaderCode:\nhave %v\nwant nil", err)
	}
	if _, err := g.NewShaderCode([]byte("@compute fn main() {}")); err != errBadCode {
		t.Fatalf("GPU.NewShaderCode:\nhave %v\nwant %v", err, errBadCode)
	}
}

func TestQuantize(t *testing.T) {
	for _, x := range [...]struct {
		pf   driver.PixelFmt
		in   [4]float32
		want [4]float32
	}{
		{driver.RGBA32f, [4]float32{0.1, 2, -3, 4}, [4]float32{0.1, 2, -3, 4}},
		{driver.RGBA16f, [4]float32{0.5, 1, 2, 0.25}, [4]float32{0.5, 1, 2, 0.25}},
		{driver.RG16f, [4]float32{0.5, -0.25, 2, 2}, [4]float32{0.5, -0.25, 0, 1}},
		{driver.RGBA8un, [4]float32{-1, 2, 1, 0}, [4]float32{0, 1, 1, 0}},
		{driver.D32f, [4]float32{0.75, 1, 1, 1}, [4]float32{0.75, 0, 0, 1}},
	} {
		if have := quantize(x.pf, x.in); have != x.want {
			t.Fatalf("quantize(%d, %v):\nhave %v\nwant %v", x.pf, x.in, have, x.want)
		}
	}
	// Not exactly representable in half precision.
	if have := quantize(driver.RGBA16f, [4]float32{0.1})[0]; have == 0.1 || have < 0.0999 || have > 0.1001 {
		t.Fatalf("quantize(RGBA16f, 0.1):\nhave %v", have)
	}
}

func TestPassLayout(t *testing.T) {
	g := openGPU(t)
	img, view := newTarget(t, g, driver.RGBA16f, 4, 4)
	cb, _ := g.NewCmdBuffer()

	cb.Begin()
	cb.BeginPass(4, 4, 1, []driver.ColorTarget{{Color: view, Load: driver.LClear, Clear: driver.ClearFloat32(1, 0, 0, 1)}}, nil)
	cb.EndPass()
	if err := commit(t, g, cb); !errors.Is(err, driver.ErrLayout) {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant %v", err, driver.ErrLayout)
	}

	cb.Begin()
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncAfter: driver.SColorOutput, AccessAfter: driver.AColorWrite},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LColorTarget,
		Img:          img,
		Layers:       1,
		Levels:       1,
	}})
	cb.BeginPass(4, 4, 1, []driver.ColorTarget{{Color: view, Load: driver.LClear, Clear: driver.ClearFloat32(1, 0, 0, 1)}}, nil)
	cb.EndPass()
	if err := commit(t, g, cb); err != nil {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant nil", err)
	}
	if have := img.Load(3, 3); have != [4]float32{1, 0, 0, 1} {
		t.Fatalf("Image.Load:\nhave %v\nwant [1 0 0 1]", have)
	}
	if img.Layout() != driver.LColorTarget {
		t.Fatalf("Image.Layout:\nhave %v\nwant %v", img.Layout(), driver.LColorTarget)
	}
}

func TestHazard(t *testing.T) {
	g := openGPU(t)
	src, _ := g.NewBuffer(256, true, driver.UCopySrc)
	dst, _ := g.NewBuffer(256, false, driver.UCopyDst|driver.UCopySrc)
	other, _ := g.NewBuffer(256, false, driver.UCopyDst)
	copy(src.Bytes(), "abcd")
	cb, _ := g.NewCmdBuffer()

	cb.Begin()
	cb.CopyBuffer(&driver.BufferCopy{From: src, To: dst, Size: 4})
	cb.CopyBuffer(&driver.BufferCopy{From: dst, To: other, Size: 4})
	if err := commit(t, g, cb); !errors.Is(err, driver.ErrHazard) {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant %v", err, driver.ErrHazard)
	}

	// The failed execution left dst with a pending write.
	cb.Begin()
	cb.Barrier([]driver.Barrier{{
		SyncBefore:   driver.SCopy,
		SyncAfter:    driver.SCopy,
		AccessBefore: driver.ACopyWrite,
		AccessAfter:  driver.ACopyRead,
	}})
	cb.CopyBuffer(&driver.BufferCopy{From: dst, To: other, Size: 4})
	if err := commit(t, g, cb); err != nil {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant nil", err)
	}
	if have := string(other.(*Buffer).data[:4]); have != "abcd" {
		t.Fatalf("CopyBuffer:\nhave %q\nwant %q", have, "abcd")
	}
}

func TestDispatch(t *testing.T) {
	g := openGPU(t)
	RegisterCompute("fill_test", func(e *Exec, grp [3]int) {
		m := e.Image(0, 0, 0)
		if m == nil {
			return
		}
		v := float32(0)
		if e.Defined("ONE") {
			v = 1
		}
		for y := range grp[1] {
			for x := range grp[0] {
				m.Store(x, y, [4]float32{v, v, v, v})
			}
		}
	})
	img, view := newTarget(t, g, driver.RGBA32f, 2, 2)
	heap, _ := g.NewDescHeap([]driver.Descriptor{{Type: driver.DImage, Stages: driver.SCompute, Nr: 0, Len: 1}})
	heap.New(1)
	heap.SetImage(0, 0, 0, []driver.ImageView{view})
	table, _ := g.NewDescTable([]driver.DescHeap{heap})
	code, _ := g.NewShaderCode(spirv)
	pl, err := g.NewPipeline(&driver.CompState{
		Func: driver.ShaderFunc{Code: code, Name: "fill_test", Defines: []string{"ONE"}},
		Desc: table,
	})
	if err != nil {
		t.Fatalf("GPU.NewPipeline:\nhave %v\nwant nil", err)
	}
	cb, _ := g.NewCmdBuffer()
	cb.Begin()
	cb.Transition([]driver.Transition{{
		Barrier:     driver.Barrier{SyncAfter: driver.SComputeShading, AccessAfter: driver.AShaderWrite},
		LayoutAfter: driver.LShaderStore,
		Img:         img,
	}})
	cb.SetPipeline(pl)
	cb.SetDescTableComp(table, 0, []int{0})
	cb.Dispatch(2, 2, 1)
	if err := commit(t, g, cb); err != nil {
		t.Fatalf("WorkItem.Err:\nhave %v\nwant nil", err)
	}
	if have := img.Load(1, 1); have != [4]float32{1, 1, 1, 1} {
		t.Fatalf("Image.Load:\nhave %v\nwant [1 1 1 1]", have)
	}
	if n := pl.(*Pipeline).Calls(); n != 1 {
		t.Fatalf("Pipeline.Calls:\nhave %d\nwant 1", n)
	}
	if img.pending != driver.AShaderWrite {
		t.Fatalf("Image.pending:\nhave %v\nwant %v", img.pending, driver.AShaderWrite)
	}
}

func TestTimestamps(t *testing.T) {
	g := openGPU(t)
	qp, _ := g.NewQueryPool(2)
	cb, _ := g.NewCmdBuffer()
	cb.Begin()
	cb.ResetQueries(qp, 0, 2)
	cb.WriteTimestamp(qp, driver.SNone, 0)
	cb.WriteTimestamp(qp, driver.SAll, 1)
	var ts [2]uint64
	if qp.Timestamps(0, ts[:]) {
		t.Fatal("QueryPool.Timestamps: unexpected result before execution")
	}
	if err := commit(t, g, cb); err != nil {
		t.Fatal(err)
	}
	if !qp.Timestamps(0, ts[:]) {
		t.Fatal("QueryPool.Timestamps: no result after execution")
	}
	if ts[1] < ts[0] {
		t.Fatalf("QueryPool.Timestamps: %d < %d", ts[1], ts[0])
	}
}

func TestSwapchain(t *testing.T) {
	g := openGPU(t)
	sf := &surface{8, 6}
	sc, err := g.NewSwapchain(sf, 2)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if _, err := sc.Next(); err != nil {
			t.Fatalf("Swapchain.Next:\nhave %v\nwant nil", err)
		}
	}
	if _, err := sc.Next(); err != driver.ErrNoBackbuffer {
		t.Fatalf("Swapchain.Next:\nhave %v\nwant %v", err, driver.ErrNoBackbuffer)
	}
	sf.w = 16
	if _, err := sc.Next(); err != driver.ErrSwapchain {
		t.Fatalf("Swapchain.Next:\nhave %v\nwant %v", err, driver.ErrSwapchain)
	}
	if err := sc.Recreate(); err != nil {
		t.Fatalf("Swapchain.Recreate:\nhave %v\nwant nil", err)
	}
	i, err := sc.Next()
	if err != nil {
		t.Fatal(err)
	}
	img := sc.Views()[i].Image().(*Image)
	if img.Width() != 16 || img.Height() != 6 {
		t.Fatalf("Swapchain image size:\nhave %dx%d\nwant 16x6", img.Width(), img.Height())
	}
	cb, _ := g.NewCmdBuffer()
	cb.Begin()
	cb.Transition([]driver.Transition{{LayoutAfter: driver.LPresent, Img: img}})
	if err := commit(t, g, cb); err != nil {
		t.Fatal(err)
	}
	if err := sc.Present(i); err != nil {
		t.Fatalf("Swapchain.Present:\nhave %v\nwant nil", err)
	}
	g.sync()
	s := sc.(*Swapchain)
	if m, n := s.Presented(); m != img || n != 1 || s.Err() != nil {
		t.Fatalf("Swapchain.Presented:\nhave %p, %d (%v)\nwant %p, 1", m, n, s.Err(), img)
	}
	sf.w = 0
	if err := sc.Recreate(); err != driver.ErrSurface {
		t.Fatalf("Swapchain.Recreate:\nhave %v\nwant %v", err, driver.ErrSurface)
	}
}

func TestTriangle(t *testing.T) {
	vp := driver.Viewport{Width: 4, Height: 4, Zfar: 1}
	var n int
	Triangle(vp, driver.RasterState{}, [3][4]float32{
		{-1, -1, 0.5, 1},
		{3, -1, 0.5, 1},
		{-1, 3, 0.5, 1},
	}, func(x, y int, b [3]float32, z float32) {
		n++
		if z < 0.4999 || z > 0.5001 {
			t.Fatalf("Triangle: z\nhave %v\nwant 0.5", z)
		}
	})
	if n != 16 {
		t.Fatalf("Triangle: covered pixels\nhave %d\nwant 16", n)
	}
}
