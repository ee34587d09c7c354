// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"errors"
	"slices"
	"testing"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/driver/soft"
	"github.com/gviegas/taa/engine/internal/resource"
)

func nop(*Runtime) error { return nil }

// recorder records barriers and transitions.
// Calling any other method panics.
type recorder struct {
	driver.CmdBuffer
	barriers    [][]driver.Barrier
	transitions [][]driver.Transition
	calls       []string
}

func (r *recorder) Barrier(b []driver.Barrier) {
	r.barriers = append(r.barriers, slices.Clone(b))
	r.calls = append(r.calls, "barrier")
}

func (r *recorder) Transition(t []driver.Transition) {
	r.transitions = append(r.transitions, slices.Clone(t))
	r.calls = append(r.calls, "transition")
}

// fakeImage only needs to be distinguishable.
type fakeImage struct {
	driver.Image
	id int
}

type fakeBuffer struct{ driver.Buffer }

func declare(t *testing.T, reg *resource.Registry, kind resource.Kind, name string) resource.ID {
	t.Helper()
	id := reg.Declare(kind, name)
	var p *resource.Physical
	if kind == resource.Image {
		p = resource.NewImage(name, &fakeImage{id: int(id)}, nil)
	} else {
		p = resource.NewBuffer(name, &fakeBuffer{})
	}
	if err := reg.Bind(id, p); err != nil {
		t.Fatalf("Registry.Bind:\nhave %v\nwant nil", err)
	}
	return id
}

func mustCompile(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Builder.Compile:\nhave %v\nwant nil", err)
	}
	return g
}

func TestHazards(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	buf := declare(t, &reg, resource.Buffer, "buf")
	b := NewBuilder(&reg, Options{})
	tasks := []Task{
		{Name: "w0", Uses: []Use{{img, ColorWrite, driver.SColorOutput}}, Run: nop},
		{Name: "w1", Uses: []Use{{img, ColorWrite, driver.SColorOutput}}, Run: nop},
		{Name: "r0", Uses: []Use{{img, ShaderRead, driver.SFragmentShading}, {buf, ConstRead, driver.SFragmentShading}}, Run: nop},
		{Name: "r1", Uses: []Use{{img, ShaderRead, driver.SComputeShading}, {buf, ConstRead, driver.SComputeShading}}, Run: nop},
		{Name: "c", Uses: []Use{{img, CopyRead, driver.SCopy}}, Run: nop},
		{Name: "u", Uses: []Use{{buf, CopyWrite, driver.SCopy}}, Run: nop},
	}
	for _, x := range tasks {
		if err := b.Add(x); err != nil {
			t.Fatalf("Builder.Add(%s):\nhave %v\nwant nil", x.Name, err)
		}
	}
	g := mustCompile(t, b)
	want := map[[2]string]Hazard{
		{"w0", "w1"}: WAW,
		{"w0", "r0"}: RAW,
		{"w1", "r0"}: RAW,
		{"w0", "r1"}: RAW,
		{"w1", "r1"}: RAW,
		{"w0", "c"}:  RAW,
		{"w1", "c"}:  RAW,
		{"r0", "c"}:  LayoutChange,
		{"r1", "c"}:  LayoutChange,
		{"r0", "u"}:  WAR,
		{"r1", "u"}:  WAR,
	}
	have := make(map[[2]string]Hazard)
	for _, e := range g.Edges() {
		have[[2]string{e.From, e.To}] = e.Hazard
	}
	for k, v := range want {
		if have[k] != v {
			t.Errorf("Edge %s -> %s:\nhave %v\nwant %v", k[0], k[1], have[k], v)
		}
	}
	if len(have) != len(want) {
		t.Errorf("Graph.Edges:\nhave %d edges\nwant %d", len(have), len(want))
	}
	if g.Ordered("r0", "r1") || g.Ordered("r1", "r0") {
		t.Error("Graph.Ordered(r0, r1):\nhave true\nwant false")
	}
	if !g.Ordered("w0", "u") {
		t.Error("Graph.Ordered(w0, u):\nhave false\nwant true")
	}
	var reduced []string
	for _, e := range g.Reduced() {
		reduced = append(reduced, e.From+"->"+e.To)
	}
	slices.Sort(reduced)
	wantReduced := []string{"r0->c", "r0->u", "r1->c", "r1->u", "w0->w1", "w1->r0", "w1->r1"}
	if !slices.Equal(reduced, wantReduced) {
		t.Errorf("Graph.Reduced:\nhave %v\nwant %v", reduced, wantReduced)
	}
	if have, want := g.Order(), []string{"w0", "w1", "r0", "r1", "c", "u"}; !slices.Equal(have, want) {
		t.Errorf("Graph.Order:\nhave %v\nwant %v", have, want)
	}
}

func TestCycle(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Uses: []Use{{img, ColorWrite, driver.SColorOutput}}, After: []string{"c"}, Run: nop})
	b.Add(Task{Name: "b", Uses: []Use{{img, ShaderRead, driver.SFragmentShading}}, Run: nop})
	b.Add(Task{Name: "c", After: []string{"b"}, Run: nop})
	_, err := b.Compile()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("Builder.Compile:\nhave %v\nwant %v", err, ErrCycle)
	}
	if !errors.Is(err, ErrConstruction) {
		t.Fatalf("errors.Is(%v, ErrConstruction):\nhave false\nwant true", err)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("errors.As:\nhave false\nwant true")
	}
	if want := []string{"a", "b", "c", "a"}; !slices.Equal(e.Cycle, want) {
		t.Fatalf("Error.Cycle:\nhave %v\nwant %v", e.Cycle, want)
	}
}

func TestConstruction(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	buf := declare(t, &reg, resource.Buffer, "buf")
	for _, x := range []Task{
		{Name: "", Run: nop},
		{Name: "norun"},
		{Name: "badid", Uses: []Use{{42, ShaderRead, driver.SComputeShading}}, Run: nop},
		{Name: "badmode", Uses: []Use{{buf, ColorWrite, driver.SColorOutput}}, Run: nop},
		{Name: "badmode2", Uses: []Use{{img, VertexRead, driver.SVertexInput}}, Run: nop},
		{Name: "layouts", Uses: []Use{{img, ShaderRead, driver.SComputeShading}, {img, ColorWrite, driver.SColorOutput}}, Run: nop},
	} {
		b := NewBuilder(&reg, Options{})
		if err := b.Add(x); !errors.Is(err, ErrConstruction) {
			t.Errorf("Builder.Add(%q):\nhave %v\nwant %v", x.Name, err, ErrConstruction)
		}
	}

	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Run: nop})
	if err := b.Add(Task{Name: "a", Run: nop}); !errors.Is(err, ErrConstruction) {
		t.Errorf("Builder.Add(dup):\nhave %v\nwant %v", err, ErrConstruction)
	}
	b.Add(Task{Name: "b", After: []string{"nope"}, Run: nop})
	if _, err := b.Compile(); !errors.Is(err, ErrConstruction) || errors.Is(err, ErrCycle) {
		t.Errorf("Builder.Compile:\nhave %v\nwant %v", err, ErrConstruction)
	}

	b = NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Run: nop})
	mustCompile(t, b)
	if err := b.Add(Task{Name: "b", Run: nop}); !errors.Is(err, ErrConstruction) {
		t.Errorf("Builder.Add after Compile:\nhave %v\nwant %v", err, ErrConstruction)
	}
}

func TestReorder(t *testing.T) {
	var reg resource.Registry
	a := declare(t, &reg, resource.Image, "a")
	c := declare(t, &reg, resource.Image, "c")
	out := declare(t, &reg, resource.Image, "out")
	tasks := []Task{
		{Name: "wa", Uses: []Use{{a, ColorWrite, driver.SColorOutput}}, Run: nop},
		{Name: "ra", Uses: []Use{{a, ShaderRead, driver.SFragmentShading}, {out, ColorWrite, driver.SColorOutput}}, Run: nop},
		{Name: "wc", Uses: []Use{{c, ColorWrite, driver.SColorOutput}}, Run: nop},
		{Name: "rc", Uses: []Use{{c, ShaderRead, driver.SComputeShading}}, Run: nop},
	}
	for _, reorder := range []bool{false, true} {
		b := NewBuilder(&reg, Options{Reorder: reorder})
		for _, x := range tasks {
			b.Add(x)
		}
		g := mustCompile(t, b)
		var want [][]string
		if reorder {
			want = [][]string{{"wa", "wc"}, {"ra", "rc"}}
		} else {
			want = [][]string{{"wa"}, {"ra"}, {"wc"}, {"rc"}}
		}
		if have := g.Batches(); !slices.EqualFunc(have, want, slices.Equal) {
			t.Errorf("Graph.Batches (reorder=%t):\nhave %v\nwant %v", reorder, have, want)
		}
		if have := g.Barriers(); have != 2 {
			t.Errorf("Graph.Barriers (reorder=%t):\nhave %d\nwant 2", reorder, have)
		}
	}
}

func TestBarriers(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	buf := declare(t, &reg, resource.Buffer, "buf")
	b := NewBuilder(&reg, Options{Name: "test"})
	b.Add(Task{Name: "upload", Uses: []Use{{buf, CopyWrite, driver.SCopy}}, Run: nop})
	b.Add(Task{Name: "draw", Uses: []Use{{img, ColorWrite, driver.SColorOutput}, {buf, ConstRead, driver.SVertexShading}}, Run: nop})
	b.Add(Task{Name: "read0", Uses: []Use{{img, ShaderRead, driver.SFragmentShading}}, Run: nop})
	b.Add(Task{Name: "read1", Uses: []Use{{img, ShaderRead, driver.SComputeShading}}, Run: nop})
	g := mustCompile(t, b)
	if have := g.Barriers(); have != 2 {
		t.Fatalf("Graph.Barriers:\nhave %d\nwant 2", have)
	}

	var r recorder
	if err := g.Execute(&r); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	// First execution: undefined image, unused buffer.
	want := []string{"barrier", "transition", "transition"}
	if !slices.Equal(r.calls, want) {
		t.Fatalf("recorded calls:\nhave %v\nwant %v", r.calls, want)
	}
	if tr := r.transitions[0][0]; tr.LayoutBefore != driver.LUndefined || tr.LayoutAfter != driver.LColorTarget {
		t.Fatalf("first transition:\nhave %v -> %v\nwant %v -> %v", tr.LayoutBefore, tr.LayoutAfter, driver.LUndefined, driver.LColorTarget)
	}
	tr := r.transitions[1][0]
	if tr.LayoutBefore != driver.LColorTarget || tr.LayoutAfter != driver.LShaderRead {
		t.Fatalf("second transition:\nhave %v -> %v\nwant %v -> %v", tr.LayoutBefore, tr.LayoutAfter, driver.LColorTarget, driver.LShaderRead)
	}
	if tr.SyncAfter != driver.SFragmentShading|driver.SComputeShading {
		t.Fatalf("second transition SyncAfter:\nhave %v\nwant %v", tr.SyncAfter, driver.SFragmentShading|driver.SComputeShading)
	}
	if tr.AccessBefore&driver.AColorWrite == 0 {
		t.Fatalf("second transition AccessBefore:\nhave %v\nwant AColorWrite set", tr.AccessBefore)
	}
	if br := r.barriers[0][0]; br.AccessBefore != driver.ACopyWrite || br.AccessAfter != driver.AShaderRead {
		t.Fatalf("buffer barrier:\nhave %+v\nwant ACopyWrite -> AShaderRead", br)
	}

	p, _ := reg.Resolve(img)
	if p.State.Layout != driver.LShaderRead || p.State.Write {
		t.Fatalf("Physical.State:\nhave %+v\nwant LShaderRead read", p.State)
	}

	// Second execution: the image is read in the
	// previous frame and the buffer was last read.
	r = recorder{}
	if err := g.Execute(&r); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	want = []string{"barrier", "barrier", "transition", "transition"}
	if !slices.Equal(r.calls, want) {
		t.Fatalf("recorded calls:\nhave %v\nwant %v", r.calls, want)
	}
	if tr := r.transitions[0][0]; tr.LayoutBefore != driver.LShaderRead || tr.LayoutAfter != driver.LColorTarget {
		t.Fatalf("first transition:\nhave %v -> %v\nwant %v -> %v", tr.LayoutBefore, tr.LayoutAfter, driver.LShaderRead, driver.LColorTarget)
	}
	if br := r.barriers[0][0]; br.AccessBefore != driver.ANone || br.SyncBefore != driver.SVertexShading {
		t.Fatalf("buffer WAR barrier:\nhave %+v\nwant SVertexShading, ANone", br)
	}
}

func TestReadAfterRead(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "r0", Uses: []Use{{img, ShaderRead, driver.SFragmentShading}}, Run: nop})
	b.Add(Task{Name: "r1", Uses: []Use{{img, ShaderRead, driver.SFragmentShading}}, Run: nop})
	g := mustCompile(t, b)
	if n := len(g.Edges()); n != 0 {
		t.Fatalf("Graph.Edges:\nhave %d\nwant 0", n)
	}
	p, _ := reg.Resolve(img)
	p.State = resource.State{Layout: driver.LShaderRead, Sync: driver.SFragmentShading, Access: driver.AShaderRead, Used: true}
	var r recorder
	if err := g.Execute(&r); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("recorded calls:\nhave %v\nwant []", r.calls)
	}
}

func TestUnbound(t *testing.T) {
	var reg resource.Registry
	img := reg.Declare(resource.Image, "img")
	ran := false
	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Uses: []Use{{img, ColorWrite, driver.SColorOutput}}, Run: func(*Runtime) error {
		ran = true
		return nil
	}})
	g := mustCompile(t, b)
	var r recorder
	if err := g.Execute(&r); !errors.Is(err, resource.ErrUnbound) {
		t.Fatalf("Graph.Execute:\nhave %v\nwant %v", err, resource.ErrUnbound)
	}
	if ran || len(r.calls) != 0 {
		t.Fatal("Graph.Execute: recorded commands with an unbound resource")
	}
	if g.State() != Compiled {
		t.Fatalf("Graph.State:\nhave %v\nwant %v", g.State(), Compiled)
	}
}

func TestRuntime(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	other := declare(t, &reg, resource.Image, "other")
	var saved *Runtime
	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Uses: []Use{{img, ColorWrite, driver.SColorOutput}}, Run: func(rt *Runtime) error {
		saved = rt
		if rt.Image(img).(*fakeImage).id != int(img) {
			t.Error("Runtime.Image: wrong physical image")
		}
		func() {
			defer func() {
				if recover() == nil {
					t.Error("Runtime.Image(undeclared): did not panic")
				}
			}()
			rt.Image(other)
		}()
		return nil
	}})
	b.Add(Task{Name: "b", Uses: []Use{{other, ColorWrite, driver.SColorOutput}}, Run: nop})
	g := mustCompile(t, b)
	if err := g.Execute(&recorder{}); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	defer func() {
		if recover() == nil {
			t.Error("Runtime.Cmd after Run: did not panic")
		}
	}()
	saved.Cmd()
}

func TestTaskError(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	errTask := errors.New("task failed")
	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Uses: []Use{{img, ColorWrite, driver.SColorOutput}}, Run: func(*Runtime) error { return errTask }})
	g := mustCompile(t, b)
	if err := g.Execute(&recorder{}); !errors.Is(err, errTask) {
		t.Fatalf("Graph.Execute:\nhave %v\nwant %v", err, errTask)
	}
	p, _ := reg.Resolve(img)
	if p.State != (resource.State{}) {
		t.Fatalf("Physical.State:\nhave %+v\nwant zero", p.State)
	}
}

func TestRevert(t *testing.T) {
	var reg resource.Registry
	img := declare(t, &reg, resource.Image, "img")
	buf := declare(t, &reg, resource.Buffer, "buf")
	b := NewBuilder(&reg, Options{})
	b.Add(Task{Name: "a", Uses: []Use{{buf, CopyWrite, driver.SCopy}}, Run: nop})
	b.Add(Task{Name: "b", Uses: []Use{{buf, ShaderRead, driver.SFragmentShading}, {img, ColorWrite, driver.SColorOutput}}, Run: nop})
	b.Present(img)
	g := mustCompile(t, b)

	pi, _ := reg.Resolve(img)
	pb, _ := reg.Resolve(buf)
	if err := g.Execute(&recorder{}); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	first := [2]resource.State{pi.State, pb.State}
	if first[0].Layout != driver.LPresent || !first[1].Used {
		t.Fatalf("Physical.State:\nhave %+v\nwant present image, used buffer", first)
	}
	if err := g.Execute(&recorder{}); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	g.Revert()
	if have := [2]resource.State{pi.State, pb.State}; have != first {
		t.Fatalf("Graph.Revert:\nhave %+v\nwant %+v", have, first)
	}
	// Only the last call is reverted.
	g.Revert()
	if have := [2]resource.State{pi.State, pb.State}; have != first {
		t.Fatalf("Graph.Revert (again):\nhave %+v\nwant %+v", have, first)
	}

	var fresh resource.Registry
	id := declare(t, &fresh, resource.Image, "img")
	b = NewBuilder(&fresh, Options{})
	b.Add(Task{Name: "c", Uses: []Use{{id, ColorWrite, driver.SColorOutput}}, Run: nop})
	g = mustCompile(t, b)
	if err := g.Execute(&recorder{}); err != nil {
		t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
	}
	g.Revert()
	if p, _ := fresh.Resolve(id); p.State != (resource.State{}) {
		t.Fatalf("Graph.Revert:\nhave %+v\nwant zero", p.State)
	}
}

func TestExecuteSoft(t *testing.T) {
	drv := soft.Driver{}
	gpu, err := drv.Open()
	if err != nil {
		t.Fatalf("Driver.Open:\nhave %v\nwant nil", err)
	}
	defer drv.Close()

	newImage := func(name string) *resource.Physical {
		img, err := gpu.NewImage(driver.RGBA8un, driver.Dim3D{Width: 4, Height: 4}, 1, 1, 1, driver.URenderTarget|driver.UCopySrc|driver.UCopyDst)
		if err != nil {
			t.Fatal(err)
		}
		view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		return resource.NewImage(name, img, view)
	}
	var reg resource.Registry
	src := reg.Declare(resource.Image, "src")
	dst := reg.Declare(resource.Image, "dst")
	reg.Bind(src, newImage("src"))
	reg.Bind(dst, newImage("dst"))

	b := NewBuilder(&reg, Options{Reorder: true})
	b.Add(Task{Name: "clear", Uses: []Use{{src, ColorWrite, driver.SColorOutput}}, Run: func(rt *Runtime) error {
		rt.Cmd().BeginPass(4, 4, 1, []driver.ColorTarget{{
			Color: rt.View(src),
			Load:  driver.LClear,
			Store: driver.SStore,
			Clear: driver.ClearFloat32(1, 0, 0, 1),
		}}, nil)
		rt.Cmd().EndPass()
		return nil
	}})
	b.Add(Task{Name: "copy", Uses: []Use{{src, CopyRead, driver.SCopy}, {dst, CopyWrite, driver.SCopy}}, Run: func(rt *Runtime) error {
		rt.Cmd().CopyImage(&driver.ImageCopy{
			From:   rt.Image(src),
			To:     rt.Image(dst),
			Size:   driver.Dim3D{Width: 4, Height: 4, Depth: 1},
			Layers: 1,
		})
		return nil
	}})
	b.Present(dst)
	g := mustCompile(t, b)

	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		t.Fatal(err)
	}
	ch := make(chan *driver.WorkItem, 1)
	for i := range 3 {
		if err := cb.Begin(); err != nil {
			t.Fatalf("CmdBuffer.Begin:\nhave %v\nwant nil", err)
		}
		if err := g.Execute(cb); err != nil {
			t.Fatalf("Graph.Execute:\nhave %v\nwant nil", err)
		}
		if err := cb.End(); err != nil {
			t.Fatalf("CmdBuffer.End:\nhave %v\nwant nil", err)
		}
		if err := gpu.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}}, ch); err != nil {
			t.Fatalf("GPU.Commit:\nhave %v\nwant nil", err)
		}
		if wk := <-ch; wk.Err != nil {
			t.Fatalf("WorkItem.Err (frame %d):\nhave %v\nwant nil", i, wk.Err)
		}
	}
	p, _ := reg.Resolve(dst)
	img := p.Image().(*soft.Image)
	if have := img.Load(2, 2); have != [4]float32{1, 0, 0, 1} {
		t.Fatalf("Image.Load:\nhave %v\nwant [1 0 0 1]", have)
	}
	if img.Layout() != driver.LPresent {
		t.Fatalf("Image.Layout:\nhave %v\nwant %v", img.Layout(), driver.LPresent)
	}
}
