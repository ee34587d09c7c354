// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package soft implements a driver that executes GPU
// commands on the host.
//
// Shader binaries cannot be executed directly. Instead,
// entry points are matched by name against programs
// registered with RegisterGraphics and RegisterCompute.
// Command execution is validated: images must be in the
// layout required by each command and writes must be
// made available by a barrier or transition before the
// resource is accessed again. Violations are reported
// through driver.WorkItem.Err.
//
// Images are restricted to a single layer, level and
// sample.
package soft

import (
	"errors"
	"sync"
	"time"

	"github.com/gviegas/taa/driver"
)

const driverName = "soft"

func init() { driver.Register(&Driver{}) }

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = newGPU(d)
	}
	return d.gpu, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
// Pending work is executed before Close returns.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		d.gpu.stop()
		d.gpu = nil
	}
}

var (
	errNotExecutable = errors.New("soft: command buffer is not executable")
	errInUse         = errors.New("soft: command buffer in use")
	errUnsupported   = errors.New("soft: unsupported parameter")
	errNoProgram     = errors.New("soft: no program registered for entry point")
	errBadCode       = errors.New("soft: invalid SPIR-V binary")
)

// GPU implements driver.GPU and driver.Presenter.
// Committed work executes in order on a single
// goroutine.
type GPU struct {
	drv   *Driver
	queue chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
	epoch time.Time

	// Resources with writes not yet made available.
	// Only accessed during execution.
	dirty map[*track]struct{}
}

func newGPU(d *Driver) *GPU {
	g := &GPU{
		drv:   d,
		queue: make(chan func(), 64),
		quit:  make(chan struct{}),
		epoch: time.Now(),
		dirty: make(map[*track]struct{}),
	}
	g.wg.Add(1)
	go g.work()
	return g
}

func (g *GPU) work() {
	defer g.wg.Done()
	for {
		select {
		case f := <-g.queue:
			f()
		case <-g.quit:
			for {
				select {
				case f := <-g.queue:
					f()
				default:
					return
				}
			}
		}
	}
}

func (g *GPU) stop() {
	close(g.quit)
	g.wg.Wait()
}

// Driver returns the Driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Commit commits a work item for execution.
func (g *GPU) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	cbs := make([]*CmdBuffer, len(wk.Work))
	for i, c := range wk.Work {
		cb := c.(*CmdBuffer)
		if cb.state.Load() != cbExecutable {
			return errNotExecutable
		}
		cbs[i] = cb
	}
	for _, cb := range cbs {
		cb.state.Store(cbPending)
	}
	g.queue <- func() {
		var err error
		for _, cb := range cbs {
			if err == nil {
				err = cb.execute()
			}
			cb.state.Store(cbExecutable)
		}
		wk.Err = err
		ch <- wk
	}
	return nil
}

// NewCmdBuffer creates a new command buffer.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{gpu: g}, nil
}

// NewShaderCode creates a new shader code.
// data must be a SPIR-V binary.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	const magic = 0x07230203
	if len(data) < 20 || len(data)%4 != 0 {
		return nil, errBadCode
	}
	if m := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24; m != magic {
		return nil, errBadCode
	}
	return &ShaderCode{data: append([]byte(nil), data...)}, nil
}

// NewDescHeap creates a new descriptor heap.
func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	h := &DescHeap{ds: append([]driver.Descriptor(nil), ds...), nr: make(map[int]int, len(ds))}
	for i := range ds {
		if _, dup := h.nr[ds[i].Nr]; dup || ds[i].Len < 1 {
			return nil, errUnsupported
		}
		h.nr[ds[i].Nr] = i
	}
	return h, nil
}

// NewDescTable creates a new descriptor table.
func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	t := &DescTable{heaps: make([]*DescHeap, len(dh))}
	for i := range dh {
		t.heaps[i] = dh[i].(*DescHeap)
	}
	return t, nil
}

// NewPipeline creates a new pipeline.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		return newGraphPipeline(s)
	case *driver.CompState:
		return newCompPipeline(s)
	}
	return nil, errUnsupported
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errUnsupported
	}
	// Keep capacity aligned for descriptor ranges.
	n := (size + 255) &^ 255
	return &Buffer{data: make([]byte, n), visible: visible, usg: usg}, nil
}

// NewImage creates a new image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	if pf.Size() == 0 || size.Width < 1 || size.Height < 1 || size.Depth > 1 {
		return nil, errUnsupported
	}
	if layers != 1 || levels != 1 || samples != 1 {
		return nil, errUnsupported
	}
	return newImage(pf, size.Width, size.Height, usg), nil
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	return &Sampler{spln: *spln}, nil
}

// NewQueryPool creates a new timestamp query pool.
func (g *GPU) NewQueryPool(n int) (driver.QueryPool, error) {
	if n < 1 {
		return nil, errUnsupported
	}
	return &QueryPool{ts: make([]uint64, n), set: make([]bool, n)}, nil
}

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage2D:        8192,
		MaxLayers:         1,
		MaxDescHeaps:      8,
		MaxDConstantRange: 65536,
		MaxColorTargets:   8,
		MaxRenderSize:     [2]int{8192, 8192},
		MaxDispatch:       [3]int{65535, 65535, 65535},
	}
}

// now returns the time elapsed since the GPU was created.
func (g *GPU) now() uint64 { return uint64(time.Since(g.epoch)) }
