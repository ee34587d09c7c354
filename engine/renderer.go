// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/engine/internal/ctxt"
	"github.com/gviegas/taa/engine/internal/graph"
	"github.com/gviegas/taa/engine/internal/resource"
	"github.com/gviegas/taa/engine/internal/shader"
	"github.com/gviegas/taa/engine/internal/temporal"
	"github.com/gviegas/taa/engine/internal/variant"
	"github.com/gviegas/taa/linear"
)

func newRendErr(s string) error { return errors.New("renderer: " + s) }

var errClosed = newRendErr("use of closed Renderer")

// Window is the surface into which a Renderer presents.
type Window interface {
	// Width returns the width of the window in pixels.
	Width() int

	// Height returns the height of the window in pixels.
	Height() int
}

// frame is a frame slot.
// A slot is reused once the GPU completes the work
// that was last committed with it.
type frame struct {
	wk      *driver.WorkItem
	staging driver.Buffer
	garbage []driver.Destroyer
	pending bool
	queried bool
}

// Timestamp queries of a frame slot.
const (
	queryGeometry = iota * 2
	queryResolve
	queryCount
)

// staged is scene data waiting to be copied from a
// staging buffer.
type staged struct {
	buf    driver.Buffer
	copies []stagedCopy
}

type stagedCopy struct {
	id        resource.ID
	off, size int64
}

// Renderer is a real-time renderer that targets a
// Window.
// Its methods must be called from a single goroutine.
type Renderer struct {
	ctx *ctxt.Context
	cfg Config
	log *slog.Logger
	met *metrics
	win Window
	sc  driver.Swapchain

	ch     chan *driver.WorkItem
	frames []frame
	slot   int

	reg      resource.Registry
	swapID   resource.ID
	sceneID  resource.ID
	depthID  resource.ID
	xformID  resource.ID
	posID    resource.ID
	normID   resource.ID
	indexID  resource.ID
	lightID  resource.ID
	color    *temporal.Pair
	velocity *temporal.Pair
	views    []*resource.Physical
	width    int
	height   int
	broken   bool
	// held is a swapchain image acquired by a frame
	// that was discarded, or -1.
	held int

	graph *graph.Graph
	pipes *variant.Manager
	table *shader.Table
	splr  driver.Sampler
	query driver.QueryPool

	feat    featureSet
	seq     temporal.Sequence
	curVP   linear.M4
	prevVP  linear.M4
	hasPrev bool

	scene  *sceneData
	staged *staged

	uploadXform  flag
	uploadScene  flag
	clearHistory flag

	frameN  int64
	timings [2]time.Duration
}

// New creates a new Renderer that presents into win.
// If cfg is nil, DefaultConfig is used.
// The Renderer draws nothing until ReloadScene is
// called.
func New(win Window, cfg *Config) (*Renderer, error) {
	if win == nil {
		return nil, newRendErr("nil Window in call to New")
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c.validate()
	log := c.Logger
	if log == nil {
		log = ctxt.NopLogger()
	}
	ctx, err := ctxt.Open(c.Driver, log)
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		ctx:  ctx,
		cfg:  c,
		log:  log,
		met:  newMetrics(c.Registerer, log),
		win:  win,
		held: -1,
	}
	for i := range r.feat {
		r.feat[i] = true
	}
	if err := r.init(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init() error {
	gpu := r.ctx.GPU()
	pres, ok := gpu.(driver.Presenter)
	if !ok {
		return newRendErr("New requires driver.Presenter")
	}

	r.swapID = r.reg.Declare(resource.Image, "swapchain")
	r.sceneID = r.reg.Declare(resource.Image, "scene")
	r.depthID = r.reg.Declare(resource.Image, "depth")
	r.xformID = r.reg.Declare(resource.Buffer, "transforms")
	r.posID = r.reg.Declare(resource.Buffer, "positions")
	r.normID = r.reg.Declare(resource.Buffer, "normals")
	r.indexID = r.reg.Declare(resource.Buffer, "indices")
	r.lightID = r.reg.Declare(resource.Buffer, "lights")
	r.color = temporal.NewPair(&r.reg, "color")
	r.velocity = temporal.NewPair(&r.reg, "velocity")

	n := r.cfg.frames()
	var err error
	if r.sc, err = pres.NewSwapchain(r.win, n+1); err != nil {
		return err
	}
	r.setViews()

	r.ch = make(chan *driver.WorkItem, n)
	xsize := int64(shader.TransformSpan * shader.BlockSize)
	for i := range n {
		cb, err := gpu.NewCmdBuffer()
		if err != nil {
			return err
		}
		stg, err := gpu.NewBuffer(xsize, true, driver.UCopySrc)
		if err != nil {
			cb.Destroy()
			return err
		}
		wk := &driver.WorkItem{Work: []driver.CmdBuffer{cb}, Custom: i}
		r.frames = append(r.frames, frame{wk: wk, staging: stg})
		r.ch <- wk
	}

	if r.table, err = shader.NewTable(gpu, n, 1); err != nil {
		return err
	}
	if r.splr, err = gpu.NewSampler(&driver.Sampling{
		Min:    driver.FLinear,
		Mag:    driver.FLinear,
		Mipmap: driver.FNoMipmap,
		AddrU:  driver.AClamp,
		AddrV:  driver.AClamp,
		AddrW:  driver.AClamp,
	}); err != nil {
		return err
	}
	r.table.SetSampler(r.splr)
	if r.query, err = gpu.NewQueryPool(n * queryCount); err != nil {
		return err
	}

	xform, err := gpu.NewBuffer(xsize, false, driver.UShaderConst|driver.UCopyDst)
	if err != nil {
		return err
	}
	if err := r.reg.Bind(r.xformID, resource.NewBuffer("transforms", xform)); err != nil {
		xform.Destroy()
		return err
	}
	for i := range n {
		r.table.SetTransform(i, xform, 0)
	}

	if err := r.createTargets(); err != nil {
		return err
	}
	if err := r.loadScene(new(sceneData)); err != nil {
		return err
	}
	if err := r.initPipelines(); err != nil {
		return err
	}
	if r.graph, err = r.buildGraph(); err != nil {
		return err
	}
	r.clearHistory.arm()
	return nil
}

// setViews creates the physical resources of the
// swapchain's views.
func (r *Renderer) setViews() {
	r.reg.Unbind(r.swapID)
	for _, p := range r.views {
		p.Destroy()
	}
	r.views = r.views[:0]
	for i, v := range r.sc.Views() {
		r.views = append(r.views, resource.NewView(fmt.Sprintf("swapchain[%d]", i), v))
	}
}

func (r *Renderer) newImage(name string, pf driver.PixelFmt, usg driver.Usage) (*resource.Physical, error) {
	img, err := r.ctx.GPU().NewImage(pf, driver.Dim3D{Width: r.width, Height: r.height, Depth: 1}, 1, 1, 1, usg)
	if err != nil {
		return nil, err
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	return resource.NewImage(name, img, view), nil
}

// createTargets creates the resolution-dependent
// images using the current window size.
func (r *Renderer) createTargets() (err error) {
	r.width, r.height = r.win.Width(), r.win.Height()
	var imgs []*resource.Physical
	defer func() {
		if err != nil {
			for _, p := range imgs {
				p.Destroy()
			}
		}
	}()
	for _, x := range [...]struct {
		name string
		pf   driver.PixelFmt
		usg  driver.Usage
	}{
		{"scene", r.cfg.ColorFmt, driver.URenderTarget | driver.UShaderSample},
		{"depth", r.cfg.DepthFmt, driver.URenderTarget | driver.UShaderSample},
		{"color[0]", r.cfg.ColorFmt, driver.UShaderWrite | driver.UShaderSample},
		{"color[1]", r.cfg.ColorFmt, driver.UShaderWrite | driver.UShaderSample},
		{"velocity[0]", r.cfg.VelocityFmt, driver.URenderTarget | driver.UShaderSample},
		{"velocity[1]", r.cfg.VelocityFmt, driver.URenderTarget | driver.UShaderSample},
	} {
		p, err := r.newImage(x.name, x.pf, x.usg)
		if err != nil {
			return err
		}
		imgs = append(imgs, p)
	}
	if err = r.reg.Bind(r.sceneID, imgs[0]); err != nil {
		return
	}
	if err = r.reg.Bind(r.depthID, imgs[1]); err != nil {
		r.reg.Unbind(r.sceneID)
		return
	}
	if err = r.color.Set(imgs[2], imgs[3]); err != nil {
		r.reg.Unbind(r.sceneID)
		r.reg.Unbind(r.depthID)
		return
	}
	if err = r.velocity.Set(imgs[4], imgs[5]); err != nil {
		r.reg.Unbind(r.sceneID)
		r.reg.Unbind(r.depthID)
		r.color.Release()
		return
	}
	// Image heap copy p has slot p as current.
	for p := range 2 {
		r.table.SetImages(p, &shader.Images{
			Scene:        imgs[0].View(),
			Depth:        imgs[1].View(),
			Color:        r.color.Slot(p).View(),
			History:      r.color.Slot(p ^ 1).View(),
			Velocity:     r.velocity.Slot(p).View(),
			PrevVelocity: r.velocity.Slot(p ^ 1).View(),
		})
	}
	return nil
}

// destroyTargets destroys the resolution-dependent
// images. The GPU must be idle.
func (r *Renderer) destroyTargets() {
	var imgs []*resource.Physical
	imgs = append(imgs, r.reg.Unbind(r.sceneID), r.reg.Unbind(r.depthID))
	if r.color != nil {
		s := r.color.Release()
		imgs = append(imgs, s[:]...)
	}
	if r.velocity != nil {
		s := r.velocity.Release()
		imgs = append(imgs, s[:]...)
	}
	for _, p := range imgs {
		if p != nil {
			p.Destroy()
		}
	}
}

// loadScene replaces the scene buffers with new ones
// holding d. The GPU must be idle.
func (r *Renderer) loadScene(d *sceneData) (err error) {
	gpu := r.ctx.GPU()
	psz, nsz, isz, lsz := d.sizes()
	stg, err := gpu.NewBuffer(psz+nsz+isz+lsz, true, driver.UCopySrc)
	if err != nil {
		return err
	}
	bufs := []driver.Buffer{stg}
	defer func() {
		if err != nil {
			for _, b := range bufs {
				b.Destroy()
			}
		}
	}()

	s := &staged{buf: stg}
	var off int64
	data := stg.Bytes()
	for _, x := range [...]struct {
		id   resource.ID
		src  []byte
		size int64
		usg  driver.Usage
	}{
		{r.posID, bytesOf(d.positions), psz, driver.UVertexData},
		{r.normID, bytesOf(d.normals), nsz, driver.UVertexData},
		{r.indexID, bytesOf(d.indices), isz, driver.UIndexData},
		{r.lightID, bytesOf(d.lights), lsz, driver.UShaderRead},
	} {
		buf, err := gpu.NewBuffer(x.size, false, x.usg|driver.UCopyDst)
		if err != nil {
			return err
		}
		bufs = append(bufs, buf)
		copy(data[off:off+x.size], x.src)
		s.copies = append(s.copies, stagedCopy{x.id, off, x.size})
		off += x.size
	}

	if err = r.table.SetDraws(max(1, len(d.draws))); err != nil {
		return
	}
	cbuf, err := gpu.NewBuffer(int64(r.table.ConstSize()), true, driver.UShaderConst)
	if err != nil {
		return err
	}
	if prev := r.table.SetConstBuf(cbuf, 0); prev != nil {
		prev.Destroy()
	}
	for i := range d.draws {
		*r.table.Draw(i) = d.draws[i]
	}

	for i, c := range s.copies {
		if p := r.reg.Unbind(c.id); p != nil {
			p.Destroy()
		}
		if err := r.reg.Bind(c.id, resource.NewBuffer(r.reg.Name(c.id), bufs[i+1])); err != nil {
			// Unreachable with a fresh physical resource.
			panic(err)
		}
	}
	for i := range r.frames {
		r.table.SetLights(i, bufs[len(bufs)-1], lsz)
	}
	if r.staged != nil {
		r.staged.buf.Destroy()
	}
	r.staged = s
	r.scene = d
	r.uploadScene.arm()
	return nil
}

func (r *Renderer) source(p shader.Program) (variant.Source, error) {
	if r.cfg.ShaderDir != "" {
		return variant.Dir(r.cfg.ShaderDir, p.File()), nil
	}
	return variant.FS(shader.FS(), p.Path())
}

func (r *Renderer) initPipelines() error {
	var comp variant.Compiler
	if r.cfg.Compiler != nil {
		comp = r.cfg.Compiler
	}
	r.pipes = variant.New(r.ctx.GPU(), variant.Options{
		Compiler:    comp,
		Logger:      r.log,
		RetireDelay: len(r.frames),
		OnCompile:   r.met.compiled,
	})
	for _, p := range [...]shader.Program{shader.Scene, shader.Lights, shader.Resolve, shader.Tonemap} {
		src, err := r.source(p)
		if err != nil {
			return err
		}
		var enabled []string
		for f := range maxFeature {
			if r.feat[f] && slices.Contains(f.programs(), p) {
				enabled = append(enabled, features[f].name)
			}
		}
		if err := r.pipes.Add(variant.Desc{
			Name:     p.String(),
			Source:   src,
			Features: p.Features(),
			Build:    r.builder(p),
		}, enabled...); err != nil {
			return err
		}
	}
	return nil
}

// builder returns the function that creates the
// pipeline of program p.
func (r *Renderer) builder(p shader.Program) func(driver.ShaderCode, []string) (driver.Pipeline, error) {
	gpu := r.ctx.GPU()
	depth := driver.DSState{DepthTest: true, DepthWrite: true, DepthCmp: driver.CLess}
	return func(code driver.ShaderCode, defines []string) (driver.Pipeline, error) {
		vert := driver.ShaderFunc{Code: code, Name: p.Vertex(), Defines: defines}
		frag := driver.ShaderFunc{Code: code, Name: p.Fragment(), Defines: defines}
		switch p {
		case shader.Scene:
			return gpu.NewPipeline(&driver.GraphState{
				VertFunc: vert,
				FragFunc: frag,
				Desc:     r.table.Table(),
				Input: []driver.VertexIn{
					{Format: driver.Float32x3, Stride: shader.PositionSize, Nr: 0, Name: "position"},
					{Format: driver.Float32x3, Stride: shader.NormalSize, Nr: 1, Name: "normal"},
				},
				Topology: driver.TTriangle,
				Samples:  1,
				DS:       depth,
				ColorFmt: []driver.PixelFmt{r.cfg.ColorFmt, r.cfg.VelocityFmt},
				DSFmt:    r.cfg.DepthFmt,
			})
		case shader.Lights:
			return gpu.NewPipeline(&driver.GraphState{
				VertFunc: vert,
				FragFunc: frag,
				Desc:     r.table.Table(),
				Topology: driver.TTriangle,
				Samples:  1,
				DS:       depth,
				ColorFmt: []driver.PixelFmt{r.cfg.ColorFmt},
				DSFmt:    r.cfg.DepthFmt,
			})
		case shader.Resolve:
			return gpu.NewPipeline(&driver.CompState{Func: vert, Desc: r.table.Table()})
		default:
			return gpu.NewPipeline(&driver.GraphState{
				VertFunc: vert,
				FragFunc: frag,
				Desc:     r.table.Table(),
				Topology: driver.TTriangle,
				Samples:  1,
				ColorFmt: []driver.PixelFmt{r.sc.Format()},
			})
		}
	}
}

// pipeline returns the current variant of program p.
// Compilation failures are logged by the variant
// manager, and the last good variant is used instead.
func (r *Renderer) pipeline(p shader.Program) (driver.Pipeline, error) {
	pl, err := r.pipes.Get(p.String())
	if pl == nil {
		return nil, err
	}
	return pl, nil
}

// retire processes the completion of the work last
// committed with wk.
func (r *Renderer) retire(wk *driver.WorkItem) error {
	slot := wk.Custom.(int)
	f := &r.frames[slot]
	if !f.pending {
		return nil
	}
	f.pending = false
	err := wk.Err
	wk.Err = nil
	if f.queried {
		f.queried = false
		var ts [queryCount]uint64
		if r.query.Timestamps(slot*queryCount, ts[:]) {
			p := r.query.Period()
			geo := time.Duration(float64(ts[queryGeometry+1]-ts[queryGeometry]) * p)
			res := time.Duration(float64(ts[queryResolve+1]-ts[queryResolve]) * p)
			r.timings = [2]time.Duration{geo, res}
			r.met.observe(geo, res)
		}
	}
	for _, d := range f.garbage {
		d.Destroy()
	}
	clear(f.garbage)
	f.garbage = f.garbage[:0]
	if err != nil {
		r.log.Warn("frame failed", "slot", slot, "err", err)
		if errors.Is(err, driver.ErrFatal) {
			return err
		}
	}
	return nil
}

// idle waits until the GPU completes all committed
// work.
func (r *Renderer) idle() error {
	var err error
	wks := make([]*driver.WorkItem, 0, len(r.frames))
	for range r.frames {
		wk := <-r.ch
		if e := r.retire(wk); e != nil && err == nil {
			err = e
		}
		wks = append(wks, wk)
	}
	for _, wk := range wks {
		r.ch <- wk
	}
	return err
}

// Draw renders and presents a frame as seen by cam.
// If no swapchain image can be acquired, the frame is
// skipped and Draw returns nil.
func (r *Renderer) Draw(cam Camera) error {
	if r.ctx == nil {
		return errClosed
	}
	if cam == nil {
		return newRendErr("nil Camera in call to Draw")
	}
	if r.broken {
		if err := r.Resize(); err != nil {
			return err
		}
	}

	wk := <-r.ch
	if err := r.retire(wk); err != nil {
		r.ch <- wk
		return err
	}
	r.slot = wk.Custom.(int)
	f := &r.frames[r.slot]
	r.setTransforms(cam, f)

	r.reg.Unbind(r.swapID)
	idx := r.held
	r.held = -1
	if idx < 0 {
		var err error
		if idx, err = r.sc.Next(); err != nil {
			r.ch <- wk
			if errors.Is(err, driver.ErrSwapchain) {
				r.broken = true
			}
			r.met.skipped.Inc()
			r.log.Warn("frame skipped", "frame", r.frameN, "err", err)
			return nil
		}
	}
	if err := r.reg.Bind(r.swapID, r.views[idx]); err != nil {
		r.held = idx
		r.ch <- wk
		return err
	}

	saved := r.save(f)
	cb := wk.Work[0]
	if err := cb.Begin(); err != nil {
		r.held = idx
		r.ch <- wk
		return err
	}
	if err := r.graph.Execute(cb); err != nil {
		cb.Reset()
		r.discard(f, saved, idx)
		r.ch <- wk
		return err
	}
	if err := cb.End(); err != nil {
		r.discard(f, saved, idx)
		r.ch <- wk
		return err
	}
	f.pending = true
	if err := r.ctx.GPU().Commit(wk, r.ch); err != nil {
		f.pending = false
		cb.Reset()
		r.discard(f, saved, idx)
		r.ch <- wk
		return err
	}
	r.seq.Advance()
	if err := r.sc.Present(idx); err != nil {
		if errors.Is(err, driver.ErrSwapchain) {
			r.broken = true
		} else {
			r.log.Warn("present failed", "frame", r.frameN, "err", err)
		}
	}
	r.prevVP, r.hasPrev = r.curVP, true

	if err := r.color.Swap(); err != nil {
		return err
	}
	if err := r.velocity.Swap(); err != nil {
		return err
	}
	if r.cfg.HotReload && r.cfg.ShaderDir != "" {
		r.hotReload()
	}
	r.pipes.EndFrame()
	r.frameN++
	r.met.frames.Inc()
	return nil
}

// setTransforms writes the transforms of the next frame
// into the staging buffer of f.
func (r *Renderer) setTransforms(cam Camera, f *frame) {
	vp := cam.ViewProj(r.cfg.Near, r.cfg.Far, r.width, r.height)
	prev := vp
	if r.hasPrev {
		prev = r.prevVP
	}
	var inv, jit linear.M4
	inv.Invert(&vp)
	if r.feat[Jitter] {
		jit = temporal.Matrix(temporal.Offset(r.seq.Phase(), r.width, r.height))
	} else {
		jit.I()
	}
	l := shader.AsTransform(f.staging.Bytes())
	l.SetViewProj(&vp)
	l.SetPrevViewProj(&prev)
	l.SetInvViewProj(&inv)
	l.SetJitter(&jit)
	r.curVP = vp
	r.uploadXform.arm()
}

// recording is the renderer state that recording a
// frame consumes.
type recording struct {
	xform, scene, clear bool
	staged              *staged
	garbage             int
}

func (r *Renderer) save(f *frame) recording {
	return recording{
		xform:   r.uploadXform.armed,
		scene:   r.uploadScene.armed,
		clear:   r.clearHistory.armed,
		staged:  r.staged,
		garbage: len(f.garbage),
	}
}

// discard undoes the effects of recording a frame whose
// commands will not execute. The swapchain image idx is
// kept for the next frame.
func (r *Renderer) discard(f *frame, s recording, idx int) {
	r.graph.Revert()
	r.uploadXform.armed = s.xform
	r.uploadScene.armed = s.scene
	r.clearHistory.armed = s.clear
	r.staged = s.staged
	clear(f.garbage[s.garbage:])
	f.garbage = f.garbage[:s.garbage]
	f.queried = false
	r.held = idx
	r.log.Warn("frame discarded", "frame", r.frameN)
}

func (r *Renderer) hotReload() {
	names, err := r.pipes.HotReload()
	if err != nil {
		r.log.Warn("shader source check failed", "err", err)
	}
	if slices.Contains(names, shader.Resolve.String()) {
		r.clearHistory.arm()
	}
}

// Resize recreates the swapchain and every
// resolution-dependent image using the current size
// of the window. The history is discarded.
func (r *Renderer) Resize() error {
	if r.ctx == nil {
		return errClosed
	}
	if err := r.idle(); err != nil {
		return err
	}
	r.reg.Unbind(r.swapID)
	if err := r.sc.Recreate(); err != nil {
		return err
	}
	r.setViews()
	r.destroyTargets()
	if err := r.createTargets(); err != nil {
		return err
	}
	r.broken = false
	r.held = -1
	r.clearHistory.arm()
	r.log.Info("renderer resized", "width", r.width, "height", r.height)
	return nil
}

// ReloadScene replaces the scene drawn by r.
// On failure, the previous scene is kept.
func (r *Renderer) ReloadScene(s *Scene) error {
	if r.ctx == nil {
		return errClosed
	}
	d, err := flatten(s)
	if err != nil {
		r.log.Warn("scene not loaded", "err", err)
		return err
	}
	if err := r.idle(); err != nil {
		return err
	}
	if err := r.loadScene(d); err != nil {
		return err
	}
	r.log.Info("scene loaded", "objects", len(d.draws), "draws", len(d.cmds), "lights", len(d.lights))
	return nil
}

// SetFeature enables or disables a feature.
// Disabling Accumulate also disables ColorClamp,
// NearestDepth, ReprojectVelocity and RejectVelocity.
// Disabling ReprojectVelocity also disables
// RejectVelocity. Enabling a feature whose requirement
// is disabled fails.
// Affected pipelines are compiled in the next frame and
// the history is discarded.
func (r *Renderer) SetFeature(f Feature, on bool) error {
	if r.ctx == nil {
		return errClosed
	}
	s, err := r.feat.set(f, on)
	if err != nil {
		return err
	}
	changed := false
	for g := range maxFeature {
		if s[g] == r.feat[g] {
			continue
		}
		changed = true
		for _, p := range g.programs() {
			if err := r.pipes.Set(p.String(), features[g].name, s[g]); err != nil {
				return err
			}
		}
		r.log.Info("feature changed", "feature", g, "enabled", s[g])
	}
	r.feat = s
	if changed {
		if f == Jitter {
			r.seq.Reset()
		}
		r.clearHistory.arm()
	}
	return nil
}

// Feature returns whether f is enabled.
func (r *Renderer) Feature(f Feature) bool {
	if f < 0 || f >= maxFeature {
		return false
	}
	return r.feat[f]
}

// ReloadTAAPipeline forces the resolve pipeline to be
// compiled again in the next frame. The history is
// discarded.
func (r *Renderer) ReloadTAAPipeline() error {
	if r.ctx == nil {
		return errClosed
	}
	if err := r.pipes.Reload(shader.Resolve.String()); err != nil {
		return err
	}
	r.clearHistory.arm()
	return nil
}

// Timings returns the GPU time spent in the geometry
// and resolve passes of the most recently completed
// frame.
func (r *Renderer) Timings() (geometry, resolve time.Duration) {
	return r.timings[0], r.timings[1]
}

// Frame returns the number of frames submitted.
func (r *Renderer) Frame() int64 { return r.frameN }

// Close waits for the GPU to become idle and destroys
// every resource.
func (r *Renderer) Close() {
	if r.ctx == nil {
		return
	}
	if err := r.idle(); err != nil {
		r.log.Warn("close", "err", err)
	}
	if r.pipes != nil {
		r.pipes.Destroy()
	}
	r.destroyTargets()
	for _, id := range [...]resource.ID{r.xformID, r.posID, r.normID, r.indexID, r.lightID} {
		if p := r.reg.Unbind(id); p != nil {
			p.Destroy()
		}
	}
	r.reg.Unbind(r.swapID)
	if r.staged != nil {
		r.staged.buf.Destroy()
	}
	if r.table != nil {
		if b := r.table.SetConstBuf(nil, 0); b != nil {
			b.Destroy()
		}
		r.table.Free()
	}
	if r.splr != nil {
		r.splr.Destroy()
	}
	if r.query != nil {
		r.query.Destroy()
	}
	for _, f := range r.frames {
		f.wk.Work[0].Destroy()
		f.staging.Destroy()
	}
	if r.sc != nil {
		r.sc.Destroy()
	}
	r.ctx.Close()
	*r = Renderer{}
}
