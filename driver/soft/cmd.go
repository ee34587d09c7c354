// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gviegas/taa/driver"
)

var (
	errNotRecording = errors.New("soft: command buffer is not recording")
	errPassState    = errors.New("soft: command not allowed in current pass state")
	errNoPipeline   = errors.New("soft: no pipeline set")
	errTargets      = errors.New("soft: render targets do not match pipeline")
	errDestroyed    = errors.New("soft: use of destroyed resource")
	errBinding      = errors.New("soft: invalid descriptor binding")
	errRange        = errors.New("soft: out of range")
)

// Command buffer states.
const (
	cbInitial int32 = iota
	cbRecording
	cbExecutable
	cbPending
)

// CmdBuffer implements driver.CmdBuffer.
// Commands are validated and executed when the command
// buffer is committed.
type CmdBuffer struct {
	gpu    *GPU
	state  atomic.Int32
	cmds   []func(*execState) error
	inPass bool
	err    error
}

// execState is the state of a command buffer during
// execution.
type execState struct {
	gpu    *GPU
	width  int
	height int
	color  []driver.ColorTarget
	ds     *driver.DSTarget
	gpl    *Pipeline
	cpl    *Pipeline
	gtable *DescTable
	ctable *DescTable
	gcpy   []int
	ccpy   []int
	vbuf   []*Buffer
	voff   []int64
	ibuf   *Buffer
	ioff   int64
	ifmt   driver.IndexFmt
	vp     driver.Viewport
}

func (c *CmdBuffer) record(f func(*execState) error) {
	if c.state.Load() != cbRecording {
		c.fail(errNotRecording)
		return
	}
	c.cmds = append(c.cmds, f)
}

func (c *CmdBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *CmdBuffer) execute() error {
	s := &execState{gpu: c.gpu}
	for _, f := range c.cmds {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// Begin prepares the command buffer for recording.
func (c *CmdBuffer) Begin() error {
	if c.state.Load() == cbPending {
		return errInUse
	}
	c.cmds = c.cmds[:0]
	c.inPass = false
	c.err = nil
	c.state.Store(cbRecording)
	return nil
}

// IsRecording returns whether the command buffer is
// recording.
func (c *CmdBuffer) IsRecording() bool { return c.state.Load() == cbRecording }

// BeginPass begins a render pass.
func (c *CmdBuffer) BeginPass(width, height, layers int, color []driver.ColorTarget, ds *driver.DSTarget) {
	if c.inPass || layers != 1 {
		c.fail(errPassState)
		return
	}
	c.inPass = true
	color = append([]driver.ColorTarget(nil), color...)
	if ds != nil {
		d := *ds
		ds = &d
	}
	c.record(func(s *execState) error {
		s.width, s.height = width, height
		s.color, s.ds = color, ds
		s.vp = driver.Viewport{Width: float32(width), Height: float32(height), Zfar: 1}
		for i := range color {
			m, err := s.gpu.target(color[i].Color, driver.LColorTarget)
			if err != nil {
				return err
			}
			if color[i].Load == driver.LClear {
				m.Fill(color[i].Clear.Color)
			}
		}
		if ds != nil {
			m, err := s.gpu.target(ds.DS, driver.LDSTarget)
			if err != nil {
				return err
			}
			if ds.LoadD == driver.LClear {
				m.Fill([4]float32{ds.ClearD})
			}
		}
		return nil
	})
}

// EndPass ends the current render pass.
func (c *CmdBuffer) EndPass() {
	if !c.inPass {
		c.fail(errPassState)
		return
	}
	c.inPass = false
	c.record(func(s *execState) error {
		for i := range s.color {
			s.gpu.wrote(&s.color[i].Color.(*View).img.track, driver.AColorWrite)
		}
		if s.ds != nil {
			s.gpu.wrote(&s.ds.DS.(*View).img.track, driver.ADSWrite)
		}
		s.color, s.ds = nil, nil
		return nil
	})
}

// SetPipeline sets the pipeline.
func (c *CmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*Pipeline)
	c.record(func(s *execState) error {
		if p.graph != nil {
			s.gpl = p
		} else {
			s.cpl = p
		}
		return nil
	})
}

// SetViewport sets the viewport.
// Only the first viewport is used.
func (c *CmdBuffer) SetViewport(vp []driver.Viewport) {
	if len(vp) == 0 {
		return
	}
	v := vp[0]
	c.record(func(s *execState) error {
		s.vp = v
		return nil
	})
}

// SetScissor is a no-op.
func (c *CmdBuffer) SetScissor(sciss []driver.Scissor) {}

// SetVertexBuf sets vertex buffers.
func (c *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	bs := make([]*Buffer, len(buf))
	for i := range buf {
		bs[i] = buf[i].(*Buffer)
	}
	off = append([]int64(nil), off...)
	c.record(func(s *execState) error {
		if n := start + len(bs); n > len(s.vbuf) {
			s.vbuf = append(s.vbuf, make([]*Buffer, n-len(s.vbuf))...)
			s.voff = append(s.voff, make([]int64, n-len(s.voff))...)
		}
		copy(s.vbuf[start:], bs)
		copy(s.voff[start:], off)
		return nil
	})
}

// SetIndexBuf sets the index buffer.
func (c *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	b := buf.(*Buffer)
	c.record(func(s *execState) error {
		s.ibuf, s.ioff, s.ifmt = b, off, format
		return nil
	})
}

func setTable(table driver.DescTable, start int, heapCopy []int, tp **DescTable, cp *[]int) {
	t := table.(*DescTable)
	if *tp != t {
		*tp = t
		*cp = make([]int, len(t.heaps))
	}
	copy((*cp)[start:], heapCopy)
}

// SetDescTableGraph sets a descriptor table range for
// graphics pipelines.
func (c *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	heapCopy = append([]int(nil), heapCopy...)
	c.record(func(s *execState) error {
		setTable(table, start, heapCopy, &s.gtable, &s.gcpy)
		return nil
	})
}

// SetDescTableComp sets a descriptor table range for
// compute pipelines.
func (c *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	heapCopy = append([]int(nil), heapCopy...)
	c.record(func(s *execState) error {
		setTable(table, start, heapCopy, &s.ctable, &s.ccpy)
		return nil
	})
}

// Draw draws primitives.
func (c *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	c.draw(Draw{
		Count:     vertCount,
		InstCount: instCount,
		BaseVert:  baseVert,
		BaseInst:  baseInst,
	})
}

// DrawIndexed draws indexed primitives.
func (c *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	c.draw(Draw{
		Indexed:   true,
		Count:     idxCount,
		InstCount: instCount,
		BaseIdx:   baseIdx,
		VertOff:   vertOff,
		BaseInst:  baseInst,
	})
}

func (c *CmdBuffer) draw(d Draw) {
	if !c.inPass {
		c.fail(errPassState)
		return
	}
	c.record(func(s *execState) error {
		pl := s.gpl
		if pl == nil {
			return errNoPipeline
		}
		if err := s.checkTargets(pl.graph); err != nil {
			return err
		}
		for _, b := range s.vbuf {
			if b != nil {
				if err := s.gpu.access(&b.track, "vertex buffer"); err != nil {
					return err
				}
			}
		}
		if d.Indexed {
			if s.ibuf == nil {
				return fmt.Errorf("%w: no index buffer", errBinding)
			}
			if err := s.gpu.access(&s.ibuf.track, "index buffer"); err != nil {
				return err
			}
		}
		e := &Exec{s: s, pl: pl, table: s.gtable, copies: s.gcpy}
		pl.gfn(e, &d)
		pl.calls.Add(1)
		return e.finish()
	})
}

func (s *execState) checkTargets(st *driver.GraphState) error {
	if len(s.color) != len(st.ColorFmt) {
		return errTargets
	}
	for i := range s.color {
		if s.color[i].Color.(*View).img.pf != st.ColorFmt[i] {
			return errTargets
		}
	}
	if st.DSFmt != driver.FInvalid && (s.ds == nil || s.ds.DS.(*View).img.pf != st.DSFmt) {
		return errTargets
	}
	return nil
}

// Dispatch dispatches compute thread groups.
func (c *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	if c.inPass {
		c.fail(errPassState)
		return
	}
	grp := [3]int{grpCountX, grpCountY, grpCountZ}
	c.record(func(s *execState) error {
		pl := s.cpl
		if pl == nil {
			return errNoPipeline
		}
		e := &Exec{s: s, pl: pl, table: s.ctable, copies: s.ccpy}
		pl.cfn(e, grp)
		pl.calls.Add(1)
		return e.finish()
	})
}

// CopyBuffer copies data between buffers.
func (c *CmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	if c.inPass {
		c.fail(errPassState)
		return
	}
	p := *param
	c.record(func(s *execState) error {
		from, to := p.From.(*Buffer), p.To.(*Buffer)
		if err := s.gpu.access(&from.track, "copy source"); err != nil {
			return err
		}
		if err := s.gpu.access(&to.track, "copy destination"); err != nil {
			return err
		}
		if p.FromOff < 0 || p.ToOff < 0 || p.FromOff+p.Size > from.Cap() || p.ToOff+p.Size > to.Cap() {
			return fmt.Errorf("%w: buffer copy", errRange)
		}
		copy(to.data[p.ToOff:p.ToOff+p.Size], from.data[p.FromOff:p.FromOff+p.Size])
		s.gpu.wrote(&to.track, driver.ACopyWrite)
		return nil
	})
}

// CopyImage copies data between images.
func (c *CmdBuffer) CopyImage(param *driver.ImageCopy) {
	if c.inPass {
		c.fail(errPassState)
		return
	}
	p := *param
	c.record(func(s *execState) error {
		from, to := p.From.(*Image), p.To.(*Image)
		if err := s.gpu.image(from, "copy source", driver.LCopySrc); err != nil {
			return err
		}
		if err := s.gpu.image(to, "copy destination", driver.LCopyDst); err != nil {
			return err
		}
		for y := range p.Size.Height {
			for x := range p.Size.Width {
				to.Store(p.ToOff.X+x, p.ToOff.Y+y, from.Load(p.FromOff.X+x, p.FromOff.Y+y))
			}
		}
		s.gpu.wrote(&to.track, driver.ACopyWrite)
		return nil
	})
}

// Barrier inserts global barriers.
func (c *CmdBuffer) Barrier(b []driver.Barrier) {
	b = append([]driver.Barrier(nil), b...)
	c.record(func(s *execState) error {
		for i := range b {
			s.gpu.barrier(b[i].AccessBefore)
		}
		return nil
	})
}

// Transition inserts image layout transitions.
func (c *CmdBuffer) Transition(t []driver.Transition) {
	t = append([]driver.Transition(nil), t...)
	c.record(func(s *execState) error {
		for i := range t {
			if err := s.gpu.transition(&t[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetQueries resets a range of queries.
func (c *CmdBuffer) ResetQueries(pool driver.QueryPool, start, n int) {
	if c.inPass {
		c.fail(errPassState)
		return
	}
	p := pool.(*QueryPool)
	c.record(func(s *execState) error {
		p.reset(start, n)
		return nil
	})
}

// WriteTimestamp writes the current time in a query.
func (c *CmdBuffer) WriteTimestamp(pool driver.QueryPool, sync driver.Sync, query int) {
	p := pool.(*QueryPool)
	c.record(func(s *execState) error {
		p.write(query, s.gpu.now())
		return nil
	})
}

// End ends command recording.
func (c *CmdBuffer) End() error {
	if c.state.Load() != cbRecording {
		return errNotRecording
	}
	if c.inPass {
		c.fail(errPassState)
	}
	if err := c.err; err != nil {
		c.cmds = c.cmds[:0]
		c.err = nil
		c.inPass = false
		c.state.Store(cbInitial)
		return err
	}
	c.state.Store(cbExecutable)
	return nil
}

// Reset discards recorded commands.
func (c *CmdBuffer) Reset() error {
	if c.state.Load() == cbPending {
		return errInUse
	}
	c.cmds = c.cmds[:0]
	c.err = nil
	c.inPass = false
	c.state.Store(cbInitial)
	return nil
}

// Destroy destroys the command buffer.
func (c *CmdBuffer) Destroy() { c.cmds = nil }

func (g *GPU) access(t *track, what string) error {
	if t.gone {
		return fmt.Errorf("%w: %s", errDestroyed, what)
	}
	if t.pending != 0 {
		return fmt.Errorf("%w: %s", driver.ErrHazard, what)
	}
	return nil
}

func (g *GPU) wrote(t *track, a driver.Access) {
	t.pending |= a
	g.dirty[t] = struct{}{}
}

func (g *GPU) image(m *Image, what string, layout ...driver.Layout) error {
	if err := g.access(&m.track, what); err != nil {
		return err
	}
	for _, l := range layout {
		if m.layout == l {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %v, want %v", driver.ErrLayout, what, m.layout, layout[0])
}

func (g *GPU) target(iv driver.ImageView, layout driver.Layout) (*Image, error) {
	v := iv.(*View)
	if v.gone {
		return nil, fmt.Errorf("%w: render target view", errDestroyed)
	}
	if err := g.image(v.img, "render target", layout); err != nil {
		return nil, err
	}
	return v.img, nil
}

func (g *GPU) barrier(before driver.Access) {
	for t := range g.dirty {
		if t.pending&before != 0 || before&driver.AAnyWrite != 0 {
			t.pending = 0
			delete(g.dirty, t)
		}
	}
}

func (g *GPU) transition(t *driver.Transition) error {
	m := t.Img.(*Image)
	if m.gone {
		return fmt.Errorf("%w: transition", errDestroyed)
	}
	if t.LayoutBefore != driver.LUndefined {
		if t.LayoutBefore != m.layout {
			return fmt.Errorf("%w: transition from %v, image is %v", driver.ErrLayout, t.LayoutBefore, m.layout)
		}
		if m.pending != 0 && t.AccessBefore&m.pending == 0 && t.AccessBefore&driver.AAnyWrite == 0 {
			return fmt.Errorf("%w: transition does not cover prior writes", driver.ErrHazard)
		}
	}
	m.layout = t.LayoutAfter
	m.pending = 0
	delete(g.dirty, &m.track)
	return nil
}
