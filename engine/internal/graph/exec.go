// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package graph

import (
	"fmt"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/engine/internal/resource"
)

// Execute records the graph's commands into cb, which
// must be recording.
// Every logical resource used by the graph must be bound
// to a physical resource. Bindings are resolved before
// anything is recorded, so a missing binding leaves cb
// unchanged.
// The access state of each physical resource is updated
// to reflect the last access the graph made.
// If cb is not submitted afterwards, Revert must be
// called to restore the previous states.
func (g *Graph) Execute(cb driver.CmdBuffer) error {
	if g.state != Compiled {
		return fmt.Errorf("%w: Execute called in %v state", ErrState, g.state)
	}
	for i := range g.res {
		p, err := g.reg.Resolve(g.res[i].id)
		if err != nil {
			return fmt.Errorf("graph: %s: resource %q: %w", g.name, g.reg.Name(g.res[i].id), err)
		}
		g.phys[i] = p
	}
	clear(g.prev)
	g.prev = g.prev[:0]
	g.state = Executing
	defer func() {
		g.state = Compiled
		clear(g.phys)
	}()

	var (
		ts []driver.Transition
		bs []driver.Barrier
	)
	next := make([]int, len(g.res))
	for bi, batch := range g.batches {
		ts, bs = ts[:0], bs[:0]
		for _, ri := range g.at[bi] {
			rp := &g.res[ri]
			gi := next[ri]
			next[ri]++
			var (
				b   driver.Barrier
				lb  driver.Layout
				ok  bool
				cur = &rp.groups[gi]
			)
			if gi == 0 {
				b, lb, ok = initial(&g.phys[ri].State, rp.kind, cur)
			} else {
				b, lb, ok = between(&rp.groups[gi-1], cur), rp.groups[gi-1].layout, true
			}
			if !ok {
				continue
			}
			if rp.kind == resource.Image {
				ts = append(ts, driver.Transition{
					Barrier:      b,
					LayoutBefore: lb,
					LayoutAfter:  cur.layout,
					Img:          g.phys[ri].Image(),
					Layers:       1,
					Levels:       1,
				})
			} else {
				bs = append(bs, b)
			}
		}
		if len(bs) > 0 {
			cb.Barrier(mergeBarriers(bs))
		}
		if len(ts) > 0 {
			cb.Transition(ts)
		}
		for _, ti := range batch {
			t := g.tasks[ti]
			if t.Run == nil {
				continue
			}
			rt := &Runtime{g: g, t: t, cb: cb}
			err := t.Run(rt)
			rt.done = true
			if err != nil {
				return fmt.Errorf("graph: %s: task %q: %w", g.name, t.Name, err)
			}
		}
	}

	for i := range g.res {
		g.prev = append(g.prev, prevState{g.phys[i], g.phys[i].State})
		last := &g.res[i].groups[len(g.res[i].groups)-1]
		g.phys[i].State = resource.State{
			Layout: last.layout,
			Sync:   last.sync,
			Access: last.access,
			Write:  last.write,
			Used:   true,
		}
	}
	return nil
}

type prevState struct {
	phys  *resource.Physical
	state resource.State
}

// Revert restores the access states that the last
// successful call to Execute replaced.
// It is meant to be called when the recorded commands
// are discarded. Calling it again has no effect.
func (g *Graph) Revert() {
	for i := len(g.prev) - 1; i >= 0; i-- {
		g.prev[i].phys.State = g.prev[i].state
	}
	clear(g.prev)
	g.prev = g.prev[:0]
}

// between returns the barrier that separates two
// consecutive groups of the same resource.
// Only writes need to be made available.
func between(prev, next *group) driver.Barrier {
	b := driver.Barrier{
		SyncBefore:  prev.sync,
		SyncAfter:   next.sync,
		AccessAfter: next.access,
	}
	if prev.write {
		b.AccessBefore = prev.access
	}
	return b
}

// initial returns the barrier that separates the first
// group of a resource from the commands recorded before
// the graph. ok is false if no barrier is needed.
func initial(st *resource.State, kind resource.Kind, g *group) (b driver.Barrier, before driver.Layout, ok bool) {
	b = driver.Barrier{SyncAfter: g.sync, AccessAfter: g.access}
	if kind == resource.Image {
		if st.Layout == driver.LUndefined {
			return b, driver.LUndefined, true
		}
		if !st.Write && !g.write && st.Layout == g.layout {
			return b, st.Layout, false
		}
	} else if !st.Used || (!st.Write && !g.write) {
		return b, driver.LUndefined, false
	}
	b.SyncBefore = st.Sync
	if st.Write {
		b.AccessBefore = st.Access
	}
	return b, st.Layout, true
}

// mergeBarriers combines global barriers into one.
func mergeBarriers(bs []driver.Barrier) []driver.Barrier {
	var m driver.Barrier
	for _, b := range bs {
		m.SyncBefore |= b.SyncBefore
		m.SyncAfter |= b.SyncAfter
		m.AccessBefore |= b.AccessBefore
		m.AccessAfter |= b.AccessAfter
	}
	return []driver.Barrier{m}
}

// Runtime is the context in which a task records its
// commands. It is only valid during the call to Task.Run.
type Runtime struct {
	g    *Graph
	t    *task
	cb   driver.CmdBuffer
	done bool
}

func (rt *Runtime) physical(id resource.ID) *resource.Physical {
	if rt.done {
		panic("graph: Runtime used after Task.Run returned")
	}
	if rt.t.find(id) == nil {
		panic(fmt.Sprintf("graph: task %q did not declare resource %d", rt.t.Name, id))
	}
	return rt.g.phys[rt.g.index[id]]
}

// Cmd returns the command buffer being recorded.
func (rt *Runtime) Cmd() driver.CmdBuffer {
	if rt.done {
		panic("graph: Runtime used after Task.Run returned")
	}
	return rt.cb
}

// Task returns the name of the running task.
func (rt *Runtime) Task() string { return rt.t.Name }

// Image returns the physical image bound to id.
// The task must have declared a use of id.
func (rt *Runtime) Image(id resource.ID) driver.Image { return rt.physical(id).Image() }

// View returns the physical image view bound to id.
// The task must have declared a use of id.
func (rt *Runtime) View(id resource.ID) driver.ImageView { return rt.physical(id).View() }

// Buffer returns the physical buffer bound to id.
// The task must have declared a use of id.
func (rt *Runtime) Buffer(id resource.ID) driver.Buffer { return rt.physical(id).Buffer() }
