// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gviegas/taa/driver"
)

// Graphics is a host implementation of a graphics
// pipeline's programmable stages.
// It is called once per draw call.
type Graphics func(e *Exec, d *Draw)

// Compute is a host implementation of a compute
// shader.
// It is called once per dispatch.
type Compute func(e *Exec, grp [3]int)

// Draw describes the parameters of a draw call.
type Draw struct {
	Indexed   bool
	Count     int
	InstCount int
	BaseVert  int
	BaseIdx   int
	VertOff   int
	BaseInst  int
}

var programs = struct {
	sync.RWMutex
	graph map[string]Graphics
	comp  map[string]Compute
}{
	graph: make(map[string]Graphics),
	comp:  make(map[string]Compute),
}

// RegisterGraphics registers fn as the implementation
// of graphics pipelines whose vertex function is the
// entry point with the given name.
func RegisterGraphics(name string, fn Graphics) {
	programs.Lock()
	defer programs.Unlock()
	programs.graph[name] = fn
}

// RegisterCompute registers fn as the implementation
// of compute pipelines whose function is the entry
// point with the given name.
func RegisterCompute(name string, fn Compute) {
	programs.Lock()
	defer programs.Unlock()
	programs.comp[name] = fn
}

// Pipeline implements driver.Pipeline.
type Pipeline struct {
	graph   *driver.GraphState
	comp    *driver.CompState
	gfn     Graphics
	cfn     Compute
	defines []string
	table   *DescTable
	calls   atomic.Int64
}

func newGraphPipeline(s *driver.GraphState) (*Pipeline, error) {
	if _, ok := s.VertFunc.Code.(*ShaderCode); !ok {
		return nil, errBadCode
	}
	programs.RLock()
	fn := programs.graph[s.VertFunc.Name]
	programs.RUnlock()
	if fn == nil {
		return nil, errNoProgram
	}
	st := *s
	st.ColorFmt = slices.Clone(s.ColorFmt)
	pl := &Pipeline{graph: &st, gfn: fn, defines: slices.Clone(s.VertFunc.Defines)}
	if s.Desc != nil {
		pl.table = s.Desc.(*DescTable)
	}
	return pl, nil
}

func newCompPipeline(s *driver.CompState) (*Pipeline, error) {
	if _, ok := s.Func.Code.(*ShaderCode); !ok {
		return nil, errBadCode
	}
	programs.RLock()
	fn := programs.comp[s.Func.Name]
	programs.RUnlock()
	if fn == nil {
		return nil, errNoProgram
	}
	st := *s
	pl := &Pipeline{comp: &st, cfn: fn, defines: slices.Clone(s.Func.Defines)}
	if s.Desc != nil {
		pl.table = s.Desc.(*DescTable)
	}
	return pl, nil
}

// Calls returns the number of draw calls or dispatches
// executed with the pipeline.
func (p *Pipeline) Calls() int64 { return p.calls.Load() }

// Defines returns the features that the pipeline's
// shader functions were built with.
func (p *Pipeline) Defines() []string { return slices.Clone(p.defines) }

// Destroy destroys the pipeline.
func (p *Pipeline) Destroy() {}
