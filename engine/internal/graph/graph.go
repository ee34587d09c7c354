// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package graph implements a task graph that sequences
// GPU work within a frame.
//
// Tasks declare the logical resources they access and
// how. From these declarations, the graph derives the
// ordering constraints between tasks and the barriers
// and layout transitions that must be recorded between
// them. The graph is compiled once and executed every
// frame.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/engine/internal/resource"
)

// Mode is the type of a resource access mode.
type Mode int

// Access modes.
const (
	CopyRead Mode = iota
	CopyWrite
	VertexRead
	IndexRead
	ConstRead
	ShaderRead
	ShaderWrite
	ShaderReadWrite
	ColorWrite
	DSWrite
	DSRead
	Present
)

const (
	forImage = 1 << iota
	forBuffer
)

type modeInfo struct {
	access driver.Access
	layout driver.Layout
	write  bool
	kinds  int
	name   string
}

var modes = [...]modeInfo{
	CopyRead:        {driver.ACopyRead, driver.LCopySrc, false, forImage | forBuffer, "CopyRead"},
	CopyWrite:       {driver.ACopyWrite, driver.LCopyDst, true, forImage | forBuffer, "CopyWrite"},
	VertexRead:      {driver.AVertexBufRead, driver.LUndefined, false, forBuffer, "VertexRead"},
	IndexRead:       {driver.AIndexBufRead, driver.LUndefined, false, forBuffer, "IndexRead"},
	ConstRead:       {driver.AShaderRead, driver.LUndefined, false, forBuffer, "ConstRead"},
	ShaderRead:      {driver.AShaderRead, driver.LShaderRead, false, forImage | forBuffer, "ShaderRead"},
	ShaderWrite:     {driver.AShaderWrite, driver.LShaderStore, true, forImage | forBuffer, "ShaderWrite"},
	ShaderReadWrite: {driver.AShaderRead | driver.AShaderWrite, driver.LShaderStore, true, forImage | forBuffer, "ShaderReadWrite"},
	ColorWrite:      {driver.AColorRead | driver.AColorWrite, driver.LColorTarget, true, forImage, "ColorWrite"},
	DSWrite:         {driver.ADSRead | driver.ADSWrite, driver.LDSTarget, true, forImage, "DSWrite"},
	DSRead:          {driver.ADSRead, driver.LDSRead, false, forImage, "DSRead"},
	Present:         {driver.ANone, driver.LPresent, false, forImage, "Present"},
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modes) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modes[m].name
}

func (m Mode) validFor(k resource.Kind) bool {
	if m < 0 || int(m) >= len(modes) {
		return false
	}
	if k == resource.Image {
		return modes[m].kinds&forImage != 0
	}
	return modes[m].kinds&forBuffer != 0
}

// Use declares an access to a logical resource.
// Stage is the synchronization scope in which the
// access happens.
type Use struct {
	Res   resource.ID
	Mode  Mode
	Stage driver.Sync
}

// Task is a unit of GPU work.
// Run records commands using the resources declared in
// Uses. After lists the names of tasks that must run
// before this one even if no resource dependency exists.
type Task struct {
	Name  string
	Uses  []Use
	After []string
	Run   func(rt *Runtime) error
}

// Options configures a Builder.
type Options struct {
	// Reorder allows independent tasks to be grouped
	// into batches that share barriers.
	// Otherwise tasks run in declaration order whenever
	// it is consistent with the dependencies.
	Reorder bool

	// Name is used for logging.
	Name string

	// Logger receives the compiled plan at debug level.
	// Nil disables logging.
	Logger *slog.Logger
}

// State is the state of a task graph.
type State int

// Task graph states.
const (
	Building State = iota
	Compiled
	Executing
)

func (s State) String() string {
	switch s {
	case Building:
		return "Building"
	case Compiled:
		return "Compiled"
	case Executing:
		return "Executing"
	}
	return "State(?)"
}

// Hazard is the type of a data hazard between two tasks.
type Hazard int

// Hazards.
const (
	NoHazard Hazard = iota
	// Read after write.
	RAW
	// Write after read.
	WAR
	// Write after write.
	WAW
	// Reads in different layouts.
	LayoutChange
)

func (h Hazard) String() string {
	switch h {
	case NoHazard:
		return "none"
	case RAW:
		return "RAW"
	case WAR:
		return "WAR"
	case WAW:
		return "WAW"
	case LayoutChange:
		return "layout"
	}
	return "Hazard(?)"
}

// Edge is an ordering constraint between two tasks.
// Res is -1 for explicit dependencies.
type Edge struct {
	From   string
	To     string
	Hazard Hazard
	Res    resource.ID
}

var (
	// ErrConstruction is matched by every error that
	// Builder methods return.
	ErrConstruction = errors.New("graph: construction error")

	// ErrCycle means that the task dependencies contain
	// a cycle.
	ErrCycle = errors.New("graph: dependency cycle")

	// ErrState means that a method was called in the
	// wrong state.
	ErrState = errors.New("graph: invalid state")
)

// Error is a construction error.
// Cycle is set when Kind is ErrCycle and lists the task
// names of one cycle, with the first task repeated at
// the end.
type Error struct {
	Kind  error
	Msg   string
	Cycle []string
}

func (e *Error) Error() string {
	if e.Cycle != nil {
		return "graph: " + e.Msg + ": " + strings.Join(e.Cycle, " -> ")
	}
	return "graph: " + e.Msg
}

// Unwrap returns e.Kind.
func (e *Error) Unwrap() error { return e.Kind }

// Is reports whether target is ErrConstruction.
func (e *Error) Is(target error) bool { return target == ErrConstruction }

func constructionErr(format string, args ...any) error {
	return &Error{Kind: ErrConstruction, Msg: fmt.Sprintf(format, args...)}
}

type use struct {
	res    resource.ID
	access driver.Access
	layout driver.Layout
	sync   driver.Sync
	write  bool
}

type task struct {
	Task
	uses []use
}

func (t *task) find(id resource.ID) *use {
	for i := range t.uses {
		if t.uses[i].res == id {
			return &t.uses[i]
		}
	}
	return nil
}

// Builder builds task graphs.
type Builder struct {
	reg   *resource.Registry
	opts  Options
	tasks []*task
	names map[string]int
	state State
}

// NewBuilder creates a new Builder that declares tasks
// over the resources of reg.
func NewBuilder(reg *resource.Registry, opts Options) *Builder {
	return &Builder{
		reg:   reg,
		opts:  opts,
		names: make(map[string]int),
		state: Building,
	}
}

// Add adds a task to the graph.
// Tasks are kept in declaration order, which is also
// the order in which they run when no dependency
// requires otherwise.
func (b *Builder) Add(t Task) error {
	if b.state != Building {
		return constructionErr("Add called in %v state", b.state)
	}
	if t.Name == "" {
		return constructionErr("task with empty name")
	}
	if _, dup := b.names[t.Name]; dup {
		return constructionErr("duplicate task %q", t.Name)
	}
	if t.Run == nil {
		return constructionErr("task %q has no Run function", t.Name)
	}
	return b.add(t)
}

func (b *Builder) add(t Task) error {
	nt := &task{Task: t}
	for _, u := range t.Uses {
		if !b.reg.Valid(u.Res) {
			return constructionErr("task %q uses undeclared resource %d", t.Name, u.Res)
		}
		kind := b.reg.Kind(u.Res)
		if !u.Mode.validFor(kind) {
			return constructionErr("task %q: mode %v is not valid for %v %q", t.Name, u.Mode, kind, b.reg.Name(u.Res))
		}
		mi := modes[u.Mode]
		nu := use{res: u.Res, access: mi.access, layout: mi.layout, sync: u.Stage, write: mi.write}
		if kind == resource.Buffer {
			nu.layout = driver.LUndefined
		}
		if prev := nt.find(u.Res); prev != nil {
			if prev.layout != nu.layout {
				return constructionErr("task %q uses %q in layouts %v and %v", t.Name, b.reg.Name(u.Res), prev.layout, nu.layout)
			}
			prev.access |= nu.access
			prev.sync |= nu.sync
			prev.write = prev.write || nu.write
			continue
		}
		nt.uses = append(nt.uses, nu)
	}
	b.names[t.Name] = len(b.tasks)
	b.tasks = append(b.tasks, nt)
	return nil
}

// Present declares that the image identified by id must
// be in the LPresent layout at the end of the graph.
// It adds a task named "present" that runs after every
// task that accesses the image.
func (b *Builder) Present(id resource.ID) error {
	if b.state != Building {
		return constructionErr("Present called in %v state", b.state)
	}
	if _, dup := b.names["present"]; dup {
		return constructionErr("duplicate task %q", "present")
	}
	return b.add(Task{Name: "present", Uses: []Use{{Res: id, Mode: Present}}})
}

// Compile validates the task declarations and creates
// the executable graph.
// The Builder cannot be used afterwards.
func (b *Builder) Compile() (*Graph, error) {
	if b.state != Building {
		return nil, constructionErr("Compile called in %v state", b.state)
	}
	if len(b.tasks) == 0 {
		return nil, constructionErr("no tasks")
	}
	g, err := compile(b)
	if err != nil {
		return nil, err
	}
	b.state = Compiled
	if log := b.opts.Logger; log != nil {
		log.Debug("task graph compiled", "graph", b.opts.Name, "tasks", len(g.tasks), "batches", len(g.batches), "edges", len(g.edges), "barriers", g.planned)
	}
	return g, nil
}
