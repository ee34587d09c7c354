// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package resource maps logical resource identifiers to
// the physical GPU resources backing them.
//
// Tasks refer to logical resources only. The backing
// resource can be replaced (e.g., on resize) or swapped
// with another (e.g., history ping-pong) without
// changing any task.
package resource

import (
	"errors"
	"fmt"

	"github.com/gviegas/taa/driver"
	"github.com/gviegas/taa/internal/bitvec"
)

// ID identifies a logical resource.
type ID int

// Kind is the kind of a resource.
type Kind int

// Resource kinds.
const (
	Image Kind = iota
	Buffer
)

func (k Kind) String() string {
	if k == Image {
		return "image"
	}
	return "buffer"
}

// Errors returned by Registry and Physical methods.
var (
	ErrKind      = errors.New("resource: kind mismatch")
	ErrAliased   = errors.New("resource: physical resource bound to another id")
	ErrUnbound   = errors.New("resource: no physical resource bound")
	ErrDestroyed = errors.New("resource: physical resource destroyed")
	ErrBound     = errors.New("resource: physical resource still bound")
	ErrUnknown   = errors.New("resource: unknown id")
)

// State is the access state of a physical resource as
// left by the last commands that used it.
// The zero value means that the resource was never
// used and has undefined contents.
type State struct {
	Layout driver.Layout
	Sync   driver.Sync
	Access driver.Access
	// Write indicates that the last access wrote
	// to the resource.
	Write bool
	// Used distinguishes a used buffer from a new one.
	Used bool
}

// Physical is a physical GPU resource.
// It carries its own access State, so that the state
// follows the resource when it is bound to a different
// logical id.
type Physical struct {
	kind     Kind
	name     string
	img      driver.Image
	view     driver.ImageView
	buf      driver.Buffer
	borrowed bool
	bound    ID
	gone     bool

	State State
}

// NewImage creates a physical image resource that owns
// img and view.
func NewImage(name string, img driver.Image, view driver.ImageView) *Physical {
	return &Physical{kind: Image, name: name, img: img, view: view, bound: -1}
}

// NewView creates a physical image resource from a view
// that is owned elsewhere (e.g., by a swapchain).
// Destroy does not destroy the view.
func NewView(name string, view driver.ImageView) *Physical {
	return &Physical{kind: Image, name: name, img: view.Image(), view: view, borrowed: true, bound: -1}
}

// NewBuffer creates a physical buffer resource that
// owns buf.
func NewBuffer(name string, buf driver.Buffer) *Physical {
	return &Physical{kind: Buffer, name: name, buf: buf, bound: -1}
}

// Kind returns the kind of the resource.
func (p *Physical) Kind() Kind { return p.kind }

// Name returns the debug name of the resource.
func (p *Physical) Name() string { return p.name }

// Image returns the driver image, if any.
func (p *Physical) Image() driver.Image { return p.img }

// View returns the driver image view, if any.
func (p *Physical) View() driver.ImageView { return p.view }

// Buffer returns the driver buffer, if any.
func (p *Physical) Buffer() driver.Buffer { return p.buf }

// Bound returns the id that p is bound to, if any.
func (p *Physical) Bound() (ID, bool) { return p.bound, p.bound >= 0 }

// Destroyed returns whether Destroy was called.
func (p *Physical) Destroyed() bool { return p.gone }

// Destroy destroys the driver resources owned by p.
// p must not be bound.
func (p *Physical) Destroy() error {
	if p.bound >= 0 {
		return fmt.Errorf("%w: %s", ErrBound, p.name)
	}
	if p.gone {
		return nil
	}
	p.gone = true
	if p.borrowed {
		return nil
	}
	if p.view != nil {
		p.view.Destroy()
	}
	if p.img != nil {
		p.img.Destroy()
	}
	if p.buf != nil {
		p.buf.Destroy()
	}
	return nil
}

type entry struct {
	kind Kind
	name string
	phys *Physical
}

// Registry maps logical ids to physical resources.
// A logical id has at most one physical resource bound
// at any time, and a physical resource is bound to at
// most one id.
type Registry struct {
	ids  bitvec.V[uint32]
	ents []entry
}

// Declare declares a new logical resource.
func (r *Registry) Declare(kind Kind, name string) ID {
	idx, ok := r.ids.Search()
	if !ok {
		idx = r.ids.Grow(1)
	}
	r.ids.Set(idx)
	if idx >= len(r.ents) {
		r.ents = append(r.ents, make([]entry, idx+1-len(r.ents))...)
	}
	r.ents[idx] = entry{kind: kind, name: name}
	return ID(idx)
}

// Remove removes a logical resource, unbinding it first.
// It returns the physical resource that was bound, if any.
func (r *Registry) Remove(id ID) *Physical {
	if !r.valid(id) {
		return nil
	}
	p := r.Unbind(id)
	r.ids.Unset(int(id))
	r.ents[id] = entry{}
	return p
}

func (r *Registry) valid(id ID) bool { return id >= 0 && r.ids.IsSet(int(id)) }

// Len returns the number of declared logical resources.
func (r *Registry) Len() int { return r.ids.Count() }

// Kind returns the kind of id.
func (r *Registry) Kind(id ID) Kind { return r.ents[id].kind }

// Name returns the debug name of id.
func (r *Registry) Name(id ID) string {
	if !r.valid(id) {
		return fmt.Sprintf("<invalid %d>", id)
	}
	return r.ents[id].name
}

// Valid returns whether id is a declared logical resource.
func (r *Registry) Valid(id ID) bool { return r.valid(id) }

// Bind binds p to id, replacing any prior binding.
// The prior physical resource, if any, is detached
// before p is attached.
func (r *Registry) Bind(id ID, p *Physical) error {
	if !r.valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	e := &r.ents[id]
	switch {
	case p.gone:
		return fmt.Errorf("%w: %s", ErrDestroyed, p.name)
	case p.kind != e.kind:
		return fmt.Errorf("%w: binding %v %s to %v %s", ErrKind, p.kind, p.name, e.kind, e.name)
	case p.bound >= 0 && p.bound != id:
		return fmt.Errorf("%w: %s is bound to %s", ErrAliased, p.name, r.ents[p.bound].name)
	}
	if e.phys != nil {
		e.phys.bound = -1
	}
	e.phys = p
	p.bound = id
	return nil
}

// Unbind detaches the physical resource bound to id and
// returns it, or returns nil if id is not bound.
func (r *Registry) Unbind(id ID) *Physical {
	if !r.valid(id) {
		return nil
	}
	e := &r.ents[id]
	p := e.phys
	if p != nil {
		p.bound = -1
		e.phys = nil
	}
	return p
}

// Swap exchanges the physical resources bound to a and b.
// Both ids must be bound and of the same kind.
func (r *Registry) Swap(a, b ID) error {
	if !r.valid(a) || !r.valid(b) {
		return ErrUnknown
	}
	ea, eb := &r.ents[a], &r.ents[b]
	if ea.kind != eb.kind {
		return fmt.Errorf("%w: swapping %s and %s", ErrKind, ea.name, eb.name)
	}
	if ea.phys == nil || eb.phys == nil {
		return fmt.Errorf("%w: swapping %s and %s", ErrUnbound, ea.name, eb.name)
	}
	ea.phys, eb.phys = eb.phys, ea.phys
	ea.phys.bound, eb.phys.bound = a, b
	return nil
}

// Resolve returns the physical resource bound to id.
// It fails if no resource is bound or if the bound
// resource was destroyed.
func (r *Registry) Resolve(id ID) (*Physical, error) {
	if !r.valid(id) {
		return nil, fmt.Errorf("%w: %d", ErrUnknown, id)
	}
	e := &r.ents[id]
	switch {
	case e.phys == nil:
		return nil, fmt.Errorf("%w: %s", ErrUnbound, e.name)
	case e.phys.gone:
		return nil, fmt.Errorf("%w: %s", ErrDestroyed, e.name)
	}
	return e.phys, nil
}
