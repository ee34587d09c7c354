// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package temporal

import (
	"errors"

	"github.com/gviegas/taa/engine/internal/resource"
)

// Pair is a pair of physical images that alternate
// between the roles of current and history every frame.
// The roles are exposed as two logical resources whose
// bindings are exchanged by Swap, so tasks declared
// against the logical ids never change.
type Pair struct {
	reg   *resource.Registry
	cur   resource.ID
	hist  resource.ID
	slots [2]*resource.Physical
	idx   int
}

// NewPair declares the logical resources of a new Pair.
// They are named name+".current" and name+".history".
func NewPair(reg *resource.Registry, name string) *Pair {
	return &Pair{
		reg:  reg,
		cur:  reg.Declare(resource.Image, name+".current"),
		hist: reg.Declare(resource.Image, name+".history"),
	}
}

// Set binds a as the current image and b as the
// history image.
// Any previous images must have been released.
func (p *Pair) Set(a, b *resource.Physical) error {
	if p.slots[0] != nil || p.slots[1] != nil {
		return errors.New("temporal: Pair.Set: images not released")
	}
	if err := p.reg.Bind(p.cur, a); err != nil {
		return err
	}
	if err := p.reg.Bind(p.hist, b); err != nil {
		p.reg.Unbind(p.cur)
		return err
	}
	p.slots = [2]*resource.Physical{a, b}
	p.idx = 0
	return nil
}

// Swap exchanges the roles of the images.
// The image that was written as current becomes the
// history of the next frame.
func (p *Pair) Swap() error {
	if err := p.reg.Swap(p.cur, p.hist); err != nil {
		return err
	}
	p.idx ^= 1
	return nil
}

// Current returns the logical id of the current image.
func (p *Pair) Current() resource.ID { return p.cur }

// History returns the logical id of the history image.
func (p *Pair) History() resource.ID { return p.hist }

// Index returns the slot that currently has the role
// of current image (0 or 1).
func (p *Pair) Index() int { return p.idx }

// Slot returns the physical image in slot i.
func (p *Pair) Slot(i int) *resource.Physical { return p.slots[i] }

// Release unbinds both images and returns them.
// The caller is responsible for destroying them.
func (p *Pair) Release() [2]*resource.Physical {
	s := p.slots
	p.reg.Unbind(p.cur)
	p.reg.Unbind(p.hist)
	p.slots = [2]*resource.Physical{}
	p.idx = 0
	return s
}
