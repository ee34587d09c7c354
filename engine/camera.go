// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/gviegas/taa/linear"
)

// Camera provides the view of a frame.
type Camera interface {
	// ViewProj returns the projection matrix
	// multiplied by the view matrix, without
	// any jitter applied.
	ViewProj(near, far float32, width, height int) linear.M4

	// Position returns the position of the camera
	// in world space.
	Position() linear.V3
}

// LookCamera is a perspective Camera looking from Eye
// towards Center.
// FovY is given in radians. If zero, π/4 is used.
type LookCamera struct {
	Eye    linear.V3
	Center linear.V3
	Up     linear.V3
	FovY   float32
}

// ViewProj implements Camera.
func (c *LookCamera) ViewProj(near, far float32, width, height int) linear.M4 {
	fovy := c.FovY
	if fovy <= 0 {
		fovy = 0.7853982
	}
	up := c.Up
	if up == (linear.V3{}) {
		up = linear.V3{0, 1, 0}
	}
	var v, p, m linear.M4
	v.LookAt(&c.Eye, &c.Center, &up)
	p.Perspective(fovy, float32(width)/float32(max(height, 1)), near, far)
	m.Mul(&p, &v)
	return m
}

// Position implements Camera.
func (c *LookCamera) Position() linear.V3 { return c.Eye }
