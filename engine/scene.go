// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gviegas/taa/engine/internal/shader"
	"github.com/gviegas/taa/linear"
)

var (
	// ErrEmptyScene means that a scene has nothing to
	// draw. The previous scene is kept.
	ErrEmptyScene = errors.New("renderer: empty scene")

	// ErrBadScene means that a scene is malformed.
	// The previous scene is kept.
	ErrBadScene = errors.New("renderer: invalid scene")
)

// Vertex is a mesh vertex.
type Vertex struct {
	Position linear.V3
	Normal   linear.V3
}

// Mesh is a triangle list.
// If Indices is empty, every three consecutive vertices
// form a triangle.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Object is a set of meshes sharing a world transform.
type Object struct {
	Transform linear.M4
	Meshes    []Mesh
}

// PointLight is a point light.
// Transform places the light's debug shape, which is a
// cube spanning [-1, 1] on every axis.
// A zero Color is drawn as white.
type PointLight struct {
	Position  linear.V4
	Transform linear.M4
	Color     linear.V3
}

// Scene is the data drawn by a Renderer.
type Scene struct {
	Objects []Object
	Lights  []PointLight
}

// drawCmd is a draw call of a flattened mesh.
type drawCmd struct {
	object  int
	first   int
	count   int
	vertOff int
	indexed bool
}

// sceneData is a scene flattened into host arrays.
type sceneData struct {
	positions []float32
	normals   []float32
	indices   []uint32
	lights    []shader.LightLayout
	draws     []shader.DrawLayout
	cmds      []drawCmd
}

// flatten validates s and flattens it into host arrays.
func flatten(s *Scene) (*sceneData, error) {
	if s == nil {
		return nil, ErrEmptyScene
	}
	d := new(sceneData)
	for i := range s.Objects {
		obj := &s.Objects[i]
		for j := range obj.Meshes {
			m := &obj.Meshes[j]
			nv := len(m.Vertices)
			if nv == 0 {
				continue
			}
			cmd := drawCmd{object: len(d.draws), vertOff: len(d.positions) / 3}
			if len(m.Indices) == 0 {
				if nv%3 != 0 {
					return nil, fmt.Errorf("%w: object %d mesh %d: %d vertices do not form triangles", ErrBadScene, i, j, nv)
				}
				cmd.first, cmd.count = cmd.vertOff, nv
			} else {
				if len(m.Indices)%3 != 0 {
					return nil, fmt.Errorf("%w: object %d mesh %d: %d indices do not form triangles", ErrBadScene, i, j, len(m.Indices))
				}
				for _, x := range m.Indices {
					if int(x) >= nv {
						return nil, fmt.Errorf("%w: object %d mesh %d: index %d out of range", ErrBadScene, i, j, x)
					}
				}
				cmd.first, cmd.count, cmd.indexed = len(d.indices), len(m.Indices), true
				d.indices = append(d.indices, m.Indices...)
			}
			for _, v := range m.Vertices {
				d.positions = append(d.positions, v.Position[:]...)
				d.normals = append(d.normals, v.Normal[:]...)
			}
			d.cmds = append(d.cmds, cmd)
		}
		if len(d.cmds) > 0 && d.cmds[len(d.cmds)-1].object == len(d.draws) {
			var l shader.DrawLayout
			var inv, n linear.M4
			inv.Invert(&obj.Transform)
			n.Transpose(&inv)
			l.SetWorld(&obj.Transform)
			l.SetNormal(&n)
			d.draws = append(d.draws, l)
		}
	}
	if len(d.cmds) == 0 {
		return nil, ErrEmptyScene
	}
	d.lights = make([]shader.LightLayout, len(s.Lights))
	for i := range s.Lights {
		l := &s.Lights[i]
		c := l.Color
		if c == (linear.V3{}) {
			c = linear.V3{1, 1, 1}
		}
		d.lights[i].SetWorld(&l.Transform)
		d.lights[i].SetPosition(&l.Position)
		d.lights[i].SetColor(&c)
	}
	return d, nil
}

// Sizes in bytes of the scene buffers.
// Every buffer has at least 4 bytes, so that empty
// arrays can still be bound.
func (d *sceneData) sizes() (pos, nrm, idx, light int64) {
	pos = max(4, int64(len(d.positions))*4)
	nrm = max(4, int64(len(d.normals))*4)
	idx = max(4, int64(len(d.indices))*4)
	light = max(shader.LightSize, int64(len(d.lights))*shader.LightSize)
	return
}

func bytesOf[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(s[0])))
}
