// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package shader defines the data layouts, descriptors
// and shader programs of the renderer.
//
// Programs are written in WGSL and embedded in the
// package. Each program also has a host implementation
// that the soft driver executes in place of the
// compiled binary.
package shader

import (
	"embed"
)

//go:embed wgsl/*.wgsl
var files embed.FS

// FS returns the file system containing the WGSL
// sources. Files are named after the Program they
// implement (e.g., "wgsl/scene.wgsl").
func FS() embed.FS { return files }

// Program identifies a shader program.
type Program int

// Programs.
const (
	Scene Program = iota
	Lights
	Resolve
	Tonemap
)

var programs = [...]struct {
	name     string
	entry    [2]string
	features []string
}{
	Scene:   {"scene", [2]string{"scene_vertex", "scene_fragment"}, []string{Jitter}},
	Lights:  {"lights", [2]string{"lights_vertex", "lights_fragment"}, []string{Jitter}},
	Resolve: {"resolve", [2]string{"resolve_main"}, []string{Accumulate, ColorClamp, RejectVelocity, ReprojectVelocity, NearestDepth}},
	Tonemap: {"tonemap", [2]string{"tonemap_vertex", "tonemap_fragment"}, nil},
}

func (p Program) String() string { return programs[p].name }

// File returns the name of the program's source file
// relative to the shader directory.
func (p Program) File() string { return programs[p].name + ".wgsl" }

// Path returns the path of the program's source in FS.
func (p Program) Path() string { return "wgsl/" + p.File() }

// Vertex returns the name of the vertex entry point.
// For compute programs, it returns the compute entry
// point.
func (p Program) Vertex() string { return programs[p].entry[0] }

// Fragment returns the name of the fragment entry point.
// It returns the empty string for compute programs.
func (p Program) Fragment() string { return programs[p].entry[1] }

// Features returns the names of the features that the
// program recognizes.
func (p Program) Features() []string { return append([]string(nil), programs[p].features...) }

// Feature names.
const (
	Jitter            = "JITTER"
	Accumulate        = "ACCUMULATE"
	ColorClamp        = "COLOR_CLAMP"
	RejectVelocity    = "REJECT_VELOCITY"
	ReprojectVelocity = "REPROJECT_VELOCITY"
	NearestDepth      = "NEAREST_DEPTH"
)

// Workgroup size of the resolve program.
const (
	ResolveGroupX = 8
	ResolveGroupY = 4
)
