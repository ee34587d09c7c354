// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements a real-time renderer with
// temporal anti-aliasing.
//
// Every frame is described by a task graph that is
// compiled once, when the Renderer is created. The graph
// renders the scene and its velocity into offscreen
// targets, draws the debug lights, resolves the result
// against the accumulated history and tone maps it into
// the swapchain.
package engine

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gviegas/taa/driver"
)

const (
	// The maximum number of frames in flight.
	MaxFrame = 3

	// The maximum number of samples that the resolve
	// accumulates.
	MaxSamples = 64

	dflNear          = 0.1
	dflFar           = 500
	dflMaxSamples    = 16
	dflVelocityScale = 0.5
)

// Compiler compiles WGSL source into SPIR-V.
type Compiler interface {
	Compile(wgsl string) ([]byte, error)
}

// Config is used to configure a Renderer.
type Config struct {
	// Name of the driver to use.
	// Any driver whose name contains this string
	// (case insensitive) is considered.
	//
	// Default is "" (any driver).
	Driver string

	// Use triple-buffering rather than the default
	// double-buffering.
	//
	// Default is false.
	TripleBuffered bool

	// Near and far planes of the camera projection.
	//
	// Defaults are 0.1 and 500.
	Near, Far float32

	// Format of the HDR color targets.
	//
	// Default is driver.RGBA16f.
	ColorFmt driver.PixelFmt

	// Format of the velocity targets.
	//
	// Default is driver.RG16f.
	VelocityFmt driver.PixelFmt

	// Format of the depth target.
	//
	// Default is driver.D32f.
	DepthFmt driver.PixelFmt

	// The maximum number of accumulated samples.
	// It must be in the range [1, MaxSamples].
	//
	// Default is 16.
	MaxSamples int

	// Scale applied to velocity differences, in
	// pixels, when rejecting history.
	//
	// Default is 0.5.
	VelocityScale float32

	// Let the task graph batch independent tasks.
	//
	// Default is true.
	Reorder bool

	// Check the shader sources for changes every
	// frame and recompile the pipelines whose
	// source changed. Only meaningful when ShaderDir
	// is set.
	//
	// Default is false.
	HotReload bool

	// Directory containing the WGSL sources.
	// If empty, the embedded sources are used.
	//
	// Default is "".
	ShaderDir string

	// Compiler used to build the pipelines.
	// If nil, the naga compiler is used.
	//
	// Default is nil.
	Compiler Compiler

	// Logger used by the renderer.
	// If nil, no output is produced.
	//
	// Default is nil.
	Logger *slog.Logger

	// Registerer on which the renderer's metrics
	// are registered.
	// If nil, metrics are collected but not
	// registered.
	//
	// Default is nil.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Near:          dflNear,
		Far:           dflFar,
		ColorFmt:      driver.RGBA16f,
		VelocityFmt:   driver.RG16f,
		DepthFmt:      driver.D32f,
		MaxSamples:    dflMaxSamples,
		VelocityScale: dflVelocityScale,
		Reorder:       true,
	}
}

// validate replaces invalid values of c with defaults.
func (c *Config) validate() {
	dfl := DefaultConfig()
	if c.Near <= 0 || c.Far <= c.Near {
		c.Near, c.Far = dfl.Near, dfl.Far
	}
	if c.ColorFmt == driver.FInvalid || c.ColorFmt.IsDS() {
		c.ColorFmt = dfl.ColorFmt
	}
	if c.VelocityFmt == driver.FInvalid || c.VelocityFmt.IsDS() {
		c.VelocityFmt = dfl.VelocityFmt
	}
	if !c.DepthFmt.IsDS() {
		c.DepthFmt = dfl.DepthFmt
	}
	if c.MaxSamples < 1 || c.MaxSamples > MaxSamples {
		c.MaxSamples = dfl.MaxSamples
	}
	if c.VelocityScale <= 0 {
		c.VelocityScale = dfl.VelocityScale
	}
}

// frames returns the number of frames in flight.
func (c *Config) frames() int {
	if c.TripleBuffered {
		return MaxFrame
	}
	return 2
}
