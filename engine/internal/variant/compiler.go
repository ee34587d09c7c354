// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package variant

import (
	"github.com/gogpu/naga"
)

// Compiler is the interface that wraps the Compile
// method.
//
// Compile translates WGSL source into a SPIR-V binary.
type Compiler interface {
	Compile(wgsl string) ([]byte, error)
}

// NagaCompiler compiles WGSL using naga.
type NagaCompiler struct {
	// Options are passed to naga.CompileWithOptions.
	// The zero value means naga.DefaultOptions.
	Options *naga.CompileOptions
}

// Compile implements Compiler.
func (c *NagaCompiler) Compile(wgsl string) ([]byte, error) {
	opts := naga.DefaultOptions()
	if c.Options != nil {
		opts = *c.Options
	}
	return naga.CompileWithOptions(wgsl, opts)
}
