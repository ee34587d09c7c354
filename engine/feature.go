// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"fmt"

	"github.com/gviegas/taa/engine/internal/shader"
)

// Feature is a rendering feature that can be toggled
// at run time.
type Feature int

// Features.
// All of them are enabled by default.
const (
	// Sub-pixel jitter of the projection.
	Jitter Feature = iota
	// Accumulation of samples into the history.
	Accumulate
	// Clamping of the history to the current
	// color neighborhood.
	ColorClamp
	// Rejection of the history based on the
	// difference of velocities.
	RejectVelocity
	// Reprojection of the history using the
	// velocity targets.
	ReprojectVelocity
	// Use of the velocity of the nearest
	// neighbor in depth.
	NearestDepth

	maxFeature
)

var features = [maxFeature]struct {
	name string
	prog shader.Program
}{
	Jitter:            {shader.Jitter, shader.Scene},
	Accumulate:        {shader.Accumulate, shader.Resolve},
	ColorClamp:        {shader.ColorClamp, shader.Resolve},
	RejectVelocity:    {shader.RejectVelocity, shader.Resolve},
	ReprojectVelocity: {shader.ReprojectVelocity, shader.Resolve},
	NearestDepth:      {shader.NearestDepth, shader.Resolve},
}

func (f Feature) String() string {
	if f < 0 || f >= maxFeature {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return features[f].name
}

// programs returns the programs affected by f.
func (f Feature) programs() []shader.Program {
	if f == Jitter {
		return []shader.Program{shader.Scene, shader.Lights}
	}
	return []shader.Program{features[f].prog}
}

var (
	errFeature  = errors.New("renderer: unknown feature")
	errRequires = errors.New("renderer: feature requirement not met")
)

// featureSet is the set of enabled features.
type featureSet [maxFeature]bool

// set returns the set that results from changing f to
// on. Disabling a feature disables the features that
// depend on it, while enabling a feature whose
// requirement is disabled fails.
func (s featureSet) set(f Feature, on bool) (featureSet, error) {
	if f < 0 || f >= maxFeature {
		return s, errFeature
	}
	switch f {
	case ColorClamp, NearestDepth, ReprojectVelocity:
		if on && !s[Accumulate] {
			return s, fmt.Errorf("%w: %v requires %v", errRequires, f, Accumulate)
		}
	case RejectVelocity:
		if on && !s[ReprojectVelocity] {
			return s, fmt.Errorf("%w: %v requires %v", errRequires, f, ReprojectVelocity)
		}
	}
	s[f] = on
	if !on {
		switch f {
		case Accumulate:
			s[ColorClamp] = false
			s[NearestDepth] = false
			s[ReprojectVelocity] = false
			s[RejectVelocity] = false
		case ReprojectVelocity:
			s[RejectVelocity] = false
		}
	}
	return s, nil
}

// flag is a one-shot condition.
// It is armed by any number of writers and consumed by
// exactly one reader.
type flag struct{ armed bool }

// arm sets the flag.
func (f *flag) arm() { f.armed = true }

// take reports whether the flag was set and clears it.
func (f *flag) take() bool {
	v := f.armed
	f.armed = false
	return v
}
