// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package variant manages pipeline variants.
//
// A named pipeline is built from WGSL source and a set
// of boolean features. Each combination of enabled
// features yields a distinct variant. Only the variant
// matching the current feature set is kept alive, and
// it is compiled lazily when requested.
package variant

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gviegas/taa/driver"
)

var (
	// ErrUnknown means that a pipeline or feature name
	// is not known.
	ErrUnknown = errors.New("variant: unknown name")

	// ErrExist means that a pipeline with the same name
	// was already added.
	ErrExist = errors.New("variant: pipeline already exists")

	// ErrFeature means that a feature name is not a
	// valid identifier.
	ErrFeature = errors.New("variant: invalid feature name")
)

// CompileError is the error returned when a variant
// fails to compile.
type CompileError struct {
	Name string
	Key  string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("variant: %s [%s]: %v", e.Name, e.Key, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Desc describes a named pipeline.
type Desc struct {
	Name     string
	Source   Source
	Features []string

	// Build creates the pipeline from compiled shader
	// code. defines lists the enabled features in
	// canonical order.
	Build func(code driver.ShaderCode, defines []string) (driver.Pipeline, error)
}

// Options configures a Manager.
type Options struct {
	// Compiler compiles WGSL into SPIR-V.
	// If nil, NagaCompiler is used.
	Compiler Compiler

	// Logger is used to report compilations.
	// If nil, slog.Default is used.
	Logger *slog.Logger

	// RetireDelay is the number of EndFrame calls
	// after which a replaced variant is destroyed.
	// It should be at least the number of frames
	// in flight.
	RetireDelay int

	// OnCompile, if not nil, is called after every
	// compilation attempt.
	OnCompile func(name string, d time.Duration, err error)
}

type pipeline struct {
	desc     Desc
	enabled  map[string]bool
	live     driver.Pipeline
	code     driver.ShaderCode
	liveKey  string
	failed   string
	reload   bool
	version  int64
	compiles int
}

// key returns the canonical key of the wanted variant.
func (p *pipeline) key() string { return strings.Join(p.defines(), "|") }

func (p *pipeline) defines() []string {
	var s []string
	for _, f := range p.desc.Features {
		if p.enabled[f] {
			s = append(s, f)
		}
	}
	slices.Sort(s)
	return s
}

type retired struct {
	pl    driver.Pipeline
	code  driver.ShaderCode
	frame int64
}

// Manager manages the variants of named pipelines.
type Manager struct {
	gpu   driver.GPU
	comp  Compiler
	log   *slog.Logger
	delay int
	hook  func(string, time.Duration, error)

	mu      sync.Mutex
	pipes   map[string]*pipeline
	names   []string
	retired []retired
	frame   int64
}

// New creates a new Manager.
func New(gpu driver.GPU, opts Options) *Manager {
	m := &Manager{
		gpu:   gpu,
		comp:  opts.Compiler,
		log:   opts.Logger,
		delay: max(opts.RetireDelay, 0),
		hook:  opts.OnCompile,
		pipes: make(map[string]*pipeline),
	}
	if m.comp == nil {
		m.comp = &NagaCompiler{}
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

func validFeature(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Add adds a named pipeline and compiles the variant
// for the given enabled features.
// The pipeline is not added if compilation fails.
func (m *Manager) Add(desc Desc, enabled ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pipes[desc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrExist, desc.Name)
	}
	if desc.Source == nil || desc.Build == nil {
		return fmt.Errorf("variant: %s: missing Source or Build", desc.Name)
	}
	p := &pipeline{desc: desc, enabled: make(map[string]bool)}
	for _, f := range desc.Features {
		if !validFeature(f) {
			return fmt.Errorf("%w: %q", ErrFeature, f)
		}
		p.enabled[f] = false
	}
	for _, f := range enabled {
		if _, ok := p.enabled[f]; !ok {
			return fmt.Errorf("%w: feature %s of %s", ErrUnknown, f, desc.Name)
		}
		p.enabled[f] = true
	}
	if err := m.compile(p); err != nil {
		return err
	}
	m.pipes[desc.Name] = p
	m.names = append(m.names, desc.Name)
	return nil
}

func (m *Manager) lookup(name string) (*pipeline, error) {
	p, ok := m.pipes[name]
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %s", ErrUnknown, name)
	}
	return p, nil
}

// Set enables or disables a feature of the named
// pipeline. It does not compile anything.
func (m *Manager) Set(name, feature string, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return err
	}
	if _, ok := p.enabled[feature]; !ok {
		return fmt.Errorf("%w: feature %s of %s", ErrUnknown, feature, name)
	}
	p.enabled[feature] = on
	return nil
}

// Enabled returns whether a feature of the named
// pipeline is enabled.
func (m *Manager) Enabled(name, feature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipes[name]; ok {
		return p.enabled[feature]
	}
	return false
}

// Key returns the canonical key of the variant that
// the next call to Get will return.
func (m *Manager) Key(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipes[name]; ok {
		return p.key()
	}
	return ""
}

// Get returns the variant of the named pipeline that
// matches its enabled features, compiling it if needed.
// If compilation fails, Get returns the last variant
// that compiled successfully along with a
// *CompileError. The failed variant is not compiled
// again until the features change or Reload is called.
func (m *Manager) Get(name string) (driver.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	key := p.key()
	if !p.reload {
		if key == p.liveKey {
			return p.live, nil
		}
		if key == p.failed {
			return p.live, nil
		}
	}
	if err := m.compile(p); err != nil {
		return p.live, err
	}
	return p.live, nil
}

// Reload causes the named pipeline to be compiled again
// on the next call to Get, even if its features did not
// change.
func (m *Manager) Reload(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.lookup(name)
	if err != nil {
		return err
	}
	p.reload = true
	return nil
}

// HotReload checks whether the source of any pipeline
// changed since it was last compiled, and calls Reload
// for each such pipeline.
// It returns the names of the reloaded pipelines.
func (m *Manager) HotReload() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		names []string
		errs  []error
	)
	for _, name := range m.names {
		p := m.pipes[name]
		v, err := p.desc.Source.Version()
		if err != nil {
			errs = append(errs, fmt.Errorf("variant: %s: %w", name, err))
			continue
		}
		if v != p.version {
			p.reload = true
			names = append(names, name)
			m.log.Info("pipeline source changed", "pipeline", name)
		}
	}
	return names, errors.Join(errs...)
}

// Compiles returns the number of successful
// compilations of the named pipeline.
func (m *Manager) Compiles(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pipes[name]; ok {
		return p.compiles
	}
	return 0
}

// EndFrame signals the end of a frame.
// Variants replaced at least RetireDelay frames ago are
// destroyed.
func (m *Manager) EndFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame++
	n := 0
	for _, r := range m.retired {
		if m.frame-r.frame >= int64(m.delay) {
			r.pl.Destroy()
			r.code.Destroy()
			continue
		}
		m.retired[n] = r
		n++
	}
	clear(m.retired[n:])
	m.retired = m.retired[:n]
}

// Destroy destroys every variant.
// The GPU must be idle.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.retired {
		r.pl.Destroy()
		r.code.Destroy()
	}
	m.retired = nil
	for _, p := range m.pipes {
		if p.live != nil {
			p.live.Destroy()
			p.code.Destroy()
		}
	}
	m.pipes = make(map[string]*pipeline)
	m.names = nil
}

// prelude returns the feature declarations that precede
// the pipeline's source.
func (p *pipeline) prelude() string {
	var sb strings.Builder
	feats := slices.Sorted(slices.Values(p.desc.Features))
	for _, f := range feats {
		fmt.Fprintf(&sb, "const %s: bool = %t;\n", f, p.enabled[f])
	}
	return sb.String()
}

func (m *Manager) compile(p *pipeline) (err error) {
	key := p.key()
	start := time.Now()
	defer func() {
		d := time.Since(start)
		p.reload = false
		if m.hook != nil {
			m.hook(p.desc.Name, d, err)
		}
		if err != nil {
			p.failed = key
			m.log.Warn("pipeline compilation failed", "pipeline", p.desc.Name, "variant", key, "err", err)
			return
		}
		p.failed = ""
		p.compiles++
		m.log.Info("pipeline compiled", "pipeline", p.desc.Name, "variant", key, "duration", d)
	}()

	text, version, err := p.desc.Source.Load()
	if err != nil {
		return &CompileError{p.desc.Name, key, err}
	}
	p.version = version
	spv, err := m.comp.Compile(p.prelude() + text)
	if err != nil {
		return &CompileError{p.desc.Name, key, err}
	}
	code, err := m.gpu.NewShaderCode(spv)
	if err != nil {
		return &CompileError{p.desc.Name, key, err}
	}
	pl, err := p.desc.Build(code, p.defines())
	if err != nil {
		code.Destroy()
		return &CompileError{p.desc.Name, key, err}
	}
	if p.live != nil {
		m.retired = append(m.retired, retired{p.live, p.code, m.frame})
	}
	p.live, p.code, p.liveKey = pl, code, key
	return nil
}
