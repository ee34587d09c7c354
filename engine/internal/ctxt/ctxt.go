// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ctxt provides the GPU context used in the engine.
package ctxt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gviegas/taa/driver"
)

var errNoDriver = errors.New("ctxt: driver not found")

// Context holds an open driver and the GPU obtained
// from it.
// It is owned by the caller of Open and passed
// explicitly to the components that need it.
type Context struct {
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
	log    *slog.Logger
}

// Open attempts to open any driver whose name contains
// the name string. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered.
// A nil log discards all output.
func Open(name string, log *slog.Logger) (*Context, error) {
	if log == nil {
		log = NopLogger()
	}
	err := errNoDriver
	for _, drv := range driver.Find(name) {
		var u driver.GPU
		if u, err = drv.Open(); err != nil {
			log.Warn("driver failed to open", "driver", drv.Name(), "err", err)
			continue
		}
		log.Info("driver opened", "driver", drv.Name())
		return &Context{
			drv:    drv,
			gpu:    u,
			limits: u.Limits(),
			log:    log,
		}, nil
	}
	return nil, err
}

// Driver returns the driver.Driver.
func (c *Context) Driver() driver.Driver { return c.drv }

// GPU returns the driver.GPU.
func (c *Context) GPU() driver.GPU { return c.gpu }

// Limits returns GPU().Limits().
// This value is retrieved only once. It must not be
// changed by the caller.
func (c *Context) Limits() *driver.Limits { return &c.limits }

// Logger returns the context's logger.
func (c *Context) Logger() *slog.Logger { return c.log }

// Close closes the driver.
// Everything created from the GPU must have been
// destroyed.
func (c *Context) Close() {
	if c.drv != nil {
		c.drv.Close()
		c.drv, c.gpu = nil, nil
	}
}

// nopHandler is a slog.Handler that discards all records.
// Enabled returns false so that callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// NopLogger returns a logger that discards all output.
func NopLogger() *slog.Logger { return slog.New(nopHandler{}) }
