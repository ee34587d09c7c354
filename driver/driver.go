// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package driver defines a set of interfaces encompassing
// common GPU functionality.
// It is designed to allow platform-specific APIs to be
// implemented in a mostly straightforward manner.
package driver

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Driver is the interface that provides methods for
// loading and unloading an underlying implementation.
type Driver interface {
	// Open initializes the driver.
	// If it succeeds, further calls with the same receiver
	// have no effect and must return the same GPU instance.
	// Callers should assume that Open is not safe for
	// parallel execution.
	Open() (GPU, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string

	// Close deinitializes the driver.
	// Closing a driver that is not open has no effect.
	// Callers should assume that Close is not safe for
	// parallel execution.
	Close()
}

// ErrNotInstalled means that a platform-specific library
// required for the driver to work is not present in the
// system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable device could be
// found.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrNoHostMemory means that host memory could not be
// allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not
// be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrFatal means that the driver is in an unrecoverable
// state. Upon encountering such an error, the application
// must destroy everything that it created using the
// driver's GPU and then call the Close method. It may call
// Open again to reinitialize the driver for further use.
var ErrFatal = errors.New("driver: fatal error")

// ErrLayout means that an image was used in a layout
// other than the one required by the command.
// Drivers that validate command execution report it
// through WorkItem.Err.
var ErrLayout = errors.New("driver: invalid image layout")

// ErrHazard means that a resource was accessed while
// a prior write to it had not been made available by
// a barrier or transition.
var ErrHazard = errors.New("driver: unsynchronized resource access")

// registry holds the registered drivers in
// registration order.
var registry struct {
	sync.Mutex
	drivers []Driver
}

// Drivers returns a copy of the registered Drivers.
// Driver packages register themselves on init, so
// client code must import them (possibly as blank
// imports) for them to be considered.
func Drivers() []Driver {
	registry.Lock()
	defer registry.Unlock()
	return slices.Clone(registry.drivers)
}

// Find returns the registered Drivers whose names
// contain name, ignoring case, in registration order.
// The empty string matches every driver.
func Find(name string) []Driver {
	name = strings.ToLower(name)
	registry.Lock()
	defer registry.Unlock()
	var drv []Driver
	for _, d := range registry.drivers {
		if strings.Contains(strings.ToLower(d.Name()), name) {
			drv = append(drv, d)
		}
	}
	return drv
}

// Register registers a Driver.
// Driver implementations are expected to call Register
// exactly once, from an init function.
// A driver registered under the name of another
// replaces it. Register panics if drv has no name.
func Register(drv Driver) {
	name := drv.Name()
	if name == "" {
		panic("driver: Register called with unnamed Driver")
	}
	registry.Lock()
	defer registry.Unlock()
	if i := slices.IndexFunc(registry.drivers, func(d Driver) bool { return d.Name() == name }); i >= 0 {
		registry.drivers[i] = drv
		slog.Warn("driver replaced", "name", name)
		return
	}
	registry.drivers = append(registry.drivers, drv)
	slog.Debug("driver registered", "name", name)
}
