// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pass labels of the pass duration histogram.
const (
	passGeometry = "geometry"
	passResolve  = "resolve"
)

type metrics struct {
	pass     *prometheus.HistogramVec
	frames   prometheus.Counter
	skipped  prometheus.Counter
	compiles prometheus.Counter
	failures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, log *slog.Logger) *metrics {
	m := &metrics{
		pass: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taa_pass_duration_seconds",
			Help:    "GPU time spent in a render pass.",
			Buckets: prometheus.ExponentialBuckets(25e-6, 2, 12),
		}, []string{"pass"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taa_frames_total",
			Help: "Total number of frames submitted.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taa_frames_skipped_total",
			Help: "Total number of frames skipped because no swapchain image could be acquired.",
		}),
		compiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taa_pipeline_compiles_total",
			Help: "Total number of pipeline variant compilations.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taa_pipeline_compile_failures_total",
			Help: "Total number of failed pipeline variant compilations.",
		}),
	}
	if reg != nil {
		m.pass = register(reg, m.pass, log)
		m.frames = register(reg, m.frames, log)
		m.skipped = register(reg, m.skipped, log)
		m.compiles = register(reg, m.compiles, log)
		m.failures = register(reg, m.failures, log)
	}
	return m
}

// register registers c on reg.
// If an equivalent collector is already registered,
// it returns that collector instead.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, log *slog.Logger) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if old, ok := are.ExistingCollector.(C); ok {
			return old
		}
	}
	log.Warn("metric not registered", "err", err)
	return c
}

// compiled is called after every pipeline compilation.
func (m *metrics) compiled(_ string, _ time.Duration, err error) {
	m.compiles.Inc()
	if err != nil {
		m.failures.Inc()
	}
}

// observe records the GPU durations of a frame.
func (m *metrics) observe(geometry, resolve time.Duration) {
	m.pass.WithLabelValues(passGeometry).Observe(geometry.Seconds())
	m.pass.WithLabelValues(passResolve).Observe(resolve.Seconds())
}
