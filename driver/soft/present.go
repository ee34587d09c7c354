// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gviegas/taa/driver"
)

var errNotAcquired = errors.New("soft: swapchain image not acquired")

// NewSwapchain creates a new swapchain.
// Presented images are kept in memory and can be
// inspected with Swapchain.Presented.
func (g *GPU) NewSwapchain(sf driver.Surface, imageCount int) (driver.Swapchain, error) {
	if imageCount < 1 {
		return nil, errUnsupported
	}
	s := &Swapchain{gpu: g, sf: sf, n: imageCount, pf: driver.BGRA8sRGB, last: -1}
	if err := s.create(); err != nil {
		return nil, err
	}
	return s, nil
}

// Swapchain implements driver.Swapchain.
type Swapchain struct {
	gpu *GPU
	sf  driver.Surface
	n   int
	pf  driver.PixelFmt

	mu       sync.Mutex
	w, h     int
	views    []driver.ImageView
	acquired []bool
	next     int
	presents int
	last     int
	err      error
}

func (s *Swapchain) create() error {
	w, h := s.sf.Width(), s.sf.Height()
	if w < 1 || h < 1 {
		return driver.ErrSurface
	}
	s.w, s.h = w, h
	s.views = make([]driver.ImageView, s.n)
	for i := range s.views {
		s.views[i] = &View{img: newImage(s.pf, w, h, s.Usage())}
	}
	s.acquired = make([]bool, s.n)
	s.next = 0
	s.last = -1
	return nil
}

// sync waits for all committed work to complete.
func (g *GPU) sync() {
	done := make(chan struct{})
	g.queue <- func() { close(done) }
	<-done
}

// Views returns the swapchain's image views.
func (s *Swapchain) Views() []driver.ImageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]driver.ImageView(nil), s.views...)
}

// Next returns the index of the next writable image view.
// It fails with driver.ErrSwapchain if the surface size
// no longer matches the swapchain's.
func (s *Swapchain) Next() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.views == nil || s.sf.Width() != s.w || s.sf.Height() != s.h {
		return -1, driver.ErrSwapchain
	}
	for i := range s.n {
		j := (s.next + i) % s.n
		if !s.acquired[j] {
			s.acquired[j] = true
			s.next = (j + 1) % s.n
			return j, nil
		}
	}
	return -1, driver.ErrNoBackbuffer
}

// Present presents the image view identified by index.
// Presentation happens after all previously committed
// work completes.
func (s *Swapchain) Present(index int) error {
	s.mu.Lock()
	if index < 0 || index >= s.n || !s.acquired[index] {
		s.mu.Unlock()
		return errNotAcquired
	}
	v := s.views[index].(*View)
	s.mu.Unlock()
	s.gpu.queue <- func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if v.img.layout != driver.LPresent {
			if s.err == nil {
				s.err = fmt.Errorf("%w: presented image is %v", driver.ErrLayout, v.img.layout)
			}
		} else if v.img.pending != 0 {
			if s.err == nil {
				s.err = fmt.Errorf("%w: presented image", driver.ErrHazard)
			}
		} else {
			s.presents++
			s.last = index
		}
		if s.views != nil && s.views[index] == v {
			s.acquired[index] = false
		}
	}
	return nil
}

// Recreate recreates the swapchain using the current
// surface size.
func (s *Swapchain) Recreate() error {
	s.gpu.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.views {
		v.(*View).img.Destroy()
	}
	s.views = nil
	return s.create()
}

// Format returns the pixel format of the image views.
func (s *Swapchain) Format() driver.PixelFmt { return s.pf }

// Usage returns the usage of the image views.
func (s *Swapchain) Usage() driver.Usage {
	return driver.URenderTarget | driver.UCopySrc
}

// Destroy destroys the swapchain.
func (s *Swapchain) Destroy() {
	s.gpu.sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.views {
		v.(*View).img.Destroy()
	}
	s.views = nil
}

// Presented returns the last successfully presented image
// and the number of successful presentations.
// The image is nil if nothing was presented since the
// swapchain was created or recreated.
func (s *Swapchain) Presented() (*Image, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last < 0 {
		return nil, s.presents
	}
	return s.views[s.last].(*View).img, s.presents
}

// Err returns the first presentation error, if any.
func (s *Swapchain) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
