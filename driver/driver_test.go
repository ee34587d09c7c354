// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"testing"

	"github.com/gviegas/taa/driver"
	_ "github.com/gviegas/taa/driver/soft"
)

func soft(t *testing.T) driver.Driver {
	t.Helper()
	for _, d := range driver.Drivers() {
		if d.Name() == "soft" {
			return d
		}
	}
	t.Fatal("driver.Drivers: soft driver not registered")
	return nil
}

func TestDrivers(t *testing.T) {
	drivers := driver.Drivers()
	if len(drivers) == 0 {
		t.Fatal("driver.Drivers: no drivers registered")
	}
	for i := range drivers {
		name := drivers[i].Name()
		for j := range i {
			if name == drivers[j].Name() {
				t.Error("driver.Drivers: Driver.Name is not unique")
			}
		}
	}
	drivers2 := driver.Drivers()
	if len(drivers) != len(drivers2) {
		t.Error("driver.Drivers: length mismatch")
	} else {
		for i := range drivers {
			if drivers[i].Name() != drivers2[i].Name() {
				t.Error("driver.Drivers: Driver.Name mismatch")
			}
		}
	}
	// The returned slice is a copy.
	drivers[0] = nil
	if driver.Drivers()[0] == nil {
		t.Error("driver.Drivers: slice should not alias the registry")
	}
}

func TestFind(t *testing.T) {
	for _, name := range [...]string{"", "soft", "SOFT", "of"} {
		drv := driver.Find(name)
		if len(drv) == 0 {
			t.Fatalf("driver.Find(%q):\nhave no drivers\nwant soft", name)
		}
		if name == "" && len(drv) != len(driver.Drivers()) {
			t.Fatalf("driver.Find(\"\"):\nhave %d drivers\nwant %d", len(drv), len(driver.Drivers()))
		}
	}
	if drv := driver.Find("no such driver"); len(drv) != 0 {
		t.Fatalf("driver.Find:\nhave %v\nwant none", drv)
	}
}

func TestRegister(t *testing.T) {
	drv := soft(t)
	n := len(driver.Drivers())
	driver.Register(drv)
	if m := len(driver.Drivers()); m != n {
		t.Fatalf("driver.Register: same name\nhave %d drivers\nwant %d", m, n)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("driver.Register: should panic on unnamed Driver")
		}
	}()
	driver.Register(unnamed{drv})
}

type unnamed struct{ driver.Driver }

func (unnamed) Name() string { return "" }

func TestDriverOpen(t *testing.T) {
	drv := soft(t)
	name := drv.Name()
	gpu, err := drv.Open()
	if err != nil || gpu == nil {
		t.Fatalf("Driver.Open:\nhave %v, %v\nwant non-nil, nil", gpu, err)
	}
	if u, err := drv.Open(); u != gpu || err != nil {
		t.Fatalf("Driver.Open: second call\nhave %v, %v\nwant %v, nil", u, err, gpu)
	}
	if _, ok := gpu.(driver.Presenter); !ok {
		t.Error("soft GPU should implement driver.Presenter")
	}
	drv.Close()
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Close")
	}
	if _, err := drv.Open(); err != nil {
		t.Fatalf("Driver.Open after Close:\nhave %v\nwant nil", err)
	}
	drv.Close()
	drv.Close()
}

func TestAccessWrites(t *testing.T) {
	for _, x := range [...]struct {
		a, want driver.Access
	}{
		{driver.ANone, driver.ANone},
		{driver.AColorRead | driver.AShaderRead, driver.ANone},
		{driver.AColorWrite, driver.AColorWrite},
		{driver.ACopyRead | driver.ACopyWrite, driver.ACopyWrite},
		{driver.ADSRead | driver.ADSWrite | driver.AShaderWrite, driver.ADSWrite | driver.AShaderWrite},
		{driver.AAnyRead | driver.AAnyWrite, driver.AAnyWrite},
	} {
		if w := x.a.Writes(); w != x.want {
			t.Errorf("Access(%#x).Writes:\nhave %#x\nwant %#x", int(x.a), int(w), int(x.want))
		}
	}
}

func TestPixelFmt(t *testing.T) {
	for _, x := range [...]struct {
		pf   driver.PixelFmt
		size int
		ds   bool
	}{
		{driver.FInvalid, 0, false},
		{driver.RGBA8un, 4, false},
		{driver.BGRA8sRGB, 4, false},
		{driver.R8un, 1, false},
		{driver.RGBA16f, 8, false},
		{driver.RG16f, 4, false},
		{driver.RGBA32f, 16, false},
		{driver.D16un, 2, true},
		{driver.D32f, 4, true},
	} {
		if n := x.pf.Size(); n != x.size {
			t.Errorf("PixelFmt(%d).Size:\nhave %d\nwant %d", x.pf, n, x.size)
		}
		if ds := x.pf.IsDS(); ds != x.ds {
			t.Errorf("PixelFmt(%d).IsDS:\nhave %t\nwant %t", x.pf, ds, x.ds)
		}
	}
}

func TestLayoutString(t *testing.T) {
	if s := driver.LShaderRead.String(); s != "ShaderRead" {
		t.Fatalf("Layout.String:\nhave %s\nwant ShaderRead", s)
	}
	if s := driver.LPresent.String(); s != "Present" {
		t.Fatalf("Layout.String:\nhave %s\nwant Present", s)
	}
}
