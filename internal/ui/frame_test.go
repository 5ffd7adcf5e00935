/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"errors"
	"image/color"
	"testing"

	"plotmap/internal/config"
	"plotmap/internal/dashboard"
	"plotmap/internal/domain"
	"plotmap/internal/gesture"
	"plotmap/internal/scene"
	"plotmap/internal/storage"
)

const plan = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 100">
<rect id="Plot-1" x="0" y="0" width="100" height="100" fill="#cfe8cf"/>
<rect id="Plot-2" x="100" y="0" width="100" height="100" fill="#ffffff"/>
</svg>`

func newTestController(t *testing.T) *dashboard.Controller {
	t.Helper()
	store := storage.NewMemStore(
		domain.Plot{ID: "Plot-1", PlotNum: 1, Price: 100000},
		domain.Plot{ID: "Plot-2", PlotNum: 2, Price: 120000, Status: domain.Sold},
	)
	c := newController(Options{Store: store, Map: config.Defaults().Map}, func(f func()) { f() })
	doc, err := scene.Parse([]byte(plan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	plots, _ := store.All(t.Context())
	c.Install(doc, plots)
	return c
}

func near(c color.Color, r, g, b uint8) bool {
	cr, cg, cb, _ := c.RGBA()
	d := func(a uint32, want uint8) bool {
		v := int(a>>8) - int(want)
		return v > -12 && v < 12
	}
	return d(cr, r) && d(cg, g) && d(cb, b)
}

func TestRenderFrame_StretchesWindow(t *testing.T) {
	c := newTestController(t)
	img, err := renderFrame(c, 100, 100)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("size %v", b.Size())
	}
	if px := img.At(20, 50); !near(px, 0xcf, 0xe8, 0xcf) {
		t.Fatalf("left plot: %v", px)
	}
	// Plot-2 is sold
	if px := img.At(92, 8); !near(px, 0xf4, 0x82, 0x74) {
		t.Fatalf("sold plot: %v", px)
	}
}

func TestRenderFrame_NotLoaded(t *testing.T) {
	c := newController(Options{Store: storage.NewMemStore(), Map: config.Defaults().Map}, func(f func()) { f() })
	if _, err := renderFrame(c, 10, 10); !errors.Is(err, dashboard.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestKeyName(t *testing.T) {
	cases := map[string]string{
		"Up":     gesture.KeyUp,
		"Left":   gesture.KeyLeft,
		"Escape": dashboard.KeyEscape,
		"+":      "+",
		"0":      "0",
		"Tab":    "",
	}
	for in, want := range cases {
		if got := keyName(in); got != want {
			t.Fatalf("keyName(%q) = %q, want %q", in, got, want)
		}
	}
}
