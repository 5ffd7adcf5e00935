/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package viewport

import (
	"math"
	"math/rand"
	"testing"

	"plotmap/internal/vector"
)

var vp = vector.R(0, 0, 700, 500)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func sameWindow(a, b Window) bool {
	return near(a.X, b.X) && near(a.Y, b.Y) && near(a.W, b.W) && near(a.H, b.H)
}

func TestScreenToScene(t *testing.T) {
	w := Window{X: 100, Y: 50, W: 350, H: 250}
	got := ScreenToScene(vector.Pt{X: 350, Y: 250}, vector.R(0, 0, 700, 500), w)
	if got != (vector.Pt{X: 275, Y: 175}) {
		t.Fatalf("unexpected scene point: %+v", got)
	}
	off := ScreenToScene(vector.Pt{X: 20, Y: 30}, vector.R(20, 30, 700, 500), w)
	if off != (vector.Pt{X: 100, Y: 50}) {
		t.Fatalf("viewport offset not honoured: %+v", off)
	}
	back := SceneToScreen(got, vector.R(0, 0, 700, 500), w)
	if back != (vector.Pt{X: 350, Y: 250}) {
		t.Fatalf("inverse mismatch: %+v", back)
	}
}

func TestScreenToSceneDegenerateViewport(t *testing.T) {
	w := Window{X: 7, Y: 9, W: 10, H: 10}
	for _, bad := range []vector.Rect{vector.R(0, 0, 0, 500), vector.R(0, 0, 700, 0), vector.R(0, 0, -1, 5)} {
		if got := ScreenToScene(vector.Pt{X: 3, Y: 4}, bad, w); got != (vector.Pt{X: 7, Y: 9}) {
			t.Fatalf("expected window origin for %+v, got %+v", bad, got)
		}
	}
	if dx, dy := ScreenDeltaToScene(10, 10, vector.R(0, 0, 0, 0), w); dx != 0 || dy != 0 {
		t.Fatalf("expected zero delta")
	}
}

func TestZoomRoundTrip(t *testing.T) {
	s := NewState(Window{W: 700, H: 500}, DefaultLimits)
	start := s.Window()
	for _, f := range []float64{1.1, 1.25, 1.5, 0.9} {
		p := vector.Pt{X: 123, Y: 321}
		s.ZoomAt(f, p, vp)
		s.ZoomAt(1/f, p, vp)
		if !sameWindow(s.Window(), start) {
			t.Fatalf("factor %v: round trip drifted to %+v", f, s.Window())
		}
	}
}

func TestZoomKeepsAnchorFixed(t *testing.T) {
	s := NewState(Window{W: 700, H: 500}, DefaultLimits)
	anchor := vector.Pt{X: 140, Y: 400}
	before := ScreenToScene(anchor, vp, s.Window())
	s.ZoomAt(2, anchor, vp)
	after := ScreenToScene(anchor, vp, s.Window())
	if !near(before.X, after.X) || !near(before.Y, after.Y) {
		t.Fatalf("anchor moved from %+v to %+v", before, after)
	}
	if s.ZoomPercent() != 200 {
		t.Fatalf("expected 200%%, got %d", s.ZoomPercent())
	}
}

func TestZoomAlwaysClamped(t *testing.T) {
	s := NewState(Window{W: 700, H: 500}, DefaultLimits)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		f := 0.1 + r.Float64()*2.9
		s.ZoomAt(f, vector.Pt{X: r.Float64() * 700, Y: r.Float64() * 500}, vp)
		z := s.Zoom()
		if z < DefaultLimits.MinScale-1e-9 || z > DefaultLimits.MaxScale+1e-9 {
			t.Fatalf("step %d: zoom %v out of bounds", i, z)
		}
	}
}

func TestZoomAtBoundaryIsNoop(t *testing.T) {
	s := NewState(Window{W: 700, H: 500}, DefaultLimits)
	calls := 0
	s.OnChange(func(Window) { calls++ })
	s.ZoomAt(10, vector.Pt{X: 350, Y: 250}, vp)
	if !near(s.Zoom(), 3) {
		t.Fatalf("expected max zoom, got %v", s.Zoom())
	}
	w := s.Window()
	s.ZoomAt(1.5, vector.Pt{X: 10, Y: 10}, vp)
	if s.Window() != w || calls != 1 {
		t.Fatalf("zoom past the boundary must not move the window (calls=%d)", calls)
	}
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		s.ZoomAt(bad, vector.Pt{}, vp)
	}
	if s.Window() != w {
		t.Fatalf("invalid factors must be ignored")
	}
}

func TestResetIsExact(t *testing.T) {
	orig := Window{X: -3.3, Y: 1.7, W: 640.1, H: 480.9}
	s := NewState(orig, DefaultLimits)
	s.ZoomAt(1.7, vector.Pt{X: 33, Y: 77}, vp)
	s.PanBy(13, -8, vp)
	s.Step(0.08, -0.08)
	s.Reset()
	if s.Window() != orig {
		t.Fatalf("reset not exact: %+v", s.Window())
	}
}

func TestPanByAndPanFrom(t *testing.T) {
	s := NewState(Window{W: 700, H: 500}, DefaultLimits)
	s.PanBy(70, 50, vp)
	if s.Window().X != -70 || s.Window().Y != -50 {
		t.Fatalf("unexpected window after pan: %+v", s.Window())
	}
	start := s.Window()
	s.PanFrom(start, 10, 0, vp)
	s.PanFrom(start, 35, 0, vp)
	if s.Window().X != -105 {
		t.Fatalf("drag pan must be relative to its start: %+v", s.Window())
	}
	s.PanBy(10, 10, vector.R(0, 0, 0, 0))
	if s.Window().X != -105 {
		t.Fatalf("zero viewport must be a no-op")
	}
}

func TestFitAndNotify(t *testing.T) {
	s := NewState(Window{W: 700, H: 500}, DefaultLimits)
	var last Window
	s.OnChange(func(w Window) { last = w })
	s.Fit(DefaultFitPadding)
	want := Window{X: -14, Y: -10, W: 728, H: 520}
	if !sameWindow(last, want) || !sameWindow(s.Window(), want) {
		t.Fatalf("unexpected fit window: %+v", last)
	}
	if s.ViewBox() != "-14 -10 728 520" {
		t.Fatalf("unexpected viewBox string: %q", s.ViewBox())
	}
}
