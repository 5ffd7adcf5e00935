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
	"strconv"

	applog "plotmap/internal/log"
	"plotmap/internal/vector"
)

// Limits bounds the zoom factor, measured as originalWidth / window width.
type Limits struct {
	MinScale float64
	MaxScale float64
}

// DefaultLimits are the zoom bounds of the dashboard.
var DefaultLimits = Limits{MinScale: 0.8, MaxScale: 3}

// DefaultFitPadding is the per-side padding used by Fit.
const DefaultFitPadding = 0.02

// State is the visible window over a scene. Every mutation notifies the
// registered change listeners. State is not safe for concurrent use.
type State struct {
	original  Window
	win       Window
	limits    Limits
	listeners []func(Window)
}

// NewState starts with the window equal to the original extent.
func NewState(original Window, limits Limits) *State {
	if limits.MinScale <= 0 || limits.MaxScale < limits.MinScale {
		limits = DefaultLimits
	}
	return &State{original: original, win: original, limits: limits}
}

func (s *State) Window() Window   { return s.win }
func (s *State) Original() Window { return s.original }
func (s *State) Limits() Limits   { return s.limits }

// OnChange registers fn to run after each window mutation.
func (s *State) OnChange(fn func(Window)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

func (s *State) set(w Window) {
	s.win = w
	for _, fn := range s.listeners {
		fn(w)
	}
}

// Zoom is the current magnification relative to the original extent.
func (s *State) Zoom() float64 {
	if !(s.win.W > 0) {
		return 1
	}
	return s.original.W / s.win.W
}

// ZoomPercent is the zoom badge value.
func (s *State) ZoomPercent() int { return int(math.Round(s.Zoom() * 100)) }

// ViewBox formats the window as an SVG viewBox value.
func (s *State) ViewBox() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(s.win.X) + " " + f(s.win.Y) + " " + f(s.win.W) + " " + f(s.win.H)
}

// ZoomAt scales the window by factor around the scene point under anchor, which
// keeps its relative position inside the window. The resulting zoom is clamped
// to the limits; a request at a clamp boundary leaves the window unchanged.
func (s *State) ZoomAt(factor float64, anchor vector.Pt, vp vector.Rect) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return
	}
	cur := s.Zoom()
	next := vector.Clamp(cur*factor, s.limits.MinScale, s.limits.MaxScale)
	applied := next / cur
	if applied == 1 {
		return
	}
	pt := ScreenToScene(anchor, vp, s.win)
	w := s.win
	nw, nh := w.W/applied, w.H/applied
	rx, ry := 0.5, 0.5
	if w.W > 0 && w.H > 0 {
		rx = (pt.X - w.X) / w.W
		ry = (pt.Y - w.Y) / w.H
	}
	applog.WithComponent("viewport").Debug("zoom", "factor", factor, "applied", applied, "zoom", next)
	s.set(Window{X: pt.X - rx*nw, Y: pt.Y - ry*nh, W: nw, H: nh})
}

// ZoomCenter zooms around the centre of the viewport.
func (s *State) ZoomCenter(factor float64, vp vector.Rect) {
	s.ZoomAt(factor, vp.Center(), vp)
}

// PanBy moves the window opposite to a screen-space drag delta.
func (s *State) PanBy(dx, dy float64, vp vector.Rect) {
	if !(vp.W > 0) || !(vp.H > 0) {
		return
	}
	sx, sy := ScreenDeltaToScene(dx, dy, vp, s.win)
	w := s.win
	w.X -= sx
	w.Y -= sy
	s.set(w)
}

// PanFrom sets the window origin to start's origin shifted by a total drag
// delta, keeping the current size.
func (s *State) PanFrom(start Window, dx, dy float64, vp vector.Rect) {
	if !(vp.W > 0) || !(vp.H > 0) {
		return
	}
	sx, sy := ScreenDeltaToScene(dx, dy, vp, s.win)
	w := s.win
	w.X = start.X - sx
	w.Y = start.Y - sy
	s.set(w)
}

// Step pans by fractions of the current window size (keyboard navigation).
func (s *State) Step(dxFrac, dyFrac float64) {
	if dxFrac == 0 && dyFrac == 0 {
		return
	}
	w := s.win
	w.X += dxFrac * w.W
	w.Y += dyFrac * w.H
	s.set(w)
}

// Reset restores the original extent exactly.
func (s *State) Reset() { s.set(s.original) }

// Fit shows the original extent with padding (a fraction of each dimension)
// added on every side. Negative padding is treated as zero.
func (s *State) Fit(padding float64) {
	if !(padding > 0) {
		padding = 0
	}
	o := s.original
	px, py := o.W*padding, o.H*padding
	s.set(Window{X: o.X - px, Y: o.Y - py, W: o.W + 2*px, H: o.H + 2*py})
}
