/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package gesture turns pointer, touch, wheel and keyboard input into pan and
// zoom operations on a viewport.State and into plot activations.
package gesture

import (
	"math"
	"time"

	applog "plotmap/internal/log"
	"plotmap/internal/vector"
	"plotmap/internal/viewport"
)

// Config holds the input tuning constants.
type Config struct {
	ClickThreshold float64       // Manhattan pixels; larger movement is a drag
	ZoomSpeed      float64       // wheel zoom per deltaY unit
	KeyZoomIn      float64       // "+" / "="
	KeyZoomOut     float64       // "-" / "_"
	KeyPanFraction float64       // arrow step as a fraction of the window
	TapGuard       time.Duration // clicks are ignored this long after a tap
}

func DefaultConfig() Config {
	return Config{
		ClickThreshold: 4,
		ZoomSpeed:      0.0015,
		KeyZoomIn:      1.2,
		KeyZoomOut:     0.83,
		KeyPanFraction: 0.08,
		TapGuard:       500 * time.Millisecond,
	}
}

// Button identifies a mouse button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
	ButtonTertiary
)

// Key names understood by Router.Key.
const (
	KeyUp    = "ArrowUp"
	KeyDown  = "ArrowDown"
	KeyLeft  = "ArrowLeft"
	KeyRight = "ArrowRight"
)

// Kind is the kind of the active gesture session.
type Kind int

const (
	Idle Kind = iota
	Pan
	Pinch
)

func (k Kind) String() string {
	switch k {
	case Pan:
		return "pan"
	case Pinch:
		return "pinch"
	}
	return "idle"
}

// Outcome reports what a click or tap end did.
type Outcome int

const (
	Ignored    Outcome = iota // gate closed or synthetic click after a tap
	Suppressed                // movement exceeded the click threshold
	Missed                    // a tap with no plot under it
	Activated
)

// Gate tells the router whether input may be handled (scene loaded, no modal open).
type Gate interface {
	Interactive() bool
}

// GateFunc adapts a function to Gate.
type GateFunc func() bool

func (f GateFunc) Interactive() bool { return f() }

// HitTester resolves a scene point to the plot under it.
type HitTester interface {
	HitTest(p vector.Pt) (string, bool)
}

// HoverEvent describes a change of the plot under the pointer.
type HoverEvent struct {
	ID      string
	Entered bool
	Screen  vector.Pt
}

type session struct {
	kind      Kind
	start     vector.Pt
	startWin  viewport.Window
	moved     float64
	pinchDist float64
	pinchMid  vector.Pt
	pinched   bool
}

// Router is the gesture state machine. It is driven from a single event thread.
type Router struct {
	cfg   Config
	state *viewport.State
	hits  HitTester
	gate  Gate
	vp    vector.Rect

	sess       session
	guardUntil time.Time
	hovered    string

	onActivate []func(id string)
	onHover    func(HoverEvent)

	now func() time.Time
}

// NewRouter creates a router over state. hits and gate may be nil.
func NewRouter(state *viewport.State, hits HitTester, gate Gate, cfg Config) *Router {
	if cfg.ClickThreshold <= 0 {
		cfg.ClickThreshold = DefaultConfig().ClickThreshold
	}
	return &Router{cfg: cfg, state: state, hits: hits, gate: gate, now: time.Now}
}

// SetViewport records the on-screen rectangle of the map.
func (r *Router) SetViewport(vp vector.Rect) { r.vp = vp }
func (r *Router) Viewport() vector.Rect      { return r.vp }

// SetHitTester swaps the hit tester, e.g. after the scene is reloaded.
func (r *Router) SetHitTester(h HitTester) { r.hits = h }

// OnActivate registers a callback for qualifying taps and clicks.
func (r *Router) OnActivate(fn func(id string)) {
	if fn != nil {
		r.onActivate = append(r.onActivate, fn)
	}
}

// OnHover registers the hover transition callback.
func (r *Router) OnHover(fn func(HoverEvent)) { r.onHover = fn }

// Kind returns the active session kind.
func (r *Router) Kind() Kind { return r.sess.kind }

// Moved is the accumulated Manhattan movement of the current or last session.
func (r *Router) Moved() float64 { return r.sess.moved }

func (r *Router) open() bool { return r.gate == nil || r.gate.Interactive() }

// PointerDown starts a pan session for the primary button.
func (r *Router) PointerDown(b Button, p vector.Pt) {
	if b != ButtonPrimary || !r.open() {
		return
	}
	r.sess = session{kind: Pan, start: p, startWin: r.state.Window()}
}

// PointerMove drags the window while a pan session is active.
func (r *Router) PointerMove(p vector.Pt) {
	if r.sess.kind != Pan {
		return
	}
	r.dragTo(p)
}

func (r *Router) dragTo(p vector.Pt) {
	dx, dy := p.X-r.sess.start.X, p.Y-r.sess.start.Y
	r.sess.moved = math.Abs(dx) + math.Abs(dy)
	r.state.PanFrom(r.sess.startWin, dx, dy, r.vp)
}

// PointerUp ends the pan session. The accumulated movement is kept for Click.
func (r *Router) PointerUp(vector.Pt) {
	if r.sess.kind == Pan {
		r.sess.kind = Idle
	}
}

// Click activates the plot under p unless the preceding drag exceeded the
// click threshold or a tap just activated.
func (r *Router) Click(p vector.Pt) Outcome {
	if !r.open() || r.now().Before(r.guardUntil) {
		return Ignored
	}
	if r.sess.moved > r.cfg.ClickThreshold {
		return Suppressed
	}
	return r.activateAt(p)
}

func (r *Router) activateAt(p vector.Pt) Outcome {
	if r.hits == nil {
		return Missed
	}
	id, ok := r.hits.HitTest(viewport.ScreenToScene(p, r.vp, r.state.Window()))
	if !ok {
		return Missed
	}
	applog.WithComponent("gesture").Debug("activate", "plot", id, "moved", r.sess.moved)
	r.hovered = ""
	for _, fn := range r.onActivate {
		fn(id)
	}
	return Activated
}

// TouchStart begins a pinch with two touches or a pan with one.
func (r *Router) TouchStart(touches []vector.Pt) {
	if !r.open() || len(touches) == 0 {
		return
	}
	if len(touches) >= 2 {
		r.sess.kind = Pinch
		r.sess.pinched = true
		r.sess.pinchDist = touches[0].Dist(touches[1])
		r.sess.pinchMid = vector.Mid(touches[0], touches[1])
		return
	}
	r.sess = session{kind: Pan, start: touches[0], startWin: r.state.Window()}
}

// TouchMove zooms by the change in finger distance around the midpoint and pans
// by the midpoint drift, or drags with a single touch.
func (r *Router) TouchMove(touches []vector.Pt) {
	if !r.open() || len(touches) == 0 {
		return
	}
	if len(touches) >= 2 {
		d := touches[0].Dist(touches[1])
		mid := vector.Mid(touches[0], touches[1])
		if r.sess.kind == Pinch && r.sess.pinchDist > 0 {
			r.state.ZoomAt(d/r.sess.pinchDist, mid, r.vp)
			r.state.PanBy(mid.X-r.sess.pinchMid.X, mid.Y-r.sess.pinchMid.Y, r.vp)
		}
		r.sess.kind = Pinch
		r.sess.pinched = true
		r.sess.pinchDist = d
		r.sess.pinchMid = mid
		return
	}
	if r.sess.kind == Pan {
		r.dragTo(touches[0])
	}
}

// TouchEnd finishes a touch. With one finger left the session continues as a
// pan from that finger. When all fingers are up after a tap, the plot under p
// is activated and the following synthetic click is ignored for TapGuard.
// A touch sequence that was ever a pinch never activates.
func (r *Router) TouchEnd(remaining []vector.Pt, p vector.Pt) Outcome {
	pinched := r.sess.pinched
	r.sess.pinchDist = 0
	if len(remaining) == 1 {
		r.sess = session{kind: Pan, start: remaining[0], startWin: r.state.Window(), pinched: pinched}
		return Ignored
	}
	if len(remaining) > 1 {
		return Ignored
	}
	r.sess.kind = Idle
	if pinched || !r.open() {
		return Ignored
	}
	if r.sess.moved > r.cfg.ClickThreshold {
		return Suppressed
	}
	out := r.activateAt(p)
	if out == Activated {
		r.guardUntil = r.now().Add(r.cfg.TapGuard)
	}
	return out
}

// Wheel zooms around the pointer. Each event is independent.
func (r *Router) Wheel(deltaY float64, p vector.Pt) {
	if !r.open() {
		return
	}
	f := vector.Clamp(1-deltaY*r.cfg.ZoomSpeed, 0.1, 3)
	r.state.ZoomAt(f, p, r.vp)
}

// Key handles the keyboard shortcuts and reports whether the key was used.
func (r *Router) Key(name string) bool {
	if !r.open() {
		return false
	}
	step := r.cfg.KeyPanFraction
	switch name {
	case "+", "=":
		r.state.ZoomCenter(r.cfg.KeyZoomIn, r.vp)
	case "-", "_":
		r.state.ZoomCenter(r.cfg.KeyZoomOut, r.vp)
	case "0":
		r.state.Reset()
	case KeyUp:
		r.state.Step(0, -step)
	case KeyDown:
		r.state.Step(0, step)
	case KeyLeft:
		r.state.Step(-step, 0)
	case KeyRight:
		r.state.Step(step, 0)
	default:
		return false
	}
	return true
}

// Hover reports enter/leave transitions of the plot under the pointer. While a
// drag is in progress or the gate is closed, the current plot is left.
func (r *Router) Hover(p vector.Pt) {
	id := ""
	if r.open() && r.sess.kind == Idle && r.hits != nil {
		id, _ = r.hits.HitTest(viewport.ScreenToScene(p, r.vp, r.state.Window()))
	}
	if id == r.hovered {
		return
	}
	prev := r.hovered
	r.hovered = id
	if r.onHover == nil {
		return
	}
	if prev != "" {
		r.onHover(HoverEvent{ID: prev, Entered: false, Screen: p})
	}
	if id != "" {
		r.onHover(HoverEvent{ID: id, Entered: true, Screen: p})
	}
}
