/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dashboard

import (
	"log/slog"

	"plotmap/internal/gesture"
	"plotmap/internal/vector"
)

// KeyEscape closes the popup.
const KeyEscape = "Escape"

// withRouter runs fn with the router under the lock; it is a no-op before load.
func (c *Controller) withRouter(fn func(r *gesture.Router)) {
	c.do(func() {
		if c.router != nil {
			fn(c.router)
		}
	})
}

// SetViewport records the on-screen rectangle of the map in pixels.
func (c *Controller) SetViewport(vp vector.Rect) {
	c.do(func() {
		c.vp = vp
		if c.router != nil {
			c.router.SetViewport(vp)
		}
	})
}

func (c *Controller) PointerDown(b gesture.Button, p vector.Pt) {
	c.withRouter(func(r *gesture.Router) { r.PointerDown(b, p) })
}

func (c *Controller) PointerMove(p vector.Pt) {
	c.withRouter(func(r *gesture.Router) { r.PointerMove(p) })
}

func (c *Controller) PointerUp(p vector.Pt) {
	c.withRouter(func(r *gesture.Router) { r.PointerUp(p) })
}

func (c *Controller) Click(p vector.Pt) gesture.Outcome {
	out := gesture.Ignored
	c.withRouter(func(r *gesture.Router) { out = r.Click(p) })
	return out
}

func (c *Controller) TouchStart(touches []vector.Pt) {
	c.withRouter(func(r *gesture.Router) { r.TouchStart(touches) })
}

func (c *Controller) TouchMove(touches []vector.Pt) {
	c.withRouter(func(r *gesture.Router) { r.TouchMove(touches) })
}

func (c *Controller) TouchEnd(remaining []vector.Pt, p vector.Pt) gesture.Outcome {
	out := gesture.Ignored
	c.withRouter(func(r *gesture.Router) { out = r.TouchEnd(remaining, p) })
	return out
}

func (c *Controller) Wheel(deltaY float64, p vector.Pt) {
	c.withRouter(func(r *gesture.Router) { r.Wheel(deltaY, p) })
}

// Key handles a key press. Escape closes an open popup; other keys go to the
// router.
func (c *Controller) Key(name string) bool {
	handled := false
	c.do(func() {
		if name == KeyEscape {
			if c.popup != nil {
				c.closePopupLocked(false)
				handled = true
			}
			return
		}
		if c.router != nil {
			handled = c.router.Key(name)
		}
	})
	return handled
}

// Hover moves the tooltip and reports plot enter/leave transitions.
func (c *Controller) Hover(p vector.Pt) {
	c.withRouter(func(r *gesture.Router) {
		r.Hover(p)
		if c.tooltip.Visible && c.tooltip.At != p {
			c.tooltip.At = p
			c.dirty = true
		}
	})
}

// ZoomIn is the toolbar "+" button.
func (c *Controller) ZoomIn() { c.toolbar(func() { c.state.ZoomCenter(ToolbarZoomIn, c.vp) }) }

// ZoomOut is the toolbar "-" button.
func (c *Controller) ZoomOut() { c.toolbar(func() { c.state.ZoomCenter(ToolbarZoomOut, c.vp) }) }

// Fit shows the whole plan with a small margin.
func (c *Controller) Fit() { c.toolbar(func() { c.state.Fit(c.padding) }) }

// ResetView restores the original extent.
func (c *Controller) ResetView() { c.toolbar(func() { c.state.Reset() }) }

func (c *Controller) toolbar(fn func()) {
	c.do(func() {
		if c.state == nil || !c.loggedInLocked() {
			return
		}
		fn()
	})
}

// activateLocked is the router's activation callback.
func (c *Controller) activateLocked(id string) {
	c.hideTooltipLocked()
	if err := c.openPopupLocked(id); err != nil {
		c.log.Warn("open popup failed", slog.String("plot", id), slog.Any("err", err))
	}
}
