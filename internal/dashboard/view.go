/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dashboard

import (
	"fmt"

	"plotmap/internal/domain"
	"plotmap/internal/gesture"
	"plotmap/internal/vector"
)

const (
	availableColor = "#5ee87a"
	takenColor     = "#ff8080"
)

// Tooltip is the hover card of a plot.
type Tooltip struct {
	Visible     bool
	PlotID      string
	Title       string
	Size        string
	Price       string
	Facing      string
	Status      string
	StatusColor string
	At          vector.Pt
}

// TooltipFor formats the hover card for p.
func TooltipFor(p domain.Plot) Tooltip {
	color := takenColor
	if p.Status == domain.Available {
		color = availableColor
	}
	return Tooltip{
		PlotID: p.ID,
		Title:  p.DisplayTitle(),
		Size: fmt.Sprintf("%s sq.ft (%s × %s ft)",
			domain.FormatNumber(p.Sqft), domain.FormatNumber(p.Length), domain.FormatNumber(p.Width)),
		Price:       domain.FormatINR(p.Price),
		Facing:      "Facing: " + p.Facing,
		Status:      p.Status.Label(),
		StatusColor: color,
	}
}

// View is an immutable snapshot for rendering.
type View struct {
	Loading     bool
	Loaded      bool
	LoadErr     error
	LoggedIn    bool
	User        string
	Role        domain.Role
	ZoomPercent int
	ViewBox     string
	Popup       *Popup
	Tooltip     Tooltip
	Toast       string
	CanUndo     bool
	CanRedo     bool
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Loading:  c.loading,
		Loaded:   c.loaded,
		LoadErr:  c.loadErr,
		LoggedIn: c.loggedInLocked(),
		Tooltip:  c.tooltip,
		Toast:    c.toast,
	}
	if c.session != nil {
		v.User, v.Role = c.session.User, c.session.Role
	}
	if c.state != nil {
		v.ZoomPercent = c.state.ZoomPercent()
		v.ViewBox = c.state.ViewBox()
	}
	if c.popup != nil {
		pp := *c.popup
		pp.Customers = append([]domain.Customer(nil), c.popup.Customers...)
		pp.Mediators = append([]domain.Mediator(nil), c.popup.Mediators...)
		v.Popup = &pp
	}
	u, r := c.history.Stats()
	v.CanUndo, v.CanRedo = u > 0, r > 0
	return v
}

// hoverLocked is the router's hover callback.
func (c *Controller) hoverLocked(ev gesture.HoverEvent) {
	if ev.Entered {
		if c.popup != nil {
			return
		}
		p, ok := c.plots[ev.ID]
		if !ok {
			return
		}
		c.cancelTooltipHideLocked()
		c.tooltip = TooltipFor(p)
		c.tooltip.Visible = true
		c.tooltip.At = ev.Screen
		c.dirty = true
		return
	}
	if c.tooltip.Visible && c.tooltip.PlotID == ev.ID {
		c.scheduleTooltipHideLocked()
	}
}

func (c *Controller) cancelTooltipHideLocked() {
	c.tooltipGen++
	if c.tooltipStop != nil {
		c.tooltipStop.Stop()
		c.tooltipStop = nil
	}
}

func (c *Controller) scheduleTooltipHideLocked() {
	c.cancelTooltipHideLocked()
	gen := c.tooltipGen
	c.tooltipStop = c.afterFunc(TooltipHideDelay, func() {
		c.dispatch(func() {
			c.do(func() {
				if c.tooltipGen == gen && c.tooltip.Visible {
					c.tooltip = Tooltip{}
					c.tooltipStop = nil
					c.dirty = true
				}
			})
		})
	})
}

func (c *Controller) hideTooltipLocked() {
	c.cancelTooltipHideLocked()
	if c.tooltip.Visible {
		c.tooltip = Tooltip{}
		c.dirty = true
	}
}

func (c *Controller) showToastLocked(msg string) {
	c.toast = msg
	c.toastGen++
	gen := c.toastGen
	if c.toastStop != nil {
		c.toastStop.Stop()
	}
	c.toastStop = c.afterFunc(ToastDuration, func() {
		c.dispatch(func() {
			c.do(func() {
				if c.toastGen == gen {
					c.toast = ""
					c.toastStop = nil
					c.dirty = true
				}
			})
		})
	})
	c.dirty = true
}
