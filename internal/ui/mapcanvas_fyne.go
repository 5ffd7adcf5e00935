//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"plotmap/internal/dashboard"
	"plotmap/internal/gesture"
	applog "plotmap/internal/log"
	"plotmap/internal/vector"
)

// MapCanvas draws the visible window of the floor plan and forwards pointer
// input to the controller. Positions are widget-relative; the controller maps
// them onto the window.
type MapCanvas struct {
	widget.BaseWidget

	ctl    *dashboard.Controller
	raster *canvas.Raster
	log    *slog.Logger
}

func NewMapCanvas(ctl *dashboard.Controller) *MapCanvas {
	m := &MapCanvas{ctl: ctl, log: applog.WithComponent("ui")}
	m.raster = canvas.NewRaster(m.draw)
	m.ExtendBaseWidget(m)
	return m
}

func (m *MapCanvas) draw(w, h int) image.Image {
	img, err := renderFrame(m.ctl, w, h)
	if err != nil {
		blank := image.NewRGBA(image.Rect(0, 0, 1, 1))
		blank.Set(0, 0, mapBackground)
		return blank
	}
	return img
}

func (m *MapCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(m.raster)
}

func (m *MapCanvas) MinSize() fyne.Size { return fyne.NewSize(320, 240) }

// Resize keeps the controller's viewport in step with the widget size.
func (m *MapCanvas) Resize(s fyne.Size) {
	m.BaseWidget.Resize(s)
	m.ctl.SetViewport(vector.R(0, 0, float64(s.Width), float64(s.Height)))
}

func pt(p fyne.Position) vector.Pt { return vector.Pt{X: float64(p.X), Y: float64(p.Y)} }

func (m *MapCanvas) MouseDown(e *desktop.MouseEvent) {
	b := gesture.ButtonPrimary
	if e.Button != desktop.MouseButtonPrimary {
		b = gesture.ButtonSecondary
	}
	m.ctl.PointerDown(b, pt(e.Position))
}

func (m *MapCanvas) MouseUp(e *desktop.MouseEvent) { m.ctl.PointerUp(pt(e.Position)) }

func (m *MapCanvas) Dragged(e *fyne.DragEvent) { m.ctl.PointerMove(pt(e.Position)) }

func (m *MapCanvas) DragEnd() {}

func (m *MapCanvas) Tapped(e *fyne.PointEvent) {
	out := m.ctl.Click(pt(e.Position))
	m.log.Debug("map click", slog.Int("outcome", int(out)))
}

// Scrolled zooms around the pointer. Fyne reports wheel-up as positive DY.
func (m *MapCanvas) Scrolled(e *fyne.ScrollEvent) {
	m.ctl.Wheel(-float64(e.Scrolled.DY), pt(e.Position))
}

func (m *MapCanvas) MouseIn(e *desktop.MouseEvent)    { m.ctl.Hover(pt(e.Position)) }
func (m *MapCanvas) MouseMoved(e *desktop.MouseEvent) { m.ctl.Hover(pt(e.Position)) }

// MouseOut moves the hover point off the map so the tooltip hides.
func (m *MapCanvas) MouseOut() { m.ctl.Hover(vector.Pt{X: -1, Y: -1}) }

// Refresh redraws the raster from the current scene.
func (m *MapCanvas) Refresh() {
	m.raster.Refresh()
	m.BaseWidget.Refresh()
}

var (
	_ fyne.Tappable     = (*MapCanvas)(nil)
	_ fyne.Draggable    = (*MapCanvas)(nil)
	_ fyne.Scrollable   = (*MapCanvas)(nil)
	_ desktop.Hoverable = (*MapCanvas)(nil)
	_ desktop.Mouseable = (*MapCanvas)(nil)
)
