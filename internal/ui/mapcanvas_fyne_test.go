//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Run with: go test -tags fyne ./internal/ui
package ui

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"

	"plotmap/internal/config"
	"plotmap/internal/storage"
)

func TestMapCanvas_ResizeSetsViewportAndWheelZooms(t *testing.T) {
	test.NewTempApp(t)
	c := newTestController(t)
	m := NewMapCanvas(c)
	m.Resize(fyne.NewSize(200, 100))

	before, _ := c.Window()
	m.Scrolled(&fyne.ScrollEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(100, 50)}, Scrolled: fyne.Delta{DY: 2}})
	after, _ := c.Window()
	if !(after.W < before.W) {
		t.Fatalf("wheel up should zoom in: before %v after %v", before, after)
	}
}

func TestMapCanvas_DragPans(t *testing.T) {
	test.NewTempApp(t)
	c := newTestController(t)
	m := NewMapCanvas(c)
	m.Resize(fyne.NewSize(200, 100))
	c.ZoomIn()
	before, _ := c.Window()

	m.MouseDown(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(100, 50)}, Button: desktop.MouseButtonPrimary})
	m.Dragged(&fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(140, 50)}})
	m.MouseUp(&desktop.MouseEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(140, 50)}})
	after, _ := c.Window()
	if !(after.X < before.X) {
		t.Fatalf("dragging right should move the window left: before %v after %v", before, after)
	}
	if after.W != before.W {
		t.Fatalf("pan changed the window size")
	}
}

func TestMapCanvas_DrawBeforeLoad(t *testing.T) {
	test.NewTempApp(t)
	c := newController(Options{Store: storage.NewMemStore(), Map: config.Defaults().Map}, func(f func()) { f() })
	m := NewMapCanvas(c)
	img := m.draw(10, 10)
	if img.Bounds().Empty() {
		t.Fatalf("expected a placeholder image")
	}
}
