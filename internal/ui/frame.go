/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui is the desktop front end of the dashboard. The Fyne window is only
// compiled with the "fyne" build tag; the frame and input helpers here are
// shared so they can be tested headless.
package ui

import (
	"image"
	"image/color"

	"plotmap/internal/auth"
	"plotmap/internal/config"
	"plotmap/internal/dashboard"
	"plotmap/internal/export"
	"plotmap/internal/gesture"
	"plotmap/internal/storage"
)

// Options configure the desktop dashboard.
type Options struct {
	Scene   string // file path or http(s) URL of the floor plan
	Store   storage.Store
	Auth    *auth.Service // nil skips the login screen
	Map     config.MapConfig
	DataDir string
	Events  dashboard.Events
}

// mapBackground fills the area outside the drawing.
var mapBackground = color.RGBA{R: 245, G: 245, B: 240, A: 255}

func newController(opts Options, dispatch func(func())) *dashboard.Controller {
	return dashboard.New(dashboard.Options{
		Store:      opts.Store,
		Auth:       opts.Auth,
		Limits:     opts.Map.Limits(),
		Gesture:    opts.Map.Gesture(),
		FitPadding: opts.Map.FitPadding,
		Dispatch:   dispatch,
		Events:     opts.Events,
	})
}

// keyName translates desktop key names to the names the router understands.
// Unknown keys map to "".
func keyName(k string) string {
	switch k {
	case "Up":
		return gesture.KeyUp
	case "Down":
		return gesture.KeyDown
	case "Left":
		return gesture.KeyLeft
	case "Right":
		return gesture.KeyRight
	case "Escape":
		return dashboard.KeyEscape
	case "+", "=", "-", "_", "0":
		return k
	}
	return ""
}

// renderFrame rasterizes the visible window stretched to w x h pixels, which
// matches the mapping the router uses for pointer input.
func renderFrame(c *dashboard.Controller, w, h int) (image.Image, error) {
	win, ok := c.Window()
	doc := c.Scene()
	if !ok || doc == nil {
		return nil, dashboard.ErrNotLoaded
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return export.RenderPNG(doc, export.PNGOptions{Width: w, Height: h, Window: win, Background: mapBackground})
}
