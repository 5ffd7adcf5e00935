/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package viewport maps between screen pixels and scene coordinates and owns the
// pannable, zoomable window over the scene.
package viewport

import "plotmap/internal/vector"

// Window is the scene rectangle currently mapped onto the viewport.
type Window = vector.Rect

// ScreenToScene converts a screen point inside the viewport vp to scene space.
// A viewport without area maps everything to the window origin.
func ScreenToScene(p vector.Pt, vp vector.Rect, w Window) vector.Pt {
	if !(vp.W > 0) || !(vp.H > 0) {
		return vector.Pt{X: w.X, Y: w.Y}
	}
	return vector.Pt{
		X: w.X + (p.X-vp.X)/vp.W*w.W,
		Y: w.Y + (p.Y-vp.Y)/vp.H*w.H,
	}
}

// SceneToScreen is the inverse of ScreenToScene. A window without area maps to
// the viewport origin.
func SceneToScreen(p vector.Pt, vp vector.Rect, w Window) vector.Pt {
	if !(w.W > 0) || !(w.H > 0) {
		return vector.Pt{X: vp.X, Y: vp.Y}
	}
	return vector.Pt{
		X: vp.X + (p.X-w.X)/w.W*vp.W,
		Y: vp.Y + (p.Y-w.Y)/w.H*vp.H,
	}
}

// ScreenDeltaToScene converts a pixel delta to a scene delta. Zero for a
// viewport without area.
func ScreenDeltaToScene(dx, dy float64, vp vector.Rect, w Window) (float64, float64) {
	if !(vp.W > 0) || !(vp.H > 0) {
		return 0, 0
	}
	return dx / vp.W * w.W, dy / vp.H * w.H
}
