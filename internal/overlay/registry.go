/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package overlay binds plot records to scene elements and keeps the plot
// styling and SOLD stamps in step with each plot's status.
package overlay

import (
	"log/slog"
	"strconv"
	"strings"

	"plotmap/internal/domain"
	applog "plotmap/internal/log"
	"plotmap/internal/scene"
	"plotmap/internal/vector"
)

// StampPrefix starts the id of every stamp element.
const StampPrefix = "stamp-plot-"

// FallbackPrefix starts the id of a synthesized SOLD label.
const FallbackPrefix = "__fstamp__"

// Binding ties one plot to its scene elements.
type Binding struct {
	ID         string
	Hit        *scene.Element // clickable region
	Visible    *scene.Element // filled shape; Hit when nothing better exists
	Stamp      *scene.Element // nil when the scene has no stamp for the plot
	StampID    string
	FallbackID string
}

// Registry is the immutable plot-to-element index built after a scene load.
type Registry struct {
	doc      *scene.Document
	order    []string
	bindings map[string]*Binding
}

// StampID returns the stamp element id for a plot.
func StampID(p domain.Plot) string {
	return StampPrefix + strconv.Itoa(p.StampKey())
}

// Build resolves every plot against doc. Plots without a hit region are logged
// and skipped. logger may be nil.
func Build(doc *scene.Document, plots []domain.Plot, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = applog.WithComponent("overlay")
	}
	r := &Registry{doc: doc, bindings: make(map[string]*Binding, len(plots))}
	for _, p := range plots {
		hit, ok := doc.ElementByID(p.ID)
		if !ok {
			logger.Warn("hit region not found", "plot", p.ID)
			continue
		}
		if _, dup := r.bindings[p.ID]; dup {
			logger.Warn("duplicate plot id", "plot", p.ID)
			continue
		}
		b := &Binding{
			ID:         p.ID,
			Hit:        hit,
			Visible:    resolveVisible(doc, p, hit),
			StampID:    StampID(p),
			FallbackID: FallbackPrefix + p.ID,
		}
		if st, ok := doc.ElementByID(b.StampID); ok {
			b.Stamp = st
		} else {
			logger.Debug("no stamp element", "plot", p.ID, "stamp", b.StampID)
		}
		r.bindings[p.ID] = b
		r.order = append(r.order, p.ID)
	}
	logger.Info("overlay registry built", "plots", len(plots), "bound", len(r.order))
	return r
}

func resolveVisible(doc *scene.Document, p domain.Plot, hit *scene.Element) *scene.Element {
	candidates := []string{p.VisibleID}
	if p.PlotNum != 0 {
		n := strconv.Itoa(p.PlotNum)
		candidates = append(candidates, "Plot-"+n, "plot-"+n)
	}
	for _, id := range candidates {
		if id == "" {
			continue
		}
		if e, ok := doc.ElementByID(id); ok {
			return e
		}
	}
	return hit
}

// Document returns the scene the registry was built over.
func (r *Registry) Document() *scene.Document { return r.doc }

// Binding returns the binding for id.
func (r *Registry) Binding(id string) (*Binding, bool) {
	b, ok := r.bindings[id]
	return b, ok
}

// IDs lists the bound plots in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len is the number of bound plots.
func (r *Registry) Len() int { return len(r.order) }

// HitTest returns the top-most plot whose hit region contains p (scene space).
// Later registrations win, as they would when painted later.
func (r *Registry) HitTest(p vector.Pt) (string, bool) {
	for i := len(r.order) - 1; i >= 0; i-- {
		b := r.bindings[r.order[i]]
		if contains(b.Hit, p) {
			return b.ID, true
		}
	}
	return "", false
}

func contains(e *scene.Element, p vector.Pt) bool {
	box, err := e.BBox()
	if err != nil || !box.Contains(p) {
		return false
	}
	outline := e.Outline()
	if len(outline) == 0 {
		return true
	}
	switch e.Tag() {
	case "line", "polyline":
		return true
	}
	for _, poly := range outline {
		if vector.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// isStampID reports whether id names a stamp element.
func isStampID(id string) bool { return strings.HasPrefix(id, StampPrefix) }
