/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package overlay

import (
	"errors"
	"log/slog"
	"math"
	"strconv"

	"plotmap/internal/domain"
	applog "plotmap/internal/log"
	"plotmap/internal/scene"
)

// ErrUnknownPlot is returned for ids without a binding.
var ErrUnknownPlot = errors.New("plot not bound")

// Label styling of the synthesized SOLD text.
const (
	fallbackText       = "SOLD"
	fallbackSizeFactor = 0.26
	fallbackFont       = "Segoe UI,Arial,sans-serif"
)

// Synchronizer applies plot statuses to the scene: fills, stamps and the
// fallback SOLD label.
type Synchronizer struct {
	reg *Registry
	log *slog.Logger
}

func NewSynchronizer(reg *Registry, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = applog.WithComponent("overlay")
	}
	return &Synchronizer{reg: reg, log: logger}
}

// Registry returns the registry the synchronizer works on.
func (s *Synchronizer) Registry() *Registry { return s.reg }

// Initialize hides every top-level stamp once and then applies each plot's
// status. The global hide must come first: hiding a parent stamp after a
// nested stamp was shown would hide it again.
func (s *Synchronizer) Initialize(plots []domain.Plot) {
	s.HideAllStamps()
	for _, p := range plots {
		if _, ok := s.reg.Binding(p.ID); !ok {
			continue
		}
		if err := s.ApplyStatus(p.ID, p.Status); err != nil {
			s.log.Warn("apply status failed", "plot", p.ID, "err", err)
		}
	}
}

// HideAllStamps hides the bound stamp elements that are not nested inside
// another stamp element.
func (s *Synchronizer) HideAllStamps() {
	hidden := 0
	for _, id := range s.reg.order {
		b := s.reg.bindings[id]
		if b.Stamp == nil || nestedInStamp(b.Stamp) {
			continue
		}
		b.Stamp.Hide()
		hidden++
	}
	s.log.Debug("stamps hidden", "count", hidden)
}

func nestedInStamp(e *scene.Element) bool {
	for _, a := range e.Ancestors() {
		if isStampID(a.ID()) {
			return true
		}
	}
	return false
}

// ApplyStatus styles the plot for st. Sold fills the visible shape and reveals
// the stamp with all of its descendants, or draws the fallback label once.
// InProgress only fills. Available leaves the scene untouched.
func (s *Synchronizer) ApplyStatus(id string, st domain.Status) error {
	b, ok := s.reg.Binding(id)
	if !ok {
		return ErrUnknownPlot
	}
	switch st {
	case domain.Sold:
		setFill(b.Visible, domain.SoldFill)
		s.showStamp(b)
	case domain.InProgress:
		setFill(b.Visible, domain.InProgressFill)
	}
	return nil
}

func (s *Synchronizer) showStamp(b *Binding) {
	if b.Stamp != nil {
		b.Stamp.Show()
		for _, d := range b.Stamp.Descendants() {
			if d.Hidden() {
				d.Show()
			}
		}
		return
	}
	if _, exists := s.reg.doc.ElementByID(b.FallbackID); exists {
		return
	}
	box, err := b.Visible.BBox()
	if err != nil {
		s.log.Warn("fallback stamp skipped", "plot", b.ID, "err", err)
		return
	}
	size := math.Min(box.W, box.H) * fallbackSizeFactor
	c := box.Center()
	t := s.reg.doc.CreateElement(nil, "text")
	t.SetAttr("id", b.FallbackID)
	t.SetAttr("x", num(c.X))
	t.SetAttr("y", num(c.Y))
	t.SetAttr("text-anchor", "middle")
	t.SetAttr("dominant-baseline", "middle")
	t.SetAttr("font-size", num(size)+"px")
	t.SetAttr("font-weight", "900")
	t.SetAttr("fill", "#fff")
	t.SetAttr("opacity", "0.92")
	t.SetAttr("pointer-events", "none")
	t.SetAttr("font-family", fallbackFont)
	t.SetAttr("letter-spacing", "2")
	t.SetText(fallbackText)
}

// ClearStatus hides the stamp (top level only) and removes the fallback label.
func (s *Synchronizer) ClearStatus(id string) error {
	b, ok := s.reg.Binding(id)
	if !ok {
		return ErrUnknownPlot
	}
	if b.Stamp != nil {
		b.Stamp.Hide()
	}
	if fb, ok := s.reg.doc.ElementByID(b.FallbackID); ok {
		fb.Remove()
	}
	return nil
}

// Fill returns the current fill of the plot's visible shape.
func (s *Synchronizer) Fill(id string) (string, error) {
	b, ok := s.reg.Binding(id)
	if !ok {
		return "", ErrUnknownPlot
	}
	return b.Visible.Fill(), nil
}

// SetFill overwrites the fill of the plot's visible shape.
func (s *Synchronizer) SetFill(id, fill string) error {
	b, ok := s.reg.Binding(id)
	if !ok {
		return ErrUnknownPlot
	}
	setFill(b.Visible, fill)
	return nil
}

// setFill writes the fill attribute, and the inline style fill when one would
// otherwise override it. An empty fill removes both.
func setFill(e *scene.Element, fill string) {
	if fill == "" {
		e.RemoveAttr("fill")
	} else {
		e.SetAttr("fill", fill)
	}
	if e.Style("fill") != "" {
		e.SetStyle("fill", fill)
	}
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
