/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"strconv"

	"plotmap/internal/domain"
	"plotmap/internal/scene"
	"plotmap/internal/vector"
)

// LegendID is the id of the legend group added to snapshots.
const LegendID = "plotmap-legend"

// SnapshotOptions controls the annotated SVG snapshot.
type SnapshotOptions struct {
	// Window is the visible rectangle to keep; empty uses the document's current viewBox.
	Window  vector.Rect
	Caption string
	Plots   []domain.Plot // counted in the legend
}

// Snapshot returns an annotated copy of doc cropped to the window. doc is not
// modified.
func Snapshot(doc *scene.Document, opt SnapshotOptions) (*scene.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	c, err := doc.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone scene: %w", err)
	}
	win := opt.Window
	if win.Empty() {
		win = doc.ViewBox()
	}
	c.SetViewBox(win)

	counts := map[domain.Status]int{}
	for _, p := range opt.Plots {
		counts[p.Status]++
	}
	unit := win.W / 60
	f := func(v float64) string { return strconv.FormatFloat(vector.Round(v, 3), 'f', -1, 64) }

	g := c.CreateElement(nil, "g")
	g.SetAttr("id", LegendID)
	g.SetAttr("font-family", "Helvetica, Arial, sans-serif")
	g.SetAttr("font-size", f(unit*1.2))

	rows := []domain.Status{domain.Available, domain.InProgress, domain.Sold}
	top := 0
	if opt.Caption != "" {
		top = 1
	}
	bg := c.CreateElement(g, "rect")
	bg.SetAttr("x", f(win.X+unit/2))
	bg.SetAttr("y", f(win.Y+unit/2))
	bg.SetAttr("width", f(unit*14))
	bg.SetAttr("height", f(unit*(2*float64(len(rows)+top)+1)))
	bg.SetAttr("fill", "#ffffff")
	bg.SetAttr("fill-opacity", "0.85")
	bg.SetAttr("stroke", "#888888")
	bg.SetAttr("stroke-width", f(unit/10))

	y := win.Y + unit*1.5
	if opt.Caption != "" {
		t := c.CreateElement(g, "text")
		t.SetAttr("x", f(win.X+unit))
		t.SetAttr("y", f(y+unit))
		t.SetAttr("font-weight", "bold")
		t.SetText(opt.Caption)
		y += 2 * unit
	}
	for _, st := range rows {
		fill, ok := st.Fill()
		if !ok {
			fill = "#ffffff"
		}
		sw := c.CreateElement(g, "rect")
		sw.SetAttr("x", f(win.X+unit))
		sw.SetAttr("y", f(y))
		sw.SetAttr("width", f(unit*1.2))
		sw.SetAttr("height", f(unit*1.2))
		sw.SetAttr("fill", fill)
		sw.SetAttr("stroke", "#444444")
		sw.SetAttr("stroke-width", f(unit/10))
		t := c.CreateElement(g, "text")
		t.SetAttr("x", f(win.X+unit*3))
		t.SetAttr("y", f(y+unit))
		t.SetText(fmt.Sprintf("%s (%d)", st.Label(), counts[st]))
		y += 2 * unit
	}
	return c, nil
}

// WriteSnapshot serializes the annotated snapshot of doc to w.
func WriteSnapshot(w io.Writer, doc *scene.Document, opt SnapshotOptions) error {
	s, err := Snapshot(doc, opt)
	if err != nil {
		return err
	}
	_, err = s.WriteTo(w)
	return err
}

// ExportSnapshot writes the annotated snapshot to outPath.
func ExportSnapshot(doc *scene.Document, opt SnapshotOptions, outPath string) error {
	s, err := Snapshot(doc, opt)
	if err != nil {
		return err
	}
	return writeFile(outPath, "svg", func(w io.Writer) error {
		_, err := s.WriteTo(w)
		return err
	})
}
