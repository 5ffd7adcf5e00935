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
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"plotmap/internal/scene"
	"plotmap/internal/vector"
)

const defaultLabelSize = 16

// labelFonts resolves Go fonts into faces cached by weight and pixel size.
type labelFonts struct {
	regular, bold *opentype.Font
	faces         map[faceKey]font.Face
}

type faceKey struct {
	bold bool
	px   int
}

func newLabelFonts() (*labelFonts, error) {
	reg, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &labelFonts{regular: reg, bold: bold, faces: map[faceKey]font.Face{}}, nil
}

func (lf *labelFonts) face(bold bool, px float64) (font.Face, error) {
	k := faceKey{bold: bold, px: max(1, int(px+0.5))}
	if f, ok := lf.faces[k]; ok {
		return f, nil
	}
	src := lf.regular
	if bold {
		src = lf.bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{Size: float64(k.px), DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, err
	}
	lf.faces[k] = f
	return f, nil
}

func (lf *labelFonts) Close() {
	for _, f := range lf.faces {
		_ = f.Close()
	}
}

// label is a resolved <text> element in scene units.
type label struct {
	text   string
	x, y   float64
	size   float64
	bold   bool
	anchor string
	middle bool
	fill   color.RGBA
}

// attrOrStyle reads a presentation attribute, preferring the inline style.
func attrOrStyle(e *scene.Element, name string) string {
	if v := e.Style(name); v != "" {
		return v
	}
	v, _ := e.Attr(name)
	return strings.TrimSpace(v)
}

func parseNumber(s string, def float64) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if f := strings.Fields(strings.ReplaceAll(s, ",", " ")); len(f) > 0 {
		s = f[0]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// parseColor understands #rgb, #rrggbb and the few keywords used in plans.
func parseColor(s string) (color.RGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "none", "transparent":
		return color.RGBA{}, false
	case "black":
		return color.RGBA{A: 255}, true
	case "white":
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}, true
	case "red":
		return color.RGBA{R: 255, A: 255}, true
	}
	if !strings.HasPrefix(s, "#") {
		return color.RGBA{}, false
	}
	h := s[1:]
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func textContent(e *scene.Element) string {
	var b strings.Builder
	b.WriteString(e.Text())
	for _, d := range e.Descendants() {
		if d.Tag() == "tspan" {
			b.WriteString(" ")
			b.WriteString(d.Text())
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// collectLabels returns the drawable text elements of doc. Transforms are not
// applied.
func collectLabels(doc *scene.Document) []label {
	var out []label
	doc.Walk(func(e *scene.Element) bool {
		if e.Tag() != "text" {
			return true
		}
		txt := textContent(e)
		fill, ok := parseColor(attrOrStyle(e, "fill"))
		if _, set := e.Attr("fill"); !set && e.Style("fill") == "" {
			fill, ok = color.RGBA{A: 255}, true
		}
		if txt == "" || !ok {
			return true
		}
		if op := attrOrStyle(e, "opacity"); op != "" {
			a := vector.Clamp(parseNumber(op, 1), 0, 1)
			fill.R, fill.G, fill.B = uint8(float64(fill.R)*a), uint8(float64(fill.G)*a), uint8(float64(fill.B)*a)
			fill.A = uint8(float64(fill.A) * a)
		}
		w := attrOrStyle(e, "font-weight")
		x, _ := e.Attr("x")
		y, _ := e.Attr("y")
		base := attrOrStyle(e, "dominant-baseline")
		out = append(out, label{
			text:   txt,
			x:      parseNumber(x, 0),
			y:      parseNumber(y, 0),
			size:   parseNumber(attrOrStyle(e, "font-size"), defaultLabelSize),
			bold:   w == "bold" || w == "bolder" || parseNumber(w, 400) >= 600,
			anchor: attrOrStyle(e, "text-anchor"),
			middle: base == "middle" || base == "central",
			fill:   fill,
		})
		return true
	})
	return out
}

// drawLabels renders the text of doc onto dst, mapping the window win with
// the pixel scales sx and sy.
func drawLabels(dst draw.Image, doc *scene.Document, win vector.Rect, sx, sy float64) error {
	labels := collectLabels(doc)
	if len(labels) == 0 {
		return nil
	}
	fonts, err := newLabelFonts()
	if err != nil {
		return err
	}
	defer fonts.Close()
	for _, l := range labels {
		face, err := fonts.face(l.bold, l.size*sy)
		if err != nil {
			return err
		}
		d := &font.Drawer{Dst: dst, Src: image.NewUniform(l.fill), Face: face}
		px := (l.x - win.X) * sx
		py := (l.y - win.Y) * sy
		adv := float64(d.MeasureString(l.text)) / 64
		switch l.anchor {
		case "middle":
			px -= adv / 2
		case "end":
			px -= adv
		}
		if l.middle {
			m := face.Metrics()
			py += float64(m.Ascent-m.Descent) / 64 / 2
		}
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(px * 64), Y: fixed.Int26_6(py * 64)}
		d.DrawString(l.text)
	}
	return nil
}
