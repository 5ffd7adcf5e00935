/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"fmt"
	"strconv"
	"strings"

	"plotmap/internal/vector"
)

// curveSegments is the sampling density used when flattening curves for hit tests.
const curveSegments = 8

// CTM returns the transform from e's local coordinates to root user space,
// including e's own transform attribute.
func (e *Element) CTM() vector.Affine2D {
	m := vector.Identity
	chain := append([]*Element{e}, e.Ancestors()...)
	// apply from the root downwards
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		if c == e.doc.root {
			continue
		}
		m = m.Mul(c.localTransform())
	}
	return m
}

func (e *Element) localTransform() vector.Affine2D {
	m := vector.Identity
	if e.el.Tag == "svg" || e.el.Tag == "use" {
		x := attrFloat(e, "x")
		y := attrFloat(e, "y")
		if x != 0 || y != 0 {
			m = vector.Translate(x, y)
		}
	}
	if t, ok := e.Attr("transform"); ok {
		if tm, err := vector.ParseTransform(t); err == nil {
			m = m.Mul(tm)
		}
	}
	return m
}

// BBox returns the element's bounding box in root user space. Groups report the
// union of their measurable descendants.
func (e *Element) BBox() (vector.Rect, error) {
	if !e.Attached() {
		return vector.Rect{}, fmt.Errorf("%w: %s is detached", ErrNoBBox, e.describe())
	}
	r, ok := e.bboxIn(e.CTM())
	if !ok {
		return vector.Rect{}, fmt.Errorf("%w: %s has no geometry", ErrNoBBox, e.describe())
	}
	return r, nil
}

func (e *Element) bboxIn(m vector.Affine2D) (vector.Rect, bool) {
	if polys := e.localPolygons(); len(polys) > 0 {
		var pts []vector.Pt
		for _, poly := range polys {
			for _, p := range poly {
				pts = append(pts, m.Apply(p))
			}
		}
		return vector.BoundsOf(pts)
	}
	if e.el.Tag == "text" {
		return e.textBox(m)
	}
	var acc vector.Rect
	found := false
	for _, c := range e.Children() {
		if r, ok := c.bboxIn(m.Mul(c.localTransform())); ok {
			if !found {
				acc = r
				found = true
				continue
			}
			acc = unionRect(acc, r)
		}
	}
	return acc, found
}

// Outline returns the element's shape as polygons in root user space. Groups and
// text return nil; callers fall back to BBox.
func (e *Element) Outline() [][]vector.Pt {
	polys := e.localPolygons()
	if len(polys) == 0 {
		return nil
	}
	m := e.CTM()
	out := make([][]vector.Pt, len(polys))
	for i, poly := range polys {
		tp := make([]vector.Pt, len(poly))
		for j, p := range poly {
			tp[j] = m.Apply(p)
		}
		out[i] = tp
	}
	return out
}

// localPolygons returns basic shapes in local coordinates.
func (e *Element) localPolygons() [][]vector.Pt {
	switch e.el.Tag {
	case "rect":
		x, y := attrFloat(e, "x"), attrFloat(e, "y")
		w, h := attrFloat(e, "width"), attrFloat(e, "height")
		if w <= 0 || h <= 0 {
			return nil
		}
		return [][]vector.Pt{{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}}
	case "circle":
		r := attrFloat(e, "r")
		return ellipse(attrFloat(e, "cx"), attrFloat(e, "cy"), r, r)
	case "ellipse":
		return ellipse(attrFloat(e, "cx"), attrFloat(e, "cy"), attrFloat(e, "rx"), attrFloat(e, "ry"))
	case "line":
		return [][]vector.Pt{{
			{X: attrFloat(e, "x1"), Y: attrFloat(e, "y1")},
			{X: attrFloat(e, "x2"), Y: attrFloat(e, "y2")},
		}}
	case "polygon", "polyline":
		v, _ := e.Attr("points")
		pts, err := vector.ParsePoints(v)
		if err != nil || len(pts) == 0 {
			return nil
		}
		return [][]vector.Pt{pts}
	case "path":
		d, _ := e.Attr("d")
		p, err := vector.ParsePathData(d)
		if err != nil {
			return nil
		}
		return p.Flatten(curveSegments)
	}
	return nil
}

func ellipse(cx, cy, rx, ry float64) [][]vector.Pt {
	if rx <= 0 || ry <= 0 {
		return nil
	}
	p := &vector.Path{}
	p.MoveTo(cx+rx, cy)
	// four quarter arcs approximated by cubic curves
	const k = 0.5522847498
	p.CubicTo(cx+rx, cy+ry*k, cx+rx*k, cy+ry, cx, cy+ry)
	p.CubicTo(cx-rx*k, cy+ry, cx-rx, cy+ry*k, cx-rx, cy)
	p.CubicTo(cx-rx, cy-ry*k, cx-rx*k, cy-ry, cx, cy-ry)
	p.CubicTo(cx+rx*k, cy-ry, cx+rx, cy-ry*k, cx+rx, cy)
	p.Close()
	return p.Flatten(curveSegments)
}

// textBox estimates a text extent from font-size and character count.
func (e *Element) textBox(m vector.Affine2D) (vector.Rect, bool) {
	text := strings.TrimSpace(e.el.Text())
	if text == "" {
		return vector.Rect{}, false
	}
	size := parseFontSize(e.Style("font-size"))
	if size == 0 {
		v, _ := e.Attr("font-size")
		size = parseFontSize(v)
	}
	if size == 0 {
		size = 16
	}
	w := float64(len([]rune(text))) * size * 0.6
	x, y := attrFloat(e, "x"), attrFloat(e, "y")
	switch e.el.SelectAttrValue("text-anchor", "") {
	case "middle":
		x -= w / 2
	case "end":
		x -= w
	}
	top := y - size*0.8
	if e.el.SelectAttrValue("dominant-baseline", "") == "middle" {
		top = y - size/2
	}
	return m.ApplyRect(vector.R(x, top, w, size)), true
}

func parseFontSize(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func attrFloat(e *Element, name string) float64 {
	v, ok := e.Attr(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
	if err != nil {
		return 0
	}
	return f
}

// unionRect unions two boxes that are both known to be present, unlike
// vector.Rect.Union which treats a zero rect as absent.
func unionRect(a, b vector.Rect) vector.Rect {
	minX, minY := min(a.X, b.X), min(a.Y, b.Y)
	maxX, maxY := max(a.X+a.W, b.X+b.W), max(a.Y+a.H, b.Y+b.H)
	return vector.R(minX, minY, maxX-minX, maxY-minY)
}

func (e *Element) describe() string {
	if id := e.ID(); id != "" {
		return "<" + e.el.Tag + " id=" + strconv.Quote(id) + ">"
	}
	return "<" + e.el.Tag + ">"
}
