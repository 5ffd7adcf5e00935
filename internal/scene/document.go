/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene wraps an SVG floor plan as a mutable element tree with id lookup,
// bounding-box queries and attribute/style editing.
package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	applog "plotmap/internal/log"
	"plotmap/internal/vector"
)

var (
	// ErrLoad is returned when the scene cannot be fetched or parsed.
	ErrLoad = errors.New("scene load failed")
	// ErrNoBBox is returned when an element has no measurable geometry or is detached.
	ErrNoBBox = errors.New("no bounding box")
)

// Default extent used when the root declares neither viewBox nor usable width/height.
const (
	DefaultWidth  = 700
	DefaultHeight = 500
)

// Document is a loaded SVG scene. It is not safe for concurrent use.
type Document struct {
	doc     *etree.Document
	root    *Element
	byID    map[string]*Element
	handles map[*etree.Element]*Element
	extent  vector.Rect
}

// Load reads an SVG from a file path or an http(s) URL.
func Load(ctx context.Context, src string) (*Document, error) {
	l := applog.WithOperation(applog.WithComponent("scene"), "load").With("src", src)
	start := time.Now()
	data, err := fetch(ctx, src)
	if err != nil {
		l.Error("fetch failed", "err", err)
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	d, err := Parse(data)
	if err != nil {
		l.Error("parse failed", "err", err)
		return nil, err
	}
	l.Info("scene loaded", "elements", len(d.byID), "extent", d.extent, "duration_ms", time.Since(start).Milliseconds())
	return d, nil
}

func fetch(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("GET %s: %s", src, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(src)
}

// Parse builds a Document from SVG bytes. A missing viewBox is derived from the
// root width/height, and the root is set to fill its container.
func Parse(data []byte) (*Document, error) {
	x := etree.NewDocument()
	if err := x.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	r := x.Root()
	if r == nil || r.Tag != "svg" {
		return nil, fmt.Errorf("%w: root element is not <svg>", ErrLoad)
	}
	d := &Document{
		doc:     x,
		byID:    map[string]*Element{},
		handles: map[*etree.Element]*Element{},
	}
	d.root = d.wrap(r)
	d.index(r)
	d.extent = d.deriveViewBox()
	return d, nil
}

func (d *Document) wrap(e *etree.Element) *Element {
	if e == nil {
		return nil
	}
	if h, ok := d.handles[e]; ok {
		return h
	}
	h := &Element{el: e, doc: d}
	d.handles[e] = h
	return h
}

func (d *Document) index(e *etree.Element) {
	h := d.wrap(e)
	if id := e.SelectAttrValue("id", ""); id != "" {
		if _, dup := d.byID[id]; !dup {
			d.byID[id] = h
		}
	}
	for _, c := range e.ChildElements() {
		d.index(c)
	}
}

func (d *Document) unindex(e *etree.Element) {
	if id := e.SelectAttrValue("id", ""); id != "" {
		if h, ok := d.byID[id]; ok && h.el == e {
			delete(d.byID, id)
		}
	}
	for _, c := range e.ChildElements() {
		d.unindex(c)
	}
}

func (d *Document) deriveViewBox() vector.Rect {
	r := d.root.el
	if vb := r.SelectAttrValue("viewBox", ""); vb != "" {
		if nums, err := vector.ParseNumbers(vb); err == nil && len(nums) == 4 && nums[2] > 0 && nums[3] > 0 {
			d.normalizeRoot()
			return vector.R(nums[0], nums[1], nums[2], nums[3])
		}
	}
	w := parseLength(r.SelectAttrValue("width", ""), DefaultWidth)
	h := parseLength(r.SelectAttrValue("height", ""), DefaultHeight)
	ext := vector.R(0, 0, w, h)
	r.CreateAttr("viewBox", FormatViewBox(ext))
	d.normalizeRoot()
	return ext
}

func (d *Document) normalizeRoot() {
	r := d.root.el
	r.CreateAttr("width", "100%")
	r.CreateAttr("height", "100%")
	r.CreateAttr("preserveAspectRatio", "xMidYMid meet")
}

// parseLength accepts plain numbers and px values; anything else yields def.
func parseLength(s string, def float64) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// FormatViewBox renders r as an SVG viewBox attribute value.
func FormatViewBox(r vector.Rect) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return f(r.X) + " " + f(r.Y) + " " + f(r.W) + " " + f(r.H)
}

// Root returns the <svg> element.
func (d *Document) Root() *Element { return d.root }

// Extent is the natural viewBox captured at load.
func (d *Document) Extent() vector.Rect { return d.extent }

// ViewBox returns the currently applied viewBox.
func (d *Document) ViewBox() vector.Rect {
	nums, err := vector.ParseNumbers(d.root.el.SelectAttrValue("viewBox", ""))
	if err != nil || len(nums) != 4 {
		return d.extent
	}
	return vector.R(nums[0], nums[1], nums[2], nums[3])
}

// SetViewBox updates the root viewBox attribute.
func (d *Document) SetViewBox(r vector.Rect) {
	d.root.el.CreateAttr("viewBox", FormatViewBox(r))
}

// ElementByID returns the element with the given id.
func (d *Document) ElementByID(id string) (*Element, bool) {
	e, ok := d.byID[id]
	return e, ok
}

// Walk visits every element in document order until fn returns false.
func (d *Document) Walk(fn func(*Element) bool) {
	var walk func(e *etree.Element) bool
	walk = func(e *etree.Element) bool {
		if !fn(d.wrap(e)) {
			return false
		}
		for _, c := range e.ChildElements() {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(d.root.el)
}

// CreateElement creates a new element appended to parent (the root when nil).
func (d *Document) CreateElement(parent *Element, tag string) *Element {
	if parent == nil {
		parent = d.root
	}
	e := parent.el.CreateElement(tag)
	return d.wrap(e)
}

// WriteTo serializes the document.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.doc.WriteTo(w)
}

// Bytes returns the serialized document.
func (d *Document) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if _, err := d.doc.WriteTo(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Clone returns a deep copy that shares nothing with d.
func (d *Document) Clone() (*Document, error) {
	b, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	c.extent = d.extent
	return c, nil
}
