/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package scene

import (
	"strings"

	"github.com/beevik/etree"
)

// Element is a handle on one node of a Document. Handles are stable: looking up
// the same node twice yields the same pointer.
type Element struct {
	el  *etree.Element
	doc *Document
}

func (e *Element) ID() string  { return e.el.SelectAttrValue("id", "") }
func (e *Element) Tag() string { return e.el.Tag }

// Attr returns the attribute value and whether it is present.
func (e *Element) Attr(name string) (string, bool) {
	a := e.el.SelectAttr(name)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

// SetAttr sets or replaces an attribute. Setting "id" re-indexes the element.
func (e *Element) SetAttr(name, value string) {
	if name == "id" {
		if old := e.ID(); old != "" {
			if h, ok := e.doc.byID[old]; ok && h == e {
				delete(e.doc.byID, old)
			}
		}
		if e.Attached() {
			if _, dup := e.doc.byID[value]; !dup {
				e.doc.byID[value] = e
			}
		}
	}
	e.el.CreateAttr(name, value)
}

func (e *Element) RemoveAttr(name string) { e.el.RemoveAttr(name) }

// Text returns the element's character data.
func (e *Element) Text() string     { return e.el.Text() }
func (e *Element) SetText(s string) { e.el.SetText(s) }

// Parent returns the parent element, or nil for the root and detached nodes.
func (e *Element) Parent() *Element {
	p := e.el.Parent()
	if p == nil || p.Tag == "" {
		return nil
	}
	return e.doc.wrap(p)
}

// Attached reports whether the element is still reachable from the document root.
func (e *Element) Attached() bool {
	root := e.doc.root.el
	for cur := e.el; cur != nil; cur = cur.Parent() {
		if cur == root {
			return true
		}
	}
	return false
}

// Children returns the direct child elements.
func (e *Element) Children() []*Element {
	cs := e.el.ChildElements()
	out := make([]*Element, 0, len(cs))
	for _, c := range cs {
		out = append(out, e.doc.wrap(c))
	}
	return out
}

// Descendants returns all elements below e in document order.
func (e *Element) Descendants() []*Element {
	var out []*Element
	var walk func(x *etree.Element)
	walk = func(x *etree.Element) {
		for _, c := range x.ChildElements() {
			out = append(out, e.doc.wrap(c))
			walk(c)
		}
	}
	walk(e.el)
	return out
}

// Ancestors returns the chain from the parent up to (and including) the root.
func (e *Element) Ancestors() []*Element {
	var out []*Element
	for p := e.Parent(); p != nil; p = p.Parent() {
		out = append(out, p)
	}
	return out
}

// AppendChild moves c under e.
func (e *Element) AppendChild(c *Element) {
	e.el.AddChild(c.el)
	e.doc.index(c.el)
}

// Remove detaches e from the tree and drops its ids from the index.
func (e *Element) Remove() {
	p := e.el.Parent()
	if p == nil {
		return
	}
	e.doc.unindex(e.el)
	p.RemoveChild(e.el)
}

// Style returns the value of one inline style property.
func (e *Element) Style(prop string) string {
	for _, kv := range parseStyle(e.el.SelectAttrValue("style", "")) {
		if kv[0] == prop {
			return kv[1]
		}
	}
	return ""
}

// SetStyle sets one inline style property; an empty value removes it.
func (e *Element) SetStyle(prop, value string) {
	decls := parseStyle(e.el.SelectAttrValue("style", ""))
	found := false
	out := decls[:0]
	for _, kv := range decls {
		if kv[0] == prop {
			found = true
			if value == "" {
				continue
			}
			kv[1] = value
		}
		out = append(out, kv)
	}
	if !found && value != "" {
		out = append(out, [2]string{prop, value})
	}
	if len(out) == 0 {
		e.el.RemoveAttr("style")
		return
	}
	e.el.CreateAttr("style", formatStyle(out))
}

// Hidden reports whether the element itself is display:none (style or attribute).
func (e *Element) Hidden() bool {
	if strings.EqualFold(e.Style("display"), "none") {
		return true
	}
	v, _ := e.Attr("display")
	return strings.EqualFold(strings.TrimSpace(v), "none")
}

// Hide sets inline display:none.
func (e *Element) Hide() { e.SetStyle("display", "none") }

// Show clears an inline or attribute display:none and forces opacity 1.
func (e *Element) Show() {
	if strings.EqualFold(e.Style("display"), "none") {
		e.SetStyle("display", "")
	}
	if v, ok := e.Attr("display"); ok && strings.EqualFold(strings.TrimSpace(v), "none") {
		e.RemoveAttr("display")
	}
	e.SetAttr("opacity", "1")
}

// Fill returns the effective authored fill: inline style first, then attribute.
func (e *Element) Fill() string {
	if f := e.Style("fill"); f != "" {
		return f
	}
	v, _ := e.Attr("fill")
	return v
}

func parseStyle(s string) [][2]string {
	var out [][2]string
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out
}

func formatStyle(decls [][2]string) string {
	var b strings.Builder
	for i, kv := range decls {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(kv[0])
		b.WriteByte(':')
		b.WriteString(kv[1])
	}
	return b.String()
}
