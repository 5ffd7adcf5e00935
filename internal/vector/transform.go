/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"fmt"
	"math"
	"strings"
)

// ParseTransform parses an SVG transform attribute list such as
// "translate(10 20) rotate(45 5 5) scale(2)". An empty string yields Identity.
func ParseTransform(s string) (Affine2D, error) {
	m := Identity
	rest := strings.TrimSpace(s)
	for rest != "" {
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			return Identity, fmt.Errorf("invalid transform %q", s)
		}
		closeIdx := strings.IndexByte(rest, ')')
		if closeIdx < open {
			return Identity, fmt.Errorf("invalid transform %q", s)
		}
		name := strings.TrimSpace(rest[:open])
		args, err := parseNumberList(rest[open+1 : closeIdx])
		if err != nil {
			return Identity, fmt.Errorf("transform %s: %w", name, err)
		}
		t, err := transformFunc(name, args)
		if err != nil {
			return Identity, err
		}
		m = m.Mul(t)
		rest = strings.TrimLeft(rest[closeIdx+1:], " \t\r\n,")
	}
	return m, nil
}

func transformFunc(name string, a []float64) (Affine2D, error) {
	deg := func(v float64) float64 { return v * math.Pi / 180 }
	switch name {
	case "matrix":
		if len(a) != 6 {
			break
		}
		return Affine2D{A: a[0], B: a[1], C: a[2], D: a[3], E: a[4], F: a[5]}, nil
	case "translate":
		switch len(a) {
		case 1:
			return Translate(a[0], 0), nil
		case 2:
			return Translate(a[0], a[1]), nil
		}
	case "scale":
		switch len(a) {
		case 1:
			return Scale(a[0], a[0]), nil
		case 2:
			return Scale(a[0], a[1]), nil
		}
	case "rotate":
		switch len(a) {
		case 1:
			return Rotate(deg(a[0])), nil
		case 3:
			return Translate(a[1], a[2]).Mul(Rotate(deg(a[0]))).Mul(Translate(-a[1], -a[2])), nil
		}
	case "skewX":
		if len(a) == 1 {
			return SkewX(deg(a[0])), nil
		}
	case "skewY":
		if len(a) == 1 {
			return SkewY(deg(a[0])), nil
		}
	default:
		return Identity, fmt.Errorf("unknown transform %q", name)
	}
	return Identity, fmt.Errorf("transform %s: wrong argument count %d", name, len(a))
}

// parseNumberList reads whitespace/comma separated numbers (points attribute,
// transform arguments, viewBox).
func parseNumberList(s string) ([]float64, error) {
	sc := &pathScanner{src: s}
	var out []float64
	for {
		sc.skipSeparators()
		if sc.done() {
			return out, nil
		}
		v, err := sc.number()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// ParseNumbers is the exported form of the list parser used for viewBox and points.
func ParseNumbers(s string) ([]float64, error) { return parseNumberList(s) }

// ParsePoints parses a polygon/polyline points attribute.
func ParsePoints(s string) ([]Pt, error) {
	nums, err := parseNumberList(s)
	if err != nil {
		return nil, err
	}
	if len(nums)%2 != 0 {
		nums = nums[:len(nums)-1]
	}
	pts := make([]Pt, 0, len(nums)/2)
	for i := 0; i+1 < len(nums); i += 2 {
		pts = append(pts, Pt{nums[i], nums[i+1]})
	}
	return pts, nil
}
