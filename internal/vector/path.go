/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// PathOp is a normalized (absolute) path command.
type PathOp uint8

const (
	MoveTo PathOp = iota
	LineTo
	QuadTo  // quadratic bezier (cx, cy, x, y)
	CubicTo // cubic bezier (cx1, cy1, cx2, cy2, x, y)
	Close
)

type PathCmd struct {
	Op   PathOp
	Data [6]float64 // enough for cubic; unused slots are zero
}

// Path is a sequence of absolute commands. Arcs are converted to line segments
// when parsed, shorthand curves to their full form.
type Path struct{ Cmds []PathCmd }

func (p *Path) MoveTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: MoveTo, Data: [6]float64{x, y}})
}
func (p *Path) LineTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: LineTo, Data: [6]float64{x, y}})
}
func (p *Path) QuadTo(cx, cy, x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: QuadTo, Data: [6]float64{cx, cy, x, y}})
}
func (p *Path) CubicTo(cx1, cy1, cx2, cy2, x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{Op: CubicTo, Data: [6]float64{cx1, cy1, cx2, cy2, x, y}})
}
func (p *Path) Close() { p.Cmds = append(p.Cmds, PathCmd{Op: Close}) }

// Bounds returns the bounding box of all end and control points. Control points
// make it slightly loose for curves; that is fine for label placement and hit regions.
func (p *Path) Bounds() (Rect, bool) {
	pts := make([]Pt, 0, len(p.Cmds)*2)
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo, LineTo:
			pts = append(pts, Pt{c.Data[0], c.Data[1]})
		case QuadTo:
			pts = append(pts, Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]})
		case CubicTo:
			pts = append(pts, Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]}, Pt{c.Data[4], c.Data[5]})
		}
	}
	return BoundsOf(pts)
}

// Flatten approximates the path by polygons, one per subpath, sampling each
// curve with the given number of segments.
func (p *Path) Flatten(segments int) [][]Pt {
	if segments < 1 {
		segments = 8
	}
	var out [][]Pt
	var cur []Pt
	var pos, start Pt
	flush := func() {
		if len(cur) > 1 {
			out = append(out, cur)
		}
		cur = nil
	}
	for _, c := range p.Cmds {
		switch c.Op {
		case MoveTo:
			flush()
			pos = Pt{c.Data[0], c.Data[1]}
			start = pos
			cur = []Pt{pos}
		case LineTo:
			pos = Pt{c.Data[0], c.Data[1]}
			cur = append(cur, pos)
		case QuadTo:
			c1, end := Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]}
			for i := 1; i <= segments; i++ {
				t := float64(i) / float64(segments)
				u := 1 - t
				cur = append(cur, Pt{
					X: u*u*pos.X + 2*u*t*c1.X + t*t*end.X,
					Y: u*u*pos.Y + 2*u*t*c1.Y + t*t*end.Y,
				})
			}
			pos = end
		case CubicTo:
			c1, c2, end := Pt{c.Data[0], c.Data[1]}, Pt{c.Data[2], c.Data[3]}, Pt{c.Data[4], c.Data[5]}
			for i := 1; i <= segments; i++ {
				t := float64(i) / float64(segments)
				u := 1 - t
				cur = append(cur, Pt{
					X: u*u*u*pos.X + 3*u*u*t*c1.X + 3*u*t*t*c2.X + t*t*t*end.X,
					Y: u*u*u*pos.Y + 3*u*u*t*c1.Y + 3*u*t*t*c2.Y + t*t*t*end.Y,
				})
			}
			pos = end
		case Close:
			flush()
			pos = start
		}
	}
	flush()
	return out
}

// Transform returns a copy of p with every point mapped through m.
func (p *Path) Transform(m Affine2D) *Path {
	q := &Path{Cmds: make([]PathCmd, len(p.Cmds))}
	for i, c := range p.Cmds {
		n := 0
		switch c.Op {
		case MoveTo, LineTo:
			n = 1
		case QuadTo:
			n = 2
		case CubicTo:
			n = 3
		}
		for k := 0; k < n; k++ {
			t := m.Apply(Pt{c.Data[2*k], c.Data[2*k+1]})
			c.Data[2*k], c.Data[2*k+1] = t.X, t.Y
		}
		q.Cmds[i] = c
	}
	return q
}

// ErrPathSyntax is returned for malformed path data.
var ErrPathSyntax = errors.New("invalid path data")

// ParsePathData parses an SVG "d" attribute (all commands, absolute and relative).
func ParsePathData(d string) (*Path, error) {
	s := &pathScanner{src: d}
	p := &Path{}
	var cur, start, lastCtrl Pt
	var prevOp byte
	var cmd byte
	for {
		s.skipSeparators()
		if s.done() {
			break
		}
		if c := s.peek(); isCommand(c) {
			cmd = c
			s.pos++
		} else if cmd == 0 {
			return nil, fmt.Errorf("%w: expected command at %d", ErrPathSyntax, s.pos)
		}
		rel := cmd >= 'a' && cmd <= 'z'
		abs := func(x, y float64) Pt {
			if rel {
				return Pt{cur.X + x, cur.Y + y}
			}
			return Pt{x, y}
		}
		up := cmd &^ 0x20
		switch up {
		case 'Z':
			p.Close()
			cur = start
			prevOp = 'Z'
			continue
		case 'M', 'L', 'T':
			nums, err := s.numbers(2)
			if err != nil {
				return nil, err
			}
			pt := abs(nums[0], nums[1])
			switch up {
			case 'M':
				p.MoveTo(pt.X, pt.Y)
				start = pt
				// subsequent pairs are implicit lineto
				if rel {
					cmd = 'l'
				} else {
					cmd = 'L'
				}
			case 'L':
				p.LineTo(pt.X, pt.Y)
			case 'T':
				ctrl := cur
				if prevOp == 'Q' || prevOp == 'T' {
					ctrl = Pt{2*cur.X - lastCtrl.X, 2*cur.Y - lastCtrl.Y}
				}
				p.QuadTo(ctrl.X, ctrl.Y, pt.X, pt.Y)
				lastCtrl = ctrl
			}
			cur = pt
		case 'H':
			nums, err := s.numbers(1)
			if err != nil {
				return nil, err
			}
			x := nums[0]
			if rel {
				x += cur.X
			}
			cur = Pt{x, cur.Y}
			p.LineTo(cur.X, cur.Y)
		case 'V':
			nums, err := s.numbers(1)
			if err != nil {
				return nil, err
			}
			y := nums[0]
			if rel {
				y += cur.Y
			}
			cur = Pt{cur.X, y}
			p.LineTo(cur.X, cur.Y)
		case 'Q':
			nums, err := s.numbers(4)
			if err != nil {
				return nil, err
			}
			c1, end := abs(nums[0], nums[1]), abs(nums[2], nums[3])
			p.QuadTo(c1.X, c1.Y, end.X, end.Y)
			lastCtrl, cur = c1, end
		case 'C':
			nums, err := s.numbers(6)
			if err != nil {
				return nil, err
			}
			c1, c2, end := abs(nums[0], nums[1]), abs(nums[2], nums[3]), abs(nums[4], nums[5])
			p.CubicTo(c1.X, c1.Y, c2.X, c2.Y, end.X, end.Y)
			lastCtrl, cur = c2, end
		case 'S':
			nums, err := s.numbers(4)
			if err != nil {
				return nil, err
			}
			c1 := cur
			if prevOp == 'C' || prevOp == 'S' {
				c1 = Pt{2*cur.X - lastCtrl.X, 2*cur.Y - lastCtrl.Y}
			}
			c2, end := abs(nums[0], nums[1]), abs(nums[2], nums[3])
			p.CubicTo(c1.X, c1.Y, c2.X, c2.Y, end.X, end.Y)
			lastCtrl, cur = c2, end
		case 'A':
			rx, err := s.number()
			if err != nil {
				return nil, err
			}
			ry, err := s.number()
			if err != nil {
				return nil, err
			}
			rot, err := s.number()
			if err != nil {
				return nil, err
			}
			large, err := s.flag()
			if err != nil {
				return nil, err
			}
			sweep, err := s.flag()
			if err != nil {
				return nil, err
			}
			xy, err := s.numbers(2)
			if err != nil {
				return nil, err
			}
			end := abs(xy[0], xy[1])
			for _, q := range arcPoints(cur, end, rx, ry, rot, large, sweep, 16) {
				p.LineTo(q.X, q.Y)
			}
			cur = end
		default:
			return nil, fmt.Errorf("%w: unknown command %q", ErrPathSyntax, cmd)
		}
		prevOp = up
	}
	return p, nil
}

// arcPoints converts an SVG endpoint arc to points along it, ending at to.
func arcPoints(from, to Pt, rx, ry, rotDeg float64, large, sweep bool, segments int) []Pt {
	rx, ry = math.Abs(rx), math.Abs(ry)
	if rx == 0 || ry == 0 || from == to {
		return []Pt{to}
	}
	phi := rotDeg * math.Pi / 180
	cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)
	dx, dy := (from.X-to.X)/2, (from.Y-to.Y)/2
	x1p := cosPhi*dx + sinPhi*dy
	y1p := -sinPhi*dx + cosPhi*dy

	lambda := (x1p*x1p)/(rx*rx) + (y1p*y1p)/(ry*ry)
	if lambda > 1 {
		s := math.Sqrt(lambda)
		rx, ry = rx*s, ry*s
	}
	num := rx*rx*ry*ry - rx*rx*y1p*y1p - ry*ry*x1p*x1p
	den := rx*rx*y1p*y1p + ry*ry*x1p*x1p
	coef := 0.0
	if den != 0 && num > 0 {
		coef = math.Sqrt(num / den)
	}
	if large == sweep {
		coef = -coef
	}
	cxp := coef * rx * y1p / ry
	cyp := -coef * ry * x1p / rx
	cx := cosPhi*cxp - sinPhi*cyp + (from.X+to.X)/2
	cy := sinPhi*cxp + cosPhi*cyp + (from.Y+to.Y)/2

	angle := func(ux, uy, vx, vy float64) float64 {
		return math.Atan2(ux*vy-uy*vx, ux*vx+uy*vy)
	}
	theta1 := angle(1, 0, (x1p-cxp)/rx, (y1p-cyp)/ry)
	delta := angle((x1p-cxp)/rx, (y1p-cyp)/ry, (-x1p-cxp)/rx, (-y1p-cyp)/ry)
	if !sweep && delta > 0 {
		delta -= 2 * math.Pi
	} else if sweep && delta < 0 {
		delta += 2 * math.Pi
	}

	pts := make([]Pt, 0, segments)
	for i := 1; i <= segments; i++ {
		t := theta1 + delta*float64(i)/float64(segments)
		x := rx * math.Cos(t)
		y := ry * math.Sin(t)
		pts = append(pts, Pt{
			X: cosPhi*x - sinPhi*y + cx,
			Y: sinPhi*x + cosPhi*y + cy,
		})
	}
	pts[len(pts)-1] = to
	return pts
}

func isCommand(c byte) bool {
	switch c {
	case 'M', 'm', 'L', 'l', 'H', 'h', 'V', 'v', 'C', 'c', 'S', 's', 'Q', 'q', 'T', 't', 'A', 'a', 'Z', 'z':
		return true
	}
	return false
}

// pathScanner tokenizes numbers in path data, accepting the compact forms
// SVG allows ("1.5.5", "-1-2", "1e-3").
type pathScanner struct {
	src string
	pos int
}

func (s *pathScanner) done() bool { return s.pos >= len(s.src) }
func (s *pathScanner) peek() byte { return s.src[s.pos] }

func (s *pathScanner) skipSeparators() {
	for !s.done() {
		switch s.peek() {
		case ' ', '\t', '\n', '\r', ',':
			s.pos++
		default:
			return
		}
	}
}

func (s *pathScanner) number() (float64, error) {
	s.skipSeparators()
	start := s.pos
	if !s.done() && (s.peek() == '+' || s.peek() == '-') {
		s.pos++
	}
	digits, dot := false, false
scan:
	for !s.done() {
		c := s.peek()
		switch {
		case c >= '0' && c <= '9':
			digits = true
			s.pos++
		case c == '.' && !dot:
			dot = true
			s.pos++
		case (c == 'e' || c == 'E') && digits:
			s.pos++
			if !s.done() && (s.peek() == '+' || s.peek() == '-') {
				s.pos++
			}
			for !s.done() && s.peek() >= '0' && s.peek() <= '9' {
				s.pos++
			}
			break scan
		default:
			break scan
		}
	}
	if !digits {
		return 0, fmt.Errorf("%w: expected number at %d", ErrPathSyntax, start)
	}
	v, err := strconv.ParseFloat(s.src[start:s.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPathSyntax, err)
	}
	return v, nil
}

func (s *pathScanner) numbers(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := s.number()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// flag reads a single arc flag digit; flags may be written without separators.
func (s *pathScanner) flag() (bool, error) {
	s.skipSeparators()
	if s.done() {
		return false, fmt.Errorf("%w: expected flag", ErrPathSyntax)
	}
	switch s.peek() {
	case '0':
		s.pos++
		return false, nil
	case '1':
		s.pos++
		return true, nil
	}
	return false, fmt.Errorf("%w: bad flag at %d", ErrPathSyntax, s.pos)
}
