/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

import "testing"

func TestRectContainsAndInset(t *testing.T) {
	r := R(10, 20, 100, 50)
	if !r.Contains(Pt{10, 20}) || !r.Contains(Pt{110, 70}) {
		t.Fatalf("expected edge points to be contained")
	}
	in := r.Inset(5, 5)
	if in.X != 15 || in.Y != 25 || in.W != 90 || in.H != 40 {
		t.Fatalf("unexpected inset: %+v", in)
	}
}

func TestAffineBasic(t *testing.T) {
	m := Translate(10, 5).Mul(Scale(2, 3))
	p := m.Apply(Pt{1, 1})
	if p.X != 12 || p.Y != 8 { // (1*2+10, 1*3+5)
		t.Fatalf("unexpected transform result: %+v", p)
	}
}

func TestAffineInvertRoundTrip(t *testing.T) {
	m := Translate(3, -4).Mul(Rotate(0.3)).Mul(Scale(2, 0.5))
	inv, ok := m.Invert()
	if !ok {
		t.Fatalf("expected invertible")
	}
	p := inv.Apply(m.Apply(Pt{7, 9}))
	if Round(p.X, 6) != 7 || Round(p.Y, 6) != 9 {
		t.Fatalf("round trip mismatch: %+v", p)
	}
	if _, ok := Scale(0, 1).Invert(); ok {
		t.Fatalf("expected singular matrix")
	}
}

func TestUnionTreatsZeroAsAbsent(t *testing.T) {
	var r Rect
	r = r.Union(R(5, 5, 10, 10))
	r = r.Union(R(0, 20, 2, 2))
	if r.X != 0 || r.Y != 5 || r.W != 15 || r.H != 17 {
		t.Fatalf("unexpected union: %+v", r)
	}
}

func TestPolygonContains(t *testing.T) {
	tri := []Pt{{0, 0}, {10, 0}, {0, 10}}
	if !PolygonContains(tri, Pt{2, 2}) {
		t.Fatalf("expected inside")
	}
	if PolygonContains(tri, Pt{8, 8}) {
		t.Fatalf("expected outside")
	}
	if PolygonContains(tri[:2], Pt{1, 0}) {
		t.Fatalf("degenerate polygon must not contain points")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0.8, 3) != 3 || Clamp(0.1, 0.8, 3) != 0.8 || Clamp(1, 0.8, 3) != 1 {
		t.Fatalf("clamp mismatch")
	}
}
