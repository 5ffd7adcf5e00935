/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"testing"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"":            Available,
		"Available":   Available,
		"SOLD":        Sold,
		"registered":  Sold,
		"inprogress":  InProgress,
		"In Progress": InProgress,
		"in-progress": InProgress,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseStatus("reserved"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestStatusFill(t *testing.T) {
	if f, ok := Sold.Fill(); !ok || f != "#F48274" {
		t.Fatalf("sold fill = %q", f)
	}
	if f, ok := InProgress.Fill(); !ok || f != "#FFD253" {
		t.Fatalf("in-progress fill = %q", f)
	}
	if _, ok := Available.Fill(); ok {
		t.Fatalf("available must keep the authored fill")
	}
}

func TestPlotJSONUsesStatusNames(t *testing.T) {
	in := []byte(`{"id":"Plot1_1","title":"Plot 1","plotNum":1,"price":1500000,"status":"in progress"}`)
	var p Plot
	if err := json.Unmarshal(in, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Status != InProgress {
		t.Fatalf("status = %v", p.Status)
	}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["status"] != "InProgress" {
		t.Fatalf("status serialized as %v", raw["status"])
	}
}

func TestPlotEditKeepsEmptyFields(t *testing.T) {
	p := Plot{ID: "Plot1_1", Price: 1500000, Length: 30, Width: 50, Sqft: 1500, Facing: "East"}
	got := PlotEdit{Width: 40, Length: 30}.Apply(p)
	if got.Price != 1500000 || got.Facing != "East" {
		t.Fatalf("empty inputs must keep values: %+v", got)
	}
	if got.Sqft != 1200 {
		t.Fatalf("sqft should follow length x width, got %v", got.Sqft)
	}
	got = PlotEdit{Sqft: 999, Facing: " North "}.Apply(p)
	if got.Sqft != 999 || got.Facing != "North" {
		t.Fatalf("explicit sqft and facing not applied: %+v", got)
	}
}

func TestStampKeyFallsBackToPlotNum(t *testing.T) {
	if (Plot{PlotNum: 7}).StampKey() != 7 || (Plot{PlotNum: 7, StampNum: 9}).StampKey() != 9 {
		t.Fatalf("unexpected stamp key")
	}
}

func TestRemoveInstallmentRenumbers(t *testing.T) {
	in := Renumber([]Installment{{Amount: 1}, {Amount: 2}, {Amount: 3}})
	out := RemoveInstallment(in, 1)
	if len(out) != 2 || out[0].Seq != 1 || out[1].Seq != 2 || out[1].Amount != 3 {
		t.Fatalf("unexpected installments: %+v", out)
	}
	if c := (Customer{Installments: out}); c.Received() != 4 {
		t.Fatalf("received = %v", c.Received())
	}
}

func TestFormatINR(t *testing.T) {
	cases := map[float64]string{
		0:         "₹0",
		999:       "₹999",
		120000:    "₹1,20,000",
		1500000:   "₹15,00,000",
		123456789: "₹12,34,56,789",
		-1200.4:   "-₹1,200",
	}
	for in, want := range cases {
		if got := FormatINR(in); got != want {
			t.Fatalf("FormatINR(%v) = %q, want %q", in, got, want)
		}
	}
}
