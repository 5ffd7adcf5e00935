/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plotmap/internal/domain"
	"plotmap/internal/scene"
	"plotmap/internal/storage"
	"plotmap/internal/vector"
)

const plan = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 200">
  <rect id="Plot-1" x="0" y="0" width="100" height="100" fill="#cfe8cf"/>
  <rect id="Plot2_2" x="100" y="0" width="100" height="50" fill="#aaaaaa"/>
  <rect id="hidden" x="200" y="100" width="200" height="100" fill="#000000" style="display:none"/>
</svg>`

func sampleStore(t *testing.T) *storage.MemStore {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemStore(
		domain.Plot{ID: "Plot2_2", Title: "Plot 2", PlotNum: 2, Price: 900000, Sqft: 800, Facing: "North", Status: domain.Sold},
		domain.Plot{ID: "Plot1_1", Title: "Plot 1", PlotNum: 1, Price: 1500000, Length: 30, Width: 40, Facing: "East"},
	)
	for _, c := range []domain.Customer{
		{PlotID: "Plot2_2", Name: "Asha", Phone: "98450", Mediator: "Ravi", BookingPrice: 900000,
			Installments: []domain.Installment{{Seq: 1, Amount: 100000}, {Seq: 2, Amount: 50000}}},
		{PlotID: "Plot2_2", Name: "Vikram", BookingPrice: 850000},
	} {
		c := c
		if err := st.SaveCustomer(ctx, &c); err != nil {
			t.Fatalf("save customer: %v", err)
		}
	}
	if err := st.SaveMediator(ctx, domain.Mediator{Name: "Ravi", Phone: "99000"}); err != nil {
		t.Fatalf("save mediator: %v", err)
	}
	return st
}

func TestWriteCSV(t *testing.T) {
	d, err := Collect(context.Background(), sampleStore(t))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, d); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("want header + 3 rows, got %d: %v", len(rows), rows)
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
		t.Fatalf("header mismatch: %v", rows[0])
	}
	// sorted by plot number; plot 1 has no customer
	if rows[1][0] != "Plot1_1" || rows[1][9] != "" {
		t.Fatalf("first row: %v", rows[1])
	}
	if rows[1][7] != "1200" {
		t.Fatalf("sqft from sides: %q", rows[1][7])
	}
	if rows[2][0] != "Plot2_2" || rows[2][3] != "Sold" || rows[2][9] != "Asha" || rows[2][13] != "150000" {
		t.Fatalf("customer row: %v", rows[2])
	}
	if rows[3][9] != "Vikram" || rows[3][13] != "" {
		t.Fatalf("second customer row: %v", rows[3])
	}
}

func TestExportCSV_CreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exports", "plots.csv")
	if err := ExportCSV(context.Background(), sampleStore(t), out); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(b), "Plot ID,Title") {
		t.Fatalf("unexpected content: %q", b)
	}
}

func TestReportPDF(t *testing.T) {
	r, err := BuildReport(context.Background(), sampleStore(t), "", time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.Title != "Plot Sales Report" || r.Summary.Total != 2 || len(r.Mediators) != 2 {
		t.Fatalf("report: %+v", r)
	}
	var buf bytes.Buffer
	if err := WriteReportPDF(&buf, r); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
}

func TestHexRGB(t *testing.T) {
	if got := hexRGB("#F48274"); got != (rgb{0xf4, 0x82, 0x74}) {
		t.Fatalf("got %+v", got)
	}
	if got := hexRGB("bad"); got != (rgb{255, 255, 255}) {
		t.Fatalf("fallback %+v", got)
	}
}

func TestSnapshot_AddsLegendAndKeepsSource(t *testing.T) {
	doc, err := scene.Parse([]byte(plan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, _ := Collect(context.Background(), sampleStore(t))
	win := vector.R(0, 0, 200, 100)
	snap, err := Snapshot(doc, SnapshotOptions{Window: win, Caption: "Block A", Plots: d.Plots})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, ok := doc.ElementByID(LegendID); ok {
		t.Fatalf("source document modified")
	}
	if _, ok := snap.ElementByID(LegendID); !ok {
		t.Fatalf("legend missing")
	}
	if snap.ViewBox() != win {
		t.Fatalf("viewBox %+v", snap.ViewBox())
	}
	b, err := snap.Bytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	for _, want := range []string{"Sold (1)", "Available (1)", "Block A"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("missing %q in %s", want, b)
		}
	}
}

func near(c color.Color, r, g, b uint8) bool {
	cr, cg, cb, _ := c.RGBA()
	d := func(a uint32, b uint8) bool {
		x := int(a>>8) - int(b)
		return x > -12 && x < 12
	}
	return d(cr, r) && d(cg, g) && d(cb, b)
}

func TestRenderPNG(t *testing.T) {
	doc, err := scene.Parse([]byte(plan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	img, err := RenderPNG(doc, PNGOptions{Width: 200})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("size %v", b)
	}
	if c := img.At(25, 25); !near(c, 0xcf, 0xe8, 0xcf) {
		t.Fatalf("plot fill at (25,25): %v", c)
	}
	if c := img.At(150, 75); !near(c, 255, 255, 255) {
		t.Fatalf("hidden element rendered: %v", c)
	}

	// zoomed window maps the same plot across the whole image
	img, err = RenderPNG(doc, PNGOptions{Width: 100, Window: vector.R(0, 0, 100, 100)})
	if err != nil {
		t.Fatalf("render window: %v", err)
	}
	if c := img.At(90, 90); !near(c, 0xcf, 0xe8, 0xcf) {
		t.Fatalf("window fill: %v", c)
	}
	if _, ok := doc.ElementByID("hidden"); !ok {
		t.Fatalf("source document modified")
	}
}

func TestExportPNG_CreatesFile(t *testing.T) {
	doc, err := scene.Parse([]byte(plan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := filepath.Join(t.TempDir(), "thumb.png")
	if err := ExportPNG(doc, PNGOptions{Width: 64}, out); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil || !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Fatalf("png not written: %v", err)
	}
}
