/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"plotmap/internal/dashboard"
	"plotmap/internal/domain"
	"plotmap/internal/storage"
)

// Report is the content of the PDF sales report.
type Report struct {
	Title     string
	Generated time.Time
	Plots     []domain.Plot
	Summary   dashboard.Summary
	Mediators []dashboard.MediatorGroup
}

// BuildReport gathers the report content from st.
func BuildReport(ctx context.Context, st storage.RecordStore, title string, now time.Time) (Report, error) {
	plots, err := st.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list plots: %w", err)
	}
	sum, err := dashboard.Summarize(ctx, st)
	if err != nil {
		return Report{}, fmt.Errorf("summary: %w", err)
	}
	groups, err := dashboard.MediatorReport(ctx, st)
	if err != nil {
		return Report{}, fmt.Errorf("mediator report: %w", err)
	}
	if strings.TrimSpace(title) == "" {
		title = "Plot Sales Report"
	}
	return Report{Title: title, Generated: now, Plots: plots, Summary: sum, Mediators: groups}, nil
}

var (
	headerFill  = rgb{230, 230, 230}
	plotColumns = []struct {
		name  string
		width float64
		align string
	}{
		{"No", 14, "R"},
		{"Title", 46, "L"},
		{"Status", 30, "L"},
		{"Sq.ft", 22, "R"},
		{"Facing", 24, "L"},
		{"Price", 44, "R"},
	}
)

type rgb struct{ r, g, b int }

// hexRGB parses #rrggbb; anything else yields white.
func hexRGB(s string) rgb {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return rgb{255, 255, 255}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{255, 255, 255}
	}
	return rgb{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}
}

func setFillColor(pdf *gofpdf.Fpdf, c rgb) { pdf.SetFillColor(c.r, c.g, c.b) }

// rupees renders an amount for the core fonts, which lack the rupee sign.
func rupees(v float64) string {
	return strings.Replace(domain.FormatINR(v), "₹", "Rs. ", 1)
}

// WriteReportPDF renders r as an A4 PDF.
func WriteReportPDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.Title, true)
	pdf.SetCreator("plotmap", true)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, "Generated "+r.Generated.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	writeSummary(pdf, tr, r.Summary)
	pdf.Ln(4)
	writePlotTable(pdf, tr, r.Plots)
	if len(r.Mediators) > 0 {
		pdf.Ln(6)
		writeMediators(pdf, tr, r.Mediators)
	}
	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func writeSummary(pdf *gofpdf.Fpdf, tr func(string) string, s dashboard.Summary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	line := func(k, v string) {
		pdf.CellFormat(50, 6, tr(k), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, tr(v), "", 1, "L", false, 0, "")
	}
	line("Total plots", strconv.Itoa(s.Total))
	for _, st := range []domain.Status{domain.Available, domain.InProgress, domain.Sold} {
		line(st.Label(), strconv.Itoa(s.Counts[st]))
	}
	line("Sold value", rupees(s.SoldValue))
	line("Customers", strconv.Itoa(s.Customers))
	line("Booked", rupees(s.Booked))
	line("Received", rupees(s.Received))
	line("Outstanding", rupees(s.Outstanding))
}

func writePlotTable(pdf *gofpdf.Fpdf, tr func(string) string, plots []domain.Plot) {
	sorted := append([]domain.Plot(nil), plots...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PlotNum < sorted[j].PlotNum })

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		setFillColor(pdf, headerFill)
		for _, c := range plotColumns {
			pdf.CellFormat(c.width, 7, c.name, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Plots", "", 1, "L", false, 0, "")
	header()
	_, pageH := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, p := range sorted {
		if pdf.GetY()+6 > pageH-bottom-15 {
			pdf.AddPage()
			header()
		}
		fill := false
		if hex, ok := p.Status.Fill(); ok {
			setFillColor(pdf, hexRGB(hex))
			fill = true
		}
		cells := []string{
			strconv.Itoa(p.PlotNum), p.DisplayTitle(), p.Status.Label(),
			domain.FormatNumber(p.Area()), p.Facing, rupees(p.Price),
		}
		for i, c := range plotColumns {
			pdf.CellFormat(c.width, 6, tr(cells[i]), "1", 0, c.align, fill && i == 2, 0, "")
		}
		pdf.Ln(-1)
	}
}

func writeMediators(pdf *gofpdf.Fpdf, tr func(string) string, groups []dashboard.MediatorGroup) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 7, "Mediators", "", 1, "L", false, 0, "")
	for _, g := range groups {
		name := g.Mediator
		if name == "" {
			name = "Direct"
		}
		if g.Phone != "" {
			name += " (" + g.Phone + ")"
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, tr(fmt.Sprintf("%s: %d customers, booked %s, received %s",
			name, len(g.Customers), rupees(g.Booked), rupees(g.Received))), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for _, c := range g.Customers {
			pdf.CellFormat(8, 5, "", "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 5, tr(fmt.Sprintf("%s  %s  plot %s  %s", c.Name, c.Phone, c.PlotID, rupees(c.BookingPrice))),
				"", 1, "L", false, 0, "")
		}
	}
}

// ExportReportPDF writes the sales report for st to outPath.
func ExportReportPDF(ctx context.Context, st storage.RecordStore, outPath, title string) error {
	r, err := BuildReport(ctx, st, title, time.Now())
	if err != nil {
		return err
	}
	return writeFile(outPath, "pdf", func(w io.Writer) error { return WriteReportPDF(w, r) })
}
