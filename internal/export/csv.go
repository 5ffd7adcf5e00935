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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"plotmap/internal/domain"
	applog "plotmap/internal/log"
	"plotmap/internal/storage"
)

// Dataset is the record snapshot an export renders.
type Dataset struct {
	Plots     []domain.Plot
	Customers []domain.Customer
	Mediators []domain.Mediator
}

// Collect reads everything an export needs from st.
func Collect(ctx context.Context, st storage.RecordStore) (Dataset, error) {
	var d Dataset
	var err error
	if d.Plots, err = st.All(ctx); err != nil {
		return Dataset{}, fmt.Errorf("list plots: %w", err)
	}
	if d.Customers, err = st.Customers(ctx, storage.AllCustomers); err != nil {
		return Dataset{}, fmt.Errorf("list customers: %w", err)
	}
	if d.Mediators, err = st.Mediators(ctx); err != nil {
		return Dataset{}, fmt.Errorf("list mediators: %w", err)
	}
	return d, nil
}

// CSVHeader is the first row of the spreadsheet export.
var CSVHeader = []string{
	"Plot ID", "Title", "Plot No", "Status", "Price", "Length", "Width", "Sqft", "Facing",
	"Customer", "Phone", "Mediator", "Booking", "Received", "Closure",
}

// WriteCSV writes one row per plot and customer. Plots without customers get a
// single row with empty customer columns.
func WriteCSV(w io.Writer, d Dataset) error {
	byPlot := map[string][]domain.Customer{}
	for _, c := range d.Customers {
		byPlot[c.PlotID] = append(byPlot[c.PlotID], c)
	}
	plots := append([]domain.Plot(nil), d.Plots...)
	sort.SliceStable(plots, func(i, j int) bool {
		if plots[i].PlotNum != plots[j].PlotNum {
			return plots[i].PlotNum < plots[j].PlotNum
		}
		return plots[i].ID < plots[j].ID
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range plots {
		base := []string{
			p.ID, p.DisplayTitle(), strconv.Itoa(p.PlotNum), p.Status.Label(),
			num(p.Price), num(p.Length), num(p.Width), num(p.Area()), p.Facing,
		}
		cs := byPlot[p.ID]
		if len(cs) == 0 {
			if err := cw.Write(append(base, "", "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, c := range cs {
			row := append(append([]string(nil), base...),
				c.Name, c.Phone, c.Mediator, num(c.BookingPrice), num(c.Received()), c.ClosureDate)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func num(v float64) string {
	if v == 0 {
		return ""
	}
	return domain.FormatNumber(v)
}

// ExportCSV writes the spreadsheet for st to outPath.
func ExportCSV(ctx context.Context, st storage.RecordStore, outPath string) error {
	d, err := Collect(ctx, st)
	if err != nil {
		return err
	}
	return writeFile(outPath, "csv", func(w io.Writer) error { return WriteCSV(w, d) })
}

// writeFile creates outPath (and its directory) and streams fn into it.
func writeFile(outPath, kind string, fn func(io.Writer) error) (err error) {
	if outPath == "" {
		return fmt.Errorf("output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", kind, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	applog.WithOperation(applog.WithComponent("export"), kind).Info("export written", "path", outPath)
	return nil
}
