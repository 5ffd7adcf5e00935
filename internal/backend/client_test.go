/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"plotmap/internal/domain"
)

func TestClient_RoundTrip(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	c := NewClient(e.srv.URL+"/", "")

	if _, err := c.Plots(ctx); err == nil {
		t.Fatalf("expected unauthorized before login")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
			t.Fatalf("want 401 APIError, got %v", err)
		}
	}

	if _, err := c.Login(ctx, "asha", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	plots, err := c.Plots(ctx)
	if err != nil || len(plots) != 2 {
		t.Fatalf("plots: %v %v", plots, err)
	}
	p, err := c.SetStatus(ctx, "Plot1_1", domain.InProgress)
	if err != nil || p.Status != domain.InProgress {
		t.Fatalf("set status: %+v %v", p, err)
	}
	if p, err = c.Plot(ctx, "Plot1_1"); err != nil || p.Status != domain.InProgress {
		t.Fatalf("plot: %+v %v", p, err)
	}

	cust, err := c.SaveCustomer(ctx, domain.Customer{PlotID: "Plot1_1", Name: "Meena", BookingPrice: 10})
	if err != nil || cust.ID == "" {
		t.Fatalf("save customer: %+v %v", cust, err)
	}
	cs, err := c.Customers(ctx, "Plot1_1")
	if err != nil || len(cs) != 1 || cs[0].Name != "Meena" {
		t.Fatalf("customers: %+v %v", cs, err)
	}

	var buf bytes.Buffer
	if err := c.ExportCSV(ctx, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(buf.String(), "Meena") {
		t.Fatalf("csv: %s", buf.String())
	}

	_, err = c.Plot(ctx, "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || !strings.Contains(apiErr.Message, "not found") {
		t.Fatalf("want 404, got %v", err)
	}
}
