/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dashboard

import (
	"context"
	"sort"

	"plotmap/internal/domain"
	"plotmap/internal/storage"
)

// Summary aggregates the sales state of all plots.
type Summary struct {
	Total       int
	Counts      map[domain.Status]int
	SoldValue   float64 // sum of plot prices of sold plots
	Booked      float64 // sum of customer booking prices
	Received    float64 // sum of installments received
	Outstanding float64
	Customers   int
}

// Summarize computes the dashboard summary from a record store.
func Summarize(ctx context.Context, st storage.RecordStore) (Summary, error) {
	plots, err := st.All(ctx)
	if err != nil {
		return Summary{}, err
	}
	cs, err := st.Customers(ctx, storage.AllCustomers)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Total: len(plots), Counts: map[domain.Status]int{}, Customers: len(cs)}
	for _, p := range plots {
		s.Counts[p.Status]++
		if p.Status == domain.Sold {
			s.SoldValue += p.Price
		}
	}
	for _, c := range cs {
		s.Booked += c.BookingPrice
		s.Received += c.Received()
	}
	s.Outstanding = s.Booked - s.Received
	return s, nil
}

// MediatorGroup lists the customers brought by one mediator.
type MediatorGroup struct {
	Mediator  string // empty for direct sales
	Phone     string
	Customers []domain.Customer
	Booked    float64
	Received  float64
}

// MediatorReport groups all customers by mediator, sorted by name with direct
// sales last.
func MediatorReport(ctx context.Context, st storage.RecordStore) ([]MediatorGroup, error) {
	cs, err := st.Customers(ctx, storage.AllCustomers)
	if err != nil {
		return nil, err
	}
	ms, err := st.Mediators(ctx)
	if err != nil {
		return nil, err
	}
	phones := make(map[string]string, len(ms))
	for _, m := range ms {
		phones[m.Name] = m.Phone
	}
	byName := map[string]*MediatorGroup{}
	for _, c := range cs {
		g, ok := byName[c.Mediator]
		if !ok {
			g = &MediatorGroup{Mediator: c.Mediator, Phone: phones[c.Mediator]}
			byName[c.Mediator] = g
		}
		g.Customers = append(g.Customers, c)
		g.Booked += c.BookingPrice
		g.Received += c.Received()
	}
	out := make([]MediatorGroup, 0, len(byName))
	for _, g := range byName {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Mediator, out[j].Mediator
		if (a == "") != (b == "") {
			return b == ""
		}
		return a < b
	})
	return out, nil
}

// Summary of the controller's store.
func (c *Controller) Summary(ctx context.Context) (Summary, error) { return Summarize(ctx, c.store) }

// MediatorReport of the controller's store.
func (c *Controller) MediatorReport(ctx context.Context) ([]MediatorGroup, error) {
	return MediatorReport(ctx, c.store)
}
