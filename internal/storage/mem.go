/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"plotmap/internal/domain"
)

// MemStore is an in-memory Store, used for demos and tests.
type MemStore struct {
	mu        sync.RWMutex
	order     []string
	plots     map[string]domain.Plot
	customers []domain.Customer
	mediators map[string]domain.Mediator
	users     map[string]domain.User
	history   []domain.StatusChange
	now       func() time.Time
}

// NewMemStore creates a store holding plots in the given order.
func NewMemStore(plots ...domain.Plot) *MemStore {
	m := &MemStore{
		plots:     map[string]domain.Plot{},
		mediators: map[string]domain.Mediator{},
		users:     map[string]domain.User{},
		now:       time.Now,
	}
	for _, p := range plots {
		_ = m.SavePlot(context.Background(), p)
	}
	return m
}

func (m *MemStore) All(_ context.Context) ([]domain.Plot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Plot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.plots[id])
	}
	return out, nil
}

func (m *MemStore) Get(_ context.Context, id string) (domain.Plot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plots[id]
	if !ok {
		return domain.Plot{}, fmt.Errorf("plot %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (m *MemStore) Status(ctx context.Context, id string) (domain.Status, error) {
	p, err := m.Get(ctx, id)
	return p.Status, err
}

func (m *MemStore) SavePlot(_ context.Context, p domain.Plot) error {
	if err := ValidatePlot(p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plots[p.ID]; !ok {
		m.order = append(m.order, p.ID)
	}
	m.plots[p.ID] = p
	return nil
}

func (m *MemStore) SetStatus(_ context.Context, id string, st domain.Status, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plots[id]
	if !ok {
		return fmt.Errorf("plot %s: %w", id, ErrNotFound)
	}
	if p.Status == st {
		return nil
	}
	m.history = append(m.history, domain.StatusChange{PlotID: id, From: p.Status, To: st, At: m.now().UTC(), Actor: actor})
	p.Status = st
	m.plots[id] = p
	return nil
}

func (m *MemStore) History(_ context.Context, id string) ([]domain.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StatusChange
	for _, h := range m.history {
		if h.PlotID == id {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemStore) SaveCustomer(_ context.Context, c *domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plots[c.PlotID]
	if !ok && c.PlotID != "" {
		return fmt.Errorf("plot %s: %w", c.PlotID, ErrNotFound)
	}
	if err := PrepareCustomer(c, p.Price, m.now()); err != nil {
		return err
	}
	for i := range m.customers {
		if m.customers[i].ID == c.ID {
			m.customers[i] = *c
			return nil
		}
	}
	m.customers = append(m.customers, *c)
	return nil
}

func (m *MemStore) Customers(_ context.Context, plotID string) ([]domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Customer
	for _, c := range m.customers {
		if plotID == AllCustomers || c.PlotID == plotID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) Mediators(_ context.Context) ([]domain.Mediator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Mediator, 0, len(m.mediators))
	for _, md := range m.mediators {
		out = append(out, md)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) SaveMediator(_ context.Context, md domain.Mediator) error {
	if err := ValidateMediator(md); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mediators[md.Name] = md
	return nil
}

func (m *MemStore) User(_ context.Context, username string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return u, nil
}

func (m *MemStore) SaveUser(_ context.Context, u domain.User) error {
	if err := ValidateUser(u); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
	return nil
}

func (m *MemStore) Users(_ context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *MemStore) Close() error { return nil }
