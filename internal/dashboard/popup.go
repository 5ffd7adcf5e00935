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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"plotmap/internal/domain"
	"plotmap/internal/storage"
	"plotmap/internal/undo"
)

// Tab of the plot popup.
type Tab int

const (
	TabPlot Tab = iota
	TabCustomer
)

// Popup is the modal editor of one plot. Status is the provisional status
// chosen with the toggles; Stored is the committed one.
type Popup struct {
	PlotID    string
	Title     string
	Plot      domain.Plot
	Tab       Tab
	Status    domain.Status
	Stored    domain.Status
	Customers []domain.Customer
	Mediators []domain.Mediator
}

// Registered reports whether the "registered" toggle is on.
func (p Popup) Registered() bool { return p.Status == domain.Sold }

// InProgress reports whether the "in progress" toggle is on.
func (p Popup) InProgress() bool { return p.Status == domain.InProgress }

// MediatorOther is the mediator select value that enables free text.
const MediatorOther = "other"

// CustomerForm carries the customer tab inputs.
type CustomerForm struct {
	Name          string
	Phone         string
	Mediator      string // a known mediator name, MediatorOther or empty
	MediatorOther string
	BookingPrice  float64
	UsePlotPrice  bool
	ClosureDate   string
	Installments  []domain.Installment
}

// NewCustomerForm returns the empty form with one installment row dated today.
func NewCustomerForm(now time.Time) CustomerForm {
	return CustomerForm{Installments: []domain.Installment{{Seq: 1, DateReceived: now.Format("2006-01-02")}}}
}

// MediatorName resolves the select value and the free text field.
func (f CustomerForm) MediatorName() string {
	if f.Mediator == MediatorOther {
		return strings.TrimSpace(f.MediatorOther)
	}
	return strings.TrimSpace(f.Mediator)
}

// AddInstallment appends an empty row dated today.
func (f *CustomerForm) AddInstallment(now time.Time) {
	f.Installments = append(f.Installments, domain.Installment{DateReceived: now.Format("2006-01-02")})
	f.Installments = domain.Renumber(f.Installments)
}

// RemoveInstallment drops row i and renumbers the rest.
func (f *CustomerForm) RemoveInstallment(i int) {
	f.Installments = domain.RemoveInstallment(f.Installments, i)
}

func (f CustomerForm) customer(plotID string) domain.Customer {
	var inst []domain.Installment
	for _, in := range f.Installments {
		if in.Amount > 0 {
			inst = append(inst, in)
		}
	}
	return domain.Customer{
		PlotID:       plotID,
		Name:         strings.TrimSpace(f.Name),
		Phone:        strings.TrimSpace(f.Phone),
		Mediator:     f.MediatorName(),
		BookingPrice: f.BookingPrice,
		UsePlotPrice: f.UsePlotPrice,
		ClosureDate:  strings.TrimSpace(f.ClosureDate),
		Installments: domain.Renumber(inst),
	}
}

// OpenPopup opens the editor for id as if the plot had been clicked.
func (c *Controller) OpenPopup(id string) error {
	var err error
	c.do(func() {
		if !c.loaded {
			err = ErrNotLoaded
			return
		}
		if !c.loggedInLocked() {
			err = ErrLoginRequired
			return
		}
		if c.popup != nil {
			c.closePopupLocked(false)
		}
		c.hideTooltipLocked()
		err = c.openPopupLocked(id)
	})
	return err
}

func (c *Controller) openPopupLocked(id string) error {
	p, ok := c.plots[id]
	if !ok {
		return fmt.Errorf("plot %s: %w", id, storage.ErrNotFound)
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	customers, err := c.store.Customers(ctx, id)
	if err != nil {
		c.log.Warn("load customers failed", slog.String("plot", id), slog.Any("err", err))
	}
	mediators, err := c.store.Mediators(ctx)
	if err != nil {
		c.log.Warn("load mediators failed", slog.Any("err", err))
	}
	c.popup = &Popup{
		PlotID:    id,
		Title:     p.DisplayTitle() + " Details",
		Plot:      p,
		Tab:       TabPlot,
		Status:    p.Status,
		Stored:    p.Status,
		Customers: customers,
		Mediators: mediators,
	}
	c.dirty = true
	c.log.Debug("popup opened", slog.String("plot", id))
	c.event("plot_activated", map[string]any{"status": p.Status.String()})
	return nil
}

// SetTab switches the popup tab.
func (c *Controller) SetTab(t Tab) {
	c.do(func() {
		if c.popup != nil && c.popup.Tab != t {
			c.popup.Tab = t
			c.dirty = true
		}
	})
}

// ToggleStatus flips the "registered" (Sold) or "in progress" toggle. The two
// toggles exclude each other. The scene shows the provisional status at once.
func (c *Controller) ToggleStatus(st domain.Status) error {
	var err error
	c.do(func() {
		if c.popup == nil {
			err = ErrNoPopup
			return
		}
		if st == domain.Available {
			return
		}
		if c.popup.Status == st {
			c.popup.Status = domain.Available
		} else {
			c.popup.Status = st
		}
		c.render(c.popup.PlotID, c.popup.Status)
		c.dirty = true
	})
	return err
}

// ClosePopup closes the popup without saving. The plot is drawn with its
// committed status again.
func (c *Controller) ClosePopup() {
	c.do(func() {
		if c.popup != nil {
			c.closePopupLocked(false)
		}
	})
}

func (c *Controller) closePopupLocked(committed bool) {
	if !committed {
		c.render(c.popup.PlotID, c.popup.Stored)
	}
	c.popup = nil
	c.dirty = true
}

// commitStatusLocked stores the provisional status when it differs from the
// committed one.
func (c *Controller) commitStatusLocked(ctx context.Context) error {
	pp := c.popup
	if pp.Status == pp.Stored {
		return nil
	}
	if err := c.store.SetStatus(ctx, pp.PlotID, pp.Status, c.actorLocked()); err != nil {
		return err
	}
	c.history.Record(undo.Change{PlotID: pp.PlotID, From: pp.Stored, To: pp.Status, TS: c.now()})
	p := c.plots[pp.PlotID]
	p.Status = pp.Status
	c.plots[pp.PlotID] = p
	pp.Stored = pp.Status
	c.render(pp.PlotID, pp.Status)
	c.log.Info("status committed", slog.String("plot", pp.PlotID), slog.String("status", pp.Status.String()))
	c.event("status_committed", map[string]any{"status": pp.Status.String()})
	return nil
}

// SavePlot applies the plot tab inputs, commits the provisional status and
// closes the popup.
func (c *Controller) SavePlot(ctx context.Context, edit domain.PlotEdit) error {
	var err error
	c.do(func() {
		if c.popup == nil {
			err = ErrNoPopup
			return
		}
		p := edit.Apply(c.popup.Plot)
		p.Status = c.popup.Stored
		if err = c.store.SavePlot(ctx, p); err != nil {
			return
		}
		c.plots[p.ID] = p
		c.popup.Plot = p
		if err = c.commitStatusLocked(ctx); err != nil {
			return
		}
		c.closePopupLocked(true)
		c.showToastLocked("Plot details saved for " + p.DisplayTitle())
	})
	return err
}

// SaveCustomer stores the customer of the open plot, commits the provisional
// status and closes the popup. A missing name keeps the popup open.
func (c *Controller) SaveCustomer(ctx context.Context, form CustomerForm) error {
	var err error
	c.do(func() {
		if c.popup == nil {
			err = ErrNoPopup
			return
		}
		cust := form.customer(c.popup.PlotID)
		if cust.Name == "" {
			err = fmt.Errorf("%w: customer name is required", storage.ErrInvalid)
			return
		}
		if err = c.store.SaveCustomer(ctx, &cust); err != nil {
			return
		}
		if form.Mediator == MediatorOther && cust.Mediator != "" {
			if merr := c.store.SaveMediator(ctx, domain.Mediator{Name: cust.Mediator}); merr != nil {
				c.log.Warn("save mediator failed", slog.Any("err", merr))
			}
		}
		if err = c.commitStatusLocked(ctx); err != nil {
			return
		}
		title := c.popup.Plot.DisplayTitle()
		status := "status not set"
		if c.popup.Status != domain.Available {
			status = c.popup.Status.Label()
		}
		c.closePopupLocked(true)
		c.showToastLocked(fmt.Sprintf("Saved %s for %s (%s)", cust.Name, title, status))
	})
	return err
}
