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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"plotmap/internal/domain"
)

var (
	// ErrNotFound is returned when a plot, customer or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned when a record fails validation.
	ErrInvalid = errors.New("invalid record")
)

// RecordStore is the plot database used by the dashboard and the server.
type RecordStore interface {
	All(ctx context.Context) ([]domain.Plot, error)
	Get(ctx context.Context, id string) (domain.Plot, error)
	Status(ctx context.Context, id string) (domain.Status, error)
	SavePlot(ctx context.Context, p domain.Plot) error
	SetStatus(ctx context.Context, id string, st domain.Status, actor string) error
	History(ctx context.Context, id string) ([]domain.StatusChange, error)
	SaveCustomer(ctx context.Context, c *domain.Customer) error
	Customers(ctx context.Context, plotID string) ([]domain.Customer, error)
	Mediators(ctx context.Context) ([]domain.Mediator, error)
	SaveMediator(ctx context.Context, m domain.Mediator) error
}

// UserStore keeps login accounts.
type UserStore interface {
	User(ctx context.Context, username string) (domain.User, error)
	SaveUser(ctx context.Context, u domain.User) error
	Users(ctx context.Context) ([]domain.User, error)
}

// Store is both a RecordStore and a UserStore.
type Store interface {
	RecordStore
	UserStore
	Close() error
}

// AllCustomers is passed to Customers to list every customer.
const AllCustomers = ""

// ValidatePlot rejects plots without an id or with negative numbers.
func ValidatePlot(p domain.Plot) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: plot id is required", ErrInvalid)
	}
	if p.Price < 0 || p.Length < 0 || p.Width < 0 || p.Sqft < 0 {
		return fmt.Errorf("%w: plot %s has negative dimensions or price", ErrInvalid, p.ID)
	}
	return nil
}

// PrepareCustomer validates c and fills in id, timestamps and installment
// numbering. plotPrice is used when UsePlotPrice is set.
func PrepareCustomer(c *domain.Customer, plotPrice float64, now time.Time) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalid)
	}
	if strings.TrimSpace(c.PlotID) == "" {
		return fmt.Errorf("%w: customer needs a plot", ErrInvalid)
	}
	if c.BookingPrice < 0 {
		return fmt.Errorf("%w: booking price is negative", ErrInvalid)
	}
	for _, in := range c.Installments {
		if in.Amount < 0 {
			return fmt.Errorf("%w: installment amount is negative", ErrInvalid)
		}
	}
	if c.UsePlotPrice {
		c.BookingPrice = plotPrice
	}
	c.Phone = strings.TrimSpace(c.Phone)
	c.Mediator = strings.TrimSpace(c.Mediator)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now.UTC()
	}
	c.Installments = domain.Renumber(c.Installments)
	return nil
}

// ValidateMediator requires a name.
func ValidateMediator(m domain.Mediator) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: mediator name is required", ErrInvalid)
	}
	return nil
}

// ValidateUser requires a name, a hash and a known role.
func ValidateUser(u domain.User) error {
	if strings.TrimSpace(u.Username) == "" || u.PasswordHash == "" {
		return fmt.Errorf("%w: user needs a name and a password hash", ErrInvalid)
	}
	switch u.Role {
	case domain.RoleAdmin, domain.RoleSales:
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalid, u.Role)
	}
	return nil
}
