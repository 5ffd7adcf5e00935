/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// This file defines the sales data model shared by the store, the dashboard and
// the backend. Field names serialize to the seed file format.

// Plot is one land parcel on the floor plan. ID is the id of the clickable
// region in the scene.
type Plot struct {
	ID        string  `json:"id"`
	VisibleID string  `json:"visibleId,omitempty"` // filled shape, when different from ID
	Title     string  `json:"title"`
	PlotNum   int     `json:"plotNum"`
	StampNum  int     `json:"stampNum,omitempty"` // stamp-plot-<n>; falls back to PlotNum
	Price     float64 `json:"price"`
	Length    float64 `json:"length"` // ft
	Width     float64 `json:"width"`  // ft
	Sqft      float64 `json:"sqft"`
	Facing    string  `json:"facing"`
	Status    Status  `json:"status"`
}

// DisplayTitle returns Title or, when empty, the id.
func (p Plot) DisplayTitle() string {
	if strings.TrimSpace(p.Title) != "" {
		return p.Title
	}
	return p.ID
}

// StampKey is the number used in the stamp element id.
func (p Plot) StampKey() int {
	if p.StampNum != 0 {
		return p.StampNum
	}
	return p.PlotNum
}

// Area returns Length*Width when both are set, otherwise the stored Sqft.
func (p Plot) Area() float64 {
	if p.Length > 0 && p.Width > 0 {
		return p.Length * p.Width
	}
	return p.Sqft
}

// PlotEdit carries the plot form inputs. Zero values keep the current field.
type PlotEdit struct {
	Price  float64
	Length float64
	Width  float64
	Sqft   float64
	Facing string
}

// Apply merges e into p. When the form leaves sqft empty but gives both sides,
// the area is computed from them.
func (e PlotEdit) Apply(p Plot) Plot {
	if e.Price > 0 {
		p.Price = e.Price
	}
	if e.Length > 0 {
		p.Length = e.Length
	}
	if e.Width > 0 {
		p.Width = e.Width
	}
	switch {
	case e.Sqft > 0:
		p.Sqft = e.Sqft
	case e.Length > 0 && e.Width > 0:
		p.Sqft = e.Length * e.Width
	}
	if f := strings.TrimSpace(e.Facing); f != "" {
		p.Facing = f
	}
	return p
}

// Customer is a buyer booked against a plot.
type Customer struct {
	ID           string        `json:"id"`
	PlotID       string        `json:"plotId"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone,omitempty"`
	Mediator     string        `json:"mediator,omitempty"`
	BookingPrice float64       `json:"bookingPrice,omitempty"`
	UsePlotPrice bool          `json:"usePlotPrice,omitempty"`
	ClosureDate  string        `json:"closureDate,omitempty"` // YYYY-MM-DD
	Installments []Installment `json:"installments,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Installment is one payment entry of a customer.
type Installment struct {
	Seq          int     `json:"seq"`
	Amount       float64 `json:"amount"`
	DateReceived string  `json:"dateReceived,omitempty"`
	NextFollowUp string  `json:"nextFollowUp,omitempty"`
}

// Received sums all installment amounts.
func (c Customer) Received() float64 {
	var sum float64
	for _, in := range c.Installments {
		sum += in.Amount
	}
	return sum
}

// Renumber assigns Seq 1..n in slice order.
func Renumber(in []Installment) []Installment {
	for i := range in {
		in[i].Seq = i + 1
	}
	return in
}

// RemoveInstallment drops the entry at index i and renumbers the rest.
func RemoveInstallment(in []Installment, i int) []Installment {
	if i < 0 || i >= len(in) {
		return in
	}
	out := append(in[:i:i], in[i+1:]...)
	return Renumber(out)
}

// Mediator is a broker who brings customers.
type Mediator struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Role of a dashboard user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleSales Role = "sales"
)

// User is a login account.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         Role   `json:"role"`
}

// StatusChange is a row of the status history.
type StatusChange struct {
	PlotID string    `json:"plotId"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor,omitempty"`
}

// FormatINR renders an amount with the rupee sign and Indian digit grouping
// (12,34,567). Fractions are rounded to whole rupees.
func FormatINR(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := strconv.FormatInt(int64(v+0.5), 10)
	if len(s) > 3 {
		head, tail := s[:len(s)-3], s[len(s)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		if head != "" {
			parts = append([]string{head}, parts...)
		}
		s = strings.Join(parts, ",") + "," + tail
	}
	if neg {
		return "-₹" + s
	}
	return "₹" + s
}

// FormatNumber prints v without a trailing ".0" for whole numbers.
func FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
