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
	"strings"
)

// Status is the sale state of a plot.
type Status int

const (
	Available Status = iota
	InProgress
	Sold
)

// Fill colours used for committed statuses. Available keeps the authored fill.
const (
	SoldFill       = "#F48274"
	InProgressFill = "#FFD253"
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "InProgress"
	case Sold:
		return "Sold"
	}
	return "Available"
}

// Label is the human-readable form shown in tooltips and exports.
func (s Status) Label() string {
	switch s {
	case InProgress:
		return "In Progress"
	case Sold:
		return "Sold"
	}
	return "Available"
}

// Fill returns the visual fill for s and false for Available.
func (s Status) Fill() (string, bool) {
	switch s {
	case InProgress:
		return InProgressFill, true
	case Sold:
		return SoldFill, true
	}
	return "", false
}

// ParseStatus accepts the spellings used in plot data and forms.
// "registered" is the form label for a completed sale.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "available":
		return Available, nil
	case "inprogress", "in progress", "in-progress", "in_progress":
		return InProgress, nil
	case "sold", "registered":
		return Sold, nil
	}
	return Available, fmt.Errorf("unknown status %q", s)
}

// MarshalText serializes Status as its name in JSON, YAML and map keys.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
