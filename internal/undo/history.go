/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps the undo/redo timeline of committed plot status changes.
package undo

import (
	"sync"
	"time"

	"plotmap/internal/domain"
)

// Change is one reversible status commit.
type Change struct {
	PlotID string
	From   domain.Status
	To     domain.Status
	TS     time.Time
}

// Inverse returns the change that reverts c.
func (c Change) Inverse() Change {
	return Change{PlotID: c.PlotID, From: c.To, To: c.From, TS: c.TS}
}

// Config controls depth and coalescing.
type Config struct {
	// MaxDepth limits the undo stack (0 means 100).
	MaxDepth int
	// MinInterval merges changes of the same plot recorded within the interval
	// into one entry that keeps the earliest From.
	MinInterval time.Duration
}

// History is a linear undo/redo stack. It is safe for concurrent use.
type History struct {
	cfg  Config
	mu   sync.Mutex
	undo []Change
	redo []Change
}

func NewHistory(cfg Config) *History {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 100
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &History{cfg: cfg}
}

// Record pushes c and clears the redo stack. No-op changes are ignored.
func (h *History) Record(c Change) {
	if c.From == c.To {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redo = nil
	if n := len(h.undo); n > 0 {
		last := h.undo[n-1]
		if last.PlotID == c.PlotID && c.TS.Sub(last.TS) < h.cfg.MinInterval {
			c.From = last.From
			if c.From == c.To {
				h.undo = h.undo[:n-1]
				return
			}
			h.undo[n-1] = c
			return
		}
	}
	h.undo = append(h.undo, c)
	if len(h.undo) > h.cfg.MaxDepth {
		h.undo = append([]Change(nil), h.undo[len(h.undo)-h.cfg.MaxDepth:]...)
	}
}

// Undo pops the latest change and returns it; the caller applies c.Inverse().
func (h *History) Undo() (Change, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.undo)
	if n == 0 {
		return Change{}, false
	}
	c := h.undo[n-1]
	h.undo = h.undo[:n-1]
	h.redo = append(h.redo, c)
	return c, true
}

// Redo pops the latest undone change; the caller applies it again.
func (h *History) Redo() (Change, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.redo)
	if n == 0 {
		return Change{}, false
	}
	c := h.redo[n-1]
	h.redo = h.redo[:n-1]
	h.undo = append(h.undo, c)
	return c, true
}

// Clear drops both stacks.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo, h.redo = nil, nil
}

// Stats returns the stack depths.
func (h *History) Stats() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}
