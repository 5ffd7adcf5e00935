/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package dashboard holds the application state of the floor-plan dashboard.
// A Controller owns the scene, the visible window, the overlay registry and the
// gesture router, and exposes every user action as a method. UI front ends only
// forward input and render View snapshots.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"plotmap/internal/auth"
	"plotmap/internal/domain"
	"plotmap/internal/gesture"
	applog "plotmap/internal/log"
	"plotmap/internal/overlay"
	"plotmap/internal/scene"
	"plotmap/internal/storage"
	"plotmap/internal/undo"
	"plotmap/internal/vector"
	"plotmap/internal/viewport"
)

var (
	ErrNotLoaded     = errors.New("scene not loaded")
	ErrNoPopup       = errors.New("no plot selected")
	ErrLoginRequired = errors.New("login required")
)

const (
	TooltipHideDelay = 180 * time.Millisecond
	ToastDuration    = 3 * time.Second
	ToolbarZoomIn    = 1.3
	ToolbarZoomOut   = 0.77
	storeTimeout     = 5 * time.Second
)

// Events receives usage events. *telemetry.Client implements it.
type Events interface {
	Event(name string, props map[string]any)
}

// Options configure a Controller. Store is required.
type Options struct {
	Store      storage.RecordStore
	Auth       *auth.Service // nil disables the login gate
	Limits     viewport.Limits
	Gesture    gesture.Config
	FitPadding float64
	// Dispatch runs timer callbacks and load completion on the UI thread.
	// The default runs them on the calling goroutine.
	Dispatch func(func())
	Events   Events
	Logger   *slog.Logger
}

type stopper interface{ Stop() bool }

// Controller is the dashboard state machine. All methods are safe for
// concurrent use; listeners are called without the lock held.
type Controller struct {
	mu sync.Mutex

	store    storage.RecordStore
	auth     *auth.Service
	limits   viewport.Limits
	gcfg     gesture.Config
	padding  float64
	dispatch func(func())
	events   Events
	log      *slog.Logger
	history  *undo.History

	afterFunc func(time.Duration, func()) stopper
	now       func() time.Time

	loading  bool
	loaded   bool
	loadErr  error
	doc      *scene.Document
	state    *viewport.State
	reg      *overlay.Registry
	sync     *overlay.Synchronizer
	router   *gesture.Router
	vp       vector.Rect
	plots    map[string]domain.Plot
	authored map[string]string

	session *auth.Session
	popup   *Popup

	tooltip     Tooltip
	tooltipGen  int
	tooltipStop stopper
	toast       string
	toastGen    int
	toastStop   stopper

	dirty     bool
	listeners []func(View)
}

func New(opts Options) *Controller {
	c := &Controller{
		store:    opts.Store,
		auth:     opts.Auth,
		limits:   opts.Limits,
		gcfg:     opts.Gesture,
		padding:  opts.FitPadding,
		dispatch: opts.Dispatch,
		events:   opts.Events,
		log:      opts.Logger,
		history:  undo.NewHistory(undo.Config{MinInterval: 0}),
		now:      time.Now,
	}
	c.afterFunc = func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) }
	if c.limits == (viewport.Limits{}) {
		c.limits = viewport.DefaultLimits
	}
	if c.gcfg == (gesture.Config{}) {
		c.gcfg = gesture.DefaultConfig()
	}
	if c.padding <= 0 {
		c.padding = viewport.DefaultFitPadding
	}
	if c.dispatch == nil {
		c.dispatch = func(f func()) { f() }
	}
	if c.log == nil {
		c.log = applog.WithComponent("dashboard")
	}
	return c
}

// Subscribe registers a listener called with a fresh View after each change.
func (c *Controller) Subscribe(fn func(View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// do runs fn under the lock and notifies listeners when fn marked the state dirty.
func (c *Controller) do(fn func()) {
	c.mu.Lock()
	fn()
	notify := c.dirty
	c.dirty = false
	var v View
	var ls []func(View)
	if notify {
		v = c.viewLocked()
		ls = append(ls, c.listeners...)
	}
	c.mu.Unlock()
	for _, l := range ls {
		l(v)
	}
}

func (c *Controller) event(name string, props map[string]any) {
	if c.events != nil {
		c.events.Event(name, props)
	}
}

func (c *Controller) loggedInLocked() bool { return c.auth == nil || c.session != nil }

// interactive gates the router. It is only called while c.mu is held.
func (c *Controller) interactive() bool {
	return c.loaded && c.popup == nil && c.loggedInLocked()
}

func (c *Controller) actorLocked() string {
	if c.session != nil {
		return c.session.User
	}
	return ""
}

// Login checks credentials and opens the session.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	if c.auth == nil {
		return nil
	}
	sess, err := c.auth.Login(ctx, "local", username, password)
	if err != nil {
		return err
	}
	c.do(func() {
		c.session = &sess
		c.dirty = true
	})
	return nil
}

// Logout closes the session and any open popup.
func (c *Controller) Logout() {
	c.do(func() {
		if c.popup != nil {
			c.closePopupLocked(false)
		}
		c.session = nil
		c.dirty = true
	})
}

// LoadSceneAsync fetches the scene and the plot records in the background.
// The returned channel yields the load result once the scene is installed.
func (c *Controller) LoadSceneAsync(ctx context.Context, src string) <-chan error {
	done := make(chan error, 1)
	c.do(func() {
		c.loading = true
		c.loadErr = nil
		c.dirty = true
	})
	go func() {
		doc, err := scene.Load(ctx, src)
		var plots []domain.Plot
		if err == nil {
			plots, err = c.store.All(ctx)
		}
		c.dispatch(func() {
			c.do(func() {
				c.loading = false
				c.dirty = true
				if err != nil {
					c.loadErr = err
					c.log.Error("scene load failed", slog.String("src", src), slog.Any("err", err))
					return
				}
				c.installLocked(doc, plots)
			})
			done <- err
			close(done)
		})
	}()
	return done
}

// Install wires an already loaded scene with the given plot records.
func (c *Controller) Install(doc *scene.Document, plots []domain.Plot) {
	c.do(func() {
		c.loading = false
		c.loadErr = nil
		c.installLocked(doc, plots)
		c.dirty = true
	})
}

func (c *Controller) installLocked(doc *scene.Document, plots []domain.Plot) {
	c.doc = doc
	c.reg = overlay.Build(doc, plots, c.log)
	c.sync = overlay.NewSynchronizer(c.reg, c.log)
	c.plots = make(map[string]domain.Plot, len(plots))
	for _, p := range plots {
		c.plots[p.ID] = p
	}
	c.authored = make(map[string]string, c.reg.Len())
	for _, id := range c.reg.IDs() {
		f, _ := c.sync.Fill(id)
		c.authored[id] = f
	}
	// statuses before handlers
	c.sync.Initialize(plots)

	c.state = viewport.NewState(doc.ViewBox(), c.limits)
	c.state.OnChange(func(w viewport.Window) {
		c.doc.SetViewBox(w)
		c.dirty = true
	})
	c.router = gesture.NewRouter(c.state, c.reg, gesture.GateFunc(c.interactive), c.gcfg)
	c.router.SetViewport(c.vp)
	c.router.OnActivate(c.activateLocked)
	c.router.OnHover(c.hoverLocked)
	c.popup = nil
	c.tooltip = Tooltip{}
	c.history.Clear()
	c.loaded = true
	c.log.Info("scene ready", slog.Int("plots", c.reg.Len()), slog.String("viewBox", c.state.ViewBox()))
	c.event("scene_loaded", map[string]any{"plots": c.reg.Len()})
}

// render restores the authored fill and applies st from scratch.
func (c *Controller) render(id string, st domain.Status) {
	if f, ok := c.authored[id]; ok {
		_ = c.sync.SetFill(id, f)
	}
	_ = c.sync.ClearStatus(id)
	if err := c.sync.ApplyStatus(id, st); err != nil {
		c.log.Warn("apply status failed", slog.String("plot", id), slog.Any("err", err))
	}
}

// Scene returns the loaded document, or nil.
func (c *Controller) Scene() *scene.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Window returns the visible window and false before the scene is loaded.
func (c *Controller) Window() (viewport.Window, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return viewport.Window{}, false
	}
	return c.state.Window(), true
}

// Plots returns the cached plot records in registry order.
func (c *Controller) Plots() []domain.Plot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reg == nil {
		return nil
	}
	out := make([]domain.Plot, 0, len(c.plots))
	for _, id := range c.reg.IDs() {
		out = append(out, c.plots[id])
	}
	return out
}

// Undo reverts the latest committed status change.
func (c *Controller) Undo(ctx context.Context) error {
	return c.replay(ctx, c.history.Undo, c.history.Redo, true)
}

// Redo applies the latest undone status change again.
func (c *Controller) Redo(ctx context.Context) error {
	return c.replay(ctx, c.history.Redo, c.history.Undo, false)
}

// replay pops a change and applies it. When the store rejects it, restore moves
// the change back onto the stack it came from.
func (c *Controller) replay(ctx context.Context, pop, restore func() (undo.Change, bool), inverse bool) error {
	var err error
	c.do(func() {
		if !c.loaded {
			err = ErrNotLoaded
			return
		}
		if c.popup != nil {
			return
		}
		ch, ok := pop()
		if !ok {
			return
		}
		if inverse {
			ch = ch.Inverse()
		}
		if err = c.store.SetStatus(ctx, ch.PlotID, ch.To, c.actorLocked()); err != nil {
			restore()
			c.log.Warn("status replay failed", slog.String("plot", ch.PlotID), slog.Any("err", err))
			return
		}
		p := c.plots[ch.PlotID]
		p.Status = ch.To
		c.plots[ch.PlotID] = p
		c.render(ch.PlotID, ch.To)
		c.dirty = true
		c.log.Info("status replayed", slog.String("plot", ch.PlotID), slog.String("status", ch.To.String()), slog.Bool("undo", inverse))
	})
	return err
}
