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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"plotmap/internal/auth"
	"plotmap/internal/domain"
	"plotmap/internal/gesture"
	"plotmap/internal/scene"
	"plotmap/internal/storage"
	"plotmap/internal/vector"
)

const plan = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 200">
  <rect id="Plot1_1" x="0" y="0" width="100" height="100" fill="none"/>
  <rect id="Plot-1" x="0" y="0" width="100" height="100" fill="#cfe8cf"/>
  <rect id="Plot2_2" x="100" y="0" width="100" height="50" fill="#aaaaaa"/>
  <g id="stamp-plot-1"><text x="50" y="50">SOLD</text></g>
</svg>`

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct{ timers []*fakeTimer }

func (f *fakeClock) after(_ time.Duration, fn func()) stopper {
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// fire runs every pending timer.
func (f *fakeClock) fire() {
	pending := f.timers
	f.timers = nil
	for _, t := range pending {
		if !t.stopped {
			t.stopped = true
			t.fn()
		}
	}
}

type recorder struct{ names []string }

func (r *recorder) Event(name string, _ map[string]any) { r.names = append(r.names, name) }

func testPlots() []domain.Plot {
	return []domain.Plot{
		{ID: "Plot1_1", Title: "Plot 1", PlotNum: 1, Price: 1500000, Length: 30, Width: 40, Sqft: 1200, Facing: "East"},
		{ID: "Plot2_2", Title: "Plot 2", PlotNum: 2, Price: 900000, Sqft: 800, Facing: "North", Status: domain.Sold},
	}
}

type fixture struct {
	c     *Controller
	store *storage.MemStore
	doc   *scene.Document
	clock *fakeClock
	ev    *recorder
}

func newFixture(t *testing.T, svc *auth.Service) fixture {
	t.Helper()
	st := storage.NewMemStore(testPlots()...)
	ev := &recorder{}
	c := New(Options{Store: st, Auth: svc, Events: ev})
	clock := &fakeClock{}
	c.afterFunc = clock.after
	doc, err := scene.Parse([]byte(plan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.SetViewport(vector.Rect{W: 400, H: 200})
	plots, _ := st.All(context.Background())
	c.Install(doc, plots)
	return fixture{c: c, store: st, doc: doc, clock: clock, ev: ev}
}

func (f fixture) el(t *testing.T, id string) *scene.Element {
	t.Helper()
	e, ok := f.doc.ElementByID(id)
	if !ok {
		t.Fatalf("element %s missing", id)
	}
	return e
}

func TestInputIgnoredBeforeLoad(t *testing.T) {
	c := New(Options{Store: storage.NewMemStore()})
	if out := c.Click(vector.Pt{X: 1, Y: 1}); out != gesture.Ignored {
		t.Fatalf("click before load = %v", out)
	}
	if c.Key("+") {
		t.Fatalf("keys must be ignored before load")
	}
	c.ZoomIn()
	if v := c.View(); v.Loaded || v.ZoomPercent != 0 {
		t.Fatalf("unexpected view before load: %+v", v)
	}
	if err := c.OpenPopup("x"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("OpenPopup before load: %v", err)
	}
}

func TestInstallAppliesStatuses(t *testing.T) {
	f := newFixture(t, nil)
	v := f.c.View()
	if !v.Loaded || v.ZoomPercent != 100 || v.ViewBox != "0 0 400 200" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if f.el(t, "Plot2_2").Fill() != domain.SoldFill {
		t.Fatalf("sold plot not filled")
	}
	if _, ok := f.doc.ElementByID("__fstamp__Plot2_2"); !ok {
		t.Fatalf("fallback label missing for sold plot without stamp")
	}
	if !f.el(t, "stamp-plot-1").Hidden() {
		t.Fatalf("stamp of available plot must be hidden")
	}
	if len(f.ev.names) == 0 || f.ev.names[0] != "scene_loaded" {
		t.Fatalf("scene_loaded event missing: %v", f.ev.names)
	}
}

func TestClickOpensPopupAndGatesGestures(t *testing.T) {
	f := newFixture(t, nil)
	if out := f.c.Click(vector.Pt{X: 50, Y: 50}); out != gesture.Activated {
		t.Fatalf("click = %v", out)
	}
	v := f.c.View()
	if v.Popup == nil || v.Popup.PlotID != "Plot1_1" || v.Popup.Title != "Plot 1 Details" || v.Popup.Tab != TabPlot {
		t.Fatalf("unexpected popup: %+v", v.Popup)
	}
	f.c.Wheel(-200, vector.Pt{X: 200, Y: 100})
	if f.c.View().ZoomPercent != 100 {
		t.Fatalf("wheel must be ignored while the popup is open")
	}
	if !f.c.Key(KeyEscape) || f.c.View().Popup != nil {
		t.Fatalf("escape should close the popup")
	}
	f.c.Wheel(-200, vector.Pt{X: 200, Y: 100})
	if f.c.View().ZoomPercent <= 100 {
		t.Fatalf("wheel should zoom after close")
	}
}

func TestDragSuppressesClick(t *testing.T) {
	f := newFixture(t, nil)
	f.c.PointerDown(gesture.ButtonPrimary, vector.Pt{X: 50, Y: 50})
	f.c.PointerMove(vector.Pt{X: 60, Y: 50})
	f.c.PointerUp(vector.Pt{X: 60, Y: 50})
	if out := f.c.Click(vector.Pt{X: 60, Y: 50}); out != gesture.Suppressed {
		t.Fatalf("click after drag = %v", out)
	}
	if f.c.View().Popup != nil {
		t.Fatalf("drag must not open the popup")
	}
}

func TestToggleAndCloseReverts(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.c.OpenPopup("Plot1_1"); err != nil {
		t.Fatalf("OpenPopup: %v", err)
	}
	visible, stamp := f.el(t, "Plot-1"), f.el(t, "stamp-plot-1")

	_ = f.c.ToggleStatus(domain.Sold)
	if visible.Fill() != domain.SoldFill || stamp.Hidden() {
		t.Fatalf("registered toggle should fill and show the stamp")
	}
	_ = f.c.ToggleStatus(domain.InProgress)
	v := f.c.View()
	if !v.Popup.InProgress() || v.Popup.Registered() {
		t.Fatalf("toggles must exclude each other: %+v", v.Popup)
	}
	if visible.Fill() != domain.InProgressFill || !stamp.Hidden() {
		t.Fatalf("in-progress toggle should fill and hide the stamp")
	}
	_ = f.c.ToggleStatus(domain.InProgress)
	if visible.Fill() != "#cfe8cf" {
		t.Fatalf("toggle off should restore the authored fill, got %q", visible.Fill())
	}

	_ = f.c.ToggleStatus(domain.Sold)
	f.c.ClosePopup()
	if visible.Fill() != "#cfe8cf" || !stamp.Hidden() {
		t.Fatalf("close without save must revert the provisional status")
	}
	if st, _ := f.store.Status(context.Background(), "Plot1_1"); st != domain.Available {
		t.Fatalf("status must not be committed, got %v", st)
	}
	if err := f.c.ToggleStatus(domain.Sold); !errors.Is(err, ErrNoPopup) {
		t.Fatalf("toggle without popup: %v", err)
	}
}

func TestSaveCustomerCommitsStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_ = f.c.OpenPopup("Plot1_1")
	f.c.SetTab(TabCustomer)
	_ = f.c.ToggleStatus(domain.Sold)

	form := NewCustomerForm(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	if err := f.c.SaveCustomer(ctx, form); !errors.Is(err, storage.ErrInvalid) {
		t.Fatalf("missing name: %v", err)
	}
	if f.c.View().Popup == nil {
		t.Fatalf("popup must stay open on validation error")
	}

	form.Name = "Meera"
	form.Mediator = MediatorOther
	form.MediatorOther = "Kumar"
	form.UsePlotPrice = true
	form.Installments[0].Amount = 100000
	form.AddInstallment(time.Now())
	if err := f.c.SaveCustomer(ctx, form); err != nil {
		t.Fatalf("SaveCustomer: %v", err)
	}
	v := f.c.View()
	if v.Popup != nil || !v.CanUndo {
		t.Fatalf("popup should close and the change be undoable: %+v", v)
	}
	if !strings.Contains(v.Toast, "Meera") || !strings.Contains(v.Toast, "Sold") {
		t.Fatalf("unexpected toast %q", v.Toast)
	}
	if st, _ := f.store.Status(ctx, "Plot1_1"); st != domain.Sold {
		t.Fatalf("status not committed: %v", st)
	}
	cs, _ := f.store.Customers(ctx, "Plot1_1")
	if len(cs) != 1 || cs[0].BookingPrice != 1500000 || len(cs[0].Installments) != 1 || cs[0].Mediator != "Kumar" {
		t.Fatalf("unexpected customer: %+v", cs)
	}
	if ms, _ := f.store.Mediators(ctx); len(ms) != 1 {
		t.Fatalf("free-text mediator should be remembered: %+v", ms)
	}
	if f.el(t, "Plot-1").Fill() != domain.SoldFill {
		t.Fatalf("committed status must stay drawn")
	}

	f.clock.fire()
	if f.c.View().Toast != "" {
		t.Fatalf("toast should hide after its timer")
	}

	if err := f.c.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if st, _ := f.store.Status(ctx, "Plot1_1"); st != domain.Available || f.el(t, "Plot-1").Fill() != "#cfe8cf" {
		t.Fatalf("undo should restore Available, got %v", st)
	}
	if err := f.c.Redo(ctx); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if st, _ := f.store.Status(ctx, "Plot1_1"); st != domain.Sold {
		t.Fatalf("redo should restore Sold, got %v", st)
	}
}

// flakyStore rejects status writes while fail is set.
type flakyStore struct {
	*storage.MemStore
	fail bool
}

func (s *flakyStore) SetStatus(ctx context.Context, id string, st domain.Status, actor string) error {
	if s.fail {
		return errors.New("store offline")
	}
	return s.MemStore.SetStatus(ctx, id, st, actor)
}

func TestUndoKeepsChangeWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{MemStore: storage.NewMemStore(testPlots()...)}
	c := New(Options{Store: st})
	c.afterFunc = (&fakeClock{}).after
	doc, err := scene.Parse([]byte(plan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c.SetViewport(vector.Rect{W: 400, H: 200})
	plots, _ := st.All(ctx)
	c.Install(doc, plots)

	_ = c.OpenPopup("Plot1_1")
	_ = c.ToggleStatus(domain.InProgress)
	form := NewCustomerForm(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	form.Name = "Ravi"
	if err := c.SaveCustomer(ctx, form); err != nil {
		t.Fatalf("SaveCustomer: %v", err)
	}

	st.fail = true
	if err := c.Undo(ctx); err == nil {
		t.Fatalf("undo should report the store error")
	}
	if v := c.View(); !v.CanUndo || v.CanRedo {
		t.Fatalf("failed undo must leave the change on the undo stack: %+v", v)
	}
	if got, _ := st.Status(ctx, "Plot1_1"); got != domain.InProgress {
		t.Fatalf("status = %v, want InProgress", got)
	}

	st.fail = false
	if err := c.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got, _ := st.Status(ctx, "Plot1_1"); got != domain.Available {
		t.Fatalf("status after undo = %v", got)
	}

	st.fail = true
	if err := c.Redo(ctx); err == nil {
		t.Fatalf("redo should report the store error")
	}
	if v := c.View(); v.CanUndo || !v.CanRedo {
		t.Fatalf("failed redo must leave the change on the redo stack: %+v", v)
	}
}

func TestSavePlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_ = f.c.OpenPopup("Plot1_1")
	if err := f.c.SavePlot(ctx, domain.PlotEdit{Price: 1600000, Length: 40, Width: 40}); err != nil {
		t.Fatalf("SavePlot: %v", err)
	}
	p, _ := f.store.Get(ctx, "Plot1_1")
	if p.Price != 1600000 || p.Sqft != 1600 || p.Facing != "East" {
		t.Fatalf("unexpected plot: %+v", p)
	}
	if v := f.c.View(); v.Popup != nil || v.Toast != "Plot details saved for Plot 1" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if err := f.c.SavePlot(ctx, domain.PlotEdit{}); !errors.Is(err, ErrNoPopup) {
		t.Fatalf("save without popup: %v", err)
	}
}

func TestTooltipHideIsDebounced(t *testing.T) {
	f := newFixture(t, nil)
	f.c.Hover(vector.Pt{X: 50, Y: 50})
	tt := f.c.View().Tooltip
	if !tt.Visible || tt.Title != "Plot 1" || tt.Price != "₹15,00,000" || tt.StatusColor != availableColor {
		t.Fatalf("unexpected tooltip: %+v", tt)
	}
	if tt.Size != "1200 sq.ft (30 × 40 ft)" {
		t.Fatalf("unexpected size line %q", tt.Size)
	}
	f.c.Hover(vector.Pt{X: 390, Y: 190})
	if !f.c.View().Tooltip.Visible {
		t.Fatalf("tooltip must stay until the hide delay passes")
	}
	f.c.Hover(vector.Pt{X: 50, Y: 50})
	f.clock.fire()
	if !f.c.View().Tooltip.Visible {
		t.Fatalf("re-entering must cancel the pending hide")
	}
	f.c.Hover(vector.Pt{X: 390, Y: 190})
	f.clock.fire()
	if f.c.View().Tooltip.Visible {
		t.Fatalf("tooltip should hide after the delay")
	}
}

func TestLoginGate(t *testing.T) {
	users := storage.NewMemStore()
	svc, err := auth.NewService(users, auth.Options{Secret: []byte("k"), BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	_ = svc.CreateUser(context.Background(), "asha", "pw", domain.RoleSales)
	f := newFixture(t, svc)
	if out := f.c.Click(vector.Pt{X: 50, Y: 50}); out != gesture.Ignored {
		t.Fatalf("click before login = %v", out)
	}
	if err := f.c.Login(context.Background(), "asha", "nope"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("bad login: %v", err)
	}
	if err := f.c.Login(context.Background(), "asha", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if v := f.c.View(); !v.LoggedIn || v.User != "asha" {
		t.Fatalf("unexpected view after login: %+v", v)
	}
	if out := f.c.Click(vector.Pt{X: 50, Y: 50}); out != gesture.Activated {
		t.Fatalf("click after login = %v", out)
	}
	f.c.Logout()
	if v := f.c.View(); v.LoggedIn || v.Popup != nil {
		t.Fatalf("logout should close the popup: %+v", v)
	}
}

func TestLoadSceneAsync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.svg")
	if err := os.WriteFile(path, []byte(plan), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := New(Options{Store: storage.NewMemStore(testPlots()...)})
	if err := <-c.LoadSceneAsync(context.Background(), path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if v := c.View(); !v.Loaded || v.Loading || len(c.Plots()) != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}

	bad := New(Options{Store: storage.NewMemStore()})
	err := <-bad.LoadSceneAsync(context.Background(), filepath.Join(dir, "missing.svg"))
	if !errors.Is(err, scene.ErrLoad) {
		t.Fatalf("expected ErrLoad, got %v", err)
	}
	if v := bad.View(); v.Loaded || !errors.Is(v.LoadErr, scene.ErrLoad) {
		t.Fatalf("load error must be surfaced: %+v", v)
	}
}

func TestToolbarAndSubscribe(t *testing.T) {
	f := newFixture(t, nil)
	var views []View
	f.c.Subscribe(func(v View) { views = append(views, v) })
	f.c.ZoomIn()
	if z := f.c.View().ZoomPercent; z != 130 {
		t.Fatalf("zoom in = %d", z)
	}
	f.c.ResetView()
	if f.c.View().ViewBox != "0 0 400 200" {
		t.Fatalf("reset should restore the extent")
	}
	f.c.Fit()
	if vb := f.c.View().ViewBox; vb == "0 0 400 200" {
		t.Fatalf("fit should add padding, got %s", vb)
	}
	if len(views) < 3 {
		t.Fatalf("listeners should see every change, got %d", len(views))
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemStore(testPlots()...)
	_ = st.SaveMediator(ctx, domain.Mediator{Name: "Kumar", Phone: "99"})
	_ = st.SaveCustomer(ctx, &domain.Customer{PlotID: "Plot2_2", Name: "Arun", Mediator: "Kumar", BookingPrice: 900000,
		Installments: []domain.Installment{{Amount: 100000}}})
	_ = st.SaveCustomer(ctx, &domain.Customer{PlotID: "Plot1_1", Name: "Direct", BookingPrice: 50000})

	s, err := Summarize(ctx, st)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.Total != 2 || s.Counts[domain.Sold] != 1 || s.SoldValue != 900000 || s.Received != 100000 || s.Outstanding != 850000 {
		t.Fatalf("unexpected summary: %+v", s)
	}
	groups, err := MediatorReport(ctx, st)
	if err != nil {
		t.Fatalf("MediatorReport: %v", err)
	}
	if len(groups) != 2 || groups[0].Mediator != "Kumar" || groups[0].Phone != "99" || groups[1].Mediator != "" {
		t.Fatalf("unexpected groups: %+v", groups)
	}
}
