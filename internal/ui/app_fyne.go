//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"plotmap/internal/crash"
	"plotmap/internal/dashboard"
	"plotmap/internal/domain"
	"plotmap/internal/export"
	applog "plotmap/internal/log"
	"plotmap/internal/telemetry"
	"plotmap/internal/version"
)

const uiTimeout = 10 * time.Second

// Run opens the dashboard window and blocks until it is closed.
func Run(opts Options) error {
	if opts.Store == nil {
		return errors.New("ui: store is required")
	}
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))
	defer crash.Recover(opts.DataDir, opts.Store)

	a := app.NewWithID("plotmap")
	w := a.NewWindow("Plot Map")
	prefs := a.Preferences()
	winW := max(prefs.IntWithFallback("window.width", 1200), 800)
	winH := max(prefs.IntWithFallback("window.height", 800), 600)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	ctl := newController(opts, fyne.Do)
	mc := NewMapCanvas(ctl)
	s := &shell{opts: opts, ctl: ctl, win: w, canvas: mc, log: l}
	s.build()

	ctl.Subscribe(s.apply)
	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
	})

	start := func() {
		done := ctl.LoadSceneAsync(context.Background(), opts.Scene)
		go func() {
			if err := <-done; err != nil {
				fyne.Do(func() { dialog.ShowError(fmt.Errorf("load floor plan: %w", err), w) })
			}
		}()
	}
	if opts.Auth != nil {
		s.showLogin(start)
	} else {
		start()
	}
	w.ShowAndRun()
	return nil
}

// shell owns the window chrome around the map canvas.
type shell struct {
	opts   Options
	ctl    *dashboard.Controller
	win    fyne.Window
	canvas *MapCanvas
	log    *slog.Logger

	zoom    *widget.Label
	user    *widget.Label
	status  *widget.Label
	tooltip *widget.PopUp
	tipText *widget.Label

	popupFor string
	popupDlg dialog.Dialog
	toggles  map[domain.Status]*widget.Check
}

func (s *shell) build() {
	s.zoom = widget.NewLabel("100%")
	s.user = widget.NewLabel("")
	s.status = widget.NewLabel("Loading floor plan…")
	s.tipText = widget.NewLabel("")
	s.tooltip = widget.NewPopUp(s.tipText, s.win.Canvas())
	s.tooltip.Hide()

	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.ZoomInIcon(), s.ctl.ZoomIn),
		widget.NewToolbarAction(theme.ZoomOutIcon(), s.ctl.ZoomOut),
		widget.NewToolbarAction(theme.ZoomFitIcon(), s.ctl.Fit),
		widget.NewToolbarAction(theme.ViewRestoreIcon(), s.ctl.ResetView),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentUndoIcon(), func() { s.report(s.ctl.Undo(context.Background())) }),
		widget.NewToolbarAction(theme.ContentRedoIcon(), func() { s.report(s.ctl.Redo(context.Background())) }),
	)
	top := container.NewBorder(nil, nil, tb, container.NewHBox(s.user, s.zoom))
	s.win.SetContent(container.NewBorder(top, s.status, nil, nil, s.canvas))
	s.win.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("File",
			fyne.NewMenuItem("Export CSV…", func() { s.exportTo("plots.csv", "csv") }),
			fyne.NewMenuItem("Export PDF report…", func() { s.exportTo("report.pdf", "pdf") }),
			fyne.NewMenuItem("Export SVG snapshot…", func() { s.exportTo("snapshot.svg", "svg") }),
			fyne.NewMenuItem("Export PNG thumbnail…", func() { s.exportTo("thumbnail.png", "png") }),
			fyne.NewMenuItemSeparator(),
			fyne.NewMenuItem("Log out", func() {
				s.ctl.Logout()
				if s.opts.Auth != nil {
					s.showLogin(func() {})
				}
			}),
		),
		fyne.NewMenu("View",
			fyne.NewMenuItem("Summary", s.showSummary),
			fyne.NewMenuItem("Mediators", s.showMediators),
		),
	))

	s.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if k := keyName(string(ev.Name)); k != "" {
			s.ctl.Key(k)
		}
	})
	s.win.Canvas().SetOnTypedRune(func(r rune) {
		if k := keyName(string(r)); k != "" {
			s.ctl.Key(k)
		}
	})
}

func (s *shell) report(err error) {
	if err != nil {
		dialog.ShowError(err, s.win)
	}
}

// apply renders a controller snapshot. It runs on the UI thread.
func (s *shell) apply(v dashboard.View) {
	s.canvas.Refresh()
	s.zoom.SetText(strconv.Itoa(v.ZoomPercent) + "%")
	if v.LoggedIn && v.User != "" {
		s.user.SetText(v.User + " (" + string(v.Role) + ")")
	} else {
		s.user.SetText("")
	}
	switch {
	case v.Loading:
		s.status.SetText("Loading floor plan…")
	case v.LoadErr != nil:
		s.status.SetText("Floor plan unavailable: " + v.LoadErr.Error())
	case v.Toast != "":
		s.status.SetText(v.Toast)
	case v.Loaded:
		s.status.SetText("Ready")
	}

	if v.Tooltip.Visible {
		t := v.Tooltip
		s.tipText.SetText(strings.Join([]string{t.Title, t.Size, t.Price, t.Facing, t.Status}, "\n"))
		pos := fyne.CurrentApp().Driver().AbsolutePositionForObject(s.canvas)
		s.tooltip.ShowAtPosition(pos.Add(fyne.NewPos(float32(t.At.X)+12, float32(t.At.Y)+12)))
	} else {
		s.tooltip.Hide()
	}

	switch {
	case v.Popup == nil && s.popupDlg != nil:
		s.popupFor = ""
		d := s.popupDlg
		s.popupDlg = nil
		d.Hide()
	case v.Popup != nil && v.Popup.PlotID != s.popupFor:
		s.showPopup(*v.Popup)
	case v.Popup != nil:
		for st, chk := range s.toggles {
			chk.Checked = v.Popup.Status == st
			chk.Refresh()
		}
	}
}

func (s *shell) showLogin(then func()) {
	user := widget.NewEntry()
	pass := widget.NewPasswordEntry()
	items := []*widget.FormItem{
		widget.NewFormItem("User", user),
		widget.NewFormItem("Password", pass),
	}
	dialog.ShowForm("Sign in", "Sign in", "Quit", items, func(ok bool) {
		if !ok {
			s.win.Close()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
		defer cancel()
		if err := s.ctl.Login(ctx, user.Text, pass.Text); err != nil {
			s.log.Warn("login failed", slog.String("user", user.Text), slog.Any("err", err))
			d := dialog.NewError(err, s.win)
			d.SetOnClosed(func() { s.showLogin(then) })
			d.Show()
			return
		}
		then()
	}, s.win)
}

func floatEntry(v float64) *widget.Entry {
	e := widget.NewEntry()
	if v > 0 {
		e.SetText(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return e
}

func parseFloat(e *widget.Entry) float64 {
	v, _ := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(e.Text), ",", ""), 64)
	return v
}

func (s *shell) showPopup(pp dashboard.Popup) {
	if s.popupDlg != nil {
		old := s.popupDlg
		s.popupDlg = nil
		old.Hide()
	}
	s.popupFor = pp.PlotID
	p := pp.Plot

	registered := widget.NewCheck("Registered", func(bool) { s.report(s.ctl.ToggleStatus(domain.Sold)) })
	inProgress := widget.NewCheck("In Progress", func(bool) { s.report(s.ctl.ToggleStatus(domain.InProgress)) })
	registered.Checked = pp.Registered()
	inProgress.Checked = pp.InProgress()
	s.toggles = map[domain.Status]*widget.Check{domain.Sold: registered, domain.InProgress: inProgress}

	price, length, width, sqft := floatEntry(p.Price), floatEntry(p.Length), floatEntry(p.Width), floatEntry(p.Sqft)
	facing := widget.NewEntry()
	facing.SetText(p.Facing)
	plotForm := widget.NewForm(
		widget.NewFormItem("Price", price),
		widget.NewFormItem("Length (ft)", length),
		widget.NewFormItem("Width (ft)", width),
		widget.NewFormItem("Sq.ft", sqft),
		widget.NewFormItem("Facing", facing),
	)
	savePlot := widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
		defer cancel()
		s.report(s.ctl.SavePlot(ctx, domain.PlotEdit{
			Price: parseFloat(price), Length: parseFloat(length), Width: parseFloat(width),
			Sqft: parseFloat(sqft), Facing: strings.TrimSpace(facing.Text),
		}))
	})

	form := dashboard.NewCustomerForm(time.Now())
	name, phone := widget.NewEntry(), widget.NewEntry()
	other := widget.NewEntry()
	other.SetPlaceHolder("Mediator name")
	other.Hide()
	opts := []string{""}
	for _, m := range pp.Mediators {
		opts = append(opts, m.Name)
	}
	opts = append(opts, dashboard.MediatorOther)
	mediator := widget.NewSelect(opts, func(v string) {
		if v == dashboard.MediatorOther {
			other.Show()
		} else {
			other.Hide()
		}
	})
	booking := widget.NewEntry()
	usePlot := widget.NewCheck("Use plot price", func(on bool) {
		if on {
			booking.SetText(strconv.FormatFloat(p.Price, 'f', -1, 64))
			booking.Disable()
		} else {
			booking.Enable()
		}
	})
	closure := widget.NewEntry()
	closure.SetPlaceHolder("YYYY-MM-DD")
	amount := widget.NewEntry()
	received := widget.NewEntry()
	received.SetText(form.Installments[0].DateReceived)
	custForm := widget.NewForm(
		widget.NewFormItem("Name", name),
		widget.NewFormItem("Phone", phone),
		widget.NewFormItem("Mediator", container.NewVBox(mediator, other)),
		widget.NewFormItem("Booking price", container.NewVBox(booking, usePlot)),
		widget.NewFormItem("Closure date", closure),
		widget.NewFormItem("First installment", amount),
		widget.NewFormItem("Received on", received),
	)
	var existing []string
	for _, c := range pp.Customers {
		existing = append(existing, fmt.Sprintf("%s  %s  received %s", c.Name, c.Phone, domain.FormatINR(c.Received())))
	}
	saveCustomer := widget.NewButtonWithIcon("Save customer", theme.DocumentSaveIcon(), func() {
		form.Name, form.Phone = name.Text, phone.Text
		form.Mediator, form.MediatorOther = mediator.Selected, other.Text
		form.BookingPrice = parseFloat(booking)
		form.UsePlotPrice = usePlot.Checked
		form.ClosureDate = closure.Text
		form.Installments[0].Amount = parseFloat(amount)
		form.Installments[0].DateReceived = strings.TrimSpace(received.Text)
		ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
		defer cancel()
		s.report(s.ctl.SaveCustomer(ctx, form))
	})

	tabs := container.NewAppTabs(
		container.NewTabItem("Plot", container.NewVBox(plotForm, savePlot)),
		container.NewTabItem("Customer", container.NewVBox(
			widget.NewLabel(strings.Join(existing, "\n")), custForm, saveCustomer)),
	)
	tabs.OnSelected = func(ti *container.TabItem) {
		if ti.Text == "Customer" {
			s.ctl.SetTab(dashboard.TabCustomer)
		} else {
			s.ctl.SetTab(dashboard.TabPlot)
		}
	}
	if pp.Tab == dashboard.TabCustomer {
		tabs.SelectIndex(1)
	}

	content := container.NewBorder(container.NewHBox(registered, inProgress), nil, nil, nil, tabs)
	d := dialog.NewCustom(pp.Title, "Close", content, s.win)
	d.SetOnClosed(func() {
		if s.popupDlg == d {
			s.popupDlg = nil
			s.popupFor = ""
			s.ctl.ClosePopup()
		}
	})
	d.Resize(fyne.NewSize(460, 520))
	s.popupDlg = d
	d.Show()
}

func (s *shell) showSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
	defer cancel()
	sum, err := s.ctl.Summary(ctx)
	if err != nil {
		s.report(err)
		return
	}
	lines := []string{
		fmt.Sprintf("Plots: %d", sum.Total),
		fmt.Sprintf("Available: %d", sum.Counts[domain.Available]),
		fmt.Sprintf("In Progress: %d", sum.Counts[domain.InProgress]),
		fmt.Sprintf("Sold: %d", sum.Counts[domain.Sold]),
		"Sold value: " + domain.FormatINR(sum.SoldValue),
		"Booked: " + domain.FormatINR(sum.Booked),
		"Received: " + domain.FormatINR(sum.Received),
		"Outstanding: " + domain.FormatINR(sum.Outstanding),
	}
	dialog.ShowInformation("Summary", strings.Join(lines, "\n"), s.win)
}

func (s *shell) showMediators() {
	ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
	defer cancel()
	groups, err := s.ctl.MediatorReport(ctx)
	if err != nil {
		s.report(err)
		return
	}
	var lines []string
	for _, g := range groups {
		name := g.Mediator
		if name == "" {
			name = "Direct"
		}
		lines = append(lines, fmt.Sprintf("%s: %d customers, booked %s, received %s",
			name, len(g.Customers), domain.FormatINR(g.Booked), domain.FormatINR(g.Received)))
	}
	if len(lines) == 0 {
		lines = []string{"No customers yet."}
	}
	dialog.ShowInformation("Mediators", strings.Join(lines, "\n"), s.win)
}

func (s *shell) exportTo(name, format string) {
	d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			s.report(err)
			return
		}
		defer func() { _ = wc.Close() }()
		if err := s.writeExport(wc, format); err != nil {
			s.report(err)
			return
		}
		s.log.Info("export written", slog.String("format", format), slog.String("uri", wc.URI().String()))
		if s.opts.Events != nil {
			s.opts.Events.Event(telemetry.EventExportWritten, map[string]any{"format": format})
		}
	}, s.win)
	d.SetFileName(name)
	d.Show()
}

func (s *shell) writeExport(w io.Writer, format string) error {
	ctx, cancel := context.WithTimeout(context.Background(), uiTimeout)
	defer cancel()
	switch format {
	case "csv":
		ds, err := export.Collect(ctx, s.opts.Store)
		if err != nil {
			return err
		}
		return export.WriteCSV(w, ds)
	case "pdf":
		r, err := export.BuildReport(ctx, s.opts.Store, "", time.Now())
		if err != nil {
			return err
		}
		return export.WriteReportPDF(w, r)
	}
	doc := s.ctl.Scene()
	win, ok := s.ctl.Window()
	if doc == nil || !ok {
		return dashboard.ErrNotLoaded
	}
	if format == "svg" {
		return export.WriteSnapshot(w, doc, export.SnapshotOptions{Window: win, Plots: s.ctl.Plots()})
	}
	return export.WritePNG(w, doc, export.PNGOptions{Window: win})
}
