/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"plotmap/internal/auth"
	"plotmap/internal/backend"
	"plotmap/internal/config"
	"plotmap/internal/dashboard"
	"plotmap/internal/domain"
	"plotmap/internal/export"
	"plotmap/internal/scene"
	"plotmap/internal/storage"
	"plotmap/internal/telemetry"
	"plotmap/internal/ui"
)

// cliActor is recorded in the status history for changes made from the CLI.
const cliActor = "cli"

type app struct {
	cfg    config.AppConfig
	token  string
	out    io.Writer
	log    *slog.Logger
	events dashboard.Events

	// openStore is replaced in tests.
	openStore func(ctx context.Context) (storage.Store, error)
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "import":
		return a.withStore(ctx, func(st storage.Store) error { return a.importSeed(ctx, st, args) })
	case "dump":
		return a.withStore(ctx, func(st storage.Store) error { return a.dumpSeed(ctx, st, args) })
	case "list":
		return a.withStore(ctx, func(st storage.Store) error { return a.list(ctx, st) })
	case "status":
		return a.withStore(ctx, func(st storage.Store) error { return a.status(ctx, st, args) })
	case "summary":
		return a.withStore(ctx, func(st storage.Store) error { return a.summary(ctx, st) })
	case "export":
		return a.withStore(ctx, func(st storage.Store) error { return a.export(ctx, st, args) })
	case "user":
		return a.withStore(ctx, func(st storage.Store) error { return a.user(ctx, st, args) })
	case "remote":
		return a.remote(ctx, args)
	case "serve":
		return a.serve(ctx)
	case "ui":
		return a.withStore(ctx, func(st storage.Store) error { return a.ui(ctx, st) })
	}
	return errUsage
}

func (a *app) store(ctx context.Context) (storage.Store, error) {
	if a.openStore != nil {
		return a.openStore(ctx)
	}
	if a.cfg.Store.Driver == "postgres" {
		return backend.OpenPG(ctx, a.cfg.Store.DSN)
	}
	return storage.OpenSQLite(a.cfg.StorePath())
}

func (a *app) withStore(ctx context.Context, fn func(storage.Store) error) error {
	st, err := a.store(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			a.log.Warn("close store failed", slog.Any("err", err))
		}
	}()
	return fn(st)
}

func (a *app) importSeed(ctx context.Context, st storage.Store, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	seed, err := storage.ReadSeed(args[0])
	if err != nil {
		return err
	}
	if err := storage.Import(ctx, st, seed); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Imported %d plots, %d customers\n", len(seed.Plots), len(seed.Customers))
	return nil
}

func (a *app) dumpSeed(ctx context.Context, st storage.Store, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	seed, err := storage.Export(ctx, st)
	if err != nil {
		return err
	}
	if err := storage.WriteSeed(args[0], seed); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "Wrote", args[0])
	return nil
}

func (a *app) list(ctx context.Context, st storage.Store) error {
	plots, err := st.All(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tSQFT\tPRICE")
	for _, p := range plots {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.DisplayTitle(), p.Status.Label(), domain.FormatNumber(p.Sqft), domain.FormatINR(p.Price))
	}
	return tw.Flush()
}

func (a *app) status(ctx context.Context, st storage.Store, args []string) error {
	switch len(args) {
	case 1:
		s, err := st.Status(ctx, args[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.out, s.Label())
		return nil
	case 2:
		s, err := domain.ParseStatus(args[1])
		if err != nil {
			return err
		}
		if err := st.SetStatus(ctx, args[0], s, cliActor); err != nil {
			return err
		}
		a.events.Event(telemetry.EventStatusCommitted, map[string]any{"status": s.String()})
		_, _ = fmt.Fprintf(a.out, "%s is now %s\n", args[0], s.Label())
		return nil
	}
	return errUsage
}

func (a *app) summary(ctx context.Context, st storage.Store) error {
	s, err := dashboard.Summarize(ctx, st)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Plots:       %d\n", s.Total)
	for _, status := range []domain.Status{domain.Available, domain.InProgress, domain.Sold} {
		_, _ = fmt.Fprintf(a.out, "%-12s %d\n", status.Label()+":", s.Counts[status])
	}
	_, _ = fmt.Fprintf(a.out, "Sold value:  %s\n", domain.FormatINR(s.SoldValue))
	_, _ = fmt.Fprintf(a.out, "Booked:      %s\n", domain.FormatINR(s.Booked))
	_, _ = fmt.Fprintf(a.out, "Received:    %s\n", domain.FormatINR(s.Received))
	_, _ = fmt.Fprintf(a.out, "Outstanding: %s\n", domain.FormatINR(s.Outstanding))
	return nil
}

// loadScene loads the configured floor plan with the stored statuses applied.
func (a *app) loadScene(ctx context.Context, st storage.Store) (*dashboard.Controller, error) {
	if a.cfg.Map.Scene == "" {
		return nil, fmt.Errorf("no floor plan configured; set map.scene or %s", config.EnvScene)
	}
	doc, err := scene.Load(ctx, a.cfg.Map.Scene)
	if err != nil {
		return nil, err
	}
	plots, err := st.All(ctx)
	if err != nil {
		return nil, err
	}
	c := dashboard.New(dashboard.Options{Store: st, Limits: a.cfg.Map.Limits(), FitPadding: a.cfg.Map.FitPadding})
	c.Install(doc, plots)
	return c, nil
}

func (a *app) export(ctx context.Context, st storage.Store, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	format, out := strings.ToLower(args[0]), args[1]
	switch format {
	case "csv":
		if err := export.ExportCSV(ctx, st, out); err != nil {
			return err
		}
	case "pdf":
		if err := export.ExportReportPDF(ctx, st, out, ""); err != nil {
			return err
		}
	case "svg", "png":
		c, err := a.loadScene(ctx, st)
		if err != nil {
			return err
		}
		doc := c.Scene()
		if format == "svg" {
			caption := "Status as of " + time.Now().Format("2 Jan 2006")
			err = export.ExportSnapshot(doc, export.SnapshotOptions{Caption: caption, Plots: c.Plots()}, out)
		} else {
			width := 0
			if len(args) > 2 {
				if width, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("width %q: %w", args[2], err)
				}
			}
			err = export.ExportPNG(doc, export.PNGOptions{Width: width}, out)
		}
		if err != nil {
			return err
		}
	default:
		return errUsage
	}
	a.events.Event(telemetry.EventExportWritten, map[string]any{"format": format})
	_, _ = fmt.Fprintln(a.out, "Wrote", out)
	return nil
}

func (a *app) authService(users storage.UserStore) (*auth.Service, error) {
	secret, err := config.JWTSecret()
	if err != nil {
		return nil, err
	}
	return auth.NewService(users, auth.Options{
		Secret:  secret,
		Limiter: auth.NewLocalLimiter(a.cfg.Server.LoginBucket()),
	})
}

func (a *app) user(ctx context.Context, st storage.Store, args []string) error {
	if len(args) < 3 || args[0] != "add" {
		return errUsage
	}
	role := domain.RoleSales
	if len(args) > 3 {
		role = domain.Role(strings.ToLower(args[3]))
	}
	svc, err := a.authService(st)
	if err != nil {
		return err
	}
	if err := svc.CreateUser(ctx, args[1], args[2], role); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Created %s user %s\n", role, args[1])
	return nil
}

func (a *app) remote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if args[0] == "logout" {
		return config.ClearToken()
	}
	if a.cfg.Server.BaseURL == "" {
		return fmt.Errorf("no server configured; set server.base_url or %s", config.EnvBackendURL)
	}
	c := backend.NewClient(a.cfg.Server.BaseURL, a.token)
	switch {
	case args[0] == "login" && len(args) == 3:
		resp, err := c.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		if err := config.Save(a.cfg, resp.Token); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "Signed in as %s (%s) until %s\n", resp.User, resp.Role, resp.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	case args[0] == "plots" && len(args) == 1:
		plots, err := c.Plots(ctx)
		if err != nil {
			return err
		}
		for _, p := range plots {
			_, _ = fmt.Fprintf(a.out, "%s\t%s\n", p.ID, p.Status.Label())
		}
		return nil
	case args[0] == "status" && len(args) == 3:
		s, err := domain.ParseStatus(args[2])
		if err != nil {
			return err
		}
		p, err := c.SetStatus(ctx, args[1], s)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s is now %s\n", p.ID, p.Status.Label())
		return nil
	}
	return errUsage
}

func (a *app) serve(ctx context.Context) error {
	secret, err := config.JWTSecret()
	if err != nil {
		return err
	}
	rc := backend.RunConfig{
		Addr:       a.cfg.Server.Addr,
		SQLitePath: a.cfg.StorePath(),
		RedisAddr:  a.cfg.Server.RedisAddr,
		AMQPURL:    a.cfg.Server.AMQPURL,
		Queue:      a.cfg.Server.Queue,
		Secret:     secret,
		Login:      a.cfg.Server.LoginBucket(),
	}
	if a.cfg.Store.Driver == "postgres" {
		rc.DSN = a.cfg.Store.DSN
	}
	return backend.Run(ctx, rc)
}

func (a *app) ui(ctx context.Context, st storage.Store) error {
	opts := ui.Options{
		Scene:   a.cfg.Map.Scene,
		Store:   st,
		Map:     a.cfg.Map,
		DataDir: a.cfg.DataDir(),
		Events:  a.events,
	}
	if opts.Scene == "" {
		return fmt.Errorf("no floor plan configured; set map.scene or %s", config.EnvScene)
	}
	if !strings.Contains(opts.Scene, "://") {
		if abs, err := filepath.Abs(opts.Scene); err == nil {
			opts.Scene = abs
		}
		if _, err := os.Stat(opts.Scene); err != nil {
			return err
		}
	}
	users, err := st.Users(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		if opts.Auth, err = a.authService(st); err != nil {
			return err
		}
	}
	return ui.Run(opts)
}
