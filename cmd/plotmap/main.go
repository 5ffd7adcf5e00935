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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"plotmap/internal/config"
	"plotmap/internal/crash"
	applog "plotmap/internal/log"
	"plotmap/internal/telemetry"
	"plotmap/internal/version"
)

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Plot Map: floor-plan sales dashboard")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  plotmap version|-v|--version               Show version")
	_, _ = fmt.Fprintln(w, "  plotmap import <seed.json>                 Load plots and sales records into the store")
	_, _ = fmt.Fprintln(w, "  plotmap dump <seed.json>                   Write the store as a seed file")
	_, _ = fmt.Fprintln(w, "  plotmap list                               List plots with their status")
	_, _ = fmt.Fprintln(w, "  plotmap status <plot> [<status>]           Show or set the status of a plot")
	_, _ = fmt.Fprintln(w, "  plotmap summary                            Print sales totals")
	_, _ = fmt.Fprintln(w, "  plotmap export csv|pdf|svg|png <out> [w]   Export records, report, snapshot or thumbnail")
	_, _ = fmt.Fprintln(w, "  plotmap user add <name> <password> [role]  Create a dashboard account")
	_, _ = fmt.Fprintln(w, "  plotmap remote login <name> <password>     Sign in to the server in server.base_url")
	_, _ = fmt.Fprintln(w, "  plotmap remote plots|logout                List plots on the server or forget the session")
	_, _ = fmt.Fprintln(w, "  plotmap remote status <plot> <status>      Set a status through the server")
	_, _ = fmt.Fprintln(w, "  plotmap serve                              Run the HTTP API")
	_, _ = fmt.Fprintln(w, "  plotmap ui                                 Launch the desktop dashboard (build with -tags fyne)")
}

// errUsage makes run print the usage text and exit with code 2.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			_, _ = fmt.Fprintln(stdout, version.String())
			return 0
		case "help", "-h", "--help":
			usage(stdout)
			return 0
		}
	}
	if len(args) == 0 {
		usage(stdout)
		return 0
	}

	cfg, token, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	l.Debug("start", slog.String("cmd", args[0]), slog.Int("args", len(args)))
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = cfg.General.TelemetryOptIn
	tel := telemetry.New(tcfg)
	telemetry.SetDefault(tel)
	defer tel.Close()
	defer crash.Recover(cfg.DataDir())

	a := &app{cfg: cfg, token: token, out: stdout, log: l, events: tel}
	err = a.dispatch(ctx, args[0], args[1:])
	tel.Flush(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		usage(stderr)
		return 2
	default:
		l.Error("command failed", slog.String("cmd", args[0]), slog.Any("err", err))
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
}
