/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func lastJSONLine(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

func TestInitWritesStructuredFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "plotmap.json")
	Init(Options{Level: "debug", Format: "json", File: fpath})
	t.Cleanup(func() { Init(Options{Level: "error"}) })

	l := WithOperation(WithComponent("overlay"), "apply_status")
	l.Info("stamp shown", slog.String("stamp", "stamp-plot-3"))
	time.Sleep(20 * time.Millisecond)

	m := lastJSONLine(t, fpath)
	if m["app"] != "plotmap" {
		t.Fatalf("app attr = %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "overlay" || m["op"] != "apply_status" {
		t.Fatalf("component/op mismatch: %v / %v", m["component"], m["op"])
	}
	if m["msg"] != "stamp shown" || m["stamp"] != "stamp-plot-3" {
		t.Fatalf("unexpected record: %v", m)
	}
}

func TestContextAttrsAreAttached(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "ctx.json")
	Init(Options{Level: "info", Format: "json", File: fpath})
	t.Cleanup(func() { Init(Options{Level: "error"}) })

	ctx := WithActor(WithPlot(context.Background(), "Plot4_4"), "admin")
	WithComponent("dashboard").InfoContext(ctx, "status committed")
	time.Sleep(20 * time.Millisecond)

	m := lastJSONLine(t, fpath)
	if m["plot"] != "Plot4_4" || m["actor"] != "admin" {
		t.Fatalf("context attrs missing: %v", m)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PLM_LOG_LEVEL", "warn")
	t.Setenv("PLM_LOG_FORMAT", "json")
	t.Setenv("PLM_LOG_SOURCE", "true")
	t.Setenv("PLM_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("PLM_SURELY_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestPrettyTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")

	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("zoom", 1.25), slog.String("title", "Plot 1"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ERR", "boom", " k=v", "grp.n=42", "grp.zoom=1.25", `grp.title="Plot 1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestPrettyTextHandlerSource(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelInfo, AddSource: true}, w: &buf}
	var pcs [1]uintptr
	runtime.Callers(1, pcs[:])
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "here", pcs[0])); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(buf.String(), " src=") || !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("source missing: %q", buf.String())
	}

	buf.Reset()
	if err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "nowhere", 0)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if strings.Contains(buf.String(), "src=") {
		t.Fatalf("zero pc must not print a source: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARNING": slog.LevelWarn, " error ": slog.LevelError, "": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
