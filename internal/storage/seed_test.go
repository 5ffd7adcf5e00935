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
	"os"
	"path/filepath"
	"testing"

	"plotmap/internal/domain"
)

func TestValidateSeed(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		ok   bool
	}{
		{"minimal", `{"plots":[]}`, true},
		{"plot", `{"version":1,"plots":[{"id":"p1","plotNum":1,"price":10,"status":"Sold"}]}`, true},
		{"missing plots", `{"customers":[]}`, false},
		{"empty id", `{"plots":[{"id":""}]}`, false},
		{"negative price", `{"plots":[{"id":"a","price":-5}]}`, false},
		{"customer without name", `{"plots":[],"customers":[{"plotId":"a"}]}`, false},
		{"bad role", `{"plots":[],"users":[{"username":"u","passwordHash":"h","role":"root"}]}`, false},
	}
	for _, tc := range cases {
		err := ValidateSeed([]byte(tc.doc))
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrSchema) {
			t.Fatalf("%s: expected ErrSchema, got %v", tc.name, err)
		}
	}
}

func TestWriteSeedBackupAndFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.json")
	s := &Seed{Plots: samplePlots()}
	if err := WriteSeed(path, s); err != nil {
		t.Fatalf("WriteSeed: %v", err)
	}
	s.Plots[0].Price = 42
	if err := WriteSeed(path, s); err != nil {
		t.Fatalf("WriteSeed second: %v", err)
	}
	ents, err := os.ReadDir(filepath.Join(dir, BackupsDirName))
	if err != nil || len(ents) != 1 {
		t.Fatalf("expected one backup, got %v (%v)", len(ents), err)
	}
	got, err := ReadSeed(path)
	if err != nil {
		t.Fatalf("ReadSeed: %v", err)
	}
	if got.Plots[0].Price != 42 || got.Plots[1].Status != domain.Sold || got.Version != SeedVersion {
		t.Fatalf("unexpected seed: %+v", got)
	}

	// corrupt the current file; the backup (first write) is used
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	got, err = ReadSeed(path)
	if err != nil {
		t.Fatalf("ReadSeed with backup: %v", err)
	}
	if got.Plots[0].Price != 1500000 {
		t.Fatalf("expected backup content, got %+v", got.Plots[0])
	}
}

func TestReadSeedNoBackup(t *testing.T) {
	if _, err := ReadSeed(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected error for missing seed without backups")
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	in := &Seed{
		Plots:     samplePlots(),
		Mediators: []domain.Mediator{{Name: "Kumar"}},
		Customers: []domain.Customer{{PlotID: "p2", Name: "Arun", Mediator: "Kumar", BookingPrice: 5000}},
		Users:     []domain.User{{Username: "admin", PasswordHash: "$2a$10$x", Role: domain.RoleAdmin}},
	}
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "plots.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer sq.Close()
	if err := Import(ctx, sq, in); err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := Export(ctx, sq)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(out.Plots) != 2 || len(out.Customers) != 1 || len(out.Mediators) != 1 || len(out.Users) != 1 {
		t.Fatalf("unexpected export: %+v", out)
	}
	if out.Customers[0].ID == "" || out.Customers[0].Mediator != "Kumar" {
		t.Fatalf("customer lost fields: %+v", out.Customers[0])
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := WriteSeed(path, out); err != nil {
		t.Fatalf("WriteSeed export: %v", err)
	}
	if _, err := ReadSeed(path); err != nil {
		t.Fatalf("exported seed must validate: %v", err)
	}
}
