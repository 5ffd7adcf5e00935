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
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"plotmap/internal/domain"
	applog "plotmap/internal/log"
)

const (
	SeedVersion    = 1
	BackupsDirName = "backups"
)

//go:embed seed.schema.json
var seedSchema []byte

// ErrSchema is returned when a seed document does not match the seed schema.
var ErrSchema = errors.New("seed does not match schema")

// Seed is the portable JSON form of a store: the plot sheet plus sales records.
type Seed struct {
	Version   int               `json:"version"`
	Plots     []domain.Plot     `json:"plots"`
	Customers []domain.Customer `json:"customers,omitempty"`
	Mediators []domain.Mediator `json:"mediators,omitempty"`
	Users     []domain.User     `json:"users,omitempty"`
}

// ValidateSeed checks raw seed bytes against the embedded schema.
func ValidateSeed(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(seedSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSchema, strings.Join(msgs, "; "))
	}
	return nil
}

// DecodeSeed validates and decodes seed bytes.
func DecodeSeed(data []byte) (*Seed, error) {
	if err := ValidateSeed(data); err != nil {
		return nil, err
	}
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if s.Version == 0 {
		s.Version = SeedVersion
	}
	return &s, nil
}

// ReadSeed loads the seed at path. If the file is missing or broken, the newest
// backup next to it is used instead.
func ReadSeed(path string) (*Seed, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "seed_read").With(slog.String("path", path))
	b, err := os.ReadFile(path)
	if err != nil {
		s, berr := readLatestBackup(path)
		if berr != nil {
			return nil, fmt.Errorf("read seed: %w; backup attempt: %v", err, berr)
		}
		l.Warn("seed unreadable, using backup", slog.Any("err", err))
		return s, nil
	}
	s, derr := DecodeSeed(b)
	if derr != nil {
		bs, berr := readLatestBackup(path)
		if berr != nil {
			return nil, fmt.Errorf("decode seed: %w; backup attempt: %v", derr, berr)
		}
		l.Warn("seed invalid, using backup", slog.Any("err", derr))
		return bs, nil
	}
	return s, nil
}

// WriteSeed writes s to path through a temp file and rename. An existing file
// is first copied into a timestamped backup.
func WriteSeed(path string, s *Seed) error {
	if s == nil {
		return errors.New("nil seed")
	}
	if s.Version == 0 {
		s.Version = SeedVersion
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seed: %w", err)
	}
	data = append(data, '\n')
	if err := ValidateSeed(data); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create seed dir: %w", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(dir, BackupsDirName, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current seed: %w", cerr)
		}
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp seed: %w", werr)
	}
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace seed: %w", rerr)
	}
	return nil
}

// Import loads every record of s into st. Plots go first so customers can
// reference them. Statuses are written directly without history.
func Import(ctx context.Context, st Store, s *Seed) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "seed_import")
	for _, p := range s.Plots {
		if err := st.SavePlot(ctx, p); err != nil {
			return fmt.Errorf("import plot %s: %w", p.ID, err)
		}
	}
	for _, m := range s.Mediators {
		if err := st.SaveMediator(ctx, m); err != nil {
			return fmt.Errorf("import mediator %s: %w", m.Name, err)
		}
	}
	for i := range s.Customers {
		c := s.Customers[i]
		if err := st.SaveCustomer(ctx, &c); err != nil {
			return fmt.Errorf("import customer %s: %w", c.Name, err)
		}
	}
	for _, u := range s.Users {
		if err := st.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("import user %s: %w", u.Username, err)
		}
	}
	l.Info("seed imported",
		slog.Int("plots", len(s.Plots)),
		slog.Int("customers", len(s.Customers)),
		slog.Int("mediators", len(s.Mediators)),
		slog.Int("users", len(s.Users)),
	)
	return nil
}

// Export reads the whole store into a Seed.
func Export(ctx context.Context, st Store) (*Seed, error) {
	plots, err := st.All(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := st.Customers(ctx, AllCustomers)
	if err != nil {
		return nil, err
	}
	ms, err := st.Mediators(ctx)
	if err != nil {
		return nil, err
	}
	us, err := st.Users(ctx)
	if err != nil {
		return nil, err
	}
	if plots == nil {
		plots = []domain.Plot{}
	}
	return &Seed{Version: SeedVersion, Plots: plots, Customers: cs, Mediators: ms, Users: us}, nil
}

func readLatestBackup(path string) (*Seed, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	base := filepath.Base(path)
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	b, err := os.ReadFile(candidates[len(candidates)-1])
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	return DecodeSeed(b)
}

// writeFileSync writes data and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
