/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"plotmap/internal/auth"
	"plotmap/internal/dashboard"
	"plotmap/internal/domain"
	"plotmap/internal/export"
	applog "plotmap/internal/log"
	"plotmap/internal/storage"
	"plotmap/internal/version"
)

const maxBody = 1 << 20

// Options configure a Server.
type Options struct {
	Store  storage.Store
	Auth   *auth.Service
	Events Publisher // nil drops events
	Logger *slog.Logger
}

// Server exposes the record store over a JSON API for multi-seat offices.
type Server struct {
	store  storage.Store
	auth   *auth.Service
	events Publisher
	log    *slog.Logger
	mux    *http.ServeMux
}

func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Auth == nil {
		return nil, errors.New("backend: store and auth are required")
	}
	s := &Server{store: opts.Store, auth: opts.Auth, events: opts.Events, log: opts.Logger, mux: http.NewServeMux()}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.log == nil {
		s.log = applog.WithComponent("backend")
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	s.mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(version.String()))
	})
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/plots", s.withAuth(s.handlePlots))
	s.mux.HandleFunc("GET /api/plots/{id}", s.withAuth(s.handlePlot))
	s.mux.HandleFunc("PUT /api/plots/{id}/status", s.withAuth(s.handleSetStatus))
	s.mux.HandleFunc("GET /api/plots/{id}/history", s.withAuth(s.handleHistory))
	s.mux.HandleFunc("GET /api/plots/{id}/customers", s.withAuth(s.handleCustomers))
	s.mux.HandleFunc("POST /api/customers", s.withAuth(s.handleSaveCustomer))
	s.mux.HandleFunc("GET /api/summary", s.withAuth(s.handleSummary))
	s.mux.HandleFunc("GET /api/export.csv", s.withAuth(s.handleExportCSV))
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("server listening", slog.String("addr", addr))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      string      `json:"user"`
	Role      domain.Role `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), clientIP(r), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, err)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: sess.Token, ExpiresAt: sess.Expires, User: sess.User, Role: sess.Role})
}

func (s *Server) handlePlots(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	plots, err := s.store.All(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if plots == nil {
		plots = []domain.Plot{}
	}
	writeJSON(w, http.StatusOK, plots)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	p, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// StatusRequest is the body of PUT /api/plots/{id}/status.
type StatusRequest struct {
	Status domain.Status `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, c *auth.Claims) {
	id := r.PathValue("id")
	var req StatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()
	from, err := s.store.Status(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.SetStatus(ctx, id, req.Status, c.Subject); err != nil {
		writeStoreError(w, err)
		return
	}
	p, err := s.store.Get(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if from != req.Status {
		ev := StatusEvent{PlotID: id, From: from, To: req.Status, Actor: c.Subject, At: time.Now().UTC()}
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := s.events.PublishStatus(pctx, ev); err != nil {
			s.log.Warn("status event not published", slog.String("plot", id), slog.Any("err", err))
		}
		cancel()
		s.log.Info("status changed", slog.String("plot", id), slog.String("to", req.Status.String()), slog.String("actor", c.Subject))
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	h, err := s.store.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if h == nil {
		h = []domain.StatusChange{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	id := r.PathValue("id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	cs, err := s.store.Customers(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if cs == nil {
		cs = []domain.Customer{}
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleSaveCustomer(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	var c domain.Customer
	if err := decodeBody(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SaveCustomer(r.Context(), &c); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	sum, err := dashboard.Summarize(r.Context(), s.store)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	counts := map[string]int{}
	for st, n := range sum.Counts {
		counts[st.String()] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":       sum.Total,
		"counts":      counts,
		"soldValue":   sum.SoldValue,
		"booked":      sum.Booked,
		"received":    sum.Received,
		"outstanding": sum.Outstanding,
		"customers":   sum.Customers,
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request, _ *auth.Claims) {
	d, err := export.Collect(r.Context(), s.store)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="plots.csv"`)
	if err := export.WriteCSV(w, d); err != nil {
		s.log.Error("csv export failed", slog.Any("err", err))
	}
}

func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, c *auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		const prefix = "bearer "
		if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		c, err := s.auth.Verify(strings.TrimSpace(h[len(prefix):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken)
			return
		}
		next(w, r.WithContext(applog.WithActor(r.Context(), c.Subject)), c)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, storage.ErrInvalid):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
