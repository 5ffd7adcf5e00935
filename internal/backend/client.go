/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"plotmap/internal/domain"
)

// Client talks to a plotmap server from a desktop seat.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx server response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("server: %d %s", e.Status, e.Message) }

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return nil, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Login obtains a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", LoginRequest{Username: username, Password: password}, &out); err != nil {
		return out, err
	}
	c.Token = out.Token
	return out, nil
}

func (c *Client) Plots(ctx context.Context) ([]domain.Plot, error) {
	var list []domain.Plot
	err := c.doJSON(ctx, http.MethodGet, "/api/plots", nil, &list)
	return list, err
}

func (c *Client) Plot(ctx context.Context, id string) (domain.Plot, error) {
	var p domain.Plot
	err := c.doJSON(ctx, http.MethodGet, "/api/plots/"+url.PathEscape(id), nil, &p)
	return p, err
}

// SetStatus commits a status and returns the updated plot.
func (c *Client) SetStatus(ctx context.Context, id string, st domain.Status) (domain.Plot, error) {
	var p domain.Plot
	err := c.doJSON(ctx, http.MethodPut, "/api/plots/"+url.PathEscape(id)+"/status", StatusRequest{Status: st}, &p)
	return p, err
}

func (c *Client) Customers(ctx context.Context, plotID string) ([]domain.Customer, error) {
	var list []domain.Customer
	err := c.doJSON(ctx, http.MethodGet, "/api/plots/"+url.PathEscape(plotID)+"/customers", nil, &list)
	return list, err
}

// SaveCustomer stores cust and returns it with server-assigned fields.
func (c *Client) SaveCustomer(ctx context.Context, cust domain.Customer) (domain.Customer, error) {
	var out domain.Customer
	err := c.doJSON(ctx, http.MethodPost, "/api/customers", cust, &out)
	return out, err
}

// ExportCSV streams the spreadsheet export into w.
func (c *Client) ExportCSV(ctx context.Context, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/export.csv", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}
