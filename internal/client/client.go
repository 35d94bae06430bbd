// Package client talks to a running planner server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atinyakov/estakaadi/internal/middleware"
	"github.com/atinyakov/estakaadi/internal/models"
	"github.com/atinyakov/estakaadi/internal/service"
)

// Client issues admin requests on behalf of Actor.
type Client struct {
	BaseURL string
	Actor   string
	HTTP    *http.Client
}

// New returns a Client for baseURL using a plain HTTP client.
func New(baseURL, actor string) *Client {
	return &Client{
		BaseURL: baseURL,
		Actor:   actor,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Export downloads the export document as raw JSON.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/api/export", nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Import uploads raw as an import document.
func (c *Client) Import(ctx context.Context, raw []byte) error {
	return c.do(ctx, http.MethodPost, "/api/import", raw, nil)
}

// Stats fetches storage statistics.
func (c *Client) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	err := c.getJSON(ctx, "/api/stats", &st)
	return st, err
}

// Logs fetches audit entries matching filter, newest first.
func (c *Client) Logs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, error) {
	q := url.Values{}
	if filter.Actor != "" {
		q.Set("actor", filter.Actor)
	}
	if filter.Action != "" {
		q.Set("action", filter.Action)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var entries []models.LogEntry
	err := c.getJSON(ctx, path, &entries)
	return entries, err
}

// Backups lists the pre-import snapshots.
func (c *Client) Backups(ctx context.Context) ([]service.Backup, error) {
	var list []service.Backup
	err := c.getJSON(ctx, "/api/backups", &list)
	return list, err
}

// Restore replaces all data with the snapshot stored under key.
func (c *Client) Restore(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/api/backups/"+url.PathEscape(key)+"/restore", nil, nil)
}

// Clear empties every collection. The server keeps a backup first.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/collections", nil, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, path, nil, &buf); err != nil {
		return err
	}
	if err := json.Unmarshal(buf.Bytes(), v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out io.Writer) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Actor != "" {
		req.Header.Set(middleware.ActorHeader, c.Actor)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}
	if out != nil {
		if _, err := io.Copy(out, resp.Body); err != nil {
			return fmt.Errorf("read response: %w", err)
		}
	}
	return nil
}
