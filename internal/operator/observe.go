// Package operator is a client for a running gridsim API. It observes world
// state, issues attack/recovery commands through the admin endpoints, and
// grades overall grid health.
package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/talgya/gridsim/internal/engine"
	"github.com/talgya/gridsim/internal/persistence"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name          string         `json:"name"`
	RunID         string         `json:"run_id"`
	Speed         float64        `json:"speed"`
	Running       bool           `json:"running"`
	StreamClients int            `json:"stream_clients"`
	Summary       engine.Summary `json:"summary"`
}

// Observer fetches world state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status fetches the current summary.
func (o *Observer) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := o.fetchJSON(ctx, "/api/v1/status", &s); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	return &s, nil
}

// History fetches persisted summaries for from <= tick <= to. A zero to
// means no upper bound.
func (o *Observer) History(ctx context.Context, from, to uint64, limit int) ([]persistence.StatsRow, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	if to > 0 {
		q.Set("to", strconv.FormatUint(to, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows []persistence.StatsRow
	if err := o.fetchJSON(ctx, "/api/v1/stats/history?"+q.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("fetch stats history: %w", err)
	}
	return rows, nil
}

// Graph fetches the full building and edge projection.
func (o *Observer) Graph(ctx context.Context) (*engine.GraphView, error) {
	var g engine.GraphView
	if err := o.fetchJSON(ctx, "/api/v1/graph", &g); err != nil {
		return nil, fmt.Errorf("fetch graph: %w", err)
	}
	return &g, nil
}

// Events fetches up to limit recent events, optionally of one category.
func (o *Observer) Events(ctx context.Context, category string, limit int) ([]engine.Event, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var events []engine.Event
	if err := o.fetchJSON(ctx, "/api/v1/events?"+q.Encode(), &events); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	return events, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
