package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/gridsim/internal/engine"
)

// Actor executes commands via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Attack sends POST /api/v1/attack.
func (a *Actor) Attack(ctx context.Context, target string, severity float64) (*engine.Outcome, error) {
	var o engine.Outcome
	if err := a.post(ctx, "/api/v1/attack", map[string]any{"target": target, "level": severity}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Recover sends POST /api/v1/recovery.
func (a *Actor) Recover(ctx context.Context, target string, level float64) (*engine.Outcome, error) {
	var o engine.Outcome
	if err := a.post(ctx, "/api/v1/recovery", map[string]any{"target": target, "level": level}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetSpeed changes the engine multiplier. Zero pauses.
func (a *Actor) SetSpeed(ctx context.Context, speed float64) (float64, error) {
	var out struct {
		Speed float64 `json:"speed"`
	}
	if err := a.post(ctx, "/api/v1/speed", map[string]any{"speed": speed}, &out); err != nil {
		return 0, err
	}
	return out.Speed, nil
}

// Snapshot asks the server to capture and persist the world.
func (a *Actor) Snapshot(ctx context.Context) (uint64, error) {
	var out struct {
		Tick uint64 `json:"tick"`
	}
	if err := a.post(ctx, "/api/v1/snapshot", nil, &out); err != nil {
		return 0, err
	}
	return out.Tick, nil
}

func (a *Actor) post(ctx context.Context, path string, payload any, target any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s failed (%d): %s", path, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	if err := json.Unmarshal(respBody, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
