// Package missionapi talks to the agent server's HTTP mission endpoints.
package missionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/user/marketradar/internal/transport"
	"github.com/user/marketradar/internal/types"
)

const (
	DefaultMaxIterations = 50
	MinIterations        = 1
	MaxIterations        = 500
)

// ErrMissionNotFound is returned when the server does not know the mission.
var ErrMissionNotFound = errors.New("mission not found")

// Config holds the agent server connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues mission requests. Nothing is retried.
type Client struct {
	config     Config
	httpClient *http.Client
}

func New(config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StartRequest is the body of POST /mission/start.
type StartRequest struct {
	Goal          string `json:"goal"`
	Headless      bool   `json:"headless"`
	MaxIterations int    `json:"max_iterations"`
}

// Validate trims the goal and applies the iteration default and bounds.
func (r *StartRequest) Validate() error {
	r.Goal = strings.TrimSpace(r.Goal)
	if r.Goal == "" {
		return fmt.Errorf("goal must not be empty")
	}
	if r.MaxIterations == 0 {
		r.MaxIterations = DefaultMaxIterations
	}
	if r.MaxIterations < MinIterations || r.MaxIterations > MaxIterations {
		return fmt.Errorf("max iterations must be between %d and %d, got %d", MinIterations, MaxIterations, r.MaxIterations)
	}
	return nil
}

// RemoteStatus mirrors GET /mission/{id}/status.
type RemoteStatus struct {
	MissionID      string  `json:"mission_id"`
	Goal           string  `json:"goal"`
	IsRunning      bool    `json:"is_running"`
	IsComplete     bool    `json:"is_complete"`
	Error          *string `json:"error"`
	SourcesVisited int     `json:"sources_visited"`
	DataPoints     int     `json:"data_points"`
}

// Start asks the server to accept a mission and returns where to stream it.
// When the server omits the stream URL it is derived from BaseURL.
func (c *Client) Start(ctx context.Context, req StartRequest) (types.MissionHandle, error) {
	if err := req.Validate(); err != nil {
		return types.MissionHandle{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return types.MissionHandle{}, fmt.Errorf("marshaling request: %w", err)
	}

	var handle types.MissionHandle
	if err := c.do(ctx, http.MethodPost, "/mission/start", bytes.NewReader(body), &handle); err != nil {
		return types.MissionHandle{}, fmt.Errorf("start mission: %w", err)
	}
	if handle.ID == "" {
		return types.MissionHandle{}, fmt.Errorf("start mission: response has no mission_id")
	}
	if handle.Endpoint == "" {
		endpoint, err := transport.Endpoint(c.config.BaseURL, string(handle.ID))
		if err != nil {
			return types.MissionHandle{}, fmt.Errorf("start mission: %w", err)
		}
		handle.Endpoint = endpoint
	}
	return handle, nil
}

// Stop asks the server to stop and forget a mission.
func (c *Client) Stop(ctx context.Context, id types.MissionID) error {
	if err := c.do(ctx, http.MethodDelete, "/mission/"+string(id), nil, nil); err != nil {
		return fmt.Errorf("stop mission %s: %w", id.Short(), err)
	}
	return nil
}

// Status fetches the server's view of a mission.
func (c *Client) Status(ctx context.Context, id types.MissionID) (*RemoteStatus, error) {
	var status RemoteStatus
	if err := c.do(ctx, http.MethodGet, "/mission/"+string(id)+"/status", nil, &status); err != nil {
		return nil, fmt.Errorf("mission status %s: %w", id.Short(), err)
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrMissionNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, detail(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// detail extracts FastAPI-style {"detail": ...} messages, falling back to the
// raw body.
func detail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var text string
		if json.Unmarshal(payload.Detail, &text) == nil {
			return text
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(body))
}
