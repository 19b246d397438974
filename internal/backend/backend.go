// Package backend speaks the planning service's HTTP protocol: one
// next-step call per conversational turn plus a health probe. Response
// bodies are decoded leniently into untyped JSON because all shape
// validation happens in the session engine's normalization ladder; a
// non-JSON body is passed through as its raw text so the placeholder
// signature check downstream still sees it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/session"
)

const (
	nextStepPath = "/api/v1/plan/next-step"
	healthPath   = "/health"
)

// Client is the planning backend HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

// New builds a Client for the service at baseURL. A zero timeout leaves
// requests unbounded; a stalled backend then holds its turn open until the
// caller gives up.
func New(baseURL string, timeout time.Duration, log logging.Logger) *Client {
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// NextStep posts one turn request and returns the decoded reply payload.
func (c *Client) NextStep(ctx context.Context, req session.TurnRequest) (*session.TurnReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+nextStepPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building turn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("planning request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading planning response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn(ctx, "planning service rejected turn",
			"status", resp.StatusCode, "session_id", req.SessionID)
		return nil, fmt.Errorf("planning service returned status %d", resp.StatusCode)
	}

	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		payload = string(data)
	}
	return &session.TurnReply{Payload: payload}, nil
}

// Health probes the service's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("planning service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
