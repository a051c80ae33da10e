// Package ai wraps the sidecar services that generate persona feedback
// for posts and transcripts for podcast audio.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Feedback is one persona's reaction to a post.
type Feedback struct {
	Persona string `json:"persona"`
	Body    string `json:"body"`
}

// IsEmpty reports whether the sidecar produced nothing usable. Posts
// keep feedback_available=false in that case so clients can retry.
func (f Feedback) IsEmpty() bool {
	return strings.TrimSpace(f.Persona) == "" && strings.TrimSpace(f.Body) == ""
}

// FeedbackClient calls the persona-feedback sidecar over HTTP.
type FeedbackClient struct {
	baseURL string
	httpc   *http.Client
}

func NewFeedbackClient(baseURL string) *FeedbackClient {
	return &FeedbackClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether a sidecar URL was configured.
func (c *FeedbackClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

func (c *FeedbackClient) Generate(ctx context.Context, title, body string) (Feedback, error) {
	payload, err := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
	})
	if err != nil {
		return Feedback{}, fmt.Errorf("marshal feedback request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/feedback", bytes.NewReader(payload))
	if err != nil {
		return Feedback{}, fmt.Errorf("build feedback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Feedback{}, fmt.Errorf("call feedback service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Feedback{}, fmt.Errorf("feedback service status %d", resp.StatusCode)
	}

	var out Feedback
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Feedback{}, fmt.Errorf("decode feedback response: %w", err)
	}
	return out, nil
}
