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

// TranscriptFailed is persisted in place of a transcript when the
// sidecar errors out. A podcast carrying this marker may be submitted
// for transcription again; any other non-empty transcript may not.
const TranscriptFailed = "[transcription failed]"

// Transcript is the sidecar's output for one audio file. Words and
// Heatmap are opaque JSON blobs produced by the model and stored
// verbatim for the client player.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      string  `json:"words"`
	Summary    string  `json:"summary"`
	Heatmap    string  `json:"heatmap"`
}

// CanRetranscribe reports whether a stored transcript may be replaced.
func CanRetranscribe(stored string) bool {
	stored = strings.TrimSpace(stored)
	return stored == "" || stored == TranscriptFailed
}

// TranscribeClient calls the speech-to-text sidecar over HTTP.
type TranscribeClient struct {
	baseURL string
	httpc   *http.Client
}

func NewTranscribeClient(baseURL string) *TranscribeClient {
	return &TranscribeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Whole-episode transcription is slow.
		httpc: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *TranscribeClient) Enabled() bool {
	return c != nil && c.baseURL != ""
}

func (c *TranscribeClient) Transcribe(ctx context.Context, audioURL string) (Transcript, error) {
	payload, err := json.Marshal(map[string]string{"audio_url": audioURL})
	if err != nil {
		return Transcript{}, fmt.Errorf("marshal transcribe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(payload))
	if err != nil {
		return Transcript{}, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("call transcribe service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("transcribe service status %d", resp.StatusCode)
	}

	var out Transcript
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Transcript{}, fmt.Errorf("decode transcribe response: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return Transcript{}, fmt.Errorf("transcribe service returned empty text")
	}
	return out, nil
}
