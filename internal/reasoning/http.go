package reasoning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"context"

	"tessera.estate/internal/protocol"
)

// HTTPEngine posts the tick brief to an external reasoning service and
// validates the reply against the narrative schema before trusting a byte
// of it. Any failure just means no narrative this month.
type HTTPEngine struct {
	URL    string
	Token  string
	Client *http.Client
}

func NewHTTPEngine(url, token string) *HTTPEngine {
	return &HTTPEngine{URL: url, Token: token, Client: http.DefaultClient}
}

func (e *HTTPEngine) Narrate(ctx context.Context, brief TickBrief) (protocol.NarrativeResponse, error) {
	var out protocol.NarrativeResponse

	body, err := json.Marshal(brief)
	if err != nil {
		return out, fmt.Errorf("marshal brief: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return out, fmt.Errorf("reasoning call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("reasoning call: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return out, fmt.Errorf("reasoning read: %w", err)
	}
	if err := protocol.ValidateNarrative(raw); err != nil {
		return out, fmt.Errorf("narrative schema: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("narrative decode: %w", err)
	}
	return out, nil
}
