// Package upload sends offline-scored session summaries to a RepCoach server
// and remembers which recordings were already sent.
package upload

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

	"github.com/claude/repcoach/internal/models"
)

// MaxAttempts is the number of tries SendSession makes before giving up.
const MaxAttempts = 3

// errPermanent marks responses that retrying cannot fix.
var errPermanent = errors.New("rejected by server")

// Client sends session summaries to the RepCoach server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the RepCoach server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// uploadResult mirrors the server's POST /api/v1/history response.
type uploadResult struct {
	Inserted bool `json:"inserted"`
}

// SendSession POSTs a session summary to the server's history endpoint.
// Retries up to 3 times with exponential backoff on transport and 5xx
// failures. Returns false when the server already had the session.
func (c *Client) SendSession(ctx context.Context, row models.SessionRow) (bool, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return false, fmt.Errorf("marshaling session: %w", err)
	}

	var lastErr error
	for attempt := range MaxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		inserted, err := c.post(ctx, data)
		if err == nil {
			return inserted, nil
		}
		if errors.Is(err, errPermanent) {
			return false, err
		}
		lastErr = err
	}

	return false, fmt.Errorf("after %d attempts: %w", MaxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, data []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/v1/history", bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var res uploadResult
		if err := json.Unmarshal(body, &res); err != nil {
			return false, fmt.Errorf("decoding upload response: %w", err)
		}
		return res.Inserted, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("%w (status %d): %s", errPermanent, resp.StatusCode, bytes.TrimSpace(body))
	default:
		return false, fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}
}
