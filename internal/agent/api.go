package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIClient talks to the liveness server. It is constructed with its
// destination and carries its own bounded-time HTTP client; there is no
// shared process-wide instance.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type RegisterRequest struct {
	DeviceID       string `json:"deviceId"`
	UserName       string `json:"userName"`
	TimeoutHours   int    `json:"timeoutHours"`
	EmergencyEmail string `json:"emergencyEmail"`
}

type HeartbeatResult struct {
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	WasAlerting   bool      `json:"wasAlerting"`
}

func (c *APIClient) Register(ctx context.Context, req RegisterRequest) error {
	return c.post(ctx, "/api/register", req, nil)
}

func (c *APIClient) Heartbeat(ctx context.Context, deviceID string) (*HeartbeatResult, error) {
	var result HeartbeatResult
	body := map[string]string{"deviceId": deviceID}
	if err := c.post(ctx, "/api/heartbeat", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}
