package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client talks to a running server's admin surface over its local-only
// listener. The host in the base URL is a placeholder: every connection
// goes through the socket dialer.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a client for the given admin endpoint (socket path or
// named pipe).
func NewClient(endpoint string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialAdmin(ctx, endpoint)
				},
			},
		},
	}
}

// Health checks that the server answers on the admin surface.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]interface{}
	return c.get(ctx, "/health", &out)
}

// Status returns the server status document.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.get(ctx, "/status", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Endpoints returns the published endpoint summaries.
func (c *Client) Endpoints(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.get(ctx, "/endpoints", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reload asks the server to start a hot reload and returns the reload
// request id.
func (c *Client) Reload(ctx context.Context) (string, error) {
	var out struct {
		Status          string `json:"status"`
		ReloadRequestID string `json:"reload_request_id"`
	}
	if err := c.post(ctx, "/reload", nil, &out); err != nil {
		return "", err
	}
	return out.ReloadRequestID, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://mxcp"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://mxcp"+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			return fmt.Errorf("%s: %s", envelope.ErrorCode, envelope.Message)
		}
		return fmt.Errorf("admin request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
