// Package client provides a Go client library for svcrund's invoke API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a running svcrund server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates a new svcrund API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// InvokeRequest overrides the registered service's code for this call, if
// CodeOverride is non-empty, and carries any request body the service
// itself should see on its stdin.
type InvokeRequest struct {
	CodeOverride string
	Body         io.Reader
}

// Invoke calls POST /v1/services/{serviceID}/invoke and returns the
// response body verbatim: svcrund streams a service's stdout directly, so
// there is no structured envelope to decode here, unlike Healthz.
func (c *Client) Invoke(ctx context.Context, serviceID string, req InvokeRequest) (string, error) {
	path := "/v1/services/" + url.PathEscape(serviceID) + "/invoke"
	if req.CodeOverride != "" {
		path += "?code=" + url.QueryEscape(req.CodeOverride)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, req.Body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.parseError(resp.Status, body)
	}

	return string(body), nil
}

// HealthStatus is the decoded response from GET /healthz.
type HealthStatus struct {
	Status string `json:"status"`
}

// Healthz calls GET /healthz.
func (c *Client) Healthz(ctx context.Context) (*HealthStatus, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, c.parseError(resp.Status, body)
	}

	var result HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doRequest makes an authenticated HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// parseError builds an error from a non-2xx response's status and body.
func (c *Client) parseError(status string, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("%s: %s", status, errResp.Error)
	}
	return fmt.Errorf("%s: %s", status, bytes.TrimSpace(body))
}
