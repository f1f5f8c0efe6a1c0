// Package upstream is the REST client for the product backend that owns the
// integration catalog, the per-user integration records, live connection
// status and the connect/disconnect endpoints.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

const DefaultTimeout = 30 * time.Second

type accessTokenKey struct{}

// WithAccessToken attaches the caller's credentials to ctx. Every request made
// with that context forwards them as a bearer token.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger
}

func New(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, log)
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client, log logrus.FieldLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log.WithField("component", "upstream"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type ConnectResponse struct {
	Status     string `json:"status"`
	ToolsCount *int   `json:"toolsCount,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (r ConnectResponse) Connected() bool {
	return r.Status == string(integration.TestConnected)
}

type CreateCustomRequest struct {
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	ServerURL    string               `json:"server_url"`
	RequiresAuth *bool                `json:"requires_auth,omitempty"`
	AuthType     integration.AuthType `json:"auth_type,omitempty"`
	IsPublic     *bool                `json:"is_public,omitempty"`
}

type CreateCustomResponse struct {
	Status        string                            `json:"status"`
	Message       string                            `json:"message"`
	IntegrationID string                            `json:"integrationId"`
	Name          string                            `json:"name"`
	Connection    *integration.ConnectionTestResult `json:"connection,omitempty"`
}

// Catalog fetches the platform integration descriptors.
func (c *Client) Catalog(ctx context.Context) ([]integration.Descriptor, error) {
	var body struct {
		Integrations []integration.Descriptor `json:"integrations"`
	}
	if err := c.do(ctx, "fetch catalog", http.MethodGet, "/integrations/config", nil, &body); err != nil {
		return nil, err
	}
	return nonNil(body.Integrations), nil
}

// Statuses probes live connection status. It always returns a non-nil slice;
// on failure the slice is empty and the error is a *DegradedReadError.
func (c *Client) Statuses(ctx context.Context) ([]integration.ConnectionStatus, error) {
	var body struct {
		Integrations []integration.ConnectionStatus `json:"integrations"`
	}
	if err := c.do(ctx, "fetch status", http.MethodGet, "/integrations/status", nil, &body); err != nil {
		return []integration.ConnectionStatus{}, &DegradedReadError{Err: err}
	}
	return nonNil(body.Integrations), nil
}

// UserIntegrations fetches the integrations the current user owns or added.
func (c *Client) UserIntegrations(ctx context.Context) ([]integration.UserRecord, error) {
	records, _, err := c.UserIntegrationsPage(ctx)
	return records, err
}

func (c *Client) UserIntegrationsPage(ctx context.Context) ([]integration.UserRecord, int, error) {
	var body struct {
		Integrations []integration.UserRecord `json:"integrations"`
		Total        int                      `json:"total"`
	}
	if err := c.do(ctx, "fetch user integrations", http.MethodGet, "/integrations/user", nil, &body); err != nil {
		return nil, 0, err
	}
	return nonNil(body.Integrations), body.Total, nil
}

// Tools lists the tools currently exposed to the user.
func (c *Client) Tools(ctx context.Context) ([]integration.Tool, error) {
	var body struct {
		Tools []integration.Tool `json:"tools"`
	}
	if err := c.do(ctx, "fetch tools", http.MethodGet, "/tools", nil, &body); err != nil {
		return nil, err
	}
	return nonNil(body.Tools), nil
}

// ConnectMCP connects an MCP integration with a bearer token.
func (c *Client) ConnectMCP(ctx context.Context, id, bearerToken string) (ConnectResponse, error) {
	payload := map[string]string{"bearer_token": bearerToken}
	var resp ConnectResponse
	err := c.do(ctx, "connect "+id, http.MethodPost, "/mcp/connect/"+url.PathEscape(id), payload, &resp)
	return resp, err
}

func (c *Client) Disconnect(ctx context.Context, id string) error {
	return c.do(ctx, "disconnect "+id, http.MethodDelete, "/integrations/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateCustom(ctx context.Context, req CreateCustomRequest) (CreateCustomResponse, error) {
	var resp CreateCustomResponse
	err := c.do(ctx, "create custom integration", http.MethodPost, "/integrations/custom", req, &resp)
	return resp, err
}

func (c *Client) DeleteCustom(ctx context.Context, id string) error {
	return c.do(ctx, "delete "+id, http.MethodDelete, "/integrations/custom/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Publish(ctx context.Context, id string) error {
	return c.do(ctx, "publish "+id, http.MethodPost, "/integrations/custom/"+url.PathEscape(id)+"/publish", nil, nil)
}

func (c *Client) Unpublish(ctx context.Context, id string) error {
	return c.do(ctx, "unpublish "+id, http.MethodDelete, "/integrations/custom/"+url.PathEscape(id)+"/publish", nil, nil)
}

// Ping checks that the backend answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/integrations/config", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "ping", Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &NetworkError{Op: "ping", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := accessToken(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if path == "/integrations/status" {
		req.Header.Set("Cache-Control", "no-store")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Debug("upstream request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &NetworkError{Op: op, Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		if err == io.EOF {
			return nil
		}
		return &NetworkError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorMessage extracts a readable message from the error bodies the backend
// returns ({"detail": ...}, {"error": ...} or {"message": ...}).
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, key := range []string{"detail", "error", "message"} {
		if value, ok := parsed[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
