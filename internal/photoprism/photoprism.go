// Package photoprism reads pictures from a PhotoPrism library so they can be
// fingerprinted and queued like local files.
package photoprism

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to the PhotoPrism REST API
type Client struct {
	baseURL       *url.URL
	http          *http.Client
	token         string
	downloadToken string
}

// New logs in with username and password
func New(ctx context.Context, rawURL, username, password string) (*Client, error) {
	c, err := newClient(rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.auth(ctx, username, password); err != nil {
		return nil, fmt.Errorf("could not authenticate: %w", err)
	}
	return c, nil
}

// NewFromToken reuses an existing session
func NewFromToken(rawURL, token, downloadToken string) (*Client, error) {
	c, err := newClient(rawURL)
	if err != nil {
		return nil, err
	}
	c.token = token
	c.downloadToken = downloadToken
	return c, nil
}

func newClient(rawURL string) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(rawURL, "/") + "/api/v1")
	if err != nil {
		return nil, fmt.Errorf("invalid PhotoPrism URL: %w", err)
	}
	return &Client{baseURL: parsed, http: http.DefaultClient}, nil
}

// resolveURL joins path segments onto the API URL. A query string on the
// last segment is kept.
func (c *Client) resolveURL(pathSegments ...string) string {
	if len(pathSegments) == 0 {
		return c.baseURL.String()
	}
	last := pathSegments[len(pathSegments)-1]
	if pathPart, query, ok := strings.Cut(last, "?"); ok {
		pathSegments[len(pathSegments)-1] = pathPart
		result := c.baseURL.JoinPath(pathSegments...)
		result.RawQuery = query
		return result.String()
	}
	return c.baseURL.JoinPath(pathSegments...).String()
}

// sessionResponse holds the parts of the session payload the client needs
type sessionResponse struct {
	accessToken   string
	downloadToken string
}

func (s *sessionResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal session response: %w", err)
	}
	_ = json.Unmarshal(raw["access_token"], &s.accessToken)

	var cfg map[string]json.RawMessage
	if err := json.Unmarshal(raw["config"], &cfg); err == nil {
		_ = json.Unmarshal(cfg["downloadToken"], &s.downloadToken)
	}
	return nil
}

func (c *Client) auth(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("could not marshal input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL("sessions"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the parsed base URL
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return fmt.Errorf("could not decode session: %w", err)
	}
	if session.accessToken == "" {
		return fmt.Errorf("session response carries no access token")
	}
	c.token = session.accessToken
	c.downloadToken = session.downloadToken
	return nil
}

// Logout deletes the current session
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.resolveURL("session"), nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the parsed base URL
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	c.token = ""
	c.downloadToken = ""
	return nil
}

// StatusError is returned for unexpected HTTP status codes
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// readErrorBody reads the response body for error messages
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(could not read error body)"
	}
	return strings.TrimSpace(string(body))
}
