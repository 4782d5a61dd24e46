package tui

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

	"github.com/starford/ansuz/internal/answer"
)

// Client talks to the Ansuz HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient returns a client for the API served at addr (e.g. http://localhost:8080).
// An empty token sends no Authorization header.
func NewClient(addr, token string) *Client {
	return &Client{
		base:  strings.TrimRight(addr, "/") + "/api",
		token: token,
		http:  &http.Client{Timeout: 3 * time.Minute},
	}
}

// Ask sends a question. A failed generation still returns the response,
// carrying the error text and the retrieved sources.
func (c *Client) Ask(ctx context.Context, sessionID, query string) (*answer.Response, error) {
	body, _ := json.Marshal(map[string]string{"query": query, "session_id": sessionID})
	var resp answer.Response
	status, err := c.do(ctx, http.MethodPost, "/query", body, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadGateway {
		return &resp, fmt.Errorf("generation failed: %s", resp.Error)
	}
	return &resp, nil
}

// SaveExport writes the session transcript into the vault and returns its path.
func (c *Client) SaveExport(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/export", nil, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tui: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("tui: read response: %w", err)
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusBadGateway {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return resp.StatusCode, errors.New(e.Error)
		}
		return resp.StatusCode, fmt.Errorf("tui: %s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("tui: decode response: %w", err)
	}
	return resp.StatusCode, nil
}
