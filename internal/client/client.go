package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultServer = "http://localhost:3000"

// Client is a minimal API client for a running Share Your Sound board.
type Client struct {
	server     string
	httpClient *http.Client
}

// NewClient creates a new board client. If server is empty, it defaults to
// http://localhost:3000.
func NewClient(server string) *Client {
	if server == "" {
		server = defaultServer
	}
	return &Client{
		server: strings.TrimRight(server, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Post is a board entry as returned by GET /api/posts.
type Post struct {
	ID        int64     `json:"id"`
	SongTitle string    `json:"songTitle"`
	SongURL   string    `json:"songUrl"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reports   int       `json:"reports"`
	Platform  string    `json:"platform"`
	EmbedCode string    `json:"embedCode"`
}

// APIError is a non-2xx response from the board.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// SubmitPost shares a song on the board.
func (c *Client) SubmitPost(ctx context.Context, title, songURL string) error {
	body := submitRequest{
		SongTitle: title,
		SongURL:   songURL,
	}

	var resp resultResponse
	if err := c.do(ctx, http.MethodPost, "/post", body, &resp); err != nil {
		return fmt.Errorf("submit post: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("submit post: %s", resp.Error)
	}
	return nil
}

// ListPosts returns the active posts, newest first.
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	var posts []Post
	if err := c.do(ctx, http.MethodGet, "/api/posts", nil, &posts); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// ReportPost files one report against the post. Reporting a post that no
// longer exists succeeds.
func (c *Client) ReportPost(ctx context.Context, id int64) error {
	var resp resultResponse
	if err := c.do(ctx, http.MethodPost, "/report/"+strconv.FormatInt(id, 10), nil, &resp); err != nil {
		return fmt.Errorf("report post: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("report post %d: rejected", id)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// errorMessage prefers the board's JSON error field over the raw body.
func errorMessage(body []byte) string {
	var resp resultResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != "" {
		return resp.Error
	}
	return strings.TrimSpace(string(body))
}

type submitRequest struct {
	SongTitle string `json:"songTitle"`
	SongURL   string `json:"songUrl"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
