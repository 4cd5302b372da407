// Package profile is a client for the backend user-profile REST API.
package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-social-session/metrics"
)

var (
	ErrNoToken     = errors.New("no bearer token set")
	ErrEmptyUpdate = errors.New("profile update has no changes")
)

// APIError is a non-2xx response. Message comes from the {"message": ...}
// envelope, or a generic fallback when there is none.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

func fallbackMessage(status int) string {
	return fmt.Sprintf("request failed with status %d", status)
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithMetrics(recorder metrics.Recorder) ClientOption {
	return func(c *Client) {
		c.metrics = recorder
	}
}

// Client maps profile operations onto HTTP requests. It holds the bearer
// token but never refreshes it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	metrics    metrics.Recorder

	mu    sync.RWMutex
	token string
}

func New(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "[profile.New] invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("[profile.New] base url must be http(s), got %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    30 * time.Second,
		metrics:    metrics.Noop{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) ClearToken() {
	c.SetToken("")
}

func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", ErrNoToken
	}
	return c.token, nil
}

type userEnvelope struct {
	Data struct {
		User *User `json:"user"`
	} `json:"data"`
}

type errorEnvelope struct {
	Message string `json:"message"`
}

// do sends one request and decodes the {"data":{"user":...}} envelope into
// a User when wantUser is set.
func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader, contentType string, wantUser bool) (*User, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.%s]", operation)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.%s] build request", operation)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordProfileRequest(operation, 0, time.Since(start))
		return nil, errors.Wrapf(err, "[Client.%s] %s %s", operation, method, path)
	}
	defer resp.Body.Close()
	c.metrics.RecordProfileRequest(operation, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.%s] read response", operation)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp.StatusCode, raw)
	}
	if !wantUser {
		return nil, nil
	}

	var envelope userEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrapf(err, "[Client.%s] decode response", operation)
	}
	if envelope.Data.User == nil {
		return nil, errors.Errorf("[Client.%s] response has no data.user", operation)
	}
	return envelope.Data.User, nil
}

func apiError(status int, raw []byte) *APIError {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && strings.TrimSpace(envelope.Message) != "" {
		return &APIError{StatusCode: status, Message: envelope.Message}
	}
	return &APIError{StatusCode: status, Message: fallbackMessage(status)}
}

// Me fetches the profile of the token's owner.
func (c *Client) Me(ctx context.Context) (*User, error) {
	return c.do(ctx, "Me", http.MethodGet, "/me", nil, "", true)
}

// GetUser fetches another user's public profile.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("[Client.GetUser] id is required")
	}
	return c.do(ctx, "GetUser", http.MethodGet, "/"+url.PathEscape(id), nil, "", true)
}

// DeleteProfileImage removes the profile picture and returns the updated
// profile.
func (c *Client) DeleteProfileImage(ctx context.Context) (*User, error) {
	return c.do(ctx, "DeleteProfileImage", http.MethodDelete, "/profile/image", nil, "", true)
}

// DeleteAccountRequest confirms an account deletion with either the
// account password or a fresh provider id token. Both are optional.
type DeleteAccountRequest struct {
	Password      string `json:"password,omitempty"`
	GoogleIDToken string `json:"googleIdToken,omitempty"`
}

func (c *Client) DeleteAccount(ctx context.Context, req DeleteAccountRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "[Client.DeleteAccount] encode body")
	}
	_, err = c.do(ctx, "DeleteAccount", http.MethodDelete, "/deleteAccount", bytes.NewReader(body), "application/json", false)
	return err
}
