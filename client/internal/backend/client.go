// Package backend is the client SDK for the NovaP2P gateway: sessions,
// the depositor directory, the account store and its change feed.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
)

// Client talks to one gateway on behalf of at most one signed-in identity.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	group   singleflight.Group

	mu        sync.RWMutex
	session   *models.Session
	listeners map[int]func(*models.Session)
	nextID    int
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. It must not set a
// Timeout, or change streams are cut off.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request except change streams.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{},
		timeout:   15 * time.Second,
		listeners: make(map[int]func(*models.Session)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Message string            `json:"message"`
	Details []errs.FieldError `json:"details"`
}

// apiError is a non-2xx response. It unwraps to the sentinel matching its
// status, so callers can use errors.Is(err, errs.ErrNotFound).
type apiError struct {
	Status  int
	Message string
	Fields  []errs.FieldError
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

func (e *apiError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusConflict:
		return errs.ErrEmailTaken
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return errs.ErrStoreUnavailable
	}
	return nil
}

// asValidation turns a 400 carrying field details into a ValidationError.
func asValidation(err error) (*errs.ValidationError, bool) {
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusBadRequest {
		return &errs.ValidationError{Fields: ae.Fields, Err: ae}, true
	}
	return nil, false
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload errorResponse
	_ = json.Unmarshal(body, &payload)
	return &apiError{Status: resp.StatusCode, Message: payload.Message, Fields: payload.Details}
}

// newRequest builds a request against the gateway, attaching the bearer
// token when signed in.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends one request and decodes a 2xx body into out, if given.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
