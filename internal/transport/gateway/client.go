package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-client/internal/domain"
)

// TokenStore is the durable session storage the gateway reads the bearer
// token from and clears on unauthorized responses.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Client is the HTTP boundary to the quiz backend.
type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore

	mu             sync.RWMutex
	onUnauthorized func()
}

func New(baseURL string, timeout time.Duration, store TokenStore) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{Timeout: timeout}, store)
}

// NewWithHTTPClient lets callers supply their own transport.
func NewWithHTTPClient(baseURL string, hc *http.Client, store TokenStore) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		store:   store,
	}
}

// OnUnauthorized registers a hook fired after a 401 has cleared storage.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

type requestKind int

const (
	kindSession requestKind = iota
	kindLogin
	kindReset
	kindLogout
)

type request struct {
	kind   requestKind
	method string
	path   string
	query  url.Values
	body   any
	token  string // overrides the stored token when set
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		buf, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", r.method, r.path, err)
		}
		body = bytes.NewReader(buf)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", r.method, r.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	token := r.token
	if token == "" {
		token = c.storedToken(ctx)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w (%v)", r.method, r.path, domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(ctx, r, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
	}
	return nil
}

func (c *Client) statusError(ctx context.Context, r request, resp *http.Response) error {
	msg := readMessage(resp.Body)
	status := resp.StatusCode

	switch {
	case r.kind == kindLogin && status == http.StatusUnauthorized:
		return domain.ErrInvalidCredentials
	case r.kind == kindReset && (status == http.StatusBadRequest || status == http.StatusUnauthorized):
		return domain.ErrInvalidResetToken
	case status == http.StatusUnauthorized:
		if r.kind == kindSession {
			c.expire(ctx)
		}
		return fmt.Errorf("%s %s: %w", r.method, r.path, domain.ErrUnauthorized)
	case status == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", r.method, r.path, domain.ErrForbidden)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", r.method, r.path, domain.ErrNotFound)
	default:
		return &domain.APIError{Status: status, Message: msg}
	}
}

// expire clears the session keys locally. Redirecting is left to the next
// route guard evaluation.
func (c *Client) expire(ctx context.Context) {
	if err := c.store.Delete(context.WithoutCancel(ctx), domain.SessionKeys...); err != nil {
		log.Printf("clear session after unauthorized response: %v", err)
	}
	c.mu.RLock()
	hook := c.onUnauthorized
	c.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

func (c *Client) storedToken(ctx context.Context) string {
	if c.store == nil {
		return ""
	}
	token, ok, err := c.store.Get(ctx, domain.KeyToken)
	if err != nil {
		log.Printf("read session token: %v", err)
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

// readMessage extracts a human readable message from an error body: a JSON
// object with message or error, or the raw text.
func readMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		switch e := payload.Error.(type) {
		case string:
			return e
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				return m
			}
		}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(raw))
}

func segment(id string) string {
	return url.PathEscape(id)
}
