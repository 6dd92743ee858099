package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"openedu/client/internal/busy"
	"openedu/client/internal/token"
)

const requestIDHeader = "X-Request-Id"

// Client is the backend API client. Every call attaches the stored access
// token as a bearer credential; an authorization failure triggers exactly
// one refresh cycle shared by all concurrent callers, after which each
// failed request is replayed once with the new token.
type Client struct {
	baseURL string
	http    *http.Client
	store   *token.Store
	gauge   *busy.Gauge
	log     zerolog.Logger

	refreshMu  sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
}

type refreshOutcome struct {
	accessToken string
	err         error
}

func NewClient(baseURL string, timeout time.Duration, store *token.Store, gauge *busy.Gauge, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		store:   store,
		gauge:   gauge,
		log:     log,
	}
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Do issues one logical request. The busy gauge counts it once no matter
// how many wire-level attempts (refresh, replay) it takes to settle.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	c.gauge.Add()
	defer c.gauge.Done()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	requestID := uuid.NewString()

	creds, hasCreds := c.store.Get()
	accessToken := ""
	if hasCreds {
		accessToken = creds.AccessToken
	}

	status, respBody, err := c.send(ctx, method, path, payload, accessToken, requestID)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		newToken, refreshErr := c.refresh(ctx)
		if errors.Is(refreshErr, ErrAuthenticationMissing) {
			// No refresh token: the original failure propagates untouched.
			return &StatusError{Code: status, Message: errorMessage(respBody)}
		}
		if refreshErr != nil {
			return refreshErr
		}

		// Replay once with the new token. A second authorization failure
		// propagates as-is; it must never start another refresh cycle.
		status, respBody, err = c.send(ctx, method, path, payload, newToken, requestID)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return &StatusError{Code: status, Message: errorMessage(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, accessToken, requestID string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// refresh runs at most one refresh call at a time. Callers arriving while
// one is in flight wait for its outcome instead of issuing a second call,
// and all of them settle together.
func (c *Client) refresh(ctx context.Context) (string, error) {
	creds, ok := c.store.Get()
	if !ok || creds.RefreshToken == "" {
		if err := c.store.Clear(); err != nil {
			c.log.Warn().Err(err).Msg("clear credentials failed")
		}
		return "", ErrAuthenticationMissing
	}

	c.refreshMu.Lock()
	if c.refreshing {
		waiter := make(chan refreshOutcome, 1)
		c.waiters = append(c.waiters, waiter)
		c.refreshMu.Unlock()

		select {
		case outcome := <-waiter:
			return outcome.accessToken, outcome.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c.refreshing = true
	c.refreshMu.Unlock()

	outcome := c.doRefresh(ctx, creds)

	c.refreshMu.Lock()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.refreshMu.Unlock()

	for _, w := range waiters {
		w <- outcome
	}
	return outcome.accessToken, outcome.err
}

func (c *Client) doRefresh(ctx context.Context, creds token.Credentials) refreshOutcome {
	payload, err := json.Marshal(refreshRequest{RefreshToken: creds.RefreshToken})
	if err != nil {
		return refreshOutcome{err: fmt.Errorf("marshal refresh request: %w", err)}
	}

	status, respBody, err := c.send(ctx, http.MethodPost, "/auth/refresh", payload, "", uuid.NewString())
	if err != nil {
		// Transport-level failure: the session may still be good, so the
		// credentials are kept for the next attempt.
		return refreshOutcome{err: fmt.Errorf("%w: %v", ErrRefreshFailed, err)}
	}

	if status < 200 || status > 299 {
		if clearErr := c.store.Clear(); clearErr != nil {
			c.log.Warn().Err(clearErr).Msg("clear credentials failed")
		}
		c.log.Warn().Int("status", status).Msg("refresh rejected, session cleared")
		return refreshOutcome{err: fmt.Errorf("%w: %s", ErrRefreshFailed, errorMessage(respBody))}
	}

	var resp refreshResponse
	if err := json.Unmarshal(respBody, &resp); err != nil || resp.AccessToken == "" {
		if clearErr := c.store.Clear(); clearErr != nil {
			c.log.Warn().Err(clearErr).Msg("clear credentials failed")
		}
		return refreshOutcome{err: fmt.Errorf("%w: malformed refresh response", ErrRefreshFailed)}
	}

	next := token.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	// Rotation is optional: a missing refresh token in the response keeps
	// the current one.
	if next.RefreshToken == "" {
		next.RefreshToken = creds.RefreshToken
	}
	if err := c.store.Set(next); err != nil {
		return refreshOutcome{err: fmt.Errorf("persist refreshed credentials: %w", err)}
	}

	c.log.Debug().Msg("access token refreshed")
	return refreshOutcome{accessToken: next.AccessToken}
}

// Refresh exposes the single-flight refresh cycle for the background job
// that renews tokens ahead of expiry.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx)
	return err
}

// Logout revokes the session server-side and clears local credentials.
// The local clear happens even when the revoke call fails; a dead session
// on the backend must never keep the client logged in.
func (c *Client) Logout(ctx context.Context) error {
	revokeErr := c.Post(ctx, "/auth/logout", nil, nil)

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	if revokeErr != nil && !IsUnauthorized(revokeErr) {
		return revokeErr
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
