// Package wechat implements the WeChat Official Account frontend: the inbound
// webhook handler and the outbound customer-service message client.
//
// The platform requires a webhook response within five seconds and shows the
// user a "service unavailable" prompt when the deadline is missed, so replies
// that involve a model call are never sent inline — the webhook is answered
// with a bare "success" and the reply is pushed later through this client.
package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yichens/wxrelay"
)

// DefaultAPIBase is the production platform endpoint.
const DefaultAPIBase = "https://api.weixin.qq.com"

const (
	defaultSegmentDelay = 500 * time.Millisecond
	defaultRetryDelay   = 5 * time.Second
)

// Client pushes customer-service text messages to users. Messages are
// segmented to the platform byte ceiling, paced to respect the push rate
// limit, and retried once end-to-end on transport failure.
//
// The whole-message retry can re-send segments that were already delivered
// before the failure; acceptable at this volume, and the journal makes the
// duplicate attempts auditable.
type Client struct {
	apiBase      string
	httpClient   *http.Client
	tokens       *TokenSource
	logger       *slog.Logger
	journal      wxrelay.Journal
	segmentBytes int
	segmentDelay time.Duration
	retryDelay   time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for pushes.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the structured logger for delivery events.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithJournal records every delivery outcome in j.
func WithJournal(j wxrelay.Journal) ClientOption {
	return func(c *Client) { c.journal = j }
}

// WithSegmentBytes overrides the per-segment byte ceiling (default 2000).
func WithSegmentBytes(n int) ClientOption {
	return func(c *Client) { c.segmentBytes = n }
}

// WithSegmentDelay overrides the pause between segment pushes (default 500ms).
func WithSegmentDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.segmentDelay = d }
}

// WithRetryDelay overrides the pause before the whole-message transport retry
// (default 5s).
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// NewClient creates a delivery client using tokens for push authorization.
func NewClient(tokens *TokenSource, apiBase string, opts ...ClientOption) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	c := &Client{
		apiBase:      apiBase,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		tokens:       tokens,
		logger:       wxrelay.NopLogger,
		segmentBytes: DefaultSegmentBytes,
		segmentDelay: defaultSegmentDelay,
		retryDelay:   defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transportError marks a network-level push failure, as opposed to a platform
// rejection. Only transport failures trigger the whole-message retry.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// Send delivers text to user, segmented and best-effort. On a transport
// failure the entire message is retried once after a fixed delay; bounded
// loop, no recursion. The error returned after exhausted retries is also
// recorded in the journal — callers generally log it and move on, since there
// is no way to surface a delivery failure to the user.
func (c *Client) Send(ctx context.Context, user, text string) error {
	var lastErr error
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			c.logger.Warn("push transport failure, retrying message",
				"user", user, "delay", c.retryDelay, "error", lastErr)
			if err := sleepCtx(ctx, c.retryDelay); err != nil {
				lastErr = err
				break
			}
		}

		segments, size, err := c.sendOnce(ctx, user, text)
		if err == nil {
			c.record(ctx, user, segments, size, "ok", "")
			return nil
		}
		lastErr = err

		var te *transportError
		if !errors.As(err, &te) {
			break
		}
	}

	c.logger.Error("message delivery failed", "user", user, "error", lastErr)
	c.record(ctx, user, 0, 0, "error", lastErr.Error())
	return lastErr
}

// sendOnce pushes every non-blank segment of text, returning the count and
// byte size delivered.
func (c *Client) sendOnce(ctx context.Context, user, text string) (int, int, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("wechat: no access token: %w", err)
	}

	sent, size := 0, 0
	for _, seg := range SplitMessage(text, c.segmentBytes) {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		if sent > 0 {
			if err := sleepCtx(ctx, c.segmentDelay); err != nil {
				return sent, size, err
			}
		}
		if err := c.pushSegment(ctx, &token, user, seg); err != nil {
			return sent, size, err
		}
		sent++
		size += len(seg)
	}
	return sent, size, nil
}

// pushSegment pushes one segment. A credential rejection invalidates the
// token cache and retries this segment once with a fresh token; other
// platform rejections are logged and the segment is dropped so the rest of
// the message still goes out.
func (c *Client) pushSegment(ctx context.Context, token *string, user, seg string) error {
	resp, err := c.doPush(ctx, *token, user, seg)
	if err != nil {
		return &transportError{err}
	}
	if resp.ErrCode == 0 {
		return nil
	}

	c.logger.Error("push rejected", "user", user, "errcode", resp.ErrCode, "errmsg", resp.ErrMsg)

	if resp.ErrCode == errCodeInvalidCredential || resp.ErrCode == errCodeTokenExpired {
		c.tokens.Invalidate()
		fresh, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("wechat: token refresh after rejection: %w", err)
		}
		*token = fresh

		retry, err := c.doPush(ctx, fresh, user, seg)
		if err != nil {
			return &transportError{err}
		}
		if retry.ErrCode != 0 {
			return fmt.Errorf("wechat: push rejected after token refresh: errcode %d: %s",
				retry.ErrCode, retry.ErrMsg)
		}
	}
	return nil
}

// doPush performs one customer-service send API call.
func (c *Client) doPush(ctx context.Context, token, user, seg string) (pushResponse, error) {
	payload, err := json.Marshal(pushRequest{
		ToUser:  user,
		MsgType: "text",
		Text:    textPayload{Content: seg},
	})
	if err != nil {
		return pushResponse{}, fmt.Errorf("wechat: marshal push: %w", err)
	}

	url := c.apiBase + "/cgi-bin/message/custom/send?access_token=" + token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pushResponse{}, fmt.Errorf("wechat: create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pushResponse{}, fmt.Errorf("wechat: push request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return pushResponse{}, fmt.Errorf("wechat: read push response: %w", err)
	}

	var parsed pushResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return pushResponse{}, fmt.Errorf("wechat: parse push response: %w", err)
	}
	return parsed, nil
}

// record writes a delivery outcome to the journal, when one is configured.
func (c *Client) record(ctx context.Context, user string, segments, size int, status, errMsg string) {
	if c.journal == nil {
		return
	}
	d := wxrelay.Delivery{
		ID:        wxrelay.NewID(),
		User:      user,
		Segments:  segments,
		Bytes:     size,
		Status:    status,
		Error:     errMsg,
		CreatedAt: wxrelay.NowUnix(),
	}
	if err := c.journal.Record(ctx, d); err != nil {
		c.logger.Warn("journal record failed", "error", err)
	}
}

// sleepCtx pauses for d, returning early with ctx.Err() on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ wxrelay.Deliverer = (*Client)(nil)
