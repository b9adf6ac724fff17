package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/yichens/wxrelay"
)

// tokenLifetime is how long a fetched access token is cached. The platform
// grants 7200s; caching for 7000s leaves margin for clock drift and in-flight
// requests.
const tokenLifetime = 7000 * time.Second

// TokenSource obtains and caches the Official Account access token, refreshing
// it transparently before expiry. Safe for concurrent use; a process runs a
// single TokenSource for its lifetime.
type TokenSource struct {
	appID      string
	appSecret  string
	apiBase    string
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time // test hook
}

// NewTokenSource creates a TokenSource for the given app identity.
func NewTokenSource(appID, appSecret, apiBase string, client *http.Client, logger *slog.Logger) *TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = wxrelay.NopLogger
	}
	return &TokenSource{
		appID:      appID,
		appSecret:  appSecret,
		apiBase:    apiBase,
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

// Token returns the cached access token while it is still valid, performing a
// fresh exchange otherwise. An exchange failure is logged and returned; the
// caller must treat delivery as impossible for this attempt.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expiresAt) {
		return t.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", t.appID)
	q.Set("secret", t.appSecret)
	reqURL := t.apiBase + "/cgi-bin/token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("wechat: create token request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("access token exchange failed", "error", err)
		return "", fmt.Errorf("wechat: token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("wechat: read token response: %w", err)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("wechat: parse token response: %w", err)
	}
	if parsed.AccessToken == "" {
		t.logger.Error("access token exchange rejected",
			"errcode", parsed.ErrCode, "errmsg", parsed.ErrMsg)
		return "", fmt.Errorf("wechat: token exchange rejected: errcode %d: %s",
			parsed.ErrCode, parsed.ErrMsg)
	}

	t.token = parsed.AccessToken
	t.expiresAt = t.now().Add(tokenLifetime)
	return t.token, nil
}

// Invalidate clears the cached token so the next Token call performs a fresh
// exchange. Used when a push reports the credential as invalid or expired.
func (t *TokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expiresAt = time.Time{}
}
