// Package relay contains the reply engine: the state machine that turns an
// inbound message into a generated reply and hands it to the delivery client,
// decoupled in time from the webhook acknowledgment.
package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/yichens/wxrelay"
)

// Session commands and fixed replies, exact-match. Kept in the audience's
// language like the rest of the user-facing strings.
const (
	cmdStartSession = "#开始"
	cmdEndSession   = "#结束"

	replySessionStarted = "对话模式开始..."
	replySessionEnded   = "对话模式结束..."
	replyImageFailed    = "抱歉，图片处理失败，请稍后重试。"
	replyGenerateFailed = "抱歉，服务出现异常，请稍后重试。"
)

const (
	defaultTaskTimeout = 60 * time.Second
	maxImageBytes      = 10 << 20
)

// Engine turns inbound messages into delivered replies. Handle always
// produces at most one delivery and never propagates an error to its caller;
// generation failures become fixed apology strings. Dispatch is the
// asynchronous entry point used by the webhook handler.
type Engine struct {
	provider  wxrelay.Provider
	deliverer wxrelay.Deliverer
	store     *wxrelay.ConversationStore
	tasks     *dispatcher
	logger    *slog.Logger

	timeout     time.Duration
	format      func(string) string // reply post-processing (markdown strip)
	imageClient *http.Client
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout caps the end-to-end time for one dispatched reply task,
// generation and delivery included (default 60s), so one hung upstream call
// cannot pin a user's queue indefinitely.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.timeout = d }
}

// WithFormatter sets the reply post-processing step applied before delivery.
func WithFormatter(f func(string) string) EngineOption {
	return func(e *Engine) { e.format = f }
}

// WithLogger sets the structured logger for engine events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithImageClient sets the HTTP client used to fetch inbound image URLs.
func WithImageClient(h *http.Client) EngineOption {
	return func(e *Engine) { e.imageClient = h }
}

// NewEngine creates a reply engine.
func NewEngine(p wxrelay.Provider, d wxrelay.Deliverer, store *wxrelay.ConversationStore, opts ...EngineOption) *Engine {
	e := &Engine{
		provider:    p,
		deliverer:   d,
		store:       store,
		tasks:       newDispatcher(),
		logger:      wxrelay.NopLogger,
		timeout:     defaultTaskTimeout,
		format:      func(s string) string { return s },
		imageClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch queues the message for asynchronous handling and returns
// immediately. Per-user ordering is preserved; the opportunistic store sweep
// runs here, before each new task.
func (e *Engine) Dispatch(user, message, imageURL string) {
	e.store.EvictIfFull()
	e.tasks.dispatch(user, func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		e.Handle(ctx, user, message, imageURL)
	})
}

// Wait blocks until all dispatched tasks have completed.
func (e *Engine) Wait() {
	e.tasks.wait()
}

// Handle processes one inbound message synchronously: session commands short-
// circuit without a model call, everything else is generated and delivered.
func (e *Engine) Handle(ctx context.Context, user, message, imageURL string) {
	message = wxrelay.SanitizeInput(message)
	e.logger.Debug("handling message", "user", user, "message", message, "image", imageURL != "")

	switch message {
	case cmdStartSession:
		e.store.Put(user, wxrelay.NewSession())
		e.deliver(ctx, user, replySessionStarted)
		return
	case cmdEndSession:
		e.store.Remove(user)
		e.deliver(ctx, user, replySessionEnded)
		return
	}

	var reply string
	if imageURL != "" {
		reply = e.generateWithImage(ctx, user, message, imageURL)
	} else {
		reply = e.generate(ctx, user, message)
	}

	e.deliver(ctx, user, e.format(reply))
}

// generate produces a text reply, continuing the user's session when one is
// active and falling back to a stateless one-shot call otherwise.
func (e *Engine) generate(ctx context.Context, user, message string) string {
	var (
		reply string
		err   error
	)
	if sess := e.store.Get(user); sess != nil {
		reply, err = sess.Send(ctx, e.provider, message)
	} else {
		var resp wxrelay.ChatResponse
		resp, err = e.provider.Chat(ctx, wxrelay.ChatRequest{
			Messages: []wxrelay.ChatMessage{wxrelay.UserMessage(message)},
		})
		reply = resp.Content
	}
	if err != nil {
		e.logger.Error("generation failed", "user", user, "error", err)
		return replyGenerateFailed
	}
	return reply
}

// generateWithImage fetches the image and produces a multimodal reply. Fetch
// and generation failures collapse into one fixed apology.
func (e *Engine) generateWithImage(ctx context.Context, user, message, imageURL string) string {
	data, mimeType, err := e.fetchImage(ctx, imageURL)
	if err != nil {
		e.logger.Error("image fetch failed", "user", user, "url", imageURL, "error", err)
		return replyImageFailed
	}

	resp, err := e.provider.Chat(ctx, wxrelay.ChatRequest{
		Messages: []wxrelay.ChatMessage{{
			Role:    "user",
			Content: message,
			Images: []wxrelay.ImageData{{
				MimeType: mimeType,
				Base64:   base64.StdEncoding.EncodeToString(data),
			}},
		}},
	})
	if err != nil {
		e.logger.Error("image generation failed", "user", user, "error", err)
		return replyImageFailed
	}
	return resp.Content
}

// fetchImage downloads the platform-hosted image, bounded at maxImageBytes.
func (e *Engine) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create image request: %w", err)
	}
	resp, err := e.imageClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch image: http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// deliver pushes the reply, logging failures. Delivery problems cannot be
// surfaced to the user, so this is where they stop.
func (e *Engine) deliver(ctx context.Context, user, reply string) {
	if reply == "" {
		return
	}
	if err := e.deliverer.Send(ctx, user, reply); err != nil {
		e.logger.Error("reply delivery failed", "user", user, "error", err)
	}
}
