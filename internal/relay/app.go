package relay

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yichens/wxrelay"
	"github.com/yichens/wxrelay/frontend/wechat"
	"github.com/yichens/wxrelay/internal/config"
)

// Deps holds injected dependencies for the App.
type Deps struct {
	Provider  wxrelay.Provider
	Deliverer wxrelay.Deliverer
	Store     *wxrelay.ConversationStore
	Logger    *slog.Logger
}

// App wires the webhook handler, the reply engine, and the HTTP server.
type App struct {
	engine *Engine
	server *http.Server
	logger *slog.Logger
}

// New creates the relay application from configuration and dependencies.
func New(cfg *config.Config, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := NewEngine(deps.Provider, deps.Deliverer, deps.Store,
		WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		WithFormatter(wechat.PlainText),
		WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, wechat.NewHandler(cfg.WeChat.Token, engine, logger))

	return &App{
		engine: engine,
		server: &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the HTTP entry point (also used by tests).
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves the webhook until ctx is cancelled, then shuts down gracefully,
// letting in-flight reply tasks finish.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	a.logger.Info("wxrelay: listening", "addr", a.server.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("wxrelay: shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutCtx)
		a.engine.Wait()
		return ctx.Err()
	}
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
