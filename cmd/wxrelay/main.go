package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/yichens/wxrelay"
	"github.com/yichens/wxrelay/frontend/wechat"
	"github.com/yichens/wxrelay/internal/config"
	"github.com/yichens/wxrelay/internal/journal"
	"github.com/yichens/wxrelay/internal/relay"
	"github.com/yichens/wxrelay/observer"
	"github.com/yichens/wxrelay/provider/gemini"
)

func main() {
	// 1. Load config (.env first so WXRELAY_* overrides see it)
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("WXRELAY_CONFIG"))

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx := context.Background()

	// 2. Create the chat provider, with retry and a generation deadline
	var chatLLM wxrelay.Provider = gemini.New(cfg.LLM.APIKey, cfg.LLM.Model,
		gemini.WithTemperature(cfg.Generation.Temperature),
		gemini.WithTopP(cfg.Generation.TopP),
		gemini.WithMaxOutputTokens(cfg.Generation.MaxOutputTokens),
		gemini.WithSafetySettings(safetySettings(cfg.Safety)),
	)
	chatLLM = wxrelay.WithRetry(chatLLM,
		wxrelay.RetryTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		wxrelay.RetryLogger(logger),
	)

	// 3. Create the delivery client
	tokens := wechat.NewTokenSource(cfg.WeChat.AppID, cfg.WeChat.AppSecret, cfg.WeChat.APIBase, nil, logger)
	clientOpts := []wechat.ClientOption{
		wechat.WithLogger(logger),
		wechat.WithSegmentBytes(cfg.WeChat.SegmentBytes),
		wechat.WithSegmentDelay(time.Duration(cfg.WeChat.SegmentDelayMS) * time.Millisecond),
		wechat.WithRetryDelay(time.Duration(cfg.WeChat.RetryDelayMS) * time.Millisecond),
	}

	if cfg.Journal.Path != "" {
		j := journal.New(cfg.Journal.Path, journal.WithLogger(logger))
		if err := j.Init(ctx); err != nil {
			logger.Error("journal init failed", "error", err)
			os.Exit(1)
		}
		defer j.Close()
		clientOpts = append(clientOpts, wechat.WithJournal(j))
	}

	var deliverer wxrelay.Deliverer = wechat.NewClient(tokens, cfg.WeChat.APIBase, clientOpts...)

	// 4. Optional OTEL instrumentation
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			logger.Error("observer init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
		chatLLM = observer.WrapProvider(chatLLM, cfg.LLM.Model, inst)
		deliverer = observer.WrapDeliverer(deliverer, inst)
	}

	// 5. Run
	app := relay.New(&cfg, relay.Deps{
		Provider:  chatLLM,
		Deliverer: deliverer,
		Store:     wxrelay.NewConversationStore(0),
		Logger:    logger,
	})
	if err := app.RunWithSignal(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("wxrelay: exited", "error", err)
		os.Exit(1)
	}
}

func safetySettings(entries []config.SafetyConfig) []gemini.SafetySetting {
	out := make([]gemini.SafetySetting, 0, len(entries))
	for _, e := range entries {
		out = append(out, gemini.SafetySetting{Category: e.Category, Threshold: e.Threshold})
	}
	return out
}
