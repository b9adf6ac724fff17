// Package config loads process configuration: defaults, then an optional TOML
// file, then WXRELAY_* environment variables (env wins).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	WeChat     WeChatConfig     `toml:"wechat"`
	LLM        LLMConfig        `toml:"llm"`
	Generation GenerationConfig `toml:"generation"`
	Safety     []SafetyConfig   `toml:"safety"`
	Journal    JournalConfig    `toml:"journal"`
	Observer   ObserverConfig   `toml:"observer"`
}

type ServerConfig struct {
	// Addr is the listen address. The platform only delivers to ports 80
	// (http) and 443 (https); anything else is for a reverse proxy or tests.
	Addr string `toml:"addr"`
	Path string `toml:"path"`
}

type WeChatConfig struct {
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	// Token is the shared webhook verification token.
	Token          string `toml:"token"`
	APIBase        string `toml:"api_base"`
	SegmentBytes   int    `toml:"segment_max_bytes"`
	SegmentDelayMS int    `toml:"segment_delay_ms"`
	RetryDelayMS   int    `toml:"retry_delay_ms"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type GenerationConfig struct {
	Temperature     float64 `toml:"temperature"`
	TopP            float64 `toml:"top_p"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
}

type SafetyConfig struct {
	Category  string `toml:"category"`
	Threshold string `toml:"threshold"`
}

type JournalConfig struct {
	// Path is the SQLite file for the delivery journal; empty disables it.
	Path string `toml:"path"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":80", Path: "/wx"},
		WeChat: WeChatConfig{
			APIBase:        "https://api.weixin.qq.com",
			SegmentBytes:   2000,
			SegmentDelayMS: 500,
			RetryDelayMS:   5000,
		},
		LLM: LLMConfig{
			Provider:       "gemini",
			Model:          "gemini-2.0-flash-lite",
			TimeoutSeconds: 60,
		},
		Generation: GenerationConfig{Temperature: 0.7, TopP: 0.9},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "wxrelay.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("WXRELAY_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WXRELAY_APP_ID"); v != "" {
		cfg.WeChat.AppID = v
	}
	if v := os.Getenv("WXRELAY_APP_SECRET"); v != "" {
		cfg.WeChat.AppSecret = v
	}
	if v := os.Getenv("WXRELAY_TOKEN"); v != "" {
		cfg.WeChat.Token = v
	}
	if v := os.Getenv("WXRELAY_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("WXRELAY_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("WXRELAY_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("WXRELAY_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
