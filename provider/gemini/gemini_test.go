package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yichens/wxrelay"
)

func TestBuildBody_Roles(t *testing.T) {
	g := New("key", "model")
	body := g.buildBody([]wxrelay.ChatMessage{
		wxrelay.UserMessage("hi"),
		wxrelay.AssistantMessage("hello"),
		wxrelay.UserMessage("again"),
	})

	contents := body["contents"].([]map[string]any)
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	if contents[0]["role"] != "user" {
		t.Errorf("role[0] = %v", contents[0]["role"])
	}
	if contents[1]["role"] != "model" {
		t.Errorf("assistant role maps to %v, want model", contents[1]["role"])
	}
}

func TestBuildBody_SystemInstruction(t *testing.T) {
	g := New("key", "model")
	body := g.buildBody([]wxrelay.ChatMessage{
		wxrelay.SystemMessage("be brief"),
		wxrelay.SystemMessage("be kind"),
		wxrelay.UserMessage("hi"),
	})

	si, ok := body["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatal("no systemInstruction in body")
	}
	parts := si["parts"].([]map[string]any)
	if parts[0]["text"] != "be brief\n\nbe kind" {
		t.Errorf("system text = %v", parts[0]["text"])
	}

	// System messages do not appear in contents.
	if contents := body["contents"].([]map[string]any); len(contents) != 1 {
		t.Errorf("contents = %d, want 1", len(contents))
	}
}

func TestBuildBody_NoSystemInstructionWhenAbsent(t *testing.T) {
	g := New("key", "model")
	body := g.buildBody([]wxrelay.ChatMessage{wxrelay.UserMessage("hi")})
	if _, ok := body["systemInstruction"]; ok {
		t.Error("systemInstruction present without system messages")
	}
}

func TestBuildBody_InlineImageData(t *testing.T) {
	g := New("key", "model")
	body := g.buildBody([]wxrelay.ChatMessage{{
		Role:    "user",
		Content: "describe this",
		Images:  []wxrelay.ImageData{{MimeType: "image/jpeg", Base64: "aGVsbG8="}},
	}})

	contents := body["contents"].([]map[string]any)
	parts := contents[0]["parts"].([]map[string]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want text and inlineData", len(parts))
	}
	inline := parts[1]["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/jpeg" || inline["data"] != "aGVsbG8=" {
		t.Errorf("inlineData = %v", inline)
	}
}

func TestBuildBody_EmptyContentGetsPlaceholderPart(t *testing.T) {
	g := New("key", "model")
	body := g.buildBody([]wxrelay.ChatMessage{{Role: "user"}})

	contents := body["contents"].([]map[string]any)
	parts := contents[0]["parts"].([]map[string]any)
	if len(parts) != 1 || parts[0]["text"] != "" {
		t.Errorf("parts = %v, want one empty text part", parts)
	}
}

func TestBuildBody_GenerationConfig(t *testing.T) {
	g := New("key", "model", WithTemperature(0.3), WithTopP(0.8))
	body := g.buildBody([]wxrelay.ChatMessage{wxrelay.UserMessage("hi")})

	gc := body["generationConfig"].(map[string]any)
	if gc["temperature"] != 0.3 || gc["topP"] != 0.8 {
		t.Errorf("generationConfig = %v", gc)
	}
	if _, ok := gc["maxOutputTokens"]; ok {
		t.Error("maxOutputTokens present without being set")
	}

	g = New("key", "model", WithMaxOutputTokens(512))
	body = g.buildBody([]wxrelay.ChatMessage{wxrelay.UserMessage("hi")})
	gc = body["generationConfig"].(map[string]any)
	if gc["maxOutputTokens"] != 512 {
		t.Errorf("maxOutputTokens = %v, want 512", gc["maxOutputTokens"])
	}
}

func TestBuildBody_SafetySettings(t *testing.T) {
	g := New("key", "model")
	body := g.buildBody([]wxrelay.ChatMessage{wxrelay.UserMessage("hi")})
	if _, ok := body["safetySettings"]; ok {
		t.Error("safetySettings present without being set")
	}

	g = New("key", "model", WithSafetySettings([]SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	}))
	body = g.buildBody([]wxrelay.ChatMessage{wxrelay.UserMessage("hi")})
	settings, ok := body["safetySettings"].([]map[string]any)
	if !ok || len(settings) != 1 {
		t.Fatalf("safetySettings = %v", body["safetySettings"])
	}
	if settings[0]["category"] != "HARM_CATEGORY_HARASSMENT" {
		t.Errorf("category = %v", settings[0]["category"])
	}
}

// withTestServer points the package at a local server for the duration of fn.
func withTestServer(t *testing.T, handler http.Handler, fn func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	old := baseURL
	baseURL = srv.URL
	defer func() { baseURL = old }()

	fn()
}

func TestChat_ParsesResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.0-flash-lite:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "sk-test" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("request body: %v", err)
		}

		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [
				{"text": "thinking...", "thought": true},
				{"text": "你好"},
				{"text": "！"}
			]}}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3}
		}`)
	})

	withTestServer(t, handler, func() {
		g := New("sk-test", "gemini-2.0-flash-lite")
		resp, err := g.Chat(context.Background(), wxrelay.ChatRequest{
			Messages: []wxrelay.ChatMessage{wxrelay.UserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "你好！" {
			t.Errorf("content = %q, want thought part skipped", resp.Content)
		}
		if resp.Usage.InputTokens != 7 || resp.Usage.OutputTokens != 3 {
			t.Errorf("usage = %+v", resp.Usage)
		}
	})
}

func TestChat_HTTPErrorWithRetryInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"code": 429, "details": [
			{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "21s"}
		]}}`)
	})

	withTestServer(t, handler, func() {
		g := New("sk-test", "m")
		_, err := g.Chat(context.Background(), wxrelay.ChatRequest{
			Messages: []wxrelay.ChatMessage{wxrelay.UserMessage("hi")},
		})

		var httpErr *wxrelay.ErrHTTP
		if !errors.As(err, &httpErr) {
			t.Fatalf("error = %v, want ErrHTTP", err)
		}
		if httpErr.Status != 429 {
			t.Errorf("status = %d", httpErr.Status)
		}
		if httpErr.RetryAfter != 21*time.Second {
			t.Errorf("RetryAfter = %v, want 21s", httpErr.RetryAfter)
		}
	})
}

func TestChat_RetryAfterHeaderWins(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error": {}}`)
	})

	withTestServer(t, handler, func() {
		g := New("sk-test", "m")
		_, err := g.Chat(context.Background(), wxrelay.ChatRequest{
			Messages: []wxrelay.ChatMessage{wxrelay.UserMessage("hi")},
		})

		var httpErr *wxrelay.ErrHTTP
		if !errors.As(err, &httpErr) {
			t.Fatalf("error = %v, want ErrHTTP", err)
		}
		if httpErr.RetryAfter != 5*time.Second {
			t.Errorf("RetryAfter = %v, want 5s", httpErr.RetryAfter)
		}
	})
}

func TestChat_MalformedJSON(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": [`)
	})

	withTestServer(t, handler, func() {
		g := New("sk-test", "m")
		_, err := g.Chat(context.Background(), wxrelay.ChatRequest{
			Messages: []wxrelay.ChatMessage{wxrelay.UserMessage("hi")},
		})

		var llmErr *wxrelay.ErrLLM
		if !errors.As(err, &llmErr) {
			t.Fatalf("error = %v, want ErrLLM", err)
		}
	})
}

func TestChat_EmptyCandidates(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": []}`)
	})

	withTestServer(t, handler, func() {
		g := New("sk-test", "m")
		resp, err := g.Chat(context.Background(), wxrelay.ChatRequest{
			Messages: []wxrelay.ChatMessage{wxrelay.UserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Content != "" {
			t.Errorf("content = %q, want empty", resp.Content)
		}
	})
}

func TestParseRetryInfo(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Duration
	}{
		{"present", `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"30s"}]}}`, 30 * time.Second},
		{"wrong type", `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.ErrorInfo"}]}}`, 0},
		{"no details", `{"error":{}}`, 0},
		{"not json", `oops`, 0},
		{"bad duration", `{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"later"}]}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryInfo(tt.body); got != tt.want {
				t.Errorf("parseRetryInfo = %v, want %v", got, tt.want)
			}
		})
	}
}
