package wxrelay

import (
	"testing"
	"time"
)

func TestErrLLM_Error(t *testing.T) {
	err := &ErrLLM{Provider: "gemini", Message: "blocked"}
	if got := err.Error(); got != "gemini: blocked" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrHTTP_Error(t *testing.T) {
	err := &ErrHTTP{Status: 429, Body: "rate limited"}
	if got := err.Error(); got != "http 429: rate limited" {
		t.Errorf("Error() = %q", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"seconds", "30", 30 * time.Second},
		{"zero", "0", 0},
		{"negative", "-5", 0},
		{"empty", "", 0},
		{"garbage", "soon", 0},
		{"whitespace", " 10 ", 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRetryAfter(tt.in); got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(time.RFC1123)
	got := ParseRetryAfter(future)
	if got < 80*time.Second || got > 90*time.Second {
		t.Errorf("ParseRetryAfter(%q) = %v, want about 90s", future, got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC1123)
	if got := ParseRetryAfter(past); got != 0 {
		t.Errorf("ParseRetryAfter(past date) = %v, want 0", got)
	}
}
