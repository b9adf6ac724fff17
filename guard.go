package wxrelay

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxInputRunes caps inbound message length before it reaches the model.
// WeChat text messages are already bounded, but voice recognition results and
// forwarded content occasionally are not.
const MaxInputRunes = 4096

// SanitizeInput prepares inbound user text for a model call: NFKC-normalize
// (folds width and compatibility variants so lookalike characters cannot smuggle
// content past downstream matching), drop control characters other than
// newline and tab, and cap the rune length at MaxInputRunes.
func SanitizeInput(s string) string {
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if n >= MaxInputRunes {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimSpace(b.String())
}
