package wechat

import "strings"

// DefaultSegmentBytes is the platform-safe ceiling for one customer-service
// text message, measured in UTF-8 bytes.
const DefaultSegmentBytes = 2000

// SplitMessage splits msg into ordered segments whose UTF-8 byte length does
// not exceed maxBytes, breaking only on line boundaries. A message that
// already fits is returned as a single segment.
//
// Known limitation: a single line longer than maxBytes is emitted as its own
// oversized segment rather than split mid-line; the platform truncates it.
func SplitMessage(msg string, maxBytes int) []string {
	if maxBytes <= 0 {
		maxBytes = DefaultSegmentBytes
	}
	if len(msg) <= maxBytes {
		return []string{msg}
	}

	var segments []string
	var current []string
	currentLen := 0

	for _, line := range strings.Split(msg, "\n") {
		lineLen := len(line) + 1 // line plus its terminator
		if currentLen+lineLen > maxBytes && len(current) > 0 {
			segments = append(segments, strings.Join(current, "\n"))
			current = []string{line}
			currentLen = lineLen
		} else {
			current = append(current, line)
			currentLen += lineLen
		}
	}

	if len(current) > 0 {
		segments = append(segments, strings.Join(current, "\n"))
	}
	return segments
}
