package client

import (
	"time"
	"unicode/utf8"
)

// maxErrLogLen is the maximum length for logged error text before truncation.
const maxErrLogLen = 200

// slowCallThreshold is the duration above which calls are logged at INFO level.
const slowCallThreshold = 10 * time.Second

// logCall logs one backend call with timing. Failed and slow calls are
// logged at INFO, everything else at DEBUG. Request bodies are never
// logged since they carry passwords and message text.
func (c *Client) logCall(r request, status int, duration time.Duration, err error) {
	attrs := []any{
		"op", r.op,
		"method", r.method,
		"path", r.path,
		"duration_ms", duration.Milliseconds(),
	}
	if status != 0 {
		attrs = append(attrs, "status", status)
	}

	switch {
	case err != nil:
		attrs = append(attrs, "error", truncate(err.Error(), maxErrLogLen))
		c.logger.Info("backend call failed", attrs...)
	case duration > slowCallThreshold:
		c.logger.Info("slow backend call", attrs...)
	default:
		c.logger.Debug("backend call completed", attrs...)
	}
}

// truncate shortens a string to at most maxLen bytes, adding "..." if
// truncated. The cut never splits a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:runeBoundary(s, maxLen)]
	}
	return s[:runeBoundary(s, maxLen-3)] + "..."
}

// runeBoundary backs n off to the start of the rune it falls into.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
