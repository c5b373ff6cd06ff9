package client

import (
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/mcpchat-go/internal/metrics"
)

// maxBodyLogLen is the maximum length of a logged error body before truncation.
const maxBodyLogLen = 200

// slowRequestThreshold is the duration above which requests are logged at INFO level.
// Chat requests wait on the agent and are exempt.
const slowRequestThreshold = 5 * time.Second

// requestLog describes one finished round trip.
type requestLog struct {
	id       string
	op       string
	method   string
	path     string
	status   int
	duration time.Duration
	body     []byte
	err      error
}

// logRequest logs a round trip at a level chosen by its outcome and duration.
// Nothing here reaches WARN: the stderr handler would write over the chat view.
func logRequest(logger *slog.Logger, rl requestLog) {
	attrs := []any{
		"request_id", rl.id,
		"method", rl.method,
		"path", rl.path,
		"duration_ms", rl.duration.Milliseconds(),
	}
	if rl.status != 0 {
		attrs = append(attrs, "status", rl.status)
	}

	switch {
	case rl.err != nil:
		attrs = append(attrs, "error", rl.err.Error())
		logger.Info("request failed", attrs...)
	case rl.status >= http.StatusInternalServerError:
		attrs = append(attrs, "body", truncate(string(rl.body), maxBodyLogLen))
		logger.Info("server error", attrs...)
	case rl.status >= http.StatusBadRequest:
		attrs = append(attrs, "body", truncate(string(rl.body), maxBodyLogLen))
		logger.Debug("request rejected", attrs...)
	case rl.duration > slowRequestThreshold && rl.op != metrics.OpChat:
		logger.Info("slow request", attrs...)
	default:
		logger.Debug("request completed", attrs...)
	}
}

// truncate shortens a string to at most maxLen bytes, adding "..." if
// truncated. The cut never splits a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	suffix := "..."
	if maxLen < len(suffix) {
		suffix = ""
	}
	cut := maxLen - len(suffix)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + suffix
}
