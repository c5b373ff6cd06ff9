package client

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/mcpchat-go/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// Each Hangul syllable is three bytes.
	s := "환경변수를 입력해야 합니다"
	for n := 0; n <= len(s); n++ {
		got := truncate(s, n)
		assert.True(t, utf8.ValidString(got), "maxLen %d gave %q", n, got)
		assert.LessOrEqual(t, len(got), n)
	}
	assert.Equal(t, "환...", truncate(s, 8))
}

func TestLogRequestLevels(t *testing.T) {
	tests := []struct {
		name  string
		rl    requestLog
		level string
		msg   string
	}{
		{"ok", requestLog{status: http.StatusOK, duration: time.Millisecond}, "DEBUG", "request completed"},
		{"rejected", requestLog{status: http.StatusNotFound, body: []byte(`{"detail":"Not Found"}`)}, "DEBUG", "request rejected"},
		{"server error", requestLog{status: http.StatusBadGateway}, "INFO", "server error"},
		{"network", requestLog{err: errors.New("connection refused")}, "INFO", "request failed"},
		{"slow", requestLog{op: metrics.OpSessions, status: http.StatusOK, duration: 6 * time.Second}, "INFO", "slow request"},
		{"slow chat", requestLog{op: metrics.OpChat, status: http.StatusOK, duration: time.Minute}, "DEBUG", "request completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			logRequest(logger, tt.rl)

			out := buf.String()
			assert.True(t, strings.Contains(out, "level="+tt.level), out)
			assert.Contains(t, out, tt.msg)
		})
	}
}

func TestLogRequestTruncatesBody(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logRequest(logger, requestLog{status: http.StatusInternalServerError, body: []byte(strings.Repeat("x", 500))})

	assert.Contains(t, buf.String(), strings.Repeat("x", maxBodyLogLen-3)+"...")
	assert.NotContains(t, buf.String(), strings.Repeat("x", maxBodyLogLen))
}
