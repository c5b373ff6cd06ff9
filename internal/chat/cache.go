package chat

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/raphaelgruber/mcpchat-go/internal/store"
)

// DefaultCacheDelay is the debounce window for transcript writes.
const DefaultCacheDelay = 300 * time.Millisecond

// TranscriptCache mirrors the active transcript into the local store.
// Writes are debounced; the last transcript scheduled within the window wins.
type TranscriptCache struct {
	st     store.Store
	deb    *store.Debouncer[[]Message]
	logger *slog.Logger
}

// NewTranscriptCache creates a cache writing to st after delay.
func NewTranscriptCache(st store.Store, delay time.Duration, logger *slog.Logger) *TranscriptCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &TranscriptCache{st: st, logger: logger}
	c.deb = store.NewDebouncer(delay, c.write)
	return c
}

func (c *TranscriptCache) write(msgs []Message) {
	data, err := json.Marshal(msgs)
	if err != nil {
		c.logger.Error("encode transcript cache", "error", err)
		return
	}
	if err := c.st.Set(store.KeyChatMessages, string(data)); err != nil {
		c.logger.Error("write transcript cache", "error", err)
	}
}

// Schedule queues msgs for writing. The slice is copied.
func (c *TranscriptCache) Schedule(msgs []Message) {
	c.deb.Schedule(append([]Message(nil), msgs...))
}

// Load returns the cached transcript, if any.
func (c *TranscriptCache) Load() ([]Message, bool) {
	raw, ok := c.st.Get(store.KeyChatMessages)
	if !ok || raw == "" {
		return nil, false
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		c.logger.Warn("ignoring unreadable transcript cache", "error", err)
		return nil, false
	}
	return msgs, true
}

// Flush writes any pending transcript immediately.
func (c *TranscriptCache) Flush() {
	c.deb.Flush()
}

// Discard drops any pending write and removes the cached transcript.
func (c *TranscriptCache) Discard() {
	c.deb.Cancel()
	if err := c.st.Delete(store.KeyChatMessages); err != nil {
		c.logger.Error("remove transcript cache", "error", err)
	}
}

// Close flushes and stops accepting writes.
func (c *TranscriptCache) Close() {
	c.deb.Close()
}
