package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
)

// API is the subset of the backend client used by this package.
type API interface {
	ListSessions(ctx context.Context) ([]client.Session, error)
	CreateSession(ctx context.Context, name string) (*client.Session, error)
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
	GetHistory(ctx context.Context, id string) (client.History, error)
	SendChat(ctx context.Context, id, message string) (client.ChatReply, error)
}

// Directory mirrors the server-side session list in memory, in server order
// (most recent first).
type Directory struct {
	api    API
	logger *slog.Logger

	mu       sync.RWMutex
	sessions []client.Session
}

// NewDirectory creates an empty directory.
func NewDirectory(api API, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{api: api, logger: logger}
}

// List fetches the session list and replaces the mirror. Failures are logged
// and yield an empty list.
func (d *Directory) List(ctx context.Context) []client.Session {
	sessions, err := d.api.ListSessions(ctx)
	if err != nil {
		d.logger.Error("failed to list sessions", "error", err)
		sessions = nil
	}

	d.mu.Lock()
	d.sessions = append([]client.Session(nil), sessions...)
	d.mu.Unlock()
	return d.Sessions()
}

// Sessions returns the mirrored list without contacting the server.
func (d *Directory) Sessions() []client.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]client.Session{}, d.sessions...)
}

// Find returns the mirrored session with id.
func (d *Directory) Find(id string) (client.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sessions {
		if s.SessionID == id {
			return s, true
		}
	}
	return client.Session{}, false
}

// findEmpty returns the first mirrored session with no messages.
func (d *Directory) findEmpty() (client.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sessions {
		if s.MessageCount == 0 {
			return s, true
		}
	}
	return client.Session{}, false
}

// Create creates a session and returns its id. The mirror is not refreshed.
func (d *Directory) Create(ctx context.Context, name string) (string, error) {
	sess, err := d.api.CreateSession(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	d.logger.Info("session created", "session_id", sess.SessionID, "name", name)
	return sess.SessionID, nil
}

// Rename renames a session and refreshes the list. A blank name is a no-op.
func (d *Directory) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if err := d.api.RenameSession(ctx, id, name); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	d.List(ctx)
	return nil
}

// Delete deletes a session and refreshes the list.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if err := d.api.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	d.logger.Info("session deleted", "session_id", id)
	d.List(ctx)
	return nil
}
