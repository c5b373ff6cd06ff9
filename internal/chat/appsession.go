package chat

import "github.com/raphaelgruber/mcpchat-go/internal/store"

// AppSession holds state scoped to one application session. It outlives a
// single run of the chat view but not the session itself; the CLI backs it
// with a per-terminal store.
type AppSession struct {
	st store.Store
}

// NewAppSession wraps a session-scoped store.
func NewAppSession(st store.Store) *AppSession {
	return &AppSession{st: st}
}

// AutoCreated reports whether a chat session was already created
// automatically during this application session.
func (a *AppSession) AutoCreated() bool {
	v, ok := a.st.Get(store.KeySessionAutoCreated)
	return ok && v == "true"
}

// MarkAutoCreated records that a chat session was created automatically.
func (a *AppSession) MarkAutoCreated() error {
	return a.st.Set(store.KeySessionAutoCreated, "true")
}
