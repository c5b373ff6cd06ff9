// Package store provides the client-side key/value state used by mcpchat:
// the persistent cache (token, service flags, transcript, selected session)
// and the session-scoped store backing the application session.
package store

// Keys persisted in the local cache.
const (
	KeyAccessToken       = "access_token"
	KeyServices          = "mcpServices"
	KeyChatMessages      = "chatMessages"
	KeySelectedSessionID = "selectedSessionId"
)

// KeySessionAutoCreated lives in the session-scoped store only.
const KeySessionAutoCreated = "sessionAutoCreated"

// Store is a string key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}
