package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
)

// Sentinel errors returned by Controller.Send.
var (
	ErrNoSession      = errors.New("no chat session selected")
	ErrSendInProgress = errors.New("a message is already being sent")
	ErrEmptyMessage   = errors.New("message is empty")
)

// State is the transcript state of the controller.
type State int

const (
	StateNoSession State = iota
	StateIdle
	StateSending
	StateError
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Dependencies wires a Controller.
type Dependencies struct {
	API        API
	Store      store.Store
	Cache      *TranscriptCache
	AppSession *AppSession
	Logger     *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
	// OnChange, if set, is called after every transcript or state change.
	// It runs outside the controller lock.
	OnChange func()
}

// Controller owns the transcript of the selected session.
//
// Every selection change bumps an epoch. A chat reply is applied only if the
// epoch captured at send time is still current; replies for a session the
// user has left are dropped.
type Controller struct {
	api      API
	dir      *Directory
	st       store.Store
	cache    *TranscriptCache
	app      *AppSession
	logger   *slog.Logger
	now      func() time.Time
	onChange func()

	mu           sync.Mutex
	sessionID    string
	epoch        uint64
	messages     []Message
	sending      bool
	sendingEpoch uint64
	loadErr      error
	// refreshAfterReply asks for one directory refresh after the first
	// exchange of a session this controller created.
	refreshAfterReply bool
	ids               idSource
}

// NewController creates a controller showing the welcome message.
func NewController(deps Dependencies) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cache := deps.Cache
	if cache == nil {
		cache = NewTranscriptCache(deps.Store, DefaultCacheDelay, logger)
	}
	app := deps.AppSession
	if app == nil {
		app = NewAppSession(store.NewMemory())
	}

	c := &Controller{
		api:      deps.API,
		dir:      NewDirectory(deps.API, logger),
		st:       deps.Store,
		cache:    cache,
		app:      app,
		logger:   logger,
		now:      now,
		onChange: deps.OnChange,
	}
	c.messages = []Message{welcomeMessage(now())}
	return c
}

// Directory returns the session directory.
func (c *Controller) Directory() *Directory {
	return c.dir
}

// Sessions returns the mirrored session list.
func (c *Controller) Sessions() []client.Session {
	return c.dir.Sessions()
}

// SessionID returns the selected session id, or "" when none is selected.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// State returns the current transcript state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case c.sessionID == "":
		return StateNoSession
	case c.sending && c.sendingEpoch == c.epoch:
		return StateSending
	case c.loadErr != nil:
		return StateError
	}
	return StateIdle
}

// LastError returns the error that put the controller in StateError.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Close flushes the transcript cache.
func (c *Controller) Close() {
	c.cache.Close()
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// persistLocked schedules a debounced cache write of the transcript.
func (c *Controller) persistLocked() {
	c.cache.Schedule(c.messages)
}

// Bootstrap selects a session when the chat view opens:
//  1. the locally cached selection, if any;
//  2. otherwise a new session, once per application session;
//  3. otherwise the most recent session;
//  4. otherwise no session, with the welcome message.
//
// The cached transcript is shown until server history replaces it.
func (c *Controller) Bootstrap(ctx context.Context) error {
	if cached, ok := c.cache.Load(); ok && len(cached) > 0 {
		c.mu.Lock()
		c.messages = cached
		c.mu.Unlock()
		c.notify()
	}

	if id, ok := c.st.Get(store.KeySelectedSessionID); ok && id != "" {
		err := c.selectSession(ctx, id, true)
		if err == nil {
			return nil
		}
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || !apiErr.NotFound() {
			return err
		}
		// The cached session no longer exists; continue with the policy.
		c.logger.Warn("cached session is gone", "session_id", id)
		c.clearSelection()
	}

	if !c.app.AutoCreated() {
		id, err := c.dir.Create(ctx, DefaultSessionName)
		if err != nil {
			c.logger.Error("failed to create initial session", "error", err)
			c.clearSelection()
			return err
		}
		if err := c.app.MarkAutoCreated(); err != nil {
			c.logger.Warn("failed to record auto-created session", "error", err)
		}
		c.bindNewSession(id)
		return nil
	}

	if sessions := c.dir.List(ctx); len(sessions) > 0 {
		return c.selectSession(ctx, sessions[0].SessionID, false)
	}

	c.clearSelection()
	return nil
}

// SelectSession switches to session id and loads its history.
func (c *Controller) SelectSession(ctx context.Context, id string) error {
	return c.selectSession(ctx, id, false)
}

func (c *Controller) selectSession(ctx context.Context, id string, keepTranscript bool) error {
	c.mu.Lock()
	c.sessionID = id
	c.epoch++
	epoch := c.epoch
	c.loadErr = nil
	c.refreshAfterReply = false
	if !keepTranscript {
		c.messages = []Message{}
		c.persistLocked()
	}
	c.mu.Unlock()
	c.notify()

	if err := c.st.Set(store.KeySelectedSessionID, id); err != nil {
		c.logger.Warn("failed to cache selected session", "error", err)
	}

	hist, err := c.api.GetHistory(ctx, id)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.loadErr = err
		c.messages = []Message{}
		c.persistLocked()
		c.mu.Unlock()
		c.notify()
		c.logger.Error("failed to load history", "session_id", id, "error", err)
		return fmt.Errorf("load history: %w", err)
	}
	c.messages = messagesFromHistory(hist, c.now())
	c.persistLocked()
	c.mu.Unlock()
	c.notify()
	return nil
}

// ReadHistory returns the transcript of session id without selecting it.
// Neither the selection nor the transcript cache changes.
func (c *Controller) ReadHistory(ctx context.Context, id string) ([]Message, error) {
	hist, err := c.api.GetHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return messagesFromHistory(hist, c.now()), nil
}

// bindNewSession selects a just-created session without fetching history.
func (c *Controller) bindNewSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.epoch++
	c.loadErr = nil
	c.refreshAfterReply = true
	c.messages = []Message{}
	c.persistLocked()
	c.mu.Unlock()

	if err := c.st.Set(store.KeySelectedSessionID, id); err != nil {
		c.logger.Warn("failed to cache selected session", "error", err)
	}
	c.notify()
}

func (c *Controller) clearSelection() {
	c.mu.Lock()
	c.sessionID = ""
	c.epoch++
	c.loadErr = nil
	c.refreshAfterReply = false
	c.messages = []Message{welcomeMessage(c.now())}
	c.persistLocked()
	c.mu.Unlock()

	if err := c.st.Delete(store.KeySelectedSessionID); err != nil {
		c.logger.Warn("failed to clear selected session", "error", err)
	}
	c.notify()
}

// NewChat selects an empty session, reusing an existing one with no
// messages before creating another. Returns the selected session id.
func (c *Controller) NewChat(ctx context.Context) (string, error) {
	c.dir.List(ctx)
	if empty, ok := c.dir.findEmpty(); ok {
		c.logger.Debug("reusing empty session", "session_id", empty.SessionID)
		if err := c.SelectSession(ctx, empty.SessionID); err != nil {
			return "", err
		}
		return empty.SessionID, nil
	}

	id, err := c.dir.Create(ctx, DefaultSessionName)
	if err != nil {
		return "", err
	}
	c.dir.List(ctx)
	c.bindNewSession(id)
	return id, nil
}

// RenameSession renames a session. A blank name is a no-op.
func (c *Controller) RenameSession(ctx context.Context, id, name string) error {
	return c.dir.Rename(ctx, id, name)
}

// DeleteSession deletes a session after confirm agrees; a nil confirm
// declines. Deleting the selected or cached session clears the selection.
// Returns whether the session was deleted.
func (c *Controller) DeleteSession(ctx context.Context, id string, confirm Confirmer) (bool, error) {
	name := id
	if s, ok := c.dir.Find(id); ok && s.SessionName != "" {
		name = s.SessionName
	}
	if confirm == nil || !confirm.Confirm(fmt.Sprintf("'%s' 대화를 삭제하시겠습니까?", name)) {
		return false, nil
	}

	if err := c.dir.Delete(ctx, id); err != nil {
		return false, err
	}
	cached, _ := c.st.Get(store.KeySelectedSessionID)
	if c.SessionID() == id || cached == id {
		c.clearSelection()
	}
	return true, nil
}

// Send appends text as a user message and posts it to the selected session.
// Network failures do not return an error; they are appended to the
// transcript as a bot message. A rejected token ends the session: the
// transcript is dropped, nothing is cached and the error is returned.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	switch {
	case text == "":
		c.mu.Unlock()
		return ErrEmptyMessage
	case c.sessionID == "":
		c.mu.Unlock()
		return ErrNoSession
	case c.sending && c.sendingEpoch == c.epoch:
		c.mu.Unlock()
		return ErrSendInProgress
	}

	sessionID, epoch := c.sessionID, c.epoch
	c.sending = true
	c.sendingEpoch = epoch
	now := c.now()
	c.messages = append(c.messages, Message{
		ID:        c.ids.next(now),
		Content:   text,
		Sender:    SenderUser,
		Timestamp: now,
	})
	c.persistLocked()
	c.mu.Unlock()
	c.notify()

	refresh, err := c.exchange(ctx, sessionID, epoch, text)
	if err != nil {
		return err
	}
	if refresh {
		c.dir.List(ctx)
	}
	return nil
}

// exchange performs the chat request and applies the reply. It reports
// whether the directory should be refreshed. A rejected token returns the
// error: local state has been cleared and the transcript must not be written
// back.
func (c *Controller) exchange(ctx context.Context, sessionID string, epoch uint64, text string) (refresh bool, err error) {
	defer func() {
		c.mu.Lock()
		if c.sendingEpoch == epoch {
			c.sending = false
		}
		c.mu.Unlock()
		c.notify()
	}()

	reply, err := c.api.SendChat(ctx, sessionID, text)

	if errors.Is(err, client.ErrUnauthorized) {
		c.cache.Discard()
		c.mu.Lock()
		c.sessionID = ""
		c.epoch++
		c.refreshAfterReply = false
		c.messages = []Message{welcomeMessage(c.now())}
		c.mu.Unlock()
		c.logger.Warn("chat request rejected, session ended", "session_id", sessionID)
		return false, fmt.Errorf("send message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		c.logger.Info("discarding chat reply for inactive session",
			"session_id", sessionID, "reply_kind", reply.Kind.String(), "error", err)
		return false, nil
	}

	now := c.now()
	if err != nil {
		c.logger.Error("chat request failed", "session_id", sessionID, "error", err)
		c.appendBotLocked(client.ErrorMessage(err, SendFailedText), now)
		return false, nil
	}

	switch reply.Kind {
	case client.ReplyHistory:
		c.messages = messagesFromPairs(reply.History, now)
		c.persistLocked()
	case client.ReplySingle:
		c.appendBotLocked(reply.Response, now)
	case client.ReplyUnknown:
		c.logger.Warn("unexpected chat response shape", "session_id", sessionID)
		c.appendBotLocked(UnexpectedReplyText, now)
	}

	refresh = c.refreshAfterReply
	c.refreshAfterReply = false
	return refresh, nil
}

func (c *Controller) appendBotLocked(content string, now time.Time) {
	c.messages = append(c.messages, Message{
		ID:        c.ids.next(now),
		Content:   content,
		Sender:    SenderBot,
		Timestamp: now,
	})
	c.persistLocked()
}
