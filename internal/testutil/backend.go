// Package testutil provides an in-memory fake of the mcpchat REST backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/raphaelgruber/mcpchat-go/internal/client"
)

// DefaultToken is the bearer token issued by the fake backend.
const DefaultToken = "test-token"

// ChatFunc overrides the chat endpoint. It receives the session id and the
// user message and writes the whole response.
type ChatFunc func(w http.ResponseWriter, r *http.Request, sessionID, message string)

// Backend is a fake backend served over httptest.
type Backend struct {
	mu sync.Mutex

	Token     string
	Passwords map[string]string
	Catalog   []client.MCP
	Selected  map[string]bool
	Env       map[string]map[string]string
	Sessions  []client.Session // most recent first
	Histories map[string][]client.HistoryEntry

	// ChatReply selects the default chat response shape: "history" or "single".
	ChatReply string
	// Chat, when set, replaces the default chat handler.
	Chat ChatFunc
	// FailEnvSave makes POST /env/ answer 500.
	FailEnvSave bool
	// FailSessionList makes GET /sessions answer 500.
	FailSessionList bool

	PodRequests [][]string
	requests    []string
	nextID      int

	server *httptest.Server
}

// NewBackend starts a fake backend that is closed when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		Token:     DefaultToken,
		Passwords: map[string]string{"alice": "Secret123!"},
		Selected:  map[string]bool{},
		Env:       map[string]map[string]string{},
		Histories: map[string][]client.HistoryEntry{},
		ChatReply: "history",
	}
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.server.Close)
	return b
}

// URL returns the base URL of the fake backend.
func (b *Backend) URL() string {
	return b.server.URL
}

// Requests returns "METHOD path" for every request received so far.
func (b *Backend) Requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requests...)
}

// CountRequests counts received requests equal to "METHOD path".
func (b *Backend) CountRequests(methodPath string) int {
	n := 0
	for _, r := range b.Requests() {
		if r == methodPath {
			n++
		}
	}
	return n
}

// AddMCP registers a catalog entry.
func (b *Backend) AddMCP(publicID, name string, envKeys ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Catalog = append(b.Catalog, client.MCP{
		PublicID:        publicID,
		Name:            name,
		MCPType:         strings.ToLower(name),
		Description:     name + " integration",
		RequiredEnvVars: envKeys,
	})
}

// SetEnv stores env values for an integration.
func (b *Backend) SetEnv(publicID string, values map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Env[publicID] = values
}

// IsSelected reports the server-side selection state.
func (b *Backend) IsSelected(publicID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Selected[publicID]
}

// AddSession inserts a session at the front of the list and returns its id.
func (b *Backend) AddSession(name string, history ...client.HistoryEntry) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addSessionLocked(name, history)
}

// SessionNames returns the current session names in list order.
func (b *Backend) SessionNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.Sessions))
	for i, s := range b.Sessions {
		names[i] = s.SessionName
	}
	return names
}

func (b *Backend) addSessionLocked(name string, history []client.HistoryEntry) string {
	b.nextID++
	id := fmt.Sprintf("sess-%d", b.nextID)
	b.Sessions = append([]client.Session{{
		SessionID:    id,
		SessionName:  name,
		MessageCount: len(history),
	}}, b.Sessions...)
	b.Histories[id] = append([]client.HistoryEntry(nil), history...)
	return id
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.logRequest)

	r.Post("/users/login", b.handleLogin)
	r.Post("/users/signup", b.handleSignup)

	r.Group(func(r chi.Router) {
		r.Use(b.requireToken)

		r.Put("/users/change-password", b.handleChangePassword)
		r.Delete("/users/me", b.handleDeleteMe)
		r.Post("/users/logout", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})

		r.Get("/mcps/", b.handleListMCPs)
		r.Get("/env/{id}", b.handleGetEnv)
		r.Post("/env/", b.handleSaveEnv)
		r.Post("/select/{id}", b.handleSelect)
		r.Delete("/select/{id}", b.handleDeselect)
		r.Post("/pod", b.handlePod)

		r.Get("/sessions", b.handleListSessions)
		r.Post("/sessions", b.handleCreateSession)
		r.Put("/sessions/{id}", b.handleRenameSession)
		r.Delete("/sessions/{id}", b.handleDeleteSession)
		r.Get("/sessions/{id}/history", b.handleHistory)
		r.Post("/sessions/{id}/chat", b.handleChat)
	})
	return r
}

func (b *Backend) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		want := "Bearer " + b.Token
		b.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeDetail(w, http.StatusUnauthorized, "인증 정보가 유효하지 않습니다")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	b.mu.Lock()
	pw, ok := b.Passwords[r.PostForm.Get("username")]
	token := b.Token
	b.mu.Unlock()

	if !ok || pw != r.PostForm.Get("password") {
		writeDetail(w, http.StatusUnauthorized, "이메일 또는 비밀번호가 올바르지 않습니다")
		return
	}
	writeJSON(w, http.StatusOK, client.TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in client.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "field required"}},
		})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.Passwords[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "이미 사용 중인 아이디 또는 이메일입니다")
		return
	}
	b.Passwords[in.Username] = in.Password
	writeJSON(w, http.StatusOK, client.User{ID: "u-" + in.Username, Username: in.Username, Email: in.Email})
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for user, pw := range b.Passwords {
		if pw == in.CurrentPassword {
			b.Passwords[user] = in.NewPassword
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeDetail(w, http.StatusBadRequest, "현재 비밀번호가 올바르지 않습니다")
}

func (b *Backend) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handleListMCPs(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]client.MCP, len(b.Catalog))
	for i, m := range b.Catalog {
		m.IsSelected = b.Selected[m.PublicID]
		out[i] = m
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleGetEnv(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	env, ok := b.Env[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "환경 변수를 찾을 수 없습니다.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"public_id": id, "env_settings": env})
}

func (b *Backend) handleSaveEnv(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PublicID string            `json:"public_id"`
		EnvVars  map[string]string `json:"env_vars"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailEnvSave {
		writeDetail(w, http.StatusInternalServerError, "저장 실패")
		return
	}
	b.Env[in.PublicID] = in.EnvVars
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Selected[id] = true
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "is_selected": true})
}

func (b *Backend) handleDeselect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.Selected[id] {
		writeDetail(w, http.StatusNotFound, "선택된 MCP를 찾을 수 없습니다.")
		return
	}
	delete(b.Selected, id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handlePod(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PublicIDs []string `json:"public_ids"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PodRequests = append(b.PodRequests, in.PublicIDs)
	name := fmt.Sprintf("agent-pod-%d", len(b.PodRequests))
	writeJSON(w, http.StatusOK, client.PodResult{Success: true, Message: "Pod 생성 요청 완료", PodName: &name})
}

func (b *Backend) handleListSessions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSessionList {
		writeDetail(w, http.StatusInternalServerError, "session store unavailable")
		return
	}
	out := append([]client.Session{}, b.Sessions...)
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SessionName string `json:"session_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addSessionLocked(in.SessionName, nil)
	writeJSON(w, http.StatusOK, b.Sessions[0])
}

func (b *Backend) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in struct {
		SessionName string `json:"session_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Sessions {
		if b.Sessions[i].SessionID == id {
			b.Sessions[i].SessionName = in.SessionName
			writeJSON(w, http.StatusOK, b.Sessions[i])
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "세션을 찾을 수 없습니다")
}

func (b *Backend) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Sessions {
		if b.Sessions[i].SessionID == id {
			b.Sessions = append(b.Sessions[:i], b.Sessions[i+1:]...)
			delete(b.Histories, id)
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "세션을 찾을 수 없습니다")
}

func (b *Backend) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	hist, ok := b.Histories[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "세션을 찾을 수 없습니다")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": hist})
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	b.mu.Lock()
	custom := b.Chat
	b.mu.Unlock()
	if custom != nil {
		custom(w, r, id, in.Message)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.Histories[id]; !ok {
		writeDetail(w, http.StatusNotFound, "세션을 찾을 수 없습니다")
		return
	}
	entry := client.HistoryEntry{
		User:      in.Message,
		Assistant: "echo: " + in.Message,
		Timestamp: client.Time{Time: time.Now().UTC()},
	}
	b.Histories[id] = append(b.Histories[id], entry)
	for i := range b.Sessions {
		if b.Sessions[i].SessionID == id {
			b.Sessions[i].MessageCount = len(b.Histories[id])
		}
	}

	if b.ChatReply == "single" {
		writeJSON(w, http.StatusOK, map[string]any{"response": entry.Assistant})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": b.Histories[id]})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// WriteJSON is exported for custom ChatFunc implementations.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}
