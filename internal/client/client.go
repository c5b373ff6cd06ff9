// Package client provides the REST client for the mcpchat backend.
//
// The client attaches the stored bearer token to every request and enforces
// the global authentication contract: a 401 response wipes local state and
// sends the user back to the login screen.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/mcpchat-go/internal/metrics"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000/api"

// Navigator is the view-layer hook used by the authentication contract.
type Navigator interface {
	// OnLoginScreen reports whether the user is currently on the login screen.
	OnLoginScreen() bool
	// RedirectToLogin sends the user to the login screen.
	RedirectToLogin()
}

// Client is the REST client for the mcpchat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      store.Store
	nav        Navigator
	collector  *metrics.Collector
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the transport timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithNavigator installs the login redirect hook.
func WithNavigator(nav Navigator) Option {
	return func(c *Client) { c.nav = nav }
}

// WithCollector records request timings into collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Client) { c.collector = collector }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL. The token is read from st on every
// request, and st is cleared on authentication failure.
func New(baseURL string, st store.Store, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		store:      st,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

// doJSON sends in as a JSON body (nil for none) and decodes the response into
// out (nil to discard).
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, err := c.send(op, req)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

// doForm sends form as application/x-www-form-urlencoded.
func (c *Client) doForm(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := c.send(op, req)
	if err != nil {
		return err
	}
	return decodeInto(data, out)
}

// doRaw performs a request and returns the raw success body.
func (c *Client) doRaw(ctx context.Context, op, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(op, req)
}

// send applies the auth contract around a single round trip.
func (c *Client) send(op string, req *http.Request) ([]byte, error) {
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if tok, ok := c.store.Get(store.KeyAccessToken); ok && tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, start, true)
		logRequest(c.logger, requestLog{
			id: requestID, op: op, method: req.Method, path: req.URL.Path,
			duration: time.Since(start), err: err,
		})
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(op, start, true)
		return nil, fmt.Errorf("read response: %w", err)
	}

	failed := resp.StatusCode < 200 || resp.StatusCode >= 300
	c.record(op, start, failed)
	logRequest(c.logger, requestLog{
		id: requestID, op: op, method: req.Method, path: req.URL.Path,
		status: resp.StatusCode, duration: time.Since(start), body: body,
	})

	if !failed {
		return body, nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}
	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized()
	}
	return nil, apiErr
}

func (c *Client) handleUnauthorized() {
	if c.nav != nil && c.nav.OnLoginScreen() {
		return
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear local state after 401", "error", err)
	}
	c.logger.Warn("access token rejected, local state cleared")
	if c.nav != nil {
		c.nav.RedirectToLogin()
	}
}

func (c *Client) record(op string, start time.Time, failed bool) {
	if c.collector == nil {
		return
	}
	c.collector.RecordRequest(op, time.Since(start), failed)
}

func decodeInto(data []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func pathID(id string) string {
	return url.PathEscape(id)
}

// =============================================================================
// USER OPERATIONS
// =============================================================================

// TokenResponse is returned by the login endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// User is an account as returned by the backend.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// SignupRequest is the body of the signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token. The token is not stored;
// that is the caller's decision.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var result TokenResponse
	if err := c.doForm(ctx, metrics.OpAuth, "/users/login", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Signup creates an account.
func (c *Client) Signup(ctx context.Context, in SignupRequest) (*User, error) {
	var result User
	if err := c.doJSON(ctx, metrics.OpAuth, http.MethodPost, "/users/signup", in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChangePassword updates the current user's password.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	in := map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	}
	return c.doJSON(ctx, metrics.OpAuth, http.MethodPut, "/users/change-password", in, nil)
}

// DeleteMe deletes the current user's account.
func (c *Client) DeleteMe(ctx context.Context) error {
	return c.doJSON(ctx, metrics.OpAuth, http.MethodDelete, "/users/me", nil, nil)
}

// Logout terminates the server-side session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, metrics.OpAuth, http.MethodPost, "/users/logout", nil, nil)
}

// =============================================================================
// MCP OPERATIONS
// =============================================================================

// MCP is an integration catalog entry.
type MCP struct {
	PublicID        string   `json:"public_id"`
	Name            string   `json:"name"`
	MCPType         string   `json:"mcp_type"`
	Description     string   `json:"description"`
	RequiredEnvVars []string `json:"required_env_vars"`
	IsSelected      bool     `json:"is_selected"`
}

// SelectResult is returned by the select endpoints. IsSelected is nil when
// the server does not echo the resulting state.
type SelectResult struct {
	Success    *bool `json:"success,omitempty"`
	IsSelected *bool `json:"is_selected,omitempty"`
}

// PodResult is returned by the provisioning endpoint.
type PodResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	PodName *string `json:"pod_name,omitempty"`
}

// ListMCPs returns the integration catalog with the user's selection flags.
func (c *Client) ListMCPs(ctx context.Context) ([]MCP, error) {
	var result []MCP
	if err := c.doJSON(ctx, metrics.OpServices, http.MethodGet, "/mcps/", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEnv returns the stored env values for one integration.
func (c *Client) GetEnv(ctx context.Context, publicID string) (map[string]string, error) {
	var result struct {
		PublicID    string            `json:"public_id"`
		EnvSettings map[string]string `json:"env_settings"`
	}
	if err := c.doJSON(ctx, metrics.OpEnv, http.MethodGet, "/env/"+pathID(publicID), nil, &result); err != nil {
		return nil, err
	}
	if result.EnvSettings == nil {
		return map[string]string{}, nil
	}
	return result.EnvSettings, nil
}

// SaveEnv writes env values for one integration. Blank values are sent as-is
// so a value can be cleared.
func (c *Client) SaveEnv(ctx context.Context, publicID string, vars map[string]string) error {
	in := struct {
		PublicID string            `json:"public_id"`
		EnvVars  map[string]string `json:"env_vars"`
	}{PublicID: publicID, EnvVars: vars}
	return c.doJSON(ctx, metrics.OpEnv, http.MethodPost, "/env/", in, nil)
}

// Select enables an integration.
func (c *Client) Select(ctx context.Context, publicID string) (*SelectResult, error) {
	var result SelectResult
	if err := c.doJSON(ctx, metrics.OpSelect, http.MethodPost, "/select/"+pathID(publicID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Deselect disables an integration.
func (c *Client) Deselect(ctx context.Context, publicID string) (*SelectResult, error) {
	var result SelectResult
	if err := c.doJSON(ctx, metrics.OpSelect, http.MethodDelete, "/select/"+pathID(publicID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePod requests a runtime for the user's selected integrations. The
// backend resolves the selection itself; publicIDs is sent as an advisory
// body listing what the client validated.
func (c *Client) CreatePod(ctx context.Context, publicIDs []string) (*PodResult, error) {
	in := struct {
		PublicIDs []string `json:"public_ids"`
	}{PublicIDs: publicIDs}

	var result PodResult
	if err := c.doJSON(ctx, metrics.OpPod, http.MethodPost, "/pod", in, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// Session is a server-side chat session.
type Session struct {
	SessionID    string `json:"session_id"`
	SessionName  string `json:"session_name"`
	MessageCount int    `json:"message_count"`
	CreatedAt    Time   `json:"created_at,omitzero"`
	UpdatedAt    Time   `json:"updated_at,omitzero"`
}

// ListSessions returns the user's sessions, most recent first.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var result []Session
	if err := c.doJSON(ctx, metrics.OpSessions, http.MethodGet, "/sessions", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateSession creates a session named name.
func (c *Client) CreateSession(ctx context.Context, name string) (*Session, error) {
	in := map[string]string{"session_name": name}

	var result Session
	if err := c.doJSON(ctx, metrics.OpSessions, http.MethodPost, "/sessions", in, &result); err != nil {
		return nil, err
	}
	if result.SessionID == "" {
		return nil, fmt.Errorf("create session: response has no session_id")
	}
	return &result, nil
}

// RenameSession changes a session's display name.
func (c *Client) RenameSession(ctx context.Context, id, name string) error {
	in := map[string]string{"session_name": name}
	return c.doJSON(ctx, metrics.OpSessions, http.MethodPut, "/sessions/"+pathID(id), in, nil)
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, metrics.OpSessions, http.MethodDelete, "/sessions/"+pathID(id), nil, nil)
}

// GetHistory fetches a session transcript.
func (c *Client) GetHistory(ctx context.Context, id string) (History, error) {
	data, err := c.doRaw(ctx, metrics.OpSessions, http.MethodGet, "/sessions/"+pathID(id)+"/history", nil)
	if err != nil {
		return History{}, err
	}
	return DecodeHistory(data)
}

// SendChat posts a user message to a session. A successful response with an
// unrecognised shape yields a ReplyUnknown reply, not an error.
func (c *Client) SendChat(ctx context.Context, id, message string) (ChatReply, error) {
	in := map[string]string{"message": message}
	data, err := c.doRaw(ctx, metrics.OpChat, http.MethodPost, "/sessions/"+pathID(id)+"/chat", in)
	if err != nil {
		return ChatReply{}, err
	}
	return DecodeChatReply(data), nil
}
