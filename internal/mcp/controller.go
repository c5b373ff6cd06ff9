package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
)

// API is the subset of the backend client used by this package.
type API interface {
	ListMCPs(ctx context.Context) ([]client.MCP, error)
	GetEnv(ctx context.Context, publicID string) (map[string]string, error)
	SaveEnv(ctx context.Context, publicID string, vars map[string]string) error
	Select(ctx context.Context, publicID string) (*client.SelectResult, error)
	Deselect(ctx context.Context, publicID string) (*client.SelectResult, error)
	CreatePod(ctx context.Context, publicIDs []string) (*client.PodResult, error)
}

// PodPolicy controls pod provisioning preconditions.
type PodPolicy struct {
	// AllowEmpty permits provisioning with no selected services.
	AllowEmpty bool
}

// DefaultPodPolicy allows empty pods.
func DefaultPodPolicy() PodPolicy {
	return PodPolicy{AllowEmpty: true}
}

// cachedFlag is the locally cached part of a service. Secrets are never
// written to the local store.
type cachedFlag struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// Controller holds the loaded catalog and mediates every change to it.
type Controller struct {
	api    API
	st     store.Store
	policy PodPolicy
	logger *slog.Logger

	mu       sync.Mutex
	services []Service
	loading  map[string]bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithPodPolicy sets the pod provisioning policy.
func WithPodPolicy(p PodPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// NewController creates a controller with an empty catalog.
func NewController(api API, st store.Store, opts ...Option) *Controller {
	c := &Controller{
		api:     api,
		st:      st,
		policy:  DefaultPodPolicy(),
		logger:  slog.Default(),
		loading: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadServices fetches the catalog and merges the cached active flags.
// Services with no required variables are always active.
func (c *Controller) LoadServices(ctx context.Context) ([]Service, error) {
	mcps, err := c.api.ListMCPs(ctx)
	if err != nil {
		c.logger.Error("failed to load services", "error", err)
		return nil, fmt.Errorf("load services: %w", err)
	}

	cached := c.readFlags()
	services := make([]Service, len(mcps))
	for i, m := range mcps {
		svc := serviceFromMCP(m)
		if active, ok := cached[svc.ID]; ok && len(svc.RequiredEnvVars) > 0 {
			svc.Active = active
		}
		services[i] = svc
	}

	c.mu.Lock()
	c.services = services
	c.writeFlagsLocked()
	c.mu.Unlock()
	return c.Services(), nil
}

// Services returns a copy of the loaded catalog.
func (c *Controller) Services() []Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Service, len(c.services))
	for i, s := range c.services {
		out[i] = s.clone()
	}
	return out
}

// Service returns one loaded service.
func (c *Controller) Service(id string) (Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return Service{}, false
	}
	return c.services[i].clone(), true
}

// Loading reports whether the configuration of id is being fetched.
func (c *Controller) Loading(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[id]
}

// OpenConfiguration fetches the stored values of one service and returns its
// form. A service with nothing stored yields blank values.
func (c *Controller) OpenConfiguration(ctx context.Context, id string) (*Form, error) {
	svc, ok := c.Service(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}

	c.setLoading(id, true)
	defer c.setLoading(id, false)

	vars, err := c.fetchVars(ctx, svc)
	if err != nil {
		return nil, err
	}
	c.applyVars(id, vars)

	return &Form{ServiceID: svc.ID, ServiceName: svc.Name, Vars: vars}, nil
}

// SaveConfiguration writes every declared variable to the server, blanks
// included. The local state is updated even when the server fails, in which
// case the returned error wraps ErrSaveFailed. With selectAfter the service
// is selected once all values are present.
func (c *Controller) SaveConfiguration(ctx context.Context, id string, values map[string]string, selectAfter bool) (Service, error) {
	svc, ok := c.Service(id)
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}

	vars := fillVars(svc.RequiredEnvVars, values)
	payload := make(map[string]string, len(vars))
	for _, v := range vars {
		payload[v.Key] = v.Value
	}

	saveErr := c.api.SaveEnv(ctx, id, payload)
	c.applyVars(id, vars)
	if saveErr != nil {
		c.logger.Error("failed to save env vars", "service", id, "error", saveErr)
		svc, _ = c.Service(id)
		return svc, fmt.Errorf("%w: %w", ErrSaveFailed, saveErr)
	}
	c.logger.Info("env vars saved", "service", id, "complete", complete(vars))

	if selectAfter {
		if !complete(vars) {
			svc, _ = c.Service(id)
			return svc, &IncompleteError{
				Services: []string{svc.Name},
				Form:     &Form{ServiceID: id, ServiceName: svc.Name, Vars: vars, Message: IncompleteMessage},
			}
		}
		svc, _ = c.Service(id)
		if !svc.IsSelected {
			return c.toggle(ctx, svc)
		}
	}

	svc, _ = c.Service(id)
	return svc, nil
}

// ToggleSelection flips the selection of a service. Before selecting a
// service with required variables, the stored values are re-fetched; if any
// is blank the toggle is refused with an *IncompleteError carrying the
// pre-filled form.
func (c *Controller) ToggleSelection(ctx context.Context, id string) (Service, error) {
	svc, ok := c.Service(id)
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	if len(svc.RequiredEnvVars) == 0 {
		return c.toggle(ctx, svc)
	}

	vars, err := c.fetchVars(ctx, svc)
	if err != nil {
		return svc, err
	}
	c.applyVars(id, vars)
	svc, _ = c.Service(id)

	if !svc.IsSelected && !complete(vars) {
		return svc, &IncompleteError{
			Services: []string{svc.Name},
			Form:     &Form{ServiceID: id, ServiceName: svc.Name, Vars: vars, Message: IncompleteMessage},
		}
	}
	return c.toggle(ctx, svc)
}

// toggle sends the current selection state to the server and applies the
// state it answers with.
func (c *Controller) toggle(ctx context.Context, svc Service) (Service, error) {
	var (
		res *client.SelectResult
		err error
	)
	if svc.IsSelected {
		res, err = c.api.Deselect(ctx, svc.ID)
	} else {
		res, err = c.api.Select(ctx, svc.ID)
	}
	if err != nil {
		c.logger.Error("failed to toggle service", "service", svc.ID, "error", err)
		return svc, fmt.Errorf("toggle %s: %w", svc.Name, err)
	}

	selected := !svc.IsSelected
	if res != nil && res.IsSelected != nil {
		selected = *res.IsSelected
	}

	c.mu.Lock()
	if i := c.indexLocked(svc.ID); i >= 0 {
		c.services[i].IsSelected = selected
		svc = c.services[i].clone()
	}
	c.mu.Unlock()

	c.logger.Info("service toggled", "service", svc.ID, "selected", selected)
	return svc, nil
}

// fetchVars returns the server-stored values of svc in declared order. A 404
// means nothing is stored.
func (c *Controller) fetchVars(ctx context.Context, svc Service) ([]EnvVar, error) {
	values, err := c.api.GetEnv(ctx, svc.ID)
	if err != nil {
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) || !apiErr.NotFound() {
			return nil, fmt.Errorf("fetch env for %s: %w", svc.Name, err)
		}
		values = map[string]string{}
	}
	return fillVars(svc.RequiredEnvVars, values), nil
}

func (c *Controller) applyVars(id string, vars []EnvVar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return
	}
	c.services[i].RequiredEnvVars = append([]EnvVar(nil), vars...)
	c.services[i].Active = complete(vars)
	c.writeFlagsLocked()
}

func (c *Controller) setLoading(id string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.loading[id] = true
	} else {
		delete(c.loading, id)
	}
}

func (c *Controller) indexLocked(id string) int {
	for i, s := range c.services {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) readFlags() map[string]bool {
	out := map[string]bool{}
	raw, ok := c.st.Get(store.KeyServices)
	if !ok || raw == "" {
		return out
	}
	var flags []cachedFlag
	if err := json.Unmarshal([]byte(raw), &flags); err != nil {
		c.logger.Warn("ignoring unreadable service cache", "error", err)
		return out
	}
	for _, f := range flags {
		out[f.ID] = f.Active
	}
	return out
}

func (c *Controller) writeFlagsLocked() {
	flags := make([]cachedFlag, len(c.services))
	for i, s := range c.services {
		flags[i] = cachedFlag{ID: s.ID, Active: s.Active}
	}
	data, err := json.Marshal(flags)
	if err != nil {
		c.logger.Error("encode service cache", "error", err)
		return
	}
	if err := c.st.Set(store.KeyServices, string(data)); err != nil {
		c.logger.Warn("failed to write service cache", "error", err)
	}
}
