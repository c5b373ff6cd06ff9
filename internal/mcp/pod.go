package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"golang.org/x/sync/errgroup"
)

// CreatePod provisions a runtime with the selected services. Every selected
// service is re-validated against the server first; incomplete services are
// reported together in one *IncompleteError and nothing is provisioned.
func (c *Controller) CreatePod(ctx context.Context) (*client.PodResult, error) {
	var selected []Service
	for _, s := range c.Services() {
		if s.IsSelected {
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 && !c.policy.AllowEmpty {
		return nil, ErrNoServicesSelected
	}

	incomplete := make([]bool, len(selected))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range selected {
		if len(svc.RequiredEnvVars) == 0 {
			continue
		}
		g.Go(func() error {
			vars, err := c.fetchVars(gctx, svc)
			if err != nil {
				return err
			}
			c.applyVars(svc.ID, vars)
			if !complete(vars) {
				mu.Lock()
				incomplete[i] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validate services: %w", err)
	}

	var names []string
	for i, bad := range incomplete {
		if bad {
			names = append(names, selected[i].Name)
		}
	}
	if len(names) > 0 {
		c.logger.Warn("pod request blocked by incomplete services", "services", names)
		return nil, &IncompleteError{Services: names}
	}

	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ID
	}
	res, err := c.api.CreatePod(ctx, ids)
	if err != nil {
		c.logger.Error("pod request failed", "error", err)
		return nil, fmt.Errorf("create pod: %w", err)
	}
	c.logger.Info("pod requested", "services", ids, "success", res.Success)
	return res, nil
}
