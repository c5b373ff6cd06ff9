package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/mcp"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
	"github.com/raphaelgruber/mcpchat-go/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, opts ...mcp.Option) (*testutil.Backend, *store.MemoryStore, *mcp.Controller) {
	t.Helper()
	b := testutil.NewBackend(t)
	b.AddMCP("maps", "Maps")
	b.AddMCP("gh", "GitHub", "GITHUB_TOKEN")
	b.AddMCP("jira", "Jira", "JIRA_URL", "JIRA_TOKEN")

	st := store.NewMemory()
	require.NoError(t, st.Set(store.KeyAccessToken, testutil.DefaultToken))
	ctrl := mcp.NewController(client.New(b.URL(), st), st, opts...)
	return b, st, ctrl
}

func findService(t *testing.T, services []mcp.Service, id string) mcp.Service {
	t.Helper()
	for _, s := range services {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("service %q not found", id)
	return mcp.Service{}
}

func TestLoadServicesActiveWithoutVars(t *testing.T) {
	_, st, ctrl := setup(t)

	services, err := ctrl.LoadServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 3)

	assert.True(t, findService(t, services, "maps").Active)
	assert.False(t, findService(t, services, "gh").Active)
	assert.Equal(t, []string{"JIRA_URL", "JIRA_TOKEN"}, findService(t, services, "jira").Keys())
	assert.Equal(t, "github", findService(t, services, "gh").Icon)

	raw, ok := st.Get(store.KeyServices)
	require.True(t, ok)
	var cached []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Len(t, cached, 3)
	for _, entry := range cached {
		assert.ElementsMatch(t, []string{"id", "active"}, keysOf(entry), "only flags are cached")
	}
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestLoadServicesMergesCachedFlags(t *testing.T) {
	_, st, ctrl := setup(t)
	require.NoError(t, st.Set(store.KeyServices, `[{"id":"gh","active":true},{"id":"maps","active":false}]`))

	services, err := ctrl.LoadServices(context.Background())
	require.NoError(t, err)

	assert.True(t, findService(t, services, "gh").Active)
	assert.True(t, findService(t, services, "maps").Active, "zero-variable services stay active")
}

func TestOpenConfigurationLazilyFetchesOneService(t *testing.T) {
	b, _, ctrl := setup(t)
	b.SetEnv("jira", map[string]string{"JIRA_URL": "https://jira.example.com"})
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	form, err := ctrl.OpenConfiguration(ctx, "jira")
	require.NoError(t, err)

	assert.Equal(t, []mcp.EnvVar{
		{Key: "JIRA_URL", Value: "https://jira.example.com"},
		{Key: "JIRA_TOKEN", Value: ""},
	}, form.Vars)
	assert.Equal(t, []string{"JIRA_TOKEN"}, form.Missing())
	assert.False(t, ctrl.Loading("jira"))
	assert.Equal(t, 1, b.CountRequests("GET /env/jira"))
	assert.Equal(t, 0, b.CountRequests("GET /env/"), "values are never bulk fetched")

	form, err = ctrl.OpenConfiguration(ctx, "gh")
	require.NoError(t, err, "nothing stored is not an error")
	assert.Equal(t, []mcp.EnvVar{{Key: "GITHUB_TOKEN"}}, form.Vars)

	_, err = ctrl.OpenConfiguration(ctx, "nope")
	assert.ErrorIs(t, err, mcp.ErrUnknownService)
}

func TestSaveConfigurationRoundTrip(t *testing.T) {
	_, _, ctrl := setup(t)
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	values := map[string]string{"JIRA_URL": "https://jira.example.com", "JIRA_TOKEN": "t0k"}
	svc, err := ctrl.SaveConfiguration(ctx, "jira", values, false)
	require.NoError(t, err)
	assert.True(t, svc.Active)
	assert.False(t, svc.IsSelected)

	form, err := ctrl.OpenConfiguration(ctx, "jira")
	require.NoError(t, err)
	assert.Equal(t, values, form.Values())
}

func TestSaveConfigurationPersistsBlanks(t *testing.T) {
	b, _, ctrl := setup(t)
	b.SetEnv("gh", map[string]string{"GITHUB_TOKEN": "old"})
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	svc, err := ctrl.SaveConfiguration(ctx, "gh", map[string]string{"GITHUB_TOKEN": ""}, false)
	require.NoError(t, err)
	assert.False(t, svc.Active)

	form, err := ctrl.OpenConfiguration(ctx, "gh")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"GITHUB_TOKEN": ""}, form.Values())
}

func TestSaveConfigurationFailureAppliesLocally(t *testing.T) {
	b, st, ctrl := setup(t)
	b.FailEnvSave = true
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	svc, err := ctrl.SaveConfiguration(ctx, "gh", map[string]string{"GITHUB_TOKEN": "abc"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, mcp.ErrSaveFailed)
	var apiErr *client.APIError
	assert.True(t, errors.As(err, &apiErr))

	assert.True(t, svc.Active)
	raw, _ := st.Get(store.KeyServices)
	assert.Contains(t, raw, `{"id":"gh","active":true}`)
	assert.NotContains(t, raw, "abc", "secrets never reach the local cache")
}

func TestSaveConfigurationSelectAfter(t *testing.T) {
	b, _, ctrl := setup(t)
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	_, err = ctrl.SaveConfiguration(ctx, "jira", map[string]string{"JIRA_URL": "u"}, true)
	var incomplete *mcp.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	require.NotNil(t, incomplete.Form)
	assert.Equal(t, []string{"JIRA_TOKEN"}, incomplete.Form.Missing())
	assert.False(t, b.IsSelected("jira"))

	svc, err := ctrl.SaveConfiguration(ctx, "jira", map[string]string{"JIRA_URL": "u", "JIRA_TOKEN": "t"}, true)
	require.NoError(t, err)
	assert.True(t, svc.IsSelected)
	assert.True(t, b.IsSelected("jira"))
}

func TestToggleRejectsIncompleteService(t *testing.T) {
	b, _, ctrl := setup(t)
	b.SetEnv("gh", map[string]string{"GITHUB_TOKEN": ""})
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	_, err = ctrl.ToggleSelection(ctx, "gh")

	var incomplete *mcp.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, mcp.IncompleteMessage, err.Error())
	require.NotNil(t, incomplete.Form)
	assert.Equal(t, []mcp.EnvVar{{Key: "GITHUB_TOKEN", Value: ""}}, incomplete.Form.Vars)
	assert.Equal(t, mcp.IncompleteMessage, incomplete.Form.Message)

	assert.False(t, b.IsSelected("gh"))
	assert.Equal(t, 0, b.CountRequests("POST /select/gh"))
}

func TestToggleRefetchesBeforeSelecting(t *testing.T) {
	b, _, ctrl := setup(t)
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	// Configured elsewhere after the catalog was loaded.
	b.SetEnv("gh", map[string]string{"GITHUB_TOKEN": "ghp_x"})

	svc, err := ctrl.ToggleSelection(ctx, "gh")
	require.NoError(t, err)
	assert.True(t, svc.IsSelected)
	assert.True(t, svc.Active)
	assert.Equal(t, 1, b.CountRequests("GET /env/gh"))
}

func TestToggleTwiceReturnsToUnselected(t *testing.T) {
	b, _, ctrl := setup(t)
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	svc, err := ctrl.ToggleSelection(ctx, "maps")
	require.NoError(t, err)
	assert.True(t, svc.IsSelected)
	assert.True(t, b.IsSelected("maps"))

	svc, err = ctrl.ToggleSelection(ctx, "maps")
	require.NoError(t, err)
	assert.False(t, svc.IsSelected)
	assert.False(t, b.IsSelected("maps"))

	assert.Equal(t, 1, b.CountRequests("POST /select/maps"))
	assert.Equal(t, 1, b.CountRequests("DELETE /select/maps"))
}

func TestCreatePodAggregatesIncompleteServices(t *testing.T) {
	b, _, ctrl := setup(t)
	b.Selected["gh"] = true
	b.Selected["jira"] = true
	b.Selected["maps"] = true
	b.SetEnv("jira", map[string]string{"JIRA_URL": "u", "JIRA_TOKEN": ""})
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	_, err = ctrl.CreatePod(ctx)

	var incomplete *mcp.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"GitHub", "Jira"}, incomplete.Services)
	assert.Nil(t, incomplete.Form)
	assert.Contains(t, err.Error(), "GitHub, Jira")
	assert.Equal(t, 0, b.CountRequests("POST /pod"))
}

func TestCreatePodSendsSelectedServices(t *testing.T) {
	b, _, ctrl := setup(t)
	b.Selected["gh"] = true
	b.Selected["maps"] = true
	b.SetEnv("gh", map[string]string{"GITHUB_TOKEN": "x"})
	ctx := context.Background()
	_, err := ctrl.LoadServices(ctx)
	require.NoError(t, err)

	res, err := ctrl.CreatePod(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.PodName)
	assert.Equal(t, "agent-pod-1", *res.PodName)

	require.Len(t, b.PodRequests, 1)
	assert.Equal(t, []string{"maps", "gh"}, b.PodRequests[0])
}

func TestCreatePodEmptyPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  mcp.PodPolicy
		wantErr error
	}{
		{name: "allowed", policy: mcp.PodPolicy{AllowEmpty: true}},
		{name: "refused", policy: mcp.PodPolicy{AllowEmpty: false}, wantErr: mcp.ErrNoServicesSelected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, ctrl := setup(t, mcp.WithPodPolicy(tt.policy))
			ctx := context.Background()
			_, err := ctrl.LoadServices(ctx)
			require.NoError(t, err)

			_, err = ctrl.CreatePod(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, b.CountRequests("POST /pod"))
				return
			}
			require.NoError(t, err)
			require.Len(t, b.PodRequests, 1)
			assert.Empty(t, b.PodRequests[0])
		})
	}
}
