// Package mcp manages the user's MCP integrations: the catalog, per-service
// environment variables, selection and pod provisioning.
package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
)

// IncompleteMessage explains why a service cannot be selected yet.
const IncompleteMessage = "모든 환경변수를 입력해야 서비스를 선택할 수 있습니다."

var (
	// ErrSaveFailed is wrapped when the server rejects an env save. The local
	// state has already been updated.
	ErrSaveFailed = errors.New("환경변수 저장에 실패했습니다")
	// ErrNoServicesSelected is returned by CreatePod when empty pods are not
	// allowed.
	ErrNoServicesSelected = errors.New("선택된 서비스가 없습니다")
	// ErrUnknownService is returned for ids missing from the loaded catalog.
	ErrUnknownService = errors.New("unknown service")
)

// EnvVar is one required environment variable of a service.
type EnvVar struct {
	Key   string
	Value string
}

// Service is a catalog entry merged with local state.
type Service struct {
	ID          string
	Name        string
	Icon        string
	Description string
	// Active is true when every required variable has a value.
	Active     bool
	IsSelected bool
	// RequiredEnvVars keeps the server's key order. Values stay empty until
	// the service's configuration is opened.
	RequiredEnvVars []EnvVar
}

// Keys returns the required variable names in order.
func (s Service) Keys() []string {
	keys := make([]string, len(s.RequiredEnvVars))
	for i, v := range s.RequiredEnvVars {
		keys[i] = v.Key
	}
	return keys
}

func (s Service) clone() Service {
	s.RequiredEnvVars = append([]EnvVar(nil), s.RequiredEnvVars...)
	return s
}

func serviceFromMCP(m client.MCP) Service {
	vars := make([]EnvVar, len(m.RequiredEnvVars))
	for i, k := range m.RequiredEnvVars {
		vars[i] = EnvVar{Key: k}
	}
	return Service{
		ID:              m.PublicID,
		Name:            m.Name,
		Icon:            m.MCPType,
		Description:     m.Description,
		Active:          len(vars) == 0,
		IsSelected:      m.IsSelected,
		RequiredEnvVars: vars,
	}
}

// Form is the configuration form of one service.
type Form struct {
	ServiceID   string
	ServiceName string
	Vars        []EnvVar
	// Message is an explanation shown above the form, if any.
	Message string
}

// Values returns the form as a key/value map.
func (f *Form) Values() map[string]string {
	out := make(map[string]string, len(f.Vars))
	for _, v := range f.Vars {
		out[v.Key] = v.Value
	}
	return out
}

// Missing returns the keys with blank values.
func (f *Form) Missing() []string {
	return missingKeys(f.Vars)
}

// IncompleteError reports services whose required variables are not all set.
// Form is set when a single service's selection was refused and carries its
// pre-filled configuration.
type IncompleteError struct {
	Services []string
	Form     *Form
}

func (e *IncompleteError) Error() string {
	if e.Form != nil || len(e.Services) == 0 {
		return IncompleteMessage
	}
	return fmt.Sprintf("%s (%s)", IncompleteMessage, strings.Join(e.Services, ", "))
}

func fillVars(keys []EnvVar, values map[string]string) []EnvVar {
	out := make([]EnvVar, len(keys))
	for i, v := range keys {
		out[i] = EnvVar{Key: v.Key, Value: values[v.Key]}
	}
	return out
}

func missingKeys(vars []EnvVar) []string {
	var missing []string
	for _, v := range vars {
		if strings.TrimSpace(v.Value) == "" {
			missing = append(missing, v.Key)
		}
	}
	return missing
}

func complete(vars []EnvVar) bool {
	return len(missingKeys(vars)) == 0
}
