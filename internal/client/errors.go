package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches any APIError with status 401.
// Use errors.Is() to check for it in calling code.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *APIError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("api error: %s: %s", e.Status, msg)
	}
	return fmt.Sprintf("api error: %s", e.Status)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// NotFound reports whether the backend answered 404.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Message returns the human-readable part of the error body.
func (e *APIError) Message() string {
	return DetailMessage(e.Body)
}

// DetailMessage extracts a user-facing message from an error body.
// A plain string body wins; otherwise the "detail" field is used, either as a
// string or as a list of {msg} objects joined with spaces. Returns "" when
// nothing usable is present.
func DetailMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		// Not JSON at all: the body itself is the message.
		return string(trimmed)
	}

	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		return detailField(v["detail"])
	}
	return ""
}

func detailField(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []any:
		msgs := make([]string, 0, len(d))
		for _, item := range d {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := obj["msg"].(string); ok && msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, " ")
	}
	return ""
}

// ErrorMessage returns the user-facing message of err if it is an APIError,
// or fallback otherwise.
func ErrorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Message(); msg != "" {
			return msg
		}
	}
	return fallback
}
