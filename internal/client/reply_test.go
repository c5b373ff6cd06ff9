package client

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", ""},
		{"string body", `"session expired"`, "session expired"},
		{"plain text body", "Bad Gateway", "Bad Gateway"},
		{"detail string", `{"detail":"not found"}`, "not found"},
		{"detail list", `{"detail":[{"msg":"field required"}]}`, "field required"},
		{"detail list joined", `{"detail":[{"msg":"a"},{"msg":"b"}]}`, "a b"},
		{"detail list skips junk", `{"detail":[{"loc":["x"]},{"msg":"b"},"c"]}`, "b"},
		{"no detail", `{"error":"x"}`, ""},
		{"array body", `[1,2]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetailMessage([]byte(tt.body)))
		})
	}
}

func TestErrorMessageFallback(t *testing.T) {
	assert.Equal(t, "fallback", ErrorMessage(errors.New("dial tcp: refused"), "fallback"))
	assert.Equal(t, "fallback", ErrorMessage(&APIError{StatusCode: 500, Body: []byte(`{}`)}, "fallback"))
	assert.Equal(t, "nope", ErrorMessage(&APIError{StatusCode: 400, Body: []byte(`{"detail":"nope"}`)}, "fallback"))
}

func TestDecodeChatReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ReplyKind
	}{
		{"history", `{"history":[{"user":"hi","assistant":"hello"}]}`, ReplyHistory},
		{"empty history", `{"history":[]}`, ReplyHistory},
		{"single", `{"response":"hello","timestamp":"2025-01-01T00:00:00"}`, ReplySingle},
		{"history wins over response", `{"history":[],"response":"x"}`, ReplyHistory},
		{"response not a string", `{"response":{"text":"x"}}`, ReplyUnknown},
		{"null response", `{"response":null}`, ReplyUnknown},
		{"empty string response", `{"response":""}`, ReplySingle},
		{"history not an array", `{"history":"x"}`, ReplyUnknown},
		{"unrelated object", `{"ok":true}`, ReplyUnknown},
		{"not json", `<html>`, ReplyUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeChatReply([]byte(tt.body)).Kind)
		})
	}
}

func TestDecodeHistory(t *testing.T) {
	h, err := DecodeHistory([]byte(`{"history":[{"user":"q","assistant":"a","timestamp":"2025-03-01T10:00:00.123456"}]}`))
	require.NoError(t, err)
	require.Equal(t, HistoryPairs, h.Kind)
	require.Len(t, h.Pairs, 1)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC), h.Pairs[0].Timestamp.Time)

	h, err = DecodeHistory([]byte(`{"messages":[{"id":"m1","content":"q","role":"user"},{"id":"m2","content":"a","sender":"bot"}]}`))
	require.NoError(t, err)
	require.Equal(t, HistoryMessages, h.Kind)
	require.Len(t, h.Messages, 2)
	assert.True(t, h.Messages[0].FromUser())
	assert.False(t, h.Messages[1].FromUser())

	h, err = DecodeHistory([]byte(`{"session_active":false}`))
	require.NoError(t, err)
	assert.Equal(t, HistoryEmpty, h.Kind)

	_, err = DecodeHistory([]byte(`nope`))
	assert.Error(t, err)
}

func TestTimeUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{"rfc3339", `"2025-01-02T03:04:05Z"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"python isoformat", `"2025-01-02T03:04:05"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"space separated", `"2025-01-02 03:04:05"`, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"null", `null`, time.Time{}, false},
		{"empty", `""`, time.Time{}, false},
		{"garbage", `"yesterday"`, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Time
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got.Time), "got %v want %v", got.Time, tt.want)
		})
	}
}
