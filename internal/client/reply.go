package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Time accepts the timestamp layouts the backend emits, including Python's
// isoformat without a zone (read as UTC).
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON parses a JSON string timestamp. null and "" give the zero time.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised layout %q", s)
}

// HistoryEntry is one user/assistant exchange.
type HistoryEntry struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	Timestamp Time   `json:"timestamp,omitzero"`
}

// HistoryMessage is one message of a flat message list.
type HistoryMessage struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	Sender    string `json:"sender,omitempty"`
	Role      string `json:"role,omitempty"`
	Timestamp Time   `json:"timestamp,omitzero"`
}

// FromUser reports whether the message was authored by the user.
func (m HistoryMessage) FromUser() bool {
	return m.Sender == "user" || m.Role == "user"
}

// HistoryKind discriminates History.
type HistoryKind int

const (
	// HistoryEmpty carries no transcript.
	HistoryEmpty HistoryKind = iota
	// HistoryPairs carries user/assistant exchanges.
	HistoryPairs
	// HistoryMessages carries a flat message list.
	HistoryMessages
)

// History is the transcript returned by the history endpoint.
type History struct {
	Kind     HistoryKind
	Pairs    []HistoryEntry
	Messages []HistoryMessage
}

type historyWire struct {
	History  json.RawMessage `json:"history"`
	Messages json.RawMessage `json:"messages"`
}

// DecodeHistory decodes a history response. A "history" array takes
// precedence over "messages"; neither present yields HistoryEmpty.
func DecodeHistory(data []byte) (History, error) {
	var wire historyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return History{}, fmt.Errorf("unmarshal history: %w", err)
	}

	if isArray(wire.History) {
		var pairs []HistoryEntry
		if err := json.Unmarshal(wire.History, &pairs); err != nil {
			return History{}, fmt.Errorf("unmarshal history pairs: %w", err)
		}
		return History{Kind: HistoryPairs, Pairs: pairs}, nil
	}
	if isArray(wire.Messages) {
		var msgs []HistoryMessage
		if err := json.Unmarshal(wire.Messages, &msgs); err != nil {
			return History{}, fmt.Errorf("unmarshal history messages: %w", err)
		}
		return History{Kind: HistoryMessages, Messages: msgs}, nil
	}
	return History{Kind: HistoryEmpty}, nil
}

// ReplyKind discriminates ChatReply.
type ReplyKind int

const (
	// ReplyUnknown is any response shape the client does not understand.
	ReplyUnknown ReplyKind = iota
	// ReplyHistory carries the full session history.
	ReplyHistory
	// ReplySingle carries one assistant reply.
	ReplySingle
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyHistory:
		return "history"
	case ReplySingle:
		return "single"
	default:
		return "unknown"
	}
}

// ChatReply is the response of the chat endpoint.
type ChatReply struct {
	Kind     ReplyKind
	History  []HistoryEntry
	Response string
}

type chatReplyWire struct {
	History  json.RawMessage `json:"history"`
	Response json.RawMessage `json:"response"`
}

// DecodeChatReply classifies a chat response body. It never fails: anything
// that is neither a history array nor a string response is ReplyUnknown.
// A null response carries no reply and is ReplyUnknown too.
func DecodeChatReply(data []byte) ChatReply {
	var wire chatReplyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return ChatReply{Kind: ReplyUnknown}
	}

	if isArray(wire.History) {
		var pairs []HistoryEntry
		if err := json.Unmarshal(wire.History, &pairs); err == nil {
			return ChatReply{Kind: ReplyHistory, History: pairs}
		}
	}
	if len(wire.Response) > 0 {
		var s *string
		if err := json.Unmarshal(wire.Response, &s); err == nil && s != nil {
			return ChatReply{Kind: ReplySingle, Response: *s}
		}
	}
	return ChatReply{Kind: ReplyUnknown}
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
