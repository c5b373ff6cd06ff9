// Package chat implements the session directory and the chat transcript
// controller: session bootstrap, selection, sending and history reconciliation.
package chat

import (
	"fmt"
	"strconv"
	"time"

	"github.com/raphaelgruber/mcpchat-go/internal/client"
)

// User-facing texts.
const (
	DefaultSessionName  = "새 대화"
	WelcomeText         = "안녕하세요! 무엇을 도와드릴까요?"
	UnexpectedReplyText = "서버 응답 형식이 올바르지 않습니다"
	SendFailedText      = "서버와 통신 중 오류가 발생했습니다."
)

// WelcomeID is the id of the static welcome message.
const WelcomeID = "welcome"

// Sender identifies the author of a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one transcript entry. Content is markdown.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// IsWelcome reports whether m is the static welcome message.
func (m Message) IsWelcome() bool {
	return m.ID == WelcomeID
}

func welcomeMessage(now time.Time) Message {
	return Message{ID: WelcomeID, Content: WelcomeText, Sender: SenderBot, Timestamp: now}
}

// idSource hands out millisecond timestamp ids, bumping by one when two
// messages are authored within the same millisecond.
type idSource struct {
	last int64
}

func (s *idSource) next(now time.Time) string {
	ms := now.UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return strconv.FormatInt(ms, 10)
}

// messagesFromPairs expands history exchanges into alternating user and bot
// messages. Entries without a server timestamp get now for the user message
// and now+1s for the bot message.
func messagesFromPairs(pairs []client.HistoryEntry, now time.Time) []Message {
	out := make([]Message, 0, len(pairs)*2)
	for i, p := range pairs {
		userTS, botTS := p.Timestamp.Time, p.Timestamp.Time
		if p.Timestamp.IsZero() {
			userTS = now
			botTS = now.Add(time.Second)
		}
		out = append(out,
			Message{ID: fmt.Sprintf("h%d-user", i), Content: p.User, Sender: SenderUser, Timestamp: userTS},
			Message{ID: fmt.Sprintf("h%d-bot", i), Content: p.Assistant, Sender: SenderBot, Timestamp: botTS},
		)
	}
	return out
}

func messagesFromList(msgs []client.HistoryMessage, now time.Time) []Message {
	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		id := m.ID
		if id == "" {
			id = fmt.Sprintf("m%d", i)
		}
		sender := SenderBot
		if m.FromUser() {
			sender = SenderUser
		}
		ts := m.Timestamp.Time
		if ts.IsZero() {
			ts = now
		}
		out = append(out, Message{ID: id, Content: m.Content, Sender: sender, Timestamp: ts})
	}
	return out
}

func messagesFromHistory(h client.History, now time.Time) []Message {
	switch h.Kind {
	case client.HistoryPairs:
		return messagesFromPairs(h.Pairs, now)
	case client.HistoryMessages:
		return messagesFromList(h.Messages, now)
	case client.HistoryEmpty:
		return []Message{}
	}
	return []Message{}
}
