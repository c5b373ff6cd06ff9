package cli

import (
	"bytes"
	"testing"

	"github.com/raphaelgruber/mcpchat-go/internal/chat"
	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jiraForm() *mcp.Form {
	return &mcp.Form{
		ServiceID:   "jira",
		ServiceName: "Jira",
		Vars: []mcp.EnvVar{
			{Key: "JIRA_URL", Value: "https://example.atlassian.net"},
			{Key: "JIRA_TOKEN"},
		},
	}
}

func TestServiceValuesAppliesAssignments(t *testing.T) {
	values, err := serviceValues(jiraForm(), []string{"JIRA_TOKEN=abc=def"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"JIRA_URL":   "https://example.atlassian.net",
		"JIRA_TOKEN": "abc=def",
	}, values)
}

func TestServiceValuesRejectsBadAssignments(t *testing.T) {
	tests := []struct {
		name       string
		assignment string
		want       string
	}{
		{"missing equals", "JIRA_TOKEN", "expected KEY=VALUE"},
		{"empty key", "=abc", "expected KEY=VALUE"},
		{"unknown key", "GITHUB_TOKEN=x", "Jira does not use GITHUB_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := serviceValues(jiraForm(), []string{tt.assignment})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLastBotMessage(t *testing.T) {
	user := chat.Message{ID: "1", Content: "hi", Sender: chat.SenderUser}
	bot := chat.Message{ID: "2", Content: "hello", Sender: chat.SenderBot}
	welcome := chat.Message{ID: chat.WelcomeID, Content: chat.WelcomeText, Sender: chat.SenderBot}

	got, ok := lastBotMessage([]chat.Message{user, bot})
	assert.True(t, ok)
	assert.Equal(t, "hello", got.Content)

	_, ok = lastBotMessage([]chat.Message{bot, user})
	assert.False(t, ok)

	_, ok = lastBotMessage([]chat.Message{welcome})
	assert.False(t, ok)

	_, ok = lastBotMessage(nil)
	assert.False(t, ok)
}

func TestCountExchanges(t *testing.T) {
	msgs := []chat.Message{
		{Sender: chat.SenderUser}, {Sender: chat.SenderBot},
		{Sender: chat.SenderUser}, {Sender: chat.SenderBot},
	}
	assert.Equal(t, 2, countExchanges(msgs))
}

func TestFormatSessionListMarksCurrent(t *testing.T) {
	sessions := []client.Session{
		{SessionID: "a", SessionName: "Sprint", MessageCount: 4},
		{SessionID: "b", SessionName: "Release", MessageCount: 0},
	}

	out := formatSessionList(sessions, "b")

	assert.Equal(t, "  1. Sprint (4)\n* 2. Release (0)", out)
	assert.Contains(t, formatSessionList(nil, ""), "/new")
}

func TestPrintTranscriptWithoutRenderer(t *testing.T) {
	var buf bytes.Buffer
	printTranscript(&buf, markdown{}, []chat.Message{
		{Content: "what's up", Sender: chat.SenderUser},
		{Content: "**all good**", Sender: chat.SenderBot},
	})

	out := buf.String()
	assert.Contains(t, out, "what's up")
	assert.Contains(t, out, "**all good**")
	assert.Contains(t, out, "Bot ›")
}
