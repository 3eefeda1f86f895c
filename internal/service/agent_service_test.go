package service

import (
	"context"
	"errors"
	"testing"

	"checkin-companion/internal/config"
	"checkin-companion/internal/model"
	"checkin-companion/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentReplies(t *testing.T) {
	history := []model.Message{
		{Text: "Hallo", Sender: model.SenderUser},
		{Text: "Hi!", Sender: model.SenderAgent},
	}
	tests := []struct {
		name   string
		client *scriptedLLM
		apiKey string
		want   string
	}{
		{name: "reply", client: &scriptedLLM{reply: "Schön, von dir zu hören."}, apiKey: "k", want: "Schön, von dir zu hören."},
		{name: "demo mode without key", client: &scriptedLLM{reply: "unused"}, want: ReplyDemoMode},
		{name: "empty completion", client: &scriptedLLM{err: llm.ErrEmptyCompletion}, apiKey: "k", want: ReplyNotUnderstood},
		{name: "transport failure", client: &scriptedLLM{err: errors.New("timeout")}, apiKey: "k", want: ReplyConnectionLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := NewAgentService(tt.client, config.LLMConfig{APIKey: tt.apiKey})
			assert.Equal(t, tt.want, agent.GetReply(context.Background(), history, "Wie geht's?"))
		})
	}
}

func TestAgentDemoModeSkipsClient(t *testing.T) {
	client := &scriptedLLM{}
	agent := NewAgentService(client, config.LLMConfig{})
	agent.GetReply(context.Background(), nil, "Hallo")
	assert.Zero(t, client.calls)

	assert.Equal(t, ReplyDemoMode, NewAgentService(nil, config.LLMConfig{APIKey: "k"}).GetReply(context.Background(), nil, "Hallo"))
}

func TestAgentRequestShape(t *testing.T) {
	client := &scriptedLLM{reply: "ok"}
	agent := NewAgentService(client, config.LLMConfig{APIKey: "k"})
	agent.GetReply(context.Background(), []model.Message{
		{Text: "eins", Sender: model.SenderUser},
		{Text: "zwei", Sender: model.SenderAgent},
		{Text: "drei", Sender: model.SenderUser},
	}, "vier")

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Contains(t, req.SystemInstruction, "Sprich Deutsch.")
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.7, *req.Temperature, 0.0001)
	assert.Equal(t, "vier", req.Message)
	assert.Equal(t, []llm.Content{
		{Role: llm.RoleUser, Text: "eins"},
		{Role: llm.RoleModel, Text: "zwei"},
		{Role: llm.RoleUser, Text: "drei"},
	}, req.History)
}
