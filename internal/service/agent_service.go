package service

import (
	"context"
	"errors"

	"checkin-companion/internal/config"
	"checkin-companion/internal/model"
	"checkin-companion/pkg/llm"
	"checkin-companion/pkg/log"
)

const systemInstruction = `Du bist ein freundlicher, empathischer Begleiter für eine Forschungsstudie.
Deine Aufgabe ist es, ein kurzes, unterstützendes Gespräch zu führen.
Halte deine Antworten eher kurz und gesprächig (max 2-3 Sätze).
Du bist kein Therapeut, sondern ein neutraler Zuhörer.
Sprich Deutsch.`

const agentTemperature = 0.7

// 回退回复
const (
	ReplyNotUnderstood  = "Entschuldigung, ich habe das nicht verstanden."
	ReplyConnectionLost = "Entschuldigung, es gab ein Verbindungsproblem. Bitte versuche es später noch einmal."
	ReplyDemoMode       = "(Demo-Modus) Danke, dass du das mit mir teilst. Erzähl mir gern mehr darüber, wie es dir heute geht."
)

// AgentService 获取对话代理的回复。
type AgentService interface {
	// GetReply 从不返回错误：任何失败都会转换成一句回退回复。
	GetReply(ctx context.Context, history []model.Message, newText string) string
}

type agentService struct {
	llmClient llm.Client
	demo      bool
}

// NewAgentService 创建一个新的 AgentService 实例。未配置 API key 时进入演示模式。
func NewAgentService(llmClient llm.Client, cfg config.LLMConfig) AgentService {
	return &agentService{
		llmClient: llmClient,
		demo:      llmClient == nil || cfg.APIKey == "",
	}
}

func (s *agentService) GetReply(ctx context.Context, history []model.Message, newText string) string {
	if s.demo {
		return ReplyDemoMode
	}

	temp := agentTemperature
	reply, err := s.llmClient.GenerateContent(ctx, llm.ChatRequest{
		SystemInstruction: systemInstruction,
		Temperature:       &temp,
		History:           toContents(history),
		Message:           newText,
	})
	if errors.Is(err, llm.ErrEmptyCompletion) {
		return ReplyNotUnderstood
	}
	if err != nil {
		log.Errorw("对话代理调用失败", "error", err)
		return ReplyConnectionLost
	}
	return reply
}

func toContents(history []model.Message) []llm.Content {
	out := make([]llm.Content, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Sender == model.SenderAgent {
			role = llm.RoleModel
		}
		out = append(out, llm.Content{Role: role, Text: m.Text})
	}
	return out
}
