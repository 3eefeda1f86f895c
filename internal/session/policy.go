package session

import "checkin-companion/internal/model"

// Policy 是每日聊天的限额规则。
type Policy struct {
	MaxUserMessages int
	MinAgentReplies int
}

// DefaultPolicy 每天最多 10 条用户消息，收到 5 条回复后开放问卷。
var DefaultPolicy = Policy{MaxUserMessages: 10, MinAgentReplies: 5}

// ChatStatus 描述当天聊天输入框与问卷入口的状态。
type ChatStatus struct {
	UserMessages     int  `json:"userMessages"`
	AgentReplies     int  `json:"agentReplies"`
	MaxUserMessages  int  `json:"maxUserMessages"`
	Locked           bool `json:"locked"`
	SurveyAvailable  bool `json:"surveyAvailable"`
	SurveyEmphasized bool `json:"surveyEmphasized"`
}

// Status 根据会话内容计算聊天门控状态。
func Status(sess model.DailySession, p Policy) ChatStatus {
	users := sess.CountBySender(model.SenderUser)
	agents := sess.CountBySender(model.SenderAgent)
	locked := users >= p.MaxUserMessages
	available := agents >= p.MinAgentReplies
	return ChatStatus{
		UserMessages:     users,
		AgentReplies:     agents,
		MaxUserMessages:  p.MaxUserMessages,
		Locked:           locked,
		SurveyAvailable:  available,
		SurveyEmphasized: available && locked,
	}
}
