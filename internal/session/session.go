// Package session 实现每日会话的状态模型。
// 所有函数都是纯函数：返回新的 UserState，从不修改入参。
package session

import (
	"time"

	"checkin-companion/internal/model"

	"github.com/google/uuid"
)

// Today 返回 now 在 loc 时区下的日期键。
func Today(now time.Time, loc *time.Location) string {
	return model.DateOf(now, loc)
}

// DeriveTodaySession 返回 today 对应的会话；不存在时返回零值会话（无 ID、无消息、标志均为 false）。
func DeriveTodaySession(state model.UserState, today string) model.DailySession {
	if s, ok := state.Sessions[today]; ok {
		return s.Clone()
	}
	return model.DailySession{Date: today, Messages: []model.Message{}}
}

// AppendMessage 向 today 的会话追加一条消息并设置 HasChatted。
// 会话尚不存在时在本地合成一个占位会话（空 ID），由持久化层负责找回或创建真实记录。
// 时间戳在会话内严格递增，同一毫秒内的消息按追加顺序排列。
func AppendMessage(state model.UserState, today, text string, sender model.Sender, now time.Time) (model.UserState, model.Message) {
	next := state.Clone()
	if next.Sessions == nil {
		next.Sessions = map[string]model.DailySession{}
	}
	sess := DeriveTodaySession(state, today)

	ts := now.UnixMilli()
	if n := len(sess.Messages); n > 0 && ts <= sess.Messages[n-1].Timestamp {
		ts = sess.Messages[n-1].Timestamp + 1
	}
	msg := model.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Text:      text,
		Sender:    sender,
		Timestamp: ts,
	}
	sess.Messages = append(sess.Messages, msg)
	sess.HasChatted = true
	next.Sessions[today] = sess
	return next, msg
}

// CompleteSurvey 将问卷回答附加到 today 的会话并标记完成。
// 已附加的回答保持不变。
func CompleteSurvey(state model.UserState, today string, resp model.SurveyResponse) model.UserState {
	next := state.Clone()
	if next.Sessions == nil {
		next.Sessions = map[string]model.DailySession{}
	}
	sess := DeriveTodaySession(state, today)
	if sess.SurveyData == nil {
		r := resp
		sess.SurveyData = &r
	}
	sess.SurveyCompleted = true
	next.Sessions[today] = sess
	return next
}

// WithSessionID 将 today 会话的标识替换为存储分配的 id，并同步到其消息上。
func WithSessionID(state model.UserState, today, id string) model.UserState {
	next := state.Clone()
	sess, ok := next.Sessions[today]
	if !ok {
		return next
	}
	sess.ID = id
	for i := range sess.Messages {
		sess.Messages[i].SessionID = id
	}
	next.Sessions[today] = sess
	return next
}

// OnlyToday 返回只包含 today 会话的状态，其余日期的历史不在内存中保留。
func OnlyToday(state model.UserState, today string) model.UserState {
	out := model.NewUserState(state.ID)
	if s, ok := state.Sessions[today]; ok {
		out.Sessions[today] = s.Clone()
	}
	return out
}
