// Package router 实现应用级的界面状态机：LOGIN → CHAT → SURVEY → COMPLETED。
package router

import (
	"errors"
	"fmt"

	"checkin-companion/internal/model"
)

// ErrInvalidTransition 表示当前界面不允许该操作。
var ErrInvalidTransition = errors.New("invalid screen transition")

// Router 保存当前界面与参与者 ID。非并发安全，由调用方持有的句柄加锁保护。
type Router struct {
	screen        model.Screen
	participantID string
	lastError     string
}

// New 创建一个处于 LOGIN 的路由器。
func New() *Router {
	return &Router{screen: model.ScreenLogin}
}

// Restore 从缓存快照恢复路由器；快照缺少参与者 ID 时回到 LOGIN。
func Restore(participantID string, screen model.Screen) *Router {
	r := New()
	if participantID == "" {
		return r
	}
	switch screen {
	case model.ScreenChat, model.ScreenSurvey, model.ScreenCompleted:
		r.participantID = participantID
		r.screen = screen
	}
	return r
}

// Screen 返回当前可见的界面。
// 没有参与者 ID 时，无论存储的界面是什么都强制返回 LOGIN。
func (r *Router) Screen() model.Screen {
	if r.participantID == "" {
		return model.ScreenLogin
	}
	return r.screen
}

// ParticipantID 返回当前登录的参与者 ID。
func (r *Router) ParticipantID() string {
	return r.participantID
}

// LastError 返回最近一次登录失败的提示文字。
func (r *Router) LastError() string {
	return r.lastError
}

// LoginSucceeded 记录参与者 ID，并按当天状态路由：问卷已完成进入 COMPLETED，否则进入 CHAT。
func (r *Router) LoginSucceeded(participantID string, today model.DailySession) model.Screen {
	r.participantID = participantID
	r.lastError = ""
	r.screen = dailyStatus(today)
	return r.Screen()
}

// LoginFailed 停留在 LOGIN 并保存错误提示。
func (r *Router) LoginFailed(reason string) model.Screen {
	r.participantID = ""
	r.screen = model.ScreenLogin
	r.lastError = reason
	return r.Screen()
}

// StartSurvey CHAT → SURVEY。
func (r *Router) StartSurvey() (model.Screen, error) {
	return r.move(model.ScreenChat, model.ScreenSurvey)
}

// SurveySubmitted SURVEY → COMPLETED，应在问卷持久化成功后调用。
func (r *Router) SurveySubmitted() (model.Screen, error) {
	return r.move(model.ScreenSurvey, model.ScreenCompleted)
}

// Logout 从任意界面回到 LOGIN 并清除参与者 ID。
func (r *Router) Logout() model.Screen {
	r.participantID = ""
	r.screen = model.ScreenLogin
	r.lastError = ""
	return r.Screen()
}

// Reconcile 重新执行每日状态检查。
// COMPLETED 只对完成问卷的那一天终止：新的一天且问卷未完成时回到 CHAT。
func (r *Router) Reconcile(today model.DailySession) model.Screen {
	if r.participantID == "" {
		return r.Screen()
	}
	switch {
	case today.SurveyCompleted:
		r.screen = model.ScreenCompleted
	case r.screen == model.ScreenCompleted, r.screen == model.ScreenLogin:
		r.screen = model.ScreenChat
	}
	return r.Screen()
}

func (r *Router) move(from, to model.Screen) (model.Screen, error) {
	current := r.Screen()
	if current != from {
		return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
	}
	r.screen = to
	return r.Screen(), nil
}

func dailyStatus(today model.DailySession) model.Screen {
	if today.SurveyCompleted {
		return model.ScreenCompleted
	}
	return model.ScreenChat
}
