package service

import (
	"errors"

	"checkin-companion/internal/router"
)

var (
	ErrChatLocked        = errors.New("daily message limit reached")
	ErrReplyPending      = errors.New("agent reply still pending")
	ErrSurveyUnavailable = errors.New("survey not yet available")
	ErrSurveyNotSaved    = errors.New("survey could not be saved")
	ErrNotLoggedIn       = errors.New("participant not logged in")
)

// 面向参与者的提示文字
const (
	MsgInvalidStudyID    = "Bitte eine gültige ID eingeben."
	MsgEmptyMessage      = "Bitte gib eine Nachricht ein."
	MsgSurveyIncomplete  = "Bitte beantworte beide Fragen."
	MsgSurveyOutOfRange  = "Bitte wähle einen Wert zwischen 1 und 5."
	MsgChatLocked        = "Maximale Nachrichten erreicht. Du kannst jetzt die Umfrage starten."
	MsgReplyPending      = "Bitte warte auf die Antwort."
	MsgSurveyUnavailable = "Die Umfrage ist noch nicht verfügbar."
	MsgSurveyNotSaved    = "Deine Antworten konnten nicht gespeichert werden. Bitte versuche es noch einmal."
	MsgNotLoggedIn       = "Bitte melde dich erneut an."
	MsgInvalidAction     = "Diese Aktion ist gerade nicht möglich."
)

// InputError 是输入校验失败，Message 可以直接展示给参与者。
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func inputError(msg string) error {
	return &InputError{Message: msg}
}

// UserMessage 将业务错误转换为展示给参与者的提示文字。
func UserMessage(err error) string {
	var inErr *InputError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &inErr):
		return inErr.Message
	case errors.Is(err, ErrChatLocked):
		return MsgChatLocked
	case errors.Is(err, ErrReplyPending):
		return MsgReplyPending
	case errors.Is(err, ErrSurveyUnavailable):
		return MsgSurveyUnavailable
	case errors.Is(err, ErrSurveyNotSaved):
		return MsgSurveyNotSaved
	case errors.Is(err, ErrNotLoggedIn):
		return MsgNotLoggedIn
	case errors.Is(err, router.ErrInvalidTransition):
		return MsgInvalidAction
	default:
		return MsgInvalidAction
	}
}
