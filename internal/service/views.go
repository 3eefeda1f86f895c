package service

import (
	"checkin-companion/internal/config"
	"checkin-companion/internal/model"
	"checkin-companion/internal/session"
)

// 界面文字
const (
	LoginPrompt    = "Bitte gib deine Studien-ID ein oder generiere eine neue, falls du zum ersten Mal hier bist."
	WelcomeText    = "Willkommen zur heutigen Session. Erzähl mir, wie es dir heute geht."
	CompletionText = "Du hast die heutige Session und die Umfrage erfolgreich abgeschlossen. Wir freuen uns darauf, morgen wieder mit dir zu sprechen."
	SavedNotice    = "Deine Daten wurden sicher gespeichert."
)

// View 是某一界面的完整渲染数据。
type View struct {
	Screen     model.Screen        `json:"screen"`
	StudyID    string              `json:"studyId,omitempty"`
	Date       string              `json:"date,omitempty"`
	Prompt     string              `json:"prompt,omitempty"`
	Messages   []model.Message     `json:"messages,omitempty"`
	Status     *session.ChatStatus `json:"status,omitempty"`
	Typing     bool                `json:"typing,omitempty"`
	Survey     *SurveyView         `json:"survey,omitempty"`
	Completion string              `json:"completion,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// SurveyView 描述问卷，内置模式下给出题目，外部模式下给出链接。
type SurveyView struct {
	Mode      string           `json:"mode"`
	URL       string           `json:"url,omitempty"`
	Questions []SurveyQuestion `json:"questions,omitempty"`
}

// SurveyQuestion 是一道问卷题目。
type SurveyQuestion struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	Scale    bool   `json:"scale"`
	MinLabel string `json:"minLabel,omitempty"`
	MaxLabel string `json:"maxLabel,omitempty"`
}

func surveyQuestions(required bool) []SurveyQuestion {
	return []SurveyQuestion{
		{Key: "mood", Label: "Wie geht es dir nach dem Gespräch?", Required: required, Scale: true, MinLabel: "Gar nicht", MaxLabel: "Sehr"},
		{Key: "helpfulness", Label: "Wie hilfreich war der Companion heute?", Required: required, Scale: true, MinLabel: "Gar nicht", MaxLabel: "Sehr"},
		{Key: "comments", Label: "Hast du weitere Anmerkungen? (Optional)"},
	}
}

func newSurveyView(cfg config.StudyConfig) *SurveyView {
	if cfg.SurveyMode == config.SurveyModeExternal {
		return &SurveyView{Mode: config.SurveyModeExternal, URL: cfg.SurveyURL, Questions: surveyQuestions(false)}
	}
	return &SurveyView{Mode: config.SurveyModeInApp, Questions: surveyQuestions(true)}
}

// LoginView 是未登录时的界面。
func LoginView(errMsg string) View {
	return View{Screen: model.ScreenLogin, Prompt: LoginPrompt, Error: errMsg}
}
