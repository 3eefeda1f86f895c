package handler

import (
	"checkin-companion/internal/service"
	"checkin-companion/pkg/log"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责聊天与问卷界面的 API 请求。
type SessionHandler struct {
	companionService service.CompanionService
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(companionService service.CompanionService) *SessionHandler {
	return &SessionHandler{companionService: companionService}
}

// GetView 返回参与者当前的界面，同时重新执行每日状态检查。
func (h *SessionHandler) GetView(c *gin.Context) {
	view, err := h.companionService.View(c.Request.Context(), c.GetString("studyId"))
	respond(c, view, err)
}

// SendMessageRequest 定义了发送消息 API 的请求体结构。
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessage 发送一条用户消息并返回包含代理回复的界面。
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SendMessage: Invalid request payload, error: %v", err)
		respond(c, nil, &service.InputError{Message: service.MsgEmptyMessage})
		return
	}
	view, err := h.companionService.SendMessage(c.Request.Context(), c.GetString("studyId"), req.Text, nil)
	respond(c, view, err)
}

// StartSurvey 从聊天进入问卷。
func (h *SessionHandler) StartSurvey(c *gin.Context) {
	view, err := h.companionService.StartSurvey(c.Request.Context(), c.GetString("studyId"))
	respond(c, view, err)
}

// SubmitSurvey 提交问卷，持久化成功后进入完成界面。
func (h *SessionHandler) SubmitSurvey(c *gin.Context) {
	var in service.SurveyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Warnf("SubmitSurvey: Invalid request payload, error: %v", err)
		respond(c, nil, &service.InputError{Message: service.MsgSurveyIncomplete})
		return
	}
	view, err := h.companionService.SubmitSurvey(c.Request.Context(), c.GetString("studyId"), in)
	respond(c, view, err)
}
