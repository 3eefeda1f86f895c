package handler

import (
	"net/http"
	"time"

	"checkin-companion/internal/service"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/token"

	"github.com/gin-gonic/gin"
)

// ParticipantHandler 负责登录界面相关的 API 请求。
type ParticipantHandler struct {
	companionService service.CompanionService
}

// NewParticipantHandler 创建一个新的 ParticipantHandler 实例。
func NewParticipantHandler(companionService service.CompanionService) *ParticipantHandler {
	return &ParticipantHandler{companionService: companionService}
}

// GenerateID 生成一个新的研究编号。编号不会被登记，直到参与者用它登录。
func (h *ParticipantHandler) GenerateID(c *gin.Context) {
	id, err := h.companionService.GenerateStudyID()
	if err != nil {
		log.Error("GenerateID: failed to generate study id", err)
		respond(c, nil, err)
		return
	}
	respond(c, gin.H{"studyId": id, "notice": "WICHTIG: Bitte speichern!"}, nil)
}

// LoginRequest 定义了登录 API 的请求体结构。
type LoginRequest struct {
	StudyID string `json:"studyId"`
}

// Login 处理参与者登录请求。
func (h *ParticipantHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		respond(c, service.LoginView(service.MsgInvalidStudyID), &service.InputError{Message: service.MsgInvalidStudyID})
		return
	}

	res, err := h.companionService.Login(c.Request.Context(), req.StudyID)
	if err != nil {
		respond(c, res.View, err)
		return
	}
	respond(c, res, nil)
}

// Logout 处理退出登录请求，并注销当前 token。
func (h *ParticipantHandler) Logout(c *gin.Context) {
	studyID := c.GetString("studyId")
	var ttl time.Duration
	if claims, ok := c.Get("claims"); ok {
		ttl = token.RemainingTTL(claims.(*token.CustomClaims), time.Now())
	}
	view := h.companionService.Logout(c.Request.Context(), studyID, c.GetString("token"), ttl)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    view,
	})
}
