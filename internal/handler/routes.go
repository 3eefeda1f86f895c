package handler

import (
	"checkin-companion/internal/middleware"
	"checkin-companion/internal/repository"
	"checkin-companion/internal/service"
	"checkin-companion/pkg/token"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有界面对应的路由。
func RegisterRoutes(r *gin.Engine, companionService service.CompanionService, jwtManager *token.JWTManager, cache repository.SessionCache) {
	participantHandler := NewParticipantHandler(companionService)
	sessionHandler := NewSessionHandler(companionService)
	auth := middleware.AuthMiddleware(jwtManager, cache)

	apiV1 := r.Group("/api/v1")
	{
		participants := apiV1.Group("/participants")
		{
			// 无需认证的路由 (登录界面)
			participants.POST("/generate-id", participantHandler.GenerateID)
			participants.POST("/login", participantHandler.Login)

			// 需要认证的路由
			participants.POST("/logout", auth, participantHandler.Logout)
		}

		sessions := apiV1.Group("/session")
		sessions.Use(auth)
		{
			sessions.GET("", sessionHandler.GetView)
			sessions.POST("/messages", sessionHandler.SendMessage)
			sessions.POST("/survey/start", sessionHandler.StartSurvey)
			sessions.POST("/survey", sessionHandler.SubmitSurvey)
		}
	}

	// Chat 路由 (WebSocket)，token 通过路径传递
	r.GET("/chat/:token", NewChatHandler(companionService, jwtManager, cache).Handle)
}
