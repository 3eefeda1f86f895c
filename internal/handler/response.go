// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"checkin-companion/internal/router"
	"checkin-companion/internal/service"

	"github.com/gin-gonic/gin"
)

// statusFor 将业务错误映射为 HTTP 状态码。
func statusFor(err error) int {
	var inErr *service.InputError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &inErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrChatLocked),
		errors.Is(err, service.ErrReplyPending),
		errors.Is(err, service.ErrSurveyUnavailable),
		errors.Is(err, router.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrSurveyNotSaved):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respond 以统一的 {code, message, data} 结构返回界面。
func respond(c *gin.Context, data interface{}, err error) {
	status := statusFor(err)
	message := "success"
	if err != nil {
		message = service.UserMessage(err)
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}
