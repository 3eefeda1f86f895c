// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"checkin-companion/internal/model"
	"checkin-companion/internal/repository"
	"checkin-companion/pkg/log"
	"checkin-companion/pkg/token"

	"github.com/gin-gonic/gin"
)

// ErrTokenRevoked 表示 token 已通过退出登录注销。
var ErrTokenRevoked = errors.New("token revoked")

// VerifyParticipantToken 校验 token 的签名、有效期以及是否已被注销。
func VerifyParticipantToken(ctx context.Context, jwtManager *token.JWTManager, cache repository.SessionCache, tokenString string) (*token.CustomClaims, error) {
	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	revoked, err := cache.IsTokenRevoked(ctx, tokenString)
	if err != nil {
		// 黑名单不可用时不阻断参与者
		log.Warnw("检查 token 黑名单失败", "error", err)
		return claims, nil
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Unauthorized 返回 401，并告知客户端回到登录界面。
func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
		"data":    gin.H{"screen": model.ScreenLogin},
	})
}

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将研究编号存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, cache repository.SessionCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			Unauthorized(c, "Bitte melde dich an.")
			return
		}

		// Token 通常以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			Unauthorized(c, "Ungültiger Authorization-Header.")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := VerifyParticipantToken(c.Request.Context(), jwtManager, cache, tokenString)
		if err != nil {
			Unauthorized(c, "Deine Sitzung ist abgelaufen. Bitte melde dich erneut an.")
			return
		}

		c.Set("studyId", claims.StudyID)
		c.Set("claims", claims)
		c.Set("token", tokenString)
		c.Next()
	}
}
