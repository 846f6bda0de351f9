package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"neuro-match/models"
	"neuro-match/services"
	"neuro-match/utils"
)

const (
	// SessionCookie 会话 token 所在的 cookie 名
	SessionCookie = "token"
	// UserKey gin.Context 中保存当前用户的 key
	UserKey = "user"
)

// Authenticator 根据 token 返回用户
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// TokenAuthMiddleware 从 cookie、Authorization 头或 ?token= 中读取会话 token
func TokenAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrExpiredToken):
				utils.AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Session expired")
			case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrUserNotFound):
				utils.AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
			default:
				utils.AbortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to authenticate")
			}
			return
		}

		c.Set(UserKey, user)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// CurrentUser 取出中间件写入的当前用户
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}
