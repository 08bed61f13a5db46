package app

import (
	"context"
	"errors"
	"log"
	"net/http"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/session"

	"github.com/gin-gonic/gin"
)

const AdminSessionCookie = "admin_session"

// CtxAdminSession gin 上下文中保存会话 id 的键
const CtxAdminSession = "adminSession"

// SessionGetter 由 *session.AdminSessionStore 实现
type SessionGetter interface {
	Get(ctx context.Context, id string) (*session.AdminSession, error)
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apperr.Body(apperr.New(apperr.CodeUnauthorized, "%s", msg)))
}

func AdminRequired(sessions SessionGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AdminSessionCookie)
		if err != nil || ck.Value == "" {
			unauthorized(c, "admin login required")
			return
		}
		if _, err := sessions.Get(c.Request.Context(), ck.Value); err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				log.Printf("[admin] session lookup: %v", err)
			}
			unauthorized(c, "invalid session")
			return
		}
		// 把会话 id 放进上下文，后续 handler 可用
		c.Set(CtxAdminSession, ck.Value)
		c.Next()
	}
}
