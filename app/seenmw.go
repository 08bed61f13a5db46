// app/seenmw.go
package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type SessionToucher interface {
	Touch(ctx context.Context, id string) error
}

// SlideAdminSession 活跃会话续期；每个会话在 throttle 内最多续一次
func SlideAdminSession(sessions SessionToucher, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := c.GetString(CtxAdminSession)
		if sid == "" {
			c.Next()
			return
		}

		key := "admin:seen:" + sid
		if ok, _ := rdb.SetNX(c, key, "1", throttle).Result(); ok {
			_ = sessions.Touch(c, sid) // 忽略错误，不阻塞请求
		}
		c.Next()
	}
}
