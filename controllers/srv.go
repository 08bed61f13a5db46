// controllers/srv.go
package controllers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_gear_kiosk/app"
	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/inventory"
	"Gin_postgres_redis_gear_kiosk/kiosk"
	"Gin_postgres_redis_gear_kiosk/models"
	"Gin_postgres_redis_gear_kiosk/notify"

	"github.com/gin-gonic/gin"
)

// AdminStore 管理界面直接读写的数据（*db.Repo 实现）
type AdminStore interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindGearByID(ctx context.Context, id string) (*models.Gear, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListGears(ctx context.Context) ([]models.Gear, error)
	GearHistory(ctx context.Context, gearID string) ([]models.Borrowing, error)
	UserHistory(ctx context.Context, userID string) ([]models.Borrowing, error)
	ClearGearHistory(ctx context.Context, gearID string) (int64, error)
	ClearUserHistory(ctx context.Context, userID string) (int64, error)
}

// AdminSessions 由 *session.AdminSessionStore 实现
type AdminSessions interface {
	Create(ctx context.Context, id, remoteAddr string) error
	Delete(ctx context.Context, id string) error
	RevokeAll(ctx context.Context) (int, error)
	TTL() time.Duration
}

type Srv struct {
	Repo      AdminStore
	Kiosk     *kiosk.Manager
	Inventory *inventory.Service
	Hub       *notify.Hub
	AdminSess AdminSessions
	AdminHash []byte
	WebOrigin string
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:      a.Repo,
		Kiosk:     a.Kiosk,
		Inventory: a.Inventory,
		Hub:       a.Hub,
		AdminSess: a.AdminSessions(),
		AdminHash: a.AdminPasswordHash(),
		WebOrigin: a.Config.WebOrigin,
	}
}

// --- helpers ---

func fail(c *gin.Context, err error) {
	status := apperr.ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, apperr.Body(err))
}

func badRequest(c *gin.Context, err error) {
	fail(c, apperr.New(apperr.CodeInvalidArgument, "invalid request: %v", err))
}

// 统一设置管理会话 Cookie；maxAge < 0 删除
func (s *Srv) setAdminCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	ma := int(maxAge / time.Second)
	if maxAge < 0 {
		ma = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     app.AdminSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   ma,
	})
}
