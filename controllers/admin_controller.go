// controllers/admin_controller.go
package controllers

import (
	"log"
	"net/http"

	"Gin_postgres_redis_gear_kiosk/app"
	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/inventory"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AdminController struct{ *Srv }

func NewAdminController(s *Srv) *AdminController { return &AdminController{Srv: s} }

// POST /api/admin/login
func (ac *AdminController) Login(c *gin.Context) {
	var in struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword(ac.AdminHash, []byte(in.Password)); err != nil {
		log.Printf("[admin] login rejected from %s", c.ClientIP())
		fail(c, apperr.New(apperr.CodeUnauthorized, "wrong password"))
		return
	}
	id := uuid.NewString()
	if err := ac.AdminSess.Create(c.Request.Context(), id, c.ClientIP()); err != nil {
		fail(c, err)
		return
	}
	ac.setAdminCookie(c.Writer, id, ac.AdminSess.TTL())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/admin/logout：删 Redis，会话 Cookie 置空
func (ac *AdminController) Logout(c *gin.Context) {
	if sid := c.GetString(app.CtxAdminSession); sid != "" {
		_ = ac.AdminSess.Delete(c.Request.Context(), sid)
	}
	ac.setAdminCookie(c.Writer, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/admin/logout-all：撤销所有终端上的管理会话
func (ac *AdminController) LogoutAll(c *gin.Context) {
	n, err := ac.AdminSess.RevokeAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ac.setAdminCookie(c.Writer, "", -1)
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// PUT /api/admin/inventory：整批提交
func (ac *AdminController) CommitInventory(c *gin.Context) {
	var cs inventory.Changeset
	if err := c.ShouldBindJSON(&cs); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := ac.Inventory.Commit(c.Request.Context(), cs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// POST /api/admin/inventory/check：只校验，编辑过程中逐字段提示
func (ac *AdminController) CheckInventory(c *gin.Context) {
	var cs inventory.Changeset
	if err := c.ShouldBindJSON(&cs); err != nil {
		badRequest(c, err)
		return
	}
	p, err := ac.Inventory.Plan(c.Request.Context(), cs)
	if err != nil {
		fail(c, err)
		return
	}
	errs := p.Errors
	if errs == nil {
		errs = []inventory.FieldError{}
	}
	c.JSON(http.StatusOK, gin.H{
		"errors":      errs,
		"dirty":       !p.Changes.Empty(),
		"canValidate": len(errs) == 0 && !p.Changes.Empty(),
	})
}

// GET /api/admin/stats?since=2020-01-01
func (ac *AdminController) Stats(c *gin.Context) {
	since := inventory.DefaultStatsSince
	if v := c.Query("since"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			badRequest(c, err)
			return
		}
		since = t
	}
	st, err := ac.Inventory.Stats(c.Request.Context(), since)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
