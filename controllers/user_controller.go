package controllers

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/inventory"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserController 管理用户名单；单条增删改都是只含一项的变更集
type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/admin/users
func (uc *UserController) ListUsers(c *gin.Context) {
	users, err := uc.Repo.ListUsers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": users})
}

type userIn struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (uc *UserController) commitOne(c *gin.Context, e inventory.UserEntry, status int) {
	sum, err := uc.Inventory.Commit(c.Request.Context(), inventory.Changeset{Users: []inventory.UserEntry{e}})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, sum)
}

// POST /api/admin/users
func (uc *UserController) CreateUser(c *gin.Context) {
	var in userIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	uc.commitOne(c, inventory.UserEntry{Op: inventory.OpCreate, Name: in.Name, Phone: in.Phone}, http.StatusCreated)
}

// PUT /api/admin/users/:id
func (uc *UserController) UpdateUser(c *gin.Context) {
	var in userIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	uc.commitOne(c, inventory.UserEntry{Op: inventory.OpUpdate, ID: c.Param("id"), Name: in.Name, Phone: in.Phone}, http.StatusOK)
}

// DELETE /api/admin/users/:id（连带删除借用记录）
func (uc *UserController) DeleteUser(c *gin.Context) {
	uc.commitOne(c, inventory.UserEntry{Op: inventory.OpDelete, ID: c.Param("id")}, http.StatusOK)
}

// userID 校验路径参数并确认用户存在
func (uc *UserController) userID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, apperr.New(apperr.CodeInvalidArgument, "invalid uuid"))
		return "", false
	}
	if _, err := uc.Repo.FindUserByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = apperr.New(apperr.CodeNotFound, "user %s not found", id)
		}
		fail(c, err)
		return "", false
	}
	return id, true
}

// GET /api/admin/users/:id/history
func (uc *UserController) History(c *gin.Context) {
	id, ok := uc.userID(c)
	if !ok {
		return
	}
	bs, err := uc.Repo.UserHistory(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": bs})
}

// DELETE /api/admin/users/:id/history
func (uc *UserController) ClearHistory(c *gin.Context) {
	id, ok := uc.userID(c)
	if !ok {
		return
	}
	n, err := uc.Repo.ClearUserHistory(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
