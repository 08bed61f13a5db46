package controllers

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_gear_kiosk/apperr"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/inventory"
	"Gin_postgres_redis_gear_kiosk/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

type GearController struct {
	*Srv
	// LabelSize 标签 PNG 边长（像素）
	LabelSize int
}

func NewGearController(s *Srv) *GearController { return &GearController{Srv: s, LabelSize: 256} }

// GET /api/admin/gears：器材 + 各类型允许的尺寸
func (gc *GearController) ListGears(c *gin.Context) {
	gears, err := gc.Repo.ListGears(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": gears, "sizes": inventory.AllowedSizes()})
}

type gearIn struct {
	Type    models.GearType `json:"type"`
	Name    string          `json:"name"`
	BarCode string          `json:"barcode"`
	Size    string          `json:"size"`
}

func (in gearIn) entry(op inventory.Op, id string) inventory.GearEntry {
	return inventory.GearEntry{Op: op, ID: id, Type: in.Type, Name: in.Name, BarCode: in.BarCode, Size: in.Size}
}

func (gc *GearController) commitOne(c *gin.Context, e inventory.GearEntry, status int) {
	sum, err := gc.Inventory.Commit(c.Request.Context(), inventory.Changeset{Gears: []inventory.GearEntry{e}})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(status, sum)
}

func (gc *GearController) CreateGear(c *gin.Context) {
	var in gearIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	gc.commitOne(c, in.entry(inventory.OpCreate, ""), http.StatusCreated)
}

func (gc *GearController) UpdateGear(c *gin.Context) {
	var in gearIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	gc.commitOne(c, in.entry(inventory.OpUpdate, c.Param("id")), http.StatusOK)
}

func (gc *GearController) DeleteGear(c *gin.Context) {
	gc.commitOne(c, inventory.GearEntry{Op: inventory.OpDelete, ID: c.Param("id")}, http.StatusOK)
}

func (gc *GearController) gear(c *gin.Context) (*models.Gear, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, apperr.New(apperr.CodeInvalidArgument, "invalid uuid"))
		return nil, false
	}
	g, err := gc.Repo.FindGearByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			err = apperr.New(apperr.CodeNotFound, "gear %s not found", id)
		}
		fail(c, err)
		return nil, false
	}
	return g, true
}

func (gc *GearController) History(c *gin.Context) {
	g, ok := gc.gear(c)
	if !ok {
		return
	}
	bs, err := gc.Repo.GearHistory(c.Request.Context(), g.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gear": g, "items": bs})
}

func (gc *GearController) ClearHistory(c *gin.Context) {
	g, ok := gc.gear(c)
	if !ok {
		return
	}
	n, err := gc.Repo.ClearGearHistory(c.Request.Context(), g.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// Label 器材条码的二维码 PNG，用于打印贴标
func (gc *GearController) Label(c *gin.Context) {
	g, ok := gc.gear(c)
	if !ok {
		return
	}
	png, err := qrcode.Encode(g.BarCode, qrcode.Medium, gc.LabelSize)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+g.BarCode+`.png"`)
	c.Data(http.StatusOK, "image/png", png)
}
