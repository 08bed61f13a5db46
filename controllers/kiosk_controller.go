// controllers/kiosk_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// KioskController 终端上的借出 / 归还流程，每次操作一个会话
type KioskController struct{ *Srv }

func NewKioskController(s *Srv) *KioskController { return &KioskController{Srv: s} }

type textIn struct {
	Text string `json:"text"`
}

type scanIn struct {
	Input string `json:"input" binding:"required"`
}

// --- 借出 ---

func (kc *KioskController) StartBorrow(c *gin.Context) {
	s, err := kc.Kiosk.StartBorrow(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.View())
}

func (kc *KioskController) GetBorrow(c *gin.Context) {
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

// 用户列表，按当前输入过滤
func (kc *KioskController) BorrowUsers(c *gin.Context) {
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": s.Users()})
}

func (kc *KioskController) SetUserText(c *gin.Context) {
	var in textIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	v, err := s.SetUserText(in.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": v, "users": s.Users()})
}

func (kc *KioskController) SelectUser(c *gin.Context) {
	var in struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	v, err := s.SelectUser(in.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (kc *KioskController) BorrowScan(c *gin.Context) {
	var in scanIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.Scan(c.Request.Context(), in.Input)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "session": s.View()})
}

// 强制关闭确认
func (kc *KioskController) Confirm(c *gin.Context) {
	var in struct {
		GearID string `json:"gearId" binding:"required"`
		Yes    bool   `json:"yes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.Confirm(in.GearID, in.Yes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "session": s.View()})
}

func (kc *KioskController) RemoveGear(c *gin.Context) {
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	v, err := s.RemoveGear(c.Param("gearId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (kc *KioskController) SetComment(c *gin.Context) {
	var in textIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	v, err := s.SetComment(in.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (kc *KioskController) BorrowGears(c *gin.Context) {
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	infos, err := s.Gears(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": infos})
}

func (kc *KioskController) ValidateBorrow(c *gin.Context) {
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	created, err := s.Validate(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": created})
}

func (kc *KioskController) CancelBorrow(c *gin.Context) {
	s, err := kc.Kiosk.Borrow(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	s.Cancel()
	c.Status(http.StatusNoContent)
}

// --- 归还 ---

func (kc *KioskController) StartReturn(c *gin.Context) {
	s, err := kc.Kiosk.StartReturn(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.View())
}

func (kc *KioskController) GetReturn(c *gin.Context) {
	s, err := kc.Kiosk.Return(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (kc *KioskController) ReturnScan(c *gin.Context) {
	var in scanIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Return(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	res, err := s.Scan(c.Request.Context(), in.Input)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "session": s.View()})
}

func (kc *KioskController) SetItemComment(c *gin.Context) {
	var in textIn
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	s, err := kc.Kiosk.Return(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	v, err := s.SetItemComment(c.Param("gearId"), in.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (kc *KioskController) ReturnGears(c *gin.Context) {
	s, err := kc.Kiosk.Return(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	infos, err := s.Gears(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": infos})
}

func (kc *KioskController) ValidateReturn(c *gin.Context) {
	s, err := kc.Kiosk.Return(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	touched, err := s.Validate(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": touched})
}

func (kc *KioskController) CancelReturn(c *gin.Context) {
	s, err := kc.Kiosk.Return(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	s.Cancel()
	c.Status(http.StatusNoContent)
}
