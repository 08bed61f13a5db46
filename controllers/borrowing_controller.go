// controllers/borrowing_controller.go
package controllers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"Gin_postgres_redis_gear_kiosk/db"

	"github.com/gin-gonic/gin"
)

type BorrowingController struct {
	*Srv
	// Heartbeat SSE 保活间隔
	Heartbeat time.Duration
}

func NewBorrowingController(s *Srv) *BorrowingController {
	return &BorrowingController{Srv: s, Heartbeat: 25 * time.Second}
}

// 当前借用快照（首页列表）
func (bc *BorrowingController) Active(c *gin.Context) {
	c.JSON(http.StatusOK, bc.Hub.Current())
}

// Stream SSE：连上立即推一次当前快照，之后每次变动推最新的
func (bc *BorrowingController) Stream(c *gin.Context) {
	ch, cancel := bc.Hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	hb := time.NewTicker(bc.Heartbeat)
	defer hb.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case s := <-ch:
			c.SSEvent("snapshot", s)
			return true
		case <-hb.C:
			c.SSEvent("ping", strconv.FormatInt(time.Now().Unix(), 10))
			return true
		}
	})
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

// 区间报表：?from=&to=&inclusive=
func (bc *BorrowingController) Period(c *gin.Context) {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		badRequest(c, err)
		return
	}
	inclusive := false
	if v := c.Query("inclusive"); v != "" {
		if inclusive, err = strconv.ParseBool(v); err != nil {
			badRequest(c, err)
			return
		}
	}
	rows, err := bc.Inventory.Period(c.Request.Context(), db.PeriodQuery{From: from, To: to, Inclusive: inclusive})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}
