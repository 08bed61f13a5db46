package routes

import (
	"time"

	"Gin_postgres_redis_gear_kiosk/app"
	"Gin_postgres_redis_gear_kiosk/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)

	// 复用的中间件
	adminMW := app.AdminRequired(a.AdminSessions())
	slideMW := app.SlideAdminSession(a.AdminSessions(), a.RDB, 5*time.Minute)

	Mount(r, s, adminMW, slideMW)
}

// Mount 挂载全部接口；admin 为 /api/admin 下受保护路由的中间件
func Mount(r *gin.Engine, s *controllers.Srv, admin ...gin.HandlerFunc) {
	kc := controllers.NewKioskController(s)
	bc := controllers.NewBorrowingController(s)
	ac := controllers.NewAdminController(s)
	uc := controllers.NewUserController(s)
	gc := controllers.NewGearController(s)

	// ------------------------------
	// 当前借用（首页，所有终端）
	// ------------------------------
	borrowings := r.Group("/api/borrowings")
	{
		borrowings.GET("/active", bc.Active)
		borrowings.GET("/active/stream", bc.Stream)
	}

	// ------------------------------
	// 终端：借出
	// ------------------------------
	borrow := r.Group("/api/kiosk/borrow")
	{
		borrow.POST("", kc.StartBorrow)
		borrow.GET("/:id", kc.GetBorrow)
		borrow.DELETE("/:id", kc.CancelBorrow)
		borrow.GET("/:id/users", kc.BorrowUsers)
		borrow.PUT("/:id/user-text", kc.SetUserText)
		borrow.PUT("/:id/user", kc.SelectUser)
		borrow.POST("/:id/scan", kc.BorrowScan)
		borrow.POST("/:id/confirm", kc.Confirm)
		borrow.DELETE("/:id/gears/:gearId", kc.RemoveGear)
		borrow.PUT("/:id/comment", kc.SetComment)
		borrow.GET("/:id/gears", kc.BorrowGears)
		borrow.POST("/:id/validate", kc.ValidateBorrow)
	}

	// ------------------------------
	// 终端：归还
	// ------------------------------
	ret := r.Group("/api/kiosk/return")
	{
		ret.POST("", kc.StartReturn)
		ret.GET("/:id", kc.GetReturn)
		ret.DELETE("/:id", kc.CancelReturn)
		ret.POST("/:id/scan", kc.ReturnScan)
		ret.PUT("/:id/gears/:gearId/comment", kc.SetItemComment)
		ret.GET("/:id/gears", kc.ReturnGears)
		ret.POST("/:id/validate", kc.ValidateReturn)
	}

	// ------------------------------
	// 管理（口令登录）
	// ------------------------------
	r.POST("/api/admin/login", ac.Login)

	adm := r.Group("/api/admin", admin...)
	{
		adm.POST("/logout", ac.Logout)
		adm.POST("/logout-all", ac.LogoutAll)

		adm.PUT("/inventory", ac.CommitInventory)
		adm.POST("/inventory/check", ac.CheckInventory)
		adm.GET("/stats", ac.Stats)
		adm.GET("/borrowings", bc.Period) // ?from=&to=&inclusive=

		adm.GET("/users", uc.ListUsers)
		adm.POST("/users", uc.CreateUser)
		adm.PUT("/users/:id", uc.UpdateUser)
		adm.DELETE("/users/:id", uc.DeleteUser)
		adm.GET("/users/:id/history", uc.History)
		adm.DELETE("/users/:id/history", uc.ClearHistory)

		adm.GET("/gears", gc.ListGears)
		adm.POST("/gears", gc.CreateGear)
		adm.PUT("/gears/:id", gc.UpdateGear)
		adm.DELETE("/gears/:id", gc.DeleteGear)
		adm.GET("/gears/:id/history", gc.History)
		adm.DELETE("/gears/:id/history", gc.ClearHistory)
		adm.GET("/gears/:id/label.png", gc.Label)
	}
}
