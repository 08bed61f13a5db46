package app

import (
	"context"
	"log"
	"sync"
	"time"

	"Gin_postgres_redis_gear_kiosk/config"
	"Gin_postgres_redis_gear_kiosk/db"
	"Gin_postgres_redis_gear_kiosk/inventory"
	"Gin_postgres_redis_gear_kiosk/kiosk"
	"Gin_postgres_redis_gear_kiosk/models"
	"Gin_postgres_redis_gear_kiosk/notify"
	"Gin_postgres_redis_gear_kiosk/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 简化别名，便于 handlers 调用
type Ctx = gin.Context
type H = gin.H

// App 聚合各依赖
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config config.Config

	Repo      *db.Repo
	Hub       *notify.Hub
	Listener  *notify.Listener
	Kiosk     *kiosk.Manager
	Inventory *inventory.Service

	adminSess *session.AdminSessionStore
	adminHash []byte

	stop context.CancelFunc
	wg   sync.WaitGroup
}

func (a *App) AdminSessions() *session.AdminSessionStore { return a.adminSess }

// AdminPasswordHash 管理员口令的 bcrypt 哈希
func (a *App) AdminPasswordHash() []byte { return a.adminHash }

func MustNew(cfg config.Config) *App {
	// --- DB: Postgres ---
	dbConn := db.ConnectDB(cfg.DB.DSN())
	repo := db.NewRepo(dbConn)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	hub := notify.NewHub()
	listener := notify.NewListener(notify.PgDialer(cfg.DB.DSN(), models.NotifyChannel), repo, hub)

	// --- Gin ---
	r := gin.Default()
	useCORS(r, cfg.WebOrigin)
	a := &App{
		Router: r, DB: dbConn, RDB: rdb, Config: cfg,
		Repo:      repo,
		Hub:       hub,
		Listener:  listener,
		Kiosk:     kiosk.NewManager(repo, kiosk.Options{AutoValidate: cfg.AutoValidate, IdleTimeout: cfg.IdleTimeout}),
		Inventory: inventory.NewService(repo),
		adminSess: session.NewAdminSessionStore(rdb, cfg.SessionTTL),
		adminHash: BootstrapAdminPassword(cfg),
	}
	return a
}

// Start 启动后台的 LISTEN 循环
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stop = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Listener.Run(ctx)
	}()
}

func (a *App) Close() {
	if a.stop != nil {
		a.stop()
		a.wg.Wait()
	}
	a.Kiosk.Close()
	_ = a.RDB.Close()
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
