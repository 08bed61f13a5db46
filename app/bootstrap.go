// app/bootstrap.go
package app

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"Gin_postgres_redis_gear_kiosk/config"

	"golang.org/x/crypto/bcrypt"
)

// BootstrapAdminPassword 返回管理员口令的 bcrypt 哈希：
// ADMIN_PASSWORD_HASH > ADMIN_PASSWORD > 随机生成（只在日志里打印一次）
func BootstrapAdminPassword(cfg config.Config) []byte {
	if cfg.AdminPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.AdminPasswordHash)); err != nil {
			log.Fatalf("ADMIN_PASSWORD_HASH is not a bcrypt hash: %v", err)
		}
		return []byte(cfg.AdminPasswordHash)
	}

	pw := cfg.AdminPassword
	if pw == "" {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			log.Fatalf("generate admin password: %v", err)
		}
		pw = hex.EncodeToString(buf)
		log.Printf("[BOOTSTRAP] No admin password configured, generated one: %s", pw)
		log.Printf("[BOOTSTRAP] Set ADMIN_PASSWORD_HASH to keep it across restarts")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}
	return hash
}
