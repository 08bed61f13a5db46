package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 从环境变量读取
type Config struct {
	DB DatabaseConfig

	RedisAddr string
	RedisPwd  string

	WebOrigin string
	Port      string

	// 管理员口令：优先使用 bcrypt 哈希，其次明文（启动时哈希）
	AdminPasswordHash string
	AdminPassword     string

	SessionTTL   time.Duration
	AutoValidate time.Duration
	IdleTimeout  time.Duration // 终端会话无操作多久后丢弃
}

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
}

// DSN 供 gorm 与 pgx 共用（两者都接受 key=value 形式）
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		quote(c.Host), quote(c.User), quote(c.Password), quote(c.Name), quote(c.Port),
	)
}

// quote 单引号包裹，空值和含空格、引号的口令也能正确解析
func quote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// LoadEnv 读取 .env（不存在时沿用进程环境变量）
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

func Load() Config {
	return load(os.Getenv)
}

func load(getenv func(string) string) Config {
	get := func(k, def string) string {
		v := strings.TrimSpace(getenv(k))
		if v == "" {
			return def
		}
		return v
	}
	seconds := func(k string, def time.Duration) time.Duration {
		n, err := strconv.Atoi(get(k, ""))
		if err != nil || n <= 0 {
			return def
		}
		return time.Duration(n) * time.Second
	}
	return Config{
		DB: DatabaseConfig{
			Host:     get("DB_HOST", "127.0.0.1"),
			User:     get("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD"),
			Name:     get("DB_NAME", "lsm_emprunts"),
			Port:     get("DB_PORT", "5432"),
		},
		RedisAddr:         get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:          getenv("REDIS_PASSWORD"),
		WebOrigin:         get("WEB_ORIGIN", "http://localhost:3000"),
		Port:              get("PORT", "3001"),
		AdminPasswordHash: get("ADMIN_PASSWORD_HASH", ""),
		AdminPassword:     getenv("ADMIN_PASSWORD"),
		SessionTTL:        seconds("SESSION_TTL_SECONDS", 30*time.Minute),
		AutoValidate:      seconds("AUTO_VALIDATE_SECONDS", 60*time.Second),
		IdleTimeout:       seconds("IDLE_TIMEOUT_SECONDS", 10*time.Minute),
	}
}
