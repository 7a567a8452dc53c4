package global

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// RedisConfig 共享存储连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// AppConfig 进程级配置。字段都有默认值，环境变量 WPUSH_* 可覆盖。
type AppConfig struct {
	WSAddr       string        // 原生 socket 服务监听地址
	IngressAddr  string        // ingress HTTP 服务监听地址
	Redis        RedisConfig   // 共享存储
	SendDeadline time.Duration // 单次 socket 写超时
	CookieTTL    time.Duration // 会话 cookie 有效期
}

var (
	cfg  *AppConfig
	once sync.Once
)

// Config 获取全局配置（惰性初始化，线程安全）
func Config() *AppConfig {
	once.Do(func() {
		cfg = &AppConfig{
			WSAddr:      env("WPUSH_WS_ADDR", ":8888"),
			IngressAddr: env("WPUSH_INGRESS_ADDR", ":3000"),
			Redis: RedisConfig{
				Addr:     env("WPUSH_REDIS_ADDR", "127.0.0.1:6379"),
				Password: env("WPUSH_REDIS_PASSWORD", ""),
				DB:       envInt("WPUSH_REDIS_DB", 0),
				PoolSize: envInt("WPUSH_REDIS_POOL", 10),
			},
		}
		cfg.norm()
	})
	return cfg
}

func (c *AppConfig) norm() {
	if c.SendDeadline <= 0 {
		c.SendDeadline = 5 * time.Second
	}
	if c.CookieTTL <= 0 {
		c.CookieTTL = 12 * time.Hour
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
