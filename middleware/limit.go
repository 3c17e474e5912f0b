package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"Guides-Server/model"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func envIntDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// 全局 IP 限流器表
var (
	IpLimiters = struct {
		sync.RWMutex
		m map[string]*model.IpLimiter
	}{
		m: make(map[string]*model.IpLimiter),
	}
)

// 定时清理长时间不用的 limiter
func cleanupLimiters() {
	for {
		time.Sleep(1 * time.Hour)
		IpLimiters.Lock()
		now := time.Now()
		for ip, limiter := range IpLimiters.m {
			if now.Sub(limiter.LastActive) > 2*time.Hour {
				delete(IpLimiters.m, ip)
			}
		}
		IpLimiters.Unlock()
	}
}

// Gin 中间件：限流
// 突发额度放宽以容纳评测页一次性预加载整组图片
func RateLimitMiddleware() gin.HandlerFunc {
	go cleanupLimiters()

	rps := rate.Limit(envFloat("RATE_LIMIT_RPS", 60))
	burst := envIntDefault("RATE_LIMIT_BURST", 200)

	return func(c *gin.Context) {

		ip := c.ClientIP()

		IpLimiters.Lock()
		limiter, exists := IpLimiters.m[ip]
		if !exists {
			limiter = &model.IpLimiter{
				Limiter:    rate.NewLimiter(rps, burst),
				LastActive: time.Now(),
			}
			IpLimiters.m[ip] = limiter
		}
		limiter.LastActive = time.Now()
		IpLimiters.Unlock()

		if !limiter.Limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "请求过于频繁，请稍后再试",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
