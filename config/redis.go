package config

import (
	"context"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

func InitRedis() error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0, // 使用默认数据库
	})

	ctx := context.Background()
	_, err := RedisClient.Ping(ctx).Result()
	return err
}

// 添加到Redis黑名单（登出后的令牌在剩余有效期内拒绝）
func AddToBlacklist(token string, ttl time.Duration) error {
	ctx := context.Background()
	return RedisClient.Set(ctx, "blacklist:"+token, "blacklisted", ttl).Err()
}

// 检查令牌是否在黑名单中
func IsBlacklisted(token string) bool {
	ctx := context.Background()
	n, err := RedisClient.Exists(ctx, "blacklist:"+token).Result()
	return err == nil && n > 0
}
