package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var DB *sql.DB

// 初始化数据库连接
func InitDB() {
	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "127.0.0.1:3306"
	}
	dsn := os.Getenv("DB_USER") + ":" +
		os.Getenv("DB_PASSWORD") + "@tcp(" +
		host + ")/" +
		os.Getenv("DB_NAME") + "?parseTime=true&loc=Local&tls=preferred"

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		log.Fatal("数据库连接失败:", err)
	}

	// 连接池大小可通过环境变量覆盖
	maxOpen := envInt("DB_MAX_OPEN_CONNS", 25)
	maxIdle := envInt("DB_MAX_IDLE_CONNS", 10)
	DB.SetMaxOpenConns(maxOpen)
	DB.SetMaxIdleConns(maxIdle)
	DB.SetConnMaxLifetime(5 * time.Minute)
	DB.SetConnMaxIdleTime(2 * time.Minute)

	if err = DB.Ping(); err != nil {
		log.Fatal("数据库连接检查失败:", err)
	}
	log.Printf("数据库已连接: %s (连接池 %d/%d)", os.Getenv("DB_NAME"), maxIdle, maxOpen)
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
