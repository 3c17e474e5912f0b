package middleware

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"Guides-Server/config"
	"Guides-Server/security"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWT认证中间件
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var authHeader string
		if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
			authHeader = "Bearer " + cookieToken
		} else {
			authHeader = c.GetHeader("Authorization")
		}
		if authHeader == "" {
			log.Println("请求缺少认证信息")
			sendError(c, http.StatusUnauthorized, "缺少认证信息")
			return
		}

		// 验证Authorization头格式
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			log.Printf("无效的Authorization头格式: %s", authHeader)
			sendError(c, http.StatusUnauthorized, "无效的认证格式")
			return
		}

		tokenString := parts[1]
		if len(tokenString) < 10 { // 简单长度检查
			log.Printf("令牌长度不足: %d", len(tokenString))
			sendError(c, http.StatusUnauthorized, "无效的令牌")
			return
		}

		// 黑名单令牌直接拒绝（登出后的令牌）
		if config.IsBlacklisted(tokenString) {
			log.Println("令牌已被吊销")
			sendError(c, http.StatusUnauthorized, "令牌已失效")
			return
		}

		// 加载所有有效密钥
		secrets, err := security.LoadSecrets()
		if err != nil {
			log.Printf("加载JWT密钥失败: %v", err)
			sendError(c, http.StatusInternalServerError, "系统错误")
			return
		}

		if len(secrets) == 0 {
			log.Println("没有可用的JWT密钥")
			sendError(c, http.StatusInternalServerError, "系统错误")
			return
		}

		var lastErr error
		for _, secret := range secrets {
			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("不支持的签名算法: %v", token.Header["alg"])
				}
				return []byte(secret.Secret), nil
			})

			if err == nil && token.Valid {
				if claims.ExpiresAt.Before(time.Now()) {
					log.Println("令牌已过期")
					sendError(c, http.StatusUnauthorized, "令牌已过期")
					return
				}
				if claims.Subject == "" {
					log.Println("令牌缺少Subject声明")
					sendError(c, http.StatusUnauthorized, "无效的令牌声明")
					return
				}

				// Subject 仅为用户ID
				var userID, dbUsername string
				err := config.DB.QueryRow("SELECT id, username FROM users WHERE id = ?", claims.Subject).Scan(&userID, &dbUsername)
				if err != nil {
					log.Println("令牌用户不存在或已被删除")
					sendError(c, http.StatusUnauthorized, "用户不存在或已被删除")
					return
				}

				c.Set("username", dbUsername)
				c.Set("user_id", userID)
				c.Next()
				return
			}
			lastErr = err
		}

		if lastErr != nil {
			switch lastErr {
			case jwt.ErrSignatureInvalid:
				log.Println("令牌签名无效")
				sendError(c, http.StatusUnauthorized, "无效的令牌签名")
			case jwt.ErrTokenExpired:
				log.Println("令牌已过期")
				sendError(c, http.StatusUnauthorized, "令牌已过期")
			default:
				log.Printf("令牌验证失败: %v", lastErr)
				sendError(c, http.StatusUnauthorized, "无效的令牌")
			}
		} else {
			log.Println("令牌验证失败")
			sendError(c, http.StatusUnauthorized, "无效的令牌")
		}
	}
}

// 可选认证中间件 - 如果有token就解析，没有就跳过
func OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var authHeader string
		if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
			authHeader = "Bearer " + cookieToken
		} else {
			authHeader = c.GetHeader("Authorization")
		}

		// 如果没有认证信息，直接跳过
		if authHeader == "" {
			c.Next()
			return
		}

		// 验证Authorization头格式
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}

		tokenString := parts[1]
		if len(tokenString) < 10 || config.IsBlacklisted(tokenString) {
			c.Next()
			return
		}

		// 加载所有有效密钥
		secrets, err := security.LoadSecrets()
		if err != nil || len(secrets) == 0 {
			c.Next()
			return
		}

		// 尝试解析token
		for _, secret := range secrets {
			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("不支持的签名算法: %v", token.Header["alg"])
				}
				return []byte(secret.Secret), nil
			})

			if err == nil && token.Valid {
				if claims.ExpiresAt != nil && !claims.ExpiresAt.Before(time.Now()) && claims.Subject != "" {
					var userID, dbUsername string
					err := config.DB.QueryRow("SELECT id, username FROM users WHERE id = ?", claims.Subject).Scan(&userID, &dbUsername)
					if err == nil {
						c.Set("username", dbUsername)
						c.Set("user_id", userID)
						c.Next()
						return
					}
				}
			}
		}

		// token无效或解析失败，继续执行但不设置用户信息
		c.Next()
	}
}

func sendError(c *gin.Context, code int, _ string) {
	// 不返回任何错误信息，只返回固定响应码
	c.AbortWithStatus(code)
}

func CorsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		// 根据不同 Origin 进行缓存区分
		c.Writer.Header().Add("Vary", "Origin")

		// 允许的域名列表：默认生产域名 + CORS_ORIGINS 环境变量追加
		allowedOrigins := []string{
			"https://guides.wucode.xyz",
			"https://www.guides.wucode.xyz",
			"http://localhost:8001",
			"http://127.0.0.1:8001",
		}
		if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
			for _, o := range strings.Split(extra, ",") {
				if o = strings.TrimSpace(o); o != "" {
					allowedOrigins = append(allowedOrigins, o)
				}
			}
		}

		// 检查是否为pages.dev域名
		isPagesDev := strings.HasSuffix(origin, ".pages.dev")

		// 检查是否在允许列表中
		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		// 开发环境放宽：允许本机与私网 IP 的任意端口
		env := strings.ToLower(os.Getenv("ENV"))
		isDev := env == "" || env == "dev" || env == "development"
		isLocalDynamic := strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:") ||
			strings.HasPrefix(origin, "https://localhost:") ||
			strings.HasPrefix(origin, "https://127.0.0.1:")
		isLAN := strings.HasPrefix(origin, "http://192.168.") ||
			strings.HasPrefix(origin, "http://10.") ||
			strings.HasPrefix(origin, "http://172.") ||
			strings.HasPrefix(origin, "https://192.168.") ||
			strings.HasPrefix(origin, "https://10.") ||
			strings.HasPrefix(origin, "https://172.")
		if !allowed && isDev && origin != "" && (isLocalDynamic || isLAN) {
			allowed = true
		}

		if allowed || isPagesDev {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 基本安全头部
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("X-XSS-Protection", "1; mode=block")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// 内容安全策略 - 评测页需要内联图片与blob预加载
		csp := "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
			"img-src 'self' data: blob:; " +
			"font-src 'self' https://fonts.gstatic.com; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none'; " +
			"form-action 'self';"
		c.Writer.Header().Set("Content-Security-Policy", csp)

		// HSTS - 在生产环境启用
		if os.Getenv("ENV") == "production" {
			c.Writer.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
		}

		c.Writer.Header().Set("X-Download-Options", "noopen")
		c.Writer.Header().Set("X-Permitted-Cross-Domain-Policies", "none")

		c.Next()
	}
}
