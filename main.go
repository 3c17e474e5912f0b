package main

import (
	"Guides-Server/config"
	"Guides-Server/middleware"
	"Guides-Server/module/assets"
	"Guides-Server/module/email"
	"Guides-Server/module/media"
	"Guides-Server/module/metrics"
	"Guides-Server/module/project"
	"Guides-Server/module/question"
	"Guides-Server/module/score"
	"Guides-Server/module/session"
	"Guides-Server/module/user"
	"Guides-Server/security"
	"Guides-Server/utils"
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

var db *sql.DB

var openAssetsService *assets.Service

func main() {

	gin.SetMode(gin.ReleaseMode)

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// 初始化JWT密钥
	log.Println("开始初始化JWT密钥...")
	if _, err := security.LoadSecrets(); err != nil {
		log.Printf("初始化JWT密钥失败: %v, 尝试重新生成...", err)
		if err = security.InitializeSecretFile(); err != nil {
			log.Fatalf("重新初始化JWT密钥失败: %v", err)
		}
	}
	log.Println("JWT密钥已准备就绪")

	// 启动密钥轮换服务
	security.StartSecretRotation()
	log.Println("JWT密钥轮换服务已启动")

	// 使用config模块初始化数据库
	config.InitDB()
	db = config.DB
	defer db.Close()

	// 初始化 Redis 客户端
	if err := config.InitRedis(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}

	// 启动采集窗口自动开关计划任务
	project.StartWindowScheduler()

	// 初始化评分服务模块
	score.InitService()
	log.Println("评分服务已初始化")

	// 启动回收站定时清理任务
	startRecycleBinCleanupScheduler()

	// 初始化登录会话管理器
	sessionManager := session.NewSessionManager(db)
	sessionManager.StartCleanupRoutine()
	log.Println("登录会话管理服务已启动")

	// 初始化邮件服务
	email.InitEmailService(db)
	log.Println("邮件服务已初始化")

	// 初始化 OpenAssets 服务模块
	port := os.Getenv("PORT")
	if port == "" {
		port = "11222"
	}
	hostURL := os.Getenv("HOST_URL")
	httpsEnabled := os.Getenv("HTTPS_ENABLED") == "true"
	httpsPort := os.Getenv("HTTPS_PORT")
	if hostURL == "" && httpsEnabled {
		hostURL = fmt.Sprintf("https://127.0.0.1:%s", httpsPort)
	} else if hostURL == "" {
		hostURL = fmt.Sprintf("http://127.0.0.1:%s", port)
	}

	oaConfig := &assets.Config{
		BaseURL:        hostURL,
		StoragePath:    "assets_storage",
		MaxFileSize:    50 * 1024 * 1024,   // 50MB
		MaxUserStorage: 1024 * 1024 * 1024, // 1GB
		AuthRequired:   true,
		AllowedTypes: map[string]bool{
			"image/jpeg": true, "image/jpg": true, "image/png": true,
			"image/gif": true, "image/webp": true, "image/bmp": true,
		},
	}

	oaService, err := assets.NewService(oaConfig, db)
	if err != nil {
		log.Fatalf("初始化 OpenAssets 服务失败: %v", err)
	}
	openAssetsService = oaService

	// 设置 media 模块的 OpenAssets 服务实例
	media.SetOpenAssetsService(openAssetsService)

	// 主应用 Gin 路由器
	router := gin.Default()

	// 设置可信代理
	trusted := config.LoadTrustedProxies()
	if err := router.SetTrustedProxies(trusted); err != nil {
		log.Fatalf("设置可信代理失败: %v", err)
	}

	router.MaxMultipartMemory = 50 << 20
	router.Use(gin.Recovery())

	router.Use(
		middleware.CorsMiddleware(),
		middleware.RateLimitMiddleware(),
		middleware.SecurityHeadersMiddleware(),
	)

	// ===================================================================
	// 主应用 API 路由
	// ===================================================================
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", user.RegisterHandler)
		authGroup.POST("/login", user.LoginHandler)
		authGroup.POST("/refresh", user.RefreshHandler)
		authGroup.POST("/logout", user.LogoutHandler)

		// 邮箱验证相关路由
		authGroup.POST("/email/send-code", email.SendVerificationCodeHandler)
		authGroup.POST("/email/verify-code", email.VerifyEmailCodeHandler)
		authGroup.POST("/email/reset-password", user.ResetPasswordWithEmailHandler)
	}

	router.GET("/user/profile/:id", user.GetUserProfileHandler)

	// 登录会话管理API
	sessionGroup := router.Group("/api/sessions")
	sessionGroup.Use(middleware.AuthMiddleware())
	{
		sessionHandlers := session.NewSessionHandlers(sessionManager)
		sessionGroup.GET("", sessionHandlers.GetUserSessions)
		sessionGroup.DELETE("/:session_id", sessionHandlers.RevokeSession)
		sessionGroup.POST("/revoke-all", sessionHandlers.RevokeAllSessions)
		sessionGroup.POST("/limit", sessionHandlers.LimitUserSessions)
	}

	protectedGroup := router.Group("/api")
	protectedGroup.Use(middleware.AuthMiddleware())
	{
		// 邮箱验证码（需要登录）
		protectedGroup.POST("/user/send-email-code", email.SendChangeEmailCodeHandler)

		// 用户密码管理（需要登录）
		protectedGroup.POST("/user/change-password-with-email", user.ChangePasswordWithEmailHandler)

		// 项目相关API
		protectedGroup.GET("/project/list", project.GetProjectsHandler)
		protectedGroup.GET("/project/detail/:id", project.GetProjectHandler)
		protectedGroup.POST("/project/add", project.CreateProjectHandler)
		protectedGroup.PUT("/project/update", project.UpdateProjectHandler)
		protectedGroup.PUT("/project/status/:id", project.UpdateProjectStatusHandler)
		protectedGroup.DELETE("/project/delete/:id", project.DeleteProjectHandler)
		protectedGroup.DELETE("/project/batch-delete", project.BatchDeleteProjectsHandler)

		// 评分提交管理API
		protectedGroup.GET("/score/list/:projectId", score.GetSubmissionsHandler)
		protectedGroup.GET("/score/:id", score.GetSubmissionByIDHandler)
		protectedGroup.DELETE("/score/:id", score.DeleteSubmissionHandler)                          // 物理删除 (仅创建者)
		protectedGroup.DELETE("/scores/batch", score.BatchDeleteSubmissionsHandler)                 // 批量物理删除 (仅创建者)
		protectedGroup.POST("/score/logic-delete/:id", score.LogicDeleteSubmissionHandler)          // 逻辑删除
		protectedGroup.POST("/scores/batch-logic-delete", score.BatchLogicDeleteSubmissionsHandler) // 批量逻辑删除
		// 回收站 API
		protectedGroup.GET("/score/recycle-bin/:projectId", score.GetDeletedSubmissionsHandler)         // 获取回收站列表
		protectedGroup.POST("/score/recycle-bin/restore/:id", score.RestoreSubmissionHandler)           // 恢复单个提交
		protectedGroup.POST("/scores/recycle-bin/batch-restore", score.BatchRestoreSubmissionsHandler)  // 批量恢复提交

		protectedGroup.GET("/user/current", user.GetCurrentUserHandler)
		protectedGroup.POST("/user/generate-token", user.GenerateCustomTokenHandler)

		// 统计相关API
		protectedGroup.GET("/project/stats/:id", metrics.GetProjectStatsHandler)
		protectedGroup.GET("/project/stats", metrics.GetAllProjectStatsHandler)
		protectedGroup.GET("/project/recent-submissions", metrics.GetRecentSubmissionsHandler)
		protectedGroup.GET("/project/aggregates/questions/:id", metrics.GetQuestionAggregatesHandler)
		protectedGroup.GET("/project/aggregates/images/:id", metrics.GetImageAggregatesHandler)
		protectedGroup.GET("/project/aggregates/matrix/:id", metrics.GetScoreMatrixHandler)
		// 总览与趋势
		protectedGroup.GET("/metrics/overview", metrics.GetOverviewHandler)
		protectedGroup.GET("/metrics/submit-trend", metrics.GetSubmitTrendHandler)

		// 题目相关API
		protectedGroup.GET("/project/:projectId/questions", question.GetQuestionsHandler)
		protectedGroup.POST("/project/:projectId/question", question.AddQuestionHandler)
		protectedGroup.PUT("/project/:projectId/question/:questionId", question.UpdateQuestionHandler)
		protectedGroup.DELETE("/project/:projectId/question/:questionId", question.DeleteQuestionHandler)
		protectedGroup.PUT("/project/:projectId/questions/reorder", question.ReorderQuestionsHandler)

		// 项目图片相关 API
		protectedGroup.POST("/project/:projectId/image", media.UploadProjectImageHandler)
		protectedGroup.POST("/project/:projectId/images/batch-upload", media.BatchUploadProjectImagesHandler)
		protectedGroup.GET("/project/:projectId/images", media.GetProjectImagesHandler)
		protectedGroup.DELETE("/project/:projectId/image/:imageId", media.DeleteProjectImageHandler)
		protectedGroup.PUT("/project/:projectId/images/reorder", media.ReorderProjectImagesHandler)

		// 图片库管理 API
		protectedGroup.GET("/images/list", media.GetImagesHandler)
		protectedGroup.GET("/images/storage", media.GetUserImageStorageHandler)
		protectedGroup.GET("/images/:imageId", media.GetImageHandler)
		protectedGroup.DELETE("/images/:imageId", media.DeleteImageHandler)

		// 头像上传API
		protectedGroup.POST("/user/avatar/upload", media.UploadAvatarHandler)
		// 用户名修改API
		protectedGroup.PUT("/user/username", user.UpdateUsernameHandler)
		// 更换邮箱API（需要登录和密码验证）
		protectedGroup.POST("/user/change-email", user.ChangeEmailHandler)
		// 修改密码API（需要登录和旧密码验证）
		protectedGroup.POST("/user/change-password", user.ChangePasswordHandler)

	}

	router.POST("/api/getCaptcha", utils.GetCaptchaHandler)
	router.POST("/api/verifyCaptcha", utils.VerifyCaptchaHandler)

	// 参与端评分提交（可选认证：有token则记录用户，无token则匿名）
	router.POST("/scores", middleware.OptionalAuthMiddleware(), score.SubmitScoresHandler)

	// 公开项目访问路由（支持可选认证：有token则识别用户，无token则匿名）
	publicGroup := router.Group("/api/public")
	publicGroup.Use(middleware.OptionalAuthMiddleware())
	{
		publicGroup.GET("/project/:uid", score.GetPublicProjectHandler)
		publicGroup.POST("/scores", score.SubmitScoresHandler)
	}

	// ===================================================================
	// OpenAssets 服务路由 (集成到主 Router)
	// ===================================================================
	// 公共文件访问接口 (无需认证)
	router.GET("/openassets/files/:bucket/:filename", openAssetsService.DownloadHandler)

	// 管理接口 (需要认证, 使用主应用的 AuthMiddleware)
	openAssetsGroup := router.Group("/openassets")
	openAssetsGroup.Use(middleware.AuthMiddleware()) // 复用主应用的认证中间件
	{
		openAssetsGroup.POST("/upload/:bucket", openAssetsService.UploadHandler)
		openAssetsGroup.DELETE("/delete/:bucket/:filename", openAssetsService.DeleteHandler)
		openAssetsGroup.GET("/list/:bucket", openAssetsService.ListHandler)
		openAssetsGroup.GET("/info/:bucket/:filename", openAssetsService.InfoHandler)
		openAssetsGroup.GET("/user/storage/:username", openAssetsService.GetUserStorageHandler)
		openAssetsGroup.GET("/stats", openAssetsService.GetStatsHandler)
	}

	// 启动服务器
	startServer(router, port)
}

// startRecycleBinCleanupScheduler 启动回收站定时清理任务
func startRecycleBinCleanupScheduler() {
	cronExpr := os.Getenv("RECYCLE_BIN_CLEANUP_CRON")
	if cronExpr == "" {
		cronExpr = "0 0 * * *" // 默认每天凌晨执行
	}

	retentionDaysStr := os.Getenv("RECYCLE_BIN_RETENTION_DAYS")
	retentionDays := 30 // 默认保留30天
	if retentionDaysStr != "" {
		if d, err := strconv.Atoi(retentionDaysStr); err == nil {
			retentionDays = d
		}
	}

	c := cron.New()
	_, err := c.AddFunc(cronExpr, func() {
		log.Printf("开始执行回收站自动清理任务 (保留天数: %d)...", retentionDays)
		count, err := score.CleanupRecycleBinTask(retentionDays)
		if err != nil {
			log.Printf("执行回收站自动清理任务失败: %v", err)
		} else if count > 0 {
			log.Printf("回收站自动清理任务完成，共物理删除 %d 条过期数据", count)
		}
	})

	if err != nil {
		log.Printf("启动回收站自动清理计划任务失败: %v", err)
		return
	}

	c.Start()
	log.Printf("回收站自动清理计划任务已启动，Cron表达式: %s, 保留天数: %d", cronExpr, retentionDays)
}

// startServer 启动HTTP/HTTPS服务器
func startServer(router *gin.Engine, port string) {
	// 获取SSL配置
	httpsEnabled := os.Getenv("HTTPS_ENABLED") == "true"
	sslCertFile := os.Getenv("SSL_CERT_FILE")
	sslKeyFile := os.Getenv("SSL_KEY_FILE")
	httpsPort := os.Getenv("HTTPS_PORT")
	httpRedirect := os.Getenv("HTTP_REDIRECT") == "true"

	// 检查是否启用HTTPS
	if httpsEnabled && sslCertFile != "" && sslKeyFile != "" {
		// 检查证书文件是否存在
		if _, err := os.Stat(sslCertFile); os.IsNotExist(err) {
			log.Printf("警告: SSL证书文件不存在: %s", sslCertFile)
			log.Printf("回退到HTTP模式")
			startHTTPServer(router, port)
			return
		}
		if _, err := os.Stat(sslKeyFile); os.IsNotExist(err) {
			log.Printf("警告: SSL私钥文件不存在: %s", sslKeyFile)
			log.Printf("回退到HTTP模式")
			startHTTPServer(router, port)
			return
		}

		if httpsPort == "" {
			httpsPort = "443"
		}

		// 启动HTTPS服务器
		startHTTPSServer(router, httpsPort, sslCertFile, sslKeyFile, httpRedirect, port)
	} else {
		// HTTPS未启用或证书配置不完整，启动HTTP服务器
		if !httpsEnabled {
			log.Printf("HTTPS已禁用，启动HTTP模式")
		} else {
			log.Printf("HTTPS配置不完整，回退到HTTP模式")
		}
		startHTTPServer(router, port)
	}
}

// startHTTPServer 启动HTTP服务器
func startHTTPServer(router *gin.Engine, port string) {
	log.Printf("启动HTTP服务器，端口: %s", port)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
		// 安全配置 - 增加超时以支持批量图片上传
		ReadTimeout:  300 * time.Second, // 5分钟读取超时
		WriteTimeout: 300 * time.Second, // 5分钟写入超时
		IdleTimeout:  120 * time.Second, // 2分钟空闲超时
	}

	// 优雅关闭
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP服务器启动失败: %v", err)
		}
	}()

	gracefulShutdown(server, nil)
}

// startHTTPSServer 启动HTTPS服务器
func startHTTPSServer(router *gin.Engine, httpsPort, certFile, keyFile string, httpRedirect bool, httpPort string) {
	log.Printf("启动HTTPS服务器，端口: %s", httpsPort)
	log.Printf("证书文件: %s", certFile)
	log.Printf("私钥文件: %s", keyFile)

	// HTTPS服务器配置
	httpsServer := &http.Server{
		Addr:    ":" + httpsPort,
		Handler: router,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		},
		ReadTimeout:  300 * time.Second, // 5分钟读取超时
		WriteTimeout: 300 * time.Second, // 5分钟写入超时
		IdleTimeout:  120 * time.Second, // 2分钟空闲超时
	}

	// 启动HTTPS服务器
	go func() {
		if err := httpsServer.ListenAndServeTLS(certFile, keyFile); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTPS服务器启动失败: %v", err)
		}
	}()

	var httpServer *http.Server
	// 如果启用HTTP重定向，启动HTTP重定向服务器
	if httpRedirect {
		log.Printf("启动HTTP重定向服务器，端口: %s -> HTTPS:%s", httpPort, httpsPort)

		redirectHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 构建HTTPS URL
			httpsURL := "https://" + r.Host
			if httpsPort != "443" {
				httpsURL = "https://" + r.Host + ":" + httpsPort
			}
			httpsURL += r.RequestURI

			http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
		})

		httpServer = &http.Server{
			Addr:         ":" + httpPort,
			Handler:      redirectHandler,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  15 * time.Second,
		}

		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP重定向服务器启动失败: %v", err)
			}
		}()
	}

	gracefulShutdown(httpsServer, httpServer)
}

// gracefulShutdown 优雅关闭服务器
func gracefulShutdown(httpsServer *http.Server, httpServer *http.Server) {
	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务器...")

	// 设置关闭超时
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 关闭HTTPS服务器
	if err := httpsServer.Shutdown(ctx); err != nil {
		log.Printf("HTTPS服务器强制关闭: %v", err)
	}

	// 关闭HTTP服务器（如果存在）
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP服务器强制关闭: %v", err)
		}
	}

	log.Println("服务器已关闭")
}
