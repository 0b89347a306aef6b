package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/api"
	"storefront/internal/config"
	"storefront/internal/entity/db"
	"storefront/internal/mail"
	"storefront/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	if err := model.SeedDefaults(context.Background(), repo, cfg); err != nil {
		logrus.WithError(err).Warn("failed to seed default roles and permissions")
	}

	mailer, err := mail.NewMailer(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise mailer")
		return
	}

	httpHandler, err := api.NewHTTPHandler(cfg, repo, mailer)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", httpHandler.Register)
	authGroup.POST("/login", httpHandler.Login)
	authGroup.POST("/forgot-password", httpHandler.ForgotPassword)
	authGroup.POST("/reset-password", httpHandler.ResetPassword)
	authGroup.GET("/me", httpHandler.AuthMiddleware(), httpHandler.Me)
	authGroup.POST("/change-password", httpHandler.AuthMiddleware(), httpHandler.ChangePassword)

	protected := apiGroup.Group("")
	protected.Use(httpHandler.AuthMiddleware())

	users := protected.Group("/users")
	users.GET("", httpHandler.RequirePermission(db.UserPermission, db.ActionAccess), httpHandler.ListUsers)
	users.GET("/:id", httpHandler.RequirePermission(db.UserPermission, db.ActionAccess), httpHandler.GetUser)
	users.POST("", httpHandler.RequirePermission(db.UserPermission, db.ActionAdd), httpHandler.RegisterAdmin)
	users.PATCH("/:id", httpHandler.RequirePermission(db.UserPermission, db.ActionUpdate), httpHandler.UpdateUser)
	users.DELETE("/:id", httpHandler.RequirePermission(db.UserPermission, db.ActionDelete), httpHandler.DeleteUser)

	roles := protected.Group("/roles")
	roles.POST("/assign", httpHandler.RequirePermission(db.RolePermission, db.ActionUpdate), httpHandler.AssignRole)

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("服务器启动失败")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
