package api

import (
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/mail"
	"storefront/internal/model"
	"storefront/internal/service"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg         config.Config
	repo        model.Repository
	authManager *auth.Manager

	// 服务层
	userService *service.UserService
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, mailer mail.Mailer) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, expiry)
	if err != nil {
		return nil, err
	}

	userSvc := service.NewUserService(repo, authManager, mailer)

	return &HTTPHandler{
		cfg:         cfg,
		repo:        repo,
		authManager: authManager,
		userService: userSvc,
	}, nil
}
