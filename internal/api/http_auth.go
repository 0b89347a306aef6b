package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"storefront/internal/entity/dto"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *HTTPHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.userService.LoginUser(ctx, req.Username, req.Password)
	if err != nil {
		logrus.WithError(err).WithField("username", req.Username).Error("login failed")
		InternalError(c, "failed to process login")
		return
	}

	if !result.IsAuthenticated {
		code := ErrCodeInvalidCredentials
		if result.Message == service.MsgAccountNotFound {
			code = ErrCodeAccountNotFound
		}
		ErrorResponse(c, http.StatusUnauthorized, code, result.Message)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.userService.RegisterCustomer(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("registration failed")
		InternalError(c, "failed to register user")
		return
	}

	if strings.Contains(msg, "already registered") {
		BadRequest(c, ErrCodeEmailExists, msg)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// RegisterAdmin 创建管理员账户，仅限已授权的调用者。
func (h *HTTPHandler) RegisterAdmin(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.userService.RegisterAdmin(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("admin registration failed")
		InternalError(c, "failed to register user")
		return
	}

	if strings.Contains(msg, "already registered") {
		BadRequest(c, ErrCodeEmailExists, msg)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *HTTPHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := h.userService.ForgetPassword(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("forgot password failed")
		InternalError(c, "failed to process password reset request")
		return
	}

	if !result.IsAuthenticated {
		if strings.HasPrefix(result.Message, "Failed to send") {
			ErrorResponse(c, http.StatusBadGateway, ErrCodeNotificationFailed, result.Message)
			return
		}
		NotFound(c, ErrCodeAccountNotFound, result.Message)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.userService.ResetPassword(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("password reset failed")
		InternalError(c, "failed to reset password")
		return
	}

	if !result.IsAuthenticated {
		if result.Message == service.MsgResetTokenInvalid {
			BadRequest(c, ErrCodeResetTokenInvalid, result.Message)
			return
		}
		NotFound(c, ErrCodeAccountNotFound, result.Message)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) ChangePassword(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	result, err := h.userService.ChangePassword(ctx, user.ID, req)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("change password failed")
		InternalError(c, "failed to change password")
		return
	}

	if !result.IsAuthenticated {
		if result.Message == service.MsgAccountNotFound {
			NotFound(c, ErrCodeAccountNotFound, result.Message)
			return
		}
		BadRequest(c, ErrCodeInvalidCredentials, result.Message)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		Unauthorized(c, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	summary, err := h.userService.GetByID(ctx, user.ID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("failed to load user profile")
		InternalError(c, "failed to load profile")
		return
	}

	c.JSON(http.StatusOK, summary)
}
