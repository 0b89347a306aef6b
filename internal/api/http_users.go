package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/entity/converter"
	"storefront/internal/entity/dto"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (h *HTTPHandler) ListUsers(c *gin.Context) {
	var query dto.UserQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	users, meta, err := h.repo.ListUsers(ctx, &query)
	if err != nil {
		logrus.WithError(err).Error("failed to list users")
		InternalError(c, "failed to list users")
		return
	}

	c.JSON(http.StatusOK, dto.UserListResponse{
		Users: converter.UsersToSummaries(users),
		Meta:  meta,
	})
}

func (h *HTTPHandler) GetUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	summary, err := h.userService.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeAccountNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", id).Error("failed to load user")
		InternalError(c, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.userService.Update(ctx, id, req)
	if err != nil {
		logrus.WithError(err).WithField("user_id", id).Error("failed to update user")
		InternalError(c, "failed to update user")
		return
	}

	if msg == service.MsgAccountNotFound {
		NotFound(c, ErrCodeAccountNotFound, msg)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	actor := ""
	if user := CurrentUser(c); user != nil {
		actor = user.Username
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.userService.Delete(ctx, id, actor)
	if err != nil {
		logrus.WithError(err).WithField("user_id", id).Error("failed to delete user")
		InternalError(c, "failed to delete user")
		return
	}

	switch msg {
	case service.MsgAccountNotFound:
		NotFound(c, ErrCodeAccountNotFound, msg)
	case "Delete failed":
		BadRequest(c, ErrCodeOperationFailed, msg)
	default:
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

// AssignRole 给指定邮箱的账户授予角色。
func (h *HTTPHandler) AssignRole(c *gin.Context) {
	var req dto.AddRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	msg, err := h.userService.AddRole(ctx, req)
	if err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("failed to assign role")
		InternalError(c, "failed to assign role")
		return
	}

	switch {
	case strings.HasPrefix(msg, "No Accounts Registered"):
		NotFound(c, ErrCodeAccountNotFound, msg)
	case strings.HasSuffix(msg, "not found"):
		BadRequest(c, ErrCodeRoleNotFound, msg)
	default:
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

func parseIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return 0, false
	}
	return uint(id), true
}
