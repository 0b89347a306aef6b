package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/entity/common"
	"storefront/internal/entity/db"
	"storefront/internal/entity/dto"
	"storefront/internal/utils"

	"gorm.io/gorm"
)

// CreateUser persists a new account. Password hashing happens here so no
// caller ever hands a plaintext password to the database layer.
func (r *GormRepository) CreateUser(ctx context.Context, user *db.User, password string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if user.Status == "" {
		user.Status = db.StatusActive
	}
	return r.db.WithContext(ctx).Create(user).Error
}

// UpdateUser updates an existing account's mutable fields.
func (r *GormRepository) UpdateUser(ctx context.Context, id uint, updates dto.UserUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}
	if updates.IsEmpty() {
		return nil
	}
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ? AND status = ?", id, db.StatusActive).
		Updates(updates.ToMap()).Error
}

// GetUserByUsername loads an active user by username.
func (r *GormRepository) GetUserByUsername(ctx context.Context, username string) (*db.User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return nil, fmt.Errorf("username is empty")
	}

	var user db.User
	if err := r.db.WithContext(ctx).Preload("Roles").
		Where("username = ? AND status = ?", trimmed, db.StatusActive).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail loads an active user by email.
func (r *GormRepository) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil, fmt.Errorf("email is empty")
	}

	var user db.User
	if err := r.db.WithContext(ctx).Preload("Roles").
		Where("LOWER(email) = ? AND status = ?", strings.ToLower(trimmed), db.StatusActive).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID loads an active user by ID.
func (r *GormRepository) GetUserByID(ctx context.Context, id uint) (*db.User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	var user db.User
	if err := r.db.WithContext(ctx).Preload("Roles").
		Where("id = ? AND status = ?", id, db.StatusActive).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns paginated active users.
func (r *GormRepository) ListUsers(ctx context.Context, params *dto.UserQuery) ([]db.User, *common.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&db.User{}).Where("status = ?", db.StatusActive)
	if params != nil {
		if role := db.NormalizeRole(params.Role); role != "" {
			query = query.Where("id IN (?)",
				r.db.Table("user_roles").
					Select("user_roles.user_id").
					Joins("JOIN roles ON roles.id = user_roles.role_id").
					Where("roles.name = ?", role))
		}
		if keyword := strings.TrimSpace(params.Keyword); keyword != "" {
			kw := "%" + strings.ToLower(keyword) + "%"
			query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(full_name) LIKE ?", kw, kw, kw)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	page := 1
	pageSize := 20
	if params != nil {
		if params.Page > 0 {
			page = int(params.Page)
		}
		if params.PageSize > 0 {
			pageSize = int(params.PageSize)
		}
	}

	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}

	var users []db.User
	if err := query.Preload("Roles").Order("id DESC").Offset(offset).Limit(pageSize).Find(&users).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return users, meta, nil
}

// SoftDeleteUser marks an account deleted and stamps the audit fields.
// The row itself is never removed.
func (r *GormRepository) SoftDeleteUser(ctx context.Context, id uint, actor string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ? AND status = ?", id, db.StatusActive).
		Updates(map[string]interface{}{
			"status":           db.StatusDeleted,
			"last_modified_on": now,
			"last_modified_by": actor,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
func (r *GormRepository) CheckPassword(ctx context.Context, user *db.User, password string) bool {
	if user == nil {
		return false
	}
	return auth.VerifyPassword(user.PasswordHash, password) == nil
}

// ChangePassword replaces the password after verifying the current one.
func (r *GormRepository) ChangePassword(ctx context.Context, user *db.User, current, newPassword string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if user == nil || user.ID == 0 {
		return fmt.Errorf("invalid user")
	}
	if err := auth.VerifyPassword(user.PasswordHash, current); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", user.ID).
		Update("password_hash", hash).Error
}

// ResetPassword sets a new password and clears the stored reset token.
func (r *GormRepository) ResetPassword(ctx context.Context, id uint, newPassword string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"password_hash":        hash,
			"refresh_token":        "",
			"refresh_token_expiry": nil,
		}).Error
}

// GeneratePasswordResetToken returns a fresh single-use reset token.
// Persisting it on the user is the caller's responsibility.
func (r *GormRepository) GeneratePasswordResetToken(ctx context.Context, user *db.User) (string, error) {
	if user == nil || user.ID == 0 {
		return "", fmt.Errorf("invalid user")
	}
	return utils.GenerateResetToken()
}

// StoreResetToken stores a reset token and its expiry on the user record.
func (r *GormRepository) StoreResetToken(ctx context.Context, id uint, token string, expiry time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}
	return r.db.WithContext(ctx).Model(&db.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"refresh_token":        token,
			"refresh_token_expiry": expiry,
		}).Error
}

// AddToRole assigns a role to a user. The many-to-many append is an upsert,
// so repeating an assignment is harmless.
func (r *GormRepository) AddToRole(ctx context.Context, user *db.User, roleName string) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if user == nil || user.ID == 0 {
		return fmt.Errorf("invalid user")
	}
	role, err := r.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(user).Association("Roles").Append(role)
}

// GetRoles returns the user's role names in the store's enumeration order.
func (r *GormRepository) GetRoles(ctx context.Context, user *db.User) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("invalid user")
	}
	var roles []db.Role
	if err := r.db.WithContext(ctx).Model(&db.Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", user.ID).
		Order("roles.id").
		Find(&roles).Error; err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names, nil
}

// GetClaims returns the custom claims attached to a user.
func (r *GormRepository) GetClaims(ctx context.Context, user *db.User) ([]db.UserClaim, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("invalid user")
	}
	var claims []db.UserClaim
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("id").
		Find(&claims).Error; err != nil {
		return nil, err
	}
	return claims, nil
}
