package model

import (
	"context"
	"time"

	"storefront/internal/entity/common"
	"storefront/internal/entity/db"
	"storefront/internal/entity/dto"
)

// Repository 定义数据库操作接口
//
// Lookups report a missing row with gorm.ErrRecordNotFound and a uniqueness
// violation with gorm.ErrDuplicatedKey, regardless of the backing store.
type Repository interface {
	// 用户凭证存储
	CreateUser(ctx context.Context, user *db.User, password string) error
	UpdateUser(ctx context.Context, id uint, updates dto.UserUpdates) error
	GetUserByUsername(ctx context.Context, username string) (*db.User, error)
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
	GetUserByID(ctx context.Context, id uint) (*db.User, error)
	ListUsers(ctx context.Context, params *dto.UserQuery) ([]db.User, *common.Meta, error)
	SoftDeleteUser(ctx context.Context, id uint, actor string) error
	CheckPassword(ctx context.Context, user *db.User, password string) bool
	ChangePassword(ctx context.Context, user *db.User, current, newPassword string) error
	ResetPassword(ctx context.Context, id uint, newPassword string) error
	GeneratePasswordResetToken(ctx context.Context, user *db.User) (string, error)
	StoreResetToken(ctx context.Context, id uint, token string, expiry time.Time) error
	AddToRole(ctx context.Context, user *db.User, roleName string) error
	GetRoles(ctx context.Context, user *db.User) ([]string, error)
	GetClaims(ctx context.Context, user *db.User) ([]db.UserClaim, error)

	// 角色与权限存储
	GetRoleByName(ctx context.Context, name string) (*db.Role, error)
	CreateRole(ctx context.Context, role *db.Role) error
	GetMenuByURL(ctx context.Context, url string) (*db.Menu, error)
	CreateMenu(ctx context.Context, menu *db.Menu) error
	UpsertPermission(ctx context.Context, perm *db.Permission) error
	HasPermission(ctx context.Context, roleID uint, resource, action string) (bool, error)
}
