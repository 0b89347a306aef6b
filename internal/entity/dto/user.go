package dto

import (
	"time"

	"storefront/internal/entity/common"
)

// UserSummary is the public projection of an account.
type UserSummary struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	Roles       []string  `json:"roles"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserQuery filters and paginates the user list.
type UserQuery struct {
	common.BaseParams
	Role    string `json:"role" form:"role" query:"role"`
	Keyword string `json:"keyword" form:"keyword" query:"keyword"`
}

// UserListResponse is the paginated user listing.
type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *common.Meta  `json:"meta"`
}

// UserUpdateRequest patches mutable account fields.
type UserUpdateRequest struct {
	FullName    *string `json:"full_name"`
	Email       *string `json:"email" binding:"omitempty,email"`
	PhoneNumber *string `json:"phone_number"`
	Address     *string `json:"address"`
}

// UserUpdates carries the column updates derived from a patch request.
type UserUpdates struct {
	FullName     *string
	Email        *string
	PhoneNumber  *string
	Address      *string
	PasswordHash *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.FullName != nil {
		updates["full_name"] = *u.FullName
	}
	if u.Email != nil {
		updates["email"] = *u.Email
	}
	if u.PhoneNumber != nil {
		updates["phone_number"] = *u.PhoneNumber
	}
	if u.Address != nil {
		updates["address"] = *u.Address
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
