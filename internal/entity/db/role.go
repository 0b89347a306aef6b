package db

import (
	"strings"
	"time"
)

const (
	RoleAdministrator = "Administrator"
	RoleSeller        = "Seller"
	RoleCustomer      = "Customer"
)

// KnownRoles is the closed set of role names. Role checks compare
// case-insensitively against this list; anything else is rejected.
var KnownRoles = []string{RoleAdministrator, RoleSeller, RoleCustomer}

// NormalizeRole maps a role name to its canonical spelling, or "" when the
// name is not a known role.
func NormalizeRole(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, known := range KnownRoles {
		if strings.EqualFold(known, trimmed) {
			return known
		}
	}
	return ""
}

// Role 表示持久化的角色。
type Role struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"column:name;type:varchar(100);uniqueIndex;not null" json:"name"`
}

// TableName 指定表名。
func (Role) TableName() string {
	return "roles"
}
