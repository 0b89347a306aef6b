package db

import "time"

// Permission actions. A permission row carries one boolean flag per action.
const (
	ActionAccess = "Access"
	ActionAdd    = "Add"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

// Resource paths gated by the permission matrix.
const (
	CategoryPermission = "/category"
	ProductPermission  = "/product"
	OrderPermission    = "/order"
	UserPermission     = "/user"
	RolePermission     = "/role"
	SellerPermission   = "/seller"
	SizePermission     = "/size"
	ColorPermission    = "/color"
	CartPermission     = "/cart"
)

// Menu 表示受权限控制的资源路径。
type Menu struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	URL       string    `gorm:"column:url;type:varchar(255);uniqueIndex;not null" json:"url"`
}

// TableName 指定表名。
func (Menu) TableName() string {
	return "menus"
}

// Permission grants a role a set of actions on one menu. The composite
// unique index keeps at most one row per (role, menu).
type Permission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	RoleID    uint      `gorm:"column:role_id;uniqueIndex:idx_role_menu;not null" json:"role_id"`
	MenuID    uint      `gorm:"column:menu_id;uniqueIndex:idx_role_menu;not null" json:"menu_id"`
	CanAccess bool      `gorm:"column:can_access;not null;default:false" json:"can_access"`
	CanAdd    bool      `gorm:"column:can_add;not null;default:false" json:"can_add"`
	CanUpdate bool      `gorm:"column:can_update;not null;default:false" json:"can_update"`
	CanDelete bool      `gorm:"column:can_delete;not null;default:false" json:"can_delete"`
}

// TableName 指定表名。
func (Permission) TableName() string {
	return "permissions"
}

// Allows reports whether the row grants the given action.
func (p *Permission) Allows(action string) bool {
	if p == nil {
		return false
	}
	switch action {
	case ActionAccess:
		return p.CanAccess
	case ActionAdd:
		return p.CanAdd
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}
