package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/entity/db"

	"gorm.io/gorm"
)

// GetMenuByURL loads a menu by its resource URL.
func (r *GormRepository) GetMenuByURL(ctx context.Context, url string) (*db.Menu, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, fmt.Errorf("menu url is empty")
	}

	var menu db.Menu
	if err := r.db.WithContext(ctx).Where("url = ?", trimmed).First(&menu).Error; err != nil {
		return nil, err
	}
	return &menu, nil
}

// CreateMenu persists a new menu.
func (r *GormRepository) CreateMenu(ctx context.Context, menu *db.Menu) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if menu == nil {
		return fmt.Errorf("menu is nil")
	}
	return r.db.WithContext(ctx).Create(menu).Error
}

// UpsertPermission creates or replaces the action flags for one
// (role, menu) pair, keeping at most one row per pair.
func (r *GormRepository) UpsertPermission(ctx context.Context, perm *db.Permission) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if perm == nil || perm.RoleID == 0 || perm.MenuID == 0 {
		return fmt.Errorf("invalid permission")
	}

	var existing db.Permission
	err := r.db.WithContext(ctx).
		Where("role_id = ? AND menu_id = ?", perm.RoleID, perm.MenuID).
		First(&existing).Error
	switch {
	case err == nil:
		return r.db.WithContext(ctx).Model(&db.Permission{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"can_access": perm.CanAccess,
				"can_add":    perm.CanAdd,
				"can_update": perm.CanUpdate,
				"can_delete": perm.CanDelete,
			}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(perm).Error
	default:
		return err
	}
}

// actionColumn maps a permission action to its boolean column.
func actionColumn(action string) string {
	switch action {
	case db.ActionAccess:
		return "can_access"
	case db.ActionAdd:
		return "can_add"
	case db.ActionUpdate:
		return "can_update"
	case db.ActionDelete:
		return "can_delete"
	default:
		return ""
	}
}

// HasPermission reports whether a role may perform an action on a resource
// path. No matching grant means no: deny-by-default.
func (r *GormRepository) HasPermission(ctx context.Context, roleID uint, resource, action string) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	if roleID == 0 {
		return false, nil
	}
	column := actionColumn(action)
	if column == "" {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&db.Permission{}).
		Joins("JOIN menus ON menus.id = permissions.menu_id").
		Where("permissions.role_id = ? AND menus.url = ?", roleID, resource).
		Where(fmt.Sprintf("permissions.%s = ?", column), true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
