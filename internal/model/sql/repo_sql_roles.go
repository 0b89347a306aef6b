package sql

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/entity/db"
)

// GetRoleByName loads a role by name, case-insensitively.
func (r *GormRepository) GetRoleByName(ctx context.Context, name string) (*db.Role, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("role name is empty")
	}

	var role db.Role
	if err := r.db.WithContext(ctx).
		Where("LOWER(name) = ?", strings.ToLower(trimmed)).
		First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

// CreateRole persists a new role.
func (r *GormRepository) CreateRole(ctx context.Context, role *db.Role) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if role == nil {
		return fmt.Errorf("role is nil")
	}
	return r.db.WithContext(ctx).Create(role).Error
}
