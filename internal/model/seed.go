package model

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/config"
	"storefront/internal/entity/db"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var defaultMenus = []db.Menu{
	{Name: "Category", URL: db.CategoryPermission},
	{Name: "Product", URL: db.ProductPermission},
	{Name: "Order", URL: db.OrderPermission},
	{Name: "User", URL: db.UserPermission},
	{Name: "Role", URL: db.RolePermission},
	{Name: "Seller", URL: db.SellerPermission},
	{Name: "Size", URL: db.SizePermission},
	{Name: "Color", URL: db.ColorPermission},
	{Name: "Cart", URL: db.CartPermission},
}

type permissionGrant struct {
	url       string
	canAccess bool
	canAdd    bool
	canUpdate bool
	canDelete bool
}

func fullGrant(url string) permissionGrant {
	return permissionGrant{url: url, canAccess: true, canAdd: true, canUpdate: true, canDelete: true}
}

// defaultPermissionMatrix is the seeded grant set. Anything not listed here
// is denied until an administrator grants it.
func defaultPermissionMatrix() map[string][]permissionGrant {
	adminGrants := make([]permissionGrant, 0, len(defaultMenus))
	for _, menu := range defaultMenus {
		adminGrants = append(adminGrants, fullGrant(menu.URL))
	}

	return map[string][]permissionGrant{
		db.RoleAdministrator: adminGrants,
		db.RoleSeller: {
			fullGrant(db.ProductPermission),
			fullGrant(db.SizePermission),
			fullGrant(db.ColorPermission),
			{url: db.CategoryPermission, canAccess: true},
			{url: db.OrderPermission, canAccess: true, canUpdate: true},
			{url: db.SellerPermission, canAccess: true, canUpdate: true},
		},
		db.RoleCustomer: {
			{url: db.CategoryPermission, canAccess: true},
			{url: db.ProductPermission, canAccess: true},
			{url: db.CartPermission, canAccess: true, canAdd: true, canUpdate: true, canDelete: true},
			{url: db.OrderPermission, canAccess: true, canAdd: true},
		},
	}
}

// SeedDefaults ensures the known roles, menus, permission matrix and the
// initial administrator account exist. Safe to run on every startup.
func SeedDefaults(ctx context.Context, repo Repository, cfg config.Config) error {
	if repo == nil {
		return nil
	}

	for _, name := range db.KnownRoles {
		if err := ensureRole(ctx, repo, name); err != nil {
			return err
		}
	}

	for _, menu := range defaultMenus {
		if err := ensureMenu(ctx, repo, menu); err != nil {
			return err
		}
	}

	for roleName, grants := range defaultPermissionMatrix() {
		role, err := repo.GetRoleByName(ctx, roleName)
		if err != nil {
			return err
		}
		for _, grant := range grants {
			menu, err := repo.GetMenuByURL(ctx, grant.url)
			if err != nil {
				return err
			}
			perm := &db.Permission{
				RoleID:    role.ID,
				MenuID:    menu.ID,
				CanAccess: grant.canAccess,
				CanAdd:    grant.canAdd,
				CanUpdate: grant.canUpdate,
				CanDelete: grant.canDelete,
			}
			if err := repo.UpsertPermission(ctx, perm); err != nil {
				return err
			}
		}
	}

	return ensureInitialAdmin(ctx, repo, cfg)
}

func ensureRole(ctx context.Context, repo Repository, name string) error {
	_, err := repo.GetRoleByName(ctx, name)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repo.CreateRole(ctx, &db.Role{Name: name})
	default:
		return err
	}
}

func ensureMenu(ctx context.Context, repo Repository, menu db.Menu) error {
	_, err := repo.GetMenuByURL(ctx, menu.URL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repo.CreateMenu(ctx, &menu)
	default:
		return err
	}
}

func ensureInitialAdmin(ctx context.Context, repo Repository, cfg config.Config) error {
	password := strings.TrimSpace(cfg.AdminPassword)
	if password == "" {
		logrus.Warn("ADMIN_PASSWORD not set, skipping initial administrator")
		return nil
	}

	_, err := repo.GetUserByUsername(ctx, cfg.AdminUsername)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through and create
	default:
		return err
	}

	admin := &db.User{
		Username:       cfg.AdminUsername,
		Email:          cfg.AdminEmail,
		FullName:       "Administrator",
		EmailConfirmed: true,
	}
	if err := repo.CreateUser(ctx, admin, password); err != nil {
		return err
	}
	if err := repo.AddToRole(ctx, admin, db.RoleAdministrator); err != nil {
		return err
	}
	logrus.WithField("username", cfg.AdminUsername).Info("created initial administrator")
	return nil
}
