package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"storefront/internal/auth"
	"storefront/internal/entity/common"
	"storefront/internal/entity/db"
	"storefront/internal/entity/dto"
	"storefront/internal/utils"

	"gorm.io/gorm"
)

// MemoryRepository is an in-process Repository used for the memory database
// type and by tests. It mirrors the SQL implementation's behaviour, including
// soft-delete filtering and the gorm sentinel errors.
type MemoryRepository struct {
	mu sync.RWMutex

	nextUserID uint
	nextRoleID uint
	nextMenuID uint
	nextPermID uint

	users     map[uint]*db.User
	claims    map[uint][]db.UserClaim
	userRoles map[uint][]uint
	roles     map[uint]*db.Role
	menus     map[uint]*db.Menu
	perms     map[string]*db.Permission
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[uint]*db.User),
		claims:    make(map[uint][]db.UserClaim),
		userRoles: make(map[uint][]uint),
		roles:     make(map[uint]*db.Role),
		menus:     make(map[uint]*db.Menu),
		perms:     make(map[string]*db.Permission),
	}
}

func permKey(roleID, menuID uint) string {
	return fmt.Sprintf("%d:%d", roleID, menuID)
}

// copyUser returns a detached copy with roles in assignment order.
// Callers must hold at least a read lock.
func (r *MemoryRepository) copyUser(u *db.User) *db.User {
	cp := *u
	cp.Roles = nil
	for _, roleID := range r.userRoles[u.ID] {
		if role, ok := r.roles[roleID]; ok {
			cp.Roles = append(cp.Roles, *role)
		}
	}
	return &cp
}

func (r *MemoryRepository) CreateUser(ctx context.Context, user *db.User, password string) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, user.Username) || strings.EqualFold(existing.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}

	r.nextUserID++
	now := time.Now().UTC()
	user.ID = r.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	user.PasswordHash = hash
	if user.Status == "" {
		user.Status = db.StatusActive
	}

	stored := *user
	stored.Roles = nil
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, id uint, updates dto.UserUpdates) error {
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}
	if updates.IsEmpty() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.Status != db.StatusActive {
		return gorm.ErrRecordNotFound
	}
	if updates.FullName != nil {
		user.FullName = *updates.FullName
	}
	if updates.Email != nil {
		user.Email = *updates.Email
	}
	if updates.PhoneNumber != nil {
		user.PhoneNumber = *updates.PhoneNumber
	}
	if updates.Address != nil {
		user.Address = *updates.Address
	}
	if updates.PasswordHash != nil {
		user.PasswordHash = *updates.PasswordHash
	}
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*db.User, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return nil, fmt.Errorf("username is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Status == db.StatusActive && user.Username == trimmed {
			return r.copyUser(user), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil, fmt.Errorf("email is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Status == db.StatusActive && strings.EqualFold(user.Email, trimmed) {
			return r.copyUser(user), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id uint) (*db.User, error) {
	if id == 0 {
		return nil, fmt.Errorf("invalid user id")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok || user.Status != db.StatusActive {
		return nil, gorm.ErrRecordNotFound
	}
	return r.copyUser(user), nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context, params *dto.UserQuery) ([]db.User, *common.Meta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roleFilter := ""
	keyword := ""
	if params != nil {
		roleFilter = db.NormalizeRole(params.Role)
		keyword = strings.ToLower(strings.TrimSpace(params.Keyword))
	}

	var matched []db.User
	// Highest id first, matching the SQL ordering.
	for id := r.nextUserID; id >= 1; id-- {
		user, ok := r.users[id]
		if !ok || user.Status != db.StatusActive {
			continue
		}
		if roleFilter != "" {
			hasRole := false
			for _, roleID := range r.userRoles[id] {
				if role, ok := r.roles[roleID]; ok && role.Name == roleFilter {
					hasRole = true
					break
				}
			}
			if !hasRole {
				continue
			}
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(user.Username), keyword) &&
			!strings.Contains(strings.ToLower(user.Email), keyword) &&
			!strings.Contains(strings.ToLower(user.FullName), keyword) {
			continue
		}
		matched = append(matched, *r.copyUser(user))
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

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	meta := &common.Meta{Total: total, Page: int64(page), PageSize: int64(pageSize)}
	return matched[start:end], meta, nil
}

func (r *MemoryRepository) SoftDeleteUser(ctx context.Context, id uint, actor string) error {
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || user.Status != db.StatusActive {
		return gorm.ErrRecordNotFound
	}
	now := time.Now().UTC()
	user.Status = db.StatusDeleted
	user.LastModifiedOn = &now
	user.LastModifiedBy = actor
	return nil
}

func (r *MemoryRepository) CheckPassword(ctx context.Context, user *db.User, password string) bool {
	if user == nil {
		return false
	}
	return auth.VerifyPassword(user.PasswordHash, password) == nil
}

func (r *MemoryRepository) ChangePassword(ctx context.Context, user *db.User, current, newPassword string) error {
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

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.PasswordHash = hash
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) ResetPassword(ctx context.Context, id uint, newPassword string) error {
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.PasswordHash = hash
	stored.RefreshToken = ""
	stored.RefreshTokenExpiry = nil
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) GeneratePasswordResetToken(ctx context.Context, user *db.User) (string, error) {
	if user == nil || user.ID == 0 {
		return "", fmt.Errorf("invalid user")
	}
	return utils.GenerateResetToken()
}

func (r *MemoryRepository) StoreResetToken(ctx context.Context, id uint, token string, expiry time.Time) error {
	if id == 0 {
		return fmt.Errorf("invalid user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.RefreshToken = token
	expiryCopy := expiry
	stored.RefreshTokenExpiry = &expiryCopy
	return nil
}

func (r *MemoryRepository) AddToRole(ctx context.Context, user *db.User, roleName string) error {
	if user == nil || user.ID == 0 {
		return fmt.Errorf("invalid user")
	}
	role, err := r.GetRoleByName(ctx, roleName)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for _, assigned := range r.userRoles[user.ID] {
		if assigned == role.ID {
			return nil
		}
	}
	r.userRoles[user.ID] = append(r.userRoles[user.ID], role.ID)
	return nil
}

func (r *MemoryRepository) GetRoles(ctx context.Context, user *db.User) ([]string, error) {
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("invalid user")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, roleID := range r.userRoles[user.ID] {
		if role, ok := r.roles[roleID]; ok {
			names = append(names, role.Name)
		}
	}
	return names, nil
}

func (r *MemoryRepository) GetClaims(ctx context.Context, user *db.User) ([]db.UserClaim, error) {
	if user == nil || user.ID == 0 {
		return nil, fmt.Errorf("invalid user")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	claims := make([]db.UserClaim, len(r.claims[user.ID]))
	copy(claims, r.claims[user.ID])
	return claims, nil
}

// AddClaim attaches a custom claim to a user.
func (r *MemoryRepository) AddClaim(ctx context.Context, userID uint, claimType, claimValue string) error {
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.claims[userID] = append(r.claims[userID], db.UserClaim{
		ID:         uint(len(r.claims[userID]) + 1),
		UserID:     userID,
		ClaimType:  claimType,
		ClaimValue: claimValue,
	})
	return nil
}

func (r *MemoryRepository) GetRoleByName(ctx context.Context, name string) (*db.Role, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("role name is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, role := range r.roles {
		if strings.EqualFold(role.Name, trimmed) {
			cp := *role
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) CreateRole(ctx context.Context, role *db.Role) error {
	if role == nil {
		return fmt.Errorf("role is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return gorm.ErrDuplicatedKey
		}
	}
	r.nextRoleID++
	role.ID = r.nextRoleID
	stored := *role
	r.roles[role.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetMenuByURL(ctx context.Context, url string) (*db.Menu, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, fmt.Errorf("menu url is empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, menu := range r.menus {
		if menu.URL == trimmed {
			cp := *menu
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryRepository) CreateMenu(ctx context.Context, menu *db.Menu) error {
	if menu == nil {
		return fmt.Errorf("menu is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.menus {
		if existing.URL == menu.URL {
			return gorm.ErrDuplicatedKey
		}
	}
	r.nextMenuID++
	menu.ID = r.nextMenuID
	stored := *menu
	r.menus[menu.ID] = &stored
	return nil
}

func (r *MemoryRepository) UpsertPermission(ctx context.Context, perm *db.Permission) error {
	if perm == nil || perm.RoleID == 0 || perm.MenuID == 0 {
		return fmt.Errorf("invalid permission")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := permKey(perm.RoleID, perm.MenuID)
	if existing, ok := r.perms[key]; ok {
		existing.CanAccess = perm.CanAccess
		existing.CanAdd = perm.CanAdd
		existing.CanUpdate = perm.CanUpdate
		existing.CanDelete = perm.CanDelete
		return nil
	}
	r.nextPermID++
	perm.ID = r.nextPermID
	stored := *perm
	r.perms[key] = &stored
	return nil
}

func (r *MemoryRepository) HasPermission(ctx context.Context, roleID uint, resource, action string) (bool, error) {
	if roleID == 0 {
		return false, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, menu := range r.menus {
		if menu.URL != resource {
			continue
		}
		if perm, ok := r.perms[permKey(roleID, menu.ID)]; ok {
			return perm.Allows(action), nil
		}
	}
	return false, nil
}
