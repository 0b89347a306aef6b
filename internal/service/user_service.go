package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/auth"
	"storefront/internal/entity/converter"
	"storefront/internal/entity/db"
	"storefront/internal/entity/dto"
	"storefront/internal/mail"
	"storefront/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Result messages returned by the authentication flows. These are part of
// the API surface; tests assert on them.
const (
	MsgAccountNotFound      = "Account does not exist"
	MsgIncorrectCredentials = "Incorrect Credentials"
	MsgChangePasswordOK     = "ChangePassword success"
	MsgChangePasswordFailed = "ChangePassword failed"
	MsgPasswordResetOK      = "Password reset success"
	MsgResetTokenInvalid    = "Invalid or expired reset token"
)

// UserService orchestrates login, registration, password management, role
// assignment and permission checks on top of the credential and permission
// stores. Every flow returns a structured result for expected conditions;
// only unexpected store faults surface as errors.
type UserService struct {
	repo   model.Repository
	tokens *auth.Manager
	mailer mail.Mailer
}

// NewUserService 创建用户服务实例
func NewUserService(repo model.Repository, tokens *auth.Manager, mailer mail.Mailer) *UserService {
	return &UserService{repo: repo, tokens: tokens, mailer: mailer}
}

func claimsToMap(claims []db.UserClaim) map[string]string {
	if len(claims) == 0 {
		return nil
	}
	out := make(map[string]string, len(claims))
	for _, claim := range claims {
		out[claim.ClaimType] = claim.ClaimValue
	}
	return out
}

// LoginUser verifies credentials and issues a bearer token.
func (s *UserService) LoginUser(ctx context.Context, username, password string) (*dto.AuthenticationResult, error) {
	result := &dto.AuthenticationResult{}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Message = MsgAccountNotFound
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if !s.repo.CheckPassword(ctx, user, password) {
		result.Username = user.Username
		result.Message = MsgIncorrectCredentials
		return result, nil
	}

	roles, err := s.repo.GetRoles(ctx, user)
	if err != nil {
		return nil, err
	}
	claims, err := s.repo.GetClaims(ctx, user)
	if err != nil {
		return nil, err
	}

	token, _, err := s.tokens.GenerateToken(user, roles, claimsToMap(claims))
	if err != nil {
		return nil, err
	}

	result.IsAuthenticated = true
	result.Message = fmt.Sprintf("%s login success", user.Username)
	result.Token = token
	result.Username = user.Username
	result.Email = user.Email
	result.Roles = roles
	return result, nil
}

// RegisterCustomer creates an account with the Customer role.
func (s *UserService) RegisterCustomer(ctx context.Context, req dto.RegisterRequest) (string, error) {
	return s.register(ctx, req, db.RoleCustomer)
}

// RegisterAdmin creates an account with the Administrator role.
func (s *UserService) RegisterAdmin(ctx context.Context, req dto.RegisterRequest) (string, error) {
	return s.register(ctx, req, db.RoleAdministrator)
}

// register runs the shared registration flow. The pre-check and the create
// are not serialized, so two concurrent registrations for the same email can
// both pass the check; the store's unique index backstops that race and the
// loser sees the already-registered message.
func (s *UserService) register(ctx context.Context, req dto.RegisterRequest, roleName string) (string, error) {
	_, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err == nil {
		return fmt.Sprintf("Email %s is already registered.", req.Email), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	user := &db.User{
		Username:       req.Username,
		Email:          req.Email,
		FullName:       req.FullName,
		Address:        req.Address,
		PhoneNumber:    req.PhoneNumber,
		EmailConfirmed: true,
	}
	if err := s.repo.CreateUser(ctx, user, req.Password); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Sprintf("Email %s is already registered.", req.Email), nil
		}
		return "", err
	}

	if err := s.repo.AddToRole(ctx, user, roleName); err != nil {
		// The account already exists at this point, so registration
		// still reports success; the user is simply left without the
		// role until an administrator assigns it.
		logrus.WithError(err).WithFields(logrus.Fields{
			"username": user.Username,
			"role":     roleName,
		}).Warn("role assignment failed during registration")
	}
	return fmt.Sprintf("User Registered successfully with username %s", user.Username), nil
}

// ChangePassword replaces a user's password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID uint, req dto.ChangePasswordRequest) (*dto.AuthenticationResult, error) {
	result := &dto.AuthenticationResult{}

	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Message = MsgAccountNotFound
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.repo.ChangePassword(ctx, user, req.CurrentPassword, req.NewPassword); err != nil {
		result.Message = MsgChangePasswordFailed
		return result, nil
	}

	result.IsAuthenticated = true
	result.Message = MsgChangePasswordOK
	result.Username = user.Username
	return result, nil
}

// ForgetPassword issues a single-use reset token, stores it with an expiry
// of now plus the token lifetime, and mails it to the account owner. The
// reset token deliberately shares its lifetime with issued bearer tokens.
func (s *UserService) ForgetPassword(ctx context.Context, req dto.ForgetPasswordRequest) (*dto.AuthenticationResult, error) {
	result := &dto.AuthenticationResult{}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Message = fmt.Sprintf("No Accounts Registered with %s.", req.Email)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	token, err := s.repo.GeneratePasswordResetToken(ctx, user)
	if err != nil {
		return nil, err
	}
	expiry := time.Now().UTC().Add(s.tokens.Expiry())
	if err := s.repo.StoreResetToken(ctx, user.ID, token, expiry); err != nil {
		return nil, err
	}

	if err := s.mailer.SendPasswordResetMail(ctx, user.Email, user.Username, token); err != nil {
		logrus.WithError(err).WithField("email", user.Email).Error("failed to send password reset mail")
		result.Message = fmt.Sprintf("Failed to send password reset email to %s.", user.Email)
		return result, nil
	}

	roles, err := s.repo.GetRoles(ctx, user)
	if err != nil {
		return nil, err
	}

	result.IsAuthenticated = true
	result.Message = fmt.Sprintf("Check your email at %s to reset password", req.Email)
	result.RefreshToken = token
	result.RefreshTokenExpiry = &expiry
	result.Email = user.Email
	result.Username = user.Username
	result.Roles = roles
	return result, nil
}

// ResetPassword redeems a reset token. A token is valid strictly before its
// stored expiry; from the expiry instant on it is rejected.
func (s *UserService) ResetPassword(ctx context.Context, req dto.ResetPasswordRequest) (*dto.AuthenticationResult, error) {
	result := &dto.AuthenticationResult{}

	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Message = fmt.Sprintf("No Accounts Registered with %s.", req.Email)
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if user.RefreshToken == "" || user.RefreshToken != req.Token {
		result.Message = MsgResetTokenInvalid
		return result, nil
	}
	if user.RefreshTokenExpiry == nil || !time.Now().UTC().Before(*user.RefreshTokenExpiry) {
		result.Message = MsgResetTokenInvalid
		return result, nil
	}

	if err := s.repo.ResetPassword(ctx, user.ID, req.NewPassword); err != nil {
		return nil, err
	}

	result.IsAuthenticated = true
	result.Message = MsgPasswordResetOK
	result.Username = user.Username
	result.Email = user.Email
	return result, nil
}

// AddRole assigns a known role to the account registered under the given
// email. Role names are matched case-insensitively against the closed role
// set; assigning an already-held role is a no-op at the store layer.
func (s *UserService) AddRole(ctx context.Context, req dto.AddRoleRequest) (string, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Sprintf("No Accounts Registered with %s", req.Email), nil
	}
	if err != nil {
		return "", err
	}

	role := db.NormalizeRole(req.Role)
	if role == "" {
		return fmt.Sprintf("Role %s not found", req.Role), nil
	}

	if err := s.repo.AddToRole(ctx, user, role); err != nil {
		return "", err
	}
	return fmt.Sprintf("Add %s to user %s", req.Role, req.Email), nil
}

// CheckPermission answers whether a role may perform an action on a resource
// path. Unknown roles and missing grants are both a plain no.
func (s *UserService) CheckPermission(ctx context.Context, resource, action, roleName string) (bool, error) {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.repo.HasPermission(ctx, role.ID, resource, action)
}

// Delete soft-deletes an account, stamping the audit fields with the actor.
func (s *UserService) Delete(ctx context.Context, id uint, actor string) (string, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MsgAccountNotFound, nil
	}
	if err != nil {
		return "", err
	}

	if err := s.repo.SoftDeleteUser(ctx, id, actor); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "Delete failed", nil
		}
		return "", err
	}
	return fmt.Sprintf("Delete %s success", user.Username), nil
}

// GetByID returns the public projection of an account.
func (s *UserService) GetByID(ctx context.Context, id uint) (*dto.UserSummary, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := converter.UserToSummary(user)
	return &summary, nil
}

// Update patches an account's profile fields.
func (s *UserService) Update(ctx context.Context, id uint, req dto.UserUpdateRequest) (string, error) {
	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return MsgAccountNotFound, nil
		}
		return "", err
	}

	updates := dto.UserUpdates{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	}
	if err := s.repo.UpdateUser(ctx, id, updates); err != nil {
		return "", err
	}
	return "Update success", nil
}
