package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/config"
	"storefront/internal/entity/db"
	"storefront/internal/entity/dto"
	"storefront/internal/model"
)

type sentMail struct {
	email    string
	username string
	token    string
}

type fakeMailer struct {
	fail bool
	sent []sentMail
}

func (m *fakeMailer) SendPasswordResetMail(ctx context.Context, email, username, token string) error {
	if m.fail {
		return errors.New("smtp connection refused")
	}
	m.sent = append(m.sent, sentMail{email: email, username: username, token: token})
	return nil
}

func newTestService(t *testing.T) (*UserService, *model.MemoryRepository, *fakeMailer, *auth.Manager) {
	t.Helper()

	repo := model.NewMemoryRepository()
	if err := model.SeedDefaults(context.Background(), repo, config.Config{}); err != nil {
		t.Fatalf("unexpected error seeding defaults: %v", err)
	}

	tokens, err := auth.NewManager("test-secret", "issuer", "audience", time.Minute*30)
	if err != nil {
		t.Fatalf("unexpected error creating token manager: %v", err)
	}

	mailer := &fakeMailer{}
	return NewUserService(repo, tokens, mailer), repo, mailer, tokens
}

func registerRequest(username, email string) dto.RegisterRequest {
	return dto.RegisterRequest{
		Username: username,
		Email:    email,
		Password: "pw1-secret",
		FullName: "Test User",
	}
}

func TestRegisterAndLoginScenario(t *testing.T) {
	svc, _, _, tokens := newTestService(t)
	ctx := context.Background()

	msg, err := svc.RegisterCustomer(ctx, registerRequest("alice", "alice@x.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "User Registered successfully with username alice" {
		t.Fatalf("unexpected registration message: %q", msg)
	}

	msg, err = svc.RegisterCustomer(ctx, registerRequest("alice2", "alice@x.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Email alice@x.com is already registered." {
		t.Fatalf("unexpected duplicate registration message: %q", msg)
	}

	result, err := svc.LoginUser(ctx, "alice", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsAuthenticated {
		t.Fatalf("expected authenticated login, got message %q", result.Message)
	}
	if len(result.Roles) != 1 || result.Roles[0] != db.RoleCustomer {
		t.Fatalf("expected roles [Customer], got %v", result.Roles)
	}
	if result.Email != "alice@x.com" || result.Username != "alice" {
		t.Fatalf("unexpected identity in result: %+v", result)
	}

	claims, err := tokens.ParseToken(result.Token)
	if err != nil {
		t.Fatalf("unexpected error parsing issued token: %v", err)
	}
	if claims.Subject != "alice" || claims.Email != "alice@x.com" {
		t.Fatalf("unexpected token identity: subject=%s email=%s", claims.Subject, claims.Email)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != db.RoleCustomer {
		t.Fatalf("expected token roles [Customer], got %v", claims.Roles)
	}

	result, err = svc.LoginUser(ctx, "alice", "wrong")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated {
		t.Fatal("expected failed login for wrong password")
	}
	if result.Message != MsgIncorrectCredentials {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	if result.Username != "alice" {
		t.Fatalf("expected username to be echoed on wrong password, got %q", result.Username)
	}

	result, err = svc.LoginUser(ctx, "nobody", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated || result.Message != MsgAccountNotFound {
		t.Fatalf("unexpected result for unknown account: %+v", result)
	}
	if result.Username != "" {
		t.Fatalf("expected no username for unknown account, got %q", result.Username)
	}
}

func TestRegisterAdminAssignsAdministrator(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterAdmin(ctx, registerRequest("root", "root@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.LoginUser(ctx, "root", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Roles) != 1 || result.Roles[0] != db.RoleAdministrator {
		t.Fatalf("expected roles [Administrator], got %v", result.Roles)
	}
}

// failingRoleRepo makes every role assignment fail while delegating
// everything else to the in-memory repository.
type failingRoleRepo struct {
	*model.MemoryRepository
}

func (r *failingRoleRepo) AddToRole(ctx context.Context, user *db.User, roleName string) error {
	return errors.New("role store unavailable")
}

func TestRegistrationSucceedsWhenRoleAssignmentFails(t *testing.T) {
	repo := &failingRoleRepo{MemoryRepository: model.NewMemoryRepository()}
	if err := model.SeedDefaults(context.Background(), repo.MemoryRepository, config.Config{}); err != nil {
		t.Fatalf("unexpected error seeding defaults: %v", err)
	}
	tokens, err := auth.NewManager("test-secret", "issuer", "", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := NewUserService(repo, tokens, &fakeMailer{})

	msg, err := svc.RegisterCustomer(context.Background(), registerRequest("bob", "bob@x.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "User Registered successfully with username bob" {
		t.Fatalf("expected success message despite role failure, got %q", msg)
	}

	result, err := svc.LoginUser(context.Background(), "bob", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsAuthenticated {
		t.Fatalf("expected account to exist, got %q", result.Message)
	}
	if len(result.Roles) != 0 {
		t.Fatalf("expected no roles after failed assignment, got %v", result.Roles)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCustomer(ctx, registerRequest("carol", "carol@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, err := repo.GetUserByUsername(ctx, "carol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.ChangePassword(ctx, user.ID, dto.ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "next-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated || result.Message != MsgChangePasswordFailed {
		t.Fatalf("expected failure for wrong current password, got %+v", result)
	}

	result, err = svc.ChangePassword(ctx, user.ID, dto.ChangePasswordRequest{
		CurrentPassword: "pw1-secret",
		NewPassword:     "next-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsAuthenticated || result.Message != MsgChangePasswordOK {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Username != "carol" {
		t.Fatalf("expected username echoed, got %q", result.Username)
	}

	login, err := svc.LoginUser(ctx, "carol", "next-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !login.IsAuthenticated {
		t.Fatalf("expected login with new password, got %q", login.Message)
	}

	result, err = svc.ChangePassword(ctx, 9999, dto.ChangePasswordRequest{
		CurrentPassword: "x",
		NewPassword:     "y-secret-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated || result.Message != MsgAccountNotFound {
		t.Fatalf("unexpected result for unknown user: %+v", result)
	}
}

func TestForgetPasswordAndReset(t *testing.T) {
	svc, _, mailer, tokens := newTestService(t)
	ctx := context.Background()

	result, err := svc.ForgetPassword(ctx, dto.ForgetPasswordRequest{Email: "ghost@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated || result.Message != "No Accounts Registered with ghost@x.com." {
		t.Fatalf("unexpected result for unknown email: %+v", result)
	}

	if _, err := svc.RegisterCustomer(ctx, registerRequest("dave", "dave@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := time.Now().UTC()
	result, err = svc.ForgetPassword(ctx, dto.ForgetPasswordRequest{Email: "dave@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsAuthenticated {
		t.Fatalf("expected authenticated result, got %q", result.Message)
	}
	if result.Message != "Check your email at dave@x.com to reset password" {
		t.Fatalf("unexpected message: %q", result.Message)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.sent))
	}
	if mailer.sent[0].token != result.RefreshToken || mailer.sent[0].email != "dave@x.com" {
		t.Fatalf("mailed token does not match result: %+v vs %+v", mailer.sent[0], result)
	}
	if result.RefreshTokenExpiry == nil {
		t.Fatal("expected a reset token expiry")
	}
	lifetime := tokens.Expiry()
	expiry := *result.RefreshTokenExpiry
	if expiry.Before(before.Add(lifetime-time.Second)) || expiry.After(before.Add(lifetime+time.Minute)) {
		t.Fatalf("expected expiry about now+%v, got %v", lifetime, expiry)
	}
	if len(result.Roles) != 1 || result.Roles[0] != db.RoleCustomer {
		t.Fatalf("expected roles in result, got %v", result.Roles)
	}

	reset, err := svc.ResetPassword(ctx, dto.ResetPasswordRequest{
		Email:       "dave@x.com",
		Token:       "bogus",
		NewPassword: "fresh-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset.IsAuthenticated || reset.Message != MsgResetTokenInvalid {
		t.Fatalf("expected rejection for wrong token, got %+v", reset)
	}

	reset, err = svc.ResetPassword(ctx, dto.ResetPasswordRequest{
		Email:       "dave@x.com",
		Token:       result.RefreshToken,
		NewPassword: "fresh-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reset.IsAuthenticated || reset.Message != MsgPasswordResetOK {
		t.Fatalf("expected successful reset, got %+v", reset)
	}

	login, err := svc.LoginUser(ctx, "dave", "fresh-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !login.IsAuthenticated {
		t.Fatalf("expected login with reset password, got %q", login.Message)
	}

	// The token is single-use; redeeming it again must fail.
	reset, err = svc.ResetPassword(ctx, dto.ResetPasswordRequest{
		Email:       "dave@x.com",
		Token:       result.RefreshToken,
		NewPassword: "another-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reset.IsAuthenticated || reset.Message != MsgResetTokenInvalid {
		t.Fatalf("expected rejection for reused token, got %+v", reset)
	}
}

func TestForgetPasswordMailFailure(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCustomer(ctx, registerRequest("erin", "erin@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mailer.fail = true
	result, err := svc.ForgetPassword(ctx, dto.ForgetPasswordRequest{Email: "erin@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated {
		t.Fatal("expected not-authenticated result when mail fails")
	}
	if result.Message != "Failed to send password reset email to erin@x.com." {
		t.Fatalf("unexpected message: %q", result.Message)
	}
}

func TestResetTokenExpiryBoundary(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCustomer(ctx, registerRequest("frank", "frank@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, err := repo.GetUserByUsername(ctx, "frank")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Expiry at the current instant: the token is already invalid.
	if err := repo.StoreResetToken(ctx, user.ID, "boundary-token", time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := svc.ResetPassword(ctx, dto.ResetPasswordRequest{
		Email:       "frank@x.com",
		Token:       "boundary-token",
		NewPassword: "fresh-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsAuthenticated || result.Message != MsgResetTokenInvalid {
		t.Fatalf("expected expired token to be rejected, got %+v", result)
	}

	// A future expiry keeps the token redeemable.
	if err := repo.StoreResetToken(ctx, user.ID, "live-token", time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err = svc.ResetPassword(ctx, dto.ResetPasswordRequest{
		Email:       "frank@x.com",
		Token:       "live-token",
		NewPassword: "fresh-secret",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsAuthenticated {
		t.Fatalf("expected unexpired token to be accepted, got %+v", result)
	}
}

func TestCheckPermission(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	role, err := repo.GetRoleByName(ctx, db.RoleSeller)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	menu, err := repo.GetMenuByURL(ctx, db.OrderPermission)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.UpsertPermission(ctx, &db.Permission{
		RoleID:    role.ID,
		MenuID:    menu.ID,
		CanAccess: true,
		CanUpdate: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		action string
		want   bool
	}{
		{db.ActionAccess, true},
		{db.ActionAdd, false},
		{db.ActionUpdate, true},
		{db.ActionDelete, false},
	}
	for _, tc := range cases {
		got, err := svc.CheckPermission(ctx, db.OrderPermission, tc.action, db.RoleSeller)
		if err != nil {
			t.Fatalf("unexpected error for action %s: %v", tc.action, err)
		}
		if got != tc.want {
			t.Fatalf("action %s: expected %v, got %v", tc.action, tc.want, got)
		}
	}

	// No permission row at all for this pair: deny every action.
	for _, tc := range cases {
		got, err := svc.CheckPermission(ctx, db.RolePermission, tc.action, db.RoleSeller)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got {
			t.Fatalf("expected deny without a grant row, action %s", tc.action)
		}
	}

	got, err := svc.CheckPermission(ctx, db.OrderPermission, db.ActionAccess, "NoSuchRole")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatal("expected deny for unknown role")
	}
}

func TestAddRole(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	msg, err := svc.AddRole(ctx, dto.AddRoleRequest{Email: "ghost@x.com", Role: db.RoleSeller})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "No Accounts Registered with ghost@x.com" {
		t.Fatalf("unexpected message: %q", msg)
	}

	if _, err := svc.RegisterCustomer(ctx, registerRequest("gina", "gina@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err = svc.AddRole(ctx, dto.AddRoleRequest{Email: "gina@x.com", Role: "Wizard"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Role Wizard not found" {
		t.Fatalf("unexpected message: %q", msg)
	}

	// Role names match case-insensitively against the known set.
	msg, err = svc.AddRole(ctx, dto.AddRoleRequest{Email: "gina@x.com", Role: "seller"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Add seller to user gina@x.com" {
		t.Fatalf("unexpected message: %q", msg)
	}

	// Assigning the same role twice is tolerated.
	if _, err := svc.AddRole(ctx, dto.AddRoleRequest{Email: "gina@x.com", Role: "Seller"}); err != nil {
		t.Fatalf("unexpected error on duplicate assignment: %v", err)
	}

	login, err := svc.LoginUser(ctx, "gina", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{db.RoleCustomer, db.RoleSeller}
	if len(login.Roles) != len(expected) {
		t.Fatalf("expected roles %v, got %v", expected, login.Roles)
	}
	for i, role := range expected {
		if login.Roles[i] != role {
			t.Fatalf("expected roles %v in assignment order, got %v", expected, login.Roles)
		}
	}
}

func TestDeleteSoftDeletesAccount(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCustomer(ctx, registerRequest("hank", "hank@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, err := repo.GetUserByUsername(ctx, "hank")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := svc.Delete(ctx, user.ID, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Delete hank success" {
		t.Fatalf("unexpected message: %q", msg)
	}

	// Every read path filters deleted accounts.
	if _, err := repo.GetUserByUsername(ctx, "hank"); err == nil {
		t.Fatal("expected deleted user to be invisible by username")
	}
	if _, err := repo.GetUserByEmail(ctx, "hank@x.com"); err == nil {
		t.Fatal("expected deleted user to be invisible by email")
	}
	if _, err := repo.GetUserByID(ctx, user.ID); err == nil {
		t.Fatal("expected deleted user to be invisible by id")
	}

	login, err := svc.LoginUser(ctx, "hank", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if login.IsAuthenticated || login.Message != MsgAccountNotFound {
		t.Fatalf("expected login to fail after delete, got %+v", login)
	}

	msg, err = svc.Delete(ctx, user.ID, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != MsgAccountNotFound {
		t.Fatalf("expected not-found for second delete, got %q", msg)
	}
}

func TestLoginTokenCarriesCustomClaims(t *testing.T) {
	svc, repo, _, tokens := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCustomer(ctx, registerRequest("iris", "iris@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, err := repo.GetUserByUsername(ctx, "iris")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.AddClaim(ctx, user.ID, "store", "eu-west"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := svc.LoginUser(ctx, "iris", "pw1-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claims, err := tokens.ParseToken(result.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Custom["store"] != "eu-west" {
		t.Fatalf("expected custom claim in token, got %v", claims.Custom)
	}
}

func TestUpdateAndGetByID(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.RegisterCustomer(ctx, registerRequest("judy", "judy@x.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	user, err := repo.GetUserByUsername(ctx, "judy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fullName := "Judy Doe"
	phone := "555-0101"
	msg, err := svc.Update(ctx, user.ID, dto.UserUpdateRequest{FullName: &fullName, PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != "Update success" {
		t.Fatalf("unexpected message: %q", msg)
	}

	summary, err := svc.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.FullName != fullName || summary.PhoneNumber != phone {
		t.Fatalf("expected updated fields, got %+v", summary)
	}
	if len(summary.Roles) != 1 || summary.Roles[0] != db.RoleCustomer {
		t.Fatalf("expected roles in summary, got %v", summary.Roles)
	}

	msg, err = svc.Update(ctx, 9999, dto.UserUpdateRequest{FullName: &fullName})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg != MsgAccountNotFound {
		t.Fatalf("unexpected message for unknown user: %q", msg)
	}
}

// Duplicate detection keys on email regardless of username, mirroring the
// store count property: one account per email.
func TestDuplicateEmailNeverCreatesSecondAccount(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		username := fmt.Sprintf("kate%d", i)
		if _, err := svc.RegisterCustomer(ctx, registerRequest(username, "kate@x.com")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	users, meta, err := repo.ListUsers(ctx, &dto.UserQuery{Keyword: "kate"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Total != 1 || len(users) != 1 {
		t.Fatalf("expected exactly one account for the email, got %d", len(users))
	}
	if users[0].Username != "kate0" {
		t.Fatalf("expected the first registration to win, got %q", users[0].Username)
	}
}
