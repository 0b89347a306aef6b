package db

import "time"

const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Audit records who last touched a row and when. Rows are never removed
// physically; deletion flips Status and stamps the audit fields.
type Audit struct {
	LastModifiedOn *time.Time `gorm:"column:last_modified_on" json:"last_modified_on,omitempty"`
	LastModifiedBy string     `gorm:"column:last_modified_by;type:varchar(255)" json:"last_modified_by,omitempty"`
}

// User 表示持久化的用户账户。
type User struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Username       string    `gorm:"column:username;type:varchar(255);uniqueIndex;not null" json:"username"`
	Email          string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	FullName       string    `gorm:"column:full_name;type:varchar(255)" json:"full_name"`
	Address        string    `gorm:"column:address;type:varchar(512)" json:"address"`
	PhoneNumber    string    `gorm:"column:phone_number;type:varchar(50)" json:"phone_number"`
	EmailConfirmed bool      `gorm:"column:email_confirmed;not null;default:false" json:"email_confirmed"`

	// Single-use password reset token and its expiry.
	RefreshToken       string     `gorm:"column:refresh_token;type:varchar(255)" json:"-"`
	RefreshTokenExpiry *time.Time `gorm:"column:refresh_token_expiry" json:"-"`

	Status string `gorm:"column:status;type:varchar(20);index;not null;default:active" json:"status"`
	Audit

	Roles []Role `gorm:"many2many:user_roles" json:"roles,omitempty"`
}

// TableName 指定表名。
func (User) TableName() string {
	return "users"
}

// IsDeleted reports whether the account has been soft deleted.
func (u *User) IsDeleted() bool {
	return u != nil && u.Status == StatusDeleted
}

// UserClaim is an opaque key/value assertion attached to a user and embedded
// in issued tokens.
type UserClaim struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	UserID     uint   `gorm:"column:user_id;index;not null" json:"user_id"`
	ClaimType  string `gorm:"column:claim_type;type:varchar(255);not null" json:"claim_type"`
	ClaimValue string `gorm:"column:claim_value;type:varchar(255)" json:"claim_value"`
}

// TableName 指定表名。
func (UserClaim) TableName() string {
	return "user_claims"
}
