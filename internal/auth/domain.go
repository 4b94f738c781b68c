package auth

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Role is the coarse authorization role stored on a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// InitialTokenVersion is the revocation counter assigned to new accounts.
const InitialTokenVersion = 0

// User represents a credential record owned by the store.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	Name             string
	Role             Role
	IsEmailVerified  bool
	TwoFactorEnabled bool
	TokenVersion     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the projection returned to callers. It never carries the hash.
type PublicUser struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Name             string `json:"name"`
	Role             Role   `json:"role"`
	IsEmailVerified  bool   `json:"isEmailVerified"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
}

// Public returns the caller-safe projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             u.Role,
		IsEmailVerified:  u.IsEmailVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

// RegisterInput carries pre-validated registration fields.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is the issued token pair plus the public user.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             PublicUser
}

// VerifyResult reports the outcome of an email verification.
type VerifyResult struct {
	User            PublicUser
	AlreadyVerified bool
}

// NormalizeEmail lower-cases and trims an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeName(name string) string {
	return strings.TrimSpace(norm.NFC.String(name))
}
