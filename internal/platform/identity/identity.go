// Package identity is the auth contract the rest of the service depends on,
// with a local implementation backed by the auth_users table.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const (
	purposeAccess        = "access"
	purposePasswordSetup = "password_setup"
	minPasswordLength    = 8
)

type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Role        types.Role `json:"role"`
	PasswordSet bool       `json:"password_set"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Claims are carried by every token this package issues.
type Claims struct {
	jwt.StandardClaims
	Email           string     `json:"email"`
	Role            types.Role `json:"role"`
	Purpose         string     `json:"purpose"`
	PasswordVersion int        `json:"pv,omitempty"`
}

// IssuedTime returns the token issue time, which doubles as the last recorded
// activity for session evaluation.
func (c *Claims) IssuedTime() time.Time { return time.Unix(c.IssuedAt, 0) }

type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Provider is the hosted-auth contract.
type Provider interface {
	// CreateUser is idempotent on email: an existing account is returned as is.
	CreateUser(ctx context.Context, email string, role types.Role) (*User, error)
	GeneratePasswordSetupLink(ctx context.Context, userID string) (string, error)
	SetPassword(ctx context.Context, setupToken, password string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// Refresh issues a fresh access token for an already verified user.
	Refresh(ctx context.Context, userID string) (*Session, error)
	VerifyToken(ctx context.Context, token string) (*Claims, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetRole(ctx context.Context, userID string, role types.Role) error
}

// UserStore persists credential records.
type UserStore interface {
	CreateAuthUser(ctx context.Context, u *models.AuthUser) error
	GetAuthUser(ctx context.Context, id string) (*models.AuthUser, error)
	GetAuthUserByEmail(ctx context.Context, email string) (*models.AuthUser, error)
	UpdateAuthUser(ctx context.Context, id string, values map[string]any) error
}

func toUser(u *models.AuthUser) *User {
	return &User{ID: u.ID, Email: u.Email, Role: u.Role, PasswordSet: u.PasswordHash != "", CreatedAt: u.CreatedAt}
}
