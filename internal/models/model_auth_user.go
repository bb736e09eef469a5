package models

import (
	"time"

	"github.com/fatflowers/alumni/pkg/types"
)

// AuthUser is the credential record behind the local identity provider.
type AuthUser struct {
	ID           string `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	Email        string `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255)" json:"-"`
	// PasswordVersion is bumped on every password change and invalidates older setup links.
	PasswordVersion int        `gorm:"column:password_version;not null;default:0" json:"-"`
	Role            types.Role `gorm:"column:role;type:varchar(32);not null;default:'member'" json:"role"`
	LastSignInAt    *time.Time `gorm:"column:last_sign_in_at" json:"last_sign_in_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (AuthUser) TableName() string { return "auth_users" }

// All lists every table owned by the service, in migration order.
func All() []any {
	return []any{
		&AuthUser{},
		&Profile{},
		&Membership{},
		&Payment{},
		&PaymentCallbackLog{},
		&Event{},
		&EventRegistration{},
		&Product{},
		&ProductVariant{},
		&Order{},
		&AdminLog{},
	}
}
