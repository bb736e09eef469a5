package models

import (
	"strings"
	"time"

	"github.com/fatflowers/alumni/pkg/types"
)

// Profile is keyed by the identity-provider user id.
type Profile struct {
	ID               string              `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	MembershipNumber *string             `gorm:"column:membership_number;type:varchar(32);uniqueIndex" json:"membership_number"`
	FirstName        string              `gorm:"column:first_name;type:varchar(128)" json:"first_name"`
	LastName         string              `gorm:"column:last_name;type:varchar(128)" json:"last_name"`
	Email            string              `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Phone            string              `gorm:"column:phone;type:varchar(32)" json:"phone"`
	GraduationYear   *int                `gorm:"column:graduation_year" json:"graduation_year"`
	Course           string              `gorm:"column:course;type:varchar(255)" json:"course"`
	Status           types.ProfileStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Role             types.Role          `gorm:"column:role;type:varchar(32);not null;default:'member'" json:"role"`
	Source           types.ProfileSource `gorm:"column:source;type:varchar(32);not null" json:"source"`
	PasswordSet      bool                `gorm:"column:password_set;not null;default:false" json:"password_set"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Profile) Number() string {
	if p == nil || p.MembershipNumber == nil {
		return ""
	}
	return *p.MembershipNumber
}

// Membership is the single active window belonging to a profile.
type Membership struct {
	ID         string                 `gorm:"column:id;primary_key;type:uuid" json:"id"`
	ProfileID  string                 `gorm:"column:profile_id;type:varchar(64);not null;uniqueIndex" json:"profile_id"`
	Status     types.MembershipStatus `gorm:"column:status;type:varchar(32);not null;index:idx_membership_status_expiry,priority:1" json:"status"`
	StartDate  time.Time              `gorm:"column:start_date;not null" json:"start_date"`
	ExpiryDate time.Time              `gorm:"column:expiry_date;not null;index:idx_membership_status_expiry,priority:2" json:"expiry_date"`
	PaymentID  *string                `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func (Membership) TableName() string { return "memberships" }
