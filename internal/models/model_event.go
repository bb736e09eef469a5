package models

import (
	"time"

	"github.com/fatflowers/alumni/pkg/types"
)

type Event struct {
	ID          string     `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Title       string     `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	Location    string     `gorm:"column:location;type:varchar(255)" json:"location"`
	StartsAt    time.Time  `gorm:"column:starts_at;not null;index" json:"starts_at"`
	EndsAt      *time.Time `gorm:"column:ends_at" json:"ends_at"`
	Price       int64      `gorm:"column:price;type:bigint;not null;default:0" json:"price"`
	// MemberDiscount is a percentage off Price for active members.
	MemberDiscount int `gorm:"column:member_discount;not null;default:0" json:"member_discount"`
	// MaxAttendees nil means unlimited.
	MaxAttendees     *int              `gorm:"column:max_attendees" json:"max_attendees"`
	CurrentAttendees int               `gorm:"column:current_attendees;not null;default:0" json:"current_attendees"`
	Status           types.EventStatus `gorm:"column:status;type:varchar(32);not null;default:'draft';index" json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// PriceFor applies the member discount, rounding down to whole shillings.
func (e *Event) PriceFor(member bool) int64 {
	if !member || e.MemberDiscount <= 0 {
		return e.Price
	}
	d := min(e.MemberDiscount, 100)
	return e.Price * int64(100-d) / 100
}

func (e *Event) Full() bool {
	return e.MaxAttendees != nil && e.CurrentAttendees >= *e.MaxAttendees
}

// EventRegistration links one payment to one event; payment_id is unique.
type EventRegistration struct {
	ID            string    `gorm:"column:id;primary_key;type:uuid" json:"id"`
	EventID       string    `gorm:"column:event_id;type:uuid;not null;index" json:"event_id"`
	PaymentID     string    `gorm:"column:payment_id;type:uuid;not null;uniqueIndex" json:"payment_id"`
	UserID        *string   `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	AttendeeName  string    `gorm:"column:attendee_name;type:varchar(255)" json:"attendee_name"`
	AttendeeEmail string    `gorm:"column:attendee_email;type:varchar(255)" json:"attendee_email"`
	AttendeePhone string    `gorm:"column:attendee_phone;type:varchar(32)" json:"attendee_phone"`
	Amount        int64     `gorm:"column:amount;type:bigint;not null" json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (EventRegistration) TableName() string { return "event_registrations" }
