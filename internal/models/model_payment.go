package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/alumni/pkg/types"
)

// RegistrationForm is the sign-up data captured before the registration fee is paid.
type RegistrationForm struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	GraduationYear int    `json:"graduation_year,omitempty"`
	Course         string `json:"course,omitempty"`
}

// Attendee identifies who an event ticket is for.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OverrideInfo records a manual status change by an admin.
type OverrideInfo struct {
	OperatorID string    `json:"operator_id"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// PaymentMetadata carries what the type-specific provisioning needs.
type PaymentMetadata struct {
	Registration *RegistrationForm `json:"registration,omitempty"`
	EventID      string            `json:"event_id,omitempty"`
	OrderID      string            `json:"order_id,omitempty"`
	Attendee     *Attendee         `json:"attendee,omitempty"`
	MemberPrice  bool              `json:"member_price,omitempty"`
	// RetryOf points at the earlier attempt this one replaces.
	RetryOf  string        `json:"retry_of,omitempty"`
	Override *OverrideInfo `json:"override,omitempty"`
	// PaidAmount is set when the provider confirmed a different amount.
	PaidAmount int64 `json:"paid_amount,omitempty"`
}

// Payment is one push-payment attempt. Rows are never deleted.
type Payment struct {
	ID          string              `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID      *string             `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Email       string              `gorm:"column:email;type:varchar(255);index" json:"email"`
	Phone       string              `gorm:"column:phone;type:varchar(32);not null" json:"phone"`
	Amount      int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency    string              `gorm:"column:currency;type:varchar(8);not null;default:'KES'" json:"currency"`
	PaymentType types.PaymentType   `gorm:"column:payment_type;type:varchar(32);not null;index" json:"payment_type"`
	Status      types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index:idx_payment_status_created,priority:1" json:"status"`

	MerchantRequestID *string    `gorm:"column:merchant_request_id;type:varchar(128);index" json:"merchant_request_id"`
	CheckoutRequestID *string    `gorm:"column:checkout_request_id;type:varchar(128);uniqueIndex" json:"checkout_request_id"`
	ReceiptNumber     *string    `gorm:"column:receipt_number;type:varchar(64);index" json:"receipt_number"`
	TransactionDate   *time.Time `gorm:"column:transaction_date" json:"transaction_date"`
	ResultCode        *int       `gorm:"column:result_code" json:"result_code"`
	ResultDesc        string     `gorm:"column:result_desc;type:text" json:"result_desc"`

	Metadata     datatypes.JSONType[*PaymentMetadata] `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CallbackData datatypes.JSON                       `gorm:"column:callback_data;type:jsonb" json:"callback_data,omitempty"`

	ProvisioningStatus   types.ProvisioningStatus `gorm:"column:provisioning_status;type:varchar(32);not null;default:''" json:"provisioning_status"`
	ProvisioningError    string                   `gorm:"column:provisioning_error;type:text" json:"provisioning_error,omitempty"`
	ProvisioningAttempts int                      `gorm:"column:provisioning_attempts;not null;default:0" json:"provisioning_attempts"`

	ConfirmedAt   *time.Time `gorm:"column:confirmed_at" json:"confirmed_at"`
	FailedAt      *time.Time `gorm:"column:failed_at" json:"failed_at"`
	LastQueriedAt *time.Time `gorm:"column:last_queried_at" json:"last_queried_at"`
	CreatedAt     time.Time  `gorm:"index:idx_payment_status_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Meta never returns nil.
func (p *Payment) Meta() *PaymentMetadata {
	if p == nil || p.Metadata.Data() == nil {
		return &PaymentMetadata{}
	}
	return p.Metadata.Data()
}

func (p *Payment) CheckoutID() string {
	if p == nil || p.CheckoutRequestID == nil {
		return ""
	}
	return *p.CheckoutRequestID
}

func (p *Payment) OwnerID() string {
	if p == nil || p.UserID == nil {
		return ""
	}
	return *p.UserID
}
