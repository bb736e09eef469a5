package models

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentCallbackLogStatus string

const (
	PaymentCallbackLogStatusReceived     PaymentCallbackLogStatus = "received"
	PaymentCallbackLogStatusHandled      PaymentCallbackLogStatus = "handled"
	PaymentCallbackLogStatusHandleFailed PaymentCallbackLogStatus = "handle_failed"
)

// PaymentCallbackLog is the raw audit trail of provider callbacks.
type PaymentCallbackLog struct {
	ID                string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TraceID           string                   `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	CheckoutRequestID string                   `gorm:"column:checkout_request_id;type:varchar(128);index" json:"checkout_request_id"`
	MerchantRequestID string                   `gorm:"column:merchant_request_id;type:varchar(128)" json:"merchant_request_id"`
	PaymentID         *string                  `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	ResultCode        *int                     `gorm:"column:result_code" json:"result_code"`
	ReceivedAt        time.Time                `gorm:"column:received_at;not null" json:"received_at"`
	Data              datatypes.JSON           `gorm:"column:data;type:jsonb" json:"data"`
	Outcome           string                   `gorm:"column:outcome;type:varchar(64)" json:"outcome"`
	Error             string                   `gorm:"column:error;type:text" json:"error,omitempty"`
	Status            PaymentCallbackLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func (PaymentCallbackLog) TableName() string { return "payment_callback_logs" }
