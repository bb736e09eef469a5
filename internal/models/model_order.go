package models

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/datatypes"

	"github.com/fatflowers/alumni/pkg/types"
)

// OrderItem is a priced snapshot of one cart line.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	VariantID   string `json:"variant_id,omitempty"`
	Name        string `json:"name"`
	VariantName string `json:"variant_name,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

func (i OrderItem) LineTotal() int64 { return i.UnitPrice * int64(i.Quantity) }

type Order struct {
	ID              string                         `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID          *string                        `gorm:"column:user_id;type:varchar(64);index" json:"user_id"`
	Email           string                         `gorm:"column:email;type:varchar(255)" json:"email"`
	Phone           string                         `gorm:"column:phone;type:varchar(32)" json:"phone"`
	Items           datatypes.JSONType[[]OrderItem] `gorm:"column:items;type:jsonb;not null" json:"items"`
	Total           int64                          `gorm:"column:total;type:bigint;not null" json:"total"`
	Status          types.OrderStatus              `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	PaymentID       *string                        `gorm:"column:payment_id;type:uuid" json:"payment_id"`
	ShippingName    string                         `gorm:"column:shipping_name;type:varchar(255)" json:"shipping_name"`
	ShippingAddress string                         `gorm:"column:shipping_address;type:text" json:"shipping_address"`
	Notes           string                         `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt       time.Time                      `json:"created_at"`
	UpdatedAt       time.Time                      `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// ComputeTotal sums the line items.
func (o *Order) ComputeTotal() int64 {
	return lo.SumBy(o.Items.Data(), func(i OrderItem) int64 { return i.LineTotal() })
}
