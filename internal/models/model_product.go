package models

import "time"

type Product struct {
	ID          string           `gorm:"column:id;primary_key;type:uuid" json:"id"`
	Name        string           `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description string           `gorm:"column:description;type:text" json:"description"`
	Price       int64            `gorm:"column:price;type:bigint;not null" json:"price"`
	ImageURL    string           `gorm:"column:image_url;type:text" json:"image_url"`
	Active      bool             `gorm:"column:active;not null;default:true" json:"active"`
	Variants    []ProductVariant `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

type ProductVariant struct {
	ID        string `gorm:"column:id;primary_key;type:uuid" json:"id"`
	ProductID string `gorm:"column:product_id;type:uuid;not null;index" json:"product_id"`
	Name      string `gorm:"column:name;type:varchar(128);not null" json:"name"`
	// PriceAdjustment is added to the product price, may be negative.
	PriceAdjustment int64     `gorm:"column:price_adjustment;type:bigint;not null;default:0" json:"price_adjustment"`
	Stock           int       `gorm:"column:stock;not null;default:0" json:"stock"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ProductVariant) TableName() string { return "product_variants" }
