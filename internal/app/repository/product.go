package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
)

type ProductRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) *ProductRepo { return &ProductRepo{db: db} }

// Create inserts the product together with its variants.
func (r *ProductRepo) Create(ctx context.Context, p *models.Product) error {
	return conn(ctx, r.db).Create(p).Error
}

func (r *ProductRepo) Get(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := conn(ctx, r.db).Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("name ASC")
	}).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Update(ctx context.Context, id string, values map[string]any) error {
	res := conn(ctx, r.db).Model(&models.Product{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns products with variants; activeOnly hides retired products.
func (r *ProductRepo) List(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	q := conn(ctx, r.db).Preload("Variants")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	var out []models.Product
	err := q.Order("name ASC").Find(&out).Error
	return out, err
}

func (r *ProductRepo) CreateVariant(ctx context.Context, v *models.ProductVariant) error {
	return conn(ctx, r.db).Create(v).Error
}

func (r *ProductRepo) UpdateVariant(ctx context.Context, productID, variantID string, values map[string]any) error {
	res := conn(ctx, r.db).Model(&models.ProductVariant{}).
		Where("id = ? AND product_id = ?", variantID, productID).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ProductRepo) DeleteVariant(ctx context.Context, productID, variantID string) error {
	res := conn(ctx, r.db).Where("id = ? AND product_id = ?", variantID, productID).Delete(&models.ProductVariant{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
