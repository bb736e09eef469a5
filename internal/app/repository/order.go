package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

var OrderListFields = []string{"status", "email", "user_id", "total", "created_at"}

type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) *OrderRepo { return &OrderRepo{db: db} }

func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	return conn(ctx, r.db).Create(o).Error
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := conn(ctx, r.db).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// Transition moves the order to next from any legal source status and writes
// values in the same statement.
func (r *OrderRepo) Transition(ctx context.Context, id string, next types.OrderStatus, values map[string]any) (bool, error) {
	sources := types.OrderStatusSources(next)
	if len(sources) == 0 {
		return false, nil
	}
	updates := map[string]any{"status": next}
	for k, v := range values {
		updates[k] = v
	}
	res := conn(ctx, r.db).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *OrderRepo) UpdateFields(ctx context.Context, id string, values map[string]any) error {
	return conn(ctx, r.db).Model(&models.Order{}).Where("id = ?", id).Updates(values).Error
}

func (r *OrderRepo) List(ctx context.Context, req *types.ListRequest) ([]models.Order, int64, error) {
	return paginate[models.Order](conn(ctx, r.db).Model(&models.Order{}), req)
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	var out []models.Order
	err := conn(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
