package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

type CallbackLogRepo struct {
	db *gorm.DB
}

func NewCallbackLogRepo(db *gorm.DB) *CallbackLogRepo { return &CallbackLogRepo{db: db} }

func (r *CallbackLogRepo) Create(ctx context.Context, l *models.PaymentCallbackLog) error {
	return conn(ctx, r.db).Create(l).Error
}

func (r *CallbackLogRepo) Finish(ctx context.Context, id string, values map[string]any) error {
	return conn(ctx, r.db).Model(&models.PaymentCallbackLog{}).Where("id = ?", id).Updates(values).Error
}

func (r *CallbackLogRepo) ListByCheckoutID(ctx context.Context, checkoutID string) ([]models.PaymentCallbackLog, error) {
	var out []models.PaymentCallbackLog
	err := conn(ctx, r.db).Where("checkout_request_id = ?", checkoutID).Order("received_at ASC").Find(&out).Error
	return out, err
}

var AdminLogListFields = []string{"admin_id", "action", "target_type", "target_id", "created_at"}

type AdminLogRepo struct {
	db *gorm.DB
}

func NewAdminLogRepo(db *gorm.DB) *AdminLogRepo { return &AdminLogRepo{db: db} }

func (r *AdminLogRepo) Create(ctx context.Context, l *models.AdminLog) error {
	return conn(ctx, r.db).Create(l).Error
}

func (r *AdminLogRepo) List(ctx context.Context, req *types.ListRequest) ([]models.AdminLog, int64, error) {
	return paginate[models.AdminLog](conn(ctx, r.db).Model(&models.AdminLog{}), req)
}
