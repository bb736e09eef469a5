package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

var PaymentListFields = []string{"status", "payment_type", "email", "phone", "user_id", "checkout_request_id", "receipt_number", "provisioning_status", "amount", "created_at"}

type PaymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepo(db *gorm.DB) *PaymentRepo { return &PaymentRepo{db: db} }

func (r *PaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	return conn(ctx, r.db).Create(p).Error
}

func (r *PaymentRepo) Get(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := conn(ctx, r.db).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) GetByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error) {
	var p models.Payment
	if err := conn(ctx, r.db).Where("checkout_request_id = ?", checkoutID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepo) GetByMerchantRequestID(ctx context.Context, merchantID string) (*models.Payment, error) {
	var p models.Payment
	err := conn(ctx, r.db).
		Where("merchant_request_id = ?", merchantID).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByCallbackFragment is the last-resort lookup: a payment whose stored
// callback data mentions one of the ids.
func (r *PaymentRepo) FindByCallbackFragment(ctx context.Context, ids ...string) (*models.Payment, error) {
	q := conn(ctx, r.db).Model(&models.Payment{})
	var conds []string
	var args []any
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		conds = append(conds, "callback_data::text LIKE ?")
		args = append(args, "%"+id+"%")
	}
	if len(conds) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	var p models.Payment
	err := q.Where("callback_data IS NOT NULL").
		Where(strings.Join(conds, " OR "), args...).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindReusableRegistration returns the newest registration attempt for email
// whose push never reached the provider.
func (r *PaymentRepo) FindReusableRegistration(ctx context.Context, email string) (*models.Payment, error) {
	var p models.Payment
	err := conn(ctx, r.db).
		Where("payment_type = ? AND status = ? AND lower(email) = lower(?)", types.PaymentTypeRegistration, types.PaymentStatusPending, email).
		Where("checkout_request_id IS NULL").
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordPush stores the provider ids and moves a pending row to processing.
func (r *PaymentRepo) RecordPush(ctx context.Context, id, merchantID, checkoutID string) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, types.PaymentStatusSources(types.PaymentStatusProcessing)).
		Updates(map[string]any{
			"merchant_request_id": merchantID,
			"checkout_request_id": checkoutID,
			"status":              types.PaymentStatusProcessing,
		})
	return res.RowsAffected == 1, res.Error
}

// Transition moves the payment to target only from a legal source status.
// values are written in the same statement.
func (r *PaymentRepo) Transition(ctx context.Context, id string, target types.PaymentStatus, values map[string]any) (bool, error) {
	sources := types.PaymentStatusSources(target)
	if len(sources) == 0 {
		return false, nil
	}
	updates := make(map[string]any, len(values)+1)
	for k, v := range values {
		updates[k] = v
	}
	updates["status"] = target
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// ClaimProvisioning marks a confirmed payment as being provisioned. Only one
// caller can hold the claim until FinishProvisioning releases it.
func (r *PaymentRepo) ClaimProvisioning(ctx context.Context, id string) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND provisioning_status IN ?", id, types.PaymentStatusConfirmed, types.ClaimableProvisioningStatuses).
		Updates(map[string]any{
			"provisioning_status":   types.ProvisioningStatusInProgress,
			"provisioning_attempts": gorm.Expr("provisioning_attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *PaymentRepo) FinishProvisioning(ctx context.Context, id string, status types.ProvisioningStatus, errText string) error {
	return conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ? AND provisioning_status = ?", id, types.ProvisioningStatusInProgress).
		Updates(map[string]any{
			"provisioning_status": status,
			"provisioning_error":  errText,
		}).Error
}

// ReleaseStaleClaims returns claims stuck in progress (e.g. a crash mid-run)
// to failed so they can be retried.
func (r *PaymentRepo) ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("provisioning_status = ? AND updated_at < ?", types.ProvisioningStatusInProgress, before).
		Updates(map[string]any{
			"provisioning_status": types.ProvisioningStatusFailed,
			"provisioning_error":  "provisioning interrupted",
		})
	return res.RowsAffected, res.Error
}

func (r *PaymentRepo) UpdateFields(ctx context.Context, id string, values map[string]any) error {
	return conn(ctx, r.db).Model(&models.Payment{}).Where("id = ?", id).Updates(values).Error
}

func (r *PaymentRepo) FillReceipt(ctx context.Context, id string, values map[string]any) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND receipt_number IS NULL", id, types.PaymentStatusConfirmed).
		Updates(values)
	return res.RowsAffected == 1, res.Error
}

// TouchQueried records a provider status query so the reconciler spaces them out.
func (r *PaymentRepo) TouchQueried(ctx context.Context, id string, at time.Time) error {
	return conn(ctx, r.db).Model(&models.Payment{}).Where("id = ?", id).
		UpdateColumn("last_queried_at", at).Error
}

// ListStale returns open payments with a provider checkout id that have not
// been created or queried since before.
func (r *PaymentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := conn(ctx, r.db).
		Where("status IN ?", []types.PaymentStatus{types.PaymentStatusPending, types.PaymentStatusProcessing}).
		Where("checkout_request_id IS NOT NULL").
		Where("created_at < ?", before).
		Where("last_queried_at IS NULL OR last_queried_at < ?", before).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUnprovisioned returns confirmed payments whose provisioning never ran or failed.
func (r *PaymentRepo) ListUnprovisioned(ctx context.Context, before time.Time, maxAttempts, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := conn(ctx, r.db).
		Where("status = ? AND provisioning_status IN ?", types.PaymentStatusConfirmed, types.ClaimableProvisioningStatuses).
		Where("provisioning_attempts < ?", maxAttempts).
		Where("updated_at < ?", before).
		Order("confirmed_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *PaymentRepo) List(ctx context.Context, req *types.ListRequest) ([]models.Payment, int64, error) {
	return paginate[models.Payment](conn(ctx, r.db).Model(&models.Payment{}), req)
}

// ListForUser returns payments owned by userID or made with email before the
// account existed.
func (r *PaymentRepo) ListForUser(ctx context.Context, userID, email string, limit int) ([]models.Payment, error) {
	var out []models.Payment
	err := conn(ctx, r.db).
		Where("user_id = ? OR lower(email) = lower(?)", userID, email).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
