package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

var EventListFields = []string{"status", "title", "location", "starts_at", "price", "created_at"}

type EventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Create(ctx context.Context, e *models.Event) error {
	return conn(ctx, r.db).Create(e).Error
}

func (r *EventRepo) Get(ctx context.Context, id string) (*models.Event, error) {
	var e models.Event
	if err := conn(ctx, r.db).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) Update(ctx context.Context, id string, values map[string]any) error {
	res := conn(ctx, r.db).Model(&models.Event{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *EventRepo) List(ctx context.Context, req *types.ListRequest) ([]models.Event, int64, error) {
	return paginate[models.Event](conn(ctx, r.db).Model(&models.Event{}), req)
}

// ListPublished returns published events starting after from, soonest first.
func (r *EventRepo) ListPublished(ctx context.Context, from time.Time, limit int) ([]models.Event, error) {
	var out []models.Event
	err := conn(ctx, r.db).
		Where("status = ? AND starts_at >= ?", types.EventStatusPublished, from).
		Order("starts_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IncrementAttendees adds one attendee unless the event is at capacity.
// ok=false means the event is full or gone.
func (r *EventRepo) IncrementAttendees(ctx context.Context, id string) (bool, error) {
	res := conn(ctx, r.db).Model(&models.Event{}).
		Where("id = ?", id).
		Where("max_attendees IS NULL OR current_attendees < max_attendees").
		UpdateColumn("current_attendees", gorm.Expr("current_attendees + 1"))
	return res.RowsAffected == 1, res.Error
}

// CreateRegistration returns gorm.ErrDuplicatedKey when the payment already
// has a registration.
func (r *EventRepo) CreateRegistration(ctx context.Context, reg *models.EventRegistration) error {
	return conn(ctx, r.db).Create(reg).Error
}

func (r *EventRepo) GetRegistrationByPayment(ctx context.Context, paymentID string) (*models.EventRegistration, error) {
	var reg models.EventRegistration
	if err := conn(ctx, r.db).Where("payment_id = ?", paymentID).First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *EventRepo) ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	var out []models.EventRegistration
	err := conn(ctx, r.db).Where("event_id = ?", eventID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (r *EventRepo) ListRegistrationsByUser(ctx context.Context, userID, email string) ([]models.EventRegistration, error) {
	var out []models.EventRegistration
	err := conn(ctx, r.db).
		Where("user_id = ? OR lower(attendee_email) = lower(?)", userID, email).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

