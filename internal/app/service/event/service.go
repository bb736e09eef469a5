// Package event manages alumni events and starts ticket payments. The
// registration itself is only written once the payment is confirmed.
package event

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/admin_log"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

const publicListLimit = 100

type Store interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, id string) (*models.Event, error)
	Update(ctx context.Context, id string, values map[string]any) error
	List(ctx context.Context, req *types.ListRequest) ([]models.Event, int64, error)
	ListPublished(ctx context.Context, from time.Time, limit int) ([]models.Event, error)
	ListRegistrations(ctx context.Context, eventID string) ([]models.EventRegistration, error)
	ListRegistrationsByUser(ctx context.Context, userID, email string) ([]models.EventRegistration, error)
}

type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
}

type Payments interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error)
}

type AdminAudit interface {
	Record(ctx context.Context, adminID, action, targetType, targetID string, details map[string]any)
}

type Service struct {
	events   Store
	profiles ProfileStore
	payments Payments
	audit    AdminAudit
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(events Store, profiles ProfileStore, payments Payments, audit AdminAudit, log *zap.SugaredLogger) *Service {
	return &Service{events: events, profiles: profiles, payments: payments, audit: audit, log: log, now: time.Now}
}

func newFromDeps(events *repository.EventRepo, profiles *repository.ProfileRepo, payments *payment.Service, audit *admin_log.Service, log *zap.SugaredLogger) *Service {
	return New(events, profiles, payments, audit, log)
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

type CreateRequest struct {
	Title          string            `json:"title" binding:"required,max=255"`
	Description    string            `json:"description"`
	Location       string            `json:"location" binding:"max=255"`
	StartsAt       time.Time         `json:"starts_at" binding:"required"`
	EndsAt         *time.Time        `json:"ends_at"`
	Price          int64             `json:"price" binding:"required,min=1"`
	MemberDiscount int               `json:"member_discount" binding:"min=0,max=100"`
	MaxAttendees   *int              `json:"max_attendees" binding:"omitempty,min=1"`
	Status         types.EventStatus `json:"status"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Title          *string            `json:"title" binding:"omitempty,max=255"`
	Description    *string            `json:"description"`
	Location       *string            `json:"location" binding:"omitempty,max=255"`
	StartsAt       *time.Time         `json:"starts_at"`
	EndsAt         *time.Time         `json:"ends_at"`
	Price          *int64             `json:"price" binding:"omitempty,min=1"`
	MemberDiscount *int               `json:"member_discount" binding:"omitempty,min=0,max=100"`
	MaxAttendees   *int               `json:"max_attendees" binding:"omitempty,min=1"`
	Status         *types.EventStatus `json:"status"`
}

func (s *Service) Create(ctx context.Context, adminID string, req CreateRequest) (*models.Event, error) {
	status := req.Status
	if status == "" {
		status = types.EventStatusDraft
	}
	if !status.Valid() {
		return nil, apperr.InvalidErr("unknown event status", map[string]string{"status": string(status)})
	}
	if err := checkWindow(req.StartsAt, req.EndsAt); err != nil {
		return nil, err
	}
	e := &models.Event{
		ID:             tool.GenerateUUIDV7(),
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Location:       strings.TrimSpace(req.Location),
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         req.EndsAt,
		Price:          req.Price,
		MemberDiscount: req.MemberDiscount,
		MaxAttendees:   req.MaxAttendees,
		Status:         status,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "event_create", "event", e.ID, map[string]any{"title": e.Title, "status": string(e.Status)})
	return e, nil
}

func (s *Service) Update(ctx context.Context, adminID, id string, req UpdateRequest) (*models.Event, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// the window is checked against whichever side is kept from the stored event
	starts, ends := current.StartsAt, current.EndsAt
	if req.StartsAt != nil {
		starts = *req.StartsAt
	}
	if req.EndsAt != nil {
		ends = req.EndsAt
	}
	if err := checkWindow(starts, ends); err != nil {
		return nil, err
	}
	values := map[string]any{}
	if req.Title != nil {
		values["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		values["description"] = *req.Description
	}
	if req.Location != nil {
		values["location"] = strings.TrimSpace(*req.Location)
	}
	if req.StartsAt != nil {
		values["starts_at"] = req.StartsAt.UTC()
	}
	if req.EndsAt != nil {
		values["ends_at"] = req.EndsAt.UTC()
	}
	if req.Price != nil {
		values["price"] = *req.Price
	}
	if req.MemberDiscount != nil {
		values["member_discount"] = *req.MemberDiscount
	}
	if req.MaxAttendees != nil {
		if *req.MaxAttendees < current.CurrentAttendees {
			return nil, apperr.ConflictErr("capacity is below the number of registered attendees")
		}
		values["max_attendees"] = *req.MaxAttendees
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, apperr.InvalidErr("unknown event status", map[string]string{"status": string(*req.Status)})
		}
		values["status"] = *req.Status
	}
	if len(values) == 0 {
		return current, nil
	}
	if err := s.events.Update(ctx, id, values); err != nil {
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "event_update", "event", id, values)
	return s.Get(ctx, id)
}

func checkWindow(starts time.Time, ends *time.Time) error {
	if ends != nil && ends.Before(starts) {
		return apperr.InvalidErr("event ends before it starts", map[string]string{"ends_at": "must be after starts_at"})
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.events.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("event not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return e, nil
}

// GetPublished hides drafts from the public surface.
func (s *Service) GetPublished(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == types.EventStatusDraft {
		return nil, apperr.NotFoundErr("event not found")
	}
	return e, nil
}

// ListUpcoming returns published events that have not started yet.
func (s *Service) ListUpcoming(ctx context.Context) ([]models.Event, error) {
	items, err := s.events.ListPublished(ctx, s.now().UTC(), publicListLimit)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return items, nil
}

type ListResponse struct {
	Items []models.Event `json:"items"`
	Total int64          `json:"total"`
}

func (s *Service) List(ctx context.Context, req *types.ListRequest) (*ListResponse, error) {
	if err := types.ValidateFilters(req.Filters, repository.EventListFields); err != nil {
		return nil, apperr.InvalidErr(err.Error(), nil)
	}
	req.Normalize(repository.EventListFields, "starts_at")
	items, total, err := s.events.List(ctx, req)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return &ListResponse{Items: items, Total: total}, nil
}

func (s *Service) Registrations(ctx context.Context, eventID string) ([]models.EventRegistration, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}
	items, err := s.events.ListRegistrations(ctx, eventID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return items, nil
}

func (s *Service) RegistrationsForUser(ctx context.Context, userID, email string) ([]models.EventRegistration, error) {
	items, err := s.events.ListRegistrationsByUser(ctx, userID, email)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return items, nil
}

type RegisterRequest struct {
	Name  string `json:"name" binding:"max=255"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

// Register starts the ticket payment for eventID. Signed-in active members
// get the member price and default attendee details from their profile.
func (s *Service) Register(ctx context.Context, userID, eventID string, req RegisterRequest) (*payment.InitiateResult, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Status != types.EventStatusPublished:
		return nil, apperr.ConflictErr("event is not open for registration")
	case !e.StartsAt.After(s.now()):
		return nil, apperr.ConflictErr("event has already started")
	case e.Full():
		return nil, apperr.ConflictErr("event is fully booked")
	}

	attendee := &models.Attendee{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Phone: strings.TrimSpace(req.Phone),
	}
	member := false
	if userID != "" {
		profile, err := s.profiles.Get(ctx, userID)
		switch {
		case err == nil:
			member = profile.Status == types.ProfileStatusActive
			attendee.Name = lo.CoalesceOrEmpty(attendee.Name, profile.FullName())
			attendee.Email = lo.CoalesceOrEmpty(attendee.Email, profile.Email)
			attendee.Phone = lo.CoalesceOrEmpty(attendee.Phone, profile.Phone)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperr.Wrap(err)
		}
	}
	if attendee.Email == "" {
		return nil, apperr.InvalidErr("attendee email is required", map[string]string{"email": "required"})
	}
	if attendee.Name == "" {
		attendee.Name = attendee.Email
	}

	amount := e.PriceFor(member)
	logctx.FromCtx(ctx, s.log).Infow("event_registration_started", "event_id", e.ID, "member_price", member, "amount", amount)
	return s.payments.Initiate(ctx, payment.InitiateRequest{
		UserID: userID,
		Email:  attendee.Email,
		Phone:  attendee.Phone,
		Amount: amount,
		Type:   types.PaymentTypeEvent,
		Metadata: &models.PaymentMetadata{
			EventID:     e.ID,
			Attendee:    attendee,
			MemberPrice: member,
		},
	})
}

var Module = fx.Options(
	fx.Provide(newFromDeps),
)
