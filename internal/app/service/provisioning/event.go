package provisioning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
)

var ErrEventFull = errors.New("event is at capacity")

type Event struct {
	events EventStore
	tx     Transactor
	notify Notifier
	log    *zap.SugaredLogger
}

func NewEvent(events EventStore, tx Transactor, notify Notifier, log *zap.SugaredLogger) *Event {
	return &Event{events: events, tx: tx, notify: notify, log: log}
}

func (h *Event) Provision(ctx context.Context, p *models.Payment) error {
	meta := p.Meta()
	if meta.EventID == "" {
		return skipf("event payment %s has no event id", p.ID)
	}
	ev, err := h.events.Get(ctx, meta.EventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipf("event %s not found", meta.EventID)
	}
	if err != nil {
		return fmt.Errorf("lookup event: %w", err)
	}
	lg := logctx.FromCtx(ctx, h.log).With("event_id", ev.ID)

	if _, err := h.events.GetRegistrationByPayment(ctx, p.ID); err == nil {
		lg.Infow("event_registration_exists")
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup registration: %w", err)
	}

	attendee := attendeeFor(p)
	reg := &models.EventRegistration{
		ID:            tool.GenerateUUIDV7(),
		EventID:       ev.ID,
		PaymentID:     p.ID,
		UserID:        p.UserID,
		AttendeeName:  attendee.Name,
		AttendeeEmail: attendee.Email,
		AttendeePhone: attendee.Phone,
		Amount:        p.Amount,
	}
	err = h.tx.InTx(ctx, func(ctx context.Context) error {
		if err := h.events.CreateRegistration(ctx, reg); err != nil {
			return err
		}
		ok, err := h.events.IncrementAttendees(ctx, ev.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrEventFull
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		lg.Infow("event_registration_exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("register for event %s: %w", ev.ID, err)
	}
	lg.Infow("event_registration_created", "registration_id", reg.ID)

	if attendee.Email != "" {
		_ = h.notify.Send(ctx, notification.TemplateEventRegistration, attendee.Email, attendee.Name, notification.EventRegistrationData{
			Name:       firstNonEmpty(attendee.Name, attendee.Email),
			EventTitle: ev.Title,
			Location:   ev.Location,
			StartsAt:   ev.StartsAt,
			Amount:     p.Amount,
			Receipt:    receipt(p),
		})
	}
	return nil
}

func attendeeFor(p *models.Payment) models.Attendee {
	a := models.Attendee{Email: p.Email, Phone: p.Phone}
	if m := p.Meta().Attendee; m != nil {
		a.Name = m.Name
		if m.Email != "" {
			a.Email = m.Email
		}
		if m.Phone != "" {
			a.Phone = m.Phone
		}
	}
	return a
}
