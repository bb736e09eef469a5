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
	"github.com/fatflowers/alumni/pkg/types"
)

type Renewal struct {
	profiles    ProfileStore
	memberships Memberships
	notify      Notifier
	log         *zap.SugaredLogger
}

func NewRenewal(profiles ProfileStore, memberships Memberships, notify Notifier, log *zap.SugaredLogger) *Renewal {
	return &Renewal{profiles: profiles, memberships: memberships, notify: notify, log: log}
}

func (h *Renewal) Provision(ctx context.Context, p *models.Payment) error {
	userID := p.OwnerID()
	if userID == "" {
		return skipf("renewal payment %s has no user", p.ID)
	}
	profile, err := h.profiles.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipf("profile %s not found", userID)
	}
	if err != nil {
		return fmt.Errorf("lookup profile: %w", err)
	}

	m, err := h.memberships.Extend(ctx, profile.ID, p.ID)
	if err != nil {
		return fmt.Errorf("extend membership: %w", err)
	}
	if err := h.profiles.TransitionStatus(ctx, profile.ID, types.ProfileStatusActive); err != nil {
		return fmt.Errorf("activate profile: %w", err)
	}
	logctx.FromCtx(ctx, h.log).Infow("membership_renewed", "profile_id", profile.ID, "expiry_date", m.ExpiryDate)

	_ = h.notify.Send(ctx, notification.TemplatePaymentConfirmation, profile.Email, profile.FullName(), notification.PaymentConfirmationData{
		Name:       firstNonEmpty(profile.FirstName, profile.Email),
		Purpose:    "membership renewal",
		Amount:     p.Amount,
		Receipt:    receipt(p),
		ExpiryDate: m.ExpiryDate,
	})
	return nil
}

func receipt(p *models.Payment) string {
	if p.ReceiptNumber == nil {
		return ""
	}
	return *p.ReceiptNumber
}
