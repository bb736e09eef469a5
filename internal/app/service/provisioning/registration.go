package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/types"
)

// Registration activates the payer's membership. Each step is safe to run
// again, so a retried claim after a partial failure completes the work
// through the existing-profile path.
type Registration struct {
	payments    PaymentStore
	profiles    ProfileStore
	memberships Memberships
	idp         identity.Provider
	notify      Notifier
	log         *zap.SugaredLogger
}

func NewRegistration(payments PaymentStore, profiles ProfileStore, memberships Memberships, idp identity.Provider, notify Notifier, log *zap.SugaredLogger) *Registration {
	return &Registration{payments: payments, profiles: profiles, memberships: memberships, idp: idp, notify: notify, log: log}
}

func (h *Registration) Provision(ctx context.Context, p *models.Payment) error {
	form := p.Meta().Registration
	email := p.Email
	if form != nil && strings.TrimSpace(form.Email) != "" {
		email = form.Email
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return skipf("registration payment %s carries no email", p.ID)
	}

	profile, err := h.profiles.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return h.reactivate(ctx, p, profile)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return h.create(ctx, p, email, form)
	default:
		return fmt.Errorf("lookup profile: %w", err)
	}
}

func (h *Registration) reactivate(ctx context.Context, p *models.Payment, profile *models.Profile) error {
	if err := h.profiles.TransitionStatus(ctx, profile.ID, types.ProfileStatusActive); err != nil {
		return fmt.Errorf("activate profile: %w", err)
	}
	if err := h.memberships.AssignNumber(ctx, profile); err != nil {
		return fmt.Errorf("assign membership number: %w", err)
	}
	m, err := h.memberships.Start(ctx, profile.ID, p.ID)
	if err != nil {
		return fmt.Errorf("start membership: %w", err)
	}
	if err := h.link(ctx, p, profile.ID); err != nil {
		return err
	}
	logctx.FromCtx(ctx, h.log).Infow("registration_reactivated", "profile_id", profile.ID, "membership_number", profile.Number())
	h.welcome(ctx, profile, m)
	return nil
}

func (h *Registration) create(ctx context.Context, p *models.Payment, email string, form *models.RegistrationForm) error {
	user, err := h.idp.CreateUser(ctx, email, types.RoleMember)
	if err != nil {
		return fmt.Errorf("create identity user: %w", err)
	}
	profile := &models.Profile{
		ID:     user.ID,
		Email:  email,
		Phone:  p.Phone,
		Status: types.ProfileStatusActive,
		Role:   types.RoleMember,
		Source: types.ProfileSourceOnline,
	}
	if form != nil {
		profile.FirstName = strings.TrimSpace(form.FirstName)
		profile.LastName = strings.TrimSpace(form.LastName)
		profile.Course = strings.TrimSpace(form.Course)
		if form.Phone != "" {
			profile.Phone = form.Phone
		}
		if form.GraduationYear > 0 {
			year := form.GraduationYear
			profile.GraduationYear = &year
		}
	}
	if err := h.memberships.CreateNumbered(ctx, profile); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	m, err := h.memberships.Start(ctx, profile.ID, p.ID)
	if err != nil {
		return fmt.Errorf("start membership: %w", err)
	}
	if err := h.link(ctx, p, profile.ID); err != nil {
		return err
	}
	logctx.FromCtx(ctx, h.log).Infow("registration_created", "profile_id", profile.ID, "membership_number", profile.Number())
	h.welcome(ctx, profile, m)
	return nil
}

func (h *Registration) link(ctx context.Context, p *models.Payment, profileID string) error {
	if p.OwnerID() == profileID {
		return nil
	}
	if err := h.payments.UpdateFields(ctx, p.ID, map[string]any{"user_id": profileID}); err != nil {
		return fmt.Errorf("link payment: %w", err)
	}
	p.UserID = &profileID
	return nil
}

func (h *Registration) welcome(ctx context.Context, profile *models.Profile, m *models.Membership) {
	data := notification.WelcomeData{
		Name:             firstNonEmpty(profile.FirstName, profile.FullName(), profile.Email),
		MembershipNumber: profile.Number(),
		ExpiryDate:       m.ExpiryDate,
	}
	if !profile.PasswordSet {
		link, err := h.idp.GeneratePasswordSetupLink(ctx, profile.ID)
		if err != nil {
			logctx.FromCtx(ctx, h.log).Warnw("password_setup_link_failed", "profile_id", profile.ID, "err", err)
		}
		data.SetupLink = link
	}
	_ = h.notify.Send(ctx, notification.TemplateWelcome, profile.Email, profile.FullName(), data)
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
