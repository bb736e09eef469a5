package membership

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

// numberAttempts bounds retries when two registrations race for the same number.
const numberAttempts = 5

type ProfileStore interface {
	Create(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, id string, values map[string]any) error
	MaxMembershipNumber(ctx context.Context) (int64, error)
}

type MembershipStore interface {
	GetByProfile(ctx context.Context, profileID string) (*models.Membership, error)
	Upsert(ctx context.Context, m *models.Membership) error
}

type Service struct {
	profiles    ProfileStore
	memberships MembershipStore
	cfg         config.MembershipConfig
	log         *zap.SugaredLogger
	now         func() time.Time
}

func New(profiles ProfileStore, memberships MembershipStore, cfg config.MembershipConfig, log *zap.SugaredLogger) *Service {
	if cfg.TermMonths <= 0 {
		cfg.TermMonths = 12
	}
	return &Service{profiles: profiles, memberships: memberships, cfg: cfg, log: log, now: time.Now}
}

func newFromRepo(p *repository.ProfileRepo, m *repository.MembershipRepo, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return New(p, m, cfg.Membership, log)
}

// SetClock replaces the clock used for membership windows.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RenewedExpiry extends from whichever is later, the current expiry or now,
// so early renewals keep the remaining time and lapsed ones restart today.
func RenewedExpiry(current *time.Time, now time.Time, months int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.AddDate(0, months, 0)
}

// NextNumber is one past the largest numeric membership number, never below the seed.
func (s *Service) NextNumber(ctx context.Context) (string, error) {
	maxNum, err := s.profiles.MaxMembershipNumber(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(max(maxNum, s.cfg.NumberSeed)+1, 10), nil
}

// CreateNumbered inserts p with a freshly allocated membership number,
// retrying when a concurrent registration took the same number.
func (s *Service) CreateNumbered(ctx context.Context, p *models.Profile) error {
	var lastErr error
	for range numberAttempts {
		num, err := s.NextNumber(ctx)
		if err != nil {
			return err
		}
		p.MembershipNumber = &num
		err = s.profiles.Create(ctx, p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		lastErr = err
		logctx.FromCtx(ctx, s.log).Infow("membership_number_collision", "number", num)
	}
	return lastErr
}

// AssignNumber gives an existing profile a number if it has none.
func (s *Service) AssignNumber(ctx context.Context, p *models.Profile) error {
	if p.Number() != "" {
		return nil
	}
	var lastErr error
	for range numberAttempts {
		num, err := s.NextNumber(ctx)
		if err != nil {
			return err
		}
		err = s.profiles.Update(ctx, p.ID, map[string]any{"membership_number": num})
		if err == nil {
			p.MembershipNumber = &num
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Start opens a fresh window from now, replacing any earlier one.
func (s *Service) Start(ctx context.Context, profileID, paymentID string) (*models.Membership, error) {
	now := s.now().UTC()
	m := &models.Membership{
		ID:         tool.GenerateUUIDV7(),
		ProfileID:  profileID,
		Status:     types.MembershipStatusActive,
		StartDate:  now,
		ExpiryDate: now.AddDate(0, s.cfg.TermMonths, 0),
		PaymentID:  paymentRef(paymentID),
	}
	if err := s.memberships.Upsert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Extend renews the profile's window, creating one if absent.
func (s *Service) Extend(ctx context.Context, profileID, paymentID string) (*models.Membership, error) {
	now := s.now().UTC()
	current, err := s.memberships.GetByProfile(ctx, profileID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	m := &models.Membership{
		ID:        tool.GenerateUUIDV7(),
		ProfileID: profileID,
		Status:    types.MembershipStatusActive,
		StartDate: now,
		PaymentID: paymentRef(paymentID),
	}
	var currentExpiry *time.Time
	if current != nil {
		currentExpiry = &current.ExpiryDate
		if current.ExpiryDate.After(now) {
			m.StartDate = current.StartDate
		}
	}
	m.ExpiryDate = RenewedExpiry(currentExpiry, now, s.cfg.TermMonths)
	if err := s.memberships.Upsert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func paymentRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

var Module = fx.Options(
	fx.Provide(newFromRepo),
)
