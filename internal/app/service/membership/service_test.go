package membership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/config"
)

type fakeStore struct {
	mu          sync.Mutex
	profiles    map[string]*models.Profile
	memberships map[string]*models.Membership
	maxNum      int64
	// collide makes the next n creates fail with a duplicate key
	collide int
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: map[string]*models.Profile{}, memberships: map[string]*models.Membership{}}
}

func (f *fakeStore) Create(_ context.Context, p *models.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collide > 0 {
		f.collide--
		f.maxNum++
		return gorm.ErrDuplicatedKey
	}
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStore) Update(_ context.Context, id string, values map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := values["membership_number"].(string); ok {
		p.MembershipNumber = &v
	}
	return nil
}

func (f *fakeStore) MaxMembershipNumber(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxNum, nil
}

func (f *fakeStore) GetByProfile(_ context.Context, profileID string) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[profileID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) Upsert(_ context.Context, m *models.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.memberships[m.ProfileID] = &cp
	return nil
}

func newTestService(f *fakeStore, now time.Time) *Service {
	s := New(f, f, config.MembershipConfig{NumberSeed: 1000, TermMonths: 12}, zap.NewNop().Sugar())
	s.SetClock(func() time.Time { return now })
	return s
}

func TestRenewedExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	past := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), RenewedExpiry(&future, now, 12))
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), RenewedExpiry(&past, now, 12))
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), RenewedExpiry(nil, now, 12))
}

func TestNextNumber_SeedAndMax(t *testing.T) {
	f := newFakeStore()
	s := newTestService(f, time.Now())

	num, err := s.NextNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1001", num)

	f.maxNum = 2041
	num, err = s.NextNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2042", num)
}

func TestCreateNumbered_RetriesOnCollision(t *testing.T) {
	f := newFakeStore()
	f.maxNum = 1500
	f.collide = 2
	s := newTestService(f, time.Now())

	p := &models.Profile{ID: "u1", Email: "a@example.org"}
	require.NoError(t, s.CreateNumbered(context.Background(), p))
	require.Equal(t, "1503", p.Number())

	f.collide = numberAttempts
	err := s.CreateNumbered(context.Background(), &models.Profile{ID: "u2"})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestExtendAndStart(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newFakeStore()
	s := newTestService(f, now)
	ctx := context.Background()

	m, err := s.Extend(ctx, "u1", "pay-1")
	require.NoError(t, err)
	require.Equal(t, now.AddDate(1, 0, 0), m.ExpiryDate)

	// renewing early stacks on the remaining time
	m, err = s.Extend(ctx, "u1", "pay-2")
	require.NoError(t, err)
	require.Equal(t, now.AddDate(2, 0, 0), m.ExpiryDate)
	require.Equal(t, "pay-2", *f.memberships["u1"].PaymentID)

	m, err = s.Start(ctx, "u1", "pay-3")
	require.NoError(t, err)
	require.Equal(t, now.AddDate(1, 0, 0), m.ExpiryDate)
}

func TestAssignNumber_KeepsExisting(t *testing.T) {
	f := newFakeStore()
	s := newTestService(f, time.Now())
	existing := "1004"
	p := &models.Profile{ID: "u1", MembershipNumber: &existing}
	f.profiles["u1"] = p
	f.maxNum = 5000

	require.NoError(t, s.AssignNumber(context.Background(), p))
	require.Equal(t, "1004", p.Number())

	bare := &models.Profile{ID: "u2"}
	f.profiles["u2"] = bare
	require.NoError(t, s.AssignNumber(context.Background(), bare))
	require.Equal(t, "5001", bare.Number())
}
