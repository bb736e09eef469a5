package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

var ProfileListFields = []string{"status", "role", "source", "email", "first_name", "last_name", "phone", "membership_number", "graduation_year", "course", "created_at"}

type ProfileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) *ProfileRepo { return &ProfileRepo{db: db} }

func (r *ProfileRepo) Create(ctx context.Context, p *models.Profile) error {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	return conn(ctx, r.db).Create(p).Error
}

func (r *ProfileRepo) Get(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := conn(ctx, r.db).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	err := conn(ctx, r.db).Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) Update(ctx context.Context, id string, values map[string]any) error {
	res := conn(ctx, r.db).Model(&models.Profile{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionStatus moves the profile to next when its current status allows it.
func (r *ProfileRepo) TransitionStatus(ctx context.Context, id string, next types.ProfileStatus) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := p.Status.Transition(next); err != nil {
		return err
	}
	if p.Status == next {
		return nil
	}
	res := conn(ctx, r.db).Model(&models.Profile{}).
		Where("id = ? AND status = ?", id, p.Status).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrIllegalTransition
	}
	return nil
}

// ExpireActive flips active profiles whose membership lapsed before now.
func (r *ProfileRepo) ExpireActive(ctx context.Context, now time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&models.Profile{}).
		Where("status = ?", types.ProfileStatusActive).
		Where("id IN (?)", conn(ctx, r.db).Model(&models.Membership{}).
			Select("profile_id").
			Where("expiry_date < ?", now)).
		Update("status", types.ProfileStatusExpired)
	return res.RowsAffected, res.Error
}

func (r *ProfileRepo) List(ctx context.Context, req *types.ListRequest) ([]models.Profile, int64, error) {
	return paginate[models.Profile](conn(ctx, r.db).Model(&models.Profile{}), req)
}

// MaxMembershipNumber returns the largest purely numeric membership number, or 0.
func (r *ProfileRepo) MaxMembershipNumber(ctx context.Context) (int64, error) {
	var maxNum int64
	err := conn(ctx, r.db).Model(&models.Profile{}).
		Select("COALESCE(MAX(CAST(membership_number AS BIGINT)), 0)").
		Where("membership_number ~ '^[0-9]+$'").
		Scan(&maxNum).Error
	return maxNum, err
}

// ExistingEmails returns the subset of emails (lower-cased) that already have a profile.
func (r *ProfileRepo) ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	out := make(map[string]bool, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	lower := make([]string, 0, len(emails))
	for _, e := range emails {
		lower = append(lower, strings.ToLower(strings.TrimSpace(e)))
	}
	var found []string
	err := conn(ctx, r.db).Model(&models.Profile{}).
		Where("lower(email) IN ?", lower).
		Pluck("lower(email)", &found).Error
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		out[e] = true
	}
	return out, nil
}

func (r *ProfileRepo) CountByStatus(ctx context.Context, status types.ProfileStatus) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Profile{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

type MembershipRepo struct {
	db *gorm.DB
}

func NewMembershipRepo(db *gorm.DB) *MembershipRepo { return &MembershipRepo{db: db} }

func (r *MembershipRepo) GetByProfile(ctx context.Context, profileID string) (*models.Membership, error) {
	var m models.Membership
	if err := conn(ctx, r.db).Where("profile_id = ?", profileID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert writes the window for the profile. It is a single INSERT .. ON
// CONFLICT (profile_id) so concurrent creates collapse into one row; m
// is refreshed with the stored id.
func (r *MembershipRepo) Upsert(ctx context.Context, m *models.Membership) error {
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "start_date", "expiry_date", "payment_id", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	stored, err := r.GetByProfile(ctx, m.ProfileID)
	if err != nil {
		return err
	}
	m.ID = stored.ID
	m.CreatedAt = stored.CreatedAt
	return nil
}

// ExpireLapsed marks active memberships past their expiry as inactive.
func (r *MembershipRepo) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&models.Membership{}).
		Where("status = ? AND expiry_date < ?", types.MembershipStatusActive, now).
		Update("status", types.MembershipStatusInactive)
	return res.RowsAffected, res.Error
}

func (r *MembershipRepo) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := conn(ctx, r.db).Model(&models.Membership{}).
		Where("status = ? AND expiry_date >= ?", types.MembershipStatusActive, now).
		Count(&n).Error
	return n, err
}
