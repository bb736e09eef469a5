// Package member serves profile reads and edits for members and the admin
// member directory: status changes, invitations and bulk CSV import.
package member

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/admin_log"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/internal/platform/storage"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/types"
)

type ProfileStore interface {
	Create(ctx context.Context, p *models.Profile) error
	Get(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Update(ctx context.Context, id string, values map[string]any) error
	TransitionStatus(ctx context.Context, id string, next types.ProfileStatus) error
	List(ctx context.Context, req *types.ListRequest) ([]models.Profile, int64, error)
	ExistingEmails(ctx context.Context, emails []string) (map[string]bool, error)
}

type MembershipStore interface {
	GetByProfile(ctx context.Context, profileID string) (*models.Membership, error)
}

type Notifier interface {
	Send(ctx context.Context, t notification.Template, to, toName string, data any) error
}

type AdminAudit interface {
	Record(ctx context.Context, adminID, action, targetType, targetID string, details map[string]any)
}

type Deps struct {
	Profiles    ProfileStore
	Memberships MembershipStore
	Identity    identity.Provider
	Notify      Notifier
	Archive     storage.Archive
	Audit       AdminAudit
	Log         *zap.SugaredLogger
}

type Service struct {
	profiles    ProfileStore
	memberships MembershipStore
	idp         identity.Provider
	notify      Notifier
	archive     storage.Archive
	audit       AdminAudit
	log         *zap.SugaredLogger
	setupTTL    time.Duration
}

func New(d Deps, setupTTL time.Duration) *Service {
	return &Service{
		profiles:    d.Profiles,
		memberships: d.Memberships,
		idp:         d.Identity,
		notify:      d.Notify,
		archive:     d.Archive,
		audit:       d.Audit,
		log:         d.Log,
		setupTTL:    setupTTL,
	}
}

type fxDeps struct {
	fx.In

	Cfg         *config.Config
	Profiles    *repository.ProfileRepo
	Memberships *repository.MembershipRepo
	Identity    identity.Provider
	Notifier    *notification.Notifier
	Archive     storage.Archive
	Audit       *admin_log.Service
	Log         *zap.SugaredLogger
}

func newFromDeps(d fxDeps) *Service {
	return New(Deps{
		Profiles:    d.Profiles,
		Memberships: d.Memberships,
		Identity:    d.Identity,
		Notify:      d.Notifier,
		Archive:     d.Archive,
		Audit:       d.Audit,
		Log:         d.Log,
	}, d.Cfg.Auth.SetupTokenTTL)
}

// View is a profile with its membership window, if any.
type View struct {
	Profile    *models.Profile    `json:"profile"`
	Membership *models.Membership `json:"membership"`
}

func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	p, err := s.profiles.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("profile not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	v := &View{Profile: p}
	m, err := s.memberships.GetByProfile(ctx, id)
	switch {
	case err == nil:
		v.Membership = m
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Wrap(err)
	}
	return v, nil
}

type UpdateRequest struct {
	FirstName      *string `json:"first_name" binding:"omitempty,max=128"`
	LastName       *string `json:"last_name" binding:"omitempty,max=128"`
	Phone          *string `json:"phone"`
	GraduationYear *int    `json:"graduation_year" binding:"omitempty,min=1950,max=2100"`
	Course         *string `json:"course" binding:"omitempty,max=255"`
}

// UpdateSelf edits the fields a member may change on their own profile.
func (s *Service) UpdateSelf(ctx context.Context, id string, req UpdateRequest) (*View, error) {
	values := map[string]any{}
	if req.FirstName != nil {
		values["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		values["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Phone != nil {
		phone, err := mpesa.NormalizePhone(*req.Phone)
		if err != nil {
			return nil, apperr.InvalidErr("invalid phone number", map[string]string{"phone": "use a Safaricom number such as 0712345678"})
		}
		values["phone"] = phone
	}
	if req.GraduationYear != nil {
		values["graduation_year"] = *req.GraduationYear
	}
	if req.Course != nil {
		values["course"] = strings.TrimSpace(*req.Course)
	}
	if len(values) > 0 {
		if err := s.profiles.Update(ctx, id, values); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFoundErr("profile not found")
			}
			return nil, apperr.Wrap(err)
		}
	}
	return s.Get(ctx, id)
}

type ListResponse struct {
	Items []models.Profile `json:"items"`
	Total int64            `json:"total"`
}

func (s *Service) List(ctx context.Context, req *types.ListRequest) (*ListResponse, error) {
	if err := types.ValidateFilters(req.Filters, repository.ProfileListFields); err != nil {
		return nil, apperr.InvalidErr(err.Error(), nil)
	}
	req.Normalize(repository.ProfileListFields, "created_at")
	items, total, err := s.profiles.List(ctx, req)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return &ListResponse{Items: items, Total: total}, nil
}

type StatusRequest struct {
	Status types.ProfileStatus `json:"status" binding:"required"`
	Reason string              `json:"reason" binding:"max=500"`
}

func (s *Service) SetStatus(ctx context.Context, adminID, id string, req StatusRequest) (*models.Profile, error) {
	if !req.Status.Valid() {
		return nil, apperr.InvalidErr("unknown profile status", map[string]string{"status": string(req.Status)})
	}
	err := s.profiles.TransitionStatus(ctx, id, req.Status)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.NotFoundErr("profile not found")
	case errors.Is(err, types.ErrIllegalTransition):
		return nil, apperr.ConflictErr(err.Error())
	case err != nil:
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "member_status", "profile", id, map[string]any{"status": string(req.Status), "reason": req.Reason})
	return s.profiles.Get(ctx, id)
}

type RoleRequest struct {
	Role types.Role `json:"role" binding:"required"`
}

// SetRole updates the role on both the identity account and the profile.
func (s *Service) SetRole(ctx context.Context, adminID, id string, req RoleRequest) (*models.Profile, error) {
	if !req.Role.Valid() {
		return nil, apperr.InvalidErr("unknown role", map[string]string{"role": string(req.Role)})
	}
	if adminID == id && req.Role != types.RoleAdmin {
		return nil, apperr.ConflictErr("you cannot remove your own admin role")
	}
	if _, err := s.profiles.Get(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFoundErr("profile not found")
		}
		return nil, apperr.Wrap(err)
	}
	if err := s.idp.SetRole(ctx, id, req.Role); err != nil {
		return nil, apperr.Wrap(err)
	}
	if err := s.profiles.Update(ctx, id, map[string]any{"role": req.Role}); err != nil {
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "member_role", "profile", id, map[string]any{"role": string(req.Role)})
	return s.profiles.Get(ctx, id)
}

type InviteRequest struct {
	Email     string     `json:"email" binding:"required,email"`
	FirstName string     `json:"first_name" binding:"max=128"`
	LastName  string     `json:"last_name" binding:"max=128"`
	Phone     string     `json:"phone"`
	Role      types.Role `json:"role"`
}

// Invite creates an account and an inactive profile, then mails a password
// setup link. The invitee becomes active by paying the registration fee.
func (s *Service) Invite(ctx context.Context, adminID string, req InviteRequest) (*models.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.InvalidErr("invalid email address", map[string]string{"email": "must be a valid email address"})
	}
	role := req.Role
	if role == "" {
		role = types.RoleMember
	}
	if !role.Valid() {
		return nil, apperr.InvalidErr("unknown role", map[string]string{"role": string(role)})
	}
	_, err := s.profiles.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperr.ConflictErr("a member with this email already exists")
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Wrap(err)
	}

	phone := strings.TrimSpace(req.Phone)
	if phone != "" {
		if phone, err = mpesa.NormalizePhone(phone); err != nil {
			return nil, apperr.InvalidErr("invalid phone number", map[string]string{"phone": "use a Safaricom number such as 0712345678"})
		}
	}
	user, err := s.idp.CreateUser(ctx, email, role)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	p := &models.Profile{
		ID:          user.ID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       email,
		Phone:       phone,
		Status:      types.ProfileStatusInactive,
		Role:        role,
		Source:      types.ProfileSourceAdmin,
		PasswordSet: user.PasswordSet,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.ConflictErr("a member with this email already exists")
		}
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "member_invite", "profile", p.ID, map[string]any{"email": email, "role": string(role)})
	s.sendSetupLink(ctx, p)
	return p, nil
}

// sendSetupLink mails a password link. Failures are logged only.
func (s *Service) sendSetupLink(ctx context.Context, p *models.Profile) {
	lg := logctx.FromCtx(ctx, s.log)
	link, err := s.idp.GeneratePasswordSetupLink(ctx, p.ID)
	if err != nil {
		lg.Warnw("password_setup_link_failed", "profile_id", p.ID, "err", err)
		return
	}
	name := p.FullName()
	if name == "" {
		name = p.Email
	}
	_ = s.notify.Send(ctx, notification.TemplatePasswordReset, p.Email, p.FullName(), notification.PasswordResetData{
		Name:     name,
		Link:     link,
		ValidFor: notification.HumanDuration(s.setupTTL),
	})
}

var Module = fx.Options(
	fx.Provide(newFromDeps),
)
