// Package auth serves sign-in, password setup and session introspection on
// top of the identity provider.
package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/session"
)

type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	Update(ctx context.Context, id string, values map[string]any) error
}

type Notifier interface {
	Send(ctx context.Context, t notification.Template, to, toName string, data any) error
}

type Service struct {
	idp      identity.Provider
	profiles ProfileStore
	notify   Notifier
	policy   session.Policy
	setupTTL time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(idp identity.Provider, profiles ProfileStore, notify Notifier, cfg config.AuthConfig, log *zap.SugaredLogger) *Service {
	return &Service{
		idp:      idp,
		profiles: profiles,
		notify:   notify,
		policy:   session.NewPolicy(cfg.IdleTimeout, cfg.WarningWindow),
		setupTTL: cfg.SetupTokenTTL,
		log:      log,
		now:      time.Now,
	}
}

func newFromDeps(idp identity.Provider, profiles *repository.ProfileRepo, notify *notification.Notifier, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return New(idp, profiles, notify, cfg.Auth, log)
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Policy is shared with the auth middleware so both judge sessions alike.
func (s *Service) Policy() session.Policy { return s.policy }

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*identity.Session, error) {
	sess, err := s.idp.SignIn(ctx, req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		return nil, apperr.UnauthorizedErr("invalid email or password")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	logctx.FromCtx(ctx, s.log).Infow("auth_login", "user_id", sess.User.ID)
	return sess, nil
}

type SetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetPassword consumes a setup link token and signs the user in.
func (s *Service) SetPassword(ctx context.Context, req SetPasswordRequest) (*identity.Session, error) {
	lg := logctx.FromCtx(ctx, s.log)
	user, err := s.idp.SetPassword(ctx, req.Token, req.Password)
	switch {
	case errors.Is(err, identity.ErrWeakPassword):
		return nil, apperr.InvalidErr(err.Error(), map[string]string{"password": "too short"})
	case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrUserNotFound):
		return nil, apperr.InvalidErr("this link is invalid or has expired", map[string]string{"token": "request a new link"})
	case err != nil:
		return nil, apperr.Wrap(err)
	}
	// Admin accounts created from the CLI may have no profile.
	if err := s.profiles.Update(ctx, user.ID, map[string]any{"password_set": true}); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		lg.Warnw("profile_password_flag_failed", "user_id", user.ID, "err", err)
	}
	sess, err := s.idp.Refresh(ctx, user.ID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return sess, nil
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword mails a fresh setup link when the account exists. The
// outcome is never revealed to the caller.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	lg := logctx.FromCtx(ctx, s.log)
	user, err := s.idp.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, identity.ErrUserNotFound) {
		lg.Infow("password_reset_unknown_email")
		return nil
	}
	if err != nil {
		return apperr.Wrap(err)
	}
	link, err := s.idp.GeneratePasswordSetupLink(ctx, user.ID)
	if err != nil {
		return apperr.Wrap(err)
	}
	name := user.Email
	if p, err := s.profiles.Get(ctx, user.ID); err == nil && p.FullName() != "" {
		name = p.FullName()
	}
	if err := s.notify.Send(ctx, notification.TemplatePasswordReset, user.Email, name, notification.PasswordResetData{
		Name:     name,
		Link:     link,
		ValidFor: notification.HumanDuration(s.setupTTL),
	}); err != nil {
		lg.Warnw("password_reset_mail_failed", "user_id", user.ID, "err", err)
	}
	return nil
}

func (s *Service) Refresh(ctx context.Context, userID string) (*identity.Session, error) {
	sess, err := s.idp.Refresh(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, apperr.UnauthorizedErr("account no longer exists")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return sess, nil
}

type SessionInfo struct {
	State        session.State `json:"state"`
	LastActivity time.Time     `json:"last_activity"`
	ExpiresIn    int64         `json:"expires_in_seconds"`
}

type MeResponse struct {
	User    *identity.User  `json:"user"`
	Profile *models.Profile `json:"profile"`
	Session SessionInfo     `json:"session"`
}

// Me describes the caller. Profile is nil for accounts without one.
func (s *Service) Me(ctx context.Context, claims *identity.Claims) (*MeResponse, error) {
	user, err := s.idp.GetUser(ctx, claims.Subject)
	if errors.Is(err, identity.ErrUserNotFound) {
		return nil, apperr.UnauthorizedErr("account no longer exists")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	res := &MeResponse{User: user, Session: s.SessionInfo(claims)}
	p, err := s.profiles.Get(ctx, user.ID)
	switch {
	case err == nil:
		res.Profile = p
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperr.Wrap(err)
	}
	return res, nil
}

func (s *Service) SessionInfo(claims *identity.Claims) SessionInfo {
	last := claims.IssuedTime()
	elapsed := s.now().Sub(last)
	return SessionInfo{
		State:        s.policy.Evaluate(elapsed),
		LastActivity: last,
		ExpiresIn:    int64(s.policy.Remaining(elapsed) / time.Second),
	}
}

var Module = fx.Options(
	fx.Provide(newFromDeps),
)
