package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

// Local signs HS256 tokens and stores bcrypt hashes.
type Local struct {
	store UserStore
	cfg   config.AuthConfig
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewLocal(store UserStore, cfg config.AuthConfig, log *zap.SugaredLogger) *Local {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Local{store: store, cfg: cfg, log: log, now: time.Now}
}

func newFromConfig(store UserStore, cfg *config.Config, log *zap.SugaredLogger) Provider {
	return NewLocal(store, cfg.Auth, log)
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (l *Local) CreateUser(ctx context.Context, email string, role types.Role) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("identity: email is required")
	}
	if existing, err := l.store.GetAuthUserByEmail(ctx, email); err == nil {
		return toUser(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if role == "" {
		role = types.RoleMember
	}
	u := &models.AuthUser{ID: tool.GenerateUUIDV7(), Email: email, Role: role}
	if err := l.store.CreateAuthUser(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// lost a race with a concurrent create for the same email
			existing, gerr := l.store.GetAuthUserByEmail(ctx, email)
			if gerr != nil {
				return nil, gerr
			}
			return toUser(existing), nil
		}
		return nil, err
	}
	logctx.FromCtx(ctx, l.log).Infow("identity_user_created", "user_id", u.ID)
	return toUser(u), nil
}

func (l *Local) GeneratePasswordSetupLink(ctx context.Context, userID string) (string, error) {
	u, err := l.getAuthUser(ctx, userID)
	if err != nil {
		return "", err
	}
	ttl := l.cfg.SetupTokenTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	tok, _, err := l.sign(u, purposePasswordSetup, ttl)
	if err != nil {
		return "", err
	}
	link, err := url.Parse(l.cfg.PasswordSetupURL)
	if err != nil {
		return "", fmt.Errorf("identity: bad password_setup_url: %w", err)
	}
	q := link.Query()
	q.Set("token", tok)
	link.RawQuery = q.Encode()
	return link.String(), nil
}

func (l *Local) SetPassword(ctx context.Context, setupToken, password string) (*User, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	claims, err := l.parse(setupToken, purposePasswordSetup)
	if err != nil {
		return nil, err
	}
	u, err := l.getAuthUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	// a link stops working once the password it was issued for has changed
	if u.PasswordVersion != claims.PasswordVersion {
		return nil, ErrInvalidToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if err := l.store.UpdateAuthUser(ctx, u.ID, map[string]any{
		"password_hash":    string(hash),
		"password_version": u.PasswordVersion + 1,
	}); err != nil {
		return nil, err
	}
	u.PasswordHash = string(hash)
	u.PasswordVersion++
	logctx.FromCtx(ctx, l.log).Infow("identity_password_set", "user_id", u.ID)
	return toUser(u), nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := l.store.GetAuthUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	now := l.now()
	if err := l.store.UpdateAuthUser(ctx, u.ID, map[string]any{"last_sign_in_at": now}); err != nil {
		logctx.FromCtx(ctx, l.log).Warnw("identity_sign_in_touch_failed", "user_id", u.ID, "err", err)
	}
	return l.session(u)
}

func (l *Local) Refresh(ctx context.Context, userID string) (*Session, error) {
	u, err := l.getAuthUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.session(u)
}

func (l *Local) VerifyToken(_ context.Context, token string) (*Claims, error) {
	return l.parse(token, purposeAccess)
}

func (l *Local) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := l.getAuthUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUser(u), nil
}

func (l *Local) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := l.store.GetAuthUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUser(u), nil
}

func (l *Local) SetRole(ctx context.Context, userID string, role types.Role) error {
	if !role.Valid() {
		return fmt.Errorf("identity: invalid role %q", role)
	}
	if _, err := l.getAuthUser(ctx, userID); err != nil {
		return err
	}
	return l.store.UpdateAuthUser(ctx, userID, map[string]any{"role": role})
}

func (l *Local) getAuthUser(ctx context.Context, id string) (*models.AuthUser, error) {
	u, err := l.store.GetAuthUser(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (l *Local) session(u *models.AuthUser) (*Session, error) {
	ttl := l.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	tok, exp, err := l.sign(u, purposeAccess, ttl)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: tok, ExpiresAt: exp, User: toUser(u)}, nil
}

func (l *Local) sign(u *models.AuthUser, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := l.now()
	exp := now.Add(ttl)
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        tool.GenerateUUIDV7(),
			Subject:   u.ID,
			Issuer:    l.cfg.Issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: exp.Unix(),
		},
		Email:   u.Email,
		Role:    u.Role,
		Purpose: purpose,
	}
	if purpose == purposePasswordSetup {
		claims.PasswordVersion = u.PasswordVersion
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(l.cfg.JWTSecret))
	return s, exp, err
}

func (l *Local) parse(token, purpose string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(l.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if l.cfg.Issuer != "" && !claims.VerifyIssuer(l.cfg.Issuer, true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
