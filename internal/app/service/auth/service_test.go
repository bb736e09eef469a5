package auth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fatflowers/alumni/internal/app/service/memstore"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/internal/platform/mailer"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/session"
	"github.com/fatflowers/alumni/pkg/types"
)

type fixture struct {
	db   *memstore.DB
	idp  *identity.Local
	mail *mailer.Mock
	svc  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	cfg := config.AuthConfig{
		JWTSecret:        "test-secret",
		Issuer:           "alumni",
		TokenTTL:         time.Hour,
		IdleTimeout:      30 * time.Minute,
		WarningWindow:    5 * time.Minute,
		PasswordSetupURL: "https://alumni.example.org/set-password",
		SetupTokenTTL:    24 * time.Hour,
		BcryptCost:       bcrypt.MinCost,
	}
	db := memstore.New()
	mail := &mailer.Mock{}
	notify, err := notification.New(mail, log, "")
	require.NoError(t, err)
	idp := identity.NewLocal(db.AuthUsers(), cfg, log)
	return &fixture{db: db, idp: idp, mail: mail, svc: New(idp, db.Profiles(), notify, cfg, log)}
}

func (f *fixture) member(t *testing.T, email string) *identity.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.idp.CreateUser(ctx, email, types.RoleMember)
	require.NoError(t, err)
	require.NoError(t, f.db.Profiles().Create(ctx, &models.Profile{
		ID: u.ID, Email: email, FirstName: "Jane", LastName: "Doe",
		Status: types.ProfileStatusInactive, Role: types.RoleMember, Source: types.ProfileSourceImport,
	}))
	return u
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestSetPasswordThenLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.member(t, "jane@example.org")

	_, err := f.svc.Login(ctx, LoginRequest{Email: "jane@example.org", Password: "whatever1"})
	require.True(t, apperr.IsKind(err, apperr.Unauthorized))

	link, err := f.idp.GeneratePasswordSetupLink(ctx, u.ID)
	require.NoError(t, err)
	token := tokenFrom(t, link)

	_, err = f.svc.SetPassword(ctx, SetPasswordRequest{Token: token, Password: "short"})
	require.True(t, apperr.IsKind(err, apperr.Invalid))

	sess, err := f.svc.SetPassword(ctx, SetPasswordRequest{Token: token, Password: "correct horse"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.AccessToken)
	require.True(t, sess.User.PasswordSet)

	p, err := f.db.Profiles().Get(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, p.PasswordSet)

	// the link is spent once the password changed
	_, err = f.svc.SetPassword(ctx, SetPasswordRequest{Token: token, Password: "another one"})
	require.True(t, apperr.IsKind(err, apperr.Invalid))

	sess, err = f.svc.Login(ctx, LoginRequest{Email: "Jane@Example.org", Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, u.ID, sess.User.ID)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "jane@example.org", Password: "wrong horse"})
	require.True(t, apperr.IsKind(err, apperr.Unauthorized))
}

func TestSetPassword_AccountWithoutProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u, err := f.idp.CreateUser(ctx, "ops@example.org", types.RoleAdmin)
	require.NoError(t, err)
	link, err := f.idp.GeneratePasswordSetupLink(ctx, u.ID)
	require.NoError(t, err)

	sess, err := f.svc.SetPassword(ctx, SetPasswordRequest{Token: tokenFrom(t, link), Password: "admin password"})
	require.NoError(t, err)
	require.Equal(t, types.RoleAdmin, sess.User.Role)
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "jane@example.org")

	require.NoError(t, f.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "nobody@example.org"}))
	require.Empty(t, f.mail.Sent)

	require.NoError(t, f.svc.ForgotPassword(ctx, ForgotPasswordRequest{Email: "jane@example.org"}))
	require.Equal(t, 1, f.mail.Count(string(notification.TemplatePasswordReset)))
	require.Equal(t, "jane@example.org", f.mail.Sent[0].To)
	require.Contains(t, f.mail.Sent[0].TextBody, "1 day")
	require.Contains(t, f.mail.Sent[0].TextBody, "Jane Doe")
}

func TestMeReportsSessionState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.member(t, "jane@example.org")
	sess, err := f.idp.Refresh(ctx, u.ID)
	require.NoError(t, err)
	claims, err := f.idp.VerifyToken(ctx, sess.AccessToken)
	require.NoError(t, err)

	me, err := f.svc.Me(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, u.ID, me.User.ID)
	require.Equal(t, "Jane", me.Profile.FirstName)
	require.Equal(t, session.StateActive, me.Session.State)

	issued := claims.IssuedTime()
	f.svc.SetClock(func() time.Time { return issued.Add(27 * time.Minute) })
	info := f.svc.SessionInfo(claims)
	require.Equal(t, session.StateWarning, info.State)
	require.Equal(t, int64(180), info.ExpiresIn)

	f.svc.SetClock(func() time.Time { return issued.Add(31 * time.Minute) })
	require.Equal(t, session.StateExpired, f.svc.SessionInfo(claims).State)

	_, err = f.svc.Refresh(ctx, "missing")
	require.True(t, apperr.IsKind(err, apperr.Unauthorized))
}
