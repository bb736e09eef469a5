package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/response"
	"github.com/fatflowers/alumni/pkg/session"
	"github.com/fatflowers/alumni/pkg/types"
)

const (
	// SessionStateHeader tells the client whether to warn about an idle session.
	SessionStateHeader = "X-Session-State"

	claimsKey = "claims"
)

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*identity.Claims, error)
}

// Auth checks bearer tokens and applies the idle-session policy. The token
// issue time counts as the last activity, so a client that refreshes keeps
// its session alive.
type Auth struct {
	verifier TokenVerifier
	policy   session.Policy
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewAuth(verifier TokenVerifier, policy session.Policy, log *zap.SugaredLogger) *Auth {
	return &Auth{verifier: verifier, policy: policy, log: log, now: time.Now}
}

func (a *Auth) SetClock(now func() time.Time) { a.now = now }

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(response.FromError(err))
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authenticate returns the verified claims, or an error fit for the client.
// A missing token yields (nil, nil).
func (a *Auth) authenticate(c *gin.Context) (*identity.Claims, error) {
	token := bearer(c)
	if token == "" {
		return nil, nil
	}
	claims, err := a.verifier.VerifyToken(c.Request.Context(), token)
	if err != nil {
		return nil, apperr.UnauthorizedErr("invalid or expired token")
	}
	state := a.policy.Evaluate(a.now().Sub(claims.IssuedTime()))
	c.Writer.Header().Set(SessionStateHeader, string(state))
	if state == session.StateExpired {
		return nil, apperr.UnauthorizedErr("session expired, please sign in again")
	}
	return claims, nil
}

func (a *Auth) attach(c *gin.Context, claims *identity.Claims) {
	c.Set(claimsKey, claims)
	ctx := logctx.WithUserID(c.Request.Context(), claims.Subject)
	c.Request = c.Request.WithContext(ctx)
	setLogger(c, logctx.FromGin(c, a.log).With("user_id", claims.Subject))
}

// Required rejects requests without a valid, unexpired session.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.authenticate(c)
		if err == nil && claims == nil {
			err = apperr.UnauthorizedErr("missing bearer token")
		}
		if err != nil {
			abort(c, err)
			return
		}
		a.attach(c, claims)
		c.Next()
	}
}

// Optional attaches the caller when a token is sent and lets guests through.
// A bad token is still rejected so clients notice an expired session.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.authenticate(c)
		if err != nil {
			abort(c, err)
			return
		}
		if claims != nil {
			a.attach(c, claims)
		}
		c.Next()
	}
}

// RequireAdmin must run after Required.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			abort(c, apperr.UnauthorizedErr("missing bearer token"))
			return
		}
		if claims.Role != types.RoleAdmin {
			abort(c, apperr.ForbiddenErr("admin access required"))
			return
		}
		c.Next()
	}
}

// Claims returns the authenticated caller, if any.
func Claims(c *gin.Context) (*identity.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*identity.Claims)
	return claims, ok && claims != nil
}

// UserID returns the caller's id, or "" for guests.
func UserID(c *gin.Context) string {
	if claims, ok := Claims(c); ok {
		return claims.Subject
	}
	return ""
}
