package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/service/memstore"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/session"
	"github.com/fatflowers/alumni/pkg/types"
)

func newIdentity(t *testing.T) *identity.Local {
	t.Helper()
	return identity.NewLocal(memstore.New().AuthUsers(), config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "alumni",
		TokenTTL:  time.Hour,
	}, zap.NewNop().Sugar())
}

func tokenFor(t *testing.T, idp *identity.Local, email string, role types.Role) string {
	t.Helper()
	ctx := context.Background()
	u, err := idp.CreateUser(ctx, email, role)
	require.NoError(t, err)
	sess, err := idp.Refresh(ctx, u.ID)
	require.NoError(t, err)
	return sess.AccessToken
}

func serve(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTraceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.NewNop().Sugar()))
	var seen string
	r.GET("/x", func(c *gin.Context) {
		seen = logctx.TraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := serve(r, "/x", "")
	require.NotEmpty(t, seen)
	require.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "client-abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "client-abc", seen)
	require.Equal(t, "client-abc", w.Header().Get(RequestIDHeader))
}

func TestAuth_RequiredAndAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	idp := newIdentity(t)
	auth := NewAuth(idp, session.NewPolicy(30*time.Minute, 5*time.Minute), zap.NewNop().Sugar())

	r := gin.New()
	r.GET("/me", auth.Required(), func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })
	r.GET("/admin", auth.Required(), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	member := tokenFor(t, idp, "jane@example.org", types.RoleMember)
	admin := tokenFor(t, idp, "ops@example.org", types.RoleAdmin)

	require.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, "/me", "garbage").Code)

	w := serve(r, "/me", member)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Body.String())
	require.Equal(t, string(session.StateActive), w.Header().Get(SessionStateHeader))

	require.Equal(t, http.StatusForbidden, serve(r, "/admin", member).Code)
	require.Equal(t, http.StatusOK, serve(r, "/admin", admin).Code)
}

func TestAuth_IdleSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	idp := newIdentity(t)
	auth := NewAuth(idp, session.NewPolicy(30*time.Minute, 5*time.Minute), zap.NewNop().Sugar())
	r := gin.New()
	r.GET("/me", auth.Required(), func(c *gin.Context) { c.Status(http.StatusOK) })
	token := tokenFor(t, idp, "jane@example.org", types.RoleMember)

	auth.SetClock(func() time.Time { return time.Now().Add(27 * time.Minute) })
	w := serve(r, "/me", token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, string(session.StateWarning), w.Header().Get(SessionStateHeader))

	auth.SetClock(func() time.Time { return time.Now().Add(31 * time.Minute) })
	w = serve(r, "/me", token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, string(session.StateExpired), w.Header().Get(SessionStateHeader))
}

func TestAuth_Optional(t *testing.T) {
	gin.SetMode(gin.TestMode)
	idp := newIdentity(t)
	auth := NewAuth(idp, session.NewPolicy(0, 0), zap.NewNop().Sugar())
	r := gin.New()
	r.GET("/events", auth.Optional(), func(c *gin.Context) { c.String(http.StatusOK, "user=%s", UserID(c)) })

	w := serve(r, "/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user=", w.Body.String())

	w = serve(r, "/events", tokenFor(t, idp, "jane@example.org", types.RoleMember))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEqual(t, "user=", w.Body.String())

	require.Equal(t, http.StatusUnauthorized, serve(r, "/events", "garbage").Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://portal.example.org"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://portal.example.org")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "https://portal.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}
