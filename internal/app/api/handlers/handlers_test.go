package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	mw "github.com/fatflowers/alumni/internal/app/api/middleware"
	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/app/service/memstore"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/app/service/statistics"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/response"
	"github.com/fatflowers/alumni/pkg/session"
	"github.com/fatflowers/alumni/pkg/types"
)

type stubPayments struct {
	registerRes *payment.InitiateResult
	registerErr error
	renewUser   string
	retried     []payment.RetryRequest
	callbacks   [][]byte
}

func (s *stubPayments) Register(_ context.Context, _ payment.RegisterRequest) (*payment.InitiateResult, error) {
	return s.registerRes, s.registerErr
}

func (s *stubPayments) Renew(_ context.Context, userID, _ string) (*payment.InitiateResult, error) {
	s.renewUser = userID
	return &payment.InitiateResult{PaymentID: "p-renew", Status: types.PaymentStatusProcessing}, nil
}

func (s *stubPayments) Retry(_ context.Context, req payment.RetryRequest) (*payment.InitiateResult, error) {
	s.retried = append(s.retried, req)
	return &payment.InitiateResult{PaymentID: "p-retry", Status: types.PaymentStatusProcessing}, nil
}

func (s *stubPayments) Status(_ context.Context, checkoutID string) (*payment.StatusView, error) {
	if checkoutID == "ws_CO_down" {
		return nil, apperr.Wrap(errors.New("db down"))
	}
	if checkoutID != "ws_CO_1" {
		return nil, apperr.NotFoundErr("payment not found")
	}
	return &payment.StatusView{PaymentID: "p-1", CheckoutRequestID: checkoutID, Status: types.PaymentStatusConfirmed}, nil
}

func (s *stubPayments) Activate(_ context.Context, _ string) (*payment.ActivationResult, error) {
	panic("not used")
}

func (s *stubPayments) HandleCallback(_ context.Context, raw []byte) payment.Outcome {
	s.callbacks = append(s.callbacks, raw)
	return payment.OutcomeUnmatched
}

type stubStats struct{}

func (stubStats) GetStatistic(_ context.Context, _ *statistics.StatisticRequest) (*statistics.StatisticResponse, error) {
	return &statistics.StatisticResponse{DataItems: map[statistics.StatisticType][]statistics.StatisticResponseDataItem{
		statistics.StatisticTypeActiveMemberCount: {{Value: 42}},
	}}, nil
}

type stubMembers struct {
	AdminMembers
	imported string
}

func (s *stubMembers) Import(_ context.Context, _ string, filename string, r io.Reader) (*member.ImportResult, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.imported = filename + ":" + string(b)
	return &member.ImportResult{Imported: 1}, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	UseJSONFieldNames()
	return gin.New()
}

func do(r http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCallback_AlwaysAcknowledged(t *testing.T) {
	payments := &stubPayments{}
	r := newRouter()
	RegisterPaymentRoutes(r.Group("/api"), payments, payments, "s3cret", zap.NewNop().Sugar())

	w := do(r, http.MethodPost, "/api/payments/callback/s3cret", map[string]any{"Body": map[string]any{}})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())
	require.Len(t, payments.callbacks, 1)

	// garbage is still acknowledged; the service records it as invalid
	req := httptest.NewRequest(http.MethodPost, "/api/payments/callback/s3cret", strings.NewReader("not json"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "not json", string(payments.callbacks[1]))

	w = do(r, http.MethodPost, "/api/payments/callback/guess", map[string]any{})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodPost, "/api/payments/callback", map[string]any{})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, payments.callbacks, 2)
}

func TestCallback_NoTokenConfigured(t *testing.T) {
	payments := &stubPayments{}
	r := newRouter()
	RegisterPaymentRoutes(r.Group("/api"), payments, payments, "", zap.NewNop().Sugar())
	w := do(r, http.MethodPost, "/api/payments/callback", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, payments.callbacks, 1)
}

func TestRegister_Responses(t *testing.T) {
	UseJSONFieldNames()
	payments := &stubPayments{}
	r := newRouter()
	r.POST("/api/registrations", ApiRegister(payments))

	w := do(r, http.MethodPost, "/api/registrations", map[string]any{"first_name": "Jane", "last_name": "Doe", "phone": "0712345678"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var bad response.APIResponse[response.ErrorBody]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bad))
	require.Equal(t, response.APIResponseCodeBadRequest, bad.Code)
	require.Equal(t, "required", bad.Data.Fields["email"])

	valid := map[string]any{"first_name": "Jane", "last_name": "Doe", "email": "jane@example.org", "phone": "0712345678"}

	payments.registerRes = &payment.InitiateResult{PaymentID: "p-1", CheckoutRequestID: "ws_CO_1", Status: types.PaymentStatusProcessing, Amount: 2000}
	w = do(r, http.MethodPost, "/api/registrations", valid)
	require.Equal(t, http.StatusCreated, w.Code)
	var res response.APIResponse[payment.InitiateResult]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, "ws_CO_1", res.Data.CheckoutRequestID)

	payments.registerRes = &payment.InitiateResult{PaymentID: "p-2", Status: types.PaymentStatusPending}
	payments.registerErr = apperr.UnavailableErr(errors.New("dial tcp: i/o timeout"))
	w = do(r, http.MethodPost, "/api/registrations", valid)
	require.Equal(t, http.StatusBadGateway, w.Code)
	var failed response.APIResponse[response.ErrorBody]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	require.Equal(t, "p-2", failed.Data.Fields["payment_id"])
	require.NotContains(t, w.Body.String(), "i/o timeout")
}

func TestPaymentStatus(t *testing.T) {
	r := newRouter()
	r.GET("/api/payments/status/:checkout_id", ApiPaymentStatus(&stubPayments{}))

	w := do(r, http.MethodGet, "/api/payments/status/ws_CO_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"confirmed"`)

	w = do(r, http.MethodGet, "/api/payments/status/unknown", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMemberAndAdminGuards(t *testing.T) {
	log := zap.NewNop().Sugar()
	idp := identity.NewLocal(memstore.New().AuthUsers(), config.AuthConfig{JWTSecret: "test-secret", Issuer: "alumni", TokenTTL: time.Hour}, log)
	auth := mw.NewAuth(idp, session.NewPolicy(30*time.Minute, 5*time.Minute), log)
	token := func(email string, role types.Role) string {
		u, err := idp.CreateUser(context.Background(), email, role)
		require.NoError(t, err)
		sess, err := idp.Refresh(context.Background(), u.ID)
		require.NoError(t, err)
		return "Bearer " + sess.AccessToken
	}
	memberTok := token("m@example.org", types.RoleMember)
	adminTok := token("a@example.org", types.RoleAdmin)

	payments := &stubPayments{}
	r := newRouter()
	api := r.Group("/api")
	RegisterMeRoutes(api.Group("", auth.Required()), nil, nil, payments)
	api.Group("/admin", auth.Required(), mw.RequireAdmin()).POST("/statistics", ApiAdminStatistics(stubStats{}))

	w := do(r, http.MethodPost, "/api/renewals", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/renewals", nil, "Authorization", memberTok)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotEmpty(t, payments.renewUser)
	require.Equal(t, string(session.StateActive), w.Header().Get(mw.SessionStateHeader))

	stats := map[string]any{"data_items": []map[string]any{{"id": "active_member_count"}}}
	w = do(r, http.MethodPost, "/api/admin/statistics", stats, "Authorization", memberTok)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodPost, "/api/admin/statistics", stats, "Authorization", adminTok)
	require.Equal(t, http.StatusOK, w.Code)
	var res response.APIResponse[statistics.StatisticResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, int64(42), res.Data.DataItems[statistics.StatisticTypeActiveMemberCount][0].Value)
}

func TestRetry_PassesCaller(t *testing.T) {
	log := zap.NewNop().Sugar()
	idp := identity.NewLocal(memstore.New().AuthUsers(), config.AuthConfig{JWTSecret: "test-secret", Issuer: "alumni", TokenTTL: time.Hour}, log)
	auth := mw.NewAuth(idp, session.NewPolicy(30*time.Minute, 5*time.Minute), log)
	u, err := idp.CreateUser(context.Background(), "m@example.org", types.RoleMember)
	require.NoError(t, err)
	sess, err := idp.Refresh(context.Background(), u.ID)
	require.NoError(t, err)

	payments := &stubPayments{}
	r := newRouter()
	RegisterRetryRoutes(r.Group("/api", auth.Optional()), payments)

	body := map[string]string{"payment_id": "p-1", "email": "guest@example.org", "caller_id": "forged"}
	w := do(r, http.MethodPost, "/api/payments/retry", body)
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodPost, "/api/payments/retry", body, "Authorization", "Bearer "+sess.AccessToken)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, payments.retried, 2)
	assert.Empty(t, payments.retried[0].CallerID)
	assert.Equal(t, "guest@example.org", payments.retried[0].Email)
	assert.Equal(t, u.ID, payments.retried[1].CallerID)
}

func TestAdminImport(t *testing.T) {
	members := &stubMembers{}
	r := newRouter()
	r.POST("/api/admin/members/import", ApiAdminImportMembers(members))

	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	fw, err := mpw.CreateFormFile("file", "members.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("email\njane@example.org\n"))
	require.NoError(t, err)
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/members/import", &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "members.csv:email\njane@example.org\n", members.imported)

	w = do(r, http.MethodPost, "/api/admin/members/import", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMyHistory_UsesCallerEmail(t *testing.T) {
	var gotEmail string
	h := History{
		PaymentsFn: func(_ context.Context, _, email string) ([]models.Payment, error) {
			gotEmail = email
			return []models.Payment{{ID: "p-1"}}, nil
		},
	}
	r := newRouter()
	r.Use(func(c *gin.Context) {
		c.Set("claims", &identity.Claims{Email: "jane@example.org"})
		c.Next()
	})
	r.GET("/api/me/payments", ApiMyPayments(h))
	w := do(r, http.MethodGet, "/api/me/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "jane@example.org", gotEmail)
	require.Contains(t, w.Body.String(), `"p-1"`)
}

func TestRegisterRoutes_RegistersEndpoints(t *testing.T) {
	r := newRouter()
	api := r.Group("/api")
	pass := func(c *gin.Context) { c.Next() }
	RegisterHealthRoutes(r, nil, zap.NewNop().Sugar())
	RegisterAuthRoutes(api.Group("/auth"), nil, pass)
	RegisterPaymentRoutes(api, nil, nil, "", zap.NewNop().Sugar())
	RegisterCatalogRoutes(api, nil, nil)
	RegisterCheckoutRoutes(api, nil, nil)
	RegisterRetryRoutes(api, nil)
	RegisterMeRoutes(api, nil, nil, nil)
	RegisterAdminRoutes(api.Group("/admin"), AdminDeps{})

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	for _, target := range []string{
		"GET /healthz",
		"POST /api/auth/login",
		"GET /api/auth/me",
		"POST /api/registrations",
		"POST /api/payments/callback",
		"POST /api/payments/callback/:token",
		"GET /api/payments/status/:checkout_id",
		"POST /api/payments/retry",
		"POST /api/events/:id/register",
		"GET /api/products/:id",
		"POST /api/orders",
		"PUT /api/me",
		"GET /api/me/events",
		"POST /api/renewals",
		"POST /api/admin/members/import",
		"GET /api/admin/payments/:id/callbacks",
		"POST /api/admin/payments/reconcile",
		"POST /api/admin/payments/:id/override",
		"GET /api/admin/events/:id/registrations",
		"DELETE /api/admin/products/:id/variants/:variant_id",
		"PUT /api/admin/orders/:id/status",
		"POST /api/admin/statistics",
		"POST /api/admin/logs/search",
	} {
		require.True(t, contains(target), target)
	}
}

func TestFail_LogsServerErrorCause(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()
	r := newRouter()
	api := r.Group("/api", mw.RequestLoggerMiddleware(log))
	RegisterPaymentRoutes(api, &stubPayments{}, &stubPayments{}, "", log)

	w := do(r, http.MethodGet, "/api/payments/status/ws_CO_down", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "db down")

	entries := logs.FilterMessage("request_failed").All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].ContextMap()["err"], "db down")

	// client errors are not logged as failures
	w = do(r, http.MethodGet, "/api/payments/status/ws_CO_missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, logs.FilterMessage("request_failed").All(), 1)
}
