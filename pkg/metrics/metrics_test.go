package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBusiness_CountsAndNilSafe(t *testing.T) {
	reg := prometheus.NewRegistry()
	b, err := NewBusiness(reg)
	require.NoError(t, err)

	b.STKPush("event", "ok")
	b.STKPush("event", "ok")
	b.Callback("confirmed")
	b.ObserveProvider("stk_push", time.Now(), nil)
	require.Equal(t, float64(2), testutil.ToFloat64(b.stkPush.WithLabelValues("event", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(b.callback.WithLabelValues("confirmed")))

	var nilB *Business
	require.NotPanics(t, func() {
		nilB.STKPush("x", "y")
		nilB.Reconciled("confirmed")
	})
}

func TestHTTP_MiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewHTTP(HTTPOptions{Registerer: reg, Gatherer: reg})

	r := gin.New()
	r.Use(p.HandlerFunc())
	r.GET("/api/events/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, float64(2), testutil.ToFloat64(p.reqCnt.WithLabelValues("200", "GET", "/api/events/:id", "")))

	w := httptest.NewRecorder()
	p.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "alumni_http_req_total"))
}
