package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/docs"
	"github.com/fatflowers/alumni/internal/app/api/handlers"
	mw "github.com/fatflowers/alumni/internal/app/api/middleware"
	"github.com/fatflowers/alumni/internal/app/service/admin_log"
	"github.com/fatflowers/alumni/internal/app/service/auth"
	"github.com/fatflowers/alumni/internal/app/service/event"
	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/app/service/shop"
	"github.com/fatflowers/alumni/internal/app/service/statistics"
	"github.com/fatflowers/alumni/internal/app/worker"
	"github.com/fatflowers/alumni/internal/platform/identity"
	cfgpkg "github.com/fatflowers/alumni/pkg/config"
	metrics "github.com/fatflowers/alumni/pkg/metrics"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	if cfg.Env == cfgpkg.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.UseJSONFieldNames()
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware(), mw.CORS(cfg.Server.AllowedOrigins))
	return r
}

func newHTTPMetrics(log *zap.SugaredLogger) *metrics.HTTP {
	return metrics.NewHTTP(metrics.HTTPOptions{Logger: log})
}

func newAuth(idp identity.Provider, svc *auth.Service, log *zap.SugaredLogger) *mw.Auth {
	return mw.NewAuth(idp, svc.Policy(), log)
}

type routeDeps struct {
	fx.In

	Engine  *gin.Engine
	Log     *zap.SugaredLogger
	Cfg     *cfgpkg.Config
	DB      *gorm.DB
	Metrics *metrics.HTTP
	Guard   *mw.Auth

	Auth       *auth.Service
	Payments   *payment.Service
	Members    *member.Service
	Events     *event.Service
	Shop       *shop.Service
	Stats      *statistics.Service
	AdminLogs  *admin_log.Service
	Reconciler *worker.Reconciliation
}

func registerRoutes(d routeDeps) {
	r, log := d.Engine, d.Log
	if d.Cfg.MetricsAddr != "" {
		r.Use(d.Metrics.HandlerFunc())
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))
	handlers.RegisterHealthRoutes(pub, handlers.DBPinger{DB: d.DB}, log)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	api.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log))

	handlers.RegisterPaymentRoutes(api, d.Payments, d.Payments, d.Cfg.Mpesa.CallbackToken, log)
	handlers.RegisterCatalogRoutes(api, d.Events, d.Shop)
	handlers.RegisterAuthRoutes(api.Group("/auth"), d.Auth, d.Guard.Required())

	// guests may buy tickets and merchandise; signed-in members get their profile applied
	checkout := api.Group("", d.Guard.Optional())
	handlers.RegisterCheckoutRoutes(checkout, d.Events, d.Shop)
	handlers.RegisterRetryRoutes(checkout, d.Payments)

	handlers.RegisterMeRoutes(api.Group("", d.Guard.Required()), d.Members, handlers.History{
		PaymentsFn: d.Payments.ListForUser,
		OrdersFn:   d.Shop.OrdersForUser,
		EventsFn:   d.Events.RegistrationsForUser,
	}, d.Payments)

	handlers.RegisterAdminRoutes(api.Group("/admin", d.Guard.Required(), mw.RequireAdmin()), handlers.AdminDeps{
		Members:  d.Members,
		Payments: d.Payments,
		Sweeper:  d.Reconciler,
		Events:   d.Events,
		Shop:     d.Shop,
		Stats:    d.Stats,
		Logs:     d.AdminLogs,
	})
}

func serve(lc fx.Lifecycle, log *zap.SugaredLogger, name, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting "+name+" server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("%s server error: %v", name, err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping " + name + " server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	serve(lc, log, "HTTP", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), r)
}

// runMetrics exposes /metrics on its own listener so scrapes stay off the
// public port.
func runMetrics(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, m *metrics.HTTP) {
	if cfg.MetricsAddr == "" {
		return
	}
	serve(lc, log, "metrics", cfg.MetricsAddr, m.Router())
}

var Module = fx.Options(
	fx.Provide(newEngine, newHTTPMetrics, newAuth),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer, runMetrics),
)
