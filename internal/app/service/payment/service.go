// Package payment owns the push-payment lifecycle: initiation, provider
// callbacks, status polling, manual activation and admin overrides. Every
// status change goes through a conditional update so that concurrent
// deliveries of the same outcome provision exactly once.
package payment

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/admin_log"
	"github.com/fatflowers/alumni/internal/app/service/callback_log"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/app/service/provisioning"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/metrics"
	"github.com/fatflowers/alumni/pkg/types"
)

var paymentListFields = repository.PaymentListFields

type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, id string) (*models.Payment, error)
	GetByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error)
	GetByMerchantRequestID(ctx context.Context, merchantID string) (*models.Payment, error)
	FindByCallbackFragment(ctx context.Context, ids ...string) (*models.Payment, error)
	FindReusableRegistration(ctx context.Context, email string) (*models.Payment, error)
	RecordPush(ctx context.Context, id, merchantID, checkoutID string) (bool, error)
	Transition(ctx context.Context, id string, target types.PaymentStatus, values map[string]any) (bool, error)
	UpdateFields(ctx context.Context, id string, values map[string]any) error
	// FillReceipt updates a confirmed payment that has no receipt number yet.
	FillReceipt(ctx context.Context, id string, values map[string]any) (bool, error)
	TouchQueried(ctx context.Context, id string, at time.Time) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
	ListUnprovisioned(ctx context.Context, before time.Time, maxAttempts, limit int) ([]models.Payment, error)
	ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error)
	List(ctx context.Context, req *types.ListRequest) ([]models.Payment, int64, error)
	ListForUser(ctx context.Context, userID, email string, limit int) ([]models.Payment, error)
}

type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
}

type Gateway interface {
	STKPush(ctx context.Context, in mpesa.STKPushRequest) (*mpesa.STKPushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type Provisioner interface {
	Run(ctx context.Context, p *models.Payment) (provisioning.Outcome, error)
}

type CallbackLog interface {
	Received(ctx context.Context, raw []byte, cb *mpesa.StkCallback) string
	Finish(ctx context.Context, id, paymentID, outcome string, handleErr error)
	History(ctx context.Context, checkoutID string) ([]models.PaymentCallbackLog, error)
}

type AdminAudit interface {
	Record(ctx context.Context, adminID, action, targetType, targetID string, details map[string]any)
}

type Alerter interface {
	AdminAlert(ctx context.Context, title string, details map[string]any)
}

type Deps struct {
	Payments  Store
	Profiles  ProfileStore
	Gateway   Gateway
	Provision Provisioner
	Callbacks CallbackLog
	Audit     AdminAudit
	Alerts    Alerter
	Metrics   *metrics.Business
	Log       *zap.SugaredLogger
}

type Service struct {
	payments  Store
	profiles  ProfileStore
	gateway   Gateway
	provision Provisioner
	callbacks CallbackLog
	audit     AdminAudit
	alerts    Alerter
	metrics   *metrics.Business
	log       *zap.SugaredLogger
	fees      config.FeesConfig
	grace     time.Duration
	now       func() time.Time
}

func New(d Deps, fees config.FeesConfig, grace time.Duration) *Service {
	return &Service{
		payments:  d.Payments,
		profiles:  d.Profiles,
		gateway:   d.Gateway,
		provision: d.Provision,
		callbacks: d.Callbacks,
		audit:     d.Audit,
		alerts:    d.Alerts,
		metrics:   d.Metrics,
		log:       d.Log,
		fees:      fees,
		grace:     grace,
		now:       time.Now,
	}
}

// SetClock replaces the clock used for timestamps and grace checks.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

type fxDeps struct {
	fx.In

	Cfg       *config.Config
	Payments  *repository.PaymentRepo
	Profiles  *repository.ProfileRepo
	Gateway   *mpesa.Client
	Provision *provisioning.Dispatcher
	Callbacks *callback_log.Service
	Audit     *admin_log.Service
	Notifier  *notification.Notifier
	Metrics   *metrics.Business
	Log       *zap.SugaredLogger
}

func newFromDeps(d fxDeps) *Service {
	return New(Deps{
		Payments:  d.Payments,
		Profiles:  d.Profiles,
		Gateway:   d.Gateway,
		Provision: d.Provision,
		Callbacks: d.Callbacks,
		Audit:     d.Audit,
		Alerts:    d.Notifier,
		Metrics:   d.Metrics,
		Log:       d.Log,
	}, d.Cfg.Fees, d.Cfg.Mpesa.QueryGrace)
}

var Module = fx.Options(
	fx.Provide(newFromDeps),
)
