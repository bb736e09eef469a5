// Package worker runs the periodic background jobs: payment reconciliation
// and membership expiry.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
)

type Reconciler interface {
	Reconcile(ctx context.Context, before time.Time, limit int) (*payment.ReconcileReport, error)
}

type MembershipExpirer interface {
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
}

type ProfileExpirer interface {
	ExpireActive(ctx context.Context, now time.Time) (int64, error)
}

// Reconciliation sweeps payments the provider never called back about.
type Reconciliation struct {
	payments   Reconciler
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewReconciliation(payments Reconciler, cfg config.WorkerConfig, log *zap.SugaredLogger) *Reconciliation {
	return &Reconciliation{
		payments:   payments,
		interval:   cfg.ReconcileInterval,
		staleAfter: cfg.StaleAfter,
		batch:      cfg.BatchSize,
		log:        log,
		now:        time.Now,
	}
}

func (w *Reconciliation) SetClock(now func() time.Time) { w.now = now }

// RunOnce reconciles payments untouched for longer than stale_after.
func (w *Reconciliation) RunOnce(ctx context.Context) (*payment.ReconcileReport, error) {
	return w.payments.Reconcile(ctx, w.now().Add(-w.staleAfter), w.batch)
}

func (w *Reconciliation) Run(ctx context.Context) {
	loop(ctx, w.log, "payment_reconcile", w.interval, func(ctx context.Context) error {
		_, err := w.RunOnce(ctx)
		return err
	})
}

// Expiry closes lapsed membership windows and marks their profiles expired.
type Expiry struct {
	memberships MembershipExpirer
	profiles    ProfileExpirer
	interval    time.Duration
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewExpiry(memberships MembershipExpirer, profiles ProfileExpirer, cfg config.WorkerConfig, log *zap.SugaredLogger) *Expiry {
	return &Expiry{memberships: memberships, profiles: profiles, interval: cfg.ExpiryInterval, log: log, now: time.Now}
}

func (w *Expiry) SetClock(now func() time.Time) { w.now = now }

type ExpiryReport struct {
	Memberships int64 `json:"memberships"`
	Profiles    int64 `json:"profiles"`
}

// RunOnce expires profiles before memberships so both see the same cut-off.
func (w *Expiry) RunOnce(ctx context.Context) (*ExpiryReport, error) {
	now := w.now()
	profiles, err := w.profiles.ExpireActive(ctx, now)
	if err != nil {
		return nil, err
	}
	memberships, err := w.memberships.ExpireLapsed(ctx, now)
	if err != nil {
		return &ExpiryReport{Profiles: profiles}, err
	}
	report := &ExpiryReport{Memberships: memberships, Profiles: profiles}
	if memberships > 0 || profiles > 0 {
		logctx.FromCtx(ctx, w.log).Infow("membership_expiry_finished", "memberships", memberships, "profiles", profiles)
	}
	return report, nil
}

func (w *Expiry) Run(ctx context.Context) {
	loop(ctx, w.log, "membership_expiry", w.interval, func(ctx context.Context) error {
		_, err := w.RunOnce(ctx)
		return err
	})
}

// loop runs job every interval until ctx is done. A non-positive interval
// disables the job.
func loop(ctx context.Context, log *zap.SugaredLogger, name string, interval time.Duration, job func(ctx context.Context) error) {
	if interval <= 0 {
		log.Infow("worker_disabled", "worker", name)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Infow("worker_started", "worker", name, "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			log.Infow("worker_stopped", "worker", name)
			return
		case <-ticker.C:
			runCtx := logctx.WithTraceID(ctx, tool.GenerateUUIDV7())
			if err := job(runCtx); err != nil && ctx.Err() == nil {
				logctx.FromCtx(runCtx, log).Errorw("worker_run_failed", "worker", name, "err", err)
			}
		}
	}
}

func newReconciliation(p *payment.Service, cfg *config.Config, log *zap.SugaredLogger) *Reconciliation {
	return NewReconciliation(p, cfg.Worker, log)
}

func newExpiry(m *repository.MembershipRepo, p *repository.ProfileRepo, cfg *config.Config, log *zap.SugaredLogger) *Expiry {
	return NewExpiry(m, p, cfg.Worker, log)
}

// runWorkers ties both loops to the application lifecycle.
func runWorkers(lc fx.Lifecycle, r *Reconciliation, e *Expiry) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(2)
			go func() { defer wg.Done(); r.Run(ctx) }()
			go func() { defer wg.Done(); e.Run(ctx) }()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() { wg.Wait(); close(done) }()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Providers builds the workers without starting their loops.
var Providers = fx.Provide(newReconciliation, newExpiry)

// Module runs both loops for the lifetime of the app; it needs Providers.
var Module = fx.Options(
	fx.Invoke(runWorkers),
)
