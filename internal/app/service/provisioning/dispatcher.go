// Package provisioning grants whatever a confirmed payment bought. It runs at
// most once per successful claim on the payment row.
package provisioning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/metrics"
	"github.com/fatflowers/alumni/pkg/types"
)

// ErrSkipped marks a payment whose referenced entity no longer exists.
// Nothing is granted and no alert is raised.
var ErrSkipped = errors.New("provisioning skipped")

type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
	OutcomeNotClaimed Outcome = "not_claimed"
)

type Handler interface {
	Provision(ctx context.Context, p *models.Payment) error
}

type ClaimStore interface {
	ClaimProvisioning(ctx context.Context, id string) (bool, error)
	FinishProvisioning(ctx context.Context, id string, status types.ProvisioningStatus, errText string) error
}

type Alerter interface {
	AdminAlert(ctx context.Context, title string, details map[string]any)
}

type Dispatcher struct {
	claims   ClaimStore
	handlers map[types.PaymentType]Handler
	alerts   Alerter
	metrics  *metrics.Business
	log      *zap.SugaredLogger
}

func NewDispatcher(claims ClaimStore, handlers map[types.PaymentType]Handler, alerts Alerter, m *metrics.Business, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{claims: claims, handlers: handlers, alerts: alerts, metrics: m, log: log}
}

// Run claims the payment and invokes the handler for its type. A handler
// error is recorded on the payment and sent to the admin inbox; it is
// returned for logging only and never undoes the confirmation.
func (d *Dispatcher) Run(ctx context.Context, p *models.Payment) (Outcome, error) {
	lg := logctx.FromCtx(ctx, d.log).With("payment_id", p.ID, "payment_type", p.PaymentType)

	claimed, err := d.claims.ClaimProvisioning(ctx, p.ID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("claim provisioning: %w", err)
	}
	if !claimed {
		lg.Infow("provisioning_not_claimed")
		return OutcomeNotClaimed, nil
	}

	h, ok := d.handlers[p.PaymentType]
	if !ok {
		err = fmt.Errorf("no provisioning handler for type %q", p.PaymentType)
	} else {
		err = d.safeProvision(ctx, h, p)
	}

	switch {
	case err == nil:
		d.finish(ctx, lg, p, types.ProvisioningStatusDone, "")
		d.metrics.Provisioned(string(p.PaymentType), string(OutcomeDone))
		lg.Infow("provisioning_done")
		return OutcomeDone, nil
	case errors.Is(err, ErrSkipped):
		d.finish(ctx, lg, p, types.ProvisioningStatusSkipped, err.Error())
		d.metrics.Provisioned(string(p.PaymentType), string(OutcomeSkipped))
		lg.Warnw("provisioning_skipped", "reason", err)
		return OutcomeSkipped, nil
	default:
		d.finish(ctx, lg, p, types.ProvisioningStatusFailed, err.Error())
		d.metrics.Provisioned(string(p.PaymentType), string(OutcomeFailed))
		lg.Errorw("provisioning_failed", "err", err)
		d.alerts.AdminAlert(ctx, "Payment provisioning failed", map[string]any{
			"payment_id":          p.ID,
			"payment_type":        string(p.PaymentType),
			"checkout_request_id": p.CheckoutID(),
			"email":               p.Email,
			"amount":              p.Amount,
			"error":               err.Error(),
		})
		return OutcomeFailed, err
	}
}

func (d *Dispatcher) safeProvision(ctx context.Context, h Handler, p *models.Payment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provisioning panic: %v", r)
		}
	}()
	return h.Provision(ctx, p)
}

func (d *Dispatcher) finish(ctx context.Context, lg *zap.SugaredLogger, p *models.Payment, status types.ProvisioningStatus, errText string) {
	if err := d.claims.FinishProvisioning(context.WithoutCancel(ctx), p.ID, status, errText); err != nil {
		lg.Errorw("provisioning_finish_failed", "status", status, "err", err)
		return
	}
	p.ProvisioningStatus = status
	p.ProvisioningError = errText
}

func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrSkipped}, args...)...)
}
