package payment

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/service/provisioning"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/types"
)

type StatusView struct {
	PaymentID          string                   `json:"payment_id"`
	CheckoutRequestID  string                   `json:"checkout_request_id"`
	PaymentType        types.PaymentType        `json:"payment_type"`
	Status             types.PaymentStatus      `json:"status"`
	Amount             int64                    `json:"amount"`
	ReceiptNumber      string                   `json:"receipt_number,omitempty"`
	ResultDesc         string                   `json:"result_desc,omitempty"`
	ProvisioningStatus types.ProvisioningStatus `json:"provisioning_status"`
	ConfirmedAt        *time.Time               `json:"confirmed_at,omitempty"`
}

func viewOf(p *models.Payment) *StatusView {
	v := &StatusView{
		PaymentID:          p.ID,
		CheckoutRequestID:  p.CheckoutID(),
		PaymentType:        p.PaymentType,
		Status:             p.Status,
		Amount:             p.Amount,
		ResultDesc:         p.ResultDesc,
		ProvisioningStatus: p.ProvisioningStatus,
		ConfirmedAt:        p.ConfirmedAt,
	}
	if p.ReceiptNumber != nil {
		v.ReceiptNumber = *p.ReceiptNumber
	}
	return v
}

func (s *Service) getByCheckout(ctx context.Context, checkoutID string) (*models.Payment, error) {
	p, err := s.payments.GetByCheckoutID(ctx, checkoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("payment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return p, nil
}

// Status reports a payment's state. An open payment older than the grace
// period is checked with the provider first and any final answer is applied
// exactly as a callback would be.
func (s *Service) Status(ctx context.Context, checkoutID string) (*StatusView, error) {
	p, err := s.getByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if p.Status.Open() && s.queryDue(p) {
		s.query(ctx, p)
	}
	return viewOf(p), nil
}

func (s *Service) queryDue(p *models.Payment) bool {
	last := p.CreatedAt
	if p.LastQueriedAt != nil && p.LastQueriedAt.After(last) {
		last = *p.LastQueriedAt
	}
	return s.now().Sub(last) >= s.grace
}

// query asks the provider about p and applies a final answer. Provider
// errors leave p unchanged. It reports the outcome, or "" while pending.
func (s *Service) query(ctx context.Context, p *models.Payment) (Outcome, error) {
	lg := logctx.FromCtx(ctx, s.log).With("payment_id", p.ID, "checkout_request_id", p.CheckoutID())
	if p.CheckoutID() == "" {
		return "", nil
	}
	if err := s.payments.TouchQueried(ctx, p.ID, s.now().UTC()); err != nil {
		lg.Warnw("payment_touch_queried_failed", "err", err)
	}
	res, err := s.gateway.QueryStatus(ctx, p.CheckoutID())
	if err != nil {
		lg.Warnw("payment_status_query_failed", "err", err)
		return "", err
	}
	if res.Pending {
		lg.Infow("payment_status_pending")
		return "", nil
	}
	outcome, err := s.apply(ctx, p, providerResult{
		Success:    res.Success(),
		ResultCode: res.ResultCode,
		ResultDesc: res.ResultDesc,
	})
	lg.Infow("payment_status_queried", "outcome", outcome)
	return outcome, err
}

type ActivationResult struct {
	Payment      *StatusView          `json:"payment"`
	Provisioning provisioning.Outcome `json:"provisioning"`
}

// Activate completes registration or renewal provisioning for a payment whose
// callback was lost or whose provisioning failed. The provisioning claim
// makes repeated calls safe.
func (s *Service) Activate(ctx context.Context, checkoutID string) (*ActivationResult, error) {
	p, err := s.getByCheckout(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if p.PaymentType != types.PaymentTypeRegistration && p.PaymentType != types.PaymentTypeRenewal {
		return nil, apperr.InvalidErr("only registration and renewal payments can be activated", nil)
	}
	if p.Status.Open() {
		if _, err := s.query(ctx, p); err != nil {
			return nil, apperr.UnavailableErr(err)
		}
		// a confirmation applied by the query already ran provisioning
		if p.Status == types.PaymentStatusConfirmed {
			return &ActivationResult{Payment: viewOf(p), Provisioning: provisioning.Outcome(p.ProvisioningStatus)}, nil
		}
	}
	if p.Status != types.PaymentStatusConfirmed {
		return nil, apperr.ConflictErr("payment is not confirmed")
	}
	if p.ProvisioningStatus == types.ProvisioningStatusDone {
		return &ActivationResult{Payment: viewOf(p), Provisioning: provisioning.OutcomeDone}, nil
	}
	outcome, err := s.provision.Run(ctx, p)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("payment_activation_failed", "payment_id", p.ID, "err", err)
		return nil, apperr.Wrap(err)
	}
	return &ActivationResult{Payment: viewOf(p), Provisioning: outcome}, nil
}

type OverrideRequest struct {
	Status types.PaymentStatus `json:"status" binding:"required"`
	Reason string              `json:"reason" binding:"required,max=500"`
}

// Override lets an admin move a payment along the status machine. Confirming
// runs provisioning like a provider confirmation.
func (s *Service) Override(ctx context.Context, adminID, paymentID string, req OverrideRequest) (*models.Payment, error) {
	p, err := s.payments.Get(ctx, paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("payment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if !req.Status.Valid() {
		return nil, apperr.InvalidErr("unknown payment status", map[string]string{"status": string(req.Status)})
	}
	if _, err := p.Status.Transition(req.Status); err != nil {
		return nil, apperr.ConflictErr(err.Error())
	}

	now := s.now().UTC()
	meta := *p.Meta()
	meta.Override = &models.OverrideInfo{OperatorID: adminID, Reason: req.Reason, At: now}
	values := map[string]any{"metadata": jsonMeta(&meta)}
	switch req.Status {
	case types.PaymentStatusConfirmed:
		values["confirmed_at"] = now
	case types.PaymentStatusFailed:
		values["failed_at"] = now
		values["result_desc"] = "overridden: " + req.Reason
	}
	from := p.Status
	won, err := s.payments.Transition(ctx, p.ID, req.Status, values)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if !won {
		return nil, apperr.ConflictErr("payment changed while overriding, reload and try again")
	}
	s.audit.Record(ctx, adminID, "payment_override", "payment", p.ID, map[string]any{
		"from":   string(from),
		"to":     string(req.Status),
		"reason": req.Reason,
	})

	updated, err := s.payments.Get(ctx, p.ID)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if updated.Status == types.PaymentStatusConfirmed {
		if _, err := s.provision.Run(ctx, updated); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("payment_override_provisioning_failed", "payment_id", p.ID, "err", err)
		}
	}
	return updated, nil
}

type ReconcileReport struct {
	Checked       int   `json:"checked"`
	Confirmed     int   `json:"confirmed"`
	Failed        int   `json:"failed"`
	StillPending  int   `json:"still_pending"`
	Errors        int   `json:"errors"`
	Released      int64 `json:"released"`
	Reprovisioned int   `json:"reprovisioned"`
}

// maxProvisioningAttempts bounds automatic retries of failed provisioning.
const maxProvisioningAttempts = 3

// Reconcile queries the provider for open payments untouched since before
// and retries provisioning that never completed.
func (s *Service) Reconcile(ctx context.Context, before time.Time, limit int) (*ReconcileReport, error) {
	lg := logctx.FromCtx(ctx, s.log)
	report := &ReconcileReport{}

	stale, err := s.payments.ListStale(ctx, before, limit)
	if err != nil {
		return nil, err
	}
	for i := range stale {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		p := &stale[i]
		report.Checked++
		outcome, err := s.query(ctx, p)
		switch {
		case err != nil:
			report.Errors++
			s.metrics.Reconciled("error")
		case outcome == OutcomeConfirmed:
			report.Confirmed++
			s.metrics.Reconciled("confirmed")
		case outcome == OutcomeFailed:
			report.Failed++
			s.metrics.Reconciled("failed")
		default:
			report.StillPending++
			s.metrics.Reconciled("pending")
		}
	}

	released, err := s.payments.ReleaseStaleClaims(ctx, before)
	if err != nil {
		return report, err
	}
	report.Released = released

	unprovisioned, err := s.payments.ListUnprovisioned(ctx, before, maxProvisioningAttempts, limit)
	if err != nil {
		return report, err
	}
	for i := range unprovisioned {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		outcome, err := s.provision.Run(ctx, &unprovisioned[i])
		if err == nil && outcome == provisioning.OutcomeDone {
			report.Reprovisioned++
		}
	}
	lg.Infow("payment_reconcile_finished",
		"checked", report.Checked,
		"confirmed", report.Confirmed,
		"failed", report.Failed,
		"pending", report.StillPending,
		"errors", report.Errors,
		"reprovisioned", report.Reprovisioned,
	)
	return report, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.payments.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundErr("payment not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return p, nil
}

// CallbackHistory lists the provider deliveries received for a payment.
func (s *Service) CallbackHistory(ctx context.Context, id string) ([]models.PaymentCallbackLog, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.callbacks.History(ctx, p.CheckoutID())
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return logs, nil
}

type ListResponse struct {
	Items []models.Payment `json:"items"`
	Total int64            `json:"total"`
}

func (s *Service) List(ctx context.Context, req *types.ListRequest) (*ListResponse, error) {
	if err := types.ValidateFilters(req.Filters, paymentListFields); err != nil {
		return nil, apperr.InvalidErr(err.Error(), nil)
	}
	req.Normalize(paymentListFields, "created_at")
	items, total, err := s.payments.List(ctx, req)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return &ListResponse{Items: items, Total: total}, nil
}

func (s *Service) ListForUser(ctx context.Context, userID, email string) ([]models.Payment, error) {
	items, err := s.payments.ListForUser(ctx, userID, email, 100)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return items, nil
}
