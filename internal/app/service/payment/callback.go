package payment

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/types"
)

// Outcome describes what applying a provider result did to a payment.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDuplicate means the payment already had this result.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored means the result conflicts with a final state, e.g. a
	// failure report for a confirmed payment.
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeInvalid   Outcome = "invalid"
)

// providerResult is a final answer from the provider, from a callback or a
// status query.
type providerResult struct {
	Success    bool
	ResultCode int
	ResultDesc string
	Receipt    string
	TxDate     *time.Time
	Amount     int64
	Raw        []byte
}

func resultFromCallback(cb *mpesa.StkCallback, raw []byte) providerResult {
	r := providerResult{
		Success:    cb.Success(),
		ResultCode: cb.Code(),
		ResultDesc: cb.ResultDesc,
		Receipt:    cb.ReceiptNumber(),
		Amount:     cb.Amount(),
		Raw:        raw,
	}
	if ts, ok := cb.TransactionDate(); ok {
		r.TxDate = &ts
	}
	return r
}

// HandleCallback processes one provider callback. It never returns an error:
// the provider is always told the callback was accepted, and failures are
// visible in the callback log and the payment row.
func (s *Service) HandleCallback(ctx context.Context, raw []byte) Outcome {
	lg := logctx.FromCtx(ctx, s.log)
	cb, parseErr := mpesa.ParseCallback(raw)
	logID := s.callbacks.Received(ctx, raw, cb)
	if parseErr != nil {
		lg.Warnw("payment_callback_invalid", "err", parseErr)
		s.metrics.Callback(string(OutcomeInvalid))
		s.callbacks.Finish(ctx, logID, "", string(OutcomeInvalid), parseErr)
		return OutcomeInvalid
	}
	lg = lg.With("checkout_request_id", cb.CheckoutRequestID, "merchant_request_id", cb.MerchantRequestID)
	lg.Infow("payment_callback_received", "result_code", cb.Code())

	p, err := s.locate(ctx, cb)
	if err != nil {
		outcome := OutcomeUnmatched
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			outcome = OutcomeInvalid
		}
		lg.Warnw("payment_callback_unmatched", "err", err)
		s.metrics.Callback(string(outcome))
		s.callbacks.Finish(ctx, logID, "", string(outcome), err)
		return outcome
	}

	outcome, err := s.apply(ctx, p, resultFromCallback(cb, raw))
	s.metrics.Callback(string(outcome))
	s.callbacks.Finish(ctx, logID, p.ID, string(outcome), err)
	if err != nil {
		lg.Errorw("payment_callback_apply_failed", "payment_id", p.ID, "err", err)
	}
	return outcome
}

// locate finds the payment by checkout id, then merchant request id, then
// by searching stored callback payloads.
func (s *Service) locate(ctx context.Context, cb *mpesa.StkCallback) (*models.Payment, error) {
	if cb.CheckoutRequestID != "" {
		p, err := s.payments.GetByCheckoutID(ctx, cb.CheckoutRequestID)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return p, err
		}
	}
	if cb.MerchantRequestID != "" {
		p, err := s.payments.GetByMerchantRequestID(ctx, cb.MerchantRequestID)
		if err == nil || !errors.Is(err, gorm.ErrRecordNotFound) {
			return p, err
		}
	}
	return s.payments.FindByCallbackFragment(ctx, cb.CheckoutRequestID, cb.MerchantRequestID)
}

// apply moves p to the result's final status. Only the caller whose
// conditional update wins runs provisioning.
func (s *Service) apply(ctx context.Context, p *models.Payment, r providerResult) (Outcome, error) {
	lg := logctx.FromCtx(ctx, s.log).With("payment_id", p.ID, "payment_type", p.PaymentType)
	now := s.now().UTC()
	code := r.ResultCode
	values := map[string]any{
		"result_code": code,
		"result_desc": r.ResultDesc,
	}
	if len(r.Raw) > 0 {
		values["callback_data"] = datatypes.JSON(r.Raw)
	}

	mismatch := r.Success && r.Amount > 0 && r.Amount != p.Amount
	var meta models.PaymentMetadata
	if mismatch {
		meta = *p.Meta()
		meta.PaidAmount = r.Amount
		values["metadata"] = jsonMeta(&meta)
	}

	target := types.PaymentStatusFailed
	if r.Success {
		target = types.PaymentStatusConfirmed
		values["confirmed_at"] = now
		if r.Receipt != "" {
			values["receipt_number"] = r.Receipt
		}
		if r.TxDate != nil {
			values["transaction_date"] = r.TxDate.UTC()
		}
	} else {
		values["failed_at"] = now
	}

	won, err := s.payments.Transition(ctx, p.ID, target, values)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !won {
		current, err := s.payments.Get(ctx, p.ID)
		if err != nil {
			return OutcomeIgnored, err
		}
		*p = *current
		if p.Status == target {
			if r.Success {
				s.backfill(ctx, p, r)
			}
			lg.Infow("payment_result_duplicate", "status", target)
			return OutcomeDuplicate, nil
		}
		lg.Warnw("payment_result_ignored", "status", p.Status, "reported", target)
		return OutcomeIgnored, nil
	}

	p.Status = target
	p.ResultCode = &code
	p.ResultDesc = r.ResultDesc
	if !r.Success {
		p.FailedAt = &now
		lg.Infow("payment_failed", "result_code", code, "result_desc", r.ResultDesc)
		return OutcomeFailed, nil
	}

	p.ConfirmedAt = &now
	if r.Receipt != "" {
		p.ReceiptNumber = &r.Receipt
	}
	p.TransactionDate = r.TxDate
	lg.Infow("payment_confirmed", "receipt_number", r.Receipt, "amount", p.Amount)
	if mismatch {
		p.Metadata = jsonMeta(&meta)
		s.alerts.AdminAlert(ctx, "Confirmed amount differs from requested amount", map[string]any{
			"payment_id": p.ID,
			"requested":  p.Amount,
			"paid":       r.Amount,
			"receipt":    r.Receipt,
		})
	}
	if _, err := s.provision.Run(ctx, p); err != nil {
		lg.Errorw("payment_provisioning_error", "err", err)
	}
	return OutcomeConfirmed, nil
}

// backfill stores the receipt details of a success that arrived after the
// payment was already confirmed without them, e.g. by a status query.
func (s *Service) backfill(ctx context.Context, p *models.Payment, r providerResult) {
	if p.ReceiptNumber != nil || (r.Receipt == "" && len(r.Raw) == 0) {
		return
	}
	values := map[string]any{}
	if r.Receipt != "" {
		values["receipt_number"] = r.Receipt
	}
	if r.TxDate != nil {
		values["transaction_date"] = r.TxDate.UTC()
	}
	if len(r.Raw) > 0 {
		values["callback_data"] = datatypes.JSON(r.Raw)
	}
	filled, err := s.payments.FillReceipt(ctx, p.ID, values)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("payment_receipt_backfill_failed", "payment_id", p.ID, "err", err)
		return
	}
	if !filled {
		return
	}
	if r.Receipt != "" {
		p.ReceiptNumber = &r.Receipt
	}
	if r.TxDate != nil {
		p.TransactionDate = r.TxDate
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_receipt_backfilled", "payment_id", p.ID, "receipt_number", r.Receipt)
}
