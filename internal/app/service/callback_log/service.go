package callback_log

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
)

type Store interface {
	Create(ctx context.Context, l *models.PaymentCallbackLog) error
	Finish(ctx context.Context, id string, values map[string]any) error
	ListByCheckoutID(ctx context.Context, checkoutID string) ([]models.PaymentCallbackLog, error)
}

type Service struct {
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New(store Store, log *zap.SugaredLogger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

func newFromRepo(r *repository.CallbackLogRepo, log *zap.SugaredLogger) *Service { return New(r, log) }

// Received persists the raw payload before anything else touches it. cb may
// be nil when the body did not parse. The returned id is empty if the write
// failed; the callback is still processed.
func (s *Service) Received(ctx context.Context, raw []byte, cb *mpesa.StkCallback) string {
	entry := &models.PaymentCallbackLog{
		ID:         tool.GenerateUUIDV7(),
		TraceID:    logctx.TraceID(ctx),
		ReceivedAt: s.now(),
		Status:     models.PaymentCallbackLogStatusReceived,
	}
	if json.Valid(raw) {
		entry.Data = raw
	} else {
		quoted, _ := json.Marshal(string(raw))
		entry.Data = quoted
	}
	if cb != nil {
		entry.CheckoutRequestID = cb.CheckoutRequestID
		entry.MerchantRequestID = cb.MerchantRequestID
		code := cb.Code()
		entry.ResultCode = &code
	}
	if err := s.store.Create(ctx, entry); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("callback_log_save_failed", "err", err)
		return ""
	}
	return entry.ID
}

// Finish asynchronously records how the callback was handled. Empty id is ignored.
func (s *Service) Finish(ctx context.Context, id, paymentID, outcome string, handleErr error) {
	if id == "" {
		return
	}
	values := map[string]any{
		"outcome": outcome,
		"status":  models.PaymentCallbackLogStatusHandled,
	}
	if paymentID != "" {
		values["payment_id"] = paymentID
	}
	if handleErr != nil {
		values["status"] = models.PaymentCallbackLogStatusHandleFailed
		values["error"] = handleErr.Error()
	}
	lg := logctx.FromCtx(ctx, s.log)
	go func() {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.store.Finish(bg, id, values); err != nil {
			lg.Errorf("failed to finish callback log: %v", err)
		}
	}()
}

// History returns every delivery stored for a checkout id, oldest first.
func (s *Service) History(ctx context.Context, checkoutID string) ([]models.PaymentCallbackLog, error) {
	if checkoutID == "" {
		return []models.PaymentCallbackLog{}, nil
	}
	return s.store.ListByCheckoutID(ctx, checkoutID)
}

var Module = fx.Options(
	fx.Provide(newFromRepo),
)
