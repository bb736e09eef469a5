package provisioning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/types"
)

type Merchandise struct {
	orders OrderStore
	notify Notifier
	log    *zap.SugaredLogger
}

func NewMerchandise(orders OrderStore, notify Notifier, log *zap.SugaredLogger) *Merchandise {
	return &Merchandise{orders: orders, notify: notify, log: log}
}

func (h *Merchandise) Provision(ctx context.Context, p *models.Payment) error {
	orderID := p.Meta().OrderID
	if orderID == "" {
		return skipf("merchandise payment %s has no order id", p.ID)
	}
	order, err := h.orders.Get(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return skipf("order %s not found", orderID)
	}
	if err != nil {
		return fmt.Errorf("lookup order: %w", err)
	}

	ok, err := h.orders.Transition(ctx, order.ID, types.OrderStatusProcessing, map[string]any{"payment_id": p.ID})
	if err != nil {
		return fmt.Errorf("advance order: %w", err)
	}
	if !ok {
		current, err := h.orders.Get(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		if paidBy(current, p.ID) {
			return nil
		}
		return fmt.Errorf("order %s is %s and cannot move to processing", current.ID, current.Status)
	}
	logctx.FromCtx(ctx, h.log).Infow("order_paid", "order_id", order.ID)

	_ = h.notify.Send(ctx, notification.TemplateMerchandiseOrder, firstNonEmpty(order.Email, p.Email), order.ShippingName, notification.MerchandiseOrderData{
		Name:    firstNonEmpty(order.ShippingName, order.Email),
		OrderID: order.ID,
		Items:   order.Items.Data(),
		Total:   order.Total,
		Receipt: receipt(p),
	})
	return nil
}

// paidBy reports whether the order was already advanced by this payment. The
// payment id is linked when the order is placed, so fulfilment status decides.
func paidBy(o *models.Order, paymentID string) bool {
	if o.PaymentID == nil || *o.PaymentID != paymentID {
		return false
	}
	switch o.Status {
	case types.OrderStatusProcessing, types.OrderStatusShipped, types.OrderStatusDelivered:
		return true
	}
	return false
}
