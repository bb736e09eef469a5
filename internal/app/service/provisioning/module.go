package provisioning

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/membership"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/metrics"
	"github.com/fatflowers/alumni/pkg/types"
)

type deps struct {
	fx.In

	Payments    *repository.PaymentRepo
	Profiles    *repository.ProfileRepo
	Events      *repository.EventRepo
	Orders      *repository.OrderRepo
	Tx          *repository.Transactor
	Memberships *membership.Service
	IDP         identity.Provider
	Notifier    *notification.Notifier
	Metrics     *metrics.Business
	Log         *zap.SugaredLogger
}

func newDispatcher(d deps) *Dispatcher {
	handlers := map[types.PaymentType]Handler{
		types.PaymentTypeRegistration: NewRegistration(d.Payments, d.Profiles, d.Memberships, d.IDP, d.Notifier, d.Log),
		types.PaymentTypeRenewal:      NewRenewal(d.Profiles, d.Memberships, d.Notifier, d.Log),
		types.PaymentTypeEvent:        NewEvent(d.Events, d.Tx, d.Notifier, d.Log),
		types.PaymentTypeMerchandise:  NewMerchandise(d.Orders, d.Notifier, d.Log),
	}
	return NewDispatcher(d.Payments, handlers, d.Notifier, d.Metrics, d.Log)
}

var Module = fx.Options(
	fx.Provide(newDispatcher),
)
