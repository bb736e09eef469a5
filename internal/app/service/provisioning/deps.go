package provisioning

import (
	"context"

	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

type PaymentStore interface {
	UpdateFields(ctx context.Context, id string, values map[string]any) error
}

type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Update(ctx context.Context, id string, values map[string]any) error
	TransitionStatus(ctx context.Context, id string, next types.ProfileStatus) error
}

type Memberships interface {
	CreateNumbered(ctx context.Context, p *models.Profile) error
	AssignNumber(ctx context.Context, p *models.Profile) error
	Start(ctx context.Context, profileID, paymentID string) (*models.Membership, error)
	Extend(ctx context.Context, profileID, paymentID string) (*models.Membership, error)
}

type EventStore interface {
	Get(ctx context.Context, id string) (*models.Event, error)
	GetRegistrationByPayment(ctx context.Context, paymentID string) (*models.EventRegistration, error)
	CreateRegistration(ctx context.Context, reg *models.EventRegistration) error
	IncrementAttendees(ctx context.Context, id string) (bool, error)
}

type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Transition(ctx context.Context, id string, next types.OrderStatus, values map[string]any) (bool, error)
}

type Notifier interface {
	Send(ctx context.Context, t notification.Template, to, toName string, data any) error
	AdminAlert(ctx context.Context, title string, details map[string]any)
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
