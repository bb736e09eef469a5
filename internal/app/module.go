package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/alumni/internal/app/api/server"
	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/admin_log"
	"github.com/fatflowers/alumni/internal/app/service/auth"
	"github.com/fatflowers/alumni/internal/app/service/callback_log"
	"github.com/fatflowers/alumni/internal/app/service/event"
	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/app/service/membership"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/app/service/provisioning"
	"github.com/fatflowers/alumni/internal/app/service/shop"
	"github.com/fatflowers/alumni/internal/app/service/statistics"
	"github.com/fatflowers/alumni/internal/app/worker"
	"github.com/fatflowers/alumni/internal/platform/db"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/internal/platform/mailer"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/internal/platform/storage"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logger"
	"github.com/fatflowers/alumni/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core is everything except the listeners and the worker loops, for
// one-shot commands.
var Core = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	repository.Module,
	mailer.Module,
	storage.Module,
	mpesa.Module,
	identity.Module,
	notification.Module,
	admin_log.Module,
	callback_log.Module,
	membership.Module,
	provisioning.Module,
	payment.Module,
	member.Module,
	event.Module,
	shop.Module,
	statistics.Module,
	auth.Module,
	worker.Providers,
)

var Module = fx.Options(
	Core,
	worker.Module,
	server.Module,
)
