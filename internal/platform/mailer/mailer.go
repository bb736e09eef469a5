package mailer

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/pkg/config"
)

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type Email struct {
	To       string
	ToName   string
	Subject  string
	TextBody string
	HTMLBody string
	// Category tags the message at the provider, e.g. "welcome".
	Category string
}

func newFromConfig(cfg *config.Config, log *zap.SugaredLogger) Mailer {
	switch cfg.Mail.Provider {
	case "api":
		return NewAPI(cfg.Mail, log)
	default:
		log.Infow("mail provider is log only", "provider", cfg.Mail.Provider)
		return NewLog(log)
	}
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
