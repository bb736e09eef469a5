package admin_log

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

type Store interface {
	Create(ctx context.Context, l *models.AdminLog) error
	List(ctx context.Context, req *types.ListRequest) ([]models.AdminLog, int64, error)
}

type Service struct {
	store Store
	log   *zap.SugaredLogger
}

func New(store Store, log *zap.SugaredLogger) *Service { return &Service{store: store, log: log} }

func newFromRepo(r *repository.AdminLogRepo, log *zap.SugaredLogger) *Service { return New(r, log) }

// Record asynchronously writes an audit entry. A failed write is logged and
// never fails the admin action.
func (s *Service) Record(ctx context.Context, adminID, action, targetType, targetID string, details map[string]any) {
	entry := &models.AdminLog{
		ID:         tool.GenerateUUIDV7(),
		AdminID:    adminID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		TraceID:    logctx.TraceID(ctx),
	}
	lg := logctx.FromCtx(ctx, s.log)
	go func() {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.store.Create(bg, entry); err != nil {
			lg.Errorf("failed to save admin log: %v", err)
		}
	}()
}

func (s *Service) List(ctx context.Context, req *types.ListRequest) ([]models.AdminLog, int64, error) {
	if err := types.ValidateFilters(req.Filters, repository.AdminLogListFields); err != nil {
		return nil, 0, apperr.InvalidErr(err.Error(), nil)
	}
	req.Normalize(repository.AdminLogListFields, "created_at")
	return s.store.List(ctx, req)
}

var Module = fx.Options(
	fx.Provide(newFromRepo),
)
