// Package repository is the gorm storage layer. Conditional updates here are
// the only place status transitions are made durable: a method that reports
// ok=false lost the race or found the row in a state the transition does not
// accept.
package repository

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/types"
)

type txKey struct{}

// Transactor runs fn in one database transaction. Repositories called with
// the ctx passed to fn join that transaction.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor { return &Transactor{db: db} }

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

func isNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// paginate applies filters, counts, sorts and pages a query that has already
// been scoped to its model.
func paginate[T any](q *gorm.DB, req *types.ListRequest) ([]T, int64, error) {
	q = q.Where(types.FiltersAnd(req.Filters))
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []T
	err := q.Order(clause.OrderByColumn{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}).
		Offset(req.From).
		Limit(req.Size).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

var Module = fx.Options(
	fx.Provide(
		NewTransactor,
		NewPaymentRepo,
		NewProfileRepo,
		NewMembershipRepo,
		NewEventRepo,
		NewOrderRepo,
		NewProductRepo,
		NewAuthUserRepo,
		NewCallbackLogRepo,
		NewAdminLogRepo,
		func(r *AuthUserRepo) identity.UserStore { return r },
	),
)
