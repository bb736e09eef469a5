package memstore

import (
	"context"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

func page[T any](all []T, req *types.ListRequest) ([]T, int64) {
	from := min(req.From, len(all))
	to := min(from+req.Size, len(all))
	return all[from:to], int64(len(all))
}

func (r *Events) Update(_ context.Context, id string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *e
	if err := apply(&cp, values); err != nil {
		return err
	}
	r.db.events[id] = &cp
	return nil
}

func (r *Events) sorted(match func(e *models.Event) bool) []models.Event {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Event
	for _, e := range r.db.events {
		if match(e) {
			out = append(out, *e)
		}
	}
	slices.SortFunc(out, func(a, b models.Event) int { return a.StartsAt.Compare(b.StartsAt) })
	return out
}

func (r *Events) List(_ context.Context, req *types.ListRequest) ([]models.Event, int64, error) {
	items, total := page(r.sorted(func(*models.Event) bool { return true }), req)
	return items, total, nil
}

func (r *Events) ListPublished(_ context.Context, from time.Time, limit int) ([]models.Event, error) {
	out := r.sorted(func(e *models.Event) bool {
		return e.Status == types.EventStatusPublished && !e.StartsAt.Before(from)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Events) ListRegistrationsByUser(_ context.Context, userID, email string) ([]models.EventRegistration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.EventRegistration
	for _, reg := range r.db.registrations {
		owned := reg.UserID != nil && userID != "" && *reg.UserID == userID
		if owned || (email != "" && strings.EqualFold(reg.AttendeeEmail, email)) {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *Orders) List(_ context.Context, req *types.ListRequest) ([]models.Order, int64, error) {
	r.db.mu.Lock()
	var all []models.Order
	for _, o := range r.db.orders {
		all = append(all, *o)
	}
	r.db.mu.Unlock()
	slices.SortFunc(all, func(a, b models.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	items, total := page(all, req)
	return items, total, nil
}

func (r *Orders) ListByUser(_ context.Context, userID string, limit int) ([]models.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Order
	for _, o := range r.db.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Products keeps variants inline on their product.
type Products struct{ db *DB }

func (db *DB) Products() *Products { return &Products{db} }

func cloneProduct(p *models.Product) *models.Product {
	cp := *p
	cp.Variants = slices.Clone(p.Variants)
	return &cp
}

func (r *Products) Create(_ context.Context, p *models.Product) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.products[p.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	r.db.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *Products) Get(_ context.Context, id string) (*models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneProduct(p), nil
}

func (r *Products) Update(_ context.Context, id string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := cloneProduct(p)
	if err := apply(cp, values); err != nil {
		return err
	}
	r.db.products[id] = cp
	return nil
}

func (r *Products) List(_ context.Context, activeOnly bool) ([]models.Product, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Product
	for _, p := range r.db.products {
		if !activeOnly || p.Active {
			out = append(out, *cloneProduct(p))
		}
	}
	slices.SortFunc(out, func(a, b models.Product) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *Products) CreateVariant(_ context.Context, v *models.ProductVariant) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[v.ProductID]
	if !ok {
		return gorm.ErrForeignKeyViolated
	}
	cp := cloneProduct(p)
	cp.Variants = append(cp.Variants, *v)
	r.db.products[p.ID] = cp
	return nil
}

func (r *Products) variantIndex(p *models.Product, variantID string) int {
	return slices.IndexFunc(p.Variants, func(v models.ProductVariant) bool { return v.ID == variantID })
}

func (r *Products) UpdateVariant(_ context.Context, productID, variantID string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[productID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	i := r.variantIndex(p, variantID)
	if i < 0 {
		return gorm.ErrRecordNotFound
	}
	cp := cloneProduct(p)
	if err := apply(&cp.Variants[i], values); err != nil {
		return err
	}
	r.db.products[productID] = cp
	return nil
}

func (r *Products) DeleteVariant(_ context.Context, productID, variantID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.products[productID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	i := r.variantIndex(p, variantID)
	if i < 0 {
		return gorm.ErrRecordNotFound
	}
	cp := cloneProduct(p)
	cp.Variants = slices.Delete(cp.Variants, i, i+1)
	r.db.products[productID] = cp
	return nil
}

func (r *Profiles) ExpireActive(ctx context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, p := range r.db.profiles {
		m, ok := r.db.memberships[id]
		if p.Status == types.ProfileStatusActive && ok && m.ExpiryDate.Before(now) {
			cp := *p
			cp.Status = types.ProfileStatusExpired
			r.db.profiles[id] = &cp
			n++
		}
	}
	return n, nil
}

func (r *Profiles) CountByStatus(_ context.Context, status types.ProfileStatus) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, p := range r.db.profiles {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *Memberships) CountActive(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, m := range r.db.memberships {
		if m.Status == types.MembershipStatusActive && !m.ExpiryDate.Before(now) {
			n++
		}
	}
	return n, nil
}

type AdminLogs struct{ db *DB }

func (db *DB) AdminLogs() *AdminLogs { return &AdminLogs{db} }

func (r *AdminLogs) Create(_ context.Context, l *models.AdminLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *l
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.db.adminLogs[l.ID] = &cp
	return nil
}

func (r *AdminLogs) List(_ context.Context, req *types.ListRequest) ([]models.AdminLog, int64, error) {
	r.db.mu.Lock()
	var all []models.AdminLog
	for _, l := range r.db.adminLogs {
		all = append(all, *l)
	}
	r.db.mu.Unlock()
	slices.SortFunc(all, func(a, b models.AdminLog) int { return b.CreatedAt.Compare(a.CreatedAt) })
	items, total := page(all, req)
	return items, total, nil
}
