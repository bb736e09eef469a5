// Package memstore is an in-memory stand-in for the repository layer used by
// service tests. Conditional updates follow the same rules as the SQL ones.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

var schemaCache sync.Map

// apply writes column-keyed values onto dst using gorm's own field setters.
func apply(dst any, values map[string]any) error {
	s, err := schema.Parse(dst, &schemaCache, schema.NamingStrategy{})
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(dst).Elem()
	for col, v := range values {
		f := s.LookUpField(col)
		if f == nil {
			return fmt.Errorf("memstore: unknown column %q on %s", col, s.Table)
		}
		// fresh pointee so earlier copies of the row are not mutated
		if f.FieldType.Kind() == reflect.Ptr {
			f.ReflectValueOf(context.Background(), rv).Set(reflect.Zero(f.FieldType))
		}
		if err := f.Set(context.Background(), rv, v); err != nil {
			return fmt.Errorf("memstore: set %s: %w", col, err)
		}
	}
	if f := s.LookUpField("updated_at"); f != nil {
		return f.Set(context.Background(), rv, time.Now().UTC())
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

// DB holds every table. InTx snapshots the tables and restores them when fn fails.
type DB struct {
	mu            sync.Mutex
	payments      map[string]*models.Payment
	profiles      map[string]*models.Profile
	memberships   map[string]*models.Membership
	events        map[string]*models.Event
	registrations map[string]*models.EventRegistration
	orders        map[string]*models.Order
	products      map[string]*models.Product
	authUsers     map[string]*models.AuthUser
	callbackLogs  map[string]*models.PaymentCallbackLog
	adminLogs     map[string]*models.AdminLog
}

func New() *DB {
	return &DB{
		payments:      map[string]*models.Payment{},
		profiles:      map[string]*models.Profile{},
		memberships:   map[string]*models.Membership{},
		events:        map[string]*models.Event{},
		registrations: map[string]*models.EventRegistration{},
		orders:        map[string]*models.Order{},
		products:      map[string]*models.Product{},
		authUsers:     map[string]*models.AuthUser{},
		callbackLogs:  map[string]*models.PaymentCallbackLog{},
		adminLogs:     map[string]*models.AdminLog{},
	}
}

func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	snap := &DB{
		payments:      cloneMap(db.payments),
		profiles:      cloneMap(db.profiles),
		memberships:   cloneMap(db.memberships),
		events:        cloneMap(db.events),
		registrations: cloneMap(db.registrations),
		orders:        cloneMap(db.orders),
		products:      cloneMap(db.products),
		authUsers:     cloneMap(db.authUsers),
	}
	db.mu.Unlock()
	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.payments, db.profiles, db.memberships = snap.payments, snap.profiles, snap.memberships
		db.events, db.registrations, db.orders = snap.events, snap.registrations, snap.orders
		db.products, db.authUsers = snap.products, snap.authUsers
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *DB) Payments() *Payments       { return &Payments{db} }
func (db *DB) Profiles() *Profiles       { return &Profiles{db} }
func (db *DB) Memberships() *Memberships { return &Memberships{db} }
func (db *DB) Events() *Events           { return &Events{db} }
func (db *DB) Orders() *Orders           { return &Orders{db} }
func (db *DB) AuthUsers() *AuthUsers     { return &AuthUsers{db} }
func (db *DB) CallbackLogs() *CallbackLogs {
	return &CallbackLogs{db}
}

type Payments struct{ db *DB }

func (r *Payments) Create(_ context.Context, p *models.Payment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.payments[p.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if c := p.CheckoutID(); c != "" {
		for _, other := range r.db.payments {
			if other.CheckoutID() == c {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	r.db.payments[p.ID] = &cp
	return nil
}

func (r *Payments) find(match func(p *models.Payment) bool) (*models.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var best *models.Payment
	for _, p := range r.db.payments {
		if match(p) && (best == nil || p.CreatedAt.After(best.CreatedAt)) {
			best = p
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *Payments) Get(_ context.Context, id string) (*models.Payment, error) {
	return r.find(func(p *models.Payment) bool { return p.ID == id })
}

func (r *Payments) GetByCheckoutID(_ context.Context, checkoutID string) (*models.Payment, error) {
	return r.find(func(p *models.Payment) bool { return p.CheckoutID() == checkoutID })
}

func (r *Payments) GetByMerchantRequestID(_ context.Context, merchantID string) (*models.Payment, error) {
	return r.find(func(p *models.Payment) bool {
		return p.MerchantRequestID != nil && *p.MerchantRequestID == merchantID
	})
}

func (r *Payments) FindByCallbackFragment(_ context.Context, ids ...string) (*models.Payment, error) {
	return r.find(func(p *models.Payment) bool {
		for _, id := range ids {
			if id != "" && len(p.CallbackData) > 0 && strings.Contains(string(p.CallbackData), id) {
				return true
			}
		}
		return false
	})
}

func (r *Payments) FindReusableRegistration(_ context.Context, email string) (*models.Payment, error) {
	return r.find(func(p *models.Payment) bool {
		return p.PaymentType == types.PaymentTypeRegistration && p.Status == types.PaymentStatusPending &&
			strings.EqualFold(p.Email, email) && p.CheckoutRequestID == nil
	})
}

// update applies values to the row when cond holds and reports whether it did.
func (r *Payments) update(id string, cond func(p *models.Payment) bool, values map[string]any) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok || !cond(p) {
		return false, nil
	}
	cp := *p
	if err := apply(&cp, values); err != nil {
		return false, err
	}
	r.db.payments[id] = &cp
	return true, nil
}

func (r *Payments) RecordPush(_ context.Context, id, merchantID, checkoutID string) (bool, error) {
	sources := types.PaymentStatusSources(types.PaymentStatusProcessing)
	return r.update(id, func(p *models.Payment) bool { return slices.Contains(sources, p.Status) }, map[string]any{
		"merchant_request_id": merchantID,
		"checkout_request_id": checkoutID,
		"status":              types.PaymentStatusProcessing,
	})
}

func (r *Payments) Transition(_ context.Context, id string, target types.PaymentStatus, values map[string]any) (bool, error) {
	sources := types.PaymentStatusSources(target)
	updates := map[string]any{"status": target}
	for k, v := range values {
		updates[k] = v
	}
	return r.update(id, func(p *models.Payment) bool { return slices.Contains(sources, p.Status) }, updates)
}

func (r *Payments) ClaimProvisioning(_ context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok || p.Status != types.PaymentStatusConfirmed || !slices.Contains(types.ClaimableProvisioningStatuses, p.ProvisioningStatus) {
		return false, nil
	}
	cp := *p
	cp.ProvisioningStatus = types.ProvisioningStatusInProgress
	cp.ProvisioningAttempts++
	r.db.payments[id] = &cp
	return true, nil
}

func (r *Payments) FinishProvisioning(_ context.Context, id string, status types.ProvisioningStatus, errText string) error {
	_, err := r.update(id, func(p *models.Payment) bool { return p.ProvisioningStatus == types.ProvisioningStatusInProgress }, map[string]any{
		"provisioning_status": status,
		"provisioning_error":  errText,
	})
	return err
}

func (r *Payments) ReleaseStaleClaims(_ context.Context, before time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, p := range r.db.payments {
		if p.ProvisioningStatus == types.ProvisioningStatusInProgress && p.UpdatedAt.Before(before) {
			p.ProvisioningStatus = types.ProvisioningStatusFailed
			p.ProvisioningError = "provisioning interrupted"
			n++
		}
	}
	return n, nil
}

func (r *Payments) UpdateFields(_ context.Context, id string, values map[string]any) error {
	_, err := r.update(id, func(*models.Payment) bool { return true }, values)
	return err
}

func (r *Payments) FillReceipt(_ context.Context, id string, values map[string]any) (bool, error) {
	return r.update(id, func(p *models.Payment) bool {
		return p.Status == types.PaymentStatusConfirmed && p.ReceiptNumber == nil
	}, values)
}

func (r *Payments) TouchQueried(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p, ok := r.db.payments[id]; ok {
		p.LastQueriedAt = &at
	}
	return nil
}

func (r *Payments) filter(match func(p *models.Payment) bool, limit int) []models.Payment {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Payment
	for _, p := range r.db.payments {
		if match(p) {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b models.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *Payments) ListStale(_ context.Context, before time.Time, limit int) ([]models.Payment, error) {
	return r.filter(func(p *models.Payment) bool {
		return p.Status.Open() && p.CheckoutRequestID != nil && p.CreatedAt.Before(before) &&
			(p.LastQueriedAt == nil || p.LastQueriedAt.Before(before))
	}, limit), nil
}

func (r *Payments) ListUnprovisioned(_ context.Context, before time.Time, maxAttempts, limit int) ([]models.Payment, error) {
	return r.filter(func(p *models.Payment) bool {
		return p.Status == types.PaymentStatusConfirmed &&
			slices.Contains(types.ClaimableProvisioningStatuses, p.ProvisioningStatus) &&
			p.ProvisioningAttempts < maxAttempts && p.UpdatedAt.Before(before)
	}, limit), nil
}

// List ignores filters and sorting; it is enough for paging tests.
func (r *Payments) List(_ context.Context, req *types.ListRequest) ([]models.Payment, int64, error) {
	all := r.filter(func(*models.Payment) bool { return true }, 0)
	total := int64(len(all))
	from := min(req.From, len(all))
	to := min(from+req.Size, len(all))
	return all[from:to], total, nil
}

func (r *Payments) ListForUser(_ context.Context, userID, email string, limit int) ([]models.Payment, error) {
	return r.filter(func(p *models.Payment) bool {
		return (userID != "" && p.OwnerID() == userID) || (email != "" && strings.EqualFold(p.Email, email))
	}, limit), nil
}

// All returns every payment, oldest first.
func (r *Payments) All() []models.Payment {
	return r.filter(func(*models.Payment) bool { return true }, 0)
}
