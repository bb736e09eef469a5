package memstore

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/types"
)

type Profiles struct{ db *DB }

func (r *Profiles) Create(_ context.Context, p *models.Profile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	for _, other := range r.db.profiles {
		if other.ID == p.ID || other.Email == p.Email || (p.Number() != "" && other.Number() == p.Number()) {
			return gorm.ErrDuplicatedKey
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.db.profiles[p.ID] = &cp
	return nil
}

func (r *Profiles) Get(_ context.Context, id string) (*models.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *Profiles) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, p := range r.db.profiles {
		if strings.EqualFold(p.Email, strings.TrimSpace(email)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Profiles) Update(_ context.Context, id string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.profiles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *p
	if err := apply(&cp, values); err != nil {
		return err
	}
	for _, other := range r.db.profiles {
		if other.ID != id && cp.Number() != "" && other.Number() == cp.Number() {
			return gorm.ErrDuplicatedKey
		}
	}
	r.db.profiles[id] = &cp
	return nil
}

func (r *Profiles) TransitionStatus(ctx context.Context, id string, next types.ProfileStatus) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := p.Status.Transition(next); err != nil {
		return err
	}
	return r.Update(ctx, id, map[string]any{"status": next})
}

func (r *Profiles) MaxMembershipNumber(context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var maxNum int64
	for _, p := range r.db.profiles {
		if n, err := strconv.ParseInt(p.Number(), 10, 64); err == nil && n > maxNum {
			maxNum = n
		}
	}
	return maxNum, nil
}

func (r *Profiles) ExistingEmails(_ context.Context, emails []string) (map[string]bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := map[string]bool{}
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		for _, p := range r.db.profiles {
			if p.Email == e {
				out[e] = true
			}
		}
	}
	return out, nil
}

func (r *Profiles) List(_ context.Context, req *types.ListRequest) ([]models.Profile, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var all []models.Profile
	for _, p := range r.db.profiles {
		all = append(all, *p)
	}
	slices.SortFunc(all, func(a, b models.Profile) int { return strings.Compare(a.Email, b.Email) })
	from := min(req.From, len(all))
	to := min(from+req.Size, len(all))
	return all[from:to], int64(len(all)), nil
}

// All returns every profile ordered by email.
func (r *Profiles) All() []models.Profile {
	all, _, _ := r.List(context.Background(), &types.ListRequest{Size: 1 << 30})
	return all
}

type Memberships struct{ db *DB }

func (r *Memberships) GetByProfile(_ context.Context, profileID string) (*models.Membership, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.memberships[profileID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *Memberships) Upsert(_ context.Context, m *models.Membership) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if existing, ok := r.db.memberships[m.ProfileID]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	}
	cp := *m
	r.db.memberships[m.ProfileID] = &cp
	return nil
}

func (r *Memberships) ExpireLapsed(_ context.Context, now time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, m := range r.db.memberships {
		if m.Status == types.MembershipStatusActive && m.ExpiryDate.Before(now) {
			m.Status = types.MembershipStatusInactive
			n++
		}
	}
	return n, nil
}

// Count returns how many profiles have a membership row.
func (r *Memberships) Count() int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.memberships)
}

type Events struct{ db *DB }

func (r *Events) Create(_ context.Context, e *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *e
	r.db.events[e.ID] = &cp
	return nil
}

func (r *Events) Get(_ context.Context, id string) (*models.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *Events) IncrementAttendees(_ context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.events[id]
	if !ok || e.Full() {
		return false, nil
	}
	e.CurrentAttendees++
	return true, nil
}

func (r *Events) CreateRegistration(_ context.Context, reg *models.EventRegistration) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.registrations {
		if other.PaymentID == reg.PaymentID {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *reg
	r.db.registrations[reg.ID] = &cp
	return nil
}

func (r *Events) GetRegistrationByPayment(_ context.Context, paymentID string) (*models.EventRegistration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, reg := range r.db.registrations {
		if reg.PaymentID == paymentID {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *Events) ListRegistrations(_ context.Context, eventID string) ([]models.EventRegistration, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.EventRegistration
	for _, reg := range r.db.registrations {
		if reg.EventID == eventID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

type Orders struct{ db *DB }

func (r *Orders) Create(_ context.Context, o *models.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *o
	r.db.orders[o.ID] = &cp
	return nil
}

func (r *Orders) Get(_ context.Context, id string) (*models.Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *Orders) Transition(_ context.Context, id string, next types.OrderStatus, values map[string]any) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok || !o.Status.CanTransitionTo(next) {
		return false, nil
	}
	cp := *o
	updates := map[string]any{"status": next}
	for k, v := range values {
		updates[k] = v
	}
	if err := apply(&cp, updates); err != nil {
		return false, err
	}
	r.db.orders[id] = &cp
	return true, nil
}

func (r *Orders) UpdateFields(_ context.Context, id string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	o, ok := r.db.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *o
	if err := apply(&cp, values); err != nil {
		return err
	}
	r.db.orders[id] = &cp
	return nil
}

// AuthUsers implements the identity credential store.
type AuthUsers struct{ db *DB }

func (r *AuthUsers) CreateAuthUser(_ context.Context, u *models.AuthUser) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, other := range r.db.authUsers {
		if other.Email == u.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	r.db.authUsers[u.ID] = &cp
	return nil
}

func (r *AuthUsers) GetAuthUser(_ context.Context, id string) (*models.AuthUser, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.authUsers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *AuthUsers) GetAuthUserByEmail(_ context.Context, email string) (*models.AuthUser, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.authUsers {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *AuthUsers) UpdateAuthUser(_ context.Context, id string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.authUsers[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *u
	if err := apply(&cp, values); err != nil {
		return err
	}
	r.db.authUsers[id] = &cp
	return nil
}

type CallbackLogs struct{ db *DB }

func (r *CallbackLogs) Create(_ context.Context, l *models.PaymentCallbackLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *l
	r.db.callbackLogs[l.ID] = &cp
	return nil
}

func (r *CallbackLogs) Finish(_ context.Context, id string, values map[string]any) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.callbackLogs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *l
	if err := apply(&cp, values); err != nil {
		return err
	}
	r.db.callbackLogs[id] = &cp
	return nil
}

func (r *CallbackLogs) ListByCheckoutID(_ context.Context, checkoutID string) ([]models.PaymentCallbackLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.PaymentCallbackLog
	for _, l := range r.db.callbackLogs {
		if l.CheckoutRequestID == checkoutID {
			out = append(out, *l)
		}
	}
	slices.SortFunc(out, func(a, b models.PaymentCallbackLog) int { return a.ReceivedAt.Compare(b.ReceivedAt) })
	return out, nil
}

// Count returns the number of stored callback payloads.
func (r *CallbackLogs) Count() int {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.callbackLogs)
}
