package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/db/dbtest"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

func newPayment(pt types.PaymentType, status types.PaymentStatus) *models.Payment {
	return &models.Payment{
		ID:          tool.GenerateUUIDV7(),
		Email:       "jane@example.org",
		Phone:       "254712345678",
		Amount:      1000,
		Currency:    "KES",
		PaymentType: pt,
		Status:      status,
	}
}

func TestRepositories(t *testing.T) {
	gdb := dbtest.New(t)
	ctx := context.Background()
	payments := NewPaymentRepo(gdb)
	profiles := NewProfileRepo(gdb)
	memberships := NewMembershipRepo(gdb)
	events := NewEventRepo(gdb)
	orders := NewOrderRepo(gdb)
	tx := NewTransactor(gdb)

	t.Run("confirmation has exactly one winner", func(t *testing.T) {
		p := newPayment(types.PaymentTypeEvent, types.PaymentStatusPending)
		require.NoError(t, payments.Create(ctx, p))
		ok, err := payments.RecordPush(ctx, p.ID, "m-1", "ws_CO_race")
		require.NoError(t, err)
		require.True(t, ok)

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				won, err := payments.Transition(ctx, p.ID, types.PaymentStatusConfirmed, map[string]any{"receipt_number": "NLJ7RT61SV"})
				assert.NoError(t, err)
				if won {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)

		// confirmed never regresses
		ok, err = payments.Transition(ctx, p.ID, types.PaymentStatusFailed, nil)
		require.NoError(t, err)
		require.False(t, ok)

		got, err := payments.GetByCheckoutID(ctx, "ws_CO_race")
		require.NoError(t, err)
		require.Equal(t, types.PaymentStatusConfirmed, got.Status)

		claimed, err := payments.ClaimProvisioning(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, claimed)
		claimed, err = payments.ClaimProvisioning(ctx, p.ID)
		require.NoError(t, err)
		require.False(t, claimed)
		require.NoError(t, payments.FinishProvisioning(ctx, p.ID, types.ProvisioningStatusDone, ""))
		claimed, err = payments.ClaimProvisioning(ctx, p.ID)
		require.NoError(t, err)
		require.False(t, claimed)
	})

	t.Run("lookup by callback fragment", func(t *testing.T) {
		p := newPayment(types.PaymentTypeRenewal, types.PaymentStatusProcessing)
		p.CallbackData = []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_fragment"}}}`)
		require.NoError(t, payments.Create(ctx, p))
		got, err := payments.FindByCallbackFragment(ctx, "", "ws_CO_fragment")
		require.NoError(t, err)
		require.Equal(t, p.ID, got.ID)
	})

	t.Run("attendee increment respects capacity", func(t *testing.T) {
		e := &models.Event{ID: tool.GenerateUUIDV7(), Title: "Gala", StartsAt: time.Now().Add(48 * time.Hour), Price: 1000, MaxAttendees: lo.ToPtr(1), Status: types.EventStatusPublished}
		require.NoError(t, events.Create(ctx, e))
		ok, err := events.IncrementAttendees(ctx, e.ID)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = events.IncrementAttendees(ctx, e.ID)
		require.NoError(t, err)
		require.False(t, ok)

		payID := tool.GenerateUUIDV7()
		reg := &models.EventRegistration{ID: tool.GenerateUUIDV7(), EventID: e.ID, PaymentID: payID, Amount: 1000}
		require.NoError(t, events.CreateRegistration(ctx, reg))
		dup := &models.EventRegistration{ID: tool.GenerateUUIDV7(), EventID: e.ID, PaymentID: payID, Amount: 1000}
		require.ErrorIs(t, events.CreateRegistration(ctx, dup), gorm.ErrDuplicatedKey)
	})

	t.Run("membership numbers and transactions", func(t *testing.T) {
		for i, num := range []string{"1041", "LEGACY-7", "1002"} {
			require.NoError(t, profiles.Create(ctx, &models.Profile{
				ID:               fmt.Sprintf("user-%d", i),
				MembershipNumber: lo.ToPtr(num),
				Email:            fmt.Sprintf("Member%d@Example.org", i),
				Status:           types.ProfileStatusInactive,
				Role:             types.RoleMember,
				Source:           types.ProfileSourceImport,
			}))
		}
		maxNum, err := profiles.MaxMembershipNumber(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1041), maxNum)

		found, err := profiles.ExistingEmails(ctx, []string{"member0@example.org", "nobody@example.org"})
		require.NoError(t, err)
		require.Equal(t, map[string]bool{"member0@example.org": true}, found)

		require.NoError(t, profiles.TransitionStatus(ctx, "user-0", types.ProfileStatusActive))
		require.ErrorIs(t, profiles.TransitionStatus(ctx, "user-0", types.ProfileStatusPending), types.ErrIllegalTransition)

		err = tx.InTx(ctx, func(ctx context.Context) error {
			if err := memberships.Upsert(ctx, &models.Membership{ID: tool.GenerateUUIDV7(), ProfileID: "user-1", Status: types.MembershipStatusActive, StartDate: time.Now(), ExpiryDate: time.Now().AddDate(1, 0, 0)}); err != nil {
				return err
			}
			return fmt.Errorf("abort")
		})
		require.Error(t, err)
		_, err = memberships.GetByProfile(ctx, "user-1")
		require.ErrorIs(t, err, gorm.ErrRecordNotFound)

		first := &models.Membership{ID: tool.GenerateUUIDV7(), ProfileID: "user-2", Status: types.MembershipStatusActive, StartDate: time.Now(), ExpiryDate: time.Now().AddDate(1, 0, 0)}
		require.NoError(t, memberships.Upsert(ctx, first))
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m := &models.Membership{ID: tool.GenerateUUIDV7(), ProfileID: "user-2", Status: types.MembershipStatusActive, StartDate: time.Now(), ExpiryDate: time.Now().AddDate(2, 0, 0)}
				assert.NoError(t, memberships.Upsert(ctx, m))
				assert.Equal(t, first.ID, m.ID)
			}()
		}
		wg.Wait()
		var rows int64
		require.NoError(t, gdb.Model(&models.Membership{}).Where("profile_id = ?", "user-2").Count(&rows).Error)
		require.Equal(t, int64(1), rows)
		stored, err := memberships.GetByProfile(ctx, "user-2")
		require.NoError(t, err)
		require.Equal(t, first.ID, stored.ID)
		require.True(t, stored.ExpiryDate.After(time.Now().AddDate(1, 6, 0)))

		past := time.Now().AddDate(0, 0, -1)
		require.NoError(t, memberships.Upsert(ctx, &models.Membership{ID: tool.GenerateUUIDV7(), ProfileID: "user-0", Status: types.MembershipStatusActive, StartDate: past.AddDate(-1, 0, 0), ExpiryDate: past}))
		n, err := memberships.ExpireLapsed(ctx, time.Now())
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		n, err = profiles.ExpireActive(ctx, time.Now())
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	})

	t.Run("order transition", func(t *testing.T) {
		o := &models.Order{ID: tool.GenerateUUIDV7(), Email: "jane@example.org", Total: 1500, Status: types.OrderStatusPending}
		o.Items = datatypes.NewJSONType([]models.OrderItem{{ProductID: "p", Name: "Scarf", Quantity: 1, UnitPrice: 1500}})
		require.NoError(t, orders.Create(ctx, o))
		ok, err := orders.Transition(ctx, o.ID, types.OrderStatusProcessing, map[string]any{"payment_id": tool.GenerateUUIDV7()})
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = orders.Transition(ctx, o.ID, types.OrderStatusDelivered, nil)
		require.NoError(t, err)
		require.False(t, ok)

		list, total, err := orders.List(ctx, &types.ListRequest{
			Filters: []*types.CommonFilter{{Field: "status", Operator: types.CommonFilterOperatorEq, Values: []any{"processing"}}},
			Size:    10, SortBy: "created_at",
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		require.Equal(t, "Scarf", list[0].Items.Data()[0].Name)
	})
}
