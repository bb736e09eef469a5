package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/db/dbtest"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

func items(ids ...StatisticType) []*StatisticDataItem {
	return lo.Map(ids, func(id StatisticType, _ int) *StatisticDataItem { return &StatisticDataItem{ID: id} })
}

func TestValidate(t *testing.T) {
	cases := map[string]*StatisticRequest{
		"unknown item": {DataItems: items("gmv")},
		"unknown filter": {
			DataItems: items(StatisticTypeDailyRevenue),
			Filters:   []*types.CommonFilter{{Field: "currency", Operator: types.CommonFilterOperatorEq, Values: []any{"KES"}}},
		},
		"unknown payment type": {
			DataItems: items(StatisticTypeDailyRevenue),
			Filters:   []*types.CommonFilter{{Field: "payment_type", Operator: types.CommonFilterOperatorIn, Values: []any{"donation"}}},
		},
		"half a range": {
			DataItems: items(StatisticTypeDailyRevenue),
			Filters:   []*types.CommonFilter{{Field: "date", Operator: types.CommonFilterOperatorRange, Values: []any{"2024-06-01"}}},
		},
		"reversed range": {
			DataItems: items(StatisticTypeDailyRevenue),
			Filters:   []*types.CommonFilter{{Field: "date", Operator: types.CommonFilterOperatorRange, Values: []any{"2024-06-02", "2024-06-01"}}},
		},
	}
	for name, req := range cases {
		err := req.Validate()
		assert.True(t, apperr.IsKind(err, apperr.Invalid), name)
	}

	ok := &StatisticRequest{
		DataItems: items(StatisticTypeDailyRevenue, StatisticTypeEventAttendance),
		Filters: []*types.CommonFilter{
			{Field: "payment_type", Operator: types.CommonFilterOperatorIn, Values: []any{"event", "renewal"}},
			{Field: "date", Operator: types.CommonFilterOperatorRange, Values: []any{"2024-06-01", "2024-06-30"}},
		},
	}
	require.NoError(t, ok.Validate())
	require.True(t, ok.applies(StatisticTypeDailyRevenue))
	require.False(t, ok.applies(StatisticTypeEventAttendance))
	require.False(t, ok.applies(StatisticTypeDailyNewMemberCount))
}

func TestDateRangeIsInclusive(t *testing.T) {
	from, to, err := dateRange(&types.CommonFilter{Field: "date", Values: []any{"2024-06-01", "2024-06-01"}})
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, to.Sub(from))
}

func TestGetStatistic(t *testing.T) {
	gdb := dbtest.New(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	day1 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)

	pay := func(pt types.PaymentType, status types.PaymentStatus, amount int64, at time.Time) {
		p := &models.Payment{
			ID: tool.GenerateUUIDV7(), Email: "jane@example.org", Phone: "254712345678",
			Amount: amount, Currency: "KES", PaymentType: pt, Status: status,
		}
		if status == types.PaymentStatusConfirmed {
			p.ConfirmedAt = &at
		}
		require.NoError(t, gdb.Create(p).Error)
	}
	pay(types.PaymentTypeRegistration, types.PaymentStatusConfirmed, 2000, day1)
	pay(types.PaymentTypeRegistration, types.PaymentStatusConfirmed, 2000, day1)
	pay(types.PaymentTypeEvent, types.PaymentStatusConfirmed, 950, day2)
	pay(types.PaymentTypeEvent, types.PaymentStatusFailed, 950, day2)

	for i, status := range []types.MembershipStatus{types.MembershipStatusActive, types.MembershipStatusActive, types.MembershipStatusInactive} {
		id := tool.GenerateUUIDV7()
		require.NoError(t, gdb.Create(&models.Profile{
			ID: id, Email: id + "@example.org", Status: types.ProfileStatusActive, Role: types.RoleMember, Source: types.ProfileSourceOnline,
		}).Error)
		expiry := now.AddDate(1, 0, 0)
		if status == types.MembershipStatusInactive {
			expiry = now.AddDate(0, 0, -1)
		}
		require.NoError(t, gdb.Create(&models.Membership{
			ID: tool.GenerateUUIDV7(), ProfileID: id, Status: status,
			StartDate: now.AddDate(0, 0, -i), ExpiryDate: expiry, CreatedAt: day1.AddDate(0, 0, i),
		}).Error)
	}

	require.NoError(t, gdb.Create(&models.Event{
		ID: tool.GenerateUUIDV7(), Title: "Gala", StartsAt: now.Add(48 * time.Hour), Price: 1000,
		MaxAttendees: lo.ToPtr(100), CurrentAttendees: 12, Status: types.EventStatusPublished,
	}).Error)
	require.NoError(t, gdb.Create(&models.Event{
		ID: tool.GenerateUUIDV7(), Title: "Old", StartsAt: now.Add(-48 * time.Hour), Price: 1000, Status: types.EventStatusPublished,
	}).Error)

	s := New(gdb)
	s.SetClock(func() time.Time { return now })

	res, err := s.GetStatistic(ctx, &StatisticRequest{DataItems: items(statisticTypes...)})
	require.NoError(t, err)
	require.Len(t, res.DataItems, len(statisticTypes))

	total := res.DataItems[StatisticTypeTotalRevenue]
	require.Len(t, total, 2)
	assert.Equal(t, StatisticResponseDataItem{Label: "event", Value: 950, Value2: 1}, total[0])
	assert.Equal(t, StatisticResponseDataItem{Label: "registration", Value: 4000, Value2: 2}, total[1])

	daily := res.DataItems[StatisticTypeDailyPaymentCount]
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-06-02", daily[0].Date)
	assert.Equal(t, int64(1), daily[0].Value)
	assert.Equal(t, int64(2), daily[1].Value)

	assert.Equal(t, int64(2), res.DataItems[StatisticTypeActiveMemberCount][0].Value)
	assert.Len(t, res.DataItems[StatisticTypeDailyNewMemberCount], 3)
	assert.Equal(t, []StatisticResponseDataItem{{Label: "active", Value: 3}}, res.DataItems[StatisticTypeMemberStatusCount])

	events := res.DataItems[StatisticTypeEventAttendance]
	require.Len(t, events, 1)
	assert.Equal(t, StatisticResponseDataItem{Date: "2024-06-12", Label: "Gala", Value: 12, Value2: 100}, events[0])

	res, err = s.GetStatistic(ctx, &StatisticRequest{
		DataItems: items(StatisticTypeDailyRevenue, StatisticTypeActiveMemberCount),
		Filters: []*types.CommonFilter{
			{Field: "payment_type", Operator: types.CommonFilterOperatorIn, Values: []any{"registration"}},
			{Field: "date", Operator: types.CommonFilterOperatorRange, Values: []any{"2024-06-01", "2024-06-01"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []StatisticResponseDataItem{{Date: "2024-06-01", Label: "registration", Value: 4000, Value2: 2}}, res.DataItems[StatisticTypeDailyRevenue])
	assert.Nil(t, res.DataItems[StatisticTypeActiveMemberCount])
}
