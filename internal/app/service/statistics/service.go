package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/types"
)

type StatisticType string

const (
	// Confirmed payments, by confirmation day and payment type
	StatisticTypeDailyPaymentCount StatisticType = "daily_payment_count"
	StatisticTypeDailyRevenue      StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue      StatisticType = "total_revenue"

	// Members
	StatisticTypeActiveMemberCount   StatisticType = "active_member_count"
	StatisticTypeMemberStatusCount   StatisticType = "member_status_count"
	StatisticTypeDailyNewMemberCount StatisticType = "daily_new_member_count"

	// Upcoming events and how full they are
	StatisticTypeEventAttendance StatisticType = "event_attendance"
)

var statisticTypes = []StatisticType{
	StatisticTypeDailyPaymentCount,
	StatisticTypeDailyRevenue,
	StatisticTypeTotalRevenue,
	StatisticTypeActiveMemberCount,
	StatisticTypeMemberStatusCount,
	StatisticTypeDailyNewMemberCount,
	StatisticTypeEventAttendance,
}

type StatisticFilterType string

const (
	StatisticFilterTypePaymentType StatisticFilterType = "payment_type"
	// StatisticFilterTypeDate takes a [from, to] pair of YYYY-MM-DD days, both inclusive.
	StatisticFilterTypeDate StatisticFilterType = "date"
)

var validFilters = map[StatisticFilterType][]StatisticType{
	StatisticFilterTypePaymentType: {StatisticTypeDailyPaymentCount, StatisticTypeDailyRevenue, StatisticTypeTotalRevenue},
	StatisticFilterTypeDate:        {StatisticTypeDailyPaymentCount, StatisticTypeDailyRevenue, StatisticTypeTotalRevenue, StatisticTypeDailyNewMemberCount},
}

// dateColumns is the column the date filter ranges over for each statistic.
var dateColumns = map[StatisticType]string{
	StatisticTypeDailyPaymentCount:   "confirmed_at",
	StatisticTypeDailyRevenue:        "confirmed_at",
	StatisticTypeTotalRevenue:        "confirmed_at",
	StatisticTypeDailyNewMemberCount: "created_at",
}

type StatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type StatisticRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	DataItems []*StatisticDataItem  `json:"data_items" binding:"required,min=1"`
}

// Validate rejects unknown statistics and filters and malformed filter values.
func (f *StatisticRequest) Validate() error {
	for _, di := range f.DataItems {
		if di == nil || !lo.Contains(statisticTypes, di.ID) {
			return apperr.InvalidErr("unknown statistic", map[string]string{"data_items": fmt.Sprint(lo.FromPtr(di).ID)})
		}
	}
	for _, filter := range f.Filters {
		if filter == nil {
			return apperr.InvalidErr("empty filter", nil)
		}
		switch StatisticFilterType(filter.Field) {
		case StatisticFilterTypePaymentType:
			if len(filter.Values) == 0 {
				return apperr.InvalidErr("payment_type filter needs a value", map[string]string{"filters": filter.Field})
			}
			for _, v := range filter.Values {
				if !lo.Contains(types.PaymentTypes, types.PaymentType(fmt.Sprint(v))) {
					return apperr.InvalidErr("unknown payment type", map[string]string{"filters": fmt.Sprint(v)})
				}
			}
		case StatisticFilterTypeDate:
			if _, _, err := dateRange(filter); err != nil {
				return apperr.InvalidErr(err.Error(), map[string]string{"filters": filter.Field})
			}
		default:
			return apperr.InvalidErr("unsupported filter", map[string]string{"filters": filter.Field})
		}
	}
	return nil
}

func dateRange(filter *types.CommonFilter) (from, to time.Time, err error) {
	if len(filter.Values) != 2 {
		return from, to, fmt.Errorf("date filter needs a from and a to day")
	}
	if from, err = time.Parse(time.DateOnly, fmt.Sprint(filter.Values[0])); err != nil {
		return from, to, fmt.Errorf("date filter: bad from day")
	}
	if to, err = time.Parse(time.DateOnly, fmt.Sprint(filter.Values[1])); err != nil {
		return from, to, fmt.Errorf("date filter: bad to day")
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("date filter: to is before from")
	}
	return from, to.AddDate(0, 0, 1), nil
}

// applies reports whether every filter in the request can narrow statisticType.
func (f *StatisticRequest) applies(statisticType StatisticType) bool {
	for _, filter := range f.Filters {
		if !lo.Contains(validFilters[StatisticFilterType(filter.Field)], statisticType) {
			return false
		}
	}
	return true
}

// scoped is the request as seen by one statistic.
type scoped struct {
	filters    []*types.CommonFilter
	dateColumn string
}

func (f *StatisticRequest) scope(statisticType StatisticType) *scoped {
	return &scoped{filters: f.Filters, dateColumn: dateColumns[statisticType]}
}

// Build composes the WHERE clause, translating filter fields onto table columns.
func (s *scoped) Build(builder clause.Builder) {
	exprs := make([]clause.Expression, 0, len(s.filters))
	for _, filter := range s.filters {
		switch StatisticFilterType(filter.Field) {
		case StatisticFilterTypePaymentType:
			exprs = append(exprs, clause.IN{Column: clause.Column{Name: "payment_type"}, Values: filter.Values})
		case StatisticFilterTypeDate:
			from, to, err := dateRange(filter)
			if err != nil || s.dateColumn == "" {
				continue
			}
			exprs = append(exprs,
				clause.Gte{Column: clause.Column{Name: s.dateColumn}, Value: from},
				clause.Lt{Column: clause.Column{Name: s.dateColumn}, Value: to},
			)
		}
	}
	if len(exprs) == 0 {
		builder.WriteString("1=1")
		return
	}
	clause.And(exprs...).Build(builder)
}

type StatisticResponseDataItem struct {
	Date   string `json:"date,omitempty"`
	Label  string `json:"label,omitempty"`
	Value  int64  `json:"value"`
	Value2 int64  `json:"value2,omitempty"`
}

type StatisticResponse struct {
	DataItems map[StatisticType][]StatisticResponseDataItem `json:"data_items"`
}

// Service runs dashboard aggregates straight against Postgres.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Service { return &Service{db: db, now: time.Now} }

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) where(scope *scoped) clause.Where {
	return clause.Where{Exprs: []clause.Expression{scope}}
}

func (s *Service) getDailyPaymentCount(ctx context.Context, scope *scoped) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Payment{}.TableName()).
		Select("TO_CHAR(confirmed_at, 'YYYY-MM-DD') AS date, payment_type AS label, count(*) AS value").
		Where("status = ?", types.PaymentStatusConfirmed).
		Where(s.where(scope)).
		Group("TO_CHAR(confirmed_at, 'YYYY-MM-DD')").
		Group("payment_type").
		Order("date DESC, label ASC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Value is the revenue in shillings, Value2 the number of payments.
func (s *Service) getDailyRevenue(ctx context.Context, scope *scoped) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Payment{}.TableName()).
		Select("TO_CHAR(confirmed_at, 'YYYY-MM-DD') AS date, payment_type AS label, sum(amount) AS value, count(*) AS value2").
		Where("status = ?", types.PaymentStatusConfirmed).
		Where(s.where(scope)).
		Group("TO_CHAR(confirmed_at, 'YYYY-MM-DD')").
		Group("payment_type").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalRevenue(ctx context.Context, scope *scoped) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Payment{}.TableName()).
		Select("payment_type AS label, sum(amount) AS value, count(*) AS value2").
		Where("status = ?", types.PaymentStatusConfirmed).
		Where(s.where(scope)).
		Group("payment_type").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActiveMemberCount(ctx context.Context, _ *scoped) ([]StatisticResponseDataItem, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Membership{}).
		Where("status = ? AND expiry_date >= ?", types.MembershipStatusActive, s.now()).
		Count(&n).Error
	if err != nil {
		return nil, err
	}
	return []StatisticResponseDataItem{{Label: string(types.MembershipStatusActive), Value: n}}, nil
}

func (s *Service) getMemberStatusCount(ctx context.Context, _ *scoped) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Profile{}.TableName()).
		Select("status AS label, count(*) AS value").
		Group("status").
		Order("label")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// A member is new on the day their first membership window was opened.
func (s *Service) getDailyNewMemberCount(ctx context.Context, scope *scoped) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Membership{}.TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') AS date, count(DISTINCT profile_id) AS value").
		Where(s.where(scope)).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date DESC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Value is the confirmed attendee count, Value2 the capacity (0 when unlimited).
func (s *Service) getEventAttendance(ctx context.Context, _ *scoped) ([]StatisticResponseDataItem, error) {
	var results []StatisticResponseDataItem
	q := s.db.WithContext(ctx).Table(models.Event{}.TableName()).
		Select("TO_CHAR(starts_at, 'YYYY-MM-DD') AS date, title AS label, current_attendees AS value, COALESCE(max_attendees, 0) AS value2").
		Where("starts_at >= ? AND status = ?", s.now(), types.EventStatusPublished).
		Order("starts_at ASC")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, request *StatisticRequest, dataItem *StatisticDataItem) ([]StatisticResponseDataItem, error) {
	scope := request.scope(dataItem.ID)
	switch dataItem.ID {
	case StatisticTypeDailyPaymentCount:
		return s.getDailyPaymentCount(ctx, scope)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, scope)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, scope)
	case StatisticTypeActiveMemberCount:
		return s.getActiveMemberCount(ctx, scope)
	case StatisticTypeMemberStatusCount:
		return s.getMemberStatusCount(ctx, scope)
	case StatisticTypeDailyNewMemberCount:
		return s.getDailyNewMemberCount(ctx, scope)
	case StatisticTypeEventAttendance:
		return s.getEventAttendance(ctx, scope)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

// GetStatistic computes every requested item concurrently. An item that a
// filter in the request cannot narrow comes back empty.
func (s *Service) GetStatistic(ctx context.Context, request *StatisticRequest) (*StatisticResponse, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []StatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *StatisticDataItem) {
			defer wg.Done()
			if !request.applies(di.ID) {
				resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: nil}
				return
			}
			res, err := s.getStatistic(ctx, request, di)
			if err != nil {
				errChan <- fmt.Errorf("%s: %w", di.ID, err)
				return
			}
			resChan <- &lo.Entry[StatisticType, []StatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	wg.Wait()
	close(errChan)
	close(resChan)
	if err := <-errChan; err != nil {
		return nil, apperr.Wrap(err)
	}

	results := make(map[StatisticType][]StatisticResponseDataItem, len(request.DataItems))
	for entry := range resChan {
		results[entry.Key] = entry.Value
	}
	return &StatisticResponse{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
