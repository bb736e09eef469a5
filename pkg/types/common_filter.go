package types

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq       CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq    CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt       CommonFilterOperator = "lt"
	CommonFilterOperatorLte      CommonFilterOperator = "lte"
	CommonFilterOperatorGt       CommonFilterOperator = "gt"
	CommonFilterOperatorGte      CommonFilterOperator = "gte"
	CommonFilterOperatorRange    CommonFilterOperator = "range"
	CommonFilterOperatorIn       CommonFilterOperator = "in"
	CommonFilterOperatorContains CommonFilterOperator = "contains"
)

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Build constructs a GORM expression. Callers must check Field against an
// allow list first (see ValidateFilters).
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	case CommonFilterOperatorContains:
		clause.Expr{
			SQL:  "? ILIKE ?",
			Vars: []any{clause.Column{Name: f.Field}, "%" + escapeLike(fmt.Sprint(value)) + "%"},
		}.Build(builder)
	}
}

// FiltersAnd combines filters into one expression; an empty list matches all rows.
type FiltersAnd []*CommonFilter

func (w FiltersAnd) Build(builder clause.Builder) {
	if len(w) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w))
	for _, f := range w {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ValidateFilters rejects filters on columns outside allowed.
func ValidateFilters(filters []*CommonFilter, allowed []string) error {
	for _, f := range filters {
		if f == nil {
			return fmt.Errorf("nil filter")
		}
		if !lo.Contains(allowed, f.Field) {
			return fmt.Errorf("filter on field %q is not allowed", f.Field)
		}
		if len(f.Values) == 0 {
			return fmt.Errorf("filter on field %q has no values", f.Field)
		}
	}
	return nil
}

// ListRequest is the paginated, filterable list body used by admin listings.
type ListRequest struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

// Normalize clamps pagination and falls back to defaultSort when SortBy is
// not one of the allowed columns.
func (r *ListRequest) Normalize(allowed []string, defaultSort string) {
	if r.Size <= 0 {
		r.Size = 20
	}
	if r.Size > 200 {
		r.Size = 200
	}
	if r.From < 0 {
		r.From = 0
	}
	if !lo.Contains(allowed, r.SortBy) {
		r.SortBy = defaultSort
	}
	if r.SortOrder != "asc" {
		r.SortOrder = "desc"
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
