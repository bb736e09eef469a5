package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateFilters(t *testing.T) {
	allowed := []string{"email", "status"}

	require.NoError(t, ValidateFilters([]*CommonFilter{{Field: "status", Operator: CommonFilterOperatorEq, Values: []any{"active"}}}, allowed))
	require.Error(t, ValidateFilters([]*CommonFilter{{Field: "password_hash", Operator: CommonFilterOperatorEq, Values: []any{"x"}}}, allowed))
	require.Error(t, ValidateFilters([]*CommonFilter{{Field: "email", Operator: CommonFilterOperatorContains}}, allowed))
	require.Error(t, ValidateFilters([]*CommonFilter{nil}, allowed))
}

func TestListRequest_Normalize(t *testing.T) {
	req := &ListRequest{From: -3, Size: 5000, SortBy: "drop table", SortOrder: "sideways"}
	req.Normalize([]string{"created_at", "email"}, "created_at")

	require.Equal(t, 0, req.From)
	require.Equal(t, 200, req.Size)
	require.Equal(t, "created_at", req.SortBy)
	require.Equal(t, "desc", req.SortOrder)

	req = &ListRequest{SortBy: "email", SortOrder: "asc"}
	req.Normalize([]string{"created_at", "email"}, "created_at")
	require.Equal(t, 20, req.Size)
	require.Equal(t, "email", req.SortBy)
	require.Equal(t, "asc", req.SortOrder)
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `50\% off\_now`, escapeLike("50% off_now"))
}
