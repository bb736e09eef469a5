package response

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/alumni/pkg/apperr"
)

func TestFromError_Validation(t *testing.T) {
	status, body := FromError(apperr.InvalidErr("invalid registration", map[string]string{"email": "required"}))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, APIResponseCodeBadRequest, body.Code)
	require.Equal(t, "invalid registration", body.Data.Error)
	require.Equal(t, "required", body.Data.Fields["email"])
}

func TestFromError_UnknownIsGeneric500(t *testing.T) {
	status, body := FromError(errors.New("dial tcp 10.0.0.1:5432: refused"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, APIResponseCodeError, body.Code)
	require.NotContains(t, body.Data.Error, "10.0.0.1")
}
