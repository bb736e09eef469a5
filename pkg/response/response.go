package response

import (
	"net/http"

	"github.com/fatflowers/alumni/pkg/apperr"
)

type APIResponseCode int

const (
	APIResponseCodeOK           APIResponseCode = 0
	APIResponseCodeBadRequest   APIResponseCode = 40000
	APIResponseCodeUnauthorized APIResponseCode = 40100
	APIResponseCodeForbidden    APIResponseCode = 40300
	APIResponseCodeNotFound     APIResponseCode = 40400
	APIResponseCodeConflict     APIResponseCode = 40900
	APIResponseCodeError        APIResponseCode = 50000
	APIResponseCodeUpstream     APIResponseCode = 50200
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:           "ok",
	APIResponseCodeBadRequest:   "bad request",
	APIResponseCodeUnauthorized: "unauthorized",
	APIResponseCodeForbidden:    "forbidden",
	APIResponseCodeNotFound:     "not found",
	APIResponseCodeConflict:     "conflict",
	APIResponseCodeError:        "unexpected error",
	APIResponseCodeUpstream:     "upstream error",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// ErrorBody is the data payload of failed responses.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// FromError maps err to an HTTP status and an envelope safe to show clients.
func FromError(err error) (int, *APIResponse[ErrorBody]) {
	status := apperr.HTTPStatus(err)
	body := ErrorBody{Error: apperr.PublicMessage(err)}
	if ae, ok := apperr.As(err); ok {
		body.Fields = ae.Fields
	}
	return status, ErrorT(codeForStatus(status), body)
}

func codeForStatus(status int) APIResponseCode {
	switch status {
	case http.StatusBadRequest:
		return APIResponseCodeBadRequest
	case http.StatusUnauthorized:
		return APIResponseCodeUnauthorized
	case http.StatusForbidden:
		return APIResponseCodeForbidden
	case http.StatusNotFound:
		return APIResponseCodeNotFound
	case http.StatusConflict:
		return APIResponseCodeConflict
	case http.StatusBadGateway:
		return APIResponseCodeUpstream
	}
	return APIResponseCodeError
}
