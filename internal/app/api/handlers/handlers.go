// Package handlers holds the gin handlers of the HTTP API. Each handler
// depends on a narrow interface so it can be tested against a stub.
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	mw "github.com/fatflowers/alumni/internal/app/api/middleware"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/response"
	"github.com/fatflowers/alumni/pkg/types"
)

// UseJSONFieldNames makes validation errors name fields by their json tag.
func UseJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response.OKT(data))
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, response.OKT(data))
}

var nopLog = zap.NewNop().Sugar()

func fail(c *gin.Context, err error) {
	status, body := response.FromError(err)
	respondErr(c, status, body, err)
}

// respondErr attaches err to the request and logs the cause of server-side
// failures, which the client only sees as a generic message.
func respondErr(c *gin.Context, status int, body *response.APIResponse[response.ErrorBody], err error) {
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logctx.FromGin(c, nopLog).Errorw("request_failed", "status", status, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, body)
}

// bindErr turns a gin binding failure into an invalid request error naming
// the offending fields.
func bindErr(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.InvalidErr("malformed request body", nil)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return apperr.InvalidErr("invalid request", fields)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, bindErr(err))
		return false
	}
	return true
}

// bindList accepts an empty body as "first page, no filters".
func bindList(c *gin.Context) (*types.ListRequest, bool) {
	req := &types.ListRequest{}
	if c.Request.ContentLength == 0 {
		return req, true
	}
	return req, bindJSON(c, req)
}

func callerID(c *gin.Context) string { return mw.UserID(c) }
