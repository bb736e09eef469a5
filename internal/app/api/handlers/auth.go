package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/alumni/internal/app/api/middleware"
	"github.com/fatflowers/alumni/internal/app/service/auth"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/apperr"
)

type AuthService interface {
	Login(ctx context.Context, req auth.LoginRequest) (*identity.Session, error)
	SetPassword(ctx context.Context, req auth.SetPasswordRequest) (*identity.Session, error)
	ForgotPassword(ctx context.Context, req auth.ForgotPasswordRequest) error
	Refresh(ctx context.Context, userID string) (*identity.Session, error)
	Me(ctx context.Context, claims *identity.Claims) (*auth.MeResponse, error)
}

// @Summary      Sign in
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body auth.LoginRequest true "Credentials"
// @Success      200  {object}  handlers.RespSession
// @Failure      401  {object}  handlers.RespError
// @Router       /api/auth/login [post]
func ApiLogin(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, err := svc.Login(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sess)
	}
}

// @Summary      Set password
// @Description  Consumes a password setup link token and returns a fresh session.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body auth.SetPasswordRequest true "Setup token and new password"
// @Success      200  {object}  handlers.RespSession
// @Failure      400  {object}  handlers.RespError
// @Router       /api/auth/set-password [post]
func ApiSetPassword(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.SetPasswordRequest
		if !bindJSON(c, &req) {
			return
		}
		sess, err := svc.SetPassword(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sess)
	}
}

// @Summary      Request a password reset link
// @Description  Always succeeds so callers cannot probe which emails have accounts.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request body auth.ForgotPasswordRequest true "Account email"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/auth/forgot-password [post]
func ApiForgotPassword(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.ForgotPasswordRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := svc.ForgotPassword(c.Request.Context(), req); err != nil {
			fail(c, err)
			return
		}
		ok(c, map[string]string{"status": "if the account exists, a reset link has been sent"})
	}
}

// @Summary      Refresh session
// @Description  Issues a new token, which also counts as session activity.
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSession
// @Failure      401  {object}  handlers.RespError
// @Router       /api/auth/refresh [post]
func ApiRefresh(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := svc.Refresh(c.Request.Context(), mw.UserID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, sess)
	}
}

// @Summary      Current account and session state
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespMe
// @Failure      401  {object}  handlers.RespError
// @Router       /api/auth/me [get]
func ApiAuthMe(svc AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, found := mw.Claims(c)
		if !found {
			fail(c, apperr.UnauthorizedErr("missing bearer token"))
			return
		}
		me, err := svc.Me(c.Request.Context(), claims)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, me)
	}
}

// RegisterAuthRoutes mounts the sign-in flow; required guards the routes
// that need a session.
func RegisterAuthRoutes(r gin.IRouter, svc AuthService, required gin.HandlerFunc) {
	r.POST("/login", ApiLogin(svc))
	r.POST("/set-password", ApiSetPassword(svc))
	r.POST("/forgot-password", ApiForgotPassword(svc))
	r.POST("/refresh", required, ApiRefresh(svc))
	r.GET("/me", required, ApiAuthMe(svc))
}
