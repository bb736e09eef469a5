package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	mw "github.com/fatflowers/alumni/internal/app/api/middleware"
	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/models"
)

type ProfileService interface {
	Get(ctx context.Context, id string) (*member.View, error)
	UpdateSelf(ctx context.Context, id string, req member.UpdateRequest) (*member.View, error)
}

// MemberHistory answers the "my ..." lists. Guest purchases made with the
// member's email are included where they can be matched.
type MemberHistory interface {
	Payments(ctx context.Context, userID, email string) ([]models.Payment, error)
	Orders(ctx context.Context, userID string) ([]models.Order, error)
	Events(ctx context.Context, userID, email string) ([]models.EventRegistration, error)
}

// History adapts the payment, shop and event services to MemberHistory.
type History struct {
	PaymentsFn func(ctx context.Context, userID, email string) ([]models.Payment, error)
	OrdersFn   func(ctx context.Context, userID string) ([]models.Order, error)
	EventsFn   func(ctx context.Context, userID, email string) ([]models.EventRegistration, error)
}

func (h History) Payments(ctx context.Context, userID, email string) ([]models.Payment, error) {
	return h.PaymentsFn(ctx, userID, email)
}

func (h History) Orders(ctx context.Context, userID string) ([]models.Order, error) {
	return h.OrdersFn(ctx, userID)
}

func (h History) Events(ctx context.Context, userID, email string) ([]models.EventRegistration, error) {
	return h.EventsFn(ctx, userID, email)
}

func callerEmail(c *gin.Context) string {
	if claims, found := mw.Claims(c); found {
		return claims.Email
	}
	return ""
}

// @Summary      My profile
// @Tags         Member
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespProfile
// @Failure      404  {object}  handlers.RespError
// @Router       /api/me [get]
func ApiGetMe(svc ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Get(c.Request.Context(), callerID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, v)
	}
}

// @Summary      Update my profile
// @Tags         Member
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body member.UpdateRequest true "Fields to change"
// @Success      200  {object}  handlers.RespProfile
// @Failure      400  {object}  handlers.RespError
// @Router       /api/me [put]
func ApiUpdateMe(svc ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req member.UpdateRequest
		if !bindJSON(c, &req) {
			return
		}
		v, err := svc.UpdateSelf(c.Request.Context(), callerID(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, v)
	}
}

// @Summary      My payments
// @Tags         Member
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespPayments
// @Router       /api/me/payments [get]
func ApiMyPayments(h MemberHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.Payments(c.Request.Context(), callerID(c), callerEmail(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// @Summary      My orders
// @Tags         Member
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespOrders
// @Router       /api/me/orders [get]
func ApiMyOrders(h MemberHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.Orders(c.Request.Context(), callerID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// @Summary      My event registrations
// @Tags         Member
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespRegistrations
// @Router       /api/me/events [get]
func ApiMyEvents(h MemberHistory) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := h.Events(c.Request.Context(), callerID(c), callerEmail(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// RegisterMeRoutes mounts the signed-in member's endpoints; the group is
// expected to require authentication.
func RegisterMeRoutes(r gin.IRouter, profiles ProfileService, history MemberHistory, payments PaymentService) {
	r.GET("/me", ApiGetMe(profiles))
	r.PUT("/me", ApiUpdateMe(profiles))
	r.GET("/me/payments", ApiMyPayments(history))
	r.GET("/me/orders", ApiMyOrders(history))
	r.GET("/me/events", ApiMyEvents(history))
	r.POST("/renewals", ApiRenew(payments))
}
