package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/alumni/internal/app/service/event"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/app/service/shop"
	"github.com/fatflowers/alumni/internal/models"
)

type EventCatalog interface {
	ListUpcoming(ctx context.Context) ([]models.Event, error)
	GetPublished(ctx context.Context, id string) (*models.Event, error)
	Register(ctx context.Context, userID, eventID string, req event.RegisterRequest) (*payment.InitiateResult, error)
}

type ProductCatalog interface {
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
	GetProduct(ctx context.Context, id string, activeOnly bool) (*models.Product, error)
	PlaceOrder(ctx context.Context, userID string, req shop.OrderRequest) (*shop.OrderResult, error)
}

// @Summary      Upcoming events
// @Tags         Events
// @Produce      json
// @Success      200  {object}  handlers.RespEvents
// @Router       /api/events [get]
func ApiListEvents(svc EventCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListUpcoming(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// @Summary      Event details
// @Tags         Events
// @Produce      json
// @Param        id path string true "Event ID"
// @Success      200  {object}  handlers.RespEvent
// @Failure      404  {object}  handlers.RespError
// @Router       /api/events/{id} [get]
func ApiGetEvent(svc EventCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svc.GetPublished(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, e)
	}
}

// @Summary      Register for an event
// @Description  Starts the ticket payment. Guests must give name, email and phone; signed-in members default to their profile and get the member price.
// @Tags         Events
// @Accept       json
// @Produce      json
// @Param        id path string true "Event ID"
// @Param        request body event.RegisterRequest true "Attendee"
// @Success      201  {object}  handlers.RespInitiate
// @Failure      409  {object}  handlers.RespError
// @Failure      502  {object}  handlers.RespError
// @Router       /api/events/{id}/register [post]
func ApiRegisterForEvent(svc EventCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req event.RegisterRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.Register(c.Request.Context(), callerID(c), c.Param("id"), req)
		initiated(c, res, err)
	}
}

// @Summary      Active products
// @Tags         Shop
// @Produce      json
// @Success      200  {object}  handlers.RespProducts
// @Router       /api/products [get]
func ApiListProducts(svc ProductCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListProducts(c.Request.Context(), true)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// @Summary      Product details
// @Tags         Shop
// @Produce      json
// @Param        id path string true "Product ID"
// @Success      200  {object}  handlers.RespProduct
// @Failure      404  {object}  handlers.RespError
// @Router       /api/products/{id} [get]
func ApiGetProduct(svc ProductCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.GetProduct(c.Request.Context(), c.Param("id"), true)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Place an order
// @Description  Prices the cart server-side and starts its payment. A failed push leaves the order pending.
// @Tags         Shop
// @Accept       json
// @Produce      json
// @Param        request body shop.OrderRequest true "Cart and delivery details"
// @Success      201  {object}  handlers.RespOrderResult
// @Failure      400  {object}  handlers.RespError
// @Failure      502  {object}  handlers.RespError
// @Router       /api/orders [post]
func ApiPlaceOrder(svc ProductCatalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shop.OrderRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.PlaceOrder(c.Request.Context(), callerID(c), req)
		if err != nil {
			var pay *payment.InitiateResult
			if res != nil {
				pay = res.Payment
			}
			initiated(c, pay, err)
			return
		}
		created(c, res)
	}
}

// RegisterCatalogRoutes mounts the browsing endpoints.
func RegisterCatalogRoutes(r gin.IRouter, events EventCatalog, products ProductCatalog) {
	r.GET("/events", ApiListEvents(events))
	r.GET("/events/:id", ApiGetEvent(events))
	r.GET("/products", ApiListProducts(products))
	r.GET("/products/:id", ApiGetProduct(products))
}

// RegisterCheckoutRoutes mounts purchases open to guests and members; the
// group is expected to run optional authentication.
func RegisterCheckoutRoutes(r gin.IRouter, events EventCatalog, products ProductCatalog) {
	r.POST("/events/:id/register", ApiRegisterForEvent(events))
	r.POST("/orders", ApiPlaceOrder(products))
}
