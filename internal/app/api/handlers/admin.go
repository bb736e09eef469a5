package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/alumni/internal/app/service/event"
	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/app/service/shop"
	"github.com/fatflowers/alumni/internal/app/service/statistics"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/types"
)

type AdminMembers interface {
	Get(ctx context.Context, id string) (*member.View, error)
	List(ctx context.Context, req *types.ListRequest) (*member.ListResponse, error)
	SetStatus(ctx context.Context, adminID, id string, req member.StatusRequest) (*models.Profile, error)
	SetRole(ctx context.Context, adminID, id string, req member.RoleRequest) (*models.Profile, error)
	Invite(ctx context.Context, adminID string, req member.InviteRequest) (*models.Profile, error)
	Import(ctx context.Context, adminID, filename string, r io.Reader) (*member.ImportResult, error)
}

type AdminPayments interface {
	Get(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, req *types.ListRequest) (*payment.ListResponse, error)
	Override(ctx context.Context, adminID, paymentID string, req payment.OverrideRequest) (*models.Payment, error)
	CallbackHistory(ctx context.Context, id string) ([]models.PaymentCallbackLog, error)
}

// Sweeper runs one reconciliation pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (*payment.ReconcileReport, error)
}

type AdminEvents interface {
	Create(ctx context.Context, adminID string, req event.CreateRequest) (*models.Event, error)
	Update(ctx context.Context, adminID, id string, req event.UpdateRequest) (*models.Event, error)
	Get(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, req *types.ListRequest) (*event.ListResponse, error)
	Registrations(ctx context.Context, eventID string) ([]models.EventRegistration, error)
}

type AdminShop interface {
	CreateProduct(ctx context.Context, adminID string, req shop.ProductRequest) (*models.Product, error)
	UpdateProduct(ctx context.Context, adminID, id string, req shop.ProductUpdateRequest) (*models.Product, error)
	GetProduct(ctx context.Context, id string, activeOnly bool) (*models.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error)
	AddVariant(ctx context.Context, adminID, productID string, req shop.VariantRequest) (*models.ProductVariant, error)
	UpdateVariant(ctx context.Context, adminID, productID, variantID string, req shop.VariantRequest) error
	DeleteVariant(ctx context.Context, adminID, productID, variantID string) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, req *types.ListRequest) (*shop.OrderListResponse, error)
	SetOrderStatus(ctx context.Context, adminID, id string, req shop.OrderStatusRequest) (*models.Order, error)
}

type Statistics interface {
	GetStatistic(ctx context.Context, req *statistics.StatisticRequest) (*statistics.StatisticResponse, error)
}

type AdminLogs interface {
	List(ctx context.Context, req *types.ListRequest) ([]models.AdminLog, int64, error)
}

// AdminDeps groups what the admin API needs.
type AdminDeps struct {
	Members  AdminMembers
	Payments AdminPayments
	Sweeper  Sweeper
	Events   AdminEvents
	Shop     AdminShop
	Stats    Statistics
	Logs     AdminLogs
}

// @Summary      List members (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListRequest false "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespMemberList
// @Router       /api/admin/members/search [post]
func ApiAdminListMembers(svc AdminMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bound := bindList(c)
		if !bound {
			return
		}
		res, err := svc.List(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Member details (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Profile ID"
// @Success      200  {object}  handlers.RespProfile
// @Router       /api/admin/members/{id} [get]
func ApiAdminGetMember(svc AdminMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, v)
	}
}

// @Summary      Change member status (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Profile ID"
// @Param        request body member.StatusRequest true "New status"
// @Success      200  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespError
// @Router       /api/admin/members/{id}/status [put]
func ApiAdminSetMemberStatus(svc AdminMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req member.StatusRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := svc.SetStatus(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Change member role (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Profile ID"
// @Param        request body member.RoleRequest true "New role"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/admin/members/{id}/role [put]
func ApiAdminSetMemberRole(svc AdminMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req member.RoleRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := svc.SetRole(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Invite a member (Admin)
// @Description  Creates an inactive profile and mails a password setup link.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body member.InviteRequest true "Invitee"
// @Success      201  {object}  handlers.RespOK
// @Failure      409  {object}  handlers.RespError
// @Router       /api/admin/members/invite [post]
func ApiAdminInviteMember(svc AdminMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req member.InviteRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := svc.Invite(c.Request.Context(), callerID(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, p)
	}
}

// @Summary      Import members from CSV (Admin)
// @Description  Rows need an email column; existing emails are skipped. Imported members receive no email.
// @Tags         Admin
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file formData file true "CSV file"
// @Success      200  {object}  handlers.RespImport
// @Failure      400  {object}  handlers.RespError
// @Router       /api/admin/members/import [post]
func ApiAdminImportMembers(svc AdminMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, member.MaxImportSize+1<<20)
		fh, err := c.FormFile("file")
		if err != nil {
			fail(c, apperr.InvalidErr("upload a CSV file in the \"file\" field", map[string]string{"file": "required"}))
			return
		}
		if fh.Size > member.MaxImportSize {
			fail(c, apperr.InvalidErr("file is larger than 5 MB", map[string]string{"file": "too large"}))
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, apperr.Wrap(err))
			return
		}
		defer f.Close()
		res, err := svc.Import(c.Request.Context(), callerID(c), fh.Filename, f)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      List payments (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListRequest false "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespPaymentList
// @Router       /api/admin/payments/search [post]
func ApiAdminListPayments(svc AdminPayments) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bound := bindList(c)
		if !bound {
			return
		}
		res, err := svc.List(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Payment details (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Payment ID"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/admin/payments/{id} [get]
func ApiAdminGetPayment(svc AdminPayments) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Provider callbacks for a payment (Admin)
// @Description  Raw deliveries stored for the payment's checkout id, oldest first.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Payment ID"
// @Success      200  {object}  handlers.RespCallbackLogs
// @Failure      404  {object}  handlers.RespError
// @Router       /api/admin/payments/{id}/callbacks [get]
func ApiAdminPaymentCallbacks(svc AdminPayments) gin.HandlerFunc {
	return func(c *gin.Context) {
		logs, err := svc.CallbackHistory(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, logs)
	}
}

// @Summary      Override payment status (Admin)
// @Description  Confirming runs provisioning exactly as a provider confirmation would.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Payment ID"
// @Param        request body payment.OverrideRequest true "Target status and reason"
// @Success      200  {object}  handlers.RespPayment
// @Failure      409  {object}  handlers.RespError
// @Router       /api/admin/payments/{id}/override [post]
func ApiAdminOverridePayment(svc AdminPayments) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.OverrideRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := svc.Override(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Reconcile stale payments now (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespReconcile
// @Router       /api/admin/payments/reconcile [post]
func ApiAdminReconcile(w Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := w.RunOnce(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, report)
	}
}

// @Summary      List events (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListRequest false "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespEventList
// @Router       /api/admin/events/search [post]
func ApiAdminListEvents(svc AdminEvents) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bound := bindList(c)
		if !bound {
			return
		}
		res, err := svc.List(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Create event (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body event.CreateRequest true "Event"
// @Success      201  {object}  handlers.RespEvent
// @Router       /api/admin/events [post]
func ApiAdminCreateEvent(svc AdminEvents) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req event.CreateRequest
		if !bindJSON(c, &req) {
			return
		}
		e, err := svc.Create(c.Request.Context(), callerID(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, e)
	}
}

// @Summary      Event details (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Event ID"
// @Success      200  {object}  handlers.RespEvent
// @Router       /api/admin/events/{id} [get]
func ApiAdminGetEvent(svc AdminEvents) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, e)
	}
}

// @Summary      Update event (Admin)
// @Description  Cancel an event by setting its status to cancelled.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Event ID"
// @Param        request body event.UpdateRequest true "Fields to change"
// @Success      200  {object}  handlers.RespEvent
// @Router       /api/admin/events/{id} [put]
func ApiAdminUpdateEvent(svc AdminEvents) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req event.UpdateRequest
		if !bindJSON(c, &req) {
			return
		}
		e, err := svc.Update(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, e)
	}
}

// @Summary      Event registrations (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Event ID"
// @Success      200  {object}  handlers.RespRegistrations
// @Router       /api/admin/events/{id}/registrations [get]
func ApiAdminEventRegistrations(svc AdminEvents) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.Registrations(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// @Summary      List all products (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespProducts
// @Router       /api/admin/products [get]
func ApiAdminListProducts(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.ListProducts(c.Request.Context(), false)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, items)
	}
}

// @Summary      Create product (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body shop.ProductRequest true "Product with variants"
// @Success      201  {object}  handlers.RespProduct
// @Router       /api/admin/products [post]
func ApiAdminCreateProduct(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shop.ProductRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), callerID(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, p)
	}
}

// @Summary      Product details (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product ID"
// @Success      200  {object}  handlers.RespProduct
// @Router       /api/admin/products/{id} [get]
func ApiAdminGetProduct(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.GetProduct(c.Request.Context(), c.Param("id"), false)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Update product (Admin)
// @Description  Retire a product by setting active to false.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product ID"
// @Param        request body shop.ProductUpdateRequest true "Fields to change"
// @Success      200  {object}  handlers.RespProduct
// @Router       /api/admin/products/{id} [put]
func ApiAdminUpdateProduct(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shop.ProductUpdateRequest
		if !bindJSON(c, &req) {
			return
		}
		p, err := svc.UpdateProduct(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, p)
	}
}

// @Summary      Add product variant (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product ID"
// @Param        request body shop.VariantRequest true "Variant"
// @Success      201  {object}  handlers.RespOK
// @Router       /api/admin/products/{id}/variants [post]
func ApiAdminAddVariant(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shop.VariantRequest
		if !bindJSON(c, &req) {
			return
		}
		v, err := svc.AddVariant(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		created(c, v)
	}
}

// @Summary      Update product variant (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product ID"
// @Param        variant_id path string true "Variant ID"
// @Param        request body shop.VariantRequest true "Variant"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/admin/products/{id}/variants/{variant_id} [put]
func ApiAdminUpdateVariant(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shop.VariantRequest
		if !bindJSON(c, &req) {
			return
		}
		if err := svc.UpdateVariant(c.Request.Context(), callerID(c), c.Param("id"), c.Param("variant_id"), req); err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	}
}

// @Summary      Delete product variant (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Product ID"
// @Param        variant_id path string true "Variant ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/admin/products/{id}/variants/{variant_id} [delete]
func ApiAdminDeleteVariant(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteVariant(c.Request.Context(), callerID(c), c.Param("id"), c.Param("variant_id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, nil)
	}
}

// @Summary      List orders (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListRequest false "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespOrderList
// @Router       /api/admin/orders/search [post]
func ApiAdminListOrders(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bound := bindList(c)
		if !bound {
			return
		}
		res, err := svc.ListOrders(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      Order details (Admin)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order ID"
// @Success      200  {object}  handlers.RespOrder
// @Router       /api/admin/orders/{id} [get]
func ApiAdminGetOrder(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.GetOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

// @Summary      Move an order along fulfilment (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order ID"
// @Param        request body shop.OrderStatusRequest true "Target status"
// @Success      200  {object}  handlers.RespOrder
// @Failure      409  {object}  handlers.RespError
// @Router       /api/admin/orders/{id}/status [put]
func ApiAdminSetOrderStatus(svc AdminShop) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shop.OrderStatusRequest
		if !bindJSON(c, &req) {
			return
		}
		o, err := svc.SetOrderStatus(c.Request.Context(), callerID(c), c.Param("id"), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, o)
	}
}

// @Summary      Dashboard statistics (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body statistics.StatisticRequest true "Items and filters"
// @Success      200  {object}  handlers.RespStatistic
// @Router       /api/admin/statistics [post]
func ApiAdminStatistics(svc Statistics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.StatisticRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.GetStatistic(c.Request.Context(), &req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

type AdminLogList struct {
	Items []models.AdminLog `json:"items"`
	Total int64             `json:"total"`
}

// @Summary      Admin audit log (Admin)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body types.ListRequest false "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespAdminLogs
// @Router       /api/admin/logs/search [post]
func ApiAdminLogs(svc AdminLogs) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, bound := bindList(c)
		if !bound {
			return
		}
		items, total, err := svc.List(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, &AdminLogList{Items: items, Total: total})
	}
}

// RegisterAdminRoutes mounts the admin API; the group is expected to require
// an admin session.
func RegisterAdminRoutes(r gin.IRouter, d AdminDeps) {
	r.POST("/members/search", ApiAdminListMembers(d.Members))
	r.POST("/members/invite", ApiAdminInviteMember(d.Members))
	r.POST("/members/import", ApiAdminImportMembers(d.Members))
	r.GET("/members/:id", ApiAdminGetMember(d.Members))
	r.PUT("/members/:id/status", ApiAdminSetMemberStatus(d.Members))
	r.PUT("/members/:id/role", ApiAdminSetMemberRole(d.Members))

	r.POST("/payments/search", ApiAdminListPayments(d.Payments))
	r.POST("/payments/reconcile", ApiAdminReconcile(d.Sweeper))
	r.GET("/payments/:id", ApiAdminGetPayment(d.Payments))
	r.GET("/payments/:id/callbacks", ApiAdminPaymentCallbacks(d.Payments))
	r.POST("/payments/:id/override", ApiAdminOverridePayment(d.Payments))

	r.POST("/events", ApiAdminCreateEvent(d.Events))
	r.POST("/events/search", ApiAdminListEvents(d.Events))
	r.GET("/events/:id", ApiAdminGetEvent(d.Events))
	r.PUT("/events/:id", ApiAdminUpdateEvent(d.Events))
	r.GET("/events/:id/registrations", ApiAdminEventRegistrations(d.Events))

	r.GET("/products", ApiAdminListProducts(d.Shop))
	r.POST("/products", ApiAdminCreateProduct(d.Shop))
	r.GET("/products/:id", ApiAdminGetProduct(d.Shop))
	r.PUT("/products/:id", ApiAdminUpdateProduct(d.Shop))
	r.POST("/products/:id/variants", ApiAdminAddVariant(d.Shop))
	r.PUT("/products/:id/variants/:variant_id", ApiAdminUpdateVariant(d.Shop))
	r.DELETE("/products/:id/variants/:variant_id", ApiAdminDeleteVariant(d.Shop))

	r.POST("/orders/search", ApiAdminListOrders(d.Shop))
	r.GET("/orders/:id", ApiAdminGetOrder(d.Shop))
	r.PUT("/orders/:id/status", ApiAdminSetOrderStatus(d.Shop))

	r.POST("/statistics", ApiAdminStatistics(d.Stats))
	r.POST("/logs/search", ApiAdminLogs(d.Logs))
}
