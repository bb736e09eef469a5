// Package shop runs the merchandise catalogue and orders. Orders are priced
// from the catalogue on the server and paid through a merchandise push.
package shop

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/app/repository"
	"github.com/fatflowers/alumni/internal/app/service/admin_log"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

const maxOrderLines = 20

type ProductStore interface {
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, id string) (*models.Product, error)
	Update(ctx context.Context, id string, values map[string]any) error
	List(ctx context.Context, activeOnly bool) ([]models.Product, error)
	CreateVariant(ctx context.Context, v *models.ProductVariant) error
	UpdateVariant(ctx context.Context, productID, variantID string, values map[string]any) error
	DeleteVariant(ctx context.Context, productID, variantID string) error
}

type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	Transition(ctx context.Context, id string, next types.OrderStatus, values map[string]any) (bool, error)
	UpdateFields(ctx context.Context, id string, values map[string]any) error
	List(ctx context.Context, req *types.ListRequest) ([]models.Order, int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Order, error)
}

type ProfileStore interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
}

type Payments interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error)
}

type AdminAudit interface {
	Record(ctx context.Context, adminID, action, targetType, targetID string, details map[string]any)
}

type Service struct {
	products ProductStore
	orders   OrderStore
	profiles ProfileStore
	payments Payments
	audit    AdminAudit
	log      *zap.SugaredLogger
}

func New(products ProductStore, orders OrderStore, profiles ProfileStore, payments Payments, audit AdminAudit, log *zap.SugaredLogger) *Service {
	return &Service{products: products, orders: orders, profiles: profiles, payments: payments, audit: audit, log: log}
}

type fxDeps struct {
	fx.In

	Products *repository.ProductRepo
	Orders   *repository.OrderRepo
	Profiles *repository.ProfileRepo
	Payments *payment.Service
	Audit    *admin_log.Service
	Log      *zap.SugaredLogger
}

func newFromDeps(d fxDeps) *Service {
	return New(d.Products, d.Orders, d.Profiles, d.Payments, d.Audit, d.Log)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundErr(what + " not found")
	}
	return apperr.Wrap(err)
}

type VariantRequest struct {
	Name            string `json:"name" binding:"required,max=128"`
	PriceAdjustment int64  `json:"price_adjustment"`
	Stock           int    `json:"stock" binding:"min=0"`
}

type ProductRequest struct {
	Name        string           `json:"name" binding:"required,max=255"`
	Description string           `json:"description"`
	Price       int64            `json:"price" binding:"required,min=1"`
	ImageURL    string           `json:"image_url" binding:"omitempty,url"`
	Active      *bool            `json:"active"`
	Variants    []VariantRequest `json:"variants" binding:"dive"`
}

func (s *Service) CreateProduct(ctx context.Context, adminID string, req ProductRequest) (*models.Product, error) {
	p := &models.Product{
		ID:          tool.GenerateUUIDV7(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Active:      req.Active == nil || *req.Active,
	}
	for _, v := range req.Variants {
		if req.Price+v.PriceAdjustment <= 0 {
			return nil, apperr.InvalidErr("variant price must stay positive", map[string]string{"variants": v.Name})
		}
		p.Variants = append(p.Variants, models.ProductVariant{
			ID:              tool.GenerateUUIDV7(),
			ProductID:       p.ID,
			Name:            strings.TrimSpace(v.Name),
			PriceAdjustment: v.PriceAdjustment,
			Stock:           v.Stock,
		})
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "product_create", "product", p.ID, map[string]any{"name": p.Name, "price": p.Price})
	return p, nil
}

type ProductUpdateRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	Description *string `json:"description"`
	Price       *int64  `json:"price" binding:"omitempty,min=1"`
	ImageURL    *string `json:"image_url" binding:"omitempty,url"`
	Active      *bool   `json:"active"`
}

func (s *Service) UpdateProduct(ctx context.Context, adminID, id string, req ProductUpdateRequest) (*models.Product, error) {
	values := map[string]any{}
	if req.Name != nil {
		values["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		values["description"] = *req.Description
	}
	if req.Price != nil {
		values["price"] = *req.Price
	}
	if req.ImageURL != nil {
		values["image_url"] = *req.ImageURL
	}
	if req.Active != nil {
		values["active"] = *req.Active
	}
	if len(values) > 0 {
		if err := s.products.Update(ctx, id, values); err != nil {
			return nil, notFound(err, "product")
		}
		s.audit.Record(ctx, adminID, "product_update", "product", id, values)
	}
	return s.GetProduct(ctx, id, false)
}

// GetProduct returns the product with its variants; activeOnly hides retired ones.
func (s *Service) GetProduct(ctx context.Context, id string, activeOnly bool) (*models.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	if activeOnly && !p.Active {
		return nil, apperr.NotFoundErr("product not found")
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	items, err := s.products.List(ctx, activeOnly)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return items, nil
}

func (s *Service) AddVariant(ctx context.Context, adminID, productID string, req VariantRequest) (*models.ProductVariant, error) {
	p, err := s.GetProduct(ctx, productID, false)
	if err != nil {
		return nil, err
	}
	if p.Price+req.PriceAdjustment <= 0 {
		return nil, apperr.InvalidErr("variant price must stay positive", map[string]string{"price_adjustment": "too low"})
	}
	v := &models.ProductVariant{
		ID:              tool.GenerateUUIDV7(),
		ProductID:       productID,
		Name:            strings.TrimSpace(req.Name),
		PriceAdjustment: req.PriceAdjustment,
		Stock:           req.Stock,
	}
	if err := s.products.CreateVariant(ctx, v); err != nil {
		return nil, apperr.Wrap(err)
	}
	s.audit.Record(ctx, adminID, "variant_create", "product", productID, map[string]any{"variant_id": v.ID, "name": v.Name})
	return v, nil
}

func (s *Service) UpdateVariant(ctx context.Context, adminID, productID, variantID string, req VariantRequest) error {
	values := map[string]any{
		"name":             strings.TrimSpace(req.Name),
		"price_adjustment": req.PriceAdjustment,
		"stock":            req.Stock,
	}
	if err := s.products.UpdateVariant(ctx, productID, variantID, values); err != nil {
		return notFound(err, "variant")
	}
	s.audit.Record(ctx, adminID, "variant_update", "product", productID, map[string]any{"variant_id": variantID})
	return nil
}

func (s *Service) DeleteVariant(ctx context.Context, adminID, productID, variantID string) error {
	if err := s.products.DeleteVariant(ctx, productID, variantID); err != nil {
		return notFound(err, "variant")
	}
	s.audit.Record(ctx, adminID, "variant_delete", "product", productID, map[string]any{"variant_id": variantID})
	return nil
}

type OrderLine struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=100"`
}

type OrderRequest struct {
	Items           []OrderLine `json:"items" binding:"required,min=1,dive"`
	Phone           string      `json:"phone"`
	Email           string      `json:"email" binding:"omitempty,email"`
	ShippingName    string      `json:"shipping_name" binding:"max=255"`
	ShippingAddress string      `json:"shipping_address"`
	Notes           string      `json:"notes"`
}

type OrderResult struct {
	Order   *models.Order           `json:"order"`
	Payment *payment.InitiateResult `json:"payment"`
}

// PlaceOrder prices the cart, stores a pending order and starts its payment.
// A failed push leaves the order pending so the payment can be retried; the
// result is returned alongside the error in that case.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req OrderRequest) (*OrderResult, error) {
	if len(req.Items) == 0 || len(req.Items) > maxOrderLines {
		return nil, apperr.InvalidErr("an order needs between 1 and 20 lines", map[string]string{"items": "invalid length"})
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	phone := strings.TrimSpace(req.Phone)
	shipName := strings.TrimSpace(req.ShippingName)
	if userID != "" {
		profile, err := s.profiles.Get(ctx, userID)
		switch {
		case err == nil:
			email = lo.CoalesceOrEmpty(email, profile.Email)
			phone = lo.CoalesceOrEmpty(phone, profile.Phone)
			shipName = lo.CoalesceOrEmpty(shipName, profile.FullName())
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, apperr.Wrap(err)
		}
	}
	if email == "" {
		return nil, apperr.InvalidErr("email is required", map[string]string{"email": "required"})
	}

	items, err := s.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	o := &models.Order{
		ID:              tool.GenerateUUIDV7(),
		Email:           email,
		Phone:           phone,
		Items:           datatypes.NewJSONType(items),
		Status:          types.OrderStatusPending,
		ShippingName:    shipName,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Notes:           strings.TrimSpace(req.Notes),
	}
	if userID != "" {
		o.UserID = lo.ToPtr(userID)
	}
	o.Total = o.ComputeTotal()
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, apperr.Wrap(err)
	}
	logctx.FromCtx(ctx, s.log).Infow("order_created", "order_id", o.ID, "total", o.Total, "lines", len(items))

	res, err := s.payments.Initiate(ctx, payment.InitiateRequest{
		UserID:   userID,
		Email:    email,
		Phone:    phone,
		Amount:   o.Total,
		Type:     types.PaymentTypeMerchandise,
		Metadata: &models.PaymentMetadata{OrderID: o.ID},
	})
	if res != nil && res.PaymentID != "" {
		if uerr := s.orders.UpdateFields(ctx, o.ID, map[string]any{"payment_id": res.PaymentID}); uerr != nil {
			logctx.FromCtx(ctx, s.log).Warnw("order_payment_link_failed", "order_id", o.ID, "err", uerr)
		}
		o.PaymentID = lo.ToPtr(res.PaymentID)
	}
	// on a refused push the result still names the pending order and payment
	return &OrderResult{Order: o, Payment: res}, err
}

func (s *Service) price(ctx context.Context, lines []OrderLine) ([]models.OrderItem, error) {
	products := map[string]*models.Product{}
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			var err error
			p, err = s.products.Get(ctx, line.ProductID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.InvalidErr("unknown product", map[string]string{"product_id": line.ProductID})
			}
			if err != nil {
				return nil, apperr.Wrap(err)
			}
			products[line.ProductID] = p
		}
		if !p.Active {
			return nil, apperr.InvalidErr("product is no longer available", map[string]string{"product_id": p.ID})
		}
		item := models.OrderItem{ProductID: p.ID, Name: p.Name, Quantity: line.Quantity, UnitPrice: p.Price}
		switch {
		case line.VariantID != "":
			v, found := lo.Find(p.Variants, func(v models.ProductVariant) bool { return v.ID == line.VariantID })
			if !found {
				return nil, apperr.InvalidErr("unknown variant", map[string]string{"variant_id": line.VariantID})
			}
			item.VariantID = v.ID
			item.VariantName = v.Name
			item.UnitPrice = p.Price + v.PriceAdjustment
		case len(p.Variants) > 0:
			return nil, apperr.InvalidErr("choose a variant", map[string]string{"variant_id": "required for " + p.Name})
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	return o, nil
}

// GetOrderFor returns the order only to its owner.
func (s *Service) GetOrderFor(ctx context.Context, userID, id string) (*models.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, apperr.NotFoundErr("order not found")
	}
	return o, nil
}

func (s *Service) OrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	items, err := s.orders.ListByUser(ctx, userID, 100)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return items, nil
}

type OrderListResponse struct {
	Items []models.Order `json:"items"`
	Total int64          `json:"total"`
}

func (s *Service) ListOrders(ctx context.Context, req *types.ListRequest) (*OrderListResponse, error) {
	if err := types.ValidateFilters(req.Filters, repository.OrderListFields); err != nil {
		return nil, apperr.InvalidErr(err.Error(), nil)
	}
	req.Normalize(repository.OrderListFields, "created_at")
	items, total, err := s.orders.List(ctx, req)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return &OrderListResponse{Items: items, Total: total}, nil
}

type OrderStatusRequest struct {
	Status types.OrderStatus `json:"status" binding:"required"`
	Notes  string            `json:"notes" binding:"max=1000"`
}

// SetOrderStatus moves an order along its fulfilment states.
func (s *Service) SetOrderStatus(ctx context.Context, adminID, id string, req OrderStatusRequest) (*models.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, apperr.InvalidErr("unknown order status", map[string]string{"status": string(req.Status)})
	}
	if _, err := o.Status.Transition(req.Status); err != nil {
		return nil, apperr.ConflictErr(err.Error())
	}
	values := map[string]any{}
	if req.Notes != "" {
		values["notes"] = req.Notes
	}
	ok, err := s.orders.Transition(ctx, id, req.Status, values)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if !ok {
		return nil, apperr.ConflictErr("order changed while updating, reload and try again")
	}
	s.audit.Record(ctx, adminID, "order_status", "order", id, map[string]any{"from": string(o.Status), "to": string(req.Status)})
	return s.GetOrder(ctx, id)
}

var Module = fx.Options(
	fx.Provide(newFromDeps),
)
