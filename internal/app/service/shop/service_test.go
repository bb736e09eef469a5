package shop

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/service/memstore"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/types"
)

type fakePayments struct {
	mu   sync.Mutex
	reqs []payment.InitiateRequest
	err  error
}

func (f *fakePayments) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	res := &payment.InitiateResult{PaymentID: "pay-1", Amount: req.Amount, Status: types.PaymentStatusProcessing}
	if f.err != nil {
		res.Status = types.PaymentStatusPending
		return res, f.err
	}
	return res, nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, string, string, string, string, map[string]any) {}

func newShop(t *testing.T) (*Service, *memstore.DB, *fakePayments) {
	t.Helper()
	db := memstore.New()
	pay := &fakePayments{}
	return New(db.Products(), db.Orders(), db.Profiles(), pay, nopAudit{}, zap.NewNop().Sugar()), db, pay
}

func seedCatalogue(t *testing.T, s *Service) (tee, mug *models.Product) {
	t.Helper()
	ctx := context.Background()
	tee, err := s.CreateProduct(ctx, "admin-1", ProductRequest{
		Name:  "Alumni Tee",
		Price: 800,
		Variants: []VariantRequest{
			{Name: "M", Stock: 10},
			{Name: "XXL", PriceAdjustment: 200, Stock: 3},
		},
	})
	require.NoError(t, err)
	mug, err = s.CreateProduct(ctx, "admin-1", ProductRequest{Name: "Mug", Price: 450})
	require.NoError(t, err)
	return tee, mug
}

func TestPlaceOrder_PricesFromCatalogue(t *testing.T) {
	ctx := context.Background()
	s, db, pay := newShop(t)
	tee, mug := seedCatalogue(t, s)
	require.NoError(t, db.Profiles().Create(ctx, &models.Profile{
		ID: "u-1", Email: "jane@example.org", Phone: "254712345678", FirstName: "Jane",
		Status: types.ProfileStatusActive, Role: types.RoleMember, Source: types.ProfileSourceOnline,
	}))
	xxl, _ := lo.Find(tee.Variants, func(v models.ProductVariant) bool { return v.Name == "XXL" })

	res, err := s.PlaceOrder(ctx, "u-1", OrderRequest{Items: []OrderLine{
		{ProductID: tee.ID, VariantID: xxl.ID, Quantity: 2},
		{ProductID: mug.ID, Quantity: 1},
	}, ShippingAddress: "Box 1, Nairobi"})
	require.NoError(t, err)

	require.Equal(t, int64(2*1000+450), res.Order.Total)
	require.Equal(t, types.OrderStatusPending, res.Order.Status)
	require.Equal(t, "Jane", res.Order.ShippingName)
	require.Len(t, pay.reqs, 1)
	require.Equal(t, types.PaymentTypeMerchandise, pay.reqs[0].Type)
	require.Equal(t, res.Order.Total, pay.reqs[0].Amount)
	require.Equal(t, res.Order.ID, pay.reqs[0].Metadata.OrderID)
	require.Equal(t, "254712345678", pay.reqs[0].Phone)

	stored, err := s.GetOrderFor(ctx, "u-1", res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, "pay-1", *stored.PaymentID)
	require.Equal(t, "XXL", stored.Items.Data()[0].VariantName)

	_, err = s.GetOrderFor(ctx, "someone-else", res.Order.ID)
	require.True(t, apperr.IsKind(err, apperr.NotFound))

	mine, err := s.OrdersForUser(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestPlaceOrder_RejectsBadCarts(t *testing.T) {
	ctx := context.Background()
	s, _, pay := newShop(t)
	tee, mug := seedCatalogue(t, s)
	base := OrderRequest{Email: "guest@example.org", Phone: "0712345678"}

	cases := map[string][]OrderLine{
		"unknown product": {{ProductID: "nope", Quantity: 1}},
		"missing variant": {{ProductID: tee.ID, Quantity: 1}},
		"unknown variant": {{ProductID: tee.ID, VariantID: "v-x", Quantity: 1}},
		"empty cart":      {},
	}
	for name, lines := range cases {
		req := base
		req.Items = lines
		_, err := s.PlaceOrder(ctx, "", req)
		require.True(t, apperr.IsKind(err, apperr.Invalid), name)
	}

	_, err := s.UpdateProduct(ctx, "admin-1", mug.ID, ProductUpdateRequest{Active: lo.ToPtr(false)})
	require.NoError(t, err)
	req := base
	req.Items = []OrderLine{{ProductID: mug.ID, Quantity: 1}}
	_, err = s.PlaceOrder(ctx, "", req)
	require.True(t, apperr.IsKind(err, apperr.Invalid))

	_, err = s.PlaceOrder(ctx, "", OrderRequest{Items: req.Items})
	require.True(t, apperr.IsKind(err, apperr.Invalid))

	require.Empty(t, pay.reqs)
}

func TestPlaceOrder_ProviderFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s, db, pay := newShop(t)
	_, mug := seedCatalogue(t, s)
	pay.err = apperr.UnavailableErr(errors.New("timeout"))

	_, err := s.PlaceOrder(ctx, "", OrderRequest{Email: "guest@example.org", Phone: "0712345678", Items: []OrderLine{{ProductID: mug.ID, Quantity: 3}}})
	require.True(t, apperr.IsKind(err, apperr.Unavailable))

	orders, total, err := db.Orders().List(ctx, &types.ListRequest{Size: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, types.OrderStatusPending, orders[0].Status)
	require.Equal(t, "pay-1", *orders[0].PaymentID)
}

func TestSetOrderStatus(t *testing.T) {
	ctx := context.Background()
	s, db, _ := newShop(t)
	o := &models.Order{ID: "o-1", Status: types.OrderStatusPending, Email: "a@example.org"}
	require.NoError(t, db.Orders().Create(ctx, o))

	_, err := s.SetOrderStatus(ctx, "admin-1", "o-1", OrderStatusRequest{Status: types.OrderStatusShipped})
	require.True(t, apperr.IsKind(err, apperr.Conflict))

	got, err := s.SetOrderStatus(ctx, "admin-1", "o-1", OrderStatusRequest{Status: types.OrderStatusProcessing})
	require.NoError(t, err)
	require.Equal(t, types.OrderStatusProcessing, got.Status)

	got, err = s.SetOrderStatus(ctx, "admin-1", "o-1", OrderStatusRequest{Status: types.OrderStatusShipped, Notes: "G4S 123"})
	require.NoError(t, err)
	require.Equal(t, "G4S 123", got.Notes)

	_, err = s.SetOrderStatus(ctx, "admin-1", "o-1", OrderStatusRequest{Status: "lost"})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
	_, err = s.SetOrderStatus(ctx, "admin-1", "missing", OrderStatusRequest{Status: types.OrderStatusCancelled})
	require.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestVariants(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newShop(t)
	_, mug := seedCatalogue(t, s)

	_, err := s.AddVariant(ctx, "admin-1", mug.ID, VariantRequest{Name: "Free", PriceAdjustment: -450})
	require.True(t, apperr.IsKind(err, apperr.Invalid))

	v, err := s.AddVariant(ctx, "admin-1", mug.ID, VariantRequest{Name: "Large", PriceAdjustment: 50, Stock: 4})
	require.NoError(t, err)
	require.NoError(t, s.UpdateVariant(ctx, "admin-1", mug.ID, v.ID, VariantRequest{Name: "Large", PriceAdjustment: 75, Stock: 2}))

	p, err := s.GetProduct(ctx, mug.ID, true)
	require.NoError(t, err)
	require.Len(t, p.Variants, 1)
	require.Equal(t, int64(75), p.Variants[0].PriceAdjustment)

	require.NoError(t, s.DeleteVariant(ctx, "admin-1", mug.ID, v.ID))
	err = s.DeleteVariant(ctx, "admin-1", mug.ID, v.ID)
	require.True(t, apperr.IsKind(err, apperr.NotFound))

	active, err := s.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
}
