package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fatflowers/alumni/internal/app/service/callback_log"
	"github.com/fatflowers/alumni/internal/app/service/membership"
	"github.com/fatflowers/alumni/internal/app/service/memstore"
	"github.com/fatflowers/alumni/internal/app/service/notification"
	"github.com/fatflowers/alumni/internal/app/service/provisioning"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/internal/platform/mailer"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/tool"
	"github.com/fatflowers/alumni/pkg/types"
)

type fakeGateway struct {
	mu       sync.Mutex
	pushErr  error
	pushes   int
	query    *mpesa.QueryResult
	queryErr error
	queries  int
}

func (g *fakeGateway) STKPush(_ context.Context, in mpesa.STKPushRequest) (*mpesa.STKPushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := mpesa.NormalizePhone(in.Phone); err != nil {
		return nil, err
	}
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	g.pushes++
	return &mpesa.STKPushResult{
		MerchantRequestID: fmt.Sprintf("m-%d", g.pushes),
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", g.pushes),
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

func (g *fakeGateway) QueryStatus(context.Context, string) (*mpesa.QueryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries++
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	if g.query == nil {
		return &mpesa.QueryResult{Pending: true}, nil
	}
	return g.query, nil
}

type auditEntry struct {
	adminID, action, targetID string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *fakeAudit) Record(_ context.Context, adminID, action, _, targetID string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{adminID: adminID, action: action, targetID: targetID})
}

type fixture struct {
	svc     *Service
	db      *memstore.DB
	gateway *fakeGateway
	audit   *fakeAudit
	mail    *mailer.Mock
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	db := memstore.New()
	mail := &mailer.Mock{}
	notify, err := notification.New(mail, log, "ops@example.org")
	require.NoError(t, err)

	members := membership.New(db.Profiles(), db.Memberships(), config.MembershipConfig{NumberSeed: 1000, TermMonths: 12}, log)
	idp := identity.NewLocal(db.AuthUsers(), config.AuthConfig{
		JWTSecret:        "test-secret",
		PasswordSetupURL: "https://alumni.example.org/set-password",
		BcryptCost:       bcrypt.MinCost,
	}, log)
	dispatch := provisioning.NewDispatcher(db.Payments(), map[types.PaymentType]provisioning.Handler{
		types.PaymentTypeRegistration: provisioning.NewRegistration(db.Payments(), db.Profiles(), members, idp, notify, log),
		types.PaymentTypeRenewal:      provisioning.NewRenewal(db.Profiles(), members, notify, log),
		types.PaymentTypeEvent:        provisioning.NewEvent(db.Events(), db, notify, log),
		types.PaymentTypeMerchandise:  provisioning.NewMerchandise(db.Orders(), notify, log),
	}, notify, nil, log)

	f := &fixture{db: db, gateway: &fakeGateway{}, audit: &fakeAudit{}, mail: mail, now: time.Now().UTC()}
	f.svc = New(Deps{
		Payments:  db.Payments(),
		Profiles:  db.Profiles(),
		Gateway:   f.gateway,
		Provision: dispatch,
		Callbacks: callback_log.New(db.CallbackLogs(), log),
		Audit:     f.audit,
		Alerts:    notify,
		Log:       log,
	}, config.FeesConfig{Registration: 1000, Renewal: 500}, time.Minute)
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) payment(t *testing.T, id string) *models.Payment {
	t.Helper()
	p, err := f.db.Payments().Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func successCallback(checkoutID string, amount int64) []byte {
	return fmt.Appendf(nil, `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":%d},{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"TransactionDate","Value":20240601120000},{"Name":"PhoneNumber","Value":254712345678}]}}}}`, checkoutID, amount)
}

func failedCallback(checkoutID string) []byte {
	return fmt.Appendf(nil, `{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":%q,"ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`, checkoutID)
}

func register(t *testing.T, f *fixture) *InitiateResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterRequest{
		FirstName: "Jane", LastName: "Doe", Email: "Jane@Example.org", Phone: "0712345678",
	})
	require.NoError(t, err)
	return res
}

func TestRegister_DuplicateCallbacksProvisionOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)
	require.Equal(t, types.PaymentStatusProcessing, res.Status)
	require.Equal(t, int64(1000), res.Amount)
	require.Equal(t, "ws_CO_1", res.CheckoutRequestID)

	body := successCallback(res.CheckoutRequestID, 1000)
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- f.svc.HandleCallback(ctx, body)
		}()
	}
	wg.Wait()
	close(outcomes)
	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	require.Equal(t, 1, counts[OutcomeConfirmed])
	require.Equal(t, 3, counts[OutcomeDuplicate])

	p := f.payment(t, res.PaymentID)
	require.Equal(t, types.PaymentStatusConfirmed, p.Status)
	require.Equal(t, "NLJ7RT61SV", *p.ReceiptNumber)
	require.Equal(t, types.ProvisioningStatusDone, p.ProvisioningStatus)
	require.Len(t, f.db.Profiles().All(), 1)
	require.Equal(t, 1, f.mail.Count(string(notification.TemplateWelcome)))
	require.Equal(t, 4, f.db.CallbackLogs().Count())

	// a late failure report cannot undo the confirmation
	require.Equal(t, OutcomeIgnored, f.svc.HandleCallback(ctx, failedCallback(res.CheckoutRequestID)))
	require.Equal(t, types.PaymentStatusConfirmed, f.payment(t, res.PaymentID).Status)
}

func TestEventPayment_ConfirmedOnceAddsOneAttendee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := &models.Event{
		ID: tool.GenerateUUIDV7(), Title: "Annual Gala", StartsAt: f.now.AddDate(0, 1, 0),
		Price: 1000, MemberDiscount: 5, CurrentAttendees: 40, Status: types.EventStatusPublished,
	}
	require.NoError(t, f.db.Events().Create(ctx, ev))

	res, err := f.svc.Initiate(ctx, InitiateRequest{
		Email:  "jane@example.org",
		Phone:  "0712345678",
		Amount: ev.PriceFor(true),
		Type:   types.PaymentTypeEvent,
		Metadata: &models.PaymentMetadata{
			EventID:     ev.ID,
			MemberPrice: true,
			Attendee:    &models.Attendee{Name: "Jane Doe", Email: "jane@example.org"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, int64(950), res.Amount)

	body := successCallback(res.CheckoutRequestID, 950)
	require.Equal(t, OutcomeConfirmed, f.svc.HandleCallback(ctx, body))
	require.Equal(t, OutcomeDuplicate, f.svc.HandleCallback(ctx, body))

	stored, err := f.db.Events().Get(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, 41, stored.CurrentAttendees)
	regs, err := f.db.Events().ListRegistrations(ctx, ev.ID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, "Jane Doe", regs[0].AttendeeName)
	require.Equal(t, 1, f.mail.Count(string(notification.TemplateEventRegistration)))
	require.Equal(t, 0, f.mail.Count(string(notification.TemplateAdminAlert)))
}

func TestCallback_AmountMismatchAlerts(t *testing.T) {
	f := newFixture(t)
	res := register(t, f)
	require.Equal(t, OutcomeConfirmed, f.svc.HandleCallback(context.Background(), successCallback(res.CheckoutRequestID, 10)))
	require.Equal(t, 1, f.mail.Count(string(notification.TemplateAdminAlert)))

	p := f.payment(t, res.PaymentID)
	require.Equal(t, types.PaymentStatusConfirmed, p.Status)
	require.EqualValues(t, 10, p.Meta().PaidAmount)
	require.NotNil(t, p.Meta().Registration)
}

func TestCallback_FailureThenLateSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)

	require.Equal(t, OutcomeFailed, f.svc.HandleCallback(ctx, failedCallback(res.CheckoutRequestID)))
	p := f.payment(t, res.PaymentID)
	require.Equal(t, types.PaymentStatusFailed, p.Status)
	require.Equal(t, 1032, *p.ResultCode)
	require.NotNil(t, p.FailedAt)
	require.Empty(t, f.db.Profiles().All())

	require.Equal(t, OutcomeDuplicate, f.svc.HandleCallback(ctx, failedCallback(res.CheckoutRequestID)))
	require.Equal(t, OutcomeConfirmed, f.svc.HandleCallback(ctx, successCallback(res.CheckoutRequestID, 1000)))
	require.Len(t, f.db.Profiles().All(), 1)
}

func TestCallback_UnmatchedAndInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, OutcomeUnmatched, f.svc.HandleCallback(ctx, successCallback("ws_CO_unknown", 10)))
	require.Equal(t, OutcomeInvalid, f.svc.HandleCallback(ctx, []byte(`not json`)))
	require.Equal(t, OutcomeInvalid, f.svc.HandleCallback(ctx, []byte(`{"Body":{}}`)))
	require.Equal(t, 3, f.db.CallbackLogs().Count())
}

func TestCallbackHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)
	require.Equal(t, OutcomeFailed, f.svc.HandleCallback(ctx, failedCallback(res.CheckoutRequestID)))
	require.Equal(t, OutcomeConfirmed, f.svc.HandleCallback(ctx, successCallback(res.CheckoutRequestID, 1000)))

	logs, err := f.svc.CallbackHistory(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		require.Equal(t, res.CheckoutRequestID, l.CheckoutRequestID)
	}

	_, err = f.svc.CallbackHistory(ctx, "missing")
	require.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestCallback_LocatesByMerchantRequestID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)
	body := fmt.Appendf(nil, `{"Body":{"stkCallback":{"MerchantRequestID":%q,"CheckoutRequestID":"","ResultCode":0,"ResultDesc":"ok"}}}`, res.MerchantRequestID)
	require.Equal(t, OutcomeConfirmed, f.svc.HandleCallback(ctx, body))
}

func TestInitiate_ProviderFailureKeepsPendingRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gateway.pushErr = errors.New("connection refused")

	_, err := f.svc.Register(ctx, RegisterRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@example.org", Phone: "0712345678"})
	require.True(t, apperr.IsKind(err, apperr.Unavailable))
	require.Equal(t, 502, apperr.HTTPStatus(err))

	all := f.db.Payments().All()
	require.Len(t, all, 1)
	require.Equal(t, types.PaymentStatusPending, all[0].Status)
	require.Empty(t, all[0].CheckoutID())

	// the next attempt for the same email reuses the row
	f.gateway.pushErr = nil
	res, err := f.svc.Register(ctx, RegisterRequest{FirstName: "Jane", LastName: "Doe", Email: "jane@example.org", Phone: "0722000111"})
	require.NoError(t, err)
	require.Equal(t, all[0].ID, res.PaymentID)
	require.Len(t, f.db.Payments().All(), 1)
	p := f.payment(t, res.PaymentID)
	require.Equal(t, "254722000111", p.Phone)
	require.Equal(t, types.PaymentStatusProcessing, p.Status)
}

func TestInitiate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Initiate(ctx, InitiateRequest{Phone: "0712345678", Amount: 10, Type: "donation"})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
	_, err = f.svc.Initiate(ctx, InitiateRequest{Phone: "0712345678", Amount: 0, Type: types.PaymentTypeEvent})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
	_, err = f.svc.Initiate(ctx, InitiateRequest{Phone: "12345", Amount: 10, Type: types.PaymentTypeEvent})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
	_, err = f.svc.Register(ctx, RegisterRequest{FirstName: "J", LastName: "D", Email: "not-an-email", Phone: "0712345678"})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
	require.Empty(t, f.db.Payments().All())
}

func TestRegister_ActiveMemberConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.Profiles().Create(ctx, &models.Profile{ID: "u-1", Email: "jane@example.org", Status: types.ProfileStatusActive, Role: types.RoleMember}))
	_, err := f.svc.Register(ctx, RegisterRequest{FirstName: "Jane", LastName: "Doe", Email: "JANE@example.org", Phone: "0712345678"})
	require.True(t, apperr.IsKind(err, apperr.Conflict))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)

	_, err := f.svc.Retry(ctx, RetryRequest{PaymentID: res.PaymentID, Email: "jane@example.org"})
	require.True(t, apperr.IsKind(err, apperr.Conflict), "processing payments are not retried")

	require.Equal(t, OutcomeFailed, f.svc.HandleCallback(ctx, failedCallback(res.CheckoutRequestID)))
	again, err := f.svc.Retry(ctx, RetryRequest{PaymentID: res.PaymentID, Phone: "0733000111", Email: " JANE@example.org"})
	require.NoError(t, err)
	require.NotEqual(t, res.PaymentID, again.PaymentID)

	p := f.payment(t, again.PaymentID)
	require.Equal(t, res.PaymentID, p.Meta().RetryOf)
	require.Equal(t, "254733000111", p.Phone)
	require.Equal(t, "jane@example.org", p.Meta().Registration.Email)
	require.Equal(t, types.PaymentStatusFailed, f.payment(t, res.PaymentID).Status)

	require.Equal(t, OutcomeConfirmed, f.svc.HandleCallback(ctx, successCallback(again.CheckoutRequestID, 1000)))
	_, err = f.svc.Retry(ctx, RetryRequest{PaymentID: again.PaymentID, Email: "jane@example.org"})
	require.True(t, apperr.IsKind(err, apperr.Conflict))

	_, err = f.svc.Retry(ctx, RetryRequest{PaymentID: "missing"})
	require.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestRetry_RequiresOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	guest := register(t, f)
	require.Equal(t, OutcomeFailed, f.svc.HandleCallback(ctx, failedCallback(guest.CheckoutRequestID)))
	for _, req := range []RetryRequest{
		{PaymentID: guest.PaymentID, Phone: "0733000111"},
		{PaymentID: guest.PaymentID, Phone: "0733000111", Email: "mallory@example.org"},
	} {
		_, err := f.svc.Retry(ctx, req)
		require.True(t, apperr.IsKind(err, apperr.NotFound), req.Email)
	}

	owned, err := f.svc.Initiate(ctx, InitiateRequest{UserID: "user-1", Email: "m@example.org", Phone: "0712345678", Amount: 500, Type: types.PaymentTypeRenewal})
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, f.svc.HandleCallback(ctx, failedCallback(owned.CheckoutRequestID)))

	_, err = f.svc.Retry(ctx, RetryRequest{PaymentID: owned.PaymentID, Email: "m@example.org", Phone: "0733000111"})
	require.True(t, apperr.IsKind(err, apperr.Unauthorized))
	_, err = f.svc.Retry(ctx, RetryRequest{PaymentID: owned.PaymentID, CallerID: "user-2", Phone: "0733000111"})
	require.True(t, apperr.IsKind(err, apperr.NotFound))

	pushes := f.gateway.pushes
	again, err := f.svc.Retry(ctx, RetryRequest{PaymentID: owned.PaymentID, CallerID: "user-1", Phone: "0733000111"})
	require.NoError(t, err)
	require.Equal(t, pushes+1, f.gateway.pushes)
	require.Equal(t, "254733000111", f.payment(t, again.PaymentID).Phone)
	require.Equal(t, "user-1", f.payment(t, again.PaymentID).OwnerID())
	require.Equal(t, "254712345678", f.payment(t, guest.PaymentID).Phone)
}

func TestStatus_QueriesProviderAfterGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)

	view, err := f.svc.Status(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusProcessing, view.Status)
	require.Equal(t, 0, f.gateway.queries)

	f.now = f.now.Add(2 * time.Minute)
	view, err = f.svc.Status(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusProcessing, view.Status)
	require.Equal(t, 1, f.gateway.queries)

	// the last query restarts the grace period
	view, err = f.svc.Status(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, 1, f.gateway.queries)

	f.now = f.now.Add(2 * time.Minute)
	f.gateway.query = &mpesa.QueryResult{ResultCode: 0, ResultDesc: "The service request is processed successfully."}
	view, err = f.svc.Status(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusConfirmed, view.Status)
	require.Equal(t, types.ProvisioningStatusDone, view.ProvisioningStatus)
	require.Len(t, f.db.Profiles().All(), 1)

	_, err = f.svc.Status(ctx, "ws_CO_missing")
	require.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestStatus_LateCallbackFillsReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)

	f.now = f.now.Add(2 * time.Minute)
	f.gateway.query = &mpesa.QueryResult{ResultCode: 0, ResultDesc: "The service request is processed successfully."}
	view, err := f.svc.Status(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusConfirmed, view.Status)
	require.Nil(t, f.payment(t, res.PaymentID).ReceiptNumber)

	require.Equal(t, OutcomeDuplicate, f.svc.HandleCallback(ctx, successCallback(res.CheckoutRequestID, 1000)))
	p := f.payment(t, res.PaymentID)
	require.NotNil(t, p.ReceiptNumber)
	require.Equal(t, "NLJ7RT61SV", *p.ReceiptNumber)
	require.NotNil(t, p.TransactionDate)
	require.NotEmpty(t, p.CallbackData)
	require.Len(t, f.db.Profiles().All(), 1)
	require.Equal(t, 1, f.mail.Count(string(notification.TemplateWelcome)))

	// a second delivery leaves the stored receipt alone
	require.Equal(t, OutcomeDuplicate, f.svc.HandleCallback(ctx, successCallback(res.CheckoutRequestID, 1000)))
	require.Equal(t, "NLJ7RT61SV", *f.payment(t, res.PaymentID).ReceiptNumber)
}

func TestStatus_ProviderErrorKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)
	f.now = f.now.Add(time.Hour)
	f.gateway.queryErr = errors.New("timeout")

	view, err := f.svc.Status(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusProcessing, view.Status)
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)

	_, err := f.svc.Activate(ctx, res.CheckoutRequestID)
	require.True(t, apperr.IsKind(err, apperr.Conflict), "still pending at the provider")

	f.gateway.queryErr = errors.New("timeout")
	_, err = f.svc.Activate(ctx, res.CheckoutRequestID)
	require.Equal(t, 502, apperr.HTTPStatus(err))

	f.gateway.queryErr = nil
	f.gateway.query = &mpesa.QueryResult{ResultCode: 0}
	out, err := f.svc.Activate(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusConfirmed, out.Payment.Status)
	require.Equal(t, provisioning.OutcomeDone, out.Provisioning)

	out, err = f.svc.Activate(ctx, res.CheckoutRequestID)
	require.NoError(t, err)
	require.Equal(t, provisioning.OutcomeDone, out.Provisioning)
	require.Equal(t, 1, f.mail.Count(string(notification.TemplateWelcome)))
}

func TestActivate_RejectsOtherTypes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Initiate(ctx, InitiateRequest{Phone: "0712345678", Amount: 100, Type: types.PaymentTypeMerchandise})
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, res.CheckoutRequestID)
	require.True(t, apperr.IsKind(err, apperr.Invalid))
}

func TestOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := register(t, f)
	require.Equal(t, OutcomeFailed, f.svc.HandleCallback(ctx, failedCallback(res.CheckoutRequestID)))

	_, err := f.svc.Override(ctx, "admin-1", res.PaymentID, OverrideRequest{Status: types.PaymentStatusPending, Reason: "reopen"})
	require.True(t, apperr.IsKind(err, apperr.Conflict))

	p, err := f.svc.Override(ctx, "admin-1", res.PaymentID, OverrideRequest{Status: types.PaymentStatusConfirmed, Reason: "paid at the office"})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusConfirmed, p.Status)
	require.Equal(t, "admin-1", p.Meta().Override.OperatorID)
	require.Equal(t, "jane@example.org", p.Meta().Registration.Email)
	require.Len(t, f.db.Profiles().All(), 1)
	require.Equal(t, []auditEntry{{adminID: "admin-1", action: "payment_override", targetID: res.PaymentID}}, f.audit.entries)

	_, err = f.svc.Override(ctx, "admin-1", res.PaymentID, OverrideRequest{Status: types.PaymentStatusFailed, Reason: "oops"})
	require.True(t, apperr.IsKind(err, apperr.Conflict))
	_, err = f.svc.Override(ctx, "admin-1", res.PaymentID, OverrideRequest{Status: "refunded", Reason: "x"})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := register(t, f)
	second, err := f.svc.Renew(ctx, "missing-user", "0712345678")
	require.Nil(t, second)
	require.True(t, apperr.IsKind(err, apperr.NotFound))

	// a confirmed payment whose provisioning failed earlier
	stuck := &models.Payment{
		ID: tool.GenerateUUIDV7(), Email: "late@example.org", Phone: "254712345678", Amount: 1000,
		PaymentType: types.PaymentTypeRegistration, Status: types.PaymentStatusConfirmed,
		ProvisioningStatus: types.ProvisioningStatusFailed, ProvisioningAttempts: 1,
	}
	require.NoError(t, f.db.Payments().Create(ctx, stuck))

	f.gateway.query = &mpesa.QueryResult{ResultCode: 0}
	report, err := f.svc.Reconcile(ctx, time.Now().Add(time.Minute), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Confirmed)
	assert.Equal(t, 1, report.Reprovisioned)

	require.Equal(t, types.PaymentStatusConfirmed, f.payment(t, first.PaymentID).Status)
	require.Equal(t, types.ProvisioningStatusDone, f.payment(t, stuck.ID).ProvisioningStatus)
	require.Len(t, f.db.Profiles().All(), 2)
}

func TestListForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	register(t, f)
	items, err := f.svc.ListForUser(ctx, "", "jane@example.org")
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = f.svc.List(ctx, &types.ListRequest{Filters: []*types.CommonFilter{{Field: "password", Operator: types.CommonFilterOperatorEq, Values: []any{"x"}}}})
	require.True(t, apperr.IsKind(err, apperr.Invalid))
}
