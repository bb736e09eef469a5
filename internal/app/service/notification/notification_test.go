package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mailer"
)

func newTestNotifier(t *testing.T, alertTo string) (*Notifier, *mailer.Mock) {
	m := &mailer.Mock{}
	n, err := New(m, zap.NewNop().Sugar(), alertTo)
	require.NoError(t, err)
	return n, m
}

func TestRender_AllTemplates(t *testing.T) {
	n, _ := newTestNotifier(t, "")
	data := map[Template]any{
		TemplateWelcome:             WelcomeData{Name: "Jane", MembershipNumber: "1001", ExpiryDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), SetupLink: "https://x/set?token=a&b"},
		TemplateEventRegistration:   EventRegistrationData{Name: "Jane", EventTitle: "Gala <2024>", Location: "Nairobi", StartsAt: time.Now(), Amount: 950, Receipt: "NLJ7RT61SV"},
		TemplateMerchandiseOrder:    MerchandiseOrderData{Name: "Jane", OrderID: "0190aa-bbbbcccc", Items: []models.OrderItem{{Name: "Scarf", Quantity: 2, UnitPrice: 750}}, Total: 1500, Receipt: "R1"},
		TemplatePaymentConfirmation: PaymentConfirmationData{Name: "Jane", Purpose: "renewal", Amount: 500, Receipt: "R2", ExpiryDate: time.Now()},
		TemplatePasswordReset:       PasswordResetData{Name: "Jane", Link: "https://x", ValidFor: "72 hours"},
		TemplateAdminAlert:          AdminAlertData{Title: "provisioning failed", Details: map[string]any{"payment_id": "p1"}},
	}
	for tmpl, d := range data {
		subject, text, html, err := n.Render(tmpl, d)
		require.NoError(t, err, tmpl)
		require.NotEmpty(t, subject, tmpl)
		require.NotEmpty(t, text, tmpl)
		require.NotEmpty(t, html, tmpl)
	}

	_, text, html, err := n.Render(TemplateEventRegistration, data[TemplateEventRegistration])
	require.NoError(t, err)
	require.Contains(t, text, "Gala <2024>")
	require.Contains(t, html, "Gala &lt;2024&gt;")
	require.Contains(t, text, "KES 950")

	_, text, _, err = n.Render(TemplateMerchandiseOrder, data[TemplateMerchandiseOrder])
	require.NoError(t, err)
	require.Contains(t, text, "2 x Scarf")
	require.Contains(t, text, "KES 1,500")
	require.Contains(t, text, "BBBBCCCC")
}

func TestSend(t *testing.T) {
	n, m := newTestNotifier(t, "ops@example.org")
	ctx := context.Background()

	require.NoError(t, n.Send(ctx, TemplateWelcome, "jane@example.org", "Jane", WelcomeData{Name: "Jane", MembershipNumber: "1001"}))
	require.Equal(t, 1, m.Count(string(TemplateWelcome)))
	require.Equal(t, "jane@example.org", m.Sent[0].To)

	require.Error(t, n.Send(ctx, TemplateWelcome, " ", "", WelcomeData{}))

	n.AdminAlert(ctx, "provider down", map[string]any{"op": "stk_push"})
	require.Equal(t, 1, m.Count(string(TemplateAdminAlert)))

	m.Err = errors.New("smtp down")
	require.Error(t, n.Send(ctx, TemplatePasswordReset, "jane@example.org", "Jane", PasswordResetData{}))
}

func TestFormatKES(t *testing.T) {
	require.Equal(t, "KES 0", FormatKES(0))
	require.Equal(t, "KES 950", FormatKES(950))
	require.Equal(t, "KES 1,000", FormatKES(1000))
	require.Equal(t, "KES 1,234,567", FormatKES(1234567))
	require.Equal(t, "KES -2,500", FormatKES(-2500))
}

func TestHumanDuration(t *testing.T) {
	require.Equal(t, "3 days", HumanDuration(72*time.Hour))
	require.Equal(t, "1 hour", HumanDuration(time.Hour))
	require.Equal(t, "90 minutes", HumanDuration(90*time.Minute))
	require.Equal(t, "a short while", HumanDuration(0))
}
