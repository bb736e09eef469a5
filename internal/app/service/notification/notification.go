// Package notification renders the transactional emails and hands them to
// the configured mailer.
package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mailer"
	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
)

type Template string

const (
	TemplateWelcome             Template = "welcome"
	TemplateEventRegistration   Template = "event_registration"
	TemplateMerchandiseOrder    Template = "merchandise_order"
	TemplatePaymentConfirmation Template = "payment_confirmation"
	TemplatePasswordReset       Template = "password_reset"
	TemplateAdminAlert          Template = "admin_alert"
)

var allTemplates = []Template{
	TemplateWelcome,
	TemplateEventRegistration,
	TemplateMerchandiseOrder,
	TemplatePaymentConfirmation,
	TemplatePasswordReset,
	TemplateAdminAlert,
}

//go:embed templates/*.tmpl
var templateFS embed.FS

type WelcomeData struct {
	Name             string
	MembershipNumber string
	ExpiryDate       time.Time
	SetupLink        string
}

type EventRegistrationData struct {
	Name       string
	EventTitle string
	Location   string
	StartsAt   time.Time
	Amount     int64
	Receipt    string
}

type MerchandiseOrderData struct {
	Name    string
	OrderID string
	Items   []models.OrderItem
	Total   int64
	Receipt string
}

type PaymentConfirmationData struct {
	Name    string
	Purpose string
	Amount  int64
	Receipt string
	// ExpiryDate is set for membership payments.
	ExpiryDate time.Time
}

type PasswordResetData struct {
	Name     string
	Link     string
	ValidFor string
}

type AdminAlertData struct {
	Title   string
	Details map[string]any
	TraceID string
}

type rendered struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

// Notifier sends rendered templates. Send failures are returned to the caller;
// none of the payment flows treat them as fatal.
type Notifier struct {
	mailer    mailer.Mailer
	log       *zap.SugaredLogger
	alertTo   string
	templates map[Template]rendered
}

var eat = time.FixedZone("EAT", 3*3600)

var funcs = map[string]any{
	"kes":      FormatKES,
	"date":     formatDate,
	"datetime": formatDateTime,
	"short":    shortID,
}

func formatDate(t time.Time) string     { return t.In(eat).Format("2 January 2006") }
func formatDateTime(t time.Time) string { return t.In(eat).Format("Mon 2 Jan 2006, 15:04") }

// shortID is the customer-facing order reference.
func shortID(id string) string {
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return strings.ToUpper(id)
}

func New(m mailer.Mailer, log *zap.SugaredLogger, alertTo string) (*Notifier, error) {
	n := &Notifier{mailer: m, log: log, alertTo: alertTo, templates: map[Template]rendered{}}
	for _, t := range allTemplates {
		file := "templates/" + string(t) + ".tmpl"
		tt, err := texttemplate.New(string(t)).Funcs(funcs).ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		ht, err := htmltemplate.New(string(t)).Funcs(funcs).ParseFS(templateFS, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		n.templates[t] = rendered{text: tt, html: ht}
	}
	return n, nil
}

func newFromConfig(m mailer.Mailer, log *zap.SugaredLogger, cfg *config.Config) (*Notifier, error) {
	return New(m, log, cfg.Mail.AlertEmail)
}

// Render returns subject, text body and html body.
func (n *Notifier) Render(t Template, data any) (string, string, string, error) {
	r, ok := n.templates[t]
	if !ok {
		return "", "", "", fmt.Errorf("unknown template %q", t)
	}
	var subject, text, html bytes.Buffer
	if err := r.text.ExecuteTemplate(&subject, "subject", data); err != nil {
		return "", "", "", err
	}
	if err := r.text.ExecuteTemplate(&text, "text", data); err != nil {
		return "", "", "", err
	}
	if err := r.html.ExecuteTemplate(&html, "html", data); err != nil {
		return "", "", "", err
	}
	return strings.TrimSpace(subject.String()), strings.TrimSpace(text.String()) + "\n", html.String(), nil
}

func (n *Notifier) Send(ctx context.Context, t Template, to, toName string, data any) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("notification %s: empty recipient", t)
	}
	subject, text, html, err := n.Render(t, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", t, err)
	}
	err = n.mailer.Send(ctx, mailer.Email{
		To:       to,
		ToName:   toName,
		Subject:  subject,
		TextBody: text,
		HTMLBody: html,
		Category: string(t),
	})
	lg := logctx.FromCtx(ctx, n.log)
	if err != nil {
		lg.Warnw("email_send_failed", "template", t, "err", err)
		return err
	}
	lg.Infow("email_sent", "template", t)
	return nil
}

// AdminAlert mails the operations inbox. Without a configured inbox the alert
// is only logged.
func (n *Notifier) AdminAlert(ctx context.Context, title string, details map[string]any) {
	lg := logctx.FromCtx(ctx, n.log)
	lg.Errorw("admin_alert", "title", title, "details", details)
	if n.alertTo == "" {
		return
	}
	data := AdminAlertData{Title: title, Details: details, TraceID: logctx.TraceID(ctx)}
	if err := n.Send(ctx, TemplateAdminAlert, n.alertTo, "Alumni Admin", data); err != nil {
		lg.Errorw("admin_alert_send_failed", "err", err)
	}
}

// FormatKES renders whole shillings with thousands separators, e.g. "KES 1,000".
func FormatKES(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "KES -" + b.String()
	}
	return "KES " + b.String()
}

// HumanDuration renders a link lifetime for an email body.
func HumanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
