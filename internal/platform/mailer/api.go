package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
)

// API sends through a Mailtrap-compatible transactional HTTP API.
type API struct {
	cfg    config.MailConfig
	client *http.Client
	log    *zap.SugaredLogger
}

type person struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type apiPayload struct {
	From     person   `json:"from"`
	To       []person `json:"to"`
	Subject  string   `json:"subject"`
	Text     string   `json:"text,omitempty"`
	HTML     string   `json:"html,omitempty"`
	Category string   `json:"category,omitempty"`
}

func NewAPI(cfg config.MailConfig, log *zap.SugaredLogger) *API {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &API{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: log}
}

func (a *API) Send(ctx context.Context, e Email) error {
	if a.cfg.APIURL == "" || a.cfg.APIToken == "" {
		return fmt.Errorf("mail api credentials not configured")
	}
	body, err := json.Marshal(apiPayload{
		From:     person{Email: a.cfg.From, Name: a.cfg.FromName},
		To:       []person{{Email: e.To, Name: e.ToName}},
		Subject:  e.Subject,
		Text:     e.TextBody,
		HTML:     e.HTMLBody,
		Category: e.Category,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail api: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("mail api error: %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}
	logctx.FromCtx(ctx, a.log).Infow("email_sent", "category", e.Category, "status", res.StatusCode)
	return nil
}
