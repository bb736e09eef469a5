package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fatflowers/alumni/pkg/config"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/metrics"
	"github.com/fatflowers/alumni/pkg/tool"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
)

// Client talks to the Daraja STK-push API. Every call is bounded by the
// configured timeout in addition to the caller's context.
type Client struct {
	cfg     config.MpesaConfig
	http    *http.Client
	log     *zap.SugaredLogger
	metrics *metrics.Business
	now     func() time.Time
}

type Option func(*Client)

// WithClock overrides the clock used for the password timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithBaseTransport replaces the transport under the oauth2 layer.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport.(*oauth2.Transport).Base = rt
	}
}

func New(cfg config.MpesaConfig, log *zap.SugaredLogger, m *metrics.Business, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TransactionType == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{cfg: cfg, log: log, metrics: m, now: time.Now}
	ts := &tokenSource{client: c, http: &http.Client{Timeout: cfg.Timeout}}
	c.http = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, ts),
			Base:   http.DefaultTransport,
		},
	}
	for _, o := range opts {
		o(c)
	}
	// the token request shares the api transport minus the bearer layer
	ts.http.Transport = c.http.Transport.(*oauth2.Transport).Base
	return c
}

func newFromConfig(cfg *config.Config, log *zap.SugaredLogger, m *metrics.Business) *Client {
	return New(cfg.Mpesa, log, m)
}

// tokenSource implements the client-credentials grant the way Daraja expects
// it: a GET with basic auth and expires_in encoded as a string.
type tokenSource struct {
	client *Client
	http   *http.Client
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	start := time.Now()
	tok, err := t.fetch()
	t.client.metrics.ObserveProvider("token", start, err)
	return tok, err
}

func (t *tokenSource) fetch() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.client.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.client.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(t.client.cfg.ConsumerKey, t.client.cfg.ConsumerSecret)
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mpesa token: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: "token", StatusCode: resp.StatusCode, Message: string(body)}
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("mpesa token: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, &ProviderError{Op: "token", StatusCode: resp.StatusCode, Message: "empty access token"}
	}
	expires, _ := strconv.Atoi(tr.ExpiresIn)
	if expires <= 0 {
		expires = 3599
	}
	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		// refresh a minute early
		Expiry: time.Now().Add(time.Duration(expires)*time.Second - time.Minute),
	}, nil
}

// password returns the base64(shortcode+passkey+timestamp) credential and its timestamp.
func (c *Client) password() (string, string) {
	ts := c.now().In(eat).Format("20060102150405")
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + ts)), ts
}

// CallbackURL is the URL the provider posts results to, including the
// optional path token.
func (c *Client) CallbackURL() string {
	u := strings.TrimRight(c.cfg.CallbackURL, "/")
	if c.cfg.CallbackToken != "" {
		u += "/" + c.cfg.CallbackToken
	}
	return u
}

// STKPush sends a payment prompt to the payer's handset.
func (c *Client) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResult, error) {
	phone, err := NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("mpesa: amount must be positive, got %d", in.Amount)
	}
	pw, ts := c.password()
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          pw,
		Timestamp:         ts,
		TransactionType:   c.cfg.TransactionType,
		Amount:            in.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.CallbackURL(),
		AccountReference:  truncate(in.AccountReference, maxAccountReference),
		TransactionDesc:   truncate(in.Description, maxTransactionDesc),
	}

	start := time.Now()
	var out apiResponse
	status, err := c.post(ctx, stkPushPath, body, &out)
	c.metrics.ObserveProvider("stk_push", start, err)
	lg := logctx.FromCtx(ctx, c.log)
	if err != nil {
		lg.Warnw("mpesa_stk_push_error", "phone", tool.MaskPhone(phone), "err", err)
		return nil, err
	}
	if status != http.StatusOK || out.ErrorCode != "" || int(out.ResponseCode) != 0 || out.CheckoutRequestID == "" {
		perr := &ProviderError{Op: "stk_push", StatusCode: status, Code: out.ErrorCode, Message: firstNonEmpty(out.ErrorMessage, out.ResponseDescription)}
		lg.Warnw("mpesa_stk_push_rejected", "phone", tool.MaskPhone(phone), "err", perr)
		return nil, perr
	}
	lg.Infow("mpesa_stk_push_sent", "checkout_request_id", out.CheckoutRequestID, "amount", in.Amount)
	return &STKPushResult{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        int(out.ResponseCode),
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

// QueryStatus asks the provider for the outcome of a push.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	pw, ts := c.password()
	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          pw,
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}
	start := time.Now()
	var out apiResponse
	status, err := c.post(ctx, stkQueryPath, body, &out)
	c.metrics.ObserveProvider("stk_query", start, err)
	if err != nil {
		return nil, err
	}
	if out.ErrorCode == errorCodeProcessing {
		return &QueryResult{Pending: true, CheckoutRequestID: checkoutRequestID, ResultDesc: out.ErrorMessage}, nil
	}
	if status != http.StatusOK || out.ErrorCode != "" || out.ResultCode == nil {
		return nil, &ProviderError{Op: "stk_query", StatusCode: status, Code: out.ErrorCode, Message: firstNonEmpty(out.ErrorMessage, out.ResponseDescription)}
	}
	return &QueryResult{
		ResultCode:        int(*out.ResultCode),
		ResultDesc:        out.ResultDesc,
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: firstNonEmpty(out.CheckoutRequestID, checkoutRequestID),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in any, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	b, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("mpesa %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, &ProviderError{Op: path, StatusCode: resp.StatusCode, Message: "undecodable body"}
		}
	}
	return resp.StatusCode, nil
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

var Module = fx.Options(
	fx.Provide(newFromConfig),
)
