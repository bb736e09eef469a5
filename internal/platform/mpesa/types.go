package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// eat is the provider's wall clock (UTC+3, no DST).
var eat = time.FixedZone("EAT", 3*60*60)

const (
	// ResultCodeSuccess is the only result code that means the payer paid.
	ResultCodeSuccess = 0
	// errorCodeProcessing is returned by the status query while the payer has
	// not yet answered the prompt.
	errorCodeProcessing = "500.001.1001"

	maxAccountReference = 12
	maxTransactionDesc  = 13
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// apiResponse covers the success and error shapes of both push and query.
type apiResponse struct {
	MerchantRequestID   string   `json:"MerchantRequestID"`
	CheckoutRequestID   string   `json:"CheckoutRequestID"`
	ResponseCode        flexInt  `json:"ResponseCode"`
	ResponseDescription string   `json:"ResponseDescription"`
	CustomerMessage     string   `json:"CustomerMessage"`
	ResultCode          *flexInt `json:"ResultCode"`
	ResultDesc          string   `json:"ResultDesc"`

	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// flexInt accepts 0 and "0"; the provider is inconsistent between endpoints.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("mpesa: bad numeric field %q: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// STKPushRequest is a payment prompt sent to the payer's handset.
type STKPushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

type STKPushResult struct {
	MerchantRequestID   string
	CheckoutRequestID   string
	ResponseCode        int
	ResponseDescription string
	CustomerMessage     string
}

// QueryResult is the outcome of a status query. Pending means the payer has
// not answered yet and ResultCode is meaningless.
type QueryResult struct {
	Pending           bool
	ResultCode        int
	ResultDesc        string
	MerchantRequestID string
	CheckoutRequestID string
}

func (q *QueryResult) Success() bool { return !q.Pending && q.ResultCode == ResultCodeSuccess }

// CallbackEnvelope is the body POSTed to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        flexInt           `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// ParseCallback decodes a raw callback body.
func ParseCallback(raw []byte) (*StkCallback, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("mpesa: decode callback: %w", err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" && cb.MerchantRequestID == "" {
		return nil, fmt.Errorf("mpesa: callback carries no request ids")
	}
	return &cb, nil
}

func (cb *StkCallback) Code() int { return int(cb.ResultCode) }

func (cb *StkCallback) Success() bool { return cb.Code() == ResultCodeSuccess }

func (cb *StkCallback) item(name string) string {
	if cb.CallbackMetadata == nil {
		return ""
	}
	for _, it := range cb.CallbackMetadata.Item {
		if strings.EqualFold(it.Name, name) {
			return strings.Trim(strings.TrimSpace(string(it.Value)), `"`)
		}
	}
	return ""
}

func (cb *StkCallback) ReceiptNumber() string { return cb.item("MpesaReceiptNumber") }

func (cb *StkCallback) PhoneNumber() string { return cb.item("PhoneNumber") }

// Amount is in whole shillings; fractional values are truncated.
func (cb *StkCallback) Amount() int64 {
	v := cb.item("Amount")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// TransactionDate parses the YYYYMMDDHHmmss provider timestamp.
func (cb *StkCallback) TransactionDate() (time.Time, bool) {
	v := cb.item("TransactionDate")
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102150405", v, eat)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ProviderError is a non-success answer from the API.
type ProviderError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("mpesa %s: http %d: %s %s", e.Op, e.StatusCode, e.Code, e.Message)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
