package handlers

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/response"
)

// maxCallbackBody bounds a provider callback; real ones are a few hundred bytes.
const maxCallbackBody = 64 << 10

type PaymentService interface {
	Register(ctx context.Context, req payment.RegisterRequest) (*payment.InitiateResult, error)
	Renew(ctx context.Context, userID, phone string) (*payment.InitiateResult, error)
	Retry(ctx context.Context, req payment.RetryRequest) (*payment.InitiateResult, error)
	Status(ctx context.Context, checkoutID string) (*payment.StatusView, error)
	Activate(ctx context.Context, checkoutID string) (*payment.ActivationResult, error)
}

type CallbackHandler interface {
	HandleCallback(ctx context.Context, raw []byte) payment.Outcome
}

// CallbackAck is the body the provider expects for every delivery.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var accepted = CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}

// initiated answers a push request. A refused push still names the pending
// attempt so the client can retry it.
func initiated(c *gin.Context, res *payment.InitiateResult, err error) {
	if err != nil {
		status, body := response.FromError(err)
		if res != nil && res.PaymentID != "" {
			if body.Data.Fields == nil {
				body.Data.Fields = map[string]string{}
			}
			body.Data.Fields["payment_id"] = res.PaymentID
		}
		respondErr(c, status, body, err)
		return
	}
	created(c, res)
}

// @Summary      Start a membership registration
// @Description  Sends the registration fee STK push. The profile is created once the payment is confirmed.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        request body payment.RegisterRequest true "Applicant details"
// @Success      201  {object}  handlers.RespInitiate
// @Failure      400  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Failure      502  {object}  handlers.RespError
// @Router       /api/registrations [post]
func ApiRegister(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.RegisterRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.Register(c.Request.Context(), req)
		initiated(c, res, err)
	}
}

type RenewRequest struct {
	Phone string `json:"phone"`
}

// @Summary      Renew membership
// @Description  Sends the renewal fee STK push. Phone defaults to the profile's number.
// @Tags         Member
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body handlers.RenewRequest false "Phone to charge"
// @Success      201  {object}  handlers.RespInitiate
// @Failure      409  {object}  handlers.RespError
// @Failure      502  {object}  handlers.RespError
// @Router       /api/renewals [post]
func ApiRenew(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RenewRequest
		if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
			return
		}
		res, err := svc.Renew(c.Request.Context(), callerID(c), req.Phone)
		initiated(c, res, err)
	}
}

// @Summary      Retry a payment
// @Description  Members retry their own payments with a session; guests send the email the payment was started with.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        request body payment.RetryRequest true "Payment to retry"
// @Success      201  {object}  handlers.RespInitiate
// @Failure      401  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/payments/retry [post]
func ApiRetryPayment(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment.RetryRequest
		if !bindJSON(c, &req) {
			return
		}
		req.CallerID = callerID(c)
		res, err := svc.Retry(c.Request.Context(), req)
		initiated(c, res, err)
	}
}

// @Summary      Payment status
// @Description  Open payments past the grace period are checked with the provider before answering.
// @Tags         Payments
// @Produce      json
// @Param        checkout_id path string true "CheckoutRequestID"
// @Success      200  {object}  handlers.RespStatus
// @Failure      404  {object}  handlers.RespError
// @Router       /api/payments/status/{checkout_id} [get]
func ApiPaymentStatus(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Status(c.Request.Context(), c.Param("checkout_id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, v)
	}
}

type ActivateRequest struct {
	CheckoutRequestID string `json:"checkout_request_id" binding:"required"`
}

// @Summary      Activate a confirmed payment
// @Description  Runs registration or renewal provisioning when the callback was lost. Safe to repeat.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        request body handlers.ActivateRequest true "Checkout to activate"
// @Success      200  {object}  handlers.RespActivation
// @Failure      404  {object}  handlers.RespError
// @Failure      409  {object}  handlers.RespError
// @Router       /api/payments/activate [post]
func ApiActivatePayment(svc PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ActivateRequest
		if !bindJSON(c, &req) {
			return
		}
		res, err := svc.Activate(c.Request.Context(), req.CheckoutRequestID)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
	}
}

// @Summary      M-Pesa STK callback
// @Description  Always acknowledged; the outcome is recorded in the callback log.
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        token path string false "Callback secret"
// @Success      200  {object}  handlers.CallbackAck
// @Router       /api/payments/callback/{token} [post]
func ApiPaymentCallback(svc CallbackHandler, token string, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		lg := logctx.FromGin(c, log)
		if token != "" && subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(token)) != 1 {
			lg.Warnw("payment_callback_bad_token", "client_ip", c.ClientIP())
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			lg.Warnw("payment_callback_read_failed", "err", err)
			c.JSON(http.StatusOK, accepted)
			return
		}
		outcome := svc.HandleCallback(c.Request.Context(), raw)
		lg.Infow("payment_callback_handled", "outcome", outcome)
		c.JSON(http.StatusOK, accepted)
	}
}

// RegisterPaymentRoutes mounts registration and the public payment endpoints.
func RegisterPaymentRoutes(r gin.IRouter, svc PaymentService, callbacks CallbackHandler, callbackToken string, log *zap.SugaredLogger) {
	r.POST("/registrations", ApiRegister(svc))

	cb := ApiPaymentCallback(callbacks, callbackToken, log)
	r.POST("/payments/callback", cb)
	r.POST("/payments/callback/:token", cb)
	r.GET("/payments/status/:checkout_id", ApiPaymentStatus(svc))
	r.POST("/payments/activate", ApiActivatePayment(svc))
}

// RegisterRetryRoutes mounts payment retries; the group is expected to run
// optional authentication so members are recognised.
func RegisterRetryRoutes(r gin.IRouter, svc PaymentService) {
	r.POST("/payments/retry", ApiRetryPayment(svc))
}
