package handlers

import (
	"github.com/fatflowers/alumni/internal/app/service/auth"
	"github.com/fatflowers/alumni/internal/app/service/event"
	"github.com/fatflowers/alumni/internal/app/service/member"
	"github.com/fatflowers/alumni/internal/app/service/payment"
	"github.com/fatflowers/alumni/internal/app/service/shop"
	"github.com/fatflowers/alumni/internal/app/service/statistics"
	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/identity"
	"github.com/fatflowers/alumni/pkg/response"
)

// Envelope types below exist for the generated API docs only.

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespError struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    response.ErrorBody       `json:"data"`
}

type RespSession struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    identity.Session         `json:"data"`
}

type RespMe struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    auth.MeResponse          `json:"data"`
}

type RespInitiate struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.InitiateResult   `json:"data"`
}

type RespStatus struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.StatusView       `json:"data"`
}

type RespActivation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.ActivationResult `json:"data"`
}

type RespReconcile struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.ReconcileReport  `json:"data"`
}

type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Payment           `json:"data"`
}

type RespPayments struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Payment         `json:"data"`
}

type RespPaymentList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    payment.ListResponse     `json:"data"`
}

type RespCallbackLogs struct {
	Code    response.APIResponseCode    `json:"code"`
	Message string                      `json:"message"`
	Data    []models.PaymentCallbackLog `json:"data"`
}

type RespProfile struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    member.View              `json:"data"`
}

type RespMemberList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    member.ListResponse      `json:"data"`
}

type RespImport struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    member.ImportResult      `json:"data"`
}

type RespEvent struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Event             `json:"data"`
}

type RespEvents struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Event           `json:"data"`
}

type RespEventList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    event.ListResponse       `json:"data"`
}

type RespRegistrations struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    []models.EventRegistration `json:"data"`
}

type RespProduct struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Product           `json:"data"`
}

type RespProducts struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Product         `json:"data"`
}

type RespOrder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Order             `json:"data"`
}

type RespOrders struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.Order           `json:"data"`
}

type RespOrderList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    shop.OrderListResponse   `json:"data"`
}

type RespOrderResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    shop.OrderResult         `json:"data"`
}

type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}

type RespAdminLogs struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    AdminLogList             `json:"data"`
}
