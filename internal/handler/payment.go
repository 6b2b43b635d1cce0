package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/service"
)

// SignatureHeader carries the gateway's HMAC of the webhook body.
const SignatureHeader = "X-Paystack-Signature"

const maxWebhookBody = 1 << 20

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
	rideService    *service.RideService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService, rideService *service.RideService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, rideService: rideService}
}

// CryptoTxRequest is the HTTP request body for submitting an on-chain transfer.
type CryptoTxRequest struct {
	TxHash string `json:"tx_hash"`
}

// GetPayment handles GET /v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"), callerID(c), callerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPaymentResponse(payment))
}

// RidePayments handles GET /v1/rides/:id/payments
func (h *PaymentHandler) RidePayments(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"), callerID(c), callerRole(c))
	if err != nil {
		respondError(c, err)
		return
	}
	payments, err := h.paymentService.RidePayments(c.Request.Context(), ride.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	respondJSON(c, http.StatusOK, gin.H{"payments": out})
}

// Verify handles GET /v1/payments/verify/:reference
func (h *PaymentHandler) Verify(c *gin.Context) {
	payment, err := h.paymentService.VerifyGateway(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPaymentResponse(payment))
}

// SubmitCryptoTx handles POST /v1/payments/:id/crypto
func (h *PaymentHandler) SubmitCryptoTx(c *gin.Context) {
	var req CryptoTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	payment, err := h.paymentService.SubmitCryptoTx(c.Request.Context(), c.Param("id"), callerID(c), req.TxHash)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPaymentResponse(payment))
}

// Webhook handles POST /v1/webhooks/gateway. It is unauthenticated; the
// body signature is the credential.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	if _, err := h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
