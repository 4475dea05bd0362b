package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/service"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
	"github.com/noah-isme/academy-ledger-api/pkg/middleware/requestid"
	"github.com/noah-isme/academy-ledger-api/pkg/response"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, order_id|payment_id)).
const SignatureHeader = "X-Gateway-Signature"

// PaymentWebhookHandler receives payment gateway callbacks.
type PaymentWebhookHandler struct {
	ledger *service.LedgerFacade
	secret []byte
	logger *zap.Logger
}

// NewPaymentWebhookHandler constructs PaymentWebhookHandler. Without a secret every callback is
// refused, since an empty HMAC key is known to anyone.
func NewPaymentWebhookHandler(ledger *service.LedgerFacade, secret string, logger *zap.Logger) *PaymentWebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("payment webhook secret missing; gateway callbacks will be rejected")
	}
	return &PaymentWebhookHandler{ledger: ledger, secret: []byte(secret), logger: logger}
}

// Handle godoc
// @Summary Payment gateway callback
// @Description Replayed callbacks with a known payment_id are answered with 409 DUPLICATE_TRANSACTION.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Gateway-Signature header string true "hex HMAC-SHA256 of order_id|payment_id"
// @Param payload body dto.GatewayPaymentRequest true "Callback"
// @Success 200 {object} response.Envelope
// @Router /webhooks/payments [post]
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	var req dto.GatewayPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if !h.verify(req, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("payment callback signature mismatch",
			zap.String("order_id", req.OrderID),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestid.Value(c)),
		)
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid gateway signature"))
		return
	}

	result, err := h.ledger.RecordGatewayPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *PaymentWebhookHandler) verify(req dto.GatewayPaymentRequest, signature string) bool {
	if len(h.secret) == 0 {
		return false
	}
	given, err := hex.DecodeString(signature)
	if err != nil || len(given) == 0 {
		return false
	}
	return hmac.Equal(given, SignPayment(h.secret, req.OrderID, req.PaymentID))
}

// SignPayment computes the callback signature for an order and payment id.
func SignPayment(secret []byte, orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}
