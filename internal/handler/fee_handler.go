package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/service"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
	"github.com/noah-isme/academy-ledger-api/pkg/export"
	"github.com/noah-isme/academy-ledger-api/pkg/response"
	"github.com/noah-isme/academy-ledger-api/pkg/signing"
)

// FeeHandler exposes the fee ledger endpoints.
type FeeHandler struct {
	ledger   *service.LedgerFacade
	csv      *export.CSVExporter
	receipts *export.ReceiptRenderer
	links    *signing.LinkSigner
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(ledger *service.LedgerFacade, receipts *export.ReceiptRenderer, links *signing.LinkSigner) *FeeHandler {
	return &FeeHandler{ledger: ledger, csv: export.NewCSVExporter(), receipts: receipts, links: links}
}

// Open godoc
// @Summary Open a student's fee ledger
// @Tags Fees
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body dto.FeeLedgerRequest true "Assessment"
// @Success 201 {object} response.Envelope
// @Router /students/{studentId}/fees [post]
func (h *FeeHandler) Open(c *gin.Context) {
	var req dto.FeeLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	ledger, err := h.ledger.OpenLedger(c.Request.Context(), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, ledger.Summary())
}

// Adjust godoc
// @Summary Adjust a student's total fee
// @Tags Fees
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body dto.FeeLedgerRequest true "Assessment"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/fees [put]
func (h *FeeHandler) Adjust(c *gin.Context) {
	var req dto.FeeLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	ledger, err := h.ledger.AdjustTotalFee(c.Request.Context(), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledger.Summary(), nil)
}

// Status godoc
// @Summary Get fee status
// @Tags Fees
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/fees [get]
func (h *FeeHandler) Status(c *gin.Context) {
	status, err := h.ledger.GetFeeStatus(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListPayments godoc
// @Summary List payment history
// @Tags Fees
// @Produce json
// @Produce text/csv
// @Param studentId path string true "Student ID"
// @Param format query string false "json (default) or csv"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/fees/payments [get]
func (h *FeeHandler) ListPayments(c *gin.Context) {
	studentID := c.Param("studentId")
	payments, err := h.ledger.ListPayments(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !strings.EqualFold(c.Query("format"), "csv") {
		response.JSON(c, http.StatusOK, payments, nil)
		return
	}

	body, err := h.csv.Render(paymentsDataset(payments))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal, "failed to export payments"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="payments-%s.csv"`, studentID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

// RecordPayment godoc
// @Summary Record an admin payment
// @Tags Fees
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body dto.RecordPaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Router /students/{studentId}/fees/payments [post]
func (h *FeeHandler) RecordPayment(c *gin.Context) {
	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.ledger.RecordPayment(c.Request.Context(), c.Param("studentId"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Receipt godoc
// @Summary Download a payment receipt
// @Tags Fees
// @Produce application/pdf
// @Param studentId path string true "Student ID"
// @Param paymentId path string true "Payment ID"
// @Success 200 {file} binary
// @Router /students/{studentId}/fees/payments/{paymentId}/receipt [get]
func (h *FeeHandler) Receipt(c *gin.Context) {
	h.writeReceipt(c, c.Param("studentId"), c.Param("paymentId"))
}

// ReceiptLink godoc
// @Summary Issue a shareable receipt link
// @Tags Fees
// @Produce json
// @Param studentId path string true "Student ID"
// @Param paymentId path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/fees/payments/{paymentId}/receipt-link [post]
func (h *FeeHandler) ReceiptLink(c *gin.Context) {
	studentID := c.Param("studentId")
	payment, err := h.receiptPayment(c, studentID, c.Param("paymentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	token, expiresAt, err := h.links.Generate(studentID, payment.ID)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal, "failed to sign receipt link"))
		return
	}
	response.JSON(c, http.StatusOK, dto.ReceiptLinkResponse{
		URL:       "/receipts/" + token,
		ExpiresAt: expiresAt,
	}, nil)
}

// SharedReceipt godoc
// @Summary Download a receipt through a signed link
// @Tags Fees
// @Produce application/pdf
// @Param token path string true "Signed link token"
// @Success 200 {file} binary
// @Router /receipts/{token} [get]
func (h *FeeHandler) SharedReceipt(c *gin.Context) {
	studentID, paymentID, _, err := h.links.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound, "receipt link is invalid or expired"))
		return
	}
	h.writeReceipt(c, studentID, paymentID)
}

func (h *FeeHandler) receiptPayment(c *gin.Context, studentID, paymentID string) (*models.FeePayment, error) {
	payment, err := h.ledger.GetPayment(c.Request.Context(), studentID, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusSuccess || payment.ReceiptNumber == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no receipt for this payment")
	}
	return payment, nil
}

func (h *FeeHandler) writeReceipt(c *gin.Context, studentID, paymentID string) {
	payment, err := h.receiptPayment(c, studentID, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.ledger.GetFeeStatus(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	pdf, err := h.receipts.Render(export.Receipt{
		ReceiptNumber: *payment.ReceiptNumber,
		StudentID:     payment.StudentID,
		Amount:        payment.Amount.StringFixed(2),
		Method:        payment.Method,
		TransactionID: payment.TransactionID,
		RecordedAt:    payment.RecordedAt,
		TotalFee:      status.TotalFee.StringFixed(2),
		PaidAmount:    status.PaidAmount.StringFixed(2),
		Remaining:     status.Remaining.StringFixed(2),
	})
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal, "failed to render receipt"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, *payment.ReceiptNumber))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func paymentsDataset(payments []models.FeePayment) export.Dataset {
	rows := make([]map[string]string, 0, len(payments))
	for _, p := range payments {
		row := map[string]string{
			"recorded_at":    p.RecordedAt.UTC().Format(time.RFC3339),
			"transaction_id": p.TransactionID,
			"method":         p.Method,
			"amount":         p.Amount.StringFixed(2),
			"status":         string(p.Status),
		}
		if p.ReceiptNumber != nil {
			row["receipt_number"] = *p.ReceiptNumber
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: export.PaymentHeaders, Rows: rows}
}
