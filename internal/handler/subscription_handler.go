package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/service"
	"github.com/noah-isme/academy-ledger-api/pkg/response"
)

// SubscriptionHandler exposes subscription and attendance endpoints.
type SubscriptionHandler struct {
	ledger *service.LedgerFacade
}

// NewSubscriptionHandler constructs SubscriptionHandler.
func NewSubscriptionHandler(ledger *service.LedgerFacade) *SubscriptionHandler {
	return &SubscriptionHandler{ledger: ledger}
}

// ListByStudent godoc
// @Summary List a student's subscriptions
// @Tags Subscriptions
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/subscriptions [get]
func (h *SubscriptionHandler) ListByStudent(c *gin.Context) {
	subs, err := h.ledger.ListSubscriptions(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}

// Get godoc
// @Summary Get subscription
// @Description The status reported is the effective status at request time.
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} response.Envelope
// @Router /subscriptions/{id} [get]
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.ledger.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authorizeStudent(c, sub.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// ListAttendance godoc
// @Summary List attendance of a subscription
// @Tags Subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} response.Envelope
// @Router /subscriptions/{id}/attendance [get]
func (h *SubscriptionHandler) ListAttendance(c *gin.Context) {
	sub, err := h.ledger.GetSubscription(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := authorizeStudent(c, sub.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.ledger.ListAttendance(c.Request.Context(), sub.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// RecordAttendance godoc
// @Summary Record attendance
// @Tags Subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param payload body dto.RecordAttendanceRequest true "Attendance payload"
// @Success 201 {object} response.Envelope
// @Router /subscriptions/{id}/attendance [post]
func (h *SubscriptionHandler) RecordAttendance(c *gin.Context) {
	var req dto.RecordAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.ledger.RecordAttendance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
