package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/service"
	"github.com/noah-isme/academy-ledger-api/pkg/response"
)

// CompensationHandler exposes make-up class endpoints.
type CompensationHandler struct {
	ledger *service.LedgerFacade
}

// NewCompensationHandler constructs CompensationHandler.
func NewCompensationHandler(ledger *service.LedgerFacade) *CompensationHandler {
	return &CompensationHandler{ledger: ledger}
}

// List godoc
// @Summary List compensation assignments
// @Tags Compensations
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param status query string false "ASSIGNED, COMPLETED or CANCELLED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /compensations [get]
func (h *CompensationHandler) List(c *gin.Context) {
	filter := models.CompensationFilter{
		StudentID: scopedStudent(c, c.Query("studentId")),
		Status:    models.CompensationStatus(strings.ToUpper(c.Query("status"))),
	}
	filter.Page, filter.PageSize = pageParams(c)

	assignments, pagination, err := h.ledger.ListCompensations(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, pagination)
}

// Assign godoc
// @Summary Assign a make-up session for an absence
// @Tags Compensations
// @Accept json
// @Produce json
// @Param payload body dto.AssignCompensationRequest true "Assignment"
// @Success 201 {object} response.Envelope
// @Router /compensations [post]
func (h *CompensationHandler) Assign(c *gin.Context) {
	var req dto.AssignCompensationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	assignment, err := h.ledger.AssignCompensation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Complete godoc
// @Summary Complete a make-up session
// @Tags Compensations
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /compensations/{id}/complete [post]
func (h *CompensationHandler) Complete(c *gin.Context) {
	assignment, err := h.ledger.CompleteCompensation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Cancel godoc
// @Summary Cancel a make-up session
// @Tags Compensations
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.CancelCompensationRequest true "Cancellation"
// @Success 200 {object} response.Envelope
// @Router /compensations/{id}/cancel [post]
func (h *CompensationHandler) Cancel(c *gin.Context) {
	var req dto.CancelCompensationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	assignment, err := h.ledger.CancelCompensation(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}
