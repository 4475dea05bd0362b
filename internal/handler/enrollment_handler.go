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

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	ledger *service.LedgerFacade
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(ledger *service.LedgerFacade) *EnrollmentHandler {
	return &EnrollmentHandler{ledger: ledger}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	filter := models.EnrollmentFilter{
		StudentID: scopedStudent(c, c.Query("studentId")),
		ClassID:   c.Query("classId"),
		Status:    models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)

	enrollments, pagination, err := h.ledger.ListEnrollments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.load(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Create godoc
// @Summary Request enrollment
// @Description Students may omit student_id to enroll themselves.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.RequestEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.RequestEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if req.StudentID == "" {
		req.StudentID = actorID(c)
	}
	if err := authorizeStudent(c, req.StudentID); err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.ledger.RequestEnrollment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Approve godoc
// @Summary Approve enrollment and provision its subscription
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.ApproveEnrollmentRequest false "Approval payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	var req dto.ApproveEnrollmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
	}
	result, err := h.ledger.ApproveEnrollmentAndProvision(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.RejectEnrollmentRequest false "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	var req dto.RejectEnrollmentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return
		}
	}
	enrollment, err := h.ledger.RejectEnrollment(c.Request.Context(), c.Param("id"), actorID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Cancel godoc
// @Summary Cancel a pending enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/cancel [post]
func (h *EnrollmentHandler) Cancel(c *gin.Context) {
	if _, err := h.load(c); err != nil {
		response.Error(c, err)
		return
	}
	enrollment, err := h.ledger.CancelEnrollment(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// load fetches the enrollment on the path and checks the caller may see it.
func (h *EnrollmentHandler) load(c *gin.Context) (*models.Enrollment, error) {
	enrollment, err := h.ledger.GetEnrollment(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if err := authorizeStudent(c, enrollment.StudentID); err != nil {
		return nil, err
	}
	return enrollment, nil
}
