package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-ledger-api/internal/models"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
	"github.com/noah-isme/academy-ledger-api/pkg/middleware/requestid"
)

// retryAfterSeconds is advertised on infrastructure failures the client may retry.
const retryAfterSeconds = "1"

// Envelope is the body of every ledger API response.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *ErrorBody             `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// ErrorBody describes a failed request. Kind tells clients how to react without matching codes:
// validation and state_conflict need a different request, infrastructure may be retried as is.
type ErrorBody struct {
	Code      string         `json:"code"`
	Kind      appErrors.Kind `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewErrorBody projects err into the public error shape. Wrapped causes are never exposed.
func NewErrorBody(c *gin.Context, err error) (int, *ErrorBody) {
	appErr := appErrors.FromError(err)
	return appErr.Status, &ErrorBody{
		Code:      appErr.Code,
		Kind:      appErr.Kind,
		Message:   appErr.Message,
		Retryable: appErr.Retryable(),
		RequestID: requestid.Value(c),
	}
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Pagination: pagination})
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends the error envelope for err.
func Error(c *gin.Context, err error) {
	ErrorWithMeta(c, err, nil)
}

// ErrorWithMeta sends the error envelope with extra diagnostic fields.
func ErrorWithMeta(c *gin.Context, err error, meta map[string]interface{}) {
	status, body := NewErrorBody(c, err)
	noStore(c)
	if body.Retryable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, Envelope{Error: body, Meta: meta})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
