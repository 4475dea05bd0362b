package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-ledger-api/internal/middleware"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actorID returns the user id of the caller, or "" for unauthenticated routes.
func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// authorizeStudent allows staff for any student and students for themselves.
func authorizeStudent(c *gin.Context, studentID string) error {
	claims := claimsFromContext(c)
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.Role.IsStaff() || claims.UserID == studentID {
		return nil
	}
	return appErrors.ErrForbidden
}

// scopedStudent returns the student id a caller may list: students always see their own.
func scopedStudent(c *gin.Context, requested string) string {
	claims := claimsFromContext(c)
	if claims != nil && !claims.Role.IsStaff() {
		return claims.UserID
	}
	return requested
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation, "invalid payload")
}
