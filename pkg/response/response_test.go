package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
	"github.com/noah-isme/academy-ledger-api/pkg/middleware/requestid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	router := gin.New()
	router.Use(requestid.Middleware())
	router.GET("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestErrorCarriesKindAndRequestID(t *testing.T) {
	rec, env := serve(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrValidation, "amount must be positive"))
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, appErrors.KindValidation, env.Error.Kind)
	assert.Equal(t, "amount must be positive", env.Error.Message)
	assert.False(t, env.Error.Retryable)
	assert.Equal(t, "req-42", env.Error.RequestID)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestErrorAdvertisesRetryForInfrastructure(t *testing.T) {
	rec, env := serve(t, func(c *gin.Context) {
		Error(c, appErrors.Wrap(errors.New("dial tcp: timeout"), appErrors.ErrStorageUnavailable, ""))
	})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, appErrors.KindInfrastructure, env.Error.Kind)
	assert.True(t, env.Error.Retryable)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

func TestErrorHidesUntypedCauses(t *testing.T) {
	rec, env := serve(t, func(c *gin.Context) {
		Error(c, errors.New("pq: relation \"fee_ledgers\" does not exist"))
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, appErrors.KindInternal, env.Error.Kind)
	assert.NotContains(t, rec.Body.String(), "fee_ledgers")
}

func TestJSONWrapsData(t *testing.T) {
	rec, env := serve(t, func(c *gin.Context) {
		Created(c, map[string]string{"id": "enr-1"})
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, env.Error)
	assert.Equal(t, map[string]interface{}{"id": "enr-1"}, env.Data)
}
