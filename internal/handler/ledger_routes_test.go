package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/middleware"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	"github.com/noah-isme/academy-ledger-api/internal/repository/memstore"
	"github.com/noah-isme/academy-ledger-api/internal/service"
	"github.com/noah-isme/academy-ledger-api/pkg/export"
	"github.com/noah-isme/academy-ledger-api/pkg/signing"
)

const webhookSecret = "gateway-secret"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
		Kind string `json:"kind"`
	} `json:"error"`
}

func buildLedgerRouter(t *testing.T, ready map[string]ReadinessCheck) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memstore.New(time.Second)
	subscriptions := service.NewSubscriptionService(store.Subscriptions(), store.Attendance(), store, nil)
	enrollments := service.NewEnrollmentService(store.Enrollments(), subscriptions, store, nil)
	fees := service.NewFeeLedgerService(store.FeeLedgers(), store, nil)
	compensations := service.NewCompensationService(store.Compensations(), store.Attendance(), store.Subscriptions(),
		store.Enrollments(), store.Sessions(), subscriptions, store, nil)
	metrics := service.NewMetricsService()
	ledger := service.NewLedgerFacade(service.FacadeDeps{
		Tx:            store,
		Enrollments:   enrollments,
		Subscriptions: subscriptions,
		Fees:          fees,
		Compensations: compensations,
		Metrics:       metrics,
		Retry:         service.RetryPolicy{Attempts: 1},
	})

	router := gin.New()
	Routes{
		Enrollments:   NewEnrollmentHandler(ledger),
		Subscriptions: NewSubscriptionHandler(ledger),
		Fees:          NewFeeHandler(ledger, export.NewReceiptRenderer("Art Academy"), signing.NewLinkSigner("link-secret", time.Hour)),
		Compensations: NewCompensationHandler(ledger),
		Webhooks:      NewPaymentWebhookHandler(ledger, webhookSecret, nil),
		Ops:           NewMetricsHandler(metrics, ready),
		Auth:          testAuth,
	}.Register(router, "/api/v1")
	return router
}

// testAuth trusts X-Test-User and X-Test-Role in place of a bearer token.
func testAuth(c *gin.Context) {
	role := c.GetHeader("X-Test-Role")
	if role == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: c.GetHeader("X-Test-User"), Role: models.UserRole(role)})
	c.Next()
}

func call(t *testing.T, router http.Handler, method, path, user string, role models.UserRole, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", string(role))
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if dest != nil {
		require.NoError(t, json.Unmarshal(env.Data, dest))
	}
	return env
}

func TestEnrollmentLifecycleOverHTTP(t *testing.T) {
	router := buildLedgerRouter(t, nil)

	rec := call(t, router, http.MethodPost, "/api/v1/enrollments", "stu-1", models.RoleStudent, map[string]string{"class_id": "oil"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var enrollment models.Enrollment
	decode(t, rec, &enrollment)
	assert.Equal(t, "stu-1", enrollment.StudentID)

	rec = call(t, router, http.MethodPost, "/api/v1/enrollments", "stu-1", models.RoleStudent, map[string]string{"class_id": "oil"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_ENROLLMENT", decode(t, rec, nil).Error.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/enrollments", "stu-1", models.RoleStudent, map[string]string{"student_id": "stu-2", "class_id": "oil"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodGet, "/api/v1/enrollments/"+enrollment.ID, "stu-2", models.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/enrollments/"+enrollment.ID+"/approve", "stu-1", models.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/enrollments/"+enrollment.ID+"/approve", "admin-1", models.RoleAdmin, map[string]int{"class_limit": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decision service.DecisionResult
	decode(t, rec, &decision)
	assert.Equal(t, models.EnrollmentStatusApproved, decision.Enrollment.Status)
	require.NotNil(t, decision.Subscription)
	assert.Equal(t, 2, decision.Subscription.ClassLimit)

	rec = call(t, router, http.MethodPost, "/api/v1/enrollments/"+enrollment.ID+"/cancel", "stu-1", models.RoleStudent, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, rec, nil).Error.Code)

	rec = call(t, router, http.MethodGet, "/api/v1/students/stu-1/subscriptions", "stu-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []models.Subscription
	decode(t, rec, &subs)
	require.Len(t, subs, 1)

	present := true
	for i := 0; i < 2; i++ {
		rec = call(t, router, http.MethodPost, "/api/v1/subscriptions/"+subs[0].ID+"/attendance", "teacher-1", models.RoleTeacher,
			map[string]interface{}{"class_session_id": "sess", "was_present": present})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec = call(t, router, http.MethodPost, "/api/v1/subscriptions/"+subs[0].ID+"/attendance", "teacher-1", models.RoleTeacher,
		map[string]interface{}{"class_session_id": "sess", "was_present": present})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "SUBSCRIPTION_EXHAUSTED", decode(t, rec, nil).Error.Code)

	rec = call(t, router, http.MethodGet, "/api/v1/enrollments", "stu-2", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var visible []models.Enrollment
	decode(t, rec, &visible)
	assert.Empty(t, visible)
}

func TestFeeEndpoints(t *testing.T) {
	router := buildLedgerRouter(t, nil)

	rec := call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees", "stu-1", models.RoleStudent, map[string]string{"total_fee": "15000"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees", "admin-1", models.RoleAdmin, map[string]string{"total_fee": "15000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees/payments", "admin-1", models.RoleAdmin,
		map[string]string{"amount": "0", "method": "cash", "transaction_id": "tx-0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_AMOUNT", decode(t, rec, nil).Error.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees/payments", "admin-1", models.RoleAdmin,
		map[string]string{"amount": "5000", "method": "cash", "transaction_id": "tx-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var payment service.PaymentResult
	decode(t, rec, &payment)
	require.NotNil(t, payment.Payment.ReceiptNumber)
	assert.True(t, strings.HasSuffix(*payment.Payment.ReceiptNumber, "-001"))

	rec = call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees/payments", "admin-1", models.RoleAdmin,
		map[string]string{"amount": "11000", "method": "cash", "transaction_id": "tx-2"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	overpaid := decode(t, rec, nil)
	assert.Equal(t, "OVERPAYMENT_REJECTED", overpaid.Error.Code)
	assert.Equal(t, "consistency", overpaid.Error.Kind)

	rec = call(t, router, http.MethodGet, "/api/v1/students/stu-1/fees", "stu-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.FeeStatusSummary
	decode(t, rec, &status)
	assert.Equal(t, models.FeeStatusPartial, status.Status)
	assert.Equal(t, "10000", status.Remaining.String())

	rec = call(t, router, http.MethodGet, "/api/v1/students/stu-1/fees", "stu-2", models.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodGet, "/api/v1/students/stu-1/fees/payments?format=csv", "stu-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], *payment.Payment.ReceiptNumber)

	rec = call(t, router, http.MethodGet, "/api/v1/students/stu-1/fees/payments/"+payment.Payment.ID+"/receipt", "stu-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees/payments/"+payment.Payment.ID+"/receipt-link", "stu-2", models.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees/payments/"+payment.Payment.ID+"/receipt-link", "stu-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var link dto.ReceiptLinkResponse
	decode(t, rec, &link)
	require.True(t, strings.HasPrefix(link.URL, "/receipts/"))

	shared := httptest.NewRecorder()
	router.ServeHTTP(shared, httptest.NewRequest(http.MethodGet, link.URL, nil))
	require.Equal(t, http.StatusOK, shared.Code)
	assert.True(t, bytes.HasPrefix(shared.Body.Bytes(), []byte("%PDF-")))

	shared = httptest.NewRecorder()
	router.ServeHTTP(shared, httptest.NewRequest(http.MethodGet, link.URL+"0", nil))
	assert.Equal(t, http.StatusNotFound, shared.Code)

	rec = call(t, router, http.MethodPut, "/api/v1/students/stu-1/fees", "admin-1", models.RoleAdmin, map[string]string{"total_fee": "4000"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func signedCallback(t *testing.T, router http.Handler, body map[string]string, signature string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhook(t *testing.T) {
	router := buildLedgerRouter(t, nil)
	rec := call(t, router, http.MethodPost, "/api/v1/students/stu-1/fees", "admin-1", models.RoleAdmin, map[string]string{"total_fee": "1000"})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := map[string]string{
		"order_id": "ord-1", "payment_id": "pay-1", "student_id": "stu-1",
		"amount": "1000", "method": "card", "status": "SUCCESS",
	}
	valid := hex.EncodeToString(SignPayment([]byte(webhookSecret), "ord-1", "pay-1"))

	rec = signedCallback(t, router, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = signedCallback(t, router, body, "not-hex")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = signedCallback(t, router, body, valid)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.PaymentResult
	decode(t, rec, &result)
	assert.Equal(t, models.FeeStatusPaid, result.Status.Status)
	assert.Equal(t, "pay-1", result.Payment.TransactionID)

	rec = signedCallback(t, router, body, valid)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_TRANSACTION", decode(t, rec, nil).Error.Code)
}

func TestPaymentWebhookWithoutSecretRejectsCallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/payments", NewPaymentWebhookHandler(nil, "", nil).Handle)

	body := map[string]string{
		"order_id": "ord-1", "payment_id": "pay-1", "student_id": "stu-1",
		"amount": "1000", "method": "card", "status": "SUCCESS",
	}
	forged := hex.EncodeToString(SignPayment(nil, "ord-1", "pay-1"))

	rec := signedCallback(t, router, body, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec, nil).Error.Code)
}

func TestCompensationEndpoints(t *testing.T) {
	router := buildLedgerRouter(t, nil)

	rec := call(t, router, http.MethodPost, "/api/v1/enrollments", "admin-1", models.RoleAdmin, map[string]string{"student_id": "stu-1", "class_id": "clay"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var enrollment models.Enrollment
	decode(t, rec, &enrollment)
	rec = call(t, router, http.MethodPost, "/api/v1/enrollments/"+enrollment.ID+"/approve", "admin-1", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decision service.DecisionResult
	decode(t, rec, &decision)

	rec = call(t, router, http.MethodPost, "/api/v1/subscriptions/"+decision.Subscription.ID+"/attendance", "teacher-1", models.RoleTeacher,
		map[string]interface{}{"class_session_id": "sess-1", "was_present": false})
	require.Equal(t, http.StatusCreated, rec.Code)
	var attended service.AttendanceResult
	decode(t, rec, &attended)

	assign := map[string]string{"missed_attendance_id": attended.Record.ID, "candidate_session_id": "sess-9", "reason": "flu"}
	rec = call(t, router, http.MethodPost, "/api/v1/compensations", "teacher-1", models.RoleTeacher, assign)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, router, http.MethodPost, "/api/v1/compensations", "admin-1", models.RoleAdmin, assign)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var assignment models.CompensationAssignment
	decode(t, rec, &assignment)

	rec = call(t, router, http.MethodPost, "/api/v1/compensations", "admin-1", models.RoleAdmin, assign)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_COMPENSATED", decode(t, rec, nil).Error.Code)

	rec = call(t, router, http.MethodGet, "/api/v1/compensations", "stu-1", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.CompensationAssignment
	decode(t, rec, &listed)
	assert.Len(t, listed, 1)

	rec = call(t, router, http.MethodPost, "/api/v1/compensations/"+assignment.ID+"/complete", "teacher-1", models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &assignment)
	assert.Equal(t, models.CompensationStatusCompleted, assignment.Status)

	rec = call(t, router, http.MethodPost, "/api/v1/compensations/"+assignment.ID+"/cancel", "admin-1", models.RoleAdmin, map[string]string{"reason": "late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOpsEndpoints(t *testing.T) {
	healthy := buildLedgerRouter(t, map[string]ReadinessCheck{"store": func(context.Context) error { return nil }})
	assert.Equal(t, http.StatusOK, call(t, healthy, http.MethodGet, "/health", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, call(t, healthy, http.MethodGet, "/ready", "", "", nil).Code)

	rec := call(t, healthy, http.MethodGet, "/metrics", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines_total")

	down := buildLedgerRouter(t, map[string]ReadinessCheck{"store": func(context.Context) error { return errors.New("connection refused") }})
	rec = call(t, down, http.MethodGet, "/ready", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	assert.Equal(t, http.StatusUnauthorized, call(t, healthy, http.MethodGet, "/api/v1/enrollments", "", "", nil).Code)
}
