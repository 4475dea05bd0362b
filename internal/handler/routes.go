package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/academy-ledger-api/internal/middleware"
	"github.com/noah-isme/academy-ledger-api/internal/models"
)

// Routes groups the handlers and middleware mounted by Register.
type Routes struct {
	Enrollments   *EnrollmentHandler
	Subscriptions *SubscriptionHandler
	Fees          *FeeHandler
	Compensations *CompensationHandler
	Webhooks      *PaymentWebhookHandler
	Ops           *MetricsHandler

	Auth         gin.HandlerFunc
	WebhookLimit gin.HandlerFunc
	AuditLogger  *zap.Logger
}

// Register mounts ops endpoints at the root, the webhook under /webhooks and the ledger API
// under prefix.
func (r Routes) Register(engine *gin.Engine, prefix string) {
	engine.GET("/health", r.Ops.Health)
	engine.GET("/ready", r.Ops.Ready)
	engine.GET("/metrics", r.Ops.Prometheus)

	engine.GET("/receipts/:token", r.Fees.SharedReceipt)

	webhooks := engine.Group("/webhooks")
	if r.WebhookLimit != nil {
		webhooks.Use(r.WebhookLimit)
	}
	webhooks.POST("/payments", middleware.Audit(r.AuditLogger, "gateway_payment"), r.Webhooks.Handle)

	api := engine.Group(prefix)
	api.Use(r.Auth)

	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
	ownerOrStaff := middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), string(models.RoleTeacher), middleware.SelfRole)
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(r.AuditLogger, action) }

	enrollments := api.Group("/enrollments")
	enrollments.GET("", r.Enrollments.List)
	enrollments.POST("", audit("request_enrollment"), r.Enrollments.Create)
	enrollments.GET("/:id", r.Enrollments.Get)
	enrollments.POST("/:id/approve", admin, audit("approve_enrollment"), r.Enrollments.Approve)
	enrollments.POST("/:id/reject", admin, audit("reject_enrollment"), r.Enrollments.Reject)
	enrollments.POST("/:id/cancel", audit("cancel_enrollment"), r.Enrollments.Cancel)

	subscriptions := api.Group("/subscriptions")
	subscriptions.GET("/:id", r.Subscriptions.Get)
	subscriptions.GET("/:id/attendance", r.Subscriptions.ListAttendance)
	subscriptions.POST("/:id/attendance", staff, audit("record_attendance"), r.Subscriptions.RecordAttendance)

	students := api.Group("/students/:studentId")
	students.GET("/subscriptions", ownerOrStaff, r.Subscriptions.ListByStudent)
	students.POST("/fees", admin, audit("open_ledger"), r.Fees.Open)
	students.PUT("/fees", admin, audit("adjust_total_fee"), r.Fees.Adjust)
	students.GET("/fees", ownerOrStaff, r.Fees.Status)
	students.GET("/fees/payments", ownerOrStaff, r.Fees.ListPayments)
	students.POST("/fees/payments", admin, audit("record_payment"), r.Fees.RecordPayment)
	students.GET("/fees/payments/:paymentId/receipt", ownerOrStaff, r.Fees.Receipt)
	students.POST("/fees/payments/:paymentId/receipt-link", ownerOrStaff, r.Fees.ReceiptLink)

	compensations := api.Group("/compensations")
	compensations.GET("", r.Compensations.List)
	compensations.POST("", admin, audit("assign_compensation"), r.Compensations.Assign)
	compensations.POST("/:id/complete", staff, audit("complete_compensation"), r.Compensations.Complete)
	compensations.POST("/:id/cancel", admin, audit("cancel_compensation"), r.Compensations.Cancel)
}
