package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/noah-isme/academy-ledger-api/internal/dto"
	"github.com/noah-isme/academy-ledger-api/internal/models"
	appErrors "github.com/noah-isme/academy-ledger-api/pkg/errors"
)

type LedgerFlowSuite struct {
	suite.Suite
	f   *ledgerFixture
	ctx context.Context
}

func TestLedgerFlowSuite(t *testing.T) {
	suite.Run(t, new(LedgerFlowSuite))
}

func (s *LedgerFlowSuite) SetupTest() {
	s.f = newLedgerFixture(s.T())
	s.ctx = context.Background()
}

func (s *LedgerFlowSuite) TestOverpaymentThenExactRemainder() {
	openLedger(s.T(), s.f, "stu-1", 15000)
	_, err := pay(s.f, "stu-1", 5000, "tx-1")
	s.Require().NoError(err)

	_, err = pay(s.f, "stu-1", 11000, "tx-2")
	s.Require().ErrorIs(err, appErrors.ErrOverpaymentRejected)
	status, err := s.f.facade.GetFeeStatus(s.ctx, "stu-1")
	s.Require().NoError(err)
	s.True(status.PaidAmount.Equal(decimal.NewFromInt(5000)))

	result, err := pay(s.f, "stu-1", 10000, "tx-3")
	s.Require().NoError(err)
	s.True(result.Status.PaidAmount.Equal(decimal.NewFromInt(15000)))
	s.Equal(models.FeeStatusPaid, result.Status.Status)
	s.Require().NotNil(result.Payment.ReceiptNumber)
	s.Equal("RCP-2026-002", *result.Payment.ReceiptNumber)
}

func (s *LedgerFlowSuite) TestExhaustedSubscriptionKeepsCounter() {
	sub := s.f.approvedSubscription(s.T(), "stu-1", "class-oil", 8)
	for i := 0; i < 8; i++ {
		s.f.attend(s.T(), sub.ID, "sess", true)
	}

	present := true
	_, err := s.f.facade.RecordAttendance(s.ctx, sub.ID, dto.RecordAttendanceRequest{ClassSessionID: "sess-9", WasPresent: &present})
	s.Require().ErrorIs(err, appErrors.ErrSubscriptionExhausted)

	current, err := s.f.facade.GetSubscription(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(8, current.ClassesAttended)
}

func (s *LedgerFlowSuite) TestAbsenceCompensatedOnce() {
	sub := s.f.approvedSubscription(s.T(), "stu-1", "class-oil", 8)
	absence := s.f.attend(s.T(), sub.ID, "sess-1", false)

	_, err := s.f.facade.AssignCompensation(s.ctx, assignReq(absence.Record.ID, "sess-makeup"))
	s.Require().NoError(err)
	_, err = s.f.facade.AssignCompensation(s.ctx, assignReq(absence.Record.ID, "sess-makeup-2"))
	s.Require().ErrorIs(err, appErrors.ErrAlreadyCompensated)
}

func (s *LedgerFlowSuite) TestRejectedEnrollmentCannotBeApproved() {
	enrollment, err := s.f.facade.RequestEnrollment(s.ctx, dto.RequestEnrollmentRequest{StudentID: "stu-1", ClassID: "class-oil"})
	s.Require().NoError(err)

	rejected, err := s.f.facade.RejectEnrollment(s.ctx, enrollment.ID, "admin-1", dto.RejectEnrollmentRequest{})
	s.Require().NoError(err)
	s.Equal(models.EnrollmentStatusRejected, rejected.Status)

	_, err = s.f.facade.ApproveEnrollmentAndProvision(s.ctx, enrollment.ID, "admin-1", dto.ApproveEnrollmentRequest{})
	s.Require().ErrorIs(err, appErrors.ErrInvalidTransition)

	current, err := s.f.facade.GetEnrollment(s.ctx, enrollment.ID)
	s.Require().NoError(err)
	s.Equal(models.EnrollmentStatusRejected, current.Status)

	subs, err := s.f.facade.ListSubscriptions(s.ctx, "stu-1")
	s.Require().NoError(err)
	s.Empty(subs)
}
