package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voucherly/redemption-service/internal/domain"
)

func pendingCase() *domain.FraudCase {
	return &domain.FraudCase{
		ID:           "case-1",
		CaseNumber:   "FRAUD-2026-0001",
		RedemptionID: "red-1",
		RiskScore:    75,
		CustomerID:   "cust-1",
		ProviderID:   "prov-1",
		VoucherID:    "vchr-1",
		Status:       domain.FraudCaseStatusPending,
	}
}

func TestFraudCase_Review_Approve(t *testing.T) {
	fc := pendingCase()

	outcome, err := fc.Review("reviewer-1", domain.FraudCaseStatusApproved, "legit purchase", nil)
	require.NoError(t, err)
	assert.Empty(t, outcome)

	assert.Equal(t, domain.FraudCaseStatusApproved, fc.Status)
	assert.Equal(t, "reviewer-1", fc.ReviewedBy)
	assert.Equal(t, "legit purchase", fc.ReviewNotes)
	require.NotNil(t, fc.ReviewedAt)
}

func TestFraudCase_Review_Reject_WithActions(t *testing.T) {
	fc := pendingCase()
	actions := []domain.CaseAction{{Type: "block_customer", Details: "repeated abuse"}}

	outcome, err := fc.Review("reviewer-1", domain.FraudCaseStatusRejected, "", actions)
	require.NoError(t, err)
	assert.Empty(t, outcome)
	assert.Equal(t, domain.FraudCaseStatusRejected, fc.Status)
	assert.Equal(t, actions, fc.ActionsTaken)
}

func TestFraudCase_Review_SecondReviewYieldsAlreadyReviewed(t *testing.T) {
	fc := pendingCase()

	_, err := fc.Review("reviewer-1", domain.FraudCaseStatusApproved, "", nil)
	require.NoError(t, err)

	firstReviewedAt := fc.ReviewedAt

	// The second transition must not apply, regardless of requested outcome.
	outcome, err := fc.Review("reviewer-2", domain.FraudCaseStatusRejected, "changed my mind", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyReviewed, outcome)

	assert.Equal(t, domain.FraudCaseStatusApproved, fc.Status)
	assert.Equal(t, "reviewer-1", fc.ReviewedBy)
	assert.Equal(t, firstReviewedAt, fc.ReviewedAt)
}

func TestFraudCase_Review_RejectsNonTerminalStatus(t *testing.T) {
	fc := pendingCase()

	_, err := fc.Review("reviewer-1", domain.FraudCaseStatusPending, "", nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	assert.True(t, fc.IsPending())
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, domain.IsTerminalStatus(domain.FraudCaseStatusApproved))
	assert.True(t, domain.IsTerminalStatus(domain.FraudCaseStatusRejected))
	assert.False(t, domain.IsTerminalStatus(domain.FraudCaseStatusPending))
	assert.False(t, domain.IsTerminalStatus(domain.FraudCaseStatus("CLOSED")))
}

func TestFormatCaseNumber(t *testing.T) {
	assert.Equal(t, "FRAUD-2026-0001", domain.FormatCaseNumber(2026, 1))
	assert.Equal(t, "FRAUD-2026-0042", domain.FormatCaseNumber(2026, 42))
	assert.Equal(t, "FRAUD-2027-12345", domain.FormatCaseNumber(2027, 12345))
}

func TestRiskBucket(t *testing.T) {
	tests := []struct {
		score  int
		bucket string
	}{
		{0, "low"},
		{39, "low"},
		{40, "medium"},
		{69, "medium"},
		{70, "high"},
		{100, "high"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bucket, domain.RiskBucket(tt.score), "score %d", tt.score)
	}
}
