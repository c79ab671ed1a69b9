package domain

import (
	"fmt"
	"time"

	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// FraudCaseStatus represents the reviewer state machine. PENDING is the
// only non-terminal state; APPROVED and REJECTED are terminal.
type FraudCaseStatus string

const (
	FraudCaseStatusPending  FraudCaseStatus = "PENDING"
	FraudCaseStatusApproved FraudCaseStatus = "APPROVED"
	FraudCaseStatusRejected FraudCaseStatus = "REJECTED"
)

// FlagSeverity grades an individual fraud signal.
type FlagSeverity string

const (
	FlagSeverityLow    FlagSeverity = "low"
	FlagSeverityMedium FlagSeverity = "medium"
	FlagSeverityHigh   FlagSeverity = "high"
)

// FraudFlag is one signal contributing to a redemption's risk score.
type FraudFlag struct {
	Type     string       `json:"type"`
	Severity FlagSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// CaseAction records a remediation taken by a reviewer.
type CaseAction struct {
	Type    string `json:"type"`
	Details string `json:"details,omitempty"`
}

// FraudCase is a human-reviewable record opened when a redemption's risk
// score crosses the configured threshold. It references its redemption by
// id only; closing a case never mutates the redemption.
type FraudCase struct {
	ID           string          `json:"id"`
	CaseNumber   string          `json:"case_number"`
	RedemptionID string          `json:"redemption_id"`
	DetectedAt   time.Time       `json:"detected_at"`
	RiskScore    int             `json:"risk_score"`
	Flags        []FraudFlag     `json:"flags"`
	CustomerID   string          `json:"customer_id"`
	ProviderID   string          `json:"provider_id"`
	VoucherID    string          `json:"voucher_id"`
	Status       FraudCaseStatus `json:"status"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy   string          `json:"reviewed_by,omitempty"`
	ReviewNotes  string          `json:"review_notes,omitempty"`
	ActionsTaken []CaseAction    `json:"actions_taken,omitempty"`
}

// FormatCaseNumber renders the FRAUD-YYYY-NNNN case number for a per-year
// sequence value.
func FormatCaseNumber(year int, seq int) string {
	return fmt.Sprintf("FRAUD-%04d-%04d", year, seq)
}

// IsPending reports whether the case is still awaiting review.
func (c *FraudCase) IsPending() bool {
	return c.Status == FraudCaseStatusPending
}

// IsTerminalStatus reports whether the requested status is a valid review
// outcome.
func IsTerminalStatus(status FraudCaseStatus) bool {
	return status == FraudCaseStatusApproved || status == FraudCaseStatusRejected
}

// Review applies the reviewer transition. The guard is on current status:
// a second review of a non-pending case yields ALREADY_REVIEWED regardless
// of the requested outcome. The persistence layer re-checks the same guard
// with a conditional update; this method keeps the in-memory copy honest.
func (c *FraudCase) Review(reviewerID string, status FraudCaseStatus, notes string, actions []CaseAction) (OutcomeCode, error) {
	if !IsTerminalStatus(status) {
		return "", NewDomainError(ErrorCodeValidationFailed, "review status must be APPROVED or REJECTED").
			WithDetail("status", string(status))
	}
	if !c.IsPending() {
		return OutcomeAlreadyReviewed, nil
	}

	now := timeutil.Now()
	c.Status = status
	c.ReviewedAt = &now
	c.ReviewedBy = reviewerID
	c.ReviewNotes = notes
	c.ActionsTaken = actions
	return "", nil
}

// RiskBucket classifies a risk score into the reporting buckets.
func RiskBucket(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

// FraudStatistics is the aggregate view served to reviewers.
type FraudStatistics struct {
	TotalCases        int            `json:"total_cases"`
	PendingCases      int            `json:"pending_cases"`
	ApprovedCases     int            `json:"approved_cases"`
	RejectedCases     int            `json:"rejected_cases"`
	FalsePositiveRate float64        `json:"false_positive_rate"`
	RiskDistribution  map[string]int `json:"risk_distribution"`
}
