package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// FraudCaseRepository implements ports.FraudCaseRepository.
type FraudCaseRepository struct {
	db ports.DBPort
}

// NewFraudCaseRepository creates a new fraud case repository
func NewFraudCaseRepository(db ports.DBPort) *FraudCaseRepository {
	return &FraudCaseRepository{db: db}
}

const nextCaseSeqSQL = `
INSERT INTO fraud_case_sequences (year, last_seq)
VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE
SET last_seq = fraud_case_sequences.last_seq + 1
RETURNING last_seq`

const insertFraudCaseSQL = `
INSERT INTO fraud_cases (
    id, case_number, redemption_id, detected_at, risk_score, flags,
    customer_id, provider_id, voucher_id, status
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Create persists a new PENDING case. The case number is assigned from the
// per-year sequence row inside the same transaction, so numbers are
// monotonic per year even under concurrent detectors.
func (r *FraudCaseRepository) Create(ctx context.Context, fc *domain.FraudCase) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		year := timeutil.YearUTC(fc.DetectedAt)

		var seq int
		if err := tx.QueryRow(ctx, nextCaseSeqSQL, year).Scan(&seq); err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "next case sequence", err)
		}
		fc.CaseNumber = domain.FormatCaseNumber(year, seq)
		fc.Status = domain.FraudCaseStatusPending

		flags, err := json.Marshal(fc.Flags)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeInternalError, "marshal flags", err)
		}

		_, err = tx.Exec(ctx, insertFraudCaseSQL,
			fc.ID, fc.CaseNumber, fc.RedemptionID, fc.DetectedAt, fc.RiskScore,
			flags, fc.CustomerID, fc.ProviderID, fc.VoucherID, string(fc.Status))
		if err != nil {
			return domain.WrapError(domain.ErrorCodeDatabaseError, "insert fraud case", err)
		}
		return nil
	})
}

const selectFraudCaseSQL = `
SELECT id, case_number, redemption_id, detected_at, risk_score, flags,
       customer_id, provider_id, voucher_id, status,
       reviewed_at, reviewed_by, review_notes, actions_taken
FROM fraud_cases`

// GetByID retrieves a fraud case by its ID
func (r *FraudCaseRepository) GetByID(ctx context.Context, id string) (*domain.FraudCase, error) {
	row := r.db.GetDB().QueryRow(ctx, selectFraudCaseSQL+" WHERE id = $1", id)
	fc, err := scanFraudCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFraudCaseNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get fraud case by id", err)
	}
	return fc, nil
}

// ListByProvider lists a provider's cases, optionally filtered by status.
// An empty providerID means all tenants; the service only passes that for
// admin callers.
func (r *FraudCaseRepository) ListByProvider(ctx context.Context, providerID string, status domain.FraudCaseStatus, limit, offset int32) ([]*domain.FraudCase, error) {
	query := selectFraudCaseSQL + " WHERE (provider_id = $1 OR $1 = '')"
	args := []any{providerID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query += " ORDER BY detected_at DESC"
	if status != "" {
		query += " LIMIT $3 OFFSET $4"
	} else {
		query += " LIMIT $2 OFFSET $3"
	}
	args = append(args, limit, offset)

	rows, err := r.db.GetDB().Query(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list fraud cases", err)
	}
	defer rows.Close()

	var cases []*domain.FraudCase
	for rows.Next() {
		fc, err := scanFraudCase(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan fraud case", err)
		}
		cases = append(cases, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate fraud cases", err)
	}
	return cases, nil
}

const reviewPendingSQL = `
UPDATE fraud_cases
SET status = $2, reviewed_at = $3, reviewed_by = $4, review_notes = $5, actions_taken = $6
WHERE id = $1 AND status = 'PENDING'`

// ReviewPending applies the reviewer transition guarded on current status.
// The conditional update is the review-once enforcement; no locks are held
// across requests.
func (r *FraudCaseRepository) ReviewPending(ctx context.Context, id string, reviewerID string, status domain.FraudCaseStatus, notes string, actions []domain.CaseAction, reviewedAt time.Time) (bool, error) {
	if actions == nil {
		actions = []domain.CaseAction{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeInternalError, "marshal actions", err)
	}

	tag, err := r.db.GetDB().Exec(ctx, reviewPendingSQL,
		id, string(status), reviewedAt, reviewerID, notes, actionsJSON)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeDatabaseError, "review fraud case", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountPriorCases counts all cases ever opened against a customer
func (r *FraudCaseRepository) CountPriorCases(ctx context.Context, customerID string) (int, error) {
	var count int
	err := r.db.GetDB().QueryRow(ctx,
		"SELECT COUNT(*) FROM fraud_cases WHERE customer_id = $1", customerID).Scan(&count)
	if err != nil {
		return 0, domain.WrapError(domain.ErrorCodeDatabaseError, "count prior cases", err)
	}
	return count, nil
}

const statisticsSQL = `
SELECT
    COUNT(*),
    COUNT(*) FILTER (WHERE status = 'PENDING'),
    COUNT(*) FILTER (WHERE status = 'APPROVED'),
    COUNT(*) FILTER (WHERE status = 'REJECTED'),
    COUNT(*) FILTER (WHERE risk_score < 40),
    COUNT(*) FILTER (WHERE risk_score >= 40 AND risk_score < 70),
    COUNT(*) FILTER (WHERE risk_score >= 70)
FROM fraud_cases
WHERE provider_id = $1 OR $1 = ''`

// Statistics aggregates case counts, the false-positive rate and the risk
// distribution. An approved case means the redemption was legitimate, so
// the detector's flag was a false positive.
func (r *FraudCaseRepository) Statistics(ctx context.Context, providerID string) (*domain.FraudStatistics, error) {
	var total, pending, approved, rejected, low, medium, high int
	err := r.db.GetDB().QueryRow(ctx, statisticsSQL, providerID).
		Scan(&total, &pending, &approved, &rejected, &low, &medium, &high)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "fraud statistics", err)
	}

	stats := &domain.FraudStatistics{
		TotalCases:    total,
		PendingCases:  pending,
		ApprovedCases: approved,
		RejectedCases: rejected,
		RiskDistribution: map[string]int{
			"low":    low,
			"medium": medium,
			"high":   high,
		},
	}
	if reviewed := approved + rejected; reviewed > 0 {
		stats.FalsePositiveRate = float64(approved) / float64(reviewed)
	}
	return stats, nil
}

func scanFraudCase(row pgx.Row) (*domain.FraudCase, error) {
	var (
		fc           domain.FraudCase
		flags        []byte
		actions      []byte
		reviewedBy   *string
		reviewNotes  *string
		status       string
	)
	err := row.Scan(&fc.ID, &fc.CaseNumber, &fc.RedemptionID, &fc.DetectedAt,
		&fc.RiskScore, &flags, &fc.CustomerID, &fc.ProviderID, &fc.VoucherID,
		&status, &fc.ReviewedAt, &reviewedBy, &reviewNotes, &actions)
	if err != nil {
		return nil, err
	}
	fc.Status = domain.FraudCaseStatus(status)
	if reviewedBy != nil {
		fc.ReviewedBy = *reviewedBy
	}
	if reviewNotes != nil {
		fc.ReviewNotes = *reviewNotes
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &fc.Flags); err != nil {
			return nil, err
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &fc.ActionsTaken); err != nil {
			return nil, err
		}
	}
	return &fc, nil
}
