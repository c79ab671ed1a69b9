package ports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voucherly/redemption-service/internal/domain"
)

// DBTX matches the query surface shared by *pgxpool.Pool and pgx.Tx, so
// repository methods run identically inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBPort provides transaction scoping over the connection pool.
type DBPort interface {
	GetDB() *pgxpool.Pool
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// RecordCaps carries the catalog caps the ledger enforces at commit time.
type RecordCaps struct {
	MaxRedemptions        int
	MaxRedemptionsPerUser int
}

// RedemptionRepository is the durable ledger of redemptions. Record is the
// single write path: it must be atomic and is the authoritative defense
// against concurrent double-redemption. It returns
// domain.ErrVoucherCapReached or domain.ErrCustomerCapReached when the
// conditional counter updates reject the row.
type RedemptionRepository interface {
	Record(ctx context.Context, tx DBTX, r *domain.Redemption, caps RecordCaps) error
	GetByID(ctx context.Context, tx DBTX, id string) (*domain.Redemption, error)
	CountByVoucherAndCustomer(ctx context.Context, tx DBTX, voucherID, customerID string) (int, error)
	CountByCustomerSince(ctx context.Context, tx DBTX, customerID string, since time.Time) (int, error)
	ListByVoucher(ctx context.Context, tx DBTX, voucherID string, limit, offset int32) ([]*domain.Redemption, error)
}

// FraudCaseRepository stores fraud cases and drives the review-once guard.
type FraudCaseRepository interface {
	// Create persists a new PENDING case, assigning ID and the per-year
	// FRAUD-YYYY-NNNN case number atomically.
	Create(ctx context.Context, fc *domain.FraudCase) error
	GetByID(ctx context.Context, id string) (*domain.FraudCase, error)
	ListByProvider(ctx context.Context, providerID string, status domain.FraudCaseStatus, limit, offset int32) ([]*domain.FraudCase, error)
	// ReviewPending applies the reviewer transition with a conditional
	// update guarded on status=PENDING. It reports applied=false when the
	// case was already reviewed, without error.
	ReviewPending(ctx context.Context, id string, reviewerID string, status domain.FraudCaseStatus, notes string, actions []domain.CaseAction, reviewedAt time.Time) (applied bool, err error)
	CountPriorCases(ctx context.Context, customerID string) (int, error)
	Statistics(ctx context.Context, providerID string) (*domain.FraudStatistics, error)
}
