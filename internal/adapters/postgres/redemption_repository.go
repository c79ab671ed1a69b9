package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
)

// RedemptionRepository implements ports.RedemptionRepository with raw pgx
// queries against the redemption ledger.
type RedemptionRepository struct {
	db ports.DBPort
}

// NewRedemptionRepository creates a new redemption repository
func NewRedemptionRepository(db ports.DBPort) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

func (r *RedemptionRepository) conn(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

const bumpVoucherCounterSQL = `
INSERT INTO voucher_counters (voucher_id, redemption_count)
VALUES ($1, 1)
ON CONFLICT (voucher_id) DO UPDATE
SET redemption_count = voucher_counters.redemption_count + 1
WHERE voucher_counters.redemption_count < $2
RETURNING redemption_count`

const bumpVoucherCounterUnboundedSQL = `
INSERT INTO voucher_counters (voucher_id, redemption_count)
VALUES ($1, 1)
ON CONFLICT (voucher_id) DO UPDATE
SET redemption_count = voucher_counters.redemption_count + 1
RETURNING redemption_count`

const bumpCustomerCounterSQL = `
INSERT INTO customer_redemption_counters (voucher_id, customer_id, redemption_count)
VALUES ($1, $2, 1)
ON CONFLICT (voucher_id, customer_id) DO UPDATE
SET redemption_count = customer_redemption_counters.redemption_count + 1
WHERE customer_redemption_counters.redemption_count < $3
RETURNING redemption_count`

const insertRedemptionSQL = `
INSERT INTO redemptions (
    id, voucher_id, customer_id, provider_id, code, redeemed_at,
    location_lat, location_lng, offline_redemption, synced_at, metadata
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// Record atomically bumps both cap counters and inserts the redemption
// row. It must run inside a transaction: the conditional counter upserts
// take row locks that serialize concurrent committers, so the second
// committer for the same (voucher, customer) fails here at commit time
// rather than after advisory prechecks.
func (r *RedemptionRepository) Record(ctx context.Context, tx ports.DBTX, red *domain.Redemption, caps ports.RecordCaps) error {
	if tx == nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "record requires a transaction", nil)
	}

	// Global cap. A zero or negative cap means unlimited.
	var count int
	var err error
	if caps.MaxRedemptions > 0 {
		err = tx.QueryRow(ctx, bumpVoucherCounterSQL, red.VoucherID, caps.MaxRedemptions).Scan(&count)
	} else {
		err = tx.QueryRow(ctx, bumpVoucherCounterUnboundedSQL, red.VoucherID).Scan(&count)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrVoucherCapReached
		}
		return domain.WrapError(domain.ErrorCodeDatabaseError, "bump voucher counter", err)
	}

	// Per-customer cap. Defaults to a single redemption per customer.
	perUser := caps.MaxRedemptionsPerUser
	if perUser <= 0 {
		perUser = 1
	}
	err = tx.QueryRow(ctx, bumpCustomerCounterSQL, red.VoucherID, red.CustomerID, perUser).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrCustomerCapReached
		}
		return domain.WrapError(domain.ErrorCodeDatabaseError, "bump customer counter", err)
	}

	metadata, err := marshalMetadata(red.Metadata)
	if err != nil {
		return err
	}

	var lat, lng *float64
	if red.Location != nil {
		lat, lng = &red.Location.Lat, &red.Location.Lng
	}

	_, err = tx.Exec(ctx, insertRedemptionSQL,
		red.ID, red.VoucherID, red.CustomerID, red.ProviderID, red.Code,
		red.RedeemedAt, lat, lng, red.OfflineRedemption, red.SyncedAt, metadata)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeDatabaseError, "insert redemption", err)
	}

	return nil
}

const selectRedemptionSQL = `
SELECT id, voucher_id, customer_id, provider_id, code, redeemed_at,
       location_lat, location_lng, offline_redemption, synced_at, metadata, created_at
FROM redemptions`

// GetByID retrieves a redemption by its ID
func (r *RedemptionRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*domain.Redemption, error) {
	row := r.conn(tx).QueryRow(ctx, selectRedemptionSQL+" WHERE id = $1", id)
	red, err := scanRedemption(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRedemptionNotFound
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "get redemption by id", err)
	}
	return red, nil
}

// CountByVoucherAndCustomer counts ledger rows for a (voucher, customer) pair
func (r *RedemptionRepository) CountByVoucherAndCustomer(ctx context.Context, tx ports.DBTX, voucherID, customerID string) (int, error) {
	var count int
	err := r.conn(tx).QueryRow(ctx,
		"SELECT COUNT(*) FROM redemptions WHERE voucher_id = $1 AND customer_id = $2",
		voucherID, customerID).Scan(&count)
	if err != nil {
		return 0, domain.WrapError(domain.ErrorCodeDatabaseError, "count by voucher and customer", err)
	}
	return count, nil
}

// CountByCustomerSince counts a customer's redemptions in a trailing window
func (r *RedemptionRepository) CountByCustomerSince(ctx context.Context, tx ports.DBTX, customerID string, since time.Time) (int, error) {
	var count int
	err := r.conn(tx).QueryRow(ctx,
		"SELECT COUNT(*) FROM redemptions WHERE customer_id = $1 AND redeemed_at >= $2",
		customerID, since).Scan(&count)
	if err != nil {
		return 0, domain.WrapError(domain.ErrorCodeDatabaseError, "count by customer since", err)
	}
	return count, nil
}

// ListByVoucher lists redemptions for a voucher with pagination
func (r *RedemptionRepository) ListByVoucher(ctx context.Context, tx ports.DBTX, voucherID string, limit, offset int32) ([]*domain.Redemption, error) {
	rows, err := r.conn(tx).Query(ctx,
		selectRedemptionSQL+" WHERE voucher_id = $1 ORDER BY redeemed_at DESC LIMIT $2 OFFSET $3",
		voucherID, limit, offset)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "list by voucher", err)
	}
	defer rows.Close()

	var redemptions []*domain.Redemption
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "scan redemption", err)
		}
		redemptions = append(redemptions, red)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "iterate redemptions", err)
	}
	return redemptions, nil
}

func scanRedemption(row pgx.Row) (*domain.Redemption, error) {
	var (
		red      domain.Redemption
		lat, lng *float64
		metadata []byte
	)
	err := row.Scan(&red.ID, &red.VoucherID, &red.CustomerID, &red.ProviderID,
		&red.Code, &red.RedeemedAt, &lat, &lng, &red.OfflineRedemption,
		&red.SyncedAt, &metadata, &red.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		red.Location = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &red.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &red, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "marshal metadata", err)
	}
	return b, nil
}
