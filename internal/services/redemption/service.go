package redemption

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	"github.com/voucherly/redemption-service/internal/services/resolver"
	"github.com/voucherly/redemption-service/pkg/observability"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// ScoreDispatcher accepts committed redemptions for asynchronous fraud
// scoring. Dispatch must never block: the redemption response is already
// on its way to the caller.
type ScoreDispatcher interface {
	Dispatch(r *domain.Redemption)
}

// Service is the redemption validator & recorder. It owns the voucher /
// ledger state machine and the single atomic write path that makes
// redemption at-most-once.
type Service struct {
	db             ports.DBPort
	repo           ports.RedemptionRepository
	catalog        ports.VoucherCatalog
	directory      ports.ProviderDirectory
	resolver       *resolver.Service
	dispatcher     ScoreDispatcher
	logger         *zap.Logger
	catalogTimeout time.Duration
}

// NewService creates a new redemption service
func NewService(
	db ports.DBPort,
	repo ports.RedemptionRepository,
	catalog ports.VoucherCatalog,
	directory ports.ProviderDirectory,
	res *resolver.Service,
	dispatcher ScoreDispatcher,
	catalogTimeout time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:             db,
		repo:           repo,
		catalog:        catalog,
		directory:      directory,
		resolver:       res,
		dispatcher:     dispatcher,
		logger:         logger,
		catalogTimeout: catalogTimeout,
	}
}

// RedeemRequest is one online redemption attempt.
type RedeemRequest struct {
	Presented        string
	CustomerID       string // used only when the presented code is static
	ActingProviderID string
	Location         *domain.GeoPoint
}

// Redeem resolves the presented token or code and records the redemption.
// Business failures come back inside the result; the error return is
// reserved for internal faults (ledger unreachable) that the transport
// tier maps to a 5xx.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (domain.RedemptionResult, error) {
	claim, outcome := s.resolver.Resolve(ctx, req.Presented, req.CustomerID)
	if outcome != "" {
		return domain.Failure(outcome), nil
	}

	now := timeutil.Now()
	return s.record(ctx, recordRequest{
		claim:            claim,
		presentedCode:    req.Presented,
		actingProviderID: req.ActingProviderID,
		location:         req.Location,
		redeemedAt:       now,
	})
}

// SyncOffline replays a batch of client-buffered redemption attempts.
// Entries are independent: one entry's outcome never affects its siblings,
// and partial success is the expected shape of the response.
func (s *Service) SyncOffline(ctx context.Context, actingProviderID string, entries []domain.OfflineEntry) []domain.SyncEntryResult {
	results := make([]domain.SyncEntryResult, 0, len(entries))
	syncedAt := timeutil.Now()

	for _, entry := range entries {
		results = append(results, s.syncEntry(ctx, actingProviderID, entry, syncedAt))
	}
	return results
}

func (s *Service) syncEntry(ctx context.Context, actingProviderID string, entry domain.OfflineEntry, syncedAt time.Time) domain.SyncEntryResult {
	claim, outcome := s.resolver.Resolve(ctx, entry.Code, entry.CustomerID)
	if outcome != "" {
		return domain.SyncEntryResult{Code: entry.Code, Success: false, ErrorCode: outcome}
	}

	redeemedAt := entry.RedeemedAt
	if redeemedAt.IsZero() {
		redeemedAt = syncedAt
	}

	metadata := map[string]string{}
	if entry.DeviceID != "" {
		metadata["device_id"] = entry.DeviceID
	}

	result, err := s.record(ctx, recordRequest{
		claim:            claim,
		presentedCode:    entry.Code,
		actingProviderID: actingProviderID,
		location:         entry.Location,
		redeemedAt:       redeemedAt,
		offline:          true,
		syncedAt:         &syncedAt,
		metadata:         metadata,
	})
	if err != nil {
		// An internal fault on one entry must not abort the batch; the
		// client re-queues the entry and retries the sync.
		s.logger.Error("offline entry failed internally",
			zap.String("code", entry.Code),
			zap.Error(err),
		)
		return domain.SyncEntryResult{Code: entry.Code, Success: false, ErrorCode: domain.OutcomeTransientError}
	}

	return domain.SyncEntryResult{
		Code:         entry.Code,
		Success:      result.Success,
		RedemptionID: result.RedemptionID,
		ErrorCode:    result.ErrorCode,
	}
}

// ValidateOffline pre-validates a scan token for disconnected clients.
func (s *Service) ValidateOffline(token string) (bool, string) {
	return s.resolver.ValidateToken(token)
}

// GetRedemption retrieves a redemption by id.
func (s *Service) GetRedemption(ctx context.Context, id string) (*domain.Redemption, error) {
	return s.repo.GetByID(ctx, nil, id)
}

type recordRequest struct {
	claim            *domain.RedemptionClaim
	presentedCode    string
	actingProviderID string
	location         *domain.GeoPoint
	redeemedAt       time.Time
	offline          bool
	syncedAt         *time.Time
	metadata         map[string]string
}

// record runs the voucher state machine and the atomic ledger write.
func (s *Service) record(ctx context.Context, req recordRequest) (domain.RedemptionResult, error) {
	claim := req.claim

	// 1. Fetch the voucher snapshot from the catalog oracle. The call is
	// the only external network hop on the redemption path and carries a
	// bounded timeout; exceeding it fails closed as transient.
	catalogCtx, cancel := context.WithTimeout(ctx, s.catalogTimeout)
	voucher, err := s.catalog.GetVoucher(catalogCtx, claim.VoucherID)
	cancel()
	if err != nil {
		switch domain.GetErrorCode(err) {
		case domain.ErrorCodeVoucherNotFound:
			return s.fail(domain.OutcomeVoucherNotFound, claim), nil
		default:
			s.logger.Warn("catalog fetch failed",
				zap.String("voucher_id", claim.VoucherID),
				zap.Error(err),
			)
			return s.fail(domain.OutcomeCatalogUnavailable, claim), nil
		}
	}

	// 2. The claim must be redeemed at the issuing provider.
	if voucher.ProviderID != req.actingProviderID {
		return s.fail(domain.OutcomeInvalidProvider, claim), nil
	}

	// 3. Lifecycle checks. Draft and suspended vouchers are not disclosed.
	if !voucher.IsRedeemable() {
		if voucher.IsExpired() {
			return s.fail(domain.OutcomeExpired, claim), nil
		}
		return s.fail(domain.OutcomeVoucherNotFound, claim), nil
	}
	if voucher.IsExpired() {
		return s.fail(domain.OutcomeExpired, claim), nil
	}

	// 4. Global cap precheck from the oracle snapshot.
	if voucher.AtGlobalCap() {
		return s.fail(domain.OutcomeRedemptionLimitReached, claim), nil
	}

	// 5. Per-customer precheck from the ledger. Advisory only: two
	// concurrent requests can both pass here, which is why step 6 is the
	// authoritative defense.
	perUser := voucher.MaxRedemptionsPerUser
	if perUser <= 0 {
		perUser = 1
	}
	count, err := s.repo.CountByVoucherAndCustomer(ctx, nil, voucher.ID, claim.CustomerID)
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	if count >= perUser {
		return s.fail(domain.OutcomeAlreadyRedeemed, claim), nil
	}

	// 6. Atomic commit: counter bumps and row insert in one transaction.
	red := &domain.Redemption{
		ID:                uuid.New().String(),
		VoucherID:         voucher.ID,
		CustomerID:        claim.CustomerID,
		ProviderID:        req.actingProviderID,
		Code:              req.presentedCode,
		RedeemedAt:        req.redeemedAt,
		Location:          req.location,
		OfflineRedemption: req.offline,
		SyncedAt:          req.syncedAt,
		Metadata:          req.metadata,
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.repo.Record(ctx, tx, red, ports.RecordCaps{
			MaxRedemptions:        voucher.MaxRedemptions,
			MaxRedemptionsPerUser: voucher.MaxRedemptionsPerUser,
		})
	})
	if err != nil {
		switch domain.GetErrorCode(err) {
		case domain.ErrorCodeLedgerVoucherCap:
			return s.fail(domain.OutcomeRedemptionLimitReached, claim), nil
		case domain.ErrorCodeLedgerCustomerCap:
			return s.fail(domain.OutcomeAlreadyRedeemed, claim), nil
		default:
			s.logger.Error("redemption commit failed",
				zap.String("voucher_id", voucher.ID),
				zap.String("customer_id", claim.CustomerID),
				zap.Error(err),
			)
			return domain.RedemptionResult{}, err
		}
	}

	// 7. Post-commit work. Nothing below may fail the redemption: the row
	// is durable and the response is about to leave.
	displayName := s.providerDisplayName(ctx, voucher.ProviderID)
	s.resolver.ConsumeCode(ctx, req.presentedCode)
	s.dispatcher.Dispatch(red)

	observability.RecordRedemption("success", req.offline)
	s.logger.Info("redemption recorded",
		zap.String("redemption_id", red.ID),
		zap.String("voucher_id", voucher.ID),
		zap.String("provider_id", red.ProviderID),
		zap.Bool("offline", req.offline),
	)

	return domain.RedemptionResult{
		Success:        true,
		RedemptionID:   red.ID,
		VoucherDetails: voucher.Details(displayName),
	}, nil
}

func (s *Service) fail(code domain.OutcomeCode, claim *domain.RedemptionClaim) domain.RedemptionResult {
	observability.RecordRedemption(string(code), false)
	s.logger.Info("redemption rejected",
		zap.String("voucher_id", claim.VoucherID),
		zap.String("outcome", string(code)),
	)
	return domain.Failure(code)
}

func (s *Service) providerDisplayName(ctx context.Context, providerID string) string {
	profile, err := s.directory.GetProvider(ctx, providerID)
	if err != nil {
		// Display name is cosmetic; the redemption already committed.
		s.logger.Debug("provider lookup failed", zap.String("provider_id", providerID), zap.Error(err))
		return providerID
	}
	return profile.DisplayName
}
