package fraud

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	"github.com/voucherly/redemption-service/pkg/observability"
	"github.com/voucherly/redemption-service/pkg/timeutil"
)

// Service owns fraud scoring and the reviewer case workflow.
type Service struct {
	repo          ports.FraudCaseRepository
	scorer        Scorer
	caseThreshold int
	logger        *zap.Logger
}

// NewService creates a new fraud service
func NewService(repo ports.FraudCaseRepository, scorer Scorer, caseThreshold int, logger *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		scorer:        scorer,
		caseThreshold: caseThreshold,
		logger:        logger,
	}
}

// ScoreRedemption evaluates a committed redemption and opens a PENDING case
// when the risk score reaches the threshold. Errors here never touch the
// redemption: the row is already durable.
func (s *Service) ScoreRedemption(ctx context.Context, r *domain.Redemption) error {
	score, flags := s.scorer.Score(ctx, r)
	if score < s.caseThreshold {
		return nil
	}

	fc := &domain.FraudCase{
		ID:           uuid.New().String(),
		RedemptionID: r.ID,
		DetectedAt:   timeutil.Now(),
		RiskScore:    score,
		Flags:        flags,
		CustomerID:   r.CustomerID,
		ProviderID:   r.ProviderID,
		VoucherID:    r.VoucherID,
		Status:       domain.FraudCaseStatusPending,
	}
	if err := s.repo.Create(ctx, fc); err != nil {
		return err
	}

	observability.RecordFraudCaseOpened()
	s.logger.Info("fraud case opened",
		zap.String("case_number", fc.CaseNumber),
		zap.String("redemption_id", r.ID),
		zap.Int("risk_score", score),
	)
	return nil
}

// GetCase returns one case, enforcing the tenant boundary. Cross-provider
// access is a business-rule failure, not a hard auth error: the existence
// of the case row is itself sensitive.
func (s *Service) GetCase(ctx context.Context, actor auth.AuthContext, id string) (*domain.FraudCase, domain.OutcomeCode, error) {
	fc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if !actor.IsAdmin() && fc.ProviderID != actor.ProviderID {
		return nil, domain.OutcomeForbiddenCrossProvider, nil
	}
	return fc, "", nil
}

// ListCases returns the actor's cases, optionally filtered by status.
// Admins may pass an explicit providerID to scope the listing; providers
// are always scoped to themselves.
func (s *Service) ListCases(ctx context.Context, actor auth.AuthContext, providerID string, status domain.FraudCaseStatus, limit, offset int32) ([]*domain.FraudCase, error) {
	if !actor.IsAdmin() {
		providerID = actor.ProviderID
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByProvider(ctx, providerID, status, limit, offset)
}

// ReviewRequest carries the reviewer transition.
type ReviewRequest struct {
	CaseID  string
	Status  domain.FraudCaseStatus
	Notes   string
	Actions []domain.CaseAction
}

// Review applies the single permitted transition PENDING -> APPROVED or
// PENDING -> REJECTED. The guard is a conditional update on current status,
// so two racing reviewers resolve to exactly one applied transition and one
// ALREADY_REVIEWED outcome.
func (s *Service) Review(ctx context.Context, actor auth.AuthContext, req ReviewRequest) (*domain.FraudCase, domain.OutcomeCode, error) {
	if !domain.IsTerminalStatus(req.Status) {
		return nil, "", domain.NewDomainError(domain.ErrorCodeValidationFailed,
			"review status must be APPROVED or REJECTED").
			WithDetail("status", string(req.Status))
	}

	fc, err := s.repo.GetByID(ctx, req.CaseID)
	if err != nil {
		return nil, "", err
	}
	if !actor.IsAdmin() && fc.ProviderID != actor.ProviderID {
		return nil, domain.OutcomeForbiddenCrossProvider, nil
	}

	reviewedAt := timeutil.Now()
	applied, err := s.repo.ReviewPending(ctx, req.CaseID, actor.ProviderID, req.Status, req.Notes, req.Actions, reviewedAt)
	if err != nil {
		return nil, "", err
	}
	if !applied {
		return nil, domain.OutcomeAlreadyReviewed, nil
	}

	fc.Status = req.Status
	fc.ReviewedAt = &reviewedAt
	fc.ReviewedBy = actor.ProviderID
	fc.ReviewNotes = req.Notes
	fc.ActionsTaken = req.Actions

	s.logger.Info("fraud case reviewed",
		zap.String("case_number", fc.CaseNumber),
		zap.String("status", string(req.Status)),
		zap.String("reviewed_by", actor.ProviderID),
	)
	return fc, "", nil
}

// Statistics returns the aggregate reviewer view. Providers see only their
// own cases; admins see the whole tenant.
func (s *Service) Statistics(ctx context.Context, actor auth.AuthContext) (*domain.FraudStatistics, error) {
	providerID := actor.ProviderID
	if actor.IsAdmin() {
		providerID = ""
	}
	return s.repo.Statistics(ctx, providerID)
}
