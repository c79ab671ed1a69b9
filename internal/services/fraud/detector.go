package fraud

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
)

// Scorer evaluates one committed redemption and contributes a partial risk
// score with the flags that justify it. Scorers must be side-effect free;
// they may read the ledger and the provider directory but never write.
type Scorer interface {
	Score(ctx context.Context, r *domain.Redemption) (int, []domain.FraudFlag)
}

// CompositeScorer runs every rule and sums their contributions, capping the
// total at 100. A rule that errors internally contributes nothing rather
// than failing the whole evaluation.
type CompositeScorer struct {
	rules []Scorer
}

// NewCompositeScorer builds the default rule set.
func NewCompositeScorer(
	repo ports.RedemptionRepository,
	cases ports.FraudCaseRepository,
	directory ports.ProviderDirectory,
	velocityWindow time.Duration,
	velocityLimit int,
	locationRadiusKm float64,
	logger *zap.Logger,
) *CompositeScorer {
	return &CompositeScorer{
		rules: []Scorer{
			&velocityRule{repo: repo, window: velocityWindow, limit: velocityLimit, logger: logger},
			&locationRule{directory: directory, radiusKm: locationRadiusKm, logger: logger},
			&historyRule{cases: cases, logger: logger},
			&offlineLagRule{},
		},
	}
}

// Score evaluates all rules against the redemption.
func (c *CompositeScorer) Score(ctx context.Context, r *domain.Redemption) (int, []domain.FraudFlag) {
	total := 0
	var flags []domain.FraudFlag
	for _, rule := range c.rules {
		score, ruleFlags := rule.Score(ctx, r)
		total += score
		flags = append(flags, ruleFlags...)
	}
	if total > 100 {
		total = 100
	}
	return total, flags
}

// velocityRule flags customers redeeming faster than the configured rate.
type velocityRule struct {
	repo   ports.RedemptionRepository
	window time.Duration
	limit  int
	logger *zap.Logger
}

func (v *velocityRule) Score(ctx context.Context, r *domain.Redemption) (int, []domain.FraudFlag) {
	since := r.RedeemedAt.Add(-v.window)
	count, err := v.repo.CountByCustomerSince(ctx, nil, r.CustomerID, since)
	if err != nil {
		v.logger.Warn("velocity rule skipped", zap.Error(err))
		return 0, nil
	}
	if count <= v.limit {
		return 0, nil
	}

	// Score grows with how far past the limit the customer is.
	score := 30 + 5*(count-v.limit)
	if score > 50 {
		score = 50
	}
	severity := domain.FlagSeverityMedium
	if count > v.limit*2 {
		severity = domain.FlagSeverityHigh
	}
	return score, []domain.FraudFlag{{
		Type:     "velocity",
		Severity: severity,
		Message:  fmt.Sprintf("%d redemptions in %s (limit %d)", count, v.window, v.limit),
	}}
}

// locationRule flags redemptions captured far from the provider's
// registered location. Redemptions without a capture location pass.
type locationRule struct {
	directory ports.ProviderDirectory
	radiusKm  float64
	logger    *zap.Logger
}

func (l *locationRule) Score(ctx context.Context, r *domain.Redemption) (int, []domain.FraudFlag) {
	if r.Location == nil {
		return 0, nil
	}
	profile, err := l.directory.GetProvider(ctx, r.ProviderID)
	if err != nil {
		l.logger.Warn("location rule skipped", zap.String("provider_id", r.ProviderID), zap.Error(err))
		return 0, nil
	}
	if profile.Lat == 0 && profile.Lng == 0 {
		// Provider has no registered location.
		return 0, nil
	}

	distance := haversineKm(r.Location.Lat, r.Location.Lng, profile.Lat, profile.Lng)
	if distance <= l.radiusKm {
		return 0, nil
	}

	severity := domain.FlagSeverityMedium
	score := 25
	if distance > l.radiusKm*4 {
		severity = domain.FlagSeverityHigh
		score = 40
	}
	return score, []domain.FraudFlag{{
		Type:     "location_anomaly",
		Severity: severity,
		Message:  fmt.Sprintf("captured %.0f km from provider (radius %.0f km)", distance, l.radiusKm),
	}}
}

// historyRule flags customers with prior fraud cases on record.
type historyRule struct {
	cases  ports.FraudCaseRepository
	logger *zap.Logger
}

func (h *historyRule) Score(ctx context.Context, r *domain.Redemption) (int, []domain.FraudFlag) {
	prior, err := h.cases.CountPriorCases(ctx, r.CustomerID)
	if err != nil {
		h.logger.Warn("history rule skipped", zap.Error(err))
		return 0, nil
	}
	if prior == 0 {
		return 0, nil
	}

	score := 15 * prior
	if score > 30 {
		score = 30
	}
	severity := domain.FlagSeverityLow
	if prior > 1 {
		severity = domain.FlagSeverityMedium
	}
	return score, []domain.FraudFlag{{
		Type:     "customer_history",
		Severity: severity,
		Message:  fmt.Sprintf("customer has %d prior fraud case(s)", prior),
	}}
}

// offlineLagRule flags offline-originated redemptions synced long after
// capture: stale entries are a common replay vector.
type offlineLagRule struct{}

const offlineLagThreshold = 48 * time.Hour

func (o *offlineLagRule) Score(_ context.Context, r *domain.Redemption) (int, []domain.FraudFlag) {
	if !r.OfflineRedemption || r.SyncedAt == nil {
		return 0, nil
	}
	lag := r.SyncedAt.Sub(r.RedeemedAt)
	if lag <= offlineLagThreshold {
		return 0, nil
	}
	return 15, []domain.FraudFlag{{
		Type:     "offline_sync_lag",
		Severity: domain.FlagSeverityLow,
		Message:  fmt.Sprintf("offline redemption synced %.0f hours after capture", lag.Hours()),
	}}
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
