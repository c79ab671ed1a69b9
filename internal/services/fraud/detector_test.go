package fraud_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	"github.com/voucherly/redemption-service/internal/services/fraud"
)

// MockLedger mocks the redemption ledger reads the rules need.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Record(ctx context.Context, tx ports.DBTX, r *domain.Redemption, caps ports.RecordCaps) error {
	args := m.Called(ctx, tx, r, caps)
	return args.Error(0)
}

func (m *MockLedger) GetByID(ctx context.Context, tx ports.DBTX, id string) (*domain.Redemption, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Redemption), args.Error(1)
}

func (m *MockLedger) CountByVoucherAndCustomer(ctx context.Context, tx ports.DBTX, voucherID, customerID string) (int, error) {
	args := m.Called(ctx, tx, voucherID, customerID)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) CountByCustomerSince(ctx context.Context, tx ports.DBTX, customerID string, since time.Time) (int, error) {
	args := m.Called(ctx, tx, customerID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) ListByVoucher(ctx context.Context, tx ports.DBTX, voucherID string, limit, offset int32) ([]*domain.Redemption, error) {
	args := m.Called(ctx, tx, voucherID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Redemption), args.Error(1)
}

// MockDirectory mocks the provider directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetProvider(ctx context.Context, providerID string) (*ports.ProviderProfile, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ProviderProfile), args.Error(1)
}

type scorerFixture struct {
	scorer    *fraud.CompositeScorer
	ledger    *MockLedger
	cases     *MockFraudCaseRepository
	directory *MockDirectory
}

func newScorerFixture() *scorerFixture {
	ledger := &MockLedger{}
	cases := &MockFraudCaseRepository{}
	directory := &MockDirectory{}
	return &scorerFixture{
		scorer:    fraud.NewCompositeScorer(ledger, cases, directory, time.Hour, 3, 50, zap.NewNop()),
		ledger:    ledger,
		cases:     cases,
		directory: directory,
	}
}

// quietCustomer stubs every rule input to its benign answer.
func (f *scorerFixture) quietCustomer() {
	f.ledger.On("CountByCustomerSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	f.cases.On("CountPriorCases", mock.Anything, mock.Anything).Return(0, nil)
}

func TestCompositeScorer_CleanRedemptionScoresZero(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	score, flags := f.scorer.Score(context.Background(), committedRedemption())
	assert.Zero(t, score)
	assert.Empty(t, flags)
}

func TestVelocityRule_ScalesWithExcess(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		score    int
		severity domain.FlagSeverity
	}{
		{"just over limit", 4, 35, domain.FlagSeverityMedium},
		{"well over limit", 7, 50, domain.FlagSeverityHigh},
		{"capped", 20, 50, domain.FlagSeverityHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScorerFixture()
			f.ledger.On("CountByCustomerSince", mock.Anything, mock.Anything, "cust-1", mock.Anything).Return(tt.count, nil)
			f.cases.On("CountPriorCases", mock.Anything, "cust-1").Return(0, nil)

			score, flags := f.scorer.Score(context.Background(), committedRedemption())
			assert.Equal(t, tt.score, score)
			if assert.Len(t, flags, 1) {
				assert.Equal(t, "velocity", flags[0].Type)
				assert.Equal(t, tt.severity, flags[0].Severity)
			}
		})
	}
}

func TestLocationRule_FlagsDistantCapture(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	// Provider registered in central Berlin; capture near Munich, ~500 km away.
	f.directory.On("GetProvider", mock.Anything, "prov-1").
		Return(&ports.ProviderProfile{ID: "prov-1", Lat: 52.52, Lng: 13.405}, nil)

	r := committedRedemption()
	r.Location = &domain.GeoPoint{Lat: 48.137, Lng: 11.575}

	score, flags := f.scorer.Score(context.Background(), r)
	assert.Equal(t, 40, score)
	if assert.Len(t, flags, 1) {
		assert.Equal(t, "location_anomaly", flags[0].Type)
		assert.Equal(t, domain.FlagSeverityHigh, flags[0].Severity)
	}
}

func TestLocationRule_WithinRadiusPasses(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	f.directory.On("GetProvider", mock.Anything, "prov-1").
		Return(&ports.ProviderProfile{ID: "prov-1", Lat: 52.52, Lng: 13.405}, nil)

	r := committedRedemption()
	// A few blocks away.
	r.Location = &domain.GeoPoint{Lat: 52.53, Lng: 13.41}

	score, flags := f.scorer.Score(context.Background(), r)
	assert.Zero(t, score)
	assert.Empty(t, flags)
}

func TestLocationRule_SkipsWithoutCaptureLocation(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	score, _ := f.scorer.Score(context.Background(), committedRedemption())
	assert.Zero(t, score)
	f.directory.AssertNotCalled(t, "GetProvider", mock.Anything, mock.Anything)
}

func TestLocationRule_SkipsUnregisteredProvider(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	f.directory.On("GetProvider", mock.Anything, "prov-1").
		Return(&ports.ProviderProfile{ID: "prov-1"}, nil)

	r := committedRedemption()
	r.Location = &domain.GeoPoint{Lat: 48.137, Lng: 11.575}

	score, flags := f.scorer.Score(context.Background(), r)
	assert.Zero(t, score)
	assert.Empty(t, flags)
}

func TestHistoryRule_PriorCases(t *testing.T) {
	f := newScorerFixture()
	f.ledger.On("CountByCustomerSince", mock.Anything, mock.Anything, "cust-1", mock.Anything).Return(0, nil)
	f.cases.On("CountPriorCases", mock.Anything, "cust-1").Return(3, nil)

	score, flags := f.scorer.Score(context.Background(), committedRedemption())
	assert.Equal(t, 30, score, "history contribution caps at 30")
	if assert.Len(t, flags, 1) {
		assert.Equal(t, "customer_history", flags[0].Type)
		assert.Equal(t, domain.FlagSeverityMedium, flags[0].Severity)
	}
}

func TestOfflineLagRule_FlagsStaleSync(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	r := committedRedemption()
	r.OfflineRedemption = true
	r.RedeemedAt = time.Now().Add(-72 * time.Hour)
	synced := time.Now()
	r.SyncedAt = &synced

	score, flags := f.scorer.Score(context.Background(), r)
	assert.Equal(t, 15, score)
	if assert.Len(t, flags, 1) {
		assert.Equal(t, "offline_sync_lag", flags[0].Type)
	}
}

func TestOfflineLagRule_FreshSyncPasses(t *testing.T) {
	f := newScorerFixture()
	f.quietCustomer()

	r := committedRedemption()
	r.OfflineRedemption = true
	r.RedeemedAt = time.Now().Add(-2 * time.Hour)
	synced := time.Now()
	r.SyncedAt = &synced

	score, _ := f.scorer.Score(context.Background(), r)
	assert.Zero(t, score)
}

func TestCompositeScorer_TotalCappedAt100(t *testing.T) {
	f := newScorerFixture()
	f.ledger.On("CountByCustomerSince", mock.Anything, mock.Anything, "cust-1", mock.Anything).Return(20, nil)
	f.cases.On("CountPriorCases", mock.Anything, "cust-1").Return(5, nil)
	f.directory.On("GetProvider", mock.Anything, "prov-1").
		Return(&ports.ProviderProfile{ID: "prov-1", Lat: 52.52, Lng: 13.405}, nil)

	r := committedRedemption()
	r.Location = &domain.GeoPoint{Lat: 48.137, Lng: 11.575}
	r.OfflineRedemption = true
	r.RedeemedAt = time.Now().Add(-100 * time.Hour)
	synced := time.Now()
	r.SyncedAt = &synced

	score, flags := f.scorer.Score(context.Background(), r)
	assert.Equal(t, 100, score)
	assert.Len(t, flags, 4)
}

func TestCompositeScorer_ErroredRuleContributesNothing(t *testing.T) {
	f := newScorerFixture()
	f.ledger.On("CountByCustomerSince", mock.Anything, mock.Anything, "cust-1", mock.Anything).
		Return(0, errors.New("ledger offline"))
	f.cases.On("CountPriorCases", mock.Anything, "cust-1").Return(1, nil)

	score, flags := f.scorer.Score(context.Background(), committedRedemption())
	assert.Equal(t, 15, score, "only the history rule contributes")
	assert.Len(t, flags, 1)
}
