package redemption_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/adapters/memcache"
	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
	"github.com/voucherly/redemption-service/internal/domain/ports"
	redemptionhandler "github.com/voucherly/redemption-service/internal/handlers/redemption"
	redemptionsvc "github.com/voucherly/redemption-service/internal/services/redemption"
	"github.com/voucherly/redemption-service/internal/services/resolver"
	"github.com/voucherly/redemption-service/pkg/crypto"
)

type stubDB struct{}

func (stubDB) GetDB() *pgxpool.Pool { return nil }

func (stubDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

// MockLedger mocks the redemption ledger.
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

// MockCatalog mocks the catalog oracle and provider directory.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetVoucher(ctx context.Context, voucherID string) (*domain.Voucher, error) {
	args := m.Called(ctx, voucherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Voucher), args.Error(1)
}

func (m *MockCatalog) GetProvider(ctx context.Context, providerID string) (*ports.ProviderProfile, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ProviderProfile), args.Error(1)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(*domain.Redemption) {}

type handlerFixture struct {
	router http.Handler
	ledger *MockLedger
	issuer *auth.Issuer
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	keys, err := crypto.GenerateRSAKeyPair()
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(keys.PublicKeyPEM, "voucher-catalog", 30*time.Second)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(keys.PrivateKeyPEM, "voucher-catalog")
	require.NoError(t, err)

	cache := memcache.NewStore()
	t.Cleanup(cache.Close)
	res := resolver.NewService(verifier, cache, zap.NewNop())

	ledger := &MockLedger{}
	cat := &MockCatalog{}
	svc := redemptionsvc.NewService(stubDB{}, ledger, cat, cat, res, nopDispatcher{}, time.Second, zap.NewNop())

	h := redemptionhandler.NewHandler(svc, res, 15*time.Minute, 8, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /redemptions", h.Redeem)
	mux.HandleFunc("POST /redemptions/sync-offline", h.SyncOffline)
	mux.HandleFunc("POST /redemptions/validate-offline", h.ValidateOffline)
	mux.HandleFunc("POST /codes", h.IssueCode)
	mux.HandleFunc("GET /redemptions/{id}", h.GetRedemption)

	return &handlerFixture{router: mux, ledger: ledger, issuer: issuer}
}

func authedRequest(method, target, body string, ac *auth.AuthContext) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if ac != nil {
		r = r.WithContext(auth.WithAuthContext(r.Context(), ac))
	}
	return r
}

func provider(id string) *auth.AuthContext {
	return &auth.AuthContext{ProviderID: id, Roles: []string{"provider"}}
}

func TestRedeem_Unauthenticated(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions", `{"code":"SOMECODE123"}`, nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRedeem_MissingCodeIs400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions", `{}`, provider("prov-1")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "code")
}

func TestRedeem_BusinessFailureIs200(t *testing.T) {
	f := newHandlerFixture(t)

	// An unknown short code is a business outcome, not a transport error.
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions",
		`{"code":"NOSUCHCD","customer_id":"cust-1"}`, provider("prov-1")))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool   `json:"success"`
		ErrorCode string `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(domain.OutcomeUnknownCode), resp.ErrorCode)
}

func TestRedeem_MalformedBodyIs400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions", `{nope`, provider("prov-1")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateOffline(t *testing.T) {
	f := newHandlerFixture(t)

	now := time.Now()
	token, err := f.issuer.IssueScanToken(&domain.RedemptionClaim{
		VoucherID:  "vchr-1",
		CustomerID: "cust-1",
		ProviderID: "prov-1",
		IssuedAt:   now,
		ExpiresAt:  now.Add(15 * time.Minute),
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"token": token})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions/validate-offline", string(body), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions/validate-offline",
		`{"token":"SHORTCODE"}`, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false,"error":"not a signed token"}`, rec.Body.String())
}

func TestValidateOffline_MissingToken(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions/validate-offline", `{}`, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueCode_Created(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"kind":"dynamic","voucher_id":"vchr-1","customer_id":"cust-1","ttl_seconds":600}`
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/codes", body, provider("prov-1")))

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp redemptionhandler.IssueCodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Code, 8)
	assert.True(t, resp.ExpiresAt.After(time.Now()))
}

func TestIssueCode_BadKind(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/codes",
		`{"kind":"rotating","voucher_id":"vchr-1"}`, provider("prov-1")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueCode_DynamicWithoutCustomerIs400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/codes",
		`{"kind":"dynamic","voucher_id":"vchr-1"}`, provider("prov-1")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncOffline_EmptyBatchIs400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions/sync-offline",
		`{"redemptions":[]}`, provider("prov-1")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncOffline_PerEntryOutcomes(t *testing.T) {
	f := newHandlerFixture(t)

	body := `{"redemptions":[
		{"code":"GONECODE","redeemed_at":"2026-08-22T10:00:00Z","device_id":"pos-7"},
		{"code":"ALSOGONE","redeemed_at":"2026-08-22T10:05:00Z","device_id":"pos-7"}
	]}`
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/redemptions/sync-offline", body, provider("prov-1")))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp redemptionhandler.SyncOfflineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "GONECODE", resp.Results[0].Code)
	assert.Equal(t, domain.OutcomeUnknownCode, resp.Results[0].ErrorCode)
	assert.Equal(t, "ALSOGONE", resp.Results[1].Code)
}

func TestGetRedemption_CrossProviderNotDisclosed(t *testing.T) {
	f := newHandlerFixture(t)

	f.ledger.On("GetByID", mock.Anything, mock.Anything, "red-1").Return(&domain.Redemption{
		ID:         "red-1",
		VoucherID:  "vchr-1",
		CustomerID: "cust-1",
		ProviderID: "prov-1",
	}, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/redemptions/red-1", "", provider("prov-other")))

	assert.Equal(t, http.StatusNotFound, rec.Code, "other tenants' rows must look nonexistent")
}

func TestGetRedemption_OwnerSeesRow(t *testing.T) {
	f := newHandlerFixture(t)

	f.ledger.On("GetByID", mock.Anything, mock.Anything, "red-1").Return(&domain.Redemption{
		ID:         "red-1",
		ProviderID: "prov-1",
	}, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/redemptions/red-1", "", provider("prov-1")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "red-1")
}
