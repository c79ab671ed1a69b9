package redemption

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
	redemptionsvc "github.com/voucherly/redemption-service/internal/services/redemption"
	"github.com/voucherly/redemption-service/internal/services/resolver"
	pkgerrors "github.com/voucherly/redemption-service/pkg/errors"
)

const maxSyncBatchSize = 500

// Handler serves the redemption endpoints.
type Handler struct {
	service  *redemptionsvc.Service
	resolver *resolver.Service
	codeTTL  time.Duration
	codeLen  int
	logger   *zap.Logger
}

// NewHandler creates a new redemption handler
func NewHandler(service *redemptionsvc.Service, res *resolver.Service, codeTTL time.Duration, codeLen int, logger *zap.Logger) *Handler {
	return &Handler{
		service:  service,
		resolver: res,
		codeTTL:  codeTTL,
		codeLen:  codeLen,
		logger:   logger,
	}
}

// RedeemRequest is the POST /redemptions body.
type RedeemRequest struct {
	Code       string           `json:"code"`
	CustomerID string           `json:"customer_id,omitempty"`
	Location   *domain.GeoPoint `json:"location,omitempty"`
}

// Redeem handles POST /redemptions. Business failures return HTTP 200 with
// success:false; only structural and auth errors use HTTP status codes.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var verrs pkgerrors.ValidationErrors
	if req.Code == "" {
		verrs = verrs.Add("code", "required")
	}
	if verrs.HasErrors() {
		h.respondError(w, http.StatusBadRequest, verrs.Error())
		return
	}

	result, err := h.service.Redeem(r.Context(), redemptionsvc.RedeemRequest{
		Presented:        req.Code,
		CustomerID:       req.CustomerID,
		ActingProviderID: ac.ProviderID,
		Location:         req.Location,
	})
	if err != nil {
		h.logger.Error("redemption failed internally", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// SyncOfflineRequest is the POST /redemptions/sync-offline body.
type SyncOfflineRequest struct {
	Redemptions []offlineEntryDTO `json:"redemptions"`
}

type offlineEntryDTO struct {
	Code       string           `json:"code"`
	CustomerID string           `json:"customer_id,omitempty"`
	RedeemedAt time.Time        `json:"redeemed_at"`
	Location   *domain.GeoPoint `json:"location,omitempty"`
	DeviceID   string           `json:"device_id"`
}

// SyncOfflineResponse enumerates per-entry outcomes.
type SyncOfflineResponse struct {
	Results []domain.SyncEntryResult `json:"results"`
}

// SyncOffline handles POST /redemptions/sync-offline.
func (h *Handler) SyncOffline(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SyncOfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Redemptions) == 0 {
		h.respondError(w, http.StatusBadRequest, "redemptions must not be empty")
		return
	}
	if len(req.Redemptions) > maxSyncBatchSize {
		h.respondError(w, http.StatusBadRequest, "batch exceeds maximum size")
		return
	}

	entries := make([]domain.OfflineEntry, len(req.Redemptions))
	for i, e := range req.Redemptions {
		entries[i] = domain.OfflineEntry{
			Code:       e.Code,
			CustomerID: e.CustomerID,
			RedeemedAt: e.RedeemedAt,
			Location:   e.Location,
			DeviceID:   e.DeviceID,
		}
	}

	results := h.service.SyncOffline(r.Context(), ac.ProviderID, entries)
	h.respondJSON(w, http.StatusOK, SyncOfflineResponse{Results: results})
}

// ValidateOfflineRequest is the POST /redemptions/validate-offline body.
type ValidateOfflineRequest struct {
	Token string `json:"token"`
}

// ValidateOfflineResponse reports signature/expiry validity only; it makes
// no promise about the eventual redemption outcome.
type ValidateOfflineResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateOffline handles POST /redemptions/validate-offline. No auth: it
// serves disconnected clients pre-validating before attempting redemption.
func (h *Handler) ValidateOffline(w http.ResponseWriter, r *http.Request) {
	var req ValidateOfflineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		h.respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	valid, reason := h.service.ValidateOffline(req.Token)
	h.respondJSON(w, http.StatusOK, ValidateOfflineResponse{Valid: valid, Error: reason})
}

// IssueCodeRequest is the POST /codes body.
type IssueCodeRequest struct {
	Kind       string `json:"kind"` // dynamic or static
	VoucherID  string `json:"voucher_id"`
	CustomerID string `json:"customer_id,omitempty"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// IssueCodeResponse carries the minted code.
type IssueCodeResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueCode handles POST /codes. Provider-scoped: the code binds to the
// caller's provider id.
func (h *Handler) IssueCode(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req IssueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	kind := domain.CodeKind(req.Kind)
	if kind != domain.CodeKindDynamic && kind != domain.CodeKindStatic {
		h.respondError(w, http.StatusBadRequest, "kind must be dynamic or static")
		return
	}

	ttl := h.codeTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	code, err := h.resolver.IssueCode(r.Context(), resolver.IssueParams{
		Kind:       kind,
		VoucherID:  req.VoucherID,
		CustomerID: req.CustomerID,
		ProviderID: ac.ProviderID,
		TTL:        ttl,
		Length:     h.codeLen,
	})
	if err != nil {
		if domain.IsValidationError(err) {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("code issuance failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.respondJSON(w, http.StatusCreated, IssueCodeResponse{
		Code:      code,
		ExpiresAt: time.Now().Add(ttl),
	})
}

// GetRedemption handles GET /redemptions/{id}. Providers see only their own
// rows; admins see all.
func (h *Handler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	red, err := h.service.GetRedemption(r.Context(), id)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeRedemptionNotFound) {
			h.respondError(w, http.StatusNotFound, "redemption not found")
			return
		}
		h.logger.Error("redemption lookup failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ac.IsAdmin() && red.ProviderID != ac.ProviderID {
		// Do not disclose that the row exists.
		h.respondError(w, http.StatusNotFound, "redemption not found")
		return
	}

	h.respondJSON(w, http.StatusOK, red)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
