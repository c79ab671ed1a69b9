package fraud

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/voucherly/redemption-service/internal/auth"
	"github.com/voucherly/redemption-service/internal/domain"
	fraudsvc "github.com/voucherly/redemption-service/internal/services/fraud"
)

// Handler serves the fraud case review endpoints.
type Handler struct {
	service *fraudsvc.Service
	logger  *zap.Logger
}

// NewHandler creates a new fraud handler
func NewHandler(service *fraudsvc.Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// ListCasesResponse is the GET /fraud/cases payload.
type ListCasesResponse struct {
	Cases []*domain.FraudCase `json:"cases"`
}

// ListCases handles GET /fraud/cases. Providers are scoped to their own
// cases; admins may pass provider_id to scope explicitly.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	status := domain.FraudCaseStatus(q.Get("status"))
	if status != "" && status != domain.FraudCaseStatusPending && !domain.IsTerminalStatus(status) {
		h.respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	limit := parseInt32(q.Get("limit"), 50)
	offset := parseInt32(q.Get("offset"), 0)

	cases, err := h.service.ListCases(r.Context(), *ac, q.Get("provider_id"), status, limit, offset)
	if err != nil {
		h.logger.Error("list fraud cases failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cases == nil {
		cases = []*domain.FraudCase{}
	}

	h.respondJSON(w, http.StatusOK, ListCasesResponse{Cases: cases})
}

// GetCase handles GET /fraud/cases/{id}. Cross-provider access returns a
// business-rule failure, not a hard auth error.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	fc, outcome, err := h.service.GetCase(r.Context(), *ac, r.PathValue("id"))
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeFraudCaseNotFound) {
			h.respondError(w, http.StatusNotFound, "fraud case not found")
			return
		}
		h.logger.Error("fraud case lookup failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if outcome != "" {
		h.respondOutcome(w, outcome)
		return
	}

	h.respondJSON(w, http.StatusOK, caseResponse{Success: true, Case: fc})
}

// ReviewRequest is the PUT /fraud/cases/{id}/review body.
type ReviewRequest struct {
	Status  string              `json:"status"` // APPROVED or REJECTED
	Notes   string              `json:"notes,omitempty"`
	Actions []domain.CaseAction `json:"actions,omitempty"`
}

type caseResponse struct {
	Success   bool               `json:"success"`
	Case      *domain.FraudCase  `json:"case,omitempty"`
	ErrorCode domain.OutcomeCode `json:"error_code,omitempty"`
}

// ReviewCase handles PUT /fraud/cases/{id}/review. The transition applies
// at most once; a second review yields ALREADY_REVIEWED as a business
// outcome, never a silent overwrite.
func (h *Handler) ReviewCase(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fc, outcome, err := h.service.Review(r.Context(), *ac, fraudsvc.ReviewRequest{
		CaseID:  r.PathValue("id"),
		Status:  domain.FraudCaseStatus(req.Status),
		Notes:   req.Notes,
		Actions: req.Actions,
	})
	if err != nil {
		switch {
		case domain.IsValidationError(err):
			h.respondError(w, http.StatusBadRequest, err.Error())
		case domain.IsDomainError(err, domain.ErrorCodeFraudCaseNotFound):
			h.respondError(w, http.StatusNotFound, "fraud case not found")
		default:
			h.logger.Error("fraud case review failed", zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if outcome != "" {
		h.respondOutcome(w, outcome)
		return
	}

	h.respondJSON(w, http.StatusOK, caseResponse{Success: true, Case: fc})
}

// Statistics handles GET /fraud/statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	stats, err := h.service.Statistics(r.Context(), *ac)
	if err != nil {
		h.logger.Error("fraud statistics failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// respondOutcome writes a business-rule failure: HTTP 200 with
// success:false, distinguishable from transport failures by retrying
// clients.
func (h *Handler) respondOutcome(w http.ResponseWriter, outcome domain.OutcomeCode) {
	h.respondJSON(w, http.StatusOK, caseResponse{Success: false, ErrorCode: outcome})
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

func parseInt32(s string, def int32) int32 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return def
	}
	return int32(v)
}
