package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/heartmarshall/treecleaner/internal/domain"
)

type scanService interface {
	Scan(ctx context.Context, incremental bool) (domain.ScanResult, error)
	Summary(ctx context.Context) (domain.Summary, error)
}

// ScanHandler serves scan and summary endpoints.
type ScanHandler struct {
	svc scanService
	log *slog.Logger
}

// NewScanHandler creates a ScanHandler.
func NewScanHandler(svc scanService, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{svc: svc, log: logger.With("handler", "scan")}
}

type scanRequest struct {
	Incremental bool `json:"incremental"`
}

// Scan handles POST /api/dq/scan. Incremental mode is selected by the body
// or by ?incremental=true.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		handleError(h.log, w, r, err)
		return
	}
	if v := r.URL.Query().Get("incremental"); v != "" {
		inc, err := strconv.ParseBool(v)
		if err != nil {
			handleError(h.log, w, r, domain.NewValidationError("incremental", "must be a boolean"))
			return
		}
		req.Incremental = req.Incremental || inc
	}

	result, err := h.svc.Scan(r.Context(), req.Incremental)
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(result))
}

// Summary handles GET /api/dq/summary.
func (h *ScanHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context())
	if err != nil {
		handleError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}
