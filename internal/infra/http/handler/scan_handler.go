package handler

import (
	"net/http"

	appscan "github.com/scanforge/api/internal/app/scan"
	httpx "github.com/scanforge/api/internal/infra/http"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/logger"
)

// ScanHandler serves the scan endpoints.
type ScanHandler struct {
	service *appscan.Service
	logger  *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(service *appscan.Service, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service: service,
		logger:  log.With("handler", "scan"),
	}
}

// Submit handles POST /api/v1/scans. The scan runs in the background; the
// response carries the id to poll.
func (h *ScanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var input appscan.SubmitInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, err)
		return
	}

	out, err := h.service.Submit(r.Context(), input)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, out)
}

// Status handles GET /api/v1/scans/{id}/status.
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(httpx.PathParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	out, err := h.service.Status(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// Results handles GET /api/v1/scans/{id}. Valid only once the scan is
// terminal; running scans yield 409.
func (h *ScanHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(httpx.PathParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}

	out, err := h.service.Results(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// List handles GET /api/v1/scans.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	page := paginationFromQuery(r)

	result, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// filterFromQuery reads the optional list filters.
func filterFromQuery(r *http.Request) scan.Filter {
	var filter scan.Filter
	q := r.URL.Query()

	if raw := q.Get("project_id"); raw != "" {
		if id, err := parseIDParam(raw); err == nil {
			filter.ProjectID = &id
		}
	}
	if raw := q.Get("status"); raw != "" {
		if status := scan.Status(raw); status.IsValid() {
			filter.Status = &status
		}
	}
	if raw := q.Get("tier"); raw != "" {
		if tier := scan.Tier(raw); tier.IsValid() {
			filter.Tier = &tier
		}
	}
	filter.Sort = q.Get("sort")
	return filter
}
