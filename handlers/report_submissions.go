package handlers

import (
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/reports"
)

// ReportHandler accepts and lists daily report submissions.
type ReportHandler struct {
	db  *gorm.DB
	svc *reports.SubmissionService
}

func NewReportHandler(db *gorm.DB, svc *reports.SubmissionService) *ReportHandler {
	return &ReportHandler{db: db, svc: svc}
}

// Submit POST /api/v1/reports/submissions
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)
	var in reports.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	report, err := h.svc.Submit(r.Context(), p, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func listFilter(r *http.Request) (reports.ListFilter, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return reports.ListFilter{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return reports.ListFilter{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Time().Before(from.Time()) {
		return reports.ListFilter{}, &reports.ValidationError{Field: "to", Message: "must not be before from"}
	}
	return reports.ListFilter{
		From:   from,
		To:     to,
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}, nil
}

// List GET /api/v1/reports/submissions?from=&to=
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	list, err := h.svc.List(r.Context(), farmID, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": list,
		"count":   len(list),
	})
}

// Get GET /api/v1/reports/submissions/{id}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	report, err := h.svc.Get(r.Context(), farmID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Export GET /api/v1/reports/submissions/export?from=&to=
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	filter, err := listFilter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	filter.Limit, filter.Offset = 0, 0

	var farm models.Farm
	if err := h.db.WithContext(r.Context()).First(&farm, "id = ?", farmID).Error; err != nil {
		respondError(w, r, err)
		return
	}

	buf, err := h.svc.Export(r.Context(), farmID, farm.Name, filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("daily_reports_%s_%s.xlsx", farm.Code, time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
