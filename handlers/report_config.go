package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/reports"
)

// ReportConfigHandler exposes the farm's report setup and questionnaire.
type ReportConfigHandler struct {
	svc *reports.ConfigService
}

func NewReportConfigHandler(svc *reports.ConfigService) *ReportConfigHandler {
	return &ReportConfigHandler{svc: svc}
}

// GetConfig GET /api/v1/reports/config
func (h *ReportConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	cfg, err := h.svc.Get(r.Context(), farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig PUT /api/v1/reports/config
func (h *ReportConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	p, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in reports.ConfigInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	cfg, err := h.svc.Upsert(r.Context(), farmID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("⚙️ report config updated",
		zap.String("farm", farmID.String()),
		zap.String("by", p.Username),
		zap.Bool("enabled", cfg.IsEnabled))
	writeJSON(w, http.StatusOK, cfg)
}

// ListQuestions GET /api/v1/reports/questions
func (h *ReportConfigHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	questions, err := h.svc.ListQuestions(r.Context(), farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// CreateQuestion POST /api/v1/reports/questions
func (h *ReportConfigHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var in reports.QuestionInput
	if err := decodeJSON(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	q, err := h.svc.CreateQuestion(r.Context(), farmID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

type replaceQuestionsReq struct {
	Questions []reports.QuestionInput `json:"questions" validate:"dive"`
}

// ReplaceQuestions PUT /api/v1/reports/questions
func (h *ReportConfigHandler) ReplaceQuestions(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req replaceQuestionsReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	questions, err := h.svc.ReplaceQuestions(r.Context(), farmID, req.Questions)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// UpdateQuestion PATCH /api/v1/reports/questions/{id}
func (h *ReportConfigHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
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
	var patch reports.QuestionPatch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, r, err)
		return
	}
	q, err := h.svc.UpdateQuestion(r.Context(), farmID, id, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// DeleteQuestion DELETE /api/v1/reports/questions/{id}
func (h *ReportConfigHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.DeleteQuestion(r.Context(), farmID, id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DefaultQuestions GET /api/v1/reports/questions/defaults
func (h *ReportConfigHandler) DefaultQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.DefaultQuestions())
}
