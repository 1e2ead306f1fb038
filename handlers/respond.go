package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/notify"
	"p9e.in/farmops/pkg/reports"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var (
	errNotFound = errors.New("not found")
	errNoFarm   = errors.New("user has not joined a farm")
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

// respondError maps service errors to status codes and error codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *reports.ValidationError
	var vErrs validator.ValidationErrors

	switch {
	case errors.Is(err, reports.ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, "duplicate_submission", err.Error())
	case errors.Is(err, reports.ErrUnknownQuestion):
		writeError(w, http.StatusBadRequest, "unknown_question", err.Error())
	case errors.Is(err, reports.ErrMissingRequiredAnswer):
		writeError(w, http.StatusBadRequest, "missing_required_answer", err.Error())
	case errors.Is(err, errNoFarm):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.As(err, &vErrs):
		writeError(w, http.StatusBadRequest, "validation_error", describeValidation(vErrs))
	case errors.Is(err, reports.ErrReportNotFound),
		errors.Is(err, reports.ErrQuestionNotFound),
		errors.Is(err, notify.ErrNotificationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		logger.FromContext(r.Context()).Error("❌ request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func describeValidation(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// decodeJSON decodes the request body into v and runs struct validation.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &reports.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return validate.Struct(v)
}

// farmOf returns the calling principal and its farm id.
func farmOf(r *http.Request) (models.Principal, uuid.UUID, error) {
	p := middleware.GetPrincipal(r)
	if !p.HasFarm() {
		return p, uuid.Nil, errNoFarm
	}
	return p, *p.FarmID, nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, &reports.ValidationError{Field: name, Message: "invalid id"}
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func queryDate(r *http.Request, name string) (models.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return models.Date{}, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return models.Date{}, &reports.ValidationError{Field: name, Message: err.Error()}
	}
	return d, nil
}
