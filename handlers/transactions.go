package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/reports"
)

// TransactionHandler records a farm's income and expenses.
type TransactionHandler struct {
	db *gorm.DB
}

func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{db: db}
}

// ListTransactions GET /api/v1/transactions?type=&from=&to=
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
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

	query := h.db.WithContext(r.Context()).Where("farm_id = ?", farmID)
	if t := r.URL.Query().Get("type"); t != "" {
		query = query.Where("type = ?", t)
	}
	if !filter.From.IsZero() {
		query = query.Where("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("date <= ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	list := []models.Transaction{}
	if err := query.Order("date DESC, created_at DESC").Find(&list).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateTransaction POST /api/v1/transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	p, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var t models.Transaction
	if err := decodeJSON(r, &t); err != nil {
		respondError(w, r, err)
		return
	}
	t.ID = uuid.Nil
	t.FarmID = farmID
	t.UserID = p.UserID

	if t.RelatedFlockID != nil {
		var count int64
		h.db.WithContext(r.Context()).Model(&models.Flock{}).
			Where("id = ? AND farm_id = ?", *t.RelatedFlockID, farmID).Count(&count)
		if count == 0 {
			respondError(w, r, &reports.ValidationError{Field: "related_flock", Message: "flock not found"})
			return
		}
	}

	if err := h.db.WithContext(r.Context()).Create(&t).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TransactionHandler) find(r *http.Request, farmID uuid.UUID) (*models.Transaction, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	var t models.Transaction
	err = h.db.WithContext(r.Context()).Where("id = ? AND farm_id = ?", id, farmID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("transaction %w", errNotFound)
	}
	return &t, err
}

// GetTransaction GET /api/v1/transactions/{id}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.find(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTransaction DELETE /api/v1/transactions/{id}
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.find(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.db.WithContext(r.Context()).Delete(t).Error; err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
