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

// FlockHandler manages a farm's flocks and their logs.
type FlockHandler struct {
	db *gorm.DB
}

func NewFlockHandler(db *gorm.DB) *FlockHandler {
	return &FlockHandler{db: db}
}

type flockReq struct {
	Name            string      `json:"name" validate:"required,max=100"`
	Breed           string      `json:"breed" validate:"max=100"`
	InitialQuantity int         `json:"initial_quantity" validate:"gte=0"`
	CurrentQuantity *int        `json:"current_quantity" validate:"omitempty,gte=0"`
	DateAdded       models.Date `json:"date_added"`
}

// findFlock loads a flock of the farm or returns errNotFound.
func (h *FlockHandler) findFlock(r *http.Request, farmID uuid.UUID) (*models.Flock, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	var flock models.Flock
	err = h.db.WithContext(r.Context()).Where("id = ? AND farm_id = ?", id, farmID).First(&flock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("flock %w", errNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &flock, nil
}

// ListFlocks GET /api/v1/flocks
func (h *FlockHandler) ListFlocks(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	flocks := []models.Flock{}
	if err := h.db.WithContext(r.Context()).Where("farm_id = ?", farmID).Order("date_added DESC, name").Find(&flocks).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flocks)
}

// CreateFlock POST /api/v1/flocks
func (h *FlockHandler) CreateFlock(w http.ResponseWriter, r *http.Request) {
	p, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req flockReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	flock := models.Flock{
		FarmID:          farmID,
		UserID:          p.UserID,
		Name:            req.Name,
		Breed:           req.Breed,
		InitialQuantity: req.InitialQuantity,
		CurrentQuantity: req.InitialQuantity,
		DateAdded:       req.DateAdded,
	}
	if req.CurrentQuantity != nil {
		flock.CurrentQuantity = *req.CurrentQuantity
	}
	if err := h.db.WithContext(r.Context()).Create(&flock).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, flock)
}

// GetFlock GET /api/v1/flocks/{id}
func (h *FlockHandler) GetFlock(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	flock, err := h.findFlock(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flock)
}

// UpdateFlock PUT /api/v1/flocks/{id}
func (h *FlockHandler) UpdateFlock(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	flock, err := h.findFlock(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req flockReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	updates := map[string]interface{}{
		"name":             req.Name,
		"breed":            req.Breed,
		"initial_quantity": req.InitialQuantity,
	}
	if req.CurrentQuantity != nil {
		updates["current_quantity"] = *req.CurrentQuantity
	}
	if !req.DateAdded.IsZero() {
		updates["date_added"] = req.DateAdded
	}
	if err := h.db.WithContext(r.Context()).Model(flock).Updates(updates).Error; err != nil {
		respondError(w, r, err)
		return
	}
	h.db.WithContext(r.Context()).First(flock, "id = ?", flock.ID)
	writeJSON(w, http.StatusOK, flock)
}

// DeleteFlock DELETE /api/v1/flocks/{id}
func (h *FlockHandler) DeleteFlock(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	flock, err := h.findFlock(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&models.FeedLog{}, &models.HealthLog{}, &models.EggCollection{}} {
			if err := tx.Where("flock_id = ?", flock.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Transaction{}).Where("related_flock_id = ?", flock.ID).
			Update("related_flock_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(flock).Error
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFeedLogs GET /api/v1/flocks/{id}/feed
func (h *FlockHandler) ListFeedLogs(w http.ResponseWriter, r *http.Request) {
	logs := []models.FeedLog{}
	h.listLogs(w, r, &logs)
}

// ListHealthLogs GET /api/v1/flocks/{id}/health
func (h *FlockHandler) ListHealthLogs(w http.ResponseWriter, r *http.Request) {
	logs := []models.HealthLog{}
	h.listLogs(w, r, &logs)
}

// ListEggCollections GET /api/v1/flocks/{id}/eggs
func (h *FlockHandler) ListEggCollections(w http.ResponseWriter, r *http.Request) {
	logs := []models.EggCollection{}
	h.listLogs(w, r, &logs)
}

func (h *FlockHandler) listLogs(w http.ResponseWriter, r *http.Request, dest interface{}) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	flock, err := h.findFlock(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.db.WithContext(r.Context()).Where("flock_id = ?", flock.ID).Order("date DESC").Find(dest).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dest)
}

// AddFeedLog POST /api/v1/flocks/{id}/feed
func (h *FlockHandler) AddFeedLog(w http.ResponseWriter, r *http.Request) {
	var entry models.FeedLog
	h.addLog(w, r, &entry, func(tx *gorm.DB, flock *models.Flock) error {
		entry.ID, entry.FlockID = uuid.Nil, flock.ID
		return tx.Create(&entry).Error
	})
}

// AddEggCollection POST /api/v1/flocks/{id}/eggs
func (h *FlockHandler) AddEggCollection(w http.ResponseWriter, r *http.Request) {
	var entry models.EggCollection
	h.addLog(w, r, &entry, func(tx *gorm.DB, flock *models.Flock) error {
		if entry.Damaged > entry.QuantityCollected {
			return &reports.ValidationError{Field: "damaged", Message: "cannot exceed quantity collected"}
		}
		entry.ID, entry.FlockID = uuid.Nil, flock.ID
		return tx.Create(&entry).Error
	})
}

// AddHealthLog POST /api/v1/flocks/{id}/health
// A mortality entry removes the affected birds from the flock.
func (h *FlockHandler) AddHealthLog(w http.ResponseWriter, r *http.Request) {
	var entry models.HealthLog
	h.addLog(w, r, &entry, func(tx *gorm.DB, flock *models.Flock) error {
		entry.ID, entry.FlockID = uuid.Nil, flock.ID
		if entry.LogType == models.HealthLogMortality {
			// The guard lives in the UPDATE so concurrent entries cannot
			// take the flock below zero.
			res := tx.Model(&models.Flock{}).
				Where("id = ? AND current_quantity >= ?", flock.ID, entry.AffectedBirds).
				Update("current_quantity", gorm.Expr("current_quantity - ?", entry.AffectedBirds))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return &reports.ValidationError{Field: "affected_birds", Message: "exceeds the flock's current quantity"}
			}
		}
		return tx.Create(&entry).Error
	})
}

// addLog decodes a log entry for the flock in the path and stores it
// through create inside a transaction.
func (h *FlockHandler) addLog(w http.ResponseWriter, r *http.Request, entry interface{}, create func(tx *gorm.DB, flock *models.Flock) error) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	flock, err := h.findFlock(r, farmID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := decodeJSON(r, entry); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		return create(tx, flock)
	}); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
