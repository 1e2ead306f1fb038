package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/policy"
	"p9e.in/farmops/pkg/reports"
)

// UserHandler lists farm members and changes their roles.
type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// ListMembers GET /api/v1/users
func (h *UserHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	_, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	users := []models.User{}
	if err := h.db.WithContext(r.Context()).Where("farm_id = ?", farmID).Order("username").Find(&users).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type roleReq struct {
	Role models.Role `json:"role" validate:"required"`
}

// UpdateRole PATCH /api/v1/users/{id}/role
// Capabilities are recomputed from the new role in the same write.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	p, farmID, err := farmOf(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req roleReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if !req.Role.Valid() {
		respondError(w, r, &reports.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", req.Role)})
		return
	}
	if id == p.UserID {
		respondError(w, r, &reports.ValidationError{Field: "id", Message: "cannot change your own role"})
		return
	}

	var user models.User
	err = h.db.WithContext(r.Context()).Where("id = ? AND farm_id = ?", id, farmID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(w, r, fmt.Errorf("user %w", errNotFound))
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	caps := policy.DeriveCapabilities(req.Role)
	err = h.db.WithContext(r.Context()).Model(&user).Updates(map[string]interface{}{
		"role":                req.Role,
		"can_manage_flocks":   caps.CanManageFlocks,
		"can_manage_finances": caps.CanManageFinances,
		"can_manage_users":    caps.CanManageUsers,
		"can_add_logs":        caps.CanAddLogs,
	}).Error
	if err != nil {
		respondError(w, r, err)
		return
	}
	user.Role = req.Role
	user.Capabilities = caps

	logger.FromContext(r.Context()).Info("👤 role changed",
		zap.String("user", user.Username),
		zap.String("role", string(req.Role)),
		zap.String("by", p.Username))
	writeJSON(w, http.StatusOK, user)
}
