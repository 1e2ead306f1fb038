package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/logger"
)

// AuthHandler issues tokens and describes the current principal.
type AuthHandler struct {
	db *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{db: db}
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResp struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login checks the credentials and returns a signed token
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var u models.User
	err := h.db.WithContext(r.Context()).Preload("Farm").
		Where("username = ? AND is_active = ?", req.Username, true).
		First(&u).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(w, r, err)
			return
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, err := middleware.GenerateToken(&u)
	if err != nil {
		logger.FromContext(r.Context()).Error("❌ couldn't create token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "couldn't create token")
		return
	}
	logger.FromContext(r.Context()).Info("🔑 user logged in", zap.String("username", u.Username))
	writeJSON(w, http.StatusOK, loginResp{Token: token, User: &u})
}

// Me returns the authenticated user
// GET /api/v1/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r)

	var u models.User
	if err := h.db.WithContext(r.Context()).Preload("Farm").First(&u, "id = ?", p.UserID).Error; err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      u,
		"principal": p,
	})
}
