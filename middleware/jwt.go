package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/logger"
)

var (
	keyMu    sync.RWMutex
	jwtKey   []byte
	tokenTTL = 24 * time.Hour
)

// Configure sets the signing secret and token lifetime. It must be called
// before tokens are issued or parsed.
func Configure(secret string, ttl time.Duration) {
	keyMu.Lock()
	defer keyMu.Unlock()
	jwtKey = []byte(secret)
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func signingKey() ([]byte, time.Duration) {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return jwtKey, tokenTTL
}

// Claims are the custom payload in our JWT
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	FarmID string `json:"farm,omitempty"`
	jwt.RegisteredClaims
}

// unexported type prevents collisions in context
type ctxKey int

const (
	principalKey ctxKey = iota
)

var errNoSecret = errors.New("jwt secret is not configured")

// GenerateToken creates a signed JWT for user
func GenerateToken(user *models.User) (string, error) {
	key, ttl := signingKey()
	if len(key) == 0 {
		return "", errNoSecret
	}

	now := time.Now()
	claims := Claims{
		UserID: user.ID.String(),
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if user.FarmID != nil {
		claims.FarmID = user.FarmID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ParseToken validates signature and expiry and returns the claims.
func ParseToken(tokenStr string) (*Claims, error) {
	key, _ := signingKey()
	if len(key) == 0 {
		return nil, errNoSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// TokenFromRequest reads the bearer token from the Authorization header,
// falling back to the "token" query parameter used by browser websockets.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// IdentityResolver maps a credential to the principal it identifies.
type IdentityResolver struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewIdentityResolver(db *gorm.DB, log *zap.Logger) *IdentityResolver {
	return &IdentityResolver{db: db, log: log.Named("identity")}
}

// Resolve never fails: a missing, malformed, expired or foreign token, or
// one naming an unknown or deactivated user, yields models.Anonymous. The
// user row is re-read so role and farm changes apply immediately.
func (ir *IdentityResolver) Resolve(ctx context.Context, token string) models.Principal {
	if token == "" {
		return models.Anonymous
	}

	claims, err := ParseToken(token)
	if err != nil {
		ir.log.Debug("rejected token", zap.Error(err))
		return models.Anonymous
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		ir.log.Debug("token carries invalid user id", zap.String("user_id", claims.UserID))
		return models.Anonymous
	}

	var user models.User
	err = ir.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", userID, true).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			ir.log.Warn("identity lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
		return models.Anonymous
	}
	return user.Principal()
}

// ResolveRequest resolves the credential carried by r.
func (ir *IdentityResolver) ResolveRequest(r *http.Request) models.Principal {
	return ir.Resolve(r.Context(), TokenFromRequest(r))
}

// JWTMiddleware rejects anonymous requests and stores the principal in ctx
func (ir *IdentityResolver) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := ir.ResolveRequest(r)
		if p.IsAnonymous() {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing, invalid or expired token")
			return
		}

		ctx := WithPrincipal(r.Context(), p)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(zap.String("user_id", p.UserID.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal stored in ctx, or models.Anonymous.
func PrincipalFrom(ctx context.Context) models.Principal {
	if p, ok := ctx.Value(principalKey).(models.Principal); ok {
		return p
	}
	return models.Anonymous
}

// GetPrincipal pulls the principal out of the request context
func GetPrincipal(r *http.Request) models.Principal {
	return PrincipalFrom(r.Context())
}

func describe(p models.Principal) string {
	if p.IsAnonymous() {
		return "anonymous"
	}
	return fmt.Sprintf("%s(%s)", p.Username, p.Role)
}
