package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"p9e.in/farmops/models"
	"p9e.in/farmops/pkg/policy"
	"p9e.in/farmops/pkg/testutil"
)

const testSecret = "test-secret"

func newResolver(t *testing.T) (*IdentityResolver, *models.User) {
	t.Helper()
	Configure(testSecret, time.Hour)
	db := testutil.OpenTestDB(t)
	farm := testutil.CreateFarm(t, db, "Sunrise")
	user := testutil.CreateUser(t, db, farm, "alice", models.RoleStaff)
	return NewIdentityResolver(db, zap.NewNop()), user
}

func signed(t *testing.T, claims Claims, secret string, method jwt.SigningMethod) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestResolve(t *testing.T) {
	ir, user := newResolver(t)

	valid, err := GenerateToken(user)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expired := signed(t, Claims{
		UserID: user.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}, testSecret, jwt.SigningMethodHS256)
	foreign := signed(t, Claims{UserID: user.ID.String()}, "other-secret", jwt.SigningMethodHS256)
	unknownUser := signed(t, Claims{UserID: "6f1c8a8e-3a55-4d0a-9d1e-0f3f7c1b2a90"}, testSecret, jwt.SigningMethodHS256)
	badID := signed(t, Claims{UserID: "not-a-uuid"}, testSecret, jwt.SigningMethodHS256)
	wrongAlg := signed(t, Claims{UserID: user.ID.String()}, testSecret, jwt.SigningMethodHS512)

	tests := []struct {
		name      string
		token     string
		anonymous bool
	}{
		{"valid token", valid, false},
		{"empty token", "", true},
		{"malformed token", "definitely.not.a-jwt", true},
		{"garbage", "%%%", true},
		{"expired token", expired, true},
		{"wrong secret", foreign, true},
		{"unknown user", unknownUser, true},
		{"invalid user id", badID, true},
		{"unexpected algorithm", wrongAlg, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ir.Resolve(context.Background(), tt.token)
			if p.IsAnonymous() != tt.anonymous {
				t.Fatalf("expected anonymous=%v, got principal %+v", tt.anonymous, p)
			}
			if !tt.anonymous {
				if p.UserID != user.ID || p.Role != models.RoleStaff || !p.HasFarm() {
					t.Errorf("unexpected principal %+v", p)
				}
			}
		})
	}
}

func TestResolve_DeactivatedUser(t *testing.T) {
	ir, user := newResolver(t)
	token, _ := GenerateToken(user)

	if err := ir.db.Model(user).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if p := ir.Resolve(context.Background(), token); !p.IsAnonymous() {
		t.Errorf("expected deactivated user to resolve anonymous, got %+v", p)
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		query    string
		expected string
	}{
		{"bearer header", "Bearer abc", "", "abc"},
		{"lower case scheme", "bearer abc", "", "abc"},
		{"query fallback", "", "xyz", "xyz"},
		{"header wins", "Bearer abc", "xyz", "abc"},
		{"basic auth ignored", "Basic abc", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws?token="+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(r); got != tt.expected {
				t.Errorf("TokenFromRequest = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	ir, user := newResolver(t)
	token, _ := GenerateToken(user)

	var seen models.Principal
	h := ir.JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPrincipal(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.Error != "unauthorized" {
		t.Errorf("unexpected error body %+v (%v)", body, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with token, got %d", rec.Code)
	}
	if seen.UserID != user.ID {
		t.Errorf("expected principal in context, got %+v", seen)
	}
}

func TestRequireAction(t *testing.T) {
	_, user := newResolver(t)
	staff := user.Principal()
	staff.Capabilities = policy.DeriveCapabilities(models.RoleStaff)

	tests := []struct {
		name      string
		principal models.Principal
		action    policy.Action
		expected  int
	}{
		{"anonymous", models.Anonymous, policy.ActionReportRead, http.StatusUnauthorized},
		{"staff may submit", staff, policy.ActionReportSubmit, http.StatusOK},
		{"staff may not edit config", staff, policy.ActionReportConfigUpdate, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAction(tt.action)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), tt.principal))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}
