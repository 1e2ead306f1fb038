package middleware

import (
	"net/http"

	"go.uber.org/zap"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/policy"
)

// RequireAction lets the request through only when the principal in the
// context is authorized for action.
func RequireAction(action policy.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r)
			if p.IsAnonymous() {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if !policy.Authorize(p, action) {
				logger.FromContext(r.Context()).Info("🚫 action denied",
					zap.String("principal", describe(p)),
					zap.String("action", action))
				writeError(w, http.StatusForbidden, "forbidden", "insufficient permissions for "+action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard wraps a single handler func with RequireAction.
func Guard(action policy.Action, h http.HandlerFunc) http.Handler {
	return RequireAction(action)(h)
}
