package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"p9e.in/farmops/handlers"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/metrics"
	"p9e.in/farmops/pkg/notify"
	"p9e.in/farmops/pkg/realtime"
	"p9e.in/farmops/pkg/reports"
)

// Deps are the shared services the routes are built from.
type Deps struct {
	DB            *gorm.DB
	Resolver      *middleware.IdentityResolver
	Directory     *realtime.ConnectionDirectory
	Notifications *notify.NotificationService
	Log           *zap.Logger

	// OnShutdown, when set, registers a function to run as the server
	// begins shutting down (http.Server.RegisterOnShutdown).
	OnShutdown func(func())
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(logger.Middleware)
	r.Use(metrics.Middleware)

	// =====================================================
	// Public Routes (no authentication)
	// =====================================================
	auth := handlers.NewAuthHandler(d.DB)
	r.HandleFunc("/login", auth.Login).Methods("POST")
	r.HandleFunc("/healthz", healthz(d.DB)).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// The websocket authenticates from ?token= itself and accepts
	// anonymous connections.
	rt := handlers.NewRealtimeHandler(d.Resolver, d.Directory, d.Log)
	if d.OnShutdown != nil {
		d.OnShutdown(rt.Shutdown)
	}
	r.HandleFunc("/ws", rt.ServeWS).Methods("GET")

	// =====================================================
	// Protected API Routes (require JWT authentication)
	// =====================================================
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(d.Resolver.JWTMiddleware)

	api.HandleFunc("/me", auth.Me).Methods("GET")

	RegisterReportRoutes(api, d)
	RegisterNotificationRoutes(api, d, rt)
	RegisterFarmRoutes(api, d)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not_found","detail":"no such route"}`))
	})
	return r
}

func healthz(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// guard is shorthand for an action-guarded handler.
func guard(action string, h http.HandlerFunc) http.Handler {
	return middleware.Guard(action, h)
}

func newReportServices(db *gorm.DB) (*reports.ConfigService, *reports.SubmissionService) {
	return reports.NewConfigService(db), reports.NewSubmissionService(db)
}
