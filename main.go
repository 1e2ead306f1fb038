package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/pkg/logger"
	"p9e.in/farmops/pkg/notify"
	"p9e.in/farmops/pkg/realtime"
	"p9e.in/farmops/pkg/scheduler"
	"p9e.in/farmops/routes"
)

var (
	Version   = "dev"
	BuildTime = ""
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version info and exit")
	mode := flag.String("mode", "all", "Process role: api, scheduler or all")
	seed := flag.Bool("seed", false, "Create the demo farm before starting")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("Version:   %s\n", Version)
		fmt.Printf("BuildTime: %s\n", BuildTime)
		os.Exit(0)
	}

	switch *mode {
	case "api", "scheduler", "all":
	default:
		log.Fatalf("unknown -mode %q, expected api, scheduler or all", *mode)
	}

	settings := config.Load()
	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if err := logger.InitLogger(&logger.LogConfig{
		Level:       settings.LogLevel,
		Environment: settings.Environment,
		ServiceName: "farmops",
	}); err != nil {
		log.Fatalf("could not initialise logger: %v", err)
	}
	defer logger.Sync()
	l := logger.GetLogger()

	if err := run(settings, *mode, *seed, l); err != nil {
		l.Fatal("❌ shutting down", zap.Error(err))
	}
}

func run(settings config.Settings, mode string, seed bool, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.Connect(settings)
	if err != nil {
		return err
	}
	if seed {
		if err := config.RunAllSeeding(db, settings.SeedPassword); err != nil {
			return err
		}
	}

	broker, err := newBroker(ctx, settings, mode, l)
	if err != nil {
		return err
	}
	defer broker.Close()

	middleware.Configure(settings.JWTSecret, settings.JWTTTL)
	directory := realtime.NewConnectionDirectory(broker, settings.MQTTTopicPrefix, l)
	notifications := notify.NewNotificationService(db, directory, l)

	if mode == "scheduler" || mode == "all" {
		loc, err := settings.Location()
		if err != nil {
			return err
		}
		deadlines := scheduler.NewDeadlineScheduler(db, notifications, l, scheduler.Options{
			Location: loc,
			Dedup:    settings.ReportReminderDedup,
		})
		runner, err := scheduler.NewRunner(settings.SchedulerSpec, deadlines, l)
		if err != nil {
			return err
		}
		runner.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			runner.Stop(stopCtx)
		}()
	}

	if mode == "scheduler" {
		l.Info("📅 scheduler running", zap.String("spec", settings.SchedulerSpec))
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		ReadHeaderTimeout: 10 * time.Second,
	}
	handler := routes.RegisterRoutes(routes.Deps{
		DB:            db,
		Resolver:      middleware.NewIdentityResolver(db, l),
		Directory:     directory,
		Notifications: notifications,
		Log:           l,
		OnShutdown:    srv.RegisterOnShutdown,
	})
	srv.Handler = enableCORS(handler)

	errCh := make(chan error, 1)
	go func() {
		l.Info("🚀 server starting", zap.String("port", settings.Port), zap.String("mode", mode), zap.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Info("🛑 shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newBroker connects to MQTT when a broker URL is configured. Without one,
// fan-out stays in process, which only works when API and scheduler share
// a process.
func newBroker(ctx context.Context, settings config.Settings, mode string, l *zap.Logger) (realtime.Broker, error) {
	if settings.MQTTBrokerURL == "" {
		if mode != "all" {
			l.Warn("MQTT_BROKER_URL is not set; notifications will not cross processes", zap.String("mode", mode))
		}
		return realtime.NewLocalBroker(), nil
	}
	return realtime.NewMQTTBroker(ctx, realtime.MQTTConfig{
		BrokerURL: settings.MQTTBrokerURL,
		ClientID:  settings.MQTTClientID,
	}, l)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Required CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		// Handle preflight (OPTIONS)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
