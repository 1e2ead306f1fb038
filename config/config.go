package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Settings is the process configuration read from the environment.
type Settings struct {
	Port string

	DBDriver string
	DBDSN    string

	JWTSecret string
	JWTTTL    time.Duration

	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string

	SchedulerSpec       string
	ReportTimezone      string
	ReportReminderDedup bool

	LogLevel     string
	Environment  string
	SeedPassword string
}

// Load reads .env (when present) and the environment.
func Load() Settings {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	return Settings{
		Port:                getEnv("PORT", "8080"),
		DBDriver:            getEnv("DB_DRIVER", "postgres"),
		DBDSN:               os.Getenv("DB_DSN"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              getDuration("JWT_TTL", 24*time.Hour),
		MQTTBrokerURL:       os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:        getEnv("MQTT_CLIENT_ID", defaultClientID()),
		MQTTTopicPrefix:     getEnv("MQTT_TOPIC_PREFIX", "farmops"),
		SchedulerSpec:       getEnv("SCHEDULER_SPEC", "@every 1m"),
		ReportTimezone:      os.Getenv("REPORT_TIMEZONE"),
		ReportReminderDedup: getBool("REPORT_REMINDER_DEDUP", false),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Environment:         getEnv("APP_ENV", "development"),
		SeedPassword:        getEnv("SEED_PASSWORD", "farmops123"),
	}
}

// Validate reports settings the process cannot start without.
func (s Settings) Validate() error {
	if s.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch s.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", s.DBDriver)
	}
	if s.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	return nil
}

// Location is the zone deadlines are evaluated in.
func (s Settings) Location() (*time.Location, error) {
	if s.ReportTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(s.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	return loc, nil
}

// Connect opens the database, runs migrations and sets DB.
func Connect(s Settings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch s.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(s.DBDSN)
	default:
		dialector = postgres.Open(s.DBDSN)
	}

	logLevel := gormlogger.Warn
	if s.LogLevel == "debug" {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	DB = db
	return db, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️  invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("farmops-%s-%d", host, os.Getpid())
}
