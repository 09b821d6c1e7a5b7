package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Redis struct {
		URL                   string
		UserEventsStream      string
		AssessmentEventsStream string
		ProctoringEventsStream string
		NotificationEventsStream string
		ConsumerGroup         string
		ConsumerName          string
		PollInterval          time.Duration
		PollBlock             time.Duration
		PollCount             int
	}
	DB struct {
		DSN string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		FromEmail  string
		FromName   string
	}
	API struct {
		Port     string
		BasePath string
	}
	Auth struct {
		JWTSecret string
	}
	Notification struct {
		QueueSize         int
		MaxWorkers        int
		MaxRetryAttempts  int
		RetryDelay        time.Duration
		TemplateCacheSize int
		TemplateCacheTTL  time.Duration
	}
	Hub struct {
		HeartbeatInterval  time.Duration
		MaxConnsPerUser    int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Redis stream settings
	cfg.Redis.URL = os.Getenv("REDIS_URL")
	cfg.Redis.UserEventsStream = getenvDefault("REDIS_STREAM_USER_EVENTS", "user-events")
	cfg.Redis.AssessmentEventsStream = getenvDefault("REDIS_STREAM_ASSESSMENT_EVENTS", "assessment-events")
	cfg.Redis.ProctoringEventsStream = getenvDefault("REDIS_STREAM_PROCTORING_EVENTS", "proctoring-events")
	cfg.Redis.NotificationEventsStream = getenvDefault("REDIS_STREAM_NOTIFICATION_EVENTS", "notification-events")
	cfg.Redis.ConsumerGroup = getenvDefault("REDIS_CONSUMER_GROUP", "notification-service")
	cfg.Redis.ConsumerName = os.Getenv("REDIS_CONSUMER_NAME")
	if cfg.Redis.ConsumerName == "" {
		host, _ := os.Hostname()
		cfg.Redis.ConsumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	cfg.Redis.PollInterval = getenvDuration("REDIS_POLL_INTERVAL", time.Second)
	cfg.Redis.PollBlock = getenvDuration("REDIS_POLL_BLOCK", time.Second)
	cfg.Redis.PollCount = getenvInt("REDIS_POLL_COUNT", 10)

	// Database DSN
	cfg.DB.DSN = os.Getenv("DB_DSN")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = getenvInt("EMAIL_SMTP_PORT", 587)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromEmail = getenvDefault("EMAIL_FROM", cfg.Email.Username)
	cfg.Email.FromName = getenvDefault("EMAIL_FROM_NAME", "Notification Service")

	// API settings
	cfg.API.Port = getenvDefault("API_PORT", ":8080")
	cfg.API.BasePath = getenvDefault("API_BASE_PATH", "/api/v1")

	// Auth settings
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")

	// Notification worker settings
	cfg.Notification.QueueSize = getenvInt("QUEUE_SIZE", 500)
	cfg.Notification.MaxWorkers = getenvInt("MAX_WORKERS", 10)
	cfg.Notification.MaxRetryAttempts = getenvInt("MAX_RETRY_ATTEMPTS", 3)
	cfg.Notification.RetryDelay = getenvDuration("RETRY_DELAY", time.Minute)
	cfg.Notification.TemplateCacheSize = getenvInt("TEMPLATE_CACHE_SIZE", 128)
	cfg.Notification.TemplateCacheTTL = getenvDuration("TEMPLATE_CACHE_TTL", 5*time.Minute)

	// Hub settings
	cfg.Hub.HeartbeatInterval = getenvDuration("HUB_HEARTBEAT_INTERVAL", 30*time.Second)
	cfg.Hub.MaxConnsPerUser = getenvInt("HUB_MAX_CONNS_PER_USER", 10)

	// Logging settings
	cfg.Logging.Dir = getenvDefault("LOG_DIR", "logs")
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", "info")

	// Validate required settings
	missing := []string{}
	if cfg.Redis.URL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
