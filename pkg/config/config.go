package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Session       SessionConfig
	Registration  RegistrationConfig
	CORS          CORSConfig
	Log           LogConfig
	Storage       StorageConfig
	Notifications NotificationsConfig
	Dashboard     DashboardConfig
	Metrics       MetricsConfig
	Security      SecurityConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SessionConfig controls the server-side session store and its cookie.
type SessionConfig struct {
	Secret       string
	CookieName   string
	CookieDomain string
	CookieSecure bool
	TTL          time.Duration
	MaxLifetime  time.Duration
	CacheTTL     time.Duration
}

// RegistrationConfig holds the shared secrets gating elevated self-registration.
type RegistrationConfig struct {
	AdminCode      string
	SupervisorCode string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig controls uploaded resource files and signed download links.
type StorageConfig struct {
	Root             string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// NotificationsConfig tunes the notification outbox dispatcher.
type NotificationsConfig struct {
	Workers          int
	QueueSize        int
	MaxRetries       int
	RecoveryInterval time.Duration
	Channel          string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

type MetricsConfig struct {
	Enabled bool
}

type SecurityConfig struct {
	BcryptCost int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("APP_ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSLMODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Session = SessionConfig{
		Secret:       v.GetString("SESSION_SECRET"),
		CookieName:   v.GetString("SESSION_COOKIE_NAME"),
		CookieDomain: v.GetString("SESSION_COOKIE_DOMAIN"),
		CookieSecure: v.GetBool("SESSION_COOKIE_SECURE"),
		TTL:          parseDuration(v.GetString("SESSION_TTL"), 24*time.Hour),
		MaxLifetime:  parseDuration(v.GetString("SESSION_MAX_LIFETIME"), 7*24*time.Hour),
		CacheTTL:     parseDuration(v.GetString("SESSION_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Registration = RegistrationConfig{
		AdminCode:      v.GetString("ADMIN_REGISTRATION_CODE"),
		SupervisorCode: v.GetString("SUPERVISOR_REGISTRATION_CODE"),
	}

	origins := splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))
	if frontend := strings.TrimSpace(v.GetString("FRONTEND_ORIGIN")); frontend != "" {
		origins = append(origins, frontend)
	}
	cfg.CORS = CORSConfig{AllowedOrigins: origins}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUploadMB := v.GetInt64("STORAGE_MAX_UPLOAD_MB")
	if maxUploadMB <= 0 {
		maxUploadMB = 25
	}
	cfg.Storage = StorageConfig{
		Root:             v.GetString("STORAGE_ROOT"),
		MaxFileSizeBytes: maxUploadMB * 1024 * 1024,
		AllowedMIMEs:     splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME")),
		SignedURLSecret:  v.GetString("SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:          v.GetInt("NOTIFY_WORKERS"),
		QueueSize:        v.GetInt("NOTIFY_QUEUE_SIZE"),
		MaxRetries:       v.GetInt("NOTIFY_MAX_RETRIES"),
		RecoveryInterval: parseDuration(v.GetString("NOTIFY_RECOVERY_INTERVAL"), time.Minute),
		Channel:          v.GetString("NOTIFY_CHANNEL_PREFIX"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("METRICS_ENABLED")}
	cfg.Security = SecurityConfig{BcryptCost: v.GetInt("BCRYPT_COST")}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects development secrets when running in production.
func (c *Config) validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	if c.Session.Secret == "" || c.Session.Secret == defaultSessionSecret {
		return errors.New("SESSION_SECRET must be set in production")
	}
	if c.Storage.SignedURLSecret == "" || c.Storage.SignedURLSecret == defaultSignedURLSecret {
		return errors.New("SIGNED_URL_SECRET must be set in production")
	}
	return nil
}

const (
	defaultSessionSecret   = "dev_session_secret"
	defaultSignedURLSecret = "dev_signed_url_secret"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "docrepo")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_SECRET", defaultSessionSecret)
	v.SetDefault("SESSION_COOKIE_NAME", "docrepo_session")
	v.SetDefault("SESSION_COOKIE_DOMAIN", "")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_MAX_LIFETIME", "168h")
	v.SetDefault("SESSION_CACHE_TTL", "5m")

	v.SetDefault("ADMIN_REGISTRATION_CODE", "")
	v.SetDefault("SUPERVISOR_REGISTRATION_CODE", "")

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("FRONTEND_ORIGIN", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_ROOT", "./uploads")
	v.SetDefault("STORAGE_MAX_UPLOAD_MB", 25)
	v.SetDefault("STORAGE_ALLOWED_MIME", "application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.openxmlformats-officedocument.presentationml.presentation,application/zip,text/plain")
	v.SetDefault("SIGNED_URL_SECRET", defaultSignedURLSecret)
	v.SetDefault("SIGNED_URL_TTL", "30m")

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_MAX_RETRIES", 5)
	v.SetDefault("NOTIFY_RECOVERY_INTERVAL", "1m")
	v.SetDefault("NOTIFY_CHANNEL_PREFIX", "notifications")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("BCRYPT_COST", 12)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
