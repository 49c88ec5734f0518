package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/iplanding/pkg/ipaddr"
	"github.com/joho/godotenv"
)

type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	Geo         GeoConfig
	Visitor     VisitorConfig
	Maintenance MaintenanceConfig
}

type DatabaseConfig struct {
	URL               string
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port               string
	Env                string
	LogLevel           string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	HTTPRequestsPerMin int
	MetricsEnabled     bool
	AllowedOrigins     []string // origins allowed to post the form cross-site
}

// GeoConfig configures the geolocation provider client and its cache.
type GeoConfig struct {
	APIURL            string
	LookupTimeout     time.Duration
	RequestsPerMinute int // 0 disables client-side throttling
	CacheTTL          time.Duration
	RedisURL          string // empty disables the cache
	LocalRanges       []string
}

// VisitorConfig holds the submission limiter and classifier settings.
type VisitorConfig struct {
	MaxSubmissionsPerWindow int
	SubmissionWindow        time.Duration
	PageViewCooldown        time.Duration
	BotSignatures           []string
}

type MaintenanceConfig struct {
	RetentionDays    int
	Interval         time.Duration
	RefreshBatchSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			URL:               getEnv("DATABASE_URL", ""),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "iplanding"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			Env:                getEnv("ENV", "development"),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:        getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			HTTPRequestsPerMin: getEnvAsInt("HTTP_RATE_LIMIT_PER_MINUTE", 120),
			MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),
			AllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Geo: GeoConfig{
			APIURL:            strings.TrimRight(getEnv("GEO_API_URL", "https://ipapi.co"), "/"),
			LookupTimeout:     getEnvAsDuration("GEO_LOOKUP_TIMEOUT", 10*time.Second),
			RequestsPerMinute: getEnvAsInt("GEO_REQUESTS_PER_MINUTE", 0),
			CacheTTL:          getEnvAsDuration("GEO_CACHE_TTL", 24*time.Hour),
			RedisURL:          getEnv("REDIS_URL", ""),
			LocalRanges:       getEnvAsList("PRIVATE_IP_RANGES", nil),
		},
		Visitor: VisitorConfig{
			MaxSubmissionsPerWindow: getEnvAsInt("MAX_FORM_SUBMISSIONS_PER_IP_PER_HOUR", 10),
			SubmissionWindow:        getEnvAsDuration("SUBMISSION_WINDOW", time.Hour),
			PageViewCooldown:        getEnvAsDuration("VISITOR_LOG_COOLDOWN", 5*time.Minute),
			BotSignatures:           getEnvAsList("BOT_SIGNATURES", nil),
		},
		Maintenance: MaintenanceConfig{
			RetentionDays:    getEnvAsInt("RETENTION_DAYS", 90),
			Interval:         getEnvAsDuration("MAINTENANCE_INTERVAL", time.Hour),
			RefreshBatchSize: getEnvAsInt("REFRESH_BATCH_SIZE", 50),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Visitor.MaxSubmissionsPerWindow <= 0 {
		return fmt.Errorf("MAX_FORM_SUBMISSIONS_PER_IP_PER_HOUR must be positive (got %d)", c.Visitor.MaxSubmissionsPerWindow)
	}
	if c.Visitor.SubmissionWindow <= 0 {
		return fmt.Errorf("SUBMISSION_WINDOW must be positive (got %s)", c.Visitor.SubmissionWindow)
	}
	if c.Visitor.PageViewCooldown < 0 {
		return fmt.Errorf("VISITOR_LOG_COOLDOWN must not be negative")
	}
	if c.Geo.LookupTimeout <= 0 {
		return fmt.Errorf("GEO_LOOKUP_TIMEOUT must be positive (got %s)", c.Geo.LookupTimeout)
	}
	if c.Geo.RequestsPerMinute < 0 {
		return fmt.Errorf("GEO_REQUESTS_PER_MINUTE must not be negative")
	}
	if u, err := url.Parse(c.Geo.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GEO_API_URL must be an absolute URL (got %q)", c.Geo.APIURL)
	}
	if _, err := ipaddr.NewClassifier(c.Geo.LocalRanges); err != nil {
		return fmt.Errorf("PRIVATE_IP_RANGES: %w", err)
	}
	if c.Maintenance.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS must not be negative")
	}
	if c.Server.Env == "production" && c.Database.URL == "" && c.Database.Password == "" {
		return fmt.Errorf("DATABASE_URL or DB_PASSWORD is required in production")
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value string
// built from the DB_* variables.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
