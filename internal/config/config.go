package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreBolt     = "bolt"
)

// Ranking missing-field policies
const (
	RankingMissingReject = "reject"
	RankingMissingZero   = "zero"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Security SecurityConfig
	Alert    AlertConfig
	Ranking  RankingConfig
	Log      LogConfig
}

type DatabaseConfig struct {
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

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// Retention keeps expired codes readable for diagnostics before Redis drops them
	Retention time.Duration
}

type StoreConfig struct {
	Backend         string
	BoltPath        string
	StaticCodesFile string
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	QuizBaseURL    string
	// PublicRequestsPerMinute is the coarse per-IP ceiling on public endpoints
	PublicRequestsPerMinute int
}

type SecurityConfig struct {
	AdminKey                string
	AdminKeyHash            string
	AdminFailureDelayMs     int
	AdminFailureRandomMs    int
	MaxConsecutiveFailures  int
	BlockDuration           time.Duration
	MinAttemptInterval      time.Duration
	ClientRetention         time.Duration
	SweepInterval           time.Duration
	CountMalformedAsFailure bool
	AttackAlertThreshold    int
	AttackAlertCooldown     time.Duration
	AttackTickInterval      time.Duration
}

type AlertConfig struct {
	EmailTo      []string
	EmailFrom    string
	AWSRegion    string
	ShoutrrrURLs []string
}

type RankingConfig struct {
	MissingPolicy string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:                    getEnv("PORT", "8080"),
			Env:                     env,
			AllowedOrigins:          parseAllowedOrigins(env),
			TrustedProxies:          getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:             getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:            getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:             getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			QuizBaseURL:             strings.TrimRight(getEnv("QUIZ_BASE_URL", "http://localhost:3000"), "/"),
			PublicRequestsPerMinute: getEnvAsInt("PUBLIC_REQUESTS_PER_MINUTE", 120),
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
			BoltPath:        getEnv("BOLT_PATH", "quizgate.db"),
			StaticCodesFile: getEnv("STATIC_CODES_FILE", ""),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "quizgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "quizgate"),
			Retention: getEnvAsDuration("REDIS_EXPIRED_RETENTION", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			AdminKey:                getEnv("ADMIN_KEY", ""),
			AdminKeyHash:            getEnv("ADMIN_KEY_HASH", ""),
			AdminFailureDelayMs:     getEnvAsInt("ADMIN_FAILURE_DELAY_MS", 100),
			AdminFailureRandomMs:    getEnvAsInt("ADMIN_FAILURE_RANDOM_MS", 50),
			MaxConsecutiveFailures:  getEnvAsInt("MAX_CONSECUTIVE_FAILURES", 5),
			BlockDuration:           getEnvAsDuration("BLOCK_DURATION", 15*time.Minute),
			MinAttemptInterval:      getEnvAsDuration("MIN_ATTEMPT_INTERVAL", 1*time.Second),
			ClientRetention:         getEnvAsDuration("CLIENT_RETENTION", 24*time.Hour),
			SweepInterval:           getEnvAsDuration("SWEEP_INTERVAL", 30*time.Minute),
			CountMalformedAsFailure: getEnvAsBool("COUNT_MALFORMED_AS_FAILURE", true),
			AttackAlertThreshold:    getEnvAsInt("ATTACK_ALERT_THRESHOLD", 50),
			AttackAlertCooldown:     getEnvAsDuration("ATTACK_ALERT_COOLDOWN", 1*time.Hour),
			AttackTickInterval:      getEnvAsDuration("ATTACK_TICK_INTERVAL", 1*time.Hour),
		},
		Alert: AlertConfig{
			EmailTo:      getEnvAsList("ALERT_EMAIL_TO"),
			EmailFrom:    getEnv("ALERT_EMAIL_FROM", ""),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			ShoutrrrURLs: getEnvAsList("ALERT_SHOUTRRR_URLS"),
		},
		Ranking: RankingConfig{
			MissingPolicy: strings.ToLower(getEnv("RANKING_MISSING_POLICY", RankingMissingReject)),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Security.AdminKeyHash == "" {
		if c.Security.AdminKey == "" {
			return fmt.Errorf("ADMIN_KEY or ADMIN_KEY_HASH is required")
		}
		if err := validateAdminKey(c.Security.AdminKey, c.Server.Env); err != nil {
			return err
		}
	}

	switch c.Store.Backend {
	case StoreMemory, StoreRedis, StoreBolt:
	case StorePostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, postgres, redis, bolt (got %q)", c.Store.Backend)
	}

	switch c.Ranking.MissingPolicy {
	case RankingMissingReject, RankingMissingZero:
	default:
		return fmt.Errorf("RANKING_MISSING_POLICY must be reject or zero (got %q)", c.Ranking.MissingPolicy)
	}

	if c.Security.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_FAILURES must be positive")
	}
	if c.Security.SweepInterval <= 0 || c.Security.AttackTickInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and ATTACK_TICK_INTERVAL must be positive")
	}

	if len(c.Alert.EmailTo) > 0 && c.Alert.EmailFrom == "" {
		return fmt.Errorf("ALERT_EMAIL_FROM is required when ALERT_EMAIL_TO is set")
	}

	return nil
}

// validateAdminKey enforces minimum strength for the shared management secret
func validateAdminKey(key, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(key) < minLength {
		return fmt.Errorf("ADMIN_KEY must be at least %d characters in %s environment (got %d)",
			minLength, env, len(key))
	}

	weakKeys := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	keyLower := strings.ToLower(key)
	for _, weak := range weakKeys {
		if strings.Repeat(weak, len(keyLower)/len(weak)+1)[:len(keyLower)] == keyLower {
			return fmt.Errorf("ADMIN_KEY cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
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
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if origins := getEnvAsList("ALLOWED_ORIGINS"); len(origins) > 0 {
		return origins
	}
	if env == "production" {
		return []string{}
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
