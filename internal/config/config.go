// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	Worker     WorkerConfig
	Scanner    ScannerConfig
	Enrichment EnrichmentConfig
	Cleanup    CleanupConfig
	RateLimit  RateLimitConfig
	S3         S3Config
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodySize     int64
}

// DatabaseConfig holds database configuration.
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
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// WorkerConfig holds background worker configuration.
type WorkerConfig struct {
	Concurrency int
}

// ScannerConfig holds the static-analyzer invocation and timeout model.
type ScannerConfig struct {
	// Binary is the analyzer executable resolved via PATH or absolute path.
	Binary string

	// Rule bundle selection per tier. Tiers select whole bundles, never
	// partial ones, so scan cost stays predictable.
	FastRuleBundles []string
	DeepRuleBundles []string

	// Timeout model: clamp(Base + fileCount*PerFile*tierMultiplier, Min, Max).
	TimeoutBase    time.Duration
	TimeoutPerFile time.Duration
	TimeoutMin     time.Duration
	TimeoutMax     time.Duration

	// PipelineTimeout bounds the whole scan run, acquisition and
	// persistence included. Must exceed TimeoutMax.
	PipelineTimeout time.Duration

	// KillGracePeriod is how long the runner waits between the graceful
	// termination signal and the forceful kill.
	KillGracePeriod time.Duration

	// RuleTimeout is the analyzer's own per-rule-per-file timeout.
	RuleTimeout time.Duration

	// Resource ceilings passed to the analyzer process.
	MaxMemoryMB    int
	MaxTargetBytes int64

	// MaxTargetSizeBytes bounds the extracted archive / cloned repo size.
	MaxTargetSizeBytes int64

	// TempRoot is the directory under which per-scan work trees live.
	TempRoot string

	// SeverityRulesPath optionally points at a YAML file of rule-id
	// prefix to severity overrides applied during normalization.
	SeverityRulesPath string

	// ExcludeGlobs are directory patterns never scanned.
	ExcludeGlobs []string
}

// EnrichmentConfig holds the LLM enrichment settings.
type EnrichmentConfig struct {
	Provider        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Model           string
	Timeout         time.Duration
	MaxRetries      int
	MaxFindings     int
}

// IsConfigured reports whether any provider credentials are present.
func (c *EnrichmentConfig) IsConfigured() bool {
	return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != ""
}

// CleanupConfig holds the orphan temp-dir sweep settings.
type CleanupConfig struct {
	SweepSchedule string
	MaxTempAge    time.Duration

	// Progress record retention after terminal stages.
	ProgressCompletedTTL time.Duration
	ProgressFailedTTL    time.Duration
}

// RateLimitConfig holds submit-endpoint rate limiting.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// S3Config holds settings for fetching staged uploads from S3.
type S3Config struct {
	Region   string
	Endpoint string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "scanforge"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 1<<20),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "scanforge"),
			Password:        getEnv("DB_PASSWORD", "secret"),
			Name:            getEnv("DB_NAME", "scanforge"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		},
		Scanner: ScannerConfig{
			Binary:             getEnv("SCANNER_BINARY", "semgrep"),
			FastRuleBundles:    getEnvSlice("SCANNER_FAST_BUNDLES", []string{"p/security-audit"}),
			DeepRuleBundles:    getEnvSlice("SCANNER_DEEP_BUNDLES", []string{"p/security-audit", "p/owasp-top-ten", "p/secrets"}),
			TimeoutBase:        getEnvDuration("SCANNER_TIMEOUT_BASE", 60*time.Second),
			TimeoutPerFile:     getEnvDuration("SCANNER_TIMEOUT_PER_FILE", 250*time.Millisecond),
			TimeoutMin:         getEnvDuration("SCANNER_TIMEOUT_MIN", 90*time.Second),
			TimeoutMax:         getEnvDuration("SCANNER_TIMEOUT_MAX", 20*time.Minute),
			PipelineTimeout:    getEnvDuration("SCANNER_PIPELINE_TIMEOUT", 30*time.Minute),
			KillGracePeriod:    getEnvDuration("SCANNER_KILL_GRACE", 5*time.Second),
			RuleTimeout:        getEnvDuration("SCANNER_RULE_TIMEOUT", 30*time.Second),
			MaxMemoryMB:        getEnvInt("SCANNER_MAX_MEMORY_MB", 4096),
			MaxTargetBytes:     getEnvInt64("SCANNER_MAX_TARGET_BYTES", 1<<20),
			MaxTargetSizeBytes: getEnvInt64("SCANNER_MAX_TARGET_SIZE", 500<<20),
			TempRoot:           getEnv("SCANNER_TEMP_ROOT", os.TempDir()),
			SeverityRulesPath:  getEnv("SCANNER_SEVERITY_RULES", ""),
			ExcludeGlobs:       getEnvSlice("SCANNER_EXCLUDE_GLOBS", []string{"node_modules", "vendor", ".git", "dist", "build", "target"}),
		},
		Enrichment: EnrichmentConfig{
			Provider:        getEnv("ENRICHMENT_PROVIDER", "claude"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			Model:           getEnv("ENRICHMENT_MODEL", ""),
			Timeout:         getEnvDuration("ENRICHMENT_TIMEOUT", 30*time.Second),
			MaxRetries:      getEnvInt("ENRICHMENT_MAX_RETRIES", 2),
			MaxFindings:     getEnvInt("ENRICHMENT_MAX_FINDINGS", 10),
		},
		Cleanup: CleanupConfig{
			SweepSchedule:        getEnv("CLEANUP_SWEEP_SCHEDULE", "*/30 * * * *"),
			MaxTempAge:           getEnvDuration("CLEANUP_MAX_TEMP_AGE", 2*time.Hour),
			ProgressCompletedTTL: getEnvDuration("CLEANUP_PROGRESS_COMPLETED_TTL", time.Hour),
			ProgressFailedTTL:    getEnvDuration("CLEANUP_PROGRESS_FAILED_TTL", 10*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATELIMIT_ENABLED", true),
			RPS:     getEnvFloat("RATELIMIT_RPS", 5),
			Burst:   getEnvInt("RATELIMIT_BURST", 10),
		},
		S3: S3Config{
			Region:   getEnv("S3_REGION", "us-east-1"),
			Endpoint: getEnv("S3_ENDPOINT", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Scanner.TimeoutMin > c.Scanner.TimeoutMax {
		return fmt.Errorf("invalid scanner timeout bounds: min %s > max %s", c.Scanner.TimeoutMin, c.Scanner.TimeoutMax)
	}
	if c.Scanner.PipelineTimeout <= c.Scanner.TimeoutMax {
		return fmt.Errorf("pipeline timeout %s must exceed scanner max timeout %s", c.Scanner.PipelineTimeout, c.Scanner.TimeoutMax)
	}
	if len(c.Scanner.FastRuleBundles) == 0 || len(c.Scanner.DeepRuleBundles) == 0 {
		return fmt.Errorf("scanner rule bundles must not be empty")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, p := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
