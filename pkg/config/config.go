package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the quality pipeline
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production, test

	// Logging
	LogLevel  string
	LogFormat string
	Debug     bool // QUALITY_DEBUG forces debug level

	// Serving behaviour
	PersistentMode  bool          // disables idle shutdown
	AutoRebuild     bool          // rebuild the app when build output is invalid
	RunnerBin       string        // external command runner (npm, pnpm, ...)
	IdleTimeout     time.Duration // idle shutdown delay for serve
	RefreshSchedule string        // cron spec for scheduled cache rebuilds

	// Artifacts
	Paths PathsConfig

	// Latency probe
	ProbeURL     string
	ProbeTimeout time.Duration

	// Git identity override (CI)
	GitCommit string
	GitBranch string

	// Redis (dashboard cache mirror)
	Redis RedisConfig

	// Snapshot archive
	Archive ArchiveConfig

	// Cache publication
	Publish PublishConfig
}

// PathsConfig holds artifact locations. Every path is relative to Root
// unless it is already absolute.
type PathsConfig struct {
	Root                string
	Snapshots           string
	Reports             string // test-report-<ts>.md
	HTMLReports         string // report_<ts>.html
	Lighthouse          string
	Coverage            string // coverage-final.json, coverage-summary.json
	Security            string // latest.json + history/
	ScriptTimings       string
	BuildOutput         string
	TestResults         string
	CacheFile           string
	SettingsFile        string
	SecurityFindingsCap int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// ArchiveConfig holds snapshot archive configuration
type ArchiveConfig struct {
	Driver string // none, postgres, sqlite
	URL    string

	// Connection Pool (postgres)
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PublishConfig holds S3 and NATS publication settings
type PublishConfig struct {
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool
	S3Prefix          string

	NATSURL     string
	NATSSubject string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	root := getEnv("QUALITY_ROOT", ".")

	cfg := &Config{
		Port: getEnv("PORT", "3001"),
		Env:  getEnv("ENV", "development"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		Debug:     getEnvAsBool("QUALITY_DEBUG", false),

		PersistentMode:  getEnvAsBool("QUALITY_PERSISTENT", false),
		AutoRebuild:     getEnvAsBool("QUALITY_AUTO_REBUILD", false),
		RunnerBin:       getEnv("QUALITY_RUNNER_BIN", "npm"),
		IdleTimeout:     getEnvAsDuration("QUALITY_IDLE_TIMEOUT", "30m"),
		RefreshSchedule: getEnv("QUALITY_REFRESH_SCHEDULE", "0 */30 * * * *"),

		Paths: PathsConfig{
			Root:                root,
			Snapshots:           getEnv("QUALITY_SNAPSHOTS_DIR", "quality/snapshots"),
			Reports:             getEnv("QUALITY_REPORTS_DIR", "reports"),
			HTMLReports:         getEnv("QUALITY_HTML_REPORTS_DIR", "docs/reports"),
			Lighthouse:          getEnv("QUALITY_LIGHTHOUSE_DIR", "quality/lighthouse"),
			Coverage:            getEnv("QUALITY_COVERAGE_DIR", "coverage"),
			Security:            getEnv("QUALITY_SECURITY_DIR", "quality/security"),
			ScriptTimings:       getEnv("QUALITY_SCRIPT_TIMINGS_FILE", "quality/script-timings.jsonl"),
			BuildOutput:         getEnv("QUALITY_BUILD_DIR", "dist"),
			TestResults:         getEnv("QUALITY_TEST_RESULTS_FILE", "quality/test-results.json"),
			CacheFile:           getEnv("QUALITY_CACHE_FILE", "quality/dashboard-cache.json"),
			SettingsFile:        getEnv("QUALITY_SETTINGS_FILE", "quality/settings.jsonc"),
			SecurityFindingsCap: getEnvAsInt("QUALITY_SECURITY_FINDINGS_CAP", 50),
		},

		ProbeURL:     getEnv("QUALITY_PROBE_URL", ""),
		ProbeTimeout: getEnvAsDuration("QUALITY_PROBE_TIMEOUT", "5s"),

		GitCommit: getEnv("GIT_COMMIT", ""),
		GitBranch: getEnv("GIT_BRANCH", ""),

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			TTL:      getEnvAsDuration("REDIS_CACHE_TTL", "24h"),
		},

		Archive: ArchiveConfig{
			Driver:          strings.ToLower(getEnv("ARCHIVE_DRIVER", "none")),
			URL:             getEnv("ARCHIVE_URL", ""),
			MaxConns:        getEnvAsInt("ARCHIVE_MAX_CONNS", 4),
			MinConns:        getEnvAsInt("ARCHIVE_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("ARCHIVE_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("ARCHIVE_MAX_CONN_IDLE_TIME", "30m"),
		},

		Publish: PublishConfig{
			S3Bucket:          getEnv("PUBLISH_S3_BUCKET", ""),
			S3Region:          getEnv("PUBLISH_S3_REGION", "us-east-1"),
			S3Endpoint:        getEnv("PUBLISH_S3_ENDPOINT", ""),
			S3AccessKeyID:     getEnv("PUBLISH_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("PUBLISH_S3_SECRET_ACCESS_KEY", ""),
			S3UsePathStyle:    getEnvAsBool("PUBLISH_S3_USE_PATH_STYLE", false),
			S3Prefix:          getEnv("PUBLISH_S3_PREFIX", "quality"),
			NATSURL:           getEnv("NATS_URL", ""),
			NATSSubject:       getEnv("NATS_SUBJECT", "quality.cache.rebuilt"),
		},
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are consistent
func (c *Config) validate() error {
	switch c.Env {
	case "development", "staging", "production", "test":
	default:
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.LogFormat != "json" && c.LogFormat != "console" && c.LogFormat != "pretty" {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console, pretty")
	}

	switch c.Archive.Driver {
	case "none", "":
	case "postgres", "sqlite":
		if c.Archive.URL == "" {
			return fmt.Errorf("ARCHIVE_URL is required when ARCHIVE_DRIVER=%s", c.Archive.Driver)
		}
	default:
		return fmt.Errorf("ARCHIVE_DRIVER must be one of: none, postgres, sqlite")
	}

	if c.Paths.SecurityFindingsCap <= 0 {
		return fmt.Errorf("QUALITY_SECURITY_FINDINGS_CAP must be positive")
	}

	return nil
}

// Resolve joins p onto the configured root unless p is absolute.
func (p PathsConfig) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}

// Rel returns path relative to Root, slash-separated, for fs.FS access.
func (p PathsConfig) Rel(path string) string {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
