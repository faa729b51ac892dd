package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	ModeLive = "live"
	ModeMock = "mock"

	EngineHTTP    = "http"
	EngineBrowser = "browser"

	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver string
	DBDSN    string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	CacheTTLMinutes int

	ScraperMode  string
	FetchEngine  string
	WithImages   bool
	BaseURL      string
	SearchPages  int
	BrandCode    string
	PageDelayMs  int
	MaxRetries   int
	RetryDelayMs int
	ReqTimeout   time.Duration
	ChromeBin    string

	Schedule   string
	RunOnStart bool
	StartDelay time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	HTTPPort string

	CSVOutputPath string

	ArchiveDir         string
	ArchiveS3Bucket    string
	ArchiveS3Region    string
	ArchiveS3Endpoint  string
	ArchiveS3PathStyle bool

	Debug bool
}

// ConfigurationError reports a setting that prevents the service from starting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		DBDriver: strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DBDSN:    getEnv("DB_DSN", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "carsensor"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "carsensor"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		CacheTTLMinutes: getEnvInt("CACHE_TTL_MINUTES", 60),

		ScraperMode:  strings.ToLower(getEnv("SCRAPER_MODE", ModeLive)),
		FetchEngine:  strings.ToLower(getEnv("FETCH_ENGINE", EngineHTTP)),
		WithImages:   getEnvBool("SCRAPER_WITH_IMAGES", true),
		BaseURL:      strings.TrimRight(getEnv("SCRAPER_BASE_URL", "https://www.carsensor.net"), "/"),
		SearchPages:  getEnvInt("SCRAPER_PAGES", 3),
		BrandCode:    strings.ToUpper(getEnv("SCRAPER_BRAND_CODE", "")),
		PageDelayMs:  getEnvInt("PAGE_DELAY_MS", 2000),
		MaxRetries:   getEnvInt("MAX_RETRIES", 3),
		RetryDelayMs: getEnvInt("RETRY_DELAY_MS", 2000),
		ReqTimeout:   getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ChromeBin:    getEnv("CHROME_BIN", ""),

		Schedule:   getEnv("SCRAPER_SCHEDULE", "0 */6 * * *"),
		RunOnStart: getEnvBool("RUN_SCRAPER_ON_START", false),
		StartDelay: getEnvDuration("SCRAPER_START_DELAY", 5*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		LockTTL:       getEnvDuration("LOCK_TTL", 30*time.Minute),

		HTTPPort: getEnv("HTTP_PORT", "5001"),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),

		ArchiveDir:         getEnv("ARCHIVE_DIR", ""),
		ArchiveS3Bucket:    getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Region:    getEnv("ARCHIVE_S3_REGION", ""),
		ArchiveS3Endpoint:  getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveS3PathStyle: getEnvBool("ARCHIVE_S3_PATH_STYLE", false),

		Debug: getEnvBool("LOG_DEBUG", false),
	}
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	if c.CacheTTLMinutes <= 0 {
		return &ConfigurationError{Key: "CACHE_TTL_MINUTES", Reason: "must be a positive number of minutes"}
	}
	if c.ScraperMode != ModeLive && c.ScraperMode != ModeMock {
		return &ConfigurationError{Key: "SCRAPER_MODE", Reason: fmt.Sprintf("unknown mode %q", c.ScraperMode)}
	}
	if c.FetchEngine != EngineHTTP && c.FetchEngine != EngineBrowser {
		return &ConfigurationError{Key: "FETCH_ENGINE", Reason: fmt.Sprintf("unknown engine %q", c.FetchEngine)}
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return &ConfigurationError{Key: "SCRAPER_SCHEDULE", Reason: err.Error()}
	}
	if c.SearchPages < 1 {
		return &ConfigurationError{Key: "SCRAPER_PAGES", Reason: "at least one page is required"}
	}
	if c.MaxRetries < 0 {
		return &ConfigurationError{Key: "MAX_RETRIES", Reason: "must not be negative"}
	}

	switch c.DBDriver {
	case DriverPostgres, DriverPgx:
		if c.DBDSN == "" && (c.PostgresUser == "" || c.PostgresPassword == "") {
			return &ConfigurationError{Key: "POSTGRES_PASSWORD", Reason: "postgres credentials are required when DB_DSN is unset"}
		}
	case DriverSQLite:
	default:
		return &ConfigurationError{Key: "DB_DRIVER", Reason: fmt.Sprintf("unsupported driver %q", c.DBDriver)}
	}

	if c.ArchiveS3Bucket != "" && c.ArchiveS3Region == "" {
		return &ConfigurationError{Key: "ARCHIVE_S3_REGION", Reason: "required when ARCHIVE_S3_BUCKET is set"}
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver == DriverSQLite {
		return "file:carsensor.db?_time_format=sqlite"
	}
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// CacheTTL is how long a refreshed dataset counts as fresh.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// PageDelay is the courtesy gap between consecutive page requests.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// RetryDelay is the fixed wait between fetch attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
