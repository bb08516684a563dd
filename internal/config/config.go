package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"lifesync/internal/log"
	"lifesync/internal/obfuscate"
)

// Backend names accepted in DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres}

type Config struct {
	// Data backend
	DataBackend        string        `yaml:"data_backend"         env:"DATA_BACKEND"         env-default:"sqlite"`
	SQLiteDBPath       string        `yaml:"sqlite_db_path"       env:"SQLITE_DB_PATH"       env-default:"./data/lifesync.db"`
	SQLitePollInterval time.Duration `yaml:"sqlite_poll_interval" env:"SQLITE_POLL_INTERVAL" env-default:"2s"`

	PostgresDSN             string        `yaml:"postgres_dsn"                env:"POSTGRES_DSN"`
	PostgresMaxConns        int32         `yaml:"postgres_max_conns"          env:"POSTGRES_MAX_CONNS"          env-default:"10"`
	PostgresMinConns        int32         `yaml:"postgres_min_conns"          env:"POSTGRES_MIN_CONNS"          env-default:"1"`
	PostgresMaxConnLifetime time.Duration `yaml:"postgres_max_conn_lifetime"  env:"POSTGRES_MAX_CONN_LIFETIME"  env-default:"1h"`
	PostgresMaxConnIdleTime time.Duration `yaml:"postgres_max_conn_idle_time" env:"POSTGRES_MAX_CONN_IDLE_TIME" env-default:"30m"`

	// AMQP change feed; empty URL disables it
	AMQPURL      string `yaml:"amqp_url"      env:"AMQP_URL"`
	AMQPExchange string `yaml:"amqp_exchange" env:"AMQP_EXCHANGE" env-default:"lifesync"`
	AMQPQueue    string `yaml:"amqp_queue"    env:"AMQP_QUEUE"    env-default:"lifesync_export"`

	// Google Sheets export
	GoogleSpreadsheetID   string `yaml:"google_spreadsheet_id"   env:"GOOGLE_SPREADSHEET_ID"`
	GoogleCredentialsFile string `yaml:"google_credentials_file" env:"GOOGLE_CREDENTIALS_FILE"`
	GoogleCredentialsJSON string `yaml:"google_credentials_json" env:"GOOGLE_CREDENTIALS_JSON"`
	ExportDir             string `yaml:"export_dir"              env:"EXPORT_DIR"              env-default:"./exports"`

	// Investment amount obfuscation
	ObfuscationMode   string `yaml:"obfuscation_mode"   env:"OBFUSCATION_MODE"   env-default:"sealed"`
	ObfuscationSecret string `yaml:"obfuscation_secret" env:"OBFUSCATION_SECRET"`

	// Local accounts
	JWTSecret   string        `yaml:"jwt_secret"   env:"AUTH_JWT_SECRET"`
	SessionTTL  time.Duration `yaml:"session_ttl"  env:"AUTH_SESSION_TTL"  env-default:"720h"`
	SessionFile string        `yaml:"session_file" env:"AUTH_SESSION_FILE" env-default:"./data/session"`
	BcryptCost  int           `yaml:"bcrypt_cost"  env:"AUTH_BCRYPT_COST"  env-default:"10"`

	BlobDir string `yaml:"blob_dir" env:"BLOB_DIR" env-default:"./data/blobs"`

	Timezone    string        `yaml:"timezone"     env:"TIMEZONE"     env-default:"Local"`
	StepTimeout time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT" env-default:"60s"`

	CacheSize int           `yaml:"cache_size" env:"CACHE_SIZE" env-default:"64"`
	CacheTTL  time.Duration `yaml:"cache_ttl"  env:"CACHE_TTL"  env-default:"5m"`

	LogLevel  string `yaml:"log_level"  env:"LOG_LEVEL"  env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"`
}

// Load reads the YAML file named by LIFESYNC_CONFIG when set, then the
// environment. Environment values win over the file.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("LIFESYNC_CONFIG"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	return &cfg, nil
}

// Location resolves Timezone. Validate has already rejected bad names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
		if c.SQLitePollInterval < 0 {
			errors = append(errors, fmt.Sprintf("invalid SQLite poll interval %v: must not be negative", c.SQLitePollInterval))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
		if c.PostgresMaxConns < 1 {
			errors = append(errors, fmt.Sprintf("invalid postgres max conns %d: must be at least 1", c.PostgresMaxConns))
		}
		if c.PostgresMinConns < 0 || c.PostgresMinConns > c.PostgresMaxConns {
			errors = append(errors, fmt.Sprintf("invalid postgres min conns %d: must be between 0 and max conns", c.PostgresMinConns))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		hasFile := c.GoogleCredentialsFile != ""
		if !hasFile && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	switch c.ObfuscationMode {
	case obfuscate.ModeSealed:
		if len(c.ObfuscationSecret) < 16 {
			errors = append(errors, "OBFUSCATION_SECRET must be at least 16 characters in sealed mode")
		}
	case obfuscate.ModePlain:
	default:
		errors = append(errors, fmt.Sprintf("invalid obfuscation mode '%s': must be 'sealed' or 'plain'", c.ObfuscationMode))
	}

	if len(c.JWTSecret) < 32 {
		errors = append(errors, "AUTH_JWT_SECRET must be at least 32 characters")
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errors = append(errors, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.StepTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid step timeout %v: must be at least 1 second", c.StepTimeout))
	} else if c.StepTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid step timeout %v: must be at most 10 minutes", c.StepTimeout))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	if err := log.ValidLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'json' or 'text'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
