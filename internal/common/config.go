package common

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/joseph-ayodele/datalake-etl/constants"
)

// EnvPrefix is the prefix of every environment variable read by LoadConfig.
const EnvPrefix = "DATALAKE"

// Config holds all application configuration
type Config struct {
	Landing  LandingConfig  `envconfig:"LANDING"`
	Cache    CacheConfig    `envconfig:"CACHE"`
	Database DatabaseConfig `envconfig:"DB"`
	Server   ServerConfig   `envconfig:"SERVER"`
	Document DocumentConfig `envconfig:"DOCUMENT"`
	Schema   SchemaConfig   `envconfig:"SCHEMA"`
	Load     QueueConfig    `envconfig:"LOAD"`
	Log      LogConfig      `envconfig:"LOG"`
}

// LandingConfig selects and configures the landing-area backend
type LandingConfig struct {
	Backend       string        `envconfig:"BACKEND" default:"fs" validate:"oneof=fs azure s3"`
	Root          string        `envconfig:"ROOT" default:"data_lake" validate:"required"`
	TableDir      string        `envconfig:"TABLE_DIR" default:"csv" validate:"required"`
	DocumentDir   string        `envconfig:"DOCUMENT_DIR" default:"pdf" validate:"required"`
	TextDir       string        `envconfig:"TEXT_DIR" default:"txt" validate:"required"`
	Watch         bool          `envconfig:"WATCH" default:"false"`
	WatchDebounce time.Duration `envconfig:"WATCH_DEBOUNCE" default:"500ms"`

	AzureConnectionString string `envconfig:"AZURE_CONNECTION_STRING" validate:"required_if=Backend azure"`
	AzureContainer        string `envconfig:"AZURE_CONTAINER" default:"datalake"`

	S3Bucket string `envconfig:"S3_BUCKET" validate:"required_if=Backend s3"`
	S3Region string `envconfig:"S3_REGION"`
}

// Dirs returns the per-category location under the landing root.
func (l LandingConfig) Dirs() map[constants.Category]string {
	return map[constants.Category]string{
		constants.CategoryTable:    l.TableDir,
		constants.CategoryDocument: l.DocumentDir,
		constants.CategoryText:     l.TextDir,
	}
}

// AbsDirs joins Dirs onto Root for the filesystem backend.
func (l LandingConfig) AbsDirs() map[constants.Category]string {
	out := l.Dirs()
	for c, d := range out {
		out[c] = filepath.Join(l.Root, d)
	}
	return out
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	TTL time.Duration `envconfig:"TTL" default:"5m" validate:"gt=0"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `envconfig:"DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`
	DSN              string        `envconfig:"URL"`
	MaxConns         int32         `envconfig:"MAX_CONNS" default:"20" validate:"gte=1"`
	MinConns         int32         `envconfig:"MIN_CONNS" default:"2" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime  time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime  time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"5m"`
	DialTimeout      time.Duration `envconfig:"DIAL_TIMEOUT" default:"3s"`
	StatementTimeout time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"0s"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr        string        `envconfig:"GRPC_ADDR" default:":9090"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"33554432" validate:"gt=0"`
}

// DocumentConfig holds document text extraction configuration
type DocumentConfig struct {
	Pdftotext string        `envconfig:"PDFTOTEXT" default:"pdftotext"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"60s"`
}

// SchemaConfig points at optional descriptor files overriding the built-in schemas
type SchemaConfig struct {
	ReturnsFile   string `envconfig:"RETURNS_FILE"`
	PurchasesFile string `envconfig:"PURCHASES_FILE"`
}

// QueueConfig holds async load queue configuration
type QueueConfig struct {
	Workers   int           `envconfig:"WORKERS" default:"2" validate:"gte=1"`
	QueueSize int           `envconfig:"QUEUE_SIZE" default:"64" validate:"gte=1"`
	Timeout   time.Duration `envconfig:"TIMEOUT" default:"2m"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `envconfig:"FORMAT" default:"text" validate:"oneof=text json"`
}

// LoadConfig loads configuration from DATALAKE_* environment variables
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "failed to load config from env", fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return NewAppError("CONFIG_ERROR", err.Error(), ErrInvalidInput)
	}
	return nil
}

// RequireDatabase reports a config error when no DSN is set for a command that loads data.
func (c *Config) RequireDatabase() error {
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", EnvPrefix+"_DB_URL is required", ErrInvalidInput)
	}
	return nil
}
