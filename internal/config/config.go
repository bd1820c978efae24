package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Backup      BackupConfig
	Upload      UploadConfig
	ObjectStore ObjectStoreConfig
	Grammar     GrammarConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir      string
	DatabasePath string
}

type BackupConfig struct {
	Dir string
}

type UploadConfig struct {
	StagingDir string
	MaxBytes   int
}

type ObjectStoreConfig struct {
	Backend   string // "minio" or "memory"
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	URLExpiry string // 0 returns plain public URLs
}

type GrammarConfig struct {
	BaseURL  string
	Language string
	Username string
	APIKey   string
	Timeout  string
}

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

const (
	BackendMinIO  = "minio"
	BackendMemory = "memory"

	defaultMaxUploadBytes = 10 << 20 // 10MB
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Upload: UploadConfig{
			MaxBytes: defaultMaxUploadBytes,
		},
		ObjectStore: ObjectStoreConfig{
			Backend:   BackendMinIO,
			Endpoint:  "localhost:9000",
			Bucket:    "notes",
			Secure:    true,
			URLExpiry: "0s",
		},
		Grammar: GrammarConfig{
			BaseURL:  "https://api.languagetoolplus.com/v2",
			Language: "en-US",
			Timeout:  "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the JSON config file, environment
// variables, and the local secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/mdnotes/config.json unless
// MDNOTES_CONFIG points elsewhere. Environment variables (MDNOTES_*)
// override file values. Secrets are never read from the config file.
func Load() (Config, error) {
	return loadWith(newDefaultBackend(), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts the secrets fallback for testing.
type secretStore interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolvePaths fills paths derived from the data directory.
func (c *Config) resolvePaths() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(c.Storage.DataDir, "mdnotes.db")
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(c.Storage.DataDir, "backups")
	}
	if c.Upload.StagingDir == "" {
		c.Upload.StagingDir = os.TempDir()
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	return validation.Errors{
		"server.port":            validation.Validate(c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		"storage.data_dir":       validation.Validate(c.Storage.DataDir, validation.Required),
		"upload.max_bytes":       validation.Validate(c.Upload.MaxBytes, validation.Required, validation.Min(1)),
		"objectstore.backend":    validation.Validate(c.ObjectStore.Backend, validation.Required, validation.In(BackendMinIO, BackendMemory)),
		"objectstore.endpoint":   validation.Validate(c.ObjectStore.Endpoint, validation.When(c.ObjectStore.Backend == BackendMinIO, validation.Required)),
		"objectstore.bucket":     validation.Validate(c.ObjectStore.Bucket, validation.Required),
		"objectstore.url_expiry": validation.Validate(c.ObjectStore.URLExpiry, validation.By(isDuration)),
		"grammar.base_url":       validation.Validate(c.Grammar.BaseURL, validation.Required),
		"grammar.language":       validation.Validate(c.Grammar.Language, validation.Required),
		"grammar.timeout":        validation.Validate(c.Grammar.Timeout, validation.By(isDuration)),
		"log.format":             validation.Validate(c.Log.Format, validation.In("text", "json")),
	}.Filter()
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("must be a duration such as 30s")
	}
	return nil
}

// GrammarTimeout returns the grammar service timeout, falling back to 30s.
func (c Config) GrammarTimeout() time.Duration {
	return parseDurationOr(c.Grammar.Timeout, 30*time.Second)
}

// URLExpiry returns how long presigned object URLs stay valid. Zero means
// objects are addressed by their public URL.
func (c Config) URLExpiry() time.Duration {
	return parseDurationOr(c.ObjectStore.URLExpiry, 0)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
