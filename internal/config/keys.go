package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "MDNOTES_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MDNOTES_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.database_path", typ: kString, env: "MDNOTES_DATABASE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Storage.DatabasePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DatabasePath },
	},
	{
		key: "backup.dir", typ: kString, env: "MDNOTES_BACKUP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Backup.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.Dir },
	},
	{
		key: "upload.staging_dir", typ: kString, env: "MDNOTES_UPLOAD_STAGING_DIR",
		apply:   func(cfg *Config, v any) { cfg.Upload.StagingDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Upload.StagingDir },
	},
	{
		key: "upload.max_bytes", typ: kInt, env: "MDNOTES_UPLOAD_MAX_BYTES",
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.MaxBytes },
	},
	{
		key: "objectstore.backend", typ: kString, env: "MDNOTES_OBJECTSTORE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.ObjectStore.Backend },
	},
	{
		key: "objectstore.endpoint", typ: kString, env: "MDNOTES_MINIO_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.ObjectStore.Endpoint },
	},
	{
		key: "objectstore.access_key", typ: kString, env: "MDNOTES_MINIO_ACCESS_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.ObjectStore.AccessKey },
	},
	{
		key: "objectstore.secret_key", typ: kString, env: "MDNOTES_MINIO_SECRET_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.ObjectStore.SecretKey },
	},
	{
		key: "objectstore.bucket", typ: kString, env: "MDNOTES_MINIO_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.ObjectStore.Bucket },
	},
	{
		key: "objectstore.secure", typ: kBool, env: "MDNOTES_MINIO_SECURE",
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.Secure = v.(bool) },
		extract: func(cfg Config) any { return cfg.ObjectStore.Secure },
	},
	{
		key: "objectstore.url_expiry", typ: kString, env: "MDNOTES_MINIO_URL_EXPIRY",
		apply:   func(cfg *Config, v any) { cfg.ObjectStore.URLExpiry = v.(string) },
		extract: func(cfg Config) any { return cfg.ObjectStore.URLExpiry },
	},
	{
		key: "grammar.base_url", typ: kString, env: "MDNOTES_GRAMMAR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Grammar.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Grammar.BaseURL },
	},
	{
		key: "grammar.language", typ: kString, env: "MDNOTES_GRAMMAR_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Grammar.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.Grammar.Language },
	},
	{
		key: "grammar.username", typ: kString, env: "MDNOTES_GRAMMAR_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.Grammar.Username = v.(string) },
		extract: func(cfg Config) any { return cfg.Grammar.Username },
	},
	{
		key: "grammar.api_key", typ: kString, env: "MDNOTES_GRAMMAR_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Grammar.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Grammar.APIKey },
	},
	{
		key: "grammar.timeout", typ: kString, env: "MDNOTES_GRAMMAR_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Grammar.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Grammar.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "MDNOTES_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "MDNOTES_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
