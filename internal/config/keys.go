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
	account string // secrets file entry for secret keys
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "MAMETTE_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "MAMETTE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "MAMETTE_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "server.api_token", typ: kString, env: "MAMETTE_API_TOKEN",
		secret: true, account: "api_token",
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "log.level", typ: kString, env: "MAMETTE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "MAMETTE_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "log.file", typ: kString, env: "MAMETTE_LOG_FILE",
		apply:   func(cfg *Config, v any) { cfg.Log.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.File },
	},
	{
		key: "storage.driver", typ: kString, env: "MAMETTE_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MAMETTE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.database_url", typ: kString, env: "MAMETTE_DATABASE_URL",
		secret: true, account: "database_url",
		apply:   func(cfg *Config, v any) { cfg.Storage.DatabaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DatabaseURL },
	},
	{
		key: "storage.default_user_id", typ: kString, env: "MAMETTE_DEFAULT_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.Storage.DefaultUserID = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DefaultUserID },
	},
	{
		key: "bucket.endpoint", typ: kString, env: "MAMETTE_BUCKET_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Bucket.Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Bucket.Endpoint },
	},
	{
		key: "bucket.name", typ: kString, env: "MAMETTE_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Bucket.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Bucket.Name },
	},
	{
		key: "bucket.region", typ: kString, env: "MAMETTE_BUCKET_REGION",
		apply:   func(cfg *Config, v any) { cfg.Bucket.Region = v.(string) },
		extract: func(cfg Config) any { return cfg.Bucket.Region },
	},
	{
		key: "bucket.use_ssl", typ: kBool, env: "MAMETTE_BUCKET_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.Bucket.UseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.Bucket.UseSSL },
	},
	{
		key: "bucket.public_base_url", typ: kString, env: "MAMETTE_BUCKET_PUBLIC_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Bucket.PublicBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Bucket.PublicBaseURL },
	},
	{
		key: "bucket.access_key", typ: kString, env: "MAMETTE_BUCKET_ACCESS_KEY",
		secret: true, account: "bucket_access_key",
		apply:   func(cfg *Config, v any) { cfg.Bucket.AccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Bucket.AccessKey },
	},
	{
		key: "bucket.secret_key", typ: kString, env: "MAMETTE_BUCKET_SECRET_KEY",
		secret: true, account: "bucket_secret_key",
		apply:   func(cfg *Config, v any) { cfg.Bucket.SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Bucket.SecretKey },
	},
	{
		key: "openai.api_key", typ: kString, env: "OPENAI_API_KEY",
		secret: true, account: "openai_api_key",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "MAMETTE_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "MAMETTE_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "openai.size", typ: kString, env: "MAMETTE_OPENAI_SIZE",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Size = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Size },
	},
	{
		key: "openai.quality", typ: kString, env: "MAMETTE_OPENAI_QUALITY",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Quality = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Quality },
	},
	{
		key: "openai.style", typ: kString, env: "MAMETTE_OPENAI_STYLE",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Style = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Style },
	},
	{
		key: "replicate.api_token", typ: kString, env: "REPLICATE_API_TOKEN",
		secret: true, account: "replicate_api_token",
		apply:   func(cfg *Config, v any) { cfg.Replicate.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Replicate.APIToken },
	},
	{
		key: "replicate.base_url", typ: kString, env: "REPLICATE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Replicate.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Replicate.BaseURL },
	},
	{
		key: "replicate.model", typ: kString, env: "REPLICATE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Replicate.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Replicate.Model },
	},
	{
		key: "replicate.version", typ: kString, env: "REPLICATE_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Replicate.Version = v.(string) },
		extract: func(cfg Config) any { return cfg.Replicate.Version },
	},
	{
		key: "replicate.mockup_model", typ: kString, env: "REPLICATE_MOCKUP_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Replicate.MockupModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Replicate.MockupModel },
	},
	{
		key: "replicate.mockup_version", typ: kString, env: "REPLICATE_MOCKUP_VERSION",
		apply:   func(cfg *Config, v any) { cfg.Replicate.MockupVersion = v.(string) },
		extract: func(cfg Config) any { return cfg.Replicate.MockupVersion },
	},
	{
		key: "generation.provider", typ: kString, env: "MAMETTE_GENERATION_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generation.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Provider },
	},
	{
		key: "generation.variations", typ: kInt, env: "MAMETTE_GENERATION_VARIATIONS",
		apply:   func(cfg *Config, v any) { cfg.Generation.Variations = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.Variations },
	},
	{
		key: "generation.max_attempts", typ: kInt, env: "MAMETTE_GENERATION_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Generation.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.MaxAttempts },
	},
	{
		key: "generation.concurrency", typ: kInt, env: "MAMETTE_GENERATION_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Generation.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.Concurrency },
	},
	{
		key: "generation.ocr_enabled", typ: kBool, env: "MAMETTE_OCR_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Generation.OCREnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Generation.OCREnabled },
	},
	{
		key: "generation.ocr_languages", typ: kString, env: "MAMETTE_OCR_LANGUAGES",
		apply:   func(cfg *Config, v any) { cfg.Generation.OCRLanguages = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OCRLanguages },
	},
	{
		key: "exports.save", typ: kBool, env: "MAMETTE_SAVE_EXPORTS",
		apply:   func(cfg *Config, v any) { cfg.Exports.Save = v.(bool) },
		extract: func(cfg Config) any { return cfg.Exports.Save },
	},
	{
		key: "exports.dir", typ: kString, env: "MAMETTE_EXPORTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Exports.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Exports.Dir },
	},
	{
		key: "metrics.enabled", typ: kBool, env: "MAMETTE_METRICS_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Metrics.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Metrics.Enabled },
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

func applySecrets(cfg *Config, secrets secretStore) {
	if secrets == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.account == "" {
			continue
		}
		if v, err := secrets.Get(s.account); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
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
