package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultUserID is the owner assigned to projects created without a user.
const DefaultUserID = "00000000-0000-0000-0000-000000000000"

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Storage    StorageConfig
	Bucket     BucketConfig
	OpenAI     OpenAIConfig
	Replicate  ReplicateConfig
	Generation GenerationConfig
	Exports    ExportsConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	APIToken       string
}

// Origins splits AllowedOrigins on commas.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type StorageConfig struct {
	Driver        string
	DataDir       string
	DatabaseURL   string
	DefaultUserID string
}

type BucketConfig struct {
	Endpoint      string
	Name          string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
}

// Enabled reports whether generated images should be copied to the bucket.
func (b BucketConfig) Enabled() bool {
	return b.Endpoint != ""
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Quality string
	Style   string
}

type ReplicateConfig struct {
	APIToken      string
	BaseURL       string
	Model         string
	Version       string
	MockupModel   string
	MockupVersion string
}

type GenerationConfig struct {
	Provider     string
	Variations   int
	MaxAttempts  int
	Concurrency  int
	OCREnabled   bool
	OCRLanguages string
}

type ExportsConfig struct {
	Save bool
	Dir  string
}

type MetricsConfig struct {
	Enabled bool
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           3000,
			AllowedOrigins: "*",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver:        "sqlite",
			DataDir:       dataDir,
			DefaultUserID: DefaultUserID,
		},
		Bucket: BucketConfig{
			Name:   "mamette-covers",
			UseSSL: true,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "dall-e-3",
			Size:    "1024x1792",
			Quality: "hd",
			Style:   "natural",
		},
		Replicate: ReplicateConfig{
			BaseURL: "https://api.replicate.com/v1",
		},
		Generation: GenerationConfig{
			Provider:     "dalle",
			Variations:   4,
			MaxAttempts:  8,
			Concurrency:  4,
			OCRLanguages: "eng+fra",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "mamette-data"
		}
	}
	return filepath.Join(dir, "mamette")
}

// Load reads configuration from the JSON file backend, the secrets file and
// environment variables, in increasing order of precedence.
//
// The backend lives at $XDG_CONFIG_HOME/mamette/config.json. Secrets are never
// read from it; they come from MAMETTE_* / provider environment variables or
// from $XDG_DATA_HOME/mamette/secrets.json.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()})
}

// secretStore abstracts secret lookup for testing.
type secretStore interface {
	Get(account string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applySecrets(&cfg, secrets)
	applyEnvOverrides(&cfg)

	if cfg.Exports.Dir == "" {
		cfg.Exports.Dir = filepath.Join(cfg.Storage.DataDir, "exports")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Generation.Provider {
	case "dalle", "replicate":
	default:
		return fmt.Errorf("invalid generation.provider %q: want dalle or replicate", cfg.Generation.Provider)
	}
	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			return fmt.Errorf("missing required config: storage.database_url. " +
				"Set it via environment variable MAMETTE_DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite or postgres", cfg.Storage.Driver)
	}
	if cfg.Generation.Variations <= 0 {
		return fmt.Errorf("generation.variations must be positive, got %d", cfg.Generation.Variations)
	}
	if cfg.Generation.MaxAttempts < cfg.Generation.Variations {
		return fmt.Errorf("generation.max_attempts (%d) must be at least generation.variations (%d)",
			cfg.Generation.MaxAttempts, cfg.Generation.Variations)
	}
	if cfg.Bucket.Enabled() && (cfg.Bucket.AccessKey == "" || cfg.Bucket.SecretKey == "") {
		return fmt.Errorf("bucket.endpoint is set but bucket credentials are missing. " +
			"Set MAMETTE_BUCKET_ACCESS_KEY and MAMETTE_BUCKET_SECRET_KEY")
	}
	return nil
}

// OCRLanguageList splits the "+"-joined tesseract language string.
func (g GenerationConfig) OCRLanguageList() []string {
	var out []string
	for _, l := range strings.Split(g.OCRLanguages, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
