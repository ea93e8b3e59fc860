package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultSessionSecret is the placeholder secret shipped in defaults.
const DefaultSessionSecret = "a_very_long_and_random_secret_string"

// APIKeys holds the API keys for upstream services and for this API.
type APIKeys struct {
	OpenAI  string `yaml:"openai" json:"OPENAI_API_KEY" env:"OPENAI_API_KEY"`
	Gemini  string `yaml:"gemini" json:"GEMINI_API_KEY" env:"GEMINI_API_KEY"`
	Service string `yaml:"service" json:"STORYBOOK_API_KEY" env:"STORYBOOK_API_KEY"`
}

// Providers selects and tunes the AI backends.
type Providers struct {
	// Describer is "openai" or "gemini".
	Describer       string        `yaml:"describer" json:"DESCRIBE_PROVIDER" env:"DESCRIBE_PROVIDER" env-default:"openai"`
	OpenAIModel     string        `yaml:"openai_model" json:"OPENAI_MODEL" env:"OPENAI_MODEL" env-default:"gpt-4o-mini"`
	GeminiModel     string        `yaml:"gemini_model" json:"GEMINI_MODEL" env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" json:"OPENAI_BASE_URL" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	PollinationsURL string        `yaml:"pollinations_url" json:"POLLINATIONS_URL" env:"POLLINATIONS_URL" env-default:"https://image.pollinations.ai/prompt/"`
	RequestsPerMin  int           `yaml:"requests_per_minute" json:"OPENAI_RPM" env:"OPENAI_RPM" env-default:"0"`
	HTTPTimeout     time.Duration `yaml:"http_timeout" json:"HTTP_TIMEOUT" env:"HTTP_TIMEOUT" env-default:"120s"`
	DisablePrimary  bool          `yaml:"disable_primary" json:"DISABLE_DALLE" env:"DISABLE_DALLE" env-default:"false"`
}

// Orchestrator holds pacing and prompt limits for generation.
type Orchestrator struct {
	MaxRetries        int           `yaml:"max_retries" json:"MAX_RETRIES" env:"MAX_RETRIES" env-default:"3"`
	InitialDelay      time.Duration `yaml:"initial_delay" json:"RETRY_INITIAL_DELAY" env:"RETRY_INITIAL_DELAY" env-default:"1s"`
	BatchDelay        time.Duration `yaml:"batch_delay" json:"BATCH_DELAY" env:"BATCH_DELAY" env-default:"2s"`
	MaxURLLength      int           `yaml:"max_url_length" json:"MAX_URL_LENGTH" env:"MAX_URL_LENGTH" env-default:"8000"`
	MaxPrimaryPrompt  int           `yaml:"max_primary_prompt" json:"MAX_PRIMARY_PROMPT" env:"MAX_PRIMARY_PROMPT" env-default:"1000"`
	MaxDescriptionLen int           `yaml:"max_description" json:"MAX_DESCRIPTION" env:"MAX_DESCRIPTION" env-default:"800"`
}

// Storage selects the catalog and history backend.
type Storage struct {
	// Driver is "memory", "sqlite" or "mongo".
	Driver     string `yaml:"driver" json:"STORAGE_DRIVER" env:"STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" json:"SQLITE_PATH" env:"SQLITE_PATH" env-default:"storybook.db"`
	MongoURI   string `yaml:"mongo_uri" json:"MONGO_URI" env:"MONGO_URI" env-default:"mongodb://127.0.0.1:27017"`
	MongoDB    string `yaml:"mongo_database" json:"MONGO_DATABASE" env:"MONGO_DATABASE" env-default:"storybook"`
}

// Bucket holds the object storage credentials.
type Bucket struct {
	URL        string `yaml:"url" json:"SUPABASE_URL" env:"SUPABASE_URL"`
	ServiceKey string `yaml:"service_key" json:"SUPABASE_SERVICE_ROLE_KEY" env:"SUPABASE_SERVICE_ROLE_KEY"`
	Name       string `yaml:"name" json:"SUPABASE_BUCKET" env:"SUPABASE_BUCKET" env-default:"book-uploads"`
}

// Cache tunes the fetched image cache.
type Cache struct {
	TTL     time.Duration `yaml:"ttl" json:"FETCH_CACHE_TTL" env:"FETCH_CACHE_TTL" env-default:"5m"`
	Cleanup time.Duration `yaml:"cleanup" json:"FETCH_CACHE_CLEANUP" env:"FETCH_CACHE_CLEANUP" env-default:"10m"`
}

// Settings holds optional application settings.
type Settings struct {
	ArchiveGenerated bool   `yaml:"archive_generated" json:"ARCHIVE_GENERATED" env:"ARCHIVE_GENERATED" env-default:"false"`
	WebPassword      string `yaml:"web_password" json:"WEB_PASSWORD" env:"WEB_PASSWORD"`
	SessionSecret    string `yaml:"session_secret" json:"SESSION_SECRET" env:"SESSION_SECRET" env-default:"a_very_long_and_random_secret_string"`
}

// Config holds the entire application configuration.
type Config struct {
	Env          string       `yaml:"env" json:"ENV" env:"ENV" env-default:"local"`
	Listen       string       `yaml:"listen" json:"LISTEN" env:"LISTEN" env-default:":3000"`
	APIKeys      APIKeys      `yaml:"api_keys" json:"API_KEYS"`
	Providers    Providers    `yaml:"providers" json:"PROVIDERS"`
	Orchestrator Orchestrator `yaml:"orchestrator" json:"ORCHESTRATOR"`
	Storage      Storage      `yaml:"storage" json:"STORAGE"`
	Bucket       Bucket       `yaml:"bucket" json:"BUCKET"`
	Cache        Cache        `yaml:"cache" json:"CACHE"`
	Settings     Settings     `yaml:"settings" json:"SETTINGS"`
}

// LoadConfig builds the configuration from defaults, the optional config
// file at path, a .env file and the process environment, in that order of
// increasing precedence.
func LoadConfig(path string) (*Config, error) {
	// .env values become plain environment variables; existing ones win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				desc, _ := cleanenv.GetDescription(cfg, nil)
				return nil, fmt.Errorf("config: %s; %s", err, desc)
			}
			return cfg, cfg.validate()
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: opening %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.Providers.Describer {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown describe provider %q", c.Providers.Describer)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "mongo":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Orchestrator.MaxRetries < 1 {
		return fmt.Errorf("config: max retries must be at least 1, got %d", c.Orchestrator.MaxRetries)
	}
	return nil
}

// BucketEnabled reports whether object storage credentials are present.
func (c *Config) BucketEnabled() bool {
	return c.Bucket.URL != "" && c.Bucket.ServiceKey != ""
}
