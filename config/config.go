package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

type Config struct {
	Env          string        `yaml:"env" validate:"required,oneof=development production test"`
	Addr         string        `yaml:"addr" validate:"required"`
	DatabasePath string        `yaml:"database_path" validate:"required"`
	JWTSecret    string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL     time.Duration `yaml:"token_ttl" validate:"gt=0"`
	// ReauthAfter is how old a session may get before profile changes
	// require the password again.
	ReauthAfter time.Duration     `yaml:"reauth_after" validate:"gt=0"`
	Bag         BagConfig         `yaml:"bag"`
	Uploads     UploadConfig      `yaml:"uploads"`
	Suggestions SuggestionConfig  `yaml:"suggestions"`
	LinkPreview LinkPreviewConfig `yaml:"link_preview"`
	AMQP        AMQPConfig        `yaml:"amqp"`
}

type BagConfig struct {
	Store string `yaml:"store" validate:"oneof=db file"`
	Dir   string `yaml:"dir" validate:"required_if=Store file"`
}

type UploadConfig struct {
	Dir      string `yaml:"dir" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"required"`
	MaxBytes int64  `yaml:"max_bytes" validate:"gt=0"`
}

type SuggestionConfig struct {
	MaxLength int `yaml:"max_length" validate:"gt=0"`
}

type LinkPreviewConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	// Budget caps the time spent previewing one suggestion listing.
	Budget time.Duration `yaml:"budget" validate:"gt=0"`
}

type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Env:          "development",
		Addr:         ":8080",
		DatabasePath: "meal_orders.db",
		JWTSecret:    "meal_order_dev_secret_change_me",
		TokenTTL:     24 * time.Hour,
		ReauthAfter:  5 * time.Minute,
		Bag:          BagConfig{Store: "db", Dir: "data/bags"},
		Uploads: UploadConfig{
			Dir:      "data/uploads",
			BaseURL:  "/uploads",
			MaxBytes: 5 << 20,
		},
		Suggestions: SuggestionConfig{MaxLength: 500},
		LinkPreview: LinkPreviewConfig{Enabled: true, Timeout: 3 * time.Second, Budget: 5 * time.Second},
		AMQP:        AMQPConfig{Queue: "order-notifications"},
	}
}

// Load reads defaults, then the YAML file at path (if any), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.ReauthAfter = getDuration("REAUTH_AFTER", cfg.ReauthAfter)
	cfg.Bag.Store = getEnv("BAG_STORE", cfg.Bag.Store)
	cfg.Bag.Dir = getEnv("BAG_DIR", cfg.Bag.Dir)
	cfg.Uploads.Dir = getEnv("UPLOAD_DIR", cfg.Uploads.Dir)
	cfg.Uploads.BaseURL = getEnv("UPLOAD_BASE_URL", cfg.Uploads.BaseURL)
	cfg.Uploads.MaxBytes = int64(getInt("UPLOAD_MAX_BYTES", int(cfg.Uploads.MaxBytes)))
	cfg.Suggestions.MaxLength = getInt("SUGGESTION_MAX_LENGTH", cfg.Suggestions.MaxLength)
	cfg.LinkPreview.Enabled = getBool("LINK_PREVIEW_ENABLED", cfg.LinkPreview.Enabled)
	cfg.LinkPreview.Timeout = getDuration("LINK_PREVIEW_TIMEOUT", cfg.LinkPreview.Timeout)
	cfg.LinkPreview.Budget = getDuration("LINK_PREVIEW_BUDGET", cfg.LinkPreview.Budget)
	cfg.AMQP.URL = getEnv("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Queue = getEnv("AMQP_QUEUE", cfg.AMQP.Queue)

	return cfg, cfg.Validate()
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
