package assets

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the downloader configuration.
type Config struct {
	// APIBaseURL is the content API root; asset metadata lives under
	// /content/{id}/info and /content/{id}/download-url.
	APIBaseURL string `envconfig:"API_BASE_URL" validate:"required,url"`

	// DownloadDir is where completed downloads land.
	DownloadDir string `envconfig:"DOWNLOAD_DIR" validate:"required"`

	// AuthToken is a JWT for authenticated downloads; optional for
	// public assets. Replaceable at runtime via SetAuthToken.
	AuthToken string `envconfig:"AUTH_TOKEN"`

	// PluginID is attached to download-URL requests for tracking.
	PluginID string `envconfig:"PLUGIN_ID"`

	// RequestTimeout bounds metadata calls and the response-header wait
	// of transfers. It deliberately does not bound body streaming; a
	// large sample pack may take longer than any sane timeout.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// VerifyChecksums enables post-download digest verification when
	// the asset metadata carries a checksum.
	VerifyChecksums bool `envconfig:"VERIFY_CHECKSUMS" default:"true"`

	// SkipExisting short-circuits downloads whose target file already
	// exists.
	SkipExisting bool `envconfig:"SKIP_EXISTING" default:"true"`

	// MaxConcurrent bounds the batch-download worker pool.
	MaxConcurrent int `envconfig:"MAX_CONCURRENT" default:"2" validate:"min=1"`
}

// envPrefix is the prefix for environment-derived configuration,
// e.g. BEATCONNECT_ASSETS_DOWNLOAD_DIR.
const envPrefix = "BEATCONNECT_ASSETS"

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns a Config with the documented defaults. Callers
// constructing configs in code should start from here; the env path gets
// the same defaults from the struct tags.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  30 * time.Second,
		VerifyChecksums: true,
		SkipExisting:    true,
		MaxConcurrent:   2,
	}
}

// ConfigFromEnv builds a Config from BEATCONNECT_ASSETS_* environment
// variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load downloader config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid downloader config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
}
