package activation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the immutable per-engine configuration. Credentials are
// normally injected at build/packaging time from a project descriptor;
// here they arrive as already-resolved values. A Config is never mutated
// after New - reconfiguring means creating a new Engine.
type Config struct {
	// APIBaseURL is the licensing API root; the operation path
	// suffixes /activate, /deactivate and /validate are appended.
	APIBaseURL string `envconfig:"API_BASE_URL" validate:"required,url"`

	// PluginID is the project UUID identifying this plugin.
	PluginID string `envconfig:"PLUGIN_ID" validate:"required"`

	// APIKey is the static publishable key sent with every request.
	APIKey string `envconfig:"API_KEY" validate:"required"`

	// StatePath overrides where activation state is persisted.
	// Default: <user-config-dir>/BeatConnect/<PluginID>/activation.json.
	StatePath string `envconfig:"STATE_PATH"`

	// RequestTimeout bounds each licensing API call.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	// ValidateOnStartup schedules a background validation when the
	// engine is created. It never runs synchronously: plugin hosts may
	// forbid network I/O while scanning plugins.
	ValidateOnStartup bool `envconfig:"VALIDATE_ON_STARTUP" default:"true"`

	// RevalidateInterval is how often activation is re-confirmed with
	// the server in the background. Zero disables revalidation.
	RevalidateInterval time.Duration `envconfig:"REVALIDATE_INTERVAL" default:"24h"`

	// PluginName is used for the debug log location; falls back to
	// PluginID when empty.
	PluginName string `envconfig:"PLUGIN_NAME"`

	// Debug enables the per-instance debug log file.
	Debug bool `envconfig:"DEBUG" default:"false"`

	// ExistenceOnlyLoad treats mere presence of the state file as proof
	// of activation, skipping parsing and the machine fingerprint
	// check. Opt-in fast path for host-scan-sensitive contexts only;
	// the default full-verify load protects against state files copied
	// between machines. A record loaded this way carries no activation
	// code, so server round-trips (Validate, Deactivate, background
	// revalidation) are skipped until the next explicit Activate.
	ExistenceOnlyLoad bool `envconfig:"EXISTENCE_ONLY_LOAD" default:"false"`

	// MaxInFlight bounds concurrently running async operations per
	// engine, preventing unbounded goroutine growth under rapid
	// UI-triggered retries.
	MaxInFlight int `envconfig:"MAX_IN_FLIGHT" default:"4" validate:"min=1"`

	// ActivateRPS and ActivateBurst rate-limit activation attempts.
	ActivateRPS   float64 `envconfig:"ACTIVATE_RPS" default:"1"`
	ActivateBurst int     `envconfig:"ACTIVATE_BURST" default:"5" validate:"min=1"`
}

// envPrefix is the prefix for environment-derived configuration,
// e.g. BEATCONNECT_API_BASE_URL.
const envPrefix = "BEATCONNECT"

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns a Config with the documented defaults. Callers
// constructing configs in code should start from here and fill in the
// credentials; the env path gets the same defaults from struct tags.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:     10 * time.Second,
		ValidateOnStartup:  true,
		RevalidateInterval: 24 * time.Hour,
		MaxInFlight:        4,
		ActivateRPS:        1,
		ActivateBurst:      5,
	}
}

// ConfigFromEnv builds a Config from BEATCONNECT_* environment
// variables with documented defaults applied.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// projectData mirrors the project_data.json descriptor the build system
// injects into packaged plugins.
type projectData struct {
	PluginID       string `json:"pluginId"`
	APIBaseURL     string `json:"apiBaseUrl"`
	PublishableKey string `json:"supabasePublishableKey"`
	PluginName     string `json:"pluginName"`
}

// ConfigFromProjectData loads credentials from a build-injected project
// descriptor and applies defaults for everything else. Returns an error
// if the descriptor is missing, which typically means a development
// build rather than a packaged one.
func ConfigFromProjectData(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read project data: %w", err)
	}

	var pd projectData
	if err := json.Unmarshal(data, &pd); err != nil {
		return Config{}, fmt.Errorf("failed to parse project data: %w", err)
	}

	cfg := Config{
		APIBaseURL: pd.APIBaseURL,
		PluginID:   pd.PluginID,
		APIKey:     pd.PublishableKey,
		PluginName: pd.PluginName,
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid activation config: %w", err)
	}
	return nil
}

// applyDefaults fills zero values for configs constructed in code, where
// envconfig default tags do not apply.
func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
	if c.ActivateRPS <= 0 {
		c.ActivateRPS = 1
	}
	if c.ActivateBurst <= 0 {
		c.ActivateBurst = 5
	}
}

// statePath resolves the effective state file location.
func (c Config) statePath() (string, error) {
	if c.StatePath != "" {
		return c.StatePath, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "BeatConnect", c.PluginID, stateFileName), nil
}

// debugLogPath resolves the per-instance debug log location.
func (c Config) debugLogPath() (string, error) {
	name := c.PluginName
	if name == "" {
		name = c.PluginID
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "BeatConnect", name, "debug.log"), nil
}
