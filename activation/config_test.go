package activation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("BEATCONNECT_API_BASE_URL", "https://licensing.example.com/v1")
	t.Setenv("BEATCONNECT_PLUGIN_ID", "plugin-uuid")
	t.Setenv("BEATCONNECT_API_KEY", "key")
	t.Setenv("BEATCONNECT_REQUEST_TIMEOUT", "3s")
	t.Setenv("BEATCONNECT_DEBUG", "true")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://licensing.example.com/v1", cfg.APIBaseURL)
	assert.Equal(t, "plugin-uuid", cfg.PluginID)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Debug)
	// defaults from struct tags
	assert.True(t, cfg.ValidateOnStartup)
	assert.Equal(t, 24*time.Hour, cfg.RevalidateInterval)
	assert.Equal(t, 4, cfg.MaxInFlight)
}

func TestConfigFromEnvMissingRequired(t *testing.T) {
	t.Setenv("BEATCONNECT_API_BASE_URL", "")
	t.Setenv("BEATCONNECT_PLUGIN_ID", "")
	t.Setenv("BEATCONNECT_API_KEY", "")

	_, err := ConfigFromEnv()
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"complete", func(c *Config) {}, false},
		{"missing base url", func(c *Config) { c.APIBaseURL = "" }, true},
		{"base url not a url", func(c *Config) { c.APIBaseURL = "not a url" }, true},
		{"missing plugin id", func(c *Config) { c.PluginID = "" }, true},
		{"missing api key", func(c *Config) { c.APIKey = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.APIBaseURL = "https://licensing.example.com"
			cfg.PluginID = "plugin"
			cfg.APIKey = "key"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFromProjectData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project_data.json")

	descriptor := `{
		"pluginId": "11111111-2222-3333-4444-555555555555",
		"apiBaseUrl": "https://xxx.example.com/functions/v1/plugin-activation",
		"supabasePublishableKey": "publishable-key",
		"pluginName": "MyPlugin"
	}`
	require.NoError(t, os.WriteFile(path, []byte(descriptor), 0o600))

	cfg, err := ConfigFromProjectData(path)
	require.NoError(t, err)

	assert.Equal(t, "11111111-2222-3333-4444-555555555555", cfg.PluginID)
	assert.Equal(t, "publishable-key", cfg.APIKey)
	assert.Equal(t, "MyPlugin", cfg.PluginName)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout, "defaults apply to descriptor configs")
}

func TestConfigFromProjectDataMissingFile(t *testing.T) {
	_, err := ConfigFromProjectData(filepath.Join(t.TempDir(), "project_data.json"))
	assert.Error(t, err, "a missing descriptor means a development build")
}

func TestDetectCodeFormat(t *testing.T) {
	tests := []struct {
		code string
		want CodeFormat
	}{
		{"fd5cf09b-b8f4-495c-a4b9-8404dd965b4c", CodeFormatUUID},
		{"AB12-CD34-EF56-GH78", CodeFormatLegacy},
		{"abcd-efgh-ijkl-mnop", CodeFormatLegacy},
		{"AB12-CD34-EF56", CodeFormatUnknown},
		{"AB123-CD34-EF56-GH78", CodeFormatUnknown},
		{"AB!2-CD34-EF56-GH78", CodeFormatUnknown},
		{"", CodeFormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCodeFormat(tt.code))
		})
	}
}

func TestStatusStrings(t *testing.T) {
	statuses := []Status{
		StatusValid, StatusInvalid, StatusRevoked, StatusMaxReached,
		StatusNetworkError, StatusServerError, StatusNotConfigured,
		StatusAlreadyActive, StatusNotActivated,
	}
	seen := make(map[string]bool)
	for _, s := range statuses {
		str := s.String()
		assert.NotEqual(t, "Unknown status", str)
		assert.False(t, seen[str], "status strings must be distinct")
		seen[str] = true
	}
	assert.Equal(t, "Unknown status", Status(99).String())
}
