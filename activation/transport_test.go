package activation

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatconnect/sdk-go/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTransport(baseURL string) *Transport {
	cfg := DefaultConfig()
	cfg.APIBaseURL = baseURL
	cfg.PluginID = "11111111-2222-3333-4444-555555555555"
	cfg.APIKey = "publishable-key"
	cfg.RequestTimeout = 2 * time.Second
	return NewTransport(cfg, testLogger())
}

func TestClassifyServerError(t *testing.T) {
	tests := []struct {
		message string
		want    Status
	}{
		{"Invalid activation code", StatusInvalid},
		{"invalid code", StatusInvalid},
		{"Code has been revoked", StatusRevoked},
		{"License revoked by vendor", StatusRevoked},
		{"Maximum activations reached", StatusMaxReached},
		{"activation limit exceeded", StatusMaxReached},
		{"database exploded", StatusServerError},
		{"", StatusServerError},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyServerError(tt.message))
		})
	}
}

func TestTransportActivateSuccess(t *testing.T) {
	server := testutil.NewLicenseServer(t)
	server.Respond(pathActivate, testutil.Response{Body: map[string]any{
		"activated_at":        "2024-01-01T00:00:00Z",
		"current_activations": 1,
		"max_activations":     3,
	}})

	tr := newTestTransport(server.URL)
	status, info := tr.Activate(context.Background(), "CODE-1234-ABCD-0001", "machine-a")

	require.Equal(t, StatusValid, status)
	assert.Equal(t, "CODE-1234-ABCD-0001", info.ActivationCode)
	assert.Equal(t, "machine-a", info.MachineID)
	assert.Equal(t, "2024-01-01T00:00:00Z", info.ActivatedAt)
	assert.Equal(t, 1, info.CurrentActivations)
	assert.Equal(t, 3, info.MaxActivations)
	assert.True(t, info.IsValid)

	// request shape and auth headers
	reqs := server.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, pathActivate, reqs[0].Path)
	assert.Equal(t, "CODE-1234-ABCD-0001", reqs[0].Code)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", reqs[0].PluginID)
	assert.Equal(t, "machine-a", reqs[0].MachineID)
	assert.Equal(t, "publishable-key", reqs[0].APIKey)
	assert.Equal(t, "Bearer publishable-key", reqs[0].Bearer)
}

func TestTransportActivateLegacyActivationsField(t *testing.T) {
	server := testutil.NewLicenseServer(t)
	server.Respond(pathActivate, testutil.Response{Body: map[string]any{
		"activations":     2,
		"max_activations": 5,
	}})

	tr := newTestTransport(server.URL)
	status, info := tr.Activate(context.Background(), "code", "m")

	require.Equal(t, StatusValid, status)
	assert.Equal(t, 2, info.CurrentActivations)
	assert.Equal(t, 5, info.MaxActivations)
}

func TestTransportActivateSynthesizesTimestamp(t *testing.T) {
	server := testutil.NewLicenseServer(t)
	server.Respond(pathActivate, testutil.Response{Body: map[string]any{}})

	tr := newTestTransport(server.URL)
	before := time.Now().UTC().Add(-time.Second)

	status, info := tr.Activate(context.Background(), "code", "m")
	require.Equal(t, StatusValid, status)

	parsed, err := time.Parse(time.RFC3339, info.ActivatedAt)
	require.NoError(t, err, "synthesized activated_at must be RFC3339")
	assert.True(t, parsed.After(before))
}

func TestTransportActivateErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Status
	}{
		{"invalid", "Invalid activation code", StatusInvalid},
		{"revoked", "Code has been revoked", StatusRevoked},
		{"max reached", "Maximum activations reached", StatusMaxReached},
		{"other", "internal error", StatusServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewLicenseServer(t)
			server.RespondError(pathActivate, tt.message)

			tr := newTestTransport(server.URL)
			status, _ := tr.Activate(context.Background(), "code", "m")
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestTransportMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway error</html>"},
		{"json null", "null"},
		{"json array", "[1,2,3]"},
		{"json string", `"nope"`},
		{"empty body", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewLicenseServer(t)
			server.Respond(pathValidate, testutil.Response{RawBody: tt.body})

			tr := newTestTransport(server.URL)
			assert.Equal(t, StatusServerError, tr.Validate(context.Background(), "code", "m"))
		})
	}
}

func TestTransportCapsOversizedResponses(t *testing.T) {
	// A response body larger than the read cap is truncated mid-JSON and
	// classifies as a server fault instead of being buffered in full.
	server := testutil.NewLicenseServer(t)
	server.Respond(pathValidate, testutil.Response{
		RawBody: `{"valid": true, "padding": "` + strings.Repeat("x", maxResponseBytes) + `"}`,
	})

	tr := newTestTransport(server.URL)
	assert.Equal(t, StatusServerError, tr.Validate(context.Background(), "code", "m"))
}

func TestTransportNetworkError(t *testing.T) {
	server := testutil.NewLicenseServer(t)
	url := server.URL
	server.Close()

	tr := newTestTransport(url)

	status, _ := tr.Activate(context.Background(), "code", "m")
	assert.Equal(t, StatusNetworkError, status)
	assert.Equal(t, StatusNetworkError, tr.Deactivate(context.Background(), "code", "m"))
	assert.Equal(t, StatusNetworkError, tr.Validate(context.Background(), "code", "m"))
}

func TestTransportDoesNotFollowRedirects(t *testing.T) {
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://example.invalid/elsewhere", http.StatusFound)
	}))
	defer redirect.Close()

	tr := newTestTransport(redirect.URL)

	// The redirect response itself is not a JSON object, so the call
	// classifies as a server fault instead of chasing the Location.
	assert.Equal(t, StatusServerError, tr.Validate(context.Background(), "code", "m"))
}

func TestTransportValidate(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		want Status
	}{
		{"valid true", map[string]any{"valid": true}, StatusValid},
		{"valid false", map[string]any{"valid": false}, StatusInvalid},
		{"valid missing", map[string]any{}, StatusInvalid},
		{"revoked error", map[string]any{"error": "code revoked"}, StatusRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewLicenseServer(t)
			server.Respond(pathValidate, testutil.Response{Body: tt.body})

			tr := newTestTransport(server.URL)
			assert.Equal(t, tt.want, tr.Validate(context.Background(), "code", "m"))
		})
	}
}

func TestTransportDeactivate(t *testing.T) {
	server := testutil.NewLicenseServer(t)
	server.Respond(pathDeactivate, testutil.Response{Body: map[string]any{"success": true}})

	tr := newTestTransport(server.URL)
	assert.Equal(t, StatusValid, tr.Deactivate(context.Background(), "code", "m"))

	server.RespondError(pathDeactivate, "something broke")
	assert.Equal(t, StatusServerError, tr.Deactivate(context.Background(), "code", "m"))
}
