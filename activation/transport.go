package activation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Operation path suffixes under the configured API base URL.
const (
	pathActivate   = "/activate"
	pathDeactivate = "/deactivate"
	pathValidate   = "/validate"
)

// maxResponseBytes caps how much of a licensing response is read; the
// real payloads are a few hundred bytes.
const maxResponseBytes = 1 << 20

// Server error texts are classified by substring. This is a documented
// coupling point: the server contract is that error messages for these
// conditions contain the substrings below (matched case-insensitively).
// A structured error-code field would be preferable; until the server
// grows one, these constants are the single place the contract lives.
const (
	errTextInvalid = "invalid"
	errTextRevoked = "revoked"
	errTextMaximum = "maximum"
	errTextLimit   = "limit"
)

// Transport performs the authenticated HTTP calls to the licensing API.
// It owns error classification: every outcome is a Status, never a raw
// error.
type Transport struct {
	baseURL  string
	pluginID string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// NewTransport builds a transport for the given configuration. The
// underlying client honors the configured timeout and never follows
// redirects.
func NewTransport(cfg Config, logger *slog.Logger) *Transport {
	return &Transport{
		baseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		pluginID: cfg.PluginID,
		apiKey:   cfg.APIKey,
		logger:   logger,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// activationRequest is the body of all three licensing operations.
type activationRequest struct {
	Code      string `json:"code"`
	PluginID  string `json:"plugin_id"`
	MachineID string `json:"machine_id"`
}

// activationResponse covers both the error and the success payloads of
// the three operations. Error is a pointer so presence of the field is
// distinguishable from an empty message.
type activationResponse struct {
	Error              *string `json:"error"`
	ActivatedAt        string  `json:"activated_at"`
	ExpiresAt          string  `json:"expires_at"`
	Activations        *int    `json:"activations"`
	CurrentActivations *int    `json:"current_activations"`
	MaxActivations     int     `json:"max_activations"`
	Valid              bool    `json:"valid"`
}

// Activate binds code to machineID. On StatusValid the returned Info
// carries the server-reported slot counts and activation timestamp.
func (t *Transport) Activate(ctx context.Context, code, machineID string) (Status, Info) {
	resp, status := t.post(ctx, pathActivate, code, machineID)
	if status != StatusValid {
		return status, Info{}
	}

	if resp.Error != nil {
		return classifyServerError(*resp.Error), Info{}
	}

	info := Info{
		ActivationCode: code,
		MachineID:      machineID,
		ActivatedAt:    resp.ActivatedAt,
		ExpiresAt:      resp.ExpiresAt,
		MaxActivations: resp.MaxActivations,
		IsValid:        true,
	}
	// The server does not always return the timestamp.
	if info.ActivatedAt == "" {
		info.ActivatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	// Older server versions report "activations" instead of
	// "current_activations".
	switch {
	case resp.Activations != nil:
		info.CurrentActivations = *resp.Activations
	case resp.CurrentActivations != nil:
		info.CurrentActivations = *resp.CurrentActivations
	}

	return StatusValid, info
}

// Deactivate releases the activation slot held by code on machineID.
func (t *Transport) Deactivate(ctx context.Context, code, machineID string) Status {
	resp, status := t.post(ctx, pathDeactivate, code, machineID)
	if status != StatusValid {
		return status
	}
	if resp.Error != nil {
		return classifyServerError(*resp.Error)
	}
	return StatusValid
}

// Validate asks the server whether the activation is still good.
func (t *Transport) Validate(ctx context.Context, code, machineID string) Status {
	resp, status := t.post(ctx, pathValidate, code, machineID)
	if status != StatusValid {
		return status
	}
	if resp.Error != nil {
		return classifyServerError(*resp.Error)
	}
	if resp.Valid {
		return StatusValid
	}
	return StatusInvalid
}

// post sends one licensing request and decodes the response. The Status
// it returns covers transport-level outcomes only: StatusValid means "a
// JSON object came back", and the caller inspects the payload.
func (t *Transport) post(ctx context.Context, path, code, machineID string) (activationResponse, Status) {
	body, err := json.Marshal(activationRequest{
		Code:      code,
		PluginID:  t.pluginID,
		MachineID: machineID,
	})
	if err != nil {
		return activationResponse{}, StatusServerError
	}

	url := t.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.logger.Error("failed to build licensing request",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
		return activationResponse{}, StatusNetworkError
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("apikey", t.apiKey)
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	start := time.Now()
	httpResp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("licensing request failed",
			slog.String("path", path),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return activationResponse{}, StatusNetworkError
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return activationResponse{}, StatusNetworkError
	}

	// An empty body, "null", or a bare value is a server fault even
	// when it is technically JSON.
	trimmed := bytes.TrimSpace(raw)
	var resp activationResponse
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &resp) != nil {
		t.logger.Warn("licensing response is not a JSON object",
			slog.String("path", path),
			slog.Int("http_status", httpResp.StatusCode),
			slog.Int("body_bytes", len(raw)),
		)
		return activationResponse{}, StatusServerError
	}

	t.logger.Debug("licensing request completed",
		slog.String("path", path),
		slog.Int("http_status", httpResp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("server_error", resp.Error != nil),
	)
	return resp, StatusValid
}

// classifyServerError maps a free-text server error message onto the
// status taxonomy.
func classifyServerError(message string) Status {
	text := strings.ToLower(message)
	switch {
	case strings.Contains(text, errTextInvalid):
		return StatusInvalid
	case strings.Contains(text, errTextRevoked):
		return StatusRevoked
	case strings.Contains(text, errTextMaximum), strings.Contains(text, errTextLimit):
		return StatusMaxReached
	default:
		return StatusServerError
	}
}
