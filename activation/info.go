package activation

import (
	"strings"

	"github.com/google/uuid"
)

// Info describes one activation record. It is created or overwritten
// only by a successful Activate, cleared entirely by a successful
// Deactivate, and Validate may flip IsValid to false without clearing
// the rest (server-side revocation keeps the audit trail).
type Info struct {
	// ActivationCode is the license code this machine activated with.
	ActivationCode string `json:"activation_code"`
	// MachineID is the fingerprint the code was bound to.
	MachineID string `json:"machine_id"`
	// ActivatedAt is an ISO-8601 timestamp from the server, or
	// synthesized locally when the server omits it.
	ActivatedAt string `json:"activated_at"`
	// ExpiresAt is an ISO-8601 expiry timestamp, empty if none.
	ExpiresAt string `json:"expires_at,omitempty"`
	// CurrentActivations is the number of slots in use for the code.
	CurrentActivations int `json:"current_activations"`
	// MaxActivations is the slot limit for the code.
	MaxActivations int `json:"max_activations"`
	// IsValid reports whether the server still considers the
	// activation valid as of the last contact.
	IsValid bool `json:"is_valid"`
}

// CodeFormat identifies the shape of an activation code.
type CodeFormat int

const (
	// CodeFormatUnknown is anything that matches no known shape.
	CodeFormatUnknown CodeFormat = iota
	// CodeFormatUUID is the current code format, a canonical UUID.
	CodeFormatUUID
	// CodeFormatLegacy is the older XXXX-XXXX-XXXX-XXXX format.
	CodeFormatLegacy
)

// DetectCodeFormat classifies an activation code. The server accepts
// both formats; this exists so UIs can pre-validate user input.
func DetectCodeFormat(code string) CodeFormat {
	if _, err := uuid.Parse(code); err == nil {
		return CodeFormatUUID
	}
	if isLegacyCode(code) {
		return CodeFormatLegacy
	}
	return CodeFormatUnknown
}

// isLegacyCode matches four dash-separated groups of four alphanumerics.
func isLegacyCode(code string) bool {
	groups := strings.Split(code, "-")
	if len(groups) != 4 {
		return false
	}
	for _, g := range groups {
		if len(g) != 4 {
			return false
		}
		for _, c := range g {
			switch {
			case c >= '0' && c <= '9':
			case c >= 'A' && c <= 'Z':
			case c >= 'a' && c <= 'z':
			default:
				return false
			}
		}
	}
	return true
}
