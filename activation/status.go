package activation

// Status is the closed result vocabulary for every activation operation.
// Transport and server failures collapse into this taxonomy; callers
// never see raw errors.
type Status int

const (
	// StatusValid means the operation succeeded or the license is active.
	StatusValid Status = iota
	// StatusInvalid means the activation code is not valid.
	StatusInvalid
	// StatusRevoked means the code has been revoked server-side.
	StatusRevoked
	// StatusMaxReached means the code's activation slots are exhausted.
	StatusMaxReached
	// StatusNetworkError means the licensing server could not be reached.
	StatusNetworkError
	// StatusServerError means the server returned an unusable response.
	StatusServerError
	// StatusNotConfigured means the engine has no usable configuration.
	StatusNotConfigured
	// StatusAlreadyActive means this machine is already activated.
	StatusAlreadyActive
	// StatusNotActivated means no activation is present locally.
	StatusNotActivated
)

// String returns a human-readable description suitable for display.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "Valid"
	case StatusInvalid:
		return "Invalid activation code"
	case StatusRevoked:
		return "License has been revoked"
	case StatusMaxReached:
		return "Maximum activations reached"
	case StatusNetworkError:
		return "Network error - check connection"
	case StatusServerError:
		return "Server error - try again later"
	case StatusNotConfigured:
		return "SDK not configured"
	case StatusAlreadyActive:
		return "Already activated"
	case StatusNotActivated:
		return "Not activated"
	}
	return "Unknown status"
}

// label returns the short identifier used in logs and metrics.
func (s Status) label() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusRevoked:
		return "revoked"
	case StatusMaxReached:
		return "max_reached"
	case StatusNetworkError:
		return "network_error"
	case StatusServerError:
		return "server_error"
	case StatusNotConfigured:
		return "not_configured"
	case StatusAlreadyActive:
		return "already_active"
	case StatusNotActivated:
		return "not_activated"
	}
	return "unknown"
}
