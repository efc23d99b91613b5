//go:build !linux && !darwin && !windows

package machineid

import "os"

// collectMachineInfo on unsupported platforms falls back to the hostname
// so the fingerprint stays stable within one installation even without a
// hardware identifier.
func collectMachineInfo() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return "HOST:" + host + ";"
	}
	return ""
}
