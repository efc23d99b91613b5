package machineid

import (
	"os"
	"strings"
)

// collectMachineInfo gathers Linux machine identifiers: the persistent
// machine-id, the DMI product UUID where readable, and the hostname as a
// weak fallback component.
func collectMachineInfo() string {
	var sb strings.Builder

	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			sb.WriteString("MID:" + id + ";")
		}
	}

	// Usually requires elevated privileges; absence is fine.
	if data, err := os.ReadFile("/sys/class/dmi/id/product_uuid"); err == nil {
		if uuid := strings.TrimSpace(string(data)); uuid != "" {
			sb.WriteString("UUID:" + uuid + ";")
		}
	}

	if host, err := os.Hostname(); err == nil && host != "" {
		sb.WriteString("HOST:" + host + ";")
	}

	return sb.String()
}
