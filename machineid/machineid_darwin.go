package machineid

import (
	"os/exec"
	"strings"
)

// collectMachineInfo gathers macOS machine identifiers from the
// IOPlatformExpertDevice registry entry: the platform serial number and
// the hardware UUID.
func collectMachineInfo() string {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return ""
	}

	var sb strings.Builder
	if serial := extractIORegValue(string(out), "IOPlatformSerialNumber"); serial != "" {
		sb.WriteString("SERIAL:" + serial + ";")
	}
	if uuid := extractIORegValue(string(out), "IOPlatformUUID"); uuid != "" {
		sb.WriteString("UUID:" + uuid + ";")
	}
	return sb.String()
}

// extractIORegValue pulls a quoted value out of ioreg output, e.g.
//
//	"IOPlatformUUID" = "F1234567-..."
func extractIORegValue(output, key string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "\""+key+"\"") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		return strings.Trim(strings.TrimSpace(parts[1]), "\"")
	}
	return ""
}
