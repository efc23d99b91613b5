package machineid

import (
	"os"
	"os/exec"
	"strings"
)

// collectMachineInfo gathers Windows machine identifiers: the system
// volume serial number, the cryptography MachineGuid from the registry,
// and the computer name as a weak fallback component.
func collectMachineInfo() string {
	var sb strings.Builder

	if serial := volumeSerial(); serial != "" {
		sb.WriteString("VOL:" + serial + ";")
	}
	if guid := machineGUID(); guid != "" {
		sb.WriteString("GUID:" + guid + ";")
	}
	if name := os.Getenv("COMPUTERNAME"); name != "" {
		sb.WriteString("NAME:" + name + ";")
	}

	return sb.String()
}

// volumeSerial reads the serial number of the system drive from
// `vol C:` output, last whitespace-separated token of the serial line.
func volumeSerial() string {
	out, err := exec.Command("cmd", "/c", "vol", "C:").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "Serial Number") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

// machineGUID queries HKLM\SOFTWARE\Microsoft\Cryptography\MachineGuid,
// which survives reinstalls of the software but not of Windows itself.
func machineGUID() string {
	out, err := exec.Command("reg", "query",
		`HKLM\SOFTWARE\Microsoft\Cryptography`, "/v", "MachineGuid").Output()
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "MachineGuid") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			return fields[len(fields)-1]
		}
	}
	return ""
}
