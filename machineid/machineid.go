// Package machineid derives a stable, privacy-preserving fingerprint for
// the current machine. The fingerprint is used to track license
// activation slots.
//
// Platform identifiers (volume serial, machine GUID, platform serial,
// /etc/machine-id, ...) are concatenated and hashed with SHA-256 so the
// raw hardware information is never exposed. The result is deterministic
// for a given machine across runs and reinstalls of the software; an OS
// reinstall that regenerates the underlying identifiers produces a new
// fingerprint, which is accepted behavior.
package machineid

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// fallbackInfo is hashed when no platform identifier could be collected.
// The fingerprint degrades to a non-unique value instead of failing.
const fallbackInfo = "FALLBACK_ID"

// ShortLength is the length of the display-friendly fingerprint prefix.
const ShortLength = 16

// Generate returns the machine fingerprint for the current system as a
// hex-encoded SHA-256 hash (64 characters). It never fails; if no
// platform identifier is available the result is a fixed fallback hash.
func Generate() string {
	info := collectMachineInfo()
	if info == "" {
		slog.Warn("no platform machine identifiers available, using fallback fingerprint")
		info = fallbackInfo
	}
	return hashMachineInfo(info)
}

// GenerateShort returns the first 16 characters of the fingerprint,
// suitable for display.
func GenerateShort() string {
	return Generate()[:ShortLength]
}

func hashMachineInfo(info string) string {
	sum := sha256.Sum256([]byte(info))
	return hex.EncodeToString(sum[:])
}
