package license

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime"
	"strings"
)

// machineIDPaths are tried in order; the first readable one salts the
// fingerprint so two hosts with the same name still differ.
var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// HardwareFingerprint derives the hardware ID this machine presents on
// activation. It is stable across restarts of the same host.
func HardwareFingerprint() string {
	raw := strings.Join([]string{safeHostname(), machineID(), runtime.GOOS, runtime.GOARCH}, "|")
	sum := sha256.Sum256([]byte(raw))
	return strings.ToUpper(hex.EncodeToString(sum[:16]))
}

func machineID() string {
	for _, p := range machineIDPaths {
		b, err := os.ReadFile(p)
		if err == nil {
			if id := strings.TrimSpace(string(b)); id != "" {
				return id
			}
		}
	}
	return "unknown"
}

func safeHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	parts := strings.Split(h, ".")
	return parts[0]
}
