package config

import (
	"os"
	"strings"
)

// Device ID identifies this host at the remote authority.
// Stable across restarts: DMI product UUID, then machine-id, then hostname.
func initDeviceID() {
	for _, file := range []string{"/sys/class/dmi/id/product_uuid", "/etc/machine-id"} {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			cache.deviceID = id
			return
		}
	}

	// Fallback to any sane value
	cache.deviceID = "aca-" + cache.agentName
}
