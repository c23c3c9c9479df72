package config

// Injected on build with -ldflags "-X .../config.version=... -X .../config.subversion=..."
var (
	version    = "0.0.0"
	subversion = "local"
)

func GetVersion() string {
	if subversion != "" {
		return version + "-" + subversion
	}
	return version
}

// GetUserAgent is reported to the remote authority on connect
func GetUserAgent() string {
	return "alcor-control-agent/" + GetVersion()
}
