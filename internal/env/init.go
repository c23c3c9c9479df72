package env

import (
	"os"

	"golang.org/x/sys/unix"
)

func Init() {
	initAgentDirs()
}

func initAgentDirs() {
	// MkdirAll does not fail on already existing directory
	err := os.MkdirAll(AgentStateDir, 0700)
	if err != nil {
		os.Exit(-int(unix.ENOTDIR))
	}
}
