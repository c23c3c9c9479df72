// Env packet describes all settings, common to whole application
package env

import "time"

const (
	// Authority expects RFC3339 timestamps in message headers
	TimeFormat = time.RFC3339Nano
	// Default value for agent initiated messages to authority
	MessageDefaultID = "-"

	// Agent state directory
	AgentStateDir = "/var/lib/alcor-control-agent"

	// Locking agent to prevent several instances running
	LockFile = "/var/lock/alcor-control-agent"
)
