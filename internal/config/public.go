package config

import "time"

const (
	ProgrammerOVS = iota
	ProgrammerNeigh
	ProgrammerNone
)

func GetProgrammerName(ptype int) string {
	switch ptype {
	case ProgrammerOVS:
		return "Open vSwitch"
	case ProgrammerNeigh:
		return "Netlink neighbour"
	case ProgrammerNone:
		return "Dry run"
	default:
		return "Unknown"
	}
}

func GetProgrammerType() int {
	return cache.programmer
}

func GetDebugLevel() int {
	return cache.debugLevel
}

func GetAuthorityURL() string {
	return cache.authorityURL
}

func GetAgentToken() string {
	return cache.agentToken
}

func GetAgentName() string {
	return cache.agentName
}

func GetDeviceID() string {
	return cache.deviceID
}

func GetWorkers() int {
	return int(cache.workers)
}

func DwellTime() time.Duration {
	return cache.times.dwell
}

func SweepInterval() time.Duration {
	return cache.times.sweep
}

func WebsocketTimeout() time.Duration {
	return cache.times.websocketTimeout
}

func GetCaptureInterface() string {
	return cache.captureInterface
}

func GetExporterPort() uint16 {
	return cache.exporterPort
}

func GetTunnelBridge() string {
	return cache.ovs.tunnelBridge
}

func GetIntegrationBridge() string {
	return cache.ovs.integrationBridge
}

func GetTunnelPort() string {
	return cache.ovs.tunnelPort
}

func GetVxlanDevice() string {
	return cache.neigh.vxlanDevice
}

func GetNeighBridge() string {
	return cache.neigh.bridgeDevice
}
