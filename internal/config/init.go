package config

import (
	"os"
	"strings"

	"github.com/pkommoju/alcor-control-agent/internal/logger"
)

const maxPort = 65535

func Init() {
	var tmpval uint

	initString(&cache.authorityURL, "ACA_AUTHORITY_URL", "ws://localhost:9090/on-demand")
	initString(&cache.agentToken, "ACA_AGENT_TOKEN", "")
	initAgentName()
	initDeviceID()

	cache.debugLevel = logger.ParseLevel(os.Getenv("ACA_LOG_LEVEL"))

	// 0 lets the engine size its pool by CPU count
	initUint(&cache.workers, "ACA_WORKERS", 0)

	initSeconds(&cache.times.dwell, "ACA_DWELL_TIME", 10, 1, 3600)
	initSeconds(&cache.times.sweep, "ACA_SWEEP_INTERVAL", 5, 1, 3600)
	// Sweeping less often than dwell time would keep stale requests twice as long
	if cache.times.sweep > cache.times.dwell {
		cache.times.sweep = cache.times.dwell
	}
	initSeconds(&cache.times.websocketTimeout, "ACA_WSS_TIMEOUT", 10, 1, 300)

	initString(&cache.captureInterface, "ACA_CAPTURE_INTERFACE", "")
	initUint(&tmpval, "ACA_EXPORTER_PORT", 0)
	if tmpval > maxPort {
		tmpval = 0
	}
	cache.exporterPort = uint16(tmpval)

	initProgrammer()
	initString(&cache.ovs.tunnelBridge, "ACA_TUNNEL_BRIDGE", "br-tun")
	initString(&cache.ovs.integrationBridge, "ACA_INTEGRATION_BRIDGE", "br-int")
	initString(&cache.ovs.tunnelPort, "ACA_TUNNEL_PORT", "vxlan-generic")
	initString(&cache.neigh.vxlanDevice, "ACA_VXLAN_DEVICE", "vxlan0")
	initString(&cache.neigh.bridgeDevice, "ACA_NEIGH_BRIDGE", "br0")
}

func Close() {
	// Anything needed to be closed or destroyed at the end of program, goes here
}

func initAgentName() {
	var err error
	cache.agentName = os.Getenv("ACA_AGENT_NAME")

	if cache.agentName != "" {
		return
	}

	// Fallback to hostname, if shell variable `ACA_AGENT_NAME` is missing
	cache.agentName, err = os.Hostname()
	if err != nil {
		cache.agentName = "UnknownAlcorAgent"
	}
}

func initProgrammer() {
	switch strings.ToLower(os.Getenv("ACA_PROGRAMMER")) {
	case "neigh", "netlink":
		cache.programmer = ProgrammerNeigh
	case "none", "null", "dry-run":
		cache.programmer = ProgrammerNone
	default:
		cache.programmer = ProgrammerOVS
	}
}
