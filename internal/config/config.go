package config

import "time"

// This struct is used to cache agent configuration.
// Most of values are exported shell variables, some are parsed from OS settings.
// They are read once on startup and never reloaded.
type configCache struct {
	authorityURL string
	agentToken   string
	agentName    string
	deviceID     string
	debugLevel   int

	workers uint
	times   struct {
		dwell            time.Duration
		sweep            time.Duration
		websocketTimeout time.Duration
	}

	captureInterface string
	exporterPort     uint16

	programmer int
	ovs        struct {
		tunnelBridge      string
		integrationBridge string
		tunnelPort        string
	}
	neigh struct {
		vxlanDevice  string
		bridgeDevice string
	}
}

var cache configCache
