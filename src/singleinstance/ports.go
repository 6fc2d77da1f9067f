package singleinstance

import (
	"os"
	"strconv"
)

const (
	defaultPortStart = 49600
	defaultPortEnd   = 49610

	PortStartEnvVar = "SCREEN_WATCH_PORT_START"
	PortEndEnvVar   = "SCREEN_WATCH_PORT_END"
)

// getPortRange returns the inclusive TCP port range, overridable through
// PortStartEnvVar and PortEndEnvVar. Invalid values fall back to defaults
// and the result is clamped to [1024, 65535].
func getPortRange() (int, int) {
	start := envInt(PortStartEnvVar, defaultPortStart)
	end := envInt(PortEndEnvVar, defaultPortEnd)
	if start < 1024 {
		start = 1024
	}
	if end > 65535 {
		end = 65535
	}
	if end < start {
		start, end = end, start
	}
	return start, end
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
