// Package workerpool manages the out-of-process inference workers described
// in spec.md §4.5: lifecycle, round-robin dispatch, heartbeat/timeout-driven
// restarts with exponential backoff, and the shared message tracker.
package workerpool

import "time"

// Transport selects which wire shape a worker speaks.
type Transport string

const (
	// TransportStdio frames requests/responses as length-prefixed MessagePack
	// over the child process's stdin/stdout (spec.md §6 Transport A).
	TransportStdio Transport = "stdio"
	// TransportSocket speaks push/pull/control TCP endpoints (spec.md §6
	// Transport B). Only client mode (pool dials the worker) is implemented;
	// server mode is not (see DESIGN.md).
	TransportSocket Transport = "socket"
)

// Config configures one pool of identical workers.
type Config struct {
	Size    int
	Command string
	Args    []string
	Dir     string
	Env     []string

	Transport Transport

	// Socket transport endpoints, one set of URIs per worker (index i uses
	// PushURIs[i] etc). Ignored for stdio.
	PushURIs    []string
	PullURIs    []string
	ControlURIs []string

	ModelName string
	LogLevel  string

	HeartbeatInterval time.Duration
	ResponseTimeout   time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxRestarts       int
}

// DefaultConfig returns the spec's default timing knobs (spec.md §4.5, §5).
func DefaultConfig() Config {
	return Config{
		Size:              2,
		Transport:         TransportStdio,
		HeartbeatInterval: 30 * time.Second,
		ResponseTimeout:   30 * time.Second,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		MaxRestarts:       10,
	}
}
