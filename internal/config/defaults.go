package config

import "time"

// Default returns the canonical runtime configuration used when no file is
// present, matching the defaults spec.md §4.1/§4.4/§4.5 list.
func Default() Config {
	return Config{
		RecordingsDir: defaultRecordingsDir(),
		ChunkDir:      defaultChunkDir(),
		Device: DeviceConfig{
			Preferred: "default",
			Fallback:  "default",
		},
		DeviceMonitor: DeviceMonitorConfig{
			PollInterval: 2 * time.Second,
		},
		Strategy: StrategyConfig{
			Kind:                "auto",
			ChunkDuration:       5 * time.Second,
			Overlap:             0,
			MinChunk:            2 * time.Second,
			MaxBufferedDuration: 12 * time.Second,
			ChunkTimeout:        45 * time.Second,
			ClassicMaxDuration:  5 * time.Second,
			StreamingSampleRate: 16000,
		},
		WorkerPool: WorkerPoolConfig{
			Size:              2,
			Transport:         "stdio",
			Command:           "scout-worker",
			HeartbeatInterval: 30 * time.Second,
			ResponseTimeout:   30 * time.Second,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        60 * time.Second,
			MaxRestarts:       10,
		},
		Debug: DebugConfig{},
	}
}
