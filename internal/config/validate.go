package config

import (
	"fmt"
	"strings"
)

var validStrategyKinds = map[string]struct{}{
	"auto":                {},
	"classic":             {},
	"ring_buffer_chunked": {},
	"native_streaming":    {},
}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.RecordingsDir) == "" {
		return nil, fmt.Errorf("recordings_dir must not be empty")
	}
	if strings.TrimSpace(cfg.Device.Preferred) == "" {
		return nil, fmt.Errorf("device.preferred must not be empty")
	}
	if cfg.DeviceMonitor.PollInterval <= 0 {
		return nil, fmt.Errorf("device_monitor.poll_interval_ms must be > 0")
	}

	kind := strings.TrimSpace(cfg.Strategy.Kind)
	if _, ok := validStrategyKinds[kind]; !ok {
		return nil, fmt.Errorf("strategy.kind must be one of: auto, classic, ring_buffer_chunked, native_streaming")
	}
	if cfg.Strategy.ChunkDuration <= 0 {
		return nil, fmt.Errorf("strategy.chunk_duration_ms must be > 0")
	}
	if cfg.Strategy.Overlap < 0 {
		return nil, fmt.Errorf("strategy.overlap_ms must be >= 0")
	}
	if cfg.Strategy.Overlap >= cfg.Strategy.ChunkDuration {
		return nil, fmt.Errorf("strategy.overlap_ms must be less than strategy.chunk_duration_ms")
	}
	if cfg.Strategy.MinChunk <= 0 {
		return nil, fmt.Errorf("strategy.min_chunk_ms must be > 0")
	}
	if cfg.Strategy.MaxBufferedDuration < cfg.Strategy.ChunkDuration {
		return nil, fmt.Errorf("strategy.max_buffered_duration_ms must be >= strategy.chunk_duration_ms")
	}
	if cfg.Strategy.ChunkTimeout <= 0 {
		return nil, fmt.Errorf("strategy.chunk_timeout_ms must be > 0")
	}
	if cfg.Strategy.ClassicMaxDuration < 0 {
		return nil, fmt.Errorf("strategy.classic_max_duration_ms must be >= 0")
	}
	if cfg.Strategy.StreamingSampleRate == 0 {
		return nil, fmt.Errorf("strategy.streaming_sample_rate must be > 0")
	}

	transport := strings.TrimSpace(cfg.WorkerPool.Transport)
	if transport != "stdio" && transport != "socket" {
		return nil, fmt.Errorf("worker_pool.transport must be one of: stdio, socket")
	}
	if cfg.WorkerPool.Size <= 0 {
		return nil, fmt.Errorf("worker_pool.size must be > 0")
	}
	if strings.TrimSpace(cfg.WorkerPool.Command) == "" {
		return nil, fmt.Errorf("worker_pool.command must not be empty")
	}
	if transport == "socket" {
		if len(cfg.WorkerPool.PushURIs) != cfg.WorkerPool.Size ||
			len(cfg.WorkerPool.PullURIs) != cfg.WorkerPool.Size ||
			len(cfg.WorkerPool.ControlURIs) != cfg.WorkerPool.Size {
			return nil, fmt.Errorf("worker_pool socket transport requires push_uris/pull_uris/control_uris, one per worker_pool.size")
		}
	}
	if cfg.WorkerPool.HeartbeatInterval <= 0 {
		return nil, fmt.Errorf("worker_pool.heartbeat_interval_ms must be > 0")
	}
	if cfg.WorkerPool.ResponseTimeout <= 0 {
		return nil, fmt.Errorf("worker_pool.response_timeout_ms must be > 0")
	}
	if cfg.WorkerPool.InitialBackoff <= 0 {
		return nil, fmt.Errorf("worker_pool.initial_backoff_ms must be > 0")
	}
	if cfg.WorkerPool.MaxBackoff < cfg.WorkerPool.InitialBackoff {
		return nil, fmt.Errorf("worker_pool.max_backoff_ms must be >= worker_pool.initial_backoff_ms")
	}
	if cfg.WorkerPool.MaxRestarts < 0 {
		return nil, fmt.Errorf("worker_pool.max_restarts must be >= 0")
	}

	return warnings, nil
}
