package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsPass(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty recordings dir", mutate: func(c *Config) { c.RecordingsDir = "  " }, wantErr: "recordings_dir"},
		{name: "empty device preferred", mutate: func(c *Config) { c.Device.Preferred = "" }, wantErr: "device.preferred"},
		{name: "zero poll interval", mutate: func(c *Config) { c.DeviceMonitor.PollInterval = 0 }, wantErr: "poll_interval_ms"},
		{name: "unknown strategy kind", mutate: func(c *Config) { c.Strategy.Kind = "bogus" }, wantErr: "strategy.kind"},
		{name: "zero chunk duration", mutate: func(c *Config) { c.Strategy.ChunkDuration = 0 }, wantErr: "chunk_duration_ms"},
		{name: "overlap equals chunk duration", mutate: func(c *Config) {
			c.Strategy.Overlap = c.Strategy.ChunkDuration
		}, wantErr: "overlap_ms"},
		{name: "max buffered duration under chunk duration", mutate: func(c *Config) {
			c.Strategy.MaxBufferedDuration = c.Strategy.ChunkDuration / 2
		}, wantErr: "max_buffered_duration_ms"},
		{name: "zero streaming sample rate", mutate: func(c *Config) { c.Strategy.StreamingSampleRate = 0 }, wantErr: "streaming_sample_rate"},
		{name: "unknown worker pool transport", mutate: func(c *Config) { c.WorkerPool.Transport = "carrier-pigeon" }, wantErr: "worker_pool.transport"},
		{name: "empty worker pool command", mutate: func(c *Config) { c.WorkerPool.Command = "" }, wantErr: "worker_pool.command"},
		{name: "zero worker pool size", mutate: func(c *Config) { c.WorkerPool.Size = 0 }, wantErr: "worker_pool.size"},
		{name: "max backoff under initial backoff", mutate: func(c *Config) {
			c.WorkerPool.MaxBackoff = c.WorkerPool.InitialBackoff / 2
		}, wantErr: "max_backoff_ms"},
		{name: "negative max restarts", mutate: func(c *Config) { c.WorkerPool.MaxRestarts = -1 }, wantErr: "max_restarts"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateSocketTransportRequiresMatchingURICounts(t *testing.T) {
	cfg := Default()
	cfg.WorkerPool.Size = 2
	cfg.WorkerPool.Transport = "socket"
	cfg.WorkerPool.PushURIs = []string{"tcp://127.0.0.1:9001"}
	cfg.WorkerPool.PullURIs = []string{"tcp://127.0.0.1:9011", "tcp://127.0.0.1:9012"}
	cfg.WorkerPool.ControlURIs = []string{"tcp://127.0.0.1:9021", "tcp://127.0.0.1:9022"}

	_, err := Validate(cfg)
	require.ErrorContains(t, err, "socket transport requires")
}

func TestValidateSocketTransportAcceptsMatchingURICounts(t *testing.T) {
	cfg := Default()
	cfg.WorkerPool.Size = 2
	cfg.WorkerPool.Transport = "socket"
	cfg.WorkerPool.PushURIs = []string{"tcp://127.0.0.1:9001", "tcp://127.0.0.1:9002"}
	cfg.WorkerPool.PullURIs = []string{"tcp://127.0.0.1:9011", "tcp://127.0.0.1:9012"}
	cfg.WorkerPool.ControlURIs = []string{"tcp://127.0.0.1:9021", "tcp://127.0.0.1:9022"}

	_, err := Validate(cfg)
	require.NoError(t, err)
}
