package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidJSONCConfig(t *testing.T) {
	input := `
{
  // local endpoints
  "recordings_dir": "/var/scout/recordings",
  "device": {
    "preferred": "Elgato Wave"
  },
  "strategy": {
    "kind": "ring_buffer_chunked",
    "chunk_duration_ms": 4000
  },
  "worker_pool": {
    "size": 3,
    "command": "/usr/bin/asr-worker",
    "env": { "MODEL_PATH": "/models/base" },
  },
}
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Equal(t, "/var/scout/recordings", cfg.RecordingsDir)
	require.Equal(t, "Elgato Wave", cfg.Device.Preferred)
	require.Equal(t, "ring_buffer_chunked", cfg.Strategy.Kind)
	require.Equal(t, 4000*1_000_000, int(cfg.Strategy.ChunkDuration))
	require.Equal(t, 3, cfg.WorkerPool.Size)
	require.Equal(t, "/usr/bin/asr-worker", cfg.WorkerPool.Command)
	require.Equal(t, "/models/base", cfg.WorkerPool.Env["MODEL_PATH"])
	require.Empty(t, warnings)
}

func TestParseJSONCUnknownKeyFails(t *testing.T) {
	_, _, err := Parse(`{"foo": {"bar": 1}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCLineNumberOnError(t *testing.T) {
	_, _, err := Parse(`
{
  "device": {
    "preferred": "USB"
    "fallback": "default"
  }
}
`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
}

func TestParseEmptyContentUsesBase(t *testing.T) {
	cfg, warnings, err := Parse("   \n", Default())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Empty(t, warnings)
}

func TestParseSocketWorkerPoolURIs(t *testing.T) {
	cfg, _, err := Parse(`
{
  "worker_pool": {
    "size": 2,
    "transport": "socket",
    "command": "/usr/bin/asr-worker",
    "push_uris": ["tcp://127.0.0.1:9001", "tcp://127.0.0.1:9002"],
    "pull_uris": ["tcp://127.0.0.1:9011", "tcp://127.0.0.1:9012"],
    "control_uris": ["tcp://127.0.0.1:9021", "tcp://127.0.0.1:9022"]
  }
}
`, Default())
	require.NoError(t, err)
	require.Equal(t, "socket", cfg.WorkerPool.Transport)
	require.Len(t, cfg.WorkerPool.PushURIs, 2)
	require.Equal(t, "tcp://127.0.0.1:9001", cfg.WorkerPool.PushURIs[0])
}

func TestParseStrategyKindRejectedWhenInvalid(t *testing.T) {
	_, _, err := Parse(`{"strategy":{"kind":"bogus"}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "strategy.kind")
}

func TestParseArgsCommaDelimitedString(t *testing.T) {
	cfg, _, err := Parse(`{"worker_pool":{"args":"--model, base, --threads, 4"}}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"--model", "base", "--threads", "4"}, cfg.WorkerPool.Args)
}

func TestParseDebugChunkDump(t *testing.T) {
	cfg, _, err := Parse(`{"debug":{"chunk_dump":true}}`, Default())
	require.NoError(t, err)
	require.True(t, cfg.Debug.EnableChunkDump)
}

var _ = strings.TrimSpace
