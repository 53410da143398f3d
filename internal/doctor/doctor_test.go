package doctor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/scout/internal/config"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestCheckWritableDirCreatesAndAccepts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "recordings")
	check := checkWritableDir(dir, "recordings_dir")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "writable")

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCheckWritableDirEmptyPath(t *testing.T) {
	check := checkWritableDir("  ", "recordings_dir")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "worker_pool.command")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "found at")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "worker_pool.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckBinaryEmpty(t *testing.T) {
	check := checkBinary("", "worker_pool.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "empty")
}

func TestRunSkipsDeviceProbeWhenMonitorNil(t *testing.T) {
	cfg := config.Loaded{
		Path:   "/tmp/scout.jsonc",
		Config: config.Default(),
		Exists: true,
	}
	cfg.Config.RecordingsDir = t.TempDir()
	cfg.Config.WorkerPool.Command = "sh"

	report := Run(cfg, nil)
	for _, check := range report.Checks {
		require.NotEqual(t, "device.probe", check.Name)
	}
	require.True(t, report.OK())
}

func TestRunIncludesConfigWarnings(t *testing.T) {
	cfg := config.Loaded{
		Path:     "/tmp/scout.jsonc",
		Config:   config.Default(),
		Warnings: []config.Warning{{Message: "config file not found; using defaults"}},
	}
	cfg.Config.RecordingsDir = t.TempDir()
	cfg.Config.WorkerPool.Command = "sh"

	report := Run(cfg, nil)
	found := false
	for _, check := range report.Checks {
		if check.Name == "config.warning" {
			found = true
			require.Contains(t, check.Message, "not found")
		}
	}
	require.True(t, found)
}
