// Package doctor runs runtime readiness diagnostics for config, devices, and the worker pool.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rbright/scout/internal/config"
	"github.com/rbright/scout/internal/devicemon"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config. The
// monitor is optional; pass nil to skip the live device probe check (used by
// callers that have not yet constructed a device monitor).
func Run(cfg config.Loaded, monitor *devicemon.Monitor) Report {
	checks := []Check{
		{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)},
	}

	for _, warning := range cfg.Warnings {
		checks = append(checks, Check{Name: "config.warning", Pass: true, Message: warning.Message})
	}

	checks = append(checks, checkWritableDir(cfg.Config.RecordingsDir, "recordings_dir"))
	if cfg.Config.ChunkDir != "" {
		checks = append(checks, checkWritableDir(cfg.Config.ChunkDir, "chunk_dir"))
	}

	checks = append(checks, checkBinary(cfg.Config.WorkerPool.Command, "worker_pool.command"))

	if monitor != nil {
		checks = append(checks, checkDeviceProbe(monitor, cfg.Config.Device.Preferred))
	}

	return Report{Checks: checks}
}

// checkWritableDir verifies a directory exists (creating it if missing) and
// accepts a throwaway file.
func checkWritableDir(dir string, name string) Check {
	if strings.TrimSpace(dir) == "" {
		return Check{Name: name, Pass: false, Message: "path is empty"}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}

	probe := filepath.Join(dir, ".scout-doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = os.Remove(probe)

	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is writable", dir)}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, name string) Check {
	if strings.TrimSpace(bin) == "" {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("found at %s", path)}
}

// checkDeviceProbe runs a live capability probe against the default input
// device to surface driver/permission problems early.
func checkDeviceProbe(monitor *devicemon.Monitor, preferred string) Check {
	caps, err := monitor.ProbeDefault()
	if err != nil {
		return Check{Name: "device.probe", Pass: false, Message: err.Error()}
	}

	message := fmt.Sprintf("default device %q: rates=%v channels=%v", caps.Name, caps.SupportedSampleRates, caps.SupportedChannels)
	if preferred != "" && !strings.EqualFold(preferred, caps.Name) {
		message += fmt.Sprintf(" (preferred %q not currently selected)", preferred)
	}
	return Check{Name: "device.probe", Pass: true, Message: message}
}
