// Package app wires the cobra command tree to scout's collaborators:
// config loading, logging, the Session Manager, and the single-instance
// IPC surface a second invocation uses to reach the active owner.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbright/scout/internal/cli"
	"github.com/rbright/scout/internal/config"
	"github.com/rbright/scout/internal/devicemon"
	"github.com/rbright/scout/internal/doctor"
	"github.com/rbright/scout/internal/ipc"
	"github.com/rbright/scout/internal/logging"
	"github.com/rbright/scout/internal/session"
	"github.com/rbright/scout/internal/version"
)

// Runner holds process-level dependencies used by command handlers.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Execute is the package entrypoint used by cmd/scout/main.go.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute builds the cobra command tree and dispatches args through it.
func (r Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCommand("scout", cli.Handlers{
		Start:   r.runStart,
		Stop:    r.runStop,
		Cancel:  r.runCancel,
		Status:  r.runStatus,
		Devices: r.runDevices,
		Doctor:  r.runDoctor,
		Version: r.runVersion,
	})
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func (r Runner) runVersion(_ *cobra.Command, _ string) error {
	fmt.Fprintln(r.Stdout, version.String())
	return nil
}

// runDoctor loads config, probes the device layer, and prints a health report.
func (r Runner) runDoctor(_ *cobra.Command, configPath string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	monitor := devicemon.New()
	report := doctor.Run(loaded, monitor)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return errors.New("doctor checks failed")
	}
	return nil
}

// runDevices prints every discovered input device and its capabilities.
func (r Runner) runDevices(_ *cobra.Command, configPath string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	monitor := devicemon.New()
	all, err := monitor.ProbeAll()
	if err != nil {
		return fmt.Errorf("probe devices: %w", err)
	}
	if len(all) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return nil
	}

	def, defErr := monitor.ProbeDefault()

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		caps := all[name]
		mark := " "
		if defErr == nil && name == def.Name {
			mark = "*"
		}
		fallback := ""
		if name == loaded.Config.Device.Fallback {
			fallback = " (fallback)"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s %s | rates=%v | channels=%v | default=%s@%dHz%s\n",
			mark, name,
			caps.SupportedSampleRates, caps.SupportedChannels,
			caps.DefaultConfig.Format, caps.DefaultConfig.SampleRate,
			fallback,
		)
	}

	return nil
}

// runStatus queries the active owner (if any) and prints session state.
func (r Runner) runStatus(cmd *cobra.Command, _ string) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}

	resp, handled, err := tryForward(cmd.Context(), socketPath, "status")
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}
	if err != nil {
		return err
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return nil
}

func (r Runner) runStop(cmd *cobra.Command, _ string) error {
	return r.forwardOrFail(cmd.Context(), "stop")
}

func (r Runner) runCancel(cmd *cobra.Command, _ string) error {
	return r.forwardOrFail(cmd.Context(), "cancel")
}

// forwardOrFail forwards a command to the active owner and fails when none exists.
func (r Runner) forwardOrFail(ctx context.Context, command string) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		return errors.New("no active scout session")
	}
	if err != nil {
		return err
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

// runStart forwards a toggle to an existing owner, or becomes the owner
// itself: acquiring the runtime socket, building a Session Manager, and
// running one start -> stop|cancel episode to completion.
func (r Runner) runStart(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()

	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range loaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	resp, handled, err := tryForward(ctx, socketPath, "toggle")
	if handled {
		if err != nil {
			return err
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return nil
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			resp, _, forwardErr := tryForward(ctx, socketPath, "toggle")
			if forwardErr != nil {
				return forwardErr
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return nil
		}
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	logRuntime, err := logging.New()
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer func() { _ = logRuntime.Close() }()
	logger := logRuntime.Logger

	monitor := devicemon.New()
	monitor.SetPollInterval(loaded.Config.DeviceMonitor.PollInterval)

	manager := session.NewManager(logger, loaded.Config, monitor, nil, nil, nil)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- ipc.Serve(serverCtx, listener, manager) }()

	result := manager.Run(ctx, loaded.Config.Device.Preferred)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "warning: ipc server: %v\n", serverErr)
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return nil
	}
	if result.Err != nil {
		return result.Err
	}
	if text := strings.TrimSpace(result.Transcript.Text); text != "" {
		fmt.Fprintln(r.Stdout, text)
	}
	return nil
}

// logSessionResult writes normalized session metrics into the runtime logger.
func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"session_id", result.Session.ID,
		"strategy", result.Session.Strategy,
		"transcript_length", len(result.Transcript.Text),
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

// tryForward attempts to send a command to an existing owner and classifies outcome.
//
// handled=false means there was no active owner to handle the request.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

// isSocketMissing reports whether forwarding failed because the owner socket is absent.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

// isConnectionRefused reports whether forwarding failed because no owner is listening.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
