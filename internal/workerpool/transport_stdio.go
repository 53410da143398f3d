package workerpool

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/scout/internal/types"
)

// stdioTransport implements Transport A (spec.md §6): length-prefixed
// MessagePack frames over the child process's stdin/stdout.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu sync.Mutex // serializes the one in-flight exchange per worker
}

func newStdioTransport(workerID uuid.UUID, cfg Config) (*stdioTransport, error) {
	args := append([]string{}, cfg.Args...)
	args = append(args,
		"--worker-id", workerID.String(),
		"--model", cfg.ModelName,
		"--log-level", cfg.LogLevel,
	)
	cmd := exec.Command(cfg.Command, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("workerpool: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("workerpool: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("workerpool: start worker process: %w", err)
	}

	return &stdioTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (t *stdioTransport) transcribe(ctx context.Context, chunk types.AudioChunk) (types.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	env := types.WireEnvelope{Type: types.WireTypeChunk, Chunk: wireChunk(chunk)}
	if err := writeFrame(t.stdin, env); err != nil {
		return types.Transcript{}, fmt.Errorf("workerpool: write chunk frame: %w", err)
	}

	resp, err := t.readFrameWithContext(ctx)
	if err != nil {
		return types.Transcript{}, err
	}

	switch resp.Type {
	case types.WireTypeTranscript:
		return fromWireTranscript(resp.Transcript), nil
	case types.WireTypeError:
		return types.Transcript{}, fromWireError(resp.Error)
	default:
		return types.Transcript{}, fmt.Errorf("workerpool: unexpected frame type %q", resp.Type)
	}
}

func (t *stdioTransport) heartbeat(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	env := types.WireEnvelope{Type: types.WireTypeStatus, Status: &types.WireWorkerStatus{
		Healthy:   true,
		Timestamp: types.NowMillis(time.Now()),
	}}
	if err := writeFrame(t.stdin, env); err != nil {
		return fmt.Errorf("workerpool: write heartbeat frame: %w", err)
	}
	_, err := t.readFrameWithContext(ctx)
	return err
}

// readFrameWithContext reads one frame, respecting ctx cancellation by
// racing the blocking read against ctx.Done. The read itself cannot be
// interrupted mid-syscall, so on timeout the transport is considered
// wedged and close() is expected to follow (the pool restarts the worker).
func (t *stdioTransport) readFrameWithContext(ctx context.Context) (types.WireEnvelope, error) {
	type result struct {
		env types.WireEnvelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		env, err := readFrame(t.stdout)
		ch <- result{env, err}
	}()

	select {
	case <-ctx.Done():
		return types.WireEnvelope{}, ctx.Err()
	case r := <-ch:
		return r.env, r.err
	}
}

func (t *stdioTransport) close() error {
	_ = t.stdin.Close()
	_ = t.stdout.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
