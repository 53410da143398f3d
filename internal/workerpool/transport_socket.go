package workerpool

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rbright/scout/internal/types"
)

// socketTransport implements Transport B (spec.md §6) in client mode: the
// pool dials the worker's push/pull/control TCP endpoints rather than
// binding them. Server mode (one worker per pool, workers dial the pool)
// is not implemented — see DESIGN.md.
type socketTransport struct {
	push, pull, control net.Conn

	mu sync.Mutex
}

func newSocketTransport(pushURI, pullURI, controlURI string, dialTimeout time.Duration) (*socketTransport, error) {
	push, err := dialURI(pushURI, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("workerpool: dial push endpoint: %w", err)
	}
	pull, err := dialURI(pullURI, dialTimeout)
	if err != nil {
		push.Close() //nolint:errcheck
		return nil, fmt.Errorf("workerpool: dial pull endpoint: %w", err)
	}
	var control net.Conn
	if controlURI != "" {
		control, err = dialURI(controlURI, dialTimeout)
		if err != nil {
			push.Close() //nolint:errcheck
			pull.Close() //nolint:errcheck
			return nil, fmt.Errorf("workerpool: dial control endpoint: %w", err)
		}
	}
	return &socketTransport{push: push, pull: pull, control: control}, nil
}

// dialURI accepts the spec's `tcp://host:port` endpoint form.
func dialURI(uri string, timeout time.Duration) (net.Conn, error) {
	addr := strings.TrimPrefix(uri, "tcp://")
	return net.DialTimeout("tcp", addr, timeout)
}

func (t *socketTransport) transcribe(ctx context.Context, chunk types.AudioChunk) (types.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	env := types.WireEnvelope{Type: types.WireTypeChunk, Chunk: wireChunk(chunk)}
	if err := writeFrame(t.push, env); err != nil {
		return types.Transcript{}, fmt.Errorf("workerpool: push chunk: %w", err)
	}

	resp, err := readFrameCtx(ctx, t.pull)
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

// heartbeat reads one status frame off the control endpoint. Real worker
// status pushes arrive asynchronously; this best-effort read just confirms
// the control connection is still alive for the pool's own probe.
func (t *socketTransport) heartbeat(ctx context.Context) error {
	if t.control == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := readFrameCtx(ctx, t.control)
	return err
}

func readFrameCtx(ctx context.Context, conn net.Conn) (types.WireEnvelope, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	return readFrame(conn)
}

func (t *socketTransport) close() error {
	_ = t.push.Close()
	_ = t.pull.Close()
	if t.control != nil {
		_ = t.control.Close()
	}
	return nil
}
