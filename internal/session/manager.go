// Package session implements the spec.md §4.6 Session Manager: the sole
// component with a public command surface, orchestrating the Device
// Monitor, Capture Engine, Ring Buffer, Strategy Layer, and Worker Pool
// through one start -> stop|cancel episode at a time (spec.md §1
// Non-goals: "a process handles at most one active capture session at a
// time"). Modeled on the teacher's session.Controller: a command channel
// serializing stop/cancel requests against a single synchronous Run, an
// FSM-backed state snapshot safe for concurrent reads, and nil-fallback
// constructor injection for every collaborator so tests never touch real
// hardware or subprocesses.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/scout/internal/capture"
	"github.com/rbright/scout/internal/config"
	"github.com/rbright/scout/internal/devicemon"
	"github.com/rbright/scout/internal/fsm"
	"github.com/rbright/scout/internal/ipc"
	"github.com/rbright/scout/internal/ringbuffer"
	"github.com/rbright/scout/internal/strategy"
	"github.com/rbright/scout/internal/types"
	"github.com/rbright/scout/internal/workerpool"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// CaptureEngine is the subset of *capture.Engine the Session Manager
// drives. Declared here so tests can substitute a fake instead of
// touching real audio hardware.
type CaptureEngine interface {
	Start(ctx context.Context, outputPath, deviceName string, info *devicemon.DeviceCapabilities) error
	Stop() (capture.StopResult, error)
	Cancel() error
	SetSampleCallback(cb capture.Consumer)
}

// WorkerPool is the subset of *workerpool.Pool the Session Manager and
// the strategies it builds need: lifecycle plus the Transcriber contract
// strategy.Strategy implementations dispatch against.
type WorkerPool interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Transcribe(ctx context.Context, chunk types.AudioChunk) (types.Transcript, error)
}

// PoolFactory builds a fresh WorkerPool for one session. Declared as a
// factory, not a shared instance, because each session gets its own
// worker fleet (spec.md §3: "Worker Pool exclusively owns child
// processes; no other component holds process handles").
type PoolFactory func(cfg workerpool.Config) WorkerPool

// DeviceProbe is the subset of *devicemon.Monitor the start sequence
// consults to resolve a device name into capabilities. Declared here so
// tests can substitute a fake instead of touching real audio hardware.
type DeviceProbe interface {
	ProbeDefault() (devicemon.DeviceCapabilities, error)
	ProbeAll() (map[string]devicemon.DeviceCapabilities, error)
}

// AppContext is the best-effort foreground-application probe the start
// sequence consults (spec.md §4.6 step 2). Window management is an
// external collaborator (spec.md §1 Non-goals); the default implementation
// never reports anything, and embedders that want real focus tracking
// inject their own.
type AppContext interface {
	Current() string
}

type noAppContext struct{}

func (noAppContext) Current() string { return "" }

// Result is the complete outcome of one Run invocation.
type Result struct {
	Session    types.RecordingSession
	Transcript types.Transcript
	Cancelled  bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Manager implements spec.md §4.6.
type Manager struct {
	logger      *slog.Logger
	cfg         config.Config
	monitor     *devicemon.Monitor
	probe       DeviceProbe
	newEngine   func() CaptureEngine
	newPool     PoolFactory
	appCtx      AppContext
	broadcaster *broadcaster

	mu    sync.RWMutex
	state fsm.State

	actions chan action

	// active is non-nil only between a successful start() and the
	// matching stop()/cancel(); it holds everything that must be rolled
	// back or torn down together.
	active *activeSession
}

// activeSession bundles the entities created by one start() call.
type activeSession struct {
	id         uuid.UUID
	filename   string
	outputPath string
	device     devicemon.DeviceCapabilities
	appContext string
	startedAt  time.Time

	engine    CaptureEngine
	ringBuf   *ringbuffer.Buffer
	pool      WorkerPool
	strat     strategy.Strategy
	stratKind strategy.Kind
	auto      bool // cfg.Strategy.Kind was "auto"; Classic/Chunked boundary applies at Stop()
}

// NewManager constructs a Session Manager. engineFactory and poolFactory
// may be nil, in which case production collaborators are built from cfg
// (a real capture.Engine backed by monitor, a real workerpool.Pool).
// appCtx may be nil, in which case no foreground-app context is ever
// reported.
func NewManager(
	logger *slog.Logger,
	cfg config.Config,
	monitor *devicemon.Monitor,
	engineFactory func() CaptureEngine,
	poolFactory PoolFactory,
	appCtx AppContext,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if engineFactory == nil {
		engineFactory = func() CaptureEngine { return capture.New(monitor) }
	}
	if poolFactory == nil {
		poolFactory = func(pc workerpool.Config) WorkerPool { return workerpool.New(pc) }
	}
	if appCtx == nil {
		appCtx = noAppContext{}
	}

	return &Manager{
		logger:      logger,
		cfg:         cfg,
		monitor:     monitor,
		probe:       monitor,
		newEngine:   engineFactory,
		newPool:     poolFactory,
		appCtx:      appCtx,
		broadcaster: newBroadcaster(types.IdleProgress()),
		actions:     make(chan action, 1),
		state:       fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (m *Manager) State() fsm.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsRecording reports whether a session is currently capturing audio.
func (m *Manager) IsRecording() bool {
	return m.State() == fsm.StateRecording
}

// GetCurrentSession returns the active session's identity, if any.
func (m *Manager) GetCurrentSession() (types.RecordingSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return types.RecordingSession{}, false
	}
	return types.RecordingSession{
		ID:        m.active.id,
		Filename:  m.active.filename,
		StartedAt: m.active.startedAt,
		Strategy:  string(m.active.stratKind),
		Progress:  m.broadcaster.snapshot(),
	}, true
}

// Subscribe registers a progress listener per spec.md §4.6's "broadcast
// to any number of listeners" contract. The returned channel always
// carries the latest Progress first; call unsubscribe when done.
func (m *Manager) Subscribe() (<-chan types.Progress, func()) {
	return m.broadcaster.subscribe()
}

func (m *Manager) transition(event fsm.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fsm.Transition(m.state, event)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

// Run executes one start -> stop|cancel|failure episode synchronously.
// This is the process entrypoint for the toggle-style command surface:
// spec.md §1 Non-goals limits a process to at most one active session,
// so Run is called exactly once per owning process.
func (m *Manager) Run(ctx context.Context, deviceName string) Result {
	result := Result{StartedAt: time.Now()}

	if err := m.start(ctx, deviceName); err != nil {
		result.Err = err
		result.FinishedAt = time.Now()
		return result
	}

	m.mu.RLock()
	result.Session = types.RecordingSession{
		ID:        m.active.id,
		Filename:  m.active.filename,
		StartedAt: m.active.startedAt,
		Strategy:  string(m.active.stratKind),
	}
	m.mu.RUnlock()

	select {
	case <-ctx.Done():
		m.doCancel(context.Background())
		result.Cancelled = true
		result.FinishedAt = time.Now()
		return result
	case a := <-m.actions:
		switch a {
		case actionCancel:
			m.doCancel(context.Background())
			result.Cancelled = true
			result.FinishedAt = time.Now()
			return result
		case actionStop:
			transcript, err := m.doStop(ctx)
			result.Transcript = transcript
			result.Err = err
			result.FinishedAt = time.Now()
			return result
		default:
			result.Err = fmt.Errorf("session: unknown action %d", a)
			result.FinishedAt = time.Now()
			return result
		}
	}
}

// Handle serves IPC commands for the active owner session.
func (m *Manager) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: string(m.State()), Message: "status"}
	case "toggle", "stop":
		return m.requestStop()
	case "cancel":
		return m.requestCancel()
	default:
		return ipc.Response{OK: false, State: string(m.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (m *Manager) requestStop() ipc.Response {
	state := m.State()
	if state == fsm.StateTranscribing || state == fsm.StateStopping {
		return ipc.Response{OK: false, State: string(state), Error: "already transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}
	select {
	case m.actions <- actionStop:
		return ipc.Response{OK: true, State: string(state), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
}

func (m *Manager) requestCancel() ipc.Response {
	state := m.State()
	if state == fsm.StateTranscribing || state == fsm.StateStopping {
		return ipc.Response{OK: false, State: string(state), Error: "cannot cancel while transcribing"}
	}
	if state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}
	select {
	case m.actions <- actionCancel:
		return ipc.Response{OK: true, State: string(state), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: "cancel already requested"}
	}
}

// start implements spec.md §4.6's numbered start() sequence, rolling
// back any already-created entity in reverse order on failure.
func (m *Manager) start(ctx context.Context, deviceName string) error {
	if m.State() != fsm.StateIdle {
		return types.ErrSessionBusy
	}

	appContext := m.appCtx.Current()

	device, err := m.resolveDevice(deviceName)
	if err != nil {
		return err
	}

	sessionID := uuid.New()
	filename := fmt.Sprintf("recording_%s.wav", sessionID)
	outputPath := filepath.Join(m.cfg.RecordingsDir, filename)

	var rollbacks []func()
	rollback := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	poolCfg := buildWorkerPoolConfig(m.cfg.WorkerPool)
	pool := m.newPool(poolCfg)
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("session: start worker pool: %w", err)
	}
	rollbacks = append(rollbacks, func() { _ = pool.Stop(context.Background()) })

	kind := m.selectStrategyKind()
	stratCfg := buildStrategyConfig(m.cfg.Strategy, m.cfg.ChunkDir)

	var ringBuf *ringbuffer.Buffer
	if kind.RequiresRingBuffer() {
		ringSpec := types.AudioFormat{SampleRate: device.DefaultConfig.SampleRate, Channels: 1, Format: types.SampleFormatF32}
		ringPath := ""
		if m.cfg.ChunkDir != "" {
			ringPath = filepath.Join(m.cfg.ChunkDir, fmt.Sprintf("ring_%s.wav", sessionID))
		}
		ringBuf, err = ringbuffer.New(ringSpec, ringPath)
		if err != nil {
			rollback()
			return fmt.Errorf("session: %w: %v", types.ErrStrategyInitFailed, err)
		}
		rollbacks = append(rollbacks, func() { _ = ringBuf.Clear() })
	}

	strat, err := strategy.New(kind, pool, ringBuf, stratCfg, nil)
	if err != nil {
		m.logger.Warn("strategy init failed, falling back to classic", "error", err, "kind", kind)
		kind = strategy.KindClassic
		strat = strategy.NewClassic(pool, ringBuf)
	}
	if err := strat.Start(ctx); err != nil {
		rollback()
		return fmt.Errorf("session: %w: %v", types.ErrStrategyInitFailed, err)
	}
	rollbacks = append(rollbacks, func() {
		if c, ok := strat.(strategy.Canceller); ok {
			c.Cancel()
		}
	})

	engine := m.newEngine()
	if ringBuf != nil {
		engine.SetSampleCallback(func(samples []float32, format types.AudioFormat) {
			mono := strategy.ChannelsToMono(samples, format.Channels)
			_ = ringBuf.AddSamples(mono)
		})
	} else if feeder, ok := strat.(strategy.SampleFeeder); ok {
		resampler := strategy.NewResampler(device.DefaultConfig.SampleRate, stratCfg.StreamingSampleRate)
		engine.SetSampleCallback(func(samples []float32, format types.AudioFormat) {
			mono := strategy.ChannelsToMono(samples, format.Channels)
			feeder.FeedSamples(resampler.Resample(mono))
		})
	}
	rollbacks = append(rollbacks, func() { engine.SetSampleCallback(nil) })

	if err := engine.Start(ctx, outputPath, device.Name, &device); err != nil {
		rollback()
		return err
	}
	rollbacks = append(rollbacks, func() { _ = engine.Cancel() })

	m.mu.Lock()
	if _, transErr := fsm.Transition(m.state, fsm.EventStart); transErr != nil {
		m.mu.Unlock()
		rollback()
		return transErr
	}
	m.state = fsm.StateRecording
	m.active = &activeSession{
		id:         sessionID,
		filename:   filename,
		outputPath: outputPath,
		device:     device,
		appContext: appContext,
		startedAt:  time.Now(),
		engine:     engine,
		ringBuf:    ringBuf,
		pool:       pool,
		strat:      strat,
		stratKind:  kind,
		auto:       m.cfg.Strategy.Kind == "" || m.cfg.Strategy.Kind == "auto",
	}
	m.mu.Unlock()

	m.broadcaster.publish(types.RecordingProgress(sessionID, filename, time.Now().UnixMilli()))
	return nil
}

// resolveDevice looks up capability info for deviceName (or the current
// default when deviceName is empty), surfacing spec.md §7's
// DeviceNotFound tag when an explicitly named device is absent.
func (m *Manager) resolveDevice(deviceName string) (devicemon.DeviceCapabilities, error) {
	if deviceName == "" {
		caps, err := m.probe.ProbeDefault()
		if err != nil {
			return devicemon.DeviceCapabilities{}, fmt.Errorf("session: %w: %v", types.ErrNoDeviceInfo, err)
		}
		return caps, nil
	}

	all, err := m.probe.ProbeAll()
	if err != nil {
		return devicemon.DeviceCapabilities{}, fmt.Errorf("session: %w: %v", types.ErrNoDeviceInfo, err)
	}
	caps, ok := all[deviceName]
	if !ok {
		return devicemon.DeviceCapabilities{}, fmt.Errorf("session: %w: %q", types.ErrDeviceNotFound, deviceName)
	}
	return caps, nil
}

// selectStrategyKind resolves "auto" to ring-buffer-chunked: the actual
// classic/chunked decision for "auto" happens at Stop(), per the
// ClassicMaxDuration comment on config.StrategyConfig.
func (m *Manager) selectStrategyKind() strategy.Kind {
	switch m.cfg.Strategy.Kind {
	case "classic":
		return strategy.KindClassic
	case "native_streaming":
		return strategy.KindNativeStreaming
	case "ring_buffer_chunked":
		return strategy.KindRingBufferChunked
	default:
		return strategy.KindRingBufferChunked
	}
}

// doStop implements spec.md §4.6's stop() sequence.
func (m *Manager) doStop(ctx context.Context) (types.Transcript, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == nil {
		return types.Transcript{}, types.ErrSessionNotActive
	}

	if err := m.transition(fsm.EventStop); err != nil {
		return types.Transcript{}, err
	}
	m.broadcaster.publish(types.StoppingProgress(active.id, active.filename))

	active.engine.SetSampleCallback(nil)
	capResult, capErr := active.engine.Stop()
	if active.ringBuf != nil {
		_ = active.ringBuf.Finalize()
	}

	if err := m.transition(fsm.EventFinalize); err != nil {
		m.failSession(active, types.CodeFor(err), err.Error())
		return types.Transcript{}, err
	}
	m.broadcaster.publish(types.TranscribingProgress(active.id))

	if capErr != nil {
		m.failSession(active, types.CodeFor(capErr), capErr.Error())
		return types.Transcript{}, capErr
	}

	finishCtx, cancelFinish := context.WithTimeout(ctx, 45*time.Second)
	stratResult, err := active.strat.Finish(finishCtx)
	timedOut := errors.Is(finishCtx.Err(), context.DeadlineExceeded)
	cancelFinish()

	usedFallback := false
	if err != nil || timedOut {
		fallbackResult, fallbackErr := m.fallbackToClassic(active)
		if fallbackErr != nil {
			m.failSession(active, types.CodeFor(fallbackErr), fallbackErr.Error())
			_ = active.pool.Stop(context.Background())
			return types.Transcript{}, fallbackErr
		}
		stratResult = fallbackResult
		usedFallback = true
	}

	_ = active.pool.Stop(context.Background())

	classicBoundary := m.cfg.Strategy.ClassicMaxDuration
	strategyName := stratResult.StrategyName
	if active.auto && active.stratKind == strategy.KindRingBufferChunked && !usedFallback && classicBoundary > 0 && capResult.Duration <= classicBoundary {
		strategyName = "classic"
	}

	transcript := buildTranscript(active, capResult, stratResult, strategyName, usedFallback)

	if err := m.transition(fsm.EventTranscribed); err != nil {
		return transcript, err
	}

	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()

	m.broadcaster.publish(types.CompletedProgress(active.id, transcript))
	return transcript, nil
}

// fallbackToClassic queues the ring buffer's resident audio to the
// Worker Pool via Classic, per spec.md §4.6 step 7 / §7's StrategyLayer
// WorkerTimeout/WorkerCrash fallback.
func (m *Manager) fallbackToClassic(active *activeSession) (strategy.Result, error) {
	if active.ringBuf == nil {
		return strategy.Result{}, errors.New("session: no ring buffer available for classic fallback")
	}
	classic := strategy.NewClassic(active.pool, active.ringBuf)
	if err := classic.Start(context.Background()); err != nil {
		return strategy.Result{}, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	result, err := classic.Finish(ctx)
	if err != nil {
		return strategy.Result{}, err
	}
	result.FallbackUsed = true
	return result, nil
}

// failSession transitions to Error and back to Idle, publishing Failed.
func (m *Manager) failSession(active *activeSession, code, message string) {
	m.mu.Lock()
	if next, err := fsm.Transition(m.state, fsm.EventFail); err == nil {
		m.state = next
	}
	if next, err := fsm.Transition(m.state, fsm.EventReset); err == nil {
		m.state = next
	}
	m.active = nil
	m.mu.Unlock()
	if active != nil {
		_ = active.pool.Stop(context.Background())
	}
	m.broadcaster.publish(types.FailedProgress(active.id, code, message))
}

// doCancel implements spec.md §4.6 cancel(): best-effort teardown, no
// Completed event ever follows.
func (m *Manager) doCancel(ctx context.Context) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active == nil {
		return
	}

	active.engine.SetSampleCallback(nil)
	_ = active.engine.Cancel()

	if canceller, ok := active.strat.(strategy.Canceller); ok {
		canceller.Cancel()
	}
	if active.ringBuf != nil {
		_ = active.ringBuf.Clear()
	}
	_ = active.pool.Stop(ctx)

	m.mu.Lock()
	_, _ = fsm.Transition(m.state, fsm.EventCancel)
	m.state = fsm.StateIdle
	m.active = nil
	m.mu.Unlock()

	m.broadcaster.publish(types.IdleProgress())
}

// buildTranscript assembles the Transcript record the spec.md §4.6 stop
// sequence describes, folding capture/strategy bookkeeping into metadata.
func buildTranscript(active *activeSession, capResult capture.StopResult, stratResult strategy.Result, strategyName string, usedFallback bool) types.Transcript {
	realTimeFactor := 0.0
	if capResult.Duration > 0 {
		realTimeFactor = float64(stratResult.ProcessingTimeMS) / 1000 / capResult.Duration.Seconds()
	}

	extra := map[string]string{
		"strategy":          strategyName,
		"chunks_processed":  strconv.Itoa(stratResult.ChunksProcessed),
		"processing_type":   string(active.stratKind),
		"original_text":     stratResult.Text,
		"device":            active.device.Name,
		"sample_rate":       strconv.FormatUint(uint64(capResult.Format.SampleRate), 10),
		"channels":          strconv.Itoa(int(capResult.Format.Channels)),
		"real_time_factor":  strconv.FormatFloat(realTimeFactor, 'f', 4, 64),
		"app_context":       active.appContext,
		"fallback_used":     strconv.FormatBool(usedFallback),
	}

	return types.Transcript{
		ID:         active.id,
		Text:       stratResult.Text,
		Confidence: 0.0, // spec.md §9: the stdio worker shape produces no confidence score.
		Timestamp:  time.Now(),
		Metadata: types.TranscriptMetadata{
			ProcessingTimeMS: stratResult.ProcessingTimeMS,
			Extra:            extra,
		},
	}
}

func buildWorkerPoolConfig(c config.WorkerPoolConfig) workerpool.Config {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		env = append(env, k+"="+v)
	}
	return workerpool.Config{
		Size:              c.Size,
		Command:           c.Command,
		Args:              c.Args,
		Dir:               c.WorkDir,
		Env:               env,
		Transport:         workerpool.Transport(c.Transport),
		PushURIs:          c.PushURIs,
		PullURIs:          c.PullURIs,
		ControlURIs:       c.ControlURIs,
		ModelName:         c.Model,
		LogLevel:          c.LogLevel,
		HeartbeatInterval: c.HeartbeatInterval,
		ResponseTimeout:   c.ResponseTimeout,
		InitialBackoff:    c.InitialBackoff,
		MaxBackoff:        c.MaxBackoff,
		MaxRestarts:       c.MaxRestarts,
	}
}

func buildStrategyConfig(c config.StrategyConfig, chunkDir string) strategy.Config {
	return strategy.Config{
		ChunkDuration:       c.ChunkDuration,
		Overlap:             c.Overlap,
		MinChunk:            c.MinChunk,
		MaxBufferedDuration: c.MaxBufferedDuration,
		ChunkTimeout:        c.ChunkTimeout,
		StreamingSampleRate: c.StreamingSampleRate,
		ChunkDir:            chunkDir,
	}
}
