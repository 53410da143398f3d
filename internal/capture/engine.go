// Package capture opens one input stream at the device's native format,
// archives every sample unmodified to a WAV file, computes a smoothed
// audio level, and fans out converted float32 samples to an optional
// consumer. Modeled on the teacher's Pulse-based Capture (mutex + stopCh +
// WaitGroup shape) but driven by malgo for cross-platform device access.
package capture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/rbright/scout/internal/devicemon"
	"github.com/rbright/scout/internal/types"
	"github.com/rbright/scout/internal/wav"
)

// ErrAlreadyRecording is returned by Start when a recording is already
// in progress; this is an engine-local condition, distinct from the
// Session Manager's SessionBusy tag which covers the whole session.
var ErrAlreadyRecording = errors.New("capture: already recording")

const (
	minRecordingDuration = 300 * time.Millisecond
	paddedDuration       = 500 * time.Millisecond
	stopHandshakeTimeout = 50 * time.Millisecond
	levelGain            = 40.0
	levelSmoothNew       = 0.7
	levelSmoothOld       = 0.3
)

// Consumer receives every converted, mono-or-multichannel float32 sample
// batch as it arrives off the audio callback.
type Consumer func(samples []float32, format types.AudioFormat)

// Info snapshots the device and format an open (or just-closed) session
// is using.
type Info struct {
	DeviceName string
	Format     types.AudioFormat
}

// Engine implements spec.md §4.2.
type Engine struct {
	monitor *devicemon.Monitor

	mu        sync.Mutex
	recording bool

	ctx    *malgo.AllocatedContext
	device *malgo.Device
	writer *wav.Writer

	info          Info
	startedAt     time.Time
	samplesTotal  uint64 // interleaved sample count, all channels
	btLowQuality  bool

	consumer atomic.Pointer[Consumer]
	level    atomic.Value // float64

	stopCh    chan struct{}
	confirmed chan struct{}
	inflight  sync.WaitGroup
}

// New builds an Engine that consults monitor for an emergency probe when
// the Session Manager calls Start without a cached DeviceInfo.
func New(monitor *devicemon.Monitor) *Engine {
	e := &Engine{monitor: monitor}
	e.level.Store(float64(0))
	return e
}

// SetSampleCallback installs or removes the sample consumer. Passing nil
// removes it.
func (e *Engine) SetSampleCallback(cb Consumer) {
	if cb == nil {
		e.consumer.Store(nil)
		return
	}
	e.consumer.Store(&cb)
}

// CurrentDeviceInfo reports the device and format of the active (or most
// recently active) session.
func (e *Engine) CurrentDeviceInfo() Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info
}

// CurrentAudioLevel returns the smoothed RMS level in [0,1].
func (e *Engine) CurrentAudioLevel() float64 {
	return e.level.Load().(float64)
}

// Start opens the input stream at the device's native format and begins
// writing samples to outputPath. It returns once the stream is confirmed
// running. If info is nil, Start performs an emergency probe of the
// default device through the monitor.
func (e *Engine) Start(ctx context.Context, outputPath, deviceName string, info *devicemon.DeviceCapabilities) error {
	e.mu.Lock()
	if e.recording {
		e.mu.Unlock()
		return ErrAlreadyRecording
	}
	e.mu.Unlock()

	if info == nil {
		probed, err := e.monitor.ProbeDefault()
		if err != nil {
			return fmt.Errorf("capture: %w: %v", types.ErrNoDeviceInfo, err)
		}
		info = &probed
		if deviceName == "" {
			deviceName = probed.Name
		}
	}

	format := info.DefaultConfig
	if format.Format == types.SampleFormatU16 {
		return fmt.Errorf("capture: %w: u16 not supported", types.ErrUnsupportedFormat)
	}

	writer, err := wav.Create(outputPath, format.SampleRate, format.Channels, wavFormatKind(format.Format))
	if err != nil {
		return fmt.Errorf("capture: %w: %v", types.ErrFileCreateFailed, err)
	}

	backend, err := backendForPlatform()
	if err != nil {
		writer.Abort() //nolint:errcheck
		return fmt.Errorf("capture: %w: %v", types.ErrStreamOpenFailed, err)
	}

	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		writer.Abort() //nolint:errcheck
		return fmt.Errorf("capture: %w: init context: %v", types.ErrStreamOpenFailed, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = format.SampleRate
	deviceConfig.Capture.Format = malgoFormat(format.Format)

	e.mu.Lock()
	e.stopCh = make(chan struct{})
	e.confirmed = make(chan struct{})
	e.writer = writer
	e.info = Info{DeviceName: deviceName, Format: format}
	e.startedAt = time.Now()
	e.samplesTotal = 0
	e.btLowQuality = isBTLowQuality(deviceName, format.SampleRate)
	e.mu.Unlock()

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: e.onData,
		Stop: e.onStop,
	})
	if err != nil {
		malgoCtx.Uninit() //nolint:errcheck
		writer.Abort()    //nolint:errcheck
		return fmt.Errorf("capture: %w: init device: %v", types.ErrStreamOpenFailed, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit() //nolint:errcheck
		writer.Abort()    //nolint:errcheck
		return fmt.Errorf("capture: %w: start device: %v", types.ErrStreamOpenFailed, err)
	}

	e.mu.Lock()
	e.ctx = malgoCtx
	e.device = device
	e.recording = true
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		_, _ = e.Stop()
	}()

	return nil
}

// Stop halts capture, pads short recordings to 0.5s with silence, and
// finalizes the archival WAV. It returns the amount of silence padding
// applied, in milliseconds, plus whether BT low-quality mode was flagged.
func (e *Engine) Stop() (StopResult, error) {
	return e.halt(false)
}

// Cancel behaves like Stop but deletes the archival file.
func (e *Engine) Cancel() error {
	_, err := e.halt(true)
	return err
}

// StopResult carries the metadata the Session Manager folds into the
// final Transcript record.
type StopResult struct {
	SilencePaddingMS int64
	BTLowQualityMode bool
	SamplesTotal     uint64
	Format           types.AudioFormat
	Duration         time.Duration
}

func (e *Engine) halt(cancel bool) (StopResult, error) {
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return StopResult{}, nil
	}
	e.recording = false
	stopCh := e.stopCh
	writer := e.writer
	device := e.device
	ctx := e.ctx
	format := e.info.Format
	started := e.startedAt
	btLowQuality := e.btLowQuality
	e.mu.Unlock()

	close(stopCh)

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if ctx != nil {
		_ = ctx.Uninit()
	}

	select {
	case <-e.confirmed:
	case <-time.After(stopHandshakeTimeout):
	}

	e.inflight.Wait()
	e.level.Store(float64(0))

	e.mu.Lock()
	samplesTotal := e.samplesTotal
	e.device = nil
	e.ctx = nil
	e.writer = nil
	e.mu.Unlock()

	if cancel {
		if writer != nil {
			if err := writer.Abort(); err != nil {
				return StopResult{}, fmt.Errorf("capture: abort: %w", err)
			}
		}
		return StopResult{}, nil
	}

	duration := time.Since(started)
	var paddingMS int64
	if writer != nil && duration < minRecordingDuration {
		paddingMS = (paddedDuration - duration).Milliseconds()
		if paddingMS < 0 {
			paddingMS = 0
		}
		padSamples := int(paddingMS) * int(format.SampleRate) / 1000 * int(format.Channels)
		if err := writeSilence(writer, format, padSamples); err != nil {
			return StopResult{}, fmt.Errorf("capture: %w: pad silence: %v", types.ErrWriteFailed, err)
		}
		samplesTotal += uint64(padSamples)
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			return StopResult{}, fmt.Errorf("capture: %w: %v", types.ErrFinalizeFailed, err)
		}
	}

	return StopResult{
		SilencePaddingMS: paddingMS,
		BTLowQualityMode: btLowQuality,
		SamplesTotal:     samplesTotal,
		Format:           format,
		Duration:         duration,
	}, nil
}

func writeSilence(w *wav.Writer, format types.AudioFormat, count int) error {
	if count <= 0 {
		return nil
	}
	switch format.Format {
	case types.SampleFormatF32:
		return w.WriteFloat32(make([]float32, count))
	default:
		return w.WriteInt16(make([]int16, count))
	}
}

// onData is the malgo capture callback: it writes raw bytes to the
// archival file unmodified, converts to float32 for the consumer, and
// updates the smoothed level. It performs no suspension.
func (e *Engine) onData(_ []byte, input []byte, frameCount uint32) {
	select {
	case <-e.stopCh:
		return
	default:
	}

	e.mu.Lock()
	writer := e.writer
	format := e.info.Format
	e.mu.Unlock()
	if writer == nil {
		return
	}

	e.inflight.Add(1)
	defer e.inflight.Done()

	samples := int(frameCount) * int(format.Channels)

	switch format.Format {
	case types.SampleFormatF32:
		f32 := bytesToFloat32(input, samples)
		if err := writer.WriteFloat32(f32); err != nil {
			return
		}
		e.publish(f32, format)
	default: // I16
		i16 := bytesToInt16(input, samples)
		if err := writer.WriteInt16(i16); err != nil {
			return
		}
		f32 := make([]float32, len(i16))
		for i, s := range i16 {
			f32[i] = float32(s) / 32768.0
		}
		e.publish(f32, format)
	}

	e.mu.Lock()
	e.samplesTotal += uint64(samples)
	e.mu.Unlock()
}

func (e *Engine) publish(samples []float32, format types.AudioFormat) {
	e.updateLevel(samples)
	if cp := e.consumer.Load(); cp != nil {
		(*cp)(samples, format)
	}
}

func (e *Engine) updateLevel(samples []float32) {
	if len(samples) == 0 {
		return
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSq / float64(len(samples)))
	scaled := rms * levelGain
	if scaled > 1.0 {
		scaled = 1.0
	}
	prev := e.level.Load().(float64)
	e.level.Store(levelSmoothNew*scaled + levelSmoothOld*prev)
}

// onStop fires whenever malgo stops the device, both through halt()'s own
// device.Stop() and on an unexpected stop. It confirms the handshake so
// halt() doesn't have to wait out the full timeout.
func (e *Engine) onStop() {
	select {
	case <-e.confirmed:
	default:
		close(e.confirmed)
	}
}

func bytesToFloat32(b []byte, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n && (i*4+4) <= len(b); i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func bytesToInt16(b []byte, n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n && (i*2+2) <= len(b); i++ {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}

func wavFormatKind(f types.SampleFormat) wav.FormatKind {
	if f == types.SampleFormatF32 {
		return wav.FormatFloat32
	}
	return wav.FormatInt16
}

func malgoFormat(f types.SampleFormat) malgo.FormatType {
	if f == types.SampleFormatF32 {
		return malgo.FormatF32
	}
	return malgo.FormatS16
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	case "windows":
		return malgo.BackendWasapi, nil
	default:
		return malgo.BackendNull, fmt.Errorf("capture: unsupported platform %s", runtime.GOOS)
	}
}

// btLowQualityMarkers are substrings commonly present in Bluetooth HFP/HSP
// "hands-free" profile device names, which force a narrowband codec.
var btLowQualityMarkers = []string{"hands-free", "hfp", "headset", "handsfree"}

func isBTLowQuality(deviceName string, sampleRate uint32) bool {
	lower := strings.ToLower(deviceName)
	marked := false
	for _, m := range btLowQualityMarkers {
		if strings.Contains(lower, m) {
			marked = true
			break
		}
	}
	return marked && sampleRate <= 24000
}
