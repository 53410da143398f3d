// Package devicemon enumerates audio input devices and watches for
// connect/disconnect/default-change/capability-change events, caching
// probe results the way the Capture Engine expects a fresh DeviceInfo to
// already be on hand before it opens a stream.
package devicemon

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/rbright/scout/internal/types"
)

const (
	cacheTTL            = 30 * time.Second
	cacheCleanupInterval = time.Minute
	defaultPollInterval  = 2 * time.Second

	cacheKeyAll     = "all"
	cacheKeyDefault = "default"
)

// DeviceCapabilities is the normalized capability set the Session Manager
// and Capture Engine consult before opening a stream.
type DeviceCapabilities struct {
	Name                  string
	SupportedSampleRates  []uint32
	SupportedChannels     []uint16
	SupportedSampleFormats []types.SampleFormat
	DefaultConfig         types.AudioFormat
}

// normalized returns a copy with every slice sorted, so structural
// equality comparisons in diff() are order-independent.
func (c DeviceCapabilities) normalized() DeviceCapabilities {
	rates := append([]uint32(nil), c.SupportedSampleRates...)
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	chans := append([]uint16(nil), c.SupportedChannels...)
	sort.Slice(chans, func(i, j int) bool { return chans[i] < chans[j] })
	formats := append([]types.SampleFormat(nil), c.SupportedSampleFormats...)
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return DeviceCapabilities{
		Name:                  c.Name,
		SupportedSampleRates:  rates,
		SupportedChannels:     chans,
		SupportedSampleFormats: formats,
		DefaultConfig:         c.DefaultConfig,
	}
}

func (c DeviceCapabilities) equal(o DeviceCapabilities) bool {
	a, b := c.normalized(), o.normalized()
	if a.DefaultConfig != b.DefaultConfig {
		return false
	}
	if !equalU32(a.SupportedSampleRates, b.SupportedSampleRates) {
		return false
	}
	if !equalU16(a.SupportedChannels, b.SupportedChannels) {
		return false
	}
	if len(a.SupportedSampleFormats) != len(b.SupportedSampleFormats) {
		return false
	}
	for i := range a.SupportedSampleFormats {
		if a.SupportedSampleFormats[i] != b.SupportedSampleFormats[i] {
			return false
		}
	}
	return true
}

func equalU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalU16(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EventKind tags the kind of divergence force_check/the poll loop found.
type EventKind string

const (
	DeviceConnected           EventKind = "device_connected"
	DeviceDisconnected        EventKind = "device_disconnected"
	DefaultDeviceChanged      EventKind = "default_device_changed"
	DeviceCapabilitiesChanged EventKind = "device_capabilities_changed"
)

// Event is delivered to the single registered listener, one per change.
type Event struct {
	Kind       EventKind
	DeviceName string
	Old        *DeviceCapabilities
	New        *DeviceCapabilities
}

// Listener receives device events from the background poll loop or from
// force_check. Exactly one listener may be registered at a time.
type Listener func(Event)

// probeFunc abstracts device enumeration so tests can inject a fake
// backend instead of touching real hardware.
type probeFunc func() (all map[string]DeviceCapabilities, defaultName string, err error)

// Monitor implements spec.md §4.1: cached probing plus background polling
// for device topology changes.
type Monitor struct {
	mu           sync.Mutex
	cache        *cache.Cache
	probe        probeFunc
	pollInterval time.Duration

	listener Listener
	cancel   context.CancelFunc
	done     chan struct{}

	lastAll     map[string]DeviceCapabilities
	lastDefault string
}

// New builds a Monitor backed by real malgo device enumeration.
func New() *Monitor {
	return newWithProbe(probeMalgo)
}

func newWithProbe(p probeFunc) *Monitor {
	return &Monitor{
		cache:        cache.New(cacheTTL, cacheCleanupInterval),
		probe:        p,
		pollInterval: defaultPollInterval,
	}
}

// SetPollInterval overrides the background poll cadence; must be called
// before Watch.
func (m *Monitor) SetPollInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollInterval = d
}

// ProbeDefault returns the default device's capabilities, using the cache
// when fresh.
func (m *Monitor) ProbeDefault() (DeviceCapabilities, error) {
	if cached, ok := m.cache.Get(cacheKeyDefault); ok {
		return cached.(DeviceCapabilities), nil
	}
	all, defaultName, err := m.probeLocked()
	if err != nil {
		return DeviceCapabilities{}, err
	}
	caps, ok := all[defaultName]
	if !ok {
		return DeviceCapabilities{}, fmt.Errorf("devicemon: %w: no default device", types.ErrDeviceNotFound)
	}
	return caps, nil
}

// ProbeAll returns every known device's capabilities, using the cache
// when fresh.
func (m *Monitor) ProbeAll() (map[string]DeviceCapabilities, error) {
	if cached, ok := m.cache.Get(cacheKeyAll); ok {
		return cached.(map[string]DeviceCapabilities), nil
	}
	all, _, err := m.probeLocked()
	return all, err
}

// probeLocked calls the backend and refreshes the cache. On cache lock
// contention callers still get a direct probe — there's no separate lock
// path here since go-cache's own locking is already short-critical-section.
func (m *Monitor) probeLocked() (map[string]DeviceCapabilities, string, error) {
	all, defaultName, err := m.probe()
	if err != nil {
		return nil, "", err
	}
	m.cache.Set(cacheKeyAll, all, cache.DefaultExpiration)
	if caps, ok := all[defaultName]; ok {
		m.cache.Set(cacheKeyDefault, caps, cache.DefaultExpiration)
	}
	return all, defaultName, nil
}

// Watch starts a background poll loop on the given context, delivering
// diff events to listener. Only one listener may be registered; a second
// call to Watch replaces it after stopping the prior loop.
func (m *Monitor) Watch(ctx context.Context, listener Listener) {
	m.Unwatch()

	m.mu.Lock()
	interval := m.pollInterval
	m.listener = listener
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.ForceCheck()
			}
		}
	}()
}

// Unwatch stops the background poll loop, if one is running.
func (m *Monitor) Unwatch() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.listener = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// ForceCheck performs a synchronous one-shot comparison against the last
// known topology and emits exactly one event per detected change.
func (m *Monitor) ForceCheck() {
	all, defaultName, err := m.probe()
	if err != nil {
		// Enumeration errors are dropped here without being logged or
		// returned; the poll loop probes again on the next tick.
		return
	}
	m.cache.Set(cacheKeyAll, all, cache.DefaultExpiration)
	if caps, ok := all[defaultName]; ok {
		m.cache.Set(cacheKeyDefault, caps, cache.DefaultExpiration)
	}

	m.mu.Lock()
	listener := m.listener
	prevAll := m.lastAll
	prevDefault := m.lastDefault
	m.lastAll = all
	m.lastDefault = defaultName
	firstRun := prevAll == nil
	m.mu.Unlock()

	if listener == nil || firstRun {
		return
	}

	for name, caps := range all {
		old, existed := prevAll[name]
		if !existed {
			c := caps
			listener(Event{Kind: DeviceConnected, DeviceName: name, New: &c})
			continue
		}
		if !old.equal(caps) {
			o, n := old, caps
			listener(Event{Kind: DeviceCapabilitiesChanged, DeviceName: name, Old: &o, New: &n})
		}
	}
	for name, caps := range prevAll {
		if _, still := all[name]; !still {
			c := caps
			listener(Event{Kind: DeviceDisconnected, DeviceName: name, Old: &c})
		}
	}
	if prevDefault != "" && defaultName != "" && prevDefault != defaultName {
		oldCaps := prevAll[prevDefault]
		newCaps := all[defaultName]
		listener(Event{Kind: DefaultDeviceChanged, DeviceName: defaultName, Old: &oldCaps, New: &newCaps})
	}
}

// probeMalgo enumerates capture devices across the platform's native
// backend, the same way used for real-time capture in the Capture Engine.
func probeMalgo() (map[string]DeviceCapabilities, string, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, "", err
	}

	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, "", fmt.Errorf("devicemon: init context: %w", err)
	}
	defer ctx.Uninit() //nolint:errcheck

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, "", fmt.Errorf("devicemon: enumerate devices: %w", err)
	}

	all := make(map[string]DeviceCapabilities, len(infos))
	defaultName := ""
	for i := range infos {
		info := infos[i]
		name := info.Name()
		if strings.Contains(name, "Discard all samples") {
			continue
		}
		all[name] = capabilitiesFromInfo(name, info)
		if info.IsDefault != 0 {
			defaultName = name
		}
	}
	if defaultName == "" {
		for name := range all {
			defaultName = name
			break
		}
	}
	return all, defaultName, nil
}

func capabilitiesFromInfo(name string, info malgo.DeviceInfo) DeviceCapabilities {
	rateSet := map[uint32]struct{}{}
	chanSet := map[uint16]struct{}{}
	formatSet := map[types.SampleFormat]struct{}{}

	for i := uint32(0); i < info.DataFormatCount && int(i) < len(info.DataFormats); i++ {
		df := info.DataFormats[i]
		if df.SampleRate > 0 {
			rateSet[df.SampleRate] = struct{}{}
		}
		if df.Channels > 0 {
			chanSet[uint16(df.Channels)] = struct{}{}
		}
		if sf, ok := sampleFormatFromMalgo(df.FormatType); ok {
			formatSet[sf] = struct{}{}
		}
	}

	caps := DeviceCapabilities{Name: name}
	for r := range rateSet {
		caps.SupportedSampleRates = append(caps.SupportedSampleRates, r)
	}
	for c := range chanSet {
		caps.SupportedChannels = append(caps.SupportedChannels, c)
	}
	for f := range formatSet {
		caps.SupportedSampleFormats = append(caps.SupportedSampleFormats, f)
	}

	defaultRate := uint32(48000)
	if len(caps.SupportedSampleRates) > 0 {
		sort.Slice(caps.SupportedSampleRates, func(i, j int) bool {
			return caps.SupportedSampleRates[i] < caps.SupportedSampleRates[j]
		})
		defaultRate = caps.SupportedSampleRates[len(caps.SupportedSampleRates)-1]
	}
	defaultChannels := uint16(1)
	if len(caps.SupportedChannels) > 0 {
		sort.Slice(caps.SupportedChannels, func(i, j int) bool {
			return caps.SupportedChannels[i] < caps.SupportedChannels[j]
		})
		defaultChannels = caps.SupportedChannels[0]
	}
	defaultFormat := types.SampleFormatF32
	if len(caps.SupportedSampleFormats) > 0 {
		sort.Slice(caps.SupportedSampleFormats, func(i, j int) bool {
			return caps.SupportedSampleFormats[i] < caps.SupportedSampleFormats[j]
		})
		defaultFormat = caps.SupportedSampleFormats[0]
	}
	caps.DefaultConfig = types.AudioFormat{
		SampleRate: defaultRate,
		Channels:   defaultChannels,
		Format:     defaultFormat,
	}
	return caps
}

func sampleFormatFromMalgo(f malgo.FormatType) (types.SampleFormat, bool) {
	switch f {
	case malgo.FormatS16:
		return types.SampleFormatI16, true
	case malgo.FormatF32:
		return types.SampleFormatF32, true
	default:
		return "", false
	}
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
		return malgo.BackendNull, fmt.Errorf("devicemon: unsupported platform %s", runtime.GOOS)
	}
}
