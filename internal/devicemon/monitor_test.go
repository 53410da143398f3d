package devicemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbright/scout/internal/types"
)

func fixedProbe(all map[string]DeviceCapabilities, defaultName string) probeFunc {
	return func() (map[string]DeviceCapabilities, string, error) {
		return all, defaultName, nil
	}
}

func TestProbeDefaultUsesCache(t *testing.T) {
	calls := 0
	m := newWithProbe(func() (map[string]DeviceCapabilities, string, error) {
		calls++
		return map[string]DeviceCapabilities{
			"mic": {Name: "mic", DefaultConfig: types.AudioFormat{SampleRate: 48000, Channels: 1, Format: types.SampleFormatF32}},
		}, "mic", nil
	})

	first, err := m.ProbeDefault()
	require.NoError(t, err)
	assert.Equal(t, "mic", first.Name)

	_, err = m.ProbeDefault()
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestForceCheckEmitsConnectedAndDisconnected(t *testing.T) {
	state := 0
	m := newWithProbe(func() (map[string]DeviceCapabilities, string, error) {
		state++
		if state == 1 {
			return map[string]DeviceCapabilities{"mic": {Name: "mic"}}, "mic", nil
		}
		return map[string]DeviceCapabilities{"headset": {Name: "headset"}}, "headset", nil
	})

	var mu sync.Mutex
	var kinds []EventKind
	listener := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	}

	m.mu.Lock()
	m.listener = listener
	m.mu.Unlock()

	m.ForceCheck() // first run establishes baseline, emits nothing
	m.ForceCheck() // mic gone, headset appeared, default changed

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, kinds, DeviceDisconnected)
	assert.Contains(t, kinds, DeviceConnected)
	assert.Contains(t, kinds, DefaultDeviceChanged)
}

func TestForceCheckEmitsCapabilitiesChanged(t *testing.T) {
	state := 0
	m := newWithProbe(func() (map[string]DeviceCapabilities, string, error) {
		state++
		rate := uint32(16000)
		if state > 1 {
			rate = 48000
		}
		return map[string]DeviceCapabilities{
			"mic": {Name: "mic", SupportedSampleRates: []uint32{rate}},
		}, "mic", nil
	})

	var events []Event
	m.mu.Lock()
	m.listener = func(e Event) { events = append(events, e) }
	m.mu.Unlock()

	m.ForceCheck()
	m.ForceCheck()

	require.Len(t, events, 1)
	assert.Equal(t, DeviceCapabilitiesChanged, events[0].Kind)
}

func TestWatchStopsOnUnwatch(t *testing.T) {
	m := newWithProbe(fixedProbe(map[string]DeviceCapabilities{"mic": {Name: "mic"}}, "mic"))
	m.SetPollInterval(5 * time.Millisecond)

	var count int
	var mu sync.Mutex
	m.Watch(context.Background(), func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	time.Sleep(30 * time.Millisecond)
	m.Unwatch()

	mu.Lock()
	n := count
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, count, "no further events should be delivered after Unwatch")
}

func TestCapabilitiesEqualIgnoresOrder(t *testing.T) {
	a := DeviceCapabilities{SupportedSampleRates: []uint32{48000, 16000}}
	b := DeviceCapabilities{SupportedSampleRates: []uint32{16000, 48000}}
	assert.True(t, a.equal(b))
}
