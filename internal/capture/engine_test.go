package capture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToInt16RoundTrips(t *testing.T) {
	samples := []int16{1, -1, 32767, -32768, 0}
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(uint16(s))
		buf[i*2+1] = byte(uint16(s) >> 8)
	}
	got := bytesToInt16(buf, len(samples))
	assert.Equal(t, samples, got)
}

func TestBytesToFloat32RoundTrips(t *testing.T) {
	samples := []float32{0.5, -0.5, 1.0, -1.0}
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	got := bytesToFloat32(buf, len(samples))
	for i, s := range samples {
		assert.InDelta(t, float64(s), float64(got[i]), 1e-6)
	}
}

func TestIsBTLowQualityRequiresBothNameAndRate(t *testing.T) {
	assert.True(t, isBTLowQuality("Bluetooth Headset HFP", 16000))
	assert.False(t, isBTLowQuality("Bluetooth Headset HFP", 48000))
	assert.False(t, isBTLowQuality("Built-in Microphone", 16000))
}

func TestEngineLevelSmoothingBlendsAndClamps(t *testing.T) {
	e := New(nil)
	loud := make([]float32, 100)
	for i := range loud {
		loud[i] = 1.0
	}
	e.updateLevel(loud)
	assert.InDelta(t, 0.7, e.CurrentAudioLevel(), 1e-9)
	e.updateLevel(loud)
	assert.LessOrEqual(t, e.CurrentAudioLevel(), 1.0)
}

func TestSilencePaddingSampleMath(t *testing.T) {
	// 0.2s recorded -> pad to 0.5s -> 300ms of silence at 16kHz mono.
	padMS := int64(300)
	count := int(padMS) * 16000 / 1000 * 1
	assert.Equal(t, 4800, count)
}
