package ringbuffer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbright/scout/internal/types"
)

func testSpec() types.AudioFormat {
	return types.AudioFormat{SampleRate: 16000, Channels: 1, Format: types.SampleFormatF32}
}

func genSine(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func TestAddSamplesAndTotalWrittenMonotone(t *testing.T) {
	b, err := New(testSpec(), filepath.Join(t.TempDir(), "archival.wav"))
	require.NoError(t, err)

	require.NoError(t, b.AddSamples(genSine(1000, 0)))
	require.NoError(t, b.AddSamples(genSine(500, 1000)))

	assert.Equal(t, uint64(1500), b.TotalSamplesWritten())
	assert.Equal(t, uint64(1500), b.SampleCount())
}

func TestExtractChunkClipsToResidentWindow(t *testing.T) {
	b, err := New(testSpec(), "")
	require.NoError(t, err)

	require.NoError(t, b.AddSamples(genSine(16000, 0))) // 1s

	samples, err := b.ExtractChunk(0, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, samples, 8000)
	assert.Equal(t, float32(0), samples[0])
}

func TestExtractChunkBeyondRangeErrors(t *testing.T) {
	b, err := New(testSpec(), "")
	require.NoError(t, err)
	require.NoError(t, b.AddSamples(genSine(100, 0)))

	_, err = b.ExtractChunk(10*time.Second, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrChunkBeyondRange)
}

func TestEvictionKeepsBufferedSamplesWithinCap(t *testing.T) {
	b, err := New(testSpec(), "")
	require.NoError(t, err)

	// Cap is 5min * 16000 samples; write well beyond it in small batches.
	capSamples := b.cap
	batch := genSine(1000, 0)
	for written := uint64(0); written < capSamples+uint64(5000); written += uint64(len(batch)) {
		require.NoError(t, b.AddSamples(batch))
	}

	assert.LessOrEqual(t, b.SampleCount(), capSamples)
	assert.Greater(t, b.TotalSamplesWritten(), capSamples)
}

func TestFinalizeIsIdempotentAndBlocksAppend(t *testing.T) {
	b, err := New(testSpec(), filepath.Join(t.TempDir(), "archival.wav"))
	require.NoError(t, err)
	require.NoError(t, b.AddSamples(genSine(10, 0)))

	require.NoError(t, b.Finalize())
	require.NoError(t, b.Finalize()) // second call is a no-op

	err = b.AddSamples(genSine(10, 0))
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestClearDropsResidentSamples(t *testing.T) {
	b, err := New(testSpec(), filepath.Join(t.TempDir(), "archival.wav"))
	require.NoError(t, err)
	require.NoError(t, b.AddSamples(genSine(1000, 0)))

	require.NoError(t, b.Clear())
	assert.Equal(t, uint64(0), b.SampleCount())
}

func TestSaveChunkToFileWritesMonoInt16(t *testing.T) {
	b, err := New(testSpec(), "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chunk.wav")
	require.NoError(t, b.SaveChunkToFile([]float32{0.5, -0.5, 1.0}, path))
}
