package wav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterInt16HeaderIsBitExact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, 16000, 1, FormatInt16)
	require.NoError(t, err)

	samples := []int16{1, -1, 32767, -32768}
	require.NoError(t, w.WriteInt16(samples))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, 44+8)

	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, uint32(36+8), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, "WAVE", string(raw[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[20:22])) // PCM tag
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[22:24])) // mono
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(raw[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(raw[34:36]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(raw[40:44]))

	got := int16(binary.LittleEndian.Uint16(raw[44:46]))
	assert.Equal(t, int16(1), got)
}

func TestWriterFloat32UsesFormatTagThree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, 48000, 2, FormatFloat32)
	require.NoError(t, err)
	require.NoError(t, w.WriteFloat32([]float32{0.5, -0.5}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(raw[20:22]))
	assert.Equal(t, uint16(32), binary.LittleEndian.Uint16(raw[34:36]))
}

func TestAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, 16000, 1, FormatInt16)
	require.NoError(t, err)
	require.NoError(t, w.WriteInt16([]int16{1, 2, 3}))
	require.NoError(t, w.Abort())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestBytesTracksWrittenPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, 16000, 1, FormatInt16)
	require.NoError(t, err)
	require.NoError(t, w.WriteInt16([]int16{1, 2, 3, 4}))
	assert.Equal(t, uint32(8), w.Bytes())
	require.NoError(t, w.Close())
}
