// Package wav writes RIFF/WAVE containers for the archival and chunk
// files produced by the capture engine and ring buffer. It generalizes the
// fixed 16-bit PCM header writer the teacher used for debug dumps into a
// streaming writer that supports both PCM-int16 and IEEE-float32 payloads,
// since native device capture may arrive in either format.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// formatTag values per the WAVE fmt chunk.
const (
	formatPCM   uint16 = 1
	formatFloat uint16 = 3
)

// Writer streams PCM samples into an open file, then backpatches the RIFF
// and data chunk sizes on Close. The header is written with placeholder
// sizes up front so samples can be appended incrementally as they arrive
// off the capture callback, without buffering the whole recording.
type Writer struct {
	f          *os.File
	sampleRate uint32
	channels   uint16
	format     FormatKind
	dataBytes  uint32
	closed     bool
}

type FormatKind int

const (
	FormatInt16 FormatKind = iota
	FormatFloat32
)

// Create opens path and writes a placeholder WAV header for the given
// format, ready for streamed sample writes.
func Create(path string, sampleRate uint32, channels uint16, format FormatKind) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %s: %w", path, err)
	}
	w := &Writer{f: f, sampleRate: sampleRate, channels: channels, format: format}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) bitsPerSample() uint16 {
	switch w.format {
	case FormatFloat32:
		return 32
	default:
		return 16
	}
}

func (w *Writer) formatTag() uint16 {
	switch w.format {
	case FormatFloat32:
		return formatFloat
	default:
		return formatPCM
	}
}

func (w *Writer) writeHeader(dataBytes uint32) error {
	bits := w.bitsPerSample()
	blockAlign := w.channels * (bits / 8)
	byteRate := w.sampleRate * uint32(blockAlign)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataBytes)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], w.formatTag())
	binary.LittleEndian.PutUint16(header[22:24], w.channels)
	binary.LittleEndian.PutUint32(header[24:28], w.sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], bits)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataBytes)

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wav: seek header: %w", err)
	}
	if _, err := w.f.Write(header); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}

// WriteInt16 appends little-endian PCM16 samples. The writer must have
// been created with FormatInt16.
func (w *Writer) WriteInt16(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return w.writeRaw(buf)
}

// WriteFloat32 appends little-endian IEEE-float32 samples. The writer
// must have been created with FormatFloat32.
func (w *Writer) WriteFloat32(samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return w.writeRaw(buf)
}

func (w *Writer) writeRaw(buf []byte) error {
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wav: seek end: %w", err)
	}
	n, err := w.f.Write(buf)
	if err != nil {
		return fmt.Errorf("wav: write data: %w", err)
	}
	w.dataBytes += uint32(n)
	return nil
}

// Bytes reports how many payload bytes have been written so far.
func (w *Writer) Bytes() uint32 { return w.dataBytes }

// Close backpatches the header with final sizes and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writeHeader(w.dataBytes); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Abort discards the file without finalizing the header, used when a
// recording is cancelled rather than completed.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	path := w.f.Name()
	w.f.Close()
	return os.Remove(path)
}
