package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAV_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		clip *Clip
	}{
		{"mono", &Clip{SampleRate: 16000, Channels: 1, Samples: []int16{0, 100, -100, 32767, -32768}}},
		{"stereo", &Clip{SampleRate: 44100, Channels: 2, Samples: []int16{1, 2, 3, 4, 5, 6}}},
		{"empty data", &Clip{SampleRate: 8000, Channels: 1, Samples: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, EncodeWAV(&buf, tt.clip))

			decoded, err := DecodeWAV(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.clip.SampleRate, decoded.SampleRate)
			assert.Equal(t, tt.clip.Channels, decoded.Channels)
			if len(tt.clip.Samples) == 0 {
				assert.Empty(t, decoded.Samples)
			} else {
				assert.Equal(t, tt.clip.Samples, decoded.Samples)
			}
		})
	}
}

func TestWAV_FileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.wav")

	clip := &Clip{SampleRate: 24000, Channels: 1, Samples: []int16{10, 20, 30}}
	require.NoError(t, WriteFile(path, clip))

	decoded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, clip.Samples, decoded.Samples)
	assert.Equal(t, 24000, decoded.SampleRate)
}

// buildWAV assembles a WAV stream by hand for decoder edge cases.
func buildWAV(format uint16, channels int, rate int, bitDepth int, data []byte, extraChunk bool) []byte {
	var buf bytes.Buffer

	var body bytes.Buffer
	// fmt chunk
	body.WriteString("fmt ")
	binary.Write(&body, binary.LittleEndian, uint32(16))
	binary.Write(&body, binary.LittleEndian, format)
	binary.Write(&body, binary.LittleEndian, uint16(channels))
	binary.Write(&body, binary.LittleEndian, uint32(rate))
	binary.Write(&body, binary.LittleEndian, uint32(rate*channels*bitDepth/8))
	binary.Write(&body, binary.LittleEndian, uint16(channels*bitDepth/8))
	binary.Write(&body, binary.LittleEndian, uint16(bitDepth))

	if extraChunk {
		body.WriteString("LIST")
		binary.Write(&body, binary.LittleEndian, uint32(4))
		body.WriteString("INFO")
	}

	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(len(data)))
	body.Write(data)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(4+body.Len()))
	buf.WriteString("WAVE")
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	data := []byte{0x01, 0x00, 0x02, 0x00} // samples 1, 2
	raw := buildWAV(wavFormatPCM, 1, 16000, 16, data, true)

	clip, err := DecodeWAV(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2}, clip.Samples)
}

func TestDecodeWAV_Float32(t *testing.T) {
	var data bytes.Buffer
	for _, f := range []float32{0, 0.5, -0.5, 1.0, -1.0} {
		binary.Write(&data, binary.LittleEndian, math.Float32bits(f))
	}
	raw := buildWAV(wavFormatIEEE, 1, 24000, 32, data.Bytes(), false)

	clip, err := DecodeWAV(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, clip.Samples, 5)
	assert.Equal(t, int16(0), clip.Samples[0])
	assert.InDelta(t, 16383, clip.Samples[1], 1)
	assert.InDelta(t, -16383, clip.Samples[2], 1)
	assert.Equal(t, int16(32767), clip.Samples[3])
	assert.Equal(t, int16(-32767), clip.Samples[4])
}

func TestDecodeWAV_PCM24(t *testing.T) {
	// One 24-bit sample: 0x123456 → high 16 bits 0x1234
	data := []byte{0x56, 0x34, 0x12}
	raw := buildWAV(wavFormatPCM, 1, 44100, 24, data, false)

	clip, err := DecodeWAV(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, clip.Samples, 1)
	assert.Equal(t, int16(0x1234), clip.Samples[0])
}

func TestDecodeWAV_PCM32(t *testing.T) {
	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, int32(0x12345678))
	raw := buildWAV(wavFormatPCM, 1, 44100, 32, data.Bytes(), false)

	clip, err := DecodeWAV(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, clip.Samples, 1)
	assert.Equal(t, int16(0x1234), clip.Samples[0])
}

func TestDecodeWAV_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty stream", nil},
		{"not riff", []byte("XXXXxxxxYYYYzzzz")},
		{"no data chunk", func() []byte {
			raw := buildWAV(wavFormatPCM, 1, 16000, 16, []byte{1, 0}, false)
			return raw[:len(raw)-10] // cut into the data chunk
		}()},
		{"unsupported bit depth", buildWAV(wavFormatPCM, 1, 16000, 8, []byte{1}, false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(bytes.NewReader(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestEncodeWAV_RejectsInvalidFormat(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeWAV(&buf, &Clip{SampleRate: 0, Channels: 1})
	assert.Error(t, err)

	err = EncodeWAV(&buf, &Clip{SampleRate: 16000, Channels: 0})
	assert.Error(t, err)
}
