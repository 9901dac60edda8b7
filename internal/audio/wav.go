package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// WAV format codes.
const (
	wavFormatPCM  = 1
	wavFormatIEEE = 3

	wavHeaderSize = 44
)

// DecodeWAV parses a RIFF/WAVE stream into a Clip. 16/24/32-bit PCM and
// 32-bit IEEE float data are converted to 16-bit samples.
func DecodeWAV(r io.Reader) (*Clip, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("audio: reading RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("audio: not a RIFF/WAVE stream")
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bitDepth   int
		haveFmt    bool
	)

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, errors.New("audio: data chunk not found")
			}
			return nil, fmt.Errorf("audio: reading chunk header: %w", err)
		}
		chunkID := string(chunk[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunk[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("audio: fmt chunk too small")
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, fmt.Errorf("audio: reading fmt chunk: %w", err)
			}
			format = binary.LittleEndian.Uint16(fmtData[0:2])
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bitDepth = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, errors.New("audio: data chunk before fmt chunk")
			}
			if channels < 1 || sampleRate < 1 {
				return nil, fmt.Errorf("audio: invalid format: %d channels at %dHz", channels, sampleRate)
			}
			data := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, fmt.Errorf("audio: reading data chunk: %w", err)
			}
			samples, err := toInt16Samples(data, format, bitDepth)
			if err != nil {
				return nil, err
			}
			return &Clip{SampleRate: sampleRate, Channels: channels, Samples: samples}, nil

		default:
			// Skip unknown chunks (LIST, fact, cue, ...).
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return nil, fmt.Errorf("audio: skipping chunk %s: %w", chunkID, err)
			}
		}
	}
}

// toInt16Samples converts raw WAV sample data to 16-bit samples.
func toInt16Samples(data []byte, format uint16, bitDepth int) ([]int16, error) {
	switch {
	case format == wavFormatPCM && bitDepth == 16:
		samples := make([]int16, len(data)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return samples, nil

	case format == wavFormatPCM && bitDepth == 24:
		samples := make([]int16, len(data)/3)
		for i := range samples {
			// Keep the high 16 of the 24 bits.
			v := int32(data[i*3+1]) | int32(data[i*3+2])<<8
			samples[i] = int16(v)
		}
		return samples, nil

	case format == wavFormatPCM && bitDepth == 32:
		samples := make([]int16, len(data)/4)
		for i := range samples {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			samples[i] = int16(v >> 16)
		}
		return samples, nil

	case format == wavFormatIEEE && bitDepth == 32:
		samples := make([]int16, len(data)/4)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			f := float64(math.Float32frombits(bits))
			samples[i] = clampFloat(f * 32767.0)
		}
		return samples, nil

	default:
		return nil, fmt.Errorf("audio: unsupported WAV encoding: format=%d bits=%d", format, bitDepth)
	}
}

// EncodeWAV writes the clip as a 16-bit PCM RIFF/WAVE stream.
func EncodeWAV(w io.Writer, c *Clip) error {
	if c.Channels < 1 || c.SampleRate < 1 {
		return fmt.Errorf("audio: invalid format: %d channels at %dHz", c.Channels, c.SampleRate)
	}

	dataSize := len(c.Samples) * 2
	byteRate := c.SampleRate * c.Channels * 2
	blockAlign := c.Channels * 2

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(c.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("audio: writing WAV header: %w", err)
	}

	buf := make([]byte, dataSize)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("audio: writing WAV data: %w", err)
	}
	return nil
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// WriteFile encodes the clip as 16-bit PCM WAV at path.
func WriteFile(path string, c *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := EncodeWAV(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
