package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SamplesPCM16LE converts raw PCM16LE mono bytes into samples normalized to
// [-1, 1]. A trailing odd byte is ignored.
func SamplesPCM16LE(pcm []byte) []float64 {
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

var errNotWAV = errors.New("not a wav stream")

// DecodeWAVPCM16LE extracts the raw PCM16LE payload and sample rate from a
// WAV container. Raw PCM input (no RIFF header) is passed through with the
// fallback sample rate.
func DecodeWAVPCM16LE(data []byte, fallbackSampleRate int) (pcm []byte, sampleRate int, err error) {
	if fallbackSampleRate <= 0 {
		fallbackSampleRate = 16000
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, fallbackSampleRate, nil
	}

	sampleRate = fallbackSampleRate
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("%w: short fmt chunk", errNotWAV)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			channels := binary.LittleEndian.Uint16(data[body+2:])
			rate := binary.LittleEndian.Uint32(data[body+4:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || channels != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("unsupported wav format: fmt=%d channels=%d bits=%d", format, channels, bits)
			}
			sampleRate = int(rate)
		case "data":
			return data[body : body+chunkSize], sampleRate, nil
		}
		// Chunks are word-aligned.
		if chunkSize%2 == 1 {
			chunkSize++
		}
		offset = body + chunkSize
	}
	return nil, 0, fmt.Errorf("%w: missing data chunk", errNotWAV)
}
