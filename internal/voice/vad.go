package voice

import (
	"math"

	"github.com/voiceboat/voiceboat/internal/audio"
)

// DetectorConfig tunes the voice activity detector. The ZCR band defaults
// suit 8-16 kHz voice.
type DetectorConfig struct {
	SilenceThresholdRMS float64
	MinSpeechSeconds    float64
	MaxSilenceSeconds   float64
	ZCRSpeechMin        float64
	ZCRSpeechMax        float64
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SilenceThresholdRMS: 0.01,
		MinSpeechSeconds:    0.3,
		MaxSilenceSeconds:   1.5,
		ZCRSpeechMin:        0.01,
		ZCRSpeechMax:        0.35,
	}
}

// Detection is the verdict for one audio buffer.
type Detection struct {
	HasSpeech        bool
	RMS              float64
	ZeroCrossingRate float64
	Duration         float64
	Reason           string
}

// Detect classifies a mono PCM16LE buffer as speech-bearing or silence.
// Pure and deterministic: identical inputs always produce identical outputs.
func Detect(pcm []byte, sampleRate int, cfg DetectorConfig) Detection {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	samples := audio.SamplesPCM16LE(pcm)
	if len(samples) == 0 {
		return Detection{Reason: "empty"}
	}

	var sumSquares float64
	zeroCrossings := 0
	for i, s := range samples {
		sumSquares += s * s
		if i > 0 && (samples[i-1] >= 0) != (s >= 0) {
			zeroCrossings++
		}
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	zcr := float64(zeroCrossings) / float64(len(samples))
	duration := float64(len(samples)) / float64(sampleRate)

	det := Detection{
		RMS:              rms,
		ZeroCrossingRate: zcr,
		Duration:         duration,
	}
	switch {
	case rms < cfg.SilenceThresholdRMS:
		det.Reason = "low_rms"
	case zcr < cfg.ZCRSpeechMin || zcr > cfg.ZCRSpeechMax:
		det.Reason = "zcr_out_of_band"
	case duration < cfg.MinSpeechSeconds:
		det.Reason = "too_short"
	default:
		det.HasSpeech = true
		det.Reason = "speech"
	}
	return det
}
