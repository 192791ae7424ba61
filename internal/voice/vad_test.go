package voice

import (
	"encoding/binary"
	"math"
	"testing"
)

// sinePCM builds a mono PCM16LE sine wave buffer.
func sinePCM(freq, seconds, amplitude float64, sampleRate int) []byte {
	n := int(seconds * float64(sampleRate))
	out := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v*32767)))
	}
	return out
}

func TestDetectSpeech(t *testing.T) {
	pcm := sinePCM(400, 0.5, 0.5, 16000)
	det := Detect(pcm, 16000, DefaultDetectorConfig())
	if !det.HasSpeech {
		t.Fatalf("HasSpeech = false (reason %q), want true for a loud 400Hz tone", det.Reason)
	}
	if det.Reason != "speech" {
		t.Fatalf("Reason = %q, want speech", det.Reason)
	}
	if det.RMS < 0.3 {
		t.Fatalf("RMS = %v, want ~0.35 for amplitude 0.5 sine", det.RMS)
	}
	if det.Duration != 0.5 {
		t.Fatalf("Duration = %v, want 0.5", det.Duration)
	}
}

func TestDetectSilence(t *testing.T) {
	det := Detect(make([]byte, 16000), 16000, DefaultDetectorConfig())
	if det.HasSpeech {
		t.Fatalf("HasSpeech = true for all-zero buffer")
	}
	if det.Reason != "low_rms" {
		t.Fatalf("Reason = %q, want low_rms", det.Reason)
	}
}

func TestDetectEmptyBuffer(t *testing.T) {
	det := Detect(nil, 16000, DefaultDetectorConfig())
	if det.HasSpeech {
		t.Fatalf("HasSpeech = true for empty buffer")
	}
	if det.Reason != "empty" {
		t.Fatalf("Reason = %q, want empty", det.Reason)
	}
}

func TestDetectTooShort(t *testing.T) {
	pcm := sinePCM(400, 0.1, 0.5, 16000)
	det := Detect(pcm, 16000, DefaultDetectorConfig())
	if det.HasSpeech {
		t.Fatalf("HasSpeech = true for 100ms buffer")
	}
	if det.Reason != "too_short" {
		t.Fatalf("Reason = %q, want too_short", det.Reason)
	}
}

func TestDetectZCROutOfBand(t *testing.T) {
	// A 7kHz tone at 16kHz sampling crosses zero nearly every sample.
	pcm := sinePCM(7000, 0.5, 0.5, 16000)
	det := Detect(pcm, 16000, DefaultDetectorConfig())
	if det.HasSpeech {
		t.Fatalf("HasSpeech = true for out-of-band ZCR %v", det.ZeroCrossingRate)
	}
	if det.Reason != "zcr_out_of_band" {
		t.Fatalf("Reason = %q, want zcr_out_of_band", det.Reason)
	}
}

func TestDetectRMSExactlyAtThresholdIsSpeech(t *testing.T) {
	pcm := sinePCM(400, 0.5, 0.05, 16000)
	probe := Detect(pcm, 16000, DefaultDetectorConfig())

	cfg := DefaultDetectorConfig()
	cfg.SilenceThresholdRMS = probe.RMS
	det := Detect(pcm, 16000, cfg)
	if !det.HasSpeech {
		t.Fatalf("HasSpeech = false at exact threshold (reason %q), want true: >= is success", det.Reason)
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	pcm := sinePCM(300, 0.4, 0.3, 16000)
	a := Detect(pcm, 16000, DefaultDetectorConfig())
	b := Detect(pcm, 16000, DefaultDetectorConfig())
	if a != b {
		t.Fatalf("Detect not deterministic: %+v vs %+v", a, b)
	}
}
