package wake

import (
	"encoding/binary"
	"math"

	"github.com/wellbot-ai/wellbot/pkg/audio"
)

// EnergySpotter is a pure-Go fallback [Spotter] based on RMS energy with
// hysteresis. It fires a single keyword event when sustained loud audio ends —
// a crude "speak to wake" trigger for development setups that have no real
// keyword model available.
//
// The Listener calls it from a single goroutine; it is not safe for
// concurrent use on its own.
type EnergySpotter struct {
	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int

	inSpeech    bool
	speechCount int
}

// Compile-time interface check.
var _ Spotter = (*EnergySpotter)(nil)

// NewEnergySpotter returns an EnergySpotter tuned for 16 kHz mono capture
// frames of roughly 100 ms.
func NewEnergySpotter() *EnergySpotter {
	return &EnergySpotter{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,
	}
}

// Classify implements [Spotter]. Returns true exactly once per loud burst:
// on the frame where the burst falls back under the silence threshold.
// Hysteresis (distinct start/end thresholds, minimum burst length) avoids
// flickering on borderline levels.
func (s *EnergySpotter) Classify(frame audio.Frame) bool {
	level := rms(frame.Data)

	if s.inSpeech {
		if level < s.silenceThreshold {
			s.inSpeech = false
			s.speechCount = 0
			return true
		}
		return false
	}

	if level >= s.speechThreshold {
		s.speechCount++
		if s.speechCount >= s.speechFrames {
			s.inSpeech = true
		}
	} else {
		s.speechCount = 0
	}
	return false
}

// Reset implements [Spotter].
func (s *EnergySpotter) Reset() {
	s.inSpeech = false
	s.speechCount = 0
}

// rms computes the root-mean-square level of s16le PCM data, normalised to
// [0, 1]. Returns 0 for empty or odd-length data.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(sample) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
