package wake

import (
	"encoding/binary"
	"testing"

	"github.com/wellbot-ai/wellbot/pkg/audio"
)

// pcmFrame builds an s16le frame where every sample has the given amplitude,
// so the RMS level is amplitude/32767.
func pcmFrame(amplitude int16, samples int) audio.Frame {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return audio.Frame{Data: data, SampleRate: 16000, Channels: 1}
}

var (
	loud  = pcmFrame(3000, 160) // rms ≈ 0.09, well above speechThreshold
	quiet = pcmFrame(100, 160)  // rms ≈ 0.003, below silenceThreshold
)

func TestEnergySpotterFiresAtBurstEnd(t *testing.T) {
	t.Parallel()

	s := NewEnergySpotter()

	// Three loud frames enter speech; nothing fires yet.
	for i := 0; i < 3; i++ {
		if s.Classify(loud) {
			t.Fatalf("fired during burst at frame %d", i)
		}
	}

	// The first quiet frame ends the burst and fires exactly once.
	if !s.Classify(quiet) {
		t.Fatal("no detection at burst end")
	}
	if s.Classify(quiet) {
		t.Fatal("fired twice for one burst")
	}
}

func TestEnergySpotterIgnoresShortBlips(t *testing.T) {
	t.Parallel()

	s := NewEnergySpotter()

	// Two loud frames are below the minimum burst length.
	s.Classify(loud)
	s.Classify(loud)
	if s.Classify(quiet) {
		t.Fatal("fired on a burst shorter than speechFrames")
	}
}

func TestEnergySpotterReset(t *testing.T) {
	t.Parallel()

	s := NewEnergySpotter()
	for i := 0; i < 3; i++ {
		s.Classify(loud)
	}
	s.Reset()

	// State cleared mid-burst: the following quiet frame must not fire.
	if s.Classify(quiet) {
		t.Fatal("fired after Reset")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := rms(nil); got != 0 {
		t.Errorf("rms(nil) = %v, want 0", got)
	}
	if got := rms([]byte{0x01}); got != 0 {
		t.Errorf("rms(odd) = %v, want 0", got)
	}

	full := make([]byte, 4)
	pos := int16(32767)
	neg := int16(-32767)
	binary.LittleEndian.PutUint16(full[0:], uint16(pos))
	binary.LittleEndian.PutUint16(full[2:], uint16(neg))
	if got := rms(full); got < 0.99 || got > 1.01 {
		t.Errorf("rms(full scale) = %v, want ≈1", got)
	}
}
