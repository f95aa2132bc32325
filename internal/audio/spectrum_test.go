package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/castwork/deadair/internal/types"
)

// sineBytes renders a stereo S16LE sine at the given fraction of full scale.
func sineBytes(t *testing.T, freq, amplitude float64, samples int) []byte {
	t.Helper()
	buf := make([]byte, samples*4)
	for i := range samples {
		v := int16(amplitude * (MaxSampleValue - 1) * math.Sin(2*math.Pi*freq*float64(i)/float64(types.SampleRate)))
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(v))
	}
	return buf
}

func TestNewSpectrum_WindowValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"zero", 0, true},
		{"below minimum", 16, true},
		{"not power of two", 100, true},
		{"odd", 257, true},
		{"above maximum", 65536, true},
		{"minimum", 32, false},
		{"default", 256, false},
		{"maximum", 32768, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpectrum(tt.size)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidWindow) {
					t.Errorf("NewSpectrum(%d) error = %v, want ErrInvalidWindow", tt.size, err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewSpectrum(%d) error = %v", tt.size, err)
			}
		})
	}
}

func TestSpectrum_EnergyZeroBeforeFirstFrame(t *testing.T) {
	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Energy(); got != 0 {
		t.Errorf("Energy before any input = %g, want 0", got)
	}

	// A partial frame must not produce a reading either.
	partial := sineBytes(t, 1875, 0.5, 128)
	s.Feed(partial, len(partial))
	if got := s.Energy(); got != 0 {
		t.Errorf("Energy after partial frame = %g, want 0", got)
	}
}

func TestSpectrum_DigitalSilenceHasZeroEnergy(t *testing.T) {
	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}

	silent := make([]byte, 256*4)
	s.Feed(silent, len(silent))

	if got := s.Energy(); got != 0 {
		t.Errorf("Energy of digital silence = %g, want 0", got)
	}
}

func TestSpectrum_LouderSignalHasHigherEnergy(t *testing.T) {
	quiet, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}
	loud, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}

	// 1875 Hz sits exactly on a bin for a 256-point window at 48 kHz.
	quietBuf := sineBytes(t, 1875, 0.002, 256)
	loudBuf := sineBytes(t, 1875, 0.5, 256)
	quiet.Feed(quietBuf, len(quietBuf))
	loud.Feed(loudBuf, len(loudBuf))

	qe, le := quiet.Energy(), loud.Energy()
	if qe <= 0 {
		t.Fatalf("quiet energy = %g, want > 0", qe)
	}
	if le <= qe {
		t.Errorf("loud energy %g not above quiet energy %g", le, qe)
	}
}

func TestSpectrum_EnergyBounded(t *testing.T) {
	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}

	buf := sineBytes(t, 1875, 0.9, 1024)
	s.Feed(buf, len(buf))

	if got := s.Energy(); got < 0 || got > byteScale {
		t.Errorf("Energy = %g, want within [0, %g]", got, byteScale)
	}
}

func TestSpectrum_Reset(t *testing.T) {
	s, err := NewSpectrum(256)
	if err != nil {
		t.Fatal(err)
	}

	buf := sineBytes(t, 1875, 0.5, 256)
	s.Feed(buf, len(buf))
	if s.Energy() == 0 {
		t.Fatal("Energy = 0 after a full frame of signal")
	}

	s.Reset()
	if got := s.Energy(); got != 0 {
		t.Errorf("Energy after Reset = %g, want 0", got)
	}
}
