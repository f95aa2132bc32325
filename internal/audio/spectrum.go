package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	// minDecibels is the lower bound of the dB range mapped onto the byte scale.
	minDecibels = -100.0
	// maxDecibels is the upper bound of the dB range mapped onto the byte scale.
	maxDecibels = -30.0
	// byteScale is the maximum scaled magnitude per frequency bin.
	byteScale = 255.0

	// MinWindowSize is the smallest supported FFT window.
	MinWindowSize = 32
	// MaxWindowSize is the largest supported FFT window.
	MaxWindowSize = 32768
)

// ErrInvalidWindow is returned when the FFT window size is not a power of two
// within the supported range.
var ErrInvalidWindow = errors.New("FFT window size must be a power of two between 32 and 32768")

// Spectrum computes scaled frequency-domain magnitudes from a stream of PCM
// audio. Incoming samples are downmixed to mono and transformed in fixed-size
// Hann-windowed frames; the energy of the most recent complete frame is
// retained between reads. It is safe for concurrent use.
type Spectrum struct {
	mu        sync.Mutex
	fft       *fourier.FFT
	size      int
	windowSum float64
	frame     []float64
	scratch   []float64
	coeffs    []complex128
	filled    int
	energy    float64
}

// NewSpectrum creates an analyzer with the given FFT window size.
func NewSpectrum(size int) (*Spectrum, error) {
	if size < MinWindowSize || size > MaxWindowSize || size&(size-1) != 0 {
		return nil, ErrInvalidWindow
	}

	// The window gain is needed to normalize bin magnitudes to amplitude.
	gain := make([]float64, size)
	for i := range gain {
		gain[i] = 1
	}
	window.Hann(gain)
	sum := 0.0
	for _, w := range gain {
		sum += w
	}

	return &Spectrum{
		fft:       fourier.NewFFT(size),
		size:      size,
		windowSum: sum,
		frame:     make([]float64, size),
		scratch:   make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
	}, nil
}

// Size returns the configured FFT window size.
func (s *Spectrum) Size() int {
	return s.size
}

// Feed consumes S16LE stereo PCM bytes, advancing the analysis frame.
// Each completed frame replaces the retained energy value.
func (s *Spectrum) Feed(buf []byte, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i+3 < n; i += 4 {
		left := int16(binary.LittleEndian.Uint16(buf[i:]))
		right := int16(binary.LittleEndian.Uint16(buf[i+2:]))
		s.frame[s.filled] = (float64(left) + float64(right)) / 2 / MaxSampleValue
		s.filled++
		if s.filled == s.size {
			s.analyzeLocked()
			s.filled = 0
		}
	}
}

// analyzeLocked transforms the current frame and averages the byte-scaled
// magnitude across the lower half of the spectrum.
func (s *Spectrum) analyzeLocked() {
	copy(s.scratch, s.frame)
	window.Hann(s.scratch)
	s.fft.Coefficients(s.coeffs, s.scratch)

	bins := s.size / 2
	total := 0.0
	for k := range bins {
		amp := cmplx.Abs(s.coeffs[k]) / s.windowSum
		if k > 0 {
			amp *= 2
		}
		db := max(20*math.Log10(amp), minDecibels)
		scaled := (db - minDecibels) / (maxDecibels - minDecibels) * byteScale
		total += min(scaled, byteScale)
	}
	s.energy = total / float64(bins)
}

// Energy returns the mean scaled magnitude of the most recent frame, or zero
// when no complete frame has been analyzed yet.
func (s *Spectrum) Energy() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.energy
}

// Reset discards buffered samples and the retained energy value.
func (s *Spectrum) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filled = 0
	s.energy = 0
}
