package audio

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		energy    float64
		threshold float64
		want      Classification
	}{
		{"well below threshold", 0, 1.8, Silent},
		{"just below threshold", 1.79, 1.8, Silent},
		{"exactly at threshold", 1.8, 1.8, Sound},
		{"above threshold", 42, 1.8, Sound},
		{"zero threshold", 0, 0, Sound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.energy, tt.threshold); got != tt.want {
				t.Errorf("Classify(%g, %g) = %q, want %q", tt.energy, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestClassify_MonotonicInEnergy(t *testing.T) {
	// Once a rising energy level classifies as sound, it must never flip
	// back to silent at a higher level.
	const threshold = 12.6
	seenSound := false
	for e := 0.0; e <= 50.0; e += 0.1 {
		got := Classify(e, threshold)
		if got == Sound {
			seenSound = true
		}
		if seenSound && got == Silent {
			t.Fatalf("Classify(%g, %g) = silent after a lower energy was sound", e, threshold)
		}
	}
	if !seenSound {
		t.Fatal("no energy in range classified as sound")
	}
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name       string
		floor      float64
		multiplier float64
		want       float64
	}{
		{"minimum floor", 1, 1.8, 1.8},
		{"measured floor", 7, 1.8, 12.6},
		{"custom multiplier", 10, 2.5, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Threshold(tt.floor, tt.multiplier); got != tt.want {
				t.Errorf("Threshold(%g, %g) = %g, want %g", tt.floor, tt.multiplier, got, tt.want)
			}
		})
	}
}
