package audio

// Classification is the verdict for a single spectrum energy sample.
type Classification string

const (
	// Sound indicates the sample is at or above the silence threshold.
	Sound Classification = "sound"
	// Silent indicates the sample is strictly below the silence threshold.
	Silent Classification = "silent"
)

// Threshold derives the silence threshold from a calibrated noise floor.
func Threshold(noiseFloor, multiplier float64) float64 {
	return noiseFloor * multiplier
}

// Classify compares a sample's energy against the silence threshold.
// Energy exactly at the threshold counts as sound.
func Classify(energy, threshold float64) Classification {
	if energy < threshold {
		return Silent
	}
	return Sound
}
