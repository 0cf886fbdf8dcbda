// Package audio derives mute and unmute transitions from PCM levels.
package audio

import "math"

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
)

// LevelData accumulates raw sample statistics for one measurement period.
type LevelData struct {
	SumSquaresL float64
	SumSquaresR float64
	PeakL       float64
	PeakR       float64
	SampleCount int
}

// ProcessSamples accumulates interleaved PCM. Mono input (channels == 1) is
// counted on both sides.
func ProcessSamples(pcm []int16, channels int, data *LevelData) {
	if channels < 1 {
		return
	}
	for i := 0; i+channels-1 < len(pcm); i += channels {
		left := float64(pcm[i])
		right := left
		if channels > 1 {
			right = float64(pcm[i+1])
		}

		data.SumSquaresL += left * left
		data.SumSquaresR += right * right
		data.PeakL = max(data.PeakL, math.Abs(left))
		data.PeakR = max(data.PeakR, math.Abs(right))
		data.SampleCount++
	}
}

// Levels contains calculated audio levels in dB.
type Levels struct {
	RMSLeft   float64
	RMSRight  float64
	PeakLeft  float64
	PeakRight float64
}

// CalculateLevels computes RMS and peak levels from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{
			RMSLeft: MinDB, RMSRight: MinDB,
			PeakLeft: MinDB, PeakRight: MinDB,
		}
	}

	n := float64(data.SampleCount)
	return Levels{
		RMSLeft:   toDB(math.Sqrt(data.SumSquaresL / n)),
		RMSRight:  toDB(math.Sqrt(data.SumSquaresR / n)),
		PeakLeft:  toDB(data.PeakL),
		PeakRight: toDB(data.PeakR),
	}
}

// toDB converts a sample amplitude to dBFS, clamped at MinDB.
func toDB(v float64) float64 {
	if v <= 0 {
		return MinDB
	}
	return max(20*math.Log10(v/MaxSampleValue), MinDB)
}

// Reset clears the accumulators for the next measurement period.
func (d *LevelData) Reset() {
	*d = LevelData{}
}
