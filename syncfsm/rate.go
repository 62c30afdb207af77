package syncfsm

import "github.com/syncwave/syncwave/sample"

const (
	// startSlewThreshold is how far the output offset must drift before
	// slewing begins.
	startSlewThreshold = sample.Duration(2000 * sample.Rate / 1_000_000) // 2ms
	// stopSlewThreshold is how far the offset must shrink before slewing
	// stops; it is lower than startSlewThreshold so a borderline offset
	// doesn't flap the rate on and off every tick.
	stopSlewThreshold = sample.Duration(100 * sample.Rate / 1_000_000) // 100us
	// slewTargetMicros is how long a slew is allowed to take to fully
	// correct the observed offset.
	slewTargetMicros = 500_000 // 500ms

	minRatePercent = 98
	maxRatePercent = 200
)

// RateAdjust converts a playback offset into a resampling rate
// multiplier, with hysteresis so small, self-correcting jitter doesn't
// repeatedly toggle slewing on and off.
type RateAdjust struct {
	slewing bool
}

// Calculate returns the rate multiplier to resample at (1.0 = no change)
// and whether slewing is in effect. offset is playback-clock time minus
// stream time: positive means the stream's audio reaches the output later
// than its timestamps, and the returned rate is then above 1.0 so the
// stream is consumed faster to catch up; a negative offset gives a rate
// below 1.0.
func (r *RateAdjust) Calculate(offset sample.Duration) (rate float64, slewing bool) {
	abs := offset.Abs()

	if abs < stopSlewThreshold {
		r.slewing = false
		return 1.0, false
	}

	if abs < startSlewThreshold && !r.slewing {
		return 1.0, false
	}

	rateOffset := float64(offset) * 1_000_000 / float64(slewTargetMicros) / float64(sample.Rate)
	rate = 1.0 + rateOffset

	if rate < float64(minRatePercent)/100 {
		rate = float64(minRatePercent) / 100
	}
	if rate > float64(maxRatePercent)/100 {
		rate = float64(maxRatePercent) / 100
	}

	r.slewing = true
	return rate, true
}

// Slewing reports whether the most recent Calculate call was slewing.
func (r *RateAdjust) Slewing() bool {
	return r.slewing
}
