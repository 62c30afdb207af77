// Package slew drives the fractional-rate resampler that lets a receiver
// nudge its output clock toward the source's without an audible glitch:
// rather than ever dropping or duplicating a sample, it reads its input at
// a continuously adjusted ratio.
package slew

import (
	"github.com/tphakala/go-audio-resampler/resampler"

	"github.com/syncwave/syncwave/sample"
)

// Driver resamples interleaved f32 audio at a caller-controlled ratio. A
// ratio of 1.0 passes audio through unchanged; above 1.0 it stretches
// (plays slower, to catch a source that is ahead), below 1.0 it
// compresses (plays faster, to let a lagging source catch up).
type Driver struct {
	r     *resampler.Resampler
	ratio float64
}

// NewDriver returns a Driver for interleaved audio with the given channel
// count, initialized to a 1.0 ratio (pass-through).
func NewDriver(channels int) *Driver {
	return &Driver{
		r:     resampler.New(channels, sample.Rate, sample.Rate),
		ratio: 1.0,
	}
}

// SetRatio updates the resampling ratio applied to subsequent Process
// calls. It is cheap to call every tick; the underlying resampler carries
// fractional phase across calls so the ratio can change continuously
// without introducing a discontinuity.
func (d *Driver) SetRatio(ratio float64) {
	d.ratio = ratio
	d.r.SetRatio(ratio)
}

// Ratio returns the ratio most recently set.
func (d *Driver) Ratio() float64 {
	return d.ratio
}

// Process resamples as much of in as fits into out, returning how many
// interleaved samples were consumed from in and produced into out. The
// caller advances its own read/write cursors by these counts; Process may
// consume less than all of in (out ran out of room) or produce less than
// all of out (in ran out of samples).
func (d *Driver) Process(in, out []float32) (read, written int) {
	return d.r.Process(in, out)
}

// Reset clears any fractional phase carried between calls, used after a
// discontinuity (e.g. a queue reset) where continuing the previous phase
// would be meaningless.
func (d *Driver) Reset() {
	d.r.Reset()
}
