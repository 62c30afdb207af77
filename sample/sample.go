// Package sample holds the sample-domain time primitives used everywhere a
// PTS or a duration needs to be reasoned about exactly: a monotonic sample
// counter and signed sample-duration deltas, plus lossy conversions to and
// from the wire's microsecond timestamps.
package sample

import "time"

// Rate is the fixed output sample rate, in Hz.
const Rate = 48000

// Channels is the fixed interleaved channel count.
const Channels = 2

// FramesPerPacket is the fixed number of frames (samples across all
// channels) carried by a single audio packet.
const FramesPerPacket = 960

// Timestamp is an unsigned sample counter on a monotonic clock.
type Timestamp uint64

// Micros is a wire-form timestamp: microseconds since an arbitrary but
// stable epoch.
type Micros uint64

// Duration is a signed count of sample frames. It is exact; only the
// conversion to/from Micros is lossy.
type Duration int64

// Zero is the zero duration.
const Zero Duration = 0

// OnePacket is the duration of one audio packet.
const OnePacket Duration = FramesPerPacket

// FromBufferOffset converts a sample-buffer offset (interleaved samples,
// i.e. frames*Channels) into a Duration.
func FromBufferOffset(offset int) Duration {
	return Duration(offset / Channels)
}

// AsBufferOffset converts a Duration into a sample-buffer offset.
func (d Duration) AsBufferOffset() int {
	return int(d) * Channels
}

// Add returns d+other.
func (d Duration) Add(other Duration) Duration {
	return d + other
}

// Sub returns d-other.
func (d Duration) Sub(other Duration) Duration {
	return d - other
}

// Abs returns the absolute value of d.
func (d Duration) Abs() Duration {
	if d < 0 {
		return -d
	}
	return d
}

// IsZero reports whether d is zero.
func (d Duration) IsZero() bool {
	return d == 0
}

// Micros converts d to a (lossy, truncating) microsecond count at Rate.
func (d Duration) Micros() int64 {
	return int64(d) * 1_000_000 / Rate
}

// DurationFromMicros converts a signed microsecond delta into a Duration,
// lossy at sub-microsecond precision.
func DurationFromMicros(us int64) Duration {
	return Duration(us * Rate / 1_000_000)
}

// Add advances a Timestamp by a Duration. Duration may be negative.
func (t Timestamp) Add(d Duration) Timestamp {
	return Timestamp(int64(t) + int64(d))
}

// DurationSince returns t-other as a signed Duration (positive if t is
// later than other).
func (t Timestamp) DurationSince(other Timestamp) Duration {
	return Duration(int64(t) - int64(other))
}

// ToMicros converts t to wire form, lossy at sub-microsecond precision.
// Both Timestamp and Micros are offsets from the same per-process epoch
// (the moment the node's Clock was constructed), which is all the wire
// protocol requires ("an arbitrary but stable epoch").
func (t Timestamp) ToMicros() Micros {
	return Micros(Duration(t).Micros())
}

// FromMicros converts a wire timestamp back into the sample domain.
func FromMicros(us Micros) Timestamp {
	return Timestamp(DurationFromMicros(int64(us)))
}

// Clock is the monotonic source of "now" used by both ends of the
// protocol. It exists so tests can substitute a fake clock; production
// code uses SystemClock.
type Clock interface {
	Now() Timestamp
	NowMicros() Micros
}

// SystemClock implements Clock using the process monotonic clock, anchored
// at the moment it is constructed.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored to the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the current sample-domain timestamp.
func (c *SystemClock) Now() Timestamp {
	return Timestamp(DurationFromMicros(time.Since(c.start).Microseconds()))
}

// NowMicros returns the current wire-form timestamp.
func (c *SystemClock) NowMicros() Micros {
	return Micros(time.Since(c.start).Microseconds())
}
