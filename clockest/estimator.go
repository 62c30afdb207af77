package clockest

import (
	"time"

	"github.com/eclesh/welford"

	"github.com/syncwave/syncwave/sample"
)

// Sample is one completed four-timestamp exchange: stream1/stream3 are the
// source's clock readings, receive2/receive4 are the receiver's.
type Sample struct {
	Stream1  sample.Micros
	Receive2 sample.Micros
	Stream3  sample.Micros
	Receive4 sample.Micros
}

// Estimate is the result of folding a Sample into the rolling estimator:
// the instantaneous values from this exchange and the smoothed (median)
// series they feed.
type Estimate struct {
	Delta       time.Duration // receiver clock - source clock, this sample
	RTT         time.Duration // round trip time, this sample
	MedianDelta time.Duration // rolling median of Delta
	MedianRTT   time.Duration // rolling median of RTT
	Jitter      time.Duration // stddev of every RTT sample observed so far
}

// Estimator tracks a source's clock relative to this receiver's clock,
// using the four-timestamp exchange in clockest.Sample and smoothing with
// a rolling median to reject individual outliers (e.g. an OS scheduling
// hiccup on one exchange).
type Estimator struct {
	deltaWindow *window
	rttWindow   *window
	rttJitter   *welford.Stats
}

// NewEstimator returns an Estimator with the default window size.
func NewEstimator() *Estimator {
	return NewEstimatorSize(DefaultWindowSize)
}

// NewEstimatorSize returns an Estimator whose rolling windows hold size
// samples.
func NewEstimatorSize(size int) *Estimator {
	return &Estimator{
		deltaWindow: newWindow(size),
		rttWindow:   newWindow(size),
		rttJitter:   welford.New(),
	}
}

// Observe folds one completed exchange into the estimator and returns the
// resulting estimate.
//
//	clock_delta = ((receive2-stream1) + (receive4-stream3)) / 2
//	rtt         = (receive4-stream1) - (stream3-receive2)
func (e *Estimator) Observe(s Sample) Estimate {
	stream1 := int64(s.Stream1)
	receive2 := int64(s.Receive2)
	stream3 := int64(s.Stream3)
	receive4 := int64(s.Receive4)

	toSource := stream3 - receive2 // source's own processing delay
	roundTrip := (receive4 - stream1) - toSource

	serverToClient := receive2 - stream1
	clientToServer := receive4 - stream3
	delta := (serverToClient + clientToServer) / 2

	e.deltaWindow.add(float64(delta))
	e.rttWindow.add(float64(roundTrip))
	e.rttJitter.Add(float64(roundTrip))

	return Estimate{
		Delta:       time.Duration(delta) * time.Microsecond,
		RTT:         time.Duration(roundTrip) * time.Microsecond,
		MedianDelta: time.Duration(int64(e.deltaWindow.median())) * time.Microsecond,
		MedianRTT:   time.Duration(int64(e.rttWindow.median())) * time.Microsecond,
		Jitter:      time.Duration(int64(e.rttJitter.Stddev())) * time.Microsecond,
	}
}

// MedianDelta returns the current rolling-median clock delta without
// requiring a new observation. NaN (no samples yet) is reported as zero.
func (e *Estimator) MedianDelta() time.Duration {
	v := e.deltaWindow.median()
	if v != v { // NaN
		return 0
	}
	return time.Duration(int64(v)) * time.Microsecond
}

// MedianRTT returns the current rolling-median round-trip time.
func (e *Estimator) MedianRTT() time.Duration {
	v := e.rttWindow.median()
	if v != v {
		return 0
	}
	return time.Duration(int64(v)) * time.Microsecond
}

// SampleCount reports how many observations are currently retained in the
// rolling window (capped at the window size).
func (e *Estimator) SampleCount() int {
	return e.deltaWindow.currentSize
}
