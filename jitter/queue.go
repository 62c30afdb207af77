// Package jitter implements the sequence-indexed packet queue a receiver
// uses to absorb network reordering and loss before handing audio to the
// sync state machine.
package jitter

import (
	"time"

	"github.com/syncwave/syncwave/sample"
)

// DefaultMaxSeqGap is the largest sequence-number gap the queue will fill
// with holes before concluding the stream restarted and resetting instead.
const DefaultMaxSeqGap = 12

// Slot is one sequence-numbered position in the queue. A slot with
// HasAudio false is a hole: either not yet received, or never going to
// arrive.
type Slot struct {
	Seq      uint64
	PTS      sample.Timestamp
	HasPTS   bool
	Payload  []byte
	HasAudio bool
	Consumed sample.Duration
}

// Queue is a fixed-growth, sequence-indexed queue of audio slots. Pushing a
// packet whose sequence number is ahead of the current back expands the
// queue with holes to keep it seq-contiguous; pushing one whose gap from
// the back exceeds MaxSeqGap instead resets the queue, since filling that
// many holes would mean queueing a long run of mostly-silence.
type Queue struct {
	MaxSeqGap uint64

	slots    []Slot
	frontSeq uint64
	hasFront bool

	predictOffset    float64
	hasPredictOffset bool
}

// ClockEstimate carries the clock-estimator fields Push needs to compute
// the predict-offset stats value: how far off the source's predicted DTS
// (implied by the one-way network latency and the clock delta) was from
// the DTS it actually stamped on the packet.
type ClockEstimate struct {
	Valid          bool
	NetworkLatency time.Duration // one-way, i.e. half the round trip
	ClockDelta     time.Duration // receiver clock - source clock
}

// NewQueue returns an empty Queue using DefaultMaxSeqGap.
func NewQueue() *Queue {
	return &Queue{MaxSeqGap: DefaultMaxSeqGap}
}

// Len reports the number of slots currently held, holes included.
func (q *Queue) Len() int {
	return len(q.slots)
}

// Reset drops every slot. The next Push starts a fresh queue anchored at
// whatever sequence number it carries.
func (q *Queue) Reset() {
	q.slots = nil
	q.hasFront = false
	q.hasPredictOffset = false
}

// PredictOffset reports the most recently computed predict-offset value,
// in seconds: the difference between the source's predicted and actual
// DTS, a measure of clock-prediction error. The second return value is
// false until a Push has run with a valid ClockEstimate.
func (q *Queue) PredictOffset() (float64, bool) {
	return q.predictOffset, q.hasPredictOffset
}

// Push inserts or overwrites the slot for seq, expanding the queue from the
// back with holes as needed. It reports whether the queue was reset as a
// side effect (the gap from the previous back exceeded MaxSeqGap).
//
// now and dts are the local arrival time and the packet's stamped DTS; when
// est is valid, Push uses them to update the predict-offset estimate (see
// PredictOffset): predict_dts = now - latency - clock_delta, and the
// offset is predict_dts - dts, matching the source-clock prediction-error
// computation a receiver performs on every packet it accepts.
func (q *Queue) Push(seq uint64, pts sample.Timestamp, hasPTS bool, payload []byte, now, dts sample.Micros, est ClockEstimate) (reset bool) {
	if est.Valid {
		predictDTS := int64(now) - est.NetworkLatency.Microseconds() - est.ClockDelta.Microseconds()
		q.predictOffset = float64(predictDTS-int64(dts)) / 1e6
		q.hasPredictOffset = true
	}

	if !q.hasFront {
		q.frontSeq = seq
		q.hasFront = true
		q.slots = []Slot{{Seq: seq}}
	} else {
		backSeq := q.frontSeq + uint64(len(q.slots)) - 1
		if seq > backSeq {
			gap := seq - backSeq
			if gap > q.MaxSeqGap {
				q.frontSeq = seq
				q.slots = []Slot{{Seq: seq}}
				reset = true
			} else {
				for s := backSeq + 1; s <= seq; s++ {
					q.slots = append(q.slots, Slot{Seq: s})
				}
			}
		} else if seq < q.frontSeq {
			// packet arrived so late its slot has already been popped;
			// nothing to do but drop it.
			return reset
		}
	}

	idx := int(seq - q.frontSeq)
	slot := &q.slots[idx]
	slot.Seq = seq
	slot.PTS = pts
	slot.HasPTS = hasPTS
	slot.Payload = payload
	slot.HasAudio = true
	return reset
}

// Front returns the oldest slot without removing it, or false if the queue
// is empty.
func (q *Queue) Front() (*Slot, bool) {
	if len(q.slots) == 0 {
		return nil, false
	}
	return &q.slots[0], true
}

// PopFront removes and returns the oldest slot. The queue keeps its front
// sequence number when it empties, so a later Push of an already-popped
// seq is still dropped as stale.
func (q *Queue) PopFront() (Slot, bool) {
	if len(q.slots) == 0 {
		return Slot{}, false
	}
	s := q.slots[0]
	q.slots = q.slots[1:]
	q.frontSeq++
	return s, true
}
