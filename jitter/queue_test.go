package jitter

import (
	"testing"
	"time"
)

func TestPushContiguousNoHoles(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, false, []byte{1}, 0, 0, ClockEstimate{})
	q.Push(2, 0, false, []byte{2}, 0, 0, ClockEstimate{})
	q.Push(3, 0, false, []byte{3}, 0, 0, ClockEstimate{})

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	for i, want := range []uint64{1, 2, 3} {
		s := q.slots[i]
		if s.Seq != want || !s.HasAudio {
			t.Fatalf("slot %d: Seq=%d HasAudio=%v, want Seq=%d HasAudio=true", i, s.Seq, s.HasAudio, want)
		}
	}
}

func TestPushFillsHoles(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, false, []byte{1}, 0, 0, ClockEstimate{})
	q.Push(4, 0, false, []byte{4}, 0, 0, ClockEstimate{}) // skip 2, 3

	if q.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", q.Len())
	}
	if q.slots[1].HasAudio || q.slots[2].HasAudio {
		t.Fatal("slots 2 and 3 should be holes")
	}
	if !q.slots[3].HasAudio || q.slots[3].Seq != 4 {
		t.Fatalf("slot 3 = %+v, want seq 4 with audio", q.slots[3])
	}
}

func TestPushOutOfOrderFillsExistingHole(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, false, []byte{1}, 0, 0, ClockEstimate{})
	q.Push(3, 0, false, []byte{3}, 0, 0, ClockEstimate{})
	q.Push(2, 0, false, []byte{2}, 0, 0, ClockEstimate{}) // fills the hole left behind

	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	if !q.slots[1].HasAudio || q.slots[1].Seq != 2 {
		t.Fatalf("slot 1 = %+v, want seq 2 with audio", q.slots[1])
	}
}

func TestPushBeyondMaxSeqGapResets(t *testing.T) {
	q := NewQueue()
	q.MaxSeqGap = 4
	q.Push(1, 0, false, []byte{1}, 0, 0, ClockEstimate{})
	q.Push(2, 0, false, []byte{2}, 0, 0, ClockEstimate{})

	reset := q.Push(100, 0, false, []byte{100}, 0, 0, ClockEstimate{})
	if !reset {
		t.Fatal("expected Push to report a reset")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() after reset = %d, want 1", q.Len())
	}
	s, ok := q.Front()
	if !ok || s.Seq != 100 {
		t.Fatalf("Front() after reset = %+v, want seq 100", s)
	}
}

func TestPopFrontAdvancesFrontSeq(t *testing.T) {
	q := NewQueue()
	q.Push(5, 0, false, []byte{5}, 0, 0, ClockEstimate{})
	q.Push(6, 0, false, []byte{6}, 0, 0, ClockEstimate{})

	s, ok := q.PopFront()
	if !ok || s.Seq != 5 {
		t.Fatalf("PopFront() = %+v, want seq 5", s)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}

	// pushing seq 7 now should extend from the new back (6), not reopen 5
	q.Push(7, 0, false, []byte{7}, 0, 0, ClockEstimate{})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
}

func TestPushStaleSeqIsDropped(t *testing.T) {
	q := NewQueue()
	q.Push(10, 0, false, []byte{10}, 0, 0, ClockEstimate{})
	q.PopFront()

	reset := q.Push(10, 0, false, []byte{10}, 0, 0, ClockEstimate{}) // already popped, now stale
	if reset {
		t.Fatal("a stale push should not reset the queue")
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 (stale push must be dropped)", q.Len())
	}
}

func TestQueueEmptyAfterPoppingLastSlot(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, false, []byte{1}, 0, 0, ClockEstimate{})
	q.PopFront()
	if _, ok := q.Front(); ok {
		t.Fatal("Front() should report empty after last slot popped")
	}
}

func TestPushWithoutClockEstimateLeavesPredictOffsetAbsent(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, false, []byte{1}, 1000, 900, ClockEstimate{})
	if _, ok := q.PredictOffset(); ok {
		t.Fatal("expected no predict offset without a valid clock estimate")
	}
}

func TestPushComputesPredictOffset(t *testing.T) {
	q := NewQueue()
	est := ClockEstimate{
		Valid:          true,
		NetworkLatency: 5 * time.Millisecond,
		ClockDelta:     20 * time.Millisecond,
	}
	// predict_dts = now - latency - delta = 1_000_000 - 5_000 - 20_000 = 975_000
	// offset = predict_dts - dts = 975_000 - 900_000 = 75_000us = 0.075s
	q.Push(1, 0, false, []byte{1}, 1_000_000, 900_000, est)

	offset, ok := q.PredictOffset()
	if !ok {
		t.Fatal("expected a predict offset after a push with a valid clock estimate")
	}
	if offset != 0.075 {
		t.Fatalf("PredictOffset() = %v, want 0.075", offset)
	}
}

func TestResetClearsPredictOffset(t *testing.T) {
	q := NewQueue()
	q.Push(1, 0, false, []byte{1}, 1_000_000, 900_000, ClockEstimate{Valid: true})
	if _, ok := q.PredictOffset(); !ok {
		t.Fatal("expected a predict offset before reset")
	}
	q.Reset()
	if _, ok := q.PredictOffset(); ok {
		t.Fatal("expected predict offset to be cleared by Reset")
	}
}

// TestScenarioS4ReorderedTailOfEveryBlockStillReconstructs covers the S4
// scenario: in every block of 10 packets the last 3 arrive out of order
// relative to each other (and ahead of the ones before them), but nothing
// is actually lost. The queue must still reconstruct full seq-contiguous
// blocks with every slot carrying real audio, regardless of arrival order.
func TestScenarioS4ReorderedTailOfEveryBlockStillReconstructs(t *testing.T) {
	q := NewQueue()
	const blocks = 2
	for b := 0; b < blocks; b++ {
		base := uint64(b * 10)
		// first 7 of the block arrive in order
		for i := uint64(0); i < 7; i++ {
			seq := base + i
			q.Push(seq, 0, false, []byte{byte(seq)}, 0, 0, ClockEstimate{})
		}
		// last 3 arrive reordered: +9, then +7, then +8
		for _, off := range []uint64{9, 7, 8} {
			seq := base + off
			q.Push(seq, 0, false, []byte{byte(seq)}, 0, 0, ClockEstimate{})
		}
	}

	if q.Len() != blocks*10 {
		t.Fatalf("Len() = %d, want %d", q.Len(), blocks*10)
	}
	for i, s := range q.slots {
		if !s.HasAudio {
			t.Fatalf("slot %d (seq %d) is a hole; every packet in this scenario actually arrived", i, s.Seq)
		}
		if s.Seq != uint64(i) {
			t.Fatalf("slot %d has Seq %d, want %d (contiguity broken by reordering)", i, s.Seq, i)
		}
		if len(s.Payload) != 1 || s.Payload[0] != byte(s.Seq) {
			t.Fatalf("slot %d payload = %v, want the packet stamped for seq %d", i, s.Payload, s.Seq)
		}
	}
}
