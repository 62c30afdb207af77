package syncfsm

import (
	"testing"

	"github.com/syncwave/syncwave/sample"
)

func TestDecideDropsHoleSlot(t *testing.T) {
	m := New()
	d := m.Decide(false, 0, 0, sample.Duration(480))
	if d.Action != ActionDropSlot {
		t.Fatalf("Action = %v, want ActionDropSlot", d.Action)
	}
	if m.State() != Seek {
		t.Fatalf("State() = %v, want Seek", m.State())
	}
}

func TestDecideDropsFarLateSlot(t *testing.T) {
	m := New()
	front := sample.Timestamp(0)
	now := front.Add(sample.OnePacket + 1)
	d := m.Decide(true, front, now, sample.Duration(480))
	if d.Action != ActionDropSlot {
		t.Fatalf("Action = %v, want ActionDropSlot", d.Action)
	}
}

func TestDecidePartialConsumeSyncsOnSmallLate(t *testing.T) {
	m := New()
	front := sample.Timestamp(1000)
	now := front.Add(50)
	d := m.Decide(true, front, now, sample.Duration(480))
	if d.Action != ActionPartialConsume || d.Skew != 50 {
		t.Fatalf("Decide() = %+v, want ActionPartialConsume Skew=50", d)
	}
	if m.State() != Sync {
		t.Fatalf("State() = %v, want Sync", m.State())
	}
}

func TestDecideZeroFillsFullyWhenEntirelyEarly(t *testing.T) {
	m := New()
	front := sample.Timestamp(10_000)
	now := sample.Timestamp(0)
	d := m.Decide(true, front, now, sample.Duration(100))
	if d.Action != ActionZeroFillFull {
		t.Fatalf("Action = %v, want ActionZeroFillFull", d.Action)
	}
	if m.State() != Seek {
		t.Fatalf("State() = %v, want Seek (not yet synced)", m.State())
	}
}

func TestDecideZeroFillsPartialAndSyncs(t *testing.T) {
	m := New()
	front := sample.Timestamp(30)
	now := sample.Timestamp(0)
	d := m.Decide(true, front, now, sample.Duration(480))
	if d.Action != ActionZeroFillPartial || d.Skew != 30 {
		t.Fatalf("Decide() = %+v, want ActionZeroFillPartial Skew=30", d)
	}
	if m.State() != Sync {
		t.Fatalf("State() = %v, want Sync", m.State())
	}
}

func TestMissForcesReseekOnNextDecide(t *testing.T) {
	m := New()
	m.Decide(true, sample.Timestamp(30), sample.Timestamp(0), sample.Duration(480))
	if m.State() != Sync {
		t.Fatalf("precondition: State() = %v, want Sync", m.State())
	}
	m.Miss()
	if m.State() != Miss {
		t.Fatalf("State() after Miss = %v, want Miss", m.State())
	}
	// Miss does not debounce: a single successful Decide call returns
	// straight to Sync.
	d := m.Decide(true, sample.Timestamp(0), sample.Timestamp(0), sample.Duration(480))
	if d.Action != ActionPartialConsume && d.Action != ActionZeroFillPartial {
		t.Fatalf("Decide() after Miss = %+v, want sync-producing action", d)
	}
	if m.State() != Sync {
		t.Fatalf("State() = %v, want Sync", m.State())
	}
}
