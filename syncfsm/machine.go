// Package syncfsm implements the receiver's playback synchronization state
// machine: deciding, tick by tick, whether to drop a late packet, fill
// silence for an early one, or hand audio straight through, and whether
// the output clock needs to be slewed to track the source.
package syncfsm

import "github.com/syncwave/syncwave/sample"

// State is one of the four playback states a receiver can be in.
type State int

const (
	// Seek is the initial state: the receiver has not yet aligned the
	// queue front's PTS with its own playback clock.
	Seek State = iota
	// Sync means the playback clock is aligned and packets are being
	// consumed in order with no resampling.
	Sync
	// Slew means playback is aligned but the output rate is being
	// nudged to correct accumulated drift.
	Slew
	// Miss means an underrun was detected (no audio available when
	// needed); the machine re-seeks on the next Decide.
	Miss
)

func (s State) String() string {
	switch s {
	case Seek:
		return "seek"
	case Sync:
		return "sync"
	case Slew:
		return "slew"
	case Miss:
		return "miss"
	default:
		return "unknown"
	}
}

// Action is what the caller should do with the current output span.
type Action int

const (
	// ActionDropSlot means pop the queue front without producing audio
	// and retry against the new front.
	ActionDropSlot Action = iota
	// ActionPartialConsume means the front slot's PTS is in the past by
	// Skew; consume Skew samples from it before reading normally.
	ActionPartialConsume
	// ActionZeroFillFull means the entire requested span is earlier than
	// the queue front's PTS; fill it all with silence.
	ActionZeroFillFull
	// ActionZeroFillPartial means the first Skew samples of the
	// requested span are silence, after which playback is synced.
	ActionZeroFillPartial
)

// Decision is the result of one Decide call.
type Decision struct {
	Action Action
	Skew   sample.Duration
}

// Machine holds sync/slew state across calls. It is not safe for
// concurrent use; callers serialize access the way they serialize access
// to the audio callback or session lock that owns it.
type Machine struct {
	state State
	rate  RateAdjust
}

// New returns a Machine in the Seek state.
func New() *Machine {
	return &Machine{state: Seek}
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// Decide evaluates one output span against the queue front's PTS. It
// should be called whenever the machine is in Seek or Miss; once it
// returns ActionPartialConsume or ActionZeroFillPartial the machine has
// transitioned to Sync and the caller should switch to normal playback
// (and periodic UpdateRate calls) instead.
//
// hasPTS is false when the front slot is a hole (its packet never
// arrived, or PTS has not yet been adjusted by a clock estimate): such a
// slot is skipped outright, since there's nothing to align to.
func (m *Machine) Decide(hasPTS bool, frontPTS, nowPTS sample.Timestamp, wantLen sample.Duration) Decision {
	if !hasPTS {
		return Decision{Action: ActionDropSlot}
	}

	if nowPTS > frontPTS {
		late := nowPTS.DurationSince(frontPTS)
		if late >= sample.OnePacket {
			// too late to salvage this slot at all.
			return Decision{Action: ActionDropSlot}
		}
		m.state = Sync
		return Decision{Action: ActionPartialConsume, Skew: late}
	}

	early := frontPTS.DurationSince(nowPTS)
	if early >= wantLen {
		return Decision{Action: ActionZeroFillFull}
	}

	m.state = Sync
	return Decision{Action: ActionZeroFillPartial, Skew: early}
}

// Miss marks an underrun: the next Decide call re-seeks from scratch
// rather than assuming the previous sync still holds. Per design, Miss
// does not debounce — Slew's own hysteresis already damps small,
// recurring offsets, and a second debounce layer here would just fight it.
func (m *Machine) Miss() {
	m.state = Miss
}

// UpdateRate feeds the current output buffer offset (output.offset, not
// the pre-sync queue-front offset Decide uses) into the rate controller
// and moves between Sync and Slew accordingly. It must only be called
// while the machine is in Sync or Slew.
func (m *Machine) UpdateRate(offset sample.Duration) float64 {
	rate, slewing := m.rate.Calculate(offset)
	if slewing {
		m.state = Slew
	} else {
		m.state = Sync
	}
	return rate
}
