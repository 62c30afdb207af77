// Package receiver implements the playback side: follow a source's
// broadcast session, estimate its clock, absorb reordering and loss in a
// jitter queue, and drive local playback through the sync/slew state
// machine so audio lands on its PTS instant.
package receiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/syncwave/syncwave/clockest"
	"github.com/syncwave/syncwave/device"
	"github.com/syncwave/syncwave/jitter"
	"github.com/syncwave/syncwave/nodestats"
	"github.com/syncwave/syncwave/outbuf"
	"github.com/syncwave/syncwave/procutil"
	"github.com/syncwave/syncwave/proto"
	"github.com/syncwave/syncwave/sample"
	"github.com/syncwave/syncwave/slew"
	"github.com/syncwave/syncwave/syncfsm"
	"github.com/syncwave/syncwave/transport"
)

// drainPollInterval is how often drainLoop retries when the queue front
// isn't ready to produce audio yet (seeking, or waiting for the next
// packet to arrive).
const drainPollInterval = 2 * time.Millisecond

// Runtime owns one receiver's full playback pipeline: network intake,
// jitter absorption, sync decisions, slew resampling, and output.
type Runtime struct {
	ReceiverID proto.ReceiverID

	conn   transport.Conn
	output device.Output
	clock  sample.Clock

	mu         sync.Mutex
	sessionID  proto.SessionID
	hasSession bool
	queue      *jitter.Queue
	machine    *syncfsm.Machine

	// nextPTS/hasNextPTS track where the next slot's audio (real or hole)
	// belongs in the ring's timeline, so a hole with no PTS of its own
	// still lands where the stream implies it should. Set by drainLoop
	// (the single goroutine that calls pushSlotToRing) and cleared by
	// handleAudio on a session change, always under mu.
	nextPTS    sample.Timestamp
	hasNextPTS bool

	estMu     sync.Mutex
	estimator *clockest.Estimator

	ring *outbuf.Ring
	slew *slew.Driver
	node *nodestats.Collector
	log  *logrus.Entry
}

// ringCapacity is how much audio the output ring buffers between the
// network/drain goroutine and the playback goroutine.
const ringCapacity = sample.Duration(4 * sample.FramesPerPacket)

// New constructs a Runtime that is not yet following any session; it
// adopts the first source it hears from.
func New(conn transport.Conn, output device.Output, clock sample.Clock, maxSeqGap uint64) (*Runtime, error) {
	node, err := nodestats.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("receiver: node stats: %w", err)
	}

	q := jitter.NewQueue()
	if maxSeqGap > 0 {
		q.MaxSeqGap = maxSeqGap
	}

	rid := proto.NewReceiverID()
	return &Runtime{
		ReceiverID: rid,
		conn:       conn,
		output:     output,
		clock:      clock,
		queue:      q,
		machine:    syncfsm.New(),
		estimator:  clockest.NewEstimator(),
		ring:       outbuf.NewRing(ringCapacity),
		slew:       slew.NewDriver(sample.Channels),
		node:       node,
		log:        logrus.WithField("receiver_id", fmt.Sprintf("%x", uint64(rid))),
	}, nil
}

// Run drives the receiver until ctx is canceled or a fatal error occurs in
// any of its three goroutines: network intake, queue drain, and playback.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.networkLoop(ctx) })
	g.Go(func() error { return r.drainLoop(ctx) })
	g.Go(func() error { return r.playbackLoop(ctx) })

	err := g.Wait()
	r.conn.Close()
	r.output.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// networkLoop reads datagrams and dispatches each to its handler; it is
// the only goroutine that changes r.sessionID, pushes into r.queue, and
// feeds r.estimator (drainLoop pops from r.queue).
func (r *Runtime) networkLoop(ctx context.Context) error {
	buf := make([]byte, proto.MaxPacketLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, peer, err := r.conn.RecvFrom(buf)
		if err != nil {
			return fmt.Errorf("receiver: recv: %w", err)
		}

		pkt, err := proto.ParsePacket(buf[:n])
		if err != nil {
			continue
		}

		switch {
		case pkt.Audio != nil:
			r.handleAudio(pkt.Audio)
		case pkt.Time != nil:
			r.handleTime(pkt.Time, peer)
		case pkt.IsStatsReq:
			r.handleStatsRequest(peer)
		}
		// StatsReply packets are for the `stats` probe, not this runtime.
	}
}

func (r *Runtime) handleAudio(a *proto.AudioPacket) {
	r.mu.Lock()
	if !r.hasSession || a.SessionID > r.sessionID {
		if r.hasSession && a.SessionID > r.sessionID {
			r.log.WithField("new_session", fmt.Sprintf("%x", uint64(a.SessionID))).Info("receiver: following new higher-sid source")
		}
		r.sessionID = a.SessionID
		r.hasSession = true
		r.queue.Reset()
		r.machine.Miss()
		r.slew.Reset()
		r.hasNextPTS = false
	} else if a.SessionID < r.sessionID {
		r.mu.Unlock()
		return // stale source, ignore
	}
	r.mu.Unlock()

	hasPTS, localPTS := r.sourceToLocal(a.PTS)
	now := r.clock.NowMicros()
	est := r.clockEstimate()
	if reset := r.pushAudio(a.Seq, localPTS, hasPTS, a.Payload, now, a.DTS, est); reset {
		r.machine.Miss()
		r.slew.Reset()
	}
}

func (r *Runtime) pushAudio(seq uint64, pts sample.Timestamp, hasPTS bool, payload []byte, now, dts sample.Micros, est jitter.ClockEstimate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Push(seq, pts, hasPTS, payload, now, dts, est)
}

// clockEstimate snapshots the current clock estimator into a
// jitter.ClockEstimate, for use by Push's predict-offset computation.
func (r *Runtime) clockEstimate() jitter.ClockEstimate {
	r.estMu.Lock()
	defer r.estMu.Unlock()
	if r.estimator.SampleCount() == 0 {
		return jitter.ClockEstimate{}
	}
	return jitter.ClockEstimate{
		Valid:          true,
		NetworkLatency: r.estimator.MedianRTT() / 2,
		ClockDelta:     r.estimator.MedianDelta(),
	}
}

// sourceToLocal converts a source-clock wire timestamp into the receiver's
// own sample-domain Timestamp using the current clock delta estimate. It
// reports false if no clock exchange has completed yet, since there is no
// basis for the conversion.
func (r *Runtime) sourceToLocal(srcMicros sample.Micros) (bool, sample.Timestamp) {
	r.estMu.Lock()
	defer r.estMu.Unlock()
	if r.estimator.SampleCount() == 0 {
		return false, 0
	}
	deltaMicros := r.estimator.MedianDelta().Microseconds()
	localMicros := int64(srcMicros) + deltaMicros
	return true, sample.FromMicros(sample.Micros(localMicros))
}

func (r *Runtime) handleTime(t *proto.TimePacket, peer string) {
	switch t.Phase() {
	case proto.PhaseBroadcast:
		r.mu.Lock()
		if !r.hasSession {
			r.sessionID = t.SessionID
			r.hasSession = true
		}
		following := t.SessionID == r.sessionID
		r.mu.Unlock()
		if !following {
			return
		}

		reply := *t
		reply.ReceiverID = r.ReceiverID
		reply.Receive2 = r.clock.NowMicros()
		if err := r.conn.SendTo(proto.MarshalTime(reply), peer); err != nil {
			r.log.WithError(err).Warn("receiver: failed to reply to time broadcast")
		}

	case proto.PhaseStreamReply:
		if t.ReceiverID != r.ReceiverID {
			return // reply addressed to a different receiver
		}
		receive4 := r.clock.NowMicros()

		r.estMu.Lock()
		r.estimator.Observe(clockest.Sample{
			Stream1:  t.Stream1,
			Receive2: t.Receive2,
			Stream3:  t.Stream3,
			Receive4: receive4,
		})
		r.estMu.Unlock()

	default:
		// PhaseReceiverReply is a message this receiver sends, never
		// receives; PhaseUnknown carries nothing actionable.
	}
}

func (r *Runtime) handleStatsRequest(peer string) {
	sid, rs := r.Stats()
	reply := proto.StatsReplyPacket{
		SessionID: sid,
		Receiver:  rs,
		Node:      r.node.Collect(),
	}
	wire := proto.MarshalStatsReply(reply, proto.FlagIsReceiver)
	if err := r.conn.SendTo(wire, peer); err != nil {
		r.log.WithError(err).Warn("receiver: failed to reply to stats request")
	}
}

// Stats reports the current session id and a ReceiverStats snapshot, for
// use by callers reporting this runtime's state outside the stats wire
// protocol (the local metrics server, for instance).
func (r *Runtime) Stats() (proto.SessionID, proto.ReceiverStats) {
	r.mu.Lock()
	sid := r.sessionID
	state := r.machine.State()
	predictOffset, hasPredictOffset := r.queue.PredictOffset()
	r.mu.Unlock()

	// Offset is request PTS minus the buffered front span's PTS: exactly
	// spec's "audio latency". Buffered is the total duration still queued,
	// independent of whether the front span carries a timestamp.
	offset, hasOffset := r.ring.Offset()
	audioLatency := float64(offset.Micros()) / 1e6
	bufSeconds := float64(r.ring.Buffered().Micros()) / 1e6

	r.estMu.Lock()
	networkLatency := r.estimator.MedianRTT().Seconds() / 2
	hasNetworkLatency := r.estimator.SampleCount() > 0
	r.estMu.Unlock()

	var rs proto.ReceiverStats
	rs.Status = statusFor(state)
	if hasOffset {
		rs.SetAudioLatency(audioLatency)
	}
	rs.SetBufferLength(bufSeconds)
	if hasPredictOffset {
		rs.SetPredictOffset(predictOffset)
	}
	if hasNetworkLatency {
		rs.SetNetworkLatency(networkLatency)
	}
	return sid, rs
}

// NodeStats reports this runtime's process-level resource usage.
func (r *Runtime) NodeStats() proto.NodeStats {
	return r.node.Collect()
}

func statusFor(s syncfsm.State) proto.StreamStatus {
	switch s {
	case syncfsm.Seek:
		return proto.StatusSeek
	case syncfsm.Sync:
		return proto.StatusSync
	case syncfsm.Slew:
		return proto.StatusSlew
	case syncfsm.Miss:
		return proto.StatusMiss
	default:
		return proto.StatusSeek
	}
}

// drainLoop moves audio from the jitter queue into the output ring,
// consulting the sync state machine about whether the queue front is
// ready, early, or too late to use.
func (r *Runtime) drainLoop(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for r.drainOnce() {
			// keep draining while there's queued audio ready to move,
			// without waiting for the next poll tick.
		}
	}
}

// drainOnce attempts to move one slot's worth of audio into the ring. It
// returns true if it made progress and should be called again
// immediately.
func (r *Runtime) drainOnce() bool {
	r.mu.Lock()
	state := r.machine.State()

	if state == syncfsm.Sync || state == syncfsm.Slew {
		slot, ok := r.queue.PopFront()
		r.mu.Unlock()
		if !ok {
			return false
		}
		r.pushSlotToRing(slot, 0)
		return true
	}

	front, ok := r.queue.Front()
	if !ok {
		r.mu.Unlock()
		return false
	}
	nowPTS := r.clock.Now()
	decision := r.machine.Decide(front.HasPTS, front.PTS, nowPTS, sample.OnePacket)

	switch decision.Action {
	case syncfsm.ActionDropSlot:
		r.queue.PopFront()
		r.mu.Unlock()
		return true

	case syncfsm.ActionPartialConsume:
		slot, _ := r.queue.PopFront()
		r.mu.Unlock()
		r.pushSlotToRing(slot, decision.Skew)
		return true

	case syncfsm.ActionZeroFillPartial:
		slot, _ := r.queue.PopFront()
		r.mu.Unlock()
		r.pushSlotToRing(slot, 0)
		return true

	case syncfsm.ActionZeroFillFull:
		r.mu.Unlock()
		return false

	default:
		r.mu.Unlock()
		return false
	}
}

// pushSlotToRing decodes a slot's payload (if any) and writes it to the
// ring, skipping the first skew samples (used when the slot's start is
// already slightly in the past). A hole (no packet ever arrived for this
// slot) writes one packet's worth of silence instead of nothing, so its gap
// is represented in the ring's timeline rather than compressed out of it.
func (r *Runtime) pushSlotToRing(slot jitter.Slot, skew sample.Duration) {
	if !slot.HasAudio {
		pts, ok := r.holePTS(slot)
		if !ok {
			return // no established timeline yet to place this hole on
		}
		r.ring.Write(pts, make([]float32, sample.OnePacket.AsBufferOffset()))
		r.setNextPTS(pts.Add(sample.OnePacket))
		return
	}

	samples := proto.DecodeSamples(slot.Payload)
	pts := slot.PTS
	if skew > 0 {
		off := skew.AsBufferOffset()
		if off < len(samples) {
			samples = samples[off:]
			pts = pts.Add(skew)
		} else {
			return
		}
	}
	r.ring.Write(pts, samples)
	r.setNextPTS(pts.Add(sample.FromBufferOffset(len(samples))))
}

// holePTS reports where a hole slot's silence belongs in the ring's
// timeline: the slot's own PTS if somehow known, otherwise wherever the
// previously written slot (real audio or another hole) left off.
func (r *Runtime) holePTS(slot jitter.Slot) (sample.Timestamp, bool) {
	if slot.HasPTS {
		return slot.PTS, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextPTS, r.hasNextPTS
}

// setNextPTS records where the next slot written to the ring should start,
// under the same lock handleAudio uses to clear it on a session reset.
func (r *Runtime) setNextPTS(pts sample.Timestamp) {
	r.mu.Lock()
	r.nextPTS = pts
	r.hasNextPTS = true
	r.mu.Unlock()
}

// playbackLoop drains the ring at the pace device.Output.Write demands,
// resampling through the slew driver when the machine calls for it, and
// reports underruns back to the state machine.
func (r *Runtime) playbackLoop(ctx context.Context) error {
	procutil.PinAudioThread()

	out := make([]float32, sample.FramesPerPacket*sample.Channels)
	scratch := make([]float32, sample.FramesPerPacket*sample.Channels)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		nowPTS := r.clock.Now()
		underrun := r.ring.Read(nowPTS, scratch)
		if underrun {
			r.mu.Lock()
			r.machine.Miss()
			r.mu.Unlock()
		}

		r.mu.Lock()
		state := r.machine.State()
		r.mu.Unlock()

		final := scratch
		if state == syncfsm.Sync || state == syncfsm.Slew {
			if offset, ok := r.ring.Offset(); ok {
				rate := r.machine.UpdateRate(offset)
				r.slew.SetRatio(rate)
			}
			if r.slew.Ratio() != 1.0 {
				_, written := r.slew.Process(scratch, out)
				final = out[:written]
			}
		}

		if err := r.output.Write(final); err != nil {
			return fmt.Errorf("receiver: device write: %w", err)
		}
	}
}
