// Package source implements the broadcasting side: capture PCM from an
// input device, frame it into fixed-size audio packets stamped with a PTS
// slightly ahead of now, multicast it, and answer the clock and stats
// exchanges receivers drive.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/syncwave/syncwave/device"
	"github.com/syncwave/syncwave/nodestats"
	"github.com/syncwave/syncwave/procutil"
	"github.com/syncwave/syncwave/proto"
	"github.com/syncwave/syncwave/sample"
	"github.com/syncwave/syncwave/transport"
)

// clockBroadcastInterval is how often the source emits an unsolicited
// TIME packet carrying a fresh stream_1, giving receivers without an
// in-flight exchange something to start one from.
const clockBroadcastInterval = 200 * time.Millisecond

// Runtime owns one broadcast session: its identity, its capture device,
// and the socket it streams over.
type Runtime struct {
	SessionID proto.SessionID

	conn  transport.Conn
	input device.Input
	clock sample.Clock
	delay sample.Duration

	node *nodestats.Collector

	seq uint64
	log *logrus.Entry
}

// New constructs a Runtime. delay is added to the capture timestamp
// before it becomes a packet's PTS, giving receivers room to buffer
// without the source itself needing to know anything about them.
func New(conn transport.Conn, input device.Input, clock sample.Clock, delay sample.Duration) (*Runtime, error) {
	node, err := nodestats.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("source: node stats: %w", err)
	}
	sid := proto.NewSessionID()
	return &Runtime{
		SessionID: sid,
		conn:      conn,
		input:     input,
		clock:     clock,
		delay:     delay,
		node:      node,
		seq:       1,
		log:       logrus.WithField("session_id", fmt.Sprintf("%x", uint64(sid))),
	}, nil
}

// NodeStats reports this runtime's process-level resource usage.
func (r *Runtime) NodeStats() proto.NodeStats {
	return r.node.Collect()
}

// Run drives the source until ctx is canceled: a capture loop broadcasting
// audio, a clock thread broadcasting TIME packets, and a network loop
// answering receivers' replies and stats requests. It blocks until one of
// those stops (ctx cancellation, a read error, or a higher-SID takeover)
// and returns the reason.
func (r *Runtime) Run(ctx context.Context) error {
	errc := make(chan error, 3)

	go func() { errc <- r.captureLoop(ctx) }()
	go func() { errc <- r.clockLoop(ctx) }()
	go func() { errc <- r.networkLoop(ctx) }()

	select {
	case <-ctx.Done():
		r.conn.Close()
		<-errc
		return ctx.Err()
	case err := <-errc:
		r.conn.Close()
		return err
	}
}

// captureLoop reads fixed-size frames from the input device, stamps them
// with a PTS in the future by r.delay, and broadcasts one AUDIO packet per
// frame's worth of samples.
func (r *Runtime) captureLoop(ctx context.Context) error {
	procutil.PinAudioThread()

	buf := make([]float32, sample.FramesPerPacket*sample.Channels)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.input.Read(buf); err != nil {
			return fmt.Errorf("source: capture read: %w", err)
		}

		pts := r.clock.Now().Add(r.delay)
		header := proto.AudioHeader{
			SessionID: r.SessionID,
			Seq:       r.seq,
			PTS:       pts.ToMicros(),
			DTS:       r.clock.NowMicros(),
		}
		r.seq++

		wire := proto.MarshalAudio(header, proto.EncodeSamples(buf))
		if err := r.conn.Broadcast(wire); err != nil {
			r.log.WithError(err).Warn("source: failed to broadcast audio packet")
		}
	}
}

// clockLoop periodically broadcasts a fresh TIME packet in the Broadcast
// phase, giving every receiver a t1 to start a clock exchange from even if
// none is already in flight.
func (r *Runtime) clockLoop(ctx context.Context) error {
	ticker := time.NewTicker(clockBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tp := proto.TimePacket{
				SessionID: r.SessionID,
				Stream1:   r.clock.NowMicros(),
			}
			if err := r.conn.Broadcast(proto.MarshalTime(tp)); err != nil {
				r.log.WithError(err).Warn("source: failed to broadcast time packet")
			}
		}
	}
}

// networkLoop answers unicast traffic: a receiver's reply to our
// Broadcast-phase TIME packet (stamping stream_3 and replying), stats
// requests, and watches for a higher-SID source taking over the stream.
func (r *Runtime) networkLoop(ctx context.Context) error {
	buf := make([]byte, proto.MaxPacketLen)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, peer, err := r.conn.RecvFrom(buf)
		if err != nil {
			return fmt.Errorf("source: recv: %w", err)
		}

		pkt, err := proto.ParsePacket(buf[:n])
		if err != nil {
			continue
		}

		switch {
		case pkt.Audio != nil:
			if pkt.Audio.SessionID > r.SessionID {
				return fmt.Errorf("source: peer %s has taken over with a higher session id", peer)
			}

		case pkt.Time != nil:
			if pkt.Time.SessionID != r.SessionID {
				continue
			}
			if pkt.Time.Phase() != proto.PhaseReceiverReply {
				continue
			}
			reply := *pkt.Time
			reply.Stream3 = r.clock.NowMicros()
			if err := r.conn.SendTo(proto.MarshalTime(reply), peer); err != nil {
				r.log.WithError(err).Warn("source: failed to reply to time packet")
			}

		case pkt.IsStatsReq:
			var rs proto.ReceiverStats // zero value: a source has no receiver-only fields
			reply := proto.StatsReplyPacket{
				SessionID: r.SessionID,
				Receiver:  rs,
				Node:      r.node.Collect(),
			}
			wire := proto.MarshalStatsReply(reply, proto.FlagIsStream)
			if err := r.conn.SendTo(wire, peer); err != nil {
				r.log.WithError(err).Warn("source: failed to reply to stats request")
			}
		}
	}
}
