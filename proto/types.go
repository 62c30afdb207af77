// Package proto defines the wire protocol: fixed-layout, byte-copyable
// packet structs, their magic values, and the codec that packs a header
// plus payload into a single zeroed allocation sized for the largest
// packet the protocol defines.
package proto

import (
	"encoding/binary"
	"math"

	"github.com/syncwave/syncwave/sample"
)

// Magic identifies the kind of packet a datagram carries.
type Magic uint32

// magic values, stored little-endian on the wire; each reads as four ASCII
// bytes in wire order.
const (
	MagicAudio      Magic = 0x4F494455 // wire bytes "UDIO"
	MagicTime       Magic = 0x454D4954 // wire bytes "TIME"
	MagicStatsReq   Magic = 0x53544551 // wire bytes "QETS"
	MagicStatsReply Magic = 0x53545250 // wire bytes "PRTS"
)

// HeaderSize is the fixed size, in bytes, of PacketHeader.
const HeaderSize = 16

// PacketHeader is the common 16-byte header shared by every packet kind.
type PacketHeader struct {
	Magic Magic
	Flags uint32
	_pad  uint64 // reserved for alignment, always zero on the wire
}

// MarshalBinaryTo writes the header into b[0:HeaderSize]. b must have at
// least HeaderSize bytes available.
func (h *PacketHeader) MarshalBinaryTo(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], uint32(h.Magic))
	binary.LittleEndian.PutUint32(b[4:], h.Flags)
	binary.LittleEndian.PutUint64(b[8:], 0)
}

// UnmarshalBinary reads a header from b[0:HeaderSize].
func (h *PacketHeader) UnmarshalBinary(b []byte) {
	h.Magic = Magic(binary.LittleEndian.Uint32(b[0:]))
	h.Flags = binary.LittleEndian.Uint32(b[4:])
}

// AudioHeaderSize is the fixed size, in bytes, of AudioHeader.
const AudioHeaderSize = 32

// AudioHeader is the per-packet metadata for an AUDIO packet.
type AudioHeader struct {
	SessionID SessionID
	Seq       uint64
	PTS       sample.Micros
	DTS       sample.Micros
}

// MarshalBinaryTo writes the audio header into b[0:AudioHeaderSize].
func (h *AudioHeader) MarshalBinaryTo(b []byte) {
	binary.LittleEndian.PutUint64(b[0:], uint64(h.SessionID))
	binary.LittleEndian.PutUint64(b[8:], h.Seq)
	binary.LittleEndian.PutUint64(b[16:], uint64(h.PTS))
	binary.LittleEndian.PutUint64(b[24:], uint64(h.DTS))
}

// UnmarshalBinary reads an audio header from b[0:AudioHeaderSize].
func (h *AudioHeader) UnmarshalBinary(b []byte) {
	h.SessionID = SessionID(binary.LittleEndian.Uint64(b[0:]))
	h.Seq = binary.LittleEndian.Uint64(b[8:])
	h.PTS = sample.Micros(binary.LittleEndian.Uint64(b[16:]))
	h.DTS = sample.Micros(binary.LittleEndian.Uint64(b[24:]))
}

// AudioPayloadBytes is the fixed size, in bytes, of one audio packet's
// sample payload: FramesPerPacket frames of Channels little-endian f32
// samples each.
const AudioPayloadBytes = sample.FramesPerPacket * sample.Channels * 4

// AudioPacketLen is the total payload length (excluding PacketHeader) of
// an AUDIO packet.
const AudioPacketLen = AudioHeaderSize + AudioPayloadBytes

// TimePhase identifies which fields of a TimePacket have been filled in,
// derived from which timestamps are non-zero.
type TimePhase int

const (
	// PhaseUnknown means none of the expected fields are populated.
	PhaseUnknown TimePhase = iota
	// PhaseBroadcast: only Stream1 is set (source -> everyone).
	PhaseBroadcast
	// PhaseReceiverReply: Stream1 and Receive2 are set (receiver -> source).
	PhaseReceiverReply
	// PhaseStreamReply: Stream1, Receive2 and Stream3 are set (source -> receiver).
	PhaseStreamReply
)

// TimePacketDataSize is the fixed size, in bytes, of the non-padding
// portion of a TimePacket.
const TimePacketDataSize = 48

// TimePacket carries the four-timestamp exchange used by the clock
// estimator (see package clockest). It is padded out by the caller to
// AudioPacketLen so that it experiences the same link delay as an audio
// packet.
type TimePacket struct {
	SessionID  SessionID
	ReceiverID ReceiverID
	Stream1    sample.Micros // source send time (Broadcast)
	Receive2   sample.Micros // receiver receive time (ReceiverReply)
	Stream3    sample.Micros // source reply send time (StreamReply)
	Receive4   sample.Micros // receiver reply receive time (observed locally, never on wire)
}

// Phase derives the packet phase from which timestamps are populated.
func (t *TimePacket) Phase() TimePhase {
	switch {
	case t.Stream1 != 0 && t.Receive2 != 0 && t.Stream3 != 0:
		return PhaseStreamReply
	case t.Stream1 != 0 && t.Receive2 != 0:
		return PhaseReceiverReply
	case t.Stream1 != 0:
		return PhaseBroadcast
	default:
		return PhaseUnknown
	}
}

// MarshalBinaryTo writes the time packet data into b[0:TimePacketDataSize].
// Receive4 is never sent on the wire (it is observed locally by the
// receiver when Stream3's reply arrives), so it is not encoded.
func (t *TimePacket) MarshalBinaryTo(b []byte) {
	binary.LittleEndian.PutUint64(b[0:], uint64(t.SessionID))
	binary.LittleEndian.PutUint64(b[8:], uint64(t.ReceiverID))
	binary.LittleEndian.PutUint64(b[16:], uint64(t.Stream1))
	binary.LittleEndian.PutUint64(b[24:], uint64(t.Receive2))
	binary.LittleEndian.PutUint64(b[32:], uint64(t.Stream3))
	binary.LittleEndian.PutUint64(b[40:], 0)
}

// UnmarshalBinary reads time packet data from b[0:TimePacketDataSize].
func (t *TimePacket) UnmarshalBinary(b []byte) {
	t.SessionID = SessionID(binary.LittleEndian.Uint64(b[0:]))
	t.ReceiverID = ReceiverID(binary.LittleEndian.Uint64(b[8:]))
	t.Stream1 = sample.Micros(binary.LittleEndian.Uint64(b[16:]))
	t.Receive2 = sample.Micros(binary.LittleEndian.Uint64(b[24:]))
	t.Stream3 = sample.Micros(binary.LittleEndian.Uint64(b[32:]))
}

// StatsReplyFlags is carried in PacketHeader.Flags for STATS_REPLY packets.
type StatsReplyFlags uint32

const (
	// FlagIsReceiver marks a reply sent by a receiver node.
	FlagIsReceiver StatsReplyFlags = 1 << 0
	// FlagIsStream marks a reply sent by the source node.
	FlagIsStream StatsReplyFlags = 1 << 1
)

// receiverStatsFlags marks which optional fields of ReceiverStats are
// present; each field has its own presence bit, matching the "present bit"
// idiom used for every optional wire field in this protocol.
type receiverStatsFlags uint8

const (
	hasAudioLatency   receiverStatsFlags = 0x04
	hasBufferLength   receiverStatsFlags = 0x08
	hasNetworkLatency receiverStatsFlags = 0x10
	hasPredictOffset  receiverStatsFlags = 0x20
)

// StreamStatus mirrors the sync state machine's state, carried in stats so
// an external observer can see what a receiver is doing without parsing
// log output.
type StreamStatus uint8

// stream status wire values.
const (
	StatusSeek StreamStatus = 1
	StatusSync StreamStatus = 2
	StatusSlew StreamStatus = 3
	StatusMiss StreamStatus = 4
)

// String renders a StreamStatus the way a human-facing report wants it.
func (s StreamStatus) String() string {
	switch s {
	case StatusSeek:
		return "seek"
	case StatusSync:
		return "sync"
	case StatusSlew:
		return "slew"
	case StatusMiss:
		return "miss"
	default:
		return "unknown"
	}
}

// ReceiverStatsSize is the fixed size, in bytes, of ReceiverStats.
const ReceiverStatsSize = 40

// ReceiverStats is the receiver-specific portion of a stats reply. Every
// field besides Status carries its own presence bit: a consumer must
// consult the HasX accessor before trusting the value.
type ReceiverStats struct {
	flags        receiverStatsFlags
	Status       StreamStatus
	audioLatency float64 // seconds
	bufferLength float64 // seconds
	networkLat   float64 // seconds
	predictOff   float64 // seconds
}

// HasAudioLatency reports whether AudioLatency is meaningful.
func (r *ReceiverStats) HasAudioLatency() bool { return r.flags&hasAudioLatency != 0 }

// AudioLatency returns request PTS - packet PTS, in seconds.
func (r *ReceiverStats) AudioLatency() float64 { return r.audioLatency }

// SetAudioLatency stores the audio latency and marks it present.
func (r *ReceiverStats) SetAudioLatency(seconds float64) {
	r.audioLatency = seconds
	r.flags |= hasAudioLatency
}

// HasBufferLength reports whether BufferLength is meaningful.
func (r *ReceiverStats) HasBufferLength() bool { return r.flags&hasBufferLength != 0 }

// BufferLength returns the buffered audio duration, in seconds.
func (r *ReceiverStats) BufferLength() float64 { return r.bufferLength }

// SetBufferLength stores the buffer fill and marks it present.
func (r *ReceiverStats) SetBufferLength(seconds float64) {
	r.bufferLength = seconds
	r.flags |= hasBufferLength
}

// HasNetworkLatency reports whether NetworkLatency is meaningful.
func (r *ReceiverStats) HasNetworkLatency() bool { return r.flags&hasNetworkLatency != 0 }

// NetworkLatency returns the estimated one-way network latency, in seconds.
func (r *ReceiverStats) NetworkLatency() float64 { return r.networkLat }

// SetNetworkLatency stores the network latency and marks it present.
func (r *ReceiverStats) SetNetworkLatency(seconds float64) {
	r.networkLat = seconds
	r.flags |= hasNetworkLatency
}

// HasPredictOffset reports whether PredictOffset is meaningful.
func (r *ReceiverStats) HasPredictOffset() bool { return r.flags&hasPredictOffset != 0 }

// PredictOffset returns the source-clock prediction error, in seconds.
func (r *ReceiverStats) PredictOffset() float64 { return r.predictOff }

// SetPredictOffset stores the predict offset and marks it present.
func (r *ReceiverStats) SetPredictOffset(seconds float64) {
	r.predictOff = seconds
	r.flags |= hasPredictOffset
}

// MarshalBinaryTo writes r into b[0:ReceiverStatsSize].
func (r *ReceiverStats) MarshalBinaryTo(b []byte) {
	b[0] = byte(r.flags)
	b[1] = byte(r.Status)
	for i := 2; i < 8; i++ {
		b[i] = 0
	}
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(r.audioLatency))
	binary.LittleEndian.PutUint64(b[16:], math.Float64bits(r.bufferLength))
	binary.LittleEndian.PutUint64(b[24:], math.Float64bits(r.networkLat))
	binary.LittleEndian.PutUint64(b[32:], math.Float64bits(r.predictOff))
}

// UnmarshalBinary reads r from b[0:ReceiverStatsSize].
func (r *ReceiverStats) UnmarshalBinary(b []byte) {
	r.flags = receiverStatsFlags(b[0])
	r.Status = StreamStatus(b[1])
	r.audioLatency = math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
	r.bufferLength = math.Float64frombits(binary.LittleEndian.Uint64(b[16:]))
	r.networkLat = math.Float64frombits(binary.LittleEndian.Uint64(b[24:]))
	r.predictOff = math.Float64frombits(binary.LittleEndian.Uint64(b[32:]))
}

// NodeStatsSize is the fixed size, in bytes, of NodeStats.
const NodeStatsSize = 32

// NodeStats is the generic, node-kind-agnostic stats block: basic process
// health, present on every stats reply regardless of role.
type NodeStats struct {
	UptimeSeconds uint64
	PID           uint32
	CPUPermil     uint32 // CPU usage in tenths of a percent
	RSSBytes      uint64
	NumThreads    uint32
	_pad          uint32
}

// MarshalBinaryTo writes n into b[0:NodeStatsSize].
func (n *NodeStats) MarshalBinaryTo(b []byte) {
	binary.LittleEndian.PutUint64(b[0:], n.UptimeSeconds)
	binary.LittleEndian.PutUint32(b[8:], n.PID)
	binary.LittleEndian.PutUint32(b[12:], n.CPUPermil)
	binary.LittleEndian.PutUint64(b[16:], n.RSSBytes)
	binary.LittleEndian.PutUint32(b[24:], n.NumThreads)
	binary.LittleEndian.PutUint32(b[28:], 0)
}

// UnmarshalBinary reads n from b[0:NodeStatsSize].
func (n *NodeStats) UnmarshalBinary(b []byte) {
	n.UptimeSeconds = binary.LittleEndian.Uint64(b[0:])
	n.PID = binary.LittleEndian.Uint32(b[8:])
	n.CPUPermil = binary.LittleEndian.Uint32(b[12:])
	n.RSSBytes = binary.LittleEndian.Uint64(b[16:])
	n.NumThreads = binary.LittleEndian.Uint32(b[24:])
}

// StatsReplyPacketSize is the fixed size, in bytes, of StatsReplyPacket.
const StatsReplyPacketSize = 8 + ReceiverStatsSize + NodeStatsSize

// StatsReplyPacket is the body of a STATS_REPLY packet. Role is carried
// out-of-band in the packet header's Flags field, not here.
type StatsReplyPacket struct {
	SessionID SessionID
	Receiver  ReceiverStats
	Node      NodeStats
}

// MarshalBinaryTo writes p into b[0:StatsReplyPacketSize].
func (p *StatsReplyPacket) MarshalBinaryTo(b []byte) {
	binary.LittleEndian.PutUint64(b[0:], uint64(p.SessionID))
	p.Receiver.MarshalBinaryTo(b[8:])
	p.Node.MarshalBinaryTo(b[8+ReceiverStatsSize:])
}

// UnmarshalBinary reads p from b[0:StatsReplyPacketSize].
func (p *StatsReplyPacket) UnmarshalBinary(b []byte) {
	p.SessionID = SessionID(binary.LittleEndian.Uint64(b[0:]))
	p.Receiver.UnmarshalBinary(b[8:])
	p.Node.UnmarshalBinary(b[8+ReceiverStatsSize:])
}
