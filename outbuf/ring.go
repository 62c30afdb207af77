// Package outbuf implements the producer/consumer ring buffer that sits
// between the network/session thread (writer) and the audio device
// callback (reader): the writer pushes decoded, PTS-tagged spans of audio
// in, and the reader drains them at whatever pace the device demands,
// filling with silence on underrun.
package outbuf

import (
	"sync"

	"github.com/syncwave/syncwave/sample"
)

// span is one contiguously-written run of samples: either real audio
// (hasPTS true) or the silence pushed to refill after an underrun
// (hasPTS false, so Offset reports no opinion about where playback
// sits relative to it).
type span struct {
	pts       sample.Timestamp
	hasPTS    bool
	remaining sample.Duration
}

func (s *span) end() (sample.Timestamp, bool) {
	if !s.hasPTS {
		return 0, false
	}
	return s.pts.Add(s.remaining), true
}

func (s *span) consume(d sample.Duration) {
	s.remaining -= d
	if s.hasPTS {
		s.pts = s.pts.Add(d)
	}
}

// Ring is a fixed-capacity ring buffer of interleaved f32 samples with
// span-based PTS bookkeeping. Capacity is fixed at construction: Write
// blocks (via the internal condition variable) once the buffer is full
// instead of growing it — growing it would silently increase audio
// latency. Read never blocks: on underrun it zero-fills its output.
type Ring struct {
	capacityFrames int

	mu     sync.Mutex
	cond   *sync.Cond
	buffer []float32
	spans  []span
	offset sample.Duration
	hasOff bool
}

// NewRing returns a Ring that holds up to capacity of buffered audio.
func NewRing(capacity sample.Duration) *Ring {
	r := &Ring{capacityFrames: capacity.AsBufferOffset() / sample.Channels}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// CapacityFrames returns the fixed buffer capacity, in frames.
func (r *Ring) CapacityFrames() int {
	return r.capacityFrames
}

// Offset reports playback-clock time minus the queue front span's
// timestamp, as of the most recent Read call: positive means local
// playback is running ahead of the stream. The second return value is
// false if there is no timestamped span to compare against (e.g. the
// buffer is in silence after an underrun).
func (r *Ring) Offset() (sample.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset, r.hasOff
}

// Buffered reports the total duration of audio still queued, spans not
// yet reached by the read cursor included. Unlike Offset, this never
// requires a timestamped span — it is meaningful even right after an
// underrun's silence refill.
func (r *Ring) Buffered() sample.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total sample.Duration
	for _, s := range r.spans {
		total += s.remaining
	}
	return total
}

// Write appends pts-stamped audio to the buffer, blocking until there is
// room. samples is a slice of interleaved frames; len(samples) must be a
// multiple of sample.Channels.
func (r *Ring) Write(pts sample.Timestamp, samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(samples) > 0 {
		free := (r.capacityFrames * sample.Channels) - len(r.buffer)
		if free <= 0 {
			r.cond.Wait()
			continue
		}
		n := len(samples)
		if n > free {
			n = free
		}
		chunk := samples[:n]
		samples = samples[n:]

		r.buffer = append(r.buffer, chunk...)
		duration := sample.FromBufferOffset(len(chunk))
		r.spans = append(r.spans, span{pts: pts, hasPTS: true, remaining: duration})
		pts = pts.Add(duration)

		r.cond.Broadcast()
	}
}

// Read fills out with the next len(out) interleaved samples at playback
// time pts, consuming from the buffer and updating Offset. On underrun
// (nothing buffered) it zero-fills the remainder of out and refills the
// buffer with CapacityFrames of silence so the writer gets a fresh window
// to catch up, reporting underrun=true.
func (r *Ring) Read(pts sample.Timestamp, out []float32) (underrun bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if end, ok := r.frontEnd(); ok {
		r.offset = pts.DurationSince(end.Add(-r.frontRemaining()))
		r.hasOff = true
	} else {
		r.hasOff = false
	}

	for len(out) > 0 {
		s := r.frontNonEmpty()
		if s == nil {
			for i := range out {
				out[i] = 0
			}
			r.pushSilence(sample.Duration(r.capacityFrames))
			underrun = true
			break
		}

		want := sample.FromBufferOffset(len(out))
		take := want
		if s.remaining < take {
			take = s.remaining
		}
		n := take.AsBufferOffset()

		copy(out[:n], r.buffer[:n])
		r.buffer = r.buffer[n:]
		s.consume(take)
		out = out[n:]
	}

	r.cond.Broadcast()
	return underrun
}

func (r *Ring) frontEnd() (sample.Timestamp, bool) {
	for len(r.spans) > 0 {
		if r.spans[0].remaining > 0 {
			return r.spans[0].end()
		}
		r.spans = r.spans[1:]
	}
	return 0, false
}

func (r *Ring) frontRemaining() sample.Duration {
	if len(r.spans) == 0 {
		return 0
	}
	return r.spans[0].remaining
}

func (r *Ring) frontNonEmpty() *span {
	for len(r.spans) > 0 {
		if r.spans[0].remaining > 0 {
			return &r.spans[0]
		}
		r.spans = r.spans[1:]
	}
	return nil
}

func (r *Ring) pushSilence(d sample.Duration) {
	n := d.AsBufferOffset()
	r.buffer = append(r.buffer, make([]float32, n)...)
	r.spans = append(r.spans, span{remaining: d})
}
