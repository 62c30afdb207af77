package source

import (
	"context"
	"testing"

	"github.com/syncwave/syncwave/device"
	"github.com/syncwave/syncwave/proto"
	"github.com/syncwave/syncwave/sample"
	"github.com/syncwave/syncwave/transport"
)

type zeroClock struct{}

func (zeroClock) Now() sample.Timestamp    { return 0 }
func (zeroClock) NowMicros() sample.Micros { return 0 }

// TestScenarioS5HigherSessionTakeoverStopsSource covers the source side of
// S5: a rival source broadcasting under a higher session id makes this
// runtime's network loop yield, the same way a receiver abandons a lower
// session for a higher one.
func TestScenarioS5HigherSessionTakeoverStopsSource(t *testing.T) {
	group := transport.NewLoopbackGroup()
	rival := group.NewPeer("rival")
	conn := group.NewPeer("source")

	r, err := New(conn, device.NewFakeInput(nil), zeroClock{}, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h := proto.AudioHeader{SessionID: r.SessionID + 1, Seq: 1}
	wire := proto.MarshalAudio(h, proto.EncodeSamples(make([]float32, sample.FramesPerPacket*sample.Channels)))
	if err := rival.SendTo(wire, "source"); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	if err := r.networkLoop(context.Background()); err == nil {
		t.Fatal("expected networkLoop to return an error when a higher-session source takes over")
	}
}
