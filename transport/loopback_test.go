package transport

import "testing"

func TestLoopbackBroadcastReachesOtherPeers(t *testing.T) {
	g := NewLoopbackGroup()
	source := g.NewPeer("source")
	r1 := g.NewPeer("r1")
	r2 := g.NewPeer("r2")

	if err := source.Broadcast([]byte("hello")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	buf := make([]byte, 16)
	n, from, err := r1.RecvFrom(buf)
	if err != nil {
		t.Fatalf("r1 RecvFrom: %v", err)
	}
	if from != "source" || string(buf[:n]) != "hello" {
		t.Fatalf("r1 got (%q, %q), want (%q, %q)", buf[:n], from, "hello", "source")
	}

	n, from, err = r2.RecvFrom(buf)
	if err != nil {
		t.Fatalf("r2 RecvFrom: %v", err)
	}
	if from != "source" || string(buf[:n]) != "hello" {
		t.Fatalf("r2 got (%q, %q), want (%q, %q)", buf[:n], from, "hello", "source")
	}
}

func TestLoopbackBroadcastDoesNotLoopToSender(t *testing.T) {
	g := NewLoopbackGroup()
	source := g.NewPeer("source")
	g.NewPeer("r1")

	if err := source.Broadcast([]byte("x")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4)
		source.RecvFrom(buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("sender should not receive its own broadcast")
	default:
	}
	source.Close()
	<-done
}

func TestLoopbackSendToUnicast(t *testing.T) {
	g := NewLoopbackGroup()
	r1 := g.NewPeer("r1")
	source := g.NewPeer("source")

	if err := r1.SendTo([]byte("reply"), "source"); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	buf := make([]byte, 16)
	n, from, err := source.RecvFrom(buf)
	if err != nil {
		t.Fatalf("RecvFrom: %v", err)
	}
	if from != "r1" || string(buf[:n]) != "reply" {
		t.Fatalf("got (%q, %q), want (%q, %q)", buf[:n], from, "reply", "r1")
	}
}

func TestLoopbackCloseUnblocksRecv(t *testing.T) {
	g := NewLoopbackGroup()
	r1 := g.NewPeer("r1")

	errc := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		_, _, err := r1.RecvFrom(buf)
		errc <- err
	}()

	r1.Close()
	if err := <-errc; err != ErrClosed {
		t.Fatalf("RecvFrom after Close = %v, want ErrClosed", err)
	}
}
