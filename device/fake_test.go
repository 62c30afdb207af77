package device

import "testing"

func TestFakeOutputCapturesWrites(t *testing.T) {
	out := NewFakeOutput()
	if err := out.Write([]float32{1, 2, 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Write([]float32{4, 5}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := []float32{1, 2, 3, 4, 5}
	if len(out.Captured) != len(want) {
		t.Fatalf("Captured = %v, want %v", out.Captured, want)
	}
	for i, v := range want {
		if out.Captured[i] != v {
			t.Fatalf("Captured[%d] = %v, want %v", i, out.Captured[i], v)
		}
	}
}

func TestFakeInputYieldsFramesThenSilence(t *testing.T) {
	in := NewFakeInput([]float32{1, 2, 3})

	buf := make([]float32, 2)
	if err := in.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("buf = %v, want [1 2]", buf)
	}

	buf2 := make([]float32, 2)
	if err := in.Read(buf2); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if buf2[0] != 3 || buf2[1] != 0 {
		t.Fatalf("buf2 = %v, want [3 0]", buf2)
	}
}
