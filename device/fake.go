package device

import "sync"

// FakeOutput is an in-memory Output used by tests: every Write is appended
// to Captured, and no real audio hardware or cgo is involved.
type FakeOutput struct {
	mu       sync.Mutex
	Captured []float32
	closed   bool
}

// NewFakeOutput returns an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Write implements Output.
func (f *FakeOutput) Write(buf []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Captured = append(f.Captured, buf...)
	return nil
}

// Close implements Output.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FakeInput is an in-memory Input used by tests: it yields frames from a
// preloaded buffer, then zeroes once exhausted.
type FakeInput struct {
	mu     sync.Mutex
	frames []float32
	closed bool
}

// NewFakeInput returns a FakeInput that yields frames (copied) before
// falling back to silence.
func NewFakeInput(frames []float32) *FakeInput {
	return &FakeInput{frames: append([]float32(nil), frames...)}
}

// Read implements Input.
func (f *FakeInput) Read(buf []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(buf, f.frames)
	f.frames = f.frames[n:]
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// Close implements Input.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
