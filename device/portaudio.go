package device

import (
	"fmt"
	"os"

	"github.com/gordonklaus/portaudio"
)

// initDone ensures portaudio.Initialize is called exactly once per
// process, regardless of how many Inputs/Outputs are opened.
var initDone bool

func ensureInit() error {
	if initDone {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("device: portaudio init: %w", err)
	}
	initDone = true
	return nil
}

// deviceByEnv resolves a device name from an explicit name (flag) or,
// failing that, an environment variable, falling back to the host's
// default. An empty name and unset env both mean "use the default".
func deviceByEnv(name, envVar string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		name = os.Getenv(envVar)
	}
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device: no device named %q", name)
}

// PortAudioInput is the production Input, capturing from a named or
// default input device using PortAudio's blocking I/O mode: a fixed
// buffer is bound at stream-open time and refilled on each Read.
type PortAudioInput struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenInput opens a capture stream at the fixed sample rate and channel
// count, reading framesPerBuffer frames per Read call. name selects a
// device by name; empty defers to the envVar environment variable, then
// the host default.
func OpenInput(name, envVar string, sampleRate float64, channels, framesPerBuffer int) (*PortAudioInput, error) {
	if err := ensureInit(); err != nil {
		return nil, err
	}
	info, err := deviceByEnv(name, envVar, true)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}
	buf := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("device: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start input stream: %w", err)
	}
	return &PortAudioInput{stream: stream, buf: buf}, nil
}

// Read implements Input. len(buf) must equal the framesPerBuffer*channels
// size OpenInput was called with.
func (in *PortAudioInput) Read(buf []float32) error {
	if len(buf) != len(in.buf) {
		return fmt.Errorf("device: Read: buffer size %d, stream bound to %d", len(buf), len(in.buf))
	}
	if err := in.stream.Read(); err != nil {
		return fmt.Errorf("device: stream read: %w", err)
	}
	copy(buf, in.buf)
	return nil
}

// Close implements Input.
func (in *PortAudioInput) Close() error {
	return in.stream.Close()
}

// PortAudioOutput is the production Output, playing to a named or default
// output device using PortAudio's blocking I/O mode.
type PortAudioOutput struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenOutput opens a playback stream at the fixed sample rate and channel
// count, writing framesPerBuffer frames per Write call.
func OpenOutput(name, envVar string, sampleRate float64, channels, framesPerBuffer int) (*PortAudioOutput, error) {
	if err := ensureInit(); err != nil {
		return nil, err
	}
	info, err := deviceByEnv(name, envVar, false)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}
	buf := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("device: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start output stream: %w", err)
	}
	return &PortAudioOutput{stream: stream, buf: buf}, nil
}

// Write implements Output. len(buf) must equal the framesPerBuffer*channels
// size OpenOutput was called with.
func (out *PortAudioOutput) Write(buf []float32) error {
	if len(buf) != len(out.buf) {
		return fmt.Errorf("device: Write: buffer size %d, stream bound to %d", len(buf), len(out.buf))
	}
	copy(out.buf, buf)
	if err := out.stream.Write(); err != nil {
		return fmt.Errorf("device: stream write: %w", err)
	}
	return nil
}

// Close implements Output.
func (out *PortAudioOutput) Close() error {
	return out.stream.Close()
}
