package proto

import (
	"encoding/binary"
	"math"
)

// EncodeSamples packs interleaved f32 samples into their little-endian wire
// form. The returned slice is exactly len(samples)*4 bytes.
func EncodeSamples(samples []float32) []byte {
	b := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return b
}

// DecodeSamples unpacks a little-endian wire payload back into interleaved
// f32 samples. len(b) must be a multiple of 4.
func DecodeSamples(b []byte) []float32 {
	samples := make([]float32, len(b)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return samples
}
