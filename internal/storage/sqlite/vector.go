package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embeddings are stored as compact binary BLOBs: 4 bytes per component,
// little-endian IEEE 754 float32. This keeps high-dimensional vectors small
// compared to text JSON and matches pgvector's float32 precision, so both
// backends store identical values.

// encodeVector converts a float32 slice to its binary representation.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}

	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector converts a binary representation back to a float32 slice.
// dim is used to validate the buffer size.
func decodeVector(buf []byte, dim int) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dim)
	}

	expectedSize := dim * 4
	if len(buf) != expectedSize {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", expectedSize, len(buf))
	}

	vec := make([]float32, dim)
	for i := 0; i < dim; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
