package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) ([]float32, error) {
	const size = 4
	if len(b)%size != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of %d", len(b), size)
	}
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size:]))
	}
	return out, nil
}

// likeUnder builds a LIKE pattern matching everything strictly beneath dir.
// Use with ESCAPE '\'.
func likeUnder(dir string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	sep := string(filepath.Separator)
	dir = strings.TrimSuffix(dir, sep)
	return r.Replace(dir+sep) + "%"
}
