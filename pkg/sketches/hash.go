package sketches

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// hasher is one member of a seeded xxhash family. Two hashers with different
// seeds behave as independent hash functions.
type hasher struct {
	seed uint64
}

func newHashers(n int, rng *RandomSource) []hasher {
	hs := make([]hasher, n)
	for i := range hs {
		hs[i] = hasher{seed: rng.Uint64()}
	}
	return hs
}

func (h hasher) sum(v any) uint64 {
	var scratch [64]byte
	buf := binary.LittleEndian.AppendUint64(scratch[:0], h.seed)
	return xxhash.Sum64(appendKey(buf, v))
}

// index reduces the hash of v into [0, n).
func (h hasher) index(v any, n int) int {
	return int(h.sum(v) % uint64(n))
}

// appendKey appends a stable byte encoding of v.
func appendKey(buf []byte, v any) []byte {
	switch k := v.(type) {
	case string:
		return append(buf, k...)
	case []byte:
		return append(buf, k...)
	case bool:
		if k {
			return append(buf, 1)
		}
		return append(buf, 0)
	case int:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case int8:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case int16:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case int32:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case int64:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case uint:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case uint8:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case uint16:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case uint32:
		return binary.LittleEndian.AppendUint64(buf, uint64(k))
	case uint64:
		return binary.LittleEndian.AppendUint64(buf, k)
	case float32:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(k)))
	case float64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(k))
	case fmt.Stringer:
		return append(buf, k.String()...)
	default:
		return fmt.Appendf(buf, "%#v", k)
	}
}
