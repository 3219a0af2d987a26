package sketches

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"math/bits"
	"slices"
	"sort"
)

// Compactor buffers up to maxLen elements and, when full, discards a
// randomized portion of them while bounding the rank error of what it keeps.
//
// Add reports when the buffer reaches maxLen; the caller must compact before
// adding again. Every compaction policy drains the buffer entirely.
type Compactor[T cmp.Ordered] struct {
	buffer  []T
	weights []float64 // parallel to buffer
	maxLen  int
	rng     Rand
}

// Weighted is a compaction survivor together with the number of stream
// elements it stands for.
type Weighted[T cmp.Ordered] struct {
	Value  T
	Weight float64
}

// NewCompactor returns an empty compactor of the given capacity.
func NewCompactor[T cmp.Ordered](maxLen int, rng Rand) (*Compactor[T], error) {
	if maxLen <= 0 {
		return nil, configFault("NewCompactor", "max len must be positive, got %d", maxLen)
	}
	if rng == nil {
		return nil, configFault("NewCompactor", "random source required")
	}
	c := &Compactor[T]{maxLen: maxLen, rng: rng}
	c.reset()
	return c, nil
}

// Add appends v and reports whether the buffer just reached capacity.
func (c *Compactor[T]) Add(v T) bool {
	return c.AddWeighted(v, 1)
}

// AddWeighted appends v standing for w stream elements.
func (c *Compactor[T]) AddWeighted(v T, w float64) bool {
	c.buffer = append(c.buffer, v)
	c.weights = append(c.weights, w)
	return len(c.buffer) == c.maxLen
}

func (c *Compactor[T]) Len() int {
	return len(c.buffer)
}

func (c *Compactor[T]) IsEmpty() bool {
	return len(c.buffer) == 0
}

// Cap returns maxLen.
func (c *Compactor[T]) Cap() int {
	return c.maxLen
}

// Items returns the buffered elements in no particular order. Callers must
// not modify them.
func (c *Compactor[T]) Items() []T {
	return c.buffer
}

// AdditiveCompact sorts the buffer and keeps every element whose position
// matches one random parity, discarding the other half. maxLen must be even.
func (c *Compactor[T]) AdditiveCompact() iter.Seq[T] {
	if c.maxLen%2 != 0 {
		panic(configFault("Compactor.AdditiveCompact", "max len must be even, got %d", c.maxLen))
	}
	c.sort()
	parity := int(math.Round(c.rng.Float64()))
	drained, _ := c.drain()
	return func(yield func(T) bool) {
		for i := parity; i < len(drained); i += 2 {
			if !yield(drained[i]) {
				return
			}
		}
	}
}

// RelativeCompact drains the buffer front to back in slices of size 1, 2, 4,
// ... and keeps at most one random element of each, appending survivors to
// out. maxLen+1 must be a power of two.
func (c *Compactor[T]) RelativeCompact(out []T) []T {
	if !isPowerOfTwo(c.maxLen + 1) {
		panic(configFault("Compactor.RelativeCompact", "max len + 1 must be a power of two, got %d", c.maxLen))
	}
	levels := bits.Len(uint(c.maxLen+1)) - 1
	buf, _ := c.drain()
	for i := 0; i < levels && len(buf) > 0; i++ {
		sliceSize := 1 << i
		retained := int(math.Round(c.rng.Float64() * float64(sliceSize)))
		if retained < min(sliceSize, len(buf)) {
			out = append(out, buf[retained])
		}
		buf = buf[min(sliceSize, len(buf)):]
	}
	return out
}

// LinearRelativeCompact sorts the buffer, splits it into floor(sqrt(maxLen))
// chunks and removes n elements from chunk n at a fixed stride from a random
// offset, so the discard rate grows linearly with rank. Survivors are appended
// to out. A trailing partial chunk, if maxLen is not a multiple of the chunk
// size, is handled as one more chunk.
func (c *Compactor[T]) LinearRelativeCompact(out []T) []T {
	c.linearRelative(func(v T, _ float64) {
		out = append(out, v)
	})
	return out
}

// LinearRelativeCompactWeighted is LinearRelativeCompact that also carries
// weights: survivors of a chunk share the weight of the whole chunk in
// proportion to their own, so compaction preserves the total weight of every
// chunk it does not drop entirely.
func (c *Compactor[T]) LinearRelativeCompactWeighted(out []Weighted[T]) []Weighted[T] {
	c.linearRelative(func(v T, w float64) {
		out = append(out, Weighted[T]{Value: v, Weight: w})
	})
	return out
}

func (c *Compactor[T]) linearRelative(keep func(v T, w float64)) {
	if len(c.buffer) > c.maxLen {
		panic(&Fault{
			Kind:    FaultInternal,
			Op:      "Compactor.LinearRelativeCompact",
			Message: fmt.Sprintf("buffer holds %d elements, capacity is %d", len(c.buffer), c.maxLen),
		})
	}
	c.sort()

	numChunks := int(math.Sqrt(float64(c.maxLen)))
	chunkSize := c.maxLen / numChunks
	removed := make([]bool, chunkSize)

	buf, weights := c.drain()
	for n := 0; len(buf) > 0; n++ {
		take := min(chunkSize, len(buf))
		numToRemove := min(n, chunkSize)
		if numToRemove >= chunkSize {
			buf, weights = buf[take:], weights[take:]
			continue
		}

		clear(removed)
		if numToRemove > 0 {
			stride := chunkSize / numToRemove
			curr := int(math.Floor(c.rng.Float64()*float64(chunkSize))) % chunkSize
			for k := 0; k < numToRemove; k++ {
				if removed[curr] {
					panic(&Fault{
						Kind:    FaultInternal,
						Op:      "Compactor.LinearRelativeCompact",
						Message: fmt.Sprintf("stride %d revisited index %d in chunk %d", stride, curr, n),
					})
				}
				removed[curr] = true
				curr = (curr + stride) % chunkSize
			}
		}

		var total, kept float64
		for i, w := range weights[:take] {
			total += w
			if !removed[i] {
				kept += w
			}
		}
		if kept > 0 {
			scale := total / kept
			for i, v := range buf[:take] {
				if !removed[i] {
					keep(v, weights[i]*scale)
				}
			}
		}
		buf, weights = buf[take:], weights[take:]
	}
}

// sort orders the buffer ascending, moving weights along with their values.
func (c *Compactor[T]) sort() {
	sort.Sort(byValue[T]{c})
}

type byValue[T cmp.Ordered] struct{ c *Compactor[T] }

func (b byValue[T]) Len() int           { return len(b.c.buffer) }
func (b byValue[T]) Less(i, j int) bool { return cmp.Less(b.c.buffer[i], b.c.buffer[j]) }
func (b byValue[T]) Swap(i, j int) {
	b.c.buffer[i], b.c.buffer[j] = b.c.buffer[j], b.c.buffer[i]
	b.c.weights[i], b.c.weights[j] = b.c.weights[j], b.c.weights[i]
}

// drain hands the buffered elements and their weights to the caller and
// leaves the compactor empty with fresh buffers.
func (c *Compactor[T]) drain() ([]T, []float64) {
	items, weights := c.buffer, c.weights
	c.reset()
	return items, weights
}

func (c *Compactor[T]) reset() {
	c.buffer = make([]T, 0, c.maxLen)
	c.weights = make([]float64, 0, c.maxLen)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Rank returns the number of elements of sorted that are less than v.
func Rank[T cmp.Ordered](sorted []T, v T) int {
	i, _ := slices.BinarySearch(sorted, v)
	return i
}
