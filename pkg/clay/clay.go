// pkg/clay/clay.go
// Public engine surface: encode, decode, repair dispatch and helper
// selection. Chunk indices in this file are physical [0, k+m); the layered
// core works on logical indices with the nu shortened nodes spliced in at
// [k, k+nu).
package clay

import (
	"fmt"
	"sort"

	"github.com/dattu/clay_object_store/pkg/buffer"
)

// Encode computes the m parity chunks for k data chunks. Every data chunk
// must have the same size, a positive multiple of Alpha(). The returned
// parity chunks are freshly allocated and aligned; data is only read.
func (c *Code) Encode(data [][]byte) ([][]byte, error) {
	if len(data) != c.k {
		return nil, fmt.Errorf("%w: want %d data chunks, got %d", ErrInvalidInput, c.k, len(data))
	}
	chunkSize := len(data[0])
	if err := c.checkChunkSize(chunkSize); err != nil {
		return nil, err
	}
	for i, d := range data {
		if len(d) != chunkSize {
			return nil, fmt.Errorf("%w: data chunk %d has size %d, want %d", ErrInvalidInput, i, len(d), chunkSize)
		}
	}

	n := c.nodes()
	chunks := make([][]byte, n)
	erased := make([]bool, n)
	for i := 0; i < c.k; i++ {
		chunks[i] = data[i]
	}
	for l := c.k; l < c.k+c.nu; l++ {
		chunks[l] = buffer.Alloc(chunkSize)
	}
	parity := make([][]byte, c.m)
	for j := 0; j < c.m; j++ {
		parity[j] = buffer.Alloc(chunkSize)
		chunks[c.k+c.nu+j] = parity[j]
		erased[c.k+c.nu+j] = true
	}

	if err := c.decodeLayered(erased, chunks, chunkSize); err != nil {
		return nil, err
	}
	return parity, nil
}

// Decode recovers chunks for wantToRead given the available chunks. When the
// request is a single-node repair and the supplied buffers hold exactly the
// beta repair sub-chunks, the bandwidth-optimal repair path runs; otherwise
// the full layered decode does. The result maps every recovered physical
// index to a freshly allocated chunk.
func (c *Code) Decode(wantToRead []int, chunks map[int][]byte, chunkSize int) (map[int][]byte, error) {
	if err := c.checkChunkSize(chunkSize); err != nil {
		return nil, err
	}
	for _, i := range wantToRead {
		if i < 0 || i >= c.TotalChunks() {
			return nil, fmt.Errorf("%w: chunk index %d out of range", ErrInvalidInput, i)
		}
	}
	avail := sortedKeys(chunks)
	for _, i := range avail {
		if i < 0 || i >= c.TotalChunks() {
			return nil, fmt.Errorf("%w: chunk index %d out of range", ErrInvalidInput, i)
		}
	}

	if c.IsRepair(wantToRead, avail) {
		scSize := chunkSize / c.alpha
		if len(chunks[avail[0]]) == c.beta*scSize && c.beta != c.alpha {
			return c.Repair(wantToRead, chunks, chunkSize)
		}
	}
	return c.decodeFull(wantToRead, chunks, chunkSize)
}

func (c *Code) decodeFull(wantToRead []int, chunks map[int][]byte, chunkSize int) (map[int][]byte, error) {
	n := c.TotalChunks()
	if len(chunks) < c.k {
		return nil, fmt.Errorf("%w: have %d chunks, need %d", ErrInsufficientChunks, len(chunks), c.k)
	}
	for i, ch := range chunks {
		if len(ch) != chunkSize {
			return nil, fmt.Errorf("%w: chunk %d has size %d, want %d", ErrInvalidInput, i, len(ch), chunkSize)
		}
	}

	nl := c.nodes()
	logical := make([][]byte, nl)
	erased := make([]bool, nl)
	out := make(map[int][]byte)
	for i := 0; i < n; i++ {
		l := c.logical(i)
		if ch, ok := chunks[i]; ok {
			logical[l] = ch
		} else {
			logical[l] = buffer.Alloc(chunkSize)
			erased[l] = true
			out[i] = logical[l]
		}
	}
	for l := c.k; l < c.k+c.nu; l++ {
		logical[l] = buffer.Alloc(chunkSize)
	}

	if err := c.decodeLayered(erased, logical, chunkSize); err != nil {
		return nil, err
	}
	return out, nil
}

// IsRepair reports whether wantToRead can be served by the sub-chunk repair
// path: a single lost chunk, all its y-section companions available, and at
// least d chunks available overall.
func (c *Code) IsRepair(wantToRead, available []int) bool {
	have := make(map[int]bool, len(available))
	for _, i := range available {
		have[i] = true
	}
	all := true
	for _, i := range wantToRead {
		if !have[i] {
			all = false
			break
		}
	}
	if all || len(wantToRead) != 1 {
		return false
	}

	lost := c.logical(wantToRead[0])
	y := lost / c.q
	for x := 0; x < c.q; x++ {
		l := y*c.q + x
		if l == lost || c.shortened(l) {
			continue
		}
		if !have[c.physical(l)] {
			return false
		}
	}
	return len(available) >= c.d
}

// MinimumToDecode returns, per helper chunk, the sub-chunk ranges the caller
// must fetch to serve wantToRead. The repair path needs beta sub-chunks from
// each of d helpers; the generic path needs k full chunks.
func (c *Code) MinimumToDecode(wantToRead, available []int) (map[int][]SubChunkRange, error) {
	if c.IsRepair(wantToRead, available) {
		return c.minimumToRepair(wantToRead[0], available)
	}
	if len(available) < c.k {
		return nil, fmt.Errorf("%w: have %d chunks, need %d", ErrInsufficientChunks, len(available), c.k)
	}

	have := make(map[int]bool, len(available))
	for _, i := range available {
		have[i] = true
	}
	full := []SubChunkRange{{Start: 0, Count: c.alpha}}
	minimum := make(map[int][]SubChunkRange, c.k)
	for _, i := range wantToRead {
		if have[i] {
			minimum[i] = full
		}
	}
	sorted := append([]int(nil), available...)
	sort.Ints(sorted)
	for _, i := range sorted {
		if len(minimum) >= c.k {
			break
		}
		if _, ok := minimum[i]; !ok {
			minimum[i] = full
		}
	}
	return minimum, nil
}

// minimumToRepair selects the d helpers for a single lost chunk: every
// surviving y-section companion first, then available chunks in index order.
// Each helper serves the same beta sub-chunk ranges.
func (c *Code) minimumToRepair(lostChunk int, available []int) (map[int][]SubChunkRange, error) {
	have := make(map[int]bool, len(available))
	for _, i := range available {
		have[i] = true
	}
	if len(available) < c.d {
		return nil, fmt.Errorf("%w: have %d chunks, need d=%d", ErrInsufficientChunks, len(available), c.d)
	}

	lost := c.logical(lostChunk)
	ranges := c.repairSubChunks(lost)
	minimum := make(map[int][]SubChunkRange, c.d)

	y := lost / c.q
	for x := 0; x < c.q; x++ {
		l := y*c.q + x
		if l == lost || c.shortened(l) {
			continue
		}
		p := c.physical(l)
		if !have[p] {
			return nil, fmt.Errorf("%w: y-section companion %d unavailable", ErrUnrepairablePattern, p)
		}
		minimum[p] = ranges
	}

	sorted := append([]int(nil), available...)
	sort.Ints(sorted)
	for _, i := range sorted {
		if len(minimum) >= c.d {
			break
		}
		if _, ok := minimum[i]; !ok && i != lostChunk {
			minimum[i] = ranges
		}
	}
	if len(minimum) != c.d {
		return nil, fmt.Errorf("%w: selected %d helpers, need %d", ErrInsufficientChunks, len(minimum), c.d)
	}
	return minimum, nil
}

func (c *Code) checkChunkSize(chunkSize int) error {
	if chunkSize <= 0 || chunkSize%c.alpha != 0 {
		return fmt.Errorf("%w: chunk size %d not a positive multiple of alpha=%d", ErrInvalidInput, chunkSize, c.alpha)
	}
	return nil
}

func sortedKeys(m map[int][]byte) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
