// pkg/clay/decode.go
// Layered decoding. Every layer of uncoupled values is a codeword of the
// scalar MDS; layers are solved in ascending intersection-score order so
// that a pair straddling an erasure can always draw its companion value
// from an already-resolved sibling layer.
package clay

import (
	"fmt"

	"github.com/dattu/clay_object_store/pkg/buffer"
	"github.com/dattu/clay_object_store/pkg/pairs"
)

// layered is the per-call state of a decode or encode pass. chunks and uBuf
// are indexed by logical node; chunks entries for erased nodes are
// engine-owned output buffers, the rest are caller views that are only read.
type layered struct {
	c       *Code
	scSize  int
	chunks  [][]byte
	uBuf    [][]byte
	erased  []bool
	scratch []byte
}

// decodeLayered recovers the coupled chunks of every erased logical node in
// place. erased may name at most m nodes; it is padded to exactly m with
// parity-side logical indices so each layer's MDS solve sees m erasures.
func (c *Code) decodeLayered(erased []bool, chunks [][]byte, chunkSize int) error {
	n := c.nodes()
	count := 0
	for _, e := range erased {
		if e {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	if count > c.m {
		return fmt.Errorf("%w: %d erasures exceed m=%d", ErrInsufficientChunks, count, c.m)
	}
	for l := c.k + c.nu; count < c.m && l < n; l++ {
		if !erased[l] {
			erased[l] = true
			count++
			// padded nodes are recomputed; give them scratch output so the
			// caller's buffer stays untouched
			chunks[l] = buffer.Alloc(chunkSize)
		}
	}

	st := &layered{
		c:       c,
		scSize:  chunkSize / c.alpha,
		chunks:  chunks,
		uBuf:    buffer.Matrix(n, chunkSize),
		erased:  erased,
		scratch: buffer.Alloc(chunkSize / c.alpha),
	}

	order := make([]int, c.alpha)
	c.planeOrder(order, erased)
	maxIS := c.maxIScore(erased)

	zv := make([]int, c.t)
	for is := 0; is <= maxIS; is++ {
		for z := 0; z < c.alpha; z++ {
			if order[z] == is {
				if err := st.solveLayer(z, zv); err != nil {
					return err
				}
			}
		}
		for z := 0; z < c.alpha; z++ {
			if order[z] == is {
				st.coupleLayer(z, zv)
			}
		}
	}
	return nil
}

// solveLayer fills the uncoupled values of layer z for every surviving node
// and then completes the layer with one scalar MDS solve.
func (st *layered) solveLayer(z int, zv []int) error {
	c := st.c
	c.planeVector(z, zv)

	for x := 0; x < c.q; x++ {
		for y := 0; y < c.t; y++ {
			node := c.q*y + x
			if st.erased[node] {
				continue
			}
			switch {
			case zv[y] < x:
				st.uncoupledFromCoupled(node, x, y, z, zv)
			case zv[y] == x:
				copy(st.uSub(node, z), st.cSub(node, z))
			default:
				// the companion holds the higher x; the pair was, or will
				// be, visited from that side unless the companion is
				// erased, in which case its recovered sibling-layer C is
				// already in place (strictly lower intersection score)
				if st.erased[c.q*y+zv[y]] {
					st.uncoupledFromCoupled(node, x, y, z, zv)
				}
			}
		}
	}
	return st.solveUncoupled(st.erased, z)
}

// coupleLayer materializes the coupled values of layer z for every erased
// node.
func (st *layered) coupleLayer(z int, zv []int) {
	c := st.c
	c.planeVector(z, zv)

	for node := 0; node < c.nodes(); node++ {
		if !st.erased[node] {
			continue
		}
		x, y := c.toXY(node)
		sw := c.q*y + zv[y]
		switch {
		case isRed(x, y, zv):
			copy(st.cSub(node, z), st.uSub(node, z))
		case !st.erased[sw]:
			st.recoverType1(node, x, y, z, zv)
		case zv[y] < x:
			// both pair members erased: one 2x2 solve covers both
			st.coupledFromUncoupled(node, x, y, z, zv)
		}
	}
}

// solveUncoupled runs the scalar MDS over layer z, reconstructing the
// uncoupled values of every erased node.
func (st *layered) solveUncoupled(erased []bool, z int) error {
	c := st.c
	shards := make([][]byte, c.nodes())
	for l := 0; l < c.nodes(); l++ {
		if !erased[l] {
			shards[l] = st.uSub(l, z)
		}
	}
	if err := c.mds.ReconstructChunks(shards); err != nil {
		return fmt.Errorf("layer %d: %w", z, err)
	}
	for l := 0; l < c.nodes(); l++ {
		if erased[l] {
			copy(st.uSub(l, z), shards[l])
		}
	}
	return nil
}

// cSub and uSub return the sub-chunk views of layer z for a logical node.
func (st *layered) cSub(node, z int) []byte {
	return buffer.SubChunk(st.chunks[node], z, st.scSize)
}

func (st *layered) uSub(node, z int) []byte {
	return buffer.SubChunk(st.uBuf[node], z, st.scSize)
}

// uncoupledFromCoupled fills the uncoupled values of the pair anchored at
// (x, y) in layer z from both coupled values.
func (st *layered) uncoupledFromCoupled(node, x, y, z int, zv []int) {
	c := st.c
	sw := c.q*y + zv[y]
	zsw := c.companionPlane(z, x, y, zv)
	quad := [4][]byte{
		pairs.C:     st.cSub(node, z),
		pairs.CStar: st.cSub(sw, zsw),
		pairs.U:     st.uSub(node, z),
		pairs.UStar: st.uSub(sw, zsw),
	}
	mustResolve(c.pair.Resolve(quad, [2]int{pairs.U, pairs.UStar}))
}

// coupledFromUncoupled fills both coupled values of a fully erased pair from
// the uncoupled values the MDS solve produced.
func (st *layered) coupledFromUncoupled(node, x, y, z int, zv []int) {
	c := st.c
	sw := c.q*y + zv[y]
	zsw := c.companionPlane(z, x, y, zv)
	quad := [4][]byte{
		pairs.C:     st.cSub(node, z),
		pairs.CStar: st.cSub(sw, zsw),
		pairs.U:     st.uSub(node, z),
		pairs.UStar: st.uSub(sw, zsw),
	}
	mustResolve(c.pair.Resolve(quad, [2]int{pairs.C, pairs.CStar}))
}

// recoverType1 fills the coupled value of an erased node whose companion
// survived, from the node's uncoupled value and the companion's coupled
// value.
func (st *layered) recoverType1(node, x, y, z int, zv []int) {
	c := st.c
	sw := c.q*y + zv[y]
	zsw := c.companionPlane(z, x, y, zv)
	quad := [4][]byte{
		pairs.C:     st.cSub(node, z),
		pairs.CStar: st.cSub(sw, zsw),
		pairs.U:     st.uSub(node, z),
		pairs.UStar: st.scratch,
	}
	mustResolve(c.pair.Resolve(quad, [2]int{pairs.C, pairs.UStar}))
}

// mustResolve panics on a pair codec slot error; the engine always builds
// well-formed quads, so this is a programmer bug, not a data condition.
func mustResolve(err error) {
	if err != nil {
		panic(err)
	}
}
