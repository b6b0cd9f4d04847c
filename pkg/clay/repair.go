// pkg/clay/repair.go
// Bandwidth-optimal repair. Helpers ship only the sub-chunks of the repair
// planes (beta per helper for a single failure); the engine rebuilds every
// erased chunk in full by walking the repair planes in ascending repair
// order, where ord(z) counts erased-or-aloof nodes on red vertices of z.
package clay

import (
	"fmt"
	"sort"

	"github.com/dattu/clay_object_store/pkg/buffer"
	"github.com/dattu/clay_object_store/pkg/pairs"
)

// RepairSubChunkCount returns how many sub-chunks each helper must serve to
// repair the given erased chunks: alpha - prod_y(q - e_y).
func (c *Code) RepairSubChunkCount(erased []int) int {
	mask := make([]bool, c.nodes())
	for _, i := range erased {
		mask[c.logical(i)] = true
	}
	return c.repairSubChunkCount(mask)
}

// IsRepairablePattern reports whether the erased chunks can be rebuilt from
// sub-chunk reads with bandwidth savings, per the y-section rules: every
// touched y-section must keep all its survivors as helpers, and for
// d = n-1 only a single y-section may be touched.
func (c *Code) IsRepairablePattern(erased []int) bool {
	_, err := c.repairPlan(erased)
	return err == nil
}

// repairPlan derives the helper requirements for an erased set.
type planInfo struct {
	erasedL  []bool // logical erased mask
	helpers  int    // required helper count d_E
	touched  []bool // y-sections with erasures
	required []int  // physical indices that must be helpers
}

func (c *Code) repairPlan(erased []int) (*planInfo, error) {
	n := c.TotalChunks()
	if len(erased) == 0 {
		return nil, fmt.Errorf("%w: empty erased set", ErrInvalidInput)
	}
	erasedL := make([]bool, c.nodes())
	seen := make(map[int]bool, len(erased))
	for _, i := range erased {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: chunk index %d out of range", ErrInvalidInput, i)
		}
		if seen[i] {
			return nil, fmt.Errorf("%w: duplicate erased index %d", ErrInvalidInput, i)
		}
		seen[i] = true
		erasedL[c.logical(i)] = true
	}
	f := len(erased)
	if f > c.m {
		return nil, fmt.Errorf("%w: %d erasures exceed m=%d", ErrUnrepairablePattern, f, c.m)
	}

	touched := make([]bool, c.t)
	for l, e := range erasedL {
		if e {
			touched[l/c.q] = true
		}
	}

	helpers := c.d
	if c.d > n-f {
		helpers = n - f
	}

	var required []int
	for y := 0; y < c.t; y++ {
		if !touched[y] {
			continue
		}
		for x := 0; x < c.q; x++ {
			l := y*c.q + x
			if erasedL[l] || c.shortened(l) {
				continue
			}
			required = append(required, c.physical(l))
		}
	}
	sort.Ints(required)

	if c.d == n-1 {
		sections := 0
		for _, t := range touched {
			if t {
				sections++
			}
		}
		if sections > 1 {
			return nil, fmt.Errorf("%w: d=n-1 repairs a single y-section only", ErrUnrepairablePattern)
		}
		if f > c.q-1 {
			return nil, fmt.Errorf("%w: %d failures in one y-section, max %d", ErrUnrepairablePattern, f, c.q-1)
		}
	} else {
		if c.d > n-f {
			return nil, fmt.Errorf("%w: %d failures leave fewer than d=%d helpers", ErrUnrepairablePattern, f, c.d)
		}
		// every surviving member of a touched y-section must fit in the
		// helper set
		if len(required) > helpers {
			return nil, fmt.Errorf("%w: %d y-section survivors exceed %d helpers", ErrUnrepairablePattern, len(required), helpers)
		}
	}

	return &planInfo{erasedL: erasedL, helpers: helpers, touched: touched, required: required}, nil
}

// MinimumToRepairChunks returns the helper set and per-helper sub-chunk
// ranges for a multi-erasure repair, given the available chunks.
func (c *Code) MinimumToRepairChunks(erased, available []int) (map[int][]SubChunkRange, error) {
	plan, err := c.repairPlan(erased)
	if err != nil {
		return nil, err
	}
	have := make(map[int]bool, len(available))
	for _, i := range available {
		have[i] = true
	}
	for _, i := range erased {
		if have[i] {
			return nil, fmt.Errorf("%w: chunk %d both erased and available", ErrInvalidInput, i)
		}
	}
	if len(available) < plan.helpers {
		return nil, fmt.Errorf("%w: have %d chunks, need %d helpers", ErrInsufficientChunks, len(available), plan.helpers)
	}

	ranges := planesToRanges(c.repairPlanes(plan.erasedL))
	minimum := make(map[int][]SubChunkRange, plan.helpers)
	for _, i := range plan.required {
		if !have[i] {
			return nil, fmt.Errorf("%w: y-section survivor %d unavailable", ErrUnrepairablePattern, i)
		}
		minimum[i] = ranges
	}
	sorted := append([]int(nil), available...)
	sort.Ints(sorted)
	for _, i := range sorted {
		if len(minimum) >= plan.helpers {
			break
		}
		if _, ok := minimum[i]; !ok {
			minimum[i] = ranges
		}
	}
	return minimum, nil
}

// Repair rebuilds the erased chunks from helper sub-chunk data. Each
// helper's buffer is the concatenation of its repair-plane sub-chunks in
// ascending plane order (the MinimumToDecode ranges, in order). The result
// maps every erased physical index to its full reconstructed chunk.
func (c *Code) Repair(erased []int, helperData map[int][]byte, chunkSize int) (map[int][]byte, error) {
	if err := c.checkChunkSize(chunkSize); err != nil {
		return nil, err
	}
	plan, err := c.repairPlan(erased)
	if err != nil {
		return nil, err
	}
	for _, i := range erased {
		if _, ok := helperData[i]; ok {
			return nil, fmt.Errorf("%w: chunk %d both erased and helper", ErrInvalidInput, i)
		}
	}
	if len(helperData) != plan.helpers {
		return nil, fmt.Errorf("%w: got %d helpers, need %d", ErrInsufficientChunks, len(helperData), plan.helpers)
	}

	planes := c.repairPlanes(plan.erasedL)
	scSize := chunkSize / c.alpha
	repairBlock := len(planes) * scSize
	for i, h := range helperData {
		if i < 0 || i >= c.TotalChunks() {
			return nil, fmt.Errorf("%w: helper index %d out of range", ErrInvalidInput, i)
		}
		if len(h) != repairBlock {
			return nil, fmt.Errorf("%w: helper %d has %d bytes, want %d", ErrInvalidInput, i, len(h), repairBlock)
		}
	}

	nl := c.nodes()
	helperL := make([][]byte, nl)
	for i, h := range helperData {
		helperL[c.logical(i)] = h
	}
	for l := c.k; l < c.k+c.nu; l++ {
		if !plan.erasedL[l] && helperL[l] == nil {
			helperL[l] = buffer.Alloc(repairBlock)
		}
	}

	// aloof survivors: no data fetched, excluded from every layer solve
	aloof := make([]bool, nl)
	erasures := make([]bool, nl)
	numErasures := 0
	for l := 0; l < nl; l++ {
		switch {
		case plan.erasedL[l]:
			// whole touched columns join the erasure set below
		case helperL[l] == nil:
			aloof[l] = true
			erasures[l] = true
			numErasures++
		}
	}
	for y := 0; y < c.t; y++ {
		if !plan.touched[y] {
			continue
		}
		for x := 0; x < c.q; x++ {
			l := y*c.q + x
			if aloof[l] {
				return nil, fmt.Errorf("%w: y-section survivor %d is not a helper", ErrUnrepairablePattern, c.physical(l))
			}
			if !erasures[l] {
				erasures[l] = true
				numErasures++
			}
		}
	}
	if numErasures > c.m {
		return nil, fmt.Errorf("%w: %d layer erasures exceed m=%d", ErrUnrepairablePattern, numErasures, c.m)
	}

	planeToInd := make([]int, c.alpha)
	for z := range planeToInd {
		planeToInd[z] = -1
	}
	for ind, z := range planes {
		planeToInd[z] = ind
	}

	// bucket repair planes by repair order
	zv := make([]int, c.t)
	maxOrd := 0
	ordOf := make(map[int]int, len(planes))
	for _, z := range planes {
		c.planeVector(z, zv)
		ord := 0
		for l := 0; l < nl; l++ {
			if (plan.erasedL[l] || aloof[l]) && l%c.q == zv[l/c.q] {
				ord++
			}
		}
		if ord == 0 {
			return nil, fmt.Errorf("%w: repair plane %d has no anchor", ErrUnrepairablePattern, z)
		}
		ordOf[z] = ord
		if ord > maxOrd {
			maxOrd = ord
		}
	}

	rs := &repairState{
		c:          c,
		scSize:     scSize,
		helperL:    helperL,
		uBuf:       buffer.Matrix(nl, chunkSize),
		erasedL:    plan.erasedL,
		aloof:      aloof,
		erasures:   erasures,
		planeToInd: planeToInd,
		recovered:  make([][]byte, nl),
		scratch:    buffer.Alloc(scSize),
	}
	out := make(map[int][]byte, len(erased))
	for _, i := range erased {
		l := c.logical(i)
		rs.recovered[l] = buffer.Alloc(chunkSize)
		out[i] = rs.recovered[l]
	}

	for ord := 1; ord <= maxOrd; ord++ {
		for _, z := range planes {
			if ordOf[z] != ord {
				continue
			}
			if err := rs.solvePlane(z, zv); err != nil {
				return nil, err
			}
		}
		for _, z := range planes {
			if ordOf[z] != ord {
				continue
			}
			rs.couplePlane(z, zv)
		}
	}
	return out, nil
}

type repairState struct {
	c          *Code
	scSize     int
	helperL    [][]byte // logical -> repair-block view (nil for aloof/erased)
	uBuf       [][]byte
	erasedL    []bool
	aloof      []bool
	erasures   []bool // erasedL columns + aloof, the per-layer MDS erasures
	planeToInd []int
	recovered  [][]byte
	scratch    []byte
}

// helperSub returns helper l's sub-chunk for repair plane z.
func (rs *repairState) helperSub(l, z int) []byte {
	return buffer.SubChunk(rs.helperL[l], rs.planeToInd[z], rs.scSize)
}

func (rs *repairState) uSub(l, z int) []byte {
	return buffer.SubChunk(rs.uBuf[l], z, rs.scSize)
}

// solvePlane fills the uncoupled values every helper contributes to plane z
// and completes the plane with a scalar MDS solve.
func (rs *repairState) solvePlane(z int, zv []int) error {
	c := rs.c
	c.planeVector(z, zv)

	for y := 0; y < c.t; y++ {
		for x := 0; x < c.q; x++ {
			node := c.q*y + x
			if rs.erasures[node] {
				continue
			}
			sw := c.q*y + zv[y]
			if zv[y] == x {
				copy(rs.uSub(node, z), rs.helperSub(node, z))
				continue
			}
			zsw := c.companionPlane(z, x, y, zv)
			if rs.planeToInd[zsw] < 0 {
				return fmt.Errorf("%w: companion plane %d of plane %d not fetched", ErrUnrepairablePattern, zsw, z)
			}
			if rs.aloof[sw] {
				// the companion's uncoupled value was resolved at a lower
				// repair order
				quad := [4][]byte{
					pairs.C:     rs.helperSub(node, z),
					pairs.CStar: rs.scratch,
					pairs.U:     rs.uSub(node, z),
					pairs.UStar: rs.uSub(sw, zsw),
				}
				mustResolve(c.pair.Resolve(quad, [2]int{pairs.CStar, pairs.U}))
			} else {
				quad := [4][]byte{
					pairs.C:     rs.helperSub(node, z),
					pairs.CStar: rs.helperSub(sw, zsw),
					pairs.U:     rs.uSub(node, z),
					pairs.UStar: rs.uSub(sw, zsw),
				}
				mustResolve(c.pair.Resolve(quad, [2]int{pairs.U, pairs.UStar}))
			}
		}
	}

	shards := make([][]byte, c.nodes())
	for l := 0; l < c.nodes(); l++ {
		if !rs.erasures[l] {
			shards[l] = rs.uSub(l, z)
		}
	}
	if err := c.mds.ReconstructChunks(shards); err != nil {
		return fmt.Errorf("repair plane %d: %w", z, err)
	}
	for l := 0; l < c.nodes(); l++ {
		if rs.erasures[l] {
			copy(rs.uSub(l, z), shards[l])
		}
	}
	return nil
}

// couplePlane materializes coupled sub-chunks of the erased chunks that
// plane z determines: its own red and paired vertices plus the companion
// sub-chunks sitting in sibling planes.
func (rs *repairState) couplePlane(z int, zv []int) {
	c := rs.c
	c.planeVector(z, zv)

	for l := 0; l < c.nodes(); l++ {
		if !rs.erasures[l] || rs.aloof[l] {
			continue
		}
		x, y := c.toXY(l)
		sw := c.q*y + zv[y]
		if zv[y] == x {
			if rs.erasedL[l] {
				copy(buffer.SubChunk(rs.recovered[l], z, rs.scSize), rs.uSub(l, z))
			}
			continue
		}
		zsw := c.companionPlane(z, x, y, zv)
		switch {
		case rs.erasedL[l] && rs.erasedL[sw]:
			// both pair members lost: solve the 2x2 once per pair
			if zv[y] < x {
				quad := [4][]byte{
					pairs.C:     buffer.SubChunk(rs.recovered[l], z, rs.scSize),
					pairs.CStar: buffer.SubChunk(rs.recovered[sw], zsw, rs.scSize),
					pairs.U:     rs.uSub(l, z),
					pairs.UStar: rs.uSub(sw, zsw),
				}
				mustResolve(c.pair.Resolve(quad, [2]int{pairs.C, pairs.CStar}))
			}
		case rs.erasedL[l]:
			// companion survived inside the column: its coupled value at
			// the sibling plane came with the helper data
			quad := [4][]byte{
				pairs.C:     buffer.SubChunk(rs.recovered[l], z, rs.scSize),
				pairs.CStar: rs.helperSub(sw, zsw),
				pairs.U:     rs.uSub(l, z),
				pairs.UStar: rs.scratch,
			}
			mustResolve(c.pair.Resolve(quad, [2]int{pairs.C, pairs.UStar}))
		case rs.erasedL[sw]:
			// column survivor: its helper data plus this plane's solve
			// yield the lost companion's sibling sub-chunk
			quad := [4][]byte{
				pairs.C:     rs.helperSub(l, z),
				pairs.CStar: buffer.SubChunk(rs.recovered[sw], zsw, rs.scSize),
				pairs.U:     rs.uSub(l, z),
				pairs.UStar: rs.scratch,
			}
			mustResolve(c.pair.Resolve(quad, [2]int{pairs.CStar, pairs.UStar}))
		}
	}
}
