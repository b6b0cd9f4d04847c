// pkg/clay/params.go
package clay

import (
	"errors"
	"fmt"

	"github.com/dattu/clay_object_store/pkg/buffer"
	"github.com/dattu/clay_object_store/pkg/erasure"
	"github.com/dattu/clay_object_store/pkg/pairs"
)

// Parameter and input errors. All engine errors wrap one of these.
var (
	ErrInvalidK            = errors.New("clay: k must be at least 2")
	ErrInvalidM            = errors.New("clay: m must be at least 1")
	ErrInvalidD            = errors.New("clay: d must satisfy k <= d <= k+m-1")
	ErrCodeTooLarge        = errors.New("clay: code exceeds field or sub-packetization limits")
	ErrInvalidInput        = errors.New("clay: invalid input")
	ErrInsufficientChunks  = errors.New("clay: insufficient chunks")
	ErrUnrepairablePattern = errors.New("clay: erasure pattern not repairable")
)

// maxNodes caps k+m+nu: GF(2^8) has 256 elements, one reserved, and the
// scalar MDS needs one per node plus one.
const maxNodes = 254

// wordBytes is the coding word footprint used to derive the alignment unit.
const wordBytes = 4

// Code is a coupled-layer (Clay) MSR erasure code instance with parameters
// (k, m, d). It is immutable after construction and safe for concurrent use;
// every call owns its scratch buffers.
type Code struct {
	k, m, d int
	q       int // coupling factor, d-k+1
	t       int // y-sections, (k+m+nu)/q
	nu      int // shortened nodes
	alpha   int // sub-chunks per chunk, q^t
	beta    int // sub-chunks per helper in single repair, alpha/q

	mds  *erasure.Codec // (k+nu, m) scalar MDS over GF(2^8)
	pair *pairs.Codec
}

// New validates (k, m, d) and derives the coupled-layer parameters.
func New(k, m, d int) (*Code, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: got k=%d", ErrInvalidK, k)
	}
	if m < 1 {
		return nil, fmt.Errorf("%w: got m=%d", ErrInvalidM, m)
	}
	if d < k || d > k+m-1 {
		return nil, fmt.Errorf("%w: got d=%d for k=%d m=%d", ErrInvalidD, d, k, m)
	}

	q := d - k + 1
	nu := 0
	if (k+m)%q != 0 {
		nu = q - (k+m)%q
	}
	if k+m+nu > maxNodes {
		return nil, fmt.Errorf("%w: k+m+nu=%d > %d", ErrCodeTooLarge, k+m+nu, maxNodes)
	}
	t := (k + m + nu) / q

	alpha, ok := checkedPow(q, t)
	if !ok {
		return nil, fmt.Errorf("%w: q^t = %d^%d overflows", ErrCodeTooLarge, q, t)
	}

	mds, err := erasure.NewCodec(k+nu, m)
	if err != nil {
		return nil, fmt.Errorf("scalar mds: %w", err)
	}

	return &Code{
		k: k, m: m, d: d,
		q: q, t: t, nu: nu,
		alpha: alpha,
		beta:  alpha / q,
		mds:   mds,
		pair:  pairs.NewCodec(),
	}, nil
}

// TotalChunks returns k + m.
func (c *Code) TotalChunks() int { return c.k + c.m }

// MinChunksToDecode returns k.
func (c *Code) MinChunksToDecode() int { return c.k }

// Alpha returns the sub-packetization level q^t.
func (c *Code) Alpha() int { return c.alpha }

// Beta returns the per-helper sub-chunk count for single-node repair.
func (c *Code) Beta() int { return c.beta }

// SubChunkCount returns the number of sub-chunks per chunk (same as Alpha).
func (c *Code) SubChunkCount() int { return c.alpha }

// D returns the helper count d.
func (c *Code) D() int { return c.d }

// ChunkSize returns the per-node chunk size for an object of the given
// length: the object is padded so chunkSize*k >= objectSize, chunkSize is a
// multiple of alpha, and every chunk stays SIMD aligned.
func (c *Code) ChunkSize(objectSize int) int {
	unit := c.alignmentUnit()
	padded := buffer.AlignUp(objectSize, unit)
	if padded == 0 {
		padded = unit
	}
	return padded / c.k
}

// alignmentUnit is the smallest padded object length: k chunks of alpha
// sub-chunks, each sub-chunk eight coding words (8*wordBytes bytes) wide,
// rounded to the SIMD boundary.
func (c *Code) alignmentUnit() int {
	unit := c.k * c.alpha * 8 * wordBytes
	if (8*wordBytes)%buffer.SIMDAlign != 0 {
		unit = c.k * c.alpha * buffer.SIMDAlign
	}
	return unit
}

// nodes returns the logical node count q*t = k+m+nu.
func (c *Code) nodes() int { return c.q * c.t }

// logical maps a physical chunk index to its logical node index; the nu
// shortened nodes occupy [k, k+nu).
func (c *Code) logical(i int) int {
	if i < c.k {
		return i
	}
	return i + c.nu
}

// physical maps a non-shortened logical node index back to its chunk index.
func (c *Code) physical(l int) int {
	if l < c.k {
		return l
	}
	return l - c.nu
}

// shortened reports whether logical node l is one of the nu zero nodes.
func (c *Code) shortened(l int) bool {
	return l >= c.k && l < c.k+c.nu
}

func checkedPow(base, exp int) (int, bool) {
	result := 1
	for i := 0; i < exp; i++ {
		if result > (1<<62)/base {
			return 0, false
		}
		result *= base
	}
	return result, true
}
