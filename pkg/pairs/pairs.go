// pkg/pairs/pairs.go
// Pairwise coupling codec for coupled-layer codes.
//
// Every non-red vertex p has a companion p*, and the coupled (C) and
// uncoupled (U) values of the pair are related by a fixed 2x2 map over
// GF(2^8):
//
//	[U ]   [1  g] [C ]              [C ]   (1/(1+g^2)) [1  g] [U ]
//	[U*] = [g  1] [C*]    (PRT)     [C*] =             [g  1] [U*]   (PFT)
//
// with g = Gamma. Since g != 0 and g^2 != 1 the matrix is invertible and
// every 2x2 minor of the combined system is nonsingular, so any two of the
// four values {C, C*, U, U*} determine the other two. The matrix is
// symmetric, so swapping the primary and starred roles of a pair commutes
// with the transform; callers may orient pairs however is convenient as long
// as the four quad slots stay consistent.
package pairs

import (
	"errors"
	"fmt"

	"github.com/dattu/clay_object_store/pkg/galois"
)

// Gamma is the coupling constant. 2 satisfies g != 0, g^2 = 4 != 1.
const Gamma byte = 2

// Quad slot roles. C/CStar are the stored coupled values of a pair,
// U/UStar the uncoupled intermediates.
const (
	C = iota
	CStar
	U
	UStar
)

// ErrSingular reports a quad whose known/erased split cannot be solved;
// it indicates a caller bug, not a data condition.
var ErrSingular = errors.New("pairs: singular quad")

// Codec applies the pairwise forward and reverse transforms over byte
// regions of equal length. It is stateless and safe for concurrent use.
type Codec struct {
	det    byte // 1 + g^2
	detInv byte
	gInv   byte
}

// NewCodec builds the codec for the package Gamma.
func NewCodec() *Codec {
	det := galois.Add(1, galois.Mul(Gamma, Gamma))
	return &Codec{
		det:    det,
		detInv: galois.Inv(det),
		gInv:   galois.Inv(Gamma),
	}
}

// PRT computes both uncoupled values from both coupled values:
// u = c + g*cs, us = g*c + cs. Output regions must not alias inputs.
func (pc *Codec) PRT(c, cs, u, us []byte) {
	galois.RegionMul(u, c, 1)
	galois.RegionMulXor(u, cs, Gamma)
	galois.RegionMul(us, cs, 1)
	galois.RegionMulXor(us, c, Gamma)
}

// PFT computes both coupled values from both uncoupled values:
// c = (u + g*us)/det, cs = (g*u + us)/det. Output regions must not alias
// inputs.
func (pc *Codec) PFT(u, us, c, cs []byte) {
	gd := galois.Mul(Gamma, pc.detInv)
	galois.RegionMul(c, u, pc.detInv)
	galois.RegionMulXor(c, us, gd)
	galois.RegionMul(cs, us, pc.detInv)
	galois.RegionMulXor(cs, u, gd)
}

// Resolve fills the two erased slots of quad from the two known ones.
// quad holds the four regions in slot order [C, C*, U, U*]; erased names
// exactly two distinct slots. Known regions are read-only; erased regions
// are overwritten. Regions must all have equal length and erased regions
// must not alias known ones.
func (pc *Codec) Resolve(quad [4][]byte, erased [2]int) error {
	a, b := erased[0], erased[1]
	if a > b {
		a, b = b, a
	}
	if a < C || b > UStar || a == b {
		return fmt.Errorf("%w: erased slots (%d, %d)", ErrSingular, erased[0], erased[1])
	}
	n := len(quad[0])
	for i := 1; i < 4; i++ {
		if len(quad[i]) != n {
			return fmt.Errorf("%w: slot %d has length %d, want %d", ErrSingular, i, len(quad[i]), n)
		}
	}

	switch {
	case a == U && b == UStar: // know C, C*
		pc.PRT(quad[C], quad[CStar], quad[U], quad[UStar])

	case a == C && b == CStar: // know U, U*
		pc.PFT(quad[U], quad[UStar], quad[C], quad[CStar])

	case a == C && b == UStar: // know C*, U: c = u + g*cs, us = g*c + cs
		galois.RegionMul(quad[C], quad[U], 1)
		galois.RegionMulXor(quad[C], quad[CStar], Gamma)
		galois.RegionMul(quad[UStar], quad[CStar], 1)
		galois.RegionMulXor(quad[UStar], quad[C], Gamma)

	case a == CStar && b == U: // know C, U*: cs = us + g*c, u = c + g*cs
		galois.RegionMul(quad[CStar], quad[UStar], 1)
		galois.RegionMulXor(quad[CStar], quad[C], Gamma)
		galois.RegionMul(quad[U], quad[C], 1)
		galois.RegionMulXor(quad[U], quad[CStar], Gamma)

	case a == CStar && b == UStar: // know C, U: cs = (u + c)/g, us = g*c + cs
		galois.RegionMul(quad[CStar], quad[U], pc.gInv)
		galois.RegionMulXor(quad[CStar], quad[C], pc.gInv)
		galois.RegionMul(quad[UStar], quad[CStar], 1)
		galois.RegionMulXor(quad[UStar], quad[C], Gamma)

	case a == C && b == U: // know C*, U*: c = (us + cs)/g, u = c + g*cs
		galois.RegionMul(quad[C], quad[UStar], pc.gInv)
		galois.RegionMulXor(quad[C], quad[CStar], pc.gInv)
		galois.RegionMul(quad[U], quad[C], 1)
		galois.RegionMulXor(quad[U], quad[CStar], Gamma)

	default:
		return fmt.Errorf("%w: erased slots (%d, %d)", ErrSingular, erased[0], erased[1])
	}
	return nil
}
