// pkg/pairs/pairs_test.go
package pairs

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/dattu/clay_object_store/pkg/galois"
)

func TestGammaConstraints(t *testing.T) {
	if Gamma == 0 {
		t.Fatal("gamma must be nonzero")
	}
	if galois.Mul(Gamma, Gamma) == 1 {
		t.Fatal("gamma^2 must not be 1")
	}
}

func TestPRTPFTRoundTrip(t *testing.T) {
	pc := NewCodec()
	c := []byte{0x12, 0x34, 0x56, 0x78}
	cs := []byte{0xab, 0xcd, 0xef, 0x01}
	u := make([]byte, 4)
	us := make([]byte, 4)
	cBack := make([]byte, 4)
	csBack := make([]byte, 4)

	pc.PRT(c, cs, u, us)
	pc.PFT(u, us, cBack, csBack)

	if !bytes.Equal(c, cBack) || !bytes.Equal(cs, csBack) {
		t.Fatalf("roundtrip mismatch: C %x -> %x, C* %x -> %x", c, cBack, cs, csBack)
	}
}

func TestPRTDefinition(t *testing.T) {
	pc := NewCodec()
	c := []byte{0x0f}
	cs := []byte{0xf0}
	u := make([]byte, 1)
	us := make([]byte, 1)
	pc.PRT(c, cs, u, us)
	if want := c[0] ^ galois.Mul(Gamma, cs[0]); u[0] != want {
		t.Fatalf("U = %#x, want C + g*C* = %#x", u[0], want)
	}
	if want := galois.Mul(Gamma, c[0]) ^ cs[0]; us[0] != want {
		t.Fatalf("U* = %#x, want g*C + C* = %#x", us[0], want)
	}
}

// any two of the four quad members must determine the other two
func TestResolveAnyTwo(t *testing.T) {
	pc := NewCodec()
	rng := rand.New(rand.NewSource(7))

	const size = 16
	c := make([]byte, size)
	cs := make([]byte, size)
	rng.Read(c)
	rng.Read(cs)
	u := make([]byte, size)
	us := make([]byte, size)
	pc.PRT(c, cs, u, us)
	ref := [4][]byte{c, cs, u, us}

	pairsOf := [][2]int{
		{C, CStar}, {C, U}, {C, UStar},
		{CStar, U}, {CStar, UStar}, {U, UStar},
	}
	for _, er := range pairsOf {
		quad := [4][]byte{}
		for i := 0; i < 4; i++ {
			quad[i] = append([]byte(nil), ref[i]...)
		}
		// wipe the erased slots
		for _, e := range er {
			for i := range quad[e] {
				quad[e][i] = 0
			}
		}
		if err := pc.Resolve(quad, er); err != nil {
			t.Fatalf("Resolve(%v): %v", er, err)
		}
		for i := 0; i < 4; i++ {
			if !bytes.Equal(quad[i], ref[i]) {
				t.Fatalf("Resolve(%v): slot %d = %x, want %x", er, i, quad[i], ref[i])
			}
		}
	}
}

func TestResolveRejectsBadSlots(t *testing.T) {
	pc := NewCodec()
	quad := [4][]byte{make([]byte, 4), make([]byte, 4), make([]byte, 4), make([]byte, 4)}
	if err := pc.Resolve(quad, [2]int{1, 1}); !errors.Is(err, ErrSingular) {
		t.Fatalf("duplicate erased slots: got %v, want ErrSingular", err)
	}
	if err := pc.Resolve(quad, [2]int{0, 4}); !errors.Is(err, ErrSingular) {
		t.Fatalf("out-of-range slot: got %v, want ErrSingular", err)
	}
	quad[3] = make([]byte, 3)
	if err := pc.Resolve(quad, [2]int{0, 1}); !errors.Is(err, ErrSingular) {
		t.Fatalf("length mismatch: got %v, want ErrSingular", err)
	}
}

// swapping primary and starred roles must commute with the transform,
// because the coupling matrix is symmetric
func TestOrientationSymmetry(t *testing.T) {
	pc := NewCodec()
	c := []byte{0x21, 0x42}
	cs := []byte{0x84, 0x18}
	u := make([]byte, 2)
	us := make([]byte, 2)
	uSwap := make([]byte, 2)
	usSwap := make([]byte, 2)

	pc.PRT(c, cs, u, us)
	pc.PRT(cs, c, usSwap, uSwap)

	if !bytes.Equal(u, uSwap) || !bytes.Equal(us, usSwap) {
		t.Fatal("transform must be orientation symmetric")
	}
}
