// pkg/clay/params_test.go
package clay

import (
	"errors"
	"testing"
)

func TestParameterDerivation(t *testing.T) {
	cases := []struct {
		k, m, d                 int
		q, tt, nu, alpha, beta int
	}{
		{4, 2, 5, 2, 3, 0, 8, 4},
		{2, 1, 2, 1, 3, 0, 1, 1},
		{8, 4, 11, 4, 3, 0, 64, 16},
		{10, 4, 13, 4, 4, 2, 256, 64},
		{9, 3, 11, 3, 4, 0, 81, 27},
		{4, 3, 5, 2, 4, 1, 16, 8},
	}
	for _, c := range cases {
		code, err := New(c.k, c.m, c.d)
		if err != nil {
			t.Fatalf("New(%d, %d, %d): %v", c.k, c.m, c.d, err)
		}
		if code.q != c.q || code.t != c.tt || code.nu != c.nu {
			t.Errorf("(%d,%d,%d): q=%d t=%d nu=%d, want q=%d t=%d nu=%d",
				c.k, c.m, c.d, code.q, code.t, code.nu, c.q, c.tt, c.nu)
		}
		if code.Alpha() != c.alpha || code.Beta() != c.beta {
			t.Errorf("(%d,%d,%d): alpha=%d beta=%d, want %d/%d",
				c.k, c.m, c.d, code.Alpha(), code.Beta(), c.alpha, c.beta)
		}
		if code.TotalChunks() != c.k+c.m || code.MinChunksToDecode() != c.k {
			t.Errorf("(%d,%d,%d): chunk counts wrong", c.k, c.m, c.d)
		}
		if code.SubChunkCount() != code.Alpha() {
			t.Errorf("(%d,%d,%d): sub-chunk count != alpha", c.k, c.m, c.d)
		}
	}
}

func TestParameterValidation(t *testing.T) {
	cases := []struct {
		k, m, d int
		want    error
	}{
		{1, 2, 2, ErrInvalidK},
		{0, 2, 1, ErrInvalidK},
		{4, 0, 4, ErrInvalidM},
		{4, 2, 3, ErrInvalidD},
		{4, 2, 6, ErrInvalidD},
		{250, 4, 253, ErrCodeTooLarge}, // k+m+nu = 256 > 254
	}
	for _, c := range cases {
		if _, err := New(c.k, c.m, c.d); !errors.Is(err, c.want) {
			t.Errorf("New(%d, %d, %d): got %v, want %v", c.k, c.m, c.d, err, c.want)
		}
	}
}

func TestChunkSizePadding(t *testing.T) {
	for _, p := range [][3]int{{4, 2, 5}, {10, 4, 13}, {2, 1, 2}} {
		code, err := New(p[0], p[1], p[2])
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		for _, objSize := range []int{1, 100, 4096, 1 << 20, 1<<20 + 13} {
			cs := code.ChunkSize(objSize)
			if cs*code.k < objSize {
				t.Errorf("(%v, %d): chunk %d too small", p, objSize, cs)
			}
			if cs%code.Alpha() != 0 {
				t.Errorf("(%v, %d): chunk %d not a multiple of alpha %d", p, objSize, cs, code.Alpha())
			}
			if (cs*code.k+cs*code.m)%32 != 0 {
				t.Errorf("(%v, %d): stripe size not SIMD aligned", p, objSize)
			}
		}
	}
}

func TestLogicalPhysicalMapping(t *testing.T) {
	code, err := New(10, 4, 13) // nu = 2
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < code.TotalChunks(); i++ {
		l := code.logical(i)
		if code.shortened(l) {
			t.Errorf("physical %d maps to shortened logical %d", i, l)
		}
		if got := code.physical(l); got != i {
			t.Errorf("roundtrip %d -> %d -> %d", i, l, got)
		}
	}
	if !code.shortened(10) || !code.shortened(11) {
		t.Error("logical 10 and 11 must be shortened")
	}
	if code.shortened(9) || code.shortened(12) {
		t.Error("logical 9 and 12 must not be shortened")
	}
}
