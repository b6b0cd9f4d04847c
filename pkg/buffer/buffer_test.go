// pkg/buffer/buffer_test.go
package buffer

import (
	"bytes"
	"testing"
)

func TestAllocAligned(t *testing.T) {
	for _, size := range []int{0, 1, 31, 32, 33, 64, 4096, 1 << 20} {
		b := Alloc(size)
		if len(b) != size {
			t.Fatalf("Alloc(%d) returned %d bytes", size, len(b))
		}
		if !Aligned(b) {
			t.Fatalf("Alloc(%d) not %d-byte aligned", size, SIMDAlign)
		}
		for i := range b {
			if b[i] != 0 {
				t.Fatalf("Alloc(%d) not zeroed at %d", size, i)
			}
		}
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
		{100, 64, 128},
	}
	for _, c := range cases {
		if got := AlignUp(c.n, c.align); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}

func TestSubChunkViews(t *testing.T) {
	chunk := Alloc(8 * 16)
	for z := 0; z < 8; z++ {
		sc := SubChunk(chunk, z, 16)
		for i := range sc {
			sc[i] = byte(z)
		}
	}
	for z := 0; z < 8; z++ {
		sc := SubChunk(chunk, z, 16)
		if len(sc) != 16 {
			t.Fatalf("sub-chunk %d has length %d", z, len(sc))
		}
		for _, b := range sc {
			if b != byte(z) {
				t.Fatalf("sub-chunk views overlap at z=%d", z)
			}
		}
	}
}

func TestZeroAndClone(t *testing.T) {
	b := Alloc(64)
	for i := range b {
		b[i] = byte(i + 1)
	}
	c := Clone(b)
	if !bytes.Equal(b, c) {
		t.Fatal("clone differs from source")
	}
	if !Aligned(c) {
		t.Fatal("clone not aligned")
	}
	Zero(b)
	for i := range b {
		if b[i] != 0 {
			t.Fatal("Zero left residue")
		}
	}
	if c[0] == 0 && c[1] == 0 {
		t.Fatal("clone aliases source")
	}
}

func TestMatrix(t *testing.T) {
	m := Matrix(6, 128)
	if len(m) != 6 {
		t.Fatalf("Matrix rows = %d", len(m))
	}
	for i, row := range m {
		if len(row) != 128 || !Aligned(row) {
			t.Fatalf("row %d misallocated", i)
		}
	}
}
