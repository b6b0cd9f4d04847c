// pkg/erasure/erasure.go
package erasure

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Codec wraps a systematic Reed-Solomon code over GF(2^8) and exposes the
// per-layer shard operations the coupled-layer engine drives: all shards in
// one call belong to a single layer and have identical size.
type Codec struct {
	rs     reedsolomon.Encoder
	data   int
	parity int
}

// NewCodec creates a Reed-Solomon codec with 'data' data shards and 'parity'
// parity shards.
func NewCodec(data, parity int) (*Codec, error) {
	if data <= 0 || parity <= 0 {
		return nil, fmt.Errorf("invalid shard parameters: data=%d, parity=%d", data, parity)
	}
	rs, err := reedsolomon.New(data, parity)
	if err != nil {
		return nil, fmt.Errorf("failed to create RS codec: %w", err)
	}
	return &Codec{rs: rs, data: data, parity: parity}, nil
}

// DataShards returns the number of data shards.
func (c *Codec) DataShards() int { return c.data }

// ParityShards returns the number of parity shards.
func (c *Codec) ParityShards() int { return c.parity }

// TotalShards returns data + parity.
func (c *Codec) TotalShards() int { return c.data + c.parity }

// EncodeChunks fills the parity shards from the data shards. shards must
// hold TotalShards slices of equal size; the last 'parity' entries are
// overwritten.
func (c *Codec) EncodeChunks(shards [][]byte) error {
	if len(shards) != c.TotalShards() {
		return fmt.Errorf("expected %d shards, got %d", c.TotalShards(), len(shards))
	}
	if err := c.rs.Encode(shards); err != nil {
		return fmt.Errorf("encode parity shards: %w", err)
	}
	return nil
}

// ReconstructChunks rebuilds every nil entry of shards in place. At least
// 'data' entries must be present; all present entries must have equal size.
func (c *Codec) ReconstructChunks(shards [][]byte) error {
	if len(shards) != c.TotalShards() {
		return fmt.Errorf("expected %d shards, got %d", c.TotalShards(), len(shards))
	}
	if err := c.rs.Reconstruct(shards); err != nil {
		return fmt.Errorf("reconstruct shards: %w", err)
	}
	return nil
}

// Verify reports whether the parity shards are consistent with the data
// shards.
func (c *Codec) Verify(shards [][]byte) (bool, error) {
	ok, err := c.rs.Verify(shards)
	if err != nil {
		return false, fmt.Errorf("verify shards: %w", err)
	}
	return ok, nil
}
