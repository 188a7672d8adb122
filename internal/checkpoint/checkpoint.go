// Package checkpoint keeps the scan cursor and the per-height snapshots of
// the commitment tree frontiers that a rewind restores.
//
// Key layout inside a coin namespace:
//
//	st               -> chain state (the cursor)
//	ck/<height:4>    -> checkpoint
//
// Both are tlv records: height, block hash, previous hash, timestamp and one
// serialized frontier per shielded pool.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
	"github.com/Klingon-tech/warpwallet/pkg/wire"
	"github.com/lightningnetwork/lnd/tlv"
)

var (
	keyState         = []byte("st")
	prefixCheckpoint = []byte("ck/")
)

// secondsPerDay buckets checkpoints by calendar day for Purge.
const secondsPerDay = 86400

// Checkpoint is the chain state after a block: the block identity and the
// tree frontiers. The cursor is a Checkpoint too.
type Checkpoint struct {
	Height    uint32
	Hash      types.Hash
	PrevHash  types.Hash
	Timestamp uint64
	// Frontiers is indexed by pool. The transparent slot is unused.
	Frontiers [types.NumPools]tree.Frontier
}

// Size returns the number of commitments in the tree of pool p.
func (c *Checkpoint) Size(p types.Pool) uint64 {
	return c.Frontiers[p].Size
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	return &cp
}

// Encode serializes the checkpoint as a tlv record.
func (c *Checkpoint) Encode() ([]byte, error) {
	sapling, err := c.Frontiers[types.Sapling].MarshalBinary()
	if err != nil {
		return nil, err
	}
	orchard, err := c.Frontiers[types.Orchard].MarshalBinary()
	if err != nil {
		return nil, err
	}
	hash, prev := [32]byte(c.Hash), [32]byte(c.PrevHash)
	return wire.Encode(
		tlv.MakePrimitiveRecord(0, &c.Height),
		tlv.MakePrimitiveRecord(1, &hash),
		tlv.MakePrimitiveRecord(2, &prev),
		tlv.MakePrimitiveRecord(3, &c.Timestamp),
		tlv.MakePrimitiveRecord(4, &sapling),
		tlv.MakePrimitiveRecord(5, &orchard),
	)
}

// Decode parses the output of Encode.
func Decode(b []byte) (*Checkpoint, error) {
	var (
		c                Checkpoint
		hash, prev       [32]byte
		sapling, orchard []byte
	)
	_, err := wire.Decode(b,
		tlv.MakePrimitiveRecord(0, &c.Height),
		tlv.MakePrimitiveRecord(1, &hash),
		tlv.MakePrimitiveRecord(2, &prev),
		tlv.MakePrimitiveRecord(3, &c.Timestamp),
		tlv.MakePrimitiveRecord(4, &sapling),
		tlv.MakePrimitiveRecord(5, &orchard),
	)
	if err != nil {
		return nil, err
	}
	c.Hash, c.PrevHash = hash, prev
	for p, data := range map[types.Pool][]byte{types.Sapling: sapling, types.Orchard: orchard} {
		if len(data) == 0 {
			continue
		}
		if err := c.Frontiers[p].UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("%w: %s frontier: %v", wire.ErrMalformed, p, err)
		}
	}
	return &c, nil
}

func checkpointKey(height uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, prefixCheckpoint...), height)
}

func checkpointHeight(k []byte) uint32 {
	return binary.BigEndian.Uint32(k[len(prefixCheckpoint):])
}

func put(w storage.Writer, k []byte, c *Checkpoint) error {
	data, err := c.Encode()
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", c.Height, err)
	}
	return w.Put(k, data)
}

func get(r storage.Reader, k []byte, what string) (*Checkpoint, error) {
	data, err := r.Get(k)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", what, walleterr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return c, nil
}

// State loads the cursor. A wallet that never scanned has no state and gets
// walleterr.ErrNotFound.
func State(r storage.Reader) (*Checkpoint, error) {
	return get(r, keyState, "chain state")
}

// SetState stores the cursor.
func SetState(w storage.Writer, c *Checkpoint) error {
	return put(w, keyState, c)
}

// Create stores c as the checkpoint at its height, replacing any previous
// one there.
func Create(w storage.Writer, c *Checkpoint) error {
	return put(w, checkpointKey(c.Height), c)
}

// Get loads the checkpoint at height.
func Get(r storage.Reader, height uint32) (*Checkpoint, error) {
	return get(r, checkpointKey(height), fmt.Sprintf("checkpoint %d", height))
}

// Delete removes the checkpoint at height.
func Delete(rw storage.ReadWriter, height uint32) error {
	ok, err := rw.Has(checkpointKey(height))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checkpoint %d: %w", height, walleterr.ErrNotFound)
	}
	return rw.Delete(checkpointKey(height))
}

// List returns every checkpoint in ascending height order.
func List(r storage.Reader) ([]*Checkpoint, error) {
	var out []*Checkpoint
	err := r.ForEach(prefixCheckpoint, func(k, v []byte) error {
		c, err := Decode(v)
		if err != nil {
			return fmt.Errorf("checkpoint %x: %w", k, err)
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// Latest returns the highest checkpoint.
func Latest(r storage.Reader) (*Checkpoint, error) {
	return lastAtOrBelow(r, ^uint32(0))
}

// lastAtOrBelow returns the highest checkpoint with height <= h.
func lastAtOrBelow(r storage.Reader, h uint32) (*Checkpoint, error) {
	var best []byte
	err := r.ForEach(prefixCheckpoint, func(k, v []byte) error {
		if checkpointHeight(k) > h {
			return errStop
		}
		best = v
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if best == nil {
		return nil, fmt.Errorf("checkpoint at or below %d: %w", h, walleterr.ErrNotFound)
	}
	return Decode(best)
}

var errStop = errors.New("stop")

// Purge thins out old checkpoints. The latest checkpoint is kept. At or
// below minHeight, only the earliest checkpoint of each day survives.
// It returns the number of deleted checkpoints.
func Purge(rw storage.ReadWriter, minHeight uint32) (int, error) {
	all, err := List(rw)
	if err != nil || len(all) == 0 {
		return 0, err
	}
	latest := all[len(all)-1].Height
	seen := make(map[uint64]bool)
	var stale []uint32
	for _, c := range all {
		if c.Height > minHeight || c.Height == latest {
			continue
		}
		day := c.Timestamp / secondsPerDay
		if !seen[day] {
			seen[day] = true
			continue
		}
		stale = append(stale, c.Height)
	}
	for _, h := range stale {
		if err := rw.Delete(checkpointKey(h)); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
