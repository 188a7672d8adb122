package checkpoint

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/internal/tree"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Rewind moves the cursor back to the highest checkpoint at or below h and
// forgets everything scanned after it. A height at or above the cursor
// changes nothing. birth is the lowest birth height of
// the coin's accounts; rewinding below it, or below the lowest checkpoint,
// fails with walleterr.ErrRewindBeyondCheckpoint.
//
// All changes go to rw; the caller commits them as one batch. The next scan
// resumes at the returned checkpoint height + 1.
func Rewind(rw storage.ReadWriter, h, birth uint32) (*Checkpoint, error) {
	if h < birth {
		return nil, fmt.Errorf("%w: height %d is below birth height %d",
			walleterr.ErrRewindBeyondCheckpoint, h, birth)
	}
	cur, err := State(rw)
	switch {
	case err == nil && h >= cur.Height:
		return cur, nil
	case err != nil && !errors.Is(err, walleterr.ErrNotFound):
		return nil, err
	}
	c, err := lastAtOrBelow(rw, h)
	if errors.Is(err, walleterr.ErrNotFound) {
		return nil, fmt.Errorf("%w: no checkpoint at or below %d",
			walleterr.ErrRewindBeyondCheckpoint, h)
	}
	if err != nil {
		return nil, err
	}

	if err := deleteAbove(rw, c.Height); err != nil {
		return nil, err
	}
	for _, p := range types.MaskShielded.Pools() {
		if err := tree.NewArena(p).Prune(rw, c.Size(p)); err != nil {
			return nil, fmt.Errorf("prune %s tree: %w", p, err)
		}
	}
	if err := store.Truncate(rw, c.Height); err != nil {
		return nil, err
	}
	if err := SetState(rw, c); err != nil {
		return nil, err
	}
	log.Checkpoint.Info().
		Uint32("requested", h).
		Uint32("height", c.Height).
		Msg("Rewound to checkpoint")
	return c, nil
}

func deleteAbove(rw storage.ReadWriter, height uint32) error {
	var stale [][]byte
	err := rw.ForEach(prefixCheckpoint, func(k, _ []byte) error {
		if h := checkpointHeight(k); h > height {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := rw.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Reset wipes every chain derived record: the cursor, all checkpoints, the
// tree nodes and what the store learned from blocks. When base is not nil it
// becomes the new cursor and the first checkpoint, so the next scan starts at
// base.Height + 1.
func Reset(rw storage.ReadWriter, base *Checkpoint) error {
	if err := rw.Delete(keyState); err != nil {
		return err
	}
	if err := deleteAbove(rw, 0); err != nil {
		return err
	}
	if err := rw.Delete(checkpointKey(0)); err != nil {
		return err
	}
	for _, p := range types.MaskShielded.Pools() {
		if err := tree.NewArena(p).Prune(rw, 0); err != nil {
			return err
		}
	}
	if err := store.Reset(rw); err != nil {
		return err
	}
	if base == nil {
		return nil
	}
	if err := SetState(rw, base); err != nil {
		return err
	}
	return Create(rw, base)
}
