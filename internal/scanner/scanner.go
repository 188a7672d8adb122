// Package scanner ingests compact blocks and keeps the store in step with the
// chain.
//
// Blocks are consumed strictly in ascending order. Each block is applied in
// one storage batch: tree appends, discovered notes and outputs, spends,
// transaction records, messages, the new cursor and the checkpoint either all
// commit or none do.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/block"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// ErrBusy is returned when a scan is started while another is running.
var ErrBusy = errors.New("scan already running")

// BlockSource supplies compact blocks. Implementations fetch them from a
// node or an indexer; the scanner does no network retrieval itself.
type BlockSource interface {
	// Block returns the compact block at height.
	Block(ctx context.Context, height uint32) (*block.Block, error)
	// TreeState returns the chain state after the block at height. It seeds
	// the tree frontiers when the wallet is born after the first block.
	TreeState(ctx context.Context, height uint32) (*checkpoint.Checkpoint, error)
}

// Listener is told about every committed block. The mempool tracker uses it
// to drop confirmed and expired entries.
type Listener interface {
	BlockScanned(height uint32, txids []types.Hash)
}

// Config configures a Scanner.
type Config struct {
	Keys  *keys.Manager
	Store *store.Store
	// CheckpointInterval stores a checkpoint every n blocks. 0 disables
	// automatic checkpoints.
	CheckpointInterval uint32
	// Workers bounds parallel trial decryption. 0 uses GOMAXPROCS.
	Workers int
	// Metrics is optional.
	Metrics *Metrics
	// Listener is optional.
	Listener Listener
}

// Status is the scanner state: idle, or scanning with the last committed
// height.
type Status struct {
	Scanning bool
	Height   uint32
}

// Scanner applies blocks to one coin's store.
type Scanner struct {
	cfg      Config
	scanning atomic.Bool
	height   atomic.Uint32
}

// New creates a scanner.
func New(cfg Config) *Scanner {
	return &Scanner{cfg: cfg}
}

// Status reports whether a scan is running and the last committed height.
func (s *Scanner) Status() Status {
	return Status{Scanning: s.scanning.Load(), Height: s.height.Load()}
}

// Height returns the cursor: the height of the last scanned block, 0 when
// nothing was scanned.
func (s *Scanner) Height() (uint32, error) {
	var h uint32
	err := s.cfg.Store.View(func(r storage.Reader) error {
		st, err := checkpoint.State(r)
		if errors.Is(err, walleterr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		h = st.Height
		return nil
	})
	return h, err
}

// Scan fetches and applies blocks from the cursor + 1 up to and including
// to. It checks ctx between blocks; a cancelled scan leaves the store at the
// last committed block. It returns the height reached.
func (s *Scanner) Scan(ctx context.Context, src BlockSource, to uint32) (uint32, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer s.scanning.Store(false)

	state, err := s.loadState(ctx, src)
	if err != nil {
		return 0, err
	}
	s.height.Store(state.Height)
	if state.Height >= to {
		return state.Height, nil
	}
	log.Scanner.Info().Uint32("from", state.Height+1).Uint32("to", to).Msg("Scanning")

	for h := state.Height + 1; h <= to; h++ {
		if err := ctx.Err(); err != nil {
			return state.Height, err
		}
		blk, err := src.Block(ctx, h)
		if err != nil {
			return state.Height, fmt.Errorf("fetch block %d: %w", h, err)
		}
		if state, err = s.apply(ctx, state, blk); err != nil {
			return state.Height, err
		}
	}
	log.Scanner.Info().Uint32("height", state.Height).Msg("Scan complete")
	return state.Height, nil
}

// scanBlock applies one block on top of the stored cursor.
func (s *Scanner) scanBlock(ctx context.Context, blk *block.Block) error {
	if !s.scanning.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.scanning.Store(false)

	var state *checkpoint.Checkpoint
	err := s.cfg.Store.View(func(r storage.Reader) error {
		var err error
		state, err = checkpoint.State(r)
		return err
	})
	if errors.Is(err, walleterr.ErrNotFound) {
		state, err = &checkpoint.Checkpoint{}, nil
	}
	if err != nil {
		return err
	}
	_, err = s.apply(ctx, state, blk)
	return err
}

// loadState returns the cursor, seeding it from the source at the wallet
// birth height the first time.
func (s *Scanner) loadState(ctx context.Context, src BlockSource) (*checkpoint.Checkpoint, error) {
	var (
		state *checkpoint.Checkpoint
		birth uint32
	)
	err := s.cfg.Store.View(func(r storage.Reader) error {
		var err error
		if birth, err = s.cfg.Keys.BirthHeight(r); err != nil {
			return err
		}
		state, err = checkpoint.State(r)
		return err
	})
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, walleterr.ErrNotFound) {
		return nil, err
	}

	state = &checkpoint.Checkpoint{}
	if birth > 1 {
		if state, err = src.TreeState(ctx, birth-1); err != nil {
			return nil, fmt.Errorf("tree state at %d: %w", birth-1, err)
		}
	}
	err = s.cfg.Store.Update(func(rw storage.ReadWriter) error {
		if err := checkpoint.SetState(rw, state); err != nil {
			return err
		}
		return checkpoint.Create(rw, state)
	})
	if err != nil {
		return nil, err
	}
	log.Scanner.Info().Uint32("height", state.Height).Msg("Initialized chain state")
	return state, nil
}

// apply validates blk against state and commits it. On failure nothing is
// written and the old state is returned.
func (s *Scanner) apply(ctx context.Context, state *checkpoint.Checkpoint, blk *block.Block) (*checkpoint.Checkpoint, error) {
	done := s.cfg.Metrics.startBlock()
	next, found, txids, err := s.process(ctx, state, blk)
	if err != nil {
		return state, err
	}
	done(next.Height, found)

	if s.cfg.Listener != nil {
		s.cfg.Listener.BlockScanned(next.Height, txids)
	}
	s.height.Store(next.Height)
	return next, nil
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", walleterr.ErrChainInconsistency, fmt.Sprintf(format, args...))
}
