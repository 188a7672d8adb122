package mempool

import (
	"context"
	"errors"
	"sync"

	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/lightningnetwork/lnd/ticker"
)

// Source returns the raw transactions currently in the node's mempool.
type Source interface {
	Pending(ctx context.Context) ([][]byte, error)
}

// SetGuard makes Poll hold l around every Add. A coin context passes its
// mutation lock so polling never interleaves with a scan or a rewind.
func (t *Tracker) SetGuard(l sync.Locker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.guard = l
}

// Poll adds every new transaction from src and returns how many it added.
// Transactions the tracker rejects are logged and skipped.
func (t *Tracker) Poll(ctx context.Context, src Source) (int, error) {
	raws, err := src.Pending(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		_, err := t.guarded(raw)
		switch {
		case err == nil:
			added++
		case errors.Is(err, ErrAlreadyExists):
		default:
			log.Mempool.Debug().Err(err).Msg("Mempool transaction skipped")
		}
	}
	return added, nil
}

func (t *Tracker) guarded(raw []byte) (*Entry, error) {
	t.mu.RLock()
	g := t.guard
	t.mu.RUnlock()
	if g != nil {
		g.Lock()
		defer g.Unlock()
	}
	return t.Add(raw)
}

// Run polls src on every tick until ctx is done.
func (t *Tracker) Run(ctx context.Context, src Source, tk ticker.Ticker) error {
	tk.Resume()
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.Ticks():
			if _, err := t.Poll(ctx, src); err != nil && ctx.Err() == nil {
				log.Mempool.Warn().Err(err).Msg("Mempool poll failed")
			}
		}
	}
}
