// Package coin runs one serial wallet context per coin.
//
// A Context owns the coin's store namespace, key manager, scanner, payment
// builder, signer and mempool tracker. Mutations (scan, rewind, account and
// contact changes, pending marks, mempool polling) take the context mutex so
// at most one is in flight. Reads run against storage snapshots and never
// wait for a scan.
package coin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/warpwallet/internal/checkpoint"
	"github.com/Klingon-tech/warpwallet/internal/keys"
	"github.com/Klingon-tech/warpwallet/internal/log"
	"github.com/Klingon-tech/warpwallet/internal/mempool"
	"github.com/Klingon-tech/warpwallet/internal/pay"
	"github.com/Klingon-tech/warpwallet/internal/scanner"
	"github.com/Klingon-tech/warpwallet/internal/signer"
	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/internal/store"
	"github.com/Klingon-tech/warpwallet/pkg/tx"
	"github.com/Klingon-tech/warpwallet/pkg/types"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Broadcaster hands a signed transaction to the network.
type Broadcaster interface {
	Broadcast(ctx context.Context, raw []byte) (types.Hash, error)
}

// Config configures one coin.
type Config struct {
	ID   uint8
	Name string
	// CoinType is the BIP-44 coin type used in key derivation.
	CoinType           uint32
	GapLimit           uint32
	CheckpointInterval uint32
	MinConfirmations   uint32
	ExpiryDelta        uint32
	FeeRule            tx.FeeRule
	MempoolSize        int
	// Workers bounds parallel trial decryption. 0 uses GOMAXPROCS.
	Workers int

	Prover signer.Prover
	Clock  clock.Clock
	// Registerer receives the scanner metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a configuration for a development coin.
func DefaultConfig(id uint8, name string) Config {
	return Config{
		ID:                 id,
		Name:               name,
		CoinType:           133,
		GapLimit:           20,
		CheckpointInterval: 1,
		MinConfirmations:   1,
		ExpiryDelta:        pay.DefaultExpiryDelta,
		FeeRule:            tx.DefaultFeeRule(),
		Prover:             signer.DigestProver{},
		Clock:              clock.NewDefaultClock(),
	}
}

// Namespace is the key prefix of a coin inside the shared database.
func Namespace(id uint8) []byte {
	return []byte(fmt.Sprintf("c/%d/", id))
}

// Context is the wallet of one coin.
type Context struct {
	mu sync.Mutex

	cfg     Config
	db      *storage.PrefixDB
	store   *store.Store
	keys    *keys.Manager
	scanner *scanner.Scanner
	builder *pay.Builder
	signer  *signer.Signer
	tracker *mempool.Tracker
	logger  zerolog.Logger
}

// Open creates the context of a coin over its namespace in db.
func Open(db storage.Store, cfg Config) (*Context, error) {
	if cfg.Prover == nil {
		cfg.Prover = signer.DigestProver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.FeeRule.MarginalFee == 0 {
		cfg.FeeRule = tx.DefaultFeeRule()
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("coin%d", cfg.ID)
	}

	var metrics *scanner.Metrics
	if cfg.Registerer != nil {
		m, err := scanner.NewMetrics(cfg.Registerer, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("register %s metrics: %w", cfg.Name, err)
		}
		metrics = m
	}

	c := &Context{
		cfg:    cfg,
		db:     storage.NewPrefixDB(db, Namespace(cfg.ID)),
		keys:   keys.NewManager(cfg.CoinType, cfg.GapLimit),
		logger: log.WithCoin(log.Coin, cfg.ID),
	}
	c.store = store.New(c.db)
	c.tracker = mempool.New(c.store, c.keys, cfg.Clock, cfg.MempoolSize)
	c.tracker.SetGuard(&c.mu)
	c.scanner = scanner.New(scanner.Config{
		Keys:               c.keys,
		Store:              c.store,
		CheckpointInterval: cfg.CheckpointInterval,
		Workers:            cfg.Workers,
		Metrics:            metrics,
		Listener:           c.tracker,
	})
	c.builder = pay.NewBuilder(c.keys, cfg.FeeRule, cfg.ExpiryDelta)
	c.signer = signer.New(c.keys, cfg.Prover)

	h, err := c.scanner.Height()
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("name", cfg.Name).Uint32("height", h).Msg("Coin opened")
	return c, nil
}

// ID returns the coin id.
func (c *Context) ID() uint8 { return c.cfg.ID }

// Name returns the coin name.
func (c *Context) Name() string { return c.cfg.Name }

// Config returns the coin configuration.
func (c *Context) Config() Config { return c.cfg }

// Store exposes snapshot reads over the coin's records.
func (c *Context) Store() *store.Store { return c.store }

// Keys returns the key manager.
func (c *Context) Keys() *keys.Manager { return c.keys }

// Mempool returns the unconfirmed transaction tracker.
func (c *Context) Mempool() *mempool.Tracker { return c.tracker }

// update runs fn under the mutation lock in one batch.
func (c *Context) update(fn func(rw storage.ReadWriter) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Update(fn)
}

// view runs fn against a snapshot without taking the lock.
func (c *Context) view(fn func(r storage.Reader) error) error {
	return c.store.View(fn)
}

// Height returns the scan cursor.
func (c *Context) Height() (uint32, error) {
	return c.scanner.Height()
}

// Status reports whether a scan is running.
func (c *Context) Status() scanner.Status {
	return c.scanner.Status()
}

// Scan applies blocks from src up to and including to. It holds the
// mutation lock for the whole scan; cancel ctx to stop at the next block
// boundary.
func (c *Context) Scan(ctx context.Context, src scanner.BlockSource, to uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.scanner.Scan(ctx, src, to)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Uint32("height", h).Msg("Scan stopped")
	}
	return h, err
}

// Rewind moves the cursor back to the checkpoint at or below h. Mempool
// entries are dropped; the next poll re-adds what is still pending.
func (c *Context) Rewind(h uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var cp *checkpoint.Checkpoint
	err := c.store.Update(func(rw storage.ReadWriter) error {
		birth, err := c.keys.BirthHeight(rw)
		if err != nil {
			return err
		}
		cp, err = checkpoint.Rewind(rw, h, birth)
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := c.tracker.Clear(); err != nil {
		return cp.Height, err
	}
	return cp.Height, nil
}

// Reset forgets everything learned from blocks. The next scan starts from
// the accounts' birth height.
func (c *Context) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Update(func(rw storage.ReadWriter) error {
		return checkpoint.Reset(rw, nil)
	}); err != nil {
		return err
	}
	return c.tracker.Clear()
}

// Checkpoints lists the stored checkpoints, lowest first.
func (c *Context) Checkpoints() ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint
	err := c.view(func(r storage.Reader) error {
		var err error
		out, err = checkpoint.List(r)
		return err
	})
	return out, err
}

// CreateCheckpoint stores a checkpoint at the cursor.
func (c *Context) CreateCheckpoint() (uint32, error) {
	var h uint32
	err := c.update(func(rw storage.ReadWriter) error {
		st, err := checkpoint.State(rw)
		if err != nil {
			return err
		}
		h = st.Height
		return checkpoint.Create(rw, st)
	})
	return h, err
}

// DeleteCheckpoint removes the checkpoint at height.
func (c *Context) DeleteCheckpoint(height uint32) error {
	return c.update(func(rw storage.ReadWriter) error {
		return checkpoint.Delete(rw, height)
	})
}

// PurgeCheckpoints thins checkpoints at or below minHeight to one per day.
func (c *Context) PurgeCheckpoints(minHeight uint32) (int, error) {
	var n int
	err := c.update(func(rw storage.ReadWriter) error {
		var err error
		n, err = checkpoint.Purge(rw, minHeight)
		return err
	})
	return n, err
}

// RunMempool polls src on every tick of tk until ctx is done.
func (c *Context) RunMempool(ctx context.Context, src mempool.Source, tk ticker.Ticker) error {
	return c.tracker.Run(ctx, src, tk)
}
