package coin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/warpwallet/internal/storage"
	"github.com/Klingon-tech/warpwallet/pkg/walleterr"
)

// Registry maps coin ids to their contexts. Contexts share one database,
// each under its own namespace.
type Registry struct {
	mu    sync.RWMutex
	db    storage.Store
	coins map[uint8]*Context
}

// NewRegistry creates an empty registry over db.
func NewRegistry(db storage.Store) *Registry {
	return &Registry{db: db, coins: make(map[uint8]*Context)}
}

// Open opens the context of a coin and registers it. Opening a registered
// coin returns the existing context.
func (r *Registry) Open(cfg Config) (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coins[cfg.ID]; ok {
		return c, nil
	}
	c, err := Open(r.db, cfg)
	if err != nil {
		return nil, err
	}
	r.coins[cfg.ID] = c
	return c, nil
}

// Get returns the context of a coin.
func (r *Registry) Get(id uint8) (*Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coins[id]
	if !ok {
		return nil, fmt.Errorf("coin %d: %w", id, walleterr.ErrNotFound)
	}
	return c, nil
}

// IDs returns the registered coin ids in ascending order.
func (r *Registry) IDs() []uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint8, 0, len(r.coins))
	for id := range r.coins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Remove unregisters a coin. With wipe set, every record of the coin is
// deleted from the database as well.
func (r *Registry) Remove(id uint8, wipe bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coins[id]
	if !ok {
		return fmt.Errorf("coin %d: %w", id, walleterr.ErrNotFound)
	}
	if wipe {
		c.mu.Lock()
		err := c.db.DeleteAll()
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("wipe coin %d: %w", id, err)
		}
	}
	delete(r.coins, id)
	return nil
}

// Close closes the shared database. Contexts must not be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coins = make(map[uint8]*Context)
	return r.db.Close()
}
