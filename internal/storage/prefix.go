package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// Each coin context lives in its own PrefixDB over the shared wallet database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

// prefixed returns key with the prefix prepended.
func prefixed(prefix, key []byte) []byte {
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(prefixed(p.prefix, key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(prefixed(p.prefix, key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(prefixed(p.prefix, key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(prefixed(p.prefix, key))
}

// ForEach iterates over all keys with the given prefix (within the PrefixDB namespace).
// The callback receives keys with the PrefixDB prefix stripped, so callers see only
// their logical keyspace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return forEachStripped(p.inner, p.prefix, prefix, fn)
}

func forEachStripped(r Reader, ns, prefix []byte, fn func(key, value []byte) error) error {
	return r.ForEach(prefixed(ns, prefix), func(key, value []byte) error {
		return fn(key[len(ns):], value)
	})
}

// DeleteAll removes all keys under this PrefixDB's namespace from the inner DB.
// The removal is a single batch when the inner DB supports it.
func (p *PrefixDB) DeleteAll() error {
	// Collect all keys first to avoid modifying during iteration.
	var keys [][]byte
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	if batcher, ok := p.inner.(Batcher); ok {
		b := batcher.NewBatch()
		defer b.Discard()
		for _, key := range keys {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return b.Commit()
	}
	for _, key := range keys {
		if err := p.inner.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch creates a batch that prepends the prefix to all keys, delegating
// to the inner DB's batch for atomic commits.
func (p *PrefixDB) NewBatch() Batch {
	batcher, ok := p.inner.(Batcher)
	if !ok {
		// Fallback: buffered writes applied one by one.
		return newOverlayBatch(p, func(ops []batchOp) error {
			for _, op := range ops {
				var err error
				if op.del {
					err = p.Delete([]byte(op.key))
				} else {
					err = p.Put([]byte(op.key), op.value)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	return &prefixBatch{inner: batcher.NewBatch(), prefix: p.prefix}
}

// Snapshot returns a namespaced snapshot. If the inner DB cannot snapshot,
// reads go straight to it.
func (p *PrefixDB) Snapshot() Snapshot {
	if s, ok := p.inner.(Snapshotter); ok {
		return &prefixSnapshot{inner: s.Snapshot(), prefix: p.prefix}
	}
	return &prefixSnapshot{inner: nopSnapshot{p.inner}, prefix: p.prefix}
}

type prefixBatch struct {
	inner  Batch
	prefix []byte
}

func (pb *prefixBatch) Get(key []byte) ([]byte, error) {
	return pb.inner.Get(prefixed(pb.prefix, key))
}

func (pb *prefixBatch) Has(key []byte) (bool, error) {
	return pb.inner.Has(prefixed(pb.prefix, key))
}

func (pb *prefixBatch) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return forEachStripped(pb.inner, pb.prefix, prefix, fn)
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(prefixed(pb.prefix, key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(prefixed(pb.prefix, key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

func (pb *prefixBatch) Discard() {
	pb.inner.Discard()
}

type prefixSnapshot struct {
	inner  Snapshot
	prefix []byte
}

func (ps *prefixSnapshot) Get(key []byte) ([]byte, error) {
	return ps.inner.Get(prefixed(ps.prefix, key))
}

func (ps *prefixSnapshot) Has(key []byte) (bool, error) {
	return ps.inner.Has(prefixed(ps.prefix, key))
}

func (ps *prefixSnapshot) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return forEachStripped(ps.inner, ps.prefix, prefix, fn)
}

func (ps *prefixSnapshot) Discard() {
	ps.inner.Discard()
}

type nopSnapshot struct {
	Reader
}

func (nopSnapshot) Discard() {}
