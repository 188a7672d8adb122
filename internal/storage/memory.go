package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map. Iteration is in key order,
// matching Badger.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	m.data[string(key)] = cloneBytes(value)
	m.mu.Unlock()
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix. The iteration works
// on a copy taken under the read lock, so fn may write to the database.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	view := collectPrefix(m.data, string(prefix))
	m.mu.RUnlock()
	return view.each(fn)
}

// NewBatch returns a batch applied under the write lock on Commit.
func (m *MemoryDB) NewBatch() Batch {
	return newOverlayBatch(m, func(ops []batchOp) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, op := range ops {
			if op.del {
				delete(m.data, op.key)
			} else {
				m.data[op.key] = op.value
			}
		}
		return nil
	})
}

// Snapshot copies the current contents.
func (m *MemoryDB) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return &memorySnapshot{data: cp}
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

type memorySnapshot struct {
	data map[string][]byte
}

func (s *memorySnapshot) Get(key []byte) ([]byte, error) {
	v, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(v), nil
}

func (s *memorySnapshot) Has(key []byte) (bool, error) {
	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *memorySnapshot) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return collectPrefix(s.data, string(prefix)).each(fn)
}

func (s *memorySnapshot) Discard() {}

type kv struct {
	key   string
	value []byte
}

type sortedKVs []kv

func collectPrefix(data map[string][]byte, prefix string) sortedKVs {
	var out sortedKVs
	for k, v := range data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, kv{key: k, value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

func (s sortedKVs) each(fn func(key, value []byte) error) error {
	for _, e := range s {
		if err := fn([]byte(e.key), cloneBytes(e.value)); err != nil {
			return err
		}
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// batchOp is one buffered write. del marks a deletion.
type batchOp struct {
	key   string
	value []byte
	del   bool
}

var errBatchFinished = errors.New("batch already finished")

// overlayBatch buffers writes in memory over a base Reader and hands them to
// apply on Commit. The latest write per key wins.
type overlayBatch struct {
	base    Reader
	pending map[string]batchOp
	order   []string
	apply   func([]batchOp) error
	done    bool
}

func newOverlayBatch(base Reader, apply func([]batchOp) error) *overlayBatch {
	return &overlayBatch{base: base, pending: make(map[string]batchOp), apply: apply}
}

func (b *overlayBatch) record(op batchOp) error {
	if b.done {
		return errBatchFinished
	}
	if _, ok := b.pending[op.key]; !ok {
		b.order = append(b.order, op.key)
	}
	b.pending[op.key] = op
	return nil
}

func (b *overlayBatch) Put(key, value []byte) error {
	return b.record(batchOp{key: string(key), value: cloneBytes(value)})
}

func (b *overlayBatch) Delete(key []byte) error {
	return b.record(batchOp{key: string(key), del: true})
}

func (b *overlayBatch) Get(key []byte) ([]byte, error) {
	if op, ok := b.pending[string(key)]; ok {
		if op.del {
			return nil, ErrNotFound
		}
		return cloneBytes(op.value), nil
	}
	return b.base.Get(key)
}

func (b *overlayBatch) Has(key []byte) (bool, error) {
	if op, ok := b.pending[string(key)]; ok {
		return !op.del, nil
	}
	return b.base.Has(key)
}

// ForEach merges the base contents with pending writes in key order.
func (b *overlayBatch) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := b.base.ForEach(prefix, func(key, value []byte) error {
		merged[string(key)] = value
		return nil
	})
	if err != nil {
		return err
	}
	p := string(prefix)
	for k, op := range b.pending {
		if !strings.HasPrefix(k, p) {
			continue
		}
		if op.del {
			delete(merged, k)
		} else {
			merged[k] = op.value
		}
	}
	return collectPrefix(merged, p).each(fn)
}

func (b *overlayBatch) Commit() error {
	if b.done {
		return errBatchFinished
	}
	b.done = true
	ops := make([]batchOp, 0, len(b.order))
	for _, k := range b.order {
		ops = append(ops, b.pending[k])
	}
	return b.apply(ops)
}

func (b *overlayBatch) Discard() {
	b.done = true
	b.pending = nil
}
