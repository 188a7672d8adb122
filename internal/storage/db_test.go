package storage

import (
	"bytes"
	"errors"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		err := db.Put([]byte("key1"), []byte("value1"))
		if err != nil {
			t.Fatalf("Put() error: %v", err)
		}

		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() for missing key = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))

		ok, err := db.Has([]byte("exists"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if !ok {
			t.Error("Has() = false for existing key")
		}

		ok, err = db.Has([]byte("missing"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("first"))
		db.Put([]byte("ow"), []byte("second"))

		val, err := db.Get([]byte("ow"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("second")) {
			t.Errorf("Get() after overwrite = %q, want %q", val, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("value"))

		err := db.Delete([]byte("del"))
		if err != nil {
			t.Fatalf("Delete() error: %v", err)
		}

		ok, _ := db.Has([]byte("del"))
		if ok {
			t.Error("key should be gone after Delete()")
		}

		_, err = db.Get([]byte("del"))
		if err == nil {
			t.Error("Get() after Delete() should return error")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		// Deleting a nonexistent key should not error.
		err := db.Delete([]byte("never-existed"))
		if err != nil {
			t.Errorf("Delete() nonexistent key error: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		err := db.Put([]byte("empty"), []byte{})
		if err != nil {
			t.Fatalf("Put() empty value error: %v", err)
		}

		val, err := db.Get([]byte("empty"))
		if err != nil {
			t.Fatalf("Get() empty value error: %v", err)
		}
		if len(val) != 0 {
			t.Errorf("expected empty value, got %d bytes", len(val))
		}
	})

	t.Run("BinaryData", func(t *testing.T) {
		key := []byte{0x00, 0x01, 0xFF}
		value := make([]byte, 256)
		for i := range value {
			value[i] = byte(i)
		}

		err := db.Put(key, value)
		if err != nil {
			t.Fatalf("Put() binary error: %v", err)
		}

		got, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get() binary error: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Error("binary roundtrip failed")
		}
	})

	t.Run("ForEach", func(t *testing.T) {
		db.Put([]byte("prefix/a"), []byte("1"))
		db.Put([]byte("prefix/b"), []byte("2"))
		db.Put([]byte("prefix/c"), []byte("3"))
		db.Put([]byte("other/x"), []byte("4"))

		var count int
		err := db.ForEach([]byte("prefix/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if count != 3 {
			t.Errorf("ForEach(prefix/) count = %d, want 3", count)
		}
	})

	t.Run("ForEachEmpty", func(t *testing.T) {
		var count int
		err := db.ForEach([]byte("nonexistent/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if count != 0 {
			t.Errorf("ForEach(nonexistent/) count = %d, want 0", count)
		}
	})

	t.Run("ForEachOrdered", func(t *testing.T) {
		for _, k := range []string{"ord/c", "ord/a", "ord/b"} {
			db.Put([]byte(k), []byte("x"))
		}
		var keys []string
		db.ForEach([]byte("ord/"), func(key, _ []byte) error {
			keys = append(keys, string(key))
			return nil
		})
		if len(keys) != 3 || keys[0] != "ord/a" || keys[1] != "ord/b" || keys[2] != "ord/c" {
			t.Errorf("ForEach order = %v, want [ord/a ord/b ord/c]", keys)
		}
	})
}

// testStore runs batch and snapshot checks against a Store implementation.
func testStore(t *testing.T, db Store) {
	t.Helper()

	t.Run("BatchInvisibleUntilCommit", func(t *testing.T) {
		b := db.NewBatch()
		if err := b.Put([]byte("batch/a"), []byte("1")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if ok, _ := db.Has([]byte("batch/a")); ok {
			t.Fatal("pending write visible before Commit")
		}
		// The batch reads its own writes.
		got, err := b.Get([]byte("batch/a"))
		if err != nil || string(got) != "1" {
			t.Fatalf("batch Get = %q, %v", got, err)
		}
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if ok, _ := db.Has([]byte("batch/a")); !ok {
			t.Fatal("write missing after Commit")
		}
	})

	t.Run("BatchDiscard", func(t *testing.T) {
		b := db.NewBatch()
		b.Put([]byte("batch/discarded"), []byte("1"))
		b.Discard()
		if ok, _ := db.Has([]byte("batch/discarded")); ok {
			t.Fatal("discarded write visible")
		}
	})

	t.Run("BatchForEachMergesPending", func(t *testing.T) {
		db.Put([]byte("merge/a"), []byte("old"))
		db.Put([]byte("merge/b"), []byte("gone"))
		b := db.NewBatch()
		defer b.Discard()
		b.Put([]byte("merge/a"), []byte("new"))
		b.Delete([]byte("merge/b"))
		b.Put([]byte("merge/c"), []byte("added"))

		got := map[string]string{}
		err := b.ForEach([]byte("merge/"), func(key, value []byte) error {
			got[string(key)] = string(value)
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach: %v", err)
		}
		if len(got) != 2 || got["merge/a"] != "new" || got["merge/c"] != "added" {
			t.Fatalf("merged view = %v", got)
		}
	})

	t.Run("SnapshotIsolation", func(t *testing.T) {
		db.Put([]byte("snap/k"), []byte("before"))
		snap := db.Snapshot()
		defer snap.Discard()

		db.Put([]byte("snap/k"), []byte("after"))
		got, err := snap.Get([]byte("snap/k"))
		if err != nil {
			t.Fatalf("snapshot Get: %v", err)
		}
		if string(got) != "before" {
			t.Fatalf("snapshot Get = %q, want %q", got, "before")
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
	testStore(t, db)
}

func TestBadgerDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
	testStore(t, db)
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	// Write data.
	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	db1.Put([]byte("persist"), []byte("data"))
	db1.Close()

	// Reopen and read.
	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, err := db2.Get([]byte("persist"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(val, []byte("data")) {
		t.Errorf("persisted value = %q, want %q", val, "data")
	}
}
