package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// testBackend runs the behaviour every store.Backend must share
func testBackend(t *testing.T, open func(t *testing.T) store.Backend) {
	t.Run("GetPutDelete", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()

		if _, err := b.Get(ctx, []byte("missing")); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := b.Put(ctx, []byte("k"), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
		v, err := b.Get(ctx, []byte("k"))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(v) != "v" {
			t.Errorf("expected v, got %q", v)
		}
		if err := b.Delete(ctx, []byte("k")); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := b.Get(ctx, []byte("k")); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		// Deleting a missing key is not an error
		if err := b.Delete(ctx, []byte("k")); err != nil {
			t.Fatalf("second delete: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		if err := b.Batch(ctx, []store.BatchOp{{Type: store.BatchPut, Key: []byte("k"), Value: []byte{}}}); err != nil {
			t.Fatalf("batch: %v", err)
		}
		v, err := b.Get(ctx, []byte("k"))
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(v) != 0 {
			t.Errorf("expected empty value, got %q", v)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		fill(t, b, "a", "b", "c")
		err := b.Batch(ctx, []store.BatchOp{
			{Type: store.BatchDelete, Key: []byte("a")},
			{Type: store.BatchPut, Key: []byte("d"), Value: []byte{}},
		})
		if err != nil {
			t.Fatalf("batch: %v", err)
		}
		assertKeys(t, b, store.IterateOptions{}, "b", "c", "d")
	})

	t.Run("Bounds", func(t *testing.T) {
		b := open(t)
		fill(t, b, "a", "b", "b\x00", "b\xff", "c", "d")

		assertKeys(t, b, store.IterateOptions{}, "a", "b", "b\x00", "b\xff", "c", "d")
		assertKeys(t, b, store.IterateOptions{GTE: []byte("b"), LT: []byte("c")}, "b", "b\x00", "b\xff")
		assertKeys(t, b, store.IterateOptions{GT: []byte("b"), LTE: []byte("c")}, "b\x00", "b\xff", "c")
		assertKeys(t, b, store.IterateOptions{GTE: []byte("b\x00"), LT: []byte("b\xff")}, "b\x00")
		assertKeys(t, b, store.IterateOptions{GT: []byte("bb")}, "b\xff", "c", "d")
		assertKeys(t, b, store.IterateOptions{LT: []byte("b")}, "a")
		assertKeys(t, b, store.IterateOptions{GTE: []byte("x")})
	})

	t.Run("Reverse", func(t *testing.T) {
		b := open(t)
		fill(t, b, "a", "b", "c", "d")

		assertKeys(t, b, store.IterateOptions{Reverse: true}, "d", "c", "b", "a")
		assertKeys(t, b, store.IterateOptions{Reverse: true, GT: []byte("a"), LT: []byte("d")}, "c", "b")
		assertKeys(t, b, store.IterateOptions{Reverse: true, GTE: []byte("a"), LTE: []byte("c")}, "c", "b", "a")
		assertKeys(t, b, store.IterateOptions{Reverse: true, LT: []byte("bz")}, "b", "a")
	})

	t.Run("Limit", func(t *testing.T) {
		b := open(t)
		fill(t, b, "a", "b", "c", "d")

		assertKeys(t, b, store.IterateOptions{Limit: 2}, "a", "b")
		assertKeys(t, b, store.IterateOptions{Limit: 2, Reverse: true}, "d", "c")
		assertKeys(t, b, store.IterateOptions{Limit: 10, KeysOnly: true}, "a", "b", "c", "d")
	})

	t.Run("ManyPages", func(t *testing.T) {
		b := open(t)
		ctx := context.Background()
		var ops []store.BatchOp
		for i := 0; i < 1000; i++ {
			ops = append(ops, store.BatchOp{Type: store.BatchPut, Key: []byte(fmt.Sprintf("k%04d", i)), Value: []byte{}})
		}
		if err := b.Batch(ctx, ops); err != nil {
			t.Fatalf("batch: %v", err)
		}
		keys := collect(t, b, store.IterateOptions{GTE: []byte("k0100"), LT: []byte("k0900")})
		if len(keys) != 800 {
			t.Fatalf("expected 800 keys, got %d", len(keys))
		}
		for i := 1; i < len(keys); i++ {
			if bytes.Compare([]byte(keys[i-1]), []byte(keys[i])) >= 0 {
				t.Fatalf("keys out of order at %d: %q >= %q", i, keys[i-1], keys[i])
			}
		}
		rev := collect(t, b, store.IterateOptions{Reverse: true})
		if len(rev) != 1000 || rev[0] != "k0999" || rev[999] != "k0000" {
			t.Fatalf("unexpected reverse scan: %d keys", len(rev))
		}
	})

	t.Run("NestedIterators", func(t *testing.T) {
		b := open(t)
		fill(t, b, "a", "b")
		ctx := context.Background()

		outer, err := b.Iterate(ctx, store.IterateOptions{})
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		defer outer.Close()
		pairs := 0
		for outer.Next() {
			inner, err := b.Iterate(ctx, store.IterateOptions{})
			if err != nil {
				t.Fatalf("inner iterate: %v", err)
			}
			for inner.Next() {
				pairs++
			}
			inner.Close()
		}
		if pairs != 4 {
			t.Errorf("expected 4 pairs, got %d", pairs)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		b := open(t)
		fill(t, b, "a", "b")
		ctx, cancel := context.WithCancel(context.Background())
		it, err := b.Iterate(ctx, store.IterateOptions{})
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		defer it.Close()
		cancel()
		if it.Next() {
			t.Fatal("expected iteration to stop after cancel")
		}
		if !errors.Is(it.Err(), context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", it.Err())
		}
	})
}

func fill(t *testing.T, b store.Backend, keys ...string) {
	t.Helper()
	ops := make([]store.BatchOp, len(keys))
	for i, k := range keys {
		ops[i] = store.BatchOp{Type: store.BatchPut, Key: []byte(k), Value: []byte("v" + k)}
	}
	if err := b.Batch(context.Background(), ops); err != nil {
		t.Fatalf("fill: %v", err)
	}
}

func collect(t *testing.T, b store.Backend, opts store.IterateOptions) []string {
	t.Helper()
	it, err := b.Iterate(context.Background(), opts)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	defer it.Close()
	var keys []string
	for it.Next() {
		if !opts.KeysOnly && string(it.Value()) != "v"+string(it.Key()) && len(it.Value()) != 0 {
			t.Errorf("value mismatch for %q: %q", it.Key(), it.Value())
		}
		keys = append(keys, string(it.Key()))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return keys
}

func assertKeys(t *testing.T, b store.Backend, opts store.IterateOptions, want ...string) {
	t.Helper()
	got := collect(t, b, opts)
	if len(got) != len(want) {
		t.Fatalf("opts %+v: expected %q, got %q", opts, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("opts %+v: expected %q, got %q", opts, want, got)
		}
	}
}
