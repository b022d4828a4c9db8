package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Get for missing keys
var ErrNotFound = errors.New("key not found")

// Backend is the ordered key-value store quads are persisted in. Keys are
// compared as raw bytes.
type Backend interface {
	// Get returns the value of key, or ErrNotFound
	Get(ctx context.Context, key []byte) ([]byte, error)

	Put(ctx context.Context, key, value []byte) error

	Delete(ctx context.Context, key []byte) error

	// Batch applies all operations atomically
	Batch(ctx context.Context, ops []BatchOp) error

	// Iterate opens an iterator over the keys within the given bounds
	Iterate(ctx context.Context, opts IterateOptions) (Iterator, error)

	Close() error
}

// ApproximateSizer is implemented by backends that can estimate the number
// of entries between two keys without iterating them.
type ApproximateSizer interface {
	ApproximateSize(ctx context.Context, lower, upper []byte) (int64, error)
}

// BatchOpType is the kind of a batched write
type BatchOpType int

const (
	BatchPut BatchOpType = iota
	BatchDelete
)

func (t BatchOpType) String() string {
	if t == BatchDelete {
		return "del"
	}
	return "put"
}

// BatchOp is one write inside Backend.Batch
type BatchOp struct {
	Type  BatchOpType
	Key   []byte
	Value []byte
}

// IterateOptions bounds an iteration. Nil bounds are open; when both an
// inclusive and an exclusive bound are set on the same side, the exclusive
// one wins.
type IterateOptions struct {
	GT  []byte
	GTE []byte
	LT  []byte
	LTE []byte

	Reverse bool
	// Limit caps the number of entries, 0 means unlimited
	Limit int
	// KeysOnly allows the backend to skip reading values
	KeysOnly bool
}

// Lower returns the lower bound and whether it is exclusive
func (o IterateOptions) Lower() ([]byte, bool) {
	if o.GT != nil {
		return o.GT, true
	}
	return o.GTE, false
}

// Upper returns the upper bound and whether it is exclusive
func (o IterateOptions) Upper() ([]byte, bool) {
	if o.LT != nil {
		return o.LT, true
	}
	return o.LTE, false
}

// Iterator walks backend entries in key order. Key and Value are only valid
// until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	// Err returns the error that stopped the iteration, if any
	Err() error
	Close() error
}
