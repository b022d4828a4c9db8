package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// BadgerStorage implements store.Backend using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// BadgerOptions configures a Badger backend
type BadgerOptions struct {
	// Path is the data directory; ignored when InMemory is set
	Path     string
	InMemory bool
	// Logger receives Badger's own log output; nil disables it
	Logger *slog.Logger
}

// NewBadgerStorage opens an on-disk BadgerDB-backed storage
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	return OpenBadger(BadgerOptions{Path: path})
}

// NewMemoryStorage opens a BadgerDB instance that lives only in memory
func NewMemoryStorage() (*BadgerStorage, error) {
	return OpenBadger(BadgerOptions{InMemory: true})
}

// OpenBadger opens a Badger backend with explicit options
func OpenBadger(o BadgerOptions) (*BadgerStorage, error) {
	var opts badger.Options
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(o.Path)
	}
	opts.Logger = nil // Disable default logger
	if o.Logger != nil {
		opts.Logger = &badgerLogger{log: o.Logger.With("component", "badger")}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// Get retrieves a value by key
func (s *BadgerStorage) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return store.ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores a key-value pair
func (s *BadgerStorage) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key
func (s *BadgerStorage) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Batch applies every operation in a single read-write transaction
func (s *BadgerStorage) Batch(ctx context.Context, ops []store.BatchOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			var err error
			switch op.Type {
			case store.BatchPut:
				value := op.Value
				if value == nil {
					value = []byte{}
				}
				err = txn.Set(op.Key, value)
			case store.BatchDelete:
				err = txn.Delete(op.Key)
			default:
				err = fmt.Errorf("unknown batch operation %d", op.Type)
			}
			if err != nil {
				return fmt.Errorf("batch %s: %w", op.Type, err)
			}
		}
		return nil
	})
}

// Iterate opens a read transaction that stays alive until the iterator is closed
func (s *BadgerStorage) Iterate(ctx context.Context, opts store.IterateOptions) (store.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txn := s.db.NewTransaction(false)

	itOpts := badger.DefaultIteratorOptions
	itOpts.Reverse = opts.Reverse
	itOpts.PrefetchValues = !opts.KeysOnly

	lower, lowerExcl := opts.Lower()
	upper, upperExcl := opts.Upper()

	return &BadgerIterator{
		ctx:       ctx,
		txn:       txn,
		it:        txn.NewIterator(itOpts),
		reverse:   opts.Reverse,
		keysOnly:  opts.KeysOnly,
		limit:     opts.Limit,
		lower:     lower,
		lowerExcl: lowerExcl,
		upper:     upper,
		upperExcl: upperExcl,
	}, nil
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// BadgerIterator implements store.Iterator over a bounded key range
type BadgerIterator struct {
	ctx      context.Context
	txn      *badger.Txn
	it       *badger.Iterator
	reverse  bool
	keysOnly bool
	limit    int
	count    int

	lower, upper         []byte
	lowerExcl, upperExcl bool

	started bool
	done    bool
	key     []byte
	value   []byte
	err     error
}

func (i *BadgerIterator) seek() {
	switch {
	case !i.reverse && i.lower != nil:
		i.it.Seek(i.lower)
	case i.reverse && i.upper != nil:
		// In reverse mode Seek lands on the largest key <= upper
		i.it.Seek(i.upper)
	default:
		i.it.Rewind()
	}
}

// inBounds reports whether key lies within the range; past is set once the
// iteration has moved beyond the range for good.
func (i *BadgerIterator) inBounds(key []byte) (ok, past bool) {
	if i.lower != nil {
		c := bytes.Compare(key, i.lower)
		if c < 0 || (c == 0 && i.lowerExcl) {
			return false, i.reverse
		}
	}
	if i.upper != nil {
		c := bytes.Compare(key, i.upper)
		if c > 0 || (c == 0 && i.upperExcl) {
			return false, !i.reverse
		}
	}
	return true, false
}

// Next advances to the next item within the bounds
func (i *BadgerIterator) Next() bool {
	if i.done {
		return false
	}
	if err := i.ctx.Err(); err != nil {
		i.err = err
		i.finish()
		return false
	}
	if i.limit > 0 && i.count >= i.limit {
		i.finish()
		return false
	}

	for {
		if !i.started {
			i.seek()
			i.started = true
		} else {
			i.it.Next()
		}
		if !i.it.Valid() {
			i.finish()
			return false
		}

		item := i.it.Item()
		ok, past := i.inBounds(item.Key())
		if past {
			i.finish()
			return false
		}
		if !ok {
			// An exclusive bound equal to the seek key
			continue
		}

		i.key = item.KeyCopy(i.key[:0])
		i.value = nil
		if !i.keysOnly {
			v, err := item.ValueCopy(nil)
			if err != nil {
				i.err = err
				i.finish()
				return false
			}
			i.value = v
		}
		i.count++
		return true
	}
}

func (i *BadgerIterator) finish() {
	i.done = true
	i.key, i.value = nil, nil
}

// Key returns the current key
func (i *BadgerIterator) Key() []byte {
	return i.key
}

// Value returns the current value
func (i *BadgerIterator) Value() []byte {
	return i.value
}

func (i *BadgerIterator) Err() error {
	return i.err
}

// Close releases the iterator and its read transaction
func (i *BadgerIterator) Close() error {
	if i.it != nil {
		i.it.Close()
		i.txn.Discard()
		i.it = nil
	}
	i.finish()
	return nil
}

// badgerLogger forwards Badger's printf-style logging to slog
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

var _ store.Backend = (*BadgerStorage)(nil)
