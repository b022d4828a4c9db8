// Package store keeps RDF quads in an ordered key-value backend under a
// fixed set of index permutations and answers pattern, range and join
// queries with bounded scans over them.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/internal/index"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// Store is a quad store over a Backend. It holds no locks and is safe for
// concurrent use as far as the backend is.
type Store struct {
	id       string
	backend  Backend
	indexes  *index.Set
	selector *index.Selector
	encoder  *encoding.TermEncoder
	decoder  *encoding.TermDecoder
	mode     DefaultGraphMode
	logger   *slog.Logger
}

// New creates a store over backend. The store does not take ownership of
// the backend until Close is called.
func New(backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, argumentErrorf("backend", "nil backend")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if ip, ok := o.prefixes.(invalidPrefixes); ok {
		return nil, &ArgumentError{Argument: "prefixes", Reason: ip.err.Error(), cause: ip.err}
	}
	mode, err := ParseDefaultGraphMode(string(o.defaultGraphMode))
	if err != nil {
		return nil, err
	}
	set, err := index.NewSet(o.indexes)
	if err != nil {
		return nil, &ArgumentError{Argument: "indexes", Reason: err.Error(), cause: err}
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	enc := encoding.NewTermEncoder(o.prefixes)
	s := &Store{
		id:       uuid.NewString(),
		backend:  backend,
		indexes:  set,
		selector: index.NewSelector(set, enc),
		encoder:  enc,
		decoder:  encoding.NewTermDecoder(o.prefixes),
		mode:     mode,
	}
	s.logger = logger.With("store", s.id)
	s.logger.Info("store opened", "indexes", set.Names(), "defaultGraphMode", string(mode))
	return s, nil
}

// ID returns the random identifier assigned to this instance
func (s *Store) ID() string {
	return s.id
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(%s)", s.id)
}

// Indexes returns the names of the indexes in declaration order
func (s *Store) Indexes() []string {
	return s.indexes.Names()
}

// Close closes the backend
func (s *Store) Close() error {
	s.logger.Info("store closed")
	if err := s.backend.Close(); err != nil {
		return &BackendError{Op: "close", Err: err}
	}
	return nil
}

// Put stores a quad in every index. Storing an existing quad is a no-op.
func (s *Store) Put(ctx context.Context, quad *rdf.Quad) error {
	return s.MultiPut(ctx, []*rdf.Quad{quad})
}

// MultiPut stores all quads in one atomic backend batch
func (s *Store) MultiPut(ctx context.Context, quads []*rdf.Quad) error {
	ops, err := s.appendOps(nil, BatchPut, quads)
	if err != nil {
		return err
	}
	return s.batch(ctx, ops)
}

// Del removes a quad from every index. Removing a missing quad is a no-op.
func (s *Store) Del(ctx context.Context, quad *rdf.Quad) error {
	return s.MultiDel(ctx, []*rdf.Quad{quad})
}

// MultiDel removes all quads in one atomic backend batch
func (s *Store) MultiDel(ctx context.Context, quads []*rdf.Quad) error {
	ops, err := s.appendOps(nil, BatchDelete, quads)
	if err != nil {
		return err
	}
	return s.batch(ctx, ops)
}

// Patch replaces oldQuad with newQuad atomically
func (s *Store) Patch(ctx context.Context, oldQuad, newQuad *rdf.Quad) error {
	return s.MultiPatch(ctx, []*rdf.Quad{oldQuad}, []*rdf.Quad{newQuad})
}

// MultiPatch deletes oldQuads and stores newQuads in a single batch. The
// deletes come first, so a quad present in both lists ends up stored.
func (s *Store) MultiPatch(ctx context.Context, oldQuads, newQuads []*rdf.Quad) error {
	ops, err := s.appendOps(nil, BatchDelete, oldQuads)
	if err != nil {
		return err
	}
	ops, err = s.appendOps(ops, BatchPut, newQuads)
	if err != nil {
		return err
	}
	return s.batch(ctx, ops)
}

// PutStream stores quads one at a time, stopping at the first error. Quads
// stored before the error stay stored.
func (s *Store) PutStream(ctx context.Context, quads iter.Seq2[*rdf.Quad, error]) (int, error) {
	return s.applyStream(ctx, quads, s.Put)
}

// DelStream removes quads one at a time, stopping at the first error
func (s *Store) DelStream(ctx context.Context, quads iter.Seq2[*rdf.Quad, error]) (int, error) {
	return s.applyStream(ctx, quads, s.Del)
}

func (s *Store) applyStream(ctx context.Context, quads iter.Seq2[*rdf.Quad, error], apply func(context.Context, *rdf.Quad) error) (int, error) {
	if quads == nil {
		return 0, argumentErrorf("quads", "nil sequence")
	}
	n := 0
	for quad, err := range quads {
		if err != nil {
			return n, err
		}
		if err := apply(ctx, quad); err != nil {
			return n, fmt.Errorf("quad %d: %w", n, err)
		}
		n++
	}
	return n, nil
}

// DeleteMatches removes every quad matching pattern and returns how many
// were removed
func (s *Store) DeleteMatches(ctx context.Context, pattern *Pattern, opts *GetOpts) (int, error) {
	it, err := s.GetStream(ctx, pattern, opts)
	if err != nil {
		return 0, err
	}
	// The scan is drained into a buffer first so deletes never race the
	// iterator over the same key range.
	var matched []*rdf.Quad
	for quad, err := range it.All() {
		if err != nil {
			return 0, err
		}
		matched = append(matched, quad)
	}
	return s.DelStream(ctx, func(yield func(*rdf.Quad, error) bool) {
		for _, q := range matched {
			if !yield(q, nil) {
				return
			}
		}
	})
}

// Has reports whether quad is stored
func (s *Store) Has(ctx context.Context, quad *rdf.Quad) (bool, error) {
	if err := checkQuad("quad", quad); err != nil {
		return false, err
	}
	sq, err := s.encoder.EncodeQuad(quad)
	if err != nil {
		return false, err
	}
	_, err = s.backend.Get(ctx, s.indexes.Primary().KeyFor(&sq))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &BackendError{Op: "get", Err: err}
	}
	return true, nil
}

var emptyValue = []byte{}

func (s *Store) appendOps(ops []BatchOp, typ BatchOpType, quads []*rdf.Quad) ([]BatchOp, error) {
	for i, quad := range quads {
		if err := checkQuad(fmt.Sprintf("quads[%d]", i), quad); err != nil {
			return nil, err
		}
	}
	for _, quad := range quads {
		sq, err := s.encoder.EncodeQuad(quad)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", quad, err)
		}
		for _, def := range s.indexes.Definitions() {
			op := BatchOp{Type: typ, Key: def.KeyFor(&sq)}
			if typ == BatchPut {
				op.Value = emptyValue
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

func (s *Store) batch(ctx context.Context, ops []BatchOp) error {
	if len(ops) == 0 {
		return nil
	}
	s.logger.Debug("batch", "ops", len(ops))
	if err := s.backend.Batch(ctx, ops); err != nil {
		s.logger.Warn("batch failed", "ops", len(ops), "error", err)
		return &BackendError{Op: "batch", Err: err}
	}
	return nil
}

// checkQuad rejects nil quads, nil terms and variables before encoding
func checkQuad(arg string, quad *rdf.Quad) error {
	if quad == nil {
		return argumentErrorf(arg, "nil quad")
	}
	for _, r := range rdf.Roles {
		t := quad.Get(r)
		if t == nil || isNilTerm(t) {
			return argumentErrorf(arg, "%s is nil", r)
		}
		if t.Type() == rdf.TermTypeVariable {
			return argumentErrorf(arg, "%s is a variable", r)
		}
	}
	return nil
}
