package store_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/quadkv/internal/storage"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

const ex = "http://example.org/"

func iri(local string) *rdf.NamedNode {
	return rdf.NewNamedNode(ex + local)
}

func newMemoryBackend(t *testing.T) store.Backend {
	t.Helper()
	b, err := storage.NewMemoryStorage()
	require.NoError(t, err)
	return b
}

func newStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.New(newMemoryBackend(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func quadStrings(quads []*rdf.Quad) []string {
	out := make([]string, len(quads))
	for i, q := range quads {
		out[i] = q.String()
	}
	sort.Strings(out)
	return out
}

func getAll(t *testing.T, s *store.Store, p *store.Pattern, opts *store.GetOpts) []*rdf.Quad {
	t.Helper()
	res, err := s.Get(context.Background(), p, opts)
	require.NoError(t, err)
	return res.Items
}

// countingBackend tracks open iterators and backend calls
type countingBackend struct {
	store.Backend
	open    atomic.Int64
	opened  atomic.Int64
	batches atomic.Int64
	failOn  string
}

var errInjected = errors.New("injected failure")

func (b *countingBackend) Batch(ctx context.Context, ops []store.BatchOp) error {
	b.batches.Add(1)
	if b.failOn == "batch" {
		return errInjected
	}
	return b.Backend.Batch(ctx, ops)
}

func (b *countingBackend) Iterate(ctx context.Context, opts store.IterateOptions) (store.Iterator, error) {
	if b.failOn == "iterate" {
		return nil, errInjected
	}
	it, err := b.Backend.Iterate(ctx, opts)
	if err != nil {
		return nil, err
	}
	b.open.Add(1)
	b.opened.Add(1)
	return &countingIterator{Iterator: it, owner: b}, nil
}

type countingIterator struct {
	store.Iterator
	owner  *countingBackend
	closed bool
}

func (i *countingIterator) Close() error {
	if !i.closed {
		i.closed = true
		i.owner.open.Add(-1)
	}
	return i.Iterator.Close()
}

// naiveMatch is the reference semantics of an exact-only pattern
func naiveMatch(quads []*rdf.Quad, terms [4]rdf.Term) []*rdf.Quad {
	var out []*rdf.Quad
	for _, q := range quads {
		ok := true
		for _, r := range rdf.Roles {
			if terms[r] != nil && !terms[r].Equals(q.Get(r)) {
				ok = false
			}
		}
		if ok {
			out = append(out, q)
		}
	}
	return out
}

func fixtureQuads() []*rdf.Quad {
	var quads []*rdf.Quad
	graphs := []rdf.Term{rdf.NewDefaultGraph(), iri("g1"), iri("g2")}
	for i := 0; i < 4; i++ {
		for j, g := range graphs {
			s := iri(fmt.Sprintf("s%d", i))
			quads = append(quads,
				rdf.NewQuad(s, iri("p"), rdf.NewIntegerLiteral(int64(i*10+j)), g),
				rdf.NewQuad(s, iri("knows"), iri(fmt.Sprintf("s%d", (i+1)%4)), g),
			)
		}
	}
	return quads
}
