package store

import (
	"context"
	"errors"
	"iter"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/internal/index"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// GetOpts tunes a pattern lookup. The zero value returns every match in
// index order.
type GetOpts struct {
	// Limit caps the number of quads returned, 0 means no limit
	Limit int
	// Offset skips that many matches first
	Offset int
	// Reverse walks the chosen index backwards
	Reverse bool
	// Order asks, among equally selective indexes, for one whose remaining
	// roles follow this order
	Order []rdf.Role
	// DefaultGraphMode overrides the store-wide mode when set
	DefaultGraphMode DefaultGraphMode
}

func (o *GetOpts) validate() error {
	if o.Limit < 0 {
		return argumentErrorf("opts.limit", "negative limit %d", o.Limit)
	}
	if o.Offset < 0 {
		return argumentErrorf("opts.offset", "negative offset %d", o.Offset)
	}
	seen := map[rdf.Role]bool{}
	for _, r := range o.Order {
		if r < rdf.Subject || r > rdf.Graph {
			return argumentErrorf("opts.order", "invalid role %d", int(r))
		}
		if seen[r] {
			return argumentErrorf("opts.order", "role %s repeated", r)
		}
		seen[r] = true
	}
	if o.DefaultGraphMode != "" {
		if _, err := ParseDefaultGraphMode(string(o.DefaultGraphMode)); err != nil {
			return err
		}
	}
	return nil
}

// GetResult holds the quads of a Get call. Sorting is the role order the
// quads follow, as given by the scanned index.
type GetResult struct {
	Items   []*rdf.Quad
	Sorting []rdf.Role
	Reverse bool
}

// QuadIterator iterates over quads matching a pattern. It is closed
// automatically once exhausted or failed; Close must be called when the
// caller stops early.
type QuadIterator struct {
	plan    *index.Plan
	enc     *encoding.TermEncoder
	dec     *encoding.TermDecoder
	it      Iterator
	reverse bool
	offset  int
	limit   int
	emitted int

	quad *rdf.Quad
	err  error
	done bool
}

// Next advances to the next matching quad
func (i *QuadIterator) Next() bool {
	if i.done {
		return false
	}
	if i.limit > 0 && i.emitted >= i.limit {
		i.Close()
		return false
	}
	for i.it.Next() {
		quad, err := i.plan.Index.Decode(i.dec, i.it.Key())
		if err != nil {
			i.fail(err)
			return false
		}
		ok, err := i.plan.Match(i.enc, quad)
		if err != nil {
			i.fail(err)
			return false
		}
		if !ok {
			continue
		}
		if i.offset > 0 {
			i.offset--
			continue
		}
		i.quad = quad
		i.emitted++
		return true
	}
	if err := i.it.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			i.fail(err)
		} else {
			i.fail(&BackendError{Op: "iterate", Err: err})
		}
		return false
	}
	i.Close()
	return false
}

func (i *QuadIterator) fail(err error) {
	i.err = err
	i.Close()
}

// Quad returns the current quad
func (i *QuadIterator) Quad() *rdf.Quad {
	return i.quad
}

// Err returns the error that ended the iteration, if any
func (i *QuadIterator) Err() error {
	return i.err
}

// Sorting returns the role order of the results
func (i *QuadIterator) Sorting() []rdf.Role {
	return i.plan.Sorting()
}

// Reverse reports whether the results come in descending order
func (i *QuadIterator) Reverse() bool {
	return i.reverse
}

// Close releases the backend iterator. It is safe to call more than once.
func (i *QuadIterator) Close() error {
	if i.done {
		return nil
	}
	i.done = true
	i.quad = nil
	if err := i.it.Close(); err != nil && i.err == nil {
		i.err = &BackendError{Op: "close iterator", Err: err}
		return i.err
	}
	return nil
}

// All yields the remaining quads, closing the iterator when the loop ends
// or breaks. A failure is yielded as the last element.
func (i *QuadIterator) All() iter.Seq2[*rdf.Quad, error] {
	return func(yield func(*rdf.Quad, error) bool) {
		defer i.Close()
		for i.Next() {
			if !yield(i.quad, nil) {
				return
			}
		}
		if i.err != nil {
			yield(nil, i.err)
		}
	}
}

// plan validates a pattern and picks the index to scan
func (s *Store) plan(pattern *Pattern, opts *GetOpts) (*index.Plan, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	mode := s.mode
	if opts.DefaultGraphMode != "" {
		mode = opts.DefaultGraphMode
	}
	p, err := compilePattern(pattern, mode)
	if err != nil {
		return nil, err
	}
	return s.selectPlan(p, opts.Order)
}

func (s *Store) selectPlan(p index.Pattern, order []rdf.Role) (*index.Plan, error) {
	plan, err := s.selector.Select(p, order)
	if err != nil {
		return nil, selectionError(err)
	}
	s.logger.Debug("index selected",
		"index", plan.Index.Name(),
		"covered", plan.Covered,
		"rangeFolded", plan.RangeFolded,
		"filters", len(plan.Filters))
	return plan, nil
}

// scan opens one bounded backend iteration for plan
func (s *Store) scan(ctx context.Context, plan *index.Plan, opts *GetOpts) (*QuadIterator, error) {
	iterOpts := IterateOptions{
		GTE:      plan.Lower,
		LT:       plan.Upper,
		Reverse:  opts.Reverse,
		KeysOnly: true,
	}
	// Without residual filters every key is a result, so the backend can
	// stop on its own.
	if len(plan.Filters) == 0 && opts.Limit > 0 {
		iterOpts.Limit = opts.Limit + opts.Offset
	}
	it, err := s.backend.Iterate(ctx, iterOpts)
	if err != nil {
		s.logger.Warn("iterate failed", "index", plan.Index.Name(), "error", err)
		return nil, &BackendError{Op: "iterate", Err: err}
	}
	return &QuadIterator{
		plan:    plan,
		enc:     s.encoder,
		dec:     s.decoder,
		it:      it,
		reverse: opts.Reverse,
		offset:  opts.Offset,
		limit:   opts.Limit,
	}, nil
}

// GetStream returns an iterator over the quads matching pattern. A nil
// pattern or nil opts match everything.
func (s *Store) GetStream(ctx context.Context, pattern *Pattern, opts *GetOpts) (*QuadIterator, error) {
	if opts == nil {
		opts = &GetOpts{}
	}
	plan, err := s.plan(pattern, opts)
	if err != nil {
		return nil, err
	}
	return s.scan(ctx, plan, opts)
}

// Get collects the quads matching pattern
func (s *Store) Get(ctx context.Context, pattern *Pattern, opts *GetOpts) (*GetResult, error) {
	it, err := s.GetStream(ctx, pattern, opts)
	if err != nil {
		return nil, err
	}
	res := &GetResult{Sorting: it.Sorting(), Reverse: it.Reverse()}
	for quad, err := range it.All() {
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, quad)
	}
	return res, nil
}

// GetApproximateSize estimates how many quads match pattern. Constraints
// that the chosen index cannot express as key bounds are ignored, so the
// figure may be higher than the real count.
func (s *Store) GetApproximateSize(ctx context.Context, pattern *Pattern, opts *GetOpts) (int64, error) {
	if opts == nil {
		opts = &GetOpts{}
	}
	plan, err := s.plan(pattern, opts)
	if err != nil {
		return 0, err
	}

	if sizer, ok := s.backend.(ApproximateSizer); ok {
		n, err := sizer.ApproximateSize(ctx, plan.Lower, plan.Upper)
		if err != nil {
			return 0, &BackendError{Op: "approximate size", Err: err}
		}
		return n, nil
	}

	it, err := s.backend.Iterate(ctx, IterateOptions{GTE: plan.Lower, LT: plan.Upper, KeysOnly: true})
	if err != nil {
		return 0, &BackendError{Op: "iterate", Err: err}
	}
	defer it.Close()
	var n int64
	for it.Next() {
		n++
	}
	if err := it.Err(); err != nil {
		return 0, &BackendError{Op: "iterate", Err: err}
	}
	return n, nil
}
