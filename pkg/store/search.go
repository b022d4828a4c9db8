package store

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/internal/index"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// Stage is one step of a search: a *PatternStage or a *FilterStage
type Stage interface {
	isStage()
}

// PatternStage matches quads like a Pattern; roles may also hold
// *rdf.Variable, which binds the term found there or, when bound by an
// earlier stage, constrains the role to it.
type PatternStage struct {
	Subject   any
	Predicate any
	Object    any
	Graph     any
}

func (*PatternStage) isStage() {}

// FilterOp is the comparison a FilterStage applies
type FilterOp string

const (
	FilterEq         FilterOp = "eq"
	FilterNeq        FilterOp = "neq"
	FilterLt         FilterOp = "lt"
	FilterLte        FilterOp = "lte"
	FilterGt         FilterOp = "gt"
	FilterGte        FilterOp = "gte"
	FilterStartsWith FilterOp = "startsWith"
)

// FilterStage constrains the value bound to Variable. Ordering comparisons
// only hold between terms of the same family (see Range).
type FilterStage struct {
	Op       FilterOp
	Variable string
	Value    rdf.Term
}

func (*FilterStage) isStage() {}

// SearchOpts tunes a search
type SearchOpts struct {
	// Project restricts binding rows to these variables
	Project []string
	// Distinct drops repeated rows after projection
	Distinct bool
	// Limit caps the number of rows, 0 means no limit
	Limit int
	// DefaultGraphMode overrides the store-wide mode when set
	DefaultGraphMode DefaultGraphMode
}

// ResultType tells whether a search yields quads or bindings
type ResultType int

const (
	ResultQuads ResultType = iota
	ResultBindings
)

func (t ResultType) String() string {
	if t == ResultBindings {
		return "bindings"
	}
	return "quads"
}

// SearchResult holds the collected rows of a search
type SearchResult struct {
	Type      ResultType
	Variables []string
	Bindings  []Binding
	Quads     []*rdf.Quad
}

type compiledFilter struct {
	op       FilterOp
	variable string
	value    rdf.Term
	rng      *index.CompiledRange
}

func (f *compiledFilter) match(enc *encoding.TermEncoder, b Binding) (bool, error) {
	t, ok := b[f.variable]
	if !ok {
		return false, nil
	}
	switch f.op {
	case FilterEq:
		return f.value.Equals(t), nil
	case FilterNeq:
		return !f.value.Equals(t), nil
	case FilterStartsWith:
		return t.Type() == f.value.Type() && strings.HasPrefix(lexical(t), lexical(f.value)), nil
	default:
		return f.rng.Contains(enc, t)
	}
}

// lexical is the string a startsWith filter looks at
func lexical(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return v.IRI
	case *rdf.Literal:
		return v.Value
	case *rdf.BlankNode:
		return v.ID
	}
	return ""
}

type compiledStage struct {
	roles   [4]roleSpec
	filters []*compiledFilter
}

// pattern substitutes bound variables and returns the constraints to scan with
func (cs *compiledStage) pattern(b Binding, mode DefaultGraphMode) index.Pattern {
	var p index.Pattern
	for _, r := range rdf.Roles {
		spec := cs.roles[r]
		if spec.variable != "" {
			if t, ok := b[spec.variable]; ok {
				p[r] = index.Constraint{Kind: index.Exact, Term: t}
				continue
			}
		}
		p[r] = index.Constraint{Kind: spec.kind, Term: spec.term, Range: spec.rng}
	}
	if cs.roles[rdf.Graph].variable == "" {
		applyDefaultGraphMode(&p, mode)
	}
	return p
}

// unify extends b with the variables of the stage. ok is false when the
// quad conflicts with a value already bound.
func (cs *compiledStage) unify(b Binding, q *rdf.Quad) (Binding, bool) {
	out := b
	copied := false
	for _, r := range rdf.Roles {
		v := cs.roles[r].variable
		if v == "" {
			continue
		}
		t := q.Get(r)
		if existing, ok := out[v]; ok {
			if !existing.Equals(t) {
				return nil, false
			}
			continue
		}
		if !copied {
			out = b.Clone()
			copied = true
		}
		out[v] = t
	}
	return out, true
}

type searchPlan struct {
	stages     []*compiledStage
	variables  []string
	project    []string
	resultType ResultType
}

// compileSearch validates the stages, attaches each filter to the first
// pattern stage binding its variable and folds eq and ordering filters into
// that stage's scan constraints.
func (s *Store) compileSearch(stages []Stage, opts *SearchOpts) (*searchPlan, error) {
	if len(stages) == 0 {
		return nil, argumentErrorf("stages", "empty stage list")
	}
	if opts.Limit < 0 {
		return nil, argumentErrorf("opts.limit", "negative limit %d", opts.Limit)
	}
	if opts.DefaultGraphMode != "" {
		if _, err := ParseDefaultGraphMode(string(opts.DefaultGraphMode)); err != nil {
			return nil, err
		}
	}

	sp := &searchPlan{}
	firstBinder := map[string]*compiledStage{}
	var filters []*FilterStage

	for i, st := range stages {
		arg := fmt.Sprintf("stages[%d]", i)
		switch st := st.(type) {
		case *PatternStage:
			if st == nil {
				return nil, argumentErrorf(arg, "nil stage")
			}
			cs := &compiledStage{}
			vals := [4]any{st.Subject, st.Predicate, st.Object, st.Graph}
			for _, r := range rdf.Roles {
				spec, err := compileRole(arg+"."+r.String(), vals[r], true)
				if err != nil {
					return nil, err
				}
				if spec.kind == index.InRange {
					if _, err := index.CompileRange(s.encoder, spec.rng); err != nil {
						return nil, selectionError(err)
					}
				}
				if spec.variable != "" {
					if _, ok := firstBinder[spec.variable]; !ok {
						firstBinder[spec.variable] = cs
						sp.variables = append(sp.variables, spec.variable)
					}
				}
				cs.roles[r] = spec
			}
			sp.stages = append(sp.stages, cs)
		case *FilterStage:
			if st == nil {
				return nil, argumentErrorf(arg, "nil stage")
			}
			if st.Variable == "" {
				return nil, argumentErrorf(arg, "filter has no variable")
			}
			if st.Value == nil || isNilTerm(st.Value) || st.Value.Type() == rdf.TermTypeVariable {
				return nil, argumentErrorf(arg, "filter value must be a concrete term")
			}
			filters = append(filters, st)
		case nil:
			return nil, argumentErrorf(arg, "nil stage")
		default:
			return nil, argumentErrorf(arg, "unsupported stage type %T", st)
		}
	}
	if len(sp.stages) == 0 {
		return nil, argumentErrorf("stages", "no pattern stage")
	}

	for i, f := range filters {
		cs, ok := firstBinder[f.Variable]
		if !ok {
			return nil, argumentErrorf(fmt.Sprintf("filters[%d]", i), "variable ?%s is not bound by any pattern", f.Variable)
		}
		cf, err := s.compileFilter(f)
		if err != nil {
			return nil, err
		}
		cs.filters = append(cs.filters, cf)
	}
	for _, cs := range sp.stages {
		if err := s.foldFilters(cs); err != nil {
			return nil, err
		}
	}

	if len(sp.variables) > 0 {
		sp.resultType = ResultBindings
	}
	if len(opts.Project) > 0 {
		if sp.resultType != ResultBindings {
			return nil, argumentErrorf("opts.project", "stages declare no variables")
		}
		known := map[string]bool{}
		for _, v := range sp.variables {
			known[v] = true
		}
		for _, v := range opts.Project {
			if !known[v] {
				return nil, argumentErrorf("opts.project", "unknown variable ?%s", v)
			}
		}
		sp.project = append([]string(nil), opts.Project...)
	} else {
		sp.project = sp.variables
	}
	return sp, nil
}

func (s *Store) compileFilter(f *FilterStage) (*compiledFilter, error) {
	cf := &compiledFilter{op: f.Op, variable: f.Variable, value: f.Value}
	var rng index.Range
	switch f.Op {
	case FilterEq, FilterNeq, FilterStartsWith:
		if _, err := s.encoder.EncodeTerm(f.Value); err != nil {
			return nil, err
		}
		return cf, nil
	case FilterLt:
		rng = index.Range{Upper: f.Value, UpperExclusive: true}
	case FilterLte:
		rng = index.Range{Upper: f.Value}
	case FilterGt:
		rng = index.Range{Lower: f.Value, LowerExclusive: true}
	case FilterGte:
		rng = index.Range{Lower: f.Value}
	default:
		return nil, argumentErrorf("filter.op", "unknown operator %q", f.Op)
	}
	cr, err := index.CompileRange(s.encoder, rng)
	if err != nil {
		return nil, err
	}
	cf.rng = cr
	return cf, nil
}

// foldFilters narrows the scan of a stage with the filters attached to it.
// Variables bound by an eq filter become exact constraints; ordering filters
// are merged into one range, keeping the tighter bound on each side. Filters
// whose bounds cannot be compared are left to row evaluation only.
func (s *Store) foldFilters(cs *compiledStage) error {
	type folded struct {
		exact      rdf.Term
		rng        index.Range
		hasRange   bool
		unfoldable bool
	}
	byVar := map[string]*folded{}
	for _, f := range cs.filters {
		fv := byVar[f.variable]
		if fv == nil {
			fv = &folded{}
			byVar[f.variable] = fv
		}
		switch f.op {
		case FilterEq:
			if fv.exact == nil {
				fv.exact = f.value
			}
		case FilterLt, FilterLte, FilterGt, FilterGte:
			merged, ok, err := s.mergeBound(fv.rng, f)
			if err != nil {
				return err
			}
			if !ok {
				fv.unfoldable = true
				continue
			}
			fv.rng, fv.hasRange = merged, true
		}
	}

	for _, r := range rdf.Roles {
		spec := &cs.roles[r]
		fv := byVar[spec.variable]
		if spec.variable == "" || fv == nil {
			continue
		}
		switch {
		case fv.exact != nil:
			spec.kind, spec.term = index.Exact, fv.exact
		case fv.hasRange && !fv.unfoldable:
			spec.kind, spec.rng = index.InRange, fv.rng
		}
	}
	return nil
}

// mergeBound adds the bound of an ordering filter to rng. ok is false when
// the new bound belongs to a different family than the existing ones.
func (s *Store) mergeBound(rng index.Range, f *compiledFilter) (index.Range, bool, error) {
	for _, other := range []rdf.Term{rng.Lower, rng.Upper} {
		if other == nil {
			continue
		}
		if _, ok, err := s.compareTerms(f.value, other); err != nil || !ok {
			return rng, false, err
		}
	}

	lower := f.op == FilterGt || f.op == FilterGte
	exclusive := f.op == FilterGt || f.op == FilterLt
	current, currentExcl := rng.Upper, rng.UpperExclusive
	if lower {
		current, currentExcl = rng.Lower, rng.LowerExclusive
	}
	if current != nil {
		cmp, _, err := s.compareTerms(f.value, current)
		if err != nil {
			return rng, false, err
		}
		tighter := cmp < 0
		if lower {
			tighter = cmp > 0
		}
		if !tighter && !(cmp == 0 && exclusive && !currentExcl) {
			return rng, true, nil
		}
	}
	if lower {
		rng.Lower, rng.LowerExclusive = f.value, exclusive
	} else {
		rng.Upper, rng.UpperExclusive = f.value, exclusive
	}
	return rng, true, nil
}

func (s *Store) compareTerms(a, b rdf.Term) (int, bool, error) {
	sa, err := s.encoder.EncodeTerm(a)
	if err != nil {
		return 0, false, err
	}
	sb, err := s.encoder.EncodeTerm(b)
	if err != nil {
		return 0, false, err
	}
	cmp, ok := encoding.CompareRange(sa, sb)
	return cmp, ok, nil
}

type frame struct {
	it      *QuadIterator
	binding Binding
}

// SearchIterator streams the rows of a search as a nested-loop join. It
// keeps one open scan per stage entered and closes all of them when
// exhausted, failed or closed.
type SearchIterator struct {
	store *Store
	ctx   context.Context
	plan  *searchPlan
	mode  DefaultGraphMode

	frames   []frame
	distinct map[xxh3.Uint128]struct{}
	limit    int
	emitted  int

	binding Binding
	quad    *rdf.Quad
	started bool
	done    bool
	err     error
}

// Type returns whether rows are quads or bindings
func (it *SearchIterator) Type() ResultType {
	return it.plan.resultType
}

// Variables returns the variables of each binding row
func (it *SearchIterator) Variables() []string {
	return append([]string(nil), it.plan.project...)
}

func (it *SearchIterator) open(stage int, b Binding) error {
	cs := it.plan.stages[stage]
	plan, err := it.store.selectPlan(cs.pattern(b, it.mode), nil)
	if err != nil {
		return err
	}
	qi, err := it.store.scan(it.ctx, plan, &GetOpts{})
	if err != nil {
		return err
	}
	it.frames = append(it.frames, frame{it: qi, binding: b})
	return nil
}

// Next advances to the next row
func (it *SearchIterator) Next() bool {
	if it.done {
		return false
	}
	if it.limit > 0 && it.emitted >= it.limit {
		it.Close()
		return false
	}
	if !it.started {
		it.started = true
		if err := it.open(0, Binding{}); err != nil {
			it.fail(err)
			return false
		}
	}

	last := len(it.plan.stages) - 1
	for len(it.frames) > 0 {
		depth := len(it.frames) - 1
		top := it.frames[depth]
		if !top.it.Next() {
			if err := top.it.Err(); err != nil {
				it.fail(err)
				return false
			}
			it.frames = it.frames[:depth]
			continue
		}

		quad := top.it.Quad()
		cs := it.plan.stages[depth]
		b, ok := cs.unify(top.binding, quad)
		if !ok {
			continue
		}
		ok, err := it.store.matchFilters(cs, b)
		if err != nil {
			it.fail(err)
			return false
		}
		if !ok {
			continue
		}

		if depth < last {
			if err := it.open(depth+1, b); err != nil {
				it.fail(err)
				return false
			}
			continue
		}
		if it.emit(b, quad) {
			return true
		}
	}
	it.Close()
	return false
}

func (s *Store) matchFilters(cs *compiledStage, b Binding) (bool, error) {
	for _, f := range cs.filters {
		ok, err := f.match(s.encoder, b)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// emit sets the current row; false means it was a duplicate
func (it *SearchIterator) emit(b Binding, quad *rdf.Quad) bool {
	var row Binding
	if it.plan.resultType == ResultBindings {
		row = b.project(it.plan.project)
	}
	if it.distinct != nil {
		key := it.fingerprint(row, quad)
		if _, seen := it.distinct[key]; seen {
			return false
		}
		it.distinct[key] = struct{}{}
	}
	it.binding, it.quad = row, quad
	it.emitted++
	return true
}

func (it *SearchIterator) fingerprint(row Binding, quad *rdf.Quad) xxh3.Uint128 {
	var buf []byte
	if it.plan.resultType == ResultBindings {
		for _, v := range it.plan.project {
			if t, ok := row[v]; ok {
				buf = append(buf, t.String()...)
			}
			buf = append(buf, 0)
		}
	} else {
		for _, r := range rdf.Roles {
			buf = append(buf, quad.Get(r).String()...)
			buf = append(buf, 0)
		}
	}
	return xxh3.Hash128(buf)
}

// Binding returns the current row for binding results
func (it *SearchIterator) Binding() Binding {
	return it.binding
}

// Quad returns the quad matched by the last stage for the current row
func (it *SearchIterator) Quad() *rdf.Quad {
	return it.quad
}

func (it *SearchIterator) Err() error {
	return it.err
}

func (it *SearchIterator) fail(err error) {
	it.err = err
	it.Close()
}

// Close closes every open scan. It is safe to call more than once.
func (it *SearchIterator) Close() error {
	if it.done {
		return nil
	}
	it.done = true
	var first error
	for i := len(it.frames) - 1; i >= 0; i-- {
		if err := it.frames[i].it.Close(); err != nil && first == nil {
			first = err
		}
	}
	it.frames = nil
	it.binding, it.quad = nil, nil
	return first
}

// AllBindings yields the remaining binding rows and closes the iterator
func (it *SearchIterator) AllBindings() iter.Seq2[Binding, error] {
	return func(yield func(Binding, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.binding, nil) {
				return
			}
		}
		if it.err != nil {
			yield(nil, it.err)
		}
	}
}

// AllQuads yields the quad of each remaining row and closes the iterator
func (it *SearchIterator) AllQuads() iter.Seq2[*rdf.Quad, error] {
	return func(yield func(*rdf.Quad, error) bool) {
		defer it.Close()
		for it.Next() {
			if !yield(it.quad, nil) {
				return
			}
		}
		if it.err != nil {
			yield(nil, it.err)
		}
	}
}

// SearchStream starts a streaming search over stages
func (s *Store) SearchStream(ctx context.Context, stages []Stage, opts *SearchOpts) (*SearchIterator, error) {
	if opts == nil {
		opts = &SearchOpts{}
	}
	sp, err := s.compileSearch(stages, opts)
	if err != nil {
		return nil, err
	}
	mode := s.mode
	if opts.DefaultGraphMode != "" {
		mode = opts.DefaultGraphMode
	}
	it := &SearchIterator{
		store: s,
		ctx:   ctx,
		plan:  sp,
		mode:  mode,
		limit: opts.Limit,
	}
	if opts.Distinct {
		it.distinct = make(map[xxh3.Uint128]struct{})
	}
	s.logger.Debug("search", "stages", len(sp.stages), "variables", sp.variables, "result", sp.resultType.String())
	return it, nil
}

// Search collects every row of a search
func (s *Store) Search(ctx context.Context, stages []Stage, opts *SearchOpts) (*SearchResult, error) {
	it, err := s.SearchStream(ctx, stages, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	res := &SearchResult{Type: it.Type(), Variables: it.Variables()}
	for it.Next() {
		if res.Type == ResultBindings {
			res.Bindings = append(res.Bindings, it.Binding())
		} else {
			res.Quads = append(res.Quads, it.Quad())
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
