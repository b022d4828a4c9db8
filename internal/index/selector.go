package index

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// ErrInvalidRange is returned for ranges without bounds or with bounds from
// different term families.
var ErrInvalidRange = errors.New("invalid range")

// ConstraintKind says how a pattern constrains one role
type ConstraintKind int

const (
	Unbound ConstraintKind = iota
	Exact
	InRange
)

// Range constrains a role to lie between two terms of the same family.
// A nil bound is open.
type Range struct {
	Lower          rdf.Term
	LowerExclusive bool
	Upper          rdf.Term
	UpperExclusive bool
}

// Constraint is the per-role part of a pattern
type Constraint struct {
	Kind  ConstraintKind
	Term  rdf.Term
	Range Range
}

// Pattern holds one constraint per role, indexed by rdf.Role
type Pattern [4]Constraint

// Plan is the outcome of index selection: which index to scan, the key
// bounds (lower inclusive, upper exclusive) and the constraints that the
// bounds do not enforce.
type Plan struct {
	Index       *Definition
	Lower       []byte
	Upper       []byte
	Covered     int
	RangeFolded bool
	Filters     []Filter
}

// Match applies the residual filters to a decoded quad
func (p *Plan) Match(enc *encoding.TermEncoder, q *rdf.Quad) (bool, error) {
	for i := range p.Filters {
		ok, err := p.Filters[i].Match(enc, q.Get(p.Filters[i].Role))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Sorting returns the role order the scan results follow
func (p *Plan) Sorting() []rdf.Role {
	return p.Index.Roles()
}

// Filter is a constraint checked after decoding
type Filter struct {
	Role  rdf.Role
	Kind  ConstraintKind
	Term  rdf.Term
	Range *CompiledRange
}

// Match reports whether term satisfies the filter
func (f *Filter) Match(enc *encoding.TermEncoder, term rdf.Term) (bool, error) {
	if f.Kind == Exact {
		return f.Term.Equals(term), nil
	}
	return f.Range.Contains(enc, term)
}

// CompiledRange is a Range with its bounds serialized
type CompiledRange struct {
	lower, upper       *encoding.SerializedTerm
	lowerExcl, upperEx bool
	family             []byte
}

// CompileRange serializes the bounds of r and checks they share a family
func CompileRange(enc *encoding.TermEncoder, r Range) (*CompiledRange, error) {
	if r.Lower == nil && r.Upper == nil {
		return nil, fmt.Errorf("%w: no bounds", ErrInvalidRange)
	}
	cr := &CompiledRange{lowerExcl: r.LowerExclusive, upperEx: r.UpperExclusive}
	if r.Lower != nil {
		st, err := enc.EncodeTerm(r.Lower)
		if err != nil {
			return nil, err
		}
		cr.lower = &st
		cr.family = st.FamilyPrefix()
	}
	if r.Upper != nil {
		st, err := enc.EncodeTerm(r.Upper)
		if err != nil {
			return nil, err
		}
		cr.upper = &st
		if cr.family != nil && !bytes.Equal(cr.family, st.FamilyPrefix()) {
			return nil, fmt.Errorf("%w: bounds %s and %s are not comparable", ErrInvalidRange, r.Lower, r.Upper)
		}
		cr.family = st.FamilyPrefix()
	}
	return cr, nil
}

// Contains reports whether term falls inside the range. Terms of another
// family never match.
func (cr *CompiledRange) Contains(enc *encoding.TermEncoder, term rdf.Term) (bool, error) {
	st, err := enc.EncodeTerm(term)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(st.FamilyPrefix(), cr.family) {
		return false, nil
	}
	frag := st.RangeFragment()
	if cr.lower != nil {
		c := bytes.Compare(frag, cr.lower.RangeFragment())
		if c < 0 || (c == 0 && cr.lowerExcl) {
			return false, nil
		}
	}
	if cr.upper != nil {
		c := bytes.Compare(frag, cr.upper.RangeFragment())
		if c > 0 || (c == 0 && cr.upperEx) {
			return false, nil
		}
	}
	return true, nil
}

// appendLower appends the inclusive lower scan bound of the range to prefix
func (cr *CompiledRange) appendLower(prefix []byte) []byte {
	if cr.lower == nil {
		return append(prefix, cr.family...)
	}
	prefix = append(prefix, cr.lower.RangeFragment()...)
	if cr.lowerExcl {
		prefix = append(prefix, encoding.Boundary)
	}
	return prefix
}

// appendUpper appends the exclusive upper scan bound of the range to prefix
func (cr *CompiledRange) appendUpper(prefix []byte) []byte {
	if cr.upper == nil {
		prefix = append(prefix, cr.family...)
		return append(prefix, encoding.Boundary)
	}
	prefix = append(prefix, cr.upper.RangeFragment()...)
	if !cr.upperEx {
		prefix = append(prefix, encoding.Boundary)
	}
	return prefix
}

// Selector picks indexes for patterns
type Selector struct {
	set *Set
	enc *encoding.TermEncoder
}

// NewSelector creates a selector over a fixed index set
func NewSelector(set *Set, enc *encoding.TermEncoder) *Selector {
	return &Selector{set: set, enc: enc}
}

type candidate struct {
	def      *Definition
	covered  int
	folded   bool
	coverage int
}

func (s *Selector) score(def *Definition, p *Pattern) candidate {
	c := candidate{def: def}
	for c.covered < len(def.roles) && p[def.roles[c.covered]].Kind == Exact {
		c.covered++
	}
	c.coverage = c.covered
	if c.covered < len(def.roles) && p[def.roles[c.covered]].Kind == InRange {
		c.folded = true
		c.coverage++
	}
	return c
}

// Select returns the plan for the index whose key prefix covers the most
// constrained roles. Ties go to declaration order, or, when order is given,
// to the first tied index whose remaining roles follow that order.
func (s *Selector) Select(p Pattern, order []rdf.Role) (*Plan, error) {
	ranges := make(map[rdf.Role]*CompiledRange)
	for _, r := range rdf.Roles {
		if p[r].Kind == InRange {
			cr, err := CompileRange(s.enc, p[r].Range)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", r, err)
			}
			ranges[r] = cr
		}
	}

	var best candidate
	bestOrdered := false
	for i, def := range s.set.defs {
		c := s.score(def, &p)
		ordered := followsOrder(def, c.covered, &p, order)
		switch {
		case i == 0,
			c.coverage > best.coverage,
			c.coverage == best.coverage && ordered && !bestOrdered:
			best, bestOrdered = c, ordered
		}
	}

	plan := &Plan{
		Index:       best.def,
		Covered:     best.covered,
		RangeFolded: best.folded,
	}

	prefix := append([]byte(nil), best.def.prefix...)
	for i := 0; i < best.covered; i++ {
		st, err := s.enc.EncodeTerm(p[best.def.roles[i]].Term)
		if err != nil {
			return nil, err
		}
		prefix = encoding.AppendTerm(prefix, st)
	}

	next := best.covered
	if best.folded {
		cr := ranges[best.def.roles[next]]
		plan.Lower = cr.appendLower(append([]byte(nil), prefix...))
		plan.Upper = cr.appendUpper(append([]byte(nil), prefix...))
		next++
	} else {
		plan.Lower = prefix
		plan.Upper = append(append([]byte(nil), prefix...), encoding.Boundary)
	}

	for _, r := range best.def.roles[next:] {
		switch p[r].Kind {
		case Exact:
			plan.Filters = append(plan.Filters, Filter{Role: r, Kind: Exact, Term: p[r].Term})
		case InRange:
			plan.Filters = append(plan.Filters, Filter{Role: r, Kind: InRange, Range: ranges[r]})
		}
	}
	return plan, nil
}

// followsOrder reports whether the roles of def after its covered prefix
// start with the requested order, ignoring roles pinned to exact values.
func followsOrder(def *Definition, covered int, p *Pattern, order []rdf.Role) bool {
	if len(order) == 0 {
		return false
	}
	rest := def.roles[covered:]
	i := 0
	for _, r := range order {
		if p[r].Kind == Exact {
			continue
		}
		if i >= len(rest) || rest[i] != r {
			return false
		}
		i++
	}
	return true
}
