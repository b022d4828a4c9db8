package store

import (
	"errors"
	"fmt"

	"github.com/aleksaelezovic/quadkv/internal/index"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// Pattern represents a quad pattern. Each role holds nil (unbound), an
// rdf.Term to match exactly, or a *Range. Search stages may also use
// *rdf.Variable.
type Pattern struct {
	Subject   any
	Predicate any
	Object    any
	Graph     any
}

// NewPattern builds a pattern from role values, in SPOG order
func NewPattern(subject, predicate, object, graph any) *Pattern {
	return &Pattern{Subject: subject, Predicate: predicate, Object: object, Graph: graph}
}

// Get returns the value of one role
func (p *Pattern) Get(r rdf.Role) any {
	switch r {
	case rdf.Subject:
		return p.Subject
	case rdf.Predicate:
		return p.Predicate
	case rdf.Object:
		return p.Object
	case rdf.Graph:
		return p.Graph
	}
	return nil
}

// Set assigns the value of one role
func (p *Pattern) Set(r rdf.Role, v any) {
	switch r {
	case rdf.Subject:
		p.Subject = v
	case rdf.Predicate:
		p.Predicate = v
	case rdf.Object:
		p.Object = v
	case rdf.Graph:
		p.Graph = v
	}
}

// Range matches terms that compare between its bounds. Bounds must belong to
// the same family: numbers (of any numeric datatype), dateTimes, plain
// strings, strings of one language, literals of one other datatype, IRIs or
// blank nodes. Setting both GT and GTE, or both LT and LTE, is an error.
//
// Numbers compare as float64, so integers beyond 2^53 that round to the same
// value are range-equal. IRIs compare in their stored form: with a prefix
// table, "ex:z" is ordered by that text and not by the expanded IRI.
type Range struct {
	GT  rdf.Term
	GTE rdf.Term
	LT  rdf.Term
	LTE rdf.Term
}

func (r *Range) String() string {
	s := "["
	switch {
	case r.GT != nil:
		s += "> " + r.GT.String()
	case r.GTE != nil:
		s += ">= " + r.GTE.String()
	}
	if (r.GT != nil || r.GTE != nil) && (r.LT != nil || r.LTE != nil) {
		s += ", "
	}
	switch {
	case r.LT != nil:
		s += "< " + r.LT.String()
	case r.LTE != nil:
		s += "<= " + r.LTE.String()
	}
	return s + "]"
}

func (r *Range) compile(arg string) (index.Range, error) {
	var out index.Range
	if r.GT != nil && r.GTE != nil {
		return out, argumentErrorf(arg, "range sets both gt and gte")
	}
	if r.LT != nil && r.LTE != nil {
		return out, argumentErrorf(arg, "range sets both lt and lte")
	}
	for _, b := range []rdf.Term{r.GT, r.GTE, r.LT, r.LTE} {
		if b != nil && b.Type() == rdf.TermTypeVariable {
			return out, argumentErrorf(arg, "range bound %s is a variable", b)
		}
	}
	switch {
	case r.GT != nil:
		out.Lower, out.LowerExclusive = r.GT, true
	case r.GTE != nil:
		out.Lower = r.GTE
	}
	switch {
	case r.LT != nil:
		out.Upper, out.UpperExclusive = r.LT, true
	case r.LTE != nil:
		out.Upper = r.LTE
	}
	if out.Lower == nil && out.Upper == nil {
		return out, argumentErrorf(arg, "range has no bounds")
	}
	return out, nil
}

// roleSpec is the compiled constraint on one role of a pattern or stage
type roleSpec struct {
	kind     index.ConstraintKind
	term     rdf.Term
	rng      index.Range
	variable string
}

// compileRole validates one role value. Variables are only accepted when
// allowVariables is set.
func compileRole(arg string, v any, allowVariables bool) (roleSpec, error) {
	switch t := v.(type) {
	case nil:
		return roleSpec{}, nil
	case *rdf.Variable:
		if !allowVariables {
			return roleSpec{}, argumentErrorf(arg, "variables are not allowed here")
		}
		if t == nil || t.Name == "" {
			return roleSpec{}, argumentErrorf(arg, "variable has no name")
		}
		return roleSpec{variable: t.Name}, nil
	case *Range:
		if t == nil {
			return roleSpec{}, nil
		}
		rng, err := t.compile(arg)
		if err != nil {
			return roleSpec{}, err
		}
		return roleSpec{kind: index.InRange, rng: rng}, nil
	case Range:
		return compileRole(arg, &t, allowVariables)
	case rdf.Term:
		if isNilTerm(t) {
			return roleSpec{}, argumentErrorf(arg, "nil %T", t)
		}
		return roleSpec{kind: index.Exact, term: t}, nil
	default:
		return roleSpec{}, argumentErrorf(arg, "unsupported value of type %T", v)
	}
}

func isNilTerm(t rdf.Term) bool {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return v == nil
	case *rdf.BlankNode:
		return v == nil
	case *rdf.Literal:
		return v == nil
	case *rdf.DefaultGraph:
		return v == nil
	}
	return false
}

// compilePattern validates a Get pattern into index constraints
func compilePattern(p *Pattern, mode DefaultGraphMode) (index.Pattern, error) {
	var out index.Pattern
	if p == nil {
		p = &Pattern{}
	}
	for _, r := range rdf.Roles {
		spec, err := compileRole("pattern."+r.String(), p.Get(r), false)
		if err != nil {
			return out, err
		}
		out[r] = index.Constraint{Kind: spec.kind, Term: spec.term, Range: spec.rng}
	}
	applyDefaultGraphMode(&out, mode)
	return out, nil
}

func applyDefaultGraphMode(p *index.Pattern, mode DefaultGraphMode) {
	if mode == DefaultGraphOnly && p[rdf.Graph].Kind == index.Unbound {
		p[rdf.Graph] = index.Constraint{Kind: index.Exact, Term: rdf.NewDefaultGraph()}
	}
}

// selectionError converts selector failures caused by the caller's input
func selectionError(err error) error {
	if errors.Is(err, index.ErrInvalidRange) {
		return &ArgumentError{Argument: "pattern", Reason: err.Error(), cause: err}
	}
	return fmt.Errorf("index selection: %w", err)
}
