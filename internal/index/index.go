// Package index defines the fixed set of quad permutations a store keeps and
// chooses, for a pattern, the permutation that needs the narrowest key scan.
package index

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// DefaultOrders are the six permutations kept by default. Every subset of
// bound roles is a leading prefix of at least one of them.
var DefaultOrders = [][]rdf.Role{
	{rdf.Subject, rdf.Predicate, rdf.Object, rdf.Graph},
	{rdf.Object, rdf.Graph, rdf.Subject, rdf.Predicate},
	{rdf.Graph, rdf.Subject, rdf.Predicate, rdf.Object},
	{rdf.Object, rdf.Subject, rdf.Predicate, rdf.Graph},
	{rdf.Predicate, rdf.Object, rdf.Graph, rdf.Subject},
	{rdf.Graph, rdf.Predicate, rdf.Object, rdf.Subject},
}

// Definition is one stored permutation of the quad roles
type Definition struct {
	name   string
	roles  [4]rdf.Role
	prefix []byte
	keyFor func(dst []byte, sq *encoding.SerializedQuad) []byte
}

func newDefinition(order []rdf.Role) (*Definition, error) {
	if len(order) != len(rdf.Roles) {
		return nil, fmt.Errorf("index order must list 4 roles, got %d", len(order))
	}
	var seen [4]bool
	var roles [4]rdf.Role
	var name strings.Builder
	for i, r := range order {
		if r < rdf.Subject || r > rdf.Graph {
			return nil, fmt.Errorf("invalid role %d in index order", int(r))
		}
		if seen[r] {
			return nil, fmt.Errorf("role %s repeated in index order", r)
		}
		seen[r] = true
		roles[i] = r
		name.WriteByte(r.Initial())
	}

	d := &Definition{
		name:  name.String(),
		roles: roles,
	}
	d.prefix = append([]byte(d.name), encoding.Separator)

	// The key builder closes over the fixed order chosen at construction.
	prefix, keyOrder := d.prefix, roles[:]
	d.keyFor = func(dst []byte, sq *encoding.SerializedQuad) []byte {
		return sq.AppendKey(dst, prefix, keyOrder)
	}
	return d, nil
}

// Name returns the role initials, e.g. "SPOG"
func (d *Definition) Name() string {
	return d.name
}

// Roles returns the role order of the index
func (d *Definition) Roles() []rdf.Role {
	out := make([]rdf.Role, len(d.roles))
	copy(out, d.roles[:])
	return out
}

// Prefix returns the key prefix shared by every entry of the index
func (d *Definition) Prefix() []byte {
	return d.prefix
}

// KeyFor builds the key of a serialized quad in this index
func (d *Definition) KeyFor(sq *encoding.SerializedQuad) []byte {
	return d.keyFor(nil, sq)
}

// Decode reads a quad back from one of this index's keys
func (d *Definition) Decode(dec *encoding.TermDecoder, key []byte) (*rdf.Quad, error) {
	return dec.DecodeQuadKey(key, len(d.prefix), d.roles[:])
}

func (d *Definition) String() string {
	return d.name
}

// Set is the immutable list of indexes of a store, in declaration order
type Set struct {
	defs []*Definition
}

// NewSet builds a set from role orders; nil or empty uses DefaultOrders
func NewSet(orders [][]rdf.Role) (*Set, error) {
	if len(orders) == 0 {
		orders = DefaultOrders
	}
	s := &Set{defs: make([]*Definition, 0, len(orders))}
	names := make(map[string]bool, len(orders))
	for _, order := range orders {
		d, err := newDefinition(order)
		if err != nil {
			return nil, err
		}
		if names[d.name] {
			return nil, fmt.Errorf("duplicate index %s", d.name)
		}
		names[d.name] = true
		s.defs = append(s.defs, d)
	}
	return s, nil
}

// ParseOrder parses an index name such as "GSPO" into its role order
func ParseOrder(name string) ([]rdf.Role, error) {
	if len(name) != len(rdf.Roles) {
		return nil, fmt.Errorf("index name %q must have 4 role initials", name)
	}
	order := make([]rdf.Role, 0, len(name))
	for _, c := range name {
		r, err := rdf.ParseRole(string(c))
		if err != nil {
			return nil, fmt.Errorf("index name %q: %w", name, err)
		}
		order = append(order, r)
	}
	return order, nil
}

// Definitions returns the indexes in declaration order
func (s *Set) Definitions() []*Definition {
	out := make([]*Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Len returns the number of indexes
func (s *Set) Len() int {
	return len(s.defs)
}

// Primary returns the first declared index
func (s *Set) Primary() *Definition {
	return s.defs[0]
}

// Get returns the index with the given name, or nil
func (s *Set) Get(name string) *Definition {
	for _, d := range s.defs {
		if d.name == name {
			return d
		}
	}
	return nil
}

// Names returns the index names in declaration order
func (s *Set) Names() []string {
	names := make([]string, len(s.defs))
	for i, d := range s.defs {
		names[i] = d.name
	}
	return names
}
