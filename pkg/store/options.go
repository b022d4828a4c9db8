package store

import (
	"log/slog"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// DefaultGraphMode controls what an unbound graph matches
type DefaultGraphMode string

const (
	// DefaultGraphUnion matches quads of every graph
	DefaultGraphUnion DefaultGraphMode = "union"
	// DefaultGraphOnly restricts an unbound graph to the default graph
	DefaultGraphOnly DefaultGraphMode = "default"
)

// ParseDefaultGraphMode accepts "union" and "default"; empty means union
func ParseDefaultGraphMode(s string) (DefaultGraphMode, error) {
	switch DefaultGraphMode(s) {
	case "", DefaultGraphUnion:
		return DefaultGraphUnion, nil
	case DefaultGraphOnly:
		return DefaultGraphOnly, nil
	}
	return "", argumentErrorf("defaultGraphMode", "unknown mode %q", s)
}

type options struct {
	logger           *slog.Logger
	indexes          [][]rdf.Role
	prefixes         encoding.Prefixes
	defaultGraphMode DefaultGraphMode
}

// Option configures a Store
type Option func(*options)

// WithLogger sets the logger; by default nothing is logged
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIndexes replaces the default six index orders. The set is fixed for
// the lifetime of the store and must match the one the data was written with.
func WithIndexes(orders ...[]rdf.Role) Option {
	return func(o *options) {
		o.indexes = orders
	}
}

// WithPrefixes compacts IRIs in keys through the given table. Like the
// index set it must not change once data has been written.
func WithPrefixes(p encoding.Prefixes) Option {
	return func(o *options) {
		o.prefixes = p
	}
}

// WithPrefixMap is WithPrefixes for a plain prefix name to namespace map
func WithPrefixMap(m map[string]string) Option {
	return func(o *options) {
		table, err := encoding.NewPrefixTable(m)
		if err != nil {
			o.prefixes = invalidPrefixes{err}
			return
		}
		o.prefixes = table
	}
}

// WithDefaultGraphMode sets the store-wide default graph mode
func WithDefaultGraphMode(m DefaultGraphMode) Option {
	return func(o *options) {
		o.defaultGraphMode = m
	}
}

// invalidPrefixes carries a prefix table error through to New
type invalidPrefixes struct{ err error }

func (invalidPrefixes) CompactIRI(iri string) string { return iri }
func (invalidPrefixes) ExpandTerm(s string) string   { return s }
