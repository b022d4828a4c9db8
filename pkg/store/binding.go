package store

import (
	"sort"
	"strings"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// Binding maps variable names (without the leading '?') to terms
type Binding map[string]rdf.Term

// Clone creates a copy of the binding
func (b Binding) Clone() Binding {
	out := make(Binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// project keeps only the given variables, in any order
func (b Binding) project(vars []string) Binding {
	out := make(Binding, len(vars))
	for _, v := range vars {
		if t, ok := b[v]; ok {
			out[v] = t
		}
	}
	return out
}

func (b Binding) String() string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = "?" + k + "=" + b[k].String()
	}
	return "{" + strings.Join(parts, " ") + "}"
}
