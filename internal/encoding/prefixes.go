package encoding

import (
	"fmt"
	"sort"
	"strings"
)

// Prefixes compacts IRIs before they are written into keys and expands them
// when keys are read back. Implementations must be pure and reversible.
type Prefixes interface {
	CompactIRI(iri string) string
	ExpandTerm(term string) string
}

// NoPrefixes leaves IRIs untouched.
type NoPrefixes struct{}

func (NoPrefixes) CompactIRI(iri string) string   { return iri }
func (NoPrefixes) ExpandTerm(term string) string { return term }

// PrefixTable maps short names to namespace IRIs, rewriting
// "http://example.org/foo" to "ex:foo" for the entry ex -> http://example.org/.
type PrefixTable struct {
	names      map[string]string
	namespaces []prefixEntry // longest namespace first
}

type prefixEntry struct {
	name      string
	namespace string
}

// NewPrefixTable builds a table from name -> namespace pairs.
func NewPrefixTable(prefixes map[string]string) (*PrefixTable, error) {
	t := &PrefixTable{names: make(map[string]string, len(prefixes))}
	for name, ns := range prefixes {
		if name == "" || strings.ContainsAny(name, ":/#") {
			return nil, fmt.Errorf("invalid prefix name %q", name)
		}
		if ns == "" {
			return nil, fmt.Errorf("empty namespace for prefix %q", name)
		}
		t.names[name] = ns
		t.namespaces = append(t.namespaces, prefixEntry{name: name, namespace: ns})
	}
	sort.Slice(t.namespaces, func(i, j int) bool {
		a, b := t.namespaces[i], t.namespaces[j]
		if len(a.namespace) != len(b.namespace) {
			return len(a.namespace) > len(b.namespace)
		}
		return a.name < b.name
	})
	return t, nil
}

func (t *PrefixTable) CompactIRI(iri string) string {
	for _, e := range t.namespaces {
		if strings.HasPrefix(iri, e.namespace) {
			return e.name + ":" + iri[len(e.namespace):]
		}
	}
	return iri
}

func (t *PrefixTable) ExpandTerm(term string) string {
	name, local, ok := strings.Cut(term, ":")
	if !ok {
		return term
	}
	if ns, found := t.names[name]; found {
		return ns + local
	}
	return term
}

// Len returns the number of prefixes in the table.
func (t *PrefixTable) Len() int {
	return len(t.names)
}
