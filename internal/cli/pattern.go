package cli

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
	"github.com/aleksaelezovic/quadkv/pkg/store"
)

// patternFlags are the quad pattern flags shared by get, count and delete
type patternFlags struct {
	roles [4]string

	gt, gte, lt, lte string
	rangeRole        string

	defaultGraphOnly bool
}

func (f *patternFlags) register(fs *pflag.FlagSet) {
	for _, r := range rdf.Roles {
		fs.StringVar(&f.roles[r], r.String(), "", fmt.Sprintf("exact %s term in N-Quads syntax", r))
	}
	fs.StringVar(&f.gt, "gt", "", "range: terms greater than this one")
	fs.StringVar(&f.gte, "gte", "", "range: terms greater than or equal to this one")
	fs.StringVar(&f.lt, "lt", "", "range: terms less than this one")
	fs.StringVar(&f.lte, "lte", "", "range: terms less than or equal to this one")
	fs.StringVar(&f.rangeRole, "range-role", "object", "role the range flags apply to")
	fs.BoolVar(&f.defaultGraphOnly, "default-graph-only", false, "an unbound graph matches only the default graph")
}

func (f *patternFlags) hasRange() bool {
	return f.gt != "" || f.gte != "" || f.lt != "" || f.lte != ""
}

// pattern builds the store pattern the flags describe
func (f *patternFlags) pattern() (*store.Pattern, error) {
	p := &store.Pattern{}
	for _, r := range rdf.Roles {
		if f.roles[r] == "" {
			continue
		}
		term, err := rdf.ParseTerm(f.roles[r])
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", r, err)
		}
		p.Set(r, term)
	}
	if !f.hasRange() {
		return p, nil
	}

	role, err := rdf.ParseRole(f.rangeRole)
	if err != nil {
		return nil, fmt.Errorf("--range-role: %w", err)
	}
	if p.Get(role) != nil {
		return nil, fmt.Errorf("--%s and range flags both constrain the %s", role, role)
	}
	rng := &store.Range{}
	bounds := []struct {
		flag  string
		value string
		dst   *rdf.Term
	}{
		{"gt", f.gt, &rng.GT},
		{"gte", f.gte, &rng.GTE},
		{"lt", f.lt, &rng.LT},
		{"lte", f.lte, &rng.LTE},
	}
	for _, b := range bounds {
		if b.value == "" {
			continue
		}
		term, err := rdf.ParseTerm(b.value)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", b.flag, err)
		}
		*b.dst = term
	}
	p.Set(role, rng)
	return p, nil
}

func (f *patternFlags) mode() store.DefaultGraphMode {
	if f.defaultGraphOnly {
		return store.DefaultGraphOnly
	}
	return ""
}
