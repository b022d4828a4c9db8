package index

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

var (
	exS = rdf.NewNamedNode("http://example.org/s")
	exP = rdf.NewNamedNode("http://example.org/p")
	exO = rdf.NewLiteral("o")
	exG = rdf.NewNamedNode("http://example.org/g")
)

func TestNewSet_Defaults(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPOG", "OGSP", "GSPO", "OSPG", "POGS", "GPOS"}, set.Names())
	assert.Equal(t, "SPOG", set.Primary().Name())
	assert.Equal(t, "GSPO", set.Get("GSPO").Name())
	assert.Nil(t, set.Get("SOPG"))
	assert.Equal(t, []byte("SPOG\x00"), set.Primary().Prefix())
}

func TestNewSet_Invalid(t *testing.T) {
	_, err := NewSet([][]rdf.Role{{rdf.Subject, rdf.Subject, rdf.Object, rdf.Graph}})
	assert.Error(t, err)

	_, err = NewSet([][]rdf.Role{{rdf.Subject, rdf.Predicate}})
	assert.Error(t, err)

	spog := []rdf.Role{rdf.Subject, rdf.Predicate, rdf.Object, rdf.Graph}
	_, err = NewSet([][]rdf.Role{spog, spog})
	assert.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	order, err := ParseOrder("GSPO")
	require.NoError(t, err)
	assert.Equal(t, []rdf.Role{rdf.Graph, rdf.Subject, rdf.Predicate, rdf.Object}, order)

	_, err = ParseOrder("GSP")
	assert.Error(t, err)
	_, err = ParseOrder("GSPX")
	assert.Error(t, err)
}

func TestKeyForDecode(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	enc := encoding.NewTermEncoder(nil)
	dec := encoding.NewTermDecoder(nil)

	q := rdf.NewQuad(exS, exP, exO, exG)
	sq, err := enc.EncodeQuad(q)
	require.NoError(t, err)
	for _, def := range set.Definitions() {
		key := def.KeyFor(&sq)
		assert.True(t, bytes.HasPrefix(key, def.Prefix()))
		got, err := def.Decode(dec, key)
		require.NoError(t, err)
		assert.True(t, q.Equals(got))
	}
}

// Every one of the 16 subsets of exact roles must be a full key prefix of
// the chosen default index, with no residual filters.
func TestSelect_CoversEverySubset(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	sel := NewSelector(set, encoding.NewTermEncoder(nil))
	terms := [4]rdf.Term{exS, exP, exO, exG}

	for mask := 0; mask < 16; mask++ {
		var p Pattern
		bound := 0
		for _, r := range rdf.Roles {
			if mask&(1<<r) != 0 {
				p[r] = Constraint{Kind: Exact, Term: terms[r]}
				bound++
			}
		}
		plan, err := sel.Select(p, nil)
		require.NoError(t, err)
		assert.Equal(t, bound, plan.Covered, "mask %04b picked %s", mask, plan.Index)
		assert.Empty(t, plan.Filters, "mask %04b", mask)
		assert.Less(t, bytes.Compare(plan.Lower, plan.Upper), 0)
	}
}

func TestSelect_TiesGoToDeclarationOrder(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	sel := NewSelector(set, encoding.NewTermEncoder(nil))

	plan, err := sel.Select(Pattern{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SPOG", plan.Index.Name())
	assert.Equal(t, []byte("SPOG\x00"), plan.Lower)
	assert.Equal(t, []byte("SPOG\x00\xff"), plan.Upper)

	var p Pattern
	p[rdf.Object] = Constraint{Kind: Exact, Term: exO}
	plan, err = sel.Select(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "OGSP", plan.Index.Name())
}

func TestSelect_OrderPreference(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	sel := NewSelector(set, encoding.NewTermEncoder(nil))

	var p Pattern
	p[rdf.Object] = Constraint{Kind: Exact, Term: exO}
	plan, err := sel.Select(p, []rdf.Role{rdf.Subject, rdf.Predicate})
	require.NoError(t, err)
	assert.Equal(t, "OSPG", plan.Index.Name())
	assert.Equal(t, []rdf.Role{rdf.Object, rdf.Subject, rdf.Predicate, rdf.Graph}, plan.Sorting())
}

func TestSelect_RangeFolding(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	enc := encoding.NewTermEncoder(nil)
	sel := NewSelector(set, enc)

	var p Pattern
	p[rdf.Predicate] = Constraint{Kind: Exact, Term: exP}
	p[rdf.Object] = Constraint{Kind: InRange, Range: Range{
		Lower: rdf.NewIntegerLiteral(5), LowerExclusive: true,
		Upper: rdf.NewIntegerLiteral(10),
	}}
	plan, err := sel.Select(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "POGS", plan.Index.Name())
	assert.True(t, plan.RangeFolded)
	assert.Equal(t, 1, plan.Covered)
	assert.Empty(t, plan.Filters)

	inside := func(o rdf.Term) bool {
		sq, err := enc.EncodeQuad(rdf.NewQuad(exS, exP, o, exG))
		require.NoError(t, err)
		key := plan.Index.KeyFor(&sq)
		return bytes.Compare(key, plan.Lower) >= 0 && bytes.Compare(key, plan.Upper) < 0
	}
	assert.False(t, inside(rdf.NewIntegerLiteral(5)))
	assert.False(t, inside(rdf.NewLiteralWithDatatype("5.0", rdf.XSDDouble)))
	assert.True(t, inside(rdf.NewIntegerLiteral(6)))
	assert.True(t, inside(rdf.NewLiteralWithDatatype("10.0", rdf.XSDDecimal)))
	assert.False(t, inside(rdf.NewIntegerLiteral(11)))
	assert.False(t, inside(rdf.NewLiteral("7")))
}

func TestSelect_OpenEndedRangeStaysInFamily(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	enc := encoding.NewTermEncoder(nil)
	sel := NewSelector(set, enc)

	var p Pattern
	p[rdf.Object] = Constraint{Kind: InRange, Range: Range{Lower: rdf.NewLiteral("b")}}
	plan, err := sel.Select(p, nil)
	require.NoError(t, err)
	assert.Equal(t, "OGSP", plan.Index.Name())

	inside := func(o rdf.Term) bool {
		sq, err := enc.EncodeQuad(rdf.NewQuad(exS, exP, o, exG))
		require.NoError(t, err)
		key := plan.Index.KeyFor(&sq)
		return bytes.Compare(key, plan.Lower) >= 0 && bytes.Compare(key, plan.Upper) < 0
	}
	assert.False(t, inside(rdf.NewLiteral("a")))
	assert.True(t, inside(rdf.NewLiteral("b")))
	assert.True(t, inside(rdf.NewLiteral("zzz")))
	assert.False(t, inside(rdf.NewLiteralWithLanguage("c", "en")))
	assert.False(t, inside(rdf.NewBlankNode("b")))
}

func TestSelect_ResidualFilters(t *testing.T) {
	spog := []rdf.Role{rdf.Subject, rdf.Predicate, rdf.Object, rdf.Graph}
	set, err := NewSet([][]rdf.Role{spog})
	require.NoError(t, err)
	enc := encoding.NewTermEncoder(nil)
	sel := NewSelector(set, enc)

	var p Pattern
	p[rdf.Subject] = Constraint{Kind: Exact, Term: exS}
	p[rdf.Object] = Constraint{Kind: InRange, Range: Range{Upper: rdf.NewIntegerLiteral(3)}}
	p[rdf.Graph] = Constraint{Kind: Exact, Term: exG}
	plan, err := sel.Select(p, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Covered)
	assert.False(t, plan.RangeFolded)
	require.Len(t, plan.Filters, 2)
	assert.Equal(t, rdf.Object, plan.Filters[0].Role)
	assert.Equal(t, rdf.Graph, plan.Filters[1].Role)

	ok, err := plan.Match(enc, rdf.NewQuad(exS, exP, rdf.NewIntegerLiteral(3), exG))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = plan.Match(enc, rdf.NewQuad(exS, exP, rdf.NewIntegerLiteral(4), exG))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = plan.Match(enc, rdf.NewQuad(exS, exP, rdf.NewIntegerLiteral(1), rdf.NewDefaultGraph()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelect_InvalidRange(t *testing.T) {
	set, err := NewSet(nil)
	require.NoError(t, err)
	sel := NewSelector(set, encoding.NewTermEncoder(nil))

	var p Pattern
	p[rdf.Object] = Constraint{Kind: InRange, Range: Range{Lower: rdf.NewIntegerLiteral(1), Upper: rdf.NewLiteral("z")}}
	_, err = sel.Select(p, nil)
	assert.True(t, errors.Is(err, ErrInvalidRange))

	p[rdf.Object] = Constraint{Kind: InRange}
	_, err = sel.Select(p, nil)
	assert.True(t, errors.Is(err, ErrInvalidRange))
}
