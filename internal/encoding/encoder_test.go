package encoding

import (
	"bytes"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

var allOrders = func() [][]rdf.Role {
	var out [][]rdf.Role
	var permute func(prefix []rdf.Role, rest []rdf.Role)
	permute = func(prefix []rdf.Role, rest []rdf.Role) {
		if len(rest) == 0 {
			out = append(out, append([]rdf.Role(nil), prefix...))
			return
		}
		for i := range rest {
			next := append(append([]rdf.Role(nil), rest[:i]...), rest[i+1:]...)
			permute(append(prefix, rest[i]), next)
		}
	}
	permute(nil, rdf.Roles[:])
	return out
}()

func sampleQuads() []*rdf.Quad {
	s := rdf.NewNamedNode("http://example.org/s")
	p := rdf.NewNamedNode("http://example.org/p")
	g := rdf.NewNamedNode("http://example.org/g")
	return []*rdf.Quad{
		rdf.NewQuad(s, p, rdf.NewLiteral("plain"), rdf.NewDefaultGraph()),
		rdf.NewQuad(s, p, rdf.NewLiteralWithLanguage("bonjour", "fr"), g),
		rdf.NewQuad(rdf.NewBlankNode("b0"), p, rdf.NewIntegerLiteral(-42), g),
		rdf.NewQuad(s, p, rdf.NewLiteralWithDatatype("7.0", rdf.XSDDouble), g),
		rdf.NewQuad(s, p, rdf.NewLiteralWithDatatype("2024-03-01T10:00:00Z", rdf.XSDDateTime), g),
		rdf.NewQuad(s, p, rdf.NewLiteralWithDatatype("not a number", rdf.XSDInteger), g),
		rdf.NewQuad(s, p, rdf.NewLiteralWithDatatype("true", rdf.XSDBoolean), rdf.NewBlankNode("g1")),
		rdf.NewQuad(s, p, rdf.NewLiteral("with\x00nul\x01and\xfe\xffhigh bytes"), g),
		rdf.NewQuad(rdf.NewNamedNode("http://example.org/a\x00b"), p, rdf.NewLiteral(""), g),
	}
}

func TestQuadKeyRoundTrip(t *testing.T) {
	prefixTable, err := NewPrefixTable(map[string]string{
		"ex":  "http://example.org/",
		"xsd": "http://www.w3.org/2001/XMLSchema#",
	})
	require.NoError(t, err)

	for _, prefixes := range []Prefixes{nil, prefixTable} {
		enc := NewTermEncoder(prefixes)
		dec := NewTermDecoder(prefixes)
		for _, q := range sampleQuads() {
			sq, err := enc.EncodeQuad(q)
			require.NoError(t, err)
			for _, order := range allOrders {
				prefix := []byte("IDX\x00")
				key := sq.AppendKey(nil, prefix, order)
				got, err := dec.DecodeQuadKey(key, len(prefix), order)
				require.NoError(t, err, "quad %s order %v", q, order)
				assert.True(t, q.Equals(got), "expected %s, got %s", q, got)
			}
		}
	}
}

func TestKeysAreInjective(t *testing.T) {
	enc := NewTermEncoder(nil)
	order := []rdf.Role{rdf.Subject, rdf.Predicate, rdf.Object, rdf.Graph}
	seen := map[string]string{}
	for _, q := range sampleQuads() {
		sq, err := enc.EncodeQuad(q)
		require.NoError(t, err)
		key := string(sq.AppendKey(nil, nil, order))
		prev, dup := seen[key]
		require.False(t, dup, "%s and %s share a key", prev, q)
		seen[key] = q.String()
	}
}

func TestEncodeTerm_Unsupported(t *testing.T) {
	enc := NewTermEncoder(nil)

	_, err := enc.EncodeTerm(rdf.NewVariable("x"))
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)

	_, err = enc.EncodeTerm(nil)
	require.ErrorAs(t, err, &encErr)
}

func TestEncodeTerm_IrreversiblePrefix(t *testing.T) {
	table, err := NewPrefixTable(map[string]string{"ex": "http://example.org/"})
	require.NoError(t, err)
	enc := NewTermEncoder(table)

	// An IRI that already looks like a compacted name would expand to something else
	_, err = enc.EncodeTerm(rdf.NewNamedNode("ex:thing"))
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)

	st, err := enc.EncodeTerm(rdf.NewNamedNode("http://example.org/thing"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2ex:thing"), st.Value)
}

func TestSeparatorNeverInsideValues(t *testing.T) {
	enc := NewTermEncoder(nil)
	st, err := enc.EncodeTerm(rdf.NewLiteral("a\x00b\xffc"))
	require.NoError(t, err)
	assert.Equal(t, -1, bytes.IndexByte(st.Value, Separator))
	assert.Equal(t, []byte{TagString, 'a', escapeLow, 0x01, 'b', escapeHigh, 0xFF, 'c'}, st.Value)
}

func TestNumericOrdering(t *testing.T) {
	enc := NewTermEncoder(nil)
	values := []*rdf.Literal{
		rdf.NewLiteralWithDatatype("-INF", rdf.XSDDouble),
		rdf.NewIntegerLiteral(-100),
		rdf.NewLiteralWithDatatype("-2.5", rdf.XSDDecimal),
		rdf.NewIntegerLiteral(0),
		rdf.NewLiteralWithDatatype("0.5", rdf.XSDFloat),
		rdf.NewIntegerLiteral(5),
		rdf.NewLiteralWithDatatype("7", rdf.XSDInteger),
		rdf.NewLiteralWithDatatype("1e3", rdf.XSDDouble),
	}
	var frags [][]byte
	for _, v := range values {
		st, err := enc.EncodeTerm(v)
		require.NoError(t, err)
		require.Equal(t, TagNumeric, st.Tag)
		frags = append(frags, st.RangeFragment())
	}
	assert.True(t, sort.SliceIsSorted(frags, func(i, j int) bool {
		return bytes.Compare(frags[i], frags[j]) < 0
	}))
}

func TestDateTimeOrdering(t *testing.T) {
	enc := NewTermEncoder(nil)
	instants := []string{
		"0001-01-01T00:00:00Z",
		"1500-06-01T12:00:00Z",
		"1969-12-31T23:59:59.999999999Z",
		"1970-01-01T00:00:00Z",
		"2000-01-01T00:00:00.5Z",
		"2000-01-01T00:00:00.500000001Z",
		"2262-04-12T00:00:00Z",
		"2300-01-01T00:00:00Z",
		"3000-01-01T00:00:00+02:00",
		"3000-01-01T00:00:00Z",
		"9999-12-31T23:59:59Z",
	}
	var frags [][]byte
	for _, v := range instants {
		st, err := enc.EncodeTerm(rdf.NewLiteralWithDatatype(v, rdf.XSDDateTime))
		require.NoError(t, err)
		require.Equal(t, TagDateTime, st.Tag, v)
		frags = append(frags, st.RangeFragment())
	}
	for i := 1; i < len(frags); i++ {
		assert.Negative(t, bytes.Compare(frags[i-1], frags[i]), "%s should sort before %s", instants[i-1], instants[i])
	}
}

func TestCompareRange(t *testing.T) {
	enc := NewTermEncoder(nil)
	mustEncode := func(term rdf.Term) SerializedTerm {
		st, err := enc.EncodeTerm(term)
		require.NoError(t, err)
		return st
	}

	seven := mustEncode(rdf.NewIntegerLiteral(7))
	sevenDouble := mustEncode(rdf.NewLiteralWithDatatype("7.0", rdf.XSDDouble))
	cmp, ok := CompareRange(seven, sevenDouble)
	require.True(t, ok)
	assert.Equal(t, 0, cmp)

	abc := mustEncode(rdf.NewLiteral("abc"))
	abcd := mustEncode(rdf.NewLiteral("abcd"))
	cmp, ok = CompareRange(abc, abcd)
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	_, ok = CompareRange(seven, abc)
	assert.False(t, ok)

	en := mustEncode(rdf.NewLiteralWithLanguage("a", "en"))
	fr := mustEncode(rdf.NewLiteralWithLanguage("a", "fr"))
	_, ok = CompareRange(en, fr)
	assert.False(t, ok)
}

func TestKindOrder(t *testing.T) {
	enc := NewTermEncoder(nil)
	terms := []rdf.Term{
		rdf.NewDefaultGraph(),
		rdf.NewNamedNode("http://z.example/"),
		rdf.NewIntegerLiteral(1),
		rdf.NewDateTimeLiteral(mustTime(t, "2020-01-01T00:00:00Z")),
		rdf.NewLiteral("a"),
		rdf.NewLiteralWithLanguage("a", "en"),
		rdf.NewBooleanLiteral(true),
		rdf.NewBlankNode("a"),
	}
	var prev []byte
	for _, term := range terms {
		st, err := enc.EncodeTerm(term)
		require.NoError(t, err)
		if prev != nil {
			assert.Negative(t, bytes.Compare(prev, st.Value), "%s should sort after the previous kind", term)
		}
		prev = st.Value
	}
}

func TestDecodeQuadKey_Corrupt(t *testing.T) {
	enc := NewTermEncoder(nil)
	dec := NewTermDecoder(nil)
	order := []rdf.Role{rdf.Subject, rdf.Predicate, rdf.Object, rdf.Graph}
	sq, err := enc.EncodeQuad(sampleQuads()[1])
	require.NoError(t, err)
	key := sq.AppendKey(nil, nil, order)

	cases := map[string][]byte{
		"empty":            {},
		"truncated":        key[:len(key)-5],
		"bad trailer len":  append(append([]byte(nil), key[:len(key)-2]...), '!', '!'),
		"fragment damaged": append([]byte{'9'}, key[1:]...),
		"extra byte":       append([]byte{'x'}, key...),
	}
	for name, k := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := dec.DecodeQuadKey(k, 0, order)
			var decErr *DecodingError
			require.Error(t, err)
			assert.True(t, errors.As(err, &decErr), "expected DecodingError, got %v", err)
		})
	}
}

func TestUnescape(t *testing.T) {
	for _, s := range []string{"", "plain", "\x00", "\x01\x00", "\xfe\xff", "mixed\x00\x01\xfe\xffend"} {
		esc := appendEscaped(nil, s)
		assert.Len(t, esc, escapedLen(s))
		got, err := unescape(esc, 0)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := unescape([]byte{escapeLow}, 0)
	assert.Error(t, err)
	_, err = unescape([]byte{escapeLow, 0x07}, 0)
	assert.Error(t, err)
}

func TestEscapePreservesOrder(t *testing.T) {
	inputs := []string{"", "\x00", "\x00\x00", "\x01", "\x02", "a", "a\x00", "a\x01", "ab", "\xfd", "\xfe", "\xfe\x00", "\xff", "\xff\xff"}
	for i := 1; i < len(inputs); i++ {
		a := append(appendEscaped(nil, inputs[i-1]), Separator)
		b := append(appendEscaped(nil, inputs[i]), Separator)
		assert.Negative(t, bytes.Compare(a, b), "%q should sort before %q", inputs[i-1], inputs[i])
	}
}

func TestPrefixTable(t *testing.T) {
	table, err := NewPrefixTable(map[string]string{
		"ex":  "http://example.org/",
		"exv": "http://example.org/vocab#",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	assert.Equal(t, "exv:name", table.CompactIRI("http://example.org/vocab#name"))
	assert.Equal(t, "ex:alice", table.CompactIRI("http://example.org/alice"))
	assert.Equal(t, "urn:x", table.CompactIRI("urn:x"))
	assert.Equal(t, "http://example.org/vocab#name", table.ExpandTerm("exv:name"))
	assert.Equal(t, "urn:x", table.ExpandTerm("urn:x"))

	_, err = NewPrefixTable(map[string]string{"bad:name": "http://x/"})
	assert.Error(t, err)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}
