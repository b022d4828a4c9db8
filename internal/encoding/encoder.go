package encoding

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// Term tags. The tag is written into the key trailer and is also the first
// byte of the term's fragment, which fixes the cross-kind order:
// default graph < named nodes < numeric < dateTime < strings < language strings
// < other typed literals < blank nodes.
const (
	TagDefaultGraph byte = '1'
	TagNamedNode    byte = '2'
	TagNumeric      byte = '3'
	TagDateTime     byte = '4'
	TagString       byte = '5'
	TagLangString   byte = '6'
	TagTyped        byte = '7'
	TagBlankNode    byte = '8'
)

const (
	// Each field length is written as a fixed number of base-36 digits.
	lengthWidth    = 4
	maxFieldLength = 36*36*36*36 - 1

	// The trailer length suffix at the very end of every key.
	trailerLengthWidth = 2

	sortableWidth = 16

	// dateTimes sort on signed Unix seconds followed by the nanosecond of the second.
	nanosWidth    = 8
	dateTimeWidth = sortableWidth + nanosWidth
)

// fieldCount returns how many length-delimited fields a tag carries.
func fieldCount(tag byte) (int, bool) {
	switch tag {
	case TagDefaultGraph:
		return 0, true
	case TagNamedNode, TagBlankNode, TagString:
		return 1, true
	case TagLangString, TagTyped:
		return 2, true
	case TagNumeric, TagDateTime:
		return 3, true
	}
	return 0, false
}

// SerializedTerm is the sortable form of one term.
type SerializedTerm struct {
	Tag byte
	// Value is the tag byte followed by the escaped fields joined by Separator.
	Value []byte
	// Lengths holds the escaped length of every field.
	Lengths []int
}

// RangeFragment returns the bytes that order the term within its family.
// Every stored term that is range-equal to this one starts with exactly these bytes.
func (s SerializedTerm) RangeFragment() []byte {
	switch s.Tag {
	case TagNumeric:
		return s.Value[:1+sortableWidth]
	case TagDateTime:
		return s.Value[:1+dateTimeWidth]
	}
	frag := make([]byte, 0, len(s.Value)+1)
	frag = append(frag, s.Value...)
	return append(frag, Separator)
}

// FamilyPrefix returns the bytes shared by every term that can be compared
// with this one in a range: the tag, plus the language or datatype where the
// family is split by them.
func (s SerializedTerm) FamilyPrefix() []byte {
	switch s.Tag {
	case TagLangString, TagTyped:
		return s.Value[:1+s.Lengths[0]+1]
	}
	return s.Value[:1]
}

// CompareRange compares two terms by their range fragments. ok is false when
// the terms belong to different families and cannot be compared.
func CompareRange(a, b SerializedTerm) (cmp int, ok bool) {
	if !bytes.Equal(a.FamilyPrefix(), b.FamilyPrefix()) {
		return 0, false
	}
	return bytes.Compare(a.RangeFragment(), b.RangeFragment()), true
}

// SerializedQuad holds the four serialized terms of a quad, indexed by rdf.Role.
type SerializedQuad [4]SerializedTerm

// AppendKey builds the key of the quad for one index role order:
// prefix, each fragment followed by Separator, the trailer of tags and
// lengths, and the fixed-width trailer length.
func (sq *SerializedQuad) AppendKey(dst, prefix []byte, order []rdf.Role) []byte {
	dst = append(dst, prefix...)
	for _, r := range order {
		dst = append(dst, sq[r].Value...)
		dst = append(dst, Separator)
	}
	start := len(dst)
	for _, r := range order {
		dst = append(dst, sq[r].Tag)
		for _, l := range sq[r].Lengths {
			dst = appendBase36(dst, l, lengthWidth)
		}
	}
	return appendBase36(dst, len(dst)-start, trailerLengthWidth)
}

// AppendTerm appends a term fragment and its separator, as used for key prefixes.
func AppendTerm(dst []byte, t SerializedTerm) []byte {
	dst = append(dst, t.Value...)
	return append(dst, Separator)
}

// TermEncoder turns RDF terms into sortable key fragments
type TermEncoder struct {
	prefixes Prefixes
}

// NewTermEncoder creates an encoder; nil prefixes disables IRI compaction
func NewTermEncoder(prefixes Prefixes) *TermEncoder {
	if prefixes == nil {
		prefixes = NoPrefixes{}
	}
	return &TermEncoder{prefixes: prefixes}
}

// EncodeQuad serializes the four terms of a quad once, so keys for every
// index can be assembled without re-encoding.
func (e *TermEncoder) EncodeQuad(q *rdf.Quad) (SerializedQuad, error) {
	var sq SerializedQuad
	if q == nil {
		return sq, &EncodingError{Reason: "nil quad"}
	}
	for _, r := range rdf.Roles {
		st, err := e.EncodeTerm(q.Get(r))
		if err != nil {
			return sq, err
		}
		sq[r] = st
	}
	return sq, nil
}

// EncodeTerm serializes a single term
func (e *TermEncoder) EncodeTerm(term rdf.Term) (SerializedTerm, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		iri, err := e.compact(t.IRI)
		if err != nil {
			return SerializedTerm{}, err
		}
		return build(TagNamedNode, iri)
	case *rdf.BlankNode:
		return build(TagBlankNode, t.ID)
	case *rdf.Literal:
		return e.encodeLiteral(t)
	case *rdf.DefaultGraph:
		return build(TagDefaultGraph)
	case nil:
		return SerializedTerm{}, &EncodingError{Reason: "nil term"}
	default:
		return SerializedTerm{}, &EncodingError{Term: term.String(), Reason: "unsupported term type " + term.Type().String()}
	}
}

func (e *TermEncoder) encodeLiteral(lit *rdf.Literal) (SerializedTerm, error) {
	if lit.Language != "" {
		return build(TagLangString, lit.Language, lit.Value)
	}

	datatype := lit.DatatypeIRI()
	if datatype == rdf.XSDString.IRI {
		return build(TagString, lit.Value)
	}

	compacted, err := e.compact(datatype)
	if err != nil {
		return SerializedTerm{}, err
	}

	if rdf.IsNumericDatatype(datatype) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64); err == nil {
			return build(TagNumeric, sortableHex(sortableFloat(f)), compacted, lit.Value)
		}
	}
	if datatype == rdf.XSDDateTime.IRI {
		if ts, ok := parseDateTime(lit.Value); ok {
			return build(TagDateTime, sortableInstant(ts), compacted, lit.Value)
		}
	}

	// Literals whose lexical form does not parse keep their typed encoding
	return build(TagTyped, compacted, lit.Value)
}

func (e *TermEncoder) compact(iri string) (string, error) {
	compacted := e.prefixes.CompactIRI(iri)
	if e.prefixes.ExpandTerm(compacted) != iri {
		return "", &EncodingError{Term: "<" + iri + ">", Reason: "prefix compaction is not reversible"}
	}
	return compacted, nil
}

func build(tag byte, fields ...string) (SerializedTerm, error) {
	size := 1
	for _, f := range fields {
		size += len(f) + 1
	}
	st := SerializedTerm{
		Tag:     tag,
		Value:   make([]byte, 0, size),
		Lengths: make([]int, len(fields)),
	}
	st.Value = append(st.Value, tag)
	for i, f := range fields {
		if i > 0 {
			st.Value = append(st.Value, Separator)
		}
		n := escapedLen(f)
		if n > maxFieldLength {
			return SerializedTerm{}, &EncodingError{Reason: "term field of " + strconv.Itoa(n) + " bytes exceeds the maximum key field length"}
		}
		st.Value = appendEscaped(st.Value, f)
		st.Lengths[i] = n
	}
	return st, nil
}

// sortableFloat maps a float64 onto a uint64 whose unsigned order matches the numeric order
func sortableFloat(f float64) uint64 {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

func sortableInt(n int64) uint64 {
	return uint64(n) ^ 1<<63 // #nosec G115 - intentional bit-pattern conversion for sortable encoding
}

func sortableHex(v uint64) string {
	return string(appendHex(nil, v, sortableWidth))
}

// sortableInstant orders every instant time.Parse accepts, including those
// outside the range of UnixNano.
func sortableInstant(ts time.Time) string {
	buf := make([]byte, 0, dateTimeWidth)
	buf = appendHex(buf, sortableInt(ts.Unix()), sortableWidth)
	buf = appendHex(buf, uint64(ts.Nanosecond()), nanosWidth) // #nosec G115 - Nanosecond is within [0, 1e9)
	return string(buf)
}

func appendHex(dst []byte, v uint64, width int) []byte {
	const digits = "0123456789abcdef"
	var buf [sortableWidth]byte
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[v&0xF]
		v >>= 4
	}
	return append(dst, buf[:width]...)
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func parseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func appendBase36(dst []byte, n, width int) []byte {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	var buf [8]byte
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[n%36]
		n /= 36
	}
	return append(dst, buf[:width]...)
}

func parseBase36(b []byte) (int, bool) {
	n := 0
	for _, c := range b {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'z':
			d = int(c-'a') + 10
		default:
			return 0, false
		}
		n = n*36 + d
	}
	return n, true
}
