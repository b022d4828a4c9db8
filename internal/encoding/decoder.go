package encoding

import (
	"github.com/aleksaelezovic/quadkv/pkg/rdf"
)

// TermDecoder turns keys back into RDF terms
type TermDecoder struct {
	prefixes Prefixes
}

// NewTermDecoder creates a decoder; it must use the same prefixes as the encoder
func NewTermDecoder(prefixes Prefixes) *TermDecoder {
	if prefixes == nil {
		prefixes = NoPrefixes{}
	}
	return &TermDecoder{prefixes: prefixes}
}

type termHeader struct {
	tag     byte
	lengths [3]int
	n       int
}

// DecodeQuadKey decodes a key whose first prefixLen bytes are the index prefix
// and whose terms are laid out in the given role order.
func (d *TermDecoder) DecodeQuadKey(key []byte, prefixLen int, order []rdf.Role) (*rdf.Quad, error) {
	if len(order) != len(rdf.Roles) {
		return nil, decodingErrorf(0, "role order has %d roles", len(order))
	}
	if len(key) < prefixLen+trailerLengthWidth {
		return nil, decodingErrorf(len(key), "key too short")
	}

	end := len(key) - trailerLengthWidth
	trailerLen, ok := parseBase36(key[end:])
	if !ok {
		return nil, decodingErrorf(end, "invalid trailer length")
	}
	trailerStart := end - trailerLen
	if trailerStart < prefixLen {
		return nil, decodingErrorf(end, "trailer length %d overruns key", trailerLen)
	}

	headers, err := readTrailer(key[trailerStart:end], trailerStart, len(order))
	if err != nil {
		return nil, err
	}

	quad := &rdf.Quad{}
	offset := prefixLen
	for i, r := range order {
		var term rdf.Term
		term, offset, err = d.readTerm(key[:trailerStart], offset, headers[i])
		if err != nil {
			return nil, err
		}
		quad.Set(r, term)
	}
	if offset != trailerStart {
		return nil, decodingErrorf(offset, "%d unread bytes before trailer", trailerStart-offset)
	}
	return quad, nil
}

func readTrailer(trailer []byte, base, terms int) ([]termHeader, error) {
	headers := make([]termHeader, terms)
	pos := 0
	for i := range headers {
		if pos >= len(trailer) {
			return nil, decodingErrorf(base+pos, "trailer truncated")
		}
		tag := trailer[pos]
		n, ok := fieldCount(tag)
		if !ok {
			return nil, decodingErrorf(base+pos, "unknown term tag %q", tag)
		}
		pos++
		headers[i].tag = tag
		headers[i].n = n
		for j := 0; j < n; j++ {
			if pos+lengthWidth > len(trailer) {
				return nil, decodingErrorf(base+pos, "trailer truncated")
			}
			l, ok := parseBase36(trailer[pos : pos+lengthWidth])
			if !ok {
				return nil, decodingErrorf(base+pos, "invalid field length")
			}
			headers[i].lengths[j] = l
			pos += lengthWidth
		}
	}
	if pos != len(trailer) {
		return nil, decodingErrorf(base+pos, "trailing bytes in trailer")
	}
	return headers, nil
}

// readTerm reads one term fragment starting at offset, including its
// terminating separator, and returns the offset just past it.
func (d *TermDecoder) readTerm(region []byte, offset int, h termHeader) (rdf.Term, int, error) {
	if offset >= len(region) || region[offset] != h.tag {
		return nil, offset, decodingErrorf(offset, "fragment does not start with tag %q", h.tag)
	}
	offset++

	var fields [3]string
	for j := 0; j < h.n; j++ {
		if j > 0 {
			if offset >= len(region) || region[offset] != Separator {
				return nil, offset, decodingErrorf(offset, "missing field separator")
			}
			offset++
		}
		end := offset + h.lengths[j]
		if end > len(region) {
			return nil, offset, decodingErrorf(offset, "field length %d overruns key", h.lengths[j])
		}
		s, err := unescape(region[offset:end], offset)
		if err != nil {
			return nil, offset, err
		}
		fields[j] = s
		offset = end
	}
	if offset >= len(region) || region[offset] != Separator {
		return nil, offset, decodingErrorf(offset, "missing term separator")
	}
	offset++

	switch h.tag {
	case TagDefaultGraph:
		return rdf.NewDefaultGraph(), offset, nil
	case TagNamedNode:
		return rdf.NewNamedNode(d.prefixes.ExpandTerm(fields[0])), offset, nil
	case TagBlankNode:
		return rdf.NewBlankNode(fields[0]), offset, nil
	case TagString:
		return rdf.NewLiteral(fields[0]), offset, nil
	case TagLangString:
		return rdf.NewLiteralWithLanguage(fields[1], fields[0]), offset, nil
	case TagNumeric, TagDateTime:
		return rdf.NewLiteralWithDatatype(fields[2], rdf.NewNamedNode(d.prefixes.ExpandTerm(fields[1]))), offset, nil
	case TagTyped:
		return rdf.NewLiteralWithDatatype(fields[1], rdf.NewNamedNode(d.prefixes.ExpandTerm(fields[0]))), offset, nil
	}
	return nil, offset, decodingErrorf(offset, "unknown term tag %q", h.tag)
}
