package rdf

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"
)

// NQuadsReader reads N-Quads (and N-Triples) documents one statement per line.
// Triples are placed in the default graph.
type NQuadsReader struct {
	scanner *bufio.Scanner
	line    int
	err     error
}

// NewNQuadsReader creates a streaming N-Quads reader
func NewNQuadsReader(r io.Reader) *NQuadsReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &NQuadsReader{scanner: scanner}
}

// Read returns the next quad, or io.EOF once the input is exhausted
func (r *NQuadsReader) Read() (*Quad, error) {
	if r.err != nil {
		return nil, r.err
	}
	for r.scanner.Scan() {
		r.line++
		p := &termParser{input: r.scanner.Text()}
		quad, err := p.parseStatement()
		if err != nil {
			r.err = fmt.Errorf("line %d: %w", r.line, err)
			return nil, r.err
		}
		if quad != nil {
			return quad, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		r.err = err
		return nil, err
	}
	r.err = io.EOF
	return nil, io.EOF
}

// All yields every quad of the input. Iteration stops after the first error.
func (r *NQuadsReader) All() iter.Seq2[*Quad, error] {
	return func(yield func(*Quad, error) bool) {
		for {
			quad, err := r.Read()
			if err == io.EOF {
				return
			}
			if !yield(quad, err) || err != nil {
				return
			}
		}
	}
}

// ParseNQuads parses a whole N-Quads document
func ParseNQuads(input string) ([]*Quad, error) {
	var quads []*Quad
	for quad, err := range NewNQuadsReader(strings.NewReader(input)).All() {
		if err != nil {
			return nil, err
		}
		quads = append(quads, quad)
	}
	return quads, nil
}

// ParseTerm parses a single term in N-Quads syntax. Variables are written as ?name,
// and the bare word DEFAULT denotes the default graph.
func ParseTerm(s string) (Term, error) {
	s = strings.TrimSpace(s)
	if s == "DEFAULT" {
		return NewDefaultGraph(), nil
	}
	if strings.HasPrefix(s, "?") || strings.HasPrefix(s, "$") {
		if len(s) == 1 {
			return nil, fmt.Errorf("empty variable name")
		}
		return NewVariable(s[1:]), nil
	}
	p := &termParser{input: s}
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected trailing input %q", p.input[p.pos:])
	}
	return term, nil
}

// FormatNQuad renders a quad as one N-Quads line without the trailing newline.
// The default graph is omitted.
func FormatNQuad(q *Quad) string {
	var b strings.Builder
	b.WriteString(q.Subject.String())
	b.WriteByte(' ')
	b.WriteString(q.Predicate.String())
	b.WriteByte(' ')
	b.WriteString(q.Object.String())
	if q.Graph != nil && q.Graph.Type() != TermTypeDefaultGraph {
		b.WriteByte(' ')
		b.WriteString(q.Graph.String())
	}
	b.WriteString(" .")
	return b.String()
}

// NQuadsWriter writes quads as N-Quads lines
type NQuadsWriter struct {
	w *bufio.Writer
}

func NewNQuadsWriter(w io.Writer) *NQuadsWriter {
	return &NQuadsWriter{w: bufio.NewWriter(w)}
}

func (w *NQuadsWriter) Write(q *Quad) error {
	if _, err := w.w.WriteString(FormatNQuad(q)); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush flushes buffered output
func (w *NQuadsWriter) Flush() error {
	return w.w.Flush()
}

type termParser struct {
	input string
	pos   int
}

// parseStatement parses one line; blank lines and comments yield a nil quad
func (p *termParser) parseStatement() (*Quad, error) {
	p.skipWhitespace()
	if p.pos >= len(p.input) || p.input[p.pos] == '#' {
		return nil, nil
	}

	terms := make([]Term, 0, 4)
	for len(terms) < 4 {
		p.skipWhitespace()
		if p.pos >= len(p.input) {
			return nil, fmt.Errorf("unexpected end of statement")
		}
		if p.input[p.pos] == '.' {
			break
		}
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}

	p.skipWhitespace()
	if p.pos >= len(p.input) || p.input[p.pos] != '.' {
		return nil, fmt.Errorf("expected '.' at end of statement")
	}
	p.pos++
	p.skipWhitespace()
	if p.pos < len(p.input) && p.input[p.pos] != '#' {
		return nil, fmt.Errorf("unexpected content after '.'")
	}

	if len(terms) < 3 {
		return nil, fmt.Errorf("statement needs at least subject, predicate and object")
	}
	switch terms[0].Type() {
	case TermTypeNamedNode, TermTypeBlankNode:
	default:
		return nil, fmt.Errorf("subject must be an IRI or blank node")
	}
	if terms[1].Type() != TermTypeNamedNode {
		return nil, fmt.Errorf("predicate must be an IRI")
	}

	var graph Term = NewDefaultGraph()
	if len(terms) == 4 {
		switch terms[3].Type() {
		case TermTypeNamedNode, TermTypeBlankNode:
			graph = terms[3]
		default:
			return nil, fmt.Errorf("graph must be an IRI or blank node")
		}
	}
	return NewQuad(terms[0], terms[1], terms[2], graph), nil
}

func (p *termParser) skipWhitespace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *termParser) parseTerm() (Term, error) {
	p.skipWhitespace()
	if p.pos >= len(p.input) {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch p.input[p.pos] {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	default:
		return nil, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
}

func (p *termParser) parseIRI() (string, error) {
	p.pos++ // '<'
	var b strings.Builder
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		switch ch {
		case '>':
			p.pos++
			return b.String(), nil
		case '\\':
			r, err := p.parseEscape(false)
			if err != nil {
				return "", err
			}
			b.WriteRune(r)
		case ' ', '<', '"', '{', '}', '|', '^', '`':
			return "", fmt.Errorf("invalid character %q in IRI", ch)
		default:
			b.WriteByte(ch)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated IRI")
}

func (p *termParser) parseBlankNode() (Term, error) {
	if !strings.HasPrefix(p.input[p.pos:], "_:") {
		return nil, fmt.Errorf("expected '_:' at position %d", p.pos)
	}
	p.pos += 2
	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '<' || ch == '"' {
			break
		}
		if ch == '.' && (p.pos+1 == len(p.input) || p.input[p.pos+1] == ' ' || p.input[p.pos+1] == '\t') {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("empty blank node label")
	}
	return NewBlankNode(p.input[start:p.pos]), nil
}

func (p *termParser) parseLiteral() (Term, error) {
	p.pos++ // opening quote
	var b strings.Builder
	closed := false
	for p.pos < len(p.input) && !closed {
		ch := p.input[p.pos]
		switch ch {
		case '"':
			p.pos++
			closed = true
		case '\\':
			r, err := p.parseEscape(true)
			if err != nil {
				return nil, err
			}
			b.WriteRune(r)
		default:
			b.WriteByte(ch)
			p.pos++
		}
	}
	if !closed {
		return nil, fmt.Errorf("unterminated string literal")
	}
	value := b.String()

	if p.pos < len(p.input) && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		for p.pos < len(p.input) {
			ch := p.input[p.pos]
			if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '-' {
				p.pos++
				continue
			}
			break
		}
		if p.pos == start {
			return nil, fmt.Errorf("empty language tag")
		}
		return NewLiteralWithLanguage(value, p.input[start:p.pos]), nil
	}

	if strings.HasPrefix(p.input[p.pos:], "^^") {
		p.pos += 2
		if p.pos >= len(p.input) || p.input[p.pos] != '<' {
			return nil, fmt.Errorf("expected datatype IRI after '^^'")
		}
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewLiteralWithDatatype(value, NewNamedNode(iri)), nil
	}

	return NewLiteral(value), nil
}

// parseEscape handles \uXXXX and \UXXXXXXXX everywhere and ECHAR escapes inside strings
func (p *termParser) parseEscape(inString bool) (rune, error) {
	if p.pos+1 >= len(p.input) {
		return 0, fmt.Errorf("incomplete escape sequence")
	}
	ch := p.input[p.pos+1]
	switch ch {
	case 'u', 'U':
		width := 4
		if ch == 'U' {
			width = 8
		}
		start := p.pos + 2
		if start+width > len(p.input) {
			return 0, fmt.Errorf("incomplete unicode escape")
		}
		code, err := strconv.ParseUint(p.input[start:start+width], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid unicode escape: %w", err)
		}
		r := rune(code)
		if !utf8.ValidRune(r) {
			return 0, fmt.Errorf("invalid code point U+%X", code)
		}
		p.pos = start + width
		return r, nil
	}
	if !inString {
		return 0, fmt.Errorf("invalid escape '\\%c' in IRI", ch)
	}
	p.pos += 2
	switch ch {
	case 't':
		return '\t', nil
	case 'b':
		return '\b', nil
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 'f':
		return '\f', nil
	case '"', '\'', '\\':
		return rune(ch), nil
	}
	return 0, fmt.Errorf("invalid escape '\\%c'", ch)
}
