package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TermType represents the type of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
	TermTypeDefaultGraph

	// TermTypeVariable only appears in search patterns, never in stored quads.
	TermTypeVariable
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "NamedNode"
	case TermTypeBlankNode:
		return "BlankNode"
	case TermTypeLiteral:
		return "Literal"
	case TermTypeDefaultGraph:
		return "DefaultGraph"
	case TermTypeVariable:
		return "Variable"
	default:
		return "TermType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Term represents an RDF term (IRI, blank node, literal, default graph or variable)
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return "<" + escapeIRI(n.IRI) + ">"
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return "_:" + b.ID
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal.
// A nil Datatype means xsd:string, or rdf:langString when Language is set.
type Literal struct {
	Value    string
	Language string
	Datatype *NamedNode
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: language}
}

func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

// DatatypeIRI returns the effective datatype IRI of the literal.
func (l *Literal) DatatypeIRI() string {
	if l.Language != "" {
		return RDFLangString.IRI
	}
	if l.Datatype == nil {
		return XSDString.IRI
	}
	return l.Datatype.IRI
}

func (l *Literal) String() string {
	result := `"` + escapeLiteral(l.Value) + `"`
	if l.Language != "" {
		result += "@" + l.Language
	} else if l.Datatype != nil && l.Datatype.IRI != XSDString.IRI {
		result += "^^" + l.Datatype.String()
	}
	return result
}

// Equals compares value, language and effective datatype, so a plain literal
// equals the same value typed as xsd:string.
func (l *Literal) Equals(other Term) bool {
	ol, ok := other.(*Literal)
	if !ok {
		return false
	}
	return l.Value == ol.Value && l.Language == ol.Language && l.DatatypeIRI() == ol.DatatypeIRI()
}

// DefaultGraph represents the default graph
type DefaultGraph struct{}

func NewDefaultGraph() *DefaultGraph {
	return &DefaultGraph{}
}

func (d *DefaultGraph) Type() TermType {
	return TermTypeDefaultGraph
}

func (d *DefaultGraph) String() string {
	return "DEFAULT"
}

func (d *DefaultGraph) Equals(other Term) bool {
	_, ok := other.(*DefaultGraph)
	return ok
}

// Variable is a named placeholder used in search stages.
type Variable struct {
	Name string
}

func NewVariable(name string) *Variable {
	return &Variable{Name: name}
}

func (v *Variable) Type() TermType {
	return TermTypeVariable
}

func (v *Variable) String() string {
	return "?" + v.Name
}

func (v *Variable) Equals(other Term) bool {
	if ov, ok := other.(*Variable); ok {
		return v.Name == ov.Name
	}
	return false
}

// Role identifies one of the four positions of a quad.
type Role int

const (
	Subject Role = iota
	Predicate
	Object
	Graph
)

// Roles lists the quad roles in canonical order.
var Roles = [4]Role{Subject, Predicate, Object, Graph}

func (r Role) String() string {
	switch r {
	case Subject:
		return "subject"
	case Predicate:
		return "predicate"
	case Object:
		return "object"
	case Graph:
		return "graph"
	default:
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
}

// Initial returns the upper-case initial used in index names.
func (r Role) Initial() byte {
	return strings.ToUpper(r.String())[0]
}

// ParseRole accepts a role name or its initial, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "s", "subject":
		return Subject, nil
	case "p", "predicate":
		return Predicate, nil
	case "o", "object":
		return Object, nil
	case "g", "graph":
		return Graph, nil
	}
	return 0, fmt.Errorf("unknown quad role %q", s)
}

// Quad represents an RDF quad (subject, predicate, object, graph)
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

// NewQuad creates a quad; a nil graph means the default graph.
func NewQuad(subject, predicate, object, graph Term) *Quad {
	if graph == nil {
		graph = NewDefaultGraph()
	}
	return &Quad{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		Graph:     graph,
	}
}

// Get returns the term at the given role.
func (q *Quad) Get(r Role) Term {
	switch r {
	case Subject:
		return q.Subject
	case Predicate:
		return q.Predicate
	case Object:
		return q.Object
	case Graph:
		return q.Graph
	}
	return nil
}

// Set replaces the term at the given role.
func (q *Quad) Set(r Role, t Term) {
	switch r {
	case Subject:
		q.Subject = t
	case Predicate:
		q.Predicate = t
	case Object:
		q.Object = t
	case Graph:
		q.Graph = t
	}
}

func (q *Quad) Equals(other *Quad) bool {
	if other == nil {
		return false
	}
	for _, r := range Roles {
		a, b := q.Get(r), other.Get(r)
		if a == nil || b == nil {
			if a != b {
				return false
			}
			continue
		}
		if !a.Equals(b) {
			return false
		}
	}
	return true
}

func (q *Quad) String() string {
	return fmt.Sprintf("%s %s %s %s .", q.Subject, q.Predicate, q.Object, q.Graph)
}

// Helper functions for common XSD datatypes
var (
	XSDString   = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")
	XSDInteger  = NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")
	XSDDecimal  = NewNamedNode("http://www.w3.org/2001/XMLSchema#decimal")
	XSDDouble   = NewNamedNode("http://www.w3.org/2001/XMLSchema#double")
	XSDFloat    = NewNamedNode("http://www.w3.org/2001/XMLSchema#float")
	XSDBoolean  = NewNamedNode("http://www.w3.org/2001/XMLSchema#boolean")
	XSDDateTime = NewNamedNode("http://www.w3.org/2001/XMLSchema#dateTime")
	XSDDate     = NewNamedNode("http://www.w3.org/2001/XMLSchema#date")

	RDFLangString = NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString")
)

const xsdNamespace = "http://www.w3.org/2001/XMLSchema#"

var numericDatatypes = map[string]bool{
	xsdNamespace + "integer":            true,
	xsdNamespace + "decimal":            true,
	xsdNamespace + "double":             true,
	xsdNamespace + "float":              true,
	xsdNamespace + "long":               true,
	xsdNamespace + "int":                true,
	xsdNamespace + "short":              true,
	xsdNamespace + "byte":               true,
	xsdNamespace + "nonNegativeInteger": true,
	xsdNamespace + "nonPositiveInteger": true,
	xsdNamespace + "positiveInteger":    true,
	xsdNamespace + "negativeInteger":    true,
	xsdNamespace + "unsignedLong":       true,
	xsdNamespace + "unsignedInt":        true,
	xsdNamespace + "unsignedShort":      true,
	xsdNamespace + "unsignedByte":       true,
}

// IsNumericDatatype reports whether iri is one of the XSD numeric datatypes.
func IsNumericDatatype(iri string) bool {
	return numericDatatypes[iri]
}

func NewIntegerLiteral(value int64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatInt(value, 10), XSDInteger)
}

func NewDoubleLiteral(value float64) *Literal {
	return NewLiteralWithDatatype(strconv.FormatFloat(value, 'g', -1, 64), XSDDouble)
}

func NewBooleanLiteral(value bool) *Literal {
	return NewLiteralWithDatatype(strconv.FormatBool(value), XSDBoolean)
}

func NewDateTimeLiteral(value time.Time) *Literal {
	return NewLiteralWithDatatype(value.Format(time.RFC3339Nano), XSDDateTime)
}

func escapeLiteral(s string) string {
	if !strings.ContainsAny(s, "\"\\\n\r\t") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeIRI(s string) string {
	if !strings.ContainsAny(s, "<>\"{}|^`\\ ") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<', '>', '"', '{', '}', '|', '^', '`', '\\', ' ':
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
