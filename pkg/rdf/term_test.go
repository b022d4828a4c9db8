package rdf

import (
	"testing"
	"time"
)

func TestNamedNode(t *testing.T) {
	node := NewNamedNode("http://example.org/resource")
	if node.Type() != TermTypeNamedNode {
		t.Errorf("Expected TermTypeNamedNode, got %v", node.Type())
	}
	if got := node.String(); got != "<http://example.org/resource>" {
		t.Errorf("Expected <http://example.org/resource>, got %s", got)
	}
	if !node.Equals(NewNamedNode("http://example.org/resource")) {
		t.Error("Expected equal NamedNodes to be equal")
	}
	if node.Equals(NewNamedNode("http://example.org/different")) {
		t.Error("Expected different NamedNodes to not be equal")
	}
	if node.Equals(NewLiteral("http://example.org/resource")) {
		t.Error("NamedNode should not equal Literal")
	}
}

func TestNamedNode_StringEscapes(t *testing.T) {
	node := NewNamedNode("http://example.org/a b")
	if got := node.String(); got != `<http://example.org/a\u0020b>` {
		t.Errorf("Expected escaped space, got %s", got)
	}
}

func TestBlankNode(t *testing.T) {
	node := NewBlankNode("b1")
	if node.Type() != TermTypeBlankNode {
		t.Errorf("Expected TermTypeBlankNode, got %v", node.Type())
	}
	if node.String() != "_:b1" {
		t.Errorf("Expected _:b1, got %s", node.String())
	}
	if !node.Equals(NewBlankNode("b1")) || node.Equals(NewBlankNode("b2")) {
		t.Error("BlankNode equality is by label")
	}
}

func TestLiteral_String(t *testing.T) {
	tests := []struct {
		lit      *Literal
		expected string
	}{
		{NewLiteral("hello"), `"hello"`},
		{NewLiteral("say \"hi\"\n"), `"say \"hi\"\n"`},
		{NewLiteralWithLanguage("bonjour", "fr"), `"bonjour"@fr`},
		{NewLiteralWithDatatype("42", XSDInteger), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{NewLiteralWithDatatype("x", XSDString), `"x"`},
	}
	for _, tt := range tests {
		if got := tt.lit.String(); got != tt.expected {
			t.Errorf("Expected %s, got %s", tt.expected, got)
		}
	}
}

func TestLiteral_Equals(t *testing.T) {
	if !NewLiteral("a").Equals(NewLiteralWithDatatype("a", XSDString)) {
		t.Error("plain literal should equal its xsd:string form")
	}
	if NewLiteral("a").Equals(NewLiteralWithLanguage("a", "en")) {
		t.Error("language must be compared")
	}
	if NewIntegerLiteral(7).Equals(NewLiteralWithDatatype("7.0", XSDDouble)) {
		t.Error("numerically equal literals with different lexical forms are distinct terms")
	}
	if NewLiteral("a").Equals(NewNamedNode("a")) {
		t.Error("Literal should not equal NamedNode")
	}
}

func TestLiteral_DatatypeIRI(t *testing.T) {
	if got := NewLiteral("a").DatatypeIRI(); got != XSDString.IRI {
		t.Errorf("Expected xsd:string, got %s", got)
	}
	if got := NewLiteralWithLanguage("a", "en").DatatypeIRI(); got != RDFLangString.IRI {
		t.Errorf("Expected rdf:langString, got %s", got)
	}
	if got := NewIntegerLiteral(1).DatatypeIRI(); got != XSDInteger.IRI {
		t.Errorf("Expected xsd:integer, got %s", got)
	}
}

func TestDefaultGraph(t *testing.T) {
	g := NewDefaultGraph()
	if g.Type() != TermTypeDefaultGraph {
		t.Errorf("Expected TermTypeDefaultGraph, got %v", g.Type())
	}
	if g.String() != "DEFAULT" {
		t.Errorf("Expected DEFAULT, got %s", g.String())
	}
	if !g.Equals(NewDefaultGraph()) || g.Equals(NewNamedNode("")) {
		t.Error("DefaultGraph only equals DefaultGraph")
	}
}

func TestVariable(t *testing.T) {
	v := NewVariable("x")
	if v.Type() != TermTypeVariable {
		t.Errorf("Expected TermTypeVariable, got %v", v.Type())
	}
	if v.String() != "?x" {
		t.Errorf("Expected ?x, got %s", v.String())
	}
	if !v.Equals(NewVariable("x")) || v.Equals(NewVariable("y")) {
		t.Error("Variable equality is by name")
	}
}

func TestRoles(t *testing.T) {
	initials := ""
	for _, r := range Roles {
		initials += string(r.Initial())
		parsed, err := ParseRole(r.String())
		if err != nil || parsed != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.String(), parsed, err)
		}
		parsed, err = ParseRole(string(r.Initial()))
		if err != nil || parsed != r {
			t.Errorf("ParseRole(%q) = %v, %v", r.Initial(), parsed, err)
		}
	}
	if initials != "SPOG" {
		t.Errorf("Expected SPOG, got %s", initials)
	}
	if _, err := ParseRole("x"); err == nil {
		t.Error("Expected error for unknown role")
	}
}

func TestQuad(t *testing.T) {
	s := NewNamedNode("http://example.org/s")
	p := NewNamedNode("http://example.org/p")
	o := NewLiteral("o")

	q := NewQuad(s, p, o, nil)
	if q.Graph.Type() != TermTypeDefaultGraph {
		t.Errorf("nil graph should become the default graph, got %v", q.Graph.Type())
	}
	if q.Get(Subject) != s || q.Get(Predicate) != p || q.Get(Object) != o {
		t.Error("Get returned the wrong term")
	}

	g := NewNamedNode("http://example.org/g")
	q2 := &Quad{}
	for _, r := range Roles {
		q2.Set(r, q.Get(r))
	}
	if !q.Equals(q2) {
		t.Error("copied quad should be equal")
	}
	q2.Set(Graph, g)
	if q.Equals(q2) {
		t.Error("quads in different graphs should differ")
	}

	expected := `<http://example.org/s> <http://example.org/p> "o" <http://example.org/g> .`
	if q2.String() != expected {
		t.Errorf("Expected %s, got %s", expected, q2.String())
	}
}

func TestTypedLiteralHelpers(t *testing.T) {
	if lit := NewIntegerLiteral(-42); lit.Value != "-42" || lit.Datatype != XSDInteger {
		t.Errorf("unexpected integer literal %s", lit)
	}
	if lit := NewDoubleLiteral(2.5); lit.Value != "2.5" || lit.Datatype != XSDDouble {
		t.Errorf("unexpected double literal %s", lit)
	}
	if lit := NewBooleanLiteral(true); lit.Value != "true" || lit.Datatype != XSDBoolean {
		t.Errorf("unexpected boolean literal %s", lit)
	}
	ts := time.Date(2024, 3, 1, 10, 0, 0, 500, time.UTC)
	if lit := NewDateTimeLiteral(ts); lit.Value != "2024-03-01T10:00:00.0000005Z" || lit.Datatype != XSDDateTime {
		t.Errorf("unexpected dateTime literal %s", lit)
	}
}

func TestIsNumericDatatype(t *testing.T) {
	for _, dt := range []*NamedNode{XSDInteger, XSDDecimal, XSDDouble, XSDFloat} {
		if !IsNumericDatatype(dt.IRI) {
			t.Errorf("%s should be numeric", dt.IRI)
		}
	}
	for _, dt := range []*NamedNode{XSDString, XSDBoolean, XSDDateTime} {
		if IsNumericDatatype(dt.IRI) {
			t.Errorf("%s should not be numeric", dt.IRI)
		}
	}
}
