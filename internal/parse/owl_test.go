package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

const sampleOntology = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:rdfs="http://www.w3.org/2000/01/rdf-schema#"
         xmlns:owl="http://www.w3.org/2002/07/owl#"
         xmlns:skos="http://www.w3.org/2004/02/skos/core#">
  <owl:Class rdf:about="http://example.org/onto#Mammal">
    <rdfs:label>Mammal</rdfs:label>
    <skos:definition>A warm-blooded vertebrate animal.</skos:definition>
    <rdfs:subClassOf rdf:resource="http://example.org/onto#Animal"/>
    <owl:sameAs rdf:resource="http://other.org/taxa/Mammalia"/>
  </owl:Class>
  <owl:Ontology rdf:about="http://example.org/onto">
    <rdfs:label>Example Ontology</rdfs:label>
    <rdfs:comment>A small test ontology.</rdfs:comment>
    <owl:versionInfo>1.2</owl:versionInfo>
  </owl:Ontology>
  <owl:ObjectProperty rdf:about="http://example.org/onto#hasParent">
    <rdfs:label>has parent</rdfs:label>
    <rdfs:domain rdf:resource="http://example.org/onto#Animal"/>
    <rdfs:range rdf:resource="http://example.org/onto#Animal"/>
  </owl:ObjectProperty>
  <owl:NamedIndividual rdf:about="http://example.org/onto#Rex">
    <rdf:type rdf:resource="http://example.org/onto#Mammal"/>
  </owl:NamedIndividual>
  <owl:Class rdf:about="http://example.org/onto#Animal">
    <rdfs:comment>Any living creature.</rdfs:comment>
  </owl:Class>
  <owl:DatatypeProperty rdf:about="http://example.org/onto#age">
    <rdfs:domain rdf:resource="http://example.org/onto#Animal"/>
  </owl:DatatypeProperty>
</rdf:RDF>`

func TestOWLParserGroupsFragmentKinds(t *testing.T) {
	p := NewOWLParser()

	result, err := p.Parse(sampleOntology, "onto-1", nil)
	require.NoError(t, err)
	require.Len(t, result.Fragments, 6)

	// Kinds come out grouped: ontology, classes, properties, individuals,
	// regardless of document order.
	var types []string
	for i, f := range result.Fragments {
		assert.Equal(t, i, f.Order)
		types = append(types, f.Type)
	}
	assert.Equal(t, []string{
		"owl_ontology",
		"owl_class", "owl_class",
		"owl_property", "owl_property",
		"owl_individual",
	}, types)
}

func TestOWLParserOntologyHeader(t *testing.T) {
	p := NewOWLParser()

	result, err := p.Parse(sampleOntology, "onto-1", nil)
	require.NoError(t, err)

	onto := result.Fragments[0]
	assert.Contains(t, onto.Content, "Example Ontology")
	assert.Contains(t, onto.Content, "A small test ontology.")
	assert.Contains(t, onto.Content, "1.2")
	assert.Equal(t, "http://example.org/onto", onto.Metadata["uri"])
}

func TestOWLParserClassDetails(t *testing.T) {
	p := NewOWLParser()

	result, err := p.Parse(sampleOntology, "onto-1", nil)
	require.NoError(t, err)

	mammal := result.Fragments[1]
	assert.Equal(t, "owl_class", mammal.Type)
	assert.Contains(t, mammal.Content, "Mammal")
	// skos:definition wins over rdfs:comment.
	assert.Contains(t, mammal.Content, "warm-blooded")
	assert.Equal(t, []string{"Animal"}, mammal.Metadata["subclass_of"])
	assert.Equal(t, []string{"Mammalia"}, mammal.Metadata["same_as"])

	// The second class has no label and falls back to the local name,
	// and no skos:definition so the comment serves.
	animal := result.Fragments[2]
	assert.Equal(t, "Animal", animal.Metadata["name"])
	assert.Contains(t, animal.Content, "Any living creature.")
}

func TestOWLParserProperties(t *testing.T) {
	p := NewOWLParser()

	result, err := p.Parse(sampleOntology, "onto-1", nil)
	require.NoError(t, err)

	hasParent := result.Fragments[3]
	assert.Equal(t, "ObjectProperty", hasParent.Metadata["property_type"])
	assert.Equal(t, []string{"Animal"}, hasParent.Metadata["domain"])
	assert.Equal(t, []string{"Animal"}, hasParent.Metadata["range"])

	age := result.Fragments[4]
	assert.Equal(t, "DatatypeProperty", age.Metadata["property_type"])
	assert.Equal(t, "age", age.Metadata["name"])
}

func TestOWLParserIndividuals(t *testing.T) {
	p := NewOWLParser()

	result, err := p.Parse(sampleOntology, "onto-1", nil)
	require.NoError(t, err)

	rex := result.Fragments[5]
	assert.Equal(t, "owl_individual", rex.Type)
	assert.Equal(t, "Rex", rex.Metadata["name"])
	assert.Equal(t, []string{"Mammal"}, rex.Metadata["types"])
}

func TestOWLParserRejectsNonRDF(t *testing.T) {
	p := NewOWLParser()

	_, err := p.Parse(`<html><body>nope</body></html>`, "onto-1", nil)
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)

	_, err = p.Parse(`<rdf:RDF unclosed`, "onto-1", nil)
	require.ErrorIs(t, err, kgerrors.ErrInvalidInput)
}

func TestOWLParserCanParse(t *testing.T) {
	p := NewOWLParser()

	assert.True(t, p.CanParse(sampleOntology))
	assert.False(t, p.CanParse(`{"json": true}`))
	assert.False(t, p.CanParse("plain text without any markup"))
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "Mammal", localName("http://example.org/onto#Mammal"))
	assert.Equal(t, "Mammalia", localName("http://other.org/taxa/Mammalia"))
	assert.Equal(t, "bare", localName("bare"))
}

func TestRegistryAutoDetection(t *testing.T) {
	r := DefaultRegistry()

	p, err := r.Resolve("auto", sampleOntology)
	require.NoError(t, err)
	assert.Equal(t, "owl", p.ContentType())

	p, err = r.Resolve("auto", `{"user":{"name":"Alice","bio":"a reasonably long field"}}`)
	require.NoError(t, err)
	assert.Equal(t, "json", p.ContentType())

	p, err = r.Resolve("auto", "A plain paragraph of text that is long enough for the text parser.")
	require.NoError(t, err)
	assert.Equal(t, "text", p.ContentType())

	_, err = r.Resolve("auto", "x")
	require.ErrorIs(t, err, kgerrors.ErrParserNotApplicable)
}

func TestRegistryExplicitLookup(t *testing.T) {
	r := DefaultRegistry()

	p, err := r.Resolve("text", "A plain paragraph of text that is long enough for the text parser.")
	require.NoError(t, err)
	assert.Equal(t, "text", p.ContentType())

	_, err = r.Resolve("yaml", "key: value")
	require.ErrorIs(t, err, kgerrors.ErrNotFound)

	// A named parser that rejects the payload surfaces not-applicable.
	_, err = r.Resolve("json", "not json at all")
	require.ErrorIs(t, err, kgerrors.ErrParserNotApplicable)

	assert.Equal(t, []string{"owl", "json", "text"}, r.Types())
}
