package parse

import (
	"encoding/xml"
	"strings"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

// OWLParser extracts ontology headers, classes, properties, and named
// individuals from an rdf:RDF document. Fragments come out grouped in
// that order, each group in document order.
type OWLParser struct{}

// NewOWLParser creates an OWL/RDF parser.
func NewOWLParser() *OWLParser { return &OWLParser{} }

func (p *OWLParser) ContentType() string { return "owl" }

func (p *OWLParser) CanParse(payload string) bool {
	trimmed := strings.TrimSpace(payload)
	return strings.HasPrefix(trimmed, "<") &&
		strings.Contains(trimmed, "rdf:RDF") &&
		strings.Contains(trimmed, "owl:")
}

// xmlNode is a generic element tree; the parser never binds to a fixed
// schema because ontology documents vary widely.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []xmlNode  `xml:",any"`
	Text    string     `xml:",chardata"`
}

var propertyElements = []string{
	"ObjectProperty",
	"DatatypeProperty",
	"AnnotationProperty",
	"FunctionalProperty",
	"InverseFunctionalProperty",
	"TransitiveProperty",
	"SymmetricProperty",
}

func (p *OWLParser) Parse(payload, resourceID string, metadata map[string]any) (*ParsedResource, error) {
	var root xmlNode
	if err := xml.Unmarshal([]byte(payload), &root); err != nil {
		return nil, kgerrors.Invalid("malformed XML: %v", err)
	}
	if root.XMLName.Local != "RDF" {
		return nil, kgerrors.Invalid("root element is %q, want rdf:RDF", root.XMLName.Local)
	}

	result := &ParsedResource{
		ResourceID:   resourceID,
		ResourceType: "owl",
		Metadata:     metadata,
		Fragments:    []ContentFragment{},
	}

	for _, node := range root.Nodes {
		if node.XMLName.Local == "Ontology" {
			p.emitOntology(result, node)
		}
	}
	for _, node := range root.Nodes {
		if node.XMLName.Local == "Class" {
			p.emitClass(result, node)
		}
	}
	for _, node := range root.Nodes {
		for _, elem := range propertyElements {
			if node.XMLName.Local == elem {
				p.emitProperty(result, node, elem)
				break
			}
		}
	}
	for _, node := range root.Nodes {
		if node.XMLName.Local == "NamedIndividual" {
			p.emitIndividual(result, node)
		}
	}

	return result, nil
}

func (p *OWLParser) emitOntology(result *ParsedResource, node xmlNode) {
	uri := attrValue(node, "about")
	label := firstNonEmpty(childText(node, "label"), localName(uri))
	comment := childText(node, "comment")
	version := childText(node, "versionInfo")

	var b strings.Builder
	b.WriteString("Ontology: " + label)
	if comment != "" {
		b.WriteString(". " + comment)
	}
	if version != "" {
		b.WriteString(" (version " + version + ")")
	}

	meta := map[string]any{"uri": uri, "label": label}
	if version != "" {
		meta["version"] = version
	}
	p.emit(result, ContentFragment{Content: b.String(), Type: "owl_ontology", Metadata: meta})
}

func (p *OWLParser) emitClass(result *ParsedResource, node xmlNode) {
	uri := attrValue(node, "about")
	name := firstNonEmpty(childText(node, "label"), localName(uri))
	definition := firstNonEmpty(childText(node, "definition"), childText(node, "comment"))
	parents := resourceLocalNames(node, "subClassOf")
	sameAs := resourceLocalNames(node, "sameAs")
	guid := childText(node, "guid")

	var b strings.Builder
	b.WriteString("Class: " + name)
	if definition != "" {
		b.WriteString(". " + definition)
	}
	if len(parents) > 0 {
		b.WriteString(". Subclass of: " + strings.Join(parents, ", "))
	}
	if len(sameAs) > 0 {
		b.WriteString(". Same as: " + strings.Join(sameAs, ", "))
	}

	meta := map[string]any{"uri": uri, "name": name}
	if len(parents) > 0 {
		meta["subclass_of"] = parents
	}
	if len(sameAs) > 0 {
		meta["same_as"] = sameAs
	}
	if guid != "" {
		meta["guid"] = guid
	}
	p.emit(result, ContentFragment{Content: b.String(), Type: "owl_class", Metadata: meta})
}

func (p *OWLParser) emitProperty(result *ParsedResource, node xmlNode, kind string) {
	uri := attrValue(node, "about")
	name := firstNonEmpty(childText(node, "label"), localName(uri))
	domain := resourceLocalNames(node, "domain")
	rng := resourceLocalNames(node, "range")

	var b strings.Builder
	b.WriteString("Property: " + name + " (" + kind + ")")
	if len(domain) > 0 {
		b.WriteString(". Domain: " + strings.Join(domain, ", "))
	}
	if len(rng) > 0 {
		b.WriteString(". Range: " + strings.Join(rng, ", "))
	}

	meta := map[string]any{"uri": uri, "name": name, "property_type": kind}
	if len(domain) > 0 {
		meta["domain"] = domain
	}
	if len(rng) > 0 {
		meta["range"] = rng
	}
	p.emit(result, ContentFragment{Content: b.String(), Type: "owl_property", Metadata: meta})
}

func (p *OWLParser) emitIndividual(result *ParsedResource, node xmlNode) {
	uri := attrValue(node, "about")
	name := firstNonEmpty(childText(node, "label"), localName(uri))
	types := resourceLocalNames(node, "type")

	var b strings.Builder
	b.WriteString("Individual: " + name)
	if len(types) > 0 {
		b.WriteString(". Types: " + strings.Join(types, ", "))
	}

	meta := map[string]any{"uri": uri, "name": name}
	if len(types) > 0 {
		meta["types"] = types
	}
	p.emit(result, ContentFragment{Content: b.String(), Type: "owl_individual", Metadata: meta})
}

func (p *OWLParser) emit(result *ParsedResource, f ContentFragment) {
	f.Order = len(result.Fragments)
	result.Fragments = append(result.Fragments, f)
}

// localName returns the substring after the last '/' or '#' of a URI.
func localName(uri string) string {
	if i := strings.LastIndexAny(uri, "/#"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

func attrValue(node xmlNode, local string) string {
	for _, a := range node.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func childText(node xmlNode, local string) string {
	for _, child := range node.Nodes {
		if child.XMLName.Local == local {
			return strings.TrimSpace(child.Text)
		}
	}
	return ""
}

// resourceLocalNames collects the rdf:resource targets of every child
// with the given local name, reduced to their local names.
func resourceLocalNames(node xmlNode, local string) []string {
	var names []string
	for _, child := range node.Nodes {
		if child.XMLName.Local != local {
			continue
		}
		target := attrValue(child, "resource")
		if target == "" {
			target = strings.TrimSpace(child.Text)
		}
		if target != "" {
			names = append(names, localName(target))
		}
	}
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Parser = (*OWLParser)(nil)
