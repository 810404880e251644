package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

const (
	defaultMaxDepth = 10

	// Strings at or below this length are inlined in the parent
	// summary instead of becoming their own fragment.
	inlineStringLimit = 20

	objectPreviewCount = 5
	arrayPreviewCount  = 3
)

// JSONConfig holds JSON parser tuning.
type JSONConfig struct {
	MaxDepth      int
	IncludeArrays *bool
}

// JSONParser walks a JSON document depth-first and emits one fragment
// per object, array, and long string value. Fragment order follows the
// document's own key order, so decoding goes through the token stream
// rather than Go maps.
type JSONParser struct {
	maxDepth      int
	includeArrays bool
}

// NewJSONParser creates a JSON parser with defaults for zero fields.
func NewJSONParser(cfg JSONConfig) *JSONParser {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	includeArrays := true
	if cfg.IncludeArrays != nil {
		includeArrays = *cfg.IncludeArrays
	}
	return &JSONParser{maxDepth: cfg.MaxDepth, includeArrays: includeArrays}
}

func (p *JSONParser) ContentType() string { return "json" }

func (p *JSONParser) CanParse(payload string) bool {
	trimmed := strings.TrimSpace(payload)
	if trimmed == "" {
		return false
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return false
	}
	return json.Valid([]byte(trimmed))
}

func (p *JSONParser) Parse(payload, resourceID string, metadata map[string]any) (*ParsedResource, error) {
	root, err := decodeOrdered(payload)
	if err != nil {
		return nil, kgerrors.Invalid("malformed JSON: %v", err)
	}

	result := &ParsedResource{
		ResourceID:   resourceID,
		ResourceType: "json",
		Metadata:     metadata,
		Fragments:    []ContentFragment{},
	}
	p.walk(result, root, "root", "", 0)
	return result, nil
}

// jsonNode is an order-preserving JSON value. Object keys and values
// are parallel slices in document order.
type jsonNode struct {
	kind   string // object, array, string, number, bool, null
	str    string // string payload
	lit    string // literal rendering for number/bool/null
	keys   []string
	values []*jsonNode
	items  []*jsonNode
}

func decodeOrdered(payload string) (*jsonNode, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	node, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	// Trailing garbage after the document is malformed input.
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("unexpected content after top-level value")
	}
	return node, nil
}

func decodeValue(dec *json.Decoder) (*jsonNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			node := &jsonNode{kind: "object"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				value, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				node.keys = append(node.keys, key)
				node.values = append(node.values, value)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return node, nil
		case '[':
			node := &jsonNode{kind: "array"}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				node.items = append(node.items, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return node, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return &jsonNode{kind: "string", str: t}, nil
	case json.Number:
		return &jsonNode{kind: "number", lit: t.String()}, nil
	case bool:
		return &jsonNode{kind: "bool", lit: fmt.Sprintf("%t", t)}, nil
	case nil:
		return &jsonNode{kind: "null", lit: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// walk emits the fragment for node and recurses into its children.
// Recursion past maxDepth stops silently; parent summaries still count
// the elided children.
func (p *JSONParser) walk(result *ParsedResource, node *jsonNode, path, parentPath string, depth int) {
	if depth > p.maxDepth {
		return
	}

	switch node.kind {
	case "object":
		if len(node.keys) > 0 {
			p.emit(result, ContentFragment{
				Content:   objectSummary(node),
				Type:      "json_object",
				ParentKey: parentPath,
				Metadata: map[string]any{
					"path":           path,
					"property_count": len(node.keys),
					"depth":          depth,
				},
			})
		}
		for i, key := range node.keys {
			p.walkChild(result, node.values[i], path+"."+key, path, depth+1)
		}
	case "array":
		if p.includeArrays {
			p.emit(result, ContentFragment{
				Content:   arraySummary(node),
				Type:      "json_array",
				ParentKey: parentPath,
				Metadata: map[string]any{
					"path":         path,
					"array_length": len(node.items),
					"depth":        depth,
				},
			})
		}
		for i, item := range node.items {
			p.walkChild(result, item, fmt.Sprintf("%s[%d]", path, i), path, depth+1)
		}
	case "string":
		if len(node.str) > inlineStringLimit {
			p.emit(result, ContentFragment{
				Content:   node.str,
				Type:      "json_value",
				ParentKey: parentPath,
				Metadata: map[string]any{
					"path":       path,
					"value_type": "string",
					"length":     len(node.str),
				},
			})
		}
	}
}

// walkChild recurses only into values that can yield fragments:
// populated containers and long strings. Everything else is inlined in
// the parent summary.
func (p *JSONParser) walkChild(result *ParsedResource, node *jsonNode, path, parentPath string, depth int) {
	switch node.kind {
	case "object":
		if len(node.keys) > 0 {
			p.walk(result, node, path, parentPath, depth)
		}
	case "array":
		if len(node.items) > 0 {
			p.walk(result, node, path, parentPath, depth)
		}
	case "string":
		if len(node.str) > inlineStringLimit {
			p.walk(result, node, path, parentPath, depth)
		}
	}
}

func (p *JSONParser) emit(result *ParsedResource, f ContentFragment) {
	f.Order = len(result.Fragments)
	result.Fragments = append(result.Fragments, f)
}

func objectSummary(node *jsonNode) string {
	previews := make([]string, 0, objectPreviewCount+1)
	for i, key := range node.keys {
		if i == objectPreviewCount {
			previews = append(previews, fmt.Sprintf("... (%d more)", len(node.keys)-objectPreviewCount))
			break
		}
		previews = append(previews, key+": "+preview(node.values[i]))
	}
	return fmt.Sprintf("Object with %d properties: %s", len(node.keys), strings.Join(previews, ", "))
}

func arraySummary(node *jsonNode) string {
	if len(node.items) == 0 {
		return "Array with 0 items"
	}
	previews := make([]string, 0, arrayPreviewCount+1)
	for i, item := range node.items {
		if i == arrayPreviewCount {
			previews = append(previews, fmt.Sprintf("... (%d more)", len(node.items)-arrayPreviewCount))
			break
		}
		previews = append(previews, preview(item))
	}
	return fmt.Sprintf("Array with %d items: %s", len(node.items), strings.Join(previews, ", "))
}

func preview(node *jsonNode) string {
	switch node.kind {
	case "string":
		if len(node.str) > 30 {
			return node.str[:30] + "..."
		}
		return node.str
	case "object":
		return fmt.Sprintf("{%d properties}", len(node.keys))
	case "array":
		return fmt.Sprintf("[%d items]", len(node.items))
	default:
		return node.lit
	}
}

var _ Parser = (*JSONParser)(nil)
