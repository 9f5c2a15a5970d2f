package document

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	strTag   = "!!str"
	boolTag  = "!!bool"
	intTag   = "!!int"
	floatTag = "!!float"
	nullTag  = "!!null"
	mapTag   = "!!map"
	seqTag   = "!!seq"
)

// Document is one parsed configuration file: the stages section plus the
// arbitrary nested config section. Root keeps the full top-level mapping
// so export reproduces the file structure unchanged.
type Document struct {
	Root *Node
}

// Parse reads a configuration document from raw bytes, auto-detecting
// JSON versus YAML by the first non-whitespace byte. Both formats go
// through the YAML node API (JSON is a YAML subset), which preserves
// mapping order.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty configuration document")
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		if trimmed[0] == '{' {
			return nil, fmt.Errorf("parsing JSON document: %w", err)
		}
		return nil, fmt.Errorf("parsing YAML document: %w", err)
	}

	root, err := fromYAML(unwrapDocument(&raw))
	if err != nil {
		return nil, err
	}

	if root.Kind != KindMapping {
		return nil, fmt.Errorf("configuration document must be a mapping at the top level")
	}

	return &Document{Root: root}, nil
}

// Config returns the document's config section, or an empty mapping when
// absent.
func (d *Document) Config() *Node {
	if cfg := d.Root.Get("config"); cfg != nil {
		return cfg
	}
	return NewMapping()
}

// SetConfig replaces the config section in place, appending it when the
// document had none.
func (d *Document) SetConfig(cfg *Node) {
	for i, p := range d.Root.Pairs {
		if p.Key == "config" {
			d.Root.Pairs[i].Value = cfg
			return
		}
	}
	d.Root.Pairs = append(d.Root.Pairs, Pair{Key: "config", Value: cfg})
}

// StagesNode returns the raw stages section, or nil when absent.
func (d *Document) StagesNode() *Node {
	return d.Root.Get("stages")
}

// unwrapDocument steps through the synthetic document node yaml.Unmarshal
// wraps around the actual content.
func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

// fromYAML converts a yaml.Node subtree into the document tree,
// preserving mapping order and scalar tags.
func fromYAML(n *yaml.Node) (*Node, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == strTag || n.Tag == "" {
			return NewScalar(n.Value), nil
		}
		return &Node{Kind: KindScalar, Value: n.Value, Tag: n.Tag}, nil

	case yaml.MappingNode:
		pairs := make([]Pair, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("mapping keys must be scalars (line %d)", key.Line)
			}
			val, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, Pair{Key: key.Value, Value: val})
		}
		return NewMapping(pairs...), nil

	case yaml.SequenceNode:
		items := make([]*Node, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return NewSequence(items...), nil

	case yaml.AliasNode:
		return fromYAML(n.Alias)

	default:
		return nil, fmt.Errorf("unsupported YAML node kind %d (line %d)", n.Kind, n.Line)
	}
}

// toYAML converts a document tree back into a yaml.Node subtree for
// serialization.
func toYAML(n *Node) *yaml.Node {
	switch n.Kind {
	case KindMapping:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: mapTag}
		for _, p := range n.Pairs {
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: strTag, Value: p.Key}
			out.Content = append(out.Content, key, toYAML(p.Value))
		}
		return out

	case KindSequence:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: seqTag}
		for _, item := range n.Items {
			out.Content = append(out.Content, toYAML(item))
		}
		return out

	default:
		out := &yaml.Node{Kind: yaml.ScalarNode, Tag: n.Tag, Value: n.Wire()}
		if n.Tag == strTag && needsQuoting(out.Value) {
			out.Style = yaml.SingleQuotedStyle
		}
		return out
	}
}

// needsQuoting reports whether a string scalar would be re-parsed as a
// different type (or lose content) when emitted plain.
func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	var probe yaml.Node
	if err := yaml.Unmarshal([]byte(s), &probe); err != nil {
		return true
	}
	content := unwrapDocument(&probe)
	return content.Kind != yaml.ScalarNode || content.Tag != strTag ||
		strings.TrimSpace(s) != s
}

// MarshalYAML serializes a node tree as YAML with two-space indentation.
func MarshalYAML(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(n)); err != nil {
		return nil, fmt.Errorf("serializing YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("serializing YAML: %w", err)
	}
	return buf.Bytes(), nil
}
