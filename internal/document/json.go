package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MarshalJSON serializes a node tree as JSON, preserving mapping order.
// A positive indent selects pretty output with that many spaces per
// level; zero selects compact output with no extraneous whitespace.
// The standard library cannot keep map key order, hence the hand-rolled
// writer.
func MarshalJSON(n *Node, indent int) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendJSON(&buf, n, indent, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func appendJSON(buf *bytes.Buffer, n *Node, indent, depth int) error {
	switch n.Kind {
	case KindMapping:
		return appendJSONMapping(buf, n, indent, depth)
	case KindSequence:
		return appendJSONSequence(buf, n, indent, depth)
	default:
		return appendJSONScalar(buf, n)
	}
}

func appendJSONMapping(buf *bytes.Buffer, n *Node, indent, depth int) error {
	if len(n.Pairs) == 0 {
		buf.WriteString("{}")
		return nil
	}

	buf.WriteByte('{')
	for i, p := range n.Pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, indent, depth+1)

		key, err := json.Marshal(p.Key)
		if err != nil {
			return fmt.Errorf("serializing key %q: %w", p.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		if indent > 0 {
			buf.WriteByte(' ')
		}

		if err := appendJSON(buf, p.Value, indent, depth+1); err != nil {
			return err
		}
	}
	newline(buf, indent, depth)
	buf.WriteByte('}')
	return nil
}

func appendJSONSequence(buf *bytes.Buffer, n *Node, indent, depth int) error {
	if len(n.Items) == 0 {
		buf.WriteString("[]")
		return nil
	}

	buf.WriteByte('[')
	for i, item := range n.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		newline(buf, indent, depth+1)
		if err := appendJSON(buf, item, indent, depth+1); err != nil {
			return err
		}
	}
	newline(buf, indent, depth)
	buf.WriteByte(']')
	return nil
}

func appendJSONScalar(buf *bytes.Buffer, n *Node) error {
	switch n.Tag {
	case strTag, "":
		quoted, err := json.Marshal(n.Wire())
		if err != nil {
			return fmt.Errorf("serializing value %q: %w", n.Value, err)
		}
		buf.Write(quoted)
	case nullTag:
		buf.WriteString("null")
	case boolTag:
		// YAML admits more boolean spellings than JSON does.
		if strings.EqualFold(n.Value, "true") {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	default:
		buf.WriteString(n.Value)
	}
	return nil
}

func newline(buf *bytes.Buffer, indent, depth int) {
	if indent == 0 {
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat(" ", indent*depth))
}
