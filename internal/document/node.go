package document

import "strings"

// Sentinel prefixes marking a scalar's encryption state on the wire.
const (
	encryptPrefix = ":encrypt:"
	decryptPrefix = ":decrypt:"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	KindScalar Kind = iota
	KindMapping
	KindSequence
)

// ValueState tracks where a scalar sits in the encryption lifecycle.
// On the wire PendingEncrypt values carry the ":encrypt:" prefix and
// PendingDecrypt values carry ":decrypt:"; Plain values have neither.
type ValueState int

const (
	Plain ValueState = iota
	PendingEncrypt
	PendingDecrypt
)

// Pair is one ordered entry of a mapping node.
type Pair struct {
	Key   string
	Value *Node
}

// Node is one element of a configuration tree: a scalar, an ordered
// mapping, or a sequence. Scalars keep their YAML tag so non-string
// values (booleans, numbers) survive round trips and can be told apart
// from strings later.
type Node struct {
	Kind Kind

	// Scalar fields. Value holds the payload without any sentinel prefix.
	Value string
	State ValueState
	Tag   string

	// Mapping entries, in document order.
	Pairs []Pair

	// Sequence items.
	Items []*Node
}

// NewScalar builds a string scalar, splitting off a sentinel prefix into
// the node's state.
func NewScalar(raw string) *Node {
	n := &Node{Kind: KindScalar, Tag: strTag}
	switch {
	case strings.HasPrefix(raw, encryptPrefix):
		n.State = PendingEncrypt
		n.Value = raw[len(encryptPrefix):]
	case strings.HasPrefix(raw, decryptPrefix):
		n.State = PendingDecrypt
		n.Value = raw[len(decryptPrefix):]
	default:
		n.Value = raw
	}
	return n
}

// NewMapping builds a mapping node from ordered pairs.
func NewMapping(pairs ...Pair) *Node {
	return &Node{Kind: KindMapping, Pairs: pairs}
}

// NewSequence builds a sequence node.
func NewSequence(items ...*Node) *Node {
	return &Node{Kind: KindSequence, Items: items}
}

// Wire returns the scalar's serialized form, with the sentinel prefix
// reattached when the value is pending encryption or decryption.
func (n *Node) Wire() string {
	switch n.State {
	case PendingEncrypt:
		return encryptPrefix + n.Value
	case PendingDecrypt:
		return decryptPrefix + n.Value
	default:
		return n.Value
	}
}

// IsString reports whether a scalar node holds a string value.
func (n *Node) IsString() bool {
	return n.Kind == KindScalar && n.Tag == strTag
}

// Get returns the value for key in a mapping node, or nil when absent.
func (n *Node) Get(key string) *Node {
	for _, p := range n.Pairs {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// TypeName returns a human-readable name for the node's value type,
// used in validation error messages.
func (n *Node) TypeName() string {
	switch n.Kind {
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "list"
	}
	switch n.Tag {
	case strTag:
		return "string"
	case boolTag:
		return "bool"
	case intTag:
		return "int"
	case floatTag:
		return "float"
	case nullTag:
		return "null"
	default:
		return strings.TrimPrefix(n.Tag, "!!")
	}
}
