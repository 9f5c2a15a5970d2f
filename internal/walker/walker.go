// Package walker implements the recursive encrypt/decrypt engine over a
// configuration tree: per-stage branch handling, sentinel-tagged scalar
// encryption, and stage selection during render. Every transform is a
// pure rebuild; input nodes are never mutated.
package walker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rackerlabs/fleece/internal/document"
	"github.com/rackerlabs/fleece/internal/stage"
)

// stageMarker prefixes mapping keys that select a value by stage.
const stageMarker = "+"

// Cipher performs single-value encryption and decryption for a stage.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext, stage string) (string, error)
	Decrypt(ctx context.Context, ciphertextB64, stage string) (string, error)
}

// Walker walks configuration trees, encrypting and decrypting
// sentinel-tagged scalars through a Cipher.
type Walker struct {
	cipher Cipher
}

// New creates a Walker over the given cipher.
func New(cipher Cipher) *Walker {
	return &Walker{cipher: cipher}
}

// Encrypt returns a copy of the tree with every pending-encrypt scalar
// encrypted under its owning stage and re-tagged pending-decrypt. Values
// tagged for encryption outside any stage scope are left unchanged with
// a warning.
func (w *Walker) Encrypt(ctx context.Context, node *document.Node) (*document.Node, error) {
	return w.encryptNode(ctx, node, "", "")
}

// Decrypt returns a copy of the tree with every pending-decrypt scalar
// decrypted. With render set, per-stage mappings collapse to the branch
// matching stageName and decrypted values become plain; without it, all
// stages are kept and decrypted values are re-tagged pending-encrypt so
// the document can be imported again.
func (w *Walker) Decrypt(ctx context.Context, node *document.Node, stageName string, render bool) (*document.Node, error) {
	return w.decryptNode(ctx, node, stageName, "", render)
}

func (w *Walker) encryptNode(ctx context.Context, node *document.Node, stageName, path string) (*document.Node, error) {
	switch node.Kind {
	case document.KindMapping:
		return w.encryptMapping(ctx, node, stageName, path)

	case document.KindSequence:
		items := make([]*document.Node, 0, len(node.Items))
		for _, item := range node.Items {
			out, err := w.encryptNode(ctx, item, stageName, path+"[]")
			if err != nil {
				return nil, err
			}
			items = append(items, out)
		}
		return document.NewSequence(items...), nil

	default:
		if node.State != document.PendingEncrypt || !node.IsString() {
			return copyScalar(node), nil
		}
		if stageName == "" {
			log.Warn().Str("key", path).Msg("value cannot be encrypted because it does not belong to a stage")
			return copyScalar(node), nil
		}
		ciphertext, err := w.cipher.Encrypt(ctx, node.Value, stageName)
		if err != nil {
			return nil, err
		}
		out := document.NewScalar(ciphertext)
		out.State = document.PendingDecrypt
		return out, nil
	}
}

func (w *Walker) encryptMapping(ctx context.Context, node *document.Node, stageName, path string) (*document.Node, error) {
	perStage, err := checkMarkers(node, path)
	if err != nil {
		return nil, err
	}

	pairs := make([]document.Pair, 0, len(node.Pairs))
	for _, p := range node.Pairs {
		childStage := stageName
		if perStage {
			childStage = strings.TrimPrefix(p.Key, stageMarker)
		}
		out, err := w.encryptNode(ctx, p.Value, childStage, childPath(path, p.Key))
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, document.Pair{Key: p.Key, Value: out})
	}
	return document.NewMapping(pairs...), nil
}

func (w *Walker) decryptNode(ctx context.Context, node *document.Node, stageName, path string, render bool) (*document.Node, error) {
	switch node.Kind {
	case document.KindMapping:
		return w.decryptMapping(ctx, node, stageName, path, render)

	case document.KindSequence:
		items := make([]*document.Node, 0, len(node.Items))
		for _, item := range node.Items {
			out, err := w.decryptNode(ctx, item, stageName, path+"[]", render)
			if err != nil {
				return nil, err
			}
			items = append(items, out)
		}
		return document.NewSequence(items...), nil

	default:
		if node.State != document.PendingDecrypt || !node.IsString() {
			return copyScalar(node), nil
		}
		plaintext, err := w.cipher.Decrypt(ctx, node.Value, stageName)
		if err != nil {
			return nil, err
		}
		out := document.NewScalar(plaintext)
		out.State = document.Plain
		if !render {
			// Re-tag so a later import rolls the value forward into a
			// fresh encryption pass.
			out.State = document.PendingEncrypt
		}
		return out, nil
	}
}

func (w *Walker) decryptMapping(ctx context.Context, node *document.Node, stageName, path string, render bool) (*document.Node, error) {
	if len(node.Pairs) == 0 {
		return document.NewMapping(), nil
	}

	perStage, err := checkMarkers(node, path)
	if err != nil {
		return nil, err
	}

	if perStage && render {
		branch := selectBranch(node, stageName)
		if branch == nil {
			return nil, fmt.Errorf("key %q has no value for stage %q", path, stageName)
		}
		return w.decryptNode(ctx, branch, stageName, path, render)
	}

	pairs := make([]document.Pair, 0, len(node.Pairs))
	for _, p := range node.Pairs {
		childStage := stageName
		if perStage {
			childStage = strings.TrimPrefix(p.Key, stageMarker)
		}
		out, err := w.decryptNode(ctx, p.Value, childStage, childPath(path, p.Key), render)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, document.Pair{Key: p.Key, Value: out})
	}
	return document.NewMapping(pairs...), nil
}

// selectBranch picks the per-stage branch for a target stage: an exact
// selector match wins, otherwise the first pattern selector whose regex
// fully matches the stage name.
func selectBranch(node *document.Node, stageName string) *document.Node {
	for _, p := range node.Pairs {
		if strings.TrimPrefix(p.Key, stageMarker) == stageName {
			return p.Value
		}
	}
	for _, p := range node.Pairs {
		selector := strings.TrimPrefix(p.Key, stageMarker)
		if stage.IsPattern(selector) && stage.Matches(selector, stageName) {
			return p.Value
		}
	}
	return nil
}

// checkMarkers reports whether a mapping is per-stage. Mixing stage and
// non-stage keys in one mapping is a hard error.
func checkMarkers(node *document.Node, path string) (bool, error) {
	marked := 0
	for _, p := range node.Pairs {
		if strings.HasPrefix(p.Key, stageMarker) {
			marked++
		}
	}
	if marked == 0 {
		return false, nil
	}
	if marked != len(node.Pairs) {
		keys := make([]string, 0, len(node.Pairs))
		for _, p := range node.Pairs {
			keys = append(keys, p.Key)
		}
		return false, fmt.Errorf("keys %q have a mix of stage and non-stage variables at %q",
			strings.Join(keys, ", "), displayPath(path))
	}
	return true, nil
}

// childPath extends a dotted key path with a mapping key.
func childPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func displayPath(path string) string {
	if path == "" {
		return "."
	}
	return path
}

func copyScalar(node *document.Node) *document.Node {
	out := *node
	return &out
}
