// Package render serializes a resolved configuration tree for delivery:
// plain YAML or JSON text, a chunk-encrypted JSON array, or a generated
// source module embedding the encrypted chunks.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/rackerlabs/fleece/internal/document"
	"github.com/rackerlabs/fleece/internal/walker"
)

// Format selects the textual serialization of a rendered tree.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// chunkSize bounds each encryption input; the KMS encrypt primitive
// caps plaintext size, so serialized documents are split before
// encryption.
const chunkSize = 4096

// Text serializes a resolved tree as YAML or indented JSON.
func Text(node *document.Node, format Format) (string, error) {
	switch format {
	case FormatJSON:
		out, err := document.MarshalJSON(node, 4)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		out, err := document.MarshalYAML(node)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

// EncryptChunks serializes the tree as compact JSON, splits the text at
// fixed-size boundaries, and encrypts each chunk independently under the
// stage's key. Chunk order is the concatenation order.
func EncryptChunks(ctx context.Context, cipher walker.Cipher, node *document.Node, stageName string) ([]string, error) {
	serialized, err := document.MarshalJSON(node, 0)
	if err != nil {
		return nil, err
	}

	text := string(serialized)
	chunks := make([]string, 0, len(text)/chunkSize+1)
	for len(text) > 0 {
		end := chunkSize
		if end > len(text) {
			end = len(text)
		}
		encrypted, err := cipher.Encrypt(ctx, text[:end], stageName)
		if err != nil {
			return nil, fmt.Errorf("encrypting rendered configuration: %w", err)
		}
		chunks = append(chunks, encrypted)
		text = text[end:]
	}
	return chunks, nil
}

// Data renders a chunk list as a JSON array of ciphertext strings.
func Data(chunks []string) (string, error) {
	items := make([]*document.Node, 0, len(chunks))
	for _, c := range chunks {
		items = append(items, document.NewScalar(c))
	}
	out, err := document.MarshalJSON(document.NewSequence(items...), 0)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// PythonModule renders a chunk list as a Python source module that
// decrypts the chunks in order, concatenates them, and parses the result
// at the consumer's runtime.
func PythonModule(chunks []string) string {
	quoted := make([]string, 0, len(chunks))
	for _, c := range chunks {
		quoted = append(quoted, "'"+c+"'")
	}
	return fmt.Sprintf(pythonStub, strings.Join(quoted, ", "))
}

const pythonStub = `ENCRYPTED_CONFIG = [%s]
import base64
import boto3
import json

def load_config():
    config_json = ''
    kms = boto3.client('kms')
    for buffer in ENCRYPTED_CONFIG:
        r = kms.decrypt(CiphertextBlob=base64.b64decode(buffer.encode(
            'utf-8')))
        config_json += r['Plaintext'].decode('utf-8')
    return json.loads(config_json)

CONFIG = load_config()
`
