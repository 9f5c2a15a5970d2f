// Package kms performs single-value envelope encryption through AWS KMS
// using environment-scoped credentials resolved per stage.
package kms

import (
	"context"
	"encoding/base64"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/rackerlabs/fleece/internal/creds"
	"github.com/rackerlabs/fleece/internal/stage"
)

// API is the subset of the KMS client the gateway uses.
type API interface {
	Encrypt(ctx context.Context, params *awskms.EncryptInput, optFns ...func(*awskms.Options)) (*awskms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *awskms.DecryptInput, optFns ...func(*awskms.Options)) (*awskms.DecryptOutput, error)
}

// CryptoError wraps a failed remote encrypt or decrypt call. The gateway
// never retries; retry policy belongs to the transport layer.
type CryptoError struct {
	Op    string
	Stage string
	Err   error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s for stage %q: %v", e.Op, e.Stage, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// Gateway resolves a stage to its environment credentials and key, and
// performs exactly one KMS round trip per Encrypt or Decrypt call.
// Clients are memoized per environment.
type Gateway struct {
	stages  stage.Table
	clients map[string]API

	// newClient builds the client for one environment; the default
	// resolves credentials through the cache first.
	newClient func(ctx context.Context, environment string) (API, error)
}

// NewGateway creates a Gateway over a stage table and credential cache.
func NewGateway(stages stage.Table, cache *creds.Cache) *Gateway {
	return &Gateway{
		stages:  stages,
		clients: make(map[string]API),
		newClient: func(ctx context.Context, environment string) (API, error) {
			awsCreds, err := cache.Get(ctx, environment)
			if err != nil {
				return nil, err
			}
			return newKMSClient(ctx, awsCreds)
		},
	}
}

// NewGatewayWithClient creates a Gateway that uses the given client for
// every environment without resolving credentials. Intended for tests.
func NewGatewayWithClient(stages stage.Table, client API) *Gateway {
	return &Gateway{
		stages:  stages,
		clients: make(map[string]API),
		newClient: func(context.Context, string) (API, error) {
			return client, nil
		},
	}
}

// Encrypt encrypts plaintext under the stage's key and returns the
// ciphertext base64-encoded.
func (g *Gateway) Encrypt(ctx context.Context, plaintext, stageName string) (string, error) {
	key, err := g.stages.KMSKey(stageName)
	if err != nil {
		return "", err
	}

	client, err := g.clientFor(ctx, stageName)
	if err != nil {
		return "", err
	}

	out, err := client.Encrypt(ctx, &awskms.EncryptInput{
		KeyId:     &key,
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Stage: stageName, Err: err}
	}

	return base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil
}

// Decrypt decrypts a base64 ciphertext using the stage's environment
// credentials. KMS infers the key from the ciphertext itself.
func (g *Gateway) Decrypt(ctx context.Context, ciphertextB64, stageName string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext for stage %q: %w", stageName, err)
	}

	client, err := g.clientFor(ctx, stageName)
	if err != nil {
		return "", err
	}

	out, err := client.Decrypt(ctx, &awskms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Stage: stageName, Err: err}
	}

	return string(out.Plaintext), nil
}

// clientFor returns the memoized KMS client for the stage's environment,
// building one from freshly resolved credentials on first use.
func (g *Gateway) clientFor(ctx context.Context, stageName string) (API, error) {
	environment, err := g.stages.Environment(stageName)
	if err != nil {
		return nil, err
	}

	if client, ok := g.clients[environment]; ok {
		return client, nil
	}

	client, err := g.newClient(ctx, environment)
	if err != nil {
		return nil, err
	}

	g.clients[environment] = client
	return client, nil
}

// newKMSClient builds a real KMS client with static credentials; region
// and the rest of the client configuration come from the default chain.
func newKMSClient(ctx context.Context, c creds.AWSCredentials) (API, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return awskms.NewFromConfig(cfg), nil
}
