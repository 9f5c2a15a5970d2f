// Package paramstore validates and flattens a resolved configuration
// tree into SSM parameter store entries and writes them as SecureString
// parameters.
package paramstore

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/rackerlabs/fleece/internal/creds"
	"github.com/rackerlabs/fleece/internal/document"
	"github.com/rackerlabs/fleece/internal/stage"
)

// Parameter store names allow a restricted character set.
var nameRE = regexp.MustCompile(`^/[a-zA-Z0-9_.\-/]*$`)

// maxDepth is the parameter store's documented hierarchy limit.
const maxDepth = 15

// Parameter is one flattened path/value pair.
type Parameter struct {
	Name  string
	Value string
}

// SSMAPI is the subset of the SSM client the writer uses.
type SSMAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// STSAPI is the subset of the STS client the writer uses.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// KMSAPI is the subset of the KMS client the writer uses.
type KMSAPI interface {
	DescribeKey(ctx context.Context, params *awskms.DescribeKeyInput, optFns ...func(*awskms.Options)) (*awskms.DescribeKeyOutput, error)
}

// Clients bundles the AWS clients a write needs.
type Clients struct {
	SSM SSMAPI
	STS STSAPI
	KMS KMSAPI
}

// Writer pushes a resolved tree to the parameter store for one stage's
// environment.
type Writer struct {
	stages stage.Table
	out    io.Writer

	// newClients builds the clients for one environment; the default
	// resolves credentials through the cache first.
	newClients func(ctx context.Context, environment string) (Clients, error)
}

// NewWriter creates a Writer; progress messages go to out.
func NewWriter(stages stage.Table, cache *creds.Cache, out io.Writer) *Writer {
	return &Writer{
		stages: stages,
		out:    out,
		newClients: func(ctx context.Context, environment string) (Clients, error) {
			awsCreds, err := cache.Get(ctx, environment)
			if err != nil {
				return Clients{}, err
			}
			return newAWSClients(ctx, awsCreds)
		},
	}
}

// NewWriterWithClients creates a Writer over fixed clients without
// resolving credentials. Intended for tests.
func NewWriterWithClients(stages stage.Table, out io.Writer, clients Clients) *Writer {
	return &Writer{
		stages: stages,
		out:    out,
		newClients: func(context.Context, string) (Clients, error) {
			return clients, nil
		},
	}
}

// Validate checks a resolved tree against parameter store constraints
// before any network call: a fully qualified prefix, the allowed name
// character set, the hierarchy depth limit, and string-or-mapping values
// only.
func Validate(prefix string, node *document.Node) error {
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("parameter store names must be fully qualified (start with a slash), so the given prefix %q is invalid", prefix)
	}
	return validate(prefix, node)
}

func validate(name string, node *document.Node) error {
	if strings.Count(name, "/") > maxDepth {
		return fmt.Errorf("error writing name %q: parameter store names allow for no more than %d levels of hierarchy", name, maxDepth)
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("invalid parameter name %q: parameter store names may consist of only symbols and letters (a-zA-Z0-9_.-/)", name)
	}

	switch {
	case node.Kind == document.KindMapping:
		for _, p := range node.Pairs {
			if err := validate(name+"/"+p.Key, p.Value); err != nil {
				return err
			}
		}
		return nil
	case node.IsString():
		return nil
	default:
		return fmt.Errorf("all config values must be strings or mappings to work with parameter store, can't handle %s of type %s", name, node.TypeName())
	}
}

// Flatten linearizes a validated tree into path/value pairs in document
// order.
func Flatten(prefix string, node *document.Node) []Parameter {
	var params []Parameter
	flatten(prefix, node, &params)
	return params
}

func flatten(name string, node *document.Node, out *[]Parameter) {
	if node.Kind == document.KindMapping {
		for _, p := range node.Pairs {
			flatten(name+"/"+p.Key, p.Value, out)
		}
		return
	}
	*out = append(*out, Parameter{Name: name, Value: node.Wire()})
}

// Write validates, flattens, and pushes the tree under the prefix to the
// stage's environment. An optional KMS key alias is resolved to its full
// key id once and reused for every put. Writes are sequential and
// fail-fast; a failure partway through leaves earlier parameters in
// place.
func (w *Writer) Write(ctx context.Context, stageName, prefix string, node *document.Node, ssmKMSKey string) error {
	if err := Validate(prefix, node); err != nil {
		return err
	}

	environment, err := w.stages.Environment(stageName)
	if err != nil {
		return err
	}

	clients, err := w.newClients(ctx, environment)
	if err != nil {
		return err
	}

	identity, err := clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("looking up caller identity: %w", err)
	}

	fmt.Fprintf(w.out, "Writing config with parameter store prefix %s to AWS account %s\n",
		prefix, aws.ToString(identity.Account))

	var keyID *string
	if ssmKMSKey != "" {
		described, err := clients.KMS.DescribeKey(ctx, &awskms.DescribeKeyInput{KeyId: &ssmKMSKey})
		if err != nil {
			return fmt.Errorf("resolving KMS key %q: %w", ssmKMSKey, err)
		}
		keyID = described.KeyMetadata.KeyId
	}

	for _, param := range Flatten(prefix, node) {
		fmt.Fprintf(w.out, "Writing %s...\n", param.Name)
		_, err := clients.SSM.PutParameter(ctx, &ssm.PutParameterInput{
			Name:      aws.String(param.Name),
			Value:     aws.String(param.Value),
			Type:      types.ParameterTypeSecureString,
			Overwrite: aws.Bool(true),
			KeyId:     keyID,
		})
		if err != nil {
			return fmt.Errorf("writing parameter %s: %w", param.Name, err)
		}
	}
	return nil
}

// newAWSClients builds real SSM, STS, and KMS clients from static
// credentials.
func newAWSClients(ctx context.Context, c creds.AWSCredentials) (Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		),
	)
	if err != nil {
		return Clients{}, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return Clients{
		SSM: ssm.NewFromConfig(cfg),
		STS: sts.NewFromConfig(cfg),
		KMS: awskms.NewFromConfig(cfg),
	}, nil
}
