package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMAPI defines SSM operations required by SSMStore.
type SSMAPI interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	DeleteParameter(ctx context.Context, params *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// SSMStore implements Store using AWS SSM Parameter Store.
type SSMStore struct {
	client SSMAPI
	prefix string
}

// NewSSMStore creates an SSM-backed secrets store.
func NewSSMStore(awsCfg aws.Config, prefix string) *SSMStore {
	if prefix == "" {
		prefix = DefaultSSMPrefix
	}
	return &SSMStore{
		client: ssm.NewFromConfig(awsCfg),
		prefix: prefix,
	}
}

// NewSSMStoreWithClient creates an SSM store with a custom client (for testing).
func NewSSMStoreWithClient(client SSMAPI, prefix string) *SSMStore {
	if prefix == "" {
		prefix = DefaultSSMPrefix
	}
	return &SSMStore{
		client: client,
		prefix: prefix,
	}
}

// Put stores credentials in SSM Parameter Store as SecureString.
func (s *SSMStore) Put(ctx context.Context, ref string, creds *Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	credsJSON, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	_, err = s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(s.parameterPath(ref)),
		Value:     aws.String(string(credsJSON)),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
		Tags: []types.Tag{
			{
				Key:   aws.String("db-failover:managed"),
				Value: aws.String("true"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store credentials in SSM: %w", err)
	}

	return nil
}

// Get retrieves credentials from SSM Parameter Store.
func (s *SSMStore) Get(ctx context.Context, ref string) (*Credentials, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.parameterPath(ref)),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credentials from SSM: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("credentials parameter for %s is empty", ref)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(*out.Parameter.Value), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials for %s: %w", ref, err)
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("stored credentials for %s: %w", ref, err)
	}

	return &creds, nil
}

// Delete removes credentials from SSM Parameter Store.
func (s *SSMStore) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteParameter(ctx, &ssm.DeleteParameterInput{
		Name: aws.String(s.parameterPath(ref)),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to delete credentials from SSM: %w", err)
	}
	return nil
}

// List returns all credential references under the store prefix.
func (s *SSMStore) List(ctx context.Context) ([]string, error) {
	var refs []string
	var nextToken *string

	for {
		out, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:      aws.String(s.prefix),
			Recursive: aws.Bool(true),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials from SSM: %w", err)
		}

		for _, p := range out.Parameters {
			if p.Name == nil {
				continue
			}
			refs = append(refs, strings.TrimPrefix(strings.TrimPrefix(*p.Name, s.prefix), "/"))
		}

		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}

	return refs, nil
}

// parameterPath builds the full SSM parameter name for a credentials ref.
func (s *SSMStore) parameterPath(ref string) string {
	return strings.TrimSuffix(s.prefix, "/") + "/" + strings.ReplaceAll(ref, "/", "-")
}

// Ensure SSMStore implements Store.
var _ Store = (*SSMStore)(nil)
