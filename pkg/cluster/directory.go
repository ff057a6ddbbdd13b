package cluster

import (
	"context"
	"fmt"
	"os"

	"github.com/Shavakan/db-failover/internal/validation"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"
)

// Directory is the read-only topology source, loaded at orchestrator
// startup and re-read at the top of every controller cycle so endpoint
// and credential-reference changes take effect without a restart.
type Directory interface {
	Load(ctx context.Context) ([]Region, error)
}

// topologyDoc is the YAML document shared by all directory backends.
type topologyDoc struct {
	Regions []struct {
		ID             string `yaml:"id"`
		Endpoint       string `yaml:"endpoint"`
		CredentialsRef string `yaml:"credentials_ref"`
		Role           string `yaml:"role"`
	} `yaml:"regions"`
}

func parseTopology(data []byte) ([]Region, error) {
	var doc topologyDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse topology document: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("topology document declares no regions")
	}

	regions := make([]Region, 0, len(doc.Regions))
	for _, r := range doc.Regions {
		if err := validation.ValidateRegionID(r.ID); err != nil {
			return nil, fmt.Errorf("invalid topology entry: %w", err)
		}
		if err := validation.ValidateEndpoint(r.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid topology entry %s: %w", r.ID, err)
		}
		role := Role(r.Role)
		if role != RolePrimary && role != RoleSecondary {
			return nil, fmt.Errorf("region %s has invalid role %q", r.ID, r.Role)
		}
		regions = append(regions, Region{
			ID:             r.ID,
			Endpoint:       r.Endpoint,
			CredentialsRef: r.CredentialsRef,
			Role:           role,
			Health:         HealthUnknown,
		})
	}
	return regions, nil
}

// FileDirectory reads topology from a local YAML file.
type FileDirectory struct {
	path string
}

// NewFileDirectory creates a file-backed topology source.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

// Load reads and parses the topology file.
func (d *FileDirectory) Load(_ context.Context) ([]Region, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}
	return parseTopology(data)
}

// SSMAPI defines the SSM operations required by SSMDirectory.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMDirectory reads topology from an SSM parameter holding the same YAML
// document as the file backend.
type SSMDirectory struct {
	client    SSMAPI
	parameter string
}

// NewSSMDirectory creates an SSM-backed topology source.
func NewSSMDirectory(awsCfg aws.Config, parameter string) *SSMDirectory {
	return &SSMDirectory{
		client:    ssm.NewFromConfig(awsCfg),
		parameter: parameter,
	}
}

// NewSSMDirectoryWithClient creates an SSM directory with a custom client (for testing).
func NewSSMDirectoryWithClient(client SSMAPI, parameter string) *SSMDirectory {
	return &SSMDirectory{client: client, parameter: parameter}
}

// Load fetches and parses the topology parameter.
func (d *SSMDirectory) Load(ctx context.Context) ([]Region, error) {
	out, err := d.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(d.parameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topology parameter: %w", err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("topology parameter %s is empty", d.parameter)
	}
	return parseTopology([]byte(*out.Parameter.Value))
}
