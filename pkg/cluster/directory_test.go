package cluster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const topologyYAML = `
regions:
  - id: ap-northeast-1
    endpoint: db-apne1.internal:5432
    credentials_ref: db-failover/apne1
    role: primary
  - id: us-east-1
    endpoint: db-use1.internal:5432
    credentials_ref: db-failover/use1
    role: secondary
`

func TestFileDirectory_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topology.yaml")
	if err := os.WriteFile(path, []byte(topologyYAML), 0o600); err != nil {
		t.Fatalf("failed to write topology file: %v", err)
	}

	regions, err := NewFileDirectory(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(regions) != 2 {
		t.Fatalf("len(regions) = %d, want 2", len(regions))
	}
	if regions[0].ID != "ap-northeast-1" || regions[0].Role != RolePrimary {
		t.Errorf("unexpected first region: %+v", regions[0])
	}
	if regions[1].CredentialsRef != "db-failover/use1" {
		t.Errorf("CredentialsRef = %s, want db-failover/use1", regions[1].CredentialsRef)
	}
	if regions[0].Health != HealthUnknown {
		t.Errorf("initial health = %s, want unknown", regions[0].Health)
	}
}

func TestFileDirectory_LoadMissingFile(t *testing.T) {
	_, err := NewFileDirectory("/nonexistent/topology.yaml").Load(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseTopology_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", "regions: []"},
		{"bad yaml", "regions: ["},
		{"bad role", "regions:\n  - id: us-east-1\n    endpoint: db:5432\n    role: observer"},
		{"bad endpoint", "regions:\n  - id: us-east-1\n    endpoint: no-port\n    role: primary"},
		{"bad region id", "regions:\n  - id: US_EAST\n    endpoint: db:5432\n    role: primary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseTopology([]byte(tt.doc)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

type mockSSMClient struct {
	getFunc func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return m.getFunc(ctx, params, optFns...)
}

func TestSSMDirectory_Load(t *testing.T) {
	client := &mockSSMClient{
		getFunc: func(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			if *params.Name != "/db-failover/topology" {
				t.Errorf("parameter name = %s", *params.Name)
			}
			return &ssm.GetParameterOutput{
				Parameter: &types.Parameter{Value: aws.String(topologyYAML)},
			}, nil
		},
	}

	regions, err := NewSSMDirectoryWithClient(client, "/db-failover/topology").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(regions) != 2 {
		t.Errorf("len(regions) = %d, want 2", len(regions))
	}
}

func TestSSMDirectory_EmptyParameter(t *testing.T) {
	client := &mockSSMClient{
		getFunc: func(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{}, nil
		},
	}

	if _, err := NewSSMDirectoryWithClient(client, "/db-failover/topology").Load(context.Background()); err == nil {
		t.Fatal("expected error for empty parameter")
	}
}
