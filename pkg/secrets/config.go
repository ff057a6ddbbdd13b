package secrets

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Backend constants for secrets backend selection.
const (
	BackendEnv   = "env"
	BackendSSM   = "ssm"
	BackendVault = "vault"
)

// Auth method constants for Vault.
const (
	AuthMethodAWS     = "aws"
	AuthMethodAppRole = "approle"
	AuthMethodToken   = "token"
)

// Default paths.
const (
	DefaultSSMPrefix    = "/db-failover/credentials"
	DefaultVaultKVMount = "secret"
	DefaultVaultPath    = "db-failover/credentials"
)

// Config holds configuration for the secrets backend.
type Config struct {
	Backend string // "env", "ssm", or "vault" (default: "env")
	SSM     SSMConfig
	Vault   VaultConfig
}

// SSMConfig holds SSM-specific configuration.
type SSMConfig struct {
	Prefix string // Parameter path prefix (default: "/db-failover/credentials")
}

// LoadConfig loads secrets configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Backend: getEnv("DB_FAILOVER_SECRETS_BACKEND", BackendEnv),
		SSM: SSMConfig{
			Prefix: getEnv("DB_FAILOVER_SSM_PREFIX", DefaultSSMPrefix),
		},
		Vault: VaultConfig{
			Address:         getEnv("VAULT_ADDR", ""),
			Namespace:       getEnv("VAULT_NAMESPACE", ""),
			KVMount:         getEnv("VAULT_KV_MOUNT", DefaultVaultKVMount),
			KVVersion:       getEnvInt("VAULT_KV_VERSION", 0),
			BasePath:        getEnv("VAULT_BASE_PATH", DefaultVaultPath),
			AuthMethod:      getEnv("VAULT_AUTH_METHOD", AuthMethodAWS),
			AWSRole:         getEnv("VAULT_AWS_ROLE", "db-failover"),
			AWSRegion:       getEnv("VAULT_AWS_REGION", os.Getenv("AWS_REGION")),
			AppRoleID:       getEnv("VAULT_APP_ROLE_ID", ""),
			AppRoleSecretID: getEnv("VAULT_APP_SECRET_ID", ""),
			Token:           getEnv("VAULT_TOKEN", ""),
		},
	}
}

// NewStore creates a secrets store based on configuration.
func NewStore(ctx context.Context, cfg Config, awsCfg aws.Config) (Store, error) {
	switch cfg.Backend {
	case BackendVault:
		return NewVaultStore(ctx, cfg.Vault)
	case BackendSSM:
		return NewSSMStore(awsCfg, cfg.SSM.Prefix), nil
	case BackendEnv, "":
		return NewEnvStore(), nil
	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", cfg.Backend)
	}
}

// Validate checks that the configuration is valid for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendVault:
		if c.Vault.Address == "" {
			return fmt.Errorf("VAULT_ADDR is required when using Vault backend")
		}
		return c.validateVaultAuth()
	case BackendSSM, BackendEnv, "":
		return nil
	default:
		return fmt.Errorf("DB_FAILOVER_SECRETS_BACKEND must be 'env', 'ssm', or 'vault', got %q", c.Backend)
	}
}

// validateVaultAuth checks that required auth parameters are configured.
func (c *Config) validateVaultAuth() error {
	switch c.Vault.AuthMethod {
	case AuthMethodAppRole:
		if c.Vault.AppRoleID == "" {
			return fmt.Errorf("VAULT_APP_ROLE_ID is required for AppRole auth")
		}
		if c.Vault.AppRoleSecretID == "" {
			return fmt.Errorf("VAULT_APP_SECRET_ID is required for AppRole auth")
		}
	case AuthMethodToken:
		if c.Vault.Token == "" && os.Getenv("VAULT_TOKEN") == "" {
			return fmt.Errorf("VAULT_TOKEN is required for token auth")
		}
	case AuthMethodAWS, "":
		// AWS auth uses IAM credentials automatically
	default:
		return fmt.Errorf("VAULT_AUTH_METHOD must be 'aws', 'approle', or 'token', got %q", c.Vault.AuthMethod)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}
