package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore resolves credentials from environment variables. The reference
// is upper-cased and non-alphanumerics become underscores, so a topology
// ref "db-failover/apne1" resolves from DB_FAILOVER_APNE1_USERNAME,
// DB_FAILOVER_APNE1_PASSWORD, DB_FAILOVER_APNE1_DATABASE and
// DB_FAILOVER_APNE1_SSLMODE. Used for local development and tests.
type EnvStore struct{}

// NewEnvStore creates a new environment-based secrets store.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// Get resolves credentials from environment variables for the given ref.
func (s *EnvStore) Get(_ context.Context, ref string) (*Credentials, error) {
	prefix := envPrefix(ref)

	creds := &Credentials{
		Username: os.Getenv(prefix + "_USERNAME"),
		Password: os.Getenv(prefix + "_PASSWORD"),
		Database: os.Getenv(prefix + "_DATABASE"),
		SSLMode:  os.Getenv(prefix + "_SSLMODE"),
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("env credentials for %s (prefix %s): %w", ref, prefix, err)
	}
	return creds, nil
}

// Put is not supported for EnvStore (read-only store).
func (s *EnvStore) Put(_ context.Context, _ string, _ *Credentials) error {
	return fmt.Errorf("EnvStore is read-only; credentials must be set via environment variables")
}

// Delete is not supported for EnvStore (read-only store).
func (s *EnvStore) Delete(_ context.Context, _ string) error {
	return fmt.Errorf("EnvStore is read-only; cannot delete credentials")
}

// List is not supported for EnvStore.
func (s *EnvStore) List(_ context.Context) ([]string, error) {
	return nil, fmt.Errorf("EnvStore does not support listing")
}

// envPrefix maps a credentials ref to an environment variable prefix.
func envPrefix(ref string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, ref)
	return strings.Trim(mapped, "_")
}

// Ensure EnvStore implements Store.
var _ Store = (*EnvStore)(nil)
