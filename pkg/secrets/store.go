// Package secrets provides a unified interface for resolving database
// credentials across different backends (env, SSM, Vault).
package secrets

import (
	"context"
	"fmt"
)

// Credentials holds the database login material for one region. Topology
// entries carry only a credentials reference; this is what it resolves to.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode,omitempty"`
}

// Validate checks the minimum fields needed to build a DSN.
func (c *Credentials) Validate() error {
	if c.Username == "" {
		return fmt.Errorf("credentials missing username")
	}
	if c.Database == "" {
		return fmt.Errorf("credentials missing database")
	}
	return nil
}

// Store defines operations for resolving and managing region credentials.
type Store interface {
	// Get resolves credentials by reference.
	Get(ctx context.Context, ref string) (*Credentials, error)

	// Put stores credentials under a reference.
	Put(ctx context.Context, ref string, creds *Credentials) error

	// Delete removes credentials.
	Delete(ctx context.Context, ref string) error

	// List returns all credential references under the store's prefix.
	List(ctx context.Context) ([]string, error)
}
