package dbadmin

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/secrets"
)

// postgresClient implements Client against one region's Postgres endpoint.
type postgresClient struct {
	db *sql.DB
}

// NewPostgresClient wraps an open database handle as an admin client.
func NewPostgresClient(db *sql.DB) Client {
	return &postgresClient{db: db}
}

func (c *postgresClient) Ping(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("liveness query failed: %w", err)
	}
	return nil
}

func (c *postgresClient) ReplicationLagSeconds(ctx context.Context) (float64, error) {
	// NULL when the node has never replayed WAL (not a replica); treated
	// as unmeasurable by the caller.
	var lag sql.NullFloat64
	err := c.db.QueryRowContext(ctx,
		"SELECT EXTRACT(EPOCH FROM (now() - pg_last_xact_replay_timestamp()))").Scan(&lag)
	if err != nil {
		return 0, fmt.Errorf("lag query failed: %w", err)
	}
	if !lag.Valid {
		return 0, fmt.Errorf("replication lag metric unavailable")
	}
	if lag.Float64 < 0 {
		return 0, nil
	}
	return lag.Float64, nil
}

func (c *postgresClient) Detach(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "ALTER SYSTEM SET primary_conninfo = ''"); err != nil {
		return fmt.Errorf("failed to clear replication source: %w", err)
	}
	var reloaded bool
	if err := c.db.QueryRowContext(ctx, "SELECT pg_reload_conf()").Scan(&reloaded); err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	if !reloaded {
		return fmt.Errorf("configuration reload was rejected")
	}
	return nil
}

func (c *postgresClient) Detached(ctx context.Context) (bool, error) {
	var receivers int
	err := c.db.QueryRowContext(ctx, "SELECT count(*) FROM pg_stat_wal_receiver").Scan(&receivers)
	if err != nil {
		return false, fmt.Errorf("detach status query failed: %w", err)
	}
	return receivers == 0, nil
}

func (c *postgresClient) Promote(ctx context.Context) error {
	// pg_promote blocks until promotion completes or the wait expires;
	// it is the engine's atomic primitive, so there is no intermediate
	// state where two nodes both accept writes.
	var promoted bool
	err := c.db.QueryRowContext(ctx,
		"SELECT pg_promote(wait => true, wait_seconds => 30)").Scan(&promoted)
	if err != nil {
		return fmt.Errorf("promote call failed: %w", err)
	}
	if !promoted {
		return fmt.Errorf("promote did not complete within wait window")
	}
	return nil
}

func (c *postgresClient) WriteMarker(ctx context.Context, markerID string) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO failover_markers (marker_id, created_at) VALUES ($1, now())", markerID)
	if err != nil {
		return fmt.Errorf("marker write failed: %w", err)
	}
	return nil
}

func (c *postgresClient) PruneMarkers(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM failover_markers WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("marker prune failed: %w", err)
	}
	return res.RowsAffected()
}

func (c *postgresClient) Close() error {
	return c.db.Close()
}

// PostgresPool resolves credentials and caches one database handle per
// region endpoint. Handles survive across controller cycles; a topology
// change to a region's endpoint gets a fresh handle.
type PostgresPool struct {
	store secrets.Store

	mu      sync.Mutex
	clients map[string]*pooledClient
}

type pooledClient struct {
	endpoint string
	client   Client
}

// NewPostgresPool creates a connection pool backed by the credentials store.
func NewPostgresPool(store secrets.Store) *PostgresPool {
	return &PostgresPool{
		store:   store,
		clients: make(map[string]*pooledClient),
	}
}

// Client returns the admin client for a region, opening it on first use.
func (p *PostgresPool) Client(ctx context.Context, region cluster.Region) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.clients[region.ID]; ok && cached.endpoint == region.Endpoint {
		return cached.client, nil
	}

	creds, err := p.store.Get(ctx, region.CredentialsRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credentials for %s: %w", region.ID, err)
	}

	db, err := openPostgres(region.Endpoint, creds)
	if err != nil {
		return nil, err
	}

	if stale, ok := p.clients[region.ID]; ok {
		_ = stale.client.Close()
	}
	client := NewPostgresClient(db)
	p.clients[region.ID] = &pooledClient{endpoint: region.Endpoint, client: client}
	return client, nil
}

// Close releases all pooled handles.
func (p *PostgresPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		_ = c.client.Close()
	}
	p.clients = make(map[string]*pooledClient)
}

func openPostgres(endpoint string, creds *secrets.Credentials) (*sql.DB, error) {
	sslMode := creds.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.Username, creds.Password),
		Host:     endpoint,
		Path:     "/" + creds.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}

	db, err := sql.Open("postgres", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to %s: %w", endpoint, err)
	}

	// Admin traffic is a handful of scalar queries per cycle.
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Ensure PostgresPool implements Pool.
var _ Pool = (*PostgresPool)(nil)
