package propagate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrimaryKey is where applications read the current primary.
	DefaultPrimaryKey = "db-failover:primary"
	// DefaultPrimaryChannel notifies long-lived connection pools to re-read.
	DefaultPrimaryChannel = "db-failover:primary:updates"
)

// AppConfigStore announces the new primary through the shared Redis config
// store: a SET for readers that poll, a PUBLISH for readers that subscribe.
type AppConfigStore struct {
	client  *redis.Client
	key     string
	channel string
}

// NewAppConfigStoreWithClient creates a store with an existing client (for testing).
func NewAppConfigStoreWithClient(client *redis.Client, key, channel string) *AppConfigStore {
	if key == "" {
		key = DefaultPrimaryKey
	}
	if channel == "" {
		channel = DefaultPrimaryChannel
	}
	return &AppConfigStore{client: client, key: key, channel: channel}
}

// NewAppConfigStore connects to the config store at addr.
func NewAppConfigStore(addr, key, channel string) *AppConfigStore {
	return NewAppConfigStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), key, channel)
}

// Name identifies this channel in fan-out results and logs.
func (s *AppConfigStore) Name() string { return "appconfig" }

// Announce writes the announcement and publishes the update notification
// atomically.
func (s *AppConfigStore) Announce(ctx context.Context, a Announcement) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}

	// TxPipeline wraps in MULTI/EXEC so subscribers never observe the
	// notification before the key.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key, data, 0)
	pipe.Publish(ctx, s.channel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to announce primary: %w", err)
	}
	return nil
}

// Current reads the last announced primary, or nil when none was announced.
func (s *AppConfigStore) Current(ctx context.Context) (*Announcement, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read current primary: %w", err)
	}

	var a Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal announcement: %w", err)
	}
	return &a, nil
}

// Close closes the underlying client connection.
func (s *AppConfigStore) Close() error {
	return s.client.Close()
}

// Ensure AppConfigStore implements Announcer.
var _ Announcer = (*AppConfigStore)(nil)
