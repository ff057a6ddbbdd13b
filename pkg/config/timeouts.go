package config

import "time"

// Common timeout durations used throughout the application.
const (
	// ShortTimeout for quick operations (message deletion, lock release)
	ShortTimeout = 3 * time.Second

	// MessageReceiveTimeout for SQS long polling
	MessageReceiveTimeout = 25 * time.Second

	// PropagationTimeout bounds one propagation fan-out (config store + DNS)
	PropagationTimeout = 30 * time.Second

	// NotifyTimeout bounds one best-effort notification delivery
	NotifyTimeout = 5 * time.Second

	// CleanupTimeout for deferred cleanup operations
	CleanupTimeout = 5 * time.Second
)

// HTTP body size limits
const (
	// MaxBodySize is the maximum size for HTTP request bodies (1MB)
	MaxBodySize = 1 << 20 // 1 MB
)
