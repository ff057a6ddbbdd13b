// Package config loads orchestrator configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	AWSRegion string

	// Cluster topology source. Either a local YAML file or an SSM
	// parameter holding the same document. SSM wins when both are set.
	TopologyFile     string
	TopologySSMParam string

	// Failure detection.
	PollInterval     time.Duration
	FailureThreshold int
	ProbeTimeout     time.Duration

	// Candidate selection.
	StalenessThreshold time.Duration

	// Promotion.
	DetachRetries   int
	DetachRetryWait time.Duration

	// Validation.
	ValidationTimeout time.Duration

	// Propagation targets.
	PrimaryRecordName string
	HostedZoneID      string
	DNSRecordTTL      int64
	AppConfigRedisAddr     string
	AppConfigRedisPassword string
	AppConfigRedisDB       int
	AppConfigKeyPrefix     string

	// Notification channels.
	WebhookURL    string
	PagerSNSTopic string

	// Audit trail.
	AuditTableName  string
	ArchiveBucket   string
	AuditRetention  time.Duration

	// Leader election.
	InstanceID         string
	CoordinatorEnabled bool
	LocksTableName     string

	// Failover circuit breaker.
	CircuitBreakerTable string

	// Infrastructure event intake.
	EventsQueueURL string

	// Credentials backend: env, ssm, or vault.
	SecretsBackend string
	SecretsPrefix  string
	VaultAddr      string
	VaultRole      string

	// Admin API.
	AdminListenAddr string
	AdminToken      string

	// Metrics backends.
	MetricsBackend   string
	StatsdAddr       string
	CloudWatchNamespace string

	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		AWSRegion:              getEnv("AWS_REGION", "ap-northeast-1"),
		TopologyFile:           getEnv("DB_FAILOVER_TOPOLOGY_FILE", ""),
		TopologySSMParam:       getEnv("DB_FAILOVER_TOPOLOGY_SSM_PARAM", ""),
		PollInterval:           getEnvDuration("DB_FAILOVER_POLL_INTERVAL", 30*time.Second),
		FailureThreshold:       getEnvInt("DB_FAILOVER_FAILURE_THRESHOLD", 3),
		ProbeTimeout:           getEnvDuration("DB_FAILOVER_PROBE_TIMEOUT", 5*time.Second),
		StalenessThreshold:     getEnvDuration("DB_FAILOVER_STALENESS_THRESHOLD", 300*time.Second),
		DetachRetries:          getEnvInt("DB_FAILOVER_DETACH_RETRIES", 5),
		DetachRetryWait:        getEnvDuration("DB_FAILOVER_DETACH_RETRY_WAIT", 3*time.Second),
		ValidationTimeout:      getEnvDuration("DB_FAILOVER_VALIDATION_TIMEOUT", 10*time.Second),
		PrimaryRecordName:      getEnv("DB_FAILOVER_PRIMARY_RECORD", ""),
		HostedZoneID:           getEnv("DB_FAILOVER_HOSTED_ZONE_ID", ""),
		DNSRecordTTL:           int64(getEnvInt("DB_FAILOVER_DNS_TTL", 60)),
		AppConfigRedisAddr:     getEnv("DB_FAILOVER_REDIS_ADDR", ""),
		AppConfigRedisPassword: getEnv("DB_FAILOVER_REDIS_PASSWORD", ""),
		AppConfigRedisDB:       getEnvInt("DB_FAILOVER_REDIS_DB", 0),
		AppConfigKeyPrefix:     getEnv("DB_FAILOVER_REDIS_KEY_PREFIX", "db-failover:"),
		WebhookURL:             getEnv("DB_FAILOVER_WEBHOOK_URL", ""),
		PagerSNSTopic:          getEnv("DB_FAILOVER_PAGER_SNS_TOPIC", ""),
		AuditTableName:         getEnv("DB_FAILOVER_AUDIT_TABLE", ""),
		ArchiveBucket:          getEnv("DB_FAILOVER_ARCHIVE_BUCKET", ""),
		AuditRetention:         getEnvDuration("DB_FAILOVER_AUDIT_RETENTION", 30*24*time.Hour),
		InstanceID:             getEnv("DB_FAILOVER_INSTANCE_ID", ""),
		CoordinatorEnabled:     getEnv("DB_FAILOVER_COORDINATOR_ENABLED", "false") == "true",
		LocksTableName:         getEnv("DB_FAILOVER_LOCKS_TABLE", ""),
		CircuitBreakerTable:    getEnv("DB_FAILOVER_CIRCUIT_BREAKER_TABLE", ""),
		EventsQueueURL:         getEnv("DB_FAILOVER_EVENTS_QUEUE_URL", ""),
		SecretsBackend:         getEnv("DB_FAILOVER_SECRETS_BACKEND", "env"),
		SecretsPrefix:          getEnv("DB_FAILOVER_SECRETS_PREFIX", ""),
		VaultAddr:              getEnv("VAULT_ADDR", ""),
		VaultRole:              getEnv("DB_FAILOVER_VAULT_ROLE", ""),
		AdminListenAddr:        getEnv("DB_FAILOVER_ADMIN_ADDR", ":8090"),
		AdminToken:             getEnv("DB_FAILOVER_ADMIN_TOKEN", ""),
		MetricsBackend:         getEnv("DB_FAILOVER_METRICS_BACKEND", "prometheus"),
		StatsdAddr:             getEnv("DB_FAILOVER_STATSD_ADDR", "127.0.0.1:8125"),
		CloudWatchNamespace:    getEnv("DB_FAILOVER_CLOUDWATCH_NAMESPACE", "DBFailover"),
		LogLevel:               getEnv("DB_FAILOVER_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TopologyFile == "" && c.TopologySSMParam == "" {
		return fmt.Errorf("DB_FAILOVER_TOPOLOGY_FILE or DB_FAILOVER_TOPOLOGY_SSM_PARAM is required")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("DB_FAILOVER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("DB_FAILOVER_POLL_INTERVAL must be positive")
	}
	if c.StalenessThreshold <= 0 {
		return fmt.Errorf("DB_FAILOVER_STALENESS_THRESHOLD must be positive")
	}
	if c.PrimaryRecordName != "" && c.HostedZoneID == "" {
		return fmt.Errorf("DB_FAILOVER_HOSTED_ZONE_ID is required when DB_FAILOVER_PRIMARY_RECORD is set")
	}
	if c.DNSRecordTTL <= 0 || c.DNSRecordTTL > 60 {
		return fmt.Errorf("DB_FAILOVER_DNS_TTL must be between 1 and 60 seconds")
	}
	switch c.SecretsBackend {
	case "env", "ssm", "vault":
	default:
		return fmt.Errorf("DB_FAILOVER_SECRETS_BACKEND must be env, ssm, or vault")
	}
	if c.CoordinatorEnabled && c.LocksTableName == "" {
		return fmt.Errorf("DB_FAILOVER_LOCKS_TABLE is required when coordinator is enabled")
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
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
