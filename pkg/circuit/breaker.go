// Package circuit implements a circuit breaker for repeated failover attempts.
package circuit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/Shavakan/db-failover/pkg/logging"
)

var circuitLog = logging.WithComponent(logging.LogTypeCircuit, "breaker")

const (
	// FailoverThreshold is the number of failover attempts before the circuit opens.
	FailoverThreshold = 3
	// TimeWindow is the window for counting failover attempts.
	TimeWindow = 1 * time.Hour
	// CooldownPeriod is how long the circuit stays open before auto-resetting.
	CooldownPeriod = 2 * time.Hour
)

// State represents the state of the circuit breaker.
type State string

const (
	// StateClosed means automatic failovers are allowed.
	StateClosed State = "closed"
	// StateOpen means automatic failovers are suppressed until an operator
	// resets the circuit or the cooldown expires. A flapping primary
	// otherwise drags the cluster through promotion after promotion.
	StateOpen State = "open"
)

// DynamoDBAPI defines DynamoDB operations for circuit breaker state.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Record represents circuit breaker state in DynamoDB.
type Record struct {
	ClusterID      string `dynamodbav:"cluster_id"`
	State          string `dynamodbav:"state"`
	AttemptCount   int    `dynamodbav:"attempt_count"`
	FirstAttemptAt string `dynamodbav:"first_attempt_at"`
	LastAttemptAt  string `dynamodbav:"last_attempt_at"`
	OpenedAt       string `dynamodbav:"opened_at"`
	AutoResetAt    string `dynamodbav:"auto_reset_at"`
	TTL            int64  `dynamodbav:"ttl"`
}

// Breaker suppresses automatic failovers when the cluster keeps flapping.
// State lives in DynamoDB so it survives controller restarts and is shared
// across standby instances.
type Breaker struct {
	dynamoClient DynamoDBAPI
	tableName    string
	clusterID    string
	mu           sync.RWMutex
	cached       *cachedState
}

type cachedState struct {
	state    State
	cachedAt time.Time
	cacheTTL time.Duration
}

// NewBreaker creates a circuit breaker for the named cluster.
func NewBreaker(cfg aws.Config, tableName, clusterID string) *Breaker {
	return NewBreakerWithClient(dynamodb.NewFromConfig(cfg), tableName, clusterID)
}

// NewBreakerWithClient creates a breaker with an existing client (for testing).
func NewBreakerWithClient(client DynamoDBAPI, tableName, clusterID string) *Breaker {
	if clusterID == "" {
		clusterID = "default"
	}
	return &Breaker{
		dynamoClient: client,
		tableName:    tableName,
		clusterID:    clusterID,
	}
}

// RecordAttempt records a failover attempt and opens the circuit once the
// threshold is crossed within the window.
func (b *Breaker) RecordAttempt(ctx context.Context) error {
	now := time.Now()

	record, err := b.getRecord(ctx)
	if err != nil {
		return fmt.Errorf("failed to get circuit record: %w", err)
	}

	if record == nil {
		record = &Record{
			ClusterID:      b.clusterID,
			State:          string(StateClosed),
			FirstAttemptAt: now.Format(time.RFC3339),
		}
	}

	var firstAttemptTime time.Time
	if record.FirstAttemptAt != "" {
		firstAttemptTime, _ = time.Parse(time.RFC3339, record.FirstAttemptAt)
	}

	// Reset count if outside the window.
	if !firstAttemptTime.IsZero() && now.Sub(firstAttemptTime) > TimeWindow {
		record.AttemptCount = 0
		record.FirstAttemptAt = now.Format(time.RFC3339)
	}

	record.AttemptCount++
	record.LastAttemptAt = now.Format(time.RFC3339)

	if record.AttemptCount >= FailoverThreshold && record.State == string(StateClosed) {
		record.State = string(StateOpen)
		record.OpenedAt = now.Format(time.RFC3339)
		record.AutoResetAt = now.Add(CooldownPeriod).Format(time.RFC3339)
		circuitLog.Warn("circuit breaker opened",
			slog.Int(logging.KeyCount, record.AttemptCount))
	}

	// TTL for DynamoDB cleanup, one hour after auto-reset.
	if record.AutoResetAt != "" {
		autoResetTime, _ := time.Parse(time.RFC3339, record.AutoResetAt)
		record.TTL = autoResetTime.Add(1 * time.Hour).Unix()
	}

	if err := b.putRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to save circuit record: %w", err)
	}

	b.mu.Lock()
	b.cached = nil
	b.mu.Unlock()

	return nil
}

// Check returns the current circuit state, auto-resetting an open circuit
// whose cooldown has expired.
func (b *Breaker) Check(ctx context.Context) (State, error) {
	b.mu.RLock()
	cached := b.cached
	b.mu.RUnlock()

	if cached != nil && time.Since(cached.cachedAt) < cached.cacheTTL {
		return cached.state, nil
	}

	record, err := b.getRecord(ctx)
	if err != nil {
		return StateClosed, fmt.Errorf("failed to get circuit record: %w", err)
	}

	if record == nil {
		return StateClosed, nil
	}

	state := State(record.State)

	if state == StateOpen && record.AutoResetAt != "" {
		autoResetTime, err := time.Parse(time.RFC3339, record.AutoResetAt)
		if err == nil && time.Now().After(autoResetTime) {
			state = StateClosed
			record.State = string(StateClosed)
			record.AttemptCount = 0
			record.FirstAttemptAt = ""
			record.LastAttemptAt = ""
			record.OpenedAt = ""
			record.AutoResetAt = ""

			if err := b.putRecord(ctx, record); err != nil {
				circuitLog.Error("circuit reset failed",
					slog.String(logging.KeyError, err.Error()))
			} else {
				circuitLog.Info("circuit breaker auto-reset")
			}
		}
	}

	b.mu.Lock()
	b.cached = &cachedState{
		state:    state,
		cachedAt: time.Now(),
		cacheTTL: 1 * time.Minute,
	}
	b.mu.Unlock()

	return state, nil
}

// Reset manually closes the circuit.
func (b *Breaker) Reset(ctx context.Context) error {
	record := &Record{
		ClusterID: b.clusterID,
		State:     string(StateClosed),
	}

	if err := b.putRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to reset circuit: %w", err)
	}

	b.mu.Lock()
	b.cached = nil
	b.mu.Unlock()

	circuitLog.Info("circuit breaker manually reset")
	return nil
}

func (b *Breaker) getRecord(ctx context.Context) (*Record, error) {
	key, err := attributevalue.MarshalMap(map[string]string{
		"cluster_id": b.clusterID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}

	output, err := b.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if output.Item == nil {
		return nil, nil
	}

	var record Record
	if err := attributevalue.UnmarshalMap(output.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &record, nil
}

func (b *Breaker) putRecord(ctx context.Context, record *Record) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = b.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}
