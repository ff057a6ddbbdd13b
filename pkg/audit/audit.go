// Package audit persists failover events to DynamoDB and archives aged
// records to S3.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Shavakan/db-failover/pkg/cluster"
	"github.com/Shavakan/db-failover/pkg/logging"
)

var auditLog = logging.WithComponent(logging.LogTypeAudit, "dynamo")

// DynamoDBAPI defines DynamoDB operations for the audit store.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// eventRecord is the DynamoDB shape of one failover event.
// Primary key is event_id.
type eventRecord struct {
	EventID     string                         `dynamodbav:"event_id"`
	Trigger     string                         `dynamodbav:"trigger"`
	FromPrimary string                         `dynamodbav:"from_primary"`
	Target      string                         `dynamodbav:"target,omitempty"`
	Outcome     string                         `dynamodbav:"outcome"`
	Detail      string                         `dynamodbav:"detail,omitempty"`
	Generation  int64                          `dynamodbav:"generation"`
	Candidates  []cluster.CandidateObservation `dynamodbav:"candidates,omitempty"`
	StartedAt   string                         `dynamodbav:"started_at"`
	FinishedAt  string                         `dynamodbav:"finished_at"`
}

// Store records finalized failover events.
type Store struct {
	client DynamoDBAPI
	table  string
}

// NewStore creates an audit store for the given table.
func NewStore(cfg aws.Config, table string) *Store {
	return NewStoreWithClient(dynamodb.NewFromConfig(cfg), table)
}

// NewStoreWithClient creates a store with an existing client (for testing).
func NewStoreWithClient(client DynamoDBAPI, table string) *Store {
	return &Store{client: client, table: table}
}

// Record persists a finalized event. Events that are not yet finalized are
// rejected so partial attempts never enter the audit trail.
func (s *Store) Record(ctx context.Context, event *cluster.FailoverEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if !event.Finalized() {
		return fmt.Errorf("event %s has no terminal outcome", event.ID)
	}

	record := eventRecord{
		EventID:     event.ID,
		Trigger:     event.Trigger,
		FromPrimary: event.FromPrimary,
		Target:      event.Target,
		Outcome:     string(event.Outcome),
		Detail:      event.Detail,
		Generation:  event.Generation,
		Candidates:  event.Candidates,
		StartedAt:   event.StartedAt.Format(time.RFC3339Nano),
		FinishedAt:  event.FinishedAt.Format(time.RFC3339Nano),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to record failover event: %w", err)
	}
	return nil
}

// Event is the read-side view of a recorded failover.
type Event struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	FromPrimary string    `json:"from_primary"`
	Target      string    `json:"target,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	Generation  int64     `json:"generation"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Recent returns up to limit events, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}

	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit table: %w", err)
	}

	events := make([]Event, 0, len(out.Items))
	for _, item := range out.Items {
		var record eventRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			auditLog.Warn("skipping unreadable audit record",
				slog.String(logging.KeyError, err.Error()))
			continue
		}
		events = append(events, record.toEvent())
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].StartedAt.After(events[j].StartedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r eventRecord) toEvent() Event {
	started, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	finished, _ := time.Parse(time.RFC3339Nano, r.FinishedAt)
	return Event{
		ID:          r.EventID,
		Trigger:     r.Trigger,
		FromPrimary: r.FromPrimary,
		Target:      r.Target,
		Outcome:     r.Outcome,
		Detail:      r.Detail,
		Generation:  r.Generation,
		StartedAt:   started,
		FinishedAt:  finished,
	}
}

// olderThan returns records whose attempt finished before the cutoff,
// along with their raw keys for deletion.
func (s *Store) olderThan(ctx context.Context, cutoff time.Time) ([]eventRecord, error) {
	out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("finished_at < :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberS{Value: cutoff.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan aged audit records: %w", err)
	}

	records := make([]eventRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var record eventRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *Store) delete(ctx context.Context, eventID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"event_id": &types.AttributeValueMemberS{Value: eventID},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete audit record %s: %w", eventID, err)
	}
	return nil
}
