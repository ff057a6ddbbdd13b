// Package events consumes EventBridge-style infrastructure notifications
// from SQS and folds them into the controller's health view. A scheduled
// maintenance notice marks a region degraded ahead of probe detection, so
// the controller stops considering it for promotion before the first
// probe fails.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/Shavakan/db-failover/pkg/logging"
)

var eventsLog = logging.WithComponent(logging.LogTypeEvents, "consumer")

// SQSAPI defines SQS operations for event intake.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// DegradedMarker receives degraded-region marks. The controller satisfies it.
type DegradedMarker interface {
	MarkDegraded(regionID string)
	ClearDegraded(regionID string)
}

// Notification detail types the consumer understands.
const (
	DetailTypeMaintenance = "DB Instance Maintenance Scheduled"
	DetailTypeStateChange = "DB Instance State-change Notification"
)

// Event is the EventBridge envelope as delivered through SQS.
type Event struct {
	Version    string          `json:"version"`
	ID         string          `json:"id"`
	DetailType string          `json:"detail-type"`
	Source     string          `json:"source"`
	Account    string          `json:"account"`
	Time       time.Time       `json:"time"`
	Region     string          `json:"region"`
	Resources  []string        `json:"resources"`
	Detail     json.RawMessage `json:"detail"`
}

// MaintenanceDetail announces a maintenance window for a database region.
type MaintenanceDetail struct {
	RegionID string `json:"region-id"`
	Action   string `json:"action"` // scheduled, completed, cancelled
}

// StateChangeDetail reports a database region availability change.
type StateChangeDetail struct {
	RegionID string `json:"region-id"`
	State    string `json:"state"` // available, unavailable
}

// Consumer polls the notification queue and applies degraded marks.
type Consumer struct {
	sqsClient SQSAPI
	queueURL  string
	marker    DegradedMarker
	interval  time.Duration
}

// NewConsumer creates an SQS consumer for the notification queue.
func NewConsumer(cfg aws.Config, queueURL string, marker DegradedMarker) *Consumer {
	return NewConsumerWithClient(sqs.NewFromConfig(cfg), queueURL, marker)
}

// NewConsumerWithClient creates a consumer with an existing client (for testing).
func NewConsumerWithClient(client SQSAPI, queueURL string, marker DegradedMarker) *Consumer {
	return &Consumer{
		sqsClient: client,
		queueURL:  queueURL,
		marker:    marker,
		interval:  1 * time.Second,
	}
}

// Run polls the queue until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	eventsLog.Info("event consumer started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			eventsLog.Info("event consumer stopped")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll drains one batch of messages with long polling.
func (c *Consumer) poll(ctx context.Context) {
	output, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		eventsLog.Warn("receive failed",
			slog.String(logging.KeyError, err.Error()))
		return
	}

	for _, msg := range output.Messages {
		c.processMessage(ctx, msg)
	}
}

// processMessage handles one notification. The message is deleted whether
// or not it parsed; a malformed notification redelivered forever helps
// nobody.
func (c *Consumer) processMessage(ctx context.Context, msg types.Message) {
	defer func() {
		_, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err != nil {
			eventsLog.Warn("delete failed",
				slog.String(logging.KeyError, err.Error()))
		}
	}()

	if msg.Body == nil {
		return
	}

	var event Event
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		eventsLog.Warn("unparseable notification",
			slog.String(logging.KeyError, err.Error()))
		return
	}

	switch event.DetailType {
	case DetailTypeMaintenance:
		c.handleMaintenance(event.Detail)
	case DetailTypeStateChange:
		c.handleStateChange(event.Detail)
	default:
		eventsLog.Debug("ignoring notification",
			slog.String("detail_type", event.DetailType))
	}
}

func (c *Consumer) handleMaintenance(detailRaw json.RawMessage) {
	var detail MaintenanceDetail
	if err := json.Unmarshal(detailRaw, &detail); err != nil {
		eventsLog.Warn("unparseable maintenance detail",
			slog.String(logging.KeyError, err.Error()))
		return
	}
	if detail.RegionID == "" {
		return
	}

	switch detail.Action {
	case "scheduled":
		eventsLog.Warn("maintenance scheduled",
			slog.String(logging.KeyRegion, detail.RegionID))
		c.marker.MarkDegraded(detail.RegionID)
	case "completed", "cancelled":
		eventsLog.Info("maintenance over",
			slog.String(logging.KeyRegion, detail.RegionID),
			slog.String(logging.KeyReason, detail.Action))
		c.marker.ClearDegraded(detail.RegionID)
	}
}

func (c *Consumer) handleStateChange(detailRaw json.RawMessage) {
	var detail StateChangeDetail
	if err := json.Unmarshal(detailRaw, &detail); err != nil {
		eventsLog.Warn("unparseable state-change detail",
			slog.String(logging.KeyError, err.Error()))
		return
	}
	if detail.RegionID == "" {
		return
	}

	switch detail.State {
	case "unavailable":
		eventsLog.Warn("region reported unavailable",
			slog.String(logging.KeyRegion, detail.RegionID))
		c.marker.MarkDegraded(detail.RegionID)
	case "available":
		eventsLog.Info("region reported available",
			slog.String(logging.KeyRegion, detail.RegionID))
		c.marker.ClearDegraded(detail.RegionID)
	}
}
