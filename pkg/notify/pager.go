package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI defines the SNS operations used by the pager channel.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PagerNotifier publishes to the on-call SNS topic. Only warning and
// critical notifications page; info-level traffic stays on the webhook.
type PagerNotifier struct {
	client   SNSAPI
	topicARN string
}

// NewPagerNotifier creates a pager channel for the given topic.
func NewPagerNotifier(cfg aws.Config, topicARN string) *PagerNotifier {
	return NewPagerNotifierWithClient(sns.NewFromConfig(cfg), topicARN)
}

// NewPagerNotifierWithClient creates a pager channel with an existing client (for testing).
func NewPagerNotifierWithClient(client SNSAPI, topicARN string) *PagerNotifier {
	return &PagerNotifier{client: client, topicARN: topicARN}
}

// Name identifies this channel in dispatch logs.
func (p *PagerNotifier) Name() string { return "pager" }

// Notify publishes the notification with a severity message attribute so
// subscriptions can filter.
func (p *PagerNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Severity == SeverityInfo {
		return nil
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(fmt.Sprintf("[db-failover] %s", n.Title)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"severity": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(n.Severity)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish page: %w", err)
	}
	return nil
}

// Ensure PagerNotifier implements Notifier.
var _ Notifier = (*PagerNotifier)(nil)
