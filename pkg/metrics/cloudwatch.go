package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchAPI provides CloudWatch operations.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher publishes metrics to AWS CloudWatch.
type CloudWatchPublisher struct {
	client    CloudWatchAPI
	namespace string
}

// Ensure CloudWatchPublisher implements Publisher.
var _ Publisher = (*CloudWatchPublisher)(nil)

// NewCloudWatchPublisher creates a CloudWatch metrics publisher.
func NewCloudWatchPublisher(cfg aws.Config) *CloudWatchPublisher {
	return NewCloudWatchPublisherWithNamespace(cfg, "DBFailover")
}

// NewCloudWatchPublisherWithNamespace creates a CloudWatch metrics publisher with custom namespace.
func NewCloudWatchPublisherWithNamespace(cfg aws.Config, namespace string) *CloudWatchPublisher {
	return &CloudWatchPublisher{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
	}
}

// NewCloudWatchPublisherWithClient creates a publisher with an existing client (for testing).
func NewCloudWatchPublisherWithClient(client CloudWatchAPI, namespace string) *CloudWatchPublisher {
	return &CloudWatchPublisher{client: client, namespace: namespace}
}

// Close implements Publisher.Close. CloudWatch client doesn't require cleanup.
func (p *CloudWatchPublisher) Close() error {
	return nil
}

// PublishProbeFailure publishes a failed probe metric with region dimension.
func (p *CloudWatchPublisher) PublishProbeFailure(ctx context.Context, regionID string) error {
	return p.putDimensionedMetric(ctx, "ProbeFailures", 1, types.StandardUnitCount, "Region", regionID)
}

// PublishRegionHealth publishes region health as a 0/1 metric with region dimension.
func (p *CloudWatchPublisher) PublishRegionHealth(ctx context.Context, regionID string, healthy bool) error {
	value := 0.0
	if healthy {
		value = 1.0
	}
	return p.putDimensionedMetric(ctx, "RegionHealthy", value, types.StandardUnitCount, "Region", regionID)
}

// PublishReplicationLag publishes replication lag with region dimension.
func (p *CloudWatchPublisher) PublishReplicationLag(ctx context.Context, regionID string, lagSeconds float64) error {
	return p.putDimensionedMetric(ctx, "ReplicationLag", lagSeconds, types.StandardUnitSeconds, "Region", regionID)
}

// PublishFailoverOutcome publishes a finished failover attempt with outcome dimension.
func (p *CloudWatchPublisher) PublishFailoverOutcome(ctx context.Context, outcome string) error {
	return p.putDimensionedMetric(ctx, "FailoverAttempts", 1, types.StandardUnitCount, "Outcome", outcome)
}

// PublishFailoverDuration publishes failover duration metric.
func (p *CloudWatchPublisher) PublishFailoverDuration(ctx context.Context, seconds float64) error {
	return p.putMetric(ctx, "FailoverDuration", seconds, types.StandardUnitSeconds)
}

// PublishGeneration publishes the cluster generation gauge.
func (p *CloudWatchPublisher) PublishGeneration(ctx context.Context, generation int64) error {
	return p.putGaugeMetric(ctx, "ClusterGeneration", float64(generation), types.StandardUnitCount)
}

// PublishLeadership publishes the controller lease status gauge.
func (p *CloudWatchPublisher) PublishLeadership(ctx context.Context, leading bool) error {
	value := 0.0
	if leading {
		value = 1.0
	}
	return p.putGaugeMetric(ctx, "ControllerLeader", value, types.StandardUnitCount)
}

// PublishCircuitBreakerTriggered publishes a suppressed attempt metric.
func (p *CloudWatchPublisher) PublishCircuitBreakerTriggered(ctx context.Context) error {
	return p.putMetric(ctx, "CircuitBreakerTriggered", 1, types.StandardUnitCount)
}

// PublishMarkersPruned publishes pruned marker count.
func (p *CloudWatchPublisher) PublishMarkersPruned(ctx context.Context, count int64) error {
	return p.putMetric(ctx, "ValidationMarkersPruned", float64(count), types.StandardUnitCount)
}

// PublishAuditRecordsArchived publishes archived audit record count.
func (p *CloudWatchPublisher) PublishAuditRecordsArchived(ctx context.Context, count int) error {
	return p.putMetric(ctx, "AuditRecordsArchived", float64(count), types.StandardUnitCount)
}

// PublishServiceCheck is a no-op for CloudWatch (Datadog-specific feature).
func (p *CloudWatchPublisher) PublishServiceCheck(_ context.Context, _ string, _ int, _ string) error { //nolint:revive
	return nil
}

// PublishEvent is a no-op for CloudWatch (Datadog-specific feature).
func (p *CloudWatchPublisher) PublishEvent(_ context.Context, _, _, _ string, _ []string) error { //nolint:revive
	return nil
}

func (p *CloudWatchPublisher) putMetric(ctx context.Context, name string, value float64, unit types.StandardUnit) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish metric %s: %w", name, err)
	}
	return nil
}

func (p *CloudWatchPublisher) putDimensionedMetric(ctx context.Context, name string, value float64, unit types.StandardUnit, dimName, dimValue string) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: []types.Dimension{
					{
						Name:  aws.String(dimName),
						Value: aws.String(dimValue),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish metric %s for %s: %w", name, dimValue, err)
	}
	return nil
}

func (p *CloudWatchPublisher) putGaugeMetric(ctx context.Context, name string, value float64, unit types.StandardUnit) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				StatisticValues: &types.StatisticSet{
					SampleCount: aws.Float64(1),
					Sum:         aws.Float64(value),
					Minimum:     aws.Float64(value),
					Maximum:     aws.Float64(value),
				},
				Unit:      unit,
				Timestamp: aws.Time(time.Now()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish metric %s: %w", name, err)
	}
	return nil
}
