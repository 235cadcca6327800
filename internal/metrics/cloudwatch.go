package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names published after each run
const (
	RecordsSent            = "RecordsSent"
	RecordsFailed          = "RecordsFailed"
	EnrichmentItemsWritten = "EnrichmentItemsWritten"
	EnrichmentItemsFailed  = "EnrichmentItemsFailed"
)

// CloudWatchClient defines the interface for CloudWatch operations
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher publishes run counters to CloudWatch
type CloudWatchPublisher struct {
	client    CloudWatchClient
	namespace string
}

// NewCloudWatchPublisher creates a new CloudWatchPublisher
func NewCloudWatchPublisher(client CloudWatchClient, namespace string) *CloudWatchPublisher {
	return &CloudWatchPublisher{
		client:    client,
		namespace: namespace,
	}
}

// Publish sends every counter in one PutMetricData call, dimensioned by container
func (p *CloudWatchPublisher) Publish(ctx context.Context, container string, counts map[string]int) error {
	dimensions := []types.Dimension{
		{Name: aws.String("Container"), Value: aws.String(container)},
	}

	data := make([]types.MetricDatum, 0, len(counts))
	for _, name := range []string{RecordsSent, RecordsFailed, EnrichmentItemsWritten, EnrichmentItemsFailed} {
		v, ok := counts[name]
		if !ok {
			continue
		}
		data = append(data, types.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       types.StandardUnitCount,
			Dimensions: dimensions,
		})
	}
	if len(data) == 0 {
		return nil
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}
	return nil
}
