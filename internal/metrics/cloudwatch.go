// Package metrics publishes recap orchestration metrics to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"recaps/internal/recap"
	"recaps/internal/types"
)

// Metric names.
const (
	MetricPagesDispatched     = "PagesDispatched"
	MetricPagePublishFailures = "PagePublishFailures"
	MetricPageDuration        = "PageDuration"
	MetricMembersProcessed    = "MembersProcessed"
	MetricMemberErrors        = "MemberErrors"
	MetricReportsCompleted    = "ReportsCompleted"
	MetricEmailsSent          = "EmailsSent"
	MetricEmailFailures       = "EmailFailures"

	DimKind = "Kind"
)

// CloudWatchClient is the subset of *cloudwatch.Client the recorder needs.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ recap.Metrics = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder implements recap.Metrics. Publish failures are logged
// and never reach the caller.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder returns a recorder writing to namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchRecorder) PagesDispatched(ctx context.Context, kind types.ReportKind, n int) {
	m.put(ctx, counter(MetricPagesDispatched, kind, float64(n)))
}

func (m *CloudWatchRecorder) PagePublishFailed(ctx context.Context, kind types.ReportKind) {
	m.put(ctx, counter(MetricPagePublishFailures, kind, 1))
}

func (m *CloudWatchRecorder) PageProcessed(ctx context.Context, kind types.ReportKind, elapsed time.Duration, succeeded, failed int) {
	m.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricPageDuration),
			Value:      aws.Float64(float64(elapsed.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: kindDims(kind),
		},
		counter(MetricMembersProcessed, kind, float64(succeeded+failed)),
		counter(MetricMemberErrors, kind, float64(failed)),
	)
}

func (m *CloudWatchRecorder) ReportCompleted(ctx context.Context, kind types.ReportKind) {
	m.put(ctx, counter(MetricReportsCompleted, kind, 1))
}

func (m *CloudWatchRecorder) EmailsProcessed(ctx context.Context, sent, failed int) {
	m.put(ctx,
		cwtypes.MetricDatum{MetricName: aws.String(MetricEmailsSent), Value: aws.Float64(float64(sent)), Unit: cwtypes.StandardUnitCount},
		cwtypes.MetricDatum{MetricName: aws.String(MetricEmailFailures), Value: aws.Float64(float64(failed)), Unit: cwtypes.StandardUnitCount},
	)
}

func (m *CloudWatchRecorder) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics",
			"metric", aws.ToString(data[0].MetricName),
			"error", err,
		)
	}
}

func counter(name string, kind types.ReportKind, v float64) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(v),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: kindDims(kind),
	}
}

func kindDims(kind types.ReportKind) []cwtypes.Dimension {
	if kind == "" {
		kind = types.ReportKindStandard
	}
	return []cwtypes.Dimension{{Name: aws.String(DimKind), Value: aws.String(string(kind))}}
}
