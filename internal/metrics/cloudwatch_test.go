package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recaps/internal/types"
)

type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func newRecorder(cw *mockCloudWatchClient) *CloudWatchRecorder {
	return NewCloudWatchRecorder(cw, "Recaps", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecorder_PageProcessed(t *testing.T) {
	cw := &mockCloudWatchClient{}
	newRecorder(cw).PageProcessed(context.Background(), types.ReportKindYearInReview, 1500*time.Millisecond, 97, 3)

	require.Len(t, cw.calls, 1)
	in := cw.calls[0]
	assert.Equal(t, "Recaps", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 3)

	duration := in.MetricData[0]
	assert.Equal(t, MetricPageDuration, aws.ToString(duration.MetricName))
	assert.Equal(t, 1500.0, aws.ToFloat64(duration.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, duration.Unit)
	require.Len(t, duration.Dimensions, 1)
	assert.Equal(t, DimKind, aws.ToString(duration.Dimensions[0].Name))
	assert.Equal(t, "YEAR_IN_REVIEW", aws.ToString(duration.Dimensions[0].Value))

	assert.Equal(t, 100.0, aws.ToFloat64(in.MetricData[1].Value))
	assert.Equal(t, 3.0, aws.ToFloat64(in.MetricData[2].Value))
}

func TestRecorder_CountersDefaultKind(t *testing.T) {
	cw := &mockCloudWatchClient{}
	r := newRecorder(cw)
	ctx := context.Background()

	r.PagesDispatched(ctx, "", 3)
	r.PagePublishFailed(ctx, types.ReportKindStandard)
	r.ReportCompleted(ctx, types.ReportKindStandard)
	r.EmailsProcessed(ctx, 10, 2)

	require.Len(t, cw.calls, 4)
	assert.Equal(t, MetricPagesDispatched, aws.ToString(cw.calls[0].MetricData[0].MetricName))
	assert.Equal(t, "STANDARD", aws.ToString(cw.calls[0].MetricData[0].Dimensions[0].Value))
	assert.Equal(t, 3.0, aws.ToFloat64(cw.calls[0].MetricData[0].Value))
	assert.Equal(t, MetricPagePublishFailures, aws.ToString(cw.calls[1].MetricData[0].MetricName))
	assert.Equal(t, MetricReportsCompleted, aws.ToString(cw.calls[2].MetricData[0].MetricName))
	assert.Equal(t, MetricEmailsSent, aws.ToString(cw.calls[3].MetricData[0].MetricName))
	assert.Equal(t, 2.0, aws.ToFloat64(cw.calls[3].MetricData[1].Value))
}

func TestRecorder_SwallowsErrors(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	assert.NotPanics(t, func() {
		newRecorder(cw).ReportCompleted(context.Background(), types.ReportKindStandard)
	})
	assert.Len(t, cw.calls, 1)
}
