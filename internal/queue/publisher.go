// Package queue publishes recap page messages to SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"recaps/internal/types"
)

// SQSSender is the subset of *sqs.Client the publisher needs.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// PagePublisher sends one SQS message per recap page.
type PagePublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPagePublisher returns a publisher for the page queue.
func NewPagePublisher(client SQSSender, queueURL string, logger *slog.Logger) *PagePublisher {
	return &PagePublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishPage serializes msg and returns the SQS message id. The request id
// of ctx, or a fresh one, travels as the trace_id attribute so the consuming
// invocation logs under the same id.
func (p *PagePublisher) PublishPage(ctx context.Context, msg types.PageMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalEncoding, "failed to encode page message", err)
	}

	traceID := types.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}

	out, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"trace_id":  stringAttr(traceID),
			"report_id": {DataType: aws.String("Number"), StringValue: aws.String(strconv.FormatInt(msg.ReportID, 10))},
			"kind":      stringAttr(string(kindOrDefault(msg.Kind))),
		},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to publish page %d of report %d", msg.Offset, msg.ReportID), err)
	}

	id := aws.ToString(out.MessageId)
	p.logger.DebugContext(ctx, "page message sent",
		"report_id", msg.ReportID,
		"log_id", msg.LogID,
		"offset", msg.Offset,
		"message_id", id,
		"trace_id", traceID,
	)
	return id, nil
}

func stringAttr(v string) sqsTypes.MessageAttributeValue {
	return sqsTypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

func kindOrDefault(k types.ReportKind) types.ReportKind {
	if k == "" {
		return types.ReportKindStandard
	}
	return k
}
