// Package sns announces finished reminder sweeps on an SNS topic.
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/reminder"
)

// EventSweepCompleted is the event attribute value for sweep summaries.
const EventSweepCompleted = "sweep.completed"

// API is the subset of the SNS client the publisher uses.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher handles SNS topic publishing of sweep summaries.
type Publisher struct {
	client   API
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates an SNS publisher for the given topic
func NewPublisher(ctx context.Context, topicARN string, logger *zap.Logger, optFns ...func(*config.LoadOptions) error) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewPublisherWithClient(sns.NewFromConfig(cfg), topicARN, logger), nil
}

// NewPublisherWithEndpoint points the SNS client at endpoint, used with
// AWS_ENDPOINT_URL for LocalStack.
func NewPublisherWithEndpoint(ctx context.Context, topicARN, endpoint, region string, logger *zap.Logger) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return NewPublisherWithClient(client, topicARN, logger), nil
}

func NewPublisherWithClient(client API, topicARN string, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, topicARN: topicARN, logger: logger}
}

// PublishSweepReport sends the report summary. Subscribers can filter on the
// "event" and "has_failures" attributes.
func (p *Publisher) PublishSweepReport(ctx context.Context, report *reminder.Report) error {
	summary := report.Summary()
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal sweep summary: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(fmt.Sprintf("Expiry reminders %s: %d sent, %d failed", summary.Date, summary.Sent, summary.Failed)),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventSweepCompleted),
			},
			"has_failures": {
				DataType:    aws.String("String"),
				StringValue: aws.String(strconv.FormatBool(summary.Failed > 0)),
			},
			"sweep_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(summary.SweepID),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	p.logger.Debug("sweep summary published",
		zap.String("sweep_id", summary.SweepID),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}
