// Package sqs enqueues finished sweep summaries for downstream consumers.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/reminder"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
	Endpoint string // optional override, e.g. LocalStack
}

// API is the subset of the SQS client the producer uses.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is the body written to the queue.
type Message struct {
	reminder.Summary
	EnqueuedAt int64 `json:"enqueued_at"`
}

// Producer sends sweep summaries to SQS.
type Producer struct {
	client   API
	queueURL string
	now      func() time.Time
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewProducerWithClient(client, cfg.QueueURL, logger), nil
}

func NewProducerWithClient(client API, queueURL string, logger *zap.Logger) *Producer {
	return &Producer{
		client:   client,
		queueURL: queueURL,
		now:      time.Now,
		logger:   logger,
	}
}

// PublishSweepReport enqueues the report summary and returns once SQS has
// accepted it.
func (p *Producer) PublishSweepReport(ctx context.Context, report *reminder.Report) error {
	_, err := p.Enqueue(ctx, report)
	return err
}

// Enqueue sends the summary of report and returns the SQS message ID.
func (p *Producer) Enqueue(ctx context.Context, report *reminder.Report) (string, error) {
	msg := Message{
		Summary:    report.Summary(),
		EnqueuedAt: p.now().UnixNano(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"sweep_date": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Date),
			},
		},
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send message to sqs",
			zap.Error(err),
			zap.String("sweep_id", msg.SweepID),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return aws.ToString(result.MessageId), nil
}
