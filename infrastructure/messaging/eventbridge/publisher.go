package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"qsportal-backend/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const eventSource = "qsportal.export"

// Publisher emits export lifecycle events to an EventBridge bus so downstream
// automation (cache consumers, notifications) can react to job transitions.
type Publisher struct {
	client  *eventbridge.Client
	busName string
	logger  *zap.Logger
}

// NewPublisher creates an EventBridge publisher for the given bus.
func NewPublisher(client *eventbridge.Client, busName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  client,
		busName: busName,
		logger:  logger,
	}
}

var _ ports.EventPublisher = (*Publisher)(nil)

// PublishJobEvent publishes one export lifecycle event. The jobID rides along
// in the detail payload next to the caller-provided fields.
func (p *Publisher) PublishJobEvent(ctx context.Context, eventType, jobID string, detail map[string]any) error {
	payload := make(map[string]any, len(detail)+2)
	for k, v := range detail {
		payload[k] = v
	}
	payload["jobId"] = jobID
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	detailJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(eventSource),
				DetailType:   aws.String(eventType),
				Detail:       aws.String(string(detailJSON)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	if out.FailedEntryCount > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				return fmt.Errorf("publish %s event: %s: %s",
					eventType, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	p.logger.Debug("Published job event",
		zap.String("eventType", eventType),
		zap.String("jobId", jobID),
	)
	return nil
}
