package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSender is the part of *sqs.Client the publisher uses.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher hands token events to the notification service's queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	types    map[string]bool
}

// NewSQSPublisher forwards only the given event types, or the token events
// when none are given.
func NewSQSPublisher(client SQSSender, queueURL string, eventTypes ...string) *SQSPublisher {
	if len(eventTypes) == 0 {
		eventTypes = []string{TypeTokenIssued, TypeTokenTransitioned}
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	return &SQSPublisher{client: client, queueURL: queueURL, types: types}
}

func (p *SQSPublisher) Publish(ctx context.Context, e Event) error {
	if !p.types[e.Type] {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(e.Type)},
			"doctor_id":  {DataType: aws.String("String"), StringValue: aws.String(e.DoctorID)},
		},
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}
