package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/warp/shop-engine/shop"
)

// SQSAPI is the part of the SQS client the forwarder uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Envelope is the message body sent to SQS.
type Envelope struct {
	Name    string     `json:"name"`
	Payload shop.Event `json:"payload"`
}

// SQSForwarder sends every event to an SQS queue.
type SQSForwarder struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSForwarder creates a new SQSForwarder.
func NewSQSForwarder(client SQSAPI, queueURL string) *SQSForwarder {
	return &SQSForwarder{
		Client:   client,
		QueueURL: queueURL,
	}
}

// NewSQSClient builds a client from the default AWS configuration chain.
func NewSQSClient(ctx context.Context) (*sqs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

// Register subscribes the forwarder to every event.
func (f *SQSForwarder) Register(b *Bus) {
	b.SubscribeAll(f.Handle)
}

// Handle marshals evt and sends it to the queue.
func (f *SQSForwarder) Handle(ctx context.Context, evt shop.Event) error {
	body, err := json.Marshal(Envelope{Name: evt.EventName(), Payload: evt})
	if err != nil {
		return fmt.Errorf("failed to marshal event for SQS: %w", err)
	}

	_, err = f.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.QueueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(evt.EventName()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}
	return nil
}
