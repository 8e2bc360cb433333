package destinations

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsClient defines the minimal subset of the SQS client used by awsSQSSender.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// awsSQSSender delivers queue-kind destinations through AWS SQS. The
// destination address is the queue URL.
type awsSQSSender struct {
	client sqsClient
	log    Logger
}

// newAWSSQSSender creates an SQS sender backed by a real client.
func newAWSSQSSender(ctx context.Context, opts AWSOptions, log Logger) (*awsSQSSender, error) {
	awsCfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &awsSQSSender{
		client: sqs.NewFromConfig(awsCfg),
		log:    ensureLogger(log),
	}, nil
}

// Send publishes the message to the destination queue.
func (s *awsSQSSender) Send(ctx context.Context, d Destination, msg Message) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(d.Address),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: sqsAttributes(msg.Attributes),
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.log.ErrorObj("sqs send failed", "destination_sqs_error", map[string]any{
			"destination": d.Name,
			"error":       err.Error(),
		})
		return "", fmt.Errorf("send message to sqs: %w", err)
	}

	id := ""
	if out != nil {
		id = aws.ToString(out.MessageId)
	}
	s.log.DebugObj("sqs delivered message", "destination_sqs_delivery", map[string]any{
		"destination": d.Name,
		"message_id":  id,
	})
	return id, nil
}

func sqsAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		out[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	return out
}
