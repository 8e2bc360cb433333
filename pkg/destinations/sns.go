package destinations

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsClient defines the minimal subset of the SNS client used by awsSNSSender.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// awsSNSSender delivers topic-kind destinations through AWS SNS. The
// destination address is the topic ARN.
type awsSNSSender struct {
	client snsClient
	log    Logger
}

// newAWSSNSSender creates an SNS sender backed by a real client.
func newAWSSNSSender(ctx context.Context, opts AWSOptions, log Logger) (*awsSNSSender, error) {
	awsCfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &awsSNSSender{
		client: sns.NewFromConfig(awsCfg),
		log:    ensureLogger(log),
	}, nil
}

// Send publishes the message to the destination topic.
func (s *awsSNSSender) Send(ctx context.Context, d Destination, msg Message) (string, error) {
	input := &sns.PublishInput{
		TopicArn:          aws.String(d.Address),
		Message:           aws.String(string(msg.Body)),
		MessageAttributes: snsAttributes(msg.Attributes),
	}
	if msg.Subject != "" {
		input.Subject = aws.String(msg.Subject)
	}

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		s.log.ErrorObj("sns publish failed", "destination_sns_error", map[string]any{
			"destination": d.Name,
			"error":       err.Error(),
		})
		return "", fmt.Errorf("publish to sns: %w", err)
	}

	id := ""
	if out != nil {
		id = aws.ToString(out.MessageId)
	}
	s.log.DebugObj("sns delivered message", "destination_sns_delivery", map[string]any{
		"destination": d.Name,
		"message_id":  id,
	})
	return id, nil
}

func snsAttributes(attrs map[string]string) map[string]types.MessageAttributeValue {
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
