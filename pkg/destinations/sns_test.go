package destinations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-456")}, nil
}

func TestAWSSNSSenderSendSuccess(t *testing.T) {
	client := &fakeSNSClient{}
	sender := &awsSNSSender{client: client, log: noopLogger{}}
	d := Destination{Name: "alerts", Kind: KindSNS, Address: "arn:aws:sns:us-east-1:1:alerts"}

	id, err := sender.Send(context.Background(), d, Message{
		Body:    []byte(`{"bucket_name":"photos"}`),
		Subject: "S3 Event: ObjectCreated:Put - photos",
		Attributes: map[string]string{
			"EventType": "ObjectCreated:Put",
		},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if id != "msg-456" {
		t.Fatalf("message id = %s", id)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.TopicArn); got != "arn:aws:sns:us-east-1:1:alerts" {
		t.Fatalf("TopicArn = %s", got)
	}
	if got := aws.ToString(client.input.Subject); got != "S3 Event: ObjectCreated:Put - photos" {
		t.Fatalf("Subject = %s", got)
	}
	attr, ok := client.input.MessageAttributes["EventType"]
	if !ok || attr.StringValue == nil || aws.ToString(attr.StringValue) != "ObjectCreated:Put" {
		t.Fatalf("EventType attribute missing or wrong: %#v", attr)
	}
	if client.input.Message == nil || !strings.Contains(aws.ToString(client.input.Message), `"bucket_name":"photos"`) {
		t.Fatalf("Message missing bucket_name: %s", aws.ToString(client.input.Message))
	}
}

func TestAWSSNSSenderNoSubjectOmitted(t *testing.T) {
	client := &fakeSNSClient{}
	sender := &awsSNSSender{client: client, log: noopLogger{}}
	d := Destination{Name: "alerts", Kind: KindSNS, Address: "arn:aws:sns:us-east-1:1:alerts"}

	if _, err := sender.Send(context.Background(), d, Message{Body: []byte("{}")}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if client.input.Subject != nil {
		t.Fatalf("empty subject should be omitted, got %q", aws.ToString(client.input.Subject))
	}
}

func TestAWSSNSSenderSendError(t *testing.T) {
	client := &fakeSNSClient{err: errors.New("boom")}
	sender := &awsSNSSender{client: client, log: noopLogger{}}
	d := Destination{Name: "alerts", Kind: KindSNS, Address: "arn:aws:sns:us-east-1:1:alerts"}

	if _, err := sender.Send(context.Background(), d, Message{Body: []byte("{}")}); err == nil {
		t.Fatalf("expected error from Send")
	}
}
