/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"

	"github.com/blnkfinance/grantflow/model"
)

// SNSPublisher publishes CloudEvents as raw JSON messages to SNS topics.
type SNSPublisher struct {
	client snsiface.SNSAPI
}

func NewSNSPublisher(region, endpoint string) (*SNSPublisher, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, err
	}
	return NewSNSPublisherWithClient(sns.New(sess)), nil
}

func NewSNSPublisherWithClient(client snsiface.SNSAPI) *SNSPublisher {
	return &SNSPublisher{client: client}
}

// Publish sends the event to the topic. FIFO topics are grouped by the event subject
// and deduplicated on the event id.
func (p *SNSPublisher) Publish(ctx context.Context, topicArn string, event model.CloudEvent) error {
	if topicArn == "" {
		return errors.New("sns publish: no topic arn for event type " + event.Type)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]*sns.MessageAttributeValue{
			"type":   {DataType: aws.String("String"), StringValue: aws.String(event.Type)},
			"source": {DataType: aws.String("String"), StringValue: aws.String(event.Source)},
		},
	}
	if strings.HasSuffix(topicArn, ".fifo") {
		group := event.Subject
		if group == "" {
			group = event.Type
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(event.ID)
	}

	_, err = p.client.PublishWithContext(ctx, input)
	return err
}

func (p *SNSPublisher) Close() error { return nil }
