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

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/model"
)

// Ingestor records an inbound partner event in the inbox. inserted is false when the
// message id was already known.
type Ingestor interface {
	ReceiveInboundEvent(ctx context.Context, event model.CloudEvent) (inserted bool, err error)
}

// SQSConsumer long-polls one SQS queue carrying events from one partner source.
type SQSConsumer struct {
	client      sqsiface.SQSAPI
	queueURL    string
	source      string
	ingestor    Ingestor
	waitSeconds int64
	maxMessages int64
	newBackOff  func() backoff.BackOff
}

type Options struct {
	QueueURL    string
	Source      string
	WaitSeconds int64
	MaxMessages int64
}

// NewSession opens an AWS session for the given region and optional endpoint override.
func NewSession(region, endpoint string) (*session.Session, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint)
	}
	return session.NewSession(cfg)
}

func NewSQSConsumer(client sqsiface.SQSAPI, ingestor Ingestor, opts Options) *SQSConsumer {
	if opts.WaitSeconds <= 0 {
		opts.WaitSeconds = 20
	}
	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 10
	}
	return &SQSConsumer{
		client:      client,
		queueURL:    opts.QueueURL,
		source:      opts.Source,
		ingestor:    ingestor,
		waitSeconds: opts.WaitSeconds,
		maxMessages: opts.MaxMessages,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = time.Minute
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run polls until ctx is cancelled. Receive errors back off exponentially.
func (c *SQSConsumer) Run(ctx context.Context) {
	log := logrus.WithFields(logrus.Fields{"source": c.source, "queue_url": c.queueURL})
	log.Info("sqs consumer started")

	b := c.newBackOff()
	for {
		select {
		case <-ctx.Done():
			log.Info("sqs consumer stopped")
			return
		default:
		}

		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			wait := b.NextBackOff()
			log.WithError(err).WithField("retry_in", wait).Error("sqs receive failed")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
	}
}

// PollOnce receives one batch and records each message in the inbox. A message is
// deleted from SQS only once it is durably in the inbox. It returns the number of
// messages deleted.
func (c *SQSConsumer) PollOnce(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: aws.Int64(c.maxMessages),
		WaitTimeSeconds:     aws.Int64(c.waitSeconds),
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, msg := range out.Messages {
		log := logrus.WithFields(logrus.Fields{"source": c.source, "sqs_message_id": aws.StringValue(msg.MessageId)})

		event, err := c.decode(aws.StringValue(msg.Body))
		if err != nil {
			// left for the queue's redrive policy
			log.WithError(err).Error("undecodable inbound message")
			continue
		}

		inserted, err := c.ingestor.ReceiveInboundEvent(ctx, event)
		if err != nil {
			log.WithError(err).WithField("message_id", event.ID).Error("inbox insert failed")
			continue
		}
		if !inserted {
			log.WithField("message_id", event.ID).Info("duplicate inbound message")
		}

		if _, err := c.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.WithError(err).Warn("sqs delete failed, message will be redelivered")
			continue
		}
		deleted++
	}
	return deleted, nil
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// decode accepts a raw CloudEvent or one wrapped in an SNS notification.
func (c *SQSConsumer) decode(body string) (model.CloudEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = env.Message
	}

	var event model.CloudEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return event, err
	}
	if event.ID == "" {
		return event, errors.New("inbound event has no id")
	}
	if event.Source == "" {
		event.Source = c.source
	}
	return event, nil
}
