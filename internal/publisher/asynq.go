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

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	redis_db "github.com/blnkfinance/grantflow/internal/redis-db"
	"github.com/blnkfinance/grantflow/model"
)

// AsynqPublisher hands events to asynq queues on Redis. The asynq task type is the
// event type; the destination is the queue name.
type AsynqPublisher struct {
	client *asynq.Client
}

func NewAsynqPublisher(dns string, skipTLSVerify bool) (*AsynqPublisher, error) {
	opt, err := redis_db.AsynqClientOpt(dns, skipTLSVerify)
	if err != nil {
		return nil, err
	}
	return NewAsynqPublisherWithClient(asynq.NewClient(opt)), nil
}

func NewAsynqPublisherWithClient(client *asynq.Client) *AsynqPublisher {
	return &AsynqPublisher{client: client}
}

// Publish enqueues the event with its id as the task id, so a republish after a lost
// acknowledgement is absorbed by asynq.
func (p *AsynqPublisher) Publish(ctx context.Context, queue string, event model.CloudEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	task := asynq.NewTask(event.Type, payload,
		asynq.TaskID(event.ID),
		asynq.Queue(queue),
	)
	info, err := p.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithFields(logrus.Fields{"event_id": event.ID, "queue": queue}).Info("event already enqueued")
		return nil
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"event_id": event.ID, "queue": info.Queue, "type": event.Type}).Debug("event enqueued")
	return nil
}

func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}
