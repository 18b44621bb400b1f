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

package grantflow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/internal/apierror"
	"github.com/blnkfinance/grantflow/internal/lock"
	"github.com/blnkfinance/grantflow/internal/notification"
	"github.com/blnkfinance/grantflow/internal/poller"
	"github.com/blnkfinance/grantflow/model"
)

var recordStatuses = map[string]bool{
	model.RecordPending:   true,
	model.RecordClaimed:   true,
	model.RecordCompleted: true,
	model.RecordFailed:    true,
}

func validateQueue(queue string) error {
	if queue != model.QueueOutbox && queue != model.QueueInbox {
		return apierror.APIError{Code: apierror.ErrBadRequest, Message: fmt.Sprintf("unknown queue %q", queue)}
	}
	return nil
}

// ListQueueRecords lists records of a queue, newest first. An empty status lists all.
func (g *Grantflow) ListQueueRecords(ctx context.Context, queue, status string, limit, offset int) ([]model.QueueRecord, error) {
	if err := validateQueue(queue); err != nil {
		return nil, err
	}
	if status != "" && !recordStatuses[status] {
		return nil, apierror.APIError{Code: apierror.ErrBadRequest, Message: fmt.Sprintf("unknown record status %q", status)}
	}
	return g.datasource.ListRecords(ctx, queue, status, limit, offset)
}

func (g *Grantflow) GetQueueRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) {
	if err := validateQueue(queue); err != nil {
		return nil, err
	}
	return g.datasource.GetRecord(ctx, queue, id)
}

// ResubmitQueueRecord puts a dead-lettered record back in the queue with a fresh
// attempt budget.
func (g *Grantflow) ResubmitQueueRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) {
	if err := validateQueue(queue); err != nil {
		return nil, err
	}
	record, err := g.datasource.ResubmitRecord(ctx, queue, id)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"queue": queue, "record_id": id}).Info("queue record resubmitted")
	return record, nil
}

// NewOutboxPoller builds the poller that publishes outbox records.
func (g *Grantflow) NewOutboxPoller(cfg *config.Configuration, locker lock.Locker) *poller.Poller {
	opts := pollerOptions(model.QueueOutbox, cfg.Outbox, cfg.Lock)
	return poller.New(g.datasource, locker, g.PublishOutboxRecord, opts)
}

// NewInboxPoller builds the poller that applies inbound partner events. Its handler
// completes records inside its own transaction.
func (g *Grantflow) NewInboxPoller(cfg *config.Configuration, locker lock.Locker) *poller.Poller {
	opts := pollerOptions(model.QueueInbox, cfg.Inbox, cfg.Lock)
	opts.SelfCompleting = true
	return poller.New(g.datasource, locker, g.ProcessInboxRecord, opts)
}

func pollerOptions(queue string, q config.QueueConfig, l config.LockConfig) poller.Options {
	return poller.Options{
		Queue:          queue,
		BatchSize:      q.BatchSize,
		MaxWorkers:     q.MaxWorkers,
		LeaseTTL:       q.LeaseTTL(),
		LockTTL:        l.TTL(),
		MaxRetries:     q.MaxRetries,
		PollInterval:   q.PollInterval(),
		Jitter:         q.Jitter(),
		BackoffInitial: q.BackoffInitial(),
		BackoffMax:     q.BackoffMax(),
		OnDeadLetter: func(_ context.Context, record *model.QueueRecord) {
			notification.NotifyDeadLetter(queue, record)
		},
	}
}
