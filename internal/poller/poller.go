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

// Package poller runs the claim-based worker loop shared by the outbox and the inbox.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/internal/lock"
	"github.com/blnkfinance/grantflow/model"
)

// ErrDeferred tells the poller to leave a record claimed without counting an attempt.
// The record becomes claimable again once its lease expires.
var ErrDeferred = errors.New("record deferred")

// Store is the subset of the datasource the poller drives.
type Store interface {
	ClaimBatch(ctx context.Context, req database.ClaimRequest) ([]*model.QueueRecord, error)
	CompleteRecord(ctx context.Context, queue, id, workerID string) error
	FailRecord(ctx context.Context, req database.FailRequest) (*model.QueueRecord, error)
	HasOlderUnfinished(ctx context.Context, queue string, record *model.QueueRecord) (bool, error)
}

// Handler processes one claimed record. workerID is the claim holder, for handlers that
// complete the record themselves.
type Handler func(ctx context.Context, record *model.QueueRecord, workerID string) error

type Options struct {
	Queue          string
	WorkerID       string
	BatchSize      int
	MaxWorkers     int
	LeaseTTL       time.Duration
	LockTTL        time.Duration
	MaxRetries     int
	PollInterval   time.Duration
	Jitter         time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// SelfCompleting is set when the handler marks its record completed inside its own
	// transaction, as the inbox handler does.
	SelfCompleting bool

	// DrainTimeout bounds how long claimed records keep processing once ctx passed to
	// Start or PollOnce is cancelled. Defaults to LeaseTTL.
	DrainTimeout time.Duration

	// OnDeadLetter is called after a record exhausts its retries.
	OnDeadLetter func(ctx context.Context, record *model.QueueRecord)
}

type Poller struct {
	store   Store
	locker  lock.Locker
	handler Handler
	opts    Options

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// DefaultWorkerID names a worker after its host so claims can be traced to a process.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

func New(store Store, locker lock.Locker, handler Handler, opts Options) *Poller {
	if opts.WorkerID == "" {
		opts.WorkerID = DefaultWorkerID()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.LeaseTTL
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = opts.LeaseTTL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 5 * time.Second
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}

	return &Poller{
		store:   store,
		locker:  locker,
		handler: handler,
		opts:    opts,
		stopCh:  make(chan struct{}),
	}
}

func (p *Poller) WorkerID() string {
	return p.opts.WorkerID
}

func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.WithFields(logrus.Fields{"queue": p.opts.Queue, "worker_id": p.opts.WorkerID}).Info("poller started")
}

// Stop signals the loop and waits for the batch in flight to finish. No new batch is
// claimed after Stop or after the ctx passed to Start is cancelled.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.WithField("queue", p.opts.Queue).Info("poller stopped")
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context) {
	timer := time.NewTimer(p.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-timer.C:
			if _, err := p.PollOnce(ctx); err != nil {
				logrus.WithError(err).WithField("queue", p.opts.Queue).Error("poll cycle failed")
			}
			timer.Reset(p.nextInterval())
		}
	}
}

func (p *Poller) nextInterval() time.Duration {
	if p.opts.Jitter <= 0 {
		return p.opts.PollInterval
	}
	return p.opts.PollInterval + rand.N(p.opts.Jitter)
}

// PollOnce claims one batch and processes it with at most MaxWorkers records in flight.
// It returns the number of records claimed. Cancelling ctx stops no claimed record: the
// batch drains on a detached context for up to DrainTimeout, so a published record is
// still completed during shutdown.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	records, err := p.store.ClaimBatch(ctx, database.ClaimRequest{
		Queue:     p.opts.Queue,
		WorkerID:  p.opts.WorkerID,
		LeaseTTL:  p.opts.LeaseTTL,
		MaxRecord: p.opts.BatchSize,
	})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	logrus.WithFields(logrus.Fields{
		"queue":     p.opts.Queue,
		"worker_id": p.opts.WorkerID,
		"claimed":   len(records),
	}).Debug("claimed batch")

	work, cancel := p.drainContext(ctx)
	defer cancel()

	sem := make(chan struct{}, p.opts.MaxWorkers)
	var batchWg sync.WaitGroup

	for _, record := range records {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(r *model.QueueRecord) {
			defer batchWg.Done()
			defer func() { <-sem }()
			p.process(work, r)
		}(record)
	}

	batchWg.Wait()
	return len(records), nil
}

// drainContext returns a context that outlives parent's cancellation by DrainTimeout.
func (p *Poller) drainContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		logrus.WithField("queue", p.opts.Queue).Info("draining claimed records")
		timer := time.AfterFunc(p.opts.DrainTimeout, cancel)
		context.AfterFunc(ctx, func() { timer.Stop() })
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *Poller) process(ctx context.Context, record *model.QueueRecord) {
	ctx, span := otel.Tracer("grantflow.poller").Start(ctx, "process "+p.opts.Queue)
	defer span.End()
	span.SetAttributes(
		attribute.String("record.id", record.ID),
		attribute.String("segregation.ref", record.SegregationRef),
	)

	log := logrus.WithFields(logrus.Fields{
		"queue":           p.opts.Queue,
		"record_id":       record.ID,
		"segregation_ref": record.SegregationRef,
		"worker_id":       p.opts.WorkerID,
		"attempts":        record.CompletionAttempts,
	})

	err := p.handleInOrder(ctx, record)
	switch {
	case err == nil:
		if p.opts.SelfCompleting {
			return
		}
		if err := p.store.CompleteRecord(ctx, p.opts.Queue, record.ID, p.opts.WorkerID); err != nil {
			if errors.Is(err, database.ErrClaimLost) {
				log.Warn("claim lost before completion; record will be processed again")
				return
			}
			log.WithError(err).Error("failed to complete record")
		}
	case errors.Is(err, ErrDeferred):
		log.Debug("record deferred until its lease expires")
	default:
		span.RecordError(err)
		p.fail(ctx, record, err, log)
	}
}

// handleInOrder enforces arrival order for records sharing a segregation ref before
// running the handler: an older unfinished record or a held lock defers the record.
func (p *Poller) handleInOrder(ctx context.Context, record *model.QueueRecord) error {
	if record.SegregationRef == "" {
		return p.handler(ctx, record, p.opts.WorkerID)
	}

	older, err := p.store.HasOlderUnfinished(ctx, p.opts.Queue, record)
	if err != nil {
		return err
	}
	if older {
		return ErrDeferred
	}

	acquired, err := p.locker.Acquire(ctx, record.SegregationRef, p.opts.Queue, p.opts.WorkerID, p.opts.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrDeferred
	}
	defer func() {
		if err := p.locker.Release(ctx, record.SegregationRef, p.opts.Queue, p.opts.WorkerID); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"queue":           p.opts.Queue,
				"segregation_ref": record.SegregationRef,
			}).Warn("fifo lock release failed")
		}
	}()

	return p.handler(ctx, record, p.opts.WorkerID)
}

func (p *Poller) fail(ctx context.Context, record *model.QueueRecord, cause error, log *logrus.Entry) {
	updated, err := p.store.FailRecord(ctx, database.FailRequest{
		Queue:      p.opts.Queue,
		ID:         record.ID,
		WorkerID:   p.opts.WorkerID,
		Attempts:   record.CompletionAttempts,
		MaxRetries: p.opts.MaxRetries,
		Cause:      cause.Error(),
		Backoff:    p.retryDelay,
	})
	if err != nil {
		if errors.Is(err, database.ErrClaimLost) {
			log.WithError(cause).Warn("claim lost before failure was recorded")
			return
		}
		log.WithError(err).Error("failed to record failed attempt")
		return
	}

	if updated.Status == model.RecordFailed {
		log.WithError(cause).WithField("attempts", updated.CompletionAttempts).Error("record exhausted retries")
		if p.opts.OnDeadLetter != nil {
			p.opts.OnDeadLetter(ctx, updated)
		}
		return
	}
	log.WithError(cause).WithField("attempts", updated.CompletionAttempts).Warn("record failed; will retry")
}

// retryDelay is the exponential backoff delay before attempt number attempts+1.
func (p *Poller) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.BackoffInitial
	b.MaxInterval = p.opts.BackoffMax
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
