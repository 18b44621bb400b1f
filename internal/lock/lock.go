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

// Package lock implements the FIFO segregation lock: a non-blocking mutex keyed by
// (segregationRef, actor) that serialises processing of records for one entity.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotHolder is returned by Release when the caller no longer owns the lock, either
// because it was never taken or because it went stale and was taken over.
var ErrNotHolder = errors.New("fifo lock not held by caller")

// Locker acquires and releases FIFO segregation locks. Acquire never blocks: a false
// result means another holder has the key and the caller should retry on a later cycle.
type Locker interface {
	Acquire(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, segregationRef, actor, holder string) error
}

// Store is the persistence the Mongo-backed locker needs.
type Store interface {
	AcquireFifoLock(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error)
	ReleaseFifoLock(ctx context.Context, segregationRef, actor, holder string) (bool, error)
	SweepFifoLocks(ctx context.Context, ttl time.Duration) (int64, error)
}

// MongoLocker keeps locks in the fifo_locks collection.
type MongoLocker struct {
	store Store
}

func NewMongoLocker(store Store) *MongoLocker {
	return &MongoLocker{store: store}
}

func (l *MongoLocker) Acquire(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error) {
	return l.store.AcquireFifoLock(ctx, segregationRef, actor, holder, ttl)
}

func (l *MongoLocker) Release(ctx context.Context, segregationRef, actor, holder string) error {
	released, err := l.store.ReleaseFifoLock(ctx, segregationRef, actor, holder)
	if err != nil {
		return err
	}
	if !released {
		return ErrNotHolder
	}
	return nil
}

// RunSweeper clears stale locks every interval until ctx is cancelled. Acquire already
// takes over stale locks; the sweep keeps the locked index small and the lock table
// honest for operators.
func (l *MongoLocker) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.store.SweepFifoLocks(ctx, ttl)
			if err != nil {
				logrus.WithError(err).Error("fifo lock sweep failed")
				continue
			}
			if n > 0 {
				logrus.WithField("released", n).Info("released stale fifo locks")
			}
		}
	}
}
