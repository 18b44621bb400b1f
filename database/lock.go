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

package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AcquireFifoLock takes the (segregationRef, actor) lock for holder. The conditional
// upsert only matches a released or stale lock; a live lock makes the upsert collide
// with the unique index, which is reported as not acquired rather than an error.
func (d *Datasource) AcquireFifoLock(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"segregationRef": segregationRef,
		"actor":          actor,
		"$or": bson.A{
			bson.M{"locked": false},
			bson.M{"lockedAt": bson.M{"$lt": now.Add(-ttl)}},
		},
	}
	update := bson.M{"$set": bson.M{
		"locked":   true,
		"lockedAt": now,
		"holder":   holder,
	}}

	_, err := d.collection(CollectionFifoLocks).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "acquire fifo lock %s/%s", segregationRef, actor)
	}
	return true, nil
}

// ReleaseFifoLock releases the lock if holder still owns it. It reports false when the
// lock was already released or taken over after going stale.
func (d *Datasource) ReleaseFifoLock(ctx context.Context, segregationRef, actor, holder string) (bool, error) {
	res, err := d.collection(CollectionFifoLocks).UpdateOne(ctx,
		bson.M{"segregationRef": segregationRef, "actor": actor, "holder": holder, "locked": true},
		bson.M{"$set": bson.M{"locked": false}},
	)
	if err != nil {
		return false, errors.Wrapf(err, "release fifo lock %s/%s", segregationRef, actor)
	}
	return res.MatchedCount == 1, nil
}

// SweepFifoLocks releases every lock held for longer than ttl.
func (d *Datasource) SweepFifoLocks(ctx context.Context, ttl time.Duration) (int64, error) {
	res, err := d.collection(CollectionFifoLocks).UpdateMany(ctx,
		bson.M{"locked": true, "lockedAt": bson.M{"$lt": time.Now().UTC().Add(-ttl)}},
		bson.M{"$set": bson.M{"locked": false}},
	)
	if err != nil {
		return 0, errors.Wrap(err, "sweep fifo locks")
	}
	return res.ModifiedCount, nil
}
