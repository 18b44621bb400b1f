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
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/grantflow/model"
)

// ClaimRequest describes one claimBatch call.
type ClaimRequest struct {
	Queue     string
	WorkerID  string
	LeaseTTL  time.Duration
	MaxRecord int
}

// FailRequest carries the retry policy applied when a worker gives up on a record.
// Attempts is the record's completionAttempts when it was claimed.
type FailRequest struct {
	Queue      string
	ID         string
	WorkerID   string
	Attempts   int
	MaxRetries int
	Cause      string
	// Backoff returns the delay before the next attempt given the updated attempt count.
	Backoff func(attempts int) time.Duration
}

var unfinished = bson.A{model.RecordPending, model.RecordClaimed}

// arrivalOrder sorts records oldest first. Sequence breaks publicationDate ties.
var arrivalOrder = bson.D{{Key: "publicationDate", Value: 1}, {Key: "sequence", Value: 1}, {Key: "_id", Value: 1}}

// claimableFilter selects records that are pending, or claimed under an expired lease,
// and whose retry delay has elapsed.
func claimableFilter(now time.Time) bson.M {
	return bson.M{
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"status": model.RecordPending},
				bson.M{"status": model.RecordClaimed, "claimExpiresAt": bson.M{"$lt": now}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"nextAttemptAt": nil},
				bson.M{"nextAttemptAt": bson.M{"$lte": now}},
			}},
		},
	}
}

// InsertOutbox stores a pending outbox record. Call it with a transaction context so the
// record commits together with the business change that produced it.
func (d *Datasource) InsertOutbox(ctx context.Context, record *model.QueueRecord) error {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "InsertOutbox")
	defer span.End()

	_, err := d.collection(CollectionOutbox).InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicate, "outbox record %s", record.ID)
	}
	return errors.Wrap(err, "insert outbox record")
}

// UpsertInbox records an inbound message unless one with the same message id already
// exists. It reports whether a new record was created.
func (d *Datasource) UpsertInbox(ctx context.Context, record *model.QueueRecord) (bool, error) {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "UpsertInbox")
	defer span.End()

	if record.MessageID == "" {
		return false, errors.New("inbox record requires a message id")
	}

	res, err := d.collection(CollectionInbox).UpdateOne(ctx,
		bson.M{"messageId": record.MessageID},
		bson.M{"$setOnInsert": record},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// two concurrent deliveries of the same message race on the unique index
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "upsert inbox record")
	}
	return res.UpsertedCount == 1, nil
}

// ClaimBatch leases up to MaxRecord eligible records to WorkerID, oldest publication
// first. Each record is claimed with a single atomic findAndModify, so concurrent
// claimants never receive the same record while its lease is live.
func (d *Datasource) ClaimBatch(ctx context.Context, req ClaimRequest) ([]*model.QueueRecord, error) {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "ClaimBatch")
	defer span.End()
	span.SetAttributes(attribute.String("queue", req.Queue), attribute.String("worker.id", req.WorkerID))

	coll, err := queueCollection(d, req.Queue)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().
		SetSort(arrivalOrder).
		SetReturnDocument(options.After)

	records := make([]*model.QueueRecord, 0, req.MaxRecord)
	for len(records) < req.MaxRecord {
		now := time.Now().UTC()
		update := bson.M{"$set": bson.M{
			"status":         model.RecordClaimed,
			"claimedBy":      req.WorkerID,
			"claimExpiresAt": now.Add(req.LeaseTTL),
		}}

		var record model.QueueRecord
		err := coll.FindOneAndUpdate(ctx, claimableFilter(now), update, opts).Decode(&record)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			if len(records) > 0 {
				// the records already leased stay claimed and will be processed
				logrus.WithError(err).WithField("queue", req.Queue).Warn("claim batch cut short")
				break
			}
			span.RecordError(err)
			return nil, errors.Wrapf(err, "claim %s record", req.Queue)
		}
		records = append(records, &record)
	}

	span.SetAttributes(attribute.Int("claimed", len(records)))
	return records, nil
}

// CompleteRecord marks a record the worker still holds as completed.
func (d *Datasource) CompleteRecord(ctx context.Context, queue, id, workerID string) error {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "CompleteRecord")
	defer span.End()

	coll, err := queueCollection(d, queue)
	if err != nil {
		return err
	}

	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.RecordClaimed, "claimedBy": workerID},
		bson.M{
			"$set": bson.M{
				"status":         model.RecordCompleted,
				"completionDate": time.Now().UTC(),
				"claimedBy":      nil,
				"claimExpiresAt": nil,
			},
			"$unset": bson.M{"nextAttemptAt": "", "lastError": ""},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "complete %s record %s", queue, id)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrClaimLost, "complete %s record %s", queue, id)
	}
	return nil
}

// FailRecord counts a failed attempt. The record returns to PENDING with a retry delay,
// or becomes FAILED once the attempt count reaches MaxRetries. The count, status and
// retry delay change in one write, conditional on the claim and on the attempt count
// seen at claim time. The updated record is returned so callers can tell a retry from
// a dead letter.
func (d *Datasource) FailRecord(ctx context.Context, req FailRequest) (*model.QueueRecord, error) {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "FailRecord")
	defer span.End()

	coll, err := queueCollection(d, req.Queue)
	if err != nil {
		return nil, err
	}

	attempts := req.Attempts + 1
	set := bson.M{
		"completionAttempts": attempts,
		"lastError":          req.Cause,
		"claimedBy":          nil,
		"claimExpiresAt":     nil,
	}
	update := bson.M{"$set": set}
	if attempts >= req.MaxRetries {
		set["status"] = model.RecordFailed
		update["$unset"] = bson.M{"nextAttemptAt": ""}
	} else {
		next := time.Now().UTC()
		if req.Backoff != nil {
			next = next.Add(req.Backoff(attempts))
		}
		set["status"] = model.RecordPending
		set["nextAttemptAt"] = next
	}

	var record model.QueueRecord
	err = coll.FindOneAndUpdate(ctx,
		bson.M{
			"_id":                req.ID,
			"status":             model.RecordClaimed,
			"claimedBy":          req.WorkerID,
			"completionAttempts": req.Attempts,
		},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrClaimLost, "fail %s record %s", req.Queue, req.ID)
	}
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "fail %s record %s", req.Queue, req.ID)
	}
	return &record, nil
}

// ResubmitRecord returns a dead-lettered record to the queue with a fresh attempt budget.
func (d *Datasource) ResubmitRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) {
	coll, err := queueCollection(d, queue)
	if err != nil {
		return nil, err
	}

	var record model.QueueRecord
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": model.RecordFailed},
		bson.M{
			"$set": bson.M{
				"status":               model.RecordPending,
				"completionAttempts":   0,
				"lastResubmissionDate": time.Now().UTC(),
				"claimedBy":            nil,
				"claimExpiresAt":       nil,
			},
			"$unset": bson.M{"nextAttemptAt": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "failed %s record %s", queue, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "resubmit %s record %s", queue, id)
	}
	return &record, nil
}

func (d *Datasource) GetRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) {
	coll, err := queueCollection(d, queue)
	if err != nil {
		return nil, err
	}

	var record model.QueueRecord
	err = coll.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "%s record %s", queue, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s record %s", queue, id)
	}
	return &record, nil
}

// ListRecords pages through a queue, newest first. An empty status lists every record.
func (d *Datasource) ListRecords(ctx context.Context, queue, status string, limit, offset int) ([]model.QueueRecord, error) {
	coll, err := queueCollection(d, queue)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "publicationDate", Value: -1}, {Key: "sequence", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s records", queue)
	}
	records := []model.QueueRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, errors.Wrapf(err, "decode %s records", queue)
	}
	return records, nil
}

// olderUnfinishedFilter matches unfinished records with the same segregation ref that
// arrived ahead of record.
func olderUnfinishedFilter(record *model.QueueRecord) bson.M {
	return bson.M{
		"segregationRef": record.SegregationRef,
		"status":         bson.M{"$in": unfinished},
		"_id":            bson.M{"$ne": record.ID},
		"$or": bson.A{
			bson.M{"publicationDate": bson.M{"$lt": record.PublicationDate}},
			bson.M{"publicationDate": record.PublicationDate, "sequence": bson.M{"$lt": record.Sequence}},
		},
	}
}

// HasOlderUnfinished reports whether a record with the same segregation ref, published
// before the given record, is still pending or claimed.
func (d *Datasource) HasOlderUnfinished(ctx context.Context, queue string, record *model.QueueRecord) (bool, error) {
	if record.SegregationRef == "" {
		return false, nil
	}
	coll, err := queueCollection(d, queue)
	if err != nil {
		return false, err
	}

	err = coll.FindOne(ctx, olderUnfinishedFilter(record),
		options.FindOne().SetProjection(bson.M{"_id": 1}),
	).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "check %s head of line", queue)
	}
	return true, nil
}
