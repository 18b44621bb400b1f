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
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/grantflow/model"
)

func (d *Datasource) CreateGrant(ctx context.Context, grant *model.Grant) error {
	now := time.Now().UTC()
	grant.CreatedAt, grant.UpdatedAt = now, now

	_, err := d.collection(CollectionGrants).InsertOne(ctx, grant)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicate, "grant %s", grant.Code)
	}
	return errors.Wrapf(err, "create grant %s", grant.Code)
}

// UpsertGrant replaces the whole definition stored under grant.Code, creating it when
// absent. Definitions are never edited in place.
func (d *Datasource) UpsertGrant(ctx context.Context, grant *model.Grant) error {
	now := time.Now().UTC()
	grant.UpdatedAt = now
	if grant.CreatedAt.IsZero() {
		var existing model.Grant
		err := d.collection(CollectionGrants).FindOne(ctx, bson.M{"code": grant.Code},
			options.FindOne().SetProjection(bson.M{"createdAt": 1})).Decode(&existing)
		switch {
		case err == nil:
			grant.CreatedAt = existing.CreatedAt
		case errors.Is(err, mongo.ErrNoDocuments):
			grant.CreatedAt = now
		default:
			return errors.Wrapf(err, "load grant %s", grant.Code)
		}
	}

	_, err := d.collection(CollectionGrants).ReplaceOne(ctx, bson.M{"code": grant.Code}, grant, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "upsert grant %s", grant.Code)
}

func (d *Datasource) GetGrant(ctx context.Context, code string) (*model.Grant, error) {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "GetGrant")
	defer span.End()

	var grant model.Grant
	err := d.collection(CollectionGrants).FindOne(ctx, bson.M{"code": code}).Decode(&grant)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "grant %s", code)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get grant %s", code)
	}
	return &grant, nil
}

func (d *Datasource) ListGrants(ctx context.Context) ([]model.Grant, error) {
	cursor, err := d.collection(CollectionGrants).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "code", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "list grants")
	}
	grants := []model.Grant{}
	if err := cursor.All(ctx, &grants); err != nil {
		return nil, errors.Wrap(err, "decode grants")
	}
	return grants, nil
}
