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
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/grantflow/model"
)

func (d *Datasource) CreateApplication(ctx context.Context, app *model.Application) error {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "CreateApplication")
	defer span.End()

	_, err := d.collection(CollectionApplications).InsertOne(ctx, app)
	if mongo.IsDuplicateKeyError(err) {
		return errors.Wrapf(ErrDuplicate, "application %s/%s", app.ClientRef, app.Code)
	}
	return errors.Wrapf(err, "create application %s/%s", app.ClientRef, app.Code)
}

func (d *Datasource) GetApplication(ctx context.Context, clientRef, code string) (*model.Application, error) {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "GetApplication")
	defer span.End()

	var app model.Application
	err := d.collection(CollectionApplications).FindOne(ctx, bson.M{"clientRef": clientRef, "code": code}).Decode(&app)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "application %s/%s", clientRef, code)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get application %s/%s", clientRef, code)
	}
	return &app, nil
}

// ListApplications pages through the applications of one grant, oldest first.
func (d *Datasource) ListApplications(ctx context.Context, code string, limit, offset int) ([]model.Application, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetProjection(bson.M{"history": 0})

	cursor, err := d.collection(CollectionApplications).Find(ctx, bson.M{"code": code}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "list applications for %s", code)
	}
	apps := []model.Application{}
	if err := cursor.All(ctx, &apps); err != nil {
		return nil, errors.Wrap(err, "decode applications")
	}
	return apps, nil
}

// UpdateApplication replaces the stored application only if it is still at
// expectedPath, so two writers racing from the same state cannot both commit.
func (d *Datasource) UpdateApplication(ctx context.Context, app *model.Application, expectedPath string) error {
	ctx, span := otel.Tracer("grantflow.database").Start(ctx, "UpdateApplication")
	defer span.End()

	filter := bson.M{"clientRef": app.ClientRef, "code": app.Code}
	phase, stage, status, ok := splitPath(expectedPath)
	if !ok {
		return errors.Errorf("malformed status path %q", expectedPath)
	}
	filter["currentPhase"] = phase
	filter["currentStage"] = stage
	filter["currentStatus"] = status

	res, err := d.collection(CollectionApplications).ReplaceOne(ctx, filter, app)
	if err != nil {
		return errors.Wrapf(err, "update application %s/%s", app.ClientRef, app.Code)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrConflict, "application %s/%s is no longer at %s", app.ClientRef, app.Code, expectedPath)
	}
	return nil
}

func splitPath(path string) (phase, stage, status string, ok bool) {
	parts := strings.Split(path, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
