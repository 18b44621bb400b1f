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

	"github.com/blnkfinance/grantflow/model"
)

// GetXRefByClientRef finds the lineage any of whose client refs equals clientRef.
func (d *Datasource) GetXRefByClientRef(ctx context.Context, clientRef, code string) (*model.ApplicationXRef, error) {
	var xref model.ApplicationXRef
	err := d.collection(CollectionXRef).FindOne(ctx, bson.M{"clientRefs": clientRef, "code": code}).Decode(&xref)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "xref for %s/%s", clientRef, code)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get xref for %s/%s", clientRef, code)
	}
	return &xref, nil
}

// SaveXRef writes the lineage document, creating it on first replacement.
func (d *Datasource) SaveXRef(ctx context.Context, xref *model.ApplicationXRef) error {
	xref.UpdatedAt = time.Now().UTC()
	if xref.ID == "" {
		xref.ID = model.GenerateUUIDWithSuffix("xref")
	}
	_, err := d.collection(CollectionXRef).ReplaceOne(ctx, bson.M{"_id": xref.ID}, xref, options.Replace().SetUpsert(true))
	return errors.Wrapf(err, "save xref %s", xref.ID)
}
