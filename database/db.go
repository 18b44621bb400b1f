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
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/model"
)

// Collection names are part of the persisted compatibility surface.
const (
	CollectionOutbox       = model.QueueOutbox
	CollectionInbox        = model.QueueInbox
	CollectionFifoLocks    = "fifo_locks"
	CollectionGrants       = "grants"
	CollectionApplications = "applications"
	CollectionXRef         = "application_xref"
)

var instance *Datasource
var once sync.Once

type Datasource struct {
	Client *mongo.Client
	DB     *mongo.Database
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		client, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = NewDatasource(client, client.Database(configuration.DataSource.Database))
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// NewDatasource wraps an already connected client.
func NewDatasource(client *mongo.Client, db *mongo.Database) *Datasource {
	return &Datasource{Client: client, DB: db}
}

func ConnectDB(dns string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// nested documents (answers, event data) decode as maps rather than bson.D
	opts := options.Client().
		ApplyURI(dns).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "mongodb connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		logrus.Errorf("mongodb connection error ❌: %v", err)
		return nil, errors.Wrap(err, "mongodb ping")
	}
	logrus.Info("mongodb connected ✅")
	return client, nil
}

func (d *Datasource) Close(ctx context.Context) error {
	return d.Client.Disconnect(ctx)
}

func (d *Datasource) collection(name string) *mongo.Collection {
	return d.DB.Collection(name)
}

func queueCollection(d *Datasource, queue string) (*mongo.Collection, error) {
	switch queue {
	case model.QueueOutbox, model.QueueInbox:
		return d.collection(queue), nil
	default:
		return nil, errors.Errorf("unknown queue %q", queue)
	}
}

// EnsureIndexes creates the indexes the claim, lock and lookup queries rely on. It is
// idempotent and safe to run on every deploy.
func (d *Datasource) EnsureIndexes(ctx context.Context) error {
	queueIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "claimedBy", Value: 1}, {Key: "completionAttempts", Value: 1}, {Key: "publicationDate", Value: 1}, {Key: "sequence", Value: 1}}},
		{Keys: bson.D{{Key: "claimExpiresAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "completionAttempts", Value: 1}}},
		{Keys: bson.D{{Key: "segregationRef", Value: 1}, {Key: "status", Value: 1}, {Key: "claimedBy", Value: 1}, {Key: "completionAttempts", Value: 1}}},
		{Keys: bson.D{{Key: "segregationRef", Value: 1}, {Key: "status", Value: 1}, {Key: "publicationDate", Value: 1}, {Key: "sequence", Value: 1}}},
	}

	inboxIndexes := append([]mongo.IndexModel{
		{
			Keys: bson.D{{Key: "messageId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"messageId": bson.M{"$type": "string"}}),
		},
	}, queueIndexes...)

	plan := map[string][]mongo.IndexModel{
		CollectionOutbox: queueIndexes,
		CollectionInbox:  inboxIndexes,
		CollectionFifoLocks: {
			{Keys: bson.D{{Key: "segregationRef", Value: 1}, {Key: "actor", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "locked", Value: 1}, {Key: "segregationRef", Value: 1}, {Key: "lockedAt", Value: 1}}},
		},
		CollectionGrants: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionApplications: {
			{Keys: bson.D{{Key: "clientRef", Value: 1}, {Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionXRef: {
			{Keys: bson.D{{Key: "clientRefs", Value: 1}}},
			{Keys: bson.D{{Key: "currentClientRef", Value: 1}}},
			{Keys: bson.D{{Key: "currentClientId", Value: 1}}},
		},
	}

	for name, indexes := range plan {
		names, err := d.collection(name).Indexes().CreateMany(ctx, indexes)
		if err != nil {
			return errors.Wrapf(err, "create indexes on %s", name)
		}
		logrus.WithField("collection", name).Debugf("indexes ensured: %v", names)
	}
	return nil
}
