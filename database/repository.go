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

	"github.com/blnkfinance/grantflow/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	transactor  // Multi-statement transactions
	queue       // Outbox and inbox claim lifecycle
	fifoLock    // FIFO segregation locks
	grant       // Grant definitions
	application // Applications and their replacement lineage
}

type transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type queue interface {
	InsertOutbox(ctx context.Context, record *model.QueueRecord) error                // Enqueues an outbound event
	UpsertInbox(ctx context.Context, record *model.QueueRecord) (bool, error)         // Records an inbound message, deduplicated by message id
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]*model.QueueRecord, error)   // Leases eligible records to a worker
	CompleteRecord(ctx context.Context, queue, id, workerID string) error             // Marks a held record completed
	FailRecord(ctx context.Context, req FailRequest) (*model.QueueRecord, error)      // Counts a failed attempt
	ResubmitRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) // Requeues a dead-lettered record
	GetRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error)      // Retrieves a record by ID
	ListRecords(ctx context.Context, queue, status string, limit, offset int) ([]model.QueueRecord, error)
	HasOlderUnfinished(ctx context.Context, queue string, record *model.QueueRecord) (bool, error) // Head-of-line check for a segregation ref
}

type fifoLock interface {
	AcquireFifoLock(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error)
	ReleaseFifoLock(ctx context.Context, segregationRef, actor, holder string) (bool, error)
	SweepFifoLocks(ctx context.Context, ttl time.Duration) (int64, error)
}

type grant interface {
	CreateGrant(ctx context.Context, grant *model.Grant) error
	UpsertGrant(ctx context.Context, grant *model.Grant) error
	GetGrant(ctx context.Context, code string) (*model.Grant, error)
	ListGrants(ctx context.Context) ([]model.Grant, error)
}

type application interface {
	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, clientRef, code string) (*model.Application, error)
	ListApplications(ctx context.Context, code string, limit, offset int) ([]model.Application, error)
	UpdateApplication(ctx context.Context, app *model.Application, expectedPath string) error
	GetXRefByClientRef(ctx context.Context, clientRef, code string) (*model.ApplicationXRef, error)
	SaveXRef(ctx context.Context, xref *model.ApplicationXRef) error
}
