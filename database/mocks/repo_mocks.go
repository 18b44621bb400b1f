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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// WithTransaction runs fn directly; tests assert on the calls fn makes.
func (m *MockDataSource) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}

// Queue methods

func (m *MockDataSource) InsertOutbox(ctx context.Context, record *model.QueueRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) UpsertInbox(ctx context.Context, record *model.QueueRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ClaimBatch(ctx context.Context, req database.ClaimRequest) ([]*model.QueueRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) CompleteRecord(ctx context.Context, queue, id, workerID string) error {
	args := m.Called(ctx, queue, id, workerID)
	return args.Error(0)
}

func (m *MockDataSource) FailRecord(ctx context.Context, req database.FailRequest) (*model.QueueRecord, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) ResubmitRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) {
	args := m.Called(ctx, queue, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) GetRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error) {
	args := m.Called(ctx, queue, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) ListRecords(ctx context.Context, queue, status string, limit, offset int) ([]model.QueueRecord, error) {
	args := m.Called(ctx, queue, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.QueueRecord), args.Error(1)
}

func (m *MockDataSource) HasOlderUnfinished(ctx context.Context, queue string, record *model.QueueRecord) (bool, error) {
	args := m.Called(ctx, queue, record)
	return args.Bool(0), args.Error(1)
}

// FIFO lock methods

func (m *MockDataSource) AcquireFifoLock(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, segregationRef, actor, holder, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ReleaseFifoLock(ctx context.Context, segregationRef, actor, holder string) (bool, error) {
	args := m.Called(ctx, segregationRef, actor, holder)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SweepFifoLocks(ctx context.Context, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, ttl)
	return args.Get(0).(int64), args.Error(1)
}

// Grant methods

func (m *MockDataSource) CreateGrant(ctx context.Context, grant *model.Grant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MockDataSource) UpsertGrant(ctx context.Context, grant *model.Grant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MockDataSource) GetGrant(ctx context.Context, code string) (*model.Grant, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Grant), args.Error(1)
}

func (m *MockDataSource) ListGrants(ctx context.Context) ([]model.Grant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Grant), args.Error(1)
}

// Application methods

func (m *MockDataSource) CreateApplication(ctx context.Context, app *model.Application) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockDataSource) GetApplication(ctx context.Context, clientRef, code string) (*model.Application, error) {
	args := m.Called(ctx, clientRef, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Application), args.Error(1)
}

func (m *MockDataSource) ListApplications(ctx context.Context, code string, limit, offset int) ([]model.Application, error) {
	args := m.Called(ctx, code, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Application), args.Error(1)
}

func (m *MockDataSource) UpdateApplication(ctx context.Context, app *model.Application, expectedPath string) error {
	args := m.Called(ctx, app, expectedPath)
	return args.Error(0)
}

func (m *MockDataSource) GetXRefByClientRef(ctx context.Context, clientRef, code string) (*model.ApplicationXRef, error) {
	args := m.Called(ctx, clientRef, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ApplicationXRef), args.Error(1)
}

func (m *MockDataSource) SaveXRef(ctx context.Context, xref *model.ApplicationXRef) error {
	args := m.Called(ctx, xref)
	return args.Error(0)
}

var _ database.IDataSource = (*MockDataSource)(nil)
