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

package grantflow

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/grantflow/database/mocks"
	"github.com/blnkfinance/grantflow/internal/publisher"
	"github.com/blnkfinance/grantflow/model"
)

const fixtureGrant = "frps-private-beta"

type published struct {
	destination string
	event       model.CloudEvent
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, destination string, event model.CloudEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{destination: destination, event: event})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func loadFixtureGrant(t *testing.T) *model.Grant {
	t.Helper()
	f, err := os.Open("testdata/grants/frps-private-beta.yaml")
	require.NoError(t, err)
	defer f.Close()

	grants, err := ParseGrantDefinitions(f)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	grants[0].UpdatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return grants[0]
}

func newTestGrantflow(t *testing.T) (*Grantflow, *mocks.MockDataSource, *fakePublisher) {
	t.Helper()
	ds := new(mocks.MockDataSource)
	pub := &fakePublisher{}
	g := newGrantflow(ds, nil, pub, publisher.NewRouter("arn:default", map[string]string{
		model.EventCommandPrefix + "*": "arn:commands",
	}))
	return g, ds, pub
}

func expectGrant(t *testing.T, ds *mocks.MockDataSource) {
	ds.On("GetGrant", mock.Anything, fixtureGrant).Return(loadFixtureGrant(t), nil)
}

func applicationAt(clientRef, path string) *model.Application {
	phase, stage, status := splitFixturePath(path)
	return &model.Application{
		ClientRef:     clientRef,
		Code:          fixtureGrant,
		CurrentPhase:  phase,
		CurrentStage:  stage,
		CurrentStatus: status,
		Phases:        []model.ApplicationPhase{{Code: "PRE_AWARD", Answers: map[string]any{"scheme": "SFI"}}},
	}
}

func splitFixturePath(path string) (string, string, string) {
	parts := strings.SplitN(path, ":", 3)
	return parts[0], parts[1], parts[2]
}

func outboxOfType(eventType string) interface{} {
	return mock.MatchedBy(func(r *model.QueueRecord) bool {
		return r.Payload.Type == eventType
	})
}

func TestGraphIsMemoised(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	expectGrant(t, ds)

	first, err := g.graph(context.Background(), fixtureGrant)
	require.NoError(t, err)
	second, err := g.graph(context.Background(), fixtureGrant)
	require.NoError(t, err)
	assert.Same(t, first, second)

	g.forget(context.Background(), fixtureGrant)
	third, err := g.graph(context.Background(), fixtureGrant)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestPublishOutboxRecord(t *testing.T) {
	g, _, pub := newTestGrantflow(t)

	event, err := model.NewCloudEvent(EventSource, commandEventType("GENERATE_AGREEMENT"), "APP-1-"+fixtureGrant, CommandEvent{Process: "GENERATE_AGREEMENT"})
	require.NoError(t, err)
	record := model.NewOutboxRecord(event, "APP-1-"+fixtureGrant)

	require.NoError(t, g.PublishOutboxRecord(context.Background(), record, "w1"))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, "arn:commands", pub.sent[0].destination)
	assert.Equal(t, event.ID, pub.sent[0].event.ID)

	pub.err = errors.New("broker down")
	err = g.PublishOutboxRecord(context.Background(), record, "w1")
	assert.ErrorContains(t, err, "broker down")
}

func TestQueueAdmin(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	ctx := context.Background()

	_, err := g.ListQueueRecords(ctx, "events", "", 10, 0)
	assert.Error(t, err)
	_, err = g.ListQueueRecords(ctx, model.QueueInbox, "DONE", 10, 0)
	assert.Error(t, err)

	ds.On("ListRecords", mock.Anything, model.QueueInbox, model.RecordFailed, 10, 0).
		Return([]model.QueueRecord{{ID: "inbox_1", Status: model.RecordFailed}}, nil).Once()
	records, err := g.ListQueueRecords(ctx, model.QueueInbox, model.RecordFailed, 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	ds.On("ResubmitRecord", mock.Anything, model.QueueInbox, "inbox_1").
		Return(&model.QueueRecord{ID: "inbox_1", Status: model.RecordPending}, nil).Once()
	record, err := g.ResubmitQueueRecord(ctx, model.QueueInbox, "inbox_1")
	require.NoError(t, err)
	assert.Equal(t, model.RecordPending, record.Status)

	_, err = g.ResubmitQueueRecord(ctx, "nope", "inbox_1")
	assert.Error(t, err)
	ds.AssertExpectations(t)
}
