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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/model"
	"github.com/blnkfinance/grantflow/workflow"
)

func TestSubmitApplication(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	expectGrant(t, ds)

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("CreateApplication", mock.Anything, mock.MatchedBy(func(app *model.Application) bool {
		return app.ClientRef == "APP-1" && app.CurrentPath() == "PRE_AWARD:REVIEW_APPLICATION:RECEIVED"
	})).Return(nil).Once()
	ds.On("InsertOutbox", mock.Anything, mock.MatchedBy(func(r *model.QueueRecord) bool {
		var data ApplicationEvent
		return r.Payload.Type == model.EventApplicationCreated &&
			r.SegregationRef == "APP-1-"+fixtureGrant &&
			r.Payload.DecodeData(&data) == nil && data.CurrentStatus == "RECEIVED"
	})).Return(nil).Once()

	app, err := g.SubmitApplication(context.Background(), fixtureGrant, "APP-1", map[string]any{"hectares": 12})
	require.NoError(t, err)
	assert.True(t, app.ReplacementAllowed)
	ds.AssertExpectations(t)
}

func TestSubmitApplicationDuplicate(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	expectGrant(t, ds)

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("CreateApplication", mock.Anything, mock.Anything).Return(database.ErrDuplicate).Once()

	_, err := g.SubmitApplication(context.Background(), fixtureGrant, "APP-1", nil)
	assert.ErrorIs(t, err, database.ErrDuplicate)
	ds.AssertNotCalled(t, "InsertOutbox", mock.Anything, mock.Anything)
}

func TestUpdateApplicationStatus(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	expectGrant(t, ds)

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).
		Return(applicationAt("APP-1", "PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW"), nil).Once()
	ds.On("UpdateApplication", mock.Anything, mock.MatchedBy(func(app *model.Application) bool {
		return app.CurrentPath() == "PRE_AWARD:REVIEW_APPLICATION:AGREEMENT_GENERATING"
	}), "PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW").Return(nil).Once()
	ds.On("InsertOutbox", mock.Anything, outboxOfType(model.EventApplicationStatusUpdated)).Return(nil).Once()
	ds.On("InsertOutbox", mock.Anything, mock.MatchedBy(func(r *model.QueueRecord) bool {
		var cmd CommandEvent
		return r.Payload.Type == "grantflow.command.generate_agreement" &&
			r.Payload.DecodeData(&cmd) == nil && cmd.Process == "GENERATE_AGREEMENT" &&
			cmd.To == "PRE_AWARD:REVIEW_APPLICATION:AGREEMENT_GENERATING"
	})).Return(nil).Once()

	app, err := g.UpdateApplicationStatus(context.Background(), "APP-1", fixtureGrant, "AGREEMENT_GENERATING")
	require.NoError(t, err)
	assert.Equal(t, "AGREEMENT_GENERATING", app.CurrentStatus)
	require.NotEmpty(t, app.History)
	assert.Equal(t, OriginAPI, app.History[len(app.History)-1].Source)
	ds.AssertExpectations(t)
}

func TestUpdateApplicationStatusInvalidTransition(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	expectGrant(t, ds)

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).
		Return(applicationAt("APP-1", "PRE_AWARD:REVIEW_APPLICATION:RECEIVED"), nil).Once()

	_, err := g.UpdateApplicationStatus(context.Background(), "APP-1", fixtureGrant, "APPLICATION_REJECTED")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	ds.AssertNotCalled(t, "UpdateApplication", mock.Anything, mock.Anything, mock.Anything)
	ds.AssertNotCalled(t, "InsertOutbox", mock.Anything, mock.Anything)
}

func TestUpdateApplicationStatusConflict(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	expectGrant(t, ds)

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).
		Return(applicationAt("APP-1", "PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW"), nil).Once()
	ds.On("UpdateApplication", mock.Anything, mock.Anything, mock.Anything).Return(database.ErrConflict).Once()

	_, err := g.UpdateApplicationStatus(context.Background(), "APP-1", fixtureGrant, "ON_HOLD")
	assert.ErrorIs(t, err, database.ErrConflict)
	ds.AssertNotCalled(t, "InsertOutbox", mock.Anything, mock.Anything)
}

func TestReplaceApplication(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)

	original := applicationAt("APP-1", "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED")
	original.ReplacementAllowed = true

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).Return(original, nil).Once()
	ds.On("CreateApplication", mock.Anything, mock.MatchedBy(func(app *model.Application) bool {
		return app.ClientRef == "APP-2" && app.CurrentStatus == "AGREEMENT_DRAFTED" && app.SupersededBy == "" &&
			app.PhaseAnswers("PRE_AWARD")["scheme"] == "CSS"
	})).Return(nil).Once()
	ds.On("UpdateApplication", mock.Anything, mock.MatchedBy(func(app *model.Application) bool {
		return app.ClientRef == "APP-1" && !app.ReplacementAllowed && app.SupersededBy == "APP-2"
	}), "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED").Return(nil).Once()
	ds.On("GetXRefByClientRef", mock.Anything, "APP-1", fixtureGrant).Return(nil, database.ErrNotFound).Once()
	ds.On("SaveXRef", mock.Anything, mock.MatchedBy(func(x *model.ApplicationXRef) bool {
		return assert.ObjectsAreEqual([]string{"APP-1", "APP-2"}, x.ClientRefs) &&
			x.CurrentClientRef == "APP-2" && x.CurrentClientID == "client-9"
	})).Return(nil).Once()
	ds.On("InsertOutbox", mock.Anything, mock.MatchedBy(func(r *model.QueueRecord) bool {
		var data ApplicationEvent
		return r.Payload.Type == model.EventApplicationReplaced &&
			r.Payload.DecodeData(&data) == nil && data.PreviousClientRef == "APP-1" && data.ClientRef == "APP-2"
	})).Return(nil).Once()

	app, err := g.ReplaceApplication(context.Background(), "APP-1", fixtureGrant, ReplaceRequest{
		NewClientRef: "APP-2",
		ClientID:     "client-9",
		Answers:      map[string]any{"scheme": "CSS"},
	})
	require.NoError(t, err)
	assert.Equal(t, "APP-2", app.ClientRef)
	assert.Equal(t, "SFI", original.PhaseAnswers("PRE_AWARD")["scheme"], "original answers are untouched")
	ds.AssertExpectations(t)
}

func TestReplaceApplicationNotAllowed(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)

	ds.On("WithTransaction", mock.Anything).Return(nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).
		Return(applicationAt("APP-1", "PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW"), nil).Once()

	_, err := g.ReplaceApplication(context.Background(), "APP-1", fixtureGrant, ReplaceRequest{NewClientRef: "APP-2"})
	assert.ErrorIs(t, err, workflow.ErrReplacementNotAllowed)
	ds.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything)

	_, err = g.ReplaceApplication(context.Background(), "APP-1", fixtureGrant, ReplaceRequest{NewClientRef: "APP-1"})
	assert.Error(t, err)
}

func TestResolveApplicationFollowsLineage(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	ctx := context.Background()

	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).Return(nil, database.ErrNotFound)
	ds.On("GetXRefByClientRef", mock.Anything, "APP-1", fixtureGrant).
		Return(&model.ApplicationXRef{ClientRefs: []string{"APP-1", "APP-2"}, CurrentClientRef: "APP-2"}, nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-2", fixtureGrant).
		Return(applicationAt("APP-2", "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED"), nil).Once()

	app, err := g.resolveApplication(ctx, "APP-1", fixtureGrant)
	require.NoError(t, err)
	assert.Equal(t, "APP-2", app.ClientRef)

	ds.On("GetXRefByClientRef", mock.Anything, "APP-1", fixtureGrant).Return(nil, database.ErrNotFound).Once()
	_, err = g.resolveApplication(ctx, "APP-1", fixtureGrant)
	assert.ErrorIs(t, err, database.ErrNotFound)

	ds.On("GetApplication", mock.Anything, "APP-3", fixtureGrant).Return(nil, errors.New("timeout")).Once()
	_, err = g.resolveApplication(ctx, "APP-3", fixtureGrant)
	assert.EqualError(t, err, "timeout")
}

func TestGetApplicationFollowsReplacement(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)
	ctx := context.Background()

	retired := applicationAt("APP-1", "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED")
	retired.SupersededBy = "APP-2"
	ds.On("GetApplication", mock.Anything, "APP-1", fixtureGrant).Return(retired, nil)
	ds.On("GetXRefByClientRef", mock.Anything, "APP-1", fixtureGrant).
		Return(&model.ApplicationXRef{ClientRefs: []string{"APP-1", "APP-2", "APP-3"}, CurrentClientRef: "APP-3"}, nil).Once()
	ds.On("GetApplication", mock.Anything, "APP-3", fixtureGrant).
		Return(applicationAt("APP-3", "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED"), nil).Once()

	app, err := g.GetApplication(ctx, "APP-1", fixtureGrant)
	require.NoError(t, err)
	assert.Equal(t, "APP-3", app.ClientRef, "chained replacements resolve to the current reference")

	ds.On("GetXRefByClientRef", mock.Anything, "APP-1", fixtureGrant).Return(nil, database.ErrNotFound).Once()
	ds.On("GetApplication", mock.Anything, "APP-2", fixtureGrant).
		Return(applicationAt("APP-2", "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED"), nil).Once()

	app, err = g.GetApplication(ctx, "APP-1", fixtureGrant)
	require.NoError(t, err)
	assert.Equal(t, "APP-2", app.ClientRef)

	live := applicationAt("APP-9", "PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW")
	ds.On("GetApplication", mock.Anything, "APP-9", fixtureGrant).Return(live, nil).Once()
	app, err = g.GetApplication(ctx, "APP-9", fixtureGrant)
	require.NoError(t, err)
	assert.Same(t, live, app)
	ds.AssertNotCalled(t, "GetXRefByClientRef", mock.Anything, "APP-9", fixtureGrant)
}
