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

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/grantflow/model"
)

func TestValidateInboundEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   InboundEvent
		wantErr bool
	}{
		{
			name:  "Valid event",
			event: InboundEvent{ID: "evt-1", Source: "CW", Type: "case.status.changed", Data: map[string]interface{}{"caseRef": "C-1"}},
		},
		{
			name:  "Explicit spec version",
			event: InboundEvent{SpecVersion: "1.0", ID: "evt-1", Source: "CW", Type: "x", Data: map[string]interface{}{"a": 1}},
		},
		{
			name:    "Unsupported spec version",
			event:   InboundEvent{SpecVersion: "0.3", ID: "evt-1", Source: "CW", Type: "x", Data: map[string]interface{}{"a": 1}},
			wantErr: true,
		},
		{
			name:    "Missing id",
			event:   InboundEvent{Source: "CW", Type: "x", Data: map[string]interface{}{"a": 1}},
			wantErr: true,
		},
		{
			name:    "Missing data",
			event:   InboundEvent{ID: "evt-1", Source: "CW", Type: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.ValidateInboundEvent()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInboundEventToCloudEvent(t *testing.T) {
	at := time.Date(2025, 4, 1, 10, 0, 0, 0, time.FixedZone("BST", 3600))
	e := InboundEvent{ID: "evt-1", Source: "AS", Type: "agreement.status.changed", Time: &at, Data: map[string]interface{}{"status": "offered"}}

	ce := e.ToCloudEvent()
	assert.Equal(t, model.CloudEventsSpecVersion, ce.SpecVersion)
	assert.Equal(t, "evt-1", ce.ID)
	assert.Equal(t, at.UTC(), ce.Time)
	assert.Equal(t, "offered", ce.Data["status"])

	e.Time = nil
	assert.False(t, e.ToCloudEvent().Time.IsZero())
}

func TestValidateUpdateApplicationStatus(t *testing.T) {
	for _, status := range []string{"IN_REVIEW", "::IN_REVIEW", "PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW"} {
		s := UpdateApplicationStatus{Status: status}
		assert.NoError(t, s.ValidateUpdateApplicationStatus(), status)
	}

	s := UpdateApplicationStatus{}
	assert.Error(t, s.ValidateUpdateApplicationStatus())
	s.Status = "A:B:C:D"
	assert.Error(t, s.ValidateUpdateApplicationStatus())
}

func TestValidateCreateGrant(t *testing.T) {
	g := CreateGrant{Code: "frps", Phases: []model.Phase{{Code: "PRE_AWARD"}}}
	assert.NoError(t, g.ValidateCreateGrant())
	assert.Equal(t, "frps", g.ToGrant().Code)

	g.Phases = nil
	assert.Error(t, g.ValidateCreateGrant())
}
