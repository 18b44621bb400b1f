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

import "time"

// Application is a client's submission against a grant. CurrentStatus only advances
// through the workflow engine. A replaced application is kept and names its successor
// in SupersededBy.
type Application struct {
	ClientRef          string             `json:"client_ref" bson:"clientRef"`
	Code               string             `json:"code" bson:"code"`
	CurrentPhase       string             `json:"current_phase" bson:"currentPhase"`
	CurrentStage       string             `json:"current_stage" bson:"currentStage"`
	CurrentStatus      string             `json:"current_status" bson:"currentStatus"`
	Phases             []ApplicationPhase `json:"phases" bson:"phases"`
	ReplacementAllowed bool               `json:"replacement_allowed" bson:"replacementAllowed"`
	SupersededBy       string             `json:"superseded_by,omitempty" bson:"supersededBy,omitempty"`
	History            []HistoryEntry     `json:"history" bson:"history"`
	CreatedAt          time.Time          `json:"created_at" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updatedAt"`
}

// ApplicationPhase holds the answers captured for one phase of the grant.
type ApplicationPhase struct {
	Code    string         `json:"code" bson:"code"`
	Answers map[string]any `json:"answers" bson:"answers"`
}

// HistoryEntry records one applied transition.
type HistoryEntry struct {
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	Source    string    `json:"source,omitempty" bson:"source,omitempty"`
	MessageID string    `json:"message_id,omitempty" bson:"messageId,omitempty"`
	Processes []string  `json:"processes,omitempty" bson:"processes,omitempty"`
	At        time.Time `json:"at" bson:"at"`
}

// ApplicationXRef tracks the client-reference lineage of a resubmitted application.
type ApplicationXRef struct {
	ID               string    `json:"id" bson:"_id"`
	ClientRefs       []string  `json:"client_refs" bson:"clientRefs"`
	CurrentClientRef string    `json:"current_client_ref" bson:"currentClientRef"`
	CurrentClientID  string    `json:"current_client_id" bson:"currentClientId"`
	Code             string    `json:"code" bson:"code"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updatedAt"`
}

// HasClientRef reports whether ref is part of the lineage.
func (x *ApplicationXRef) HasClientRef(ref string) bool {
	for _, r := range x.ClientRefs {
		if r == ref {
			return true
		}
	}
	return false
}

// CurrentPath returns the application's position as PHASE:STAGE:STATUS.
func (a *Application) CurrentPath() string {
	return a.CurrentPhase + ":" + a.CurrentStage + ":" + a.CurrentStatus
}

// PhaseAnswers returns the answers of the named phase, or nil.
func (a *Application) PhaseAnswers(phase string) map[string]any {
	for _, p := range a.Phases {
		if p.Code == phase {
			return p.Answers
		}
	}
	return nil
}
