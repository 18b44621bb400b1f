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

// Grant is a workflow definition: an ordered phase/stage/status tree plus the
// vocabulary map used to translate partner statuses into canonical paths.
type Grant struct {
	Code              string            `json:"code" bson:"code" yaml:"code"`
	Metadata          map[string]any    `json:"metadata,omitempty" bson:"metadata,omitempty" yaml:"metadata,omitempty"`
	Phases            []Phase           `json:"phases" bson:"phases" yaml:"phases"`
	ExternalStatusMap ExternalStatusMap `json:"external_status_map" bson:"externalStatusMap" yaml:"externalStatusMap"`
	CreatedAt         time.Time         `json:"created_at" bson:"createdAt" yaml:"-"`
	UpdatedAt         time.Time         `json:"updated_at" bson:"updatedAt" yaml:"-"`
}

// Phase groups stages and carries the answer schema collected while the phase is active.
type Phase struct {
	Code      string         `json:"code" bson:"code" yaml:"code"`
	Questions map[string]any `json:"questions,omitempty" bson:"questions,omitempty" yaml:"questions,omitempty"`
	Stages    []Stage        `json:"stages" bson:"stages" yaml:"stages"`
}

type Stage struct {
	Code     string   `json:"code" bson:"code" yaml:"code"`
	Statuses []Status `json:"statuses" bson:"statuses" yaml:"statuses"`
}

// Status is a node in the workflow graph. ValidFrom lists the predecessors it may be
// entered from; a status without predecessors can only be an initial status.
type Status struct {
	Code               string          `json:"code" bson:"code" yaml:"code"`
	ValidFrom          []ValidFromRule `json:"valid_from,omitempty" bson:"validFrom,omitempty" yaml:"validFrom,omitempty"`
	Processes          []string        `json:"processes,omitempty" bson:"processes,omitempty" yaml:"processes,omitempty"`
	ReplacementAllowed bool            `json:"replacement_allowed" bson:"replacementAllowed" yaml:"replacementAllowed"`
}

// ValidFromRule is a predecessor entry. Code is a bare status code (same phase and stage
// as the declaring status), a full PHASE:STAGE:STATUS path, or the "::STATUS" wildcard.
type ValidFromRule struct {
	Code      string   `json:"code" bson:"code" yaml:"code"`
	Processes []string `json:"processes,omitempty" bson:"processes,omitempty" yaml:"processes,omitempty"`
}

// ExternalStatusMap mirrors the phase/stage tree; each stage leaf lists vendor codes.
type ExternalStatusMap struct {
	Phases []ExternalPhase `json:"phases" bson:"phases" yaml:"phases"`
}

type ExternalPhase struct {
	Code   string          `json:"code" bson:"code" yaml:"code"`
	Stages []ExternalStage `json:"stages" bson:"stages" yaml:"stages"`
}

type ExternalStage struct {
	Code     string           `json:"code" bson:"code" yaml:"code"`
	Statuses []ExternalStatus `json:"statuses" bson:"statuses" yaml:"statuses"`
}

// ExternalStatus maps one vendor status code from one source onto a canonical path
// or the "::STATUS" shorthand.
type ExternalStatus struct {
	Code     string `json:"code" bson:"code" yaml:"code"`
	Source   string `json:"source" bson:"source" yaml:"source"`
	MappedTo string `json:"mapped_to" bson:"mappedTo" yaml:"mappedTo"`
}
