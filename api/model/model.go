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
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/grantflow/model"
)

type CreateGrant struct {
	Code              string                  `json:"code"`
	Metadata          map[string]any          `json:"metadata"`
	Phases            []model.Phase           `json:"phases"`
	ExternalStatusMap model.ExternalStatusMap `json:"external_status_map"`
}

type SubmitApplication struct {
	ClientRef string         `json:"client_ref"`
	Answers   map[string]any `json:"answers"`
}

// UpdateApplicationStatus carries the requested status as a full path, a bare status
// code or "::STATUS".
type UpdateApplicationStatus struct {
	Status string `json:"status"`
}

type ReplaceApplication struct {
	NewClientRef string         `json:"new_client_ref"`
	ClientID     string         `json:"client_id"`
	Answers      map[string]any `json:"answers"`
}

// InboundEvent is the CloudEvents envelope partners post to the inbox.
type InboundEvent struct {
	SpecVersion string                 `json:"specversion"`
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	Type        string                 `json:"type"`
	Time        *time.Time             `json:"time"`
	Subject     string                 `json:"subject"`
	Data        map[string]interface{} `json:"data"`
}

func (g *CreateGrant) ValidateCreateGrant() error {
	return validation.ValidateStruct(g,
		validation.Field(&g.Code, validation.Required, validation.Length(1, 128)),
		validation.Field(&g.Phases, validation.Required),
	)
}

func (a *SubmitApplication) ValidateSubmitApplication() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ClientRef, validation.Required),
	)
}

func (s *UpdateApplicationStatus) ValidateUpdateApplicationStatus() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Status, validation.Required, validation.By(func(value interface{}) error {
			status, _ := value.(string)
			if strings.Count(status, ":") > 2 {
				return errors.New("status must be STATUS, ::STATUS or PHASE:STAGE:STATUS")
			}
			return nil
		})),
	)
}

func (r *ReplaceApplication) ValidateReplaceApplication() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.NewClientRef, validation.Required),
	)
}

func (e *InboundEvent) ValidateInboundEvent() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.SpecVersion, validation.When(e.SpecVersion != "", validation.In(model.CloudEventsSpecVersion))),
		validation.Field(&e.ID, validation.Required),
		validation.Field(&e.Source, validation.Required),
		validation.Field(&e.Type, validation.Required),
		validation.Field(&e.Data, validation.Required),
	)
}

func (g *CreateGrant) ToGrant() *model.Grant {
	return &model.Grant{
		Code:              g.Code,
		Metadata:          g.Metadata,
		Phases:            g.Phases,
		ExternalStatusMap: g.ExternalStatusMap,
	}
}

func (e *InboundEvent) ToCloudEvent() model.CloudEvent {
	at := time.Now().UTC()
	if e.Time != nil {
		at = e.Time.UTC()
	}
	return model.CloudEvent{
		SpecVersion:     model.CloudEventsSpecVersion,
		ID:              e.ID,
		Source:          e.Source,
		Type:            e.Type,
		Time:            at,
		DataContentType: "application/json",
		Subject:         e.Subject,
		Data:            e.Data,
	}
}
