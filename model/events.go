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
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const CloudEventsSpecVersion = "1.0"

// Outbound domain event types.
const (
	EventApplicationCreated       = "grantflow.application.created"
	EventApplicationStatusUpdated = "grantflow.application.status.updated"
	EventApplicationReplaced      = "grantflow.application.replaced"
	EventCommandPrefix            = "grantflow.command."
)

// CloudEvent is the envelope shared by inbound partner messages and outbound domain events.
type CloudEvent struct {
	SpecVersion     string                 `json:"specversion" bson:"specversion"`
	ID              string                 `json:"id" bson:"id"`
	Source          string                 `json:"source" bson:"source"`
	Type            string                 `json:"type" bson:"type"`
	Time            time.Time              `json:"time" bson:"time"`
	DataContentType string                 `json:"datacontenttype,omitempty" bson:"datacontenttype,omitempty"`
	Subject         string                 `json:"subject,omitempty" bson:"subject,omitempty"`
	Data            map[string]interface{} `json:"data" bson:"data"`
}

// NewCloudEvent builds an event with a fresh id and the given data marshalled as JSON.
func NewCloudEvent(source, eventType, subject string, data interface{}) (CloudEvent, error) {
	raw, err := toDocument(data)
	if err != nil {
		return CloudEvent{}, err
	}
	return CloudEvent{
		SpecVersion:     CloudEventsSpecVersion,
		ID:              uuid.NewString(),
		Source:          source,
		Type:            eventType,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Subject:         subject,
		Data:            raw,
	}, nil
}

// DecodeData unmarshals the event data into v.
func (e CloudEvent) DecodeData(v interface{}) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func toDocument(data interface{}) (map[string]interface{}, error) {
	if doc, ok := data.(map[string]interface{}); ok {
		return doc, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]interface{})
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
