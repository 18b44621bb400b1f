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
	"time"

	"github.com/google/uuid"
)

// Queue names double as collection names.
const (
	QueueOutbox = "outbox"
	QueueInbox  = "inbox"
)

// Queue record lifecycle states.
const (
	RecordPending   = "PENDING"
	RecordClaimed   = "CLAIMED"
	RecordCompleted = "COMPLETED"
	RecordFailed    = "FAILED"
)

// QueueRecord is a single outbox or inbox message together with its claim/retry bookkeeping.
// Records are never deleted: completed and dead-lettered records remain as the audit trail.
// Arrival order is (PublicationDate, Sequence); the store keeps dates at millisecond precision
// so Sequence breaks ties.
type QueueRecord struct {
	ID                   string     `json:"id" bson:"_id"`
	Payload              CloudEvent `json:"payload" bson:"payload"`
	Status               string     `json:"status" bson:"status"`
	ClaimedBy            *string    `json:"claimed_by" bson:"claimedBy"`
	ClaimExpiresAt       *time.Time `json:"claim_expires_at" bson:"claimExpiresAt"`
	CompletionAttempts   int        `json:"completion_attempts" bson:"completionAttempts"`
	PublicationDate      time.Time  `json:"publication_date" bson:"publicationDate"`
	Sequence             string     `json:"sequence" bson:"sequence"`
	SegregationRef       string     `json:"segregation_ref" bson:"segregationRef"`
	LastResubmissionDate *time.Time `json:"last_resubmission_date,omitempty" bson:"lastResubmissionDate,omitempty"`
	NextAttemptAt        *time.Time `json:"next_attempt_at,omitempty" bson:"nextAttemptAt,omitempty"`
	CompletionDate       *time.Time `json:"completion_date,omitempty" bson:"completionDate,omitempty"`
	LastError            string     `json:"last_error,omitempty" bson:"lastError,omitempty"`

	// Inbox only: dedup key for redelivered partner messages.
	MessageID  string `json:"message_id,omitempty" bson:"messageId,omitempty"`
	ListenerID string `json:"listener_id,omitempty" bson:"listenerId,omitempty"`

	// Outbox only: broker destination (topic) resolved at publish time when empty.
	Destination string `json:"destination,omitempty" bson:"destination,omitempty"`
}

// NewOutboxRecord wraps a domain event in a pending outbox record.
func NewOutboxRecord(event CloudEvent, segregationRef string) *QueueRecord {
	return &QueueRecord{
		ID:              GenerateUUIDWithSuffix(QueueOutbox),
		Payload:         event,
		Status:          RecordPending,
		PublicationDate: publicationDate(),
		Sequence:        NextSequence(),
		SegregationRef:  segregationRef,
	}
}

// NewInboxRecord wraps an inbound partner message in a pending inbox record keyed by its message id.
func NewInboxRecord(event CloudEvent, segregationRef, listenerID string) *QueueRecord {
	return &QueueRecord{
		ID:              GenerateUUIDWithSuffix(QueueInbox),
		Payload:         event,
		Status:          RecordPending,
		PublicationDate: publicationDate(),
		Sequence:        NextSequence(),
		SegregationRef:  segregationRef,
		MessageID:       event.ID,
		ListenerID:      listenerID,
	}
}

// NextSequence returns a time-ordered arrival key. Keys from one process sort in call
// order even when they share a millisecond.
func NextSequence() string {
	return uuid.Must(uuid.NewV7()).String()
}

// publicationDate is truncated to what the store keeps so in-memory and stored records compare equal.
func publicationDate() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Before reports whether r arrived ahead of other.
func (r *QueueRecord) Before(other *QueueRecord) bool {
	if !r.PublicationDate.Equal(other.PublicationDate) {
		return r.PublicationDate.Before(other.PublicationDate)
	}
	return r.Sequence < other.Sequence
}

// IsTerminal reports whether the record has left the claim cycle for good.
func (r *QueueRecord) IsTerminal() bool {
	return r.Status == RecordCompleted || r.Status == RecordFailed
}
