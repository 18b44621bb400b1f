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

// FifoLock is the persisted form of a segregation lock, unique on (SegregationRef, Actor).
type FifoLock struct {
	SegregationRef string    `json:"segregation_ref" bson:"segregationRef"`
	Actor          string    `json:"actor" bson:"actor"`
	Holder         string    `json:"holder" bson:"holder"`
	Locked         bool      `json:"locked" bson:"locked"`
	LockedAt       time.Time `json:"locked_at" bson:"lockedAt"`
}

// IsStale reports whether the lock is older than ttl and may be taken over.
func (l FifoLock) IsStale(now time.Time, ttl time.Duration) bool {
	return !l.Locked || l.LockedAt.Before(now.Add(-ttl))
}
