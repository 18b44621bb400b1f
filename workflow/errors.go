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

package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
	ErrUnmappedStatus    = errors.New("unmapped external status")
	ErrNoInitialStatus   = errors.New("grant has no initial status")
	ErrInvalidDefinition = errors.New("invalid grant definition")

	ErrReplacementNotAllowed = errors.New("application cannot be replaced in its current status")
)

// TransitionError reports a target path that has no predecessor matching the current state.
type TransitionError struct {
	Grant  string
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("grant %s: cannot transition from %s to %s", e.Grant, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// UnmappedStatusError reports a vendor code with no entry in the grant's external status map.
type UnmappedStatusError struct {
	Grant      string
	Phase      string
	Stage      string
	Source     string
	Code       string
	Suggestion string
}

func (e *UnmappedStatusError) Error() string {
	msg := fmt.Sprintf("grant %s: no mapping for %s status %q in %s:%s", e.Grant, e.Source, e.Code, e.Phase, e.Stage)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (closest known code %q)", e.Suggestion)
	}
	return msg
}

func (e *UnmappedStatusError) Is(target error) bool {
	return target == ErrUnmappedStatus
}

func unknownStatus(grant string, p Path) error {
	return fmt.Errorf("grant %s: %w %s", grant, ErrUnknownStatus, p)
}

func invalidDefinition(grant, format string, args ...interface{}) error {
	return fmt.Errorf("grant %s: %w: %s", grant, ErrInvalidDefinition, fmt.Sprintf(format, args...))
}
