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
	"fmt"
	"strings"
)

const pathSeparator = ":"

// PathKind tells how a status reference was written.
type PathKind int

const (
	// Qualified is a full PHASE:STAGE:STATUS path.
	Qualified PathKind = iota
	// Bare is a status code alone, relative to some phase and stage.
	Bare
	// Wildcard is the "::STATUS" shorthand.
	Wildcard
)

// Path identifies a node in a grant's workflow graph.
type Path struct {
	Phase  string
	Stage  string
	Status string
	Kind   PathKind
}

// ParsePath parses a status reference in any of its three written forms.
func ParsePath(raw string) (Path, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Path{}, fmt.Errorf("empty status path")
	}

	if !strings.Contains(s, pathSeparator) {
		return Path{Status: s, Kind: Bare}, nil
	}

	parts := strings.Split(s, pathSeparator)
	if len(parts) != 3 {
		return Path{}, fmt.Errorf("invalid status path %q: expected PHASE:STAGE:STATUS", raw)
	}
	phase, stage, status := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2])
	if status == "" {
		return Path{}, fmt.Errorf("invalid status path %q: missing status", raw)
	}
	if phase == "" && stage == "" {
		return Path{Status: status, Kind: Wildcard}, nil
	}
	if phase == "" || stage == "" {
		return Path{}, fmt.Errorf("invalid status path %q: phase and stage must both be set or both be empty", raw)
	}
	return Path{Phase: phase, Stage: stage, Status: status, Kind: Qualified}, nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPath builds a qualified path.
func NewPath(phase, stage, status string) Path {
	return Path{Phase: phase, Stage: stage, Status: status, Kind: Qualified}
}

// Within qualifies a bare or wildcard path against the given phase and stage.
// Qualified paths are returned unchanged.
func (p Path) Within(phase, stage string) Path {
	if p.Kind == Qualified {
		return p
	}
	return NewPath(phase, stage, p.Status)
}

// Scope returns the phase:stage prefix of a qualified path.
func (p Path) Scope() string {
	return p.Phase + pathSeparator + p.Stage
}

func (p Path) String() string {
	switch p.Kind {
	case Bare:
		return p.Status
	case Wildcard:
		return pathSeparator + pathSeparator + p.Status
	default:
		return strings.Join([]string{p.Phase, p.Stage, p.Status}, pathSeparator)
	}
}

// Equal compares two qualified paths.
func (p Path) Equal(o Path) bool {
	return p.Phase == o.Phase && p.Stage == o.Stage && p.Status == o.Status
}
