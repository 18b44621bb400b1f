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
	"time"

	"github.com/blnkfinance/grantflow/model"
)

// Origin describes what caused a transition; it is copied into the history entry.
type Origin struct {
	Source    string
	MessageID string
	At        time.Time
}

// Transition is the result of a successful ApplyTransition. Application is a new value;
// the input application is left untouched.
type Transition struct {
	Application *model.Application
	From        Path
	To          Path
	Processes   []string
	PhaseOpened bool
}

// ApplyTransition validates that the application may move to target and returns the
// resulting application state along with the side-effect processes to enqueue.
//
// target may be qualified, bare or "::STATUS"; the latter two resolve against the
// application's current phase and stage.
func (g *Graph) ApplyTransition(app *model.Application, target string, origin Origin) (*Transition, error) {
	if app == nil {
		return nil, fmt.Errorf("nil application")
	}
	current := NewPath(app.CurrentPhase, app.CurrentStage, app.CurrentStatus)

	to, err := ParsePath(target)
	if err != nil {
		return nil, err
	}
	to = to.Within(current.Phase, current.Stage)

	idx, ok := g.index[to]
	if !ok {
		return nil, unknownStatus(g.code, to)
	}
	n := g.nodes[idx]

	if len(n.rules) == 0 {
		return nil, &TransitionError{Grant: g.code, From: current.String(), To: to.String(), Reason: "status is only valid as an initial status"}
	}

	var matched *rule
	for i := range n.rules {
		if n.rules[i].matches(current) {
			matched = &n.rules[i]
			break
		}
	}
	if matched == nil {
		return nil, &TransitionError{Grant: g.code, From: current.String(), To: to.String()}
	}

	processes := make([]string, 0, len(matched.processes)+len(n.processes))
	processes = append(processes, matched.processes...)
	processes = append(processes, n.processes...)

	at := origin.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	next := cloneApplication(app)
	opened := false
	if next.CurrentPhase != to.Phase && next.PhaseAnswers(to.Phase) == nil {
		next.Phases = append(next.Phases, model.ApplicationPhase{Code: to.Phase, Answers: map[string]any{}})
		opened = true
	}
	next.CurrentPhase = to.Phase
	next.CurrentStage = to.Stage
	next.CurrentStatus = to.Status
	next.ReplacementAllowed = n.replacementAllowed
	next.UpdatedAt = at
	next.History = append(next.History, model.HistoryEntry{
		From:      current.String(),
		To:        to.String(),
		Source:    origin.Source,
		MessageID: origin.MessageID,
		Processes: processes,
		At:        at,
	})

	return &Transition{
		Application: next,
		From:        current,
		To:          to,
		Processes:   processes,
		PhaseOpened: opened,
	}, nil
}

// CanTransition reports whether ApplyTransition would accept target from current.
func (g *Graph) CanTransition(current Path, target string) bool {
	to, err := ParsePath(target)
	if err != nil {
		return false
	}
	to = to.Within(current.Phase, current.Stage)
	idx, ok := g.index[to]
	if !ok {
		return false
	}
	for _, r := range g.nodes[idx].rules {
		if r.matches(current) {
			return true
		}
	}
	return false
}

// NewApplication builds an application positioned on the grant's initial status.
func (g *Graph) NewApplication(clientRef string, answers map[string]any, at time.Time) (*model.Application, error) {
	initial, err := g.InitialPath()
	if err != nil {
		return nil, fmt.Errorf("grant %s: %w", g.code, err)
	}
	if answers == nil {
		answers = map[string]any{}
	}
	return &model.Application{
		ClientRef:          clientRef,
		Code:               g.code,
		CurrentPhase:       initial.Phase,
		CurrentStage:       initial.Stage,
		CurrentStatus:      initial.Status,
		Phases:             []model.ApplicationPhase{{Code: initial.Phase, Answers: answers}},
		ReplacementAllowed: g.nodes[g.initial].replacementAllowed,
		History:            []model.HistoryEntry{{To: initial.String(), At: at}},
		CreatedAt:          at,
		UpdatedAt:          at,
	}, nil
}

func cloneApplication(app *model.Application) *model.Application {
	next := *app
	next.Phases = append([]model.ApplicationPhase(nil), app.Phases...)
	next.History = append([]model.HistoryEntry(nil), app.History...)
	return &next
}
