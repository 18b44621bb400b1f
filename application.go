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

package grantflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/internal/apierror"
	"github.com/blnkfinance/grantflow/model"
	"github.com/blnkfinance/grantflow/workflow"
)

// OriginAPI marks transitions requested directly through the HTTP API.
const OriginAPI = "api"

// ApplicationEvent is the data of the application domain events.
type ApplicationEvent struct {
	ClientRef          string   `json:"client_ref"`
	Code               string   `json:"code"`
	CurrentPhase       string   `json:"current_phase"`
	CurrentStage       string   `json:"current_stage"`
	CurrentStatus      string   `json:"current_status"`
	PreviousStatus     string   `json:"previous_status,omitempty"`
	PreviousClientRef  string   `json:"previous_client_ref,omitempty"`
	ReplacementAllowed bool     `json:"replacement_allowed"`
	Processes          []string `json:"processes,omitempty"`
	Source             string   `json:"source,omitempty"`
}

// CommandEvent asks a downstream service to run one workflow process.
type CommandEvent struct {
	ClientRef string `json:"client_ref"`
	Code      string `json:"code"`
	Process   string `json:"process"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// ReplaceRequest resubmits an application under a new client reference.
type ReplaceRequest struct {
	NewClientRef string
	ClientID     string
	Answers      map[string]any
}

// SubmitApplication creates an application on the grant's initial status and queues
// the created event in the same transaction.
func (g *Grantflow) SubmitApplication(ctx context.Context, code, clientRef string, answers map[string]any) (*model.Application, error) {
	ctx, span := tracer.Start(ctx, "SubmitApplication")
	defer span.End()

	graph, err := g.graph(ctx, code)
	if err != nil {
		return nil, err
	}
	app, err := graph.NewApplication(clientRef, answers, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = g.datasource.WithTransaction(ctx, func(ctx context.Context) error {
		if err := g.datasource.CreateApplication(ctx, app); err != nil {
			return err
		}
		return g.enqueueApplicationEvent(ctx, model.EventApplicationCreated, app, ApplicationEvent{})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return app, nil
}

// GetApplication returns the live application for clientRef. A superseded reference
// resolves to the application that replaced it.
func (g *Grantflow) GetApplication(ctx context.Context, clientRef, code string) (*model.Application, error) {
	return g.resolveApplication(ctx, clientRef, code)
}

func (g *Grantflow) ListApplications(ctx context.Context, code string, limit, offset int) ([]model.Application, error) {
	return g.datasource.ListApplications(ctx, code, limit, offset)
}

// UpdateApplicationStatus applies a transition requested by an operator. target may
// be a full path, a bare status code or "::STATUS".
func (g *Grantflow) UpdateApplicationStatus(ctx context.Context, clientRef, code, target string) (*model.Application, error) {
	ctx, span := tracer.Start(ctx, "UpdateApplicationStatus")
	defer span.End()

	graph, err := g.graph(ctx, code)
	if err != nil {
		return nil, err
	}

	var updated *model.Application
	err = g.datasource.WithTransaction(ctx, func(ctx context.Context) error {
		app, err := g.resolveApplication(ctx, clientRef, code)
		if err != nil {
			return err
		}
		updated, err = g.transition(ctx, graph, app, target, workflow.Origin{Source: OriginAPI})
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

// ReplaceApplication resubmits an application under a new client reference. The
// replacement keeps the workflow position and history of the original; the original is
// no longer replaceable and the lineage is recorded in the application xref.
func (g *Grantflow) ReplaceApplication(ctx context.Context, clientRef, code string, req ReplaceRequest) (*model.Application, error) {
	ctx, span := tracer.Start(ctx, "ReplaceApplication")
	defer span.End()

	if strings.TrimSpace(req.NewClientRef) == "" || req.NewClientRef == clientRef {
		return nil, apierror.APIError{Code: apierror.ErrBadRequest, Message: "replacement needs a new client reference"}
	}

	var replacement *model.Application
	err := g.datasource.WithTransaction(ctx, func(ctx context.Context) error {
		original, err := g.datasource.GetApplication(ctx, clientRef, code)
		if err != nil {
			return err
		}
		if !original.ReplacementAllowed {
			return fmt.Errorf("application %s/%s at %s: %w", clientRef, code, original.CurrentPath(), workflow.ErrReplacementNotAllowed)
		}

		now := time.Now().UTC()
		replacement = replacementOf(original, req, now)
		if err := g.datasource.CreateApplication(ctx, replacement); err != nil {
			return err
		}

		retired := *original
		retired.ReplacementAllowed = false
		retired.SupersededBy = replacement.ClientRef
		retired.UpdatedAt = now
		if err := g.datasource.UpdateApplication(ctx, &retired, original.CurrentPath()); err != nil {
			return err
		}

		if err := g.recordLineage(ctx, original, replacement, req.ClientID); err != nil {
			return err
		}

		return g.enqueueApplicationEvent(ctx, model.EventApplicationReplaced, replacement, ApplicationEvent{PreviousClientRef: clientRef})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return replacement, nil
}

func replacementOf(original *model.Application, req ReplaceRequest, at time.Time) *model.Application {
	next := *original
	next.ClientRef = req.NewClientRef
	next.SupersededBy = ""
	next.Phases = make([]model.ApplicationPhase, len(original.Phases))
	copy(next.Phases, original.Phases)
	if req.Answers != nil {
		for i := range next.Phases {
			if next.Phases[i].Code == next.CurrentPhase {
				next.Phases[i].Answers = req.Answers
			}
		}
	}
	next.History = append(append([]model.HistoryEntry(nil), original.History...), model.HistoryEntry{
		From:   original.CurrentPath(),
		To:     original.CurrentPath(),
		Source: "replaced:" + original.ClientRef,
		At:     at,
	})
	next.CreatedAt = at
	next.UpdatedAt = at
	return &next
}

func (g *Grantflow) recordLineage(ctx context.Context, original, replacement *model.Application, clientID string) error {
	xref, err := g.datasource.GetXRefByClientRef(ctx, original.ClientRef, original.Code)
	if errors.Is(err, database.ErrNotFound) {
		xref = &model.ApplicationXRef{ClientRefs: []string{original.ClientRef}, Code: original.Code}
	} else if err != nil {
		return err
	}

	if !xref.HasClientRef(replacement.ClientRef) {
		xref.ClientRefs = append(xref.ClientRefs, replacement.ClientRef)
	}
	xref.CurrentClientRef = replacement.ClientRef
	if clientID != "" {
		xref.CurrentClientID = clientID
	}
	return g.datasource.SaveXRef(ctx, xref)
}

// resolveApplication finds the live application behind clientRef. A retired
// application, or a reference with no application of its own, is followed through the
// lineage to its current client reference.
func (g *Grantflow) resolveApplication(ctx context.Context, clientRef, code string) (*model.Application, error) {
	app, err := g.datasource.GetApplication(ctx, clientRef, code)
	switch {
	case err == nil && app.SupersededBy == "":
		return app, nil
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	current := ""
	if err == nil {
		current = app.SupersededBy
	}
	xref, xerr := g.datasource.GetXRefByClientRef(ctx, clientRef, code)
	if xerr == nil && xref.CurrentClientRef != "" && xref.CurrentClientRef != clientRef {
		current = xref.CurrentClientRef
	}
	if current == "" {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"client_ref": clientRef, "current_client_ref": current}).
		Debug("resolved superseded client reference")
	return g.datasource.GetApplication(ctx, current, code)
}

// transition validates and applies target to app, writes it conditionally on app's
// current path and queues the status event plus one command per declared process.
// It must run inside a transaction.
func (g *Grantflow) transition(ctx context.Context, graph *workflow.Graph, app *model.Application, target string, origin workflow.Origin) (*model.Application, error) {
	tr, err := graph.ApplyTransition(app, target, origin)
	if err != nil {
		return nil, err
	}
	if err := g.datasource.UpdateApplication(ctx, tr.Application, tr.From.String()); err != nil {
		return nil, err
	}

	next := tr.Application
	if err := g.enqueueApplicationEvent(ctx, model.EventApplicationStatusUpdated, next, ApplicationEvent{
		PreviousStatus: tr.From.String(),
		Processes:      tr.Processes,
		Source:         origin.Source,
	}); err != nil {
		return nil, err
	}

	for _, process := range tr.Processes {
		cmd := CommandEvent{
			ClientRef: next.ClientRef,
			Code:      next.Code,
			Process:   process,
			From:      tr.From.String(),
			To:        tr.To.String(),
		}
		if err := g.enqueue(ctx, commandEventType(process), next, cmd); err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"client_ref": next.ClientRef,
		"grant":      next.Code,
		"from":       tr.From.String(),
		"to":         tr.To.String(),
		"processes":  tr.Processes,
		"source":     origin.Source,
	}).Info("application status updated")
	return next, nil
}

func commandEventType(process string) string {
	return model.EventCommandPrefix + strings.ToLower(process)
}

func (g *Grantflow) enqueueApplicationEvent(ctx context.Context, eventType string, app *model.Application, data ApplicationEvent) error {
	data.ClientRef = app.ClientRef
	data.Code = app.Code
	data.CurrentPhase = app.CurrentPhase
	data.CurrentStage = app.CurrentStage
	data.CurrentStatus = app.CurrentStatus
	data.ReplacementAllowed = app.ReplacementAllowed
	return g.enqueue(ctx, eventType, app, data)
}

// enqueue writes an outbox record segregated by the application so subscribers see the
// application's events in order.
func (g *Grantflow) enqueue(ctx context.Context, eventType string, app *model.Application, data interface{}) error {
	ref := model.SegregationRef(app.ClientRef, app.Code)
	event, err := model.NewCloudEvent(EventSource, eventType, ref, data)
	if err != nil {
		return err
	}
	return g.datasource.InsertOutbox(ctx, model.NewOutboxRecord(event, ref))
}
