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

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/model"
	"github.com/blnkfinance/grantflow/workflow"
)

// ProcessInboxRecord applies the partner status carried by an inbox record. The
// translated transition, the outbox records it produces and the completion of the inbox
// record commit together, so a redelivered record finds nothing left to do.
func (g *Grantflow) ProcessInboxRecord(ctx context.Context, record *model.QueueRecord, workerID string) error {
	ctx, span := tracer.Start(ctx, "ProcessInboxRecord")
	defer span.End()

	in, err := DecodeInbound(record.Payload)
	if err != nil {
		return err
	}
	graph, err := g.graph(ctx, in.Code)
	if err != nil {
		return err
	}

	err = g.datasource.WithTransaction(ctx, func(ctx context.Context) error {
		app, err := g.resolveApplication(ctx, in.Ref, in.Code)
		if err != nil {
			return err
		}

		if alreadyApplied(app, record.Payload.ID) {
			logrus.WithFields(logrus.Fields{"record_id": record.ID, "message_id": record.Payload.ID}).
				Info("inbound event already applied")
		} else {
			target, err := graph.Translate(app.CurrentPhase, app.CurrentStage, in.Source, in.Status)
			if err != nil {
				return err
			}
			if _, err := g.transition(ctx, graph, app, target.String(), workflow.Origin{
				Source:    in.Source,
				MessageID: record.Payload.ID,
			}); err != nil {
				return err
			}
		}

		return g.datasource.CompleteRecord(ctx, model.QueueInbox, record.ID, workerID)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func alreadyApplied(app *model.Application, messageID string) bool {
	if messageID == "" {
		return false
	}
	for _, h := range app.History {
		if h.MessageID == messageID {
			return true
		}
	}
	return false
}
