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
	"fmt"

	"github.com/blnkfinance/grantflow/model"
)

// PublishOutboxRecord hands an outbox event to the broker. The poller completes the
// record once this returns nil.
func (g *Grantflow) PublishOutboxRecord(ctx context.Context, record *model.QueueRecord, _ string) error {
	ctx, span := tracer.Start(ctx, "PublishOutboxRecord")
	defer span.End()

	if g.publisher == nil {
		return fmt.Errorf("no publisher configured")
	}
	destination := g.router.Resolve(record)
	if err := g.publisher.Publish(ctx, destination, record.Payload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publish %s to %q: %w", record.Payload.Type, destination, err)
	}
	return nil
}
