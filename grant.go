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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/grantflow/model"
	"github.com/blnkfinance/grantflow/workflow"
)

var tracer = otel.Tracer("grantflow")

func grantCacheKey(code string) string {
	return "grant:" + code
}

// CreateGrant stores a new grant definition after checking that it compiles.
func (g *Grantflow) CreateGrant(ctx context.Context, grant *model.Grant) (*model.Grant, error) {
	ctx, span := tracer.Start(ctx, "CreateGrant")
	defer span.End()

	if _, err := workflow.Compile(grant); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := g.datasource.CreateGrant(ctx, grant); err != nil {
		span.RecordError(err)
		return nil, err
	}
	g.cacheGrant(ctx, grant)
	return grant, nil
}

// SeedGrant replaces the stored definition of grant.Code with grant as a whole,
// creating it when absent. Seeding the same file twice leaves the same document.
func (g *Grantflow) SeedGrant(ctx context.Context, grant *model.Grant) error {
	ctx, span := tracer.Start(ctx, "SeedGrant")
	defer span.End()

	if _, err := workflow.Compile(grant); err != nil {
		return err
	}
	if err := g.datasource.UpsertGrant(ctx, grant); err != nil {
		span.RecordError(err)
		return err
	}
	g.forget(ctx, grant.Code)
	logrus.WithField("grant", grant.Code).Info("grant definition seeded")
	return nil
}

// GetGrant returns a grant definition, reading through the cache.
func (g *Grantflow) GetGrant(ctx context.Context, code string) (*model.Grant, error) {
	ctx, span := tracer.Start(ctx, "GetGrant")
	defer span.End()

	if g.cache != nil {
		var cached model.Grant
		if err := g.cache.Get(ctx, grantCacheKey(code), &cached); err != nil {
			logrus.WithError(err).WithField("grant", code).Warn("grant cache read failed")
		} else if cached.Code != "" {
			return &cached, nil
		}
	}

	grant, err := g.datasource.GetGrant(ctx, code)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	g.cacheGrant(ctx, grant)
	return grant, nil
}

func (g *Grantflow) ListGrants(ctx context.Context) ([]model.Grant, error) {
	return g.datasource.ListGrants(ctx)
}

// graph returns the compiled workflow of a grant, reusing the last compilation while
// the stored definition is unchanged.
func (g *Grantflow) graph(ctx context.Context, code string) (*workflow.Graph, error) {
	grant, err := g.GetGrant(ctx, code)
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	c, ok := g.graphs[code]
	g.mu.RUnlock()
	if ok && c.updatedAt.Equal(grant.UpdatedAt) {
		return c.graph, nil
	}

	compiled, err := workflow.Compile(grant)
	if err != nil {
		return nil, fmt.Errorf("stored grant %s: %w", code, err)
	}

	g.mu.Lock()
	g.graphs[code] = compiledGrant{updatedAt: grant.UpdatedAt, graph: compiled}
	g.mu.Unlock()
	return compiled, nil
}

func (g *Grantflow) cacheGrant(ctx context.Context, grant *model.Grant) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, grantCacheKey(grant.Code), grant, g.cacheTTL); err != nil {
		logrus.WithError(err).WithField("grant", grant.Code).Warn("grant cache write failed")
	}
}

func (g *Grantflow) forget(ctx context.Context, code string) {
	g.mu.Lock()
	delete(g.graphs, code)
	g.mu.Unlock()

	if g.cache == nil {
		return
	}
	if err := g.cache.Delete(ctx, grantCacheKey(code)); err != nil {
		logrus.WithError(err).WithField("grant", code).Warn("grant cache delete failed")
	}
}
