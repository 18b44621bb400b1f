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
	"sync"
	"time"

	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/internal/cache"
	"github.com/blnkfinance/grantflow/internal/publisher"
	"github.com/blnkfinance/grantflow/workflow"
)

// EventSource is the CloudEvents source of every event this service emits.
const EventSource = "grantflow"

// Grantflow holds the grant and application use-cases and the queue handlers that
// move events in and out of the service.
type Grantflow struct {
	datasource database.IDataSource
	cache      cache.Cache
	cacheTTL   time.Duration
	publisher  publisher.Publisher
	router     publisher.Router

	mu     sync.RWMutex
	graphs map[string]compiledGrant
}

type compiledGrant struct {
	updatedAt time.Time
	graph     *workflow.Graph
}

// NewGrantflow wires the use-cases to the datasource, the grant cache and the
// configured outbound publisher.
func NewGrantflow(db database.IDataSource) (*Grantflow, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	c, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	pub, router, err := publisher.New(cfg)
	if err != nil {
		return nil, err
	}

	g := newGrantflow(db, c, pub, router)
	g.cacheTTL = time.Duration(cfg.Grants.CacheTTLSec) * time.Second
	return g, nil
}

func newGrantflow(db database.IDataSource, c cache.Cache, pub publisher.Publisher, router publisher.Router) *Grantflow {
	return &Grantflow{
		datasource: db,
		cache:      c,
		cacheTTL:   5 * time.Minute,
		publisher:  pub,
		router:     router,
		graphs:     make(map[string]compiledGrant),
	}
}

// Datasource exposes the underlying store to the worker and migration commands.
func (g *Grantflow) Datasource() database.IDataSource {
	return g.datasource
}

// Close releases the publisher's connections.
func (g *Grantflow) Close() error {
	if g.publisher == nil {
		return nil
	}
	return g.publisher.Close()
}
