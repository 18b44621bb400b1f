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
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/internal/cache"
	"github.com/blnkfinance/grantflow/model"
	"github.com/blnkfinance/grantflow/workflow"
)

func TestParseGrantDefinitions(t *testing.T) {
	grant := loadFixtureGrant(t)
	assert.Equal(t, fixtureGrant, grant.Code)
	require.Len(t, grant.Phases, 2)
	assert.Equal(t, "::AGREEMENT_DRAFTED", grant.Phases[0].Stages[1].Statuses[2].ValidFrom[0].Code)
	assert.Equal(t, "AS", grant.ExternalStatusMap.Phases[0].Stages[1].Statuses[0].Source)

	multi := `
code: one
phases:
  - code: P
    stages:
      - code: S
        statuses:
          - code: NEW
---
code: two
phases:
  - code: P
    stages:
      - code: S
        statuses:
          - code: NEW
`
	grants, err := ParseGrantDefinitions(strings.NewReader(multi))
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "two", grants[1].Code)
}

func TestParseGrantDefinitionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "code: x\nphasez: []\n"},
		{name: "missing code", yaml: "phases: []\n"},
		{name: "dangling predecessor", yaml: `
code: x
phases:
  - code: P
    stages:
      - code: S
        statuses:
          - code: NEW
          - code: DONE
            validFrom:
              - code: MISSING
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGrantDefinitions(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSeedGrantFiles(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)

	ds.On("UpsertGrant", mock.Anything, mock.MatchedBy(func(grant *model.Grant) bool {
		return grant.Code == fixtureGrant
	})).Return(nil).Twice()

	codes, err := g.SeedGrantFiles(context.Background(), "testdata/grants/frps-private-beta.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{fixtureGrant}, codes)

	_, err = g.SeedGrantFiles(context.Background(), "testdata/grants/frps-private-beta.yaml")
	require.NoError(t, err)
	ds.AssertExpectations(t)

	_, err = g.SeedGrantFiles(context.Background(), "testdata/grants/missing.yaml")
	assert.Error(t, err)
}

func TestCreateGrantValidatesDefinition(t *testing.T) {
	g, ds, _ := newTestGrantflow(t)

	bad := loadFixtureGrant(t)
	bad.Phases[0].Stages[0].Statuses[1].ValidFrom = []model.ValidFromRule{{Code: "NOWHERE"}}
	_, err := g.CreateGrant(context.Background(), bad)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)
	ds.AssertNotCalled(t, "CreateGrant", mock.Anything, mock.Anything)

	ds.On("CreateGrant", mock.Anything, mock.Anything).Return(database.ErrDuplicate).Once()
	_, err = g.CreateGrant(context.Background(), loadFixtureGrant(t))
	assert.ErrorIs(t, err, database.ErrDuplicate)
}

func TestGetGrantReadsThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	g, ds, _ := newTestGrantflow(t)
	g.cache = cache.NewRedisCache(client)

	ds.On("GetGrant", mock.Anything, fixtureGrant).Return(loadFixtureGrant(t), nil).Once()

	first, err := g.GetGrant(context.Background(), fixtureGrant)
	require.NoError(t, err)
	second, err := g.GetGrant(context.Background(), fixtureGrant)
	require.NoError(t, err)

	assert.Equal(t, first.Code, second.Code)
	assert.Len(t, second.Phases, 2)
	ds.AssertNumberOfCalls(t, "GetGrant", 1)

	ds.On("UpsertGrant", mock.Anything, mock.Anything).Return(nil).Once()
	require.NoError(t, g.SeedGrant(context.Background(), loadFixtureGrant(t)))
	assert.False(t, mr.Exists(grantCacheKey(fixtureGrant)))
}
