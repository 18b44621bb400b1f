package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/grantflow/model"
)

func TestCompile(t *testing.T) {
	g, err := Compile(frpsGrant())
	require.NoError(t, err)

	assert.Equal(t, "frps-private-beta", g.Code())

	initial, err := g.InitialPath()
	require.NoError(t, err)
	assert.Equal(t, "PRE_AWARD:REVIEW_APPLICATION:RECEIVED", initial.String())
	assert.True(t, g.IsInitial(initial))
	assert.False(t, g.IsInitial(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW")))

	assert.True(t, g.Has(MustParsePath("POST_AGREEMENT_MONITORING:MONITORING:COMPLETE")))
	assert.False(t, g.Has(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:COMPLETE")))

	assert.True(t, g.IsTerminal(MustParsePath("POST_AGREEMENT_MONITORING:MONITORING:COMPLETE")))
	assert.True(t, g.IsTerminal(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:APPLICATION_REJECTED")))
	assert.False(t, g.IsTerminal(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW")))

	assert.True(t, g.ReplacementAllowed(MustParsePath("PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED")))
	assert.False(t, g.ReplacementAllowed(MustParsePath("PRE_AWARD:REVIEW_OFFER:AGREEMENT_ACCEPTED")))
}

func TestCompileNormalisesBareValidFrom(t *testing.T) {
	g, err := Compile(frpsGrant())
	require.NoError(t, err)

	from, err := g.ValidFrom(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW"))
	require.NoError(t, err)
	require.Len(t, from, 2)
	assert.Equal(t, "PRE_AWARD:REVIEW_APPLICATION:RECEIVED", from[0].String())
	assert.Equal(t, "PRE_AWARD:REVIEW_APPLICATION:ON_HOLD", from[1].String())

	withdrawn, err := g.ValidFrom(MustParsePath("PRE_AWARD:REVIEW_OFFER:WITHDRAWN"))
	require.NoError(t, err)
	assert.Equal(t, "::AGREEMENT_DRAFTED", withdrawn[0].String())

	_, err = g.ValidFrom(MustParsePath("PRE_AWARD:REVIEW_OFFER:NOPE"))
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestSuccessors(t *testing.T) {
	g, err := Compile(frpsGrant())
	require.NoError(t, err)

	var got []string
	for _, p := range g.Successors(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW")) {
		got = append(got, p.String())
	}
	assert.ElementsMatch(t, []string{
		"PRE_AWARD:REVIEW_APPLICATION:ON_HOLD",
		"PRE_AWARD:REVIEW_APPLICATION:AGREEMENT_GENERATING",
		"PRE_AWARD:REVIEW_APPLICATION:APPLICATION_REJECTED",
	}, got)

	got = got[:0]
	for _, p := range g.Successors(MustParsePath("PRE_AWARD:REVIEW_APPLICATION:ON_HOLD")) {
		got = append(got, p.String())
	}
	assert.ElementsMatch(t, []string{
		"PRE_AWARD:REVIEW_APPLICATION:IN_REVIEW",
		"PRE_AWARD:REVIEW_OFFER:WITHDRAWN",
	}, got)
}

func TestCompileRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *model.Grant)
	}{
		{
			name: "unknown predecessor",
			mutate: func(g *model.Grant) {
				st := &g.Phases[0].Stages[0].Statuses[1]
				st.ValidFrom = append(st.ValidFrom, model.ValidFromRule{Code: "NOT_A_STATUS"})
			},
		},
		{
			name: "unknown wildcard predecessor",
			mutate: func(g *model.Grant) {
				st := &g.Phases[0].Stages[0].Statuses[1]
				st.ValidFrom = append(st.ValidFrom, model.ValidFromRule{Code: "::NOT_A_STATUS"})
			},
		},
		{
			name: "malformed predecessor",
			mutate: func(g *model.Grant) {
				st := &g.Phases[0].Stages[0].Statuses[1]
				st.ValidFrom = append(st.ValidFrom, model.ValidFromRule{Code: "PRE_AWARD::RECEIVED"})
			},
		},
		{
			name: "duplicate status",
			mutate: func(g *model.Grant) {
				stage := &g.Phases[0].Stages[0]
				stage.Statuses = append(stage.Statuses, model.Status{Code: "IN_REVIEW"})
			},
		},
		{
			name: "duplicate external mapping",
			mutate: func(g *model.Grant) {
				stage := &g.ExternalStatusMap.Phases[0].Stages[1]
				stage.Statuses = append(stage.Statuses, model.ExternalStatus{Code: "ACCEPTED", Source: "as", MappedTo: "::WITHDRAWN"})
			},
		},
		{
			name: "malformed external target",
			mutate: func(g *model.Grant) {
				stage := &g.ExternalStatusMap.Phases[0].Stages[1]
				stage.Statuses = append(stage.Statuses, model.ExternalStatus{Code: "lapsed", Source: "AS", MappedTo: "A:B"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant := frpsGrant()
			tt.mutate(grant)
			_, err := Compile(grant)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestCompileWithoutInitialStatus(t *testing.T) {
	grant := &model.Grant{
		Code: "loop",
		Phases: []model.Phase{{
			Code: "P",
			Stages: []model.Stage{{
				Code: "S",
				Statuses: []model.Status{
					{Code: "A", ValidFrom: []model.ValidFromRule{{Code: "B"}}},
					{Code: "B", ValidFrom: []model.ValidFromRule{{Code: "A"}}},
				},
			}},
		}},
	}

	g, err := Compile(grant)
	require.NoError(t, err)

	_, err = g.InitialPath()
	assert.ErrorIs(t, err, ErrNoInitialStatus)
}
