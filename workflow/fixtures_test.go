package workflow

import (
	"time"

	"github.com/blnkfinance/grantflow/model"
)

func frpsGrant() *model.Grant {
	return &model.Grant{
		Code: "frps-private-beta",
		Phases: []model.Phase{
			{
				Code: "PRE_AWARD",
				Stages: []model.Stage{
					{
						Code: "REVIEW_APPLICATION",
						Statuses: []model.Status{
							{Code: "RECEIVED", ReplacementAllowed: true},
							{Code: "IN_REVIEW", ValidFrom: []model.ValidFromRule{{Code: "RECEIVED"}, {Code: "ON_HOLD"}}},
							{Code: "ON_HOLD", ValidFrom: []model.ValidFromRule{{Code: "IN_REVIEW"}}},
							{
								Code:      "AGREEMENT_GENERATING",
								ValidFrom: []model.ValidFromRule{{Code: "IN_REVIEW", Processes: []string{"GENERATE_AGREEMENT"}}},
							},
							{Code: "APPLICATION_REJECTED", ValidFrom: []model.ValidFromRule{{Code: "IN_REVIEW"}}},
						},
					},
					{
						Code: "REVIEW_OFFER",
						Statuses: []model.Status{
							{
								Code: "AGREEMENT_DRAFTED",
								ValidFrom: []model.ValidFromRule{{
									Code:      "PRE_AWARD:REVIEW_APPLICATION:AGREEMENT_GENERATING",
									Processes: []string{"STORE_AGREEMENT_CASE"},
								}},
								ReplacementAllowed: true,
							},
							{
								Code:      "AGREEMENT_ACCEPTED",
								ValidFrom: []model.ValidFromRule{{Code: "AGREEMENT_DRAFTED"}},
								Processes: []string{"UPDATE_AGREEMENT_CASE"},
							},
							{Code: "WITHDRAWN", ValidFrom: []model.ValidFromRule{{Code: "::AGREEMENT_DRAFTED"}, {Code: "::ON_HOLD"}}},
						},
					},
				},
			},
			{
				Code: "POST_AGREEMENT_MONITORING",
				Stages: []model.Stage{
					{
						Code: "MONITORING",
						Statuses: []model.Status{
							{Code: "COMPLETE", ValidFrom: []model.ValidFromRule{{Code: "PRE_AWARD:REVIEW_OFFER:AGREEMENT_ACCEPTED"}}},
						},
					},
				},
			},
		},
		ExternalStatusMap: model.ExternalStatusMap{
			Phases: []model.ExternalPhase{
				{
					Code: "PRE_AWARD",
					Stages: []model.ExternalStage{
						{
							Code: "REVIEW_APPLICATION",
							Statuses: []model.ExternalStatus{
								{Code: "APPLICATION_REVIEW", Source: "CW", MappedTo: "::IN_REVIEW"},
								{Code: "ON_HOLD", Source: "CW", MappedTo: "::ON_HOLD"},
								{Code: "APPLICATION_REJECTED", Source: "CW", MappedTo: "APPLICATION_REJECTED"},
								{Code: "offered", Source: "AS", MappedTo: "PRE_AWARD:REVIEW_OFFER:AGREEMENT_DRAFTED"},
							},
						},
						{
							Code: "REVIEW_OFFER",
							Statuses: []model.ExternalStatus{
								{Code: "offered", Source: "AS", MappedTo: "::AGREEMENT_DRAFTED"},
								{Code: "accepted", Source: "AS", MappedTo: "::AGREEMENT_ACCEPTED"},
								{Code: "withdrawn", Source: "AS", MappedTo: "::WITHDRAWN"},
							},
						},
					},
				},
			},
		},
	}
}

func applicationAt(path string) *model.Application {
	p := MustParsePath(path)
	return &model.Application{
		ClientRef:     "APP-123",
		Code:          "frps-private-beta",
		CurrentPhase:  p.Phase,
		CurrentStage:  p.Stage,
		CurrentStatus: p.Status,
		Phases:        []model.ApplicationPhase{{Code: "PRE_AWARD", Answers: map[string]any{"scheme": "SFI"}}},
		CreatedAt:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
