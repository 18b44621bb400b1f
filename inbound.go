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
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/internal/apierror"
	"github.com/blnkfinance/grantflow/model"
)

// Partner systems that send status events.
const (
	SourceCaseWorking      = "CW"
	SourceAgreementService = "AS"
)

// InboundStatus is a partner status event reduced to what the workflow needs.
type InboundStatus struct {
	Source string
	Ref    string
	Code   string
	Status string
}

func (s InboundStatus) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Ref, validation.Required),
		validation.Field(&s.Code, validation.Required),
		validation.Field(&s.Status, validation.Required),
	)
}

// SegregationRef keys the events that must be applied one at a time, in order.
func (s InboundStatus) SegregationRef() string {
	return model.SegregationRef(s.Ref, s.Code)
}

type caseWorkingData struct {
	CaseRef       string `json:"caseRef"`
	WorkflowCode  string `json:"workflowCode"`
	CurrentStatus string `json:"currentStatus"`
}

type agreementServiceData struct {
	ClientRef string `json:"clientRef"`
	Code      string `json:"code"`
	Status    string `json:"status"`
}

type inboundDecoder func(event model.CloudEvent) (InboundStatus, error)

// inboundDecoders holds one entry per partner vocabulary. Adding a partner means adding
// an entry here and its codes to the grants' external status maps.
var inboundDecoders = map[string]inboundDecoder{
	SourceCaseWorking: func(event model.CloudEvent) (InboundStatus, error) {
		var d caseWorkingData
		err := event.DecodeData(&d)
		return InboundStatus{Ref: d.CaseRef, Code: d.WorkflowCode, Status: d.CurrentStatus}, err
	},
	SourceAgreementService: func(event model.CloudEvent) (InboundStatus, error) {
		var d agreementServiceData
		err := event.DecodeData(&d)
		return InboundStatus{Ref: d.ClientRef, Code: d.Code, Status: d.Status}, err
	},
}

// DecodeInbound extracts the status update carried by a partner event.
func DecodeInbound(event model.CloudEvent) (InboundStatus, error) {
	source := strings.ToUpper(strings.TrimSpace(event.Source))
	decode, ok := inboundDecoders[source]
	if !ok {
		return InboundStatus{}, apierror.APIError{
			Code:    apierror.ErrBadRequest,
			Message: fmt.Sprintf("unknown event source %q", event.Source),
		}
	}

	in, err := decode(event)
	if err != nil {
		return InboundStatus{}, apierror.APIError{Code: apierror.ErrBadRequest, Message: "malformed event data: " + err.Error()}
	}
	in.Source = source
	if err := in.Validate(); err != nil {
		return InboundStatus{}, apierror.APIError{Code: apierror.ErrInvalidInput, Message: "invalid event data", Details: err}
	}
	return in, nil
}

// ReceiveInboundEvent records a partner event in the inbox. A redelivered event id is
// acknowledged without a second record; inserted reports which case applied.
func (g *Grantflow) ReceiveInboundEvent(ctx context.Context, event model.CloudEvent) (bool, error) {
	ctx, span := tracer.Start(ctx, "ReceiveInboundEvent")
	defer span.End()

	if strings.TrimSpace(event.ID) == "" {
		return false, apierror.APIError{Code: apierror.ErrInvalidInput, Message: "event id is required"}
	}
	in, err := DecodeInbound(event)
	if err != nil {
		return false, err
	}

	record := model.NewInboxRecord(event, in.SegregationRef(), in.Source)
	inserted, err := g.datasource.UpsertInbox(ctx, record)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	logrus.WithFields(logrus.Fields{
		"message_id":      event.ID,
		"source":          in.Source,
		"segregation_ref": record.SegregationRef,
		"duplicate":       !inserted,
	}).Info("inbound event received")
	return inserted, nil
}
