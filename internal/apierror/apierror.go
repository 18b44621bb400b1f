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

package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/grantflow/database"
	"github.com/blnkfinance/grantflow/workflow"
)

type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrUnmappedStatus    ErrorCode = "UNMAPPED_STATUS"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// FromError classifies store and workflow errors into API errors. Errors that are
// already APIErrors are returned as is.
func FromError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var unmapped *workflow.UnmappedStatusError
	switch {
	case errors.As(err, &unmapped):
		details := map[string]string{"source": unmapped.Source, "code": unmapped.Code}
		if unmapped.Suggestion != "" {
			details["suggestion"] = unmapped.Suggestion
		}
		return APIError{Code: ErrUnmappedStatus, Message: err.Error(), Details: details}
	case errors.Is(err, workflow.ErrInvalidTransition):
		return APIError{Code: ErrInvalidTransition, Message: err.Error()}
	case errors.Is(err, workflow.ErrUnknownStatus), errors.Is(err, workflow.ErrInvalidDefinition):
		return APIError{Code: ErrInvalidInput, Message: err.Error()}
	case errors.Is(err, database.ErrNotFound):
		return APIError{Code: ErrNotFound, Message: err.Error()}
	case errors.Is(err, database.ErrDuplicate), errors.Is(err, database.ErrConflict), errors.Is(err, workflow.ErrReplacementNotAllowed):
		return APIError{Code: ErrConflict, Message: err.Error()}
	default:
		return NewAPIError(ErrInternalServer, "Internal server error", err.Error())
	}
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrInvalidTransition:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest:
			return http.StatusBadRequest
		case ErrUnmappedStatus:
			return http.StatusUnprocessableEntity
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
