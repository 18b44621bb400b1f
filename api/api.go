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

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/grantflow"
	"github.com/blnkfinance/grantflow/api/middleware"
	"github.com/blnkfinance/grantflow/config"
	"github.com/blnkfinance/grantflow/internal/apierror"
	"github.com/blnkfinance/grantflow/model"
)

// Service is the set of use-cases the HTTP surface exposes. *grantflow.Grantflow
// implements it.
type Service interface {
	CreateGrant(ctx context.Context, grant *model.Grant) (*model.Grant, error)
	SeedGrant(ctx context.Context, grant *model.Grant) error
	GetGrant(ctx context.Context, code string) (*model.Grant, error)
	ListGrants(ctx context.Context) ([]model.Grant, error)

	SubmitApplication(ctx context.Context, code, clientRef string, answers map[string]any) (*model.Application, error)
	GetApplication(ctx context.Context, clientRef, code string) (*model.Application, error)
	ListApplications(ctx context.Context, code string, limit, offset int) ([]model.Application, error)
	UpdateApplicationStatus(ctx context.Context, clientRef, code, target string) (*model.Application, error)
	ReplaceApplication(ctx context.Context, clientRef, code string, req grantflow.ReplaceRequest) (*model.Application, error)

	ReceiveInboundEvent(ctx context.Context, event model.CloudEvent) (bool, error)

	ListQueueRecords(ctx context.Context, queue, status string, limit, offset int) ([]model.QueueRecord, error)
	GetQueueRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error)
	ResubmitQueueRecord(ctx context.Context, queue, id string) (*model.QueueRecord, error)
}

type Api struct {
	service Service
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/inbox", a.ReceiveInboundEvent)

	router.POST("/grants", a.CreateGrant)
	router.GET("/grants", a.ListGrants)
	router.GET("/grants/:code", a.GetGrant)
	router.PUT("/grants/:code", a.PutGrant)

	router.POST("/grants/:code/applications", a.SubmitApplication)
	router.GET("/grants/:code/applications", a.ListApplications)
	router.GET("/grants/:code/applications/:client_ref", a.GetApplication)
	router.PUT("/grants/:code/applications/:client_ref/status", a.UpdateApplicationStatus)
	router.POST("/grants/:code/applications/:client_ref/replace", a.ReplaceApplication)

	router.GET("/queues/:queue/records", a.ListQueueRecords)
	router.GET("/queues/:queue/records/:id", a.GetQueueRecord)
	router.POST("/queues/:queue/records/:id/resubmit", a.ResubmitQueueRecord)
	return a.router
}

func NewAPI(s Service) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	r.Use(middleware.SecretKeyAuthMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{service: s, router: r}
}

// respondError writes err as an APIError with its mapped HTTP status.
func respondError(c *gin.Context, err error) {
	apiErr := apierror.FromError(err)
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), gin.H{"error": apiErr.Message, "code": apiErr.Code, "details": apiErr.Details})
}

// pagination reads limit and offset query parameters, defaulting to 20 and 0.
func pagination(c *gin.Context) (int, int, error) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 500 {
		return 0, 0, apierror.NewAPIError(apierror.ErrBadRequest, "limit must be between 1 and 500", c.Query("limit"))
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, apierror.NewAPIError(apierror.ErrBadRequest, "offset must be a positive number", c.Query("offset"))
	}
	return limit, offset, nil
}
