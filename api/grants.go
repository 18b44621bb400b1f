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
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/blnkfinance/grantflow/api/model"
)

func (a Api) CreateGrant(c *gin.Context) {
	var newGrant model2.CreateGrant
	if err := c.ShouldBindJSON(&newGrant); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newGrant.ValidateCreateGrant(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.service.CreateGrant(c.Request.Context(), newGrant.ToGrant())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// PutGrant replaces the whole definition stored under :code.
func (a Api) PutGrant(c *gin.Context) {
	code := c.Param("code")

	var newGrant model2.CreateGrant
	if err := c.ShouldBindJSON(&newGrant); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if newGrant.Code == "" {
		newGrant.Code = code
	}
	if newGrant.Code != code {
		c.JSON(http.StatusBadRequest, gin.H{"error": "grant code does not match the route"})
		return
	}
	if err := newGrant.ValidateCreateGrant(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	grant := newGrant.ToGrant()
	if err := a.service.SeedGrant(c.Request.Context(), grant); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, grant)
}

func (a Api) GetGrant(c *gin.Context) {
	resp, err := a.service.GetGrant(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ListGrants(c *gin.Context) {
	resp, err := a.service.ListGrants(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
