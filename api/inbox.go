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

// ReceiveInboundEvent records a partner status event in the inbox. A redelivered
// event id is acknowledged with 200 instead of 202.
func (a Api) ReceiveInboundEvent(c *gin.Context) {
	var event model2.InboundEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := event.ValidateInboundEvent(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inserted, err := a.service.ReceiveInboundEvent(c.Request.Context(), event.ToCloudEvent())
	if err != nil {
		respondError(c, err)
		return
	}

	if !inserted {
		c.JSON(http.StatusOK, gin.H{"id": event.ID, "duplicate": true})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": event.ID, "duplicate": false})
}
