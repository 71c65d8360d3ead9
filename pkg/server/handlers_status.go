/*
 * debrid-relay re-serves debrid streaming links through a single egress address.
 * Copyright (C) 2025  Lucas Duport
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lucasduport/debrid-relay/pkg/types"
	"github.com/lucasduport/debrid-relay/pkg/utils"
)

// ping reports that the API is up and which optional parts are enabled.
func (c *Config) ping(ctx *gin.Context) {
	utils.DebugLog("API ping received")
	ctx.JSON(http.StatusOK, types.APIResponse{
		Success: true,
		Message: "API is running",
		Data: map[string]interface{}{
			"time":         time.Now().String(),
			"db_connected": c.db.IsInitialized(),
			"auth_enabled": c.AuthEnabled(),
			"provider":     c.Provider,
			"streams":      c.sessions.Count(),
		},
	})
}

func (c *Config) cacheStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, types.APIResponse{
		Success: true,
		Data:    c.proxy.Cache().Stats(),
	})
}

func (c *Config) purgeCache(ctx *gin.Context) {
	removed := c.proxy.Cache().Len()
	c.proxy.Cache().Purge()
	utils.InfoLog("Resolution cache purged (%d entries)", removed)
	ctx.JSON(http.StatusOK, types.APIResponse{
		Success: true,
		Message: "Cache purged",
		Data:    map[string]int{"removed": removed},
	})
}

// invalidateKey drops one content key. The key is taken in its escaped form,
// the same form the relay route uses.
func (c *Config) invalidateKey(ctx *gin.Context) {
	key := strings.TrimPrefix(ctx.Request.URL.EscapedPath(), "/api/internal/cache/")
	if _, err := sanitizeKey(key); err != nil {
		ctx.JSON(http.StatusBadRequest, types.APIResponse{Success: false, Error: err.Error()})
		return
	}
	c.proxy.Cache().Invalidate(key)
	utils.InfoLog("Resolution cache entry invalidated for key %s", key)
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Key invalidated"})
}

func (c *Config) listStreams(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, types.APIResponse{
		Success: true,
		Data:    c.sessions.GetAllStreams(),
	})
}

func (c *Config) getStream(ctx *gin.Context) {
	info, ok := c.sessions.GetStreamInfo(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "Stream not found"})
		return
	}
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Data: info})
}

// disconnectStream cancels a relay. The client sees its connection drop.
func (c *Config) disconnectStream(ctx *gin.Context) {
	if !c.sessions.Disconnect(ctx.Param("id")) {
		ctx.JSON(http.StatusNotFound, types.APIResponse{Success: false, Error: "Stream not found"})
		return
	}
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Message: "Stream disconnected"})
}

func (c *Config) historyStats(ctx *gin.Context) {
	if !c.db.IsInitialized() {
		ctx.JSON(http.StatusServiceUnavailable, types.APIResponse{
			Success: false,
			Error:   "Relay history is disabled",
		})
		return
	}

	stats, err := c.db.GetRelayHistoryStats()
	if err != nil {
		utils.ErrorLog("Failed to read relay history: %v", err)
		ctx.JSON(http.StatusInternalServerError, types.APIResponse{
			Success: false,
			Error:   "Failed to read relay history",
		})
		return
	}
	ctx.JSON(http.StatusOK, types.APIResponse{Success: true, Data: stats})
}
