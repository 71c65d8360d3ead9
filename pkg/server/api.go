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
	"github.com/gin-gonic/gin"
	"github.com/lucasduport/debrid-relay/pkg/utils"
)

// setupInternalAPI configures internal API routes for operators
func (c *Config) setupInternalAPI(r *gin.Engine) {
	utils.InfoLog("Setting up internal API endpoints")

	api := r.Group("/api/internal")
	api.Use(c.apiKeyAuth())

	api.GET("/ping", c.ping)

	// Resolution cache management
	api.GET("/cache", c.cacheStats)
	api.DELETE("/cache", c.purgeCache)
	api.DELETE("/cache/*key", c.invalidateKey)

	// Relays in progress
	api.GET("/streams", c.listStreams)
	api.GET("/streams/:id", c.getStream)
	api.DELETE("/streams/:id", c.disconnectStream)

	// Relay history
	api.GET("/history", c.historyStats)

	utils.InfoLog("Internal API routes configured successfully")
}
