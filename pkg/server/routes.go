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
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (c *Config) routes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stremio addon endpoints
	stremio := r.Group("/", c.authenticate)
	stremio.GET("/manifest.json", c.getManifest)
	stremio.GET("/stream/:type/:file", c.getStreams)
	stremio.GET("/resolve/:provider/*key", c.resolveStream)
}
