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
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lucasduport/debrid-relay/pkg/addon"
	"github.com/lucasduport/debrid-relay/pkg/utils"
)

// getManifest serves the addon manifest.
func (c *Config) getManifest(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.manifest)
}

// getStreams serves /stream/{type}/{id}.json, or the same list as an m3u
// playlist for /stream/{type}/{id}.m3u.
func (c *Config) getStreams(ctx *gin.Context) {
	contentType := ctx.Param("type")
	file := ctx.Param("file")

	var id string
	var playlist bool
	switch {
	case strings.HasSuffix(file, ".json"):
		id = strings.TrimSuffix(file, ".json")
	case strings.HasSuffix(file, ".m3u"):
		id = strings.TrimSuffix(file, ".m3u")
		playlist = true
	}
	if id == "" {
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}

	utils.DebugLog("Processing stream request: %s %s", contentType, id)
	streams, err := c.addon.Streams(ctx.Request.Context(), contentType, id)
	if err != nil {
		utils.ErrorLog("Failed to fetch stream list for %s %s: %v", contentType, id, err)
		ctx.AbortWithStatus(http.StatusBadGateway)
		return
	}

	if !playlist {
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", addon.EncodeStreams(streams))
		return
	}

	var buf bytes.Buffer
	if err := addon.MarshalPlaylist(&buf, addon.Playlist(streams)); err != nil {
		ctx.AbortWithError(http.StatusInternalServerError, utils.PrintErrorAndReturn(err)) // nolint: errcheck
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, id+".m3u"))
	ctx.Data(http.StatusOK, "audio/x-mpegurl", buf.Bytes())
}
