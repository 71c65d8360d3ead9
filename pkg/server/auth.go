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
	"crypto/subtle"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/lucasduport/debrid-relay/pkg/types"
	"github.com/lucasduport/debrid-relay/pkg/utils"
	uuid "github.com/satori/go.uuid"
)

var internalAPIKey string

func init() {
	internalAPIKey = loadInternalAPIKey()
}

// loadInternalAPIKey reads INTERNAL_API_KEY or generates a random key. The
// key itself is never logged.
func loadInternalAPIKey() string {
	if envKey := os.Getenv("INTERNAL_API_KEY"); envKey != "" {
		utils.InfoLog("Using internal API key from environment")
		return envKey
	}
	key := uuid.NewV4().String()
	utils.InfoLog("Generated new internal API key: %s", utils.MaskString(key))
	return key
}

// GetAPIKey returns the key expected in the X-API-Key header of the internal API.
func GetAPIKey() string {
	return internalAPIKey
}

// secretEqual compares in constant time. Lengths are compared first.
func secretEqual(provided, expected string) bool {
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// apiKeyAuth middleware validates the internal API key
func (c *Config) apiKeyAuth() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.GetHeader("X-API-Key")
		if !secretEqual(key, internalAPIKey) {
			utils.DebugLog("API authentication failed - invalid key: %s", utils.MaskString(key))
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, types.APIResponse{
				Success: false,
				Error:   "Invalid API key",
			})
			return
		}
		ctx.Next()
	}
}

// authenticate checks the api_key query parameter of addon requests when a
// key is configured. Only the path is logged, the query holds the secret.
func (c *Config) authenticate(ctx *gin.Context) {
	if !c.AuthEnabled() {
		return
	}

	path := ctx.Request.URL.Path
	provided, ok := ctx.GetQuery("api_key")
	switch {
	case !ok:
		utils.WarnLog("Access denied: missing api_key. Path: %s", path)
	case len(provided) != len(c.APIKey):
		utils.WarnLog("Access denied: incorrect api_key length. Path: %s", path)
	case !secretEqual(provided, c.APIKey.String()):
		utils.WarnLog("Access denied: incorrect api_key. Path: %s", path)
	default:
		return
	}
	ctx.AbortWithStatus(http.StatusForbidden)
}
